package bulk

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/mattn/go-isatty"
)

// Operation runs one function over a list of items, sequentially or with a
// worker pool.
type Operation struct {
	// Jobs is the number of workers; 0 means one per CPU.
	Jobs            int
	ContinueOnError bool
	// Progress receives a live counter when it is a terminal.
	Progress io.Writer
}

// Result represents the result of a bulk operation
type Result struct {
	TotalItems int
	Succeeded  int
	Failed     int
	// Errors are ordered like the input items.
	Errors []ItemError
}

// ItemError represents an error for a specific item
type ItemError struct {
	Item  string
	Error error
}

// ItemFunc is the function to execute for each item
type ItemFunc func(item string) error

// Execute runs fn for every item. Without ContinueOnError, no new item is
// started after the first failure.
func (op *Operation) Execute(items []string, fn ItemFunc) *Result {
	jobs := op.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	if jobs > len(items) {
		jobs = len(items)
	}

	var (
		completed int32
		stop      atomic.Bool
		mu        sync.Mutex
		failures  = make(map[int]error)
	)

	progress := op.progressWriter()
	report := func() {
		n := atomic.AddInt32(&completed, 1)
		if progress != nil {
			mu.Lock()
			fmt.Fprintf(progress, "\rChecking %d/%d...", n, len(items))
			mu.Unlock()
		}
	}

	run := func(i int) {
		if err := fn(items[i]); err != nil {
			mu.Lock()
			failures[i] = err
			mu.Unlock()
			if !op.ContinueOnError {
				stop.Store(true)
			}
		}
		report()
	}

	started := 0
	if jobs <= 1 {
		for i := range items {
			if stop.Load() {
				break
			}
			started++
			run(i)
		}
	} else {
		work := make(chan int)
		var wg sync.WaitGroup
		for w := 0; w < jobs; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range work {
					run(i)
				}
			}()
		}
		for i := range items {
			if stop.Load() {
				break
			}
			work <- i
			started++
		}
		close(work)
		wg.Wait()
	}

	if progress != nil {
		fmt.Fprint(progress, "\r\033[K")
	}

	result := &Result{TotalItems: len(items)}
	indices := make([]int, 0, len(failures))
	for i := range failures {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	for _, i := range indices {
		result.Errors = append(result.Errors, ItemError{Item: items[i], Error: failures[i]})
	}
	result.Failed = len(failures)
	result.Succeeded = started - result.Failed
	return result
}

func (op *Operation) progressWriter() io.Writer {
	f, ok := op.Progress.(*os.File)
	if !ok || !isatty.IsTerminal(f.Fd()) {
		return nil
	}
	return f
}

// Skipped returns how many items never ran because an earlier one failed.
func (r *Result) Skipped() int {
	return r.TotalItems - r.Succeeded - r.Failed
}

// ExitCode returns the appropriate exit code for the result
func (r *Result) ExitCode() int {
	if r.Failed == 0 {
		return 0 // All succeeded
	}
	if r.Succeeded > 0 {
		return 5 // Partial success
	}
	return 1 // All failed
}

// PrintSummary prints a human-readable summary of the result
func (r *Result) PrintSummary(w io.Writer) {
	switch {
	case r.Failed == 0:
		fmt.Fprintf(w, "✓ All %d databases passed\n", r.TotalItems)
	case r.Succeeded == 0 && r.Skipped() == 0:
		fmt.Fprintf(w, "✗ All %d databases failed\n", r.TotalItems)
	default:
		fmt.Fprintf(w, "⚠ %d passed, %d failed, %d not checked (out of %d)\n",
			r.Succeeded, r.Failed, r.Skipped(), r.TotalItems)
	}

	shown := r.Errors
	if len(shown) > 10 {
		fmt.Fprintf(w, "Showing first 10 errors (of %d):\n", len(shown))
		shown = shown[:10]
	}
	for _, e := range shown {
		fmt.Fprintf(w, "  %s: %v\n", e.Item, e.Error)
	}
}
