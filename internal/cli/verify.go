package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/lherron/msgmerge/internal/bulk"
	"github.com/lherron/msgmerge/internal/db"
	"github.com/lherron/msgmerge/internal/render"
	"github.com/lherron/msgmerge/internal/verify"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <db>...",
	Short: "Check that every reference of a database points at an existing row",
	Long: `Checks every reference column declared by the schema against the table it
points at. Databases are opened read-only and checked in parallel.

By default every violation is reported. With --strict a database stops at
its first violation of a reference that is not marked as ignorable.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVerify,
}

var (
	verifyStrict   bool
	verifyJobs     int
	verifyJSON     bool
	verifyFailFast bool
)

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().BoolVar(&verifyStrict, "strict", false, "Stop at the first violation of a non-ignorable reference")
	verifyCmd.Flags().IntVarP(&verifyJobs, "jobs", "j", 0, "Databases checked in parallel (default: one per CPU)")
	verifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "Output JSON")
	verifyCmd.Flags().BoolVar(&verifyFailFast, "fail-fast", false, "Stop starting new checks after the first failure")
}

type verifyOutput struct {
	Database   string          `json:"database"`
	Consistent bool            `json:"consistent"`
	Error      string          `json:"error,omitempty"`
	Results    []verify.Result `json:"results,omitempty"`
}

func runVerify(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	var (
		mu      sync.Mutex
		reports = make(map[string]*verify.Report, len(args))
	)
	op := &bulk.Operation{
		Jobs:            verifyJobs,
		ContinueOnError: !verifyFailFast,
		Progress:        cmd.ErrOrStderr(),
	}
	result := op.Execute(args, func(path string) error {
		database, err := db.OpenReadOnly(path)
		if err != nil {
			return err
		}
		defer database.Close()

		report, err := verify.Verify(e.schema, database, verify.Options{
			Strict: verifyStrict,
			Logger: e.log.WithField("database", path),
		})
		if report != nil {
			mu.Lock()
			reports[path] = report
			mu.Unlock()
		}
		if err != nil {
			return err
		}
		if n := countBlocking(report); n > 0 {
			return &inconsistentError{count: n}
		}
		return nil
	})

	failures := make(map[string]error, len(result.Errors))
	for _, ie := range result.Errors {
		failures[ie.Item] = ie.Error
	}

	out := cmd.OutOrStdout()
	if verifyJSON {
		outputs := make([]verifyOutput, 0, len(args))
		for _, path := range args {
			o := verifyOutput{Database: path, Consistent: true}
			if r, ok := reports[path]; ok {
				o.Results = r.Results
			}
			if err, failed := failures[path]; failed {
				o.Consistent = false
				o.Error = err.Error()
			} else if _, checked := reports[path]; !checked {
				o.Consistent = false
				o.Error = "not checked"
			}
			outputs = append(outputs, o)
		}
		if err := render.NewRenderer(out, render.FormatJSON).Render(outputs); err != nil {
			return err
		}
	} else {
		for _, path := range args {
			if r, ok := reports[path]; ok {
				if err := printVerifyReport(out, r); err != nil {
					return err
				}
			}
		}
		result.PrintSummary(out)
	}

	if code := result.ExitCode(); code != 0 {
		if code == exitFailure && onlyInconsistencies(result) {
			code = exitInconsistent
		}
		return exitError(code, fmt.Errorf("%d of %d databases failed verification", result.Failed, result.TotalItems))
	}
	return nil
}

// inconsistentError fails a lenient check that found violations.
type inconsistentError struct {
	count int
}

func (e *inconsistentError) Error() string {
	return fmt.Sprintf("%d inconsistent %s", e.count, plural(e.count, "reference", "references"))
}

// onlyInconsistencies reports whether every failure came from a reference
// check rather than from opening or reading a database.
func onlyInconsistencies(result *bulk.Result) bool {
	for _, ie := range result.Errors {
		var consErr *verify.ConsistencyError
		var incErr *inconsistentError
		if !errors.As(ie.Error, &consErr) && !errors.As(ie.Error, &incErr) {
			return false
		}
	}
	return true
}

// countBlocking counts violations that fail a lenient check.
func countBlocking(r *verify.Report) int {
	n := 0
	for _, v := range r.Violations() {
		if !v.Ignored {
			n++
		}
	}
	return n
}

func printVerifyReport(w io.Writer, r *verify.Report) error {
	violations := r.Violations()
	if len(violations) == 0 {
		fmt.Fprintf(w, "%s %s: %d references consistent\n", color.GreenString("✓"), r.Database, len(r.Results))
		return nil
	}

	fmt.Fprintf(w, "%s %s: %d of %d references inconsistent\n",
		color.New(color.Bold, color.FgRed).Sprint("✗"), r.Database, len(violations), len(r.Results))
	rows := make([][]string, 0, len(violations))
	for _, v := range violations {
		missing := strings.Join(v.Missing, ", ")
		if v.Ignored {
			missing += " (ignored)"
		}
		rows = append(rows, []string{
			v.Table + "." + v.Column,
			v.Target,
			strconv.Itoa(v.Expected),
			strconv.FormatInt(v.Found, 10),
			missing,
		})
	}
	return render.NewRenderer(w, render.FormatTable).RenderTable(
		[]string{"REFERENCE", "TARGET", "EXPECTED", "FOUND", "MISSING"}, rows)
}
