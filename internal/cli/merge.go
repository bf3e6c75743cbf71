package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/lherron/msgmerge/internal/merge"
	"github.com/lherron/msgmerge/internal/render"
	"github.com/spf13/cobra"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <root>",
	Short: "Merge every database under <root>/input into <root>/output",
	Long: `Merges the databases matching <root>/input/*.db, in name order, into
<root>/output/msgstore.db. The first input is copied verbatim; every other
input is merged into the copy table by table. Each input is checked for
consistency before anything is written, and the output is checked afterwards.

Exit codes: 2 for configuration problems, 3 when a consistency check fails,
4 when a table cannot be merged.`,
	Args: cobra.ExactArgs(1),
	RunE: runMerge,
}

var (
	mergeMode         string
	mergeBatchSize    int
	mergeReport       string
	mergeReportFormat string
	mergeMetricsFile  string
)

func init() {
	rootCmd.AddCommand(mergeCmd)
	mergeCmd.Flags().StringVar(&mergeMode, "mode", "", "Merge mode: combine or append (overrides MSGMERGE_MODE)")
	mergeCmd.Flags().IntVar(&mergeBatchSize, "batch-size", 0, "Rows per INSERT statement (overrides MSGMERGE_BATCH_SIZE)")
	mergeCmd.Flags().StringVar(&mergeReport, "report", "", "Write a run report to FILE")
	mergeCmd.Flags().StringVar(&mergeReportFormat, "report-format", "", "Report format: json or yaml (default: from the file extension)")
	mergeCmd.Flags().StringVar(&mergeMetricsFile, "metrics-file", "", "Write Prometheus metrics to FILE (overrides MSGMERGE_METRICS_FILE)")
}

func runMerge(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	modeName := e.cfg.Mode
	if mergeMode != "" {
		modeName = mergeMode
	}
	mode, err := merge.ParseMode(modeName)
	if err != nil {
		return classify(err)
	}

	batchSize := e.cfg.BatchSize
	if cmd.Flags().Changed("batch-size") {
		batchSize = mergeBatchSize
	}

	var reportFormat render.Format
	if mergeReport != "" {
		reportFormat = render.FormatForPath(mergeReport)
		if mergeReportFormat != "" {
			f, err := render.ParseFormat(mergeReportFormat)
			if err != nil || f == render.FormatTable {
				return exitError(exitUsage, fmt.Errorf("invalid --report-format %q (expected json or yaml)", mergeReportFormat))
			}
			reportFormat = f
		}
	}

	metricsFile := e.cfg.MetricsFile
	if mergeMetricsFile != "" {
		metricsFile = mergeMetricsFile
	}
	var metrics *merge.Metrics
	if metricsFile != "" {
		metrics = merge.NewMetrics()
	}

	root := args[0]
	inputs, err := discoverInputs(filepath.Join(root, "input"), e.cfg.InputGlob)
	if err != nil {
		return exitError(exitFailure, err)
	}
	outDir := filepath.Join(root, "output")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return exitError(exitFailure, fmt.Errorf("failed to create output directory: %w", err))
	}

	report, runErr := merge.Run(merge.RunOptions{
		Schema:    e.schema,
		Inputs:    inputs,
		Output:    filepath.Join(outDir, e.cfg.OutputName),
		BatchSize: batchSize,
		Mode:      mode,
		Logger:    e.log,
		Metrics:   metrics,
	})

	// Reports and metrics are written for failed runs too.
	var writeErrs []error
	if report != nil && mergeReport != "" {
		if err := render.WriteFile(mergeReport, reportFormat, report); err != nil {
			writeErrs = append(writeErrs, err)
		}
	}
	if metrics != nil {
		if err := metrics.WriteTextfile(metricsFile); err != nil {
			writeErrs = append(writeErrs, fmt.Errorf("failed to write metrics: %w", err))
		}
	}

	if runErr != nil {
		for _, err := range writeErrs {
			e.log.WithError(err).Error("failed to save run output")
		}
		printFailureDetails(cmd.ErrOrStderr(), runErr)
		return classify(runErr)
	}

	printMergeSummary(cmd.OutOrStdout(), report)
	if len(writeErrs) > 0 {
		return exitError(exitFailure, errors.Join(writeErrs...))
	}
	return nil
}

// printFailureDetails writes what the error message leaves out: the column
// diff of a schema mismatch or the rows of a batch that could not be inserted.
func printFailureDetails(w io.Writer, err error) {
	var mismatch *merge.SchemaMismatchError
	if errors.As(err, &mismatch) {
		fmt.Fprint(w, mismatch.Diff())
	}
	var batchErr *merge.BatchInsertError
	if errors.As(err, &batchErr) && len(batchErr.Rows) > 0 {
		fmt.Fprintf(w, "Rows of failed batch %d of %s:\n", batchErr.Chunk, batchErr.Table)
		for _, row := range batchErr.Rows {
			fmt.Fprintf(w, "  %s\n", row)
		}
	}
}

// discoverInputs returns the regular files in dir matching glob, sorted by
// name. dir is created when missing so a first run shows where inputs go.
func discoverInputs(dir, glob string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create input directory: %w", err)
	}
	matches, err := filepath.Glob(filepath.Join(dir, glob))
	if err != nil {
		return nil, fmt.Errorf("invalid input glob %q: %w", glob, err)
	}

	inputs := matches[:0]
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		inputs = append(inputs, m)
	}
	sort.Strings(inputs)
	return inputs, nil
}

func printMergeSummary(w io.Writer, r *merge.Report) {
	fmt.Fprintf(w, "%s Merged %d databases into %s\n", color.GreenString("✓"), len(r.Inputs), r.Output)
	fmt.Fprintf(w, "  run:    %s\n", r.RunID)
	fmt.Fprintf(w, "  schema: %s (mode %s, batch size %s)\n", r.Schema, r.Mode, humanize.Comma(int64(r.BatchSize)))
	fmt.Fprintf(w, "  seed:   %s\n", filepath.Base(r.Inputs[0]))
	for _, s := range r.Sources {
		fmt.Fprintf(w, "  %s: %s\n", filepath.Base(s.Source), formatCounts(s.Totals()))
	}

	total := r.Totals()
	fmt.Fprintf(w, "Rows: %s\n", formatCounts(total))
	if total.Failed > 0 {
		fmt.Fprintln(w, color.YellowString("⚠ %s rows dropped with failing batches", humanize.Comma(total.Failed)))
	}
	if n := len(r.SequenceFixes); n > 0 {
		fmt.Fprintf(w, "Raised %d sqlite_sequence %s\n", n, plural(n, "entry", "entries"))
	}
	if info, err := os.Stat(r.Output); err == nil {
		fmt.Fprintf(w, "Output size: %s\n", humanize.Bytes(uint64(info.Size())))
	}
	if !r.FinishedAt.IsZero() {
		fmt.Fprintf(w, "Took %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
}

func formatCounts(c merge.Counts) string {
	return fmt.Sprintf("%s processed, %s inserted, %s skipped, %s failed",
		humanize.Comma(c.Processed), humanize.Comma(c.Inserted),
		humanize.Comma(c.Skipped), humanize.Comma(c.Failed))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
