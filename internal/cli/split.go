package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lherron/msgmerge/internal/db"
	"github.com/lherron/msgmerge/internal/render"
	"github.com/lherron/msgmerge/internal/split"
	"github.com/spf13/cobra"
)

var splitCmd = &cobra.Command{
	Use:   "split <db> --before <timestamp>",
	Short: "Delete rows older than a timestamp",
	Long: `Deletes every row whose timestamp column is older than --before, in each
table that declares a timestamp column. The timestamp is milliseconds since
the Unix epoch, or a date (2006-01-02) or RFC 3339 time in UTC.

With --output the database is copied first and only the copy is changed.`,
	Args: cobra.ExactArgs(1),
	RunE: runSplit,
}

var (
	splitBefore string
	splitOutput string
	splitJSON   bool
)

func init() {
	rootCmd.AddCommand(splitCmd)
	splitCmd.Flags().StringVar(&splitBefore, "before", "", "Cut-off timestamp (required)")
	splitCmd.Flags().StringVarP(&splitOutput, "output", "o", "", "Write the trimmed database to FILE instead of changing <db>")
	splitCmd.Flags().BoolVar(&splitJSON, "json", false, "Output JSON")
	_ = splitCmd.MarkFlagRequired("before")
}

func runSplit(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	before, err := parseTimestamp(splitBefore)
	if err != nil {
		return exitError(exitUsage, err)
	}

	path := args[0]
	if splitOutput != "" {
		if db.SamePath(path, splitOutput) {
			return exitError(exitUsage, fmt.Errorf("--output %s is the input database", splitOutput))
		}
		if err := db.CopyFile(path, splitOutput); err != nil {
			return exitError(exitFailure, err)
		}
		path = splitOutput
	}

	database, err := db.Open(path)
	if err != nil {
		return exitError(exitFailure, fmt.Errorf("failed to open database: %w", err))
	}
	defer database.Close()

	result, err := split.Split(e.schema, database, before, e.log.WithField("database", path))
	if err != nil {
		return classify(err)
	}

	if splitJSON {
		return render.NewRenderer(cmd.OutOrStdout(), render.FormatJSON).Render(result)
	}

	rows := make([][]string, 0, len(result.Tables))
	for _, t := range result.Tables {
		rows = append(rows, []string{t.Table, t.TimestampColumn, humanize.Comma(t.Deleted)})
	}
	if err := render.NewRenderer(cmd.OutOrStdout(), render.FormatTable).RenderTable(
		[]string{"TABLE", "TIMESTAMP", "DELETED"}, rows); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s rows older than %s from %s\n",
		humanize.Comma(result.Deleted()),
		time.UnixMilli(before).UTC().Format(time.RFC3339), path)
	return nil
}

// parseTimestamp reads epoch milliseconds, a date or an RFC 3339 time.
func parseTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("invalid timestamp %q (expected epoch milliseconds, 2006-01-02 or RFC 3339)", s)
}
