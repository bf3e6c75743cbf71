package cli

import (
	"fmt"

	"github.com/lherron/msgmerge/internal/render"
	"github.com/lherron/msgmerge/internal/schema"
	"github.com/spf13/cobra"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Displays version, commit, and build date information.`,
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

var versionJSON bool

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Output as JSON")
}

func runVersion(cmd *cobra.Command, args []string) error {
	if versionJSON {
		output := map[string]interface{}{
			"version":            Version,
			"commit":             GitCommit,
			"build_date":         BuildDate,
			"schemas":            schema.Generations(),
			"default_schema":     schema.DefaultGeneration,
			"supported_commands": []string{"merge", "verify", "split", "schema", "version", "completion"},
			"report_formats":     []string{"json", "yaml"},
		}
		return render.NewRenderer(cmd.OutOrStdout(), render.FormatJSON).Render(output)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "msgmerge version %s\n", Version)
	fmt.Fprintf(cmd.OutOrStdout(), "  commit:  %s\n", GitCommit)
	fmt.Fprintf(cmd.OutOrStdout(), "  built:   %s\n", BuildDate)
	fmt.Fprintf(cmd.OutOrStdout(), "  schemas: %v\n", schema.Generations())

	return nil
}
