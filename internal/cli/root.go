package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/lherron/msgmerge/internal/config"
	"github.com/lherron/msgmerge/internal/schema"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "msgmerge",
	Short: "Merge chat message stores into one database",
	Long: `msgmerge combines several SQLite chat stores that share a schema into a
single consistent database. Row identifiers of every later input are shifted
past the rows already merged, references are rewritten to follow them, and
rows that collide on a unique key collapse onto the row that was kept.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("schema", "", "Schema generation: "+strings.Join(schema.Generations(), "|")+" (overrides MSGMERGE_SCHEMA)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides MSGMERGE_LOG_LEVEL)")
}

// env is what every command needs once flags and configuration are combined.
type env struct {
	cfg    *config.Config
	schema *schema.Schema
	log    *logrus.Logger
}

func loadEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, exitError(exitUsage, fmt.Errorf("failed to load config: %w", err))
	}

	if v := cmd.Flag("schema").Value.String(); v != "" {
		cfg.Schema = v
	}
	if v := cmd.Flag("log-level").Value.String(); v != "" {
		cfg.LogLevel = v
	}

	s, err := schema.ByName(cfg.Schema)
	if err != nil {
		return nil, exitError(exitUsage, err)
	}
	log, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	if err != nil {
		return nil, exitError(exitUsage, err)
	}

	return &env{cfg: cfg, schema: s, log: log}, nil
}

func newLogger(w io.Writer, level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log, nil
}
