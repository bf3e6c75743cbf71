package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied before any source is read.
const (
	DefaultBatchSize  = 500
	DefaultMode       = "combine"
	DefaultSchema     = "march2022"
	DefaultLogLevel   = "info"
	DefaultOutputName = "msgstore.db"
	DefaultInputGlob  = "*.db"
)

// Config represents the application configuration
type Config struct {
	BatchSize   int    `yaml:"batch_size"`
	Mode        string `yaml:"mode"`
	Schema      string `yaml:"schema"`
	LogLevel    string `yaml:"log_level"`
	OutputName  string `yaml:"output_name"`
	InputGlob   string `yaml:"input_glob"`
	MetricsFile string `yaml:"metrics_file"`
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables
// 2. ./.env.local (dotenv) - walks up parent directories to find it
// 3. ~/.config/msgmerge/config.yaml (YAML)
func Load() (*Config, error) {
	cfg := &Config{
		BatchSize:  DefaultBatchSize,
		Mode:       DefaultMode,
		Schema:     DefaultSchema,
		LogLevel:   DefaultLogLevel,
		OutputName: DefaultOutputName,
		InputGlob:  DefaultInputGlob,
	}

	// .env.local only fills variables that are not already set
	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	if err := loadYAMLConfig(cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if v := os.Getenv("MSGMERGE_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid MSGMERGE_BATCH_SIZE %q: %w", v, err)
		}
		cfg.BatchSize = n
	}
	if mode := os.Getenv("MSGMERGE_MODE"); mode != "" {
		cfg.Mode = mode
	}
	if schema := os.Getenv("MSGMERGE_SCHEMA"); schema != "" {
		cfg.Schema = schema
	}
	if logLevel := os.Getenv("MSGMERGE_LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if name := getEnvOrFile("MSGMERGE_OUTPUT_NAME", "MSGMERGE_OUTPUT_NAME_FILE"); name != "" {
		cfg.OutputName = name
	}
	if glob := os.Getenv("MSGMERGE_INPUT_GLOB"); glob != "" {
		cfg.InputGlob = glob
	}
	if metrics := os.Getenv("MSGMERGE_METRICS_FILE"); metrics != "" {
		cfg.MetricsFile = metrics
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be fixed up later by flags.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if _, err := filepath.Match(c.InputGlob, "x.db"); err != nil {
		return fmt.Errorf("invalid input_glob %q: %w", c.InputGlob, err)
	}
	if c.OutputName == "" || strings.ContainsAny(c.OutputName, `/\`) {
		return fmt.Errorf("output_name must be a plain file name, got %q", c.OutputName)
	}
	return nil
}

// Path returns the location of the YAML config file.
func Path() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "msgmerge", "config.yaml"), nil
}

// loadYAMLConfig loads configuration from ~/.config/msgmerge/config.yaml
func loadYAMLConfig(cfg *Config) error {
	configPath, err := Path()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// getEnvOrFile gets an environment variable value, or reads it from a file
// if the _FILE variant is set
func getEnvOrFile(envVar, fileVar string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}

	if filePath := os.Getenv(fileVar); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	return ""
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
func findEnvLocal() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	dir := filepath.Clean(cwd)

	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = dir
	}
	homeDir = filepath.Clean(homeDir)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}

		parent := filepath.Dir(dir)
		if dir == homeDir || parent == dir {
			return ""
		}
		dir = parent
	}
}
