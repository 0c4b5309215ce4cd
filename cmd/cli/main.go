package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"hypolab/adapters/postgres"
	"hypolab/internal"
	"hypolab/internal/config"
	apperrors "hypolab/internal/errors"
)

// globals holds the persistent flags shared by every command
type globals struct {
	logLevel    string
	policyFile  string
	databaseURL string
	driver      string

	cfg    *config.Config
	policy config.Policy
	logger *zap.Logger
}

func main() {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "hypolab-cli",
		Short: "Validate, score and execute hypothesis session records",
		Long: `hypolab-cli works on session records from files.

Configuration is read from the environment (and an optional .env file) and
can be overridden per run:
- LOG_LEVEL / --log-level
- SCORING_POLICY / --policy
- DATABASE_URL / --database-url
- DATABASE_DRIVER / --driver (postgres|sqlite, inferred from the URL when empty)`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.setup()
		},
	}

	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: ERROR|WARN|INFO|DEBUG")
	rootCmd.PersistentFlags().StringVar(&g.policyFile, "policy", "", "YAML scoring policy file")
	rootCmd.PersistentFlags().StringVar(&g.databaseURL, "database-url", "", "History database URL")
	rootCmd.PersistentFlags().StringVar(&g.driver, "driver", "", "History database driver: postgres|sqlite")

	rootCmd.AddCommand(
		newValidateCmd(g),
		newScoreCmd(g),
		newExecuteCmd(g),
		newHistoryCmd(g),
		newRecordCmd(g),
		newMigrateCmd(g),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (g *globals) setup() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if g.databaseURL != "" {
		cfg.Database.URL = g.databaseURL
		if g.driver == "" {
			g.driver = inferDriver(g.databaseURL)
		}
	}
	if g.driver != "" {
		cfg.Database.Driver = strings.ToLower(g.driver)
	}
	if cfg.Database.Driver != "postgres" && cfg.Database.Driver != "sqlite" {
		return apperrors.ConfigInvalid(fmt.Sprintf("unknown database driver %q", cfg.Database.Driver))
	}
	if g.policyFile != "" {
		cfg.Scoring.PolicyFile = g.policyFile
	}

	level := cfg.Logging.Level
	if g.logLevel != "" {
		level = g.logLevel
	} else if os.Getenv("LOG_LEVEL") == "" {
		level = "WARN"
	}
	g.logger, err = internal.NewLogger(internal.ParseLogLevel(level))
	if err != nil {
		g.logger = zap.NewNop()
	}

	g.policy, err = config.LoadPolicy(cfg.Scoring.PolicyFile)
	if err != nil {
		return err
	}
	g.cfg = cfg
	return nil
}

func inferDriver(url string) string {
	if strings.HasPrefix(url, "file:") || strings.HasSuffix(url, ".db") || url == ":memory:" {
		return "sqlite"
	}
	return "postgres"
}

// openDB connects to the history database and applies migrations
func (g *globals) openDB(ctx context.Context) (*sqlx.DB, error) {
	if !g.cfg.Database.Enabled() {
		return nil, apperrors.ConfigInvalid("a history database is required: set --database-url or DATABASE_URL")
	}
	return postgres.Open(ctx, g.cfg.Database.Driver, g.cfg.Database.URL, g.cfg.Database.MaxOpenConns, g.logger)
}

// readDocument decodes a JSON or YAML file into v. YAML is routed through
// JSON so both formats share the json field names.
func readDocument(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return fmt.Errorf("failed to convert %s: %w", path, err)
		}
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
