package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	goSentinel "github.com/MrEthical07/goSentinel"
	"github.com/MrEthical07/goSentinel/internal/logging"
)

// Version is stamped at build time.
var Version = "dev"

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Request screening, lockout and tamper-evident audit for web services",
	Long: `sentinel screens inbound requests for injection and disclosure attacks,
tracks failed logins per IP and per account, blocks abusive sources and keeps a
tamper-evident audit trail anchored in an append-only ledger.

Configuration is read from the YAML file given with --config, then from a .env
file in the working directory, then from SENTINEL_* environment variables.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")

	rootCmd.AddCommand(serveCmd, verifyCmd, ledgerCmd, tokenCmd, configCmd)
}

func loadConfig() (goSentinel.Config, error) {
	cfg, err := goSentinel.LoadConfig(cfgFile)
	if err != nil {
		return goSentinel.Config{}, fmt.Errorf("load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg goSentinel.Config) (*zap.Logger, error) {
	logger, err := logging.New(logging.Config{
		Env:    cfg.Log.Env,
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	return logger, nil
}

// openEngine loads configuration and builds an engine. The caller closes it.
func openEngine() (goSentinel.Config, *zap.Logger, *goSentinel.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cfg, nil, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return cfg, nil, nil, err
	}
	engine, err := goSentinel.New().WithConfig(cfg).WithLogger(logger).Build()
	if err != nil {
		_ = logger.Sync()
		return cfg, nil, nil, fmt.Errorf("build engine: %w", err)
	}
	return cfg, logger, engine, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
