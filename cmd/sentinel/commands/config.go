package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	goSentinel "github.com/MrEthical07/goSentinel"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration with secrets redacted",
	Long: `Resolve defaults, the config file, .env and SENTINEL_* variables, validate
the result and print it as YAML. Use --defaults to print the built-in defaults
without validation.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().Bool("defaults", false, "print built-in defaults")
}

func runConfig(cmd *cobra.Command, _ []string) error {
	defaults, _ := cmd.Flags().GetBool("defaults")

	cfg := goSentinel.DefaultConfig()
	if !defaults {
		var err error
		if cfg, err = loadConfig(); err != nil {
			return err
		}
	}
	out, err := goSentinel.MarshalConfig(cfg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), string(out))
	return err
}
