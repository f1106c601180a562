// iacgate gates IaC changes in CI with an ensemble of LLM judges.
//
// Usage:
//
//	iacgate validate -f <artifact> --policy <id> [--policy-version <v>] [--threshold <t>]
//	iacgate outcome  --decision <id> (--judge <name> | --all-judges) --correct=<bool>
//	iacgate report   [--policy <key>]
//	iacgate serve
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"iacgate/internal/config"
	"iacgate/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath string
}

var rootCmd = &cobra.Command{
	Use:   "iacgate",
	Short: "LLM-ensemble risk gate for infrastructure-as-code changes",
	Long: "iacgate runs a panel of LLM judges over an IaC artifact, calibrates their\n" +
		"confidences against historical accuracy, and maps the aggregate risk to a\n" +
		"PASS / NEEDS_REVIEW / HIGH_RISK verdict with matching exit codes.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.configPath, "config", "", "Path to config YAML (empty = built-in defaults)")
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(outcomeCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

// loadConfig reads the shared --config flag and sets up logging. Every
// subcommand starts here.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(rootFlags.configPath)
	if err != nil {
		return config.Config{}, err
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return config.Config{}, err
	}
	logging.Init(level, cfg.Logging.Format)
	return cfg, nil
}

func main() {
	// API keys commonly live in a local .env during development; absence is
	// fine, CI injects real env vars.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
