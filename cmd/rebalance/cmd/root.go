package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rebalance",
	Short: "Invest idle cash toward a target portfolio, at most once per period",
	Long: `Rebalance computes a cash-allocation plan that moves a portfolio toward
its target weights, checks the plan against guardrails, and executes it on a
paper broker at most once per day (or hour) per policy.

It provides tools for:
  - Planning buys without executing them
  - Executing a plan once per period with a persisted run record
  - Reviewing run history
  - Running on a cron schedule

Configuration is read from --config (YAML or JSON), then .env, then
REBALANCE_* environment variables.`,
	SilenceUsage: true,
}

var (
	cfgFile    string
	policyPath string
	logLevel   string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVarP(&policyPath, "policy", "p", "", "policy document (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
}
