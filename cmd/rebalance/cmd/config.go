package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/rebalance/config"
	"github.com/rustyeddy/rebalance/scheduler"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage rebalancer configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  rebalance config init -o rebalance.yaml
  rebalance config validate -f rebalance.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE:  runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "rebalance.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Created default configuration: %s\n", configInitOutput)
	fmt.Fprintln(out, "\nEdit the file and run with:")
	fmt.Fprintf(out, "  rebalance run -c %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if cfg.Schedule != "" {
		if err := scheduler.ValidateSpec(cfg.Schedule); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Configuration valid: %s\n", configValidatePath)
	fmt.Fprintf(out, "  Policy: %s (%s)\n", cfg.Policy, cfg.Granularity)
	fmt.Fprintf(out, "  Store: %s %s\n", cfg.Store.Type, cfg.Store.Location())
	fmt.Fprintf(out, "  Snapshot: %s\n", cfg.Broker.SnapshotPath)
	fmt.Fprintf(out, "  Guardrails: max position %.0f%%, daily limit $%.2f, large order %.0f%% (enforced: %t)\n",
		100*cfg.Guardrails.MaxPositionPct, cfg.Guardrails.DailySpendLimit,
		100*cfg.Guardrails.LargeOrderThreshold, cfg.EnforceGuardrails)
	return nil
}
