package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/rebalance/idempotency"
	"github.com/rustyeddy/rebalance/portfolio"
	"github.com/rustyeddy/rebalance/risk"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect policy documents",
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a policy document and print its hash",
	Long: `Load a YAML or JSON policy, validate it and print the policy hash that
goes into idempotency keys.

Example:
  rebalance policy validate policy.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runPolicyValidate,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyValidateCmd)
}

func runPolicyValidate(cmd *cobra.Command, args []string) error {
	p, err := portfolio.LoadPolicy(args[0])
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	hash, err := idempotency.PolicyHash(p)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Policy valid: %s\n", args[0])
	fmt.Fprintf(out, "  Name: %s (v%d)\n", p.Name, p.Version)
	fmt.Fprintf(out, "  Hash: %s\n", hash)
	for _, t := range p.Targets {
		fmt.Fprintf(out, "  %-8s %6.2f%%\n", t.Symbol, 100*t.TargetWeight)
	}
	fmt.Fprintf(out, "  Invest: $%.2f - $%.2f per run, min order $%.2f, max %d orders\n",
		p.MinInvestAmountUSD, p.MaxInvestAmountUSD, p.MinOrderUSD, p.EffectiveMaxOrders())
	if p.Drift.Kind == portfolio.DriftBand {
		fmt.Fprintf(out, "  Drift band: %.2f%%\n", 100*p.Drift.Band())
	} else {
		fmt.Fprintln(out, "  Drift control: off")
	}

	limits := risk.DefaultLimits()
	if cfg, err := loadConfig(); err == nil {
		limits = cfg.Guardrails
	}
	for _, w := range risk.PolicyWarnings(p, limits) {
		fmt.Fprintf(out, "  ⚠ %s\n", w)
	}
	return nil
}
