package cmd

import (
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compute a plan without executing it",
	Long: `Read the broker snapshot, compute the allocation plan for the policy and
evaluate the guardrails. Nothing is executed and no run record is written.

Examples:
  rebalance plan -p policy.yaml
  rebalance plan -c rebalance.yaml --json`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

var planJSON bool

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().BoolVar(&planJSON, "json", false, "print the plan as JSON")
}

func runPlan(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	policy, err := a.policy()
	if err != nil {
		return err
	}
	opts, err := a.options(true, false)
	if err != nil {
		return err
	}

	res, err := a.runner.Plan(cmd.Context(), policy, opts)
	if err != nil {
		return err
	}

	if planJSON {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	printResult(cmd.OutOrStdout(), res)
	return nil
}
