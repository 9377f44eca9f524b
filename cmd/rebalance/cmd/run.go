package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/rebalance/runner"
)

var errBlocked = errors.New("plan blocked by guardrails")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Plan and execute once for the current period",
	Long: `Compute the plan, check guardrails and execute it on the paper broker.
A policy executes at most once per period; later runs in the same period
are reported as skipped without contacting the broker.

Exit status is non-zero when the plan is blocked or execution fails.

Examples:
  rebalance run -c rebalance.yaml
  rebalance run -p policy.yaml --dry-run
  rebalance run -p policy.yaml --skip-idempotency`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runDryRun          bool
	runSkipIdempotency bool
	runJSON            bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVarP(&runDryRun, "dry-run", "n", false, "plan only; execute nothing and record nothing")
	runCmd.Flags().BoolVar(&runSkipIdempotency, "skip-idempotency", false, "run even if this period already has a record")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the result as JSON")
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	policy, err := a.policy()
	if err != nil {
		return err
	}
	opts, err := a.options(runDryRun, runSkipIdempotency)
	if err != nil {
		return err
	}

	res, err := a.runner.Run(cmd.Context(), policy, opts)
	if err != nil {
		return err
	}

	if runJSON {
		if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
	} else {
		printResult(cmd.OutOrStdout(), res)
	}
	if res.Outcome == runner.OutcomeBlocked {
		return errBlocked
	}
	return nil
}
