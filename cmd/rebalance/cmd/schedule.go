package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/rebalance/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run on a cron schedule until interrupted",
	Long: `Run the rebalancer on a standard five-field cron schedule. Each tick is
an ordinary run: a period that already executed is skipped, and a tick that
fires while the previous one is still running is dropped.

The policy file is re-read on every tick.

Examples:
  rebalance schedule -c rebalance.yaml
  rebalance schedule -c rebalance.yaml --cron "@hourly" --now`,
	Args: cobra.NoArgs,
	RunE: runSchedule,
}

var (
	scheduleCron string
	scheduleNow  bool
)

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.Flags().StringVar(&scheduleCron, "cron", "", "cron spec (overrides config schedule)")
	scheduleCmd.Flags().BoolVar(&scheduleNow, "now", false, "also run once immediately")
}

// runJob is one scheduled invocation.
type runJob struct {
	app *app
}

func (j runJob) Name() string { return "rebalance" }

func (j runJob) Run(ctx context.Context) error {
	policy, err := j.app.policy()
	if err != nil {
		return err
	}
	opts, err := j.app.options(false, false)
	if err != nil {
		return err
	}
	res, err := j.app.runner.Run(ctx, policy, opts)
	if err != nil {
		return err
	}
	j.app.log.Info().
		Str("outcome", string(res.Outcome)).
		Str("key", res.Key).
		Float64("planned_spend_usd", res.Plan.PlannedSpendUSD).
		Msg("scheduled run finished")
	return nil
}

func runSchedule(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	spec := a.cfg.Schedule
	if scheduleCron != "" {
		spec = scheduleCron
	}
	if spec == "" {
		return fmt.Errorf("no schedule: set schedule in config or pass --cron")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := scheduler.New(a.log)
	job := runJob{app: a}
	if _, err := s.AddJob(ctx, spec, job); err != nil {
		return err
	}
	if scheduleNow {
		if err := s.RunNow(ctx, job); err != nil {
			a.log.Error().Err(err).Msg("immediate run failed")
		}
	}

	s.Start()
	<-ctx.Done()
	s.Stop()
	return nil
}
