package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/rebalance/journal"
)

var historyCmd = &cobra.Command{
	Use:   "history [idempotency-key]",
	Short: "Show run records",
	Long: `List run records newest first, in Org-mode format.

With a key, show only that record. --day limits the list to one local
calendar day ("today" is accepted).

Examples:
  rebalance history
  rebalance history --day today
  rebalance history --day 2024-03-04 --limit 5
  rebalance history 2024-03-04-3f9c0a1b2c3d4e5f`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

var (
	historyDay   string
	historyLimit int
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVarP(&historyDay, "day", "d", "", "only records from this day (YYYY-MM-DD or today)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 0, "show at most this many records (0 = all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg, newLogger(cfg, cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		rec, err := store.Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("load run: %w", err)
		}
		fmt.Fprint(out, journal.FormatRunOrg(rec))
		return nil
	}

	recs, err := store.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if historyDay != "" {
		day, err := parseDay(historyDay)
		if err != nil {
			return err
		}
		recs = journal.OnDay(recs, day)
	}
	if historyLimit > 0 && len(recs) > historyLimit {
		recs = recs[:historyLimit]
	}

	if len(recs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}
	fmt.Fprint(out, journal.FormatRunsOrg(recs))
	return nil
}

func parseDay(s string) (time.Time, error) {
	if s == "today" {
		return time.Now(), nil
	}
	day, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("day: want YYYY-MM-DD: %w", err)
	}
	return day, nil
}
