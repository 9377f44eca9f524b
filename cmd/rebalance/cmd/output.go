package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rustyeddy/rebalance/allocate"
	"github.com/rustyeddy/rebalance/journal"
	"github.com/rustyeddy/rebalance/risk"
	"github.com/rustyeddy/rebalance/runner"
)

type resultView struct {
	Outcome    runner.Outcome     `json:"outcome"`
	Key        string             `json:"idempotencyKey"`
	DateKey    string             `json:"dateKey"`
	Plan       allocate.Plan      `json:"plan"`
	Guardrails risk.Decision      `json:"guardrails"`
	Execution  *journal.Execution `json:"execution,omitempty"`
}

func writeJSON(w io.Writer, res runner.Result) error {
	v := resultView{
		Outcome:    res.Outcome,
		Key:        res.Key,
		DateKey:    res.DateKey,
		Plan:       res.Plan,
		Guardrails: res.Decision,
	}
	if res.Execution != nil {
		v.Execution = &journal.Execution{OrdersPlaced: res.Execution.OrdersPlaced, OrderIDs: res.Execution.OrderIDs}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printPlan(w io.Writer, p allocate.Plan) {
	mode := ""
	if p.Mode != "" {
		mode = fmt.Sprintf(" (%s)", p.Mode)
	}
	fmt.Fprintf(w, "Plan: %s%s\n", p.Status, mode)
	fmt.Fprintf(w, "  Total value:   $%.2f\n", p.TotalValueUSD)
	fmt.Fprintf(w, "  Cash:          $%.2f\n", p.CashUSD)
	fmt.Fprintf(w, "  Investable:    $%.2f\n", p.InvestableCashUSD)
	fmt.Fprintf(w, "  Planned spend: $%.2f\n", p.PlannedSpendUSD)

	if len(p.Legs) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "SYMBOL\tNOTIONAL\tPRICE\tEST QTY\tCURRENT\tTARGET\tPOST-BUY\tREASONS\t")
		for _, l := range p.Legs {
			fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.4f\t%.2f%%\t%.2f%%\t%.2f%%\t%s\t\n",
				l.Symbol, l.NotionalUSD, l.PriceUSD, l.EstimatedQuantity,
				100*l.CurrentWeight, 100*l.TargetWeight, 100*l.PostBuyEstimatedWeight,
				strings.Join(l.ReasonCodes, ","))
		}
		tw.Flush()
	}

	if len(p.Notes) > 0 {
		fmt.Fprintln(w, "\nNotes:")
		for _, n := range p.Notes {
			fmt.Fprintf(w, "  - %s\n", n)
		}
	}
}

func printDecision(w io.Writer, d risk.Decision) {
	if d.Safe {
		fmt.Fprintln(w, "\nGuardrails: ✓ safe")
	} else {
		fmt.Fprintln(w, "\nGuardrails: ✗ BLOCKING findings")
	}
	for _, v := range d.Blocking {
		fmt.Fprintf(w, "  ✗ %s\n", v)
	}
	for _, v := range d.Warnings {
		fmt.Fprintf(w, "  ! %s\n", v)
	}
}

func printResult(w io.Writer, res runner.Result) {
	if res.Outcome != runner.OutcomeSkipped {
		printPlan(w, res.Plan)
		printDecision(w, res.Decision)
		fmt.Fprintln(w)
	}

	switch res.Outcome {
	case runner.OutcomeExecuted:
		fmt.Fprintf(w, "✓ Executed %d order(s) [%s]\n", res.Execution.OrdersPlaced, res.Record.IdempotencyKey)
		for _, id := range res.Execution.OrderIDs {
			fmt.Fprintf(w, "  %s\n", id)
		}
	case runner.OutcomeDryRun:
		fmt.Fprintf(w, "✓ Dry run, nothing executed [%s]\n", res.Key)
	case runner.OutcomeNoop:
		fmt.Fprintf(w, "✓ Nothing to buy; recorded [%s]\n", res.Record.IdempotencyKey)
	case runner.OutcomeSkipped:
		fmt.Fprintf(w, "✓ Already ran this period; skipped [%s]\n", res.Key)
	case runner.OutcomeBlocked:
		fmt.Fprintf(w, "✗ Blocked by guardrails; nothing executed [%s]\n", res.Key)
	}
}
