package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatRunOrg renders a RunRecord as an Org-mode block. Structured facts
// go in the PROPERTIES drawer so they stay searchable.
func FormatRunOrg(r RunRecord) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("** Run: %s %s (%s)\n", r.PolicyName, r.DateKey, r.Outcome))
	b.WriteString(":PROPERTIES:\n")
	b.WriteString(fmt.Sprintf(":IDEMPOTENCY_KEY: %s\n", r.IdempotencyKey))
	b.WriteString(fmt.Sprintf(":TIMESTAMP: %s\n", r.Timestamp.UTC().Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf(":GRANULARITY: %s\n", r.Granularity))
	b.WriteString(fmt.Sprintf(":POLICY: %s v%d (%s)\n", r.PolicyName, r.PolicyVersion, r.PolicyHash))
	b.WriteString(fmt.Sprintf(":STATUS: %s\n", r.Status))
	b.WriteString(fmt.Sprintf(":PLAN_HASH: %s\n", r.PlanHash))
	b.WriteString(fmt.Sprintf(":EXECUTED: %t\n", r.Executed))
	b.WriteString(fmt.Sprintf(":PLANNED_SPEND: %.2f\n", r.Plan.PlannedSpendUSD))
	if r.Execution != nil {
		b.WriteString(fmt.Sprintf(":ORDERS_PLACED: %d\n", r.Execution.OrdersPlaced))
	}
	if r.Error != "" {
		b.WriteString(fmt.Sprintf(":ERROR: %s\n", r.Error))
	}
	b.WriteString(":END:\n")

	if len(r.Plan.Legs) > 0 {
		b.WriteString("\n| Symbol | Notional | Reasons |\n|--------+----------+---------|\n")
		for _, l := range r.Plan.Legs {
			b.WriteString(fmt.Sprintf("| %s | %.2f | %s |\n", l.Symbol, l.NotionalUSD, strings.Join(l.ReasonCodes, " ")))
		}
	}
	if len(r.Plan.Notes) > 0 {
		b.WriteString("\n*** Notes\n")
		for _, n := range r.Plan.Notes {
			b.WriteString("- " + n + "\n")
		}
	}
	return b.String()
}

// FormatRunsOrg renders multiple records separated by blank lines.
func FormatRunsOrg(recs []RunRecord) string {
	var b strings.Builder
	for i, r := range recs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatRunOrg(r))
	}
	return b.String()
}
