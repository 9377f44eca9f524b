// Package journal persists one RunRecord per idempotency key.
package journal

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rustyeddy/rebalance/allocate"
)

var (
	ErrNotFound   = errors.New("run record not found")
	ErrExists     = errors.New("run record already exists")
	ErrInvalidKey = errors.New("invalid idempotency key")
)

// Execution is what the broker reported back for an executed plan.
type Execution struct {
	OrdersPlaced int      `json:"ordersPlaced"`
	OrderIDs     []string `json:"orderIds"`
}

type LegSummary struct {
	Symbol      string   `json:"symbol"`
	NotionalUSD float64  `json:"notionalUsd"`
	ReasonCodes []string `json:"reasonCodes,omitempty"`
}

// PlanSummary is the part of a plan worth keeping in history.
type PlanSummary struct {
	Status            allocate.Status `json:"status"`
	Mode              allocate.Mode   `json:"mode,omitempty"`
	TotalValueUSD     float64         `json:"totalValueUsd"`
	InvestableCashUSD float64         `json:"investableCashUsd"`
	PlannedSpendUSD   float64         `json:"plannedSpendUsd"`
	Legs              []LegSummary    `json:"legs"`
	Notes             []string        `json:"notes,omitempty"`
}

func Summarize(p allocate.Plan) PlanSummary {
	s := PlanSummary{
		Status:            p.Status,
		Mode:              p.Mode,
		TotalValueUSD:     p.TotalValueUSD,
		InvestableCashUSD: p.InvestableCashUSD,
		PlannedSpendUSD:   p.PlannedSpendUSD,
		Legs:              make([]LegSummary, 0, len(p.Legs)),
		Notes:             p.Notes,
	}
	for _, l := range p.Legs {
		s.Legs = append(s.Legs, LegSummary{Symbol: l.Symbol, NotionalUSD: l.NotionalUSD, ReasonCodes: l.ReasonCodes})
	}
	return s
}

// RunRecord is the persisted outcome of one non-dry-run invocation.
type RunRecord struct {
	IdempotencyKey string      `json:"idempotencyKey"`
	Timestamp      time.Time   `json:"timestamp"`
	DateKey        string      `json:"dateKey"`
	Granularity    string      `json:"granularity"`
	PolicyName     string      `json:"policyName"`
	PolicyVersion  int         `json:"policyVersion"`
	PolicyHash     string      `json:"policyHash"`
	Status         string      `json:"status"`
	Outcome        string      `json:"outcome"`
	PlanHash       string      `json:"planHash"`
	DryRun         bool        `json:"dryRun"`
	Executed       bool        `json:"executed"`
	Plan           PlanSummary `json:"plan"`
	Execution      *Execution  `json:"execution,omitempty"`
	Error          string      `json:"error,omitempty"`
}

// Store keeps run records keyed by idempotency key.
//
// Save overwrites silently. Create is the atomic create-if-absent used to
// claim a key; it returns ErrExists when the key is taken.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Load(ctx context.Context, key string) (RunRecord, error)
	Save(ctx context.Context, rec RunRecord) error
	Create(ctx context.Context, rec RunRecord) error
	List(ctx context.Context) ([]RunRecord, error)
	Close() error
}

// sortNewestFirst orders by timestamp, newest first, then key descending.
func sortNewestFirst(recs []RunRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].Timestamp.Equal(recs[j].Timestamp) {
			return recs[i].Timestamp.After(recs[j].Timestamp)
		}
		return recs[i].IdempotencyKey > recs[j].IdempotencyKey
	})
}

// OnDay filters records whose timestamp falls on the same local calendar
// day as day.
func OnDay(recs []RunRecord, day time.Time) []RunRecord {
	want := day.Local().Format("2006-01-02")
	var out []RunRecord
	for _, r := range recs {
		if r.Timestamp.Local().Format("2006-01-02") == want {
			out = append(out, r)
		}
	}
	return out
}
