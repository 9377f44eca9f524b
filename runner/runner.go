// Package runner drives one rebalance invocation: snapshot, plan,
// guardrails, idempotency claim, execution and the run record.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/rebalance/allocate"
	"github.com/rustyeddy/rebalance/broker"
	"github.com/rustyeddy/rebalance/id"
	"github.com/rustyeddy/rebalance/idempotency"
	"github.com/rustyeddy/rebalance/journal"
	"github.com/rustyeddy/rebalance/portfolio"
	"github.com/rustyeddy/rebalance/risk"
)

// ErrLiveBroker is returned before any planning when the broker is not a
// paper broker.
var ErrLiveBroker = errors.New("refusing to run against a live broker")

// Outcome says what an invocation did. Failures are errors, not outcomes.
type Outcome string

const (
	OutcomeExecuted Outcome = "EXECUTED"
	OutcomeDryRun   Outcome = "DRY_RUN"
	OutcomeNoop     Outcome = "NOOP"
	OutcomeSkipped  Outcome = "SKIPPED"
	OutcomeBlocked  Outcome = "BLOCKED"

	// outcomeFailed marks a record whose broker call failed.
	outcomeFailed Outcome = "FAILED"
	// outcomeClaimed marks a key claimed by a run still in flight.
	outcomeClaimed Outcome = "CLAIMED"
)

type Options struct {
	Granularity idempotency.Granularity
	DryRun      bool

	// SkipIdempotency runs even when the period's key already has a
	// record. The earlier record is kept and the re-run is recorded
	// under a key derived from the period key.
	SkipIdempotency bool

	// EnforceGuardrails turns blocking guardrail findings into
	// OutcomeBlocked. When false they are reported only.
	EnforceGuardrails bool

	Allocate allocate.Options

	// Now defaults to time.Now.
	Now func() time.Time
}

type Result struct {
	Outcome   Outcome
	Key       string
	DateKey   string
	Plan      allocate.Plan
	Decision  risk.Decision
	Record    *journal.RunRecord
	Execution *broker.Execution
}

type Runner struct {
	broker  broker.Broker
	store   journal.Store
	checker *risk.Checker
	log     zerolog.Logger
}

func New(b broker.Broker, store journal.Store, checker *risk.Checker, log zerolog.Logger) *Runner {
	return &Runner{
		broker:  b,
		store:   store,
		checker: checker,
		log:     log.With().Str("component", "runner").Logger(),
	}
}

// Plan computes a plan and its guardrail decision without touching the
// run store's records or the broker's orders.
func (r *Runner) Plan(ctx context.Context, policy portfolio.Policy, opts Options) (Result, error) {
	opts.DryRun = true
	return r.Run(ctx, policy, opts)
}

// Run performs one invocation for policy in the current period.
func (r *Runner) Run(ctx context.Context, policy portfolio.Policy, opts Options) (Result, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	started := now()

	dateKey := idempotency.DateKey(started, opts.Granularity)
	key, err := idempotency.Key(policy, dateKey)
	if err != nil {
		return Result{}, err
	}
	res := Result{Key: key, DateKey: dateKey}
	log := r.log.With().Str("key", key).Str("policy", policy.Name).Bool("dry_run", opts.DryRun).Logger()

	if !opts.DryRun && !opts.SkipIdempotency {
		ok, err := r.store.Exists(ctx, key)
		if err != nil {
			return res, fmt.Errorf("check run history: %w", err)
		}
		if ok {
			log.Info().Msg("run already recorded for this period; skipping")
			res.Outcome = OutcomeSkipped
			return res, nil
		}
	}

	if !r.broker.IsPaper() {
		return res, ErrLiveBroker
	}

	snap, err := r.broker.GetSnapshot(ctx)
	if err != nil {
		return res, fmt.Errorf("get snapshot: %w", err)
	}

	plan, err := allocate.Allocate(policy, snap, opts.Allocate)
	if err != nil {
		return res, err
	}
	res.Plan = plan

	res.Decision = r.checker.Check(ctx, started, plan, snap, policy)
	for _, v := range res.Decision.Blocking {
		log.Warn().Str("code", v.Code).Str("symbol", v.Symbol).Msg(v.Msg)
	}
	for _, v := range res.Decision.Warnings {
		log.Info().Str("code", v.Code).Str("symbol", v.Symbol).Msg(v.Msg)
	}

	log.Info().
		Str("status", string(plan.Status)).
		Str("mode", string(plan.Mode)).
		Int("legs", len(plan.Legs)).
		Float64("planned_spend_usd", plan.PlannedSpendUSD).
		Bool("safe", res.Decision.Safe).
		Msg("plan computed")

	if opts.DryRun {
		res.Outcome = OutcomeDryRun
		return res, nil
	}
	if !res.Decision.Safe && opts.EnforceGuardrails && plan.Planned() {
		res.Outcome = OutcomeBlocked
		return res, nil
	}

	rec, err := newRecord(policy, plan, key, dateKey, opts, started)
	if err != nil {
		return res, err
	}

	if !plan.Planned() {
		rec.Outcome = string(OutcomeNoop)
		if rec, err = r.create(ctx, rec, opts.SkipIdempotency, started); err != nil {
			if errors.Is(err, journal.ErrExists) {
				res.Outcome = OutcomeSkipped
				return res, nil
			}
			return res, fmt.Errorf("save run record: %w", err)
		}
		res.Outcome = OutcomeNoop
		res.Record = &rec
		return res, nil
	}

	claim := rec
	claim.Outcome = string(outcomeClaimed)
	if claim, err = r.create(ctx, claim, opts.SkipIdempotency, started); err != nil {
		if errors.Is(err, journal.ErrExists) {
			log.Info().Msg("key claimed by another run; skipping")
			res.Outcome = OutcomeSkipped
			return res, nil
		}
		return res, fmt.Errorf("claim run key: %w", err)
	}
	// from here on only our own claim is replaced
	rec.IdempotencyKey = claim.IdempotencyKey

	exec, execErr := r.broker.ExecuteOrders(ctx, broker.OrdersFromPlan(plan))
	if execErr != nil {
		log.Error().Err(execErr).Msg("order execution failed")
		rec.Outcome = string(outcomeFailed)
		rec.Error = execErr.Error()
		if err := r.store.Save(ctx, rec); err != nil {
			return res, errors.Join(fmt.Errorf("execute orders: %w", execErr), fmt.Errorf("save run record: %w", err))
		}
		res.Record = &rec
		return res, fmt.Errorf("execute orders: %w", execErr)
	}

	rec.Outcome = string(OutcomeExecuted)
	rec.Executed = true
	rec.Execution = &journal.Execution{OrdersPlaced: exec.OrdersPlaced, OrderIDs: exec.OrderIDs}
	if err := r.store.Save(ctx, rec); err != nil {
		return res, fmt.Errorf("save run record: %w", err)
	}

	log.Info().Int("orders_placed", exec.OrdersPlaced).Msg("plan executed")
	res.Outcome = OutcomeExecuted
	res.Record = &rec
	res.Execution = &exec
	return res, nil
}

// create writes rec only if its key is free. A re-run that skips
// idempotency never replaces the period's record; it falls back to a
// fresh key derived from the period key.
func (r *Runner) create(ctx context.Context, rec journal.RunRecord, rerun bool, at time.Time) (journal.RunRecord, error) {
	err := r.store.Create(ctx, rec)
	if err == nil || !rerun || !errors.Is(err, journal.ErrExists) {
		return rec, err
	}
	rec.IdempotencyKey = rerunKey(rec.IdempotencyKey, at)
	r.log.Info().Str("key", rec.IdempotencyKey).Msg("period already recorded; recording re-run separately")
	return rec, r.store.Create(ctx, rec)
}

// rerunKey derives the record key for a re-run of key at t. Keys sort
// after key and by time among themselves.
func rerunKey(key string, t time.Time) string {
	return key + "-" + id.At(t)
}

func newRecord(policy portfolio.Policy, plan allocate.Plan, key, dateKey string, opts Options, ts time.Time) (journal.RunRecord, error) {
	policyHash, err := idempotency.PolicyHash(policy)
	if err != nil {
		return journal.RunRecord{}, err
	}
	planHash, err := idempotency.PlanHash(plan)
	if err != nil {
		return journal.RunRecord{}, err
	}
	g := opts.Granularity
	if g == "" {
		g = idempotency.Daily
	}
	return journal.RunRecord{
		IdempotencyKey: key,
		Timestamp:      ts,
		DateKey:        dateKey,
		Granularity:    string(g),
		PolicyName:     policy.Name,
		PolicyVersion:  policy.Version,
		PolicyHash:     policyHash,
		Status:         string(plan.Status),
		PlanHash:       planHash,
		DryRun:         opts.DryRun,
		Plan:           journal.Summarize(plan),
	}, nil
}
