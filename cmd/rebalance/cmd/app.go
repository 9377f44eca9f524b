package cmd

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/rebalance/broker/paper"
	"github.com/rustyeddy/rebalance/config"
	"github.com/rustyeddy/rebalance/idempotency"
	"github.com/rustyeddy/rebalance/journal"
	"github.com/rustyeddy/rebalance/logger"
	"github.com/rustyeddy/rebalance/portfolio"
	"github.com/rustyeddy/rebalance/risk"
	"github.com/rustyeddy/rebalance/runner"
)

// app is everything one command needs, built from the effective config.
type app struct {
	cfg    *config.Config
	log    zerolog.Logger
	store  journal.Store
	broker *paper.Broker
	runner *runner.Runner
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if policyPath != "" {
		cfg.Policy = policyPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	lc := cfg.Log
	lc.Out = w
	return logger.New(lc)
}

func openStore(cfg *config.Config, log zerolog.Logger) (journal.Store, error) {
	s, err := journal.Open(cfg.Store.Type, cfg.Store.Location(), log)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}
	return s, nil
}

func newApp(errOut io.Writer) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg, errOut)
	logger.SetGlobalLogger(log)

	store, err := openStore(cfg, log)
	if err != nil {
		return nil, err
	}
	b, err := paper.Open(cfg.Broker.SnapshotPath, cfg.Broker.PersistSnapshot, log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open paper broker: %w", err)
	}

	checker := risk.NewChecker(cfg.Guardrails, store, log)
	return &app{
		cfg:    cfg,
		log:    log,
		store:  store,
		broker: b,
		runner: runner.New(b, store, checker, log),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func (a *app) policy() (portfolio.Policy, error) {
	p, err := portfolio.LoadPolicy(a.cfg.Policy)
	if err != nil {
		return portfolio.Policy{}, fmt.Errorf("load policy: %w", err)
	}
	return p, nil
}

func (a *app) options(dryRun, skipIdempotency bool) (runner.Options, error) {
	g, err := idempotency.ParseGranularity(a.cfg.Granularity)
	if err != nil {
		return runner.Options{}, err
	}
	return runner.Options{
		Granularity:       g,
		DryRun:            dryRun,
		SkipIdempotency:   skipIdempotency,
		EnforceGuardrails: a.cfg.EnforceGuardrails,
		Allocate:          a.cfg.Engine.Options(),
	}, nil
}
