package portfolio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// rawPolicy mirrors Policy with pointers so missing fields can be told
// apart from zero values.
type rawPolicy struct {
	Version            *int        `json:"version" yaml:"version"`
	Name               *string     `json:"name" yaml:"name"`
	Targets            []rawTarget `json:"targets" yaml:"targets"`
	CashBufferPct      *float64    `json:"cashBufferPct" yaml:"cashBufferPct"`
	MinInvestAmountUSD *float64    `json:"minInvestAmountUsd" yaml:"minInvestAmountUsd"`
	MaxInvestAmountUSD *float64    `json:"maxInvestAmountUsd" yaml:"maxInvestAmountUsd"`
	MinOrderUSD        *float64    `json:"minOrderUsd" yaml:"minOrderUsd"`
	MaxOrders          *int        `json:"maxOrders" yaml:"maxOrders"`
	Drift              *Drift      `json:"drift" yaml:"drift"`
	AllowMissingPrices *bool       `json:"allowMissingPrices" yaml:"allowMissingPrices"`
}

type rawTarget struct {
	Symbol       *string  `json:"symbol" yaml:"symbol"`
	TargetWeight *float64 `json:"targetWeight" yaml:"targetWeight"`
}

type rawSnapshot struct {
	AsOf      *string            `json:"asOfIso" yaml:"asOfIso"`
	CashUSD   *float64           `json:"cashUsd" yaml:"cashUsd"`
	Positions []Position         `json:"positions" yaml:"positions"`
	PricesUSD map[string]float64 `json:"pricesUsd" yaml:"pricesUsd"`
}

// decode reads a JSON object, or YAML when the document is not JSON.
// Decode failures come back as ValidationErrors for subject.
func decode(subject string, data []byte, v any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return &ValidationError{Subject: subject, Field: "document", Reason: "is empty"}
	}

	if trimmed[0] == '{' || trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, v); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				if typeErr.Field == "" {
					return &ValidationError{Subject: subject, Field: "document", Reason: "must be a JSON object"}
				}
				return &ValidationError{Subject: subject, Field: typeErr.Field,
					Reason: fmt.Sprintf("wrong type: got JSON %s, want %s", typeErr.Value, typeErr.Type)}
			}
			return &ValidationError{Subject: subject, Field: "document", Reason: err.Error()}
		}
		return nil
	}

	if err := yaml.Unmarshal(trimmed, v); err != nil {
		var typeErr *yaml.TypeError
		if errors.As(err, &typeErr) {
			return &ValidationError{Subject: subject, Field: "document", Reason: strings.Join(typeErr.Errors, "; ")}
		}
		return &ValidationError{Subject: subject, Field: "document", Reason: err.Error()}
	}
	return nil
}

// ParsePolicy decodes a JSON or YAML policy document, applies defaults for
// optional fields and runs ValidatePolicy on the result.
func ParsePolicy(data []byte) (Policy, error) {
	var raw rawPolicy
	if err := decode("policy", data, &raw); err != nil {
		return Policy{}, err
	}

	switch {
	case raw.Name == nil:
		return Policy{}, policyErr("name", "is required")
	case raw.Targets == nil:
		return Policy{}, policyErr("targets", "is required")
	case raw.CashBufferPct == nil:
		return Policy{}, policyErr("cashBufferPct", "is required")
	case raw.MinInvestAmountUSD == nil:
		return Policy{}, policyErr("minInvestAmountUsd", "is required")
	case raw.MaxInvestAmountUSD == nil:
		return Policy{}, policyErr("maxInvestAmountUsd", "is required")
	case raw.MinOrderUSD == nil:
		return Policy{}, policyErr("minOrderUsd", "is required")
	}

	p := Policy{
		Version:            1,
		Name:               *raw.Name,
		CashBufferPct:      *raw.CashBufferPct,
		MinInvestAmountUSD: *raw.MinInvestAmountUSD,
		MaxInvestAmountUSD: *raw.MaxInvestAmountUSD,
		MinOrderUSD:        *raw.MinOrderUSD,
		Drift:              Drift{Kind: DriftNone},
	}
	if raw.Version != nil {
		p.Version = *raw.Version
	}
	for i, t := range raw.Targets {
		if t.Symbol == nil {
			return Policy{}, policyErr(fmt.Sprintf("targets[%d].symbol", i), "is required")
		}
		if t.TargetWeight == nil {
			return Policy{}, policyErr(fmt.Sprintf("targets[%d].targetWeight", i), "is required")
		}
		p.Targets = append(p.Targets, Target{Symbol: *t.Symbol, TargetWeight: *t.TargetWeight})
	}
	if raw.MaxOrders != nil {
		if *raw.MaxOrders <= 0 {
			return Policy{}, policyErr("maxOrders", "must be a positive integer, got %d", *raw.MaxOrders)
		}
		p.MaxOrders = *raw.MaxOrders
	}
	if raw.Drift != nil {
		p.Drift = *raw.Drift
		if p.Drift.Kind == "" {
			return Policy{}, policyErr("drift.kind", "is required when drift is set")
		}
	}
	if raw.AllowMissingPrices != nil {
		p.AllowMissingPrices = *raw.AllowMissingPrices
	}

	if err := ValidatePolicy(p); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// LoadPolicy reads and parses a policy document from path.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParseSnapshot decodes a JSON or YAML snapshot and validates it.
func ParseSnapshot(data []byte) (Snapshot, error) {
	var raw rawSnapshot
	if err := decode("snapshot", data, &raw); err != nil {
		return Snapshot{}, err
	}
	if raw.AsOf == nil {
		return Snapshot{}, snapshotErr("asOfIso", "is required")
	}
	if raw.CashUSD == nil {
		return Snapshot{}, snapshotErr("cashUsd", "is required")
	}

	s := Snapshot{
		AsOf:      *raw.AsOf,
		CashUSD:   *raw.CashUSD,
		Positions: raw.Positions,
		PricesUSD: raw.PricesUSD,
	}
	if s.PricesUSD == nil {
		s.PricesUSD = map[string]float64{}
	}
	if err := ValidateSnapshot(s); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// LoadSnapshot reads and parses a snapshot document from path.
func LoadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot file: %w", err)
	}
	return ParseSnapshot(data)
}
