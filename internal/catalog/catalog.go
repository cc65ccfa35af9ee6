// Package catalog supplies candidate offers for quote requests. The static
// source stands in for a live insurer-integration fetch; the scorer's
// contract does not change when that substitution happens.
package catalog

import (
	"context"

	"autoguardian/server/internal/scoring"
)

type Source interface {
	Candidates(ctx context.Context) ([]scoring.Candidate, error)
}

type StaticSource struct {
	offers []scoring.Candidate
}

func NewStaticSource() *StaticSource {
	return &StaticSource{offers: []scoring.Candidate{
		{
			Provider:        "Shield Insurance",
			PremiumTotal:    920.50,
			Coverage:        map[string]any{"OC": true, "AC": true, "assistance": "EU"},
			Deductible:      500,
			AssistanceLevel: "EU",
			LinkOut:         "https://shield.example/policy",
		},
		{
			Provider:        "BudgetProtect",
			PremiumTotal:    780.00,
			Coverage:        map[string]any{"OC": true, "AC": false, "assistance": "PL"},
			Deductible:      1000,
			AssistanceLevel: "PL",
			LinkOut:         "https://budget.example/policy",
		},
		{
			Provider:        "PremiumCar",
			PremiumTotal:    1100.00,
			Coverage:        map[string]any{"OC": true, "AC": true, "szyby": true, "assistance": "EU"},
			Deductible:      0,
			AssistanceLevel: "EU",
			LinkOut:         "https://premium.example/policy",
		},
	}}
}

func (s *StaticSource) Candidates(_ context.Context) ([]scoring.Candidate, error) {
	out := make([]scoring.Candidate, len(s.offers))
	copy(out, s.offers)
	return out, nil
}
