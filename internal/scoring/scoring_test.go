package scoring

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	out := Normalize([]float64{-920.50, -780.00, -1100.00})
	if len(out) != 3 {
		t.Fatalf("expected 3 values, got %d", len(out))
	}
	for i, v := range out {
		if v < 0 || v > 1 {
			t.Fatalf("value %d out of range: %f", i, v)
		}
	}
	if out[1] != 1.0 {
		t.Fatalf("expected max element to normalize to 1.0, got %f", out[1])
	}
	if out[2] != 0.0 {
		t.Fatalf("expected min element to normalize to 0.0, got %f", out[2])
	}
}

func TestNormalizeAllEqual(t *testing.T) {
	out := Normalize([]float64{7, 7, 7, 7})
	for i, v := range out {
		if v != 0.5 {
			t.Fatalf("expected neutral 0.5 at %d, got %f", i, v)
		}
	}
}

func TestNormalizeEmpty(t *testing.T) {
	out := Normalize(nil)
	if len(out) != 0 {
		t.Fatalf("expected empty result, got %v", out)
	}
}

func TestNormalizeSingle(t *testing.T) {
	out := Normalize([]float64{42})
	if len(out) != 1 || out[0] != 0.5 {
		t.Fatalf("expected single neutral value, got %v", out)
	}
}

func TestDefaultWeightsSumToOne(t *testing.T) {
	w := DefaultWeights()
	sum := w.Price + w.Coverage + w.Deductible + w.Assistance
	if math.Abs(sum-1.0) > 1e-9 {
		t.Fatalf("expected weights to sum to 1.0, got %f", sum)
	}
}

func fixtureCandidates() []Candidate {
	return []Candidate{
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
	}
}

func TestScoreFixture(t *testing.T) {
	breakdowns := Score(fixtureCandidates(), DefaultWeights())
	if len(breakdowns) != 3 {
		t.Fatalf("expected 3 breakdowns, got %d", len(breakdowns))
	}

	// 780.00 is cheapest, so it wins the price signal outright.
	if breakdowns[1].Subscores.Price != 1.0 {
		t.Fatalf("expected cheapest premium to score 1.0, got %f", breakdowns[1].Subscores.Price)
	}
	// Zero deductible wins the deductible signal outright.
	if breakdowns[2].Subscores.Deductible != 1.0 {
		t.Fatalf("expected zero deductible to score 1.0, got %f", breakdowns[2].Subscores.Deductible)
	}
	// Coverage counts [3,3,4]: the two ties land on 0.0, the four-flag map on 1.0.
	if breakdowns[0].Subscores.Coverage != 0.0 || breakdowns[1].Subscores.Coverage != 0.0 {
		t.Fatalf("expected tied coverage counts to score 0.0")
	}
	if breakdowns[2].Subscores.Coverage != 1.0 {
		t.Fatalf("expected widest coverage to score 1.0, got %f", breakdowns[2].Subscores.Coverage)
	}

	expected := []float64{0.402, 0.45, 0.55}
	for i, want := range expected {
		if breakdowns[i].Score != want {
			t.Fatalf("candidate %d: expected composite %v, got %v", i, want, breakdowns[i].Score)
		}
	}
}

func TestScoreWithinBounds(t *testing.T) {
	breakdowns := Score(fixtureCandidates(), DefaultWeights())
	for i, b := range breakdowns {
		if b.Score < 0 || b.Score > 1 {
			t.Fatalf("composite %d out of range: %f", i, b.Score)
		}
	}
}

func TestScoreDeterministic(t *testing.T) {
	first := Score(fixtureCandidates(), DefaultWeights())
	second := Score(fixtureCandidates(), DefaultWeights())
	for i := range first {
		if first[i].Score != second[i].Score {
			t.Fatalf("candidate %d: scores differ between runs: %v vs %v", i, first[i].Score, second[i].Score)
		}
	}
}

func TestScoreEmptyCatalog(t *testing.T) {
	breakdowns := Score(nil, DefaultWeights())
	if len(breakdowns) != 0 {
		t.Fatalf("expected no breakdowns for empty catalog, got %d", len(breakdowns))
	}
}

func TestScorePreservesCandidateOrder(t *testing.T) {
	breakdowns := Score(fixtureCandidates(), DefaultWeights())
	providers := []string{"Shield Insurance", "BudgetProtect", "PremiumCar"}
	for i, want := range providers {
		if breakdowns[i].Inputs.Provider != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, breakdowns[i].Inputs.Provider)
		}
	}
}

func TestScoreEchoesInputs(t *testing.T) {
	candidates := fixtureCandidates()
	breakdowns := Score(candidates, DefaultWeights())
	for i := range candidates {
		if breakdowns[i].Inputs.PremiumTotal != candidates[i].PremiumTotal {
			t.Fatalf("candidate %d: premium not echoed back", i)
		}
		if breakdowns[i].Weights != DefaultWeights() {
			t.Fatalf("candidate %d: weights not echoed back", i)
		}
	}
}
