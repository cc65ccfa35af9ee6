// Package scoring ranks candidate insurance offers by normalizing
// heterogeneous signals into a weighted composite score.
package scoring

import "math"

// Weights must sum to 1.0 so composite scores stay within [0,1].
type Weights struct {
	Price      float64 `json:"price"`
	Coverage   float64 `json:"coverage"`
	Deductible float64 `json:"deductible"`
	Assistance float64 `json:"assistance"`
}

func DefaultWeights() Weights {
	return Weights{
		Price:      0.45,
		Coverage:   0.35,
		Deductible: 0.10,
		Assistance: 0.10,
	}
}

// Candidate is one raw offer as supplied by the catalog source.
type Candidate struct {
	Provider        string         `json:"provider"`
	PremiumTotal    float64        `json:"premium_total"`
	Coverage        map[string]any `json:"coverage"`
	Deductible      float64        `json:"deductible"`
	AssistanceLevel string         `json:"assistance_level"`
	LinkOut         string         `json:"link_out"`
}

// Subscores are the per-signal normalized values behind one composite score.
type Subscores struct {
	Price      float64 `json:"price"`
	Coverage   float64 `json:"coverage"`
	Deductible float64 `json:"deductible"`
	Assistance float64 `json:"assistance"`
}

// Breakdown is persisted with each offer so the stored score can be audited
// without re-running the catalog lookup.
type Breakdown struct {
	Score     float64   `json:"score"`
	Weights   Weights   `json:"weights"`
	Subscores Subscores `json:"subscores"`
	Inputs    Candidate `json:"inputs"`
}

// Normalize rescales values to [0,1] via min-max scaling. An all-equal
// vector carries no signal and maps every element to 0.5.
func Normalize(values []float64) []float64 {
	if len(values) == 0 {
		return []float64{}
	}
	minV, maxV := values[0], values[0]
	for _, v := range values[1:] {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	out := make([]float64, len(values))
	if maxV == minV {
		for i := range out {
			out[i] = 0.5
		}
		return out
	}
	for i, v := range values {
		out[i] = (v - minV) / (maxV - minV)
	}
	return out
}

// Score computes one breakdown per candidate, preserving candidate order.
// Premiums and deductibles are negated before normalization so that a higher
// normalized value is uniformly better across all four signals. The composite
// is rounded to 3 decimals and that rounded value is authoritative.
func Score(candidates []Candidate, weights Weights) []Breakdown {
	premiums := make([]float64, len(candidates))
	coverages := make([]float64, len(candidates))
	deductibles := make([]float64, len(candidates))
	assistances := make([]float64, len(candidates))
	for i, c := range candidates {
		premiums[i] = -c.PremiumTotal
		coverages[i] = float64(len(c.Coverage))
		deductibles[i] = -c.Deductible
		if c.AssistanceLevel == "EU" {
			assistances[i] = 1
		}
	}

	normPrice := Normalize(premiums)
	normCoverage := Normalize(coverages)
	normDeductible := Normalize(deductibles)
	normAssistance := Normalize(assistances)

	breakdowns := make([]Breakdown, len(candidates))
	for i, c := range candidates {
		composite := weights.Price*normPrice[i] +
			weights.Coverage*normCoverage[i] +
			weights.Deductible*normDeductible[i] +
			weights.Assistance*normAssistance[i]
		breakdowns[i] = Breakdown{
			Score:   round3(composite),
			Weights: weights,
			Subscores: Subscores{
				Price:      normPrice[i],
				Coverage:   normCoverage[i],
				Deductible: normDeductible[i],
				Assistance: normAssistance[i],
			},
			Inputs: c,
		}
	}
	return breakdowns
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
