// Package extract guesses policy metadata from uploaded documents.
// Placeholder implementation: a real one would run text extraction over the
// document; this one returns the lossy text and zero-confidence fields.
package extract

import "strings"

type Fields struct {
	Insurer      *string  `json:"insurer"`
	PolicyNumber *string  `json:"policy_number"`
	StartDate    *string  `json:"start_date"`
	EndDate      *string  `json:"end_date"`
	PremiumTotal *float64 `json:"premium_total"`
	Confidence   float64  `json:"confidence"`
}

type Result struct {
	RawText         string `json:"raw_text"`
	ExtractedFields Fields `json:"extracted_fields"`
}

// PolicyMetadata never fails: arbitrary bytes produce a well-formed result
// with empty fields.
func PolicyMetadata(data []byte, _ string) Result {
	return Result{
		RawText:         strings.ToValidUTF8(string(data), ""),
		ExtractedFields: Fields{Confidence: 0.0},
	}
}
