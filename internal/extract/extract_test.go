package extract

import (
	"testing"
	"unicode/utf8"
)

func TestPolicyMetadataArbitraryBytes(t *testing.T) {
	inputs := [][]byte{
		nil,
		[]byte("plain text policy"),
		{0xff, 0xfe, 0x00, 0x41},
		[]byte("%PDF-1.7 \x00\x01\x02"),
	}
	for _, input := range inputs {
		result := PolicyMetadata(input, "policy.pdf")
		if !utf8.ValidString(result.RawText) {
			t.Fatalf("expected valid UTF-8 raw text for %q", input)
		}
		if result.ExtractedFields.Confidence != 0.0 {
			t.Fatalf("expected zero confidence, got %f", result.ExtractedFields.Confidence)
		}
		if result.ExtractedFields.Insurer != nil || result.ExtractedFields.PolicyNumber != nil {
			t.Fatalf("expected empty extracted fields")
		}
	}
}
