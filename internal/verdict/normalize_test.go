package verdict

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func TestNormalize_ValidReply(t *testing.T) {
	raw := `{"label":"violation","confidence":0.92,"violations":["privileged container"],"remediation":["drop securityContext.privileged"],"rationale":"pod runs privileged"}`

	got := Normalize("gemini-a", raw, 800*time.Millisecond, testNow)

	want := JudgeVerdict{
		Judge:       "gemini-a",
		Label:       LabelViolation,
		Confidence:  0.92,
		Violations:  []string{"privileged container"},
		Remediation: []string{"drop securityContext.privileged"},
		Rationale:   "pod runs privileged",
		LatencyMS:   800,
		Timestamp:   testNow,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Normalize mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize_MalformedBecomesAmbiguous(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"free text", "The pod looks fine to me."},
		{"empty", ""},
		{"unknown label", `{"label":"maybe","confidence":0.5}`},
		{"confidence above one", `{"label":"violation","confidence":1.2}`},
		{"negative confidence", `{"label":"violation","confidence":-0.1}`},
		{"extra field", `{"label":"violation","confidence":0.9,"score":7}`},
		{"trailing data", `{"label":"violation","confidence":0.9}{"x":1}`},
		{"missing confidence", `{"label":"violation"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize("j1", tt.raw, time.Millisecond, testNow)
			if got.Label != LabelAmbiguous {
				t.Errorf("label = %q, want ambiguous", got.Label)
			}
			if got.Confidence != 0.0 {
				t.Errorf("confidence = %v, want 0.0", got.Confidence)
			}
		})
	}
}

func TestNormalize_PreservesRawOnFailure(t *testing.T) {
	raw := "SYSTEM ERROR: upstream 503"
	got := Normalize("j1", raw, time.Millisecond, testNow)
	if got.Rationale != raw {
		t.Errorf("rationale = %q, want the raw reply preserved", got.Rationale)
	}
}

func TestLabelSign(t *testing.T) {
	if LabelViolation.Sign() != 1 || LabelNoViolation.Sign() != -1 || LabelAmbiguous.Sign() != 0 {
		t.Error("label signs must be +1/-1/0")
	}
}
