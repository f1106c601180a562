package ensemble

import (
	"sort"

	"iacgate/internal/verdict"
)

// Aggregate computes the confidence-weighted signed vote over calibrated
// verdicts:
//
//	raw = sum(w_i * sign_i) / sum(w_i)
//
// with w_i the calibrated confidence and sign +1/-1/0 for
// violation/no-violation/ambiguous. A zero denominator (no verdicts, or all
// confidences zero) yields the neutral raw score 0. The normalized score is
// (raw+1)/2, so neutral maps to 0.5.
func Aggregate(verdicts []verdict.CalibratedVerdict) (raw, normalized float64) {
	var num, den float64
	for _, v := range verdicts {
		num += v.CalibratedConfidence * v.Label.Sign()
		den += v.CalibratedConfidence
	}
	if den == 0 {
		return 0, 0.5
	}
	raw = num / den
	return raw, (raw + 1) / 2
}

// agreementRate returns the majority-label fraction among verdicts.
func agreementRate(verdicts []verdict.CalibratedVerdict) float64 {
	if len(verdicts) == 0 {
		return 0
	}
	counts := make(map[verdict.Label]int, 3)
	for _, v := range verdicts {
		counts[v.Label]++
	}
	max := 0
	for _, n := range counts {
		if n > max {
			max = n
		}
	}
	return float64(max) / float64(len(verdicts))
}

// unionSorted merges string slices, dedupes, and sorts for reproducible
// decision payloads.
func unionSorted(lists ...[]string) []string {
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, s := range list {
			seen[s] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
