package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"iacgate/internal/calibration"
	"iacgate/internal/ensemble"
)

var outcomeFlags struct {
	decisionID string
	judgeName  string
	allJudges  bool
	correct    bool
}

var outcomeCmd = &cobra.Command{
	Use:   "outcome",
	Short: "Record ground truth for a past decision",
	Long: `Outcome feeds a later-established ground-truth label back into the
calibration models: for each selected judge that contributed to the decision,
the judge's raw confidence bucket gains one sample, counted correct when the
judge's label matched reality. Resubmitting the same outcome adds samples
again; deduplication is the submitter's responsibility.`,
	RunE: runOutcome,
}

func init() {
	f := outcomeCmd.Flags()
	f.StringVar(&outcomeFlags.decisionID, "decision", "", "Decision ID from a validate run (required)")
	f.StringVar(&outcomeFlags.judgeName, "judge", "", "Judge to record for")
	f.BoolVar(&outcomeFlags.allJudges, "all-judges", false, "Record the outcome for every contributing judge")
	f.BoolVar(&outcomeFlags.correct, "correct", false, "Whether the verdict matched ground truth")
	_ = outcomeCmd.MarkFlagRequired("decision")
}

func runOutcome(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !outcomeFlags.allJudges && outcomeFlags.judgeName == "" {
		return fmt.Errorf("either --judge or --all-judges is required")
	}

	store, err := calibration.Open(cfg.Calibration.StorePath)
	if err != nil {
		return err
	}
	defer store.Close()

	tracker, err := store.LoadTracker(
		calibration.WithMinBucketSamples(cfg.Calibration.MinBucketSamples),
		calibration.WithBuckets(cfg.Calibration.Buckets),
	)
	if err != nil {
		return err
	}

	payload, err := store.GetDecisionPayload(outcomeFlags.decisionID)
	if err != nil {
		return err
	}
	var d ensemble.Decision
	if err := json.Unmarshal(payload, &d); err != nil {
		return fmt.Errorf("decode decision %s: %w", outcomeFlags.decisionID, err)
	}

	recorded := 0
	for _, v := range d.Verdicts {
		if !outcomeFlags.allJudges && v.Judge != outcomeFlags.judgeName {
			continue
		}
		if err := tracker.RecordOutcome(v.Judge, d.Policy.Key(), v.Confidence, outcomeFlags.correct); err != nil {
			return err
		}
		if _, err := store.AppendOutcome(d.ID, v.Judge, d.Policy.Key(), v.Confidence, outcomeFlags.correct); err != nil {
			return err
		}
		recorded++
	}
	if recorded == 0 {
		return fmt.Errorf("judge %q did not contribute to decision %s", outcomeFlags.judgeName, outcomeFlags.decisionID)
	}

	if err := store.Flush(tracker); err != nil {
		return fmt.Errorf("persist calibration: %w", err)
	}
	fmt.Printf("Recorded outcome for %d judge(s) on decision %s\n", recorded, d.ID)
	return nil
}
