package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"iacgate/internal/calibration"
)

var reportFlags struct {
	policy string
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show calibration state and decision history",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportFlags.policy, "policy", "", "Restrict to one policy key (id@version)")
}

func runReport(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
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

	snaps := tracker.Snapshot()
	printed := 0
	for _, snap := range snaps {
		if reportFlags.policy != "" && snap.PolicyKey != reportFlags.policy {
			continue
		}
		var samples int64
		for _, b := range snap.Buckets {
			samples += b.Count
		}
		fmt.Printf("%s / %s\n", snap.Judge, snap.PolicyKey)
		fmt.Printf("  samples: %d\n", samples)
		if ece, ok := tracker.ECE(snap.Judge, snap.PolicyKey); ok {
			fmt.Printf("  ece:     %.4f\n", ece)
		} else {
			fmt.Printf("  ece:     n/a (no outcomes)\n")
		}
		for _, b := range snap.Buckets {
			if b.Count == 0 {
				continue
			}
			fmt.Printf("  [%.2f, %.2f): %d/%d correct (%.2f observed vs %.2f nominal)\n",
				b.Lo, b.Hi, b.Correct, b.Count, b.Accuracy(), b.Midpoint())
		}
		printed++
	}
	if printed == 0 {
		fmt.Println("No calibration models yet; record outcomes to build them.")
	}

	counts, err := store.CountDecisionsByAction(reportFlags.policy)
	if err != nil {
		return err
	}
	if len(counts) > 0 {
		fmt.Println("\nDecisions by action:")
		for action, n := range counts {
			fmt.Printf("  %-12s %d\n", action, n)
		}
	}
	return nil
}
