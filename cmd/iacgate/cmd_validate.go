package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"iacgate/internal/artifact"
	"iacgate/internal/calibration"
	"iacgate/internal/ensemble"
)

var validateFlags struct {
	file          string
	kind          string
	policy        string
	policyVersion string
	rulesFile     string
	threshold     float64
	output        string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate one IaC artifact and exit with the gate's verdict",
	Long: `Validate fans the artifact out to every configured judge, aggregates the
calibrated verdicts into a risk score, and exits with the action's code:
0 = PASS, 2 = NEEDS_REVIEW, 3 = HIGH_RISK. Exit 1 means the gate itself
failed to run and the result carries no risk signal.`,
	RunE: runValidate,
}

func init() {
	f := validateCmd.Flags()
	f.StringVarP(&validateFlags.file, "file", "f", "", "Artifact file path, or - for stdin (required)")
	f.StringVar(&validateFlags.kind, "kind", "", "Artifact kind; detected from content when omitted")
	f.StringVar(&validateFlags.policy, "policy", "", "Policy ID (required)")
	f.StringVar(&validateFlags.policyVersion, "policy-version", "", "Policy version; partitions calibration state")
	f.StringVar(&validateFlags.rulesFile, "rules", "", "Path to the policy rule text handed to judges")
	f.Float64Var(&validateFlags.threshold, "threshold", 0, "Per-run HIGH_RISK threshold override in (0,1]; 0 keeps the configured value")
	f.StringVarP(&validateFlags.output, "output", "o", "", "Write the full decision JSON to this path ('-' = stdout)")
	_ = validateCmd.MarkFlagRequired("file")
	_ = validateCmd.MarkFlagRequired("policy")
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if t := validateFlags.threshold; t < 0 || t > 1 {
		return fmt.Errorf("--threshold %v outside (0,1]", t)
	}

	content, err := readArtifact(validateFlags.file)
	if err != nil {
		return err
	}
	art := artifact.New(validateFlags.file, artifact.Kind(validateFlags.kind), content)

	ruleSet := ""
	if validateFlags.rulesFile != "" {
		rules, err := os.ReadFile(validateFlags.rulesFile)
		if err != nil {
			return fmt.Errorf("read rules: %w", err)
		}
		ruleSet = string(rules)
	}
	pol := artifact.PolicyContext{
		ID:      validateFlags.policy,
		Version: validateFlags.policyVersion,
		RuleSet: ruleSet,
	}

	judges, err := buildJudges(cmd.Context(), cfg)
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

	engine := ensemble.NewEngine(judges, tracker, cfg.GateSettings(),
		ensemble.WithBudget(cfg.Budget()))

	d := engine.Validate(cmd.Context(), art, pol, validateFlags.threshold)

	payload, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("encode decision: %w", err)
	}
	if err := store.SaveDecision(d.ID, pol.Key(), string(d.Action), d.RiskScore, d.LatencyMS, payload); err != nil {
		return err
	}

	if err := writeDecision(validateFlags.output, payload); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "decision %s: %s (risk %.3f, %d/%d judges)\n",
		d.ID, d.Action, d.RiskScore, len(d.ContributingJudges), len(judges))

	// os.Exit skips deferred closes; the store must be closed before the
	// action's exit code is emitted.
	_ = store.Close()
	os.Exit(d.Action.ExitCode())
	return nil
}

func readArtifact(path string) ([]byte, error) {
	if path == "-" {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return content, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return content, nil
}

func writeDecision(dest string, payload []byte) error {
	switch dest {
	case "":
		return nil
	case "-":
		_, err := os.Stdout.Write(append(payload, '\n'))
		return err
	default:
		if err := os.WriteFile(dest, payload, 0644); err != nil {
			return fmt.Errorf("write decision: %w", err)
		}
		return nil
	}
}
