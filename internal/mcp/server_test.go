package mcp

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"iacgate/internal/calibration"
	"iacgate/internal/ensemble"
	"iacgate/internal/gate"
	"iacgate/internal/judge"
	"iacgate/internal/metrics"
)

const violationReply = `{"label":"violation","confidence":0.95,"violations":["privileged container"],"rationale":"runs privileged"}`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := calibration.Open(filepath.Join(t.TempDir(), "gate.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	tracker := calibration.NewTracker()
	judges := []judge.Adapter{
		judge.NewStaticJudge("alpha", judge.WithFallback(violationReply)),
		judge.NewStaticJudge("beta", judge.WithFallback(violationReply)),
	}
	recorder := metrics.NewRecorder(prometheus.NewRegistry())
	engine := ensemble.NewEngine(judges, tracker, gate.DefaultConfig(),
		ensemble.WithObserver(recorder))
	return NewServer(engine, tracker, store, recorder, "test")
}

func TestValidateArtifact_RoundTrip(t *testing.T) {
	s := newTestServer(t)

	_, out, err := s.handleValidateArtifact(context.Background(), nil, validateArtifactInput{
		Ref:      "deploy.yaml",
		Content:  "apiVersion: v1\nkind: Pod\n",
		PolicyID: "pod-security",
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Action != string(gate.ActionHighRisk) {
		t.Fatalf("Action = %q, want HIGH_RISK", out.Action)
	}
	if out.ExitCode != 3 {
		t.Fatalf("ExitCode = %d, want 3", out.ExitCode)
	}
	if len(out.ContributingJudges) != 2 {
		t.Fatalf("ContributingJudges = %v", out.ContributingJudges)
	}
	if out.DecisionID == "" {
		t.Fatal("empty decision ID")
	}

	// The decision must be retrievable for outcome feedback.
	if _, err := s.store.GetDecisionPayload(out.DecisionID); err != nil {
		t.Fatalf("decision not persisted: %v", err)
	}
}

func TestValidateArtifact_InputValidation(t *testing.T) {
	s := newTestServer(t)
	cases := []validateArtifactInput{
		{Content: "x", PolicyID: "p"},                                 // missing ref
		{Ref: "a", PolicyID: "p"},                                     // missing content
		{Ref: "a", Content: "x"},                                      // missing policy
		{Ref: "a", Content: "x", PolicyID: "p", Threshold: 1.5},       // bad threshold
	}
	for _, in := range cases {
		if _, _, err := s.handleValidateArtifact(context.Background(), nil, in); err == nil {
			t.Fatalf("input %+v: expected error", in)
		}
	}
}

func TestRecordOutcome_AllJudges(t *testing.T) {
	s := newTestServer(t)

	_, dec, err := s.handleValidateArtifact(context.Background(), nil, validateArtifactInput{
		Ref:      "deploy.yaml",
		Content:  "apiVersion: v1\nkind: Pod\n",
		PolicyID: "pod-security",
	})
	if err != nil {
		t.Fatal(err)
	}

	_, out, err := s.handleRecordOutcome(context.Background(), nil, recordOutcomeInput{
		DecisionID: dec.DecisionID,
		Correct:    true,
		AllJudges:  true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Recorded != 2 {
		t.Fatalf("Recorded = %d, want 2", out.Recorded)
	}

	snaps := s.tracker.Snapshot()
	if len(snaps) != 2 {
		t.Fatalf("tracker models = %d, want 2", len(snaps))
	}
}

func TestRecordOutcome_IncorrectVerdictCountsFalsePositive(t *testing.T) {
	s := newTestServer(t)

	_, dec, err := s.handleValidateArtifact(context.Background(), nil, validateArtifactInput{
		Ref:      "deploy.yaml",
		Content:  "apiVersion: v1\nkind: Pod\n",
		PolicyID: "pod-security",
	})
	if err != nil {
		t.Fatal(err)
	}

	// Both judges flagged a violation and the gate went HIGH_RISK; ground
	// truth says they were wrong, so the decision was a false alarm.
	if _, _, err := s.handleRecordOutcome(context.Background(), nil, recordOutcomeInput{
		DecisionID: dec.DecisionID,
		Correct:    false,
		AllJudges:  true,
	}); err != nil {
		t.Fatal(err)
	}

	sum := s.recorder.Snapshot()
	if sum.LabelledCount != 1 {
		t.Fatalf("LabelledCount = %d, want 1", sum.LabelledCount)
	}
	if sum.Precision != 0 || sum.Recall != 0 || sum.F1 != 0 {
		t.Fatalf("false alarm must score zero, got %+v", sum)
	}
}

func TestRecordOutcome_UnknownJudge(t *testing.T) {
	s := newTestServer(t)

	_, dec, err := s.handleValidateArtifact(context.Background(), nil, validateArtifactInput{
		Ref:      "deploy.yaml",
		Content:  "apiVersion: v1\n",
		PolicyID: "pod-security",
	})
	if err != nil {
		t.Fatal(err)
	}

	_, _, err = s.handleRecordOutcome(context.Background(), nil, recordOutcomeInput{
		DecisionID: dec.DecisionID,
		Judge:      "nonexistent",
		Correct:    true,
	})
	if err == nil {
		t.Fatal("expected error for judge outside the contributing set")
	}
}

func TestGetReport(t *testing.T) {
	s := newTestServer(t)

	_, dec, err := s.handleValidateArtifact(context.Background(), nil, validateArtifactInput{
		Ref:      "deploy.yaml",
		Content:  "apiVersion: v1\n",
		PolicyID: "pod-security",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.handleRecordOutcome(context.Background(), nil, recordOutcomeInput{
		DecisionID: dec.DecisionID, Correct: true, AllJudges: true,
	}); err != nil {
		t.Fatal(err)
	}

	_, rep, err := s.handleGetReport(context.Background(), nil, getReportInput{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Models) != 2 {
		t.Fatalf("Models = %+v, want 2 entries", rep.Models)
	}
	for _, m := range rep.Models {
		if m.Samples != 1 {
			t.Fatalf("model %s samples = %d, want 1", m.Judge, m.Samples)
		}
	}
	if rep.Decisions[string(gate.ActionHighRisk)] != 1 {
		t.Fatalf("Decisions = %v", rep.Decisions)
	}
	if rep.Runtime == nil || rep.Runtime.Decisions != 1 {
		t.Fatalf("Runtime = %+v, want 1 observed decision", rep.Runtime)
	}
	// The outcome above must reach the running-quality counters too: a
	// HIGH_RISK decision confirmed correct is one true positive.
	if rep.Runtime.LabelledCount != 1 {
		t.Fatalf("Runtime.LabelledCount = %d, want 1", rep.Runtime.LabelledCount)
	}
	if rep.Runtime.F1 != 1 || rep.Runtime.Precision != 1 || rep.Runtime.Recall != 1 {
		t.Fatalf("Runtime scores = %+v, want F1/precision/recall of 1", rep.Runtime)
	}

	// Policy filter excludes everything else.
	_, rep, err = s.handleGetReport(context.Background(), nil, getReportInput{Policy: "other"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Models) != 0 {
		t.Fatalf("filtered Models = %+v, want none", rep.Models)
	}
}
