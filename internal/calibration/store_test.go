package calibration

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sub", "iacgate.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestOpen_CreatesParentDirAndSchema(t *testing.T) {
	s, _ := openTestStore(t)

	// Fresh DB loads an empty tracker without error.
	tr, err := s.LoadTracker()
	if err != nil {
		t.Fatalf("LoadTracker on fresh DB: %v", err)
	}
	if got := tr.Calibrate("j1", "p@v1", 0.6); got != 0.6 {
		t.Errorf("fresh tracker must pass through raw confidence, got %v", got)
	}
}

func TestFlushAndReload_RoundTrip(t *testing.T) {
	s, path := openTestStore(t)

	tr := NewTracker(WithMinBucketSamples(5))
	for i := 0; i < 30; i++ {
		if err := tr.RecordOutcome("gemini-a", "pol@v3", 0.95, i%3 != 0); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Flush(tr); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen: the calibration survives the restart.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	tr2, err := s2.LoadTracker(WithMinBucketSamples(5))
	if err != nil {
		t.Fatalf("LoadTracker after reopen: %v", err)
	}
	want := tr.Calibrate("gemini-a", "pol@v3", 0.95)
	got := tr2.Calibrate("gemini-a", "pol@v3", 0.95)
	if got != want {
		t.Errorf("calibrated confidence after reload = %v, want %v", got, want)
	}
	if diff := cmp.Diff(tr.Snapshot()[0].Buckets, tr2.Snapshot()[0].Buckets); diff != "" {
		t.Errorf("bucket state mismatch after reload (-want +got):\n%s", diff)
	}
}

func TestFlush_OnlyWritesDirtyModelsOnce(t *testing.T) {
	s, _ := openTestStore(t)
	tr := NewTracker()
	if err := tr.RecordOutcome("j1", "p@v1", 0.4, true); err != nil {
		t.Fatal(err)
	}

	if err := s.Flush(tr); err != nil {
		t.Fatalf("first flush: %v", err)
	}
	// Second flush with nothing dirty is a no-op and must not error.
	if err := s.Flush(tr); err != nil {
		t.Fatalf("idempotent flush: %v", err)
	}

	snaps := tr.Snapshot()
	if len(snaps) != 1 || snaps[0].Dirty {
		t.Errorf("model should be clean after flush: %+v", snaps)
	}
}

func TestSaveDecision_AndGetPayload(t *testing.T) {
	s, _ := openTestStore(t)

	payload := []byte(`{"id":"dec-1","action":"HIGH_RISK"}`)
	if err := s.SaveDecision("dec-1", "pol@v3", "HIGH_RISK", 0.97, 1450, payload); err != nil {
		t.Fatalf("SaveDecision: %v", err)
	}

	got, err := s.GetDecisionPayload("dec-1")
	if err != nil {
		t.Fatalf("GetDecisionPayload: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("payload = %s, want %s", got, payload)
	}

	if _, err := s.GetDecisionPayload("missing"); err == nil {
		t.Error("expected not-found error")
	}

	// Duplicate decision IDs are rejected by the primary key.
	if err := s.SaveDecision("dec-1", "pol@v3", "HIGH_RISK", 0.97, 1450, payload); err == nil {
		t.Error("expected primary key violation for duplicate decision id")
	}
}

func TestAppendOutcome_ReturnsRowID(t *testing.T) {
	s, _ := openTestStore(t)

	id1, err := s.AppendOutcome("dec-1", "j1", "pol@v3", 0.9, true)
	if err != nil {
		t.Fatalf("AppendOutcome: %v", err)
	}
	id2, err := s.AppendOutcome("dec-1", "j1", "pol@v3", 0.9, true)
	if err != nil {
		t.Fatalf("AppendOutcome: %v", err)
	}
	if id2 <= id1 {
		t.Errorf("outcome row ids must increase: %d then %d", id1, id2)
	}
}

func TestCountDecisionsByAction(t *testing.T) {
	s, _ := openTestStore(t)

	decisions := []struct{ id, policy, action string }{
		{"d1", "pol@v3", "PASS"},
		{"d2", "pol@v3", "PASS"},
		{"d3", "pol@v3", "HIGH_RISK"},
		{"d4", "other@v1", "NEEDS_REVIEW"},
	}
	for _, d := range decisions {
		if err := s.SaveDecision(d.id, d.policy, d.action, 0.5, 100, []byte("{}")); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.CountDecisionsByAction("pol@v3")
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]int64{"PASS": 2, "HIGH_RISK": 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}

	all, err := s.CountDecisionsByAction("")
	if err != nil {
		t.Fatal(err)
	}
	if all["NEEDS_REVIEW"] != 1 {
		t.Errorf("all-policy count missing NEEDS_REVIEW row: %v", all)
	}
}
