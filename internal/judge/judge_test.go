package judge

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"iacgate/internal/artifact"
	"iacgate/internal/verdict"
)

var (
	testArtifact = artifact.New("pod.yaml", artifact.KindKubernetesManifest,
		[]byte("apiVersion: v1\nkind: Pod\nspec:\n  hostNetwork: true\n"))
	testPolicy = artifact.PolicyContext{ID: "cis-k8s", Version: "v3", RuleSet: "No host networking."}
)

func TestStaticJudge_CannedReply(t *testing.T) {
	j := NewStaticJudge("stub-a",
		WithReply(testArtifact.SHA256, `{"label":"violation","confidence":0.9,"violations":["hostNetwork enabled"]}`))

	v, err := j.Evaluate(context.Background(), testArtifact, testPolicy)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v.Judge != "stub-a" || v.Label != verdict.LabelViolation || v.Confidence != 0.9 {
		t.Errorf("unexpected verdict: %+v", v)
	}
}

func TestStaticJudge_FallbackIsAmbiguous(t *testing.T) {
	j := NewStaticJudge("stub-a")
	other := artifact.New("other.yaml", artifact.KindKubernetesManifest, []byte("kind: Service\n"))

	v, err := j.Evaluate(context.Background(), other, testPolicy)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v.Label != verdict.LabelAmbiguous || v.Confidence != 0 {
		t.Errorf("fallback should be ambiguous/0, got %+v", v)
	}
}

func TestStaticJudge_TimesOutAgainstDeadline(t *testing.T) {
	j := NewStaticJudge("slow", WithDelay(200*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := j.Evaluate(ctx, testArtifact, testPolicy)
	if !errors.Is(err, ErrJudgeTimeout) {
		t.Errorf("err = %v, want ErrJudgeTimeout", err)
	}
}

func TestStaticJudge_ReportsUnavailable(t *testing.T) {
	j := NewStaticJudge("down", WithError(errors.New("connection refused")))
	_, err := j.Evaluate(context.Background(), testArtifact, testPolicy)
	if !errors.Is(err, ErrJudgeUnavailable) {
		t.Errorf("err = %v, want ErrJudgeUnavailable", err)
	}
}

func TestFailureKind(t *testing.T) {
	if FailureKind(ErrJudgeTimeout) != "timeout" {
		t.Error("timeout kind")
	}
	if FailureKind(errors.Join(ErrJudgeUnavailable, errors.New("x"))) != "unavailable" {
		t.Error("unavailable kind")
	}
	if FailureKind(errors.New("misc")) != "other" {
		t.Error("other kind")
	}
}

func TestBuildUserPrompt_ContainsInputs(t *testing.T) {
	p := BuildUserPrompt(testArtifact, testPolicy)
	for _, want := range []string{"cis-k8s@v3", "No host networking.", "kubernetes-manifest", "hostNetwork: true"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestCachedAdapter_HitSkipsInner(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	calls := 0
	inner := &countingAdapter{
		inner: NewStaticJudge("stub-a",
			WithReply(testArtifact.SHA256, `{"label":"violation","confidence":0.8}`)),
		calls: &calls,
	}
	c := NewCachedAdapter(inner, dir, time.Hour)

	v1, err := c.Evaluate(context.Background(), testArtifact, testPolicy)
	if err != nil {
		t.Fatal(err)
	}
	v2, err := c.Evaluate(context.Background(), testArtifact, testPolicy)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("inner called %d times, want 1 (second call cached)", calls)
	}
	if v1.Label != v2.Label || v1.Confidence != v2.Confidence {
		t.Errorf("cached verdict differs: %+v vs %+v", v1, v2)
	}
}

func TestCachedAdapter_DistinctPoliciesMiss(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	calls := 0
	inner := &countingAdapter{inner: NewStaticJudge("stub-a"), calls: &calls}
	c := NewCachedAdapter(inner, dir, time.Hour)

	if _, err := c.Evaluate(context.Background(), testArtifact, testPolicy); err != nil {
		t.Fatal(err)
	}
	otherPolicy := artifact.PolicyContext{ID: "cis-k8s", Version: "v4", RuleSet: "No host networking."}
	if _, err := c.Evaluate(context.Background(), testArtifact, otherPolicy); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("inner called %d times, want 2 (policy version changes the key)", calls)
	}
}

func TestCachedAdapter_ErrorsNotCached(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	c := NewCachedAdapter(NewStaticJudge("down", WithError(errors.New("boom"))), dir, time.Hour)

	if _, err := c.Evaluate(context.Background(), testArtifact, testPolicy); err == nil {
		t.Fatal("expected error from inner adapter")
	}
	entries, _ := filepath.Glob(filepath.Join(dir, "*.json"))
	if len(entries) != 0 {
		t.Errorf("failed call must not leave cache entries, found %v", entries)
	}
}

type countingAdapter struct {
	inner Adapter
	calls *int
}

func (c *countingAdapter) Name() string { return c.inner.Name() }

func (c *countingAdapter) Evaluate(ctx context.Context, art artifact.Artifact, pol artifact.PolicyContext) (verdict.JudgeVerdict, error) {
	*c.calls++
	return c.inner.Evaluate(ctx, art, pol)
}
