package judge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"iacgate/internal/artifact"
	"iacgate/internal/logging"
	"iacgate/internal/verdict"
)

// CachedAdapter wraps an Adapter with a content-addressed on-disk result
// cache. Keyed by judge, prompt version, policy and artifact hash, so any
// input change misses. Intended for local iteration; CI runs usually keep
// it disabled.
type CachedAdapter struct {
	inner Adapter
	dir   string
	ttl   time.Duration
	log   *slog.Logger
}

type cachedReply struct {
	Judge    string               `json:"judge"`
	Verdict  verdict.JudgeVerdict `json:"verdict"`
	CachedAt time.Time            `json:"cached_at"`
}

// NewCachedAdapter wraps inner with a cache under dir.
func NewCachedAdapter(inner Adapter, dir string, ttl time.Duration) *CachedAdapter {
	return &CachedAdapter{inner: inner, dir: dir, ttl: ttl, log: logging.New("judge-cache")}
}

// Name implements Adapter.
func (c *CachedAdapter) Name() string { return c.inner.Name() }

// Evaluate implements Adapter. Cache failures degrade to a live call; a
// broken cache never fails a validation.
func (c *CachedAdapter) Evaluate(ctx context.Context, art artifact.Artifact, pol artifact.PolicyContext) (verdict.JudgeVerdict, error) {
	key := c.key(art, pol)
	if v, ok := c.load(key); ok {
		c.log.Debug("cache hit", "judge", c.inner.Name(), "key", key[:12])
		return v, nil
	}

	v, err := c.inner.Evaluate(ctx, art, pol)
	if err != nil {
		return verdict.JudgeVerdict{}, err
	}
	if err := c.save(key, v); err != nil {
		c.log.Warn("cache save failed", "judge", c.inner.Name(), "error", err)
	}
	return v, nil
}

func (c *CachedAdapter) key(art artifact.Artifact, pol artifact.PolicyContext) string {
	h := sha256.New()
	h.Write([]byte(c.inner.Name()))
	h.Write([]byte(PromptVersion))
	h.Write([]byte(pol.Key()))
	h.Write([]byte(pol.RuleSet))
	h.Write([]byte(art.SHA256))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *CachedAdapter) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

func (c *CachedAdapter) load(key string) (verdict.JudgeVerdict, bool) {
	b, err := os.ReadFile(c.path(key))
	if err != nil {
		return verdict.JudgeVerdict{}, false
	}
	var entry cachedReply
	if err := json.Unmarshal(b, &entry); err != nil {
		return verdict.JudgeVerdict{}, false
	}
	if c.ttl > 0 && time.Since(entry.CachedAt) > c.ttl {
		_ = os.Remove(c.path(key))
		return verdict.JudgeVerdict{}, false
	}
	return entry.Verdict, true
}

func (c *CachedAdapter) save(key string, v verdict.JudgeVerdict) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	entry := cachedReply{Judge: c.inner.Name(), Verdict: v, CachedAt: time.Now().UTC()}
	b, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	path := c.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
