package idempotency

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/af-corp/consilium/internal/types"
)

func TestFingerprint_Stable(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	a := Fingerprint("caller-42", "Configure basic office setup", "gpt-4o", now)
	b := Fingerprint("caller-42", "Configure basic office setup", "gpt-4o", now)
	if a != b {
		t.Error("identical inputs must produce identical fingerprints")
	}
}

func TestFingerprint_NormalizesPrompt(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	a := Fingerprint("c", "Configure   basic\toffice setup", "m", now)
	b := Fingerprint("c", "configure basic office SETUP", "m", now)
	if a != b {
		t.Error("whitespace and case differences must not change the fingerprint")
	}
}

func TestFingerprint_VariesByInput(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	base := Fingerprint("c", "prompt", "m", now)

	if Fingerprint("other", "prompt", "m", now) == base {
		t.Error("caller must affect the fingerprint")
	}
	if Fingerprint("c", "other prompt", "m", now) == base {
		t.Error("prompt must affect the fingerprint")
	}
	if Fingerprint("c", "prompt", "other-model", now) == base {
		t.Error("model must affect the fingerprint")
	}
	if Fingerprint("c", "prompt", "m", now.Add(24*time.Hour)) == base {
		t.Error("day bucket must affect the fingerprint")
	}
}

func TestFingerprint_SameDayBucket(t *testing.T) {
	morning := time.Date(2026, 3, 14, 1, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)
	if Fingerprint("c", "p", "m", morning) != Fingerprint("c", "p", "m", evening) {
		t.Error("requests within the same UTC day must share a fingerprint")
	}
}

func TestCache_MissThenHit(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(NewMemoryKV(), time.Hour, slog.Default())
	key := Fingerprint("c", "p", "m", time.Now())

	if got := cache.Get(ctx, key); got != nil {
		t.Fatal("expected miss on empty cache")
	}

	resp := &types.GenerationResponse{
		RequestID: key,
		Text:      "answer",
		Provider:  "openai",
		CostUSD:   0.01,
	}
	if err := cache.Put(ctx, key, resp); err != nil {
		t.Fatal(err)
	}

	got := cache.Get(ctx, key)
	if got == nil {
		t.Fatal("expected hit after put")
	}
	if !got.Cached {
		t.Error("expected cached=true on hit")
	}
	if got.Text != "answer" || got.Provider != "openai" {
		t.Errorf("unexpected snapshot: %+v", got)
	}
}

func TestCache_EntryExpires(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	base := time.Now()
	kv.now = func() time.Time { return base }

	cache := NewCache(kv, time.Minute, slog.Default())
	cache.Put(ctx, "k", &types.GenerationResponse{Text: "x"})

	kv.now = func() time.Time { return base.Add(2 * time.Minute) }
	if got := cache.Get(ctx, "k"); got != nil {
		t.Error("expected miss after TTL expiry")
	}
}
