package api

import (
	"context"
	"testing"
	"time"
)

func TestRedisDeduperAddTwice(t *testing.T) {
	deduper, _ := newTestDeduper(t)
	ctx := context.Background()

	first, err := deduper.Add(ctx, "tasks", "k1")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !first {
		t.Fatalf("expected key to be added")
	}
	second, err := deduper.Add(ctx, "tasks", "k1")
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if second {
		t.Fatalf("expected key to be duplicate on second call")
	}
	other, err := deduper.Add(ctx, "exams", "k1")
	if err != nil {
		t.Fatalf("add other scope: %v", err)
	}
	if !other {
		t.Fatalf("scopes must not share keys")
	}
}

func TestRedisDeduperKeyNamespacing(t *testing.T) {
	deduper, m := newTestDeduper(t)
	ctx := context.Background()

	if _, err := deduper.Add(ctx, "tasks", "k1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	expectedKey := dedupeKeyPrefix + ":tasks:k1"
	if !m.Exists(expectedKey) {
		t.Fatalf("expected redis key %q to exist, have %v", expectedKey, m.Keys())
	}
	if ttl := m.TTL(expectedKey); ttl != time.Minute {
		t.Fatalf("unexpected ttl: %v", ttl)
	}

	m.FastForward(2 * time.Minute)
	added, err := deduper.Add(ctx, "tasks", "k1")
	if err != nil {
		t.Fatalf("add after expiry: %v", err)
	}
	if !added {
		t.Fatalf("expected expired key to be accepted again")
	}
}

func TestRedisDeduperRemove(t *testing.T) {
	deduper, m := newTestDeduper(t)
	ctx := context.Background()

	if _, err := deduper.Add(ctx, "agenda", "k1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := deduper.Remove(ctx, "agenda", "k1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if m.Exists(dedupeKeyPrefix + ":agenda:k1") {
		t.Fatalf("expected key to be removed")
	}
	// removing a missing key is not an error
	if err := deduper.Remove(ctx, "agenda", "missing"); err != nil {
		t.Fatalf("remove missing: %v", err)
	}
}
