package cache

import (
	"context"
	"strings"
	"testing"
)

func TestCampaignKeys(t *testing.T) {
	got := strings.Join(CampaignKeys("c1", "c2", "c1", ""), ",")
	want := "engagement:c1,categories:c1,engagement:c2,categories:c2,summary"
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
	if keys := CampaignKeys(); len(keys) != 1 || keys[0] != SummaryKey() {
		t.Fatalf("expected only the summary key, got %v", keys)
	}
}

func TestNoopNeverHits(t *testing.T) {
	ctx := context.Background()
	var c Cache = Noop{}
	if err := c.Set(ctx, "k", 1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var v int
	found, err := c.Get(ctx, "k", &v)
	if err != nil || found {
		t.Fatalf("expected miss, got found=%v err=%v", found, err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}
