package sqlstore

import (
	"testing"
	"time"
)

func TestCleanupConfigWithDefaults(t *testing.T) {
	cfg := CleanupConfig{}.withDefaults()
	if cfg.CheckEvery != defaultCleanupEvery {
		t.Fatalf("expected default check interval, got %s", cfg.CheckEvery)
	}
	if cfg.Limit != defaultCleanupLimit {
		t.Fatalf("expected default limit, got %d", cfg.Limit)
	}
	if cfg.Logger == nil || cfg.Clock == nil {
		t.Fatalf("expected logger and clock defaults to be set")
	}
}

func TestCleanupConfigRespectsOverrides(t *testing.T) {
	cfg := CleanupConfig{CheckEvery: 5 * time.Minute, Limit: 50}.withDefaults()
	if cfg.CheckEvery != 5*time.Minute {
		t.Fatalf("expected override to stick, got %s", cfg.CheckEvery)
	}
	if cfg.Limit != 50 {
		t.Fatalf("expected override to stick, got %d", cfg.Limit)
	}
}

func TestCleanupMaintainerLockName(t *testing.T) {
	m := &CleanupMaintainer{table: "outbox"}
	if m.lockName() != "outbox:cleanup:outbox" {
		t.Fatalf("unexpected lock name: %s", m.lockName())
	}
}
