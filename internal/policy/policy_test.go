package policy

import (
	"context"
	"testing"

	"guildwarden/internal/storage"
	"guildwarden/internal/storage/memstore"
)

func TestGetPolicy(t *testing.T) {
	store := memstore.New()
	source := NewSource(store)
	ctx := context.Background()

	if _, ok, err := source.GetPolicy(ctx, "g1"); ok || err != nil {
		t.Fatalf("expected absent policy, got ok=%v err=%v", ok, err)
	}

	cfg := storage.DefaultServerConfig("g1", "Guild")
	cfg.MaxMessagesPerMinute = 5
	cfg.ModeratorRoleIDs = []string{"mods"}
	if _, err := store.UpsertServerConfig(ctx, cfg); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	p, ok, err := source.GetPolicy(ctx, "g1")
	if err != nil || !ok {
		t.Fatalf("expected policy, got ok=%v err=%v", ok, err)
	}
	if !p.EnableSpamProtection || p.MaxMessages() != 5 || len(p.ModeratorRoleIDs) != 1 {
		t.Fatalf("unexpected policy %+v", p)
	}
}
