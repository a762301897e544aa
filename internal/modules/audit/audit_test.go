package audit

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"guildwarden/internal/storage"
	"guildwarden/internal/storage/memstore"
)

func TestLoggerRecordsDeletesAndEdits(t *testing.T) {
	store := memstore.New()
	logger := NewLogger(store, zap.NewNop())
	ctx := context.Background()

	msg := Message{GuildID: "g1", ChannelID: "c1", MessageID: "m1", UserID: "u1", Content: "hello"}
	logger.Deleted(ctx, msg)

	msg.Content = "hello there"
	logger.Edited(ctx, msg, "hello")
	logger.Edited(ctx, msg, "hello there")

	logs, err := logger.Recent(ctx, "g1", 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}

	var edited *storage.MessageLog
	for i := range logs {
		if logs[i].Action == storage.MessageEdited {
			edited = &logs[i]
		}
	}
	if edited == nil || edited.Content != "Old: hello | New: hello there" {
		t.Fatalf("unexpected edit log %+v", edited)
	}
}

func TestLoggerIgnoresDirectMessages(t *testing.T) {
	store := memstore.New()
	logger := NewLogger(store, zap.NewNop())
	logger.Deleted(context.Background(), Message{ChannelID: "dm", Content: "x"})

	logs, _ := store.ListMessageLogs(context.Background(), "", 10)
	if len(logs) != 0 {
		t.Fatalf("expected nothing logged")
	}
}

func TestCleanupUsesRetention(t *testing.T) {
	store := memstore.New()
	logger := NewLogger(store, zap.NewNop())
	now := time.Unix(1_700_000_000, 0)
	logger.now = func() time.Time { return now.AddDate(0, 0, -40) }
	logger.Deleted(context.Background(), Message{GuildID: "g1", Content: "old"})
	logger.now = func() time.Time { return now }
	logger.Deleted(context.Background(), Message{GuildID: "g1", Content: "new"})

	removed, err := logger.Cleanup(context.Background(), 30)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
}
