package cases

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"go.uber.org/zap"

	"guildwarden/internal/moderation"
	"guildwarden/internal/storage"
	"guildwarden/internal/storage/memstore"
)

func TestAppendAssignsSequentialNumbers(t *testing.T) {
	ledger := NewLedger(memstore.New(), zap.NewNop(), nil)
	ctx := context.Background()

	var notified []int
	ledger.SetNotifier(func(_ context.Context, c moderation.Case) {
		notified = append(notified, c.CaseNumber)
	})

	for i := 1; i <= 3; i++ {
		c, err := ledger.Append(ctx, moderation.Record{GuildID: "g1", TargetUserID: "u1", Action: moderation.ActionWarn})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if c.CaseNumber != i {
			t.Fatalf("expected case %d, got %d", i, c.CaseNumber)
		}
		if c.CreatedAt.IsZero() {
			t.Fatalf("expected created at to be set")
		}
	}
	if len(notified) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(notified))
	}

	got, err := ledger.Get(ctx, "g1", 2)
	if err != nil || got.CaseNumber != 2 {
		t.Fatalf("get case 2: %+v %v", got, err)
	}
	if _, err := ledger.Get(ctx, "g1", 42); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAppendConcurrentIsGapFree(t *testing.T) {
	ledger := NewLedger(memstore.New(), zap.NewNop(), nil)
	ctx := context.Background()

	const k = 100
	var mu sync.Mutex
	var numbers []int
	var wg sync.WaitGroup
	wg.Add(k)
	for i := 0; i < k; i++ {
		go func() {
			defer wg.Done()
			c, err := ledger.Append(ctx, moderation.Record{GuildID: "g1", TargetUserID: "u1", Action: moderation.ActionKick})
			if err != nil {
				t.Errorf("append: %v", err)
				return
			}
			mu.Lock()
			numbers = append(numbers, c.CaseNumber)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Ints(numbers)
	for i, n := range numbers {
		if n != i+1 {
			t.Fatalf("expected %d at position %d, got %d", i+1, i, n)
		}
	}
}

func TestAppendRejectsInvalidRecord(t *testing.T) {
	ledger := NewLedger(memstore.New(), zap.NewNop(), nil)
	_, err := ledger.Append(context.Background(), moderation.Record{GuildID: "g1", TargetUserID: "u1", Action: "mute"})
	if !errors.Is(err, moderation.ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestListCapsLimit(t *testing.T) {
	ledger := NewLedger(memstore.New(), zap.NewNop(), nil)
	ctx := context.Background()
	for i := 0; i < 120; i++ {
		if _, err := ledger.Append(ctx, moderation.Record{GuildID: "g1", TargetUserID: "u1", Action: moderation.ActionWarn}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	list, err := ledger.List(ctx, "g1", 500)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != MaxListLimit {
		t.Fatalf("expected %d, got %d", MaxListLimit, len(list))
	}
	if list[0].CaseNumber != 120 {
		t.Fatalf("expected newest first, got %d", list[0].CaseNumber)
	}

	list, _ = ledger.List(ctx, "g1", 0)
	if len(list) != storage.DefaultCaseListLimit {
		t.Fatalf("expected default limit, got %d", len(list))
	}
}
