package escalation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"guildwarden/internal/moderation"
)

type fakeClock struct{ now time.Time }

func (f fakeClock) Now() time.Time { return f.now }

type fakeRecorder struct {
	mu      sync.Mutex
	records []moderation.Record
	err     error
}

func (f *fakeRecorder) Append(_ context.Context, record moderation.Record) (moderation.Case, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return moderation.Case{}, f.err
	}
	f.records = append(f.records, record)
	return moderation.Case{CaseNumber: len(f.records), Record: record}, nil
}

func TestEscalateLadder(t *testing.T) {
	engine := NewEngine(Config{}, nil)
	engine.WithClock(fakeClock{now: time.Unix(0, 0)})

	expected := []struct {
		action  moderation.Action
		purge   int
		timeout int
	}{
		{moderation.ActionWarn, 5, 0},
		{moderation.ActionTimeout, 10, 5},
		{moderation.ActionKick, 15, 0},
		{moderation.ActionWarn, 5, 0},
	}

	for i, want := range expected {
		d := engine.Escalate("g1", "u1", 6)
		if d.Action != want.action || d.MessagesToPurge != want.purge || d.TimeoutMinutes != want.timeout {
			t.Fatalf("call %d: unexpected decision %+v", i+1, d)
		}
	}
	if got := engine.Strikes("g1", "u1"); got != 1 {
		t.Fatalf("expected fresh ladder after kick, got %d strikes", got)
	}
}

func TestEscalateRemovesStateAfterKick(t *testing.T) {
	engine := NewEngine(Config{}, nil)
	for i := 0; i < MaxStrikes; i++ {
		engine.Escalate("g1", "u1", 11)
	}
	if got := engine.Strikes("g1", "u1"); got != 0 {
		t.Fatalf("expected state removed, got %d", got)
	}
}

func TestEscalateConcurrentNeverSkipsSteps(t *testing.T) {
	engine := NewEngine(Config{}, nil)

	const rounds = 100
	var mu sync.Mutex
	counts := make(map[moderation.Action]int)

	var wg sync.WaitGroup
	wg.Add(rounds * MaxStrikes)
	for i := 0; i < rounds*MaxStrikes; i++ {
		go func() {
			defer wg.Done()
			d := engine.Escalate("g1", "u1", 20)
			mu.Lock()
			counts[d.Action]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, action := range []moderation.Action{moderation.ActionWarn, moderation.ActionTimeout, moderation.ActionKick} {
		if counts[action] != rounds {
			t.Fatalf("expected %d %s decisions, got %d", rounds, action, counts[action])
		}
	}
}

func TestEscalateIsolatesGuilds(t *testing.T) {
	engine := NewEngine(Config{}, nil)
	for i := 0; i < 10; i++ {
		engine.Escalate("gB", "u1", 50)
	}
	if d := engine.Escalate("gA", "u1", 6); d.Action != moderation.ActionWarn {
		t.Fatalf("expected warn in guild A, got %s", d.Action)
	}
}

func TestSweepClearsAllStrikes(t *testing.T) {
	engine := NewEngine(Config{ResetMode: ResetSweep}, nil)
	engine.Escalate("g1", "u1", 6)
	engine.Escalate("g1", "u2", 6)
	engine.Escalate("g1", "u2", 6)

	if cleared := engine.Sweep(time.Now()); cleared != 2 {
		t.Fatalf("expected 2 cleared, got %d", cleared)
	}
	if d := engine.Escalate("g1", "u2", 6); d.Action != moderation.ActionWarn {
		t.Fatalf("expected warn after sweep, got %s", d.Action)
	}
}

func TestIdleResetPerUser(t *testing.T) {
	base := time.Unix(0, 0)
	engine := NewEngine(Config{ResetMode: ResetIdle, Cooldown: 10 * time.Minute}, nil)

	engine.WithClock(fakeClock{now: base})
	engine.Escalate("g1", "u1", 6)
	engine.WithClock(fakeClock{now: base.Add(8 * time.Minute)})
	engine.Escalate("g1", "u2", 6)

	if cleared := engine.Sweep(base.Add(11 * time.Minute)); cleared != 1 {
		t.Fatalf("expected only u1 cleared, got %d", cleared)
	}

	engine.WithClock(fakeClock{now: base.Add(12 * time.Minute)})
	if d := engine.Escalate("g1", "u2", 6); d.Action != moderation.ActionTimeout {
		t.Fatalf("expected u2 to keep its strike, got %s", d.Action)
	}

	engine.WithClock(fakeClock{now: base.Add(40 * time.Minute)})
	if d := engine.Escalate("g1", "u2", 6); d.Action != moderation.ActionWarn {
		t.Fatalf("expected lazy idle reset, got %s", d.Action)
	}
}

func TestCommitWritesRecord(t *testing.T) {
	recorder := &fakeRecorder{}
	engine := NewEngine(Config{TimeoutMinutes: 5}, recorder)
	engine.WithClock(fakeClock{now: time.Unix(100, 0)})

	engine.Escalate("g1", "u1", 6)
	d := engine.Escalate("g1", "u1", 7)
	got, err := engine.Commit(context.Background(), d, "bot")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got.Action != moderation.ActionTimeout || got.DurationMinutes == nil || *got.DurationMinutes != 5 {
		t.Fatalf("unexpected record %+v", got.Record)
	}
	if got.ModeratorUserID != "bot" || !strings.Contains(got.Reason, "7 messages/minute") {
		t.Fatalf("unexpected actor or reason: %+v", got.Record)
	}
}

func TestCommitFailureKeepsStrike(t *testing.T) {
	recorder := &fakeRecorder{err: errors.New("db down")}
	engine := NewEngine(Config{}, recorder)

	d := engine.Escalate("g1", "u1", 6)
	if _, err := engine.Commit(context.Background(), d, "bot"); err == nil {
		t.Fatalf("expected error")
	}
	if got := engine.Strikes("g1", "u1"); got != 1 {
		t.Fatalf("expected strike kept, got %d", got)
	}
}
