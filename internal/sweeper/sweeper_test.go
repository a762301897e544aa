package sweeper

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"guildwarden/internal/escalation"
	"guildwarden/internal/ratewindow"
)

type stubCleaner struct {
	days  int
	calls int
}

func (s *stubCleaner) Cleanup(_ context.Context, retentionDays int) (int64, error) {
	s.calls++
	s.days = retentionDays
	return 3, nil
}

func TestSweepOnce(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	tracker := ratewindow.NewMemoryTracker()
	if _, err := tracker.Record(context.Background(), "g1", "u1", start, time.Minute, 10); err != nil {
		t.Fatalf("record: %v", err)
	}
	engine := escalation.NewEngine(escalation.Config{}, nil)
	engine.Escalate("g1", "u1", 11)

	s := New(Config{SweepSchedule: "@every 5m"}, tracker, engine, nil, zap.NewNop(), nil)
	s.now = func() time.Time { return start.Add(5 * time.Minute) }
	s.SweepOnce(context.Background())

	if tracker.Len() != 0 {
		t.Fatalf("expected stale window removed, got %d", tracker.Len())
	}
	if engine.Strikes("g1", "u1") != 0 {
		t.Fatalf("expected strikes cleared")
	}
}

func TestCleanupOnce(t *testing.T) {
	cleaner := &stubCleaner{}
	s := New(Config{RetentionDays: 30}, nil, nil, cleaner, zap.NewNop(), nil)
	s.CleanupOnce(context.Background())
	if cleaner.calls != 1 || cleaner.days != 30 {
		t.Fatalf("unexpected cleanup call %+v", cleaner)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := New(Config{SweepSchedule: "not a schedule"}, nil, nil, nil, zap.NewNop(), nil)
	if err := s.Start(); err == nil {
		t.Fatalf("expected schedule error")
	}
}

func TestStartStop(t *testing.T) {
	s := New(Config{SweepSchedule: "@every 1h", CleanupSchedule: "@daily", RetentionDays: 30}, nil, nil, &stubCleaner{}, zap.NewNop(), nil)
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
