package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"guildwarden/internal/moderation"
)

type stubLister struct {
	cases []moderation.Case
	err   error
	limit int
}

func (s *stubLister) List(_ context.Context, _ string, limit int) ([]moderation.Case, error) {
	s.limit = limit
	return s.cases, s.err
}

func TestReport(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	lister := &stubLister{cases: []moderation.Case{
		{CaseNumber: 3, Record: moderation.Record{Action: moderation.ActionKick, CreatedAt: now}},
		{CaseNumber: 2, Record: moderation.Record{Action: moderation.ActionWarn, CreatedAt: now.Add(-time.Hour)}},
		{CaseNumber: 1, Record: moderation.Record{Action: moderation.ActionWarn, CreatedAt: now.Add(-48 * time.Hour)}},
	}}
	service := New(lister, 100)

	all, err := service.Report(context.Background(), "g1", time.Time{})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if all.Total != 3 || all.ByAction[moderation.ActionWarn] != 2 || lister.limit != 100 {
		t.Fatalf("unexpected report %+v", all)
	}

	recent, _ := service.Report(context.Background(), "g1", now.Add(-24*time.Hour))
	if recent.Total != 2 || recent.ByAction[moderation.ActionWarn] != 1 || recent.ByAction[moderation.ActionKick] != 1 {
		t.Fatalf("unexpected recent report %+v", recent)
	}
}

func TestReportError(t *testing.T) {
	service := New(&stubLister{err: errors.New("db down")}, 10)
	if _, err := service.Report(context.Background(), "g1", time.Time{}); err == nil {
		t.Fatalf("expected error")
	}
}
