package analytics

import (
	"context"
	"time"

	"guildwarden/internal/moderation"
)

// CaseLister is satisfied by the case ledger.
type CaseLister interface {
	List(ctx context.Context, guildID string, limit int) ([]moderation.Case, error)
}

type Service struct {
	cases CaseLister
	limit int
}

func New(cases CaseLister, limit int) *Service {
	return &Service{cases: cases, limit: limit}
}

type Report struct {
	Total    int
	ByAction map[moderation.Action]int
	Since    time.Time
}

// Report summarizes recent cases. A zero since counts every listed case.
func (s *Service) Report(ctx context.Context, guildID string, since time.Time) (Report, error) {
	list, err := s.cases.List(ctx, guildID, s.limit)
	if err != nil {
		return Report{}, err
	}

	report := Report{ByAction: make(map[moderation.Action]int), Since: since}
	for _, c := range list {
		if !since.IsZero() && c.CreatedAt.Before(since) {
			continue
		}
		report.Total++
		report.ByAction[c.Action]++
	}
	return report, nil
}
