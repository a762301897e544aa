package cases

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"guildwarden/internal/metrics"
	"guildwarden/internal/moderation"
	"guildwarden/internal/storage"
)

const MaxListLimit = 100

// Ledger is the per-guild moderation case log.
type Ledger struct {
	store   storage.CaseStore
	logger  *zap.Logger
	metrics *metrics.Recorder
	now     func() time.Time
	notify  func(context.Context, moderation.Case)
}

func NewLedger(store storage.CaseStore, logger *zap.Logger, recorder *metrics.Recorder) *Ledger {
	return &Ledger{store: store, logger: logger, metrics: recorder, now: time.Now}
}

// SetNotifier registers a callback invoked after every successful append.
func (l *Ledger) SetNotifier(notify func(context.Context, moderation.Case)) {
	l.notify = notify
}

func (l *Ledger) NextCaseNumber(ctx context.Context, guildID string) (int, error) {
	return l.store.NextCaseNumber(ctx, guildID)
}

func (l *Ledger) Append(ctx context.Context, record moderation.Record) (moderation.Case, error) {
	if err := record.Validate(); err != nil {
		return moderation.Case{}, fmt.Errorf("append case: %w", err)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = l.now()
	}

	c, err := l.store.AppendCase(ctx, record)
	if err != nil {
		l.logger.Error("case append failed",
			zap.String("guild_id", record.GuildID),
			zap.String("user_id", record.TargetUserID),
			zap.String("action", record.Action.String()),
			zap.Error(err),
		)
		return moderation.Case{}, err
	}

	l.metrics.CaseWritten(ctx, c.Action.String())
	l.logger.Info("case recorded",
		zap.String("guild_id", c.GuildID),
		zap.Int("case", c.CaseNumber),
		zap.String("user_id", c.TargetUserID),
		zap.String("action", c.Action.String()),
	)
	if l.notify != nil {
		l.notify(ctx, c)
	}
	return c, nil
}

func (l *Ledger) Get(ctx context.Context, guildID string, caseNumber int) (moderation.Case, error) {
	return l.store.GetCase(ctx, guildID, caseNumber)
}

// List returns the newest cases first.
func (l *Ledger) List(ctx context.Context, guildID string, limit int) ([]moderation.Case, error) {
	limit = storage.ClampLimit(limit, storage.DefaultCaseListLimit)
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return l.store.ListCases(ctx, guildID, limit)
}
