package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"guildwarden/internal/moderation"
	"guildwarden/internal/storage"
)

const appendCaseAttempts = 3

const caseColumns = `id, guild_id, case_number, target_user_id, moderator_user_id, action, reason, duration_minutes, created_at`

func (s *Store) NextCaseNumber(ctx context.Context, guildID string) (int, error) {
	var next int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(
			(SELECT last_case FROM case_counters WHERE guild_id = $1),
			(SELECT COALESCE(MAX(case_number), 0) FROM moderation_cases WHERE guild_id = $1)
		) + 1`, guildID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next case number: %w", err)
	}
	return next, nil
}

// AppendCase bumps the guild counter and inserts the case in one
// transaction. The UNIQUE(guild_id, case_number) constraint backs it up;
// a conflict is retried a bounded number of times.
func (s *Store) AppendCase(ctx context.Context, record moderation.Record) (moderation.Case, error) {
	if err := record.Validate(); err != nil {
		return moderation.Case{}, err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}

	var lastErr error
	for attempt := 0; attempt < appendCaseAttempts; attempt++ {
		c, err := s.appendCaseTx(ctx, record)
		if err == nil {
			return c, nil
		}
		if !isUniqueViolation(err) {
			return moderation.Case{}, err
		}
		lastErr = err
	}
	return moderation.Case{}, fmt.Errorf("append case: %w: %v", storage.ErrConflict, lastErr)
}

func (s *Store) appendCaseTx(ctx context.Context, record moderation.Record) (c moderation.Case, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return moderation.Case{}, fmt.Errorf("begin append case: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var number int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO case_counters (guild_id, last_case)
		VALUES ($1, (SELECT COALESCE(MAX(case_number), 0) FROM moderation_cases WHERE guild_id = $1) + 1)
		ON CONFLICT (guild_id) DO UPDATE SET last_case = case_counters.last_case + 1
		RETURNING last_case`, record.GuildID).Scan(&number)
	if err != nil {
		return moderation.Case{}, fmt.Errorf("allocate case number: %w", err)
	}

	var duration sql.NullInt64
	if record.DurationMinutes != nil {
		duration = sql.NullInt64{Int64: int64(*record.DurationMinutes), Valid: true}
	}

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO moderation_cases (`+caseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id,
		record.GuildID,
		number,
		record.TargetUserID,
		record.ModeratorUserID,
		string(record.Action),
		nullString(record.Reason),
		duration,
		millis(record.CreatedAt),
	)
	if err != nil {
		return moderation.Case{}, fmt.Errorf("insert case: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return moderation.Case{}, fmt.Errorf("commit case: %w", err)
	}

	record.CreatedAt = fromMillis(millis(record.CreatedAt))
	return moderation.Case{ID: id, CaseNumber: number, Record: record}, nil
}

func (s *Store) GetCase(ctx context.Context, guildID string, caseNumber int) (moderation.Case, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+caseColumns+`
		FROM moderation_cases
		WHERE guild_id = $1 AND case_number = $2`, guildID, caseNumber)
	c, err := scanCase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return moderation.Case{}, storage.ErrNotFound
		}
		return moderation.Case{}, fmt.Errorf("get case: %w", err)
	}
	return c, nil
}

func (s *Store) ListCases(ctx context.Context, guildID string, limit int) ([]moderation.Case, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+caseColumns+`
		FROM moderation_cases
		WHERE guild_id = $1
		ORDER BY created_at DESC, case_number DESC
		LIMIT $2`, guildID, storage.ClampLimit(limit, storage.DefaultCaseListLimit))
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cases []moderation.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCase(row scanner) (moderation.Case, error) {
	var c moderation.Case
	var action string
	var reason sql.NullString
	var duration sql.NullInt64
	var created int64
	if err := row.Scan(&c.ID, &c.GuildID, &c.CaseNumber, &c.TargetUserID, &c.ModeratorUserID, &action, &reason, &duration, &created); err != nil {
		return moderation.Case{}, err
	}
	c.Action = moderation.Action(action)
	c.Reason = reason.String
	if duration.Valid {
		c.DurationMinutes = moderation.Minutes(int(duration.Int64))
	}
	c.CreatedAt = fromMillis(created)
	return c, nil
}
