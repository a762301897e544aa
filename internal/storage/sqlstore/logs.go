package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"guildwarden/internal/storage"
)

func (s *Store) AddWarning(ctx context.Context, warning storage.Warning) (storage.Warning, error) {
	if warning.ID == "" {
		warning.ID = uuid.NewString()
	}
	if warning.CreatedAt.IsZero() {
		warning.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_warnings (id, guild_id, user_id, moderator_id, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		warning.ID, warning.GuildID, warning.UserID, warning.ModeratorID, warning.Reason, millis(warning.CreatedAt))
	if err != nil {
		return storage.Warning{}, fmt.Errorf("add warning: %w", err)
	}
	warning.CreatedAt = fromMillis(millis(warning.CreatedAt))
	return warning, nil
}

func (s *Store) ListWarnings(ctx context.Context, guildID, userID string, limit int) ([]storage.Warning, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, guild_id, user_id, moderator_id, reason, created_at
		FROM user_warnings
		WHERE guild_id = $1 AND user_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3`, guildID, userID, storage.ClampLimit(limit, storage.DefaultWarningListLimit))
	if err != nil {
		return nil, fmt.Errorf("list warnings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var warnings []storage.Warning
	for rows.Next() {
		var w storage.Warning
		var created int64
		if err := rows.Scan(&w.ID, &w.GuildID, &w.UserID, &w.ModeratorID, &w.Reason, &created); err != nil {
			return nil, fmt.Errorf("scan warning: %w", err)
		}
		w.CreatedAt = fromMillis(created)
		warnings = append(warnings, w)
	}
	return warnings, rows.Err()
}

func (s *Store) AddMessageLog(ctx context.Context, entry storage.MessageLog) (storage.MessageLog, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_logs (id, guild_id, channel_id, message_id, user_id, content, action, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.GuildID, entry.ChannelID, entry.MessageID, entry.UserID, entry.Content, string(entry.Action), millis(entry.CreatedAt))
	if err != nil {
		return storage.MessageLog{}, fmt.Errorf("add message log: %w", err)
	}
	entry.CreatedAt = fromMillis(millis(entry.CreatedAt))
	return entry, nil
}

func (s *Store) ListMessageLogs(ctx context.Context, guildID string, limit int) ([]storage.MessageLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, guild_id, channel_id, message_id, user_id, content, action, created_at
		FROM message_logs
		WHERE guild_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, guildID, storage.ClampLimit(limit, storage.DefaultMessageLogLimit))
	if err != nil {
		return nil, fmt.Errorf("list message logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var logs []storage.MessageLog
	for rows.Next() {
		var entry storage.MessageLog
		var action string
		var created int64
		if err := rows.Scan(&entry.ID, &entry.GuildID, &entry.ChannelID, &entry.MessageID, &entry.UserID, &entry.Content, &action, &created); err != nil {
			return nil, fmt.Errorf("scan message log: %w", err)
		}
		entry.Action = storage.MessageAction(action)
		entry.CreatedAt = fromMillis(created)
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CleanupMessageLogs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM message_logs WHERE created_at < $1`, millis(before))
	if err != nil {
		return 0, fmt.Errorf("cleanup message logs: %w", err)
	}
	return res.RowsAffected()
}
