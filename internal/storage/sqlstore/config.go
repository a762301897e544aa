package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"guildwarden/internal/storage"
)

func (s *Store) GetServerConfig(ctx context.Context, guildID string) (storage.ServerConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT guild_id, name, welcome_channel_id, welcome_message, goodbye_message, auto_role_id,
		moderation_log_channel_id, announcement_channel_id, ticket_category_id,
		moderator_role_ids, admin_role_ids, enable_spam_protection, max_messages_per_minute,
		created_at, updated_at
		FROM server_configs WHERE guild_id = $1`, guildID)

	var cfg storage.ServerConfig
	var modRoles, adminRoles string
	var spam int
	var created, updated int64
	err := row.Scan(
		&cfg.GuildID,
		&cfg.Name,
		&cfg.WelcomeChannelID,
		&cfg.WelcomeMessage,
		&cfg.GoodbyeMessage,
		&cfg.AutoRoleID,
		&cfg.ModerationLogChannelID,
		&cfg.AnnouncementChannelID,
		&cfg.TicketCategoryID,
		&modRoles,
		&adminRoles,
		&spam,
		&cfg.MaxMessagesPerMinute,
		&created,
		&updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ServerConfig{}, storage.ErrNotFound
		}
		return storage.ServerConfig{}, fmt.Errorf("get server config: %w", err)
	}
	cfg.ModeratorRoleIDs = splitIDs(modRoles)
	cfg.AdminRoleIDs = splitIDs(adminRoles)
	cfg.EnableSpamProtection = spam == 1
	cfg.CreatedAt = fromMillis(created)
	cfg.UpdatedAt = fromMillis(updated)
	return cfg, nil
}

func (s *Store) UpsertServerConfig(ctx context.Context, cfg storage.ServerConfig) (storage.ServerConfig, error) {
	now := s.now()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO server_configs (
			guild_id, name, welcome_channel_id, welcome_message, goodbye_message, auto_role_id,
			moderation_log_channel_id, announcement_channel_id, ticket_category_id,
			moderator_role_ids, admin_role_ids, enable_spam_protection, max_messages_per_minute,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (guild_id) DO UPDATE SET
			name = excluded.name,
			welcome_channel_id = excluded.welcome_channel_id,
			welcome_message = excluded.welcome_message,
			goodbye_message = excluded.goodbye_message,
			auto_role_id = excluded.auto_role_id,
			moderation_log_channel_id = excluded.moderation_log_channel_id,
			announcement_channel_id = excluded.announcement_channel_id,
			ticket_category_id = excluded.ticket_category_id,
			moderator_role_ids = excluded.moderator_role_ids,
			admin_role_ids = excluded.admin_role_ids,
			enable_spam_protection = excluded.enable_spam_protection,
			max_messages_per_minute = excluded.max_messages_per_minute,
			updated_at = excluded.updated_at
	`,
		cfg.GuildID,
		cfg.Name,
		cfg.WelcomeChannelID,
		cfg.WelcomeMessage,
		cfg.GoodbyeMessage,
		cfg.AutoRoleID,
		cfg.ModerationLogChannelID,
		cfg.AnnouncementChannelID,
		cfg.TicketCategoryID,
		joinIDs(cfg.ModeratorRoleIDs),
		joinIDs(cfg.AdminRoleIDs),
		boolToInt(cfg.EnableSpamProtection),
		cfg.MaxMessagesPerMinute,
		millis(cfg.CreatedAt),
		millis(cfg.UpdatedAt),
	)
	if err != nil {
		return storage.ServerConfig{}, fmt.Errorf("upsert server config: %w", err)
	}
	return s.GetServerConfig(ctx, cfg.GuildID)
}
