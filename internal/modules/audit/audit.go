package audit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"guildwarden/internal/storage"
)

// Logger records deleted and edited messages.
type Logger struct {
	store  storage.MessageLogStore
	logger *zap.Logger
	now    func() time.Time
}

func NewLogger(store storage.MessageLogStore, logger *zap.Logger) *Logger {
	return &Logger{store: store, logger: logger, now: time.Now}
}

type Message struct {
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	Content   string
}

func (l *Logger) Deleted(ctx context.Context, msg Message) {
	l.log(ctx, msg, storage.MessageDeleted, msg.Content)
}

// Edited records an edit; unchanged content (embed refreshes) is skipped.
func (l *Logger) Edited(ctx context.Context, msg Message, before string) {
	if before == msg.Content {
		return
	}
	l.log(ctx, msg, storage.MessageEdited, EditContent(before, msg.Content))
}

func EditContent(before, after string) string {
	return fmt.Sprintf("Old: %s | New: %s", before, after)
}

func (l *Logger) Recent(ctx context.Context, guildID string, limit int) ([]storage.MessageLog, error) {
	return l.store.ListMessageLogs(ctx, guildID, limit)
}

// Cleanup drops entries older than the retention window.
func (l *Logger) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	return l.store.CleanupMessageLogs(ctx, l.now().AddDate(0, 0, -retentionDays))
}

func (l *Logger) log(ctx context.Context, msg Message, action storage.MessageAction, content string) {
	if msg.GuildID == "" {
		return
	}
	entry := storage.MessageLog{
		GuildID:   msg.GuildID,
		ChannelID: msg.ChannelID,
		MessageID: msg.MessageID,
		UserID:    msg.UserID,
		Content:   content,
		Action:    action,
		CreatedAt: l.now(),
	}
	if l.store != nil {
		if _, err := l.store.AddMessageLog(ctx, entry); err != nil {
			l.logger.Warn("message log write failed", zap.String("guild_id", msg.GuildID), zap.Error(err))
		}
	}
	l.logger.Info("audit", zap.String("action", string(action)), zap.String("guild_id", msg.GuildID), zap.String("channel_id", msg.ChannelID), zap.String("user_id", msg.UserID))
}
