package moderation

import (
	"context"
	"time"
)

const DefaultMaxMessagesPerMinute = 10

// Policy is the per-guild snapshot the spam pipeline reads on each event.
type Policy struct {
	EnableSpamProtection bool
	MaxMessagesPerMinute int
	ModeratorRoleIDs     []string
	AdminRoleIDs         []string
}

func (p Policy) MaxMessages() int {
	if p.MaxMessagesPerMinute <= 0 {
		return DefaultMaxMessagesPerMinute
	}
	return p.MaxMessagesPerMinute
}

// PolicySource returns ok=false when a guild has no stored configuration.
type PolicySource interface {
	GetPolicy(ctx context.Context, guildID string) (Policy, bool, error)
}

type MessageEvent struct {
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	Username  string
	Content   string
	Timestamp time.Time
}

// Sanctions applies decisions on the chat platform.
type Sanctions interface {
	Timeout(ctx context.Context, guildID, userID string, minutes int, reason string) error
	Kick(ctx context.Context, guildID, userID, reason string) error
	DeleteRecentMessages(ctx context.Context, guildID, channelID, userID string, count int) (int, error)
	Notify(ctx context.Context, channelID, content string) error
}
