package storage

import (
	"context"
	"errors"
	"time"

	"guildwarden/internal/moderation"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

type ServerConfig struct {
	GuildID                string
	Name                   string
	WelcomeChannelID       string
	WelcomeMessage         string
	GoodbyeMessage         string
	AutoRoleID             string
	ModerationLogChannelID string
	AnnouncementChannelID  string
	TicketCategoryID       string
	ModeratorRoleIDs       []string
	AdminRoleIDs           []string
	EnableSpamProtection   bool
	MaxMessagesPerMinute   int
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func DefaultServerConfig(guildID, name string) ServerConfig {
	return ServerConfig{
		GuildID:              guildID,
		Name:                 name,
		WelcomeMessage:       "Welcome {user} to {server}! You are member #{membercount}.",
		GoodbyeMessage:       "{username} has left {server}.",
		EnableSpamProtection: true,
		MaxMessagesPerMinute: moderation.DefaultMaxMessagesPerMinute,
	}
}

func (c ServerConfig) Policy() moderation.Policy {
	return moderation.Policy{
		EnableSpamProtection: c.EnableSpamProtection,
		MaxMessagesPerMinute: c.MaxMessagesPerMinute,
		ModeratorRoleIDs:     append([]string(nil), c.ModeratorRoleIDs...),
		AdminRoleIDs:         append([]string(nil), c.AdminRoleIDs...),
	}
}

type CustomCommand struct {
	ID          string
	GuildID     string
	Name        string
	Description string
	Response    string
	CreatedBy   string
	CreatedAt   time.Time
}

type TicketStatus string

const (
	TicketOpen   TicketStatus = "open"
	TicketClosed TicketStatus = "closed"
)

type Ticket struct {
	ID        string
	GuildID   string
	ChannelID string
	UserID    string
	Subject   string
	Status    TicketStatus
	CreatedAt time.Time
	ClosedAt  *time.Time
}

type Warning struct {
	ID          string
	GuildID     string
	UserID      string
	ModeratorID string
	Reason      string
	CreatedAt   time.Time
}

type MessageAction string

const (
	MessageDeleted MessageAction = "deleted"
	MessageEdited  MessageAction = "edited"
)

type MessageLog struct {
	ID        string
	GuildID   string
	ChannelID string
	MessageID string
	UserID    string
	Content   string
	Action    MessageAction
	CreatedAt time.Time
}

type ConfigStore interface {
	// GetServerConfig returns ErrNotFound when the guild was never configured.
	GetServerConfig(ctx context.Context, guildID string) (ServerConfig, error)
	UpsertServerConfig(ctx context.Context, cfg ServerConfig) (ServerConfig, error)
}

// CaseStore assigns per-guild case numbers atomically with the insert.
type CaseStore interface {
	NextCaseNumber(ctx context.Context, guildID string) (int, error)
	AppendCase(ctx context.Context, record moderation.Record) (moderation.Case, error)
	GetCase(ctx context.Context, guildID string, caseNumber int) (moderation.Case, error)
	ListCases(ctx context.Context, guildID string, limit int) ([]moderation.Case, error)
}

type WarningStore interface {
	AddWarning(ctx context.Context, warning Warning) (Warning, error)
	ListWarnings(ctx context.Context, guildID, userID string, limit int) ([]Warning, error)
}

type TicketStore interface {
	// CreateTicket returns ErrConflict when the user already has an open ticket.
	CreateTicket(ctx context.Context, ticket Ticket) (Ticket, error)
	GetTicketByChannel(ctx context.Context, channelID string) (Ticket, error)
	GetOpenTicket(ctx context.Context, guildID, userID string) (Ticket, error)
	ListTickets(ctx context.Context, guildID string) ([]Ticket, error)
	CloseTicket(ctx context.Context, ticketID string, at time.Time) (Ticket, error)
}

type CommandStore interface {
	// CreateCustomCommand returns ErrConflict when the name is taken in the guild.
	CreateCustomCommand(ctx context.Context, cmd CustomCommand) (CustomCommand, error)
	GetCustomCommand(ctx context.Context, guildID, name string) (CustomCommand, error)
	ListCustomCommands(ctx context.Context, guildID string) ([]CustomCommand, error)
	DeleteCustomCommand(ctx context.Context, guildID, name string) error
}

type MessageLogStore interface {
	AddMessageLog(ctx context.Context, entry MessageLog) (MessageLog, error)
	ListMessageLogs(ctx context.Context, guildID string, limit int) ([]MessageLog, error)
	CleanupMessageLogs(ctx context.Context, before time.Time) (int64, error)
}

type Store interface {
	ConfigStore
	CaseStore
	WarningStore
	TicketStore
	CommandStore
	MessageLogStore
	Close() error
}

const (
	DefaultCaseListLimit    = 50
	DefaultMessageLogLimit  = 100
	DefaultWarningListLimit = 10
)

// ClampLimit applies a default for non-positive limits.
func ClampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return limit
}
