package tickets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"guildwarden/internal/cases"
	"guildwarden/internal/moderation"
	"guildwarden/internal/storage"
)

var (
	ErrNoCategory  = errors.New("ticket category not configured")
	ErrAlreadyOpen = errors.New("user already has an open ticket")
	ErrNotTicket   = errors.New("channel is not an open ticket")
)

const (
	ButtonCreate   = "create_ticket"
	ButtonClose    = "close_ticket"
	DefaultSubject = "Support Request"

	// Discord caps channel names at 100 characters.
	maxChannelName = 100
)

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

type realTimer struct{ t *time.Timer }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

func (t realTimer) Stop() bool { return t.t.Stop() }

type ChannelRequest struct {
	GuildID      string
	CategoryID   string
	Name         string
	OwnerID      string
	StaffRoleIDs []string
}

// Channels creates and removes ticket channels on the platform.
type Channels interface {
	CreateTicketChannel(ctx context.Context, req ChannelRequest) (string, error)
	DeleteChannel(ctx context.Context, channelID string) error
}

type Service struct {
	store      storage.TicketStore
	configs    storage.ConfigStore
	ledger     *cases.Ledger
	channels   Channels
	clock      Clock
	closeDelay time.Duration
	logger     *zap.Logger
}

func New(store storage.TicketStore, configs storage.ConfigStore, ledger *cases.Ledger, channels Channels, closeDelay time.Duration, logger *zap.Logger) *Service {
	return &Service{
		store:      store,
		configs:    configs,
		ledger:     ledger,
		channels:   channels,
		clock:      realClock{},
		closeDelay: closeDelay,
		logger:     logger,
	}
}

func (s *Service) WithClock(clock Clock) {
	s.clock = clock
}

func (s *Service) Open(ctx context.Context, guildID, userID, username string) (storage.Ticket, error) {
	cfg, err := s.configs.GetServerConfig(ctx, guildID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && cfg.TicketCategoryID == "") {
		return storage.Ticket{}, ErrNoCategory
	}
	if err != nil {
		return storage.Ticket{}, err
	}

	if existing, err := s.store.GetOpenTicket(ctx, guildID, userID); err == nil {
		return existing, ErrAlreadyOpen
	} else if !errors.Is(err, storage.ErrNotFound) {
		return storage.Ticket{}, err
	}

	staff := append(append([]string(nil), cfg.ModeratorRoleIDs...), cfg.AdminRoleIDs...)
	channelID, err := s.channels.CreateTicketChannel(ctx, ChannelRequest{
		GuildID:      guildID,
		CategoryID:   cfg.TicketCategoryID,
		Name:         ChannelName(username),
		OwnerID:      userID,
		StaffRoleIDs: staff,
	})
	if err != nil {
		return storage.Ticket{}, fmt.Errorf("create ticket channel: %w", err)
	}

	ticket, err := s.store.CreateTicket(ctx, storage.Ticket{
		GuildID:   guildID,
		ChannelID: channelID,
		UserID:    userID,
		Subject:   DefaultSubject,
		CreatedAt: s.clock.Now(),
	})
	if err != nil {
		if delErr := s.channels.DeleteChannel(ctx, channelID); delErr != nil {
			s.logger.Warn("orphan ticket channel", zap.String("channel_id", channelID), zap.Error(delErr))
		}
		if errors.Is(err, storage.ErrConflict) {
			return storage.Ticket{}, ErrAlreadyOpen
		}
		return storage.Ticket{}, err
	}
	s.logger.Info("ticket opened", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.String("channel_id", channelID))
	return ticket, nil
}

// Close marks the ticket closed, records a case and deletes the channel
// after the configured delay.
func (s *Service) Close(ctx context.Context, channelID, actorID string) (storage.Ticket, error) {
	ticket, err := s.store.GetTicketByChannel(ctx, channelID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Ticket{}, ErrNotTicket
	}
	if err != nil {
		return storage.Ticket{}, err
	}
	if ticket.Status != storage.TicketOpen {
		return ticket, ErrNotTicket
	}

	closed, err := s.store.CloseTicket(ctx, ticket.ID, s.clock.Now())
	if errors.Is(err, storage.ErrNotFound) {
		return ticket, ErrNotTicket
	}
	if err != nil {
		return storage.Ticket{}, err
	}

	if _, err := s.ledger.Append(ctx, moderation.Record{
		GuildID:         ticket.GuildID,
		TargetUserID:    ticket.UserID,
		ModeratorUserID: actorID,
		Action:          moderation.ActionTicketClose,
		Reason:          fmt.Sprintf("Ticket closed: %s", ticket.Subject),
	}); err != nil {
		s.logger.Warn("ticket close case not recorded", zap.String("ticket_id", ticket.ID), zap.Error(err))
	}

	s.clock.AfterFunc(s.closeDelay, func() {
		if err := s.channels.DeleteChannel(context.Background(), channelID); err != nil {
			s.logger.Warn("ticket channel delete failed", zap.String("channel_id", channelID), zap.Error(err))
		}
	})
	return closed, nil
}

func ChannelName(username string) string {
	var b strings.Builder
	b.WriteString("ticket-")
	for _, r := range strings.ToLower(username) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('-')
		}
	}
	name := b.String()
	if name == "ticket-" {
		name += "user"
	}
	if runes := []rune(name); len(runes) > maxChannelName {
		name = string(runes[:maxChannelName])
	}
	return name
}
