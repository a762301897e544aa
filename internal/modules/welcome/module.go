package welcome

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"guildwarden/internal/storage"
)

type Guild struct {
	ID          string
	Name        string
	MemberCount int
}

type Member struct {
	UserID   string
	Username string
}

type Kind int

const (
	Join Kind = iota
	Leave
)

// Actions performs the platform calls for member events.
type Actions interface {
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	Announce(ctx context.Context, channelID string, kind Kind, content string) error
}

type Module struct {
	configs storage.ConfigStore
	actions Actions
	logger  *zap.Logger
}

func New(configs storage.ConfigStore, actions Actions, logger *zap.Logger) *Module {
	return &Module{configs: configs, actions: actions, logger: logger}
}

func (m *Module) HandleJoin(ctx context.Context, guild Guild, member Member) {
	cfg, ok := m.config(ctx, guild.ID)
	if !ok {
		return
	}

	if cfg.AutoRoleID != "" {
		if err := m.actions.AddRole(ctx, guild.ID, member.UserID, cfg.AutoRoleID); err != nil {
			m.logger.Warn("auto role failed", zap.String("guild_id", guild.ID), zap.String("user_id", member.UserID), zap.Error(err))
		}
	}
	if cfg.WelcomeChannelID != "" && cfg.WelcomeMessage != "" {
		content := Render(cfg.WelcomeMessage, guild, member)
		if err := m.actions.Announce(ctx, cfg.WelcomeChannelID, Join, content); err != nil {
			m.logger.Warn("welcome message failed", zap.String("guild_id", guild.ID), zap.Error(err))
		}
	}
}

func (m *Module) HandleLeave(ctx context.Context, guild Guild, member Member) {
	cfg, ok := m.config(ctx, guild.ID)
	if !ok || cfg.WelcomeChannelID == "" || cfg.GoodbyeMessage == "" {
		return
	}
	content := Render(cfg.GoodbyeMessage, guild, member)
	if err := m.actions.Announce(ctx, cfg.WelcomeChannelID, Leave, content); err != nil {
		m.logger.Warn("goodbye message failed", zap.String("guild_id", guild.ID), zap.Error(err))
	}
}

func (m *Module) config(ctx context.Context, guildID string) (storage.ServerConfig, bool) {
	cfg, err := m.configs.GetServerConfig(ctx, guildID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.logger.Warn("server config lookup failed", zap.String("guild_id", guildID), zap.Error(err))
		}
		return storage.ServerConfig{}, false
	}
	return cfg, true
}

// Render fills {user}, {username}, {server} and {membercount}.
func Render(template string, guild Guild, member Member) string {
	replacer := strings.NewReplacer(
		"{user}", "<@"+member.UserID+">",
		"{username}", member.Username,
		"{server}", guild.Name,
		"{membercount}", strconv.Itoa(guild.MemberCount),
	)
	return replacer.Replace(template)
}
