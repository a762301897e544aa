package bot

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"guildwarden/internal/analytics"
	"guildwarden/internal/cases"
	"guildwarden/internal/config"
	"guildwarden/internal/escalation"
	"guildwarden/internal/metrics"
	"guildwarden/internal/moderation"
	"guildwarden/internal/modules/antispam"
	"guildwarden/internal/modules/audit"
	"guildwarden/internal/modules/tickets"
	"guildwarden/internal/modules/welcome"
	"guildwarden/internal/policy"
	"guildwarden/internal/ratewindow"
	"guildwarden/internal/storage"
)

const messageCacheSize = 1000

type Deps struct {
	Store     storage.Store
	Ledger    *cases.Ledger
	Tracker   ratewindow.Tracker
	Engine    *escalation.Engine
	Audit     *audit.Logger
	Analytics *analytics.Service
	Metrics   *metrics.Recorder
}

type Bot struct {
	cfg       config.Config
	logger    *zap.Logger
	session   *discordgo.Session
	store     storage.Store
	ledger    *cases.Ledger
	audit     *audit.Logger
	analytics *analytics.Service
	platform  *platform
	antispam  *antispam.Module
	welcome   *welcome.Module
	tickets   *tickets.Service
	commands  []*command
	byName    map[string]*command
	started   time.Time
}

func New(cfg config.Config, logger *zap.Logger, deps Deps) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent
	session.State.MaxMessageCount = messageCacheSize

	p := newPlatform(session, cfg.Moderation.DeletePacePerSecond, logger)
	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		session:   session,
		store:     deps.Store,
		ledger:    deps.Ledger,
		audit:     deps.Audit,
		analytics: deps.Analytics,
		platform:  p,
		started:   time.Now(),
	}

	b.antispam = antispam.New(cfg.Spam.Window(), policy.NewSource(deps.Store), deps.Tracker, deps.Engine, p, logger, deps.Metrics)
	b.welcome = welcome.New(deps.Store, p, logger)
	b.tickets = tickets.New(deps.Store, deps.Store, deps.Ledger, p, cfg.Tickets.CloseDelay(), logger)
	b.commands = commandTable()
	b.byName = indexCommands(b.commands)
	deps.Ledger.SetNotifier(b.mirrorCase)

	return b, nil
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onGuildCreate)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onMessageUpdate)
	b.session.AddHandler(b.onMessageDelete)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onGuildMemberRemove)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}
	b.started = time.Now()

	return b.registerCommands()
}

func (b *Bot) Close() {
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.antispam.SetActorID(event.User.ID)
	b.logger.Info("discord ready", zap.String("user", event.User.Username), zap.Int("guilds", len(event.Guilds)))
}

// onGuildCreate stores a default configuration for guilds seen for the
// first time, which turns spam protection on.
func (b *Bot) onGuildCreate(session *discordgo.Session, event *discordgo.GuildCreate) {
	if event.Guild == nil || event.Guild.Unavailable {
		return
	}
	ctx := context.Background()
	_, err := b.store.GetServerConfig(ctx, event.Guild.ID)
	if err == nil {
		return
	}
	if !errors.Is(err, storage.ErrNotFound) {
		b.logger.Warn("server config lookup failed", zap.String("guild_id", event.Guild.ID), zap.Error(err))
		return
	}
	if _, err := b.store.UpsertServerConfig(ctx, b.defaultServerConfig(event.Guild.ID, event.Guild.Name)); err != nil {
		b.logger.Warn("server config init failed", zap.String("guild_id", event.Guild.ID), zap.Error(err))
		return
	}
	b.logger.Info("guild configured", zap.String("guild_id", event.Guild.ID), zap.String("name", event.Guild.Name))
}

func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil || msg.Author.Bot || msg.GuildID == "" {
		return
	}

	ctx := context.Background()
	out := b.antispam.HandleMessage(ctx, moderation.MessageEvent{
		GuildID:   msg.GuildID,
		ChannelID: msg.ChannelID,
		MessageID: msg.ID,
		UserID:    msg.Author.ID,
		Username:  msg.Author.Username,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
	})
	if out.Flagged {
		return
	}

	b.handlePrefix(ctx, session, msg)
}

func (b *Bot) onMessageUpdate(session *discordgo.Session, event *discordgo.MessageUpdate) {
	if event.Message == nil || event.GuildID == "" || event.Author == nil || event.Author.Bot {
		return
	}
	if event.BeforeUpdate == nil || event.Content == "" {
		return
	}
	b.audit.Edited(context.Background(), audit.Message{
		GuildID:   event.GuildID,
		ChannelID: event.ChannelID,
		MessageID: event.ID,
		UserID:    event.Author.ID,
		Content:   event.Content,
	}, event.BeforeUpdate.Content)
}

func (b *Bot) onMessageDelete(session *discordgo.Session, event *discordgo.MessageDelete) {
	if event.Message == nil || event.GuildID == "" {
		return
	}
	msg := audit.Message{GuildID: event.GuildID, ChannelID: event.ChannelID, MessageID: event.ID}
	if before := event.BeforeDelete; before != nil {
		if before.Author != nil {
			if before.Author.Bot {
				return
			}
			msg.UserID = before.Author.ID
		}
		msg.Content = before.Content
	}
	b.audit.Deleted(context.Background(), msg)
}

func (b *Bot) onGuildMemberAdd(session *discordgo.Session, event *discordgo.GuildMemberAdd) {
	if event.Member == nil || event.User == nil || event.GuildID == "" {
		return
	}
	b.welcome.HandleJoin(context.Background(), b.guildInfo(event.GuildID), welcome.Member{UserID: event.User.ID, Username: event.User.Username})
}

func (b *Bot) onGuildMemberRemove(session *discordgo.Session, event *discordgo.GuildMemberRemove) {
	if event.Member == nil || event.User == nil || event.GuildID == "" {
		return
	}
	b.welcome.HandleLeave(context.Background(), b.guildInfo(event.GuildID), welcome.Member{UserID: event.User.ID, Username: event.User.Username})
}

// mirrorCase posts every new case to the guild's moderation log channel.
func (b *Bot) mirrorCase(ctx context.Context, c moderation.Case) {
	cfg, err := b.store.GetServerConfig(ctx, c.GuildID)
	if err != nil || cfg.ModerationLogChannelID == "" {
		return
	}
	if _, err := b.session.ChannelMessageSendEmbed(cfg.ModerationLogChannelID, caseEmbed(c)); err != nil {
		b.logger.Warn("mod log mirror failed", zap.String("guild_id", c.GuildID), zap.Int("case", c.CaseNumber), zap.Error(err))
	}
}

func (b *Bot) guildInfo(guildID string) welcome.Guild {
	info := welcome.Guild{ID: guildID, Name: guildID}
	if guild, err := b.session.State.Guild(guildID); err == nil {
		info.Name = guild.Name
		info.MemberCount = guild.MemberCount
	}
	return info
}

func (b *Bot) defaultServerConfig(guildID, name string) storage.ServerConfig {
	cfg := storage.DefaultServerConfig(guildID, name)
	if b.cfg.Spam.DefaultMaxMessages > 0 {
		cfg.MaxMessagesPerMinute = b.cfg.Spam.DefaultMaxMessages
	}
	return cfg
}

// serverConfig returns the stored configuration or a fresh default.
func (b *Bot) serverConfig(ctx context.Context, guildID string) (storage.ServerConfig, error) {
	cfg, err := b.store.GetServerConfig(ctx, guildID)
	if errors.Is(err, storage.ErrNotFound) {
		return b.defaultServerConfig(guildID, b.guildInfo(guildID).Name), nil
	}
	return cfg, err
}

func (b *Bot) guildPolicy(ctx context.Context, guildID string) moderation.Policy {
	cfg, err := b.store.GetServerConfig(ctx, guildID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			b.logger.Warn("server config fallback", zap.String("guild_id", guildID), zap.Error(err))
		}
		return moderation.Policy{}
	}
	return cfg.Policy()
}
