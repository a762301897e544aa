package bot

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"guildwarden/internal/moderation"
	"guildwarden/internal/modules/tickets"
	"guildwarden/internal/modules/welcome"
)

const (
	// Messages older than this cannot be bulk deleted.
	bulkDeleteMaxAge = 14 * 24 * time.Hour
	fetchLimit       = 100
)

// platform applies sanctions and channel changes through the session.
// Message deletes are paced by a token bucket.
type platform struct {
	session *discordgo.Session
	limiter *rate.Limiter
	logger  *zap.Logger
	now     func() time.Time
}

var (
	_ moderation.Sanctions = (*platform)(nil)
	_ tickets.Channels     = (*platform)(nil)
	_ welcome.Actions      = (*platform)(nil)
)

func newPlatform(session *discordgo.Session, deletesPerSecond int, logger *zap.Logger) *platform {
	if deletesPerSecond <= 0 {
		deletesPerSecond = 5
	}
	return &platform{
		session: session,
		limiter: rate.NewLimiter(rate.Limit(deletesPerSecond), 1),
		logger:  logger,
		now:     time.Now,
	}
}

func (p *platform) Timeout(ctx context.Context, guildID, userID string, minutes int, reason string) error {
	until := p.now().Add(time.Duration(minutes) * time.Minute)
	return p.session.GuildMemberTimeout(guildID, userID, &until, timeoutOptions(ctx, reason)...)
}

func timeoutOptions(ctx context.Context, reason string) []discordgo.RequestOption {
	opts := []discordgo.RequestOption{discordgo.WithContext(ctx)}
	if reason != "" {
		opts = append(opts, discordgo.WithAuditLogReason(reason))
	}
	return opts
}

func (p *platform) Kick(_ context.Context, guildID, userID, reason string) error {
	return p.session.GuildMemberDeleteWithReason(guildID, userID, reason)
}

func (p *platform) Ban(_ context.Context, guildID, userID, reason string) error {
	return p.session.GuildBanCreateWithReason(guildID, userID, reason, 0)
}

func (p *platform) DeleteRecentMessages(ctx context.Context, _, channelID, userID string, count int) (int, error) {
	if count <= 0 {
		return 0, nil
	}
	msgs, err := p.session.ChannelMessages(channelID, fetchLimit, "", "", "")
	if err != nil {
		return 0, err
	}
	return p.deleteMessages(ctx, channelID, selectDeletable(msgs, userID, count, p.now()))
}

// Purge deletes up to count messages posted before beforeID.
func (p *platform) Purge(ctx context.Context, channelID, beforeID string, count int) (int, error) {
	msgs, err := p.session.ChannelMessages(channelID, count, beforeID, "", "")
	if err != nil {
		return 0, err
	}
	return p.deleteMessages(ctx, channelID, selectDeletable(msgs, "", count, p.now()))
}

func (p *platform) Notify(_ context.Context, channelID, content string) error {
	_, err := p.session.ChannelMessageSend(channelID, content)
	return err
}

func (p *platform) deleteMessages(ctx context.Context, channelID string, ids []string) (int, error) {
	switch len(ids) {
	case 0:
		return 0, nil
	case 1:
		if err := p.limiter.Wait(ctx); err != nil {
			return 0, err
		}
		if err := p.session.ChannelMessageDelete(channelID, ids[0]); err != nil {
			return 0, err
		}
		return 1, nil
	}

	deleted := 0
	for start := 0; start < len(ids); start += fetchLimit {
		end := min(start+fetchLimit, len(ids))
		if err := p.limiter.Wait(ctx); err != nil {
			return deleted, err
		}
		if err := p.session.ChannelMessagesBulkDelete(channelID, ids[start:end]); err != nil {
			return deleted, err
		}
		deleted += end - start
	}
	return deleted, nil
}

// selectDeletable picks up to count message ids, newest first, skipping
// messages too old to bulk delete. An empty userID matches every author.
func selectDeletable(msgs []*discordgo.Message, userID string, count int, now time.Time) []string {
	ids := make([]string, 0, count)
	for _, msg := range msgs {
		if len(ids) >= count {
			break
		}
		if msg == nil {
			continue
		}
		if userID != "" && (msg.Author == nil || msg.Author.ID != userID) {
			continue
		}
		if now.Sub(msg.Timestamp) >= bulkDeleteMaxAge {
			continue
		}
		ids = append(ids, msg.ID)
	}
	return ids
}

func (p *platform) CreateTicketChannel(_ context.Context, req tickets.ChannelRequest) (string, error) {
	botID := ""
	if p.session.State != nil && p.session.State.User != nil {
		botID = p.session.State.User.ID
	}
	channel, err := p.session.GuildChannelCreateComplex(req.GuildID, discordgo.GuildChannelCreateData{
		Name:                 req.Name,
		Type:                 discordgo.ChannelTypeGuildText,
		ParentID:             req.CategoryID,
		PermissionOverwrites: ticketOverwrites(req, botID),
	})
	if err != nil {
		return "", err
	}
	return channel.ID, nil
}

func (p *platform) DeleteChannel(_ context.Context, channelID string) error {
	_, err := p.session.ChannelDelete(channelID)
	return err
}

const ticketAccess = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionReadMessageHistory

// ticketOverwrites hides the channel from @everyone (whose role id is the
// guild id) and opens it to the owner, the bot and staff roles.
func ticketOverwrites(req tickets.ChannelRequest, botID string) []*discordgo.PermissionOverwrite {
	overwrites := []*discordgo.PermissionOverwrite{
		{ID: req.GuildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
		{ID: req.OwnerID, Type: discordgo.PermissionOverwriteTypeMember, Allow: ticketAccess},
	}
	if botID != "" {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    botID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: ticketAccess | discordgo.PermissionManageChannels,
		})
	}
	for _, roleID := range req.StaffRoleIDs {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    roleID,
			Type:  discordgo.PermissionOverwriteTypeRole,
			Allow: ticketAccess,
		})
	}
	return overwrites
}

func (p *platform) AddRole(_ context.Context, guildID, userID, roleID string) error {
	return p.session.GuildMemberRoleAdd(guildID, userID, roleID)
}

func (p *platform) Announce(_ context.Context, channelID string, kind welcome.Kind, content string) error {
	title, color := "Welcome!", colorWelcome
	if kind == welcome.Leave {
		title, color = "Goodbye!", colorModeration
	}
	_, err := p.session.ChannelMessageSendEmbed(channelID, commandEmbed(title, content, color, nil))
	return err
}

// DirectMessage opens a DM channel and sends content.
func (p *platform) DirectMessage(userID, content string) error {
	channel, err := p.session.UserChannelCreate(userID)
	if err != nil {
		return err
	}
	_, err = p.session.ChannelMessageSend(channel.ID, content)
	return err
}
