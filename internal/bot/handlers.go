package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"guildwarden/internal/modules/tickets"
	"guildwarden/internal/permissions"
	"guildwarden/internal/storage"
)

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	ctx := context.Background()
	switch interaction.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleSlash(ctx, session, interaction)
	case discordgo.InteractionMessageComponent:
		switch interaction.MessageComponentData().CustomID {
		case tickets.ButtonCreate:
			b.handleCreateTicket(ctx, session, interaction)
		case tickets.ButtonClose:
			b.handleCloseTicket(ctx, session, interaction)
		}
	}
}

func (b *Bot) handleSlash(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	data := interaction.ApplicationCommandData()
	cmd, ok := b.byName[data.Name]
	if !ok {
		return
	}
	if interaction.GuildID == "" || interaction.Member == nil || interaction.Member.User == nil {
		b.respondReply(session, interaction, failure("This command can only be used in a server."))
		return
	}

	inv := &invocation{
		guildID:   interaction.GuildID,
		channelID: interaction.ChannelID,
		author:    interaction.Member.User,
		perms:     interaction.Member.Permissions,
		roles:     interaction.Member.Roles,
		args:      optionArgs(data.Options),
	}
	b.respondReply(session, interaction, b.execute(ctx, cmd, inv))
}

func (b *Bot) handlePrefix(ctx context.Context, session *discordgo.Session, msg *discordgo.MessageCreate) {
	name, rest, ok := parsePrefix(msg.Content, b.cfg.Moderation.Prefix)
	if !ok {
		return
	}

	custom, err := b.store.GetCustomCommand(ctx, msg.GuildID, name)
	if err == nil {
		if _, err := session.ChannelMessageSend(msg.ChannelID, custom.Response); err != nil {
			b.logger.Warn("custom command reply failed", zap.String("guild_id", msg.GuildID), zap.Error(err))
		}
		return
	}
	if !errors.Is(err, storage.ErrNotFound) {
		b.logger.Warn("custom command lookup failed", zap.String("guild_id", msg.GuildID), zap.Error(err))
	}

	cmd, ok := b.byName[name]
	if !ok {
		return
	}
	if cmd.slashOnly {
		b.sendReply(msg.ChannelID, failure(fmt.Sprintf("Use `/%s` instead.", cmd.name)))
		return
	}

	args, err := bindArgs(cmd, rest)
	if err != nil {
		b.sendReply(msg.ChannelID, failure("Usage: `"+usage(cmd, b.cfg.Moderation.Prefix)+"`"))
		return
	}

	perms, err := session.UserChannelPermissions(msg.Author.ID, msg.ChannelID)
	if err != nil {
		b.logger.Debug("permission lookup failed", zap.String("user_id", msg.Author.ID), zap.Error(err))
	}
	var roles []string
	if msg.Member != nil {
		roles = msg.Member.Roles
	}

	inv := &invocation{
		guildID:   msg.GuildID,
		channelID: msg.ChannelID,
		messageID: msg.ID,
		author:    msg.Author,
		perms:     perms,
		roles:     roles,
		args:      args,
	}
	b.sendReply(msg.ChannelID, b.execute(ctx, cmd, inv))
}

// execute checks access and runs the command. Unexpected errors are
// logged and answered with a generic message.
func (b *Bot) execute(ctx context.Context, cmd *command, inv *invocation) reply {
	if cmd.access != accessEveryone {
		policy := b.guildPolicy(ctx, inv.guildID)
		allowed := permissions.IsModerator(inv.perms, inv.roles, policy)
		if cmd.access == accessAdmin {
			allowed = permissions.IsAdmin(inv.perms, inv.roles, policy)
		}
		if !allowed {
			return failure("You do not have permission to use this command.")
		}
	}

	out, err := cmd.run(b, ctx, inv)
	if err != nil {
		b.logger.Error("command failed",
			zap.String("command", cmd.name),
			zap.String("guild_id", inv.guildID),
			zap.String("user_id", inv.author.ID),
			zap.Error(err),
		)
		return reply{content: errorMessage, ephemeral: true}
	}
	return out
}

func (b *Bot) handleCreateTicket(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.GuildID == "" || interaction.Member == nil || interaction.Member.User == nil {
		return
	}
	user := interaction.Member.User
	ticket, err := b.tickets.Open(ctx, interaction.GuildID, user.ID, user.Username)
	switch {
	case errors.Is(err, tickets.ErrNoCategory):
		b.respondReply(session, interaction, failure("The ticket system is not configured. Ask an admin to run /setup."))
		return
	case errors.Is(err, tickets.ErrAlreadyOpen):
		msg := "You already have an open ticket."
		if ticket.ChannelID != "" {
			msg = fmt.Sprintf("You already have an open ticket: <#%s>", ticket.ChannelID)
		}
		b.respondReply(session, interaction, failure(msg))
		return
	case err != nil:
		b.logger.Error("ticket open failed", zap.String("guild_id", interaction.GuildID), zap.String("user_id", user.ID), zap.Error(err))
		b.respondReply(session, interaction, reply{content: errorMessage, ephemeral: true})
		return
	}

	greeting := commandEmbed("Ticket Created",
		fmt.Sprintf("Hello %s! Support will be with you shortly. Describe your issue and use the button below to close this ticket.", mention(user.ID)),
		colorInfo, nil)
	if _, err := session.ChannelMessageSendComplex(ticket.ChannelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{greeting},
		Components: closeTicketComponents(),
	}); err != nil {
		b.logger.Warn("ticket greeting failed", zap.String("channel_id", ticket.ChannelID), zap.Error(err))
	}
	b.respondReply(session, interaction, reply{content: fmt.Sprintf("Ticket created: <#%s>", ticket.ChannelID), ephemeral: true})
}

func (b *Bot) handleCloseTicket(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Member == nil || interaction.Member.User == nil {
		return
	}
	_, err := b.tickets.Close(ctx, interaction.ChannelID, interaction.Member.User.ID)
	if errors.Is(err, tickets.ErrNotTicket) {
		b.respondReply(session, interaction, failure("This is not an open ticket channel."))
		return
	}
	if err != nil {
		b.logger.Error("ticket close failed", zap.String("channel_id", interaction.ChannelID), zap.Error(err))
		b.respondReply(session, interaction, reply{content: errorMessage, ephemeral: true})
		return
	}
	delay := b.cfg.Tickets.CloseDelay()
	b.respondReply(session, interaction, reply{embed: commandEmbed("Ticket Closed", fmt.Sprintf("This channel will be deleted in %s.", delay), colorModeration, nil)})
}

func (b *Bot) respondReply(session *discordgo.Session, interaction *discordgo.InteractionCreate, r reply) {
	flags := discordgo.MessageFlags(0)
	if r.ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	data := &discordgo.InteractionResponseData{Content: r.content, Flags: flags}
	if r.embed != nil {
		data.Embeds = []*discordgo.MessageEmbed{r.embed}
	}
	if data.Content == "" && data.Embeds == nil {
		data.Content = "Done."
	}
	if err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}); err != nil {
		b.logger.Warn("interaction response failed", zap.Error(err))
	}
}

func (b *Bot) sendReply(channelID string, r reply) {
	if r.quiet {
		return
	}
	var err error
	switch {
	case r.embed != nil:
		_, err = b.session.ChannelMessageSendEmbed(channelID, r.embed)
	case r.content != "":
		_, err = b.session.ChannelMessageSend(channelID, r.content)
	default:
		return
	}
	if err != nil {
		b.logger.Warn("reply failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}
