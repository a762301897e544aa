package bot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"guildwarden/internal/moderation"
	"guildwarden/internal/storage"
)

const (
	maxSlowmodeSeconds = 21600
	recentCaseCount    = 10
	modStatsWindow     = 30 * 24 * time.Hour
	noReason           = "No reason provided"
)

func (b *Bot) recordCase(ctx context.Context, inv *invocation, action moderation.Action, targetID, reason string, minutes *int) (moderation.Case, error) {
	return b.ledger.Append(ctx, moderation.Record{
		GuildID:         inv.guildID,
		TargetUserID:    targetID,
		ModeratorUserID: inv.author.ID,
		Action:          action,
		Reason:          reason,
		DurationMinutes: minutes,
	})
}

func caseField(c moderation.Case) *discordgo.MessageEmbedField {
	return field("Case", "#"+strconv.Itoa(c.CaseNumber), true)
}

func (b *Bot) cmdKick(ctx context.Context, inv *invocation) (reply, error) {
	target := inv.arg("user")
	if target == inv.author.ID {
		return failure("You cannot kick yourself."), nil
	}
	reason := inv.argOr("reason", noReason)
	if err := b.platform.Kick(ctx, inv.guildID, target, reason); err != nil {
		return reply{}, fmt.Errorf("kick %s: %w", target, err)
	}
	c, err := b.recordCase(ctx, inv, moderation.ActionKick, target, reason, nil)
	if err != nil {
		return reply{}, err
	}
	return reply{embed: commandEmbed("Member Kicked", "", colorModeration, []*discordgo.MessageEmbedField{
		field("User", mention(target), true), caseField(c), field("Reason", reason, false),
	})}, nil
}

func (b *Bot) cmdBan(ctx context.Context, inv *invocation) (reply, error) {
	target := inv.arg("user")
	if target == inv.author.ID {
		return failure("You cannot ban yourself."), nil
	}
	reason := inv.argOr("reason", noReason)
	if err := b.platform.Ban(ctx, inv.guildID, target, reason); err != nil {
		return reply{}, fmt.Errorf("ban %s: %w", target, err)
	}
	c, err := b.recordCase(ctx, inv, moderation.ActionBan, target, reason, nil)
	if err != nil {
		return reply{}, err
	}
	return reply{embed: commandEmbed("Member Banned", "", colorModeration, []*discordgo.MessageEmbedField{
		field("User", mention(target), true), caseField(c), field("Reason", reason, false),
	})}, nil
}

func (b *Bot) cmdWarn(ctx context.Context, inv *invocation) (reply, error) {
	target := inv.arg("user")
	reason := inv.argOr("reason", noReason)
	if _, err := b.store.AddWarning(ctx, storage.Warning{
		GuildID:     inv.guildID,
		UserID:      target,
		ModeratorID: inv.author.ID,
		Reason:      reason,
		CreatedAt:   time.Now(),
	}); err != nil {
		return reply{}, err
	}
	c, err := b.recordCase(ctx, inv, moderation.ActionWarn, target, reason, nil)
	if err != nil {
		return reply{}, err
	}

	guild := b.guildInfo(inv.guildID)
	if err := b.platform.DirectMessage(target, fmt.Sprintf("You have been warned in **%s**: %s", guild.Name, reason)); err != nil {
		b.logger.Debug("warn dm failed", zap.String("user_id", target), zap.Error(err))
	}
	return reply{embed: commandEmbed("Member Warned", "", colorModeration, []*discordgo.MessageEmbedField{
		field("User", mention(target), true), caseField(c), field("Reason", reason, false),
	})}, nil
}

func (b *Bot) cmdMute(ctx context.Context, inv *invocation) (reply, error) {
	target := inv.arg("user")
	minutes := inv.intArg("minutes", b.cfg.Moderation.DefaultMuteMinutes)
	if minutes < 1 || minutes > b.cfg.Moderation.MaxMuteMinutes {
		return failure(fmt.Sprintf("Duration must be between 1 and %d minutes.", b.cfg.Moderation.MaxMuteMinutes)), nil
	}
	reason := inv.argOr("reason", noReason)
	if err := b.platform.Timeout(ctx, inv.guildID, target, minutes, reason); err != nil {
		return reply{}, fmt.Errorf("timeout %s: %w", target, err)
	}
	c, err := b.recordCase(ctx, inv, moderation.ActionTimeout, target, reason, moderation.Minutes(minutes))
	if err != nil {
		return reply{}, err
	}
	return reply{embed: commandEmbed("Member Timed Out", "", colorModeration, []*discordgo.MessageEmbedField{
		field("User", mention(target), true),
		field("Duration", fmt.Sprintf("%d minutes", minutes), true),
		caseField(c),
		field("Reason", reason, false),
	})}, nil
}

func (b *Bot) cmdWarnings(ctx context.Context, inv *invocation) (reply, error) {
	target := inv.arg("user")
	warnings, err := b.store.ListWarnings(ctx, inv.guildID, target, storage.DefaultWarningListLimit)
	if err != nil {
		return reply{}, err
	}
	if len(warnings) == 0 {
		return reply{embed: commandEmbed("Warnings", mention(target)+" has no warnings.", colorInfo, nil)}, nil
	}
	lines := make([]string, 0, len(warnings))
	for i, w := range warnings {
		lines = append(lines, fmt.Sprintf("%d. %s (by %s, %s)", i+1, w.Reason, mention(w.ModeratorID), discordTime(w.CreatedAt)))
	}
	title := fmt.Sprintf("Warnings (%d)", len(warnings))
	return reply{embed: commandEmbed(title, mention(target)+"\n"+strings.Join(lines, "\n"), colorInfo, nil)}, nil
}

func (b *Bot) cmdCase(ctx context.Context, inv *invocation) (reply, error) {
	number := inv.intArg("number", 0)
	c, err := b.ledger.Get(ctx, inv.guildID, number)
	if errors.Is(err, storage.ErrNotFound) {
		return failure(fmt.Sprintf("Case #%d not found.", number)), nil
	}
	if err != nil {
		return reply{}, err
	}
	return reply{embed: caseEmbed(c)}, nil
}

func (b *Bot) cmdCases(ctx context.Context, inv *invocation) (reply, error) {
	list, err := b.ledger.List(ctx, inv.guildID, recentCaseCount)
	if err != nil {
		return reply{}, err
	}
	if len(list) == 0 {
		return reply{embed: commandEmbed("Recent Cases", "No cases recorded yet.", colorInfo, nil)}, nil
	}
	lines := make([]string, 0, len(list))
	for _, c := range list {
		lines = append(lines, caseLine(c))
	}
	return reply{embed: commandEmbed("Recent Cases", strings.Join(lines, "\n"), colorInfo, nil)}, nil
}

func (b *Bot) cmdPurge(ctx context.Context, inv *invocation) (reply, error) {
	amount := inv.intArg("amount", 0)
	if amount < 1 || amount > b.cfg.Moderation.PurgeMax {
		return failure(fmt.Sprintf("Amount must be between 1 and %d.", b.cfg.Moderation.PurgeMax)), nil
	}
	deleted, err := b.platform.Purge(ctx, inv.channelID, inv.messageID, amount)
	if err != nil {
		return reply{}, fmt.Errorf("purge %s: %w", inv.channelID, err)
	}
	if inv.messageID != "" {
		_ = b.session.ChannelMessageDelete(inv.channelID, inv.messageID)
	}
	description := fmt.Sprintf("Deleted %d messages.", deleted)
	if deleted < amount {
		description += " Messages older than 14 days cannot be bulk deleted."
	}
	return reply{embed: commandEmbed("Messages Purged", description, colorSuccess, nil), ephemeral: true}, nil
}

func (b *Bot) cmdSlowmode(_ context.Context, inv *invocation) (reply, error) {
	seconds := inv.intArg("seconds", -1)
	if seconds < 0 || seconds > maxSlowmodeSeconds {
		return failure(fmt.Sprintf("Slowmode must be between 0 and %d seconds.", maxSlowmodeSeconds)), nil
	}
	if _, err := b.session.ChannelEditComplex(inv.channelID, &discordgo.ChannelEdit{RateLimitPerUser: &seconds}); err != nil {
		return reply{}, fmt.Errorf("slowmode %s: %w", inv.channelID, err)
	}
	if seconds == 0 {
		return success("Slowmode", "Slowmode disabled."), nil
	}
	return success("Slowmode", fmt.Sprintf("Slowmode set to %d seconds.", seconds)), nil
}

func (b *Bot) cmdModStats(ctx context.Context, inv *invocation) (reply, error) {
	report, err := b.analytics.Report(ctx, inv.guildID, time.Now().Add(-modStatsWindow))
	if err != nil {
		return reply{}, err
	}
	return reply{embed: commandEmbed("Moderation Statistics", "Cases from the last 30 days", colorInfo, reportFields(report))}, nil
}

func (b *Bot) cmdMessageLogs(ctx context.Context, inv *invocation) (reply, error) {
	limit := inv.intArg("limit", 10)
	if limit < 1 || limit > storage.DefaultMessageLogLimit {
		return failure(fmt.Sprintf("Limit must be between 1 and %d.", storage.DefaultMessageLogLimit)), nil
	}
	logs, err := b.audit.Recent(ctx, inv.guildID, limit)
	if err != nil {
		return reply{}, err
	}
	if len(logs) == 0 {
		return reply{embed: commandEmbed("Message Logs", "Nothing logged yet.", colorInfo, nil), ephemeral: true}, nil
	}
	lines := make([]string, 0, len(logs))
	for _, entry := range logs {
		lines = append(lines, fmt.Sprintf("%s **%s** %s in <#%s>: %s", discordTime(entry.CreatedAt), entry.Action, mention(entry.UserID), entry.ChannelID, truncate(entry.Content, 200)))
	}
	return reply{embed: commandEmbed("Message Logs", truncate(strings.Join(lines, "\n"), 4000), colorInfo, nil), ephemeral: true}, nil
}

func (b *Bot) cmdSay(_ context.Context, inv *invocation) (reply, error) {
	if _, err := b.session.ChannelMessageSend(inv.channelID, inv.arg("message")); err != nil {
		return reply{}, err
	}
	if inv.messageID != "" {
		_ = b.session.ChannelMessageDelete(inv.channelID, inv.messageID)
	}
	return reply{content: "Message sent.", ephemeral: true, quiet: true}, nil
}

func (b *Bot) cmdDM(_ context.Context, inv *invocation) (reply, error) {
	target := inv.arg("user")
	if err := b.platform.DirectMessage(target, inv.arg("message")); err != nil {
		b.logger.Debug("dm failed", zap.String("user_id", target), zap.Error(err))
		return failure("Could not send a direct message to " + mention(target) + "."), nil
	}
	return reply{content: "Message sent to " + mention(target) + ".", ephemeral: true}, nil
}

func (b *Bot) cmdAnnounce(ctx context.Context, inv *invocation) (reply, error) {
	cfg, err := b.store.GetServerConfig(ctx, inv.guildID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return reply{}, err
	}
	if cfg.AnnouncementChannelID == "" {
		return failure("No announcement channel configured. Use /setup first."), nil
	}
	embed := commandEmbed("Announcement", inv.arg("message"), colorInfo, nil)
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "Announced by " + inv.author.Username}
	if _, err := b.session.ChannelMessageSendEmbed(cfg.AnnouncementChannelID, embed); err != nil {
		return reply{}, err
	}
	return success("Announcement", "Posted in <#"+cfg.AnnouncementChannelID+">."), nil
}

func (b *Bot) cmdSetup(ctx context.Context, inv *invocation) (reply, error) {
	cfg, err := b.serverConfig(ctx, inv.guildID)
	if err != nil {
		return reply{}, err
	}
	if problem := applySetup(&cfg, inv); problem != "" {
		return failure(problem), nil
	}
	saved, err := b.store.UpsertServerConfig(ctx, cfg)
	if err != nil {
		return reply{}, err
	}
	return reply{embed: commandEmbed("Server Configuration", "Settings saved.", colorSuccess, configFields(saved)), ephemeral: true}, nil
}

// applySetup copies provided options onto cfg and returns a user-facing
// problem when a value is out of range.
func applySetup(cfg *storage.ServerConfig, inv *invocation) string {
	set := func(name string, dst *string) {
		if value, ok := inv.args[name]; ok {
			*dst = value
		}
	}
	set("welcome_channel", &cfg.WelcomeChannelID)
	set("welcome_message", &cfg.WelcomeMessage)
	set("goodbye_message", &cfg.GoodbyeMessage)
	set("mod_log_channel", &cfg.ModerationLogChannelID)
	set("announcement_channel", &cfg.AnnouncementChannelID)
	set("ticket_category", &cfg.TicketCategoryID)
	set("auto_role", &cfg.AutoRoleID)

	if role := inv.arg("moderator_role"); role != "" && !slices.Contains(cfg.ModeratorRoleIDs, role) {
		cfg.ModeratorRoleIDs = append(cfg.ModeratorRoleIDs, role)
	}
	if role := inv.arg("admin_role"); role != "" && !slices.Contains(cfg.AdminRoleIDs, role) {
		cfg.AdminRoleIDs = append(cfg.AdminRoleIDs, role)
	}
	if enabled, ok := inv.boolArg("spam_protection"); ok {
		cfg.EnableSpamProtection = enabled
	}
	if _, ok := inv.args["max_messages"]; ok {
		limit := inv.intArg("max_messages", 0)
		if limit < 1 || limit > 100 {
			return "max_messages must be between 1 and 100."
		}
		cfg.MaxMessagesPerMinute = limit
	}
	return ""
}

func configFields(cfg storage.ServerConfig) []*discordgo.MessageEmbedField {
	channel := func(id string) string {
		if id == "" {
			return "Not set"
		}
		return "<#" + id + ">"
	}
	roles := func(ids []string) string {
		if len(ids) == 0 {
			return "Not set"
		}
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			out = append(out, "<@&"+id+">")
		}
		return strings.Join(out, " ")
	}
	autoRole := "Not set"
	if cfg.AutoRoleID != "" {
		autoRole = "<@&" + cfg.AutoRoleID + ">"
	}
	return []*discordgo.MessageEmbedField{
		field("Welcome channel", channel(cfg.WelcomeChannelID), true),
		field("Mod log", channel(cfg.ModerationLogChannelID), true),
		field("Announcements", channel(cfg.AnnouncementChannelID), true),
		field("Ticket category", channel(cfg.TicketCategoryID), true),
		field("Auto role", autoRole, true),
		field("Spam protection", fmt.Sprintf("%t (%d/min)", cfg.EnableSpamProtection, cfg.Policy().MaxMessages()), true),
		field("Moderator roles", roles(cfg.ModeratorRoleIDs), false),
		field("Admin roles", roles(cfg.AdminRoleIDs), false),
	}
}

func (b *Bot) cmdCustomCommand(ctx context.Context, inv *invocation) (reply, error) {
	name := strings.ToLower(strings.TrimSpace(inv.arg("name")))
	switch inv.arg("action") {
	case "list":
		list, err := b.store.ListCustomCommands(ctx, inv.guildID)
		if err != nil {
			return reply{}, err
		}
		if len(list) == 0 {
			return reply{embed: commandEmbed("Custom Commands", "No custom commands yet.", colorInfo, nil)}, nil
		}
		names := make([]string, 0, len(list))
		for _, cmd := range list {
			names = append(names, "`"+b.cfg.Moderation.Prefix+cmd.Name+"`")
		}
		return reply{embed: commandEmbed("Custom Commands", strings.Join(names, ", "), colorInfo, nil)}, nil
	case "create":
		response := strings.TrimSpace(inv.arg("response"))
		if name == "" || response == "" {
			return failure("Both a name and a response are required."), nil
		}
		if _, builtin := b.byName[name]; builtin || strings.ContainsAny(name, " \t") {
			return failure(fmt.Sprintf("`%s` cannot be used as a custom command name.", name)), nil
		}
		_, err := b.store.CreateCustomCommand(ctx, storage.CustomCommand{
			GuildID:   inv.guildID,
			Name:      name,
			Response:  response,
			CreatedBy: inv.author.ID,
			CreatedAt: time.Now(),
		})
		if errors.Is(err, storage.ErrConflict) {
			return failure(fmt.Sprintf("A command named `%s` already exists.", name)), nil
		}
		if err != nil {
			return reply{}, err
		}
		return success("Custom Command Created", fmt.Sprintf("`%s%s` is ready.", b.cfg.Moderation.Prefix, name)), nil
	case "delete":
		err := b.store.DeleteCustomCommand(ctx, inv.guildID, name)
		if errors.Is(err, storage.ErrNotFound) {
			return failure(fmt.Sprintf("No custom command named `%s`.", name)), nil
		}
		if err != nil {
			return reply{}, err
		}
		return success("Custom Command Deleted", fmt.Sprintf("`%s` was removed.", name)), nil
	default:
		return failure("Action must be create, delete or list."), nil
	}
}

func (b *Bot) cmdTicketPanel(_ context.Context, inv *invocation) (reply, error) {
	embed := commandEmbed("Support Tickets", "Need help? Click the button below to open a private ticket with the staff team.", colorInfo, nil)
	if _, err := b.session.ChannelMessageSendComplex(inv.channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: ticketPanelComponents(),
	}); err != nil {
		return reply{}, err
	}
	return reply{content: "Ticket panel created.", ephemeral: true, quiet: true}, nil
}

func (b *Bot) cmdPing(_ context.Context, _ *invocation) (reply, error) {
	latency := b.session.HeartbeatLatency().Milliseconds()
	return reply{embed: commandEmbed("Pong!", fmt.Sprintf("Latency: %dms", latency), colorInfo, nil)}, nil
}

func (b *Bot) cmdHelp(_ context.Context, _ *invocation) (reply, error) {
	var lines []string
	for _, cmd := range b.commands {
		form := usage(cmd, b.cfg.Moderation.Prefix)
		if cmd.slashOnly {
			form = "/" + cmd.name
		}
		lines = append(lines, fmt.Sprintf("`%s` %s", form, cmd.description))
	}
	return reply{embed: commandEmbed("Commands", strings.Join(lines, "\n"), colorInfo, nil), ephemeral: true}, nil
}

func (b *Bot) cmdUptime(_ context.Context, _ *invocation) (reply, error) {
	uptime := time.Since(b.started).Round(time.Second)
	return reply{embed: commandEmbed("Uptime", uptime.String(), colorInfo, nil)}, nil
}

func (b *Bot) cmdServerInfo(_ context.Context, inv *invocation) (reply, error) {
	guild, err := b.session.State.Guild(inv.guildID)
	if err != nil {
		if guild, err = b.session.Guild(inv.guildID); err != nil {
			return reply{}, err
		}
	}
	created, _ := discordgo.SnowflakeTimestamp(guild.ID)
	return reply{embed: commandEmbed(guild.Name, "", colorInfo, []*discordgo.MessageEmbedField{
		field("Owner", mention(guild.OwnerID), true),
		field("Members", strconv.Itoa(guild.MemberCount), true),
		field("Channels", strconv.Itoa(len(guild.Channels)), true),
		field("Roles", strconv.Itoa(len(guild.Roles)), true),
		field("Created", discordTime(created), true),
		field("ID", guild.ID, true),
	})}, nil
}

func (b *Bot) cmdUserInfo(_ context.Context, inv *invocation) (reply, error) {
	target := inv.argOr("user", inv.author.ID)
	member, err := b.session.State.Member(inv.guildID, target)
	if err != nil {
		if member, err = b.session.GuildMember(inv.guildID, target); err != nil {
			return failure("That user is not a member of this server."), nil
		}
	}
	created, _ := discordgo.SnowflakeTimestamp(target)
	username := target
	if member.User != nil {
		username = member.User.Username
	}
	return reply{embed: commandEmbed(username, mention(target), colorInfo, []*discordgo.MessageEmbedField{
		field("ID", target, true),
		field("Account created", discordTime(created), true),
		field("Joined", discordTime(member.JoinedAt), true),
		field("Roles", strconv.Itoa(len(member.Roles)), true),
	})}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
