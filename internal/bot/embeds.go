package bot

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"guildwarden/internal/analytics"
	"guildwarden/internal/moderation"
)

const (
	colorModeration = 0xff6b6b
	colorInfo       = 0x4facfe
	colorWelcome    = 0x00ff88
	colorError      = 0xff4757
	colorSuccess    = 0x2ed573
)

const errorMessage = "There was an error while executing this command!"

func commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}

func failure(description string) reply {
	return reply{embed: commandEmbed("Error", description, colorError, nil), ephemeral: true}
}

func success(title, description string, fields ...*discordgo.MessageEmbedField) reply {
	return reply{embed: commandEmbed(title, description, colorSuccess, fields)}
}

func field(name, value string, inline bool) *discordgo.MessageEmbedField {
	if value == "" {
		value = "-"
	}
	return &discordgo.MessageEmbedField{Name: name, Value: value, Inline: inline}
}

func mention(userID string) string {
	if userID == "" {
		return "-"
	}
	return "<@" + userID + ">"
}

func caseEmbed(c moderation.Case) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		field("User", mention(c.TargetUserID), true),
		field("Moderator", mention(c.ModeratorUserID), true),
	}
	if c.DurationMinutes != nil {
		fields = append(fields, field("Duration", strconv.Itoa(*c.DurationMinutes)+" minutes", true))
	}
	fields = append(fields, field("Reason", c.Reason, false))

	embed := commandEmbed(fmt.Sprintf("Case #%d | %s", c.CaseNumber, c.Action.Label()), "", colorModeration, fields)
	embed.Timestamp = c.CreatedAt.Format(time.RFC3339)
	return embed
}

func caseLine(c moderation.Case) string {
	line := fmt.Sprintf("**#%d** %s %s", c.CaseNumber, c.Action.Label(), mention(c.TargetUserID))
	if c.Reason != "" {
		line += ": " + c.Reason
	}
	return line
}

func reportFields(report analytics.Report) []*discordgo.MessageEmbedField {
	fields := []*discordgo.MessageEmbedField{field("Total", strconv.Itoa(report.Total), false)}
	actions := make([]moderation.Action, 0, len(report.ByAction))
	for action := range report.ByAction {
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	for _, action := range actions {
		fields = append(fields, field(action.Label(), strconv.Itoa(report.ByAction[action]), true))
	}
	return fields
}

func discordTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return fmt.Sprintf("<t:%d:R>", t.Unix())
}

func ticketPanelComponents() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Create Ticket", Style: discordgo.PrimaryButton, CustomID: "create_ticket"},
		}},
	}
}

func closeTicketComponents() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Close Ticket", Style: discordgo.DangerButton, CustomID: "close_ticket"},
		}},
	}
}
