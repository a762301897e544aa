package bot

import "github.com/bwmarrin/discordgo"

func commandTable() []*command {
	user := func(required bool) param {
		return param{name: "user", description: "Target member", kind: paramUser, required: required}
	}
	reason := param{name: "reason", description: "Reason", kind: paramText}

	return []*command{
		{name: "ping", description: "Check the bot latency", run: (*Bot).cmdPing},
		{name: "help", description: "List available commands", run: (*Bot).cmdHelp},
		{name: "uptime", description: "Show how long the bot has been running", run: (*Bot).cmdUptime},
		{name: "serverinfo", description: "Show information about this server", run: (*Bot).cmdServerInfo},
		{name: "userinfo", description: "Show information about a member", params: []param{user(false)}, run: (*Bot).cmdUserInfo},

		{name: "kick", description: "Kick a member", access: accessModerator, params: []param{user(true), reason}, run: (*Bot).cmdKick},
		{name: "ban", description: "Ban a member", access: accessAdmin, params: []param{user(true), reason}, run: (*Bot).cmdBan},
		{name: "warn", description: "Warn a member", access: accessModerator, params: []param{user(true), {name: "reason", description: "Reason", kind: paramText, required: true}}, run: (*Bot).cmdWarn},
		{
			name: "mute", aliases: []string{"timeout"}, description: "Time out a member", access: accessModerator,
			params: []param{user(true), {name: "minutes", description: "Duration in minutes", kind: paramInteger}, reason},
			run:    (*Bot).cmdMute,
		},
		{name: "warnings", description: "List warnings for a member", access: accessModerator, params: []param{user(true)}, run: (*Bot).cmdWarnings},
		{name: "case", description: "Look up a moderation case", access: accessModerator, params: []param{{name: "number", description: "Case number", kind: paramInteger, required: true}}, run: (*Bot).cmdCase},
		{name: "cases", description: "List recent moderation cases", access: accessModerator, run: (*Bot).cmdCases},
		{
			name: "purge", aliases: []string{"clear"}, description: "Bulk delete recent messages", access: accessModerator,
			params: []param{{name: "amount", description: "Number of messages (1-100)", kind: paramInteger, required: true}},
			run:    (*Bot).cmdPurge,
		},
		{
			name: "slowmode", description: "Set channel slowmode", access: accessModerator,
			params: []param{{name: "seconds", description: "Seconds between messages (0-21600)", kind: paramInteger, required: true}},
			run:    (*Bot).cmdSlowmode,
		},
		{name: "modstats", description: "Moderation statistics for the last 30 days", access: accessModerator, run: (*Bot).cmdModStats},
		{
			name: "messagelogs", description: "Show recently deleted and edited messages", access: accessModerator,
			params: []param{{name: "limit", description: "Entries to show (1-100)", kind: paramInteger}},
			run:    (*Bot).cmdMessageLogs,
		},

		{name: "say", description: "Make the bot say something", access: accessModerator, params: []param{{name: "message", description: "Message", kind: paramText, required: true}}, run: (*Bot).cmdSay},
		{name: "dm", description: "Send a direct message to a member", access: accessModerator, params: []param{user(true), {name: "message", description: "Message", kind: paramText, required: true}}, run: (*Bot).cmdDM},
		{name: "announce", description: "Post an announcement", access: accessAdmin, params: []param{{name: "message", description: "Announcement", kind: paramText, required: true}}, run: (*Bot).cmdAnnounce},

		{
			name: "setup", description: "Configure the bot for this server", access: accessAdmin, slashOnly: true,
			params: []param{
				{name: "welcome_channel", description: "Channel for welcome and goodbye messages", kind: paramChannel},
				{name: "welcome_message", description: "Placeholders: {user} {username} {server} {membercount}", kind: paramString},
				{name: "goodbye_message", description: "Placeholders: {user} {username} {server} {membercount}", kind: paramString},
				{name: "mod_log_channel", description: "Channel that mirrors moderation cases", kind: paramChannel},
				{name: "announcement_channel", description: "Channel for announcements", kind: paramChannel},
				{name: "ticket_category", description: "Category for ticket channels", kind: paramChannel},
				{name: "auto_role", description: "Role given to new members", kind: paramRole},
				{name: "moderator_role", description: "Add a moderator role", kind: paramRole},
				{name: "admin_role", description: "Add an admin role", kind: paramRole},
				{name: "spam_protection", description: "Enable spam protection", kind: paramBool},
				{name: "max_messages", description: "Messages per minute before a strike", kind: paramInteger},
			},
			run: (*Bot).cmdSetup,
		},
		{
			name: "customcmd", description: "Manage custom commands", access: accessAdmin,
			params: []param{
				{name: "action", description: "create, delete or list", kind: paramString, required: true, choices: []string{"create", "delete", "list"}},
				{name: "name", description: "Command name", kind: paramString},
				{name: "response", description: "Response text", kind: paramText},
			},
			run: (*Bot).cmdCustomCommand,
		},
		{name: "ticketpanel", description: "Post the ticket creation panel", access: accessAdmin, run: (*Bot).cmdTicketPanel},
	}
}

// registerCommands syncs global application commands with the table and
// removes stale ones, including leftovers registered per guild.
func (b *Bot) registerCommands() error {
	var commands []*discordgo.ApplicationCommand
	for _, cmd := range b.commands {
		commands = append(commands, slashCommand(cmd))
	}

	appID := b.session.State.User.ID
	existing, err := b.session.ApplicationCommands(appID, "")
	if err != nil {
		for _, cmd := range commands {
			if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
				return err
			}
		}
		return nil
	}

	existingByName := make(map[string]*discordgo.ApplicationCommand)
	for _, cmd := range existing {
		existingByName[cmd.Name] = cmd
	}

	desired := make(map[string]struct{})
	for _, cmd := range commands {
		desired[cmd.Name] = struct{}{}
		if current, ok := existingByName[cmd.Name]; ok {
			if _, err := b.session.ApplicationCommandEdit(appID, "", current.ID, cmd); err != nil {
				return err
			}
			continue
		}
		if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
			return err
		}
	}

	for _, cmd := range existing {
		if _, ok := desired[cmd.Name]; ok {
			continue
		}
		_ = b.session.ApplicationCommandDelete(appID, "", cmd.ID)
	}

	for _, guild := range b.session.State.Guilds {
		if guild == nil {
			continue
		}
		guildCmds, err := b.session.ApplicationCommands(appID, guild.ID)
		if err != nil {
			continue
		}
		for _, cmd := range guildCmds {
			_ = b.session.ApplicationCommandDelete(appID, guild.ID, cmd.ID)
		}
	}
	return nil
}
