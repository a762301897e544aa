package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
)

type access int

const (
	accessEveryone access = iota
	accessModerator
	accessAdmin
)

type paramKind int

const (
	paramString paramKind = iota
	// paramText consumes the rest of a prefix message.
	paramText
	paramInteger
	paramUser
	paramChannel
	paramRole
	paramBool
)

type param struct {
	name        string
	description string
	kind        paramKind
	required    bool
	choices     []string
}

type command struct {
	name        string
	aliases     []string
	description string
	params      []param
	access      access
	slashOnly   bool
	run         func(b *Bot, ctx context.Context, inv *invocation) (reply, error)
}

// invocation is one command call, from either a slash interaction or a
// prefix message.
type invocation struct {
	guildID   string
	channelID string
	messageID string
	author    *discordgo.User
	perms     int64
	roles     []string
	args      map[string]string
}

func (inv *invocation) arg(name string) string {
	return inv.args[name]
}

func (inv *invocation) argOr(name, fallback string) string {
	if value := strings.TrimSpace(inv.args[name]); value != "" {
		return value
	}
	return fallback
}

func (inv *invocation) intArg(name string, fallback int) int {
	value, ok := inv.args[name]
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (inv *invocation) boolArg(name string) (bool, bool) {
	value, ok := inv.args[name]
	if !ok {
		return false, false
	}
	parsed, err := strconv.ParseBool(value)
	return parsed, err == nil
}

type reply struct {
	content   string
	embed     *discordgo.MessageEmbed
	ephemeral bool
	// quiet suppresses the reply for prefix invocations.
	quiet bool
}

var errUsage = errors.New("invalid arguments")

var (
	userMention    = regexp.MustCompile(`^<@!?(\d+)>$`)
	channelMention = regexp.MustCompile(`^<#(\d+)>$`)
	roleMention    = regexp.MustCompile(`^<@&(\d+)>$`)
	snowflake      = regexp.MustCompile(`^\d{15,21}$`)
)

// parsePrefix splits "!name rest" into the lowercased name and the rest.
func parsePrefix(content, prefix string) (string, string, bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", "", false
	}
	body := strings.TrimSpace(strings.TrimPrefix(content, prefix))
	if body == "" {
		return "", "", false
	}
	name, rest, _ := strings.Cut(body, " ")
	return strings.ToLower(name), strings.TrimSpace(rest), true
}

// bindArgs maps prefix tokens onto the command's parameters in order. An
// optional parameter whose token does not parse is skipped.
func bindArgs(cmd *command, rest string) (map[string]string, error) {
	args := make(map[string]string)
	tokens := strings.Fields(rest)
	idx := 0
	for _, p := range cmd.params {
		if p.kind == paramText {
			if idx < len(tokens) {
				args[p.name] = strings.Join(tokens[idx:], " ")
				idx = len(tokens)
			} else if p.required {
				return nil, fmt.Errorf("%w: missing %s", errUsage, p.name)
			}
			break
		}
		if idx >= len(tokens) {
			if p.required {
				return nil, fmt.Errorf("%w: missing %s", errUsage, p.name)
			}
			continue
		}
		value, ok := parseToken(tokens[idx], p)
		if !ok {
			if p.required {
				return nil, fmt.Errorf("%w: bad %s %q", errUsage, p.name, tokens[idx])
			}
			continue
		}
		args[p.name] = value
		idx++
	}
	return args, nil
}

func parseToken(token string, p param) (string, bool) {
	switch p.kind {
	case paramInteger:
		if _, err := strconv.Atoi(token); err != nil {
			return "", false
		}
		return token, true
	case paramBool:
		parsed, err := strconv.ParseBool(strings.ToLower(token))
		if err != nil {
			switch strings.ToLower(token) {
			case "on", "yes", "enable":
				return "true", true
			case "off", "no", "disable":
				return "false", true
			}
			return "", false
		}
		return strconv.FormatBool(parsed), true
	case paramUser:
		return parseMention(token, userMention)
	case paramChannel:
		return parseMention(token, channelMention)
	case paramRole:
		return parseMention(token, roleMention)
	default:
		if len(p.choices) > 0 && !slices.Contains(p.choices, strings.ToLower(token)) {
			return "", false
		}
		if len(p.choices) > 0 {
			return strings.ToLower(token), true
		}
		return token, true
	}
}

func parseMention(token string, pattern *regexp.Regexp) (string, bool) {
	if m := pattern.FindStringSubmatch(token); m != nil {
		return m[1], true
	}
	if snowflake.MatchString(token) {
		return token, true
	}
	return "", false
}

// optionArgs flattens slash command options into the same map bindArgs
// produces.
func optionArgs(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]string {
	args := make(map[string]string, len(options))
	for _, opt := range options {
		switch opt.Type {
		case discordgo.ApplicationCommandOptionInteger:
			args[opt.Name] = strconv.FormatInt(opt.IntValue(), 10)
		case discordgo.ApplicationCommandOptionBoolean:
			args[opt.Name] = strconv.FormatBool(opt.BoolValue())
		case discordgo.ApplicationCommandOptionString:
			args[opt.Name] = opt.StringValue()
		default:
			args[opt.Name] = fmt.Sprint(opt.Value)
		}
	}
	return args
}

func usage(cmd *command, prefix string) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(cmd.name)
	for _, p := range cmd.params {
		name := p.name
		if len(p.choices) > 0 {
			name = strings.Join(p.choices, "|")
		}
		if p.required {
			fmt.Fprintf(&b, " <%s>", name)
		} else {
			fmt.Fprintf(&b, " [%s]", name)
		}
	}
	return b.String()
}

func indexCommands(commands []*command) map[string]*command {
	byName := make(map[string]*command, len(commands))
	for _, cmd := range commands {
		byName[cmd.name] = cmd
		for _, alias := range cmd.aliases {
			byName[alias] = cmd
		}
	}
	return byName
}

func optionType(kind paramKind) discordgo.ApplicationCommandOptionType {
	switch kind {
	case paramInteger:
		return discordgo.ApplicationCommandOptionInteger
	case paramUser:
		return discordgo.ApplicationCommandOptionUser
	case paramChannel:
		return discordgo.ApplicationCommandOptionChannel
	case paramRole:
		return discordgo.ApplicationCommandOptionRole
	case paramBool:
		return discordgo.ApplicationCommandOptionBoolean
	default:
		return discordgo.ApplicationCommandOptionString
	}
}

// slashCommand builds the application command registered for cmd.
func slashCommand(cmd *command) *discordgo.ApplicationCommand {
	app := &discordgo.ApplicationCommand{Name: cmd.name, Description: cmd.description}
	for _, p := range cmd.params {
		opt := &discordgo.ApplicationCommandOption{
			Type:        optionType(p.kind),
			Name:        p.name,
			Description: p.description,
			Required:    p.required,
		}
		for _, choice := range p.choices {
			opt.Choices = append(opt.Choices, &discordgo.ApplicationCommandOptionChoice{Name: choice, Value: choice})
		}
		app.Options = append(app.Options, opt)
	}
	return app
}
