package moderation

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownAction = errors.New("unknown moderation action")

// Action is the closed set of moderation actions a case can record.
type Action string

const (
	ActionWarn        Action = "warn"
	ActionTimeout     Action = "timeout"
	ActionKick        Action = "kick"
	ActionBan         Action = "ban"
	ActionTicketClose Action = "ticket_close"
)

// Actions lists every valid action in display order.
var Actions = []Action{ActionWarn, ActionTimeout, ActionKick, ActionBan, ActionTicketClose}

func ParseAction(value string) (Action, error) {
	action := Action(strings.ToLower(strings.TrimSpace(value)))
	if !action.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, value)
	}
	return action, nil
}

func (a Action) Valid() bool {
	switch a {
	case ActionWarn, ActionTimeout, ActionKick, ActionBan, ActionTicketClose:
		return true
	default:
		return false
	}
}

func (a Action) String() string {
	return string(a)
}

// Label is the past-tense form used in replies and mod-log posts.
func (a Action) Label() string {
	switch a {
	case ActionWarn:
		return "Warned"
	case ActionTimeout:
		return "Timed out"
	case ActionKick:
		return "Kicked"
	case ActionBan:
		return "Banned"
	case ActionTicketClose:
		return "Ticket closed"
	default:
		panic(fmt.Sprintf("moderation: unhandled action %q", string(a)))
	}
}
