package moderation

import (
	"errors"
	"time"
)

// Record is a moderation action before it has been assigned a case number.
type Record struct {
	GuildID         string
	TargetUserID    string
	ModeratorUserID string
	Action          Action
	Reason          string
	DurationMinutes *int
	CreatedAt       time.Time
}

// Case is a Record persisted with its per-guild case number.
type Case struct {
	ID         string
	CaseNumber int
	Record
}

func (r Record) Validate() error {
	if r.GuildID == "" {
		return errors.New("record guild id is required")
	}
	if r.TargetUserID == "" {
		return errors.New("record target user id is required")
	}
	if !r.Action.Valid() {
		return ErrUnknownAction
	}
	if r.DurationMinutes != nil && *r.DurationMinutes < 0 {
		return errors.New("record duration must not be negative")
	}
	return nil
}

func Minutes(value int) *int {
	return &value
}
