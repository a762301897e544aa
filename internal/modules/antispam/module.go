package antispam

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"guildwarden/internal/escalation"
	"guildwarden/internal/metrics"
	"guildwarden/internal/moderation"
	"guildwarden/internal/ratewindow"
)

const DefaultWindow = time.Minute

type Outcome struct {
	Flagged  bool
	Count    int
	Decision escalation.Decision
	Purged   int
	Case     *moderation.Case
}

// Module runs the spam pipeline: policy, rate window, escalation,
// sanctions, then the case write.
type Module struct {
	window    time.Duration
	policies  moderation.PolicySource
	tracker   ratewindow.Tracker
	engine    *escalation.Engine
	sanctions moderation.Sanctions
	logger    *zap.Logger
	metrics   *metrics.Recorder
	actorID   atomic.Value
}

func New(window time.Duration, policies moderation.PolicySource, tracker ratewindow.Tracker, engine *escalation.Engine, sanctions moderation.Sanctions, logger *zap.Logger, recorder *metrics.Recorder) *Module {
	if window <= 0 {
		window = DefaultWindow
	}
	m := &Module{
		window:    window,
		policies:  policies,
		tracker:   tracker,
		engine:    engine,
		sanctions: sanctions,
		logger:    logger,
		metrics:   recorder,
	}
	m.actorID.Store("")
	return m
}

// SetActorID sets the user id recorded as moderator on automatic cases.
func (m *Module) SetActorID(id string) {
	m.actorID.Store(id)
}

func (m *Module) actor() string {
	return m.actorID.Load().(string)
}

func (m *Module) HandleMessage(ctx context.Context, ev moderation.MessageEvent) Outcome {
	policy, ok, err := m.policies.GetPolicy(ctx, ev.GuildID)
	if err != nil {
		m.logger.Warn("policy lookup failed", zap.String("guild_id", ev.GuildID), zap.Error(err))
		return Outcome{}
	}
	if !ok || !policy.EnableSpamProtection {
		return Outcome{}
	}

	at := ev.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	res, err := m.tracker.Record(ctx, ev.GuildID, ev.UserID, at, m.window, policy.MaxMessages())
	if err != nil {
		m.logger.Warn("rate window unavailable", zap.String("guild_id", ev.GuildID), zap.String("user_id", ev.UserID), zap.Error(err))
		return Outcome{}
	}
	if res.WithinLimit {
		return Outcome{Count: res.Count}
	}

	m.metrics.SpamDetected(ctx)
	decision := m.engine.Escalate(ev.GuildID, ev.UserID, res.Count)
	out := Outcome{Flagged: true, Count: res.Count, Decision: decision}
	out.Purged = m.apply(ctx, ev, decision)

	c, err := m.engine.Commit(ctx, decision, m.actor())
	if err != nil {
		m.logger.Error("spam case not recorded",
			zap.String("guild_id", ev.GuildID),
			zap.String("user_id", ev.UserID),
			zap.String("action", decision.Action.String()),
			zap.Error(err),
		)
		return out
	}
	out.Case = &c
	return out
}

func (m *Module) apply(ctx context.Context, ev moderation.MessageEvent, decision escalation.Decision) int {
	purged, err := m.sanctions.DeleteRecentMessages(ctx, ev.GuildID, ev.ChannelID, ev.UserID, decision.MessagesToPurge)
	if err != nil {
		m.logger.Warn("purge failed", zap.String("guild_id", ev.GuildID), zap.String("user_id", ev.UserID), zap.Error(err))
	}

	reason := decision.Reason()
	var notice string
	switch decision.Action {
	case moderation.ActionWarn:
		notice = fmt.Sprintf("<@%s>, please slow down! You've been warned for spamming. (Warning %d/%d)", ev.UserID, decision.StrikeOrdinal, escalation.MaxStrikes)
	case moderation.ActionTimeout:
		err = m.sanctions.Timeout(ctx, ev.GuildID, ev.UserID, decision.TimeoutMinutes, reason)
		notice = fmt.Sprintf("<@%s> has been timed out for %d minutes due to repeated spamming. (Warning %d/%d)", ev.UserID, decision.TimeoutMinutes, decision.StrikeOrdinal, escalation.MaxStrikes)
	case moderation.ActionKick:
		err = m.sanctions.Kick(ctx, ev.GuildID, ev.UserID, reason)
		notice = fmt.Sprintf("<@%s> has been kicked for excessive spamming. (%d/%d warnings)", ev.UserID, decision.StrikeOrdinal, escalation.MaxStrikes)
	default:
		err = fmt.Errorf("no sanction for action %q", decision.Action)
	}

	if decision.Action != moderation.ActionWarn {
		m.metrics.Sanction(ctx, decision.Action.String(), err == nil)
		if err != nil {
			m.logger.Warn("sanction failed",
				zap.String("guild_id", ev.GuildID),
				zap.String("user_id", ev.UserID),
				zap.String("action", decision.Action.String()),
				zap.Error(err),
			)
		}
	}

	if notice != "" {
		if err := m.sanctions.Notify(ctx, ev.ChannelID, notice); err != nil {
			m.logger.Debug("spam notice failed", zap.String("channel_id", ev.ChannelID), zap.Error(err))
		}
	}
	return purged
}
