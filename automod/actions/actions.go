// State machine for moderation actions on a (user, channel) pair: cooldowns, mutes, and cast hide/unhide.
//
// Each transition that changes state writes exactly one moderation log entry. Transitions backed by the database write the entry in the same transaction as the state change; transitions backed by an external API write it only after the call succeeds.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/castmod/castmod/automod/authz"
	"github.com/castmod/castmod/automod/cachestore"
	"github.com/castmod/castmod/automod/flagstore"
	"github.com/castmod/castmod/automod/modstore"
	"github.com/castmod/castmod/models"
)

var (
	ErrMissingCastHash = errors.New("cast hash is required")
	ErrUnknownAction   = errors.New("unknown moderation action")
	ErrUnauthorized    = errors.New("not authorized to moderate channel")
)

// Manual action names, as accepted by Apply
const (
	ManualCooldown    = "cooldown"
	ManualEndCooldown = "end-cooldown"
	ManualMute        = "mute"
	ManualUnmute      = "unmute"
	ManualUnhide      = "unhide"
	ManualHide        = "hide"
)

// Actor recorded for transitions made by the engine rather than a moderator
const SystemActor = "system"

var DefaultCooldownDuration = 24 * time.Hour

const (
	hiddenFlag = "hidden"
	// restriction lookups are cached for at most this long
	restrictionCacheTTL = 5 * time.Minute
)

// The user a moderation action applies to
type Subject struct {
	Fid       int64  `json:"fid"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

// External side effects on the social network
type Moderator interface {
	HideCast(ctx context.Context, hash string) error
	UnhideCast(ctx context.Context, hash string) error
	InviteMember(ctx context.Context, channelID string, fid int64) error
}

type ManualAction struct {
	Action    string
	ChannelID string
	ActorFid  int64
	Subject   Subject
	CastHash  string
	// cooldown length; zero means DefaultCooldownDuration
	Duration time.Duration
	Reason   string
}

type Outcome struct {
	Action string `json:"action"`
	// false when the request was a no-op (eg, ending a cooldown that was not active)
	Changed bool                  `json:"changed"`
	Log     *models.ModerationLog `json:"log,omitempty"`
}

type Machine struct {
	Store     *modstore.Store
	Moderator Moderator
	Authz     authz.Authorizer
	Cache     cachestore.CacheStore
	Flags     flagstore.FlagStore
	Logger    *slog.Logger
	// defaults to time.Now
	Clock func() time.Time
}

func (m *Machine) now() time.Time {
	if m.Clock != nil {
		return m.Clock().UTC()
	}
	return time.Now().UTC()
}

func knownManualAction(action string) bool {
	switch action {
	case ManualCooldown, ManualEndCooldown, ManualMute, ManualUnmute, ManualUnhide, ManualHide:
		return true
	}
	return false
}

// Applies a manual action requested by a moderator. Authorization is checked before any state is touched; rejections are logged here, not in the moderation log.
func (m *Machine) Apply(ctx context.Context, act ManualAction) (Outcome, error) {
	if !knownManualAction(act.Action) {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownAction, act.Action)
	}
	logger := m.Logger.With("channel", act.ChannelID, "actor", act.ActorFid, "fid", act.Subject.Fid, "action", act.Action)

	res, err := m.Authz.CanUserModerateChannel(ctx, act.ActorFid, act.ChannelID)
	if err != nil {
		return Outcome{}, fmt.Errorf("checking channel moderation rights: %w", err)
	}
	if !res.Allowed {
		logger.Warn("unauthorized moderation attempt")
		return Outcome{}, ErrUnauthorized
	}
	ok, err := m.Authz.CanUserExecuteAction(ctx, act.ActorFid, act.ChannelID, act.Action)
	if err != nil {
		return Outcome{}, fmt.Errorf("checking action permission: %w", err)
	}
	if !ok {
		logger.Warn("moderator lacks permission for action")
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnauthorized, act.Action)
	}

	actor := strconv.FormatInt(act.ActorFid, 10)
	var out Outcome
	switch act.Action {
	case ManualCooldown:
		dur := act.Duration
		if dur <= 0 {
			dur = DefaultCooldownDuration
		}
		out, err = m.startCooldown(ctx, act.ChannelID, act.Subject, actor, dur, act.Reason)
	case ManualMute:
		out, err = m.mute(ctx, act.ChannelID, act.Subject, actor, act.Reason)
	case ManualEndCooldown:
		out, err = m.endRestriction(ctx, act.ChannelID, act.Subject, actor, modstore.EndCooldown, act.Reason)
	case ManualUnmute:
		out, err = m.endRestriction(ctx, act.ChannelID, act.Subject, actor, modstore.EndMute, act.Reason)
	case ManualUnhide:
		out, err = m.Unhide(ctx, act.ChannelID, act.Subject, act.CastHash, actor, act.Reason)
	case ManualHide:
		out, err = m.Hide(ctx, HideRequest{
			Action:    models.ActionHideQuietly,
			ChannelID: act.ChannelID,
			Subject:   act.Subject,
			CastHash:  act.CastHash,
			Actor:     actor,
			Reason:    act.Reason,
		})
	}
	if err != nil {
		actionErrorCount.WithLabelValues(act.Action).Inc()
		return Outcome{}, err
	}
	logger.Info("applied moderation action", "changed", out.Changed)
	return out, nil
}

func newLog(action, channelID string, s Subject, actor, reason string) *models.ModerationLog {
	return &models.ModerationLog{
		Action:                action,
		AffectedUserFid:       s.Fid,
		AffectedUsername:      s.Username,
		AffectedUserAvatarURL: s.AvatarURL,
		Actor:                 actor,
		ChannelID:             channelID,
		Reason:                reason,
	}
}

func (m *Machine) startCooldown(ctx context.Context, channelID string, s Subject, actor string, dur time.Duration, reason string) (Outcome, error) {
	expires := m.now().Add(dur)
	if reason == "" {
		reason = fmt.Sprintf("Cooldown until %s", expires.Format(time.RFC3339))
	}
	entry := newLog(models.ActionCooldown, channelID, s, actor, reason)
	entry.CreatedAt = m.now()
	if err := m.Store.StartCooldown(ctx, channelID, s.Fid, &expires, entry); err != nil {
		return Outcome{}, err
	}
	m.purgeRestriction(ctx, channelID, s.Fid)
	actionCount.WithLabelValues(models.ActionCooldown).Inc()
	return Outcome{Action: models.ActionCooldown, Changed: true, Log: entry}, nil
}

func (m *Machine) mute(ctx context.Context, channelID string, s Subject, actor, reason string) (Outcome, error) {
	if reason == "" {
		reason = "Muted"
	}
	entry := newLog(models.ActionMute, channelID, s, actor, reason)
	entry.CreatedAt = m.now()
	if err := m.Store.StartCooldown(ctx, channelID, s.Fid, nil, entry); err != nil {
		return Outcome{}, err
	}
	m.purgeRestriction(ctx, channelID, s.Fid)
	actionCount.WithLabelValues(models.ActionMute).Inc()
	return Outcome{Action: models.ActionMute, Changed: true, Log: entry}, nil
}

// Ends an active cooldown or mute. A no-op (nothing active) is not an error and writes no log.
func (m *Machine) endRestriction(ctx context.Context, channelID string, s Subject, actor string, filter modstore.EndFilter, reason string) (Outcome, error) {
	action := models.ActionCooldownEnded
	if filter == modstore.EndMute {
		action = models.ActionUnmuted
	}
	if reason == "" {
		switch filter {
		case modstore.EndMute:
			reason = "Unmuted"
		case modstore.EndExpired:
			reason = "Cooldown expired"
		default:
			reason = "Cooldown ended"
		}
	}
	now := m.now()
	entry := newLog(action, channelID, s, actor, reason)
	entry.CreatedAt = now
	changed, err := m.Store.EndCooldown(ctx, channelID, s.Fid, filter, now, entry)
	if err != nil {
		return Outcome{}, err
	}
	m.purgeRestriction(ctx, channelID, s.Fid)
	if !changed {
		return Outcome{Action: action, Changed: false}, nil
	}
	actionCount.WithLabelValues(action).Inc()
	return Outcome{Action: action, Changed: true, Log: entry}, nil
}

// Reveals a previously hidden cast. The unhide API error, if any, is returned as-is and nothing is logged.
func (m *Machine) Unhide(ctx context.Context, channelID string, s Subject, castHash, actor, reason string) (Outcome, error) {
	if castHash == "" {
		return Outcome{}, ErrMissingCastHash
	}
	if err := m.Moderator.UnhideCast(ctx, castHash); err != nil {
		return Outcome{}, fmt.Errorf("unhiding cast %s: %w", castHash, err)
	}
	if reason == "" {
		reason = "Unhidden by moderator"
	}
	entry := newLog(models.ActionUnhide, channelID, s, actor, reason)
	entry.CastHash = &castHash
	entry.CreatedAt = m.now()
	if err := m.Store.InsertLog(ctx, entry); err != nil {
		return Outcome{}, err
	}
	if err := m.Flags.Remove(ctx, castFlagKey(castHash), []string{hiddenFlag}); err != nil {
		m.Logger.Warn("clearing hidden cast flag", "err", err, "cast", castHash)
	}
	actionCount.WithLabelValues(models.ActionUnhide).Inc()
	return Outcome{Action: models.ActionUnhide, Changed: true, Log: entry}, nil
}

type HideRequest struct {
	// hideQuietly or warnAndHide
	Action    string
	ChannelID string
	Subject   Subject
	CastHash  string
	Actor     string
	Reason    string
}

func castFlagKey(hash string) string {
	return "cast/" + hash
}

// Hides a cast. Re-hiding a cast already hidden by this service is a no-op.
func (m *Machine) Hide(ctx context.Context, req HideRequest) (Outcome, error) {
	switch req.Action {
	case models.ActionHideQuietly, models.ActionWarnAndHide:
	default:
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}
	if req.CastHash == "" {
		return Outcome{}, ErrMissingCastHash
	}
	hidden, err := flagstore.Has(ctx, m.Flags, castFlagKey(req.CastHash), hiddenFlag)
	if err != nil {
		return Outcome{}, err
	}
	if hidden {
		return Outcome{Action: req.Action, Changed: false}, nil
	}
	if err := m.Moderator.HideCast(ctx, req.CastHash); err != nil {
		return Outcome{}, fmt.Errorf("hiding cast %s: %w", req.CastHash, err)
	}
	if err := m.Flags.Add(ctx, castFlagKey(req.CastHash), []string{hiddenFlag}); err != nil {
		m.Logger.Warn("setting hidden cast flag", "err", err, "cast", req.CastHash)
	}
	actor := req.Actor
	if actor == "" {
		actor = SystemActor
	}
	entry := newLog(req.Action, req.ChannelID, req.Subject, actor, req.Reason)
	entry.CastHash = &req.CastHash
	entry.CreatedAt = m.now()
	if err := m.Store.InsertLog(ctx, entry); err != nil {
		return Outcome{}, err
	}
	actionCount.WithLabelValues(req.Action).Inc()
	return Outcome{Action: req.Action, Changed: true, Log: entry}, nil
}

// Invites the user to the channel. Invites are not moderation transitions and are not written to the moderation log.
func (m *Machine) Invite(ctx context.Context, channelID string, s Subject) error {
	if err := m.Moderator.InviteMember(ctx, channelID, s.Fid); err != nil {
		return fmt.Errorf("inviting %d to %s: %w", s.Fid, channelID, err)
	}
	m.Logger.Info("invited member", "channel", channelID, "fid", s.Fid)
	actionCount.WithLabelValues("invite").Inc()
	return nil
}
