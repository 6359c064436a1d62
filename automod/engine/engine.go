package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/castmod/castmod/automod/actions"
	"github.com/castmod/castmod/automod/cachestore"
	"github.com/castmod/castmod/automod/countstore"
	"github.com/castmod/castmod/automod/helpers"
	"github.com/castmod/castmod/automod/registry"
	"github.com/castmod/castmod/automod/setstore"
	"github.com/castmod/castmod/models"
)

// Set of user fids rejected from every channel, unless the channel opts out
const BannedListSet = "banned-fids"

// Counters maintained for every processed cast
const (
	// keyed by "<channel>:<fid>"
	ChannelCastsCounter = "channel-casts"
	// keyed by channel; casts which received a cast action
	ChannelTriggersCounter = "channel-triggers"
	// distinct counter, bucketed by channel; author fids
	ChannelAuthorsCounter = "channel-authors"
)

// how long a cast's decision is remembered, to absorb duplicate deliveries
var CastDedupeTTL = time.Hour

type ChannelStore interface {
	GetChannel(ctx context.Context, id string) (*models.ModeratedChannel, error)
}

// runtime for evaluating channel rules, and applying the resulting moderation actions.
//
// NOTE: careful when initializing: several fields should not be null or zero, even though they are pointer type.
type Engine struct {
	Logger   *slog.Logger
	Rules    *RuleSet
	Channels ChannelStore
	Actions  *actions.Machine
	Counters countstore.CountStore
	Sets     setstore.SetStore
	Cache    cachestore.CacheStore
	// per-check bound when a rule definition doesn't declare one; zero means DefaultCheckTimeout
	CheckTimeout time.Duration
}

func (eng *Engine) checkTimeout() time.Duration {
	if eng.CheckTimeout > 0 {
		return eng.CheckTimeout
	}
	return DefaultCheckTimeout
}

// Outcome of processing an inbound event
type Decision struct {
	Result        bool   `json:"result"`
	Reason        string `json:"reason"`
	TriggeredRule string `json:"triggeredRule,omitempty"`
	// moderation action taken, if any
	Action string `json:"action,omitempty"`
}

type MemberRequest struct {
	ChannelID string
	User      Profile
}

type CastEvent struct {
	ChannelID string
	User      Profile
	Cast      Cast
}

func subjectOf(p Profile) actions.Subject {
	return actions.Subject{
		Fid:       p.Fid,
		Username:  p.Username,
		AvatarURL: p.PfpURL,
	}
}

func (eng *Engine) isBanned(ctx context.Context, ch *models.ModeratedChannel, fid int64) (bool, error) {
	if ch.DisableBannedList {
		return false, nil
	}
	return eng.Sets.InSet(ctx, BannedListSet, fmt.Sprintf("%d", fid))
}

// Decides whether a user requesting to join the channel is admitted, and invites them when the channel has auto-invite enabled.
func (eng *Engine) ProcessMemberRequest(ctx context.Context, req MemberRequest) (dec Decision, err error) {
	start := time.Now()
	eventProcessCount.WithLabelValues("member").Inc()
	defer func() {
		eventProcessDuration.WithLabelValues("member").Observe(time.Since(start).Seconds())
		if err != nil {
			eventErrorCount.WithLabelValues("member").Inc()
		}
	}()
	// similar to an HTTP server, we want to recover any panics from processing
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("member request processing exception", "err", r, "channel", req.ChannelID, "fid", req.User.Fid)
			err = fmt.Errorf("processing member request: %v", r)
		}
	}()

	logger := eng.Logger.With("channel", req.ChannelID, "fid", req.User.Fid)
	ch, err := eng.Channels.GetChannel(ctx, req.ChannelID)
	if err != nil {
		return Decision{}, err
	}
	if !ch.Active {
		return Decision{Result: false, Reason: "Channel moderation is not active"}, nil
	}
	banned, err := eng.isBanned(ctx, ch, req.User.Fid)
	if err != nil {
		return Decision{}, fmt.Errorf("checking banned list: %w", err)
	}
	if banned {
		logger.Info("rejected banned user")
		return Decision{Result: false, Reason: "User is on the banned list"}, nil
	}

	group, err := registry.ParseRuleGroup(ch.MemberRules)
	if err != nil {
		return Decision{}, err
	}
	if group == nil {
		return Decision{Result: false, Reason: "No member rules configured"}, nil
	}
	ev := eng.Evaluate(ctx, group, registry.ScopeUser, Input{
		User:    req.User,
		Channel: Channel{ID: ch.ID},
	})
	dec = Decision{Result: ev.Result, Reason: ev.Reason, TriggeredRule: ev.TriggeredRuleName}
	logger.Info("evaluated member rules", "result", ev.Result, "reason", ev.Reason, "rule", ev.TriggeredRuleName)

	if ev.Result && ch.AutoInvite {
		if err := eng.Actions.Invite(ctx, ch.ID, subjectOf(req.User)); err != nil {
			return dec, err
		}
		dec.Action = "invite"
	}
	return dec, nil
}

// cast hashes come from the event source unvalidated, so keys are bounded to a fixed length
func castDedupeKey(channelID, hash string) string {
	return channelID + ":" + helpers.HashOfString(hash)
}

// Moderates a new cast in the channel: restricted (muted, cooling down, or banned) authors are hidden quietly; otherwise the channel's cast rules are evaluated and a failing cast gets the channel's configured cast action.
//
// Repeat deliveries of the same cast within CastDedupeTTL return the first decision without re-evaluating.
func (eng *Engine) ProcessCast(ctx context.Context, evt CastEvent) (dec Decision, err error) {
	start := time.Now()
	eventProcessCount.WithLabelValues("cast").Inc()
	defer func() {
		eventProcessDuration.WithLabelValues("cast").Observe(time.Since(start).Seconds())
		if err != nil {
			eventErrorCount.WithLabelValues("cast").Inc()
		}
	}()
	// similar to an HTTP server, we want to recover any panics from processing
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("cast processing exception", "err", r, "channel", evt.ChannelID, "cast", evt.Cast.Hash)
			err = fmt.Errorf("processing cast: %v", r)
		}
	}()

	if evt.Cast.Hash == "" {
		return Decision{}, actions.ErrMissingCastHash
	}
	logger := eng.Logger.With("channel", evt.ChannelID, "fid", evt.User.Fid, "cast", evt.Cast.Hash)
	dedupeKey := castDedupeKey(evt.ChannelID, evt.Cast.Hash)

	var cached Decision
	ok, err := cachestore.GetJSON(ctx, eng.Cache, "cast-decision", dedupeKey, &cached)
	if err != nil {
		logger.Warn("cast dedupe cache read failed", "err", err)
	} else if ok {
		logger.Debug("duplicate cast delivery")
		castDuplicateCount.Inc()
		return cached, nil
	}

	dec, err = eng.decideCast(ctx, evt, logger)
	if err != nil {
		return Decision{}, err
	}

	if err := eng.Counters.Increment(ctx, ChannelCastsCounter, fmt.Sprintf("%s:%d", evt.ChannelID, evt.User.Fid)); err != nil {
		logger.Warn("incrementing cast counter", "err", err)
	}
	if err := eng.Counters.IncrementDistinct(ctx, ChannelAuthorsCounter, evt.ChannelID, strconv.FormatInt(evt.User.Fid, 10)); err != nil {
		logger.Warn("incrementing author counter", "err", err)
	}
	if dec.Action != "" {
		if err := eng.Counters.Increment(ctx, ChannelTriggersCounter, evt.ChannelID); err != nil {
			logger.Warn("incrementing trigger counter", "err", err)
		}
	}
	if err := cachestore.SetJSON(ctx, eng.Cache, "cast-decision", dedupeKey, dec, CastDedupeTTL); err != nil {
		logger.Warn("cast dedupe cache write failed", "err", err)
	}
	return dec, nil
}

func (eng *Engine) decideCast(ctx context.Context, evt CastEvent, logger *slog.Logger) (Decision, error) {
	ch, err := eng.Channels.GetChannel(ctx, evt.ChannelID)
	if err != nil {
		return Decision{}, err
	}
	if !ch.Active {
		return Decision{Result: true, Reason: "Channel moderation is not active"}, nil
	}
	subject := subjectOf(evt.User)

	r, err := eng.Actions.ActiveRestriction(ctx, ch.ID, evt.User.Fid)
	if err != nil {
		return Decision{}, fmt.Errorf("checking restriction: %w", err)
	}
	if r.Active {
		reason := "User is muted"
		if !r.Muted && r.ExpiresAt != nil {
			reason = fmt.Sprintf("User is in cooldown until %s", r.ExpiresAt.UTC().Format(time.RFC3339))
		}
		return eng.hideQuietly(ctx, ch, evt, subject, reason)
	}

	banned, err := eng.isBanned(ctx, ch, evt.User.Fid)
	if err != nil {
		return Decision{}, fmt.Errorf("checking banned list: %w", err)
	}
	if banned {
		return eng.hideQuietly(ctx, ch, evt, subject, "User is on the banned list")
	}

	group, err := registry.ParseRuleGroup(ch.CastRules)
	if err != nil {
		return Decision{}, err
	}
	cast := evt.Cast
	ev := eng.Evaluate(ctx, group, registry.ScopeCast, Input{
		User:    evt.User,
		Channel: Channel{ID: ch.ID},
		Cast:    &cast,
	})
	logger.Info("evaluated cast rules", "result", ev.Result, "reason", ev.Reason, "rule", ev.TriggeredRuleName)
	dec := Decision{Result: ev.Result, Reason: ev.Reason, TriggeredRule: ev.TriggeredRuleName}
	if ev.Result {
		return dec, nil
	}

	action := ch.CastAction
	if action == "" {
		action = models.ActionHideQuietly
	}
	out, err := eng.Actions.ApplyCastAction(ctx, actions.CastActionRequest{
		Action:        action,
		ChannelID:     ch.ID,
		Subject:       subject,
		CastHash:      evt.Cast.Hash,
		Reason:        ev.Reason,
		CooldownHours: ch.CooldownHours,
	})
	if err != nil {
		return dec, fmt.Errorf("applying cast action: %w", err)
	}
	dec.Action = out.Action
	return dec, nil
}

func (eng *Engine) hideQuietly(ctx context.Context, ch *models.ModeratedChannel, evt CastEvent, s actions.Subject, reason string) (Decision, error) {
	_, err := eng.Actions.Hide(ctx, actions.HideRequest{
		Action:    models.ActionHideQuietly,
		ChannelID: ch.ID,
		Subject:   s,
		CastHash:  evt.Cast.Hash,
		Actor:     actions.SystemActor,
		Reason:    reason,
	})
	if err != nil {
		return Decision{}, err
	}
	return Decision{Result: false, Reason: reason, Action: models.ActionHideQuietly}, nil
}

func (e *Engine) GetCount(ctx context.Context, name, val, period string) (int, error) {
	return e.Counters.GetCount(ctx, name, val, period)
}

// Cast activity for a channel over one counter period
type ChannelStats struct {
	Period string `json:"period"`
	// distinct cast authors
	Authors int `json:"authors"`
	// casts which received the channel's cast action
	Triggered int `json:"triggered"`
}

func (e *Engine) ChannelStats(ctx context.Context, channelID, period string) (ChannelStats, error) {
	if !countstore.ValidPeriod(period) {
		return ChannelStats{}, fmt.Errorf("unknown counter period: %q", period)
	}
	authors, err := e.Counters.GetCountDistinct(ctx, ChannelAuthorsCounter, channelID, period)
	if err != nil {
		return ChannelStats{}, err
	}
	triggered, err := e.Counters.GetCount(ctx, ChannelTriggersCounter, channelID, period)
	if err != nil {
		return ChannelStats{}, err
	}
	return ChannelStats{Period: period, Authors: authors, Triggered: triggered}, nil
}

// checks if `val` is an element of set `name`
func (e *Engine) InSet(ctx context.Context, name, val string) (bool, error) {
	return e.Sets.InSet(ctx, name, val)
}

// Rejects a rule group that could not be evaluated cleanly for the given event kind.
func (e *Engine) ValidateRules(group *registry.RuleGroup, kind registry.Scope) error {
	return e.Rules.Registry.ValidateGroup(group, kind)
}

