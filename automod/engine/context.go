package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/castmod/castmod/automod/helpers"
	"github.com/castmod/castmod/automod/registry"
)

// Longest message a check may report; longer messages are truncated.
const MaxMessageLength = 75

// Outcome of a single check function. Message is always present after the engine normalizes it.
type CheckResult struct {
	Result  bool   `json:"result"`
	Message string `json:"message"`
}

func (r CheckResult) normalize(name string) CheckResult {
	msg := strings.TrimSpace(r.Message)
	if msg == "" {
		if r.Result {
			msg = name + " passed"
		} else {
			msg = name + " did not pass"
		}
	}
	r.Message = helpers.TruncateRunes(msg, MaxMessageLength)
	return r
}

// The interface exposed to check functions: the subject under evaluation, the configured rule instance (with defaults applied), and indirect access to engine state.
type CheckContext struct {
	// Bounded by the rule's timeout. Network calls must use this.
	Ctx context.Context
	// Errors from state accessors (counters, sets) roll up here. A non-nil value is treated like an error returned from the check.
	Err error
	// slog logger handle, with channel, user, and rule fields pre-populated. Pointer, but expected to never be nil.
	Logger *slog.Logger

	User    Profile
	Channel Channel
	Rule    registry.RuleInstance
	// only set for cast evaluation
	Cast *Cast

	engine *Engine // NOTE: pointer, but expected never to be nil
}

func NewCheckContext(ctx context.Context, eng *Engine, input Input, inst registry.RuleInstance) *CheckContext {
	return &CheckContext{
		Ctx:     ctx,
		Logger:  eng.Logger.With("channel", input.Channel.ID, "fid", input.User.Fid, "rule", inst.RuleName),
		User:    input.User,
		Channel: input.Channel,
		Rule:    inst,
		Cast:    input.Cast,
		engine:  eng,
	}
}

func (c *CheckContext) GetCount(name, val, period string) int {
	out, err := c.engine.Counters.GetCount(c.Ctx, name, val, period)
	if err != nil {
		if nil == c.Err {
			c.Err = err
		}
		return 0
	}
	return out
}

// checks if `val` is an element of set `name`
func (c *CheckContext) InSet(name, val string) bool {
	out, err := c.engine.Sets.InSet(c.Ctx, name, val)
	if err != nil {
		if nil == c.Err {
			c.Err = err
		}
		return false
	}
	return out
}

// rule argument accessors. Absent or mistyped arguments return zero values; configuration validation rejects those before they reach a check.

func (c *CheckContext) StringArg(name string) string {
	s, _ := c.Rule.Args[name].(string)
	return s
}

func (c *CheckContext) NumberArg(name string) (float64, bool) {
	v, ok := c.Rule.Args[name]
	if !ok || v == nil {
		return 0, false
	}
	return registry.ToFloat(v)
}

func (c *CheckContext) BoolArg(name string) bool {
	b, _ := c.Rule.Args[name].(bool)
	return b
}

func (c *CheckContext) StringsArg(name string) []string {
	l, _ := registry.ToStrings(c.Rule.Args[name])
	return l
}
