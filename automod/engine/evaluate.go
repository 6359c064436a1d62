package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/castmod/castmod/automod/registry"
)

var (
	// default bound on a single check invocation, when the rule definition doesn't declare one
	DefaultCheckTimeout = 10 * time.Second
	// extra time the engine waits past the check's own deadline before abandoning it
	CheckTimeoutGrace = 250 * time.Millisecond

	ErrCheckTimeout = errors.New("check timed out")
	ErrCheckPanic   = errors.New("check panicked")
	ErrCheckMissing = errors.New("no check function registered")
)

const (
	reasonAllPassed  = "All rules passed"
	reasonNonePassed = "No rules passed"
)

// Record of one dispatched rule, for auditing. Result and Message are the check's own output, before inversion.
type RuleTrace struct {
	RuleID   string        `json:"ruleId,omitempty"`
	RuleName string        `json:"ruleName"`
	Inverted bool          `json:"inverted"`
	Result   bool          `json:"result"`
	Message  string        `json:"message"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

type Evaluation struct {
	Result bool   `json:"result"`
	Reason string `json:"reason"`
	// rule whose outcome decided the group, if any
	TriggeredRuleName string      `json:"triggeredRuleName,omitempty"`
	Trace             []RuleTrace `json:"trace,omitempty"`
}

type evaluator struct {
	eng      *Engine
	ctx      context.Context
	kind     registry.Scope
	input    Input
	trace    []RuleTrace
	visiting map[*registry.RuleGroup]bool
}

type nodeResult struct {
	result bool
	reason string
	rule   string
}

// Evaluates a rule group against the input, for events of the given kind (registry.ScopeUser or registry.ScopeCast).
//
// Children are evaluated strictly in order, with AND/OR short-circuit. Check failures (errors, timeouts, panics) are converted to results by the rule's failure policy; this method always returns a definite result.
func (eng *Engine) Evaluate(ctx context.Context, group *registry.RuleGroup, kind registry.Scope, input Input) Evaluation {
	start := time.Now()
	ev := &evaluator{
		eng:      eng,
		ctx:      ctx,
		kind:     kind,
		input:    input,
		visiting: map[*registry.RuleGroup]bool{},
	}
	var out nodeResult
	if group == nil {
		out = nodeResult{result: true, reason: reasonAllPassed}
	} else {
		out = ev.group(group)
	}
	evaluationDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	evaluationCount.WithLabelValues(string(kind), fmt.Sprintf("%t", out.result)).Inc()
	return Evaluation{
		Result:            out.result,
		Reason:            out.reason,
		TriggeredRuleName: out.rule,
		Trace:             ev.trace,
	}
}

func (ev *evaluator) group(g *registry.RuleGroup) nodeResult {
	if ev.visiting[g] {
		ev.eng.Logger.Error("rule group cycle during evaluation", "group", g.ID, "channel", ev.input.Channel.ID)
		return nodeResult{result: false, reason: "Invalid rule configuration"}
	}
	ev.visiting[g] = true
	defer delete(ev.visiting, g)

	switch g.Operator {
	case registry.OperatorAnd:
		last := nodeResult{result: true, reason: reasonAllPassed}
		for _, n := range g.Children {
			r := ev.node(n)
			if !r.result {
				return r
			}
			last = r
		}
		return last
	case registry.OperatorOr:
		var reasons []string
		seen := map[string]bool{}
		for _, n := range g.Children {
			r := ev.node(n)
			if r.result {
				return r
			}
			if r.reason != "" && !seen[r.reason] {
				seen[r.reason] = true
				reasons = append(reasons, r.reason)
			}
		}
		if len(reasons) == 0 {
			return nodeResult{result: false, reason: reasonNonePassed}
		}
		return nodeResult{result: false, reason: strings.Join(reasons, "; ")}
	default:
		ev.eng.Logger.Error("unknown rule group operator", "group", g.ID, "operator", g.Operator, "channel", ev.input.Channel.ID)
		return nodeResult{result: false, reason: "Invalid rule configuration"}
	}
}

func (ev *evaluator) node(n registry.Node) nodeResult {
	switch {
	case n.Rule != nil:
		return ev.rule(*n.Rule)
	case n.Group != nil:
		return ev.group(n.Group)
	}
	return nodeResult{result: false, reason: "Invalid rule configuration"}
}

func (ev *evaluator) rule(inst registry.RuleInstance) nodeResult {
	eng := ev.eng
	logger := eng.Logger.With("channel", ev.input.Channel.ID, "fid", ev.input.User.Fid, "rule", inst.RuleName)

	def, err := eng.Rules.Registry.Get(inst.RuleName)
	if err != nil {
		logger.Warn("rule definition not found during evaluation")
		ev.trace = append(ev.trace, RuleTrace{RuleID: inst.ID, RuleName: inst.RuleName, Inverted: inst.Inverted, Message: "Unknown rule", Error: err.Error()})
		return notEvaluated(inst, "Unknown rule")
	}
	if !def.CheckType.Allows(ev.kind) {
		logger.Warn("rule not applicable to event kind", "checkType", def.CheckType, "kind", ev.kind)
		res := CheckResult{Result: false, Message: fmt.Sprintf("Rule %s does not apply to %s checks", def.Name, ev.kind)}.normalize(def.Name)
		ev.trace = append(ev.trace, RuleTrace{RuleID: inst.ID, RuleName: inst.RuleName, Inverted: inst.Inverted, Message: res.Message})
		return notEvaluated(inst, res.Message)
	}

	inst = eng.Rules.Registry.ApplyDefaults(inst)
	start := time.Now()
	res, err := ev.dispatch(def, inst, logger)
	dur := time.Since(start)
	checkDuration.WithLabelValues(def.Name).Observe(dur.Seconds())

	tr := RuleTrace{RuleID: inst.ID, RuleName: inst.RuleName, Inverted: inst.Inverted, Duration: dur}
	if err != nil {
		mode := def.EffectiveFailureMode(inst)
		timedOut := errors.Is(err, ErrCheckTimeout) || errors.Is(err, context.DeadlineExceeded)
		kind := "error"
		if timedOut {
			kind = "timeout"
		} else if errors.Is(err, ErrCheckPanic) {
			kind = "panic"
		}
		checkFailureCount.WithLabelValues(def.Name, kind).Inc()
		logger.Warn("rule check failed", "err", err, "failureMode", mode, "duration", dur)
		res = FailureResult(def.Name, mode, timedOut)
		tr.Error = err.Error()
	}
	res = res.normalize(def.Name)
	tr.Result = res.Result
	tr.Message = res.Message
	ev.trace = append(ev.trace, tr)
	return ev.applyInversion(inst, res)
}

// inverts the boolean; the message is kept as reported by the check
func (ev *evaluator) applyInversion(inst registry.RuleInstance, res CheckResult) nodeResult {
	out := res.Result
	if inst.Inverted {
		out = !out
	}
	return nodeResult{result: out, reason: res.Message, rule: inst.RuleName}
}

// a rule that was never dispatched does not trigger, whether or not it is inverted
func notEvaluated(inst registry.RuleInstance, msg string) nodeResult {
	return nodeResult{result: false, reason: msg, rule: inst.RuleName}
}

// Result substituted for a check which errored or timed out, per the failure mode. The message names the check and distinguishes a timeout from other failures.
func FailureResult(name string, mode registry.FailureMode, timedOut bool) CheckResult {
	triggered := mode == registry.FailureTrigger
	var msg string
	switch {
	case timedOut && triggered:
		msg = fmt.Sprintf("%s timed out, failure mode is trigger", name)
	case timedOut:
		msg = fmt.Sprintf("%s timed out, failure mode is do not trigger", name)
	case triggered:
		msg = fmt.Sprintf("%s failed, failure mode is trigger", name)
	default:
		msg = fmt.Sprintf("%s failed, failure mode is do not trigger", name)
	}
	return CheckResult{Result: triggered, Message: msg}
}

type dispatchOutcome struct {
	res CheckResult
	err error
}

// Runs the check function in its own goroutine, and stops waiting for it once the rule's timeout (plus grace) has elapsed, whether or not the check honors its context.
func (ev *evaluator) dispatch(def registry.Definition, inst registry.RuleInstance, logger *slog.Logger) (CheckResult, error) {
	fn, ok := ev.eng.Rules.Check(def.Name)
	if !ok {
		return CheckResult{}, fmt.Errorf("%w: %s", ErrCheckMissing, def.Name)
	}

	timeout := def.Timeout
	if timeout <= 0 {
		timeout = ev.eng.checkTimeout()
	}
	ctx, cancel := context.WithTimeout(ev.ctx, timeout)
	defer cancel()

	c := NewCheckContext(ctx, ev.eng, ev.input, inst)
	c.Logger = logger

	done := make(chan dispatchOutcome, 1)
	go func() {
		// similar to an HTTP server, recover any panics from rule execution
		defer func() {
			if r := recover(); r != nil {
				done <- dispatchOutcome{err: fmt.Errorf("%w: %v", ErrCheckPanic, r)}
			}
		}()
		res, err := fn(c)
		if err == nil && c.Err != nil {
			err = c.Err
		}
		done <- dispatchOutcome{res: res, err: err}
	}()

	timer := time.NewTimer(timeout + CheckTimeoutGrace)
	defer timer.Stop()
	select {
	case out := <-done:
		return out.res, out.err
	case <-timer.C:
		return CheckResult{}, fmt.Errorf("%w after %s", ErrCheckTimeout, timeout)
	case <-ev.ctx.Done():
		return CheckResult{}, ev.ctx.Err()
	}
}
