package automod

import (
	"github.com/castmod/castmod/automod/actions"
	"github.com/castmod/castmod/automod/countstore"
	"github.com/castmod/castmod/automod/engine"
	"github.com/castmod/castmod/automod/registry"
)

type Engine = engine.Engine
type Decision = engine.Decision
type MemberRequest = engine.MemberRequest
type CastEvent = engine.CastEvent
type Evaluation = engine.Evaluation
type RuleSet = engine.RuleSet
type Rule = engine.Rule

type Profile = engine.Profile
type Cast = engine.Cast
type Embed = engine.Embed
type Channel = engine.Channel

type CheckContext = engine.CheckContext
type CheckResult = engine.CheckResult
type CheckFunc = engine.CheckFunc

type RuleGroup = registry.RuleGroup
type RuleInstance = registry.RuleInstance
type Definition = registry.Definition

type ManualAction = actions.ManualAction
type Subject = actions.Subject

var (
	NewRuleSet = engine.NewRuleSet

	PeriodTotal = countstore.PeriodTotal
	PeriodDay   = countstore.PeriodDay
	PeriodHour  = countstore.PeriodHour

	ScopeUser = registry.ScopeUser
	ScopeCast = registry.ScopeCast
)
