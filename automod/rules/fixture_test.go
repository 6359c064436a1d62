package rules

import (
	"context"
	"testing"

	"github.com/castmod/castmod/automod/engine"
	"github.com/castmod/castmod/automod/registry"

	"github.com/stretchr/testify/require"
)

var alice = engine.Profile{
	Fid:               10,
	Username:          "alice",
	DisplayName:       "Alice 🌱",
	Bio:               "building onchain things | she/her",
	FollowerCount:     420,
	FollowingCount:    69,
	CustodyAddress:    "0xAAAA000000000000000000000000000000000001",
	VerifiedAddresses: []string{"0xbbbb000000000000000000000000000000000002"},
	PowerBadge:        true,
	ActiveStatus:      "active",
}

func engineFixture(deps Deps) *engine.Engine {
	eng, _, _ := engine.EngineTestFixture(DefaultRules(deps)...)
	return eng
}

// runs a single check directly, with schema defaults applied
func runCheck(t *testing.T, eng *engine.Engine, name string, args map[string]any, input engine.Input) (engine.CheckResult, error) {
	t.Helper()
	fn, ok := eng.Rules.Check(name)
	require.True(t, ok, name)
	inst := eng.Rules.Registry.ApplyDefaults(registry.RuleInstance{ID: "t", RuleName: name, Args: args})
	if input.Channel.ID == "" {
		input.Channel.ID = "memes"
	}
	return fn(engine.NewCheckContext(context.Background(), eng, input, inst))
}

func userInput(p engine.Profile) engine.Input {
	return engine.Input{User: p, Channel: engine.Channel{ID: "memes"}}
}

func castInput(cast engine.Cast) engine.Input {
	return engine.Input{User: alice, Channel: engine.Channel{ID: "memes"}, Cast: &cast}
}

func single(name string, args map[string]any) *registry.RuleGroup {
	return &registry.RuleGroup{Operator: registry.OperatorAnd, Children: []registry.Node{
		registry.RuleNode(registry.RuleInstance{ID: "t", RuleName: name, Args: args}),
	}}
}
