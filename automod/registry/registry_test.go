package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	reg, err := NewRegistry(
		Definition{
			Name:          "webhook",
			Category:      ScopeAll,
			CheckType:     ScopeAll,
			Invertable:    true,
			AllowMultiple: true,
			Args: []ArgSchema{
				{Name: "url", Type: ArgString, Required: true, Pattern: `^https?://`},
				{Name: FailureModeArg, Type: ArgSelect, Default: "doNotTrigger", Options: []ArgOption{
					{Value: "trigger"}, {Value: "doNotTrigger"},
				}},
			},
		},
		Definition{
			Name:      "followerCount",
			Category:  ScopeUser,
			CheckType: ScopeUser,
			Args: []ArgSchema{
				{Name: "min", Type: ArgNumber, Min: Float(0)},
				{Name: "max", Type: ArgNumber, Min: Float(0)},
			},
		},
		Definition{
			Name:       "containsEmbeds",
			Category:   ScopeCast,
			CheckType:  ScopeCast,
			Invertable: true,
			Args: []ArgSchema{
				{Name: "types", Type: ArgMultiSelect, Required: true, Options: []ArgOption{
					{Value: "image"}, {Value: "video"},
				}},
			},
		},
	)
	require.NoError(t, err)
	return reg
}

func TestRegistryLookup(t *testing.T) {
	assert := assert.New(t)
	reg := testRegistry(t)

	d, err := reg.Get("webhook")
	assert.NoError(err)
	assert.Equal("webhook", d.Name)

	_, err = reg.Get("nope")
	assert.ErrorIs(err, ErrRuleNotFound)

	names := []string{}
	for _, d := range reg.All() {
		names = append(names, d.Name)
	}
	assert.Equal([]string{"webhook", "followerCount", "containsEmbeds"}, names)

	assert.Len(reg.ForCheckType(ScopeUser), 2)
	assert.Len(reg.ForCheckType(ScopeCast), 2)
}

func TestRegistryRejectsBadDefinitions(t *testing.T) {
	assert := assert.New(t)

	_, err := NewRegistry(Definition{Name: "a", Category: ScopeAll, CheckType: ScopeAll}, Definition{Name: "a", Category: ScopeAll, CheckType: ScopeAll})
	assert.Error(err)

	_, err = NewRegistry(Definition{Name: "b", Category: ScopeAll, CheckType: ScopeAll, Args: []ArgSchema{{Name: "x", Type: ArgSelect}}})
	assert.Error(err)

	_, err = NewRegistry(Definition{Name: "c", Category: "everything", CheckType: ScopeAll})
	assert.Error(err)
}

func TestApplyDefaults(t *testing.T) {
	assert := assert.New(t)
	reg := testRegistry(t)

	inst := RuleInstance{RuleName: "webhook", Args: map[string]any{"url": "https://example.com"}}
	out := reg.ApplyDefaults(inst)
	assert.Equal("doNotTrigger", out.Args[FailureModeArg])
	// original not mutated
	_, ok := inst.Args[FailureModeArg]
	assert.False(ok)

	d, _ := reg.Get("webhook")
	assert.Equal(FailureDoNotTrigger, d.EffectiveFailureMode(out))
	out.Args[FailureModeArg] = "trigger"
	assert.Equal(FailureTrigger, d.EffectiveFailureMode(out))

	fc, _ := reg.Get("followerCount")
	assert.Equal(FailureDoNotTrigger, fc.EffectiveFailureMode(RuleInstance{Args: map[string]any{FailureModeArg: "trigger"}}))
}

func TestValidateGroup(t *testing.T) {
	assert := assert.New(t)
	reg := testRegistry(t)

	good := &RuleGroup{
		Operator: OperatorAnd,
		Children: []Node{
			RuleNode(RuleInstance{RuleName: "followerCount", Args: map[string]any{"min": float64(10)}}),
			GroupNode(&RuleGroup{
				Operator: OperatorOr,
				Children: []Node{
					RuleNode(RuleInstance{RuleName: "webhook", Args: map[string]any{"url": "https://a.example"}}),
					RuleNode(RuleInstance{RuleName: "webhook", Inverted: true, Args: map[string]any{"url": "https://b.example", "failureMode": "trigger"}}),
				},
			}),
		},
	}
	assert.NoError(reg.ValidateGroup(good, ScopeUser))
	assert.NoError(reg.ValidateGroup(nil, ScopeCast))

	fixtures := []struct {
		name  string
		group *RuleGroup
		kind  Scope
		err   error
	}{
		{
			name:  "unknown rule",
			group: &RuleGroup{Operator: OperatorAnd, Children: []Node{RuleNode(RuleInstance{RuleName: "nope"})}},
			kind:  ScopeUser,
			err:   ErrRuleNotFound,
		},
		{
			name:  "category mismatch",
			group: &RuleGroup{Operator: OperatorAnd, Children: []Node{RuleNode(RuleInstance{RuleName: "followerCount"})}},
			kind:  ScopeCast,
			err:   ErrCategoryMismatch,
		},
		{
			name:  "not invertable",
			group: &RuleGroup{Operator: OperatorAnd, Children: []Node{RuleNode(RuleInstance{RuleName: "followerCount", Inverted: true})}},
			kind:  ScopeUser,
			err:   ErrNotInvertable,
		},
		{
			name: "duplicate",
			group: &RuleGroup{Operator: OperatorOr, Children: []Node{
				RuleNode(RuleInstance{RuleName: "followerCount"}),
				GroupNode(&RuleGroup{Operator: OperatorAnd, Children: []Node{RuleNode(RuleInstance{RuleName: "followerCount"})}}),
			}},
			kind: ScopeUser,
			err:  ErrDuplicateRule,
		},
		{
			name:  "missing required",
			group: &RuleGroup{Operator: OperatorAnd, Children: []Node{RuleNode(RuleInstance{RuleName: "webhook", Args: map[string]any{}})}},
			kind:  ScopeUser,
			err:   ErrInvalidArg,
		},
		{
			name:  "bad pattern",
			group: &RuleGroup{Operator: OperatorAnd, Children: []Node{RuleNode(RuleInstance{RuleName: "webhook", Args: map[string]any{"url": "ftp://x"}})}},
			kind:  ScopeUser,
			err:   ErrInvalidArg,
		},
		{
			name:  "bad select",
			group: &RuleGroup{Operator: OperatorAnd, Children: []Node{RuleNode(RuleInstance{RuleName: "webhook", Args: map[string]any{"url": "https://x", "failureMode": "sometimes"}})}},
			kind:  ScopeUser,
			err:   ErrInvalidArg,
		},
		{
			name:  "number below min",
			group: &RuleGroup{Operator: OperatorAnd, Children: []Node{RuleNode(RuleInstance{RuleName: "followerCount", Args: map[string]any{"min": -1}})}},
			kind:  ScopeUser,
			err:   ErrInvalidArg,
		},
		{
			name:  "bad multiselect",
			group: &RuleGroup{Operator: OperatorAnd, Children: []Node{RuleNode(RuleInstance{RuleName: "containsEmbeds", Args: map[string]any{"types": []any{"image", "gif"}}})}},
			kind:  ScopeCast,
			err:   ErrInvalidArg,
		},
		{
			name:  "unknown arg",
			group: &RuleGroup{Operator: OperatorAnd, Children: []Node{RuleNode(RuleInstance{RuleName: "followerCount", Args: map[string]any{"minimum": 3}})}},
			kind:  ScopeUser,
			err:   ErrInvalidArg,
		},
		{
			name:  "bad operator",
			group: &RuleGroup{Operator: "XOR"},
			kind:  ScopeUser,
			err:   ErrInvalidGroup,
		},
		{
			name:  "empty node",
			group: &RuleGroup{Operator: OperatorAnd, Children: []Node{{}}},
			kind:  ScopeUser,
			err:   ErrInvalidGroup,
		},
	}

	for _, fix := range fixtures {
		err := reg.ValidateGroup(fix.group, fix.kind)
		var verr *ValidationError
		if assert.True(errors.As(err, &verr), fix.name) {
			assert.ErrorIs(err, fix.err, fix.name)
		}
	}
}

func TestValidateGroupCycle(t *testing.T) {
	assert := assert.New(t)
	reg := testRegistry(t)

	inner := &RuleGroup{ID: "inner", Operator: OperatorOr}
	outer := &RuleGroup{ID: "outer", Operator: OperatorAnd, Children: []Node{GroupNode(inner)}}
	inner.Children = []Node{GroupNode(outer)}

	err := reg.ValidateGroup(outer, ScopeUser)
	assert.ErrorIs(err, ErrInvalidGroup)
}

func TestParseRuleGroup(t *testing.T) {
	assert := assert.New(t)

	g, err := ParseRuleGroup("")
	assert.NoError(err)
	assert.Nil(g)

	g, err = ParseRuleGroup(`{"id":"g1","operator":"OR","children":[{"rule":{"id":"r1","ruleName":"webhook","args":{"url":"https://x"},"inverted":true}},{"group":{"operator":"AND","children":[]}}]}`)
	assert.NoError(err)
	assert.Equal(OperatorOr, g.Operator)
	assert.Len(g.Children, 2)
	assert.True(g.Children[0].Rule.Inverted)
	assert.NotNil(g.Children[1].Group)
	assert.Len(g.Rules(), 1)

	// an unconfigured group has no rules
	var none *RuleGroup
	assert.Empty(none.Rules())

	_, err = ParseRuleGroup("{")
	assert.Error(err)
}
