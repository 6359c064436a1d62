package registry

import (
	"encoding/json"
	"fmt"
)

type Operator string

const (
	OperatorAnd Operator = "AND"
	OperatorOr  Operator = "OR"
)

// A configured use of a rule type within a channel.
type RuleInstance struct {
	ID            string         `json:"id"`
	RuleName      string         `json:"ruleName"`
	Args          map[string]any `json:"args"`
	Inverted      bool           `json:"inverted"`
	ParentGroupID string         `json:"parentGroupId,omitempty"`
}

// Boolean combinator over an ordered sequence of rules and nested groups. Children are evaluated in sequence order.
type RuleGroup struct {
	ID       string   `json:"id"`
	Operator Operator `json:"operator"`
	Children []Node   `json:"children"`
}

// Exactly one of Rule or Group is set.
type Node struct {
	Rule  *RuleInstance `json:"rule,omitempty"`
	Group *RuleGroup    `json:"group,omitempty"`
}

func RuleNode(inst RuleInstance) Node {
	return Node{Rule: &inst}
}

func GroupNode(g *RuleGroup) Node {
	return Node{Group: g}
}

// Parses a stored rule group. An empty string (or JSON null) is a nil group, meaning "not configured".
func ParseRuleGroup(raw string) (*RuleGroup, error) {
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var g RuleGroup
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return nil, fmt.Errorf("parsing rule group: %w", err)
	}
	return &g, nil
}

// Walks every rule instance in the tree, in evaluation order. Does not guard against cycles; validate first.
func (g *RuleGroup) Rules() []RuleInstance {
	if g == nil {
		return nil
	}
	var out []RuleInstance
	for _, n := range g.Children {
		switch {
		case n.Rule != nil:
			out = append(out, *n.Rule)
		case n.Group != nil:
			out = append(out, n.Group.Rules()...)
		}
	}
	return out
}
