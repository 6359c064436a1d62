package engine

import (
	"fmt"

	"github.com/castmod/castmod/automod/registry"
)

// Implementation of a single rule type. Returning an error (or leaving CheckContext.Err set) hands the outcome to the rule's failure policy.
type CheckFunc = func(c *CheckContext) (CheckResult, error)

// Pairs a rule type's metadata with its implementation.
type Rule struct {
	Definition registry.Definition
	Check      CheckFunc
}

// Holds the registry of rule definitions, and the check function registered for each name.
type RuleSet struct {
	Registry *registry.Registry
	checks   map[string]CheckFunc
}

func NewRuleSet(rules ...Rule) (*RuleSet, error) {
	defs := make([]registry.Definition, 0, len(rules))
	checks := make(map[string]CheckFunc, len(rules))
	for _, r := range rules {
		defs = append(defs, r.Definition)
		if r.Check != nil {
			checks[r.Definition.Name] = r.Check
		}
	}
	reg, err := registry.NewRegistry(defs...)
	if err != nil {
		return nil, fmt.Errorf("building rule registry: %w", err)
	}
	return &RuleSet{
		Registry: reg,
		checks:   checks,
	}, nil
}

func (r *RuleSet) Check(name string) (CheckFunc, bool) {
	f, ok := r.checks[name]
	return f, ok
}
