package registry

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Collected configuration errors for a rule group. Unwraps to the individual errors.
type ValidationError struct {
	Problems []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return "invalid rule configuration: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() []error {
	return e.Problems
}

var (
	ErrCategoryMismatch = errors.New("rule not allowed for this check type")
	ErrNotInvertable    = errors.New("rule cannot be inverted")
	ErrDuplicateRule    = errors.New("rule may only be used once")
	ErrInvalidArg       = errors.New("invalid rule argument")
	ErrInvalidGroup     = errors.New("invalid rule group")
)

var patternCache sync.Map

func compilePattern(p string) (*regexp.Regexp, error) {
	if re, ok := patternCache.Load(p); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, err
	}
	patternCache.Store(p, re)
	return re, nil
}

type validator struct {
	reg      *Registry
	kind     Scope
	problems []error
	counts   map[string]int
	visiting map[*RuleGroup]bool
}

func (v *validator) addf(base error, format string, args ...any) {
	v.problems = append(v.problems, fmt.Errorf("%w: %s", base, fmt.Sprintf(format, args...)))
}

// Checks a channel's rule group against the registry, for evaluation of events of the given kind (ScopeUser or ScopeCast). A nil group is valid (nothing configured).
//
// Returns a *ValidationError listing every problem found, or nil.
func (r *Registry) ValidateGroup(g *RuleGroup, kind Scope) error {
	if g == nil {
		return nil
	}
	v := &validator{
		reg:      r,
		kind:     kind,
		counts:   map[string]int{},
		visiting: map[*RuleGroup]bool{},
	}
	v.group(g, "root")
	for name, n := range v.counts {
		d := r.defs[name]
		if n > 1 && !d.AllowMultiple {
			v.addf(ErrDuplicateRule, "%s used %d times", name, n)
		}
	}
	if len(v.problems) > 0 {
		return &ValidationError{Problems: v.problems}
	}
	return nil
}

func (v *validator) group(g *RuleGroup, path string) {
	if v.visiting[g] {
		v.addf(ErrInvalidGroup, "%s: group %q references itself or an ancestor", path, g.ID)
		return
	}
	v.visiting[g] = true
	defer delete(v.visiting, g)

	switch g.Operator {
	case OperatorAnd, OperatorOr:
	default:
		v.addf(ErrInvalidGroup, "%s: unknown operator %q", path, g.Operator)
	}
	for i, n := range g.Children {
		p := fmt.Sprintf("%s[%d]", path, i)
		switch {
		case n.Rule != nil && n.Group != nil:
			v.addf(ErrInvalidGroup, "%s: node has both a rule and a group", p)
		case n.Rule != nil:
			v.rule(n.Rule, p)
		case n.Group != nil:
			v.group(n.Group, p)
		default:
			v.addf(ErrInvalidGroup, "%s: empty node", p)
		}
	}
}

func (v *validator) rule(inst *RuleInstance, path string) {
	d, ok := v.reg.defs[inst.RuleName]
	if !ok {
		v.addf(ErrRuleNotFound, "%s: %q", path, inst.RuleName)
		return
	}
	v.counts[d.Name]++
	if !d.CheckType.Allows(v.kind) {
		v.addf(ErrCategoryMismatch, "%s: %s is a %s rule, not usable for %s checks", path, d.Name, d.CheckType, v.kind)
	}
	if inst.Inverted && !d.Invertable {
		v.addf(ErrNotInvertable, "%s: %s", path, d.Name)
	}
	for name := range inst.Args {
		if _, ok := d.Arg(name); !ok {
			v.addf(ErrInvalidArg, "%s: %s has no argument %q", path, d.Name, name)
		}
	}
	for _, a := range d.Args {
		val, present := inst.Args[a.Name]
		if !present || val == nil {
			if a.Required && a.Default == nil {
				v.addf(ErrInvalidArg, "%s: %s requires %q", path, d.Name, a.Name)
			}
			continue
		}
		if err := checkArgValue(a, val); err != nil {
			v.addf(ErrInvalidArg, "%s: %s.%s: %v", path, d.Name, a.Name, err)
		}
	}
}

func checkArgValue(a ArgSchema, val any) error {
	switch a.Type {
	case ArgString:
		s, ok := val.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", val)
		}
		if a.Required && strings.TrimSpace(s) == "" {
			return fmt.Errorf("must not be empty")
		}
		if a.Pattern != "" && s != "" {
			re, err := compilePattern(a.Pattern)
			if err != nil {
				return err
			}
			if !re.MatchString(s) {
				return fmt.Errorf("does not match %s", a.Pattern)
			}
		}
		if a.Regexp {
			if _, err := regexp.Compile(s); err != nil {
				return fmt.Errorf("invalid regular expression: %w", err)
			}
		}
	case ArgNumber:
		f, ok := ToFloat(val)
		if !ok {
			return fmt.Errorf("expected number, got %T", val)
		}
		if a.Min != nil && f < *a.Min {
			return fmt.Errorf("%v is below minimum %v", f, *a.Min)
		}
		if a.Max != nil && f > *a.Max {
			return fmt.Errorf("%v is above maximum %v", f, *a.Max)
		}
	case ArgBoolean:
		if _, ok := val.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", val)
		}
	case ArgSelect:
		s, ok := val.(string)
		if !ok {
			return fmt.Errorf("expected string option, got %T", val)
		}
		if !hasOption(a.Options, s) {
			return fmt.Errorf("%q is not an allowed option", s)
		}
	case ArgMultiSelect:
		vals, ok := ToStrings(val)
		if !ok {
			return fmt.Errorf("expected list of options, got %T", val)
		}
		for _, s := range vals {
			if !hasOption(a.Options, s) {
				return fmt.Errorf("%q is not an allowed option", s)
			}
		}
	}
	return nil
}

func hasOption(opts []ArgOption, val string) bool {
	for _, o := range opts {
		if o.Value == val {
			return true
		}
	}
	return false
}
