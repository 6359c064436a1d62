// Static metadata about the rule types a channel can configure: argument schemas, which events a rule applies to, and whether it can be inverted or repeated.
//
// The registry is built once at process start (see `rules.DefaultRules`) and is read-only afterwards. It also validates channel rule configuration before it is saved, so that malformed rules never reach the evaluation engine.
package registry

import (
	"errors"
	"fmt"
	"time"
)

var ErrRuleNotFound = errors.New("rule definition not found")

// Which kind of moderation subject a rule is evaluated against.
type Scope string

const (
	ScopeUser Scope = "user"
	ScopeCast Scope = "cast"
	ScopeAll  Scope = "all"
)

func (s Scope) Valid() bool {
	switch s {
	case ScopeUser, ScopeCast, ScopeAll:
		return true
	}
	return false
}

// Whether a rule of this scope may be dispatched while evaluating an event of the given kind.
func (s Scope) Allows(kind Scope) bool {
	return s == ScopeAll || s == kind
}

type ArgType string

const (
	ArgString      ArgType = "string"
	ArgNumber      ArgType = "number"
	ArgBoolean     ArgType = "boolean"
	ArgSelect      ArgType = "select"
	ArgMultiSelect ArgType = "multiselect"
)

// What a check does when its external dependency errors or times out.
type FailureMode string

const (
	FailureTrigger      FailureMode = "trigger"
	FailureDoNotTrigger FailureMode = "doNotTrigger"
)

// Name of the rule argument which, when a definition declares it, overrides the definition's default FailureMode.
const FailureModeArg = "failureMode"

type ArgOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type ArgSchema struct {
	Name         string      `json:"name"`
	Type         ArgType     `json:"type"`
	FriendlyName string      `json:"friendlyName"`
	Description  string      `json:"description,omitempty"`
	Required     bool        `json:"required"`
	Default      any         `json:"default,omitempty"`
	Options      []ArgOption `json:"options,omitempty"`
	// regular expression string values must match
	Pattern string `json:"pattern,omitempty"`
	// string value is itself a regular expression, and must compile
	Regexp bool     `json:"regexp,omitempty"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
}

// Immutable description of a rule type.
type Definition struct {
	Name          string      `json:"name"`
	FriendlyName  string      `json:"friendlyName"`
	Description   string      `json:"description"`
	Category      Scope       `json:"category"`
	CheckType     Scope       `json:"checkType"`
	Invertable    bool        `json:"invertable"`
	AllowMultiple bool        `json:"allowMultiple"`
	Args          []ArgSchema `json:"args"`
	// upper bound on a single check invocation; zero means the engine default
	Timeout     time.Duration `json:"-"`
	FailureMode FailureMode   `json:"failureMode"`
}

func (d *Definition) Arg(name string) (ArgSchema, bool) {
	for _, a := range d.Args {
		if a.Name == name {
			return a, true
		}
	}
	return ArgSchema{}, false
}

// Resolves the failure mode for a configured instance: the instance's failureMode arg if the definition has one, otherwise the definition default (which itself defaults to not triggering).
func (d *Definition) EffectiveFailureMode(inst RuleInstance) FailureMode {
	if _, ok := d.Arg(FailureModeArg); ok {
		if v, ok := inst.Args[FailureModeArg].(string); ok {
			switch FailureMode(v) {
			case FailureTrigger, FailureDoNotTrigger:
				return FailureMode(v)
			}
		}
	}
	if d.FailureMode == "" {
		return FailureDoNotTrigger
	}
	return d.FailureMode
}

func (d *Definition) check() error {
	if d.Name == "" {
		return fmt.Errorf("rule definition missing name")
	}
	if !d.Category.Valid() {
		return fmt.Errorf("rule %s: invalid category %q", d.Name, d.Category)
	}
	if !d.CheckType.Valid() {
		return fmt.Errorf("rule %s: invalid checkType %q", d.Name, d.CheckType)
	}
	switch d.FailureMode {
	case "", FailureTrigger, FailureDoNotTrigger:
	default:
		return fmt.Errorf("rule %s: invalid failure mode %q", d.Name, d.FailureMode)
	}
	seen := map[string]bool{}
	for _, a := range d.Args {
		if seen[a.Name] {
			return fmt.Errorf("rule %s: duplicate arg %s", d.Name, a.Name)
		}
		seen[a.Name] = true
		switch a.Type {
		case ArgString, ArgNumber, ArgBoolean:
		case ArgSelect, ArgMultiSelect:
			if len(a.Options) == 0 {
				return fmt.Errorf("rule %s: %s arg %s has no options", d.Name, a.Type, a.Name)
			}
		default:
			return fmt.Errorf("rule %s: arg %s has unknown type %q", d.Name, a.Name, a.Type)
		}
		if a.Pattern != "" {
			if _, err := compilePattern(a.Pattern); err != nil {
				return fmt.Errorf("rule %s: arg %s pattern: %w", d.Name, a.Name, err)
			}
		}
	}
	return nil
}

type Registry struct {
	defs  map[string]Definition
	order []string
}

func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{
		defs: make(map[string]Definition, len(defs)),
	}
	for _, d := range defs {
		if err := r.register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(d Definition) error {
	if err := d.check(); err != nil {
		return err
	}
	if _, ok := r.defs[d.Name]; ok {
		return fmt.Errorf("duplicate rule definition: %s", d.Name)
	}
	r.defs[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

func (r *Registry) Get(name string) (Definition, error) {
	d, ok := r.defs[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrRuleNotFound, name)
	}
	return d, nil
}

// All definitions, in registration order
func (r *Registry) All() []Definition {
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name])
	}
	return out
}

// Definitions which may be used when evaluating events of the given kind
func (r *Registry) ForCheckType(kind Scope) []Definition {
	out := []Definition{}
	for _, name := range r.order {
		d := r.defs[name]
		if d.CheckType.Allows(kind) {
			out = append(out, d)
		}
	}
	return out
}

// Returns a copy of the instance with any absent arguments filled in from schema defaults. Unknown rule names are returned unchanged.
func (r *Registry) ApplyDefaults(inst RuleInstance) RuleInstance {
	d, ok := r.defs[inst.RuleName]
	if !ok {
		return inst
	}
	args := make(map[string]any, len(d.Args))
	for k, v := range inst.Args {
		args[k] = v
	}
	for _, a := range d.Args {
		if _, ok := args[a.Name]; !ok && a.Default != nil {
			args[a.Name] = a.Default
		}
	}
	inst.Args = args
	return inst
}
