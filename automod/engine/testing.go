package engine

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/castmod/castmod/automod/actions"
	"github.com/castmod/castmod/automod/cachestore"
	"github.com/castmod/castmod/automod/countstore"
	"github.com/castmod/castmod/automod/modstore"
	"github.com/castmod/castmod/automod/registry"
	"github.com/castmod/castmod/automod/setstore"
)

var _ CheckFunc = simpleTextRule

// passes when the cast text contains the "text" argument
func simpleTextRule(c *CheckContext) (CheckResult, error) {
	if c.Cast == nil {
		return CheckResult{}, fmt.Errorf("no cast")
	}
	needle := c.StringArg("text")
	if strings.Contains(c.Cast.Text, needle) {
		return CheckResult{Result: true, Message: fmt.Sprintf("Cast contains %q", needle)}, nil
	}
	return CheckResult{Result: false, Message: fmt.Sprintf("Cast does not contain %q", needle)}, nil
}

var SimpleTextRule = Rule{
	Definition: registry.Definition{
		Name:       "simpleText",
		Category:   registry.ScopeCast,
		CheckType:  registry.ScopeCast,
		Invertable: true,
		Args: []registry.ArgSchema{
			{Name: "text", Type: registry.ArgString, Required: true},
		},
	},
	Check: simpleTextRule,
}

// Builds an engine over in-memory stores and an in-memory sqlite moderation store, with the given rules (or a single simple cast rule if none). Intended for tests, including in other packages; panics on setup failure.
func EngineTestFixture(rules ...Rule) (*Engine, *actions.MockModerator, *modstore.Store) {
	if len(rules) == 0 {
		rules = []Rule{SimpleTextRule}
	}
	rs, err := NewRuleSet(rules...)
	if err != nil {
		panic(err)
	}
	store, err := modstore.NewMemoryStore()
	if err != nil {
		panic(err)
	}
	machine, mod := actions.MachineTestFixture(store)
	sets := setstore.NewMemSetStore()
	sets.Put(BannedListSet, []string{"666"})
	eng := Engine{
		Logger:   slog.Default(),
		Rules:    rs,
		Channels: store,
		Actions:  machine,
		Counters: countstore.NewMemCountStore(),
		Sets:     sets,
		Cache:    cachestore.NewMemCacheStore(1000, time.Hour),
	}
	return &eng, mod, store
}
