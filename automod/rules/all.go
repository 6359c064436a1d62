package rules

import (
	"context"
	"math/big"
	"net/http"
	"time"

	"github.com/castmod/castmod/automod/engine"
	"github.com/castmod/castmod/automod/registry"
	"github.com/castmod/castmod/util"
	"github.com/castmod/castmod/util/ssrf"
)

// Follow graph lookups on the social network
type FollowGraph interface {
	// true if `fid` follows `targetFid`
	IsFollowing(ctx context.Context, fid, targetFid int64) (bool, error)
}

// Read-only EVM contract calls used for token gating. Addresses are 0x-prefixed hex.
type TokenReader interface {
	BalanceOf(ctx context.Context, chain, contract, owner string) (*big.Int, error)
	Decimals(ctx context.Context, chain, contract string) (uint8, error)
	// ERC-1155 balance of a single token id
	BalanceOfToken(ctx context.Context, chain, contract, owner string, tokenID *big.Int) (*big.Int, error)
	SupportsInterface(ctx context.Context, chain, contract string, interfaceID [4]byte) (bool, error)
	Allowance(ctx context.Context, chain, contract, owner, spender string) (*big.Int, error)
}

// External collaborators for the network-backed checks. Nil collaborators leave the corresponding rules registered, but their checks fail (and the failure mode applies).
type Deps struct {
	Social FollowGraph
	Tokens TokenReader
	// used for user-configured webhook URLs; defaults to a client which refuses non-public addresses
	WebhookClient *http.Client
	// sent to webhooks in the x-webhook-secret header
	WebhookSecret string
	// zero means DefaultWebhookTimeout
	WebhookTimeout time.Duration
	// supported chains, for the token rules' chain select. Defaults to DefaultChains.
	Chains []string
}

var DefaultChains = []string{"ethereum", "base", "optimism", "arbitrum", "polygon", "zora"}

// bound for checks which call the social network API or an RPC node
const networkCheckTimeout = 10 * time.Second

func (d *Deps) webhookClient() *http.Client {
	if d.WebhookClient != nil {
		return d.WebhookClient
	}
	// no retries: a webhook's answer is only meaningful within its timeout
	d.WebhookClient = util.RobustHTTPClientWith(ssrf.PublicOnlyTransport(), 0, d.webhookTimeout())
	return d.WebhookClient
}

func (d *Deps) webhookTimeout() time.Duration {
	if d.WebhookTimeout > 0 {
		return d.WebhookTimeout
	}
	return DefaultWebhookTimeout
}

func (d *Deps) chainOptions() []registry.ArgOption {
	chains := d.Chains
	if len(chains) == 0 {
		chains = DefaultChains
	}
	out := make([]registry.ArgOption, 0, len(chains))
	for _, c := range chains {
		out = append(out, registry.ArgOption{Value: c, Label: c})
	}
	return out
}

// All rule types a channel can configure, in the order they are presented
func DefaultRules(deps Deps) []engine.Rule {
	d := &deps
	// resolve the webhook client once, before checks run concurrently
	d.webhookClient()
	rules := []engine.Rule{
		webhookRule(d),
		alwaysIncludeRule(),
	}
	rules = append(rules, userRules(d)...)
	rules = append(rules, tokenRules(d)...)
	rules = append(rules, castRules()...)
	return rules
}

// failure mode select, for rules which expose it as a configurable argument
func failureModeArg() registry.ArgSchema {
	return registry.ArgSchema{
		Name:         registry.FailureModeArg,
		Type:         registry.ArgSelect,
		FriendlyName: "If the check fails",
		Default:      string(registry.FailureDoNotTrigger),
		Options: []registry.ArgOption{
			{Value: string(registry.FailureTrigger), Label: "Trigger"},
			{Value: string(registry.FailureDoNotTrigger), Label: "Do not trigger"},
		},
	}
}
