package rules

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"

	"github.com/castmod/castmod/automod/engine"
	"github.com/castmod/castmod/automod/registry"

	"golang.org/x/sync/errgroup"
)

var (
	ErrNoTokenReader  = errors.New("token reader not configured")
	ErrWrongTokenType = errors.New("contract does not implement the token interface")
)

// ERC-165 interface identifiers
var (
	InterfaceERC721  = [4]byte{0x80, 0xac, 0x58, 0xcd}
	InterfaceERC1155 = [4]byte{0xd9, 0xb6, 0x7a, 0x26}
)

const (
	addressPattern = `^0x[0-9a-fA-F]{40}$`
	amountPattern  = `^[0-9]+(\.[0-9]+)?$`
	// concurrent RPC reads per check
	addressFanout = 4
)

func tokenDef(d *Deps, name, friendly, desc string, args ...registry.ArgSchema) registry.Definition {
	base := []registry.ArgSchema{
		{Name: "chain", Type: registry.ArgSelect, FriendlyName: "Chain", Required: true, Options: d.chainOptions()},
		{Name: "contractAddress", Type: registry.ArgString, FriendlyName: "Contract address", Required: true, Pattern: addressPattern},
	}
	base = append(base, args...)
	base = append(base, failureModeArg())
	return registry.Definition{
		Name:          name,
		FriendlyName:  friendly,
		Description:   desc,
		Category:      registry.ScopeUser,
		CheckType:     registry.ScopeUser,
		Invertable:    true,
		AllowMultiple: true,
		Timeout:       networkCheckTimeout,
		Args:          base,
	}
}

func tokenRules(d *Deps) []engine.Rule {
	return []engine.Rule{
		{
			Definition: tokenDef(d, "requiresErc20", "Holds ERC-20", "User holds a minimum balance of an ERC-20 token",
				registry.ArgSchema{Name: "minBalance", Type: registry.ArgString, FriendlyName: "Minimum balance", Default: "0", Pattern: amountPattern},
			),
			Check: RequiresErc20Check(d),
		},
		{
			Definition: tokenDef(d, "requiresErc721", "Holds NFT", "User holds an ERC-721 token from a collection"),
			Check:      RequiresErc721Check(d),
		},
		{
			Definition: tokenDef(d, "requiresErc1155", "Holds ERC-1155", "User holds an ERC-1155 token",
				registry.ArgSchema{Name: "tokenId", Type: registry.ArgString, FriendlyName: "Token id", Required: true, Pattern: `^[0-9]+$`},
			),
			Check: RequiresErc1155Check(d),
		},
		{
			Definition: tokenDef(d, "requiresErc20Allowance", "ERC-20 allowance", "User has approved a spender for a minimum amount of an ERC-20 token",
				registry.ArgSchema{Name: "spender", Type: registry.ArgString, FriendlyName: "Spender address", Required: true, Pattern: addressPattern},
				registry.ArgSchema{Name: "minAllowance", Type: registry.ArgString, FriendlyName: "Minimum allowance", Default: "0", Pattern: amountPattern},
			),
			Check: RequiresErc20AllowanceCheck(d),
		},
	}
}

// Runs fn for each address concurrently, and reports whether any returned true. Once one address matches the remaining reads are cancelled and their errors ignored; otherwise the first error is returned.
func anyAddress(ctx context.Context, addrs []string, fn func(ctx context.Context, addr string) (bool, error)) (bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var found atomic.Bool
	var g errgroup.Group
	g.SetLimit(addressFanout)
	for _, addr := range addrs {
		g.Go(func() error {
			if found.Load() {
				return nil
			}
			ok, err := fn(ctx, addr)
			if err != nil {
				return fmt.Errorf("address %s: %w", addr, err)
			}
			if ok {
				found.Store(true)
				cancel()
			}
			return nil
		})
	}
	err := g.Wait()
	if found.Load() {
		return true, nil
	}
	return false, err
}

// Converts a decimal token amount (eg "1.5") to base units, given the token's decimals. Digits beyond the token's precision are truncated.
func toBaseUnits(amount string, decimals uint8) (*big.Int, error) {
	whole, frac, _ := strings.Cut(strings.TrimSpace(amount), ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > int(decimals) {
		frac = frac[:decimals]
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))
	v, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid token amount: %q", amount)
	}
	return v, nil
}

type tokenCheck struct {
	d        *Deps
	chain    string
	contract string
	addrs    []string
}

// common argument handling; a nil result with nil error means the user has no addresses
func newTokenCheck(d *Deps, c *engine.CheckContext) (*tokenCheck, *engine.CheckResult, error) {
	if d.Tokens == nil {
		return nil, nil, ErrNoTokenReader
	}
	addrs := c.User.Addresses()
	if len(addrs) == 0 {
		return nil, &engine.CheckResult{Result: false, Message: "User has no verified addresses"}, nil
	}
	return &tokenCheck{
		d:        d,
		chain:    c.StringArg("chain"),
		contract: strings.ToLower(c.StringArg("contractAddress")),
		addrs:    addrs,
	}, nil, nil
}

func (t *tokenCheck) requireInterface(ctx context.Context, id [4]byte) error {
	ok, err := t.d.Tokens.SupportsInterface(ctx, t.chain, t.contract, id)
	if err != nil {
		return fmt.Errorf("supportsInterface: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s %x", ErrWrongTokenType, t.contract, id)
	}
	return nil
}

func RequiresErc20Check(d *Deps) engine.CheckFunc {
	return func(c *engine.CheckContext) (engine.CheckResult, error) {
		t, res, err := newTokenCheck(d, c)
		if t == nil {
			return derefResult(res), err
		}
		decimals, err := d.Tokens.Decimals(c.Ctx, t.chain, t.contract)
		if err != nil {
			return engine.CheckResult{}, fmt.Errorf("decimals: %w", err)
		}
		min, err := toBaseUnits(c.StringArg("minBalance"), decimals)
		if err != nil {
			return engine.CheckResult{}, err
		}
		ok, err := anyAddress(c.Ctx, t.addrs, func(ctx context.Context, addr string) (bool, error) {
			bal, err := d.Tokens.BalanceOf(ctx, t.chain, t.contract, addr)
			if err != nil {
				return false, err
			}
			return meetsMinimum(bal, min), nil
		})
		if err != nil {
			return engine.CheckResult{}, err
		}
		if ok {
			return engine.CheckResult{Result: true, Message: "User holds the required token balance"}, nil
		}
		return engine.CheckResult{Result: false, Message: "User does not hold the required token balance"}, nil
	}
}

func RequiresErc721Check(d *Deps) engine.CheckFunc {
	return func(c *engine.CheckContext) (engine.CheckResult, error) {
		t, res, err := newTokenCheck(d, c)
		if t == nil {
			return derefResult(res), err
		}
		if err := t.requireInterface(c.Ctx, InterfaceERC721); err != nil {
			return engine.CheckResult{}, err
		}
		ok, err := anyAddress(c.Ctx, t.addrs, func(ctx context.Context, addr string) (bool, error) {
			bal, err := d.Tokens.BalanceOf(ctx, t.chain, t.contract, addr)
			if err != nil {
				return false, err
			}
			return bal.Sign() > 0, nil
		})
		if err != nil {
			return engine.CheckResult{}, err
		}
		if ok {
			return engine.CheckResult{Result: true, Message: "User holds an NFT from the collection"}, nil
		}
		return engine.CheckResult{Result: false, Message: "User does not hold an NFT from the collection"}, nil
	}
}

func RequiresErc1155Check(d *Deps) engine.CheckFunc {
	return func(c *engine.CheckContext) (engine.CheckResult, error) {
		t, res, err := newTokenCheck(d, c)
		if t == nil {
			return derefResult(res), err
		}
		tokenID, ok := new(big.Int).SetString(c.StringArg("tokenId"), 10)
		if !ok {
			return engine.CheckResult{}, fmt.Errorf("invalid token id: %q", c.StringArg("tokenId"))
		}
		if err := t.requireInterface(c.Ctx, InterfaceERC1155); err != nil {
			return engine.CheckResult{}, err
		}
		held, err := anyAddress(c.Ctx, t.addrs, func(ctx context.Context, addr string) (bool, error) {
			bal, err := d.Tokens.BalanceOfToken(ctx, t.chain, t.contract, addr, tokenID)
			if err != nil {
				return false, err
			}
			return bal.Sign() > 0, nil
		})
		if err != nil {
			return engine.CheckResult{}, err
		}
		if held {
			return engine.CheckResult{Result: true, Message: fmt.Sprintf("User holds token %s", tokenID)}, nil
		}
		return engine.CheckResult{Result: false, Message: fmt.Sprintf("User does not hold token %s", tokenID)}, nil
	}
}

func RequiresErc20AllowanceCheck(d *Deps) engine.CheckFunc {
	return func(c *engine.CheckContext) (engine.CheckResult, error) {
		t, res, err := newTokenCheck(d, c)
		if t == nil {
			return derefResult(res), err
		}
		spender := strings.ToLower(c.StringArg("spender"))
		decimals, err := d.Tokens.Decimals(c.Ctx, t.chain, t.contract)
		if err != nil {
			return engine.CheckResult{}, fmt.Errorf("decimals: %w", err)
		}
		min, err := toBaseUnits(c.StringArg("minAllowance"), decimals)
		if err != nil {
			return engine.CheckResult{}, err
		}
		ok, err := anyAddress(c.Ctx, t.addrs, func(ctx context.Context, addr string) (bool, error) {
			allowance, err := d.Tokens.Allowance(ctx, t.chain, t.contract, addr, spender)
			if err != nil {
				return false, err
			}
			return meetsMinimum(allowance, min), nil
		})
		if err != nil {
			return engine.CheckResult{}, err
		}
		if ok {
			return engine.CheckResult{Result: true, Message: "User has approved the required allowance"}, nil
		}
		return engine.CheckResult{Result: false, Message: "User has not approved the required allowance"}, nil
	}
}

// a zero minimum still requires a non-zero amount
func meetsMinimum(v, min *big.Int) bool {
	if min.Sign() == 0 {
		return v.Sign() > 0
	}
	return v.Cmp(min) >= 0
}

func derefResult(r *engine.CheckResult) engine.CheckResult {
	if r == nil {
		return engine.CheckResult{}
	}
	return *r
}
