// Read-only EVM contract calls over JSON-RPC (`eth_call`), for token gating rules.
package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/castmod/castmod/util"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

var (
	ErrUnknownChain = errors.New("no RPC endpoint configured for chain")
	ErrReverted     = errors.New("contract call reverted")
)

// function selectors
var (
	selBalanceOf         = mustHex("70a08231") // balanceOf(address)
	selBalanceOfToken    = mustHex("00fdd58e") // balanceOf(address,uint256)
	selDecimals          = mustHex("313ce567") // decimals()
	selSupportsInterface = mustHex("01ffc9a7") // supportsInterface(bytes4)
	selAllowance         = mustHex("dd62ed3e") // allowance(address,address)
)

// contract metadata (decimals, interface support) doesn't change; it is cached this long
const metadataTTL = 6 * time.Hour

type Client struct {
	Client http.Client
	// chain name -> RPC URL
	Endpoints map[string]string

	meta  *expirable.LRU[string, string]
	reqID atomic.Uint64
}

func NewClient(endpoints map[string]string) *Client {
	return &Client{
		Client:    *util.RobustHTTPClient(),
		Endpoints: endpoints,
		meta:      expirable.NewLRU[string, string](10_000, nil, metadataTTL),
	}
}

// Parses "name=url" pairs, as given on the command line
func ParseEndpoints(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, u, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(strings.ToLower(name))
		if !ok || name == "" || !strings.HasPrefix(u, "http") {
			return nil, fmt.Errorf("invalid RPC endpoint (expected chain=url): %q", p)
		}
		out[name] = strings.TrimSpace(u)
	}
	return out, nil
}

func (c *Client) Chains() []string {
	out := make([]string, 0, len(c.Endpoints))
	for name := range c.Endpoints {
		out = append(out, name)
	}
	return out
}

func (c *Client) BalanceOf(ctx context.Context, chain, contract, owner string) (*big.Int, error) {
	data, err := encodeCall(selBalanceOf, address(owner))
	if err != nil {
		return nil, err
	}
	out, err := c.call(ctx, chain, contract, data)
	if err != nil {
		return nil, err
	}
	return decodeUint(out)
}

func (c *Client) BalanceOfToken(ctx context.Context, chain, contract, owner string, tokenID *big.Int) (*big.Int, error) {
	data, err := encodeCall(selBalanceOfToken, address(owner), uint256(tokenID))
	if err != nil {
		return nil, err
	}
	out, err := c.call(ctx, chain, contract, data)
	if err != nil {
		return nil, err
	}
	return decodeUint(out)
}

func (c *Client) Allowance(ctx context.Context, chain, contract, owner, spender string) (*big.Int, error) {
	data, err := encodeCall(selAllowance, address(owner), address(spender))
	if err != nil {
		return nil, err
	}
	out, err := c.call(ctx, chain, contract, data)
	if err != nil {
		return nil, err
	}
	return decodeUint(out)
}

func (c *Client) Decimals(ctx context.Context, chain, contract string) (uint8, error) {
	key := "decimals/" + chain + "/" + strings.ToLower(contract)
	if v, ok := c.cached(key); ok {
		return uint8(v[0]), nil
	}
	out, err := c.call(ctx, chain, contract, selDecimals)
	if err != nil {
		return 0, err
	}
	v, err := decodeUint(out)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() || v.Uint64() > 77 {
		return 0, fmt.Errorf("implausible token decimals: %s", v)
	}
	d := uint8(v.Uint64())
	c.store(key, string([]byte{d}))
	return d, nil
}

// ERC-165 check. Contracts which revert or return nothing don't support the interface.
func (c *Client) SupportsInterface(ctx context.Context, chain, contract string, interfaceID [4]byte) (bool, error) {
	key := fmt.Sprintf("iface/%s/%s/%x", chain, strings.ToLower(contract), interfaceID)
	if v, ok := c.cached(key); ok {
		return v == "1", nil
	}
	arg := make([]byte, 32)
	copy(arg, interfaceID[:])
	data, err := encodeCall(selSupportsInterface, arg)
	if err != nil {
		return false, err
	}
	out, err := c.call(ctx, chain, contract, data)
	supported := false
	switch {
	case errors.Is(err, ErrReverted):
	case err != nil:
		return false, err
	case len(out) >= 32:
		v, err := decodeUint(out)
		if err != nil {
			return false, err
		}
		supported = v.Cmp(big.NewInt(1)) == 0
	}
	val := "0"
	if supported {
		val = "1"
	}
	c.store(key, val)
	return supported, nil
}

func (c *Client) cached(key string) (string, bool) {
	if c.meta == nil {
		return "", false
	}
	return c.meta.Get(key)
}

func (c *Client) store(key, val string) {
	if c.meta != nil {
		c.meta.Add(key, val)
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type callParams struct {
	To   string `json:"to"`
	Data string `json:"data"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result string    `json:"result"`
	Error  *rpcError `json:"error"`
}

func (c *Client) call(ctx context.Context, chain, contract string, data []byte) ([]byte, error) {
	endpoint, ok := c.Endpoints[chain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChain, chain)
	}
	to, err := parseAddress(contract)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.reqID.Add(1),
		Method:  "eth_call",
		Params:  []any{callParams{To: "0x" + hex.EncodeToString(to), Data: "0x" + hex.EncodeToString(data)}, "latest"},
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	defer func() {
		rpcDuration.WithLabelValues(chain).Observe(time.Since(start).Seconds())
	}()
	resp, err := c.Client.Do(req)
	if err != nil {
		rpcCount.WithLabelValues(chain, "error").Inc()
		return nil, fmt.Errorf("eth_call on %s failed: %w", chain, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		rpcCount.WithLabelValues(chain, "error").Inc()
		return nil, fmt.Errorf("eth_call on %s failed statusCode=%d", chain, resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading RPC response: %w", err)
	}
	var out rpcResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parsing RPC response: %w", err)
	}
	if out.Error != nil {
		if out.Error.Code == 3 || strings.Contains(strings.ToLower(out.Error.Message), "revert") {
			rpcCount.WithLabelValues(chain, "reverted").Inc()
			return nil, fmt.Errorf("%w: %s", ErrReverted, out.Error.Message)
		}
		rpcCount.WithLabelValues(chain, "error").Inc()
		return nil, fmt.Errorf("eth_call on %s: rpc error %d: %s", chain, out.Error.Code, out.Error.Message)
	}
	rpcCount.WithLabelValues(chain, "ok").Inc()
	return hex.DecodeString(strings.TrimPrefix(out.Result, "0x"))
}
