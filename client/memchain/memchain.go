// Package memchain is an in-memory ChainClient. It keeps accounts in key
// order, pages through them the way a node does and applies the transfer
// and upgrade calls the maintenance run submits.
package memchain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/holiman/uint256"
	"github.com/mezonai/balances-maintenance/client"
	"github.com/mezonai/balances-maintenance/types"
)

// SubmitHook can replace the outcome of a submission. Returning a non-nil
// receipt or error short-circuits the default handling.
type SubmitHook func(n int, ext *client.SignedExtrinsic) (*client.Receipt, error)

type Chain struct {
	mu sync.Mutex

	info        client.ChainInfo
	specVersion uint32
	constants   map[string]*uint256.Int
	accounts    map[types.Address]types.AccountInfo
	nonces      map[types.Address]uint64

	fee        *uint256.Int
	onSubmit   SubmitHook
	pageCalls  int
	signed     []*client.SignedExtrinsic
	submitted  []*client.SignedExtrinsic
	blockCount int
}

func New(specVersion uint32, existentialDeposit *uint256.Int) *Chain {
	return &Chain{
		info: client.ChainInfo{
			Name:          "memchain",
			Chain:         "Development",
			Version:       "0.0.0",
			TokenSymbol:   "UNIT",
			TokenDecimals: client.DefaultTokenDecimals,
		},
		specVersion: specVersion,
		constants: map[string]*uint256.Int{
			"Balances.ExistentialDeposit": new(uint256.Int).Set(existentialDeposit),
		},
		accounts: make(map[types.Address]types.AccountInfo),
		nonces:   make(map[types.Address]uint64),
		fee:      uint256.NewInt(125_000_000),
	}
}

func (c *Chain) SetAccount(addr types.Address, info types.AccountInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[addr] = info
}

func (c *Chain) Account(addr types.Address) (types.AccountInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.accounts[addr]
	return info, ok
}

func (c *Chain) SetChainInfo(info client.ChainInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info = info
}

func (c *Chain) SetSubmitHook(h SubmitHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSubmit = h
}

// PageCalls is the number of storage pages served so far.
func (c *Chain) PageCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pageCalls
}

func (c *Chain) Signed() []*client.SignedExtrinsic {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*client.SignedExtrinsic(nil), c.signed...)
}

func (c *Chain) Submitted() []*client.SignedExtrinsic {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*client.SignedExtrinsic(nil), c.submitted...)
}

func (c *Chain) ChainInfo(context.Context) (client.ChainInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info, nil
}

func (c *Chain) RuntimeSpecVersion(context.Context) (uint32, error) {
	return c.specVersion, nil
}

func (c *Chain) Constant(_ context.Context, pallet, name string) (*uint256.Int, error) {
	v, ok := c.constants[pallet+"."+name]
	if !ok {
		return nil, fmt.Errorf("memchain: no constant %s.%s", pallet, name)
	}
	return new(uint256.Int).Set(v), nil
}

func (c *Chain) IterateAccounts(ctx context.Context, pageSize int) client.AccountIterator {
	return client.NewPagedIterator(ctx, pageSize, c.page)
}

func (c *Chain) page(_ context.Context, startKey types.Address, pageSize int) ([]types.AccountEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pageCalls++

	keys := make([]types.Address, 0, len(c.accounts))
	for k := range c.accounts {
		if startKey == "" || k > startKey {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	if len(keys) > pageSize {
		keys = keys[:pageSize]
	}

	out := make([]types.AccountEntry, len(keys))
	for i, k := range keys {
		out[i] = types.AccountEntry{Address: k, Info: c.accounts[k]}
	}
	return out, nil
}

func (c *Chain) BuildCall(module, function string, params map[string]interface{}) (*client.Call, error) {
	return client.NewCall(module, function, params)
}

func (c *Chain) BuildBatchCall(calls []*client.Call) (*client.Call, error) {
	return client.NewBatchCall(calls)
}

func (c *Chain) Sign(_ context.Context, call *client.Call, kp *client.Keypair) (*client.SignedExtrinsic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ext, err := client.SignExtrinsic(call, c.nonces[kp.Address], kp)
	if err != nil {
		return nil, err
	}
	c.signed = append(c.signed, ext)
	return ext, nil
}

func (c *Chain) Submit(_ context.Context, ext *client.SignedExtrinsic, _ bool) (*client.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitted = append(c.submitted, ext)

	if c.onSubmit != nil {
		if r, err := c.onSubmit(len(c.submitted), ext); r != nil || err != nil {
			return r, err
		}
	}
	if !client.VerifyExtrinsic(ext) {
		return nil, fmt.Errorf("memchain: bad signature on %s", ext.Hash)
	}
	if ext.Nonce != c.nonces[ext.Signer] {
		return nil, fmt.Errorf("memchain: stale nonce %d for %s", ext.Nonce, ext.Signer)
	}
	c.nonces[ext.Signer]++
	c.blockCount++

	receipt := &client.Receipt{
		ExtrinsicHash: ext.Hash,
		BlockHash:     fmt.Sprintf("0x%064x", c.blockCount),
		Fee:           new(uint256.Int).Set(c.fee),
		Success:       true,
	}
	events, err := c.apply(ext.Signer, ext.Call)
	if err != nil {
		receipt.Success = false
		receipt.ErrorMessage = err.Error()
		return receipt, nil
	}
	receipt.TriggeredEvents = events
	return receipt, nil
}

func (c *Chain) Close() error { return nil }

// apply executes a call and returns the number of events it emits.
func (c *Chain) apply(signer types.Address, call *client.Call) (int, error) {
	switch {
	case call.Module == client.ModuleUtility && call.Function == client.FunctionBatch:
		total := 0
		for _, sub := range call.SubCalls() {
			n, err := c.apply(signer, sub)
			if err != nil {
				// Utility.batch stops at the first failing call.
				return total, nil
			}
			total += n
		}
		return total, nil

	case call.Module == client.ModuleBalances && call.Function == client.FunctionTransfer:
		dest, _ := call.Params["dest"].(types.Address)
		value, err := transferValue(call.Params["value"])
		if err != nil {
			return 0, err
		}
		from := c.accounts[signer]
		if from.Data.FreeBalance().Lt(value) {
			return 0, errInsufficientBalance
		}
		from.Data.Free = new(uint256.Int).Sub(from.Data.FreeBalance(), value)
		c.accounts[signer] = from

		to := c.accounts[dest]
		to.Data.Free = new(uint256.Int).Add(to.Data.FreeBalance(), value)
		c.accounts[dest] = to
		return 1, nil

	case call.Module == client.ModuleBalances && call.Function == client.FunctionUpgradeAccounts:
		who, _ := call.Params["who"].([]types.Address)
		upgraded := 0
		for _, addr := range who {
			acc, ok := c.accounts[addr]
			if !ok {
				continue
			}
			acc.Data.Flags = new(uint256.Int).Or(acc.Data.FlagBits(), upgradedFlag)
			c.accounts[addr] = acc
			upgraded++
		}
		return upgraded, nil
	}
	return 0, fmt.Errorf("memchain: unsupported call %s", call)
}

var (
	upgradedFlag           = new(uint256.Int).Lsh(uint256.NewInt(1), 127)
	errInsufficientBalance = errors.New("Balances.InsufficientBalance")
)

func transferValue(v interface{}) (*uint256.Int, error) {
	switch x := v.(type) {
	case string:
		return uint256.FromDecimal(x)
	case *uint256.Int:
		return x, nil
	}
	return nil, fmt.Errorf("memchain: unsupported transfer value %T", v)
}

var _ client.ChainClient = (*Chain)(nil)
