package client

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/mezonai/balances-maintenance/types"
)

var (
	ErrInvalidCall  = errors.New("client: invalid call")
	ErrEmptyBatch   = errors.New("client: batch call needs at least one call")
	ErrInvalidReply = errors.New("client: invalid reply from node")
)

const (
	ModuleBalances = "Balances"
	ModuleUtility  = "Utility"

	FunctionTransfer        = "transfer"
	FunctionUpgradeAccounts = "upgrade_accounts"
	FunctionBatch           = "batch"
)

// Call is one runtime call, addressed by pallet and function name.
type Call struct {
	Module   string                 `json:"call_module"`
	Function string                 `json:"call_function"`
	Params   map[string]interface{} `json:"call_args"`
}

func (c *Call) String() string {
	return fmt.Sprintf("%s.%s", c.Module, c.Function)
}

// SubCalls returns the calls wrapped by a Utility.batch call, or nil.
func (c *Call) SubCalls() []*Call {
	if c.Module != ModuleUtility || c.Function != FunctionBatch {
		return nil
	}
	calls, _ := c.Params["calls"].([]*Call)
	return calls
}

type SignedExtrinsic struct {
	Call      *Call         `json:"call"`
	Signer    types.Address `json:"signer"`
	Nonce     uint64        `json:"nonce"`
	Signature string        `json:"signature"`
	Hash      string        `json:"hash"`
}

// Receipt describes an included extrinsic. Success is false when the chain
// included it but its execution failed.
type Receipt struct {
	ExtrinsicHash   string
	BlockHash       string
	Fee             *uint256.Int
	Success         bool
	ErrorMessage    string
	TriggeredEvents int
}

type ChainInfo struct {
	Name          string `json:"name"`
	Chain         string `json:"chain"`
	Version       string `json:"version"`
	TokenSymbol   string `json:"token_symbol"`
	TokenDecimals int    `json:"token_decimals"`
}

// Request and reply bodies of the node's maintenance services.

type emptyRequest struct{}

type runtimeVersionReply struct {
	SpecName    string `json:"spec_name"`
	SpecVersion uint32 `json:"spec_version"`
}

type constantRequest struct {
	Pallet string `json:"pallet"`
	Name   string `json:"name"`
}

type constantReply struct {
	Value string `json:"value"`
}

type listAccountsRequest struct {
	StartKey string `json:"start_key"`
	PageSize int    `json:"page_size"`
}

type listAccountsReply struct {
	Accounts []types.AccountEntry `json:"accounts"`
}

type nonceRequest struct {
	Address types.Address `json:"address"`
}

type nonceReply struct {
	Nonce uint64 `json:"nonce"`
}

type submitRequest struct {
	Extrinsic        *SignedExtrinsic `json:"extrinsic"`
	WaitForInclusion bool             `json:"wait_for_inclusion"`
}

type submitReply struct {
	ExtrinsicHash   string `json:"extrinsic_hash"`
	BlockHash       string `json:"block_hash"`
	Fee             string `json:"fee"`
	Success         bool   `json:"success"`
	ErrorMessage    string `json:"error_message"`
	TriggeredEvents int    `json:"triggered_events"`
}

func (r *submitReply) toReceipt() (*Receipt, error) {
	fee := new(uint256.Int)
	if r.Fee != "" {
		var err error
		if fee, err = uint256.FromDecimal(r.Fee); err != nil {
			return nil, fmt.Errorf("%w: fee %q: %v", ErrInvalidReply, r.Fee, err)
		}
	}
	return &Receipt{
		ExtrinsicHash:   r.ExtrinsicHash,
		BlockHash:       r.BlockHash,
		Fee:             fee,
		Success:         r.Success,
		ErrorMessage:    r.ErrorMessage,
		TriggeredEvents: r.TriggeredEvents,
	}, nil
}
