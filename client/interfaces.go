package client

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/mezonai/balances-maintenance/types"
)

// ChainClient is everything the maintenance run needs from a node.
type ChainClient interface {
	ChainInfo(ctx context.Context) (ChainInfo, error)
	RuntimeSpecVersion(ctx context.Context) (uint32, error)
	Constant(ctx context.Context, pallet, name string) (*uint256.Int, error)
	IterateAccounts(ctx context.Context, pageSize int) AccountIterator
	CallFactory
	Sign(ctx context.Context, call *Call, kp *Keypair) (*SignedExtrinsic, error)
	Submit(ctx context.Context, ext *SignedExtrinsic, waitForInclusion bool) (*Receipt, error)
	Close() error
}

type CallFactory interface {
	BuildCall(module, function string, params map[string]interface{}) (*Call, error)
	BuildBatchCall(calls []*Call) (*Call, error)
}

// AccountIterator walks System.Account in storage order. It is consumed once.
//
//	it := c.IterateAccounts(ctx, 1000)
//	for it.Next() {
//		e := it.Entry()
//	}
//	if err := it.Err(); err != nil { ... }
type AccountIterator interface {
	Next() bool
	Entry() types.AccountEntry
	Err() error
}
