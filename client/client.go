package client

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/mezonai/balances-maintenance/jsonx"
	"github.com/mezonai/balances-maintenance/types"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	methodRuntimeVersion = "/balances.RuntimeService/GetRuntimeVersion"
	methodConstant       = "/balances.RuntimeService/GetConstant"
	methodChainInfo      = "/balances.RuntimeService/GetChainInfo"
	methodListAccounts   = "/balances.StateService/ListAccounts"
	methodNonce          = "/balances.TxService/GetNonce"
	methodSubmit         = "/balances.TxService/SubmitExtrinsic"
)

type Config struct {
	Endpoint string
}

// RPCClient talks to a node over gRPC, with JSON message bodies.
type RPCClient struct {
	cfg  Config
	conn *grpc.ClientConn
}

func NewClient(cfg Config) (*RPCClient, error) {
	conn, err := grpc.NewClient(
		cfg.Endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonx.Codec{})),
	)

	if err != nil {
		return nil, err
	}

	return &RPCClient{cfg: cfg, conn: conn}, nil
}

func (c *RPCClient) invoke(ctx context.Context, method string, req, reply interface{}) error {
	if err := c.conn.Invoke(ctx, method, req, reply); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

func (c *RPCClient) ChainInfo(ctx context.Context) (ChainInfo, error) {
	var info ChainInfo
	err := c.invoke(ctx, methodChainInfo, &emptyRequest{}, &info)
	return info, err
}

func (c *RPCClient) RuntimeSpecVersion(ctx context.Context) (uint32, error) {
	var res runtimeVersionReply
	if err := c.invoke(ctx, methodRuntimeVersion, &emptyRequest{}, &res); err != nil {
		return 0, err
	}
	return res.SpecVersion, nil
}

func (c *RPCClient) Constant(ctx context.Context, pallet, name string) (*uint256.Int, error) {
	var res constantReply
	if err := c.invoke(ctx, methodConstant, &constantRequest{Pallet: pallet, Name: name}, &res); err != nil {
		return nil, err
	}
	v, err := uint256.FromDecimal(res.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: constant %s.%s = %q", ErrInvalidReply, pallet, name, res.Value)
	}
	return v, nil
}

func (c *RPCClient) IterateAccounts(ctx context.Context, pageSize int) AccountIterator {
	return NewPagedIterator(ctx, pageSize, c.listAccounts)
}

func (c *RPCClient) listAccounts(ctx context.Context, startKey types.Address, pageSize int) ([]types.AccountEntry, error) {
	var res listAccountsReply
	req := &listAccountsRequest{StartKey: string(startKey), PageSize: pageSize}
	if err := c.invoke(ctx, methodListAccounts, req, &res); err != nil {
		return nil, err
	}
	return res.Accounts, nil
}

func (c *RPCClient) BuildCall(module, function string, params map[string]interface{}) (*Call, error) {
	return NewCall(module, function, params)
}

func (c *RPCClient) BuildBatchCall(calls []*Call) (*Call, error) {
	return NewBatchCall(calls)
}

func (c *RPCClient) Sign(ctx context.Context, call *Call, kp *Keypair) (*SignedExtrinsic, error) {
	var res nonceReply
	if err := c.invoke(ctx, methodNonce, &nonceRequest{Address: kp.Address}, &res); err != nil {
		return nil, err
	}
	return SignExtrinsic(call, res.Nonce, kp)
}

func (c *RPCClient) Submit(ctx context.Context, ext *SignedExtrinsic, waitForInclusion bool) (*Receipt, error) {
	var res submitReply
	req := &submitRequest{Extrinsic: ext, WaitForInclusion: waitForInclusion}
	if err := c.invoke(ctx, methodSubmit, req, &res); err != nil {
		return nil, err
	}
	return res.toReceipt()
}

// Close closes the gRPC connection
func (c *RPCClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// NewCall validates and builds a single runtime call.
func NewCall(module, function string, params map[string]interface{}) (*Call, error) {
	if module == "" || function == "" {
		return nil, fmt.Errorf("%w: module and function are required", ErrInvalidCall)
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	return &Call{Module: module, Function: function, Params: params}, nil
}

// NewBatchCall wraps calls in Utility.batch.
func NewBatchCall(calls []*Call) (*Call, error) {
	if len(calls) == 0 {
		return nil, ErrEmptyBatch
	}
	return NewCall(ModuleUtility, FunctionBatch, map[string]interface{}{"calls": calls})
}

var _ ChainClient = (*RPCClient)(nil)
