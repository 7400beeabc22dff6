package client

import (
	"context"

	"github.com/defistate/clamm-engine/engine"
	"github.com/defistate/clamm-engine/protocols/clamm"
	"github.com/defistate/clamm-engine/protocols/clamm/pool"
	"github.com/defistate/clamm-engine/streams/jsonrpc"
	"github.com/ethereum/go-ethereum/rpc"
)

// PoolClient is a typed wrapper around the clamm RPC methods. Errors
// returned by the engine keep their class, so errors.Is works with the
// clammerr class sentinels.
type PoolClient struct {
	c *rpc.Client
}

// NewPoolClient wraps an established RPC connection.
func NewPoolClient(c *rpc.Client) *PoolClient {
	return &PoolClient{c: c}
}

// DialPoolClient connects to url.
func DialPoolClient(ctx context.Context, url string) (*PoolClient, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return NewPoolClient(c), nil
}

// Close closes the underlying connection.
func (pc *PoolClient) Close() {
	pc.c.Close()
}

func (pc *PoolClient) call(ctx context.Context, result any, method string, args ...any) error {
	return jsonrpc.FromRPCError(pc.c.CallContext(ctx, result, jsonrpc.Namespace+"_"+method, args...))
}

func (pc *PoolClient) Init(ctx context.Context, params pool.InitParams) (*clamm.PoolViewMinimal, error) {
	var result clamm.PoolViewMinimal
	if err := pc.call(ctx, &result, "init", params); err != nil {
		return nil, err
	}
	return &result, nil
}

func (pc *PoolClient) Mint(ctx context.Context, args jsonrpc.MintArgs) (*jsonrpc.MintResult, error) {
	var result jsonrpc.MintResult
	if err := pc.call(ctx, &result, "mint", args); err != nil {
		return nil, err
	}
	return &result, nil
}

func (pc *PoolClient) Burn(ctx context.Context, args jsonrpc.BurnArgs) (*jsonrpc.Amounts, error) {
	var result jsonrpc.Amounts
	if err := pc.call(ctx, &result, "burn", args); err != nil {
		return nil, err
	}
	return &result, nil
}

func (pc *PoolClient) Collect(ctx context.Context, args jsonrpc.CollectArgs) (*jsonrpc.Amounts, error) {
	var result jsonrpc.Amounts
	if err := pc.call(ctx, &result, "collect", args); err != nil {
		return nil, err
	}
	return &result, nil
}

func (pc *PoolClient) Swap(ctx context.Context, params pool.SwapParams) (*pool.SwapResult, error) {
	var result pool.SwapResult
	if err := pc.call(ctx, &result, "swap", params); err != nil {
		return nil, err
	}
	return &result, nil
}

func (pc *PoolClient) Quote(ctx context.Context, params pool.SwapParams) (*pool.SwapResult, error) {
	var result pool.SwapResult
	if err := pc.call(ctx, &result, "quote", params); err != nil {
		return nil, err
	}
	return &result, nil
}

func (pc *PoolClient) Pool(ctx context.Context) (*engine.State, error) {
	var result engine.State
	if err := pc.call(ctx, &result, "pool"); err != nil {
		return nil, err
	}
	return &result, nil
}

// Tick returns nil when the tick is not initialized.
func (pc *PoolClient) Tick(ctx context.Context, index int32) (*clamm.TickInfo, error) {
	var result *clamm.TickInfo
	if err := pc.call(ctx, &result, "tick", index); err != nil {
		return nil, err
	}
	return result, nil
}

// Position returns nil when the position does not exist.
func (pc *PoolClient) Position(ctx context.Context, key clamm.PositionKey) (*clamm.PositionInfo, error) {
	var result *clamm.PositionInfo
	if err := pc.call(ctx, &result, "position", key); err != nil {
		return nil, err
	}
	return result, nil
}
