// Package server exposes a system.PoolSystem over JSON-RPC in the clamm
// namespace, including the diffs subscription that streams every committed
// state change.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/clamm-engine/differ"
	"github.com/defistate/clamm-engine/engine"
	"github.com/defistate/clamm-engine/protocols/clamm"
	"github.com/defistate/clamm-engine/protocols/clamm/pool"
	"github.com/defistate/clamm-engine/streams/jsonrpc"
	"github.com/defistate/clamm-engine/system"
	"github.com/ethereum/go-ethereum/rpc"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration of the API.
type Config struct {
	System *system.PoolSystem
	Logger Logger
	// BufferSize is the number of diffs a subscriber may fall behind before
	// it is resynchronized with a full state.
	BufferSize int
}

func (c *Config) validate() error {
	if c.System == nil {
		return errors.New("config: System is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	return nil
}

// API is the RPC service. Every exported method is an RPC method.
type API struct {
	system     *system.PoolSystem
	logger     Logger
	bufferSize int
}

// NewAPI creates the service from a configuration.
func NewAPI(cfg *Config) (*API, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &API{
		system:     cfg.System,
		logger:     cfg.Logger,
		bufferSize: cfg.BufferSize,
	}, nil
}

// NewServer returns an RPC server with api registered under the clamm
// namespace.
func NewServer(api *API) (*rpc.Server, error) {
	server := rpc.NewServer()
	if err := server.RegisterName(jsonrpc.Namespace, api); err != nil {
		return nil, fmt.Errorf("failed to register API: %w", err)
	}
	return server, nil
}

// Init initializes the pool and returns its scalar state.
func (api *API) Init(params pool.InitParams) (*clamm.PoolViewMinimal, error) {
	if err := api.system.Init(params); err != nil {
		return nil, jsonrpc.NewError(err)
	}
	state := api.system.State().Pool.PoolViewMinimal
	return &state, nil
}

// Mint adds liquidity to a position.
func (api *API) Mint(args jsonrpc.MintArgs) (*jsonrpc.MintResult, error) {
	tickLower, tickUpper, err := jsonrpc.Ticks(args.TickLower, args.TickUpper)
	if err != nil {
		return nil, jsonrpc.NewError(err)
	}

	if args.Liquidity != nil {
		amount0, amount1, err := api.system.MintLiquidity(tickLower, tickUpper, *args.Liquidity, args.Recipient)
		if err != nil {
			return nil, jsonrpc.NewError(err)
		}
		return &jsonrpc.MintResult{Liquidity: *args.Liquidity, Amount0: amount0, Amount1: amount1}, nil
	}

	liquidity, amount0, amount1, err := api.system.Mint(tickLower, tickUpper, args.Amount0Desired, args.Amount1Desired, args.Recipient)
	if err != nil {
		return nil, jsonrpc.NewError(err)
	}
	return &jsonrpc.MintResult{Liquidity: liquidity, Amount0: amount0, Amount1: amount1}, nil
}

// Burn removes liquidity from a position.
func (api *API) Burn(args jsonrpc.BurnArgs) (*jsonrpc.Amounts, error) {
	tickLower, tickUpper, err := jsonrpc.Ticks(args.TickLower, args.TickUpper)
	if err != nil {
		return nil, jsonrpc.NewError(err)
	}
	amount0, amount1, err := api.system.Burn(tickLower, tickUpper, args.Liquidity, args.Owner)
	if err != nil {
		return nil, jsonrpc.NewError(err)
	}
	return &jsonrpc.Amounts{Amount0: amount0, Amount1: amount1}, nil
}

// Collect withdraws tokens owed to a position.
func (api *API) Collect(args jsonrpc.CollectArgs) (*jsonrpc.Amounts, error) {
	tickLower, tickUpper, err := jsonrpc.Ticks(args.TickLower, args.TickUpper)
	if err != nil {
		return nil, jsonrpc.NewError(err)
	}
	amount0, amount1, err := api.system.Collect(tickLower, tickUpper, args.Owner, args.Amount0Max, args.Amount1Max)
	if err != nil {
		return nil, jsonrpc.NewError(err)
	}
	return &jsonrpc.Amounts{Amount0: amount0, Amount1: amount1}, nil
}

// Swap trades against the pool.
func (api *API) Swap(params pool.SwapParams) (*pool.SwapResult, error) {
	result, err := api.system.Swap(params)
	if err != nil {
		return nil, jsonrpc.NewError(err)
	}
	return &result, nil
}

// Quote simulates a swap.
func (api *API) Quote(params pool.SwapParams) (*pool.SwapResult, error) {
	result, err := api.system.Quote(params)
	if err != nil {
		return nil, jsonrpc.NewError(err)
	}
	return &result, nil
}

// Pool returns the latest committed state.
func (api *API) Pool() *engine.State {
	return api.system.State()
}

// Tick returns an initialized tick, or null.
func (api *API) Tick(index int32) *clamm.TickInfo {
	tick, ok := api.system.Tick(index)
	if !ok {
		return nil
	}
	return &tick
}

// Position returns a position, or null.
func (api *API) Position(key clamm.PositionKey) *clamm.PositionInfo {
	position, ok := api.system.Position(key)
	if !ok {
		return nil
	}
	return &position
}

// Diffs streams the pool state: a full state first, then one diff per
// committed operation. A subscriber that falls behind receives a fresh full
// state and the diffs that follow it.
func (api *API) Diffs(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}

	rpcSub := notifier.CreateSubscription()
	go api.stream(notifier, rpcSub)
	return rpcSub, nil
}

func (api *API) stream(notifier *rpc.Notifier, rpcSub *rpc.Subscription) {
	for {
		state, diffs, unsubscribe := api.system.Subscribe(api.bufferSize)
		err := api.notify(notifier, rpcSub, jsonrpc.EventFull, state)
		if err == nil {
			err = api.forward(notifier, rpcSub, diffs)
		}
		unsubscribe()

		if err != nil {
			api.logger.Debug("stream closed", "subscription", rpcSub.ID, "error", err)
			return
		}
		api.logger.Warn("subscriber fell behind, resending full state", "subscription", rpcSub.ID)
	}
}

// forward relays diffs until the subscription ends, which returns an error,
// or the diff channel is closed, which returns nil.
func (api *API) forward(notifier *rpc.Notifier, rpcSub *rpc.Subscription, diffs <-chan *differ.StateDiff) error {
	for {
		select {
		case diff, ok := <-diffs:
			if !ok {
				return nil
			}
			if err := api.notify(notifier, rpcSub, jsonrpc.EventDiff, diff); err != nil {
				return err
			}
		case err := <-rpcSub.Err():
			if err == nil {
				err = errors.New("unsubscribed")
			}
			return err
		}
	}
}

func (api *API) notify(notifier *rpc.Notifier, rpcSub *rpc.Subscription, eventType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	return notifier.Notify(rpcSub.ID, &jsonrpc.SubscriptionEvent{
		Type:    eventType,
		Payload: raw,
		SentAt:  time.Now().UnixNano(),
	})
}
