package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/defistate/clamm-engine/differ"
	"github.com/defistate/clamm-engine/engine"
	"github.com/defistate/clamm-engine/patcher"
	"github.com/defistate/clamm-engine/protocols/clamm"
	"github.com/defistate/clamm-engine/protocols/clamm/calculator/fixedpoint"
	"github.com/defistate/clamm-engine/protocols/clamm/clammerr"
	"github.com/defistate/clamm-engine/protocols/clamm/pool"
	"github.com/defistate/clamm-engine/streams/jsonrpc"
	"github.com/defistate/clamm-engine/streams/jsonrpc/server"
	"github.com/defistate/clamm-engine/system"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	discard = slog.New(slog.NewTextHandler(io.Discard, nil))
	owner   = clamm.AddressIdentity(common.HexToAddress("0xa11ce"))

	initParams = pool.InitParams{
		Token0:      common.HexToHash("0x01"),
		Token1:      common.HexToHash("0x02"),
		Fee:         3000,
		SqrtPrice:   fixedpoint.Q64x64FromInt(1),
		TickSpacing: 60,
	}
)

func statePatcher() StatePatcherFunc {
	return patcher.NewStatePatcher(&patcher.StatePatcherConfig{}).Patch
}

func mustI24(t *testing.T, tick int32) clamm.I24 {
	t.Helper()
	encoded, err := clamm.NewI24(tick)
	require.NoError(t, err)
	return encoded
}

// --- Test Setup: Pool RPC Server ---

// setupServer starts a pool system behind a websocket RPC endpoint and
// returns the system and the endpoint URL.
func setupServer(t *testing.T, bufferSize int) (*system.PoolSystem, string) {
	t.Helper()
	sys, err := system.NewPoolSystem(&system.Config{
		Name:     "test",
		Logger:   discard,
		Registry: prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	api, err := server.NewAPI(&server.Config{System: sys, Logger: discard, BufferSize: bufferSize})
	require.NoError(t, err)
	rpcServer, err := server.NewServer(api)
	require.NoError(t, err)

	httpServer := httptest.NewServer(rpcServer.WebsocketHandler([]string{"*"}))
	t.Cleanup(func() {
		rpcServer.Stop()
		httpServer.Close()
	})
	return sys, "ws://" + strings.TrimPrefix(httpServer.URL, "http://")
}

func mustEvent(t *testing.T, eventType string, payload any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	event, err := json.Marshal(jsonrpc.SubscriptionEvent{Type: eventType, Payload: raw, SentAt: time.Now().UnixNano()})
	require.NoError(t, err)
	return event
}

// --- Tests ---

func TestConfig_Validate(t *testing.T) {
	valid := Config{URL: "ws://localhost:1", Logger: discard, BufferSize: 1, StatePatcher: statePatcher()}
	require.NoError(t, valid.validate())

	testCases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing url", func(c *Config) { c.URL = "" }, "URL is required"},
		{"zero buffer", func(c *Config) { c.BufferSize = 0 }, "BufferSize"},
		{"missing logger", func(c *Config) { c.Logger = nil }, "Logger is required"},
		{"missing patcher", func(c *Config) { c.StatePatcher = nil }, "StatePatcher is required"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			assert.ErrorContains(t, cfg.validate(), tc.want)
		})
	}
}

func TestClient_TracksServerState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sys, url := setupServer(t, 16)

	client, err := NewClient(ctx, Config{
		URL:          url,
		Logger:       discard,
		BufferSize:   16,
		StatePatcher: statePatcher(),
	})
	require.NoError(t, err)

	select {
	case state := <-client.State():
		assert.Equal(t, uint64(0), state.Seq)
		assert.Equal(t, engine.OpGenesis, state.Op)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the full state")
	}

	calls, err := DialPoolClient(ctx, url)
	require.NoError(t, err)
	defer calls.Close()

	_, err = calls.Init(ctx, initParams)
	require.NoError(t, err)
	_, err = calls.Mint(ctx, jsonrpc.MintArgs{
		TickLower:      mustI24(t, -600),
		TickUpper:      mustI24(t, 600),
		Amount0Desired: 1_000_000,
		Amount1Desired: 1_000_000,
		Recipient:      owner,
	})
	require.NoError(t, err)
	_, err = calls.Swap(ctx, pool.SwapParams{ZeroForOne: true, ExactInput: true, Amount: 10_000})
	require.NoError(t, err)

	var last *engine.State
	for last == nil || last.Seq < 3 {
		select {
		case last = <-client.State():
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for diffs")
		}
	}
	assert.Equal(t, sys.State(), last)
}

func TestPoolClient_Calls(t *testing.T) {
	ctx := context.Background()
	_, url := setupServer(t, 4)

	calls, err := DialPoolClient(ctx, url)
	require.NoError(t, err)
	defer calls.Close()

	minimal, err := calls.Init(ctx, initParams)
	require.NoError(t, err)
	assert.True(t, minimal.Initialized)
	assert.Equal(t, int32(0), minimal.Tick)

	_, err = calls.Init(ctx, initParams)
	assert.ErrorIs(t, err, clammerr.ErrState)
	assert.ErrorContains(t, err, "already initialized")

	_, err = calls.Mint(ctx, jsonrpc.MintArgs{
		TickLower:      clamm.I24{Underlying: 1 << 24},
		TickUpper:      mustI24(t, 600),
		Amount0Desired: 1,
		Amount1Desired: 1,
		Recipient:      owner,
	})
	assert.ErrorIs(t, err, clammerr.ErrDomain)

	liquidity := fixedpoint.From64(1_000_000)
	minted, err := calls.Mint(ctx, jsonrpc.MintArgs{
		TickLower: mustI24(t, -600),
		TickUpper: mustI24(t, 600),
		Liquidity: &liquidity,
		Recipient: owner,
	})
	require.NoError(t, err)
	assert.Equal(t, liquidity, minted.Liquidity)
	assert.NotZero(t, minted.Amount0)
	assert.NotZero(t, minted.Amount1)

	tick, err := calls.Tick(ctx, -600)
	require.NoError(t, err)
	require.NotNil(t, tick)
	assert.Equal(t, liquidity, tick.LiquidityGross)

	missing, err := calls.Tick(ctx, 60)
	require.NoError(t, err)
	assert.Nil(t, missing)

	key := clamm.PositionKey{Owner: owner, TickLower: -600, TickUpper: 600}
	position, err := calls.Position(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, position)
	assert.Equal(t, liquidity, position.Liquidity)

	quote, err := calls.Quote(ctx, pool.SwapParams{ZeroForOne: false, ExactInput: true, Amount: 1_000})
	require.NoError(t, err)
	swap, err := calls.Swap(ctx, pool.SwapParams{ZeroForOne: false, ExactInput: true, Amount: 1_000})
	require.NoError(t, err)
	assert.Equal(t, quote, swap)

	burned, err := calls.Burn(ctx, jsonrpc.BurnArgs{
		TickLower: mustI24(t, -600),
		TickUpper: mustI24(t, 600),
		Liquidity: liquidity,
		Owner:     owner,
	})
	require.NoError(t, err)

	collected, err := calls.Collect(ctx, jsonrpc.CollectArgs{
		TickLower:  mustI24(t, -600),
		TickUpper:  mustI24(t, 600),
		Owner:      owner,
		Amount0Max: burned.Amount0,
		Amount1Max: burned.Amount1,
	})
	require.NoError(t, err)
	assert.Equal(t, burned, collected)

	state, err := calls.Pool(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.OpCollect, state.Op)
	assert.True(t, state.Pool.Liquidity.IsZero())
}

func TestServer_InProc(t *testing.T) {
	sys, err := system.NewPoolSystem(&system.Config{Logger: discard, Registry: prometheus.NewRegistry()})
	require.NoError(t, err)
	api, err := server.NewAPI(&server.Config{System: sys, Logger: discard, BufferSize: 1})
	require.NoError(t, err)
	rpcServer, err := server.NewServer(api)
	require.NoError(t, err)
	defer rpcServer.Stop()

	calls := NewPoolClient(rpc.DialInProc(rpcServer))
	defer calls.Close()

	_, err = calls.Swap(context.Background(), pool.SwapParams{ExactInput: true, Amount: 1})
	assert.ErrorIs(t, err, clammerr.ErrState)
}

// --- StreamProcessor Tests ---

func TestStreamProcessor_FullAndDiffFlow(t *testing.T) {
	ctx := context.Background()
	sp := NewStreamProcessor(discard, 10, statePatcher())

	full := &engine.State{Seq: 4, Op: engine.OpInit, Pool: clamm.PoolView{
		PoolViewMinimal: clamm.PoolViewMinimal{Initialized: true, Fee: 500, TickSpacing: 10},
	}}
	require.NoError(t, sp.ProcessMessage(ctx, mustEvent(t, jsonrpc.EventFull, full)))

	select {
	case state := <-sp.State():
		assert.Equal(t, uint64(4), state.Seq)
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for full state")
	}

	moved := full.Pool.PoolViewMinimal
	moved.Tick = -7
	diff := &differ.StateDiff{FromSeq: 4, ToSeq: 5, Op: engine.OpSwap, Pool: clamm.PoolDiff{State: &moved}}
	require.NoError(t, sp.ProcessMessage(ctx, mustEvent(t, jsonrpc.EventDiff, diff)))

	select {
	case state := <-sp.State():
		assert.Equal(t, uint64(5), state.Seq)
		assert.Equal(t, int32(-7), state.Pool.Tick)
		assert.Equal(t, engine.OpSwap, state.Op)
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for diff state")
	}

	// a diff already applied is ignored
	stale := &differ.StateDiff{FromSeq: 4, ToSeq: 5, Pool: clamm.PoolDiff{State: &moved}}
	require.NoError(t, sp.ProcessMessage(ctx, mustEvent(t, jsonrpc.EventDiff, stale)))
	assert.Empty(t, sp.State())

	// a gap means the stream has to be restarted
	gap := &differ.StateDiff{FromSeq: 7, ToSeq: 8, Pool: clamm.PoolDiff{State: &moved}}
	err := sp.ProcessMessage(ctx, mustEvent(t, jsonrpc.EventDiff, gap))
	assert.ErrorIs(t, err, ErrOutOfSync)
	assert.Empty(t, sp.State())

	// neither left the processor behind
	next := &differ.StateDiff{FromSeq: 5, ToSeq: 6, Op: engine.OpMint, Pool: clamm.PoolDiff{}}
	require.NoError(t, sp.ProcessMessage(ctx, mustEvent(t, jsonrpc.EventDiff, next)))
	assert.Equal(t, uint64(6), (<-sp.State()).Seq)

	// a later full state resynchronizes the processor
	resync := &engine.State{Seq: 9, Op: engine.OpMint}
	require.NoError(t, sp.ProcessMessage(ctx, mustEvent(t, jsonrpc.EventFull, resync)))
	state := <-sp.State()
	assert.Equal(t, uint64(9), state.Seq)

	sp.Reset()
	err = sp.ProcessMessage(ctx, mustEvent(t, jsonrpc.EventDiff, &differ.StateDiff{FromSeq: 9, ToSeq: 10}))
	assert.ErrorContains(t, err, "before full state")
}

func TestStreamProcessor_StopsWaitingOnCancel(t *testing.T) {
	sp := NewStreamProcessor(discard, 1, statePatcher())
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, sp.ProcessMessage(ctx, mustEvent(t, jsonrpc.EventFull, &engine.State{Seq: 1})))

	// nobody reads the full channel, so the next state cannot be delivered
	cancel()
	err := sp.ProcessMessage(ctx, mustEvent(t, jsonrpc.EventFull, &engine.State{Seq: 2}))
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, uint64(1), (<-sp.State()).Seq)
	assert.Empty(t, sp.State())
}

func TestStreamProcessor_ValidationErrors(t *testing.T) {
	ctx := context.Background()
	sp := NewStreamProcessor(discard, 10, statePatcher())

	err := sp.ProcessMessage(ctx, json.RawMessage(`not json`))
	assert.ErrorContains(t, err, "failed to unmarshal subscription event")

	err = sp.ProcessMessage(ctx, mustEvent(t, "snapshot", map[string]any{}))
	assert.ErrorContains(t, err, "unknown event type")

	err = sp.ProcessMessage(ctx, mustEvent(t, jsonrpc.EventDiff, &differ.StateDiff{FromSeq: 0, ToSeq: 1}))
	assert.ErrorContains(t, err, "before full state")

	err = sp.ProcessMessage(ctx, json.RawMessage(`{"type":"full","payload":{"seq":"nine"}}`))
	assert.ErrorContains(t, err, "failed to unmarshal full state payload")
}
