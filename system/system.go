// Package system hosts a single pool behind a lock. Writes are serialized in
// lock acquisition order; reads are served from an immutable state published
// through an atomic pointer, and every committed change is diffed and pushed
// to subscribers.
package system

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/defistate/clamm-engine/differ"
	"github.com/defistate/clamm-engine/engine"
	"github.com/defistate/clamm-engine/protocols/clamm"
	"github.com/defistate/clamm-engine/protocols/clamm/calculator/fixedpoint"
	"github.com/defistate/clamm-engine/protocols/clamm/clammerr"
	"github.com/defistate/clamm-engine/protocols/clamm/pool"
	"github.com/prometheus/client_golang/prometheus"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the dependencies of a PoolSystem.
type Config struct {
	// Name identifies the pool in logs and metrics. Defaults to "clamm".
	Name     string
	Logger   Logger
	Registry prometheus.Registerer
}

func (c *Config) validate() error {
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	return nil
}

type subscriber struct {
	ch chan *differ.StateDiff
}

// PoolSystem provides a concurrency-safe layer over a pool.Pool.
type PoolSystem struct {
	name    string
	logger  Logger
	metrics *Metrics
	differ  *differ.StateDiffer

	mu         sync.Mutex
	pool       *pool.Pool
	cachedView atomic.Pointer[engine.State]

	subMu       sync.Mutex
	nextSubID   uint64
	subscribers map[uint64]*subscriber
}

// NewPoolSystem creates a system around an uninitialized pool.
func NewPoolSystem(cfg *Config) (*PoolSystem, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	name := cfg.Name
	if name == "" {
		name = "clamm"
	}

	d, err := differ.NewStateDiffer(&differ.StateDifferConfig{
		Registry: cfg.Registry,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	s := &PoolSystem{
		name:        name,
		logger:      cfg.Logger,
		metrics:     NewMetrics(cfg.Registry, name),
		differ:      d,
		pool:        pool.New(),
		subscribers: make(map[uint64]*subscriber),
	}
	s.cachedView.Store(&engine.State{
		Timestamp: uint64(time.Now().UnixNano()),
		Op:        engine.OpGenesis,
		Pool:      s.pool.View(),
	})
	s.logger.Info("pool system started", "system", name)
	return s, nil
}

// --- Write Methods ---

// Init initializes the pool.
func (s *PoolSystem) Init(params pool.InitParams) error {
	return s.apply(engine.OpInit, func(p *pool.Pool) error {
		return p.Init(params)
	})
}

// Mint adds the most liquidity the desired amounts can back. See pool.Pool.Mint.
func (s *PoolSystem) Mint(
	tickLower, tickUpper int32,
	amount0Desired, amount1Desired uint64,
	recipient clamm.Identity,
) (liquidity fixedpoint.U128, amount0, amount1 uint64, err error) {
	err = s.apply(engine.OpMint, func(p *pool.Pool) error {
		var err error
		liquidity, amount0, amount1, err = p.Mint(tickLower, tickUpper, amount0Desired, amount1Desired, recipient)
		return err
	})
	return liquidity, amount0, amount1, err
}

// MintLiquidity adds an exact amount of liquidity. See pool.Pool.MintLiquidity.
func (s *PoolSystem) MintLiquidity(
	tickLower, tickUpper int32,
	liquidity fixedpoint.U128,
	recipient clamm.Identity,
) (amount0, amount1 uint64, err error) {
	err = s.apply(engine.OpMint, func(p *pool.Pool) error {
		var err error
		amount0, amount1, err = p.MintLiquidity(tickLower, tickUpper, liquidity, recipient)
		return err
	})
	return amount0, amount1, err
}

// Burn removes liquidity from a position. See pool.Pool.Burn.
func (s *PoolSystem) Burn(
	tickLower, tickUpper int32,
	liquidity fixedpoint.U128,
	owner clamm.Identity,
) (amount0, amount1 uint64, err error) {
	err = s.apply(engine.OpBurn, func(p *pool.Pool) error {
		var err error
		amount0, amount1, err = p.Burn(tickLower, tickUpper, liquidity, owner)
		return err
	})
	return amount0, amount1, err
}

// Collect withdraws tokens owed to a position. See pool.Pool.Collect.
func (s *PoolSystem) Collect(
	tickLower, tickUpper int32,
	owner clamm.Identity,
	max0, max1 uint64,
) (amount0, amount1 uint64, err error) {
	err = s.apply(engine.OpCollect, func(p *pool.Pool) error {
		var err error
		amount0, amount1, err = p.Collect(tickLower, tickUpper, owner, max0, max1)
		return err
	})
	return amount0, amount1, err
}

// Swap trades against the pool. See pool.Pool.Swap.
func (s *PoolSystem) Swap(params pool.SwapParams) (result pool.SwapResult, err error) {
	err = s.apply(engine.OpSwap, func(p *pool.Pool) error {
		var err error
		result, err = p.Swap(params)
		return err
	})
	if err == nil {
		s.metrics.TicksCrossed.WithLabelValues().Observe(float64(len(result.Crossed)))
	}
	return result, err
}

// Quote simulates a swap without committing it. It still takes the write
// lock, since the simulation runs on the live pool and is rolled back.
func (s *PoolSystem) Quote(params pool.SwapParams) (pool.SwapResult, error) {
	timer := prometheus.NewTimer(s.metrics.OperationDuration.WithLabelValues(string(engine.OpQuote)))
	defer timer.ObserveDuration()

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.pool.Quote(params)
	s.metrics.OperationsTotal.WithLabelValues(string(engine.OpQuote), clammerr.ClassName(err)).Inc()
	if err != nil {
		s.logger.Debug("quote failed", "system", s.name, "class", clammerr.ClassName(err), "error", err)
	}
	return result, err
}

// apply runs fn under the write lock and commits its effects. fn must leave
// the pool unchanged when it fails, which every pool operation guarantees.
func (s *PoolSystem) apply(op engine.Op, fn func(p *pool.Pool) error) error {
	timer := prometheus.NewTimer(s.metrics.OperationDuration.WithLabelValues(string(op)))
	defer timer.ObserveDuration()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(s.pool); err != nil {
		class := clammerr.ClassName(err)
		s.metrics.OperationsTotal.WithLabelValues(string(op), class).Inc()
		s.logger.Warn("operation failed", "system", s.name, "op", op, "class", class, "error", err)
		return err
	}
	s.metrics.OperationsTotal.WithLabelValues(string(op), clammerr.ClassName(nil)).Inc()
	s.commit(op)
	return nil
}

// commit publishes the pool's current view and broadcasts the diff from the
// previous one. It is a no-op when nothing changed.
// This method MUST be called from within the write lock (s.mu.Lock).
func (s *PoolSystem) commit(op engine.Op) {
	prev := s.cachedView.Load()
	next := &engine.State{
		Seq:       prev.Seq + 1,
		Timestamp: uint64(time.Now().UnixNano()),
		Op:        op,
		Pool:      s.pool.View(),
	}

	diff, err := s.differ.Diff(prev, next)
	if err != nil {
		// the sequence is advanced only here, so this is a programmer error
		panic(err)
	}
	if diff.Pool.IsEmpty() {
		s.logger.Debug("operation committed without changes", "system", s.name, "op", op, "seq", prev.Seq)
		return
	}

	s.cachedView.Store(next)
	s.metrics.observe(next)
	s.logger.Debug("operation committed", "system", s.name, "op", op, "seq", next.Seq, "tick", next.Pool.Tick)
	s.broadcast(diff)
}

// broadcast sends diff to every subscriber. A subscriber whose buffer is
// full is dropped and its channel closed; it has to resubscribe to resync.
func (s *PoolSystem) broadcast(diff *differ.StateDiff) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for id, sub := range s.subscribers {
		select {
		case sub.ch <- diff:
		default:
			delete(s.subscribers, id)
			close(sub.ch)
			s.metrics.SubscribersDropped.WithLabelValues().Inc()
			s.logger.Warn("subscriber too slow, dropping", "system", s.name, "subscriber", id, "seq", diff.ToSeq)
		}
	}
	s.metrics.Subscribers.WithLabelValues().Set(float64(len(s.subscribers)))
}

// Subscribe returns the current state together with a channel that receives
// every later diff, in order, starting from that state. The channel is
// closed when unsubscribe is called, when the system is closed, or when the
// subscriber falls more than buffer diffs behind.
func (s *PoolSystem) Subscribe(buffer int) (*engine.State, <-chan *differ.StateDiff, func()) {
	if buffer < 1 {
		buffer = 1
	}

	// holding the write lock keeps a commit from landing between the
	// snapshot and the registration
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	sub := &subscriber{ch: make(chan *differ.StateDiff, buffer)}
	s.subscribers[id] = sub
	s.metrics.Subscribers.WithLabelValues().Set(float64(len(s.subscribers)))

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if current, ok := s.subscribers[id]; ok && current == sub {
				delete(s.subscribers, id)
				close(sub.ch)
				s.metrics.Subscribers.WithLabelValues().Set(float64(len(s.subscribers)))
			}
		})
	}
	return s.cachedView.Load(), sub.ch, unsubscribe
}

// Close closes every subscription. The system stays usable.
func (s *PoolSystem) Close() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for id, sub := range s.subscribers {
		delete(s.subscribers, id)
		close(sub.ch)
	}
	s.metrics.Subscribers.WithLabelValues().Set(0)
	s.logger.Info("pool system closed", "system", s.name)
}

// --- Read Methods ---

// State returns the latest committed state. The returned value is shared
// and MUST NOT be modified; use View for a private copy.
func (s *PoolSystem) State() *engine.State {
	return s.cachedView.Load()
}

// View returns a copy of the latest committed pool view.
func (s *PoolSystem) View() clamm.PoolView {
	return s.cachedView.Load().Clone().Pool
}

// Tick returns an initialized tick from the latest committed state.
func (s *PoolSystem) Tick(index int32) (clamm.TickInfo, bool) {
	return s.cachedView.Load().Tick(index)
}

// Position returns a position from the latest committed state.
func (s *PoolSystem) Position(key clamm.PositionKey) (clamm.PositionInfo, bool) {
	return s.cachedView.Load().Position(key)
}
