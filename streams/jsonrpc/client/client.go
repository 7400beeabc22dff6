package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/clamm-engine/engine"
	"github.com/defistate/clamm-engine/streams/jsonrpc"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration for the client.
type Config struct {
	URL          string
	Logger       Logger
	BufferSize   uint
	StatePatcher StatePatcherFunc
}

func (c *Config) validate() error {
	switch {
	case c.URL == "":
		return errors.New("config: URL is required")
	case c.BufferSize < 1:
		return errors.New("config: BufferSize must be greater than 0")
	case c.Logger == nil:
		return errors.New("config: Logger is required")
	case c.StatePatcher == nil:
		return errors.New("config: StatePatcher is required")
	}
	return nil
}

// Client follows a pool's diff stream, reconnecting with exponential backoff
// and resubscribing whenever the stream falls out of sync.
type Client struct {
	url       string
	processor *StreamProcessor
	errCh     chan error
	logger    Logger
}

// NewClient validates cfg and starts streaming in the background until ctx is
// canceled.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c := &Client{
		url:       cfg.URL,
		processor: NewStreamProcessor(cfg.Logger, cfg.BufferSize, cfg.StatePatcher),
		errCh:     make(chan error, 1),
		logger:    cfg.Logger,
	}
	go c.run(ctx)
	return c, nil
}

// State returns the channel of pool states, one per full state or diff.
func (c *Client) State() <-chan *engine.State {
	return c.processor.State()
}

// Err returns a channel for fatal errors. It is closed when the client stops.
func (c *Client) Err() <-chan error {
	return c.errCh
}

func (c *Client) run(ctx context.Context) {
	defer close(c.errCh)
	delay := initialReconnectDelay

	for {
		err := c.stream(ctx)
		if ctx.Err() != nil {
			break
		}
		if errors.Is(err, ErrOutOfSync) {
			c.logger.Warn("Stream out of sync, resubscribing", "error", err)
			c.processor.Reset()
			delay = initialReconnectDelay
			continue
		}
		c.logger.Error("Stream failed, will reconnect", "url", c.url, "error", err, "delay", delay)
		if !sleep(ctx, delay) {
			break
		}
		delay = min(delay*2, maxReconnectDelay)
	}
	c.logger.Info("Client stopped")
}

// stream dials, subscribes and feeds events to the processor until the
// subscription ends.
func (c *Client) stream(ctx context.Context) error {
	c.logger.Info("Connecting", "url", c.url)
	rpcClient, err := rpc.DialContext(ctx, c.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer rpcClient.Close()

	rawCh := make(chan json.RawMessage)
	sub, err := rpcClient.Subscribe(ctx, jsonrpc.Namespace, rawCh, jsonrpc.DiffsSubscription)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()
	c.logger.Info("Subscribed", "url", c.url)

	for {
		select {
		case raw := <-rawCh:
			err := c.processor.ProcessMessage(ctx, raw)
			if errors.Is(err, ErrOutOfSync) || ctx.Err() != nil {
				return err
			}
			if err != nil {
				c.logger.Error("Error processing message", "error", err)
			}
		case err := <-sub.Err():
			if err == nil {
				err = errors.New("subscription closed by server")
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// sleep waits for d or until ctx is done, reporting whether the full delay
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
