package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/defistate/clamm-engine/protocols/clamm/calculator/fixedpoint"
	"github.com/defistate/clamm-engine/protocols/clamm/calculator/tickmath"
	"github.com/defistate/clamm-engine/protocols/clamm/pool"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListen        = "127.0.0.1:8545"
	DefaultMetricsListen = "127.0.0.1:9090"
	DefaultBufferSize    = 100
)

// SqrtPriceConfig is a Q64.64 square-root price given as its two limbs.
type SqrtPriceConfig struct {
	Upper uint64 `yaml:"upper"`
	Lower uint64 `yaml:"lower"`
}

// PoolConfig describes the pool initialized at startup. The starting price
// is given either as a raw square-root price or as a tick.
type PoolConfig struct {
	Token0      string           `yaml:"token0"`
	Token1      string           `yaml:"token1"`
	Fee         uint32           `yaml:"fee"`
	TickSpacing uint32           `yaml:"tickSpacing"`
	SqrtPrice   *SqrtPriceConfig `yaml:"sqrtPrice"`
	Tick        *int32           `yaml:"tick"`
}

// Config is the configuration of clammd.
type Config struct {
	Listen        string      `yaml:"listen"`
	MetricsListen string      `yaml:"metricsListen"`
	LogLevel      string      `yaml:"logLevel"`
	BufferSize    int         `yaml:"bufferSize"`
	StreamURL     string      `yaml:"streamURL"`
	Pool          *PoolConfig `yaml:"pool"`
}

// LoadConfig reads, defaults and validates the configuration at path.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes, defaults and validates a YAML configuration.
func Parse(raw []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.MetricsListen == "" {
		c.MetricsListen = DefaultMetricsListen
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}
}

func (c *Config) validate() error {
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.BufferSize < 1 {
		return errors.New("config: bufferSize must be greater than 0")
	}
	if c.Listen == c.MetricsListen {
		return fmt.Errorf("config: listen and metricsListen are both %s", c.Listen)
	}
	if c.Pool != nil {
		if _, err := c.Pool.InitParams(); err != nil {
			return fmt.Errorf("config: pool: %w", err)
		}
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: invalid logLevel %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// InitParams converts the pool block to pool initialization parameters.
func (p *PoolConfig) InitParams() (pool.InitParams, error) {
	if p.Token0 == "" || p.Token1 == "" {
		return pool.InitParams{}, errors.New("token0 and token1 are required")
	}
	token0, err := parseToken(p.Token0)
	if err != nil {
		return pool.InitParams{}, err
	}
	token1, err := parseToken(p.Token1)
	if err != nil {
		return pool.InitParams{}, err
	}
	if !slices.Contains(pool.FeeTiers, p.Fee) {
		return pool.InitParams{}, fmt.Errorf("fee %d is not one of %v", p.Fee, pool.FeeTiers)
	}
	if p.TickSpacing == 0 {
		return pool.InitParams{}, errors.New("tickSpacing is required")
	}

	var sqrtPrice fixedpoint.Q64x64
	switch {
	case p.SqrtPrice != nil && p.Tick != nil:
		return pool.InitParams{}, errors.New("sqrtPrice and tick are mutually exclusive")
	case p.SqrtPrice != nil:
		sqrtPrice = fixedpoint.NewQ64x64(fixedpoint.U128{Upper: p.SqrtPrice.Upper, Lower: p.SqrtPrice.Lower})
	case p.Tick != nil:
		if sqrtPrice, err = tickmath.SqrtPriceAtTick(*p.Tick); err != nil {
			return pool.InitParams{}, err
		}
	default:
		return pool.InitParams{}, errors.New("one of sqrtPrice or tick is required")
	}

	return pool.InitParams{
		Token0:      token0,
		Token1:      token1,
		Fee:         p.Fee,
		SqrtPrice:   sqrtPrice,
		TickSpacing: p.TickSpacing,
	}, nil
}

// parseToken decodes a 0x-prefixed hex id of at most 32 bytes, left padded
// like common.HexToHash.
func parseToken(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, fmt.Errorf("token %q is not a 32-byte hex string: %w", s, err)
	}
	if len(b) == 0 || len(b) > common.HashLength {
		return common.Hash{}, fmt.Errorf("token %q is not a 32-byte hex string: %d bytes", s, len(b))
	}
	return common.BytesToHash(b), nil
}
