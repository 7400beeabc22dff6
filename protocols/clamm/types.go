// Package clamm holds the boundary types of the concentrated-liquidity pool:
// identities, the 24-bit tick wire encoding and the read-only views the host
// publishes, plus the differ and patcher that move those views between
// processes.
package clamm

import (
	"bytes"
	"cmp"
	"fmt"

	"github.com/defistate/clamm-engine/protocols/clamm/calculator/fixedpoint"
	"github.com/defistate/clamm-engine/protocols/clamm/clammerr"
	"github.com/ethereum/go-ethereum/common"
)

// TokenID is the opaque 32-byte identifier of an asset.
type TokenID = common.Hash

// IdentityKind tags the variant held by an Identity.
type IdentityKind uint8

const (
	KindAddress IdentityKind = iota
	KindContract
)

func (k IdentityKind) String() string {
	switch k {
	case KindAddress:
		return "address"
	case KindContract:
		return "contract"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// MarshalText encodes the kind by name.
func (k IdentityKind) MarshalText() ([]byte, error) {
	switch k {
	case KindAddress, KindContract:
		return []byte(k.String()), nil
	}
	return nil, fmt.Errorf("unknown identity kind %d", uint8(k))
}

// UnmarshalText decodes a kind by name.
func (k *IdentityKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "address":
		*k = KindAddress
	case "contract":
		*k = KindContract
	default:
		return fmt.Errorf("unknown identity kind %q", text)
	}
	return nil
}

// Identity is the owner of a position: either a direct address or a
// contract. The engine only compares identities for equality.
type Identity struct {
	Kind IdentityKind `json:"kind"`
	ID   common.Hash  `json:"id"`
}

// AddressIdentity returns the identity of an externally owned address.
func AddressIdentity(addr common.Address) Identity {
	return Identity{Kind: KindAddress, ID: common.BytesToHash(addr.Bytes())}
}

// ContractIdentity returns the identity of a contract.
func ContractIdentity(id common.Hash) Identity {
	return Identity{Kind: KindContract, ID: id}
}

func (i Identity) String() string {
	return i.Kind.String() + ":" + i.ID.Hex()
}

// I24 is the wire encoding of a 24-bit signed tick: the tick biased by 2^23
// so that it can travel as an unsigned integer.
type I24 struct {
	Underlying uint32 `json:"underlying"`
}

const i24Bias = 1 << 23

// NewI24 encodes tick, which must fit in 24 signed bits.
func NewI24(tick int32) (I24, error) {
	if tick < -i24Bias || tick >= i24Bias {
		return I24{}, fmt.Errorf("%w: %d does not fit in 24 bits", clammerr.ErrTickOutOfRange, tick)
	}
	return I24{Underlying: uint32(tick + i24Bias)}, nil
}

// Tick decodes the tick.
func (i I24) Tick() (int32, error) {
	if i.Underlying >= 2*i24Bias {
		return 0, fmt.Errorf("%w: underlying %d does not fit in 24 bits", clammerr.ErrTickOutOfRange, i.Underlying)
	}
	return int32(i.Underlying) - i24Bias, nil
}

// PositionKey identifies a position in the ledger.
type PositionKey struct {
	Owner     Identity `json:"owner"`
	TickLower int32    `json:"tickLower"`
	TickUpper int32    `json:"tickUpper"`
}

// PoolViewMinimal is the scalar state of a pool.
type PoolViewMinimal struct {
	Initialized      bool              `json:"initialized"`
	Token0           TokenID           `json:"token0"`
	Token1           TokenID           `json:"token1"`
	Fee              uint32            `json:"fee"`
	TickSpacing      uint32            `json:"tickSpacing"`
	Tick             int32             `json:"tick"`
	SqrtPrice        fixedpoint.Q64x64 `json:"sqrtPrice"`
	Liquidity        fixedpoint.U128   `json:"liquidity"`
	FeeGrowthGlobal0 fixedpoint.Q64x64 `json:"feeGrowthGlobal0"`
	FeeGrowthGlobal1 fixedpoint.Q64x64 `json:"feeGrowthGlobal1"`
}

// TickInfo is the state of one initialized tick. The presence of a TickInfo
// implies the tick is initialized.
type TickInfo struct {
	Index             int32             `json:"index"`
	LiquidityGross    fixedpoint.U128   `json:"liquidityGross"`
	LiquidityNet      fixedpoint.I128   `json:"liquidityNet"`
	FeeGrowthOutside0 fixedpoint.Q64x64 `json:"feeGrowthOutside0"`
	FeeGrowthOutside1 fixedpoint.Q64x64 `json:"feeGrowthOutside1"`
}

// PositionInfo is the state of one position.
type PositionInfo struct {
	PositionKey          `json:",inline"`
	Liquidity            fixedpoint.U128   `json:"liquidity"`
	FeeGrowthInside0Last fixedpoint.Q64x64 `json:"feeGrowthInside0Last"`
	FeeGrowthInside1Last fixedpoint.Q64x64 `json:"feeGrowthInside1Last"`
	TokensOwed0          uint64            `json:"tokensOwed0"`
	TokensOwed1          uint64            `json:"tokensOwed1"`
}

// PoolView is the full read-only view of a pool. Ticks are sorted by index
// and positions by key.
type PoolView struct {
	PoolViewMinimal `json:",inline"`
	Ticks           []TickInfo     `json:"ticks"`
	Positions       []PositionInfo `json:"positions"`
}

// ComparePositionKeys orders keys by owner kind, owner id, lower tick and
// upper tick.
func ComparePositionKeys(a, b PositionKey) int {
	if c := cmp.Compare(a.Owner.Kind, b.Owner.Kind); c != 0 {
		return c
	}
	if c := bytes.Compare(a.Owner.ID[:], b.Owner.ID[:]); c != 0 {
		return c
	}
	if c := cmp.Compare(a.TickLower, b.TickLower); c != 0 {
		return c
	}
	return cmp.Compare(a.TickUpper, b.TickUpper)
}

func compareTicks(a, b TickInfo) int {
	return cmp.Compare(a.Index, b.Index)
}

func comparePositions(a, b PositionInfo) int {
	return ComparePositionKeys(a.PositionKey, b.PositionKey)
}
