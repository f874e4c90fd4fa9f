// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rollover implements the liquidity rollover precompile. A rollover
// moves a liquidity position from one venue to another in a single atomic
// call: rewards are claimed and forwarded, the source position is unstaked
// and withdrawn, a service fee is taken, native value is wrapped, the
// proceeds are deposited into the destination venue and staked, and any
// leftover balance is returned to the caller. Any failure reverts the whole
// call.
package rollover

import (
	"errors"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// RolloverAddress is the precompile address (LP-9090, DEX/Markets range)
const RolloverAddress = "0x0000000000000000000000000000000000009090"

// NativeToken is the sentinel token identifier for the chain's native asset.
// It marks a native slot in withdrawal results until normalization replaces
// it with the wrapped-native token.
var NativeToken = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Fee parameters
const (
	// FeeDenominator is the basis-point denominator (100% = 10000)
	FeeDenominator uint64 = 10000

	// MaxFeeBps caps the service fee at 10%
	MaxFeeBps uint64 = 1000
)

// Gas costs
const (
	GasRollover     uint64 = 250_000 // Full rollover sequence
	GasClaimFees    uint64 = 30_000  // Claim pending fees
	GasAdminWrite   uint64 = 20_000  // Governance setter
	GasRead         uint64 = 2_100   // Configuration view
	GasComputeFee   uint64 = 200     // Pure fee quote
	GasPerTokenLeg  uint64 = 25_000  // Per withdrawn token, charged on top of GasRollover
	GasMaxTokenLegs int    = 16      // Upper bound on withdrawn tokens per rollover
)

// MigrationRequest is the caller-supplied description of one rollover.
// It is not modified while the rollover runs.
type MigrationRequest struct {
	SourceVenue        common.Address
	DestVenue          common.Address
	Liquidity          *uint256.Int   // Quantity of the source position to move, unit defined by the venue
	SourceParams       []byte         // Opaque to the orchestrator, decoded by the source adapter
	DestParams         []byte         // Opaque to the orchestrator, decoded by the destination adapter
	MinWithdrawAmounts []*uint256.Int // Per-token floors, aligned 1:1 with the withdrawal result
	MinNewLiquidity    *uint256.Int   // Floor on the liquidity minted by the destination venue
}

// Receipt describes a committed rollover
type Receipt struct {
	Tokens          []common.Address // Tokens as deposited (native slot already wrapped)
	WithdrawnTokens []common.Address // Tokens as withdrawn (native slot is NativeToken)
	Withdrawn       []*uint256.Int   // Amounts received from the source venue
	Fees            []*uint256.Int   // Fee actually applied per token
	FeesReceived    []*uint256.Int   // What the fee recipient's balance grew by, zero when deferred
	Deposited       []*uint256.Int   // Post-fee amounts offered to the destination venue
	RewardTokens    []common.Address // Rewards forwarded to the caller
	RewardAmounts   []*uint256.Int
	ILTokens        []common.Address // IL compensation forwarded to the caller
	ILAmounts       []*uint256.Int
	NewLiquidity    *uint256.Int
	Staked          bool // False when the best-effort stake failed or is unsupported
	DeferredFees    bool // True when at least one fee went to the pending ledger
}

// migrationState is the orchestrator-local state of one in-flight rollover.
// tokens, amounts and feeAmounts always have equal length once populated.
type migrationState struct {
	user            common.Address
	withdrawnTokens []common.Address
	tokens          []common.Address
	withdrawn       []*uint256.Int
	amounts         []*uint256.Int
	feeAmounts      []*uint256.Int
	feesReceived    []*uint256.Int
	rewardTokens    []common.Address
	rewardAmounts   []*uint256.Int
	ilTokens        []common.Address
	ilAmounts       []*uint256.Int
	touched         []common.Address
	newLiquidity    *uint256.Int
	nativeSnapshot  *uint256.Int
	wrapped         *uint256.Int // Native value wrapped by normalization
	staked          bool
	deferredFees    bool
}

// touch records token as handled by this rollover so the dust refund sweeps it
func (s *migrationState) touch(token common.Address) {
	if token == NativeToken {
		return
	}
	for _, t := range s.touched {
		if t == token {
			return
		}
	}
	s.touched = append(s.touched, token)
}

func (s *migrationState) receipt() *Receipt {
	return &Receipt{
		Tokens:          s.tokens,
		WithdrawnTokens: s.withdrawnTokens,
		Withdrawn:       s.withdrawn,
		Fees:            s.feeAmounts,
		FeesReceived:    s.feesReceived,
		Deposited:       s.amounts,
		RewardTokens:    s.rewardTokens,
		RewardAmounts:   s.rewardAmounts,
		ILTokens:        s.ilTokens,
		ILAmounts:       s.ilAmounts,
		NewLiquidity:    s.newLiquidity,
		Staked:          s.staked,
		DeferredFees:    s.deferredFees,
	}
}

// Errors - Migration
var (
	ErrInvalidRequest        = errors.New("invalid request")
	ErrArrayLengthMismatch   = errors.New("array length mismatch")
	ErrSlippageExceeded      = errors.New("slippage exceeded")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrFeeTransferMismatch   = errors.New("fee transfer mismatch")
	ErrReentrant             = errors.New("reentrancy detected")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrUnsupported           = errors.New("operation not supported by venue")
	ErrUnknownVenue          = errors.New("no adapter registered for venue")
)

// Errors - Configuration
var (
	ErrFeeExceedsMaximum    = errors.New("fee exceeds maximum (1000 BPS)")
	ErrInvalidAddress       = errors.New("invalid address")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrAlreadyInitialized   = errors.New("already initialized")
	ErrNotInitialized       = errors.New("not initialized")
	ErrUnauthorized         = errors.New("unauthorized: caller is not admin")
	ErrNoPendingFees        = errors.New("no pending fees")
)

// Errors - Precompile
var (
	ErrInsufficientGas = errors.New("insufficient gas")
	ErrInvalidInput    = errors.New("invalid input")
	ErrTooManyTokens   = errors.New("too many tokens in withdrawal")
)

// errorKinds orders the taxonomy for KindOf; the first match wins
var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrReentrant, "reentrant"},
	{ErrUnknownVenue, "invalid_request"},
	{ErrInvalidRequest, "invalid_request"},
	{ErrArrayLengthMismatch, "array_length_mismatch"},
	{ErrSlippageExceeded, "slippage_exceeded"},
	{ErrInsufficientBalance, "insufficient_balance"},
	{ErrFeeTransferMismatch, "fee_transfer_mismatch"},
	{ErrInsufficientLiquidity, "insufficient_liquidity"},
	{ErrFeeExceedsMaximum, "fee_exceeds_maximum"},
	{ErrInvalidAddress, "invalid_address"},
	{ErrInvalidConfiguration, "invalid_configuration"},
	{ErrNotInitialized, "invalid_configuration"},
	{ErrUnauthorized, "unauthorized"},
	{ErrNoPendingFees, "no_pending_fees"},
	{ErrTooManyTokens, "invalid_request"},
}

// KindOf names the taxonomy bucket of err, "adapter" for anything raised by
// a venue that does not wrap one of this package's errors.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "adapter"
}
