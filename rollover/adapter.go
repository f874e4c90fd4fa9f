// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rollover

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/parsdao/rollover/contract"
)

// Bank is the token surface the orchestrator and adapters move value
// through. token.Ledger is the storage-backed implementation.
type Bank interface {
	BalanceOf(stateDB contract.StateDB, token, holder common.Address) *uint256.Int
	Transfer(stateDB contract.StateDB, token, from, to common.Address, amount *uint256.Int) error
	TransferFrom(stateDB contract.StateDB, token, spender, from, to common.Address, amount *uint256.Int) error
	Approve(stateDB contract.StateDB, token, owner, spender common.Address, amount *uint256.Int) error
	Allowance(stateDB contract.StateDB, token, owner, spender common.Address) *uint256.Int

	// Wrap converts holder's native balance into the wrapped token, Unwrap reverses it
	Wrap(stateDB contract.StateDB, wrapped, holder common.Address, amount *uint256.Int) error
	Unwrap(stateDB contract.StateDB, wrapped, holder common.Address, amount *uint256.Int) error
}

// CallContext is handed to every adapter call.
//
// Custodian is the orchestrator's own address: withdrawals and reward
// claims pay into it, deposits pull from it through the allowance granted
// to the adapter's address.
type CallContext struct {
	StateDB       contract.StateDB
	Bank          Bank
	Custodian     common.Address
	WrappedNative common.Address
}

// Adapter is the capability set every venue integration exposes.
//
// The orchestrator never trusts returned values: it re-checks array
// lengths, slippage floors and actual balances after each call. A venue
// that lacks a capability returns ErrUnsupported, which the orchestrator
// treats as a no-op for staking, reward claims and IL protection.
type Adapter interface {
	// Address identifies the venue; it is the allow-list key and the spender
	// that deposits are approved for.
	Address() common.Address

	// Withdraw removes liquidity of owner's position and pays the underlying
	// tokens to the custodian. NativeToken marks native value. Fails with
	// ErrInsufficientLiquidity when owner holds less than liquidity.
	Withdraw(cc *CallContext, owner common.Address, liquidity *uint256.Int, params []byte, minAmounts []*uint256.Int) ([]common.Address, []*uint256.Int, error)

	// Deposit pulls up to amounts from the custodian and credits the minted
	// liquidity to owner. Fails with ErrSlippageExceeded below minLiquidity.
	Deposit(cc *CallContext, owner common.Address, tokens []common.Address, amounts []*uint256.Int, params []byte, minLiquidity *uint256.Int) (*uint256.Int, error)

	// Swap exchanges amountIn of tokenIn held by the custodian for tokenOut
	Swap(cc *CallContext, tokenIn, tokenOut common.Address, amountIn, minAmountOut *uint256.Int, params []byte) (*uint256.Int, error)

	Stake(cc *CallContext, owner common.Address, liquidity *uint256.Int, params []byte) error
	Unstake(cc *CallContext, owner common.Address, liquidity *uint256.Int, params []byte) error

	// ClaimRewards pays owner's accrued rewards to the custodian.
	// Zero-length results mean no rewards.
	ClaimRewards(cc *CallContext, owner common.Address) ([]common.Address, []*uint256.Int, error)

	EnableILProtection(cc *CallContext, owner common.Address, params []byte) error
	DisableILProtection(cc *CallContext, owner common.Address, params []byte) error
	ClaimILCompensation(cc *CallContext, owner common.Address) ([]common.Address, []*uint256.Int, error)
}

// Venues resolves venue addresses to adapter implementations.
// Registration here makes a venue callable; the governance allow-list
// decides whether it may take part in a rollover.
type Venues struct {
	mu       sync.RWMutex
	adapters map[common.Address]Adapter
}

// NewVenues creates an empty venue directory
func NewVenues() *Venues {
	return &Venues{
		adapters: make(map[common.Address]Adapter),
	}
}

// Register adds adapter under its own address
func (v *Venues) Register(adapter Adapter) error {
	addr := adapter.Address()
	if addr == (common.Address{}) || addr == NativeToken {
		return fmt.Errorf("%w: venue %s", ErrInvalidAddress, addr)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if _, exists := v.adapters[addr]; exists {
		return fmt.Errorf("venue %s already registered", addr)
	}
	v.adapters[addr] = adapter
	return nil
}

// Lookup returns the adapter registered for venue
func (v *Venues) Lookup(venue common.Address) (Adapter, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	adapter, ok := v.adapters[venue]
	return adapter, ok
}
