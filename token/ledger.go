// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package token keeps ERC20-style fungible token state inside EVM storage.
// Balances and allowances of a token live in the storage of the token's own
// address, so StateDB snapshots cover token movements the same way they
// cover native balance changes.
package token

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	"github.com/zeebo/blake3"

	"github.com/parsdao/rollover/contract"
)

// BasisPoints is the denominator for transfer taxes
const BasisPoints uint64 = 10000

// Storage key prefixes for token state
var (
	balancePrefix   = []byte("tok/bal")
	allowancePrefix = []byte("tok/alw")
	supplyPrefix    = []byte("tok/sup")
)

var (
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrInvalidToken          = errors.New("token: invalid token address")
	ErrInvalidTax            = errors.New("token: transfer tax must be <= 10000 BPS")
	ErrOverflow              = errors.New("token: amount overflow")
)

// Ledger moves fungible tokens between holders.
//
// A token may carry a transfer tax, which models fee-on-transfer tokens:
// the sender is debited the full amount and the recipient is credited the
// amount minus the tax, the difference is burned.
type Ledger struct {
	mu    sync.RWMutex
	taxes map[common.Address]uint64
}

// NewLedger creates a ledger with no taxed tokens
func NewLedger() *Ledger {
	return &Ledger{
		taxes: make(map[common.Address]uint64),
	}
}

// makeStorageKey creates a storage key from prefix and identifiers
func makeStorageKey(prefix []byte, ids ...[]byte) common.Hash {
	h := blake3.New()
	h.Write(prefix)
	for _, id := range ids {
		h.Write(id)
	}
	var key common.Hash
	h.Digest().Read(key[:])
	return key
}

// SetTransferTax configures the tax charged on every transfer of token
func (l *Ledger) SetTransferTax(token common.Address, bps uint64) error {
	if bps > BasisPoints {
		return ErrInvalidTax
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if bps == 0 {
		delete(l.taxes, token)
		return nil
	}
	l.taxes[token] = bps
	return nil
}

func (l *Ledger) transferTax(token common.Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.taxes[token]
}

// BalanceOf returns the balance of holder in token
func (l *Ledger) BalanceOf(stateDB contract.StateDB, token, holder common.Address) *uint256.Int {
	return contract.HashToUint256(stateDB.GetState(token, makeStorageKey(balancePrefix, holder.Bytes())))
}

// TotalSupply returns the amount of token in circulation
func (l *Ledger) TotalSupply(stateDB contract.StateDB, token common.Address) *uint256.Int {
	return contract.HashToUint256(stateDB.GetState(token, makeStorageKey(supplyPrefix)))
}

// Allowance returns how much spender may move out of owner's balance
func (l *Ledger) Allowance(stateDB contract.StateDB, token, owner, spender common.Address) *uint256.Int {
	return contract.HashToUint256(stateDB.GetState(token, makeStorageKey(allowancePrefix, owner.Bytes(), spender.Bytes())))
}

// Mint credits amount of token to holder
func (l *Ledger) Mint(stateDB contract.StateDB, token, to common.Address, amount *uint256.Int) error {
	if token == (common.Address{}) {
		return ErrInvalidToken
	}
	supply, overflow := new(uint256.Int).AddOverflow(l.TotalSupply(stateDB, token), amount)
	if overflow {
		return ErrOverflow
	}
	stateDB.SetState(token, makeStorageKey(supplyPrefix), contract.Uint256ToHash(supply))
	l.setBalance(stateDB, token, to, new(uint256.Int).Add(l.BalanceOf(stateDB, token, to), amount))
	return nil
}

// Burn debits amount of token from holder
func (l *Ledger) Burn(stateDB contract.StateDB, token, from common.Address, amount *uint256.Int) error {
	bal := l.BalanceOf(stateDB, token, from)
	if bal.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, burning %s", ErrInsufficientBalance, from, bal.Dec(), amount.Dec())
	}
	l.setBalance(stateDB, token, from, new(uint256.Int).Sub(bal, amount))
	supply := new(uint256.Int).Sub(l.TotalSupply(stateDB, token), amount)
	stateDB.SetState(token, makeStorageKey(supplyPrefix), contract.Uint256ToHash(supply))
	return nil
}

// Transfer moves amount of token from one holder to another
func (l *Ledger) Transfer(stateDB contract.StateDB, token, from, to common.Address, amount *uint256.Int) error {
	if token == (common.Address{}) {
		return ErrInvalidToken
	}
	bal := l.BalanceOf(stateDB, token, from)
	if bal.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, sending %s", ErrInsufficientBalance, from, bal.Dec(), amount.Dec())
	}
	if amount.IsZero() || from == to {
		return nil
	}

	l.setBalance(stateDB, token, from, new(uint256.Int).Sub(bal, amount))

	received := amount
	if bps := l.transferTax(token); bps > 0 {
		tax, _ := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(bps), uint256.NewInt(BasisPoints))
		received = new(uint256.Int).Sub(amount, tax)
		supply := new(uint256.Int).Sub(l.TotalSupply(stateDB, token), tax)
		stateDB.SetState(token, makeStorageKey(supplyPrefix), contract.Uint256ToHash(supply))
	}
	l.setBalance(stateDB, token, to, new(uint256.Int).Add(l.BalanceOf(stateDB, token, to), received))
	return nil
}

// Approve sets the allowance of spender over owner's balance to exactly amount.
// Any previous allowance is overwritten.
func (l *Ledger) Approve(stateDB contract.StateDB, token, owner, spender common.Address, amount *uint256.Int) error {
	if token == (common.Address{}) {
		return ErrInvalidToken
	}
	stateDB.SetState(token, makeStorageKey(allowancePrefix, owner.Bytes(), spender.Bytes()), contract.Uint256ToHash(amount))
	return nil
}

// TransferFrom moves amount from owner to recipient on behalf of spender
func (l *Ledger) TransferFrom(stateDB contract.StateDB, token, spender, from, to common.Address, amount *uint256.Int) error {
	allowance := l.Allowance(stateDB, token, from, spender)
	if allowance.Lt(amount) {
		return fmt.Errorf("%w: %s may spend %s of %s, requested %s", ErrInsufficientAllowance, spender, allowance.Dec(), from, amount.Dec())
	}
	if err := l.Transfer(stateDB, token, from, to, amount); err != nil {
		return err
	}
	return l.Approve(stateDB, token, from, spender, new(uint256.Int).Sub(allowance, amount))
}

// Wrap converts amount of holder's native balance into the wrapped token.
// The native value is escrowed at the wrapped token's address.
func (l *Ledger) Wrap(stateDB contract.StateDB, wrapped, holder common.Address, amount *uint256.Int) error {
	if wrapped == (common.Address{}) {
		return ErrInvalidToken
	}
	bal := stateDB.GetBalance(holder)
	if bal.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s native, wrapping %s", ErrInsufficientBalance, holder, bal.Dec(), amount.Dec())
	}
	if amount.IsZero() {
		return nil
	}
	stateDB.SubBalance(holder, amount, tracing.BalanceChangeTransfer)
	stateDB.AddBalance(wrapped, amount, tracing.BalanceChangeTransfer)
	return l.Mint(stateDB, wrapped, holder, amount)
}

// Unwrap burns amount of the wrapped token and releases the native value to holder
func (l *Ledger) Unwrap(stateDB contract.StateDB, wrapped, holder common.Address, amount *uint256.Int) error {
	if err := l.Burn(stateDB, wrapped, holder, amount); err != nil {
		return err
	}
	if amount.IsZero() {
		return nil
	}
	stateDB.SubBalance(wrapped, amount, tracing.BalanceChangeTransfer)
	stateDB.AddBalance(holder, amount, tracing.BalanceChangeTransfer)
	return nil
}

func (l *Ledger) setBalance(stateDB contract.StateDB, token, holder common.Address, amount *uint256.Int) {
	stateDB.SetState(token, makeStorageKey(balancePrefix, holder.Bytes()), contract.Uint256ToHash(amount))
}
