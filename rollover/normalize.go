// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rollover

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
)

// normalize wraps every native slot into the wrapped-native token and
// replaces the NativeToken sentinel, so deposit sees a uniform token set.
func (m *Migrator) normalize(cc *CallContext, st *migrationState) error {
	for i, token := range st.tokens {
		if token != NativeToken {
			continue
		}
		if err := cc.Bank.Wrap(cc.StateDB, cc.WrappedNative, cc.Custodian, st.amounts[i]); err != nil {
			return fmt.Errorf("%w: wrapping native slot %d: %w", ErrInsufficientBalance, i, err)
		}
		st.tokens[i] = cc.WrappedNative
		st.touch(cc.WrappedNative)
		st.wrapped = new(uint256.Int).Add(st.wrapped, st.amounts[i])
	}
	return nil
}

// denormalize unwraps up to the amount normalize wrapped, so value that
// arrived as native and was not deposited goes back to the caller as native
func (m *Migrator) denormalize(cc *CallContext, st *migrationState) error {
	if st.wrapped.IsZero() {
		return nil
	}
	residual := m.available(cc, st, cc.WrappedNative)
	if residual.Gt(st.wrapped) {
		residual = st.wrapped
	}
	if residual.IsZero() {
		return nil
	}
	if err := cc.Bank.Unwrap(cc.StateDB, cc.WrappedNative, cc.Custodian, residual); err != nil {
		return fmt.Errorf("unwrapping residual native: %w", err)
	}
	return nil
}

// sendValue pays amount of token from the custodian to recipient, moving
// native balance directly when token is the NativeToken sentinel
func sendValue(cc *CallContext, token, recipient common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if token != NativeToken {
		return cc.Bank.Transfer(cc.StateDB, token, cc.Custodian, recipient, amount)
	}
	bal := cc.StateDB.GetBalance(cc.Custodian)
	if bal.Lt(amount) {
		return fmt.Errorf("%w: custodian holds %s native, sending %s", ErrInsufficientBalance, bal.Dec(), amount.Dec())
	}
	cc.StateDB.SubBalance(cc.Custodian, amount, tracing.BalanceChangeTransfer)
	cc.StateDB.AddBalance(recipient, amount, tracing.BalanceChangeTransfer)
	return nil
}
