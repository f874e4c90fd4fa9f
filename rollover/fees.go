// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rollover

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// ComputeFee splits amount into the part kept by the caller and the service fee.
//
//	fee = floor(amount * rateBps / 10000), net = amount - fee
//
// The product is computed in 512 bits, so no amount overflows. Rates above
// 10000 are treated as 10000 so that net + fee == amount always holds.
func ComputeFee(amount *uint256.Int, rateBps uint64) (net, fee *uint256.Int) {
	if rateBps > FeeDenominator {
		rateBps = FeeDenominator
	}
	fee, _ = new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(rateBps), uint256.NewInt(FeeDenominator))
	net = new(uint256.Int).Sub(amount, fee)
	return net, fee
}

// SlippageBps reports how far actual fell short of expected, in basis points.
// It is informational only and never gates a rollover.
func SlippageBps(expected, actual *uint256.Int) *uint256.Int {
	if expected.IsZero() || !actual.Lt(expected) {
		return uint256.NewInt(0)
	}
	shortfall := new(uint256.Int).Sub(expected, actual)
	bps, _ := new(uint256.Int).MulDivOverflow(shortfall, uint256.NewInt(FeeDenominator), expected)
	return bps
}

// applyFees takes the service fee out of every withdrawn amount.
//
// Native slots are wrapped before forwarding and the recipient's delta must
// equal the computed fee exactly. Token slots are forwarded as-is and the
// fee actually applied is whatever left the custodian, which keeps the
// accounting right for tokens that move less than asked. The recipient's
// own delta is recorded separately since a taxed token delivers less than
// the custodian sent.
//
// When forwarding fails the fee stays with the custodian and is credited to
// the recipient's pending ledger entry instead.
func (m *Migrator) applyFees(cc *CallContext, st *migrationState, rateBps uint64, recipient common.Address) error {
	st.feeAmounts = make([]*uint256.Int, len(st.amounts))
	st.feesReceived = make([]*uint256.Int, len(st.amounts))

	for i, token := range st.tokens {
		amount := st.amounts[i]
		_, fee := ComputeFee(amount, rateBps)
		if fee.IsZero() {
			st.feeAmounts[i] = fee
			st.feesReceived[i] = uint256.NewInt(0)
			continue
		}

		var (
			applied, received *uint256.Int
			err               error
		)
		if token == NativeToken {
			applied, received, err = m.forwardNativeFee(cc, st, recipient, fee)
		} else {
			applied, received, err = m.forwardTokenFee(cc, st, token, recipient, fee)
		}
		if err != nil {
			return err
		}
		if amount.Lt(applied) {
			return fmt.Errorf("%w: fee %s exceeds withdrawn %s of %s", ErrInsufficientBalance, applied.Dec(), amount.Dec(), token)
		}

		st.feeAmounts[i] = applied
		st.feesReceived[i] = received
		st.amounts[i] = new(uint256.Int).Sub(amount, applied)
	}
	return nil
}

// forwardNativeFee returns the fee applied and the amount the recipient received
func (m *Migrator) forwardNativeFee(cc *CallContext, st *migrationState, recipient common.Address, fee *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	wrapped := cc.WrappedNative
	if err := cc.Bank.Wrap(cc.StateDB, wrapped, cc.Custodian, fee); err != nil {
		return nil, nil, fmt.Errorf("%w: wrapping native fee: %w", ErrInsufficientBalance, err)
	}
	st.touch(wrapped)

	before := cc.Bank.BalanceOf(cc.StateDB, wrapped, recipient)
	if err := cc.Bank.Transfer(cc.StateDB, wrapped, cc.Custodian, recipient, fee); err != nil {
		m.deferFee(cc, st, recipient, wrapped, fee, err)
		return fee, uint256.NewInt(0), nil
	}
	after := cc.Bank.BalanceOf(cc.StateDB, wrapped, recipient)

	delta, underflow := new(uint256.Int).SubOverflow(after, before)
	if underflow || !delta.Eq(fee) {
		return nil, nil, fmt.Errorf("%w: recipient received %s, expected %s", ErrFeeTransferMismatch, delta.Dec(), fee.Dec())
	}
	m.metrics.feeForwarded()
	return fee, delta, nil
}

// forwardTokenFee returns what left the custodian and what reached the recipient
func (m *Migrator) forwardTokenFee(cc *CallContext, st *migrationState, token, recipient common.Address, fee *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	before := cc.Bank.BalanceOf(cc.StateDB, token, cc.Custodian)
	recipientBefore := cc.Bank.BalanceOf(cc.StateDB, token, recipient)
	if err := cc.Bank.Transfer(cc.StateDB, token, cc.Custodian, recipient, fee); err != nil {
		m.deferFee(cc, st, recipient, token, fee, err)
		return fee, uint256.NewInt(0), nil
	}
	after := cc.Bank.BalanceOf(cc.StateDB, token, cc.Custodian)
	recipientAfter := cc.Bank.BalanceOf(cc.StateDB, token, recipient)

	applied, underflow := new(uint256.Int).SubOverflow(before, after)
	if underflow {
		return nil, nil, fmt.Errorf("%w: custodian balance of %s grew during fee transfer", ErrInsufficientBalance, token)
	}
	received, underflow := new(uint256.Int).SubOverflow(recipientAfter, recipientBefore)
	if underflow {
		received.Clear()
	}
	if !applied.Eq(fee) || !received.Eq(fee) {
		m.log.Warn("fee transfer moved a different amount than requested",
			"token", token,
			"requested", fee.Dec(),
			"moved", applied.Dec(),
			"received", received.Dec(),
		)
	}
	m.metrics.feeForwarded()
	return applied, received, nil
}

// deferFee keeps fee with the custodian and credits it to recipient's pending ledger entry
func (m *Migrator) deferFee(cc *CallContext, st *migrationState, recipient, token common.Address, fee *uint256.Int, cause error) {
	m.settings.accrueFee(cc.StateDB, recipient, token, fee)
	st.deferredFees = true
	m.metrics.feeDeferred()
	m.log.Warn("fee forwarding failed, deferring to pending ledger",
		"token", token,
		"recipient", recipient,
		"amount", fee.Dec(),
		"err", cause,
	)
	m.emit(cc.StateDB, EventFeeDeferred, recipient, token, fee.ToBig())
}

// validateBalances checks that the custodian actually holds every post-fee
// amount. Amounts of the same token are summed. Native value is measured
// above the entry snapshot and token balances above the fee escrow, so
// value owned by someone else never satisfies the check.
func (m *Migrator) validateBalances(cc *CallContext, st *migrationState) error {
	required := make(map[common.Address]*uint256.Int)
	order := make([]common.Address, 0, len(st.tokens))
	for i, token := range st.tokens {
		if cur, ok := required[token]; ok {
			sum, overflow := new(uint256.Int).AddOverflow(cur, st.amounts[i])
			if overflow {
				return fmt.Errorf("%w: amount overflow for %s", ErrInsufficientBalance, token)
			}
			required[token] = sum
			continue
		}
		required[token] = st.amounts[i]
		order = append(order, token)
	}

	for _, token := range order {
		held := m.available(cc, st, token)
		if held.Lt(required[token]) {
			return fmt.Errorf("%w: custodian holds %s of %s, needs %s", ErrInsufficientBalance, held.Dec(), token, required[token].Dec())
		}
	}
	return nil
}

// available returns the custodian balance of token that belongs to the
// in-flight rollover
func (m *Migrator) available(cc *CallContext, st *migrationState, token common.Address) *uint256.Int {
	if token == NativeToken {
		held, underflow := new(uint256.Int).SubOverflow(cc.StateDB.GetBalance(cc.Custodian), st.nativeSnapshot)
		if underflow {
			return uint256.NewInt(0)
		}
		return held
	}
	held, underflow := new(uint256.Int).SubOverflow(
		cc.Bank.BalanceOf(cc.StateDB, token, cc.Custodian),
		m.settings.FeeEscrow(cc.StateDB, token),
	)
	if underflow {
		return uint256.NewInt(0)
	}
	return held
}
