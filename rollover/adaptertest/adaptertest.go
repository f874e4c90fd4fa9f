// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package adaptertest checks that a venue adapter honors the contract the
// rollover orchestrator relies on.
package adaptertest

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/parsdao/rollover/rollover"
)

// Fixture is a fresh state in which Owner holds Liquidity of an unstaked
// position at Adapter. Context.Custodian must hold no balance of the
// venue's tokens.
type Fixture struct {
	Adapter   rollover.Adapter
	Context   *rollover.CallContext
	Owner     common.Address
	Liquidity *uint256.Int
}

// Run executes the conformance suite. setup is called once per test case.
func Run(t *testing.T, setup func(t *testing.T) *Fixture) {
	tests := []struct {
		name string
		run  func(t *testing.T, f *Fixture)
	}{
		{"address", testAddress},
		{"withdraw pays custodian", testWithdrawPaysCustodian},
		{"withdraw beyond position", testWithdrawInsufficientLiquidity},
		{"withdraw below minimums", testWithdrawMinimums},
		{"deposit round trip", testDepositRoundTrip},
		{"deposit below minimum liquidity", testDepositMinimum},
		{"optional capabilities", testOptionalCapabilities},
		{"claim rewards shape", testClaimRewards},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.run(t, setup(t))
		})
	}
}

func testAddress(t *testing.T, f *Fixture) {
	require.NotEqual(t, common.Address{}, f.Adapter.Address())
	require.NotEqual(t, rollover.NativeToken, f.Adapter.Address())
}

func testWithdrawPaysCustodian(t *testing.T, f *Fixture) {
	tokens, amounts := withdrawAll(t, f)
	for i, token := range tokens {
		require.Equal(t, amounts[i], holding(f, token), "custodian holding of %s", token)
	}
}

func testWithdrawInsufficientLiquidity(t *testing.T, f *Fixture) {
	tooMuch := new(uint256.Int).AddUint64(f.Liquidity, 1)
	_, _, err := f.Adapter.Withdraw(f.Context, f.Owner, tooMuch, nil, nil)
	require.ErrorIs(t, err, rollover.ErrInsufficientLiquidity)
}

func testWithdrawMinimums(t *testing.T, f *Fixture) {
	snap := f.Context.StateDB.Snapshot()
	tokens, amounts := withdrawAll(t, f)
	f.Context.StateDB.RevertToSnapshot(snap)

	mins := make([]*uint256.Int, len(tokens))
	for i := range amounts {
		mins[i] = new(uint256.Int).AddUint64(amounts[i], 1)
	}
	_, _, err := f.Adapter.Withdraw(f.Context, f.Owner, f.Liquidity, nil, mins)
	require.Error(t, err)
}

func testDepositRoundTrip(t *testing.T, f *Fixture) {
	tokens, amounts := withdrawAll(t, f)
	tokens = prepareDeposit(t, f, tokens, amounts)

	liquidity, err := f.Adapter.Deposit(f.Context, f.Owner, tokens, amounts, nil, uint256.NewInt(0))
	require.NoError(t, err)
	require.NotNil(t, liquidity)
	require.False(t, liquidity.IsZero())

	for i, token := range tokens {
		require.False(t, holding(f, token).Gt(amounts[i]), "custodian holding of %s grew on deposit", token)
	}
}

func testDepositMinimum(t *testing.T, f *Fixture) {
	tokens, amounts := withdrawAll(t, f)
	tokens = prepareDeposit(t, f, tokens, amounts)

	snap := f.Context.StateDB.Snapshot()
	liquidity, err := f.Adapter.Deposit(f.Context, f.Owner, tokens, amounts, nil, uint256.NewInt(0))
	require.NoError(t, err)
	f.Context.StateDB.RevertToSnapshot(snap)

	tooMuch := new(uint256.Int).AddUint64(liquidity, 1)
	_, err = f.Adapter.Deposit(f.Context, f.Owner, tokens, amounts, nil, tooMuch)
	require.ErrorIs(t, err, rollover.ErrSlippageExceeded)
}

func testOptionalCapabilities(t *testing.T, f *Fixture) {
	optional := map[string]func() error{
		"stake": func() error {
			return f.Adapter.Stake(f.Context, f.Owner, f.Liquidity, nil)
		},
		"unstake": func() error {
			return f.Adapter.Unstake(f.Context, f.Owner, f.Liquidity, nil)
		},
		"enable IL protection": func() error {
			return f.Adapter.EnableILProtection(f.Context, f.Owner, nil)
		},
		"disable IL protection": func() error {
			return f.Adapter.DisableILProtection(f.Context, f.Owner, nil)
		},
	}
	for name, call := range optional {
		err := call()
		require.True(t, err == nil || errors.Is(err, rollover.ErrUnsupported), "%s: %v", name, err)
	}

	tokens, amounts, err := f.Adapter.ClaimILCompensation(f.Context, f.Owner)
	if !errors.Is(err, rollover.ErrUnsupported) {
		require.NoError(t, err)
		require.Len(t, amounts, len(tokens))
	}
}

func testClaimRewards(t *testing.T, f *Fixture) {
	tokens, amounts, err := f.Adapter.ClaimRewards(f.Context, f.Owner)
	if errors.Is(err, rollover.ErrUnsupported) {
		return
	}
	require.NoError(t, err)
	require.Len(t, amounts, len(tokens))
	for i, token := range tokens {
		require.Equal(t, amounts[i], holding(f, token), "reward %s not paid to custodian", token)
	}
}

func withdrawAll(t *testing.T, f *Fixture) ([]common.Address, []*uint256.Int) {
	tokens, amounts, err := f.Adapter.Withdraw(f.Context, f.Owner, f.Liquidity, nil, nil)
	require.NoError(t, err)
	require.Len(t, amounts, len(tokens))
	return tokens, amounts
}

// prepareDeposit wraps native slots and approves the venue the way the
// orchestrator does before a deposit
func prepareDeposit(t *testing.T, f *Fixture, tokens []common.Address, amounts []*uint256.Int) []common.Address {
	cc := f.Context
	out := append([]common.Address(nil), tokens...)
	for i, token := range out {
		if token == rollover.NativeToken {
			require.NoError(t, cc.Bank.Wrap(cc.StateDB, cc.WrappedNative, cc.Custodian, amounts[i]))
			out[i] = cc.WrappedNative
		}
		require.NoError(t, cc.Bank.Approve(cc.StateDB, out[i], cc.Custodian, f.Adapter.Address(), amounts[i]))
	}
	return out
}

func holding(f *Fixture, token common.Address) *uint256.Int {
	if token == rollover.NativeToken {
		return f.Context.StateDB.GetBalance(f.Context.Custodian)
	}
	return f.Context.Bank.BalanceOf(f.Context.StateDB, token, f.Context.Custodian)
}
