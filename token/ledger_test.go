// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package token

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/parsdao/rollover/contract/mockstate"
)

var (
	testToken   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testWrapped = common.HexToAddress("0x2000000000000000000000000000000000000002")
	alice       = common.HexToAddress("0xa1")
	bob         = common.HexToAddress("0xb0")
	spender     = common.HexToAddress("0x5e")
)

func TestMintTransfer(t *testing.T) {
	require := require.New(t)
	state := mockstate.New()
	l := NewLedger()

	require.NoError(l.Mint(state, testToken, alice, uint256.NewInt(1000)))
	require.Equal(uint256.NewInt(1000), l.TotalSupply(state, testToken))

	require.NoError(l.Transfer(state, testToken, alice, bob, uint256.NewInt(300)))
	require.Equal(uint256.NewInt(700), l.BalanceOf(state, testToken, alice))
	require.Equal(uint256.NewInt(300), l.BalanceOf(state, testToken, bob))

	err := l.Transfer(state, testToken, alice, bob, uint256.NewInt(701))
	require.ErrorIs(err, ErrInsufficientBalance)
	require.Equal(uint256.NewInt(700), l.BalanceOf(state, testToken, alice))

	// Self transfers and zero transfers leave balances untouched
	require.NoError(l.Transfer(state, testToken, alice, alice, uint256.NewInt(700)))
	require.NoError(l.Transfer(state, testToken, alice, bob, uint256.NewInt(0)))
	require.Equal(uint256.NewInt(700), l.BalanceOf(state, testToken, alice))

	require.ErrorIs(l.Mint(state, common.Address{}, alice, uint256.NewInt(1)), ErrInvalidToken)
	require.ErrorIs(l.Transfer(state, common.Address{}, alice, bob, uint256.NewInt(1)), ErrInvalidToken)
}

func TestMintOverflow(t *testing.T) {
	state := mockstate.New()
	l := NewLedger()
	max := new(uint256.Int).SetAllOne()

	require.NoError(t, l.Mint(state, testToken, alice, max))
	require.ErrorIs(t, l.Mint(state, testToken, bob, uint256.NewInt(1)), ErrOverflow)
}

func TestTransferTax(t *testing.T) {
	require := require.New(t)
	state := mockstate.New()
	l := NewLedger()

	require.ErrorIs(l.SetTransferTax(testToken, BasisPoints+1), ErrInvalidTax)
	require.NoError(l.SetTransferTax(testToken, 200))
	require.NoError(l.Mint(state, testToken, alice, uint256.NewInt(1000)))

	require.NoError(l.Transfer(state, testToken, alice, bob, uint256.NewInt(500)))
	require.Equal(uint256.NewInt(500), l.BalanceOf(state, testToken, alice))
	require.Equal(uint256.NewInt(490), l.BalanceOf(state, testToken, bob))
	require.Equal(uint256.NewInt(990), l.TotalSupply(state, testToken))

	require.NoError(l.SetTransferTax(testToken, 0))
	require.NoError(l.Transfer(state, testToken, alice, bob, uint256.NewInt(100)))
	require.Equal(uint256.NewInt(590), l.BalanceOf(state, testToken, bob))
}

func TestApproveTransferFrom(t *testing.T) {
	require := require.New(t)
	state := mockstate.New()
	l := NewLedger()

	require.NoError(l.Mint(state, testToken, alice, uint256.NewInt(1000)))
	require.NoError(l.Approve(state, testToken, alice, spender, uint256.NewInt(400)))

	err := l.TransferFrom(state, testToken, spender, alice, bob, uint256.NewInt(401))
	require.ErrorIs(err, ErrInsufficientAllowance)

	require.NoError(l.TransferFrom(state, testToken, spender, alice, bob, uint256.NewInt(150)))
	require.Equal(uint256.NewInt(250), l.Allowance(state, testToken, alice, spender))
	require.Equal(uint256.NewInt(150), l.BalanceOf(state, testToken, bob))

	// Approve overwrites rather than adds
	require.NoError(l.Approve(state, testToken, alice, spender, uint256.NewInt(10)))
	require.Equal(uint256.NewInt(10), l.Allowance(state, testToken, alice, spender))
	require.NoError(l.Approve(state, testToken, alice, spender, uint256.NewInt(0)))
	require.True(l.Allowance(state, testToken, alice, spender).IsZero())
}

func TestWrapUnwrap(t *testing.T) {
	require := require.New(t)
	state := mockstate.New()
	l := NewLedger()
	state.SetBalance(alice, uint256.NewInt(100))

	require.NoError(l.Wrap(state, testWrapped, alice, uint256.NewInt(60)))
	require.Equal(uint256.NewInt(40), state.GetBalance(alice))
	require.Equal(uint256.NewInt(60), state.GetBalance(testWrapped))
	require.Equal(uint256.NewInt(60), l.BalanceOf(state, testWrapped, alice))

	require.ErrorIs(l.Wrap(state, testWrapped, alice, uint256.NewInt(41)), ErrInsufficientBalance)
	require.ErrorIs(l.Wrap(state, common.Address{}, alice, uint256.NewInt(1)), ErrInvalidToken)

	require.NoError(l.Unwrap(state, testWrapped, alice, uint256.NewInt(25)))
	require.Equal(uint256.NewInt(65), state.GetBalance(alice))
	require.Equal(uint256.NewInt(35), state.GetBalance(testWrapped))
	require.Equal(uint256.NewInt(35), l.TotalSupply(state, testWrapped))

	require.ErrorIs(l.Unwrap(state, testWrapped, alice, uint256.NewInt(36)), ErrInsufficientBalance)
}

func TestLedgerStateReverts(t *testing.T) {
	state := mockstate.New()
	l := NewLedger()
	require.NoError(t, l.Mint(state, testToken, alice, uint256.NewInt(10)))

	snap := state.Snapshot()
	require.NoError(t, l.Transfer(state, testToken, alice, bob, uint256.NewInt(10)))
	state.RevertToSnapshot(snap)

	require.Equal(t, uint256.NewInt(10), l.BalanceOf(state, testToken, alice))
	require.True(t, l.BalanceOf(state, testToken, bob).IsZero())
}
