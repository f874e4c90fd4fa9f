// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mockstate

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	ethtypes "github.com/luxfi/geth/core/types"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRevert(t *testing.T) {
	require := require.New(t)

	var (
		s    = New()
		addr = common.HexToAddress("0x01")
		key  = common.HexToHash("0x02")
		val  = common.HexToHash("0x03")
	)

	s.SetBalance(addr, uint256.NewInt(100))
	s.AddLog(&ethtypes.Log{Address: addr})

	outer := s.Snapshot()
	s.SetState(addr, key, val)
	s.SubBalance(addr, uint256.NewInt(40), tracing.BalanceChangeTransfer)
	s.AddLog(&ethtypes.Log{Address: addr})

	inner := s.Snapshot()
	s.AddBalance(addr, uint256.NewInt(1000), tracing.BalanceChangeTransfer)
	s.RevertToSnapshot(inner)

	require.Equal(uint256.NewInt(60), s.GetBalance(addr))
	require.Equal(val, s.GetState(addr, key))
	require.Len(s.Logs(), 2)

	s.RevertToSnapshot(outer)
	require.Equal(uint256.NewInt(100), s.GetBalance(addr))
	require.Equal(common.Hash{}, s.GetState(addr, key))
	require.Len(s.Logs(), 1)
	require.Panics(func() { s.RevertToSnapshot(outer) })
}

func TestSetStateZeroDeletes(t *testing.T) {
	s := New()
	addr := common.HexToAddress("0x01")
	key := common.HexToHash("0x02")

	prev := s.SetState(addr, key, common.HexToHash("0x05"))
	require.Equal(t, common.Hash{}, prev)
	prev = s.SetState(addr, key, common.Hash{})
	require.Equal(t, common.HexToHash("0x05"), prev)
	require.Empty(t, s.storage[addr])
}

func TestBalances(t *testing.T) {
	s := New()
	addr := common.HexToAddress("0x01")
	require.False(t, s.Exist(addr))

	prev := s.AddBalance(addr, uint256.NewInt(10), tracing.BalanceChangeTransfer)
	require.True(t, prev.IsZero())
	require.True(t, s.Exist(addr))

	// Returned balances are copies
	s.GetBalance(addr).SetUint64(999)
	require.Equal(t, uint256.NewInt(10), s.GetBalance(addr))

	require.Panics(t, func() {
		s.SubBalance(addr, uint256.NewInt(11), tracing.BalanceChangeTransfer)
	})
}
