// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package contract defines the execution surface stateful precompiles run
// against: the EVM state they read and mutate and the entry point the VM calls.
package contract

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	ethtypes "github.com/luxfi/geth/core/types"
)

// StateDB is the subset of the EVM state a precompile may touch.
// Snapshot and RevertToSnapshot give callers transactional rollback: every
// mutation made after Snapshot, logs included, is undone by the revert.
type StateDB interface {
	GetState(addr common.Address, key common.Hash) common.Hash
	SetState(addr common.Address, key common.Hash, value common.Hash) common.Hash

	GetBalance(addr common.Address) *uint256.Int
	AddBalance(addr common.Address, amount *uint256.Int, reason tracing.BalanceChangeReason) uint256.Int
	SubBalance(addr common.Address, amount *uint256.Int, reason tracing.BalanceChangeReason) uint256.Int

	Exist(addr common.Address) bool
	CreateAccount(addr common.Address)

	AddLog(log *ethtypes.Log)

	Snapshot() int
	RevertToSnapshot(id int)
}

// AccessibleState gives a precompile access to the state of the executing block.
type AccessibleState interface {
	GetStateDB() StateDB
}

// StatefulPrecompiledContract is the interface every stateful precompile implements.
type StatefulPrecompiledContract interface {
	Run(
		accessibleState AccessibleState,
		caller common.Address,
		addr common.Address,
		input []byte,
		suppliedGas uint64,
		readOnly bool,
	) (ret []byte, remainingGas uint64, err error)
}
