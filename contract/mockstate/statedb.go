// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package mockstate provides an in-memory contract.StateDB with working
// snapshots, for tests and for embedding precompiles outside a VM.
package mockstate

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	ethtypes "github.com/luxfi/geth/core/types"

	"github.com/parsdao/rollover/contract"
)

var _ contract.StateDB = (*StateDB)(nil)

type snapshot struct {
	storage  map[common.Address]map[common.Hash]common.Hash
	balances map[common.Address]*uint256.Int
	accounts map[common.Address]bool
	logs     int
}

// StateDB keeps storage, balances and logs in maps. Snapshot copies the
// whole state, which is fine for the state sizes tests work with.
type StateDB struct {
	storage  map[common.Address]map[common.Hash]common.Hash
	balances map[common.Address]*uint256.Int
	accounts map[common.Address]bool
	logs     []*ethtypes.Log

	snapshots []snapshot
}

// New returns an empty state
func New() *StateDB {
	return &StateDB{
		storage:  make(map[common.Address]map[common.Hash]common.Hash),
		balances: make(map[common.Address]*uint256.Int),
		accounts: make(map[common.Address]bool),
		logs:     make([]*ethtypes.Log, 0),
	}
}

func (s *StateDB) GetState(addr common.Address, key common.Hash) common.Hash {
	if s.storage[addr] == nil {
		return common.Hash{}
	}
	return s.storage[addr][key]
}

func (s *StateDB) SetState(addr common.Address, key common.Hash, value common.Hash) common.Hash {
	if s.storage[addr] == nil {
		s.storage[addr] = make(map[common.Hash]common.Hash)
	}
	prev := s.storage[addr][key]
	if value == (common.Hash{}) {
		delete(s.storage[addr], key)
	} else {
		s.storage[addr][key] = value
	}
	return prev
}

func (s *StateDB) GetBalance(addr common.Address) *uint256.Int {
	if bal, ok := s.balances[addr]; ok {
		return bal.Clone()
	}
	return uint256.NewInt(0)
}

func (s *StateDB) AddBalance(addr common.Address, amount *uint256.Int, _ tracing.BalanceChangeReason) uint256.Int {
	prev := s.GetBalance(addr)
	s.balances[addr] = new(uint256.Int).Add(prev, amount)
	s.accounts[addr] = true
	return *prev
}

// SubBalance panics on underflow; callers are expected to check balances
// first, as the EVM does.
func (s *StateDB) SubBalance(addr common.Address, amount *uint256.Int, _ tracing.BalanceChangeReason) uint256.Int {
	prev := s.GetBalance(addr)
	if prev.Lt(amount) {
		panic("mockstate: balance underflow for " + addr.Hex())
	}
	s.balances[addr] = new(uint256.Int).Sub(prev, amount)
	return *prev
}

func (s *StateDB) Exist(addr common.Address) bool {
	return s.accounts[addr]
}

func (s *StateDB) CreateAccount(addr common.Address) {
	s.accounts[addr] = true
}

func (s *StateDB) AddLog(log *ethtypes.Log) {
	s.logs = append(s.logs, log)
}

// Logs returns every log emitted and not reverted
func (s *StateDB) Logs() []*ethtypes.Log {
	return s.logs
}

// SetBalance overwrites the native balance of addr
func (s *StateDB) SetBalance(addr common.Address, amount *uint256.Int) {
	s.balances[addr] = amount.Clone()
	s.accounts[addr] = true
}

func (s *StateDB) Snapshot() int {
	snap := snapshot{
		storage:  make(map[common.Address]map[common.Hash]common.Hash, len(s.storage)),
		balances: make(map[common.Address]*uint256.Int, len(s.balances)),
		accounts: make(map[common.Address]bool, len(s.accounts)),
		logs:     len(s.logs),
	}
	for addr, slots := range s.storage {
		cp := make(map[common.Hash]common.Hash, len(slots))
		for k, v := range slots {
			cp[k] = v
		}
		snap.storage[addr] = cp
	}
	for addr, bal := range s.balances {
		snap.balances[addr] = bal.Clone()
	}
	for addr, ok := range s.accounts {
		snap.accounts[addr] = ok
	}
	s.snapshots = append(s.snapshots, snap)
	return len(s.snapshots) - 1
}

// RevertToSnapshot restores the state captured by Snapshot(id) and discards
// that snapshot and every later one.
func (s *StateDB) RevertToSnapshot(id int) {
	if id < 0 || id >= len(s.snapshots) {
		panic("mockstate: invalid snapshot id")
	}
	snap := s.snapshots[id]
	s.storage = snap.storage
	s.balances = snap.balances
	s.accounts = snap.accounts
	s.logs = s.logs[:snap.logs]
	s.snapshots = s.snapshots[:id]
}
