// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rollover

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"
	ethtypes "github.com/luxfi/geth/core/types"
)

var (
	journalEntryPrefix = []byte("rollover/journal/entry/")
	journalCountPrefix = []byte("rollover/journal/count/")

	ErrEntryNotFound = errors.New("journal entry not found")
	ErrMalformedLog  = errors.New("malformed rollover log")
)

// JournalEntry is the off-chain record of one committed rollover
type JournalEntry struct {
	User            common.Address   `json:"user"`
	SourceVenue     common.Address   `json:"sourceVenue"`
	DestVenue       common.Address   `json:"destVenue"`
	BlockNumber     uint64           `json:"blockNumber"`
	TxHash          common.Hash      `json:"txHash"`
	Liquidity       *uint256.Int     `json:"liquidity"`
	WithdrawnTokens []common.Address `json:"withdrawnTokens"`
	Withdrawn       []*uint256.Int   `json:"withdrawn"`
	Tokens          []common.Address `json:"tokens"`
	Fees            []*uint256.Int   `json:"fees"`
	FeesReceived    []*uint256.Int   `json:"feesReceived"`
	Deposited       []*uint256.Int   `json:"deposited"`
	NewLiquidity    *uint256.Int     `json:"newLiquidity"`
}

// Journal keeps a per-user history of rollovers for indexers.
//
// The journal is fed from the logs of accepted blocks, never from the
// execution path: a rollover inside a reverted transaction, a simulated
// call or a re-executed block leaves no logs behind, so it is never
// recorded.
type Journal struct {
	mu   sync.Mutex
	db   database.Database
	addr common.Address
}

// NewJournal creates a journal of the rollovers emitted by the precompile at addr
func NewJournal(db database.Database, addr common.Address) *Journal {
	return &Journal{db: db, addr: addr}
}

func journalEntryKey(user common.Address, seq uint64) []byte {
	key := make([]byte, 0, len(journalEntryPrefix)+common.AddressLength+8)
	key = append(key, journalEntryPrefix...)
	key = append(key, user.Bytes()...)
	return binary.BigEndian.AppendUint64(key, seq)
}

func journalCountKey(user common.Address) []byte {
	return append(append([]byte{}, journalCountPrefix...), user.Bytes()...)
}

// IndexLogs records every rollover found in logs, which must be the logs
// of an accepted block in emission order. All entries of one call are
// written in a single batch. Returns the number of rollovers recorded.
func (j *Journal) IndexLogs(logs []*ethtypes.Log) (int, error) {
	entries, err := j.collect(logs)
	if err != nil || len(entries) == 0 {
		return 0, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	next := make(map[common.Address]uint64)
	batch := j.db.NewBatch()
	for _, entry := range entries {
		seq, ok := next[entry.User]
		if !ok {
			if seq, err = j.count(entry.User); err != nil {
				return 0, err
			}
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return 0, fmt.Errorf("encoding journal entry: %w", err)
		}
		if err := batch.Put(journalEntryKey(entry.User, seq), data); err != nil {
			return 0, err
		}
		next[entry.User] = seq + 1
	}
	for user, count := range next {
		if err := batch.Put(journalCountKey(user), binary.BigEndian.AppendUint64(nil, count)); err != nil {
			return 0, err
		}
	}
	if err := batch.Write(); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// collect assembles entries from the summary events. A rollover emits
// LiquidityRolledOver, FeeApplied and SlippageDetails back to back.
func (j *Journal) collect(logs []*ethtypes.Log) ([]*JournalEntry, error) {
	var (
		entries []*JournalEntry
		cur     *JournalEntry
	)
	for _, l := range logs {
		if l.Removed || l.Address != j.addr || len(l.Topics) == 0 {
			continue
		}
		switch l.Topics[0] {
		case rolloverABI.Events[EventLiquidityRolledOver].ID:
			if len(l.Topics) != 4 {
				return nil, fmt.Errorf("%w: %s has %d topics", ErrMalformedLog, EventLiquidityRolledOver, len(l.Topics))
			}
			values, err := rolloverABI.Unpack(EventLiquidityRolledOver, l.Data)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrMalformedLog, err)
			}
			liquidity, err1 := bigArg(values, 0)
			tokens, err2 := addressesArg(values, 1)
			withdrawn, err3 := bigsArg(values, 2)
			newLiquidity, err4 := bigArg(values, 3)
			if err := errors.Join(err1, err2, err3, err4); err != nil {
				return nil, err
			}
			cur = &JournalEntry{
				User:            common.BytesToAddress(l.Topics[1].Bytes()),
				SourceVenue:     common.BytesToAddress(l.Topics[2].Bytes()),
				DestVenue:       common.BytesToAddress(l.Topics[3].Bytes()),
				BlockNumber:     l.BlockNumber,
				TxHash:          l.TxHash,
				Liquidity:       liquidity,
				WithdrawnTokens: tokens,
				Withdrawn:       withdrawn,
				NewLiquidity:    newLiquidity,
			}

		case rolloverABI.Events[EventFeeApplied].ID:
			if cur == nil || !sameUser(l, cur) {
				continue
			}
			values, err := rolloverABI.Unpack(EventFeeApplied, l.Data)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrMalformedLog, err)
			}
			tokens, err1 := addressesArg(values, 0)
			fees, err2 := bigsArg(values, 1)
			received, err3 := bigsArg(values, 2)
			if err := errors.Join(err1, err2, err3); err != nil {
				return nil, err
			}
			cur.Tokens, cur.Fees, cur.FeesReceived = tokens, fees, received

		case rolloverABI.Events[EventSlippageDetails].ID:
			if cur == nil || !sameUser(l, cur) {
				continue
			}
			values, err := rolloverABI.Unpack(EventSlippageDetails, l.Data)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrMalformedLog, err)
			}
			deposited, err := bigsArg(values, 1)
			if err != nil {
				return nil, err
			}
			cur.Deposited = deposited
			entries = append(entries, cur)
			cur = nil
		}
	}
	return entries, nil
}

func sameUser(l *ethtypes.Log, entry *JournalEntry) bool {
	return len(l.Topics) > 1 && common.BytesToAddress(l.Topics[1].Bytes()) == entry.User
}

func bigArg(values []interface{}, i int) (*uint256.Int, error) {
	if i >= len(values) {
		return nil, fmt.Errorf("%w: missing value %d", ErrMalformedLog, i)
	}
	v, ok := values[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: value %d is %T", ErrMalformedLog, i, values[i])
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("%w: value %d overflows", ErrMalformedLog, i)
	}
	return out, nil
}

func bigsArg(values []interface{}, i int) ([]*uint256.Int, error) {
	if i >= len(values) {
		return nil, fmt.Errorf("%w: missing value %d", ErrMalformedLog, i)
	}
	raw, ok := values[i].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: value %d is %T", ErrMalformedLog, i, values[i])
	}
	out := make([]*uint256.Int, len(raw))
	for k, v := range raw {
		n, overflow := uint256.FromBig(v)
		if overflow {
			return nil, fmt.Errorf("%w: value %d[%d] overflows", ErrMalformedLog, i, k)
		}
		out[k] = n
	}
	return out, nil
}

func addressesArg(values []interface{}, i int) ([]common.Address, error) {
	if i >= len(values) {
		return nil, fmt.Errorf("%w: missing value %d", ErrMalformedLog, i)
	}
	out, ok := values[i].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("%w: value %d is %T", ErrMalformedLog, i, values[i])
	}
	return out, nil
}

// Count returns how many rollovers user has recorded
func (j *Journal) Count(user common.Address) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.count(user)
}

func (j *Journal) count(user common.Address) (uint64, error) {
	raw, err := j.db.Get(journalCountKey(user))
	if errors.Is(err, database.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("corrupt journal count for %s", user)
	}
	return binary.BigEndian.Uint64(raw), nil
}

// Get returns the seq-th rollover of user
func (j *Journal) Get(user common.Address, seq uint64) (*JournalEntry, error) {
	raw, err := j.db.Get(journalEntryKey(user, seq))
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s #%d", ErrEntryNotFound, user, seq)
	}
	if err != nil {
		return nil, err
	}
	entry := new(JournalEntry)
	if err := json.Unmarshal(raw, entry); err != nil {
		return nil, fmt.Errorf("decoding journal entry: %w", err)
	}
	return entry, nil
}

// History returns every recorded rollover of user, oldest first
func (j *Journal) History(user common.Address) ([]*JournalEntry, error) {
	n, err := j.Count(user)
	if err != nil {
		return nil, err
	}
	entries := make([]*JournalEntry, 0, n)
	for seq := uint64(0); seq < n; seq++ {
		entry, err := j.Get(user, seq)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
