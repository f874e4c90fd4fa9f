// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rollover

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"

	"github.com/parsdao/rollover/contract"
)

// Storage key prefixes for rollover state
var (
	configPrefix     = []byte("rollover/cfg")
	allowListPrefix  = []byte("rollover/allow")
	pendingFeePrefix = []byte("rollover/pfee")
	feeEscrowPrefix  = []byte("rollover/escrow")
)

// Configuration slots
var (
	initializedSlot   = makeStorageKey(configPrefix, []byte("initialized"))
	adminSlot         = makeStorageKey(configPrefix, []byte("admin"))
	feeRateSlot       = makeStorageKey(configPrefix, []byte("feeRate"))
	feeRecipientSlot  = makeStorageKey(configPrefix, []byte("feeRecipient"))
	wrappedNativeSlot = makeStorageKey(configPrefix, []byte("wrappedNative"))
)

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

// Settings is the governance-controlled configuration of the rollover
// precompile together with its pending fee ledger. Everything lives in the
// storage of the precompile address, so reads always see the last committed
// write and a reverted call leaves no trace.
//
// Every setter requires the admin. The wrapped-native token is fixed by
// Initialize and has no setter.
type Settings struct {
	addr common.Address
}

// NewSettings binds settings to the storage of addr
func NewSettings(addr common.Address) *Settings {
	return &Settings{addr: addr}
}

// Initialize writes the initial configuration. It can run once.
func (s *Settings) Initialize(
	stateDB contract.StateDB,
	admin common.Address,
	feeRateBps uint64,
	feeRecipient common.Address,
	wrappedNative common.Address,
) error {
	if s.Initialized(stateDB) {
		return ErrAlreadyInitialized
	}
	if err := validateInitial(s.addr, admin, feeRateBps, feeRecipient, wrappedNative); err != nil {
		return err
	}

	stateDB.SetState(s.addr, adminSlot, contract.AddressToHash(admin))
	stateDB.SetState(s.addr, feeRateSlot, contract.Uint256ToHash(uint256.NewInt(feeRateBps)))
	stateDB.SetState(s.addr, feeRecipientSlot, contract.AddressToHash(feeRecipient))
	stateDB.SetState(s.addr, wrappedNativeSlot, contract.AddressToHash(wrappedNative))
	stateDB.SetState(s.addr, initializedSlot, common.BytesToHash([]byte{1}))
	return nil
}

func validateInitial(self, admin common.Address, feeRateBps uint64, feeRecipient, wrappedNative common.Address) error {
	switch {
	case feeRateBps > MaxFeeBps:
		return fmt.Errorf("%w: fee rate %d exceeds %d", ErrInvalidConfiguration, feeRateBps, MaxFeeBps)
	case admin == (common.Address{}):
		return fmt.Errorf("%w: empty admin", ErrInvalidConfiguration)
	case feeRecipient == (common.Address{}) || feeRecipient == self:
		return fmt.Errorf("%w: invalid fee recipient %s", ErrInvalidConfiguration, feeRecipient)
	case wrappedNative == (common.Address{}) || wrappedNative == NativeToken:
		return fmt.Errorf("%w: invalid wrapped native token %s", ErrInvalidConfiguration, wrappedNative)
	}
	return nil
}

// Initialized reports whether Initialize has run
func (s *Settings) Initialized(stateDB contract.StateDB) bool {
	return stateDB.GetState(s.addr, initializedSlot) != (common.Hash{})
}

// Admin returns the privileged actor allowed to change configuration
func (s *Settings) Admin(stateDB contract.StateDB) common.Address {
	return contract.HashToAddress(stateDB.GetState(s.addr, adminSlot))
}

// FeeRate returns the service fee in basis points
func (s *Settings) FeeRate(stateDB contract.StateDB) uint64 {
	return contract.HashToUint256(stateDB.GetState(s.addr, feeRateSlot)).Uint64()
}

// FeeRecipient returns the address fees are forwarded to
func (s *Settings) FeeRecipient(stateDB contract.StateDB) common.Address {
	return contract.HashToAddress(stateDB.GetState(s.addr, feeRecipientSlot))
}

// WrappedNative returns the wrapped-native token address
func (s *Settings) WrappedNative(stateDB contract.StateDB) common.Address {
	return contract.HashToAddress(stateDB.GetState(s.addr, wrappedNativeSlot))
}

// IsAdapterAllowed reports whether venue may take part in a rollover
func (s *Settings) IsAdapterAllowed(stateDB contract.StateDB, venue common.Address) bool {
	return stateDB.GetState(s.addr, makeStorageKey(allowListPrefix, venue.Bytes())) != (common.Hash{})
}

// SetFeeRate updates the service fee. Rates above MaxFeeBps are rejected
// and leave the current rate in place.
func (s *Settings) SetFeeRate(stateDB contract.StateDB, caller common.Address, feeRateBps uint64) error {
	if err := s.requireAdmin(stateDB, caller); err != nil {
		return err
	}
	if feeRateBps > MaxFeeBps {
		return fmt.Errorf("%w: %d", ErrFeeExceedsMaximum, feeRateBps)
	}
	old := s.FeeRate(stateDB)
	stateDB.SetState(s.addr, feeRateSlot, contract.Uint256ToHash(uint256.NewInt(feeRateBps)))
	return emitEvent(stateDB, s.addr, EventFeeRateUpdated, new(uint256.Int).SetUint64(old).ToBig(), new(uint256.Int).SetUint64(feeRateBps).ToBig())
}

// SetFeeRecipient updates the address fees are forwarded to
func (s *Settings) SetFeeRecipient(stateDB contract.StateDB, caller common.Address, recipient common.Address) error {
	if err := s.requireAdmin(stateDB, caller); err != nil {
		return err
	}
	if recipient == (common.Address{}) || recipient == s.addr {
		return fmt.Errorf("%w: fee recipient %s", ErrInvalidAddress, recipient)
	}
	old := s.FeeRecipient(stateDB)
	stateDB.SetState(s.addr, feeRecipientSlot, contract.AddressToHash(recipient))
	return emitEvent(stateDB, s.addr, EventFeeRecipientUpdated, old, recipient)
}

// AllowAdapter adds venue to the allow-list
func (s *Settings) AllowAdapter(stateDB contract.StateDB, caller common.Address, venue common.Address) error {
	if err := s.requireAdmin(stateDB, caller); err != nil {
		return err
	}
	if venue == (common.Address{}) {
		return fmt.Errorf("%w: venue %s", ErrInvalidAddress, venue)
	}
	s.setAllowed(stateDB, venue, true)
	return emitEvent(stateDB, s.addr, EventAdapterAllowed, venue)
}

// DisallowAdapter removes venue from the allow-list
func (s *Settings) DisallowAdapter(stateDB contract.StateDB, caller common.Address, venue common.Address) error {
	if err := s.requireAdmin(stateDB, caller); err != nil {
		return err
	}
	if venue == (common.Address{}) {
		return fmt.Errorf("%w: venue %s", ErrInvalidAddress, venue)
	}
	s.setAllowed(stateDB, venue, false)
	return emitEvent(stateDB, s.addr, EventAdapterDisallowed, venue)
}

// TransferAdmin hands the privileged role to a new address
func (s *Settings) TransferAdmin(stateDB contract.StateDB, caller common.Address, newAdmin common.Address) error {
	if err := s.requireAdmin(stateDB, caller); err != nil {
		return err
	}
	if newAdmin == (common.Address{}) {
		return fmt.Errorf("%w: admin %s", ErrInvalidAddress, newAdmin)
	}
	stateDB.SetState(s.addr, adminSlot, contract.AddressToHash(newAdmin))
	return emitEvent(stateDB, s.addr, EventAdminTransferred, caller, newAdmin)
}

func (s *Settings) requireAdmin(stateDB contract.StateDB, caller common.Address) error {
	if !s.Initialized(stateDB) {
		return ErrNotInitialized
	}
	if caller != s.Admin(stateDB) {
		return ErrUnauthorized
	}
	return nil
}

func (s *Settings) setAllowed(stateDB contract.StateDB, venue common.Address, allowed bool) {
	var val common.Hash
	if allowed {
		val[31] = 1
	}
	stateDB.SetState(s.addr, makeStorageKey(allowListPrefix, venue.Bytes()), val)
}

// =========================================================================
// Pending fee ledger
// =========================================================================

// PendingFees returns the fees of token held for recipient
func (s *Settings) PendingFees(stateDB contract.StateDB, recipient, token common.Address) *uint256.Int {
	return contract.HashToUint256(stateDB.GetState(s.addr, makeStorageKey(pendingFeePrefix, recipient.Bytes(), token.Bytes())))
}

// FeeEscrow returns the total of token the precompile holds for pending fees
func (s *Settings) FeeEscrow(stateDB contract.StateDB, token common.Address) *uint256.Int {
	return contract.HashToUint256(stateDB.GetState(s.addr, makeStorageKey(feeEscrowPrefix, token.Bytes())))
}

// accrueFee credits amount of token to recipient's pending entry and the escrow total
func (s *Settings) accrueFee(stateDB contract.StateDB, recipient, token common.Address, amount *uint256.Int) {
	pendingKey := makeStorageKey(pendingFeePrefix, recipient.Bytes(), token.Bytes())
	escrowKey := makeStorageKey(feeEscrowPrefix, token.Bytes())

	pending := new(uint256.Int).Add(s.PendingFees(stateDB, recipient, token), amount)
	escrow := new(uint256.Int).Add(s.FeeEscrow(stateDB, token), amount)

	stateDB.SetState(s.addr, pendingKey, contract.Uint256ToHash(pending))
	stateDB.SetState(s.addr, escrowKey, contract.Uint256ToHash(escrow))
}

// takePendingFees zeroes recipient's pending entry for token, releases it
// from escrow and returns the amount that was pending
func (s *Settings) takePendingFees(stateDB contract.StateDB, recipient, token common.Address) *uint256.Int {
	pending := s.PendingFees(stateDB, recipient, token)
	if pending.IsZero() {
		return pending
	}
	escrow, underflow := new(uint256.Int).SubOverflow(s.FeeEscrow(stateDB, token), pending)
	if underflow {
		escrow.Clear()
	}
	stateDB.SetState(s.addr, makeStorageKey(pendingFeePrefix, recipient.Bytes(), token.Bytes()), common.Hash{})
	stateDB.SetState(s.addr, makeStorageKey(feeEscrowPrefix, token.Bytes()), contract.Uint256ToHash(escrow))
	return pending
}
