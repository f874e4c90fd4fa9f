// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package contract

import (
	"errors"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

var (
	ErrOutOfGas        = errors.New("out of gas")
	ErrWriteProtection = errors.New("write protection")
	ErrInputTooShort   = errors.New("input too short")
)

// SelectorLen is the length of an ABI method selector
const SelectorLen = 4

// DeductGas charges requiredGas against suppliedGas
func DeductGas(suppliedGas uint64, requiredGas uint64) (uint64, error) {
	if suppliedGas < requiredGas {
		return 0, ErrOutOfGas
	}
	return suppliedGas - requiredGas, nil
}

// Uint256ToHash encodes v as a 32-byte big-endian storage word
func Uint256ToHash(v *uint256.Int) common.Hash {
	return common.Hash(v.Bytes32())
}

// HashToUint256 decodes a 32-byte big-endian storage word
func HashToUint256(h common.Hash) *uint256.Int {
	return new(uint256.Int).SetBytes32(h[:])
}

// AddressToHash left-pads addr into a storage word
func AddressToHash(addr common.Address) common.Hash {
	var h common.Hash
	copy(h[12:], addr.Bytes())
	return h
}

// HashToAddress reads an address stored by AddressToHash
func HashToAddress(h common.Hash) common.Address {
	return common.BytesToAddress(h[12:])
}
