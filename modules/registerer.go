// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package modules

import (
	"bytes"
	"fmt"
	"slices"
	"sync"

	"github.com/luxfi/geth/common"
)

// AddressRange is an inclusive range of precompile addresses
type AddressRange struct {
	Start common.Address
	End   common.Address
}

// Contains reports whether addr lies within [Start, End]
func (a AddressRange) Contains(addr common.Address) bool {
	return bytes.Compare(addr[:], a.Start[:]) >= 0 && bytes.Compare(addr[:], a.End[:]) <= 0
}

// Reserved address ranges. Markets precompiles (pools, lending, liquidity
// migration) live in the low-byte 0x9000-0x9FFF block.
var (
	MarketsRange = AddressRange{
		Start: common.HexToAddress("0x0000000000000000000000000000000000009000"),
		End:   common.HexToAddress("0x0000000000000000000000000000000000009fff"),
	}

	reservedRanges = []AddressRange{MarketsRange}
)

var (
	registryLock sync.RWMutex

	// sorted by address so genesis is applied in a fixed order
	registeredModules []Module
)

// ReservedAddress reports whether addr may host a registered precompile
func ReservedAddress(addr common.Address) bool {
	return slices.ContainsFunc(reservedRanges, func(r AddressRange) bool {
		return r.Contains(addr)
	})
}

// RegisterModule adds m to the registry. Both its config key and address
// must be unused.
func RegisterModule(m Module) error {
	switch {
	case m.ConfigKey == "":
		return fmt.Errorf("module at %s has no config key", m.Address)
	case m.Contract == nil || m.Configurator == nil:
		return fmt.Errorf("module %s is missing its contract or configurator", m.ConfigKey)
	case !ReservedAddress(m.Address):
		return fmt.Errorf("address %s not in a reserved range", m.Address)
	}

	registryLock.Lock()
	defer registryLock.Unlock()

	for _, existing := range registeredModules {
		if existing.ConfigKey == m.ConfigKey {
			return fmt.Errorf("name %s already used by a stateful precompile", m.ConfigKey)
		}
		if existing.Address == m.Address {
			return fmt.Errorf("address %s already used by a stateful precompile", m.Address)
		}
	}
	i, _ := slices.BinarySearchFunc(registeredModules, m, compareModules)
	registeredModules = slices.Insert(registeredModules, i, m)
	return nil
}

// GetPrecompileModuleByAddress returns the module registered at address
func GetPrecompileModuleByAddress(address common.Address) (Module, bool) {
	return find(func(m Module) bool { return m.Address == address })
}

// GetPrecompileModule returns the module registered under key
func GetPrecompileModule(key string) (Module, bool) {
	return find(func(m Module) bool { return m.ConfigKey == key })
}

// RegisteredModules returns a copy of the registry in address order
func RegisteredModules() []Module {
	registryLock.RLock()
	defer registryLock.RUnlock()
	return slices.Clone(registeredModules)
}

func find(match func(Module) bool) (Module, bool) {
	registryLock.RLock()
	defer registryLock.RUnlock()

	if i := slices.IndexFunc(registeredModules, match); i >= 0 {
		return registeredModules[i], true
	}
	return Module{}, false
}
