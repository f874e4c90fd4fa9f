// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package modules

import (
	"bytes"

	"github.com/luxfi/geth/common"

	"github.com/parsdao/rollover/contract"
	"github.com/parsdao/rollover/precompileconfig"
)

// Configurator turns a decoded config into initial precompile state
type Configurator interface {
	MakeConfig() precompileconfig.Config
	Configure(cfg precompileconfig.Config, state contract.StateDB) error
}

// Module binds a precompile implementation to its address and config key
type Module struct {
	// ConfigKey is the JSON key of the module's genesis and upgrade config
	ConfigKey string
	// Address is where the precompile is reachable
	Address common.Address
	// Contract must be safe for concurrent use
	Contract contract.StatefulPrecompiledContract
	// Configurator writes the initial state when the config activates
	Configurator Configurator
}

func compareModules(a, b Module) int {
	return bytes.Compare(a.Address[:], b.Address[:])
}
