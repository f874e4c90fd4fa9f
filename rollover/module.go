// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rollover

import (
	"fmt"

	"github.com/luxfi/geth/common"

	"github.com/parsdao/rollover/contract"
	"github.com/parsdao/rollover/modules"
	"github.com/parsdao/rollover/precompileconfig"
	"github.com/parsdao/rollover/token"
)

var _ modules.Configurator = (*configurator)(nil)

// ConfigKey is the key used in json config files to specify this precompile config
const ConfigKey = "rolloverConfig"

var (
	// ContractAddress is the address of the rollover precompile
	ContractAddress = common.HexToAddress(RolloverAddress)

	// Ledger holds the token state the precompile moves
	Ledger = token.NewLedger()

	// Registry resolves venues for the precompile. Venue packages register here.
	Registry = NewVenues()

	// DefaultMigrator is the orchestrator behind RolloverPrecompile
	DefaultMigrator = NewMigrator(ContractAddress, Ledger, Registry)

	// RolloverPrecompile is the singleton precompile instance
	RolloverPrecompile = NewPrecompile(DefaultMigrator)

	// Module is the precompile module
	Module = modules.Module{
		ConfigKey:    ConfigKey,
		Address:      ContractAddress,
		Contract:     RolloverPrecompile,
		Configurator: &configurator{},
	}
)

type configurator struct{}

func init() {
	if err := modules.RegisterModule(Module); err != nil {
		panic(err)
	}
}

func (*configurator) MakeConfig() precompileconfig.Config {
	return new(Config)
}

// Configure writes the initial settings. On reactivation the stored
// settings are kept and only the allow-list entries are added.
func (*configurator) Configure(cfg precompileconfig.Config, state contract.StateDB) error {
	config, ok := cfg.(*Config)
	if !ok {
		return fmt.Errorf("expected config type %T, got %T", &Config{}, cfg)
	}
	settings := NewSettings(ContractAddress)
	if !settings.Initialized(state) {
		if err := settings.Initialize(state, config.Admin, config.FeeRateBps, config.FeeRecipient, config.WrappedNative); err != nil {
			return err
		}
	}
	for _, venue := range config.AllowedAdapters {
		settings.setAllowed(state, venue, true)
	}
	return nil
}

// Config implements the precompileconfig.Config interface
type Config struct {
	Upgrade precompileconfig.Upgrade `json:"upgrade,omitempty"`

	Admin           common.Address   `json:"admin"`
	FeeRateBps      uint64           `json:"feeRateBps"`
	FeeRecipient    common.Address   `json:"feeRecipient"`
	WrappedNative   common.Address   `json:"wrappedNative"`
	AllowedAdapters []common.Address `json:"allowedAdapters,omitempty"`
}

func (c *Config) Key() string {
	return ConfigKey
}

func (c *Config) Timestamp() *uint64 {
	return c.Upgrade.Timestamp()
}

func (c *Config) IsDisabled() bool {
	return c.Upgrade.Disable
}

func (c *Config) Equal(cfg precompileconfig.Config) bool {
	other, ok := cfg.(*Config)
	if !ok {
		return false
	}
	if !c.Upgrade.Equal(&other.Upgrade) ||
		c.Admin != other.Admin ||
		c.FeeRateBps != other.FeeRateBps ||
		c.FeeRecipient != other.FeeRecipient ||
		c.WrappedNative != other.WrappedNative ||
		len(c.AllowedAdapters) != len(other.AllowedAdapters) {
		return false
	}
	for i, venue := range c.AllowedAdapters {
		if other.AllowedAdapters[i] != venue {
			return false
		}
	}
	return true
}

func (c *Config) Verify() error {
	if err := validateInitial(ContractAddress, c.Admin, c.FeeRateBps, c.FeeRecipient, c.WrappedNative); err != nil {
		return err
	}
	seen := make(map[common.Address]struct{}, len(c.AllowedAdapters))
	for _, venue := range c.AllowedAdapters {
		if venue == (common.Address{}) {
			return fmt.Errorf("%w: empty adapter in allow-list", ErrInvalidConfiguration)
		}
		if _, dup := seen[venue]; dup {
			return fmt.Errorf("%w: adapter %s listed twice", ErrInvalidConfiguration, venue)
		}
		seen[venue] = struct{}{}
	}
	return nil
}
