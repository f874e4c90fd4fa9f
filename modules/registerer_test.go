// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package modules

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/parsdao/rollover/contract"
	"github.com/parsdao/rollover/contract/mockstate"
	"github.com/parsdao/rollover/precompileconfig"
)

var (
	errBadValue = errors.New("bad value")
	markerKey   = common.HexToHash("0x01")
)

type noopContract struct{}

func (noopContract) Run(contract.AccessibleState, common.Address, common.Address, []byte, uint64, bool) ([]byte, uint64, error) {
	return nil, 0, nil
}

type fakeConfig struct {
	precompileconfig.Upgrade
	Value uint64 `json:"value"`

	key string
}

func (c *fakeConfig) Key() string      { return c.key }
func (c *fakeConfig) IsDisabled() bool { return c.Disable }

func (c *fakeConfig) Equal(other precompileconfig.Config) bool {
	o, ok := other.(*fakeConfig)
	return ok && o.Value == c.Value && c.Upgrade.Equal(&o.Upgrade)
}

func (c *fakeConfig) Verify() error {
	if c.Value == 0 {
		return errBadValue
	}
	return nil
}

type fakeConfigurator struct {
	key  string
	addr common.Address
}

func (f fakeConfigurator) MakeConfig() precompileconfig.Config {
	return &fakeConfig{key: f.key}
}

func (f fakeConfigurator) Configure(cfg precompileconfig.Config, state contract.StateDB) error {
	value := cfg.(*fakeConfig).Value
	state.SetState(f.addr, markerKey, contract.Uint256ToHash(uint256.NewInt(value)))
	return nil
}

func newFakeModule(key string, addr common.Address) Module {
	return Module{
		ConfigKey:    key,
		Address:      addr,
		Contract:     noopContract{},
		Configurator: fakeConfigurator{key: key, addr: addr},
	}
}

// resetRegistry isolates a test from modules registered elsewhere
func resetRegistry(t *testing.T) {
	registryLock.Lock()
	saved := registeredModules
	registeredModules = nil
	registryLock.Unlock()

	t.Cleanup(func() {
		registryLock.Lock()
		registeredModules = saved
		registryLock.Unlock()
	})
}

func TestReservedAddress(t *testing.T) {
	tests := []struct {
		addr     string
		reserved bool
	}{
		{"0x0000000000000000000000000000000000009000", true},
		{"0x0000000000000000000000000000000000009fff", true},
		{"0x000000000000000000000000000000000000a000", false},
		{"0x0000000000000000000000000000000000008fff", false},
		{"0x0400000000000000000000000000000000000001", false},
		{"0x0000000000000000000000000000000000000001", false},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			require.Equal(t, tt.reserved, ReservedAddress(common.HexToAddress(tt.addr)))
		})
	}
}

func TestRegisterModule(t *testing.T) {
	resetRegistry(t)
	require := require.New(t)

	high := newFakeModule("high", common.HexToAddress("0x0000000000000000000000000000000000009f00"))
	low := newFakeModule("low", common.HexToAddress("0x0000000000000000000000000000000000009001"))
	require.NoError(RegisterModule(high))
	require.NoError(RegisterModule(low))

	mods := RegisteredModules()
	require.Len(mods, 2)
	require.Equal("low", mods[0].ConfigKey)
	require.Equal("high", mods[1].ConfigKey)

	got, ok := GetPrecompileModule("high")
	require.True(ok)
	require.Equal(high.Address, got.Address)
	got, ok = GetPrecompileModuleByAddress(low.Address)
	require.True(ok)
	require.Equal("low", got.ConfigKey)
	_, ok = GetPrecompileModule("missing")
	require.False(ok)

	require.ErrorContains(RegisterModule(newFakeModule("high", common.HexToAddress("0x0000000000000000000000000000000000009002"))), "name high already used")
	require.ErrorContains(RegisterModule(newFakeModule("other", low.Address)), "already used")
	require.ErrorContains(RegisterModule(newFakeModule("outside", common.HexToAddress("0x01"))), "not in a reserved range")
	require.ErrorContains(RegisterModule(newFakeModule("", common.HexToAddress("0x0000000000000000000000000000000000009003"))), "no config key")
	require.ErrorContains(RegisterModule(Module{ConfigKey: "bare", Address: common.HexToAddress("0x0000000000000000000000000000000000009004")}), "missing its contract")
	require.Len(RegisteredModules(), 2)
}

func TestApplyGenesis(t *testing.T) {
	resetRegistry(t)
	require := require.New(t)

	first := newFakeModule("first", common.HexToAddress("0x0000000000000000000000000000000000009001"))
	second := newFakeModule("second", common.HexToAddress("0x0000000000000000000000000000000000009002"))
	require.NoError(RegisterModule(first))
	require.NoError(RegisterModule(second))

	state := mockstate.New()
	err := ApplyGenesis(state, map[string]json.RawMessage{
		"first":  json.RawMessage(`{"value": 7}`),
		"second": json.RawMessage(`{"value": 9, "disable": true}`),
	})
	require.NoError(err)
	require.Equal(contract.Uint256ToHash(uint256.NewInt(7)), state.GetState(first.Address, markerKey))
	require.Equal(common.Hash{}, state.GetState(second.Address, markerKey))

	err = ApplyGenesis(state, map[string]json.RawMessage{"unknown": json.RawMessage(`{}`)})
	require.ErrorContains(err, "unknown precompile config key")

	err = ApplyGenesis(state, map[string]json.RawMessage{"first": json.RawMessage(`{"value": 0}`)})
	require.ErrorIs(err, errBadValue)

	err = ApplyGenesis(state, map[string]json.RawMessage{"first": json.RawMessage(`{"value": "x"}`)})
	require.ErrorContains(err, "decoding first config")
}
