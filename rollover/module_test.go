// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rollover

import (
	"encoding/json"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/parsdao/rollover/contract/mockstate"
	"github.com/parsdao/rollover/modules"
	"github.com/parsdao/rollover/precompileconfig"
)

const testGenesis = `{
	"rolloverConfig": {
		"admin": "0xad00000000000000000000000000000000000001",
		"feeRateBps": 30,
		"feeRecipient": "0xfee0000000000000000000000000000000000001",
		"wrappedNative": "0x0e00000000000000000000000000000000000001",
		"allowedAdapters": [
			"0x5000000000000000000000000000000000000001",
			"0xd000000000000000000000000000000000000001"
		]
	}
}`

func TestModuleRegistered(t *testing.T) {
	module, ok := modules.GetPrecompileModuleByAddress(ContractAddress)
	require.True(t, ok)
	require.Equal(t, ConfigKey, module.ConfigKey)

	module, ok = modules.GetPrecompileModule(ConfigKey)
	require.True(t, ok)
	require.Equal(t, ContractAddress, module.Address)
}

func TestApplyGenesis(t *testing.T) {
	require := require.New(t)

	var raw map[string]json.RawMessage
	require.NoError(json.Unmarshal([]byte(testGenesis), &raw))

	state := mockstate.New()
	require.NoError(modules.ApplyGenesis(state, raw))

	s := NewSettings(ContractAddress)
	require.True(s.Initialized(state))
	require.Equal(testAdmin, s.Admin(state))
	require.Equal(uint64(30), s.FeeRate(state))
	require.Equal(testRecipient, s.FeeRecipient(state))
	require.Equal(testWrapped, s.WrappedNative(state))
	require.True(s.IsAdapterAllowed(state, testSource))
	require.True(s.IsAdapterAllowed(state, testDest))

	// Reactivation keeps settings and adds adapters
	require.NoError(s.SetFeeRate(state, testAdmin, 50))
	cfg := &Config{
		Admin:           testUser,
		FeeRateBps:      10,
		FeeRecipient:    testUser,
		WrappedNative:   testTokenA,
		AllowedAdapters: []common.Address{testTokenB},
	}
	require.NoError(Module.Configurator.Configure(cfg, state))
	require.Equal(uint64(50), s.FeeRate(state))
	require.Equal(testWrapped, s.WrappedNative(state))
	require.True(s.IsAdapterAllowed(state, testTokenB))
}

func TestApplyGenesisRejectsInvalidConfig(t *testing.T) {
	raw := map[string]json.RawMessage{
		ConfigKey: json.RawMessage(`{"admin":"0xad00000000000000000000000000000000000001","feeRateBps":1001,` +
			`"feeRecipient":"0xfee0000000000000000000000000000000000001","wrappedNative":"0x0e00000000000000000000000000000000000001"}`),
	}
	state := mockstate.New()
	err := modules.ApplyGenesis(state, raw)
	require.ErrorIs(t, err, ErrInvalidConfiguration)
	require.False(t, NewSettings(ContractAddress).Initialized(state))
}

func TestApplyGenesisDisabled(t *testing.T) {
	raw := map[string]json.RawMessage{
		ConfigKey: json.RawMessage(`{"upgrade":{"disable":true}}`),
	}
	state := mockstate.New()
	require.NoError(t, modules.ApplyGenesis(state, raw))
	require.False(t, NewSettings(ContractAddress).Initialized(state))
}

func TestConfigVerify(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Admin:           testAdmin,
			FeeRateBps:      30,
			FeeRecipient:    testRecipient,
			WrappedNative:   testWrapped,
			AllowedAdapters: []common.Address{testSource},
		}
	}
	require.NoError(t, valid().Verify())

	tests := map[string]func(c *Config){
		"rate above maximum": func(c *Config) { c.FeeRateBps = MaxFeeBps + 1 },
		"empty admin":        func(c *Config) { c.Admin = common.Address{} },
		"empty recipient":    func(c *Config) { c.FeeRecipient = common.Address{} },
		"empty wrapped":      func(c *Config) { c.WrappedNative = common.Address{} },
		"empty adapter":      func(c *Config) { c.AllowedAdapters = append(c.AllowedAdapters, common.Address{}) },
		"duplicate adapter":  func(c *Config) { c.AllowedAdapters = append(c.AllowedAdapters, testSource) },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			require.ErrorIs(t, c.Verify(), ErrInvalidConfiguration)
		})
	}
}

func TestConfigEqual(t *testing.T) {
	ts := uint64(100)
	a := &Config{Admin: testAdmin, FeeRateBps: 30, FeeRecipient: testRecipient, WrappedNative: testWrapped}
	b := &Config{Admin: testAdmin, FeeRateBps: 30, FeeRecipient: testRecipient, WrappedNative: testWrapped}
	require.True(t, a.Equal(b))

	b.AllowedAdapters = []common.Address{testSource}
	require.False(t, a.Equal(b))

	b.AllowedAdapters = nil
	b.Upgrade.BlockTimestamp = &ts
	require.False(t, a.Equal(b))
	require.False(t, a.Equal(nil))
}

func TestConfigJSONRoundTrip(t *testing.T) {
	ts := uint64(1_700_000_000)
	cfg := &Config{
		Upgrade:         precompileconfig.Upgrade{BlockTimestamp: &ts},
		Admin:           testAdmin,
		FeeRateBps:      45,
		FeeRecipient:    testRecipient,
		WrappedNative:   testWrapped,
		AllowedAdapters: []common.Address{testSource, testDest},
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	decoded := new(Config)
	require.NoError(t, json.Unmarshal(data, decoded))
	require.True(t, cfg.Equal(decoded))
	require.NoError(t, decoded.Verify())
	require.Equal(t, &ts, decoded.Timestamp())
}
