// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package modules

import (
	"encoding/json"
	"fmt"

	"github.com/parsdao/rollover/contract"
)

// ApplyGenesis decodes the config of every registered module present in
// raw, verifies it and writes its initial state. Modules are configured in
// address order so the result does not depend on map iteration.
func ApplyGenesis(state contract.StateDB, raw map[string]json.RawMessage) error {
	for key := range raw {
		if _, ok := GetPrecompileModule(key); !ok {
			return fmt.Errorf("unknown precompile config key %q", key)
		}
	}
	for _, module := range RegisteredModules() {
		data, ok := raw[module.ConfigKey]
		if !ok {
			continue
		}
		cfg := module.Configurator.MakeConfig()
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decoding %s config: %w", module.ConfigKey, err)
		}
		if cfg.IsDisabled() {
			continue
		}
		if err := cfg.Verify(); err != nil {
			return fmt.Errorf("invalid %s config: %w", module.ConfigKey, err)
		}
		if err := module.Configurator.Configure(cfg, state); err != nil {
			return fmt.Errorf("configuring %s: %w", module.ConfigKey, err)
		}
	}
	return nil
}
