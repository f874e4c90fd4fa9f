// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package contract

import (
	"fmt"
	"strings"

	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
	ethtypes "github.com/luxfi/geth/core/types"
)

// ExtendedABI adds the selector dispatch and log emission a precompile
// needs on top of the standard ABI
type ExtendedABI struct {
	abi.ABI
}

// ParseABI parses a compiled-in ABI and panics if it is malformed
func ParseABI(rawABI string) ExtendedABI {
	parsed, err := abi.JSON(strings.NewReader(rawABI))
	if err != nil {
		panic(fmt.Sprintf("failed to parse ABI: %v", err))
	}
	return ExtendedABI{ABI: parsed}
}

// MethodBySelector resolves the method addressed by the first four bytes of input
func (e ExtendedABI) MethodBySelector(input []byte) (*abi.Method, error) {
	if len(input) < SelectorLen {
		return nil, ErrInputTooShort
	}
	return e.MethodById(input[:SelectorLen])
}

func (e ExtendedABI) method(name string) (abi.Method, error) {
	method, ok := e.Methods[name]
	if !ok {
		return abi.Method{}, fmt.Errorf("method '%s' not found", name)
	}
	return method, nil
}

// PackOutput encodes the return values of name, without a selector
func (e ExtendedABI) PackOutput(name string, args ...interface{}) ([]byte, error) {
	method, err := e.method(name)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(args...)
}

// UnpackInput decodes call data of name with the selector already stripped.
// strict rejects data that is not a whole number of words.
func (e ExtendedABI) UnpackInput(name string, data []byte, strict bool) ([]interface{}, error) {
	method, err := e.method(name)
	if err != nil {
		return nil, err
	}
	if strict && len(data)%32 != 0 {
		return nil, fmt.Errorf("abi: %d bytes of input for %s is not word aligned", len(data), name)
	}
	return method.Inputs.Unpack(data)
}

// EmitEvent encodes the named event and appends it to the logs of addr.
// args follow the event's declared input order, indexed or not.
func (e ExtendedABI) EmitEvent(stateDB StateDB, addr common.Address, name string, args ...interface{}) error {
	event, ok := e.Events[name]
	if !ok {
		return fmt.Errorf("event '%s' not found", name)
	}
	if len(args) != len(event.Inputs) {
		return fmt.Errorf("event '%s' takes %d inputs, got %d", name, len(event.Inputs), len(args))
	}

	var (
		indexed [][]interface{}
		values  []interface{}
	)
	for i, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, []interface{}{args[i]})
			continue
		}
		values = append(values, args[i])
	}

	data, err := event.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		return fmt.Errorf("packing %s: %w", name, err)
	}
	rules, err := abi.MakeTopics(indexed...)
	if err != nil {
		return fmt.Errorf("packing %s topics: %w", name, err)
	}

	topics := make([]common.Hash, 0, len(rules)+1)
	if !event.Anonymous {
		topics = append(topics, event.ID)
	}
	for _, rule := range rules {
		topics = append(topics, rule[0])
	}
	stateDB.AddLog(&ethtypes.Log{
		Address: addr,
		Topics:  topics,
		Data:    data,
	})
	return nil
}
