// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rollover

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/parsdao/rollover/contract"
)

var _ contract.StatefulPrecompiledContract = (*rolloverPrecompile)(nil)

// Gas charged per method before execution
var methodGas = map[string]uint64{
	"allowAdapter":     GasAdminWrite,
	"disallowAdapter":  GasAdminWrite,
	"setFeeRate":       GasAdminWrite,
	"setFeeRecipient":  GasAdminWrite,
	"transferAdmin":    GasAdminWrite,
	"claimFees":        GasClaimFees,
	"feeRate":          GasRead,
	"feeRecipient":     GasRead,
	"wrappedNative":    GasRead,
	"admin":            GasRead,
	"isAdapterAllowed": GasRead,
	"pendingFees":      GasRead,
	"computeFee":       GasComputeFee,
}

type rolloverPrecompile struct {
	migrator *Migrator
}

// NewPrecompile exposes m through the ABI of RolloverABI
func NewPrecompile(m *Migrator) contract.StatefulPrecompiledContract {
	return &rolloverPrecompile{migrator: m}
}

// Run executes the rollover precompile
func (p *rolloverPrecompile) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	stateDB := accessibleState.GetStateDB()

	method, err := rolloverABI.MethodBySelector(input)
	if err != nil {
		return nil, suppliedGas, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	args, err := rolloverABI.UnpackInput(method.Name, input[contract.SelectorLen:], false)
	if err != nil {
		return nil, suppliedGas, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	if method.Name == "rolloverLiquidity" {
		return p.rolloverLiquidity(stateDB, caller, args, suppliedGas, readOnly)
	}

	remainingGas, err := contract.DeductGas(suppliedGas, methodGas[method.Name])
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrInsufficientGas, err)
	}
	if !method.IsConstant() && readOnly {
		return nil, remainingGas, contract.ErrWriteProtection
	}

	ret, err := p.dispatch(stateDB, caller, method.Name, args)
	return ret, remainingGas, err
}

func (p *rolloverPrecompile) dispatch(stateDB contract.StateDB, caller common.Address, name string, args []interface{}) ([]byte, error) {
	settings := p.migrator.Settings()

	switch name {
	// Admin write functions
	case "allowAdapter":
		venue, err := addressArg(args, 0)
		if err != nil {
			return nil, err
		}
		return nil, settings.AllowAdapter(stateDB, caller, venue)
	case "disallowAdapter":
		venue, err := addressArg(args, 0)
		if err != nil {
			return nil, err
		}
		return nil, settings.DisallowAdapter(stateDB, caller, venue)
	case "setFeeRate":
		rate, err := uintArg(args, 0)
		if err != nil {
			return nil, err
		}
		if !rate.IsUint64() {
			return nil, fmt.Errorf("%w: %s", ErrFeeExceedsMaximum, rate.Dec())
		}
		return nil, settings.SetFeeRate(stateDB, caller, rate.Uint64())
	case "setFeeRecipient":
		recipient, err := addressArg(args, 0)
		if err != nil {
			return nil, err
		}
		return nil, settings.SetFeeRecipient(stateDB, caller, recipient)
	case "transferAdmin":
		newAdmin, err := addressArg(args, 0)
		if err != nil {
			return nil, err
		}
		return nil, settings.TransferAdmin(stateDB, caller, newAdmin)

	case "claimFees":
		token, err := addressArg(args, 0)
		if err != nil {
			return nil, err
		}
		amount, err := p.migrator.ClaimFees(stateDB, caller, token)
		if err != nil {
			return nil, err
		}
		return rolloverABI.PackOutput(name, amount.ToBig())

	// View functions
	case "feeRate":
		return rolloverABI.PackOutput(name, new(big.Int).SetUint64(settings.FeeRate(stateDB)))
	case "feeRecipient":
		return rolloverABI.PackOutput(name, settings.FeeRecipient(stateDB))
	case "wrappedNative":
		return rolloverABI.PackOutput(name, settings.WrappedNative(stateDB))
	case "admin":
		return rolloverABI.PackOutput(name, settings.Admin(stateDB))
	case "isAdapterAllowed":
		venue, err := addressArg(args, 0)
		if err != nil {
			return nil, err
		}
		return rolloverABI.PackOutput(name, settings.IsAdapterAllowed(stateDB, venue))
	case "pendingFees":
		recipient, err := addressArg(args, 0)
		if err != nil {
			return nil, err
		}
		token, err := addressArg(args, 1)
		if err != nil {
			return nil, err
		}
		return rolloverABI.PackOutput(name, settings.PendingFees(stateDB, recipient, token).ToBig())
	case "computeFee":
		amount, err := uintArg(args, 0)
		if err != nil {
			return nil, err
		}
		net, fee := ComputeFee(amount, settings.FeeRate(stateDB))
		return rolloverABI.PackOutput(name, net.ToBig(), fee.ToBig())
	}
	return nil, fmt.Errorf("%w: unknown method %s", ErrInvalidInput, name)
}

func (p *rolloverPrecompile) rolloverLiquidity(
	stateDB contract.StateDB,
	caller common.Address,
	args []interface{},
	suppliedGas uint64,
	readOnly bool,
) ([]byte, uint64, error) {
	req, err := decodeRequest(args)
	if err != nil {
		return nil, suppliedGas, err
	}
	legs := len(req.MinWithdrawAmounts)
	if legs > GasMaxTokenLegs {
		return nil, suppliedGas, fmt.Errorf("%w: %w: %d", ErrInvalidRequest, ErrTooManyTokens, legs)
	}

	remainingGas, err := contract.DeductGas(suppliedGas, GasRollover+uint64(legs)*GasPerTokenLeg)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrInsufficientGas, err)
	}
	if readOnly {
		return nil, remainingGas, contract.ErrWriteProtection
	}

	receipt, err := p.migrator.RolloverLiquidity(stateDB, caller, req)
	if err != nil {
		return nil, remainingGas, err
	}
	ret, err := rolloverABI.PackOutput("rolloverLiquidity", receipt.NewLiquidity.ToBig())
	return ret, remainingGas, err
}

func decodeRequest(args []interface{}) (*MigrationRequest, error) {
	if len(args) != 7 {
		return nil, fmt.Errorf("%w: expected 7 arguments, got %d", ErrInvalidInput, len(args))
	}
	source, err := addressArg(args, 0)
	if err != nil {
		return nil, err
	}
	dest, err := addressArg(args, 1)
	if err != nil {
		return nil, err
	}
	liquidity, err := uintArg(args, 2)
	if err != nil {
		return nil, err
	}
	sourceParams, ok := args[3].([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: argument 3 is %T", ErrInvalidInput, args[3])
	}
	destParams, ok := args[4].([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: argument 4 is %T", ErrInvalidInput, args[4])
	}
	rawMins, ok := args[5].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: argument 5 is %T", ErrInvalidInput, args[5])
	}
	minNewLiquidity, err := uintArg(args, 6)
	if err != nil {
		return nil, err
	}

	mins := make([]*uint256.Int, len(rawMins))
	for i, raw := range rawMins {
		v, overflow := uint256.FromBig(raw)
		if overflow {
			return nil, fmt.Errorf("%w: minimum %d overflows uint256", ErrInvalidInput, i)
		}
		mins[i] = v
	}

	return &MigrationRequest{
		SourceVenue:        source,
		DestVenue:          dest,
		Liquidity:          liquidity,
		SourceParams:       sourceParams,
		DestParams:         destParams,
		MinWithdrawAmounts: mins,
		MinNewLiquidity:    minNewLiquidity,
	}, nil
}

func addressArg(args []interface{}, i int) (common.Address, error) {
	if i >= len(args) {
		return common.Address{}, fmt.Errorf("%w: missing argument %d", ErrInvalidInput, i)
	}
	addr, ok := args[i].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: argument %d is %T", ErrInvalidInput, i, args[i])
	}
	return addr, nil
}

func uintArg(args []interface{}, i int) (*uint256.Int, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("%w: missing argument %d", ErrInvalidInput, i)
	}
	raw, ok := args[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: argument %d is %T", ErrInvalidInput, i, args[i])
	}
	v, overflow := uint256.FromBig(raw)
	if overflow {
		return nil, fmt.Errorf("%w: argument %d overflows uint256", ErrInvalidInput, i)
	}
	return v, nil
}
