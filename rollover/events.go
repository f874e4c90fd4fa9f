// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rollover

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/parsdao/rollover/contract"
)

// Event names
const (
	EventLiquidityRolledOver = "LiquidityRolledOver"
	EventFeeApplied          = "FeeApplied"
	EventSlippageDetails     = "SlippageDetails"
	EventStakeFailed         = "StakeFailed"
	EventFeeDeferred         = "FeeDeferred"
	EventFeesClaimed         = "FeesClaimed"
	EventAdapterAllowed      = "AdapterAllowed"
	EventAdapterDisallowed   = "AdapterDisallowed"
	EventFeeRateUpdated      = "FeeRateUpdated"
	EventFeeRecipientUpdated = "FeeRecipientUpdated"
	EventAdminTransferred    = "AdminTransferred"
)

// RolloverABI is the ABI of the rollover precompile
const RolloverABI = `[
	{"type":"function","name":"rolloverLiquidity","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"sourceVenue","type":"address"},
		{"name":"destVenue","type":"address"},
		{"name":"liquidity","type":"uint256"},
		{"name":"sourceParams","type":"bytes"},
		{"name":"destParams","type":"bytes"},
		{"name":"minWithdrawAmounts","type":"uint256[]"},
		{"name":"minNewLiquidity","type":"uint256"}],
	 "outputs":[{"name":"newLiquidity","type":"uint256"}]},
	{"type":"function","name":"allowAdapter","stateMutability":"nonpayable",
	 "inputs":[{"name":"venue","type":"address"}],"outputs":[]},
	{"type":"function","name":"disallowAdapter","stateMutability":"nonpayable",
	 "inputs":[{"name":"venue","type":"address"}],"outputs":[]},
	{"type":"function","name":"setFeeRate","stateMutability":"nonpayable",
	 "inputs":[{"name":"feeRateBps","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"setFeeRecipient","stateMutability":"nonpayable",
	 "inputs":[{"name":"recipient","type":"address"}],"outputs":[]},
	{"type":"function","name":"transferAdmin","stateMutability":"nonpayable",
	 "inputs":[{"name":"newAdmin","type":"address"}],"outputs":[]},
	{"type":"function","name":"claimFees","stateMutability":"nonpayable",
	 "inputs":[{"name":"token","type":"address"}],
	 "outputs":[{"name":"amount","type":"uint256"}]},
	{"type":"function","name":"feeRate","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"feeRecipient","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"wrappedNative","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"admin","stateMutability":"view",
	 "inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"isAdapterAllowed","stateMutability":"view",
	 "inputs":[{"name":"venue","type":"address"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"pendingFees","stateMutability":"view",
	 "inputs":[{"name":"recipient","type":"address"},{"name":"token","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"computeFee","stateMutability":"view",
	 "inputs":[{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"net","type":"uint256"},{"name":"fee","type":"uint256"}]},

	{"type":"event","name":"LiquidityRolledOver","anonymous":false,
	 "inputs":[
		{"name":"user","type":"address","indexed":true},
		{"name":"sourceVenue","type":"address","indexed":true},
		{"name":"destVenue","type":"address","indexed":true},
		{"name":"liquidity","type":"uint256","indexed":false},
		{"name":"tokens","type":"address[]","indexed":false},
		{"name":"withdrawn","type":"uint256[]","indexed":false},
		{"name":"newLiquidity","type":"uint256","indexed":false}]},
	{"type":"event","name":"FeeApplied","anonymous":false,
	 "inputs":[
		{"name":"user","type":"address","indexed":true},
		{"name":"recipient","type":"address","indexed":true},
		{"name":"tokens","type":"address[]","indexed":false},
		{"name":"fees","type":"uint256[]","indexed":false},
		{"name":"received","type":"uint256[]","indexed":false}]},
	{"type":"event","name":"SlippageDetails","anonymous":false,
	 "inputs":[
		{"name":"user","type":"address","indexed":true},
		{"name":"tokens","type":"address[]","indexed":false},
		{"name":"expected","type":"uint256[]","indexed":false},
		{"name":"actual","type":"uint256[]","indexed":false},
		{"name":"slippageBps","type":"uint256[]","indexed":false},
		{"name":"minNewLiquidity","type":"uint256","indexed":false},
		{"name":"newLiquidity","type":"uint256","indexed":false}]},
	{"type":"event","name":"StakeFailed","anonymous":false,
	 "inputs":[
		{"name":"user","type":"address","indexed":true},
		{"name":"venue","type":"address","indexed":true},
		{"name":"liquidity","type":"uint256","indexed":false},
		{"name":"reason","type":"string","indexed":false}]},
	{"type":"event","name":"FeeDeferred","anonymous":false,
	 "inputs":[
		{"name":"recipient","type":"address","indexed":true},
		{"name":"token","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"FeesClaimed","anonymous":false,
	 "inputs":[
		{"name":"recipient","type":"address","indexed":true},
		{"name":"token","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"AdapterAllowed","anonymous":false,
	 "inputs":[{"name":"venue","type":"address","indexed":true}]},
	{"type":"event","name":"AdapterDisallowed","anonymous":false,
	 "inputs":[{"name":"venue","type":"address","indexed":true}]},
	{"type":"event","name":"FeeRateUpdated","anonymous":false,
	 "inputs":[
		{"name":"oldRate","type":"uint256","indexed":false},
		{"name":"newRate","type":"uint256","indexed":false}]},
	{"type":"event","name":"FeeRecipientUpdated","anonymous":false,
	 "inputs":[
		{"name":"oldRecipient","type":"address","indexed":true},
		{"name":"newRecipient","type":"address","indexed":true}]},
	{"type":"event","name":"AdminTransferred","anonymous":false,
	 "inputs":[
		{"name":"previousAdmin","type":"address","indexed":true},
		{"name":"newAdmin","type":"address","indexed":true}]}
]`

var rolloverABI = contract.ParseABI(RolloverABI)

// emitEvent appends the named event to the logs of addr
func emitEvent(stateDB contract.StateDB, addr common.Address, name string, args ...interface{}) error {
	return rolloverABI.EmitEvent(stateDB, addr, name, args...)
}

// emit records a diagnostic event. Events never gate control flow, so a
// packing failure is logged and dropped.
func (m *Migrator) emit(stateDB contract.StateDB, name string, args ...interface{}) {
	if err := emitEvent(stateDB, m.addr, name, args...); err != nil {
		m.log.Error("failed to emit event", "event", name, "err", err)
	}
}

func (m *Migrator) emitSummary(stateDB contract.StateDB, req *MigrationRequest, st *migrationState, recipient common.Address, actual []*uint256.Int) {
	m.emit(stateDB, EventLiquidityRolledOver,
		st.user,
		req.SourceVenue,
		req.DestVenue,
		req.Liquidity.ToBig(),
		st.withdrawnTokens,
		bigs(st.withdrawn),
		st.newLiquidity.ToBig(),
	)
	m.emit(stateDB, EventFeeApplied,
		st.user,
		recipient,
		st.tokens,
		bigs(st.feeAmounts),
		bigs(st.feesReceived),
	)

	slippage := make([]*uint256.Int, len(st.amounts))
	for i := range st.amounts {
		slippage[i] = SlippageBps(st.amounts[i], actual[i])
	}
	m.emit(stateDB, EventSlippageDetails,
		st.user,
		st.tokens,
		bigs(st.amounts),
		bigs(actual),
		bigs(slippage),
		req.MinNewLiquidity.ToBig(),
		st.newLiquidity.ToBig(),
	)
}

func bigs(vals []*uint256.Int) []*big.Int {
	out := make([]*big.Int, len(vals))
	for i, v := range vals {
		out[i] = v.ToBig()
	}
	return out
}
