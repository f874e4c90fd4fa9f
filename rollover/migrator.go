// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rollover

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/parsdao/rollover/contract"
)

// Migrator drives liquidity rollovers between venues.
//
// The migrator is the custodian of all value in flight: withdrawals land in
// its address, fees leave from it and deposits are pulled from it. It holds
// nothing between calls except fees waiting in the pending ledger.
type Migrator struct {
	// mu protects locked
	mu sync.Mutex

	// locked prevents reentrancy attacks
	locked bool

	addr     common.Address
	settings *Settings
	venues   *Venues
	bank     Bank

	log     log.Logger
	metrics *Metrics
}

// Option configures a Migrator
type Option func(*Migrator)

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return func(m *Migrator) {
		m.log = logger
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(metrics *Metrics) Option {
	return func(m *Migrator) {
		m.metrics = metrics
	}
}

// NewMigrator creates a migrator custodying value at addr
func NewMigrator(addr common.Address, bank Bank, venues *Venues, opts ...Option) *Migrator {
	m := &Migrator{
		addr:     addr,
		settings: NewSettings(addr),
		venues:   venues,
		bank:     bank,
		log:      log.NewTestLogger(log.InfoLevel),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Address returns the custodian address
func (m *Migrator) Address() common.Address { return m.addr }

// Settings returns the configuration store
func (m *Migrator) Settings() *Settings { return m.settings }

// Venues returns the venue directory
func (m *Migrator) Venues() *Venues { return m.venues }

func (m *Migrator) acquire() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		return ErrReentrant
	}
	m.locked = true
	return nil
}

func (m *Migrator) release() {
	m.mu.Lock()
	m.locked = false
	m.mu.Unlock()
}

func (m *Migrator) callContext(stateDB contract.StateDB) *CallContext {
	return &CallContext{
		StateDB:       stateDB,
		Bank:          m.bank,
		Custodian:     m.addr,
		WrappedNative: m.settings.WrappedNative(stateDB),
	}
}

// RolloverLiquidity moves caller's position from req.SourceVenue to
// req.DestVenue. On any error every state change made by the call is
// reverted, events included. A failed stake after a successful deposit is
// not an error: the receipt reports Staked == false.
func (m *Migrator) RolloverLiquidity(stateDB contract.StateDB, caller common.Address, req *MigrationRequest) (receipt *Receipt, err error) {
	if err := m.acquire(); err != nil {
		m.metrics.migration(err)
		return nil, err
	}
	defer m.release()

	timer := m.metrics.timer()
	defer timer.ObserveDuration()

	snap := stateDB.Snapshot()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rollover aborted: venue panicked: %v", r)
		}
		if err != nil {
			stateDB.RevertToSnapshot(snap)
			receipt = nil
			m.log.Debug("rollover reverted",
				"user", caller,
				"kind", KindOf(err),
				"err", err,
			)
		}
		m.metrics.migration(err)
	}()

	return m.rollover(stateDB, caller, req)
}

func (m *Migrator) rollover(stateDB contract.StateDB, caller common.Address, req *MigrationRequest) (*Receipt, error) {
	// 1. Validate
	src, dst, err := m.validate(stateDB, req)
	if err != nil {
		return nil, err
	}

	cc := m.callContext(stateDB)
	st := &migrationState{
		user:    caller,
		wrapped: uint256.NewInt(0),
	}

	// 2. Snapshot native balance
	st.nativeSnapshot = stateDB.GetBalance(m.addr)

	// 3. Claim rewards and IL compensation, unstake
	if err := m.claimRewards(cc, st, src); err != nil {
		return nil, err
	}
	m.claimILCompensation(cc, st, src)
	if err := src.Unstake(cc, caller, req.Liquidity, req.SourceParams); err != nil && !errors.Is(err, ErrUnsupported) {
		return nil, fmt.Errorf("unstaking from %s: %w", src.Address(), err)
	}
	m.disableILProtection(cc, st, src, req.SourceParams)

	// 4. Withdraw
	if err := m.withdraw(cc, st, src, req); err != nil {
		return nil, err
	}

	// 5. Apply fees
	recipient := m.settings.FeeRecipient(stateDB)
	if err := m.applyFees(cc, st, m.settings.FeeRate(stateDB), recipient); err != nil {
		return nil, err
	}

	// 6. Validate holdings and normalize native value
	if err := m.validateBalances(cc, st); err != nil {
		return nil, err
	}
	if err := m.normalize(cc, st); err != nil {
		return nil, err
	}

	// 7. Approve
	spender := dst.Address()
	if err := m.approve(cc, st, spender); err != nil {
		return nil, err
	}

	// 8. Deposit
	actual, err := m.deposit(cc, st, dst, req)
	if err != nil {
		return nil, err
	}
	if err := m.revokeApprovals(cc, st, spender); err != nil {
		return nil, err
	}

	// 9. Stake, best effort
	m.stake(cc, st, dst, req.DestParams)
	m.enableILProtection(cc, st, dst, req.DestParams)

	// 10. Refund dust
	if err := m.refund(cc, st); err != nil {
		return nil, err
	}

	m.emitSummary(stateDB, req, st, recipient, actual)
	m.log.Info("liquidity rolled over",
		"user", caller,
		"source", req.SourceVenue,
		"dest", req.DestVenue,
		"liquidity", req.Liquidity.Dec(),
		"newLiquidity", st.newLiquidity.Dec(),
		"staked", st.staked,
	)
	return st.receipt(), nil
}

func (m *Migrator) validate(stateDB contract.StateDB, req *MigrationRequest) (Adapter, Adapter, error) {
	if req == nil {
		return nil, nil, fmt.Errorf("%w: empty request", ErrInvalidRequest)
	}
	if req.Liquidity == nil || req.Liquidity.IsZero() {
		return nil, nil, fmt.Errorf("%w: zero liquidity", ErrInvalidRequest)
	}
	if req.MinNewLiquidity == nil {
		return nil, nil, fmt.Errorf("%w: missing minimum new liquidity", ErrInvalidRequest)
	}
	for i, minAmount := range req.MinWithdrawAmounts {
		if minAmount == nil {
			return nil, nil, fmt.Errorf("%w: missing minimum withdraw amount %d", ErrInvalidRequest, i)
		}
	}
	if len(req.MinWithdrawAmounts) > GasMaxTokenLegs {
		return nil, nil, fmt.Errorf("%w: %w: %d", ErrInvalidRequest, ErrTooManyTokens, len(req.MinWithdrawAmounts))
	}
	if !m.settings.Initialized(stateDB) {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidRequest, ErrNotInitialized)
	}

	src, err := m.resolve(stateDB, req.SourceVenue)
	if err != nil {
		return nil, nil, err
	}
	dst, err := m.resolve(stateDB, req.DestVenue)
	if err != nil {
		return nil, nil, err
	}
	return src, dst, nil
}

func (m *Migrator) resolve(stateDB contract.StateDB, venue common.Address) (Adapter, error) {
	if !m.settings.IsAdapterAllowed(stateDB, venue) {
		return nil, fmt.Errorf("%w: venue %s is not allowed", ErrInvalidRequest, venue)
	}
	adapter, ok := m.venues.Lookup(venue)
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s", ErrInvalidRequest, ErrUnknownVenue, venue)
	}
	return adapter, nil
}

// claimRewards forwards every nonzero reward of the source position to the user
func (m *Migrator) claimRewards(cc *CallContext, st *migrationState, src Adapter) error {
	tokens, amounts, err := src.ClaimRewards(cc, st.user)
	if errors.Is(err, ErrUnsupported) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("claiming rewards from %s: %w", src.Address(), err)
	}
	if len(tokens) != len(amounts) {
		return fmt.Errorf("%w: %d reward tokens, %d amounts", ErrArrayLengthMismatch, len(tokens), len(amounts))
	}

	st.rewardTokens, st.rewardAmounts, err = m.forwardDelivered(cc, st, src, tokens, amounts)
	if err != nil {
		return fmt.Errorf("forwarding rewards: %w", err)
	}
	return nil
}

// claimILCompensation forwards any impermanent-loss compensation to the
// user. Absent support or a failing claim never blocks the rollover.
func (m *Migrator) claimILCompensation(cc *CallContext, st *migrationState, src Adapter) {
	var (
		tokens  []common.Address
		amounts []*uint256.Int
	)
	err := m.bestEffort(cc.StateDB, func() error {
		claimed, reported, err := src.ClaimILCompensation(cc, st.user)
		if err != nil {
			return err
		}
		if len(claimed) != len(reported) {
			return fmt.Errorf("%w: %d compensation tokens, %d amounts", ErrArrayLengthMismatch, len(claimed), len(reported))
		}
		tokens, amounts, err = m.forwardDelivered(cc, st, src, claimed, reported)
		return err
	})
	if err != nil {
		m.logBestEffort("IL compensation claim failed", src, err)
		return
	}
	st.ilTokens = tokens
	st.ilAmounts = amounts
}

// forwardDelivered pays the user what venue actually delivered of each
// reported token, capped at the reported amount. Delivery is measured as
// the custodian's holding above the native snapshot and the fee escrow,
// which is zero before the claim because nothing else is in flight yet.
func (m *Migrator) forwardDelivered(cc *CallContext, st *migrationState, venue Adapter, tokens []common.Address, amounts []*uint256.Int) ([]common.Address, []*uint256.Int, error) {
	var (
		paidTokens  []common.Address
		paidAmounts []*uint256.Int
	)
	for i, token := range tokens {
		if amounts[i] == nil || amounts[i].IsZero() {
			continue
		}
		amount := amounts[i].Clone()
		if held := m.available(cc, st, token); held.Lt(amount) {
			m.log.Warn("venue reported more than it delivered",
				"venue", venue.Address(),
				"token", token,
				"reported", amount.Dec(),
				"delivered", held.Dec(),
			)
			amount = held
		}
		if amount.IsZero() {
			continue
		}
		if err := sendValue(cc, token, st.user, amount); err != nil {
			return nil, nil, fmt.Errorf("forwarding %s: %w", token, err)
		}
		paidTokens = append(paidTokens, token)
		paidAmounts = append(paidAmounts, amount)
	}
	return paidTokens, paidAmounts, nil
}

func (m *Migrator) disableILProtection(cc *CallContext, st *migrationState, src Adapter, params []byte) {
	err := m.bestEffort(cc.StateDB, func() error {
		return src.DisableILProtection(cc, st.user, params)
	})
	if err != nil {
		m.logBestEffort("disabling IL protection failed", src, err)
	}
}

func (m *Migrator) enableILProtection(cc *CallContext, st *migrationState, dst Adapter, params []byte) {
	err := m.bestEffort(cc.StateDB, func() error {
		return dst.EnableILProtection(cc, st.user, params)
	})
	if err != nil {
		m.logBestEffort("enabling IL protection failed", dst, err)
	}
}

func (m *Migrator) logBestEffort(msg string, venue Adapter, err error) {
	if errors.Is(err, ErrUnsupported) {
		return
	}
	m.log.Warn(msg, "venue", venue.Address(), "err", err)
}

func (m *Migrator) withdraw(cc *CallContext, st *migrationState, src Adapter, req *MigrationRequest) error {
	tokens, amounts, err := src.Withdraw(cc, st.user, req.Liquidity, req.SourceParams, req.MinWithdrawAmounts)
	if err != nil {
		return fmt.Errorf("withdrawing from %s: %w", src.Address(), err)
	}
	if len(tokens) != len(amounts) || len(tokens) != len(req.MinWithdrawAmounts) {
		return fmt.Errorf("%w: withdraw returned %d tokens and %d amounts for %d minimums",
			ErrArrayLengthMismatch, len(tokens), len(amounts), len(req.MinWithdrawAmounts))
	}

	st.withdrawnTokens = make([]common.Address, len(tokens))
	st.tokens = make([]common.Address, len(tokens))
	st.withdrawn = make([]*uint256.Int, len(tokens))
	st.amounts = make([]*uint256.Int, len(tokens))
	for i, token := range tokens {
		amount := uint256.NewInt(0)
		if amounts[i] != nil {
			amount.Set(amounts[i])
		}
		if amount.Lt(req.MinWithdrawAmounts[i]) {
			return fmt.Errorf("%w: withdrew %s of %s, minimum %s",
				ErrSlippageExceeded, amount.Dec(), token, req.MinWithdrawAmounts[i].Dec())
		}
		st.withdrawnTokens[i] = token
		st.tokens[i] = token
		st.withdrawn[i] = amount
		st.amounts[i] = amount.Clone()
		st.touch(token)
	}
	return nil
}

// approve grants spender exactly the post-fee amount of every token,
// overwriting any allowance left from earlier calls
func (m *Migrator) approve(cc *CallContext, st *migrationState, spender common.Address) error {
	totals, order := sumByToken(st.tokens, st.amounts)
	for _, token := range order {
		if err := cc.Bank.Approve(cc.StateDB, token, cc.Custodian, spender, totals[token]); err != nil {
			return fmt.Errorf("approving %s: %w", token, err)
		}
	}
	return nil
}

// revokeApprovals clears what the deposit left of the allowances, so the
// venue cannot reach escrowed fees or a later caller's funds
func (m *Migrator) revokeApprovals(cc *CallContext, st *migrationState, spender common.Address) error {
	_, order := sumByToken(st.tokens, st.amounts)
	for _, token := range order {
		if err := cc.Bank.Approve(cc.StateDB, token, cc.Custodian, spender, uint256.NewInt(0)); err != nil {
			return fmt.Errorf("revoking approval of %s: %w", token, err)
		}
	}
	return nil
}

// deposit pays the post-fee amounts into the destination venue and returns
// what the venue actually consumed per slot
func (m *Migrator) deposit(cc *CallContext, st *migrationState, dst Adapter, req *MigrationRequest) ([]*uint256.Int, error) {
	_, order := sumByToken(st.tokens, st.amounts)
	before := make(map[common.Address]*uint256.Int, len(order))
	for _, token := range order {
		before[token] = cc.Bank.BalanceOf(cc.StateDB, token, cc.Custodian)
	}

	tokens := append([]common.Address(nil), st.tokens...)
	amounts := make([]*uint256.Int, len(st.amounts))
	for i, amount := range st.amounts {
		amounts[i] = amount.Clone()
	}
	newLiquidity, err := dst.Deposit(cc, st.user, tokens, amounts, req.DestParams, req.MinNewLiquidity)
	if err != nil {
		return nil, fmt.Errorf("depositing into %s: %w", dst.Address(), err)
	}
	if newLiquidity == nil {
		newLiquidity = uint256.NewInt(0)
	}
	if newLiquidity.Lt(req.MinNewLiquidity) {
		return nil, fmt.Errorf("%w: minted %s liquidity, minimum %s",
			ErrSlippageExceeded, newLiquidity.Dec(), req.MinNewLiquidity.Dec())
	}
	st.newLiquidity = newLiquidity.Clone()

	// Attribute what left the custodian to slots in order
	consumed := make(map[common.Address]*uint256.Int, len(order))
	for _, token := range order {
		spent, underflow := new(uint256.Int).SubOverflow(before[token], cc.Bank.BalanceOf(cc.StateDB, token, cc.Custodian))
		if underflow {
			spent.Clear()
		}
		consumed[token] = spent
	}
	actual := make([]*uint256.Int, len(st.tokens))
	for i, token := range st.tokens {
		take := st.amounts[i].Clone()
		if consumed[token].Lt(take) {
			take.Set(consumed[token])
		}
		consumed[token].Sub(consumed[token], take)
		actual[i] = take
	}
	return actual, nil
}

// stake stakes the new position. A failure is isolated, reported and
// swallowed: the deposit already succeeded.
func (m *Migrator) stake(cc *CallContext, st *migrationState, dst Adapter, params []byte) {
	err := m.bestEffort(cc.StateDB, func() error {
		return dst.Stake(cc, st.user, st.newLiquidity, params)
	})
	switch {
	case err == nil:
		st.staked = true
	case errors.Is(err, ErrUnsupported):
	default:
		m.metrics.stakeFailed()
		m.log.Warn("stake failed, position left unstaked",
			"user", st.user,
			"venue", dst.Address(),
			"liquidity", st.newLiquidity.Dec(),
			"err", err,
		)
		m.emit(cc.StateDB, EventStakeFailed, st.user, dst.Address(), st.newLiquidity.ToBig(), err.Error())
	}
}

// refund returns native value above the entry snapshot and every touched
// token's balance above its fee escrow to the user
func (m *Migrator) refund(cc *CallContext, st *migrationState) error {
	if err := m.denormalize(cc, st); err != nil {
		return err
	}
	if native := m.available(cc, st, NativeToken); !native.IsZero() {
		if err := sendValue(cc, NativeToken, st.user, native); err != nil {
			return fmt.Errorf("refunding native dust: %w", err)
		}
	}
	for _, token := range st.touched {
		dust := m.available(cc, st, token)
		if dust.IsZero() {
			continue
		}
		if err := sendValue(cc, token, st.user, dust); err != nil {
			return fmt.Errorf("refunding dust of %s: %w", token, err)
		}
	}
	return nil
}

// bestEffort runs fn inside its own snapshot. On error or panic the
// snapshot is reverted and the error returned for the caller to report.
func (m *Migrator) bestEffort(stateDB contract.StateDB, fn func() error) (err error) {
	snap := stateDB.Snapshot()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("venue panicked: %v", r)
		}
		if err != nil {
			stateDB.RevertToSnapshot(snap)
		}
	}()
	return fn()
}

// ClaimFees pays caller's pending fees of token. The ledger entry is zeroed
// before the transfer, so a reentrant claim finds nothing.
func (m *Migrator) ClaimFees(stateDB contract.StateDB, caller, token common.Address) (amount *uint256.Int, err error) {
	if err := m.acquire(); err != nil {
		return nil, err
	}
	defer m.release()

	snap := stateDB.Snapshot()
	defer func() {
		if err != nil {
			stateDB.RevertToSnapshot(snap)
			amount = nil
		}
	}()

	if m.settings.PendingFees(stateDB, caller, token).IsZero() {
		return nil, ErrNoPendingFees
	}
	amount = m.settings.takePendingFees(stateDB, caller, token)

	if err := sendValue(m.callContext(stateDB), token, caller, amount); err != nil {
		return nil, fmt.Errorf("paying pending fees of %s: %w", token, err)
	}
	if err := emitEvent(stateDB, m.addr, EventFeesClaimed, caller, token, amount.ToBig()); err != nil {
		return nil, err
	}
	m.metrics.feeClaimed()
	m.log.Info("pending fees claimed",
		"recipient", caller,
		"token", token,
		"amount", amount.Dec(),
	)
	return amount, nil
}

// sumByToken totals amounts per token, keeping first-seen order
func sumByToken(tokens []common.Address, amounts []*uint256.Int) (map[common.Address]*uint256.Int, []common.Address) {
	totals := make(map[common.Address]*uint256.Int, len(tokens))
	order := make([]common.Address, 0, len(tokens))
	for i, token := range tokens {
		if cur, ok := totals[token]; ok {
			cur.Add(cur, amounts[i])
			continue
		}
		totals[token] = amounts[i].Clone()
		order = append(order, token)
	}
	return totals, order
}
