// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rollover

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	"github.com/stretchr/testify/require"

	"github.com/parsdao/rollover/contract"
	"github.com/parsdao/rollover/contract/mockstate"
	"github.com/parsdao/rollover/token"
)

var (
	testAdmin     = common.HexToAddress("0xAD00000000000000000000000000000000000001")
	testRecipient = common.HexToAddress("0xFEE0000000000000000000000000000000000001")
	testUser      = common.HexToAddress("0x0500000000000000000000000000000000000001")
	testWrapped   = common.HexToAddress("0x0E00000000000000000000000000000000000001")
	testTokenA    = common.HexToAddress("0x0A00000000000000000000000000000000000001")
	testTokenB    = common.HexToAddress("0x0B00000000000000000000000000000000000001")
	testReward    = common.HexToAddress("0x0C00000000000000000000000000000000000001")
	testSource    = common.HexToAddress("0x5000000000000000000000000000000000000001")
	testDest      = common.HexToAddress("0xD000000000000000000000000000000000000001")

	markerSlot = common.HexToHash("0x01")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func us(vals ...uint64) []*uint256.Int {
	out := make([]*uint256.Int, len(vals))
	for i, v := range vals {
		out[i] = uint256.NewInt(v)
	}
	return out
}

// mockVenue is a scriptable adapter. Withdraw pays withdrawAmounts from the
// venue's own holdings to the custodian, Deposit pulls what it was offered
// minus keep through the custodian's allowance.
type mockVenue struct {
	addr common.Address

	withdrawTokens  []common.Address
	withdrawAmounts []*uint256.Int
	reported        []*uint256.Int
	withdrawErr     error

	keep       []*uint256.Int
	minted     *uint256.Int
	depositErr error
	onDeposit  func(cc *CallContext) error

	rewardTokens  []common.Address
	rewardAmounts []*uint256.Int
	rewardPaid    []*uint256.Int // paid instead of rewardAmounts when set
	rewardErr     error

	ilTokens  []common.Address
	ilAmounts []*uint256.Int
	ilErr     error

	stakeErr   error
	stakePanic bool
	unstakeErr error

	deposited   []*uint256.Int
	depositedTo []common.Address
	staked      *uint256.Int
}

func newMockVenue(addr common.Address) *mockVenue {
	return &mockVenue{
		addr:       addr,
		rewardErr:  ErrUnsupported,
		ilErr:      ErrUnsupported,
		unstakeErr: ErrUnsupported,
	}
}

func (v *mockVenue) Address() common.Address { return v.addr }

func (v *mockVenue) Withdraw(cc *CallContext, owner common.Address, liquidity *uint256.Int, params []byte, minAmounts []*uint256.Int) ([]common.Address, []*uint256.Int, error) {
	if v.withdrawErr != nil {
		return nil, nil, v.withdrawErr
	}
	for i, amount := range v.withdrawAmounts {
		if err := v.pay(cc, v.withdrawTokens[i], amount); err != nil {
			return nil, nil, err
		}
	}
	if v.reported != nil {
		return v.withdrawTokens, v.reported, nil
	}
	return v.withdrawTokens, v.withdrawAmounts, nil
}

func (v *mockVenue) Deposit(cc *CallContext, owner common.Address, tokens []common.Address, amounts []*uint256.Int, params []byte, minLiquidity *uint256.Int) (*uint256.Int, error) {
	if v.depositErr != nil {
		return nil, v.depositErr
	}
	if v.onDeposit != nil {
		if err := v.onDeposit(cc); err != nil {
			return nil, err
		}
	}
	v.depositedTo = tokens
	v.deposited = amounts
	for i, token := range tokens {
		pull := amounts[i].Clone()
		if v.keep != nil {
			pull.Sub(pull, v.keep[i])
		}
		if err := cc.Bank.TransferFrom(cc.StateDB, token, v.addr, cc.Custodian, v.addr, pull); err != nil {
			return nil, err
		}
	}
	if v.minted != nil {
		return v.minted, nil
	}
	if len(amounts) == 0 {
		return u(0), nil
	}
	return amounts[0].Clone(), nil
}

func (v *mockVenue) Swap(*CallContext, common.Address, common.Address, *uint256.Int, *uint256.Int, []byte) (*uint256.Int, error) {
	return nil, ErrUnsupported
}

func (v *mockVenue) Stake(cc *CallContext, owner common.Address, liquidity *uint256.Int, params []byte) error {
	cc.StateDB.SetState(v.addr, markerSlot, common.BytesToHash([]byte{1}))
	if v.stakePanic {
		panic("stake exploded")
	}
	if v.stakeErr != nil {
		return v.stakeErr
	}
	v.staked = liquidity.Clone()
	return nil
}

func (v *mockVenue) Unstake(*CallContext, common.Address, *uint256.Int, []byte) error {
	return v.unstakeErr
}

func (v *mockVenue) ClaimRewards(cc *CallContext, owner common.Address) ([]common.Address, []*uint256.Int, error) {
	if v.rewardErr != nil {
		return nil, nil, v.rewardErr
	}
	paid := v.rewardAmounts
	if v.rewardPaid != nil {
		paid = v.rewardPaid
	}
	for i, amount := range paid {
		if i < len(v.rewardTokens) {
			if err := v.pay(cc, v.rewardTokens[i], amount); err != nil {
				return nil, nil, err
			}
		}
	}
	return v.rewardTokens, v.rewardAmounts, nil
}

func (v *mockVenue) EnableILProtection(*CallContext, common.Address, []byte) error {
	return ErrUnsupported
}

func (v *mockVenue) DisableILProtection(*CallContext, common.Address, []byte) error {
	return ErrUnsupported
}

func (v *mockVenue) ClaimILCompensation(cc *CallContext, owner common.Address) ([]common.Address, []*uint256.Int, error) {
	if v.ilErr != nil {
		return nil, nil, v.ilErr
	}
	for i, amount := range v.ilAmounts {
		if err := v.pay(cc, v.ilTokens[i], amount); err != nil {
			return nil, nil, err
		}
	}
	return v.ilTokens, v.ilAmounts, nil
}

func (v *mockVenue) pay(cc *CallContext, token common.Address, amount *uint256.Int) error {
	if token != NativeToken {
		return cc.Bank.Transfer(cc.StateDB, token, v.addr, cc.Custodian, amount)
	}
	cc.StateDB.SubBalance(v.addr, amount, tracing.BalanceChangeTransfer)
	cc.StateDB.AddBalance(cc.Custodian, amount, tracing.BalanceChangeTransfer)
	return nil
}

// blockingBank refuses transfers to one recipient
type blockingBank struct {
	*token.Ledger
	blocked common.Address
}

func (b *blockingBank) Transfer(stateDB contract.StateDB, tok, from, to common.Address, amount *uint256.Int) error {
	if to == b.blocked {
		return token.ErrInvalidToken
	}
	return b.Ledger.Transfer(stateDB, tok, from, to, amount)
}

type harness struct {
	t      *testing.T
	state  *mockstate.StateDB
	ledger *token.Ledger
	bank   Bank
	venues *Venues
	m      *Migrator
	src    *mockVenue
	dst    *mockVenue
}

func newHarness(t *testing.T, feeBps uint64, opts ...Option) *harness {
	return newHarnessWithBank(t, feeBps, nil, opts...)
}

func newHarnessWithBank(t *testing.T, feeBps uint64, wrap func(*token.Ledger) Bank, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		state:  mockstate.New(),
		ledger: token.NewLedger(),
		venues: NewVenues(),
		src:    newMockVenue(testSource),
		dst:    newMockVenue(testDest),
	}
	h.bank = h.ledger
	if wrap != nil {
		h.bank = wrap(h.ledger)
	}
	h.m = NewMigrator(ContractAddress, h.bank, h.venues, opts...)

	require.NoError(t, h.venues.Register(h.src))
	require.NoError(t, h.venues.Register(h.dst))

	settings := h.m.Settings()
	require.NoError(t, settings.Initialize(h.state, testAdmin, feeBps, testRecipient, testWrapped))
	require.NoError(t, settings.AllowAdapter(h.state, testAdmin, testSource))
	require.NoError(t, settings.AllowAdapter(h.state, testAdmin, testDest))
	return h
}

// fundWithdrawal scripts the source venue to pay amounts of tokens
func (h *harness) fundWithdrawal(tokens []common.Address, amounts []*uint256.Int) {
	h.t.Helper()
	h.src.withdrawTokens = tokens
	h.src.withdrawAmounts = amounts
	h.fund(testSource, tokens, amounts)
}

func (h *harness) fund(holder common.Address, tokens []common.Address, amounts []*uint256.Int) {
	h.t.Helper()
	for i, tok := range tokens {
		if tok == NativeToken {
			h.state.SetBalance(holder, new(uint256.Int).Add(h.state.GetBalance(holder), amounts[i]))
			continue
		}
		require.NoError(h.t, h.ledger.Mint(h.state, tok, holder, amounts[i]))
	}
}

func (h *harness) request(liquidity uint64, mins []*uint256.Int, minNew uint64) *MigrationRequest {
	return &MigrationRequest{
		SourceVenue:        testSource,
		DestVenue:          testDest,
		Liquidity:          u(liquidity),
		MinWithdrawAmounts: mins,
		MinNewLiquidity:    u(minNew),
	}
}

func (h *harness) balance(tok, holder common.Address) *uint256.Int {
	if tok == NativeToken {
		return h.state.GetBalance(holder)
	}
	return h.ledger.BalanceOf(h.state, tok, holder)
}
