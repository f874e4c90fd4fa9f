// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package vault is a multi-asset share vault venue. Depositors receive
// shares proportional to the reserves they add, may stake shares, and earn
// rewards credited by a funder. All state lives in the storage of the
// vault address.
package vault

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/tracing"
	"github.com/zeebo/blake3"

	"github.com/parsdao/rollover/contract"
	"github.com/parsdao/rollover/rollover"
)

var _ rollover.Adapter = (*Vault)(nil)

// Storage key prefixes for vault state
var (
	reservePrefix = []byte("vault/res")
	supplyPrefix  = []byte("vault/sup")
	sharesPrefix  = []byte("vault/shr")
	stakedPrefix  = []byte("vault/stk")
	rewardPrefix  = []byte("vault/rwd")
)

var (
	ErrNoAssets        = errors.New("vault: no assets")
	ErrDuplicateAsset  = errors.New("vault: duplicate asset")
	ErrUnexpectedToken = errors.New("vault: unexpected token")
	ErrZeroShares      = errors.New("vault: zero shares")
	ErrNoRewardToken   = errors.New("vault: no reward token")
)

// Options tunes the optional capabilities of a vault
type Options struct {
	// Staking enables Stake and Unstake
	Staking bool
	// RewardToken is paid out by ClaimRewards, zero disables rewards
	RewardToken common.Address
}

// Vault holds reserves of a fixed asset list. An asset may be
// rollover.NativeToken, in which case the vault holds native balance and
// accepts the wrapped-native token on deposit.
type Vault struct {
	addr   common.Address
	assets []common.Address
	opts   Options
}

// New creates a vault at addr over assets
func New(addr common.Address, assets []common.Address, opts Options) (*Vault, error) {
	if addr == (common.Address{}) {
		return nil, fmt.Errorf("%w: vault %s", rollover.ErrInvalidAddress, addr)
	}
	if len(assets) == 0 {
		return nil, ErrNoAssets
	}
	seen := make(map[common.Address]struct{}, len(assets))
	for _, asset := range assets {
		if _, dup := seen[asset]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAsset, asset)
		}
		seen[asset] = struct{}{}
	}
	return &Vault{
		addr:   addr,
		assets: append([]common.Address(nil), assets...),
		opts:   opts,
	}, nil
}

// makeStorageKey creates a storage key from prefix and identifiers
func makeStorageKey(prefix []byte, ids ...[]byte) common.Hash {
	h := blake3.New()
	h.Write(prefix)
	for _, id := range ids {
		h.Write(id)
	}
	var key common.Hash
	h.Digest().Read(key[:])
	return key
}

func (v *Vault) Address() common.Address { return v.addr }

// Assets returns the vault's asset list in withdrawal order
func (v *Vault) Assets() []common.Address {
	return append([]common.Address(nil), v.assets...)
}

// =========================================================================
// Views
// =========================================================================

// Reserve returns the vault's holdings of asset
func (v *Vault) Reserve(stateDB contract.StateDB, asset common.Address) *uint256.Int {
	return v.load(stateDB, makeStorageKey(reservePrefix, asset.Bytes()))
}

// TotalShares returns the shares outstanding, staked included
func (v *Vault) TotalShares(stateDB contract.StateDB) *uint256.Int {
	return v.load(stateDB, makeStorageKey(supplyPrefix))
}

// Shares returns owner's unstaked shares
func (v *Vault) Shares(stateDB contract.StateDB, owner common.Address) *uint256.Int {
	return v.load(stateDB, makeStorageKey(sharesPrefix, owner.Bytes()))
}

// Staked returns owner's staked shares
func (v *Vault) Staked(stateDB contract.StateDB, owner common.Address) *uint256.Int {
	return v.load(stateDB, makeStorageKey(stakedPrefix, owner.Bytes()))
}

// PendingRewards returns the rewards owner can claim
func (v *Vault) PendingRewards(stateDB contract.StateDB, owner common.Address) *uint256.Int {
	return v.load(stateDB, makeStorageKey(rewardPrefix, owner.Bytes()))
}

// =========================================================================
// Adapter
// =========================================================================

// Withdraw burns liquidity of owner's unstaked shares and pays the
// proportional reserves to the custodian
func (v *Vault) Withdraw(
	cc *rollover.CallContext,
	owner common.Address,
	liquidity *uint256.Int,
	params []byte,
	minAmounts []*uint256.Int,
) ([]common.Address, []*uint256.Int, error) {
	shares := v.Shares(cc.StateDB, owner)
	if liquidity.IsZero() || shares.Lt(liquidity) {
		return nil, nil, fmt.Errorf("%w: %s holds %s shares, withdrawing %s",
			rollover.ErrInsufficientLiquidity, owner, shares.Dec(), liquidity.Dec())
	}
	if len(minAmounts) != 0 && len(minAmounts) != len(v.assets) {
		return nil, nil, fmt.Errorf("%w: %d minimums for %d assets", rollover.ErrArrayLengthMismatch, len(minAmounts), len(v.assets))
	}

	supply := v.TotalShares(cc.StateDB)
	tokens := v.Assets()
	amounts := make([]*uint256.Int, len(v.assets))
	for i, asset := range v.assets {
		reserve := v.Reserve(cc.StateDB, asset)
		// assets = shares * reserve / totalShares
		amount, _ := new(uint256.Int).MulDivOverflow(liquidity, reserve, supply)
		if len(minAmounts) != 0 && amount.Lt(minAmounts[i]) {
			return nil, nil, fmt.Errorf("%w: %s of %s below minimum %s",
				rollover.ErrSlippageExceeded, amount.Dec(), asset, minAmounts[i].Dec())
		}
		if err := v.pay(cc, asset, cc.Custodian, amount); err != nil {
			return nil, nil, err
		}
		v.store(cc.StateDB, makeStorageKey(reservePrefix, asset.Bytes()), new(uint256.Int).Sub(reserve, amount))
		amounts[i] = amount
	}

	v.store(cc.StateDB, makeStorageKey(sharesPrefix, owner.Bytes()), new(uint256.Int).Sub(shares, liquidity))
	v.store(cc.StateDB, makeStorageKey(supplyPrefix), new(uint256.Int).Sub(supply, liquidity))
	return tokens, amounts, nil
}

// Deposit mints shares to owner for the offered amounts. Only the
// proportional part of each amount is pulled from the custodian; the first
// deposit sets the ratio and mints shares equal to the first amount.
func (v *Vault) Deposit(
	cc *rollover.CallContext,
	owner common.Address,
	tokens []common.Address,
	amounts []*uint256.Int,
	params []byte,
	minLiquidity *uint256.Int,
) (*uint256.Int, error) {
	if len(tokens) != len(v.assets) || len(amounts) != len(v.assets) {
		return nil, fmt.Errorf("%w: %d tokens and %d amounts for %d assets",
			rollover.ErrArrayLengthMismatch, len(tokens), len(amounts), len(v.assets))
	}
	for i, asset := range v.assets {
		if tokens[i] != asset && !(asset == rollover.NativeToken && tokens[i] == cc.WrappedNative) {
			return nil, fmt.Errorf("%w: slot %d is %s, expected %s", ErrUnexpectedToken, i, tokens[i], asset)
		}
	}

	supply := v.TotalShares(cc.StateDB)
	pulls := make([]*uint256.Int, len(v.assets))
	var shares *uint256.Int
	if supply.IsZero() {
		shares = amounts[0].Clone()
		for i := range amounts {
			pulls[i] = amounts[i].Clone()
		}
	} else {
		// shares = min(amount * totalShares / reserve)
		for i, asset := range v.assets {
			reserve := v.Reserve(cc.StateDB, asset)
			if reserve.IsZero() {
				continue
			}
			s, _ := new(uint256.Int).MulDivOverflow(amounts[i], supply, reserve)
			if shares == nil || s.Lt(shares) {
				shares = s
			}
		}
		if shares == nil {
			shares = uint256.NewInt(0)
		}
		for i, asset := range v.assets {
			pulls[i] = mulDivUp(shares, v.Reserve(cc.StateDB, asset), supply)
		}
	}
	if shares.IsZero() {
		return nil, ErrZeroShares
	}
	if shares.Lt(minLiquidity) {
		return nil, fmt.Errorf("%w: %s shares below minimum %s", rollover.ErrSlippageExceeded, shares.Dec(), minLiquidity.Dec())
	}

	for i, asset := range v.assets {
		if err := v.pull(cc, tokens[i], asset, pulls[i]); err != nil {
			return nil, err
		}
		reserve := v.Reserve(cc.StateDB, asset)
		v.store(cc.StateDB, makeStorageKey(reservePrefix, asset.Bytes()), new(uint256.Int).Add(reserve, pulls[i]))
	}

	v.store(cc.StateDB, makeStorageKey(sharesPrefix, owner.Bytes()), new(uint256.Int).Add(v.Shares(cc.StateDB, owner), shares))
	v.store(cc.StateDB, makeStorageKey(supplyPrefix), new(uint256.Int).Add(supply, shares))
	return shares, nil
}

func (v *Vault) Swap(*rollover.CallContext, common.Address, common.Address, *uint256.Int, *uint256.Int, []byte) (*uint256.Int, error) {
	return nil, rollover.ErrUnsupported
}

// Stake moves liquidity of owner's shares into the staked balance
func (v *Vault) Stake(cc *rollover.CallContext, owner common.Address, liquidity *uint256.Int, params []byte) error {
	if !v.opts.Staking {
		return rollover.ErrUnsupported
	}
	shares := v.Shares(cc.StateDB, owner)
	if shares.Lt(liquidity) {
		return fmt.Errorf("%w: %s holds %s unstaked shares, staking %s",
			rollover.ErrInsufficientLiquidity, owner, shares.Dec(), liquidity.Dec())
	}
	v.store(cc.StateDB, makeStorageKey(sharesPrefix, owner.Bytes()), new(uint256.Int).Sub(shares, liquidity))
	v.store(cc.StateDB, makeStorageKey(stakedPrefix, owner.Bytes()), new(uint256.Int).Add(v.Staked(cc.StateDB, owner), liquidity))
	return nil
}

// Unstake releases up to liquidity of owner's staked shares. Asking for
// more than is staked releases everything staked.
func (v *Vault) Unstake(cc *rollover.CallContext, owner common.Address, liquidity *uint256.Int, params []byte) error {
	if !v.opts.Staking {
		return rollover.ErrUnsupported
	}
	staked := v.Staked(cc.StateDB, owner)
	release := liquidity
	if staked.Lt(release) {
		release = staked
	}
	if release.IsZero() {
		return nil
	}
	v.store(cc.StateDB, makeStorageKey(stakedPrefix, owner.Bytes()), new(uint256.Int).Sub(staked, release))
	v.store(cc.StateDB, makeStorageKey(sharesPrefix, owner.Bytes()), new(uint256.Int).Add(v.Shares(cc.StateDB, owner), release))
	return nil
}

// CreditRewards moves amount of the reward token from funder into the vault
// and makes it claimable by owner
func (v *Vault) CreditRewards(stateDB contract.StateDB, bank rollover.Bank, funder, owner common.Address, amount *uint256.Int) error {
	if v.opts.RewardToken == (common.Address{}) {
		return ErrNoRewardToken
	}
	if err := bank.Transfer(stateDB, v.opts.RewardToken, funder, v.addr, amount); err != nil {
		return err
	}
	key := makeStorageKey(rewardPrefix, owner.Bytes())
	v.store(stateDB, key, new(uint256.Int).Add(v.load(stateDB, key), amount))
	return nil
}

// ClaimRewards pays owner's pending rewards to the custodian
func (v *Vault) ClaimRewards(cc *rollover.CallContext, owner common.Address) ([]common.Address, []*uint256.Int, error) {
	if v.opts.RewardToken == (common.Address{}) {
		return nil, nil, rollover.ErrUnsupported
	}
	key := makeStorageKey(rewardPrefix, owner.Bytes())
	pending := v.load(cc.StateDB, key)
	if pending.IsZero() {
		return nil, nil, nil
	}
	v.store(cc.StateDB, key, uint256.NewInt(0))
	if err := cc.Bank.Transfer(cc.StateDB, v.opts.RewardToken, v.addr, cc.Custodian, pending); err != nil {
		return nil, nil, err
	}
	return []common.Address{v.opts.RewardToken}, []*uint256.Int{pending}, nil
}

func (v *Vault) EnableILProtection(*rollover.CallContext, common.Address, []byte) error {
	return rollover.ErrUnsupported
}

func (v *Vault) DisableILProtection(*rollover.CallContext, common.Address, []byte) error {
	return rollover.ErrUnsupported
}

func (v *Vault) ClaimILCompensation(*rollover.CallContext, common.Address) ([]common.Address, []*uint256.Int, error) {
	return nil, nil, rollover.ErrUnsupported
}

// =========================================================================
// Helpers
// =========================================================================

// pay sends amount of asset from the vault to recipient
func (v *Vault) pay(cc *rollover.CallContext, asset, recipient common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if asset != rollover.NativeToken {
		return cc.Bank.Transfer(cc.StateDB, asset, v.addr, recipient, amount)
	}
	if cc.StateDB.GetBalance(v.addr).Lt(amount) {
		return fmt.Errorf("%w: vault native balance below %s", rollover.ErrInsufficientBalance, amount.Dec())
	}
	cc.StateDB.SubBalance(v.addr, amount, tracing.BalanceChangeTransfer)
	cc.StateDB.AddBalance(recipient, amount, tracing.BalanceChangeTransfer)
	return nil
}

// pull takes amount of token from the custodian through the allowance
// granted to the vault. Wrapped native deposited into a native slot is
// unwrapped into the vault's native balance.
func (v *Vault) pull(cc *rollover.CallContext, token, asset common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if err := cc.Bank.TransferFrom(cc.StateDB, token, v.addr, cc.Custodian, v.addr, amount); err != nil {
		return err
	}
	if asset == rollover.NativeToken {
		return cc.Bank.Unwrap(cc.StateDB, token, v.addr, amount)
	}
	return nil
}

func (v *Vault) load(stateDB contract.StateDB, key common.Hash) *uint256.Int {
	return contract.HashToUint256(stateDB.GetState(v.addr, key))
}

func (v *Vault) store(stateDB contract.StateDB, key common.Hash, val *uint256.Int) {
	stateDB.SetState(v.addr, key, contract.Uint256ToHash(val))
}

// mulDivUp returns ceil(x * y / d)
func mulDivUp(x, y, d *uint256.Int) *uint256.Int {
	z, _ := new(uint256.Int).MulDivOverflow(x, y, d)
	if !new(uint256.Int).MulMod(x, y, d).IsZero() {
		z.AddUint64(z, 1)
	}
	return z
}
