package vault

import (
	"math/big"
	"strings"
)

// executeWithdrawal applies the local effects of a payout before the asset
// transfer is dispatched: shares are burned, liquidity is reserved and the
// attributed premiums are marked paid. The dispatched operation carries what
// is needed to undo all of it on failure.
func (e *Engine) executeWithdrawal(v *Vault, kind OperationKind, owner, receiver string, shares *big.Int, entitlement *Entitlement, memo string) (uint64, error) {
	assets := entitlement.TotalValue
	balance, err := e.balanceOf(owner)
	if err != nil {
		return 0, err
	}
	if balance.Cmp(shares) < 0 {
		return 0, ErrInsufficientShares
	}
	if assets == nil || assets.Sign() <= 0 {
		return 0, ErrNothingToWithdraw
	}
	if assets.Cmp(v.TotalAssets) > 0 {
		return 0, ErrInsufficientLiquidity
	}
	if err := e.burn(owner, shares, memo); err != nil {
		return 0, err
	}
	if err := e.settlePremiums(entitlement.Premiums, true); err != nil {
		return 0, err
	}
	v.TotalAssets = new(big.Int).Sub(v.TotalAssets, assets)
	op := &Operation{
		Kind:         kind,
		Receiver:     receiver,
		Amount:       clone(assets),
		Memo:         memo,
		Owner:        owner,
		Shares:       clone(shares),
		DepositValue: clone(entitlement.DepositValue),
		Premiums:     entitlement.Premiums,
	}
	if err := e.dispatch(v, op); err != nil {
		return 0, err
	}
	return op.ID, nil
}

// resolveWithdraw finalises a payout. A failed transfer re-mints the burned
// shares and returns the reserved liquidity, principal and premiums to the
// pool.
func (e *Engine) resolveWithdraw(v *Vault, op *Operation, outcome Outcome) error {
	if outcome == OutcomeSuccess {
		e.emit(newWithdrawEvent(EventTypeWithdraw, op))
		return nil
	}
	if err := e.mint(op.Owner, op.Shares, "withdraw refund"); err != nil {
		return err
	}
	if err := e.settlePremiums(op.Premiums, false); err != nil {
		return err
	}
	assets, err := add128(v.TotalAssets, op.Amount)
	if err != nil {
		return err
	}
	deposits, err := add128(v.TotalDeposits, op.DepositValue)
	if err != nil {
		return err
	}
	v.TotalAssets = assets
	v.TotalDeposits = deposits
	e.emit(newWithdrawEvent(EventTypeWithdrawFailed, op))
	_, err = e.processQueue(v, e.maxQueueSteps)
	return err
}

// Withdraw redeems the shares needed to release assets for the caller.
func (e *Engine) Withdraw(assets *big.Int, receiver, memo string) (*RedeemResult, error) {
	if assets == nil || assets.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := checkU128(assets); err != nil {
		return nil, err
	}
	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	if err := e.guard(v); err != nil {
		return nil, err
	}
	shares, err := e.sharesForWithdraw(v, assets)
	if err != nil {
		return nil, err
	}
	return e.redeem(v, shares, receiver, memo)
}

// Redeem burns shares for their full entitlement, or queues the request when
// liquidity does not cover it.
func (e *Engine) Redeem(shares *big.Int, receiver, memo string) (*RedeemResult, error) {
	if shares == nil || shares.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := checkU128(shares); err != nil {
		return nil, err
	}
	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	if err := e.guard(v); err != nil {
		return nil, err
	}
	return e.redeem(v, shares, receiver, memo)
}

func (e *Engine) redeem(v *Vault, shares *big.Int, receiver, memo string) (*RedeemResult, error) {
	owner, err := e.predecessor()
	if err != nil {
		return nil, err
	}
	receiver = strings.TrimSpace(receiver)
	if receiver == "" {
		receiver = owner
	}
	balance, err := e.balanceOf(owner)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(shares) < 0 {
		return nil, ErrInsufficientShares
	}
	assets, err := e.assetsForShares(v, shares, RoundDown)
	if err != nil {
		return nil, err
	}
	entitlement, err := e.lenderEntitlement(v, shares)
	if err != nil {
		return nil, err
	}
	// Requests behind an existing queue wait their turn even when liquidity
	// would cover them.
	if e.queueLen(v) > 0 || !coversRedemption(v, assets, entitlement) {
		entry := &PendingRedemption{Owner: owner, Receiver: receiver, Shares: clone(shares), Memo: memo}
		index, err := e.enqueue(v, entry)
		if err != nil {
			return nil, err
		}
		if _, err := e.processQueue(v, e.maxQueueSteps); err != nil {
			return nil, err
		}
		if err := e.storeVault(v); err != nil {
			return nil, err
		}
		return &RedeemResult{Queued: true, QueueIndex: index, Shares: clone(shares), Assets: zero()}, nil
	}
	v.TotalDeposits = saturatingSub(v.TotalDeposits, entitlement.DepositValue)
	opID, err := e.executeWithdrawal(v, OpWithdraw, owner, receiver, shares, entitlement, memo)
	if err != nil {
		return nil, err
	}
	if err := e.storeVault(v); err != nil {
		return nil, err
	}
	return &RedeemResult{OperationID: opID, Shares: clone(shares), Assets: clone(entitlement.TotalValue)}, nil
}

// coversRedemption reports whether liquidity pays a redemption in full.
func coversRedemption(v *Vault, assets *big.Int, entitlement *Entitlement) bool {
	if assets.Sign() == 0 {
		return false
	}
	if entitlement.DepositValue.Cmp(v.TotalAssets) > 0 {
		return false
	}
	return entitlement.TotalValue.Cmp(v.TotalAssets) <= 0
}
