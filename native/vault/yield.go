package vault

import "math/big"

var (
	basisPoints = big.NewInt(10_000)
	// minYieldBps is the premium every borrow must return on top of principal.
	minYieldBps = big.NewInt(100)
)

// minimumYield returns floor(amount * 1%).
func minimumYield(amount *big.Int) (*big.Int, error) {
	return MulDiv(amount, minYieldBps, basisPoints, RoundDown)
}

// MinimumRepayment returns the smallest repayment accepted for a borrow of
// amount.
func MinimumRepayment(amount *big.Int) (*big.Int, error) {
	yield, err := minimumYield(amount)
	if err != nil {
		return nil, err
	}
	return add128(amount, yield)
}

// forEachIntent visits intents in index order.
func (e *Engine) forEachIntent(v *Vault, fn func(*Intent) error) error {
	for index := uint64(0); index < v.NextIntentIndex; index++ {
		intent, ok, err := e.getIntent(index)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := fn(intent); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) totalBorrowed(v *Vault) (*big.Int, error) {
	total := zero()
	err := e.forEachIntent(v, func(intent *Intent) error {
		if intent.State != IntentBorrowed {
			return nil
		}
		next, err := add128(total, intent.BorrowAmount)
		if err != nil {
			return err
		}
		total = next
		return nil
	})
	return total, err
}

// expectedYield sums the minimum yield owed on every outstanding borrow.
func (e *Engine) expectedYield(v *Vault) (*big.Int, error) {
	total := zero()
	err := e.forEachIntent(v, func(intent *Intent) error {
		if intent.State != IntentBorrowed {
			return nil
		}
		yield, err := minimumYield(intent.BorrowAmount)
		if err != nil {
			return err
		}
		next, err := add128(total, yield)
		if err != nil {
			return err
		}
		total = next
		return nil
	})
	return total, err
}

// CalculateExpectedYield returns the principal lent out and the minimum yield
// still owed on it.
func (e *Engine) CalculateExpectedYield() (*big.Int, *big.Int, error) {
	v, err := e.loadVault()
	if err != nil {
		return nil, nil, err
	}
	borrowed, err := e.totalBorrowed(v)
	if err != nil {
		return nil, nil, err
	}
	yield, err := e.expectedYield(v)
	if err != nil {
		return nil, nil, err
	}
	return borrowed, yield, nil
}

// lenderEntitlement splits a redemption of shares into a pro-rata slice of
// principal and the premiums attributed from every repaid intent. A holder
// whose shares cover the whole supply at borrow time receives that intent's
// entire premium. Attributions never exceed what an intent has left unpaid.
func (e *Engine) lenderEntitlement(v *Vault, shares *big.Int) (*Entitlement, error) {
	supply, err := e.totalSupply()
	if err != nil {
		return nil, err
	}
	depositValue := zero()
	if supply.Sign() > 0 {
		depositValue, err = MulDiv(shares, v.TotalDeposits, supply, RoundDown)
		if err != nil {
			return nil, err
		}
	}
	premium := zero()
	var premiums []PremiumShare
	err = e.forEachIntent(v, func(intent *Intent) error {
		if intent.State != IntentReturned || intent.RepaymentAmount == nil {
			return nil
		}
		earned := saturatingSub(intent.RepaymentAmount, intent.BorrowAmount)
		remaining := saturatingSub(earned, clone(intent.PremiumPaid))
		if remaining.Sign() == 0 {
			return nil
		}
		share := remaining
		if shares.Cmp(intent.BorrowTotalSupply) < 0 {
			share, err = MulDiv(shares, earned, atLeastOne(intent.BorrowTotalSupply), RoundDown)
			if err != nil {
				return err
			}
			if share.Cmp(remaining) > 0 {
				share = remaining
			}
		}
		if share.Sign() == 0 {
			return nil
		}
		premium = saturatingAdd(premium, share)
		premiums = append(premiums, PremiumShare{Index: intent.Index, Amount: clone(share)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Entitlement{
		DepositValue: depositValue,
		PremiumValue: premium,
		TotalValue:   saturatingAdd(depositValue, premium),
		Premiums:     premiums,
	}, nil
}

// settlePremiums marks attributed premiums as paid, or releases them again
// when a payout is refunded.
func (e *Engine) settlePremiums(premiums []PremiumShare, paid bool) error {
	for _, p := range premiums {
		intent, ok, err := e.getIntent(p.Index)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		current := clone(intent.PremiumPaid)
		if paid {
			intent.PremiumPaid = saturatingAdd(current, p.Amount)
		} else {
			intent.PremiumPaid = saturatingSub(current, p.Amount)
		}
		if err := e.putIntent(intent); err != nil {
			return err
		}
	}
	return nil
}

// CalculateLenderEntitlement reports what redeeming shares would pay out.
func (e *Engine) CalculateLenderEntitlement(shares *big.Int) (*Entitlement, error) {
	if shares == nil || shares.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if err := checkU128(shares); err != nil {
		return nil, err
	}
	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	return e.lenderEntitlement(v, shares)
}
