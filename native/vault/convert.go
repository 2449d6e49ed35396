package vault

import "math/big"

// economicValue is the denominator used to price deposits: principal plus
// capital currently lent out plus the yield it is expected to return.
func (e *Engine) economicValue(v *Vault) (*big.Int, error) {
	borrowed, err := e.totalBorrowed(v)
	if err != nil {
		return nil, err
	}
	yield, err := e.expectedYield(v)
	if err != nil {
		return nil, err
	}
	sum, err := add128(v.TotalDeposits, borrowed)
	if err != nil {
		return nil, err
	}
	return add128(sum, yield)
}

// sharesForDeposit prices a deposit of assets, rounding down.
func (e *Engine) sharesForDeposit(v *Vault, assets *big.Int) (*big.Int, error) {
	supply, err := e.totalSupply()
	if err != nil {
		return nil, err
	}
	if supply.Sign() == 0 {
		scale, err := pow10(v.ExtraDecimals)
		if err != nil {
			return nil, err
		}
		return mul128(assets, scale)
	}
	value, err := e.economicValue(v)
	if err != nil {
		return nil, err
	}
	return MulDiv(assets, supply, atLeastOne(value), RoundDown)
}

// assetsForDepositShares is the inverse of sharesForDeposit rounded up. It
// prices the part of a deposit consumed when minting is capped.
func (e *Engine) assetsForDepositShares(v *Vault, shares *big.Int) (*big.Int, error) {
	supply, err := e.totalSupply()
	if err != nil {
		return nil, err
	}
	if supply.Sign() == 0 {
		scale, err := pow10(v.ExtraDecimals)
		if err != nil {
			return nil, err
		}
		return MulDiv(shares, big.NewInt(1), scale, RoundUp)
	}
	value, err := e.economicValue(v)
	if err != nil {
		return nil, err
	}
	return MulDiv(shares, atLeastOne(value), supply, RoundUp)
}

// assetsForShares prices shares against immediately available liquidity only.
func (e *Engine) assetsForShares(v *Vault, shares *big.Int, rounding Rounding) (*big.Int, error) {
	supply, err := e.totalSupply()
	if err != nil {
		return nil, err
	}
	if supply.Sign() == 0 {
		scale, err := pow10(v.ExtraDecimals)
		if err != nil {
			return nil, err
		}
		return MulDiv(shares, big.NewInt(1), scale, rounding)
	}
	if v.TotalAssets.Sign() == 0 {
		return zero(), nil
	}
	return MulDiv(shares, v.TotalAssets, supply, rounding)
}

// sharesForWithdraw returns the shares that must be burned to release assets,
// rounding up against the full economic value of the pool.
func (e *Engine) sharesForWithdraw(v *Vault, assets *big.Int) (*big.Int, error) {
	supply, err := e.totalSupply()
	if err != nil {
		return nil, err
	}
	if supply.Sign() == 0 {
		return nil, ErrInsufficientShares
	}
	value, err := e.economicValue(v)
	if err != nil {
		return nil, err
	}
	return MulDiv(assets, supply, atLeastOne(value), RoundUp)
}

// SharesForDeposit reports the shares a deposit of assets would mint.
func (e *Engine) SharesForDeposit(assets *big.Int) (*big.Int, error) {
	if assets == nil || assets.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if err := checkU128(assets); err != nil {
		return nil, err
	}
	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	return e.sharesForDeposit(v, assets)
}

// AssetsForShares reports what shares are worth against current liquidity.
func (e *Engine) AssetsForShares(shares *big.Int, rounding Rounding) (*big.Int, error) {
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
	return e.assetsForShares(v, shares, rounding)
}

// SharesForWithdraw reports the shares burned to withdraw assets.
func (e *Engine) SharesForWithdraw(assets *big.Int) (*big.Int, error) {
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
	return e.sharesForWithdraw(v, assets)
}
