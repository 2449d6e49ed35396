package vault

import (
	"math/big"
	"strings"
)

// Metadata describes the share token.
type Metadata struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// Metadata reports the share token metadata. Shares carry the asset's
// precision plus the bootstrap multiplier.
func (e *Engine) Metadata() (*Metadata, error) {
	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	return &Metadata{
		Name:     "Intent Vault Share",
		Symbol:   "iv" + strings.ToUpper(strings.SplitN(v.Asset, ".", 2)[0]),
		Decimals: v.AssetDecimals + v.ExtraDecimals,
	}, nil
}

func (e *Engine) totalSupply() (*big.Int, error) { return e.loadBigInt(shareSupplyKey) }

func (e *Engine) balanceOf(account string) (*big.Int, error) {
	return e.loadBigInt(shareBalanceKey(account))
}

// TotalSupply returns the number of outstanding shares.
func (e *Engine) TotalSupply() (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.totalSupply()
}

// BalanceOf returns the share balance of account.
func (e *Engine) BalanceOf(account string) (*big.Int, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.balanceOf(strings.TrimSpace(account))
}

func (e *Engine) mint(owner string, amount *big.Int, memo string) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	supply, err := e.totalSupply()
	if err != nil {
		return err
	}
	nextSupply, err := add128(supply, amount)
	if err != nil {
		return err
	}
	balance, err := e.balanceOf(owner)
	if err != nil {
		return err
	}
	nextBalance, err := add128(balance, amount)
	if err != nil {
		return err
	}
	if err := e.storeBigInt(shareSupplyKey, nextSupply); err != nil {
		return err
	}
	if err := e.storeBigInt(shareBalanceKey(owner), nextBalance); err != nil {
		return err
	}
	e.emit(newMintEvent(owner, amount, memo))
	return nil
}

func (e *Engine) burn(owner string, amount *big.Int, memo string) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := e.balanceOf(owner)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientShares
	}
	supply, err := e.totalSupply()
	if err != nil {
		return err
	}
	nextSupply, err := sub128(supply, amount)
	if err != nil {
		return err
	}
	if err := e.storeBigInt(shareBalanceKey(owner), new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	if err := e.storeBigInt(shareSupplyKey, nextSupply); err != nil {
		return err
	}
	e.emit(newBurnEvent(owner, amount, memo))
	return nil
}

// TransferShares moves shares from the caller to receiver. Like any fungible
// token transfer it requires exactly one unit of attached deposit.
func (e *Engine) TransferShares(receiver string, amount *big.Int, memo string) error {
	if err := e.requireOneUnit(); err != nil {
		return err
	}
	sender, err := e.predecessor()
	if err != nil {
		return err
	}
	receiver = strings.TrimSpace(receiver)
	if receiver == "" || receiver == sender {
		return ErrInvalidAccount
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := checkU128(amount); err != nil {
		return err
	}
	from, err := e.balanceOf(sender)
	if err != nil {
		return err
	}
	if from.Cmp(amount) < 0 {
		return ErrInsufficientShares
	}
	to, err := e.balanceOf(receiver)
	if err != nil {
		return err
	}
	nextTo, err := add128(to, amount)
	if err != nil {
		return err
	}
	if err := e.storeBigInt(shareBalanceKey(sender), new(big.Int).Sub(from, amount)); err != nil {
		return err
	}
	if err := e.storeBigInt(shareBalanceKey(receiver), nextTo); err != nil {
		return err
	}
	e.emit(newShareTransferEvent(sender, receiver, amount, memo))
	return nil
}
