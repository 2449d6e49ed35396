package vault

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// U128 is an amount that accepts both quoted and bare JSON numbers.
type U128 struct {
	*big.Int
}

func (u *U128) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok || value.Sign() < 0 || value.Cmp(maxU128) > 0 {
		return fmt.Errorf("invalid u128 %q", raw)
	}
	u.Int = value
	return nil
}

func (u U128) MarshalJSON() ([]byte, error) {
	if u.Int == nil {
		return []byte(`"0"`), nil
	}
	return []byte(`"` + u.Int.String() + `"`), nil
}

// DepositMessage is the transfer message of a deposit or donation.
type DepositMessage struct {
	MinShares  *U128  `json:"min_shares,omitempty"`
	MaxShares  *U128  `json:"max_shares,omitempty"`
	ReceiverID string `json:"receiver_id,omitempty"`
	Memo       string `json:"memo,omitempty"`
	Donate     bool   `json:"donate,omitempty"`
}

// RepayMessage is the transfer message of a solver repayment.
type RepayMessage struct {
	IntentIndex *uint64 `json:"intent_index"`
}

func decodeStrict(msg string, out interface{}) error {
	decoder := json.NewDecoder(bytes.NewReader([]byte(msg)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return err
	}
	if decoder.More() {
		return fmt.Errorf("trailing data")
	}
	return nil
}

// parseTransferMessage recognises a repayment first and falls back to the
// deposit shape. An empty message is a plain deposit.
func parseTransferMessage(msg string) (*RepayMessage, *DepositMessage, error) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return nil, &DepositMessage{}, nil
	}
	var repay RepayMessage
	if err := decodeStrict(msg, &repay); err == nil && repay.IntentIndex != nil {
		return &repay, nil, nil
	}
	var deposit DepositMessage
	if err := decodeStrict(msg, &deposit); err != nil {
		return nil, nil, ErrInvalidMessage
	}
	return nil, &deposit, nil
}

// OnTransfer handles assets sent to the vault through a transfer with
// callback. Only the configured asset ledger may call it. The returned amount
// is refunded to sender by the ledger.
func (e *Engine) OnTransfer(sender string, amount *big.Int, msg string) (*big.Int, error) {
	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	if e.call.Predecessor != v.Asset {
		return nil, ErrUnauthorized
	}
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return nil, ErrInvalidAccount
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := checkU128(amount); err != nil {
		return nil, err
	}
	repay, deposit, err := parseTransferMessage(msg)
	if err != nil {
		return nil, err
	}
	unused := zero()
	switch {
	case repay != nil:
		err = e.handleRepayment(v, sender, *repay.IntentIndex, amount)
	case deposit.Donate:
		err = e.donate(v, sender, amount)
	default:
		if err = e.guard(v); err == nil {
			unused, err = e.deposit(v, sender, amount, deposit)
		}
	}
	if err != nil {
		return nil, err
	}
	if err := e.storeVault(v); err != nil {
		return nil, err
	}
	return unused, nil
}

func (e *Engine) donate(v *Vault, sender string, amount *big.Int) error {
	assets, err := add128(v.TotalAssets, amount)
	if err != nil {
		return err
	}
	v.TotalAssets = assets
	e.emit(newDonationEvent(sender, amount))
	_, err = e.processQueue(v, e.maxQueueSteps)
	return err
}

// deposit mints shares for amount. A max_shares cap consumes only the assets
// needed for the capped shares; the rest is returned as unused.
func (e *Engine) deposit(v *Vault, sender string, amount *big.Int, msg *DepositMessage) (*big.Int, error) {
	receiver := strings.TrimSpace(msg.ReceiverID)
	if receiver == "" {
		receiver = sender
	}
	shares, err := e.sharesForDeposit(v, amount)
	if err != nil {
		return nil, err
	}
	if msg.MinShares != nil && msg.MinShares.Int != nil && shares.Cmp(msg.MinShares.Int) < 0 {
		return nil, ErrSlippage
	}
	used := clone(amount)
	if msg.MaxShares != nil && msg.MaxShares.Int != nil && shares.Cmp(msg.MaxShares.Int) > 0 {
		shares = clone(msg.MaxShares.Int)
		if shares.Sign() > 0 {
			needed, err := e.assetsForDepositShares(v, shares)
			if err != nil {
				return nil, err
			}
			used = minInt(needed, amount)
		}
	}
	if shares.Sign() == 0 {
		return nil, ErrZeroShares
	}
	assets, err := add128(v.TotalAssets, used)
	if err != nil {
		return nil, err
	}
	deposits, err := add128(v.TotalDeposits, used)
	if err != nil {
		return nil, err
	}
	if err := e.mint(receiver, shares, msg.Memo); err != nil {
		return nil, err
	}
	v.TotalAssets = assets
	v.TotalDeposits = deposits
	e.emit(newDepositEvent(sender, receiver, used, shares, msg.Memo))
	if _, err := e.processQueue(v, e.maxQueueSteps); err != nil {
		return nil, err
	}
	return new(big.Int).Sub(amount, used), nil
}
