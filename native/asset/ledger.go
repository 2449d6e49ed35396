// Package asset implements the fungible-asset ledger the vault lends out. It
// mirrors a token contract with storage registration and transfer-with-callback:
// the receiver is notified after the transfer and any amount it reports as
// unused is refunded to the sender.
package asset

import (
	"errors"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"intentvault/core/events"
	"intentvault/core/state"
	"intentvault/core/types"
)

var (
	errNilState = errors.New("asset: state not configured")

	ErrInvalidAmount       = errors.New("asset: amount must be positive")
	ErrInvalidAccount      = errors.New("asset: account id required")
	ErrNotRegistered       = errors.New("asset: account not registered")
	ErrInsufficientBalance = errors.New("asset: insufficient balance")
	ErrSelfTransfer        = errors.New("asset: sender and receiver must differ")
)

const (
	EventTypeRegistered = "asset.registered"
	EventTypeTransfer   = "asset.transfer"
	EventTypeRefund     = "asset.refund"
	EventTypeMint       = "asset.mint"
)

// Receiver is notified by TransferCall once the assets have moved. It returns
// the amount it did not use; an error makes the whole amount unused.
type Receiver interface {
	OnTransfer(sender string, amount *big.Int, msg string) (*big.Int, error)
}

// TransferCallResult reports how a transfer-with-callback settled.
type TransferCallResult struct {
	Used     *big.Int
	Refunded *big.Int
	// ReceiverErr is the error the receiver rejected the transfer with, if any.
	ReceiverErr error
}

type ledgerEvent struct {
	evt *types.Event
}

func (e ledgerEvent) EventType() string { return e.evt.Type }

func (e ledgerEvent) Event() *types.Event { return e.evt }

// Ledger tracks balances of a single asset identified by its account id.
type Ledger struct {
	id      string
	state   state.KV
	emitter events.Emitter
}

// NewLedger returns a ledger for the asset account id.
func NewLedger(id string) *Ledger {
	return &Ledger{id: strings.TrimSpace(id), emitter: events.NoopEmitter{}}
}

// ID returns the asset account id.
func (l *Ledger) ID() string { return l.id }

func (l *Ledger) SetState(s state.KV) { l.state = s }

func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.emitter = emitter
}

func (l *Ledger) key(kind, account string) []byte {
	return ethcrypto.Keccak256([]byte("asset/" + l.id + "/" + kind + "/" + account))
}

func (l *Ledger) supplyKey() []byte { return []byte("asset/" + l.id + "/supply") }

func (l *Ledger) emit(eventType string, attrs map[string]string) {
	l.emitter.Emit(ledgerEvent{evt: &types.Event{Type: eventType, Attributes: attrs}})
}

// Register opens storage for account. Registering twice is a no-op.
func (l *Ledger) Register(account string) error {
	if l.state == nil {
		return errNilState
	}
	account = strings.TrimSpace(account)
	if account == "" {
		return ErrInvalidAccount
	}
	registered, err := l.IsRegistered(account)
	if err != nil || registered {
		return err
	}
	if err := l.state.KVPut(l.key("registered", account), true); err != nil {
		return err
	}
	l.emit(EventTypeRegistered, map[string]string{"account": account})
	return nil
}

// IsRegistered reports whether account may hold the asset.
func (l *Ledger) IsRegistered(account string) (bool, error) {
	if l.state == nil {
		return false, errNilState
	}
	var registered bool
	if _, err := l.state.KVGet(l.key("registered", account), &registered); err != nil {
		return false, err
	}
	return registered, nil
}

// BalanceOf returns the balance of account.
func (l *Ledger) BalanceOf(account string) (*big.Int, error) {
	if l.state == nil {
		return nil, errNilState
	}
	balance := new(big.Int)
	if _, err := l.state.KVGet(l.key("balance", strings.TrimSpace(account)), balance); err != nil {
		return nil, err
	}
	return balance, nil
}

// TotalSupply returns the amount minted at genesis.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	if l.state == nil {
		return nil, errNilState
	}
	supply := new(big.Int)
	if _, err := l.state.KVGet(l.supplyKey(), supply); err != nil {
		return nil, err
	}
	return supply, nil
}

func (l *Ledger) putBalance(account string, balance *big.Int) error {
	return l.state.KVPut(l.key("balance", account), balance)
}

// Mint registers account and credits it. It seeds genesis balances.
func (l *Ledger) Mint(account string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := l.Register(account); err != nil {
		return err
	}
	account = strings.TrimSpace(account)
	balance, err := l.BalanceOf(account)
	if err != nil {
		return err
	}
	supply, err := l.TotalSupply()
	if err != nil {
		return err
	}
	if err := l.putBalance(account, balance.Add(balance, amount)); err != nil {
		return err
	}
	if err := l.state.KVPut(l.supplyKey(), supply.Add(supply, amount)); err != nil {
		return err
	}
	l.emit(EventTypeMint, map[string]string{"account": account, "amount": amount.String()})
	return nil
}

// Transfer moves amount between two registered accounts.
func (l *Ledger) Transfer(sender, receiver string, amount *big.Int, memo string) error {
	if l.state == nil {
		return errNilState
	}
	sender = strings.TrimSpace(sender)
	receiver = strings.TrimSpace(receiver)
	if sender == "" || receiver == "" {
		return ErrInvalidAccount
	}
	if sender == receiver {
		return ErrSelfTransfer
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	for _, account := range []string{sender, receiver} {
		registered, err := l.IsRegistered(account)
		if err != nil {
			return err
		}
		if !registered {
			return ErrNotRegistered
		}
	}
	from, err := l.BalanceOf(sender)
	if err != nil {
		return err
	}
	if from.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	to, err := l.BalanceOf(receiver)
	if err != nil {
		return err
	}
	if err := l.putBalance(sender, from.Sub(from, amount)); err != nil {
		return err
	}
	if err := l.putBalance(receiver, to.Add(to, amount)); err != nil {
		return err
	}
	l.emit(EventTypeTransfer, map[string]string{
		"old_owner_id": sender,
		"new_owner_id": receiver,
		"amount":       amount.String(),
		"memo":         memo,
	})
	return nil
}

// TransferCall transfers amount, notifies hook and refunds what the receiver
// reports as unused, bounded by what the receiver still holds.
func (l *Ledger) TransferCall(sender, receiver string, amount *big.Int, memo, msg string, hook Receiver) (*TransferCallResult, error) {
	if err := l.Transfer(sender, receiver, amount, memo); err != nil {
		return nil, err
	}
	result := &TransferCallResult{Used: new(big.Int).Set(amount), Refunded: new(big.Int)}
	if hook == nil {
		return result, nil
	}
	unused, err := hook.OnTransfer(sender, new(big.Int).Set(amount), msg)
	switch {
	case err != nil:
		result.ReceiverErr = err
		unused = new(big.Int).Set(amount)
	case unused == nil || unused.Sign() < 0:
		unused = new(big.Int)
	case unused.Cmp(amount) > 0:
		unused = new(big.Int).Set(amount)
	}
	if unused.Sign() == 0 {
		return result, nil
	}
	held, err := l.BalanceOf(receiver)
	if err != nil {
		return nil, err
	}
	refund := unused
	if held.Cmp(refund) < 0 {
		refund = held
	}
	if refund.Sign() == 0 {
		return result, nil
	}
	if err := l.Transfer(receiver, sender, refund, "refund"); err != nil {
		return nil, err
	}
	result.Refunded = new(big.Int).Set(refund)
	result.Used = new(big.Int).Sub(amount, refund)
	l.emit(EventTypeRefund, map[string]string{
		"sender":   sender,
		"receiver": receiver,
		"amount":   refund.String(),
	})
	return result, nil
}
