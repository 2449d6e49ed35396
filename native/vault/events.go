package vault

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"intentvault/core/types"
)

const (
	EventTypeDeposit             = "vault.deposit"
	EventTypeDonation            = "vault.donation"
	EventTypeSharesMint          = "vault.shares.mint"
	EventTypeSharesBurn          = "vault.shares.burn"
	EventTypeSharesTransfer      = "vault.shares.transfer"
	EventTypeIntentRequested     = "vault.intent.requested"
	EventTypeIntentBorrowed      = "vault.intent.borrowed"
	EventTypeIntentBorrowFailed  = "vault.intent.borrow_failed"
	EventTypeIntentRepaid        = "vault.intent.repaid"
	EventTypeRedemptionQueued    = "vault.redemption.queued"
	EventTypeRedemptionProcessed = "vault.redemption.processed"
	EventTypeRedemptionForfeited = "vault.redemption.forfeited"
	EventTypeWithdraw            = "vault.withdraw"
	EventTypeWithdrawFailed      = "vault.withdraw.failed"
	EventTypeCodehashApproved    = "vault.codehash.approved"
	EventTypeAgentRegistered     = "vault.agent.registered"
	EventTypeAgentRemoved        = "vault.agent.removed"
	EventTypeUpgraded            = "vault.upgraded"
	EventTypeOwnerChanged        = "vault.owner.changed"
	EventTypePauseChanged        = "vault.pause.changed"
)

type vaultEvent struct {
	evt *types.Event
}

func (e vaultEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e vaultEvent) Event() *types.Event { return e.evt }

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func indexString(v uint64) string { return strconv.FormatUint(v, 10) }

func newDepositEvent(sender, receiver string, assets, shares *big.Int, memo string) *types.Event {
	return &types.Event{Type: EventTypeDeposit, Attributes: map[string]string{
		"sender":   sender,
		"receiver": receiver,
		"assets":   amountString(assets),
		"shares":   amountString(shares),
		"memo":     memo,
	}}
}

func newDonationEvent(sender string, assets *big.Int) *types.Event {
	return &types.Event{Type: EventTypeDonation, Attributes: map[string]string{
		"sender": sender,
		"assets": amountString(assets),
	}}
}

// Share mint, burn and transfer payloads follow the fungible token event log
// layout so share movements can be indexed like any other token.
func newMintEvent(owner string, amount *big.Int, memo string) *types.Event {
	return &types.Event{Type: EventTypeSharesMint, Attributes: map[string]string{
		"owner_id": owner,
		"amount":   amountString(amount),
		"memo":     memo,
	}}
}

func newBurnEvent(owner string, amount *big.Int, memo string) *types.Event {
	return &types.Event{Type: EventTypeSharesBurn, Attributes: map[string]string{
		"owner_id": owner,
		"amount":   amountString(amount),
		"memo":     memo,
	}}
}

func newShareTransferEvent(from, to string, amount *big.Int, memo string) *types.Event {
	return &types.Event{Type: EventTypeSharesTransfer, Attributes: map[string]string{
		"old_owner_id": from,
		"new_owner_id": to,
		"amount":       amountString(amount),
		"memo":         memo,
	}}
}

func newIntentRequestedEvent(op *Operation) *types.Event {
	return &types.Event{Type: EventTypeIntentRequested, Attributes: map[string]string{
		"solver":            op.Solver,
		"user_deposit_hash": op.UserDepositHash,
		"amount":            amountString(op.Amount),
		"receiver":          op.Receiver,
		"operation_id":      indexString(op.ID),
	}}
}

func newIntentBorrowedEvent(intent *Intent) *types.Event {
	return &types.Event{Type: EventTypeIntentBorrowed, Attributes: map[string]string{
		"index":               indexString(intent.Index),
		"solver":              intent.Solver,
		"user_deposit_hash":   intent.UserDepositHash,
		"amount":              amountString(intent.BorrowAmount),
		"borrow_total_supply": amountString(intent.BorrowTotalSupply),
	}}
}

func newIntentBorrowFailedEvent(op *Operation) *types.Event {
	return &types.Event{Type: EventTypeIntentBorrowFailed, Attributes: map[string]string{
		"solver":            op.Solver,
		"user_deposit_hash": op.UserDepositHash,
		"amount":            amountString(op.Amount),
		"operation_id":      indexString(op.ID),
	}}
}

func newIntentRepaidEvent(intent *Intent, premium *big.Int) *types.Event {
	return &types.Event{Type: EventTypeIntentRepaid, Attributes: map[string]string{
		"index":   indexString(intent.Index),
		"solver":  intent.Solver,
		"amount":  amountString(intent.RepaymentAmount),
		"premium": amountString(premium),
	}}
}

func newRedemptionQueuedEvent(index uint64, entry *PendingRedemption) *types.Event {
	return &types.Event{Type: EventTypeRedemptionQueued, Attributes: map[string]string{
		"index":    indexString(index),
		"owner":    entry.Owner,
		"receiver": entry.Receiver,
		"shares":   amountString(entry.Shares),
	}}
}

func newRedemptionProcessedEvent(index uint64, entry *PendingRedemption, assets *big.Int, opID uint64) *types.Event {
	return &types.Event{Type: EventTypeRedemptionProcessed, Attributes: map[string]string{
		"index":        indexString(index),
		"owner":        entry.Owner,
		"receiver":     entry.Receiver,
		"shares":       amountString(entry.Shares),
		"assets":       amountString(assets),
		"operation_id": indexString(opID),
	}}
}

func newRedemptionForfeitedEvent(index uint64, entry *PendingRedemption, balance *big.Int, reason string) *types.Event {
	return &types.Event{Type: EventTypeRedemptionForfeited, Attributes: map[string]string{
		"index":   indexString(index),
		"owner":   entry.Owner,
		"shares":  amountString(entry.Shares),
		"balance": amountString(balance),
		"reason":  reason,
	}}
}

func newWithdrawEvent(eventType string, op *Operation) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"owner":         op.Owner,
		"receiver":      op.Receiver,
		"shares":        amountString(op.Shares),
		"assets":        amountString(op.Amount),
		"deposit_value": amountString(op.DepositValue),
		"memo":          op.Memo,
		"kind":          op.Kind.String(),
		"operation_id":  indexString(op.ID),
	}}
}

func newCodehashApprovedEvent(hash []byte) *types.Event {
	return &types.Event{Type: EventTypeCodehashApproved, Attributes: map[string]string{
		"codehash": hex.EncodeToString(hash),
	}}
}

func newAgentEvent(eventType string, agent *Agent) *types.Event {
	return &types.Event{Type: eventType, Attributes: map[string]string{
		"account":  agent.Account,
		"codehash": hex.EncodeToString(agent.CodeHash),
	}}
}

func newUpgradedEvent(hash []byte, version uint64) *types.Event {
	return &types.Event{Type: EventTypeUpgraded, Attributes: map[string]string{
		"codehash": hex.EncodeToString(hash),
		"version":  indexString(version),
	}}
}

func newOwnerChangedEvent(previous, next string) *types.Event {
	return &types.Event{Type: EventTypeOwnerChanged, Attributes: map[string]string{
		"previous": previous,
		"owner":    next,
	}}
}

func newPauseChangedEvent(paused bool) *types.Event {
	return &types.Event{Type: EventTypePauseChanged, Attributes: map[string]string{
		"paused": strconv.FormatBool(paused),
	}}
}
