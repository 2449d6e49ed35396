package vault

import "math/big"

// Rounding selects the direction of integer division in MulDiv.
type Rounding uint8

const (
	RoundDown Rounding = iota
	RoundUp
)

// IntentState tracks a solver borrow through its lifecycle.
type IntentState uint8

const (
	IntentBorrowed IntentState = iota + 1
	IntentReturned
)

func (s IntentState) String() string {
	switch s {
	case IntentBorrowed:
		return "borrowed"
	case IntentReturned:
		return "returned"
	default:
		return "unknown"
	}
}

// Params seeds a vault at genesis.
type Params struct {
	Owner               string
	Account             string
	Asset               string
	BridgeAccount       string
	ExtraDecimals       uint8
	AssetDecimals       uint8
	DefaultBorrowAmount *big.Int
}

// Vault is the singleton accounting record. TotalAssets is the asset balance
// physically held; TotalDeposits the principal contributed by current lenders.
type Vault struct {
	Owner               string
	Account             string
	Asset               string
	BridgeAccount       string
	ExtraDecimals       uint8
	AssetDecimals       uint8
	DefaultBorrowAmount *big.Int
	TotalAssets         *big.Int
	TotalDeposits       *big.Int
	Paused              bool
	CodeHash            []byte
	CodeVersion         uint64
	NextIntentIndex     uint64
	RedemptionHead      uint64
	RedemptionTail      uint64
	NextOperationID     uint64
}

// Intent records one solver borrow. BorrowTotalSupply is the share supply at
// the moment of borrow and anchors premium attribution.
type Intent struct {
	Index             uint64
	Solver            string
	Created           uint64
	State             IntentState
	IntentData        string
	UserDepositHash   string
	BorrowAmount      *big.Int
	BorrowTotalSupply *big.Int
	RepaymentAmount   *big.Int `rlp:"nil"`
	// PremiumPaid is the part of the earned premium already paid to redeemers.
	PremiumPaid *big.Int `rlp:"nil"`
}

// PendingRedemption is a FIFO queue entry.
type PendingRedemption struct {
	Owner    string
	Receiver string
	Shares   *big.Int
	Memo     string
}

// Entitlement splits a redemption into principal and attributed premium.
// Premiums lists the per-intent amounts making up PremiumValue.
type Entitlement struct {
	DepositValue *big.Int
	PremiumValue *big.Int
	TotalValue   *big.Int
	Premiums     []PremiumShare
}

// PremiumShare is the premium of one returned intent attributed to a payout.
type PremiumShare struct {
	Index  uint64
	Amount *big.Int
}

// Agent is a registered solver.
type Agent struct {
	Account      string
	CodeHash     []byte
	RegisteredAt uint64
}

// OperationKind names the outbound asset transfer an Operation performs.
type OperationKind uint8

const (
	OpWithdraw OperationKind = iota + 1
	OpBorrow
	OpBridge
)

func (k OperationKind) String() string {
	switch k {
	case OpWithdraw:
		return "withdraw"
	case OpBorrow:
		return "borrow"
	case OpBridge:
		return "bridge"
	default:
		return "unknown"
	}
}

// Outcome reports how the asset ledger settled an Operation.
type Outcome uint8

const (
	OutcomeSuccess Outcome = iota + 1
	OutcomeFailure
)

func (o Outcome) String() string {
	if o == OutcomeSuccess {
		return "success"
	}
	return "failure"
}

// Operation is an outbound asset transfer awaiting settlement together with
// the payload its completion handler needs. It is persisted until resolved.
type Operation struct {
	ID       uint64
	Kind     OperationKind
	From     string
	Receiver string
	Amount   *big.Int
	Memo     string
	Created  uint64

	// withdraw and bridge
	Owner        string
	Shares       *big.Int
	DepositValue *big.Int

	// borrow
	Solver            string
	IntentData        string
	UserDepositHash   string
	BorrowTotalSupply *big.Int

	// premiums consumed by a withdraw or bridge payout
	Premiums []PremiumShare
}

// Call carries the caller context of one top-level invocation.
type Call struct {
	Predecessor     string
	AttachedDeposit *big.Int
	Timestamp       uint64
}

// Summary is a read-only view of the vault's accounting.
type Summary struct {
	Owner          string
	Asset          string
	ExtraDecimals  uint8
	TotalAssets    *big.Int
	TotalDeposits  *big.Int
	TotalSupply    *big.Int
	TotalBorrowed  *big.Int
	ExpectedYield  *big.Int
	IntentCount    uint64
	QueueHead      uint64
	QueueLength    uint64
	OpenOperations int
	Paused         bool
	CodeVersion    uint64
}

// QueuedRedemption is a PendingRedemption with its queue position.
type QueuedRedemption struct {
	Index uint64
	PendingRedemption
}

// RedeemResult describes how a redemption request was handled.
type RedeemResult struct {
	Queued      bool
	QueueIndex  uint64
	OperationID uint64
	Assets      *big.Int
	Shares      *big.Int
}

type depositHashRecord struct {
	Index       uint64
	Pending     bool
	OperationID uint64
}
