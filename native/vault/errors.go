package vault

import "errors"

var (
	errNilState       = errors.New("vault: state not configured")
	errNilDispatcher  = errors.New("vault: dispatcher not configured")
	errNotInitialised = errors.New("vault: not initialised")
)

// Rejected input.
var (
	ErrInvalidAmount        = errors.New("vault: amount must be positive")
	ErrInvalidAccount       = errors.New("vault: account id required")
	ErrInvalidMessage       = errors.New("vault: unrecognised transfer message")
	ErrInvalidDepositHash   = errors.New("vault: user deposit hash required")
	ErrDuplicateDepositHash = errors.New("vault: duplicate user deposit hash")
	ErrRepaymentTooLow      = errors.New("vault: repayment below principal plus minimum yield")
	ErrInvalidAddress       = errors.New("vault: invalid destination address")
	ErrUnauthorized         = errors.New("vault: caller not authorised")
	ErrAttachedDeposit      = errors.New("vault: requires attached deposit of exactly 1 unit")
	ErrIntentNotFound       = errors.New("vault: intent not found")
	ErrIntentNotBorrowed    = errors.New("vault: intent not in borrowed state")
	ErrSlippage             = errors.New("vault: deposit below min_shares")
	ErrZeroShares           = errors.New("vault: deposit too small to mint shares")
	ErrCodehashNotApproved  = errors.New("vault: codehash not approved")
	ErrNothingToWithdraw    = errors.New("vault: redemption value is zero")
	ErrBridgeNotConfigured  = errors.New("vault: bridge account not configured")
	ErrPaused               = errors.New("vault: paused")
	ErrUnknownOperation     = errors.New("vault: unknown or already resolved operation")
	ErrInvalidParams        = errors.New("vault: invalid parameters")
)

// Insufficient liquidity.
var (
	ErrInsufficientLiquidity = errors.New("vault: insufficient liquidity")
	ErrRedemptionsPending    = errors.New("vault: redemptions pending")
	ErrInsufficientShares    = errors.New("vault: insufficient share balance")
)

// Arithmetic.
var (
	ErrOverflow       = errors.New("vault: arithmetic overflow")
	ErrUnderflow      = errors.New("vault: arithmetic underflow")
	ErrDivisionByZero = errors.New("vault: division by zero")
)
