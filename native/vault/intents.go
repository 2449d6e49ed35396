package vault

import (
	"math/big"
	"strings"

	nativecommon "intentvault/native/common"
)

// NewIntentRequest asks the vault to lend liquidity to the calling solver.
type NewIntentRequest struct {
	IntentData           string
	SolverDepositAddress string
	UserDepositHash      string
	// Amount defaults to the vault's configured borrow amount when nil.
	Amount *big.Int
}

// NewIntent reserves liquidity and dispatches the loan transfer. The Intent
// record is only created once the transfer settles successfully.
func (e *Engine) NewIntent(req NewIntentRequest) (uint64, error) {
	v, err := e.loadVault()
	if err != nil {
		return 0, err
	}
	if err := e.guard(v); err != nil {
		return 0, err
	}
	solver, err := e.predecessor()
	if err != nil {
		return 0, err
	}
	if _, ok, err := e.getAgent(solver); err != nil {
		return 0, err
	} else if !ok {
		return 0, ErrUnauthorized
	}
	hash := strings.TrimSpace(req.UserDepositHash)
	if hash == "" {
		return 0, ErrInvalidDepositHash
	}
	receiver := strings.TrimSpace(req.SolverDepositAddress)
	if receiver == "" {
		return 0, ErrInvalidAccount
	}
	amount := clone(v.DefaultBorrowAmount)
	if req.Amount != nil {
		amount = clone(req.Amount)
	}
	if amount.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	if err := checkU128(amount); err != nil {
		return 0, err
	}
	if _, exists, err := e.getDepositHash(hash); err != nil {
		return 0, err
	} else if exists {
		return 0, ErrDuplicateDepositHash
	}
	if e.queueLen(v) > 0 {
		return 0, ErrRedemptionsPending
	}
	if v.TotalAssets.Cmp(amount) < 0 {
		return 0, ErrInsufficientLiquidity
	}
	if err := e.consumeQuota(solver, amount); err != nil {
		return 0, err
	}
	supply, err := e.totalSupply()
	if err != nil {
		return 0, err
	}
	v.TotalAssets = new(big.Int).Sub(v.TotalAssets, amount)
	op := &Operation{
		Kind:              OpBorrow,
		Receiver:          receiver,
		Amount:            amount,
		Memo:              "intent borrow",
		Solver:            solver,
		IntentData:        req.IntentData,
		UserDepositHash:   hash,
		BorrowTotalSupply: supply,
	}
	if err := e.dispatch(v, op); err != nil {
		return 0, err
	}
	if err := e.state.KVPut(depositHashKey(hash), &depositHashRecord{Pending: true, OperationID: op.ID}); err != nil {
		return 0, err
	}
	e.emit(newIntentRequestedEvent(op))
	if err := e.storeVault(v); err != nil {
		return 0, err
	}
	return op.ID, nil
}

func (e *Engine) consumeQuota(solver string, amount *big.Int) error {
	if !e.quota.Enabled() {
		return nil
	}
	var prev nativecommon.QuotaNow
	if _, err := e.state.KVGet(quotaKey(solver), &prev); err != nil {
		return err
	}
	epoch := e.quota.EpochFor(e.call.Timestamp / 1_000_000_000)
	next, err := nativecommon.CheckQuota(e.quota, epoch, prev, 1, amount)
	if err != nil {
		return err
	}
	return e.state.KVPut(quotaKey(solver), &next)
}

// resolveBorrow records the Intent once the loan transfer succeeded, or
// returns the reserved liquidity and releases the deposit hash.
func (e *Engine) resolveBorrow(v *Vault, op *Operation, outcome Outcome) error {
	if outcome != OutcomeSuccess {
		assets, err := add128(v.TotalAssets, op.Amount)
		if err != nil {
			return err
		}
		v.TotalAssets = assets
		if err := e.state.KVDelete(depositHashKey(op.UserDepositHash)); err != nil {
			return err
		}
		e.emit(newIntentBorrowFailedEvent(op))
		_, err = e.processQueue(v, e.maxQueueSteps)
		return err
	}
	intent := &Intent{
		Index:             v.NextIntentIndex,
		Solver:            op.Solver,
		Created:           op.Created,
		State:             IntentBorrowed,
		IntentData:        op.IntentData,
		UserDepositHash:   op.UserDepositHash,
		BorrowAmount:      clone(op.Amount),
		BorrowTotalSupply: clone(op.BorrowTotalSupply),
	}
	v.NextIntentIndex++
	if err := e.putIntent(intent); err != nil {
		return err
	}
	if err := e.state.KVPut(depositHashKey(intent.UserDepositHash), &depositHashRecord{Index: intent.Index}); err != nil {
		return err
	}
	if err := e.appendSolverIntent(intent.Solver, intent.Index); err != nil {
		return err
	}
	e.emit(newIntentBorrowedEvent(intent))
	return nil
}

// handleRepayment settles a borrowed intent with assets the solver sent in.
func (e *Engine) handleRepayment(v *Vault, solver string, index uint64, amount *big.Int) error {
	intent, ok, err := e.getIntent(index)
	if err != nil {
		return err
	}
	if !ok {
		return ErrIntentNotFound
	}
	if intent.Solver != solver {
		return ErrUnauthorized
	}
	if intent.State != IntentBorrowed {
		return ErrIntentNotBorrowed
	}
	minimum, err := MinimumRepayment(intent.BorrowAmount)
	if err != nil {
		return err
	}
	if amount.Cmp(minimum) < 0 {
		return ErrRepaymentTooLow
	}
	assets, err := add128(v.TotalAssets, amount)
	if err != nil {
		return err
	}
	v.TotalAssets = assets
	intent.State = IntentReturned
	intent.RepaymentAmount = clone(amount)
	if err := e.putIntent(intent); err != nil {
		return err
	}
	e.emit(newIntentRepaidEvent(intent, new(big.Int).Sub(amount, intent.BorrowAmount)))
	_, err = e.processQueue(v, e.maxQueueSteps)
	return err
}

// GetIntent returns the intent stored at index.
func (e *Engine) GetIntent(index uint64) (*Intent, error) {
	if e.state == nil {
		return nil, errNilState
	}
	intent, ok, err := e.getIntent(index)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrIntentNotFound
	}
	return intent, nil
}

// IntentCount returns the number of intents ever recorded.
func (e *Engine) IntentCount() (uint64, error) {
	v, err := e.loadVault()
	if err != nil {
		return 0, err
	}
	return v.NextIntentIndex, nil
}

// Intents lists intents in index order starting at offset.
func (e *Engine) Intents(offset, limit uint64) ([]*Intent, error) {
	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	var out []*Intent
	for index := offset; index < v.NextIntentIndex; index++ {
		if limit > 0 && uint64(len(out)) >= limit {
			break
		}
		intent, ok, err := e.getIntent(index)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, intent)
		}
	}
	return out, nil
}

// IntentsBySolver returns every intent the solver opened.
func (e *Engine) IntentsBySolver(solver string) ([]*Intent, error) {
	if e.state == nil {
		return nil, errNilState
	}
	indices, err := e.solverIntents(strings.TrimSpace(solver))
	if err != nil {
		return nil, err
	}
	out := make([]*Intent, 0, len(indices))
	for _, index := range indices {
		intent, ok, err := e.getIntent(index)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, intent)
		}
	}
	return out, nil
}
