package vault

import (
	"math/big"

	"intentvault/core/state"
)

type engineState = state.KV

func (e *Engine) loadVault() (*Vault, error) {
	if e.state == nil {
		return nil, errNilState
	}
	var v Vault
	ok, err := e.state.KVGet(vaultStateKey, &v)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNotInitialised
	}
	v.TotalAssets = clone(v.TotalAssets)
	v.TotalDeposits = clone(v.TotalDeposits)
	v.DefaultBorrowAmount = clone(v.DefaultBorrowAmount)
	return &v, nil
}

func (e *Engine) storeVault(v *Vault) error {
	return e.state.KVPut(vaultStateKey, v)
}

func (e *Engine) loadBigInt(key []byte) (*big.Int, error) {
	value := new(big.Int)
	if _, err := e.state.KVGet(key, value); err != nil {
		return nil, err
	}
	return value, nil
}

func (e *Engine) storeBigInt(key []byte, value *big.Int) error {
	if value == nil || value.Sign() == 0 {
		return e.state.KVDelete(key)
	}
	return e.state.KVPut(key, value)
}

func (e *Engine) getIntent(index uint64) (*Intent, bool, error) {
	var intent Intent
	ok, err := e.state.KVGet(intentKey(index), &intent)
	if err != nil || !ok {
		return nil, ok, err
	}
	intent.BorrowAmount = clone(intent.BorrowAmount)
	intent.BorrowTotalSupply = clone(intent.BorrowTotalSupply)
	intent.PremiumPaid = clone(intent.PremiumPaid)
	return &intent, true, nil
}

func (e *Engine) putIntent(intent *Intent) error {
	return e.state.KVPut(intentKey(intent.Index), intent)
}

func (e *Engine) solverIntents(solver string) ([]uint64, error) {
	var indices []uint64
	if _, err := e.state.KVGet(solverIndexKey(solver), &indices); err != nil {
		return nil, err
	}
	return indices, nil
}

func (e *Engine) appendSolverIntent(solver string, index uint64) error {
	indices, err := e.solverIntents(solver)
	if err != nil {
		return err
	}
	indices = append(indices, index)
	return e.state.KVPut(solverIndexKey(solver), indices)
}

func (e *Engine) getDepositHash(hash string) (*depositHashRecord, bool, error) {
	var record depositHashRecord
	ok, err := e.state.KVGet(depositHashKey(hash), &record)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &record, true, nil
}

func (e *Engine) getRedemption(index uint64) (*PendingRedemption, bool, error) {
	var entry PendingRedemption
	ok, err := e.state.KVGet(redemptionKey(index), &entry)
	if err != nil || !ok {
		return nil, ok, err
	}
	entry.Shares = clone(entry.Shares)
	return &entry, true, nil
}

func (e *Engine) getOperation(id uint64) (*Operation, bool, error) {
	var op Operation
	ok, err := e.state.KVGet(operationKey(id), &op)
	if err != nil || !ok {
		return nil, ok, err
	}
	op.Amount = clone(op.Amount)
	op.Shares = clone(op.Shares)
	op.DepositValue = clone(op.DepositValue)
	op.BorrowTotalSupply = clone(op.BorrowTotalSupply)
	return &op, true, nil
}

func (e *Engine) openOperationIDs() ([]uint64, error) {
	var ids []uint64
	if _, err := e.state.KVGet(openOperationsKey, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (e *Engine) putOpenOperationIDs(ids []uint64) error {
	if len(ids) == 0 {
		return e.state.KVDelete(openOperationsKey)
	}
	return e.state.KVPut(openOperationsKey, ids)
}

func (e *Engine) getAgent(account string) (*Agent, bool, error) {
	var agent Agent
	ok, err := e.state.KVGet(agentKey(account), &agent)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &agent, true, nil
}

func (e *Engine) agentAccounts() ([]string, error) {
	var accounts []string
	if _, err := e.state.KVGet(agentIndexKey, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}
