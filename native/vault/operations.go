package vault

// ResolveOperation is the completion callback of a dispatched transfer. It is
// private to the vault: only the vault account itself may invoke it, and each
// operation resolves exactly once.
func (e *Engine) ResolveOperation(id uint64, outcome Outcome) error {
	v, err := e.loadVault()
	if err != nil {
		return err
	}
	if e.call.Predecessor != v.Account {
		return ErrUnauthorized
	}
	op, ok, err := e.getOperation(id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownOperation
	}
	if err := e.state.KVDelete(operationKey(id)); err != nil {
		return err
	}
	open, err := e.openOperationIDs()
	if err != nil {
		return err
	}
	remaining := open[:0]
	for _, openID := range open {
		if openID != id {
			remaining = append(remaining, openID)
		}
	}
	if err := e.putOpenOperationIDs(remaining); err != nil {
		return err
	}
	switch op.Kind {
	case OpBorrow:
		err = e.resolveBorrow(v, op, outcome)
	case OpWithdraw, OpBridge:
		err = e.resolveWithdraw(v, op, outcome)
	default:
		err = ErrUnknownOperation
	}
	if err != nil {
		return err
	}
	return e.storeVault(v)
}

// OpenOperations returns every dispatched operation still awaiting its
// outcome, oldest first.
func (e *Engine) OpenOperations() ([]Operation, error) {
	if e.state == nil {
		return nil, errNilState
	}
	ids, err := e.openOperationIDs()
	if err != nil {
		return nil, err
	}
	out := make([]Operation, 0, len(ids))
	for _, id := range ids {
		op, ok, err := e.getOperation(id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, *op)
		}
	}
	return out, nil
}
