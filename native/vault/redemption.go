package vault

import "math/big"

func (e *Engine) queueLen(v *Vault) uint64 {
	if v.RedemptionTail <= v.RedemptionHead {
		return 0
	}
	return v.RedemptionTail - v.RedemptionHead
}

func (e *Engine) enqueue(v *Vault, entry *PendingRedemption) (uint64, error) {
	index := v.RedemptionTail
	if err := e.state.KVPut(redemptionKey(index), entry); err != nil {
		return 0, err
	}
	v.RedemptionTail++
	e.emit(newRedemptionQueuedEvent(index, entry))
	return index, nil
}

// processQueue pays queued redemptions in FIFO order until the head cannot be
// covered or maxSteps entries were handled. Entries whose owner no longer
// holds the queued shares are forfeited.
func (e *Engine) processQueue(v *Vault, maxSteps int) (int, error) {
	processed := 0
	for steps := 0; maxSteps == 0 || steps < maxSteps; steps++ {
		if e.queueLen(v) == 0 {
			break
		}
		index := v.RedemptionHead
		entry, ok, err := e.getRedemption(index)
		if err != nil {
			return processed, err
		}
		if !ok || entry.Shares.Sign() == 0 {
			v.RedemptionHead++
			if ok {
				e.emit(newRedemptionForfeitedEvent(index, entry, zero(), "zero_shares"))
			}
			continue
		}
		balance, err := e.balanceOf(entry.Owner)
		if err != nil {
			return processed, err
		}
		if balance.Cmp(entry.Shares) < 0 {
			v.RedemptionHead++
			e.emit(newRedemptionForfeitedEvent(index, entry, balance, "insufficient_balance"))
			continue
		}
		assets, err := e.assetsForShares(v, entry.Shares, RoundDown)
		if err != nil {
			return processed, err
		}
		entitlement, err := e.lenderEntitlement(v, entry.Shares)
		if err != nil {
			return processed, err
		}
		if !coversRedemption(v, assets, entitlement) {
			break
		}
		v.RedemptionHead++
		if entitlement.TotalValue.Sign() == 0 {
			e.emit(newRedemptionForfeitedEvent(index, entry, balance, "worthless"))
			continue
		}
		v.TotalDeposits = saturatingSub(v.TotalDeposits, entitlement.DepositValue)
		opID, err := e.executeWithdrawal(v, OpWithdraw, entry.Owner, entry.Receiver, entry.Shares, entitlement, entry.Memo)
		if err != nil {
			return processed, err
		}
		e.emit(newRedemptionProcessedEvent(index, entry, entitlement.TotalValue, opID))
		processed++
	}
	return processed, nil
}

// ProcessRedemptionQueue drains the queue as far as liquidity allows. Anyone
// may call it. maxSteps of zero uses the configured bound.
func (e *Engine) ProcessRedemptionQueue(maxSteps int) (int, error) {
	v, err := e.loadVault()
	if err != nil {
		return 0, err
	}
	if maxSteps <= 0 {
		maxSteps = e.maxQueueSteps
	}
	processed, err := e.processQueue(v, maxSteps)
	if err != nil {
		return processed, err
	}
	return processed, e.storeVault(v)
}

// ProcessNextRedemption handles at most the head entry.
func (e *Engine) ProcessNextRedemption() (bool, error) {
	processed, err := e.ProcessRedemptionQueue(1)
	return processed > 0, err
}

// PendingRedemptions lists queued entries from the head in FIFO order.
func (e *Engine) PendingRedemptions(offset, limit uint64) ([]QueuedRedemption, error) {
	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	if offset >= e.queueLen(v) {
		return nil, nil
	}
	var out []QueuedRedemption
	for index := v.RedemptionHead + offset; index < v.RedemptionTail; index++ {
		if limit > 0 && uint64(len(out)) >= limit {
			break
		}
		entry, ok, err := e.getRedemption(index)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, QueuedRedemption{Index: index, PendingRedemption: *entry})
	}
	return out, nil
}

// QueueLength returns the number of entries still waiting.
func (e *Engine) QueueLength() (uint64, error) {
	v, err := e.loadVault()
	if err != nil {
		return 0, err
	}
	return e.queueLen(v), nil
}

// QueueHead returns the absolute index of the oldest waiting entry.
func (e *Engine) QueueHead() (uint64, error) {
	v, err := e.loadVault()
	if err != nil {
		return 0, err
	}
	return v.RedemptionHead, nil
}

// QueuedShares totals the shares owner has waiting in the queue.
func (e *Engine) QueuedShares(owner string) (*big.Int, error) {
	pending, err := e.PendingRedemptions(0, 0)
	if err != nil {
		return nil, err
	}
	total := zero()
	for _, entry := range pending {
		if entry.Owner == owner {
			total = saturatingAdd(total, entry.Shares)
		}
	}
	return total, nil
}
