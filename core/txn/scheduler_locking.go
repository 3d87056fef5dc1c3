package txn

import "context"

// runLocking drives LOCKING and LOCKING_EXCLUSIVE_ONLY: static 2PL,
// all-or-nothing acquisition. Per request, attempt all read locks then
// all write locks in set order. If any lock is refused and the
// transaction touches more than one key, every lock acquired so far —
// up to and including the refused one — is released and the
// transaction is re-enqueued with a fresh unique_id. A single-key
// transaction that is refused is left to the lock manager: its wait
// counter was already incremented, and Release's promotion will push
// it onto readyTxns once it is truly clear. Fully-granted transactions
// go straight onto readyTxns for dispatch.
func (p *Processor) runLocking(ctx context.Context) {
	for {
		progressed := false

		if txn, ok := p.requests.Pop(); ok {
			progressed = true
			p.acquireAllOrNothing(txn)
		}

		for {
			txn, ok := p.completed.Pop()
			if !ok {
				break
			}
			progressed = true
			p.decideOutcome(txn)
			p.releaseAll(txn)
			p.publish(txn)
		}

		for {
			txn, ok := p.readyTxns.Pop()
			if !ok {
				break
			}
			progressed = true
			p.dispatchExecute(txn)
		}

		if !progressed && !idleBackoff(ctx) {
			return
		}
	}
}

// acquireAllOrNothing implements the per-request acquisition loop
// shared by LOCKING and LOCKING_EXCLUSIVE_ONLY (they differ only in
// which LockManager variant p.lm holds).
func (p *Processor) acquireAllOrNothing(txn *Txn) {
	blocked, multiKey := p.acquireOrRollback(txn)
	if !blocked {
		p.readyTxns.Push(txn)
	} else if multiKey {
		p.retry(txn, true)
	}
	// Single-key, blocked: nothing more to do here — the lock manager
	// already holds this transaction's wait count and will push it
	// onto readyTxns itself once Release promotes it.
}

// acquireOrRollback attempts every read lock then every write lock in
// set order, all-or-nothing: the first refusal rolls back every lock
// already acquired this attempt, including the refused request itself,
// via Release. Shared by LOCKING/LOCKING_EXCLUSIVE_ONLY
// (acquireAllOrNothing) and TWOPL (acquireTwoPL), which differ only in
// what they do once acquisition finishes.
func (p *Processor) acquireOrRollback(txn *Txn) (blocked, multiKey bool) {
	multiKey = len(txn.ReadSet)+len(txn.WriteSet) > 1
	var acquired []Key

	for k := range txn.ReadSet {
		if p.lm.ReadLock(txn, k) {
			acquired = append(acquired, k)
			continue
		}
		blocked = true
		if multiKey {
			p.releaseKeys(txn, acquired)
			p.lm.Release(txn, k)
		}
		return blocked, multiKey
	}

	for k := range txn.WriteSet {
		if p.lm.WriteLock(txn, k) {
			acquired = append(acquired, k)
			continue
		}
		blocked = true
		if multiKey {
			p.releaseKeys(txn, acquired)
			p.lm.Release(txn, k)
		}
		return blocked, multiKey
	}

	return blocked, multiKey
}

func (p *Processor) releaseKeys(txn *Txn, keys []Key) {
	for _, k := range keys {
		p.lm.Release(txn, k)
	}
}

func (p *Processor) releaseAll(txn *Txn) {
	for k := range txn.ReadSet {
		p.lm.Release(txn, k)
	}
	for k := range txn.WriteSet {
		p.lm.Release(txn, k)
	}
}

// dispatchExecute submits txn's execute phase to the worker pool.
func (p *Processor) dispatchExecute(txn *Txn) {
	p.pool.Submit(func() {
		p.executeReadPhase(txn)
		p.completed.Push(txn)
	})
}
