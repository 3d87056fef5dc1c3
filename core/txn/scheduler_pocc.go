package txn

import "context"

// runParallelOCC drives P_OCC and its SILO alias. Like TWOPL2, each
// transaction runs end to end on its own worker; the scheduler
// goroutine only ferries requests out of the queue.
func (p *Processor) runParallelOCC(ctx context.Context) {
	for {
		txn, ok := p.requests.PopWait(ctx)
		if !ok {
			return
		}
		p.pool.Submit(func() { p.executeParallelOCC(txn) })
	}
}

// executeParallelOCC runs the full read/execute phase lock-free, then
// validates under the active-set snapshot with write locks held. A
// program abort is terminal, and any status other than COMPLETED_C or
// COMPLETED_A is fatal. Any write-lock refusal or failed
// validation clears buffered state and re-enqueues with a fresh
// unique_id; the no-wait lock manager never queues a refused request,
// so there is no promotion to wait for and retry is the only path
// forward.
func (p *Processor) executeParallelOCC(txn *Txn) {
	p.executeReadPhase(txn)
	if txn.Status() != StatusCompletedC {
		p.finalizeResult(txn)
		return
	}

	snapshot := p.activeSet.Snapshot()
	p.activeSet.Insert(txn)

	acquired := make([]Key, 0, len(txn.WriteSet))
	for k := range txn.WriteSet {
		if !p.lm.WriteLock(txn, k) {
			p.releaseKeys(txn, acquired)
			p.activeSet.Erase(txn)
			p.retry(txn, true)
			return
		}
		acquired = append(acquired, k)
	}

	if p.validateParallelOCC(txn, snapshot) {
		p.applyWrites(txn)
		txn.SetStatus(StatusCommitted)
		p.metrics.Committed.Add(context.Background(), 1)
		p.activeSet.Erase(txn)
		p.releaseKeys(txn, acquired)
		p.publish(txn)
		return
	}

	txn.resetBuffers()
	p.activeSet.Erase(txn)
	p.releaseKeys(txn, acquired)
	p.retry(txn, true)
}

// validateParallelOCC checks that no read-set key has been written
// since occ_start_time, and that no peer present in the active-set
// snapshot at the start of this transaction's critical section has an
// intersecting read/write pair with this transaction under the same
// data type. The intersection check is symmetric (txn reads what the
// peer writes, or txn writes what the peer reads): both txn and the
// peer may still be mid-validation with no committed timestamp yet to
// catch the conflict, so whichever of the two validates second must
// be the one to detect it here.
func (p *Processor) validateParallelOCC(txn *Txn, snapshot []*Txn) bool {
	for k := range txn.ReadSet {
		if p.store.Timestamp(k) > txn.OccStartTime {
			return false
		}
	}
	for _, peer := range snapshot {
		if peer == txn || peer.DataType != txn.DataType {
			continue
		}
		for k := range peer.WriteSet {
			if _, conflict := txn.ReadSet[k]; conflict {
				return false
			}
		}
		for k := range peer.ReadSet {
			if _, conflict := txn.WriteSet[k]; conflict {
				return false
			}
		}
	}
	return true
}
