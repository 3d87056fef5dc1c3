package txn

import "context"

// runOCC drives single-thread-validated optimistic concurrency
// control. Workers run the full read-execute phase lock-free; the
// scheduler goroutine is the sole validator, so no two validations can
// interleave with each other's commit-time writes.
func (p *Processor) runOCC(ctx context.Context) {
	for {
		progressed := false

		if txn, ok := p.requests.Pop(); ok {
			progressed = true
			p.dispatchExecute(txn)
		}

		for {
			txn, ok := p.completed.Pop()
			if !ok {
				break
			}
			progressed = true
			p.validateOCC(txn)
		}

		if !progressed && !idleBackoff(ctx) {
			return
		}
	}
}

// validateOCC resolves one worker-completed transaction. A program
// abort is terminal regardless of validation. A program commit is
// accepted only if every key the transaction touched has not been
// written since occ_start_time; otherwise it is cleared, given a
// fresh unique_id, and re-enqueued.
func (p *Processor) validateOCC(txn *Txn) {
	if txn.Status() == StatusCompletedA {
		p.finalizeResult(txn)
		return
	}
	if p.occTimestampsValid(txn) {
		p.finalizeResult(txn)
		return
	}
	p.retry(txn, true)
}

func (p *Processor) occTimestampsValid(txn *Txn) bool {
	for k := range txn.ReadSet {
		if p.store.Timestamp(k) > txn.OccStartTime {
			return false
		}
	}
	for k := range txn.WriteSet {
		if p.store.Timestamp(k) > txn.OccStartTime {
			return false
		}
	}
	return true
}
