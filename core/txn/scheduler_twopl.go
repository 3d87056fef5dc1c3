package txn

import "context"

// runTwoPL is TWOPL: the same outer loop as LOCKING but over lock
// manager Variant C, with two differences. First, a transaction that
// acquires every lock it asked for is not dispatched until
// ReadyExecute also reports its wait counter at zero — Variant C's
// grant-ahead fast path can return true for a request while an
// earlier request belonging to the same transaction is still
// technically pending promotion. Second, a blocked multi-key
// transaction is re-enqueued without reassigning unique_id: priority
// must survive contention retries for deterministic commit ordering
// to hold.
func (p *Processor) runTwoPL(ctx context.Context) {
	for {
		progressed := false

		if txn, ok := p.requests.Pop(); ok {
			progressed = true
			p.acquireTwoPL(txn)
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
			if p.lm.ReadyExecute(txn) {
				p.dispatchExecute(txn)
			} else {
				p.readyTxns.Push(txn)
			}
		}

		if !progressed && !idleBackoff(ctx) {
			return
		}
	}
}

func (p *Processor) acquireTwoPL(txn *Txn) {
	blocked, multiKey := p.acquireOrRollback(txn)

	switch {
	case !blocked && p.lm.ReadyExecute(txn):
		p.dispatchExecute(txn)
	case !blocked:
		p.readyTxns.Push(txn)
	case multiKey:
		p.retry(txn, false)
	}
}
