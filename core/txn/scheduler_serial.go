package txn

import "context"

// runSerial is the oracle scheduler: dequeue, execute inline, apply
// writes on COMPLETED_C, publish. No concurrency — every transaction
// runs to completion before the next is dequeued.
func (p *Processor) runSerial(ctx context.Context) {
	for {
		txn, ok := p.requests.PopWait(ctx)
		if !ok {
			return
		}
		p.executeReadPhase(txn)
		p.finalizeResult(txn)
	}
}
