package txn

import (
	"context"
	"sort"
)

// runTwoPL2 implements the growing-phase, sorted-acquisition variant:
// every transaction runs on its own worker rather than being staged
// through the scheduler's queues. The scheduler's only job is handing
// each request to the pool; deadlock freedom comes entirely from the
// worker acquiring its merged key set in sorted order.
func (p *Processor) runTwoPL2(ctx context.Context) {
	for {
		txn, ok := p.requests.PopWait(ctx)
		if !ok {
			return
		}
		p.pool.Submit(func() { p.executeTwoPL2(txn) })
	}
}

// executeTwoPL2 runs one transaction's full lifecycle on a worker:
// sorted-order blocking acquisition, pre-read, program execution,
// commit decision, lock release, publication.
func (p *Processor) executeTwoPL2(txn *Txn) {
	keys := txn.keys()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, k := range keys {
		if _, isWrite := txn.WriteSet[k]; isWrite {
			p.twopl2Locks.BlockingWriteLock(txn, k)
		} else {
			p.twopl2Locks.BlockingReadLock(txn, k)
		}
	}

	txn.OccStartTime = nowSeconds()
	for _, k := range keys {
		if v, ok := p.store.Read(k); ok {
			txn.bufferRead(k, v)
		}
	}
	txn.Program.Run(txn)

	p.decideOutcome(txn)
	for _, k := range keys {
		p.twopl2Locks.Release(txn, k)
	}
	p.publish(txn)
}
