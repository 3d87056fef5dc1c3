package txn

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	commonutils "github.com/concurrency-lab/txnbench/internal/common_utils"
)

// Mode selects a concurrency-control discipline at construction time.
type Mode int

const (
	SERIAL Mode = iota
	LOCKING_EXCLUSIVE_ONLY
	LOCKING
	TWOPL
	TWOPL2
	OCC
	P_OCC
	MVCC
	SILO
)

func (m Mode) String() string {
	switch m {
	case SERIAL:
		return "SERIAL"
	case LOCKING_EXCLUSIVE_ONLY:
		return "LOCKING_EXCLUSIVE_ONLY"
	case LOCKING:
		return "LOCKING"
	case TWOPL:
		return "TWOPL"
	case TWOPL2:
		return "TWOPL2"
	case OCC:
		return "OCC"
	case P_OCC:
		return "P_OCC"
	case MVCC:
		return "MVCC"
	case SILO:
		return "SILO"
	default:
		return "UNKNOWN"
	}
}

// Processor is the transaction processor: it ingests transaction
// requests, schedules them under the selected CC discipline, executes
// their program logic against the store, and returns committed or
// aborted results. One Processor owns one scheduler goroutine and one
// fixed worker pool; Stop tears down the pool, and the scheduler
// goroutine exits once the context passed to Run is done.
type Processor struct {
	mode  Mode
	store Store
	pool  *ThreadPool

	requests  *Queue[*Txn]
	completed *Queue[*Txn]
	results   *Queue[*Txn]
	readyTxns *Queue[*Txn]

	lm          LockManager
	twopl2Locks *noWaitLockManager
	activeSet   *ActiveSet

	nextID atomic.Int64

	log     *zap.Logger
	metrics *Metrics
	runID   uuid.UUID

	stopCh chan struct{}
}

// defaultWorkerCount matches the reference configuration.
const defaultWorkerCount = 8

// NewProcessor builds a Processor in the given mode. log and metrics
// may be nil, in which case a no-op zap.Logger and a no-op Metrics are
// used so scheduler code never needs a nil check.
func NewProcessor(mode Mode, store Store, workerCount int, log *zap.Logger, metrics *Metrics) *Processor {
	if workerCount <= 0 {
		workerCount = defaultWorkerCount
	}
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = noopMetrics()
	}

	p := &Processor{
		mode:      mode,
		store:     store,
		pool:      NewThreadPool(workerCount),
		requests:  NewQueue[*Txn](),
		completed: NewQueue[*Txn](),
		results:   NewQueue[*Txn](),
		readyTxns: NewQueue[*Txn](),
		activeSet: NewActiveSet(),
		log:       log.With(zap.String("component", "txn_processor"), zap.String("mode", mode.String())),
		metrics:   metrics,
		runID:     uuid.New(),
		stopCh:    make(chan struct{}),
	}

	switch mode {
	case LOCKING_EXCLUSIVE_ONLY:
		p.lm = NewExclusiveLockManager(p.readyTxns)
	case LOCKING:
		p.lm = NewSharedExclusiveLockManager(p.readyTxns)
	case TWOPL:
		p.lm = NewPriorityLockManager(p.readyTxns)
	case TWOPL2:
		p.twopl2Locks = NewNoWaitLockManager(p.readyTxns)
	case P_OCC, SILO:
		p.lm = NewNoWaitLockManager(p.readyTxns)
	}

	p.log.Info("processor constructed", zap.String("run_id", p.runID.String()), zap.Int("workers", workerCount))
	return p
}

// NewTxnRequest assigns txn a fresh, monotonically increasing unique_id
// and enqueues it for scheduling.
func (p *Processor) NewTxnRequest(txn *Txn) {
	txn.ID = p.nextID.Add(1)
	txn.SetStatus(StatusIncomplete)
	txn.submittedAt = time.Now()
	p.metrics.Submitted.Add(context.Background(), 1)
	p.requests.Push(txn)
}

// GetTxnResult blocks until a transaction result is available or ctx
// is done.
func (p *Processor) GetTxnResult(ctx context.Context) (*Txn, error) {
	txn, ok := p.results.PopWait(ctx)
	if !ok {
		return nil, ctx.Err()
	}
	return txn, nil
}

// Run drives the mode's dispatch loop until ctx is done. It is the Go
// equivalent of the source's dedicated scheduler thread looping on
// tp_.Active(); ctx cancellation replaces the pool-quiescence check
// since Go's scheduler gives no CPU-affinity handle to pin against.
func (p *Processor) Run(ctx context.Context) {
	switch p.mode {
	case SERIAL, MVCC:
		// MVCC has no dedicated scheduler of its own; it falls back to
		// SERIAL over whatever Store the Processor was built with.
		p.runSerial(ctx)
	case LOCKING_EXCLUSIVE_ONLY, LOCKING:
		p.runLocking(ctx)
	case TWOPL:
		p.runTwoPL(ctx)
	case TWOPL2:
		p.runTwoPL2(ctx)
	case OCC:
		p.runOCC(ctx)
	case P_OCC, SILO:
		p.runParallelOCC(ctx)
	}
}

// Stop tears down the worker pool. Queued-but-undispatched requests are
// abandoned; in-flight tasks are allowed to finish.
func (p *Processor) Stop() {
	close(p.stopCh)
	p.pool.Stop()
}

// applyWrites installs a committing transaction's buffered writes.
// Never interleaved with another transaction's timestamp reads for the
// same keys under any mode: LOCKING/TWOPL/TWOPL2 hold write locks, OCC
// runs this on the single scheduler goroutine, and P_OCC holds no-wait
// write locks through the call.
func (p *Processor) applyWrites(txn *Txn) {
	for k, v := range txn.writes {
		p.store.Write(k, v, txn.ID)
	}
}

// executeReadPhase snapshots occ_start_time and buffers the current
// value of every key in the transaction's read-set and write-set
// before running its program logic. Used by every mode except TWOPL2,
// which acquires its locks key by key and does its own reads in
// executeTwoPL2.
func (p *Processor) executeReadPhase(txn *Txn) {
	p.log.Debug("executing read phase",
		zap.Int64("txn_id", txn.ID), zap.Int64("goroutine_id", commonutils.GoID()))
	txn.OccStartTime = nowSeconds()
	for k := range txn.ReadSet {
		if v, ok := p.store.Read(k); ok {
			txn.bufferRead(k, v)
		}
	}
	for k := range txn.WriteSet {
		if v, ok := p.store.Read(k); ok {
			txn.bufferRead(k, v)
		}
	}
	txn.Program.Run(txn)
}

// decideOutcome moves a completed transaction to its terminal status,
// applying writes on commit, and records metrics. It does not publish
// the result — callers that must release locks between the commit/
// abort decision and publication (LOCKING, TWOPL, TWOPL2) call publish
// themselves once locks are released.
func (p *Processor) decideOutcome(txn *Txn) {
	switch txn.Status() {
	case StatusCompletedC:
		p.applyWrites(txn)
		txn.SetStatus(StatusCommitted)
		p.metrics.Committed.Add(context.Background(), 1)
	case StatusCompletedA:
		txn.SetStatus(StatusAborted)
		p.metrics.AbortedProgram.Add(context.Background(), 1)
	default:
		p.log.Fatal("completed transaction has invalid status",
			zap.Int64("txn_id", txn.ID), zap.String("status", txn.Status().String()))
	}
}

// publish records commit-latency and hands txn to the result queue.
func (p *Processor) publish(txn *Txn) {
	p.metrics.observeCommitLatency(context.Background(), time.Since(txn.submittedAt).Microseconds())
	p.results.Push(txn)
}

// finalizeResult is decideOutcome+publish back to back, for modes with
// no locks to release in between (SERIAL, OCC, P_OCC).
func (p *Processor) finalizeResult(txn *Txn) {
	p.decideOutcome(txn)
	p.publish(txn)
}

// retry clears a transaction's buffered state and re-enqueues it.
// reassignID controls whether a fresh unique_id is assigned: OCC,
// P_OCC and LOCKING/LOCKING_EXCLUSIVE_ONLY reassign; TWOPL preserves
// the id to keep deterministic priority stable across contention
// retries.
func (p *Processor) retry(txn *Txn, reassignID bool) {
	txn.resetBuffers()
	txn.SetStatus(StatusIncomplete)
	if reassignID {
		txn.ID = p.nextID.Add(1)
	}
	p.metrics.AbortedContention.Add(context.Background(), 1)
	p.requests.Push(txn)
}
