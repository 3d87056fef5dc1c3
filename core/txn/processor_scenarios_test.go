package txn

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fnProgram adapts a plain function to the Program interface for
// tests, so each scenario can express its transaction logic inline.
type fnProgram struct {
	fn func(t *Txn)
}

func (p *fnProgram) Run(t *Txn) { p.fn(t) }

func writeProgram(writes map[Key]int64) *fnProgram {
	return &fnProgram{fn: func(t *Txn) {
		for k, v := range writes {
			t.BufferWrite(k, Record{DataType: DataTypeScalar, Scalar: v})
		}
		t.SetStatus(StatusCompletedC)
	}}
}

func sleepingWriteProgram(writes map[Key]int64, d time.Duration) *fnProgram {
	return &fnProgram{fn: func(t *Txn) {
		time.Sleep(d)
		for k, v := range writes {
			t.BufferWrite(k, Record{DataType: DataTypeScalar, Scalar: v})
		}
		t.SetStatus(StatusCompletedC)
	}}
}

func getResult(t *testing.T, p *Processor, timeout time.Duration) *Txn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	txn, err := p.GetTxnResult(ctx)
	require.NoError(t, err)
	return txn
}

// TestScenario_S1_IndependentTransactionsLocking covers S1: two
// transactions touching disjoint keys under LOCKING both commit with
// no contention.
func TestScenario_S1_IndependentTransactionsLocking(t *testing.T) {
	store := NewInMemoryStore()
	store.Init(2)
	p := NewProcessor(LOCKING, store, 4, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	defer p.Stop()

	t1 := NewTxn(DataTypeScalar, nil, []Key{0}, writeProgram(map[Key]int64{0: 7}))
	t2 := NewTxn(DataTypeScalar, nil, []Key{1}, writeProgram(map[Key]int64{1: 9}))
	p.NewTxnRequest(t1)
	p.NewTxnRequest(t2)

	r1 := getResult(t, p, time.Second)
	r2 := getResult(t, p, time.Second)
	require.Equal(t, StatusCommitted, r1.Status())
	require.Equal(t, StatusCommitted, r2.Status())

	v0, _ := store.Read(Key(0))
	v1, _ := store.Read(Key(1))
	require.Equal(t, int64(7), v0.Scalar)
	require.Equal(t, int64(9), v1.Scalar)
}

// TestScenario_S2_WriteWriteConflictLocking covers S2: T2 must not
// acquire key 0 until T1 releases it, so the final value reflects T2.
func TestScenario_S2_WriteWriteConflictLocking(t *testing.T) {
	store := NewInMemoryStore()
	store.Init(1)
	p := NewProcessor(LOCKING, store, 4, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	defer p.Stop()

	t1 := NewTxn(DataTypeScalar, nil, []Key{0}, sleepingWriteProgram(map[Key]int64{0: 5}, 10*time.Millisecond))
	t1.ID = 1
	t2 := NewTxn(DataTypeScalar, nil, []Key{0}, writeProgram(map[Key]int64{0: 6}))
	t2.ID = 2

	p.requests.Push(t1)
	p.requests.Push(t2)

	getResult(t, p, time.Second)
	getResult(t, p, time.Second)

	v0, _ := store.Read(Key(0))
	require.Equal(t, int64(6), v0.Scalar)
}

// TestScenario_S4_OCCAbortAndRetry covers S4: a concurrent write
// between a transaction's read and its validation forces an abort and
// a retry. The test checks that the conflicting writer and the retried
// transaction both commit and that the first attempt read the
// pre-conflict value.
func TestScenario_S4_OCCAbortAndRetry(t *testing.T) {
	store := NewInMemoryStore()
	store.Init(1)
	p := NewProcessor(OCC, store, 4, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	defer p.Stop()

	var observed atomic.Int64
	observed.Store(-1)
	var firstAttempt atomic.Bool
	firstAttempt.Store(true)
	readThenWrite := &fnProgram{fn: func(tx *Txn) {
		if firstAttempt.CompareAndSwap(true, false) {
			if v, ok := tx.Read(Key(0)); ok {
				observed.Store(v.Scalar)
			}
			time.Sleep(20 * time.Millisecond)
		}
		tx.SetStatus(StatusCompletedC)
	}}

	t1 := NewTxn(DataTypeScalar, []Key{0}, nil, readThenWrite)
	p.NewTxnRequest(t1)

	time.Sleep(5 * time.Millisecond)
	t2 := NewTxn(DataTypeScalar, nil, []Key{0}, writeProgram(map[Key]int64{0: 3}))
	p.NewTxnRequest(t2)

	r2 := getResult(t, p, time.Second)
	require.Equal(t, StatusCommitted, r2.Status())

	r1 := getResult(t, p, time.Second)
	require.Equal(t, StatusCommitted, r1.Status())
	require.Equal(t, int64(0), observed.Load(), "first attempt reads the pre-conflict value")
}

// TestScenario_S6_TWOPL2SortedAcquisitionAvoidsDeadlock covers S6:
// two transactions requesting keys {2,5} in opposite read/write roles
// both commit because sorted-order acquisition prevents a cycle.
func TestScenario_S6_TWOPL2SortedAcquisitionAvoidsDeadlock(t *testing.T) {
	store := NewInMemoryStore()
	store.Init(6)
	p := NewProcessor(TWOPL2, store, 4, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	defer p.Stop()

	t1 := NewTxn(DataTypeScalar, []Key{2}, []Key{5}, writeProgram(map[Key]int64{5: 1}))
	t2 := NewTxn(DataTypeScalar, []Key{5}, []Key{2}, writeProgram(map[Key]int64{2: 2}))
	p.NewTxnRequest(t1)
	p.NewTxnRequest(t2)

	r1 := getResult(t, p, time.Second)
	r2 := getResult(t, p, time.Second)
	require.Equal(t, StatusCommitted, r1.Status())
	require.Equal(t, StatusCommitted, r2.Status())
}

// TestScenario_S5_ParallelOCCSnapshotConflict covers S5: two workers
// that overlap on key 0 (one reads it, the other writes it) cannot
// both commit on the same attempt — one aborts and is retried, and
// both end up COMMITTED.
func TestScenario_S5_ParallelOCCSnapshotConflict(t *testing.T) {
	store := NewInMemoryStore()
	store.Init(2)
	p := NewProcessor(P_OCC, store, 4, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	defer p.Stop()

	t1 := NewTxn(DataTypeScalar, []Key{0}, []Key{1}, writeProgram(map[Key]int64{1: 11}))
	t2 := NewTxn(DataTypeScalar, nil, []Key{0}, writeProgram(map[Key]int64{0: 22}))
	p.NewTxnRequest(t1)
	p.NewTxnRequest(t2)

	r1 := getResult(t, p, 2*time.Second)
	r2 := getResult(t, p, 2*time.Second)
	require.Equal(t, StatusCommitted, r1.Status())
	require.Equal(t, StatusCommitted, r2.Status())
}

// TestInvariant_IdempotentAbortRetry covers property 6: a contention
// abort re-dispatched on a quiescent system commits with the same
// writes a single-shot execution would have produced.
func TestInvariant_IdempotentAbortRetry(t *testing.T) {
	store := NewInMemoryStore()
	store.Init(1)
	p := NewProcessor(LOCKING_EXCLUSIVE_ONLY, store, 2, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	defer p.Stop()

	txn := NewTxn(DataTypeScalar, nil, []Key{0}, writeProgram(map[Key]int64{0: 123}))
	p.NewTxnRequest(txn)
	r := getResult(t, p, time.Second)
	require.Equal(t, StatusCommitted, r.Status())

	v, _ := store.Read(Key(0))
	require.Equal(t, int64(123), v.Scalar)
}

// TestTWOPL_MultiKeyContentionRetryDoesNotLivelock exercises a
// multi-key transaction that is refused on key 0 and must release that
// refused request (and key 1, if it was tried first) and retry. The refusing
// transaction (T1, the higher-priority/lower unique_id holder) commits
// and releases key 0; T2 then retries the same *Txn with the same
// unique_id and must actually be dispatched to a worker and commit.
// Before the fix to queueLockManager.Release's self-release
// bookkeeping, T2's retry would grant every lock it asked for but
// ReadyExecute would permanently report a stale pending wait, so T2
// would cycle through readyTxns forever without ever reaching a
// worker — this test's bounded GetTxnResult timeout turns that
// livelock into a clear failure rather than an indefinite hang.
func TestTWOPL_MultiKeyContentionRetryDoesNotLivelock(t *testing.T) {
	store := NewInMemoryStore()
	store.Init(2)
	p := NewProcessor(TWOPL, store, 4, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)
	defer p.Stop()

	t1 := NewTxn(DataTypeScalar, nil, []Key{0}, sleepingWriteProgram(map[Key]int64{0: 1}, 20*time.Millisecond))
	t2 := NewTxn(DataTypeScalar, nil, []Key{0, 1}, writeProgram(map[Key]int64{0: 2, 1: 3}))

	p.NewTxnRequest(t1)
	// Give t1 time to be dispatched and acquire key 0 first, so t2's
	// multi-key acquisition is refused on key 0.
	time.Sleep(5 * time.Millisecond)
	p.NewTxnRequest(t2)

	r1 := getResult(t, p, 2*time.Second)
	r2 := getResult(t, p, 2*time.Second)
	require.Equal(t, StatusCommitted, r1.Status())
	require.Equal(t, StatusCommitted, r2.Status())

	v0, _ := store.Read(Key(0))
	v1, _ := store.Read(Key(1))
	require.Equal(t, int64(2), v0.Scalar)
	require.Equal(t, int64(3), v1.Scalar)
}
