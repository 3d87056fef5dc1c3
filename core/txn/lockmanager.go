package txn

import "sync"

// LockMode is the mode a lock request is held or requested in.
type LockMode int

const (
	Unlocked LockMode = iota
	Shared
	Exclusive
)

// LockManager is the common contract all four variants implement.
// WriteLock/ReadLock append a request to k's queue and report whether
// it landed in the granted prefix as of this call; when they report
// false the manager has incremented txn's wait counter by one. Release
// removes txn's request and promotes any successor requests that newly
// enter the granted prefix, decrementing their owners' wait counters
// and pushing owners whose counter reaches zero onto the manager's
// ready queue.
type LockManager interface {
	WriteLock(txn *Txn, k Key) bool
	ReadLock(txn *Txn, k Key) bool
	Release(txn *Txn, k Key)
	Status(k Key) (LockMode, []*Txn)
	ReadyExecute(txn *Txn) bool
}

type lockReq struct {
	mode    LockMode
	txn     *Txn
	granted bool
}

// queueLockManager is the shared queue/wait-counter machinery behind
// variants A, B and C. They differ in grantNow, which decides whether
// a freshly-appended request is immediately granted; variant A also
// turns every ReadLock into an exclusive request.
type queueLockManager struct {
	mu      sync.Mutex
	queues  map[Key][]*lockReq
	waits   map[*Txn]int
	ready   *Queue[*Txn]
	grantNow func(existing []*lockReq, mode LockMode, txn *Txn) bool
}

func newQueueLockManager(ready *Queue[*Txn], grantNow func([]*lockReq, LockMode, *Txn) bool) *queueLockManager {
	return &queueLockManager{
		queues:   make(map[Key][]*lockReq),
		waits:    make(map[*Txn]int),
		ready:    ready,
		grantNow: grantNow,
	}
}

func (m *queueLockManager) acquire(txn *Txn, k Key, mode LockMode) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.queues[k]
	granted := m.grantNow(existing, mode, txn)
	req := &lockReq{mode: mode, txn: txn, granted: granted}
	m.queues[k] = append(existing, req)

	if !granted {
		m.waits[txn]++
	}
	return granted
}

func (m *queueLockManager) WriteLock(txn *Txn, k Key) bool { return m.acquire(txn, k, Exclusive) }
func (m *queueLockManager) ReadLock(txn *Txn, k Key) bool  { return m.acquire(txn, k, Shared) }

// fifoPrefixLen returns how many requests at the head of queue form the
// arrival-order granted prefix: either a single exclusive request, or a
// maximal contiguous run of shared requests.
func fifoPrefixLen(queue []*lockReq) int {
	if len(queue) == 0 {
		return 0
	}
	if queue[0].mode == Exclusive {
		return 1
	}
	i := 0
	for i < len(queue) && queue[i].mode == Shared {
		i++
	}
	return i
}

func (m *queueLockManager) Release(txn *Txn, k Key) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queue := m.queues[k]
	idx := -1
	for i, r := range queue {
		if r.txn == txn {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}
	removed := queue[idx]
	queue = append(queue[:idx], queue[idx+1:]...)
	m.queues[k] = queue

	// The request being released may itself have still been ungranted
	// (a caller releasing a just-refused request as part of a multi-key
	// abort). Its own contribution to the releasing transaction's wait
	// counter must be cleared here — the prefix-promotion loop below
	// only ever decrements successors' counters, never the releasing
	// transaction's own. This clears the count without promoting txn
	// onto the ready queue: every caller releasing its own ungranted
	// request is doing so to abandon this acquisition attempt, not to
	// proceed with one that just succeeded.
	if !removed.granted {
		m.forgetWait(txn)
	}

	prefixLen := fifoPrefixLen(queue)
	for i := 0; i < prefixLen; i++ {
		req := queue[i]
		if req.granted {
			continue
		}
		req.granted = true
		m.decrementWait(req.txn)
	}
}

func (m *queueLockManager) decrementWait(txn *Txn) {
	w, ok := m.waits[txn]
	if !ok {
		return
	}
	if w <= 1 {
		delete(m.waits, txn)
		m.ready.Push(txn)
	} else {
		m.waits[txn] = w - 1
	}
}

// forgetWait decrements txn's wait count the same way decrementWait
// does, but never pushes txn onto the ready queue. Used when a
// transaction releases one of its own still-ungranted requests to
// abandon an acquisition attempt — it is about to retry or stop, not
// proceed to execution.
func (m *queueLockManager) forgetWait(txn *Txn) {
	w, ok := m.waits[txn]
	if !ok {
		return
	}
	if w <= 1 {
		delete(m.waits, txn)
	} else {
		m.waits[txn] = w - 1
	}
}

func (m *queueLockManager) Status(k Key) (LockMode, []*Txn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queue := m.queues[k]
	prefixLen := fifoPrefixLen(queue)
	if prefixLen == 0 {
		return Unlocked, nil
	}
	owners := make([]*Txn, 0, prefixLen)
	for i := 0; i < prefixLen; i++ {
		owners = append(owners, queue[i].txn)
	}
	return queue[0].mode, owners
}

func (m *queueLockManager) ReadyExecute(txn *Txn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.waits[txn]
	if !ok {
		return true
	}
	if w > 0 {
		return false
	}
	delete(m.waits, txn)
	return true
}

// NewExclusiveLockManager builds Variant A: every request is exclusive
// regardless of the mode asked for (ReadLock is simply an alias of
// WriteLock), granted in strict arrival order.
func NewExclusiveLockManager(ready *Queue[*Txn]) LockManager {
	qlm := newQueueLockManager(ready, func(existing []*lockReq, mode LockMode, txn *Txn) bool {
		return len(existing) == 0
	})
	return &exclusiveLockManager{qlm}
}

type exclusiveLockManager struct{ *queueLockManager }

func (m *exclusiveLockManager) WriteLock(txn *Txn, k Key) bool { return m.acquire(txn, k, Exclusive) }
func (m *exclusiveLockManager) ReadLock(txn *Txn, k Key) bool  { return m.acquire(txn, k, Exclusive) }

// NewSharedExclusiveLockManager builds Variant B: shared and exclusive
// requests, granted immediately iff the queue was empty, or contains
// only shared requests and this request is itself shared.
func NewSharedExclusiveLockManager(ready *Queue[*Txn]) LockManager {
	return newQueueLockManager(ready, func(existing []*lockReq, mode LockMode, txn *Txn) bool {
		if len(existing) == 0 {
			return true
		}
		if mode != Shared {
			return false
		}
		for _, r := range existing {
			if r.mode != Shared {
				return false
			}
		}
		return true
	})
}

// NewPriorityLockManager builds Variant C: deterministic priority 2PL.
// Same grant rule as B, plus a fast path — a request is also granted
// immediately when every request already queued for this key belongs
// to a transaction with a strictly greater unique id (i.e. strictly
// lower priority). This lets a high-priority transaction that arrives
// behind only lower-priority waiters proceed without waiting. Release's
// promotion still follows arrival order: a lower-priority waiter that
// reaches the head of the queue is granted even while a grant-ahead
// holder later in the queue still holds the key; it is not made to
// wait again. Note this grant-ahead path deliberately
// checks only the requests queued *before* this one — checking the
// appended request against itself would make the fast path
// unreachable.
func NewPriorityLockManager(ready *Queue[*Txn]) LockManager {
	return newQueueLockManager(ready, func(existing []*lockReq, mode LockMode, txn *Txn) bool {
		if len(existing) == 0 {
			return true
		}
		if mode == Shared {
			allShared := true
			for _, r := range existing {
				if r.mode != Shared {
					allShared = false
					break
				}
			}
			if allShared {
				return true
			}
		}
		for _, r := range existing {
			if r.txn.ID <= txn.ID {
				return false
			}
		}
		return true
	})
}

// noWaitLockManager is Variant D: *_lock succeeds only if the queue is
// empty, and never enqueues on failure — callers abort on contention
// instead of waiting. Used by the parallel-OCC commit protocol (and by
// SILO, which aliases P_OCC onto this variant).
type noWaitLockManager struct {
	mu      sync.Mutex
	cond    *sync.Cond
	holders map[Key]*lockReq
}

// NewNoWaitLockManager builds Variant D.
func NewNoWaitLockManager(ready *Queue[*Txn]) *noWaitLockManager {
	m := &noWaitLockManager{holders: make(map[Key]*lockReq)}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *noWaitLockManager) tryAcquire(txn *Txn, k Key, mode LockMode) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.holders[k]; held {
		return false
	}
	m.holders[k] = &lockReq{mode: mode, txn: txn, granted: true}
	return true
}

func (m *noWaitLockManager) WriteLock(txn *Txn, k Key) bool { return m.tryAcquire(txn, k, Exclusive) }
func (m *noWaitLockManager) ReadLock(txn *Txn, k Key) bool  { return m.tryAcquire(txn, k, Shared) }

// Release wakes every blockingAcquire waiter, not just ones blocked on
// k, since the single m.cond is shared across all keys.
func (m *noWaitLockManager) Release(txn *Txn, k Key) {
	m.mu.Lock()
	if r, ok := m.holders[k]; ok && r.txn == txn {
		delete(m.holders, k)
	}
	m.mu.Unlock()
	m.cond.Broadcast()
}

// BlockingWriteLock/BlockingReadLock are TWOPL2's sorted-acquisition
// primitive: block until the no-wait variant grants the request,
// woken by Release's broadcast rather than spin-sleeping.
func (m *noWaitLockManager) blockingAcquire(txn *Txn, k Key, mode LockMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		if _, held := m.holders[k]; !held {
			m.holders[k] = &lockReq{mode: mode, txn: txn, granted: true}
			return
		}
		m.cond.Wait()
	}
}

func (m *noWaitLockManager) BlockingWriteLock(txn *Txn, k Key) { m.blockingAcquire(txn, k, Exclusive) }
func (m *noWaitLockManager) BlockingReadLock(txn *Txn, k Key)  { m.blockingAcquire(txn, k, Shared) }

func (m *noWaitLockManager) Status(k Key) (LockMode, []*Txn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.holders[k]
	if !ok {
		return Unlocked, nil
	}
	return r.mode, []*Txn{r.txn}
}

// ReadyExecute is always true under no-wait: a transaction either
// acquired every lock it asked for, or it never asked for one without
// getting it — there is nothing to wait on.
func (m *noWaitLockManager) ReadyExecute(txn *Txn) bool { return true }
