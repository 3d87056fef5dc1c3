package txn

import "sync"

// ActiveSet is the set of transactions currently between their
// execute-phase completion and their commit/abort publication under
// parallel OCC. It is guarded by its own mutex, independent of the
// lock table and the queues.
type ActiveSet struct {
	mu      sync.Mutex
	members map[*Txn]struct{}
}

// NewActiveSet builds an empty active set.
func NewActiveSet() *ActiveSet {
	return &ActiveSet{members: make(map[*Txn]struct{})}
}

// Insert adds txn to the set.
func (a *ActiveSet) Insert(txn *Txn) {
	a.mu.Lock()
	a.members[txn] = struct{}{}
	a.mu.Unlock()
}

// Erase removes txn from the set.
func (a *ActiveSet) Erase(txn *Txn) {
	a.mu.Lock()
	delete(a.members, txn)
	a.mu.Unlock()
}

// Snapshot returns a value copy of the members present at the instant
// of the call — a stable witness for validation to compare against,
// even as other workers concurrently insert/erase.
func (a *ActiveSet) Snapshot() []*Txn {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Txn, 0, len(a.members))
	for t := range a.members {
		out = append(out, t)
	}
	return out
}
