package pour

import "sync"

// kegLocks hands out one mutex per keg so that all mutation touching a keg's
// ledger and its open session is serialized, keg by keg.
type kegLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newKegLocks() *kegLocks {
	return &kegLocks{locks: make(map[int64]*sync.Mutex)}
}

// get returns the mutex for a keg, creating it on first use.
func (l *kegLocks) get(kegID int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[kegID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[kegID] = m
	}
	return m
}
