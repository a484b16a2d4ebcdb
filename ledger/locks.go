package ledger

import "sync"

// entryLocks serialises mutations per entry id. Locks are reference counted
// and dropped once no goroutine holds or waits on them, so the map only
// contains ids currently being mutated.
type entryLocks struct {
	mu    sync.Mutex
	locks map[EntryID]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func newEntryLocks() *entryLocks {
	return &entryLocks{locks: make(map[EntryID]*entryLock)}
}

// lock blocks until id is free and returns the matching unlock.
func (l *entryLocks) lock(id EntryID) func() {
	l.mu.Lock()
	el, ok := l.locks[id]
	if !ok {
		el = &entryLock{}
		l.locks[id] = el
	}
	el.refs++
	l.mu.Unlock()

	el.mu.Lock()
	return func() {
		el.mu.Unlock()
		l.mu.Lock()
		el.refs--
		if el.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *entryLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
