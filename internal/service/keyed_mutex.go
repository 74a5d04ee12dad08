package service

import "sync"

// idLocker hands out one mutex per note id. Entries are dropped once no
// goroutine holds or waits on them.
type idLocker struct {
	mu    sync.Mutex
	locks map[int64]*idLock
}

type idLock struct {
	mu   sync.Mutex
	refs int
}

func newIDLocker() *idLocker {
	return &idLocker{locks: make(map[int64]*idLock)}
}

// Lock blocks until id is free and returns the matching unlock func.
func (l *idLocker) Lock(id int64) func() {
	l.mu.Lock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &idLock{}
		l.locks[id] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *idLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
