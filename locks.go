package httpcache

import "sync"

// keyLocks hands out one mutex per key. Entries are reference counted and
// removed when the last holder unlocks, so the table only holds keys that are
// currently being written.
type keyLocks struct {
	mutex sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

// lock locks the key and returns the function unlocking it.
func (k *keyLocks) lock(key string) func() {
	k.mutex.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mutex.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mutex.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mutex.Unlock()
	}
}

func (k *keyLocks) len() int {
	k.mutex.Lock()
	defer k.mutex.Unlock()
	return len(k.locks)
}
