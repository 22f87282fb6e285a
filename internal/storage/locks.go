package storage

import "sync"

// KeyedLock serializes work per string key. Used for (account, symbol)
// pairs so a live fill and a concurrent reconciliation pass cannot race
// on the same position row.
type KeyedLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewKeyedLock creates an empty lock set.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its unlock function.
// Mutexes are never evicted; the key space (accounts x symbols) is small.
func (k *KeyedLock) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// PositionKey builds the canonical lock key for one position row.
func PositionKey(accountID, symbol string, isPaper bool) string {
	if isPaper {
		return accountID + "|" + symbol + "|paper"
	}
	return accountID + "|" + symbol + "|live"
}
