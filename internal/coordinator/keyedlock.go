package coordinator

import (
	"context"
	"sync"
)

type keyEntry struct {
	token chan struct{}
	refs  int
}

// KeyedLock provides per-key mutual exclusion and a claim set recording
// which keys are currently queued or being worked.
type KeyedLock struct {
	mu     sync.Mutex
	locks  map[string]*keyEntry
	claims map[string]struct{}
}

// NewKeyedLock returns an empty lock table.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{
		locks:  make(map[string]*keyEntry),
		claims: make(map[string]struct{}),
	}
}

// Lock acquires key and returns its release function. Entries are dropped
// once no caller holds or waits for them.
func (k *KeyedLock) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyEntry{token: make(chan struct{}, 1)}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	select {
	case entry.token <- struct{}{}:
	case <-ctx.Done():
		k.unref(key, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.token
			k.unref(key, entry)
		})
	}, nil
}

func (k *KeyedLock) unref(key string, entry *keyEntry) {
	k.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

// Held returns the number of keys with a holder or waiter.
func (k *KeyedLock) Held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// TryClaim records key as claimed and reports false when it already was.
func (k *KeyedLock) TryClaim(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.claims[key]; ok {
		return false
	}
	k.claims[key] = struct{}{}
	return true
}

// Release drops a claim.
func (k *KeyedLock) Release(key string) {
	k.mu.Lock()
	delete(k.claims, key)
	k.mu.Unlock()
}

// IsClaimed reports whether key is claimed.
func (k *KeyedLock) IsClaimed(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.claims[key]
	return ok
}

// Claimed returns the number of claimed keys.
func (k *KeyedLock) Claimed() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.claims)
}
