package repository

import "sync"

// KeyedMutex hands out one mutex per key. Mutexes are never released, which
// is fine for a bounded user population.
type KeyedMutex struct {
	locks sync.Map
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{}
}

// Get returns the mutex for key.
func (k *KeyedMutex) Get(key string) *sync.Mutex {
	lock, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// Lock locks key and returns its unlock function.
func (k *KeyedMutex) Lock(key string) func() {
	m := k.Get(key)
	m.Lock()
	return m.Unlock
}
