package concurrency

import (
	"sync"
)

// LockManager entrega um mutex por chave (ex: accountId).
// Chaves diferentes nunca disputam o mesmo lock.
type LockManager struct {
	locks sync.Map
}

func NewLockManager() *LockManager {
	return &LockManager{}
}

// GetLock retorna o mutex da chave, criando-o na primeira chamada
func (lm *LockManager) GetLock(key string) *sync.Mutex {
	lock, _ := lm.locks.LoadOrStore(key, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// With executa fn segurando o lock da chave
func (lm *LockManager) With(key string, fn func() error) error {
	mu := lm.GetLock(key)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}
