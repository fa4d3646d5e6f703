package auth

import (
	"context"
	"sync"
	"time"
)

// MemoryBlacklist keeps revoked jtis in process memory. Used when Redis is not
// configured and in tests.
type MemoryBlacklist struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{revoked: make(map[string]time.Time)}
}

func (m *MemoryBlacklist) Add(_ context.Context, jti string, originalTokenExpTime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if time.Until(originalTokenExpTime) <= 0 {
		return nil
	}
	m.revoked[jti] = originalTokenExpTime
	return nil
}

func (m *MemoryBlacklist) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.revoked[jti]
	if !ok {
		return false, nil
	}
	if time.Now().After(exp) {
		delete(m.revoked, jti)
		return false, nil
	}
	return true, nil
}
