package billing

import (
	"context"
	"sync"
)

// Memory is a process-local Service for development and tests
type Memory struct {
	mu           sync.Mutex
	initialGrant int64
	balances     map[string]int64
	seen         map[string]bool
}

// NewMemory returns an empty in-memory account store. New accounts start with initialGrant.
func NewMemory(initialGrant int64) *Memory {
	return &Memory{
		initialGrant: initialGrant,
		balances:     make(map[string]int64),
		seen:         make(map[string]bool),
	}
}

func (m *Memory) account(userID string) int64 {
	b, ok := m.balances[userID]
	if !ok {
		b = m.initialGrant
		m.balances[userID] = b
	}
	return b
}

func (m *Memory) Debit(_ context.Context, userID string, amount int64, key string) error {
	if err := validate(userID, amount, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[key] {
		return nil
	}
	b := m.account(userID)
	if b < amount {
		return ErrInsufficientQuota
	}
	m.balances[userID] = b - amount
	m.seen[key] = true
	return nil
}

func (m *Memory) Refund(_ context.Context, userID string, amount int64, key string) error {
	return m.credit(userID, amount, key)
}

func (m *Memory) Grant(_ context.Context, userID string, amount int64, key string) error {
	return m.credit(userID, amount, key)
}

func (m *Memory) credit(userID string, amount int64, key string) error {
	if err := validate(userID, amount, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[key] {
		return nil
	}
	m.balances[userID] = m.account(userID) + amount
	m.seen[key] = true
	return nil
}

func (m *Memory) Balance(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.balances[userID]; ok {
		return b, nil
	}
	return m.initialGrant, nil
}
