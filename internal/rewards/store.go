package rewards

import (
	"context"
	"sync"
	"time"

	"github.com/p-n-ai/pai-learn/internal/platform/txn"
)

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
	now      func() time.Time
}

// NewMemoryStore creates a new in-memory rewards store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]Account),
		now:      time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, learnerID string) (Account, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[learnerID]
	return acct, ok, nil
}

func (s *MemoryStore) Add(ctx context.Context, learnerID string, points int64, badgeFor func(int64) string) (Account, Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before, ok := s.accounts[learnerID]
	if !ok {
		before = Account{LearnerID: learnerID, Badge: badgeFor(0)}
	}

	after := before
	after.TotalPoints += points
	after.Badge = badgeFor(after.TotalPoints)
	after.UpdatedAt = s.now()
	s.accounts[learnerID] = after

	txn.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		acct, exists := s.accounts[learnerID]
		if !exists {
			return
		}
		acct.TotalPoints -= points
		if !ok && acct.TotalPoints == 0 {
			delete(s.accounts, learnerID)
			return
		}
		acct.Badge = badgeFor(acct.TotalPoints)
		s.accounts[learnerID] = acct
	})
	return before, after, nil
}

// Len returns the number of materialized accounts.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}
