package ledger

import (
	"context"
	"sync"
)

// MemoryStore - 인메모리 Ledger. 로컬 실행과 테스트에서 사용한다.
// Supabase 구현과 같은 계약: 원자 차감, job_id 멱등 환불.
type MemoryStore struct {
	mu       sync.Mutex
	balances map[string]int
	refunded map[string]bool // jobID → 환불 완료 여부
}

// NewMemoryStore - 인메모리 Ledger 생성
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]int),
		refunded: make(map[string]bool),
	}
}

// SetBalance - 초기 잔액 세팅 (테스트용)
func (s *MemoryStore) SetBalance(userID string, balance int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] = balance
}

func (s *MemoryStore) GetBalance(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID], nil
}

func (s *MemoryStore) Reserve(ctx context.Context, userID string, amount int, jobID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance := s.balances[userID]
	if balance < amount {
		return 0, ErrInsufficientFunds
	}

	s.balances[userID] = balance - amount
	return s.balances[userID], nil
}

func (s *MemoryStore) Refund(ctx context.Context, userID string, amount int, jobID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refunded[jobID] {
		return s.balances[userID], nil
	}

	s.refunded[jobID] = true
	s.balances[userID] += amount
	return s.balances[userID], nil
}
