package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveAndRefund(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SetBalance("user-1", 10)

	balance, err := store.Reserve(ctx, "user-1", 6, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 4, balance)

	balance, err = store.Refund(ctx, "user-1", 6, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 10, balance)
}

func TestReserveInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SetBalance("user-1", 3)

	_, err := store.Reserve(ctx, "user-1", 6, "job-1")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// 실패한 reserve는 mutation 없음
	balance, err := store.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, balance)
}

func TestUnknownUserStartsAtZero(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	balance, err := store.GetBalance(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, balance)

	_, err = store.Reserve(ctx, "nobody", 1, "job-1")
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestRefundIsIdempotentPerJob(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SetBalance("user-1", 10)

	_, err := store.Reserve(ctx, "user-1", 6, "job-1")
	require.NoError(t, err)

	// at-least-once 실행 시뮬레이션 - 같은 job으로 두 번 환불
	balance, err := store.Refund(ctx, "user-1", 6, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 10, balance)

	balance, err = store.Refund(ctx, "user-1", 6, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 10, balance)
}

func TestConcurrentReservesNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SetBalance("user-1", 50)

	// 잔액 50으로 6포인트 reserve 100개를 동시에 - 최대 8개만 성공해야 한다
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := store.Reserve(ctx, "user-1", 6, "job-concurrent"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, succeeded)

	balance, err := store.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 50-8*6, balance)
	assert.GreaterOrEqual(t, balance, 0)
}

func TestHasEnough(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SetBalance("user-1", 5)

	ok, err := HasEnough(ctx, store, "user-1", 5)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = HasEnough(ctx, store, "user-1", 6)
	require.NoError(t, err)
	assert.False(t, ok)
}
