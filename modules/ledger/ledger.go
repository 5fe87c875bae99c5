package ledger

import (
	"context"
	"errors"
)

// ErrInsufficientFunds - 잔액 부족 (mutation 없음)
var ErrInsufficientFunds = errors.New("insufficient points balance")

// Store - 유저별 포인트 잔액 저장소.
// Reserve는 조건부 원자 차감이어야 한다 (동시 제출 경쟁에서 over-reservation 금지).
// Refund는 jobID 기준 멱등이다 - 같은 job으로 두 번 불려도 한 번만 환불된다.
type Store interface {
	GetBalance(ctx context.Context, userID string) (int, error)
	Reserve(ctx context.Context, userID string, amount int, jobID string) (int, error)
	Refund(ctx context.Context, userID string, amount int, jobID string) (int, error)
}

// HasEnough - 현재 잔액으로 amount를 감당할 수 있는지 확인
func HasEnough(ctx context.Context, store Store, userID string, amount int) (bool, error) {
	balance, err := store.GetBalance(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance >= amount, nil
}
