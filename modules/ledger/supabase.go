package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/supabase-community/supabase-go"
	"pixelforge-server/modules/common/config"
)

// SupabaseStore - pf_point_balances / pf_point_txns 기반 Ledger.
// 차감/환불은 Postgres 함수(RPC)로 수행한다. 조건부 UPDATE 한 방이라
// 동시 요청에서도 잔액이 음수로 내려가지 않는다:
//
//	pf_reserve_points(p_user_id, p_amount, p_job_id) returns int
//	  → UPDATE ... SET balance = balance - p_amount
//	    WHERE user_id = p_user_id AND balance >= p_amount
//	    (행이 없으면 balance 0으로 생성 후 시도, 실패 시 -1 반환)
//	pf_refund_points(p_user_id, p_amount, p_job_id) returns int
//	  → job_id unique 제약의 REFUND 트랜잭션 행을 먼저 INSERT,
//	    충돌이면 현재 잔액만 반환 (멱등)
type SupabaseStore struct {
	supabase *supabase.Client
}

// NewSupabaseStore - Ledger 클라이언트 생성
func NewSupabaseStore() *SupabaseStore {
	cfg := config.GetConfig()

	supabaseClient, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, &supabase.ClientOptions{})
	if err != nil {
		log.Printf("❌ [Ledger] Failed to create Supabase client: %v", err)
		return nil
	}

	return &SupabaseStore{
		supabase: supabaseClient,
	}
}

// GetBalance - 현재 잔액 조회 (행이 없으면 0)
func (s *SupabaseStore) GetBalance(ctx context.Context, userID string) (int, error) {
	var rows []struct {
		Balance int `json:"balance"`
	}

	data, _, err := s.supabase.From("pf_point_balances").
		Select("balance", "exact", false).
		Eq("user_id", userID).
		Execute()

	if err != nil {
		return 0, fmt.Errorf("failed to fetch balance: %w", err)
	}

	if err := json.Unmarshal(data, &rows); err != nil {
		return 0, fmt.Errorf("failed to parse balance response: %w", err)
	}

	if len(rows) == 0 {
		return 0, nil
	}

	return rows[0].Balance, nil
}

// Reserve - 포인트 원자 차감. 잔액 부족이면 ErrInsufficientFunds.
func (s *SupabaseStore) Reserve(ctx context.Context, userID string, amount int, jobID string) (int, error) {
	log.Printf("💰 [Ledger] Reserving %d points for user %s (job: %s)", amount, userID, jobID)

	newBalance, err := s.rpcInt("pf_reserve_points", map[string]interface{}{
		"p_user_id": userID,
		"p_amount":  amount,
		"p_job_id":  jobID,
	})
	if err != nil {
		return 0, err
	}

	if newBalance < 0 {
		log.Printf("⚠️  [Ledger] Insufficient balance for user %s (needed: %d)", userID, amount)
		return 0, ErrInsufficientFunds
	}

	log.Printf("💰 [Ledger] Reserved %d points, new balance: %d", amount, newBalance)
	return newBalance, nil
}

// Refund - 포인트 환불 (job_id 기준 멱등)
func (s *SupabaseStore) Refund(ctx context.Context, userID string, amount int, jobID string) (int, error) {
	log.Printf("💰 [Ledger] Refunding %d points to user %s (job: %s)", amount, userID, jobID)

	newBalance, err := s.rpcInt("pf_refund_points", map[string]interface{}{
		"p_user_id": userID,
		"p_amount":  amount,
		"p_job_id":  jobID,
	})
	if err != nil {
		return 0, err
	}

	log.Printf("💰 [Ledger] Balance after refund: %d", newBalance)
	return newBalance, nil
}

// rpcInt - RPC 호출 후 정수 결과 파싱
func (s *SupabaseStore) rpcInt(fn string, params map[string]interface{}) (int, error) {
	result := s.supabase.Rpc(fn, "", params)
	if result == "" {
		return 0, fmt.Errorf("rpc %s returned no result", fn)
	}

	value, err := strconv.Atoi(strings.TrimSpace(result))
	if err != nil {
		return 0, fmt.Errorf("rpc %s returned unexpected result %q: %w", fn, result, err)
	}

	return value, nil
}
