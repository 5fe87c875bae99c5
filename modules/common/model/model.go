package model

import "time"

// Job 상태 (terminal: completed / failed)
const (
	StatusInQueue    = "in_queue"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// IsTerminal - terminal 상태 여부
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// statusRank - 상태 전이 순서 (모노토닉 체크용)
var statusRank = map[string]int{
	StatusInQueue:    0,
	StatusInProgress: 1,
	StatusCompleted:  2,
	StatusFailed:     2,
}

// CanTransition - prev → next 상태 전이 허용 여부
// terminal 상태에서는 어떤 전이도 허용하지 않는다.
func CanTransition(prev, next string) bool {
	if IsTerminal(prev) {
		return false
	}
	prevRank, ok := statusRank[prev]
	if !ok {
		return false
	}
	nextRank, ok := statusRank[next]
	if !ok {
		return false
	}
	return nextRank >= prevRank
}

// GenerationJob - pf_generation_jobs 테이블 구조
type GenerationJob struct {
	JobID          string    `json:"job_id"`
	UserID         string    `json:"user_id"`
	SessionID      string    `json:"session_id"`
	Prompt         string    `json:"prompt"`
	InputImageURLs []string  `json:"input_image_urls"`
	StyleID        string    `json:"style_id"`
	AspectRatio    string    `json:"aspect_ratio"`
	NumImages      int       `json:"num_images"`
	ModelType      string    `json:"model_type"`
	Resolution     string    `json:"resolution"`
	Provider       string    `json:"provider"`       // 실제 제출된 (provider, model) - 폴링에 필요
	ProviderModel  string    `json:"provider_model"`
	CorrelationID  *string   `json:"correlation_id"` // 외부 큐가 부여한 request_id
	Status         string    `json:"status"`
	QueuePosition  *int      `json:"queue_position"`
	ImageURLs      []string  `json:"image_urls"`
	PointsReserved int       `json:"points_reserved"` // 생성 시점에 고정, 환불 금액 계산에 사용
	FailureReason  *string   `json:"failure_reason"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Session - pf_sessions 테이블 구조
type Session struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Style - pf_styles 테이블 구조
type Style struct {
	StyleID     string `json:"style_id"`
	StyleName   string `json:"style_name"`
	StylePrompt string `json:"style_prompt"` // 유저 프롬프트 뒤에 붙는다
}

// PointTxn - pf_point_txns 테이블 구조 (크레딧 트랜잭션 기록)
type PointTxn struct {
	TxnID        int64     `json:"txn_id"`
	UserID       string    `json:"user_id"`
	TxnType      string    `json:"txn_type"` // RESERVE / REFUND
	Amount       int       `json:"amount"`
	BalanceAfter int       `json:"balance_after"`
	JobID        string    `json:"job_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// FallbackEvent - pf_fallback_events 테이블 구조 (관측용)
type FallbackEvent struct {
	ActiveProvider   string `json:"active_provider"`
	ActiveModel      string `json:"active_model"`
	FallbackProvider string `json:"fallback_provider"`
	FallbackModel    string `json:"fallback_model"`
	ErrorCode        string `json:"error_code"`
	HTTPStatus       int    `json:"http_status"`
	JobUserID        string `json:"job_user_id"`
}
