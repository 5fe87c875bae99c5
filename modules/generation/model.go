package generation

import (
	"context"

	"pixelforge-server/modules/common/model"
	"pixelforge-server/modules/provider"
	"pixelforge-server/modules/submodule/falqueue"
)

// SubmitRequest - 생성 요청 바디
type SubmitRequest struct {
	Prompt         string   `json:"prompt"`
	SessionID      string   `json:"session_id,omitempty"`
	StyleID        string   `json:"style_id,omitempty"`
	AspectRatio    string   `json:"aspect_ratio,omitempty"`
	NumImages      int      `json:"num_images,omitempty"`
	ModelType      string   `json:"model_type,omitempty"`
	Resolution     string   `json:"resolution,omitempty"`
	InputImageURLs []string `json:"input_image_urls,omitempty"`
}

// SubmitResponse - 생성 요청 응답
type SubmitResponse struct {
	JobID          string `json:"job_id"`
	SessionID      string `json:"session_id"`
	Status         string `json:"status"`
	PointsReserved int    `json:"points_reserved"`
	Balance        int    `json:"balance"`
}

// JobStore - orchestrator가 쓰는 job/세션/스타일 영속 계층
type JobStore interface {
	CreateJob(ctx context.Context, job *model.GenerationJob) error
	FetchJob(ctx context.Context, jobID string) (*model.GenerationJob, error)
	UpdateJob(ctx context.Context, jobID string, fields map[string]interface{}) error
	MarkFailed(ctx context.Context, jobID string, reason string) (bool, error)
	FindActiveByUser(ctx context.Context, userID string) ([]model.GenerationJob, error)
	GetOrCreateSession(ctx context.Context, sessionID string, userID string) (*model.Session, error)
	TouchSession(ctx context.Context, sessionID string) error
	GetStyle(ctx context.Context, styleID string) (*model.Style, error)
	RecordFallbackEvent(ctx context.Context, ev model.FallbackEvent)
}

// QueueClient - 외부 비동기 큐 API
type QueueClient interface {
	Submit(ctx context.Context, endpoint provider.Endpoint, req *falqueue.SubmitRequest) (*falqueue.SubmitResponse, error)
	Status(ctx context.Context, endpoint provider.Endpoint, requestID string) (*falqueue.StatusResponse, error)
	FetchResult(ctx context.Context, endpoint provider.Endpoint, requestID string, responseURL string) (*falqueue.Result, error)
}

// AdminNotifier - 운영자 알림 (best-effort)
type AdminNotifier interface {
	NotifyBalanceExhausted(details string)
}

// Publisher - 상태 전이를 세션 구독자에게 푸시 (best-effort)
type Publisher interface {
	PublishJobUpdate(sessionID string, job *model.GenerationJob)
}

// PollEnqueuer - out-of-band 폴러 큐. 제출 직후 job id를 넣어두면
// 클라이언트가 폴링하지 않아도 백그라운드에서 완료까지 진행된다.
type PollEnqueuer interface {
	EnqueuePoll(ctx context.Context, jobID string) error
}
