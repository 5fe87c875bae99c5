package generation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"pixelforge-server/modules/common/apperr"
	"pixelforge-server/modules/common/model"
	"pixelforge-server/modules/ledger"
	"pixelforge-server/modules/pricing"
	"pixelforge-server/modules/provider"
	"pixelforge-server/modules/submodule/falqueue"
)

// Service - 생성 job orchestrator.
// 제출 경로(포인트 차감 → 큐 제출 → in_queue 영속)와
// 폴링 상태 머신(in_queue → in_progress → completed/failed)을 소유한다.
type Service struct {
	store    JobStore
	ledger   ledger.Store
	queue    QueueClient
	notifier AdminNotifier
	pub      Publisher    // nil 허용
	enq      PollEnqueuer // nil 허용

	pollInterval time.Duration
	waitMax      time.Duration
}

// NewService - orchestrator 생성
func NewService(store JobStore, ledgerStore ledger.Store, queue QueueClient, notifier AdminNotifier, pub Publisher, pollInterval, waitMax time.Duration) *Service {
	return &Service{
		store:        store,
		ledger:       ledgerStore,
		queue:        queue,
		notifier:     notifier,
		pub:          pub,
		pollInterval: pollInterval,
		waitMax:      waitMax,
	}
}

// SetPollQueue - 백그라운드 폴러 큐 연결
func (s *Service) SetPollQueue(enq PollEnqueuer) {
	s.enq = enq
}

// Submit - 생성 요청 제출.
// 포인트 체크 → 세션/스타일 해석 → 포인트 차감 → 큐 제출(fallback 포함)
// → in_queue 영속. 차감 이후의 모든 실패 분기는 환불을 거친다.
func (s *Service) Submit(ctx context.Context, userID string, req *SubmitRequest) (*SubmitResponse, error) {
	if userID == "" {
		return nil, apperr.New(apperr.CodeInvalidRequest, "user id is required")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, apperr.New(apperr.CodeInvalidRequest, "prompt is required")
	}

	// 기본값
	numImages := req.NumImages
	if numImages < 1 {
		numImages = 1
	}
	modelType := req.ModelType
	if modelType == "" {
		modelType = "dev"
	}
	resolution := req.Resolution
	if resolution == "" {
		resolution = "1K"
	}

	// 1. 필요 포인트 계산 (순수 함수, 제출 시점 단가로 고정)
	pointsNeeded := pricing.PointsNeeded(modelType, resolution, numImages)

	// 2. 잔액 사전 체크 (mutation 없음)
	enough, err := ledger.HasEnough(ctx, s.ledger, userID, pointsNeeded)
	if err != nil {
		return nil, fmt.Errorf("failed to check balance: %w", err)
	}
	if !enough {
		log.Printf("⚠️ [Generation] User %s has insufficient points (needed: %d)", userID, pointsNeeded)
		return nil, apperr.New(apperr.CodeInsufficientFunds, "not enough points for this generation")
	}

	// 3. 세션 해석/생성
	session, err := s.store.GetOrCreateSession(ctx, req.SessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}

	// 4. 스타일 해석 및 최종 프롬프트 조합
	finalPrompt := strings.TrimSpace(req.Prompt)
	if req.StyleID != "" {
		style, err := s.store.GetStyle(ctx, req.StyleID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve style: %w", err)
		}
		if style != nil && style.StylePrompt != "" {
			finalPrompt = finalPrompt + "\n" + style.StylePrompt
		}
	}

	hasInput := len(req.InputImageURLs) > 0
	primary, fallbacks := provider.ResolveEndpoint(modelType, resolution, hasInput)

	// 5. 포인트 차감 (원자). 동시 제출 경쟁이면 여기서 끊긴다 -
	// 네트워크 호출 전이라 정리할 것이 없다.
	jobID := uuid.New().String()
	balance, err := s.ledger.Reserve(ctx, userID, pointsNeeded, jobID)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return nil, apperr.New(apperr.CodeInsufficientFunds, "not enough points for this generation")
		}
		return nil, fmt.Errorf("failed to reserve points: %w", err)
	}

	// 6. 큐 제출 (실패 시 fallback 한 바퀴)
	queueReq := &falqueue.SubmitRequest{
		Prompt:      finalPrompt,
		NumImages:   numImages,
		ImageURLs:   req.InputImageURLs,
		AspectRatio: req.AspectRatio,
	}

	endpoint, submitResp, submitErr := s.submitWithFallback(ctx, userID, primary, fallbacks, hasInput, queueReq)
	if submitErr != nil {
		// 차감 이후 실패 - 환불하고 에러를 올린다
		if _, refundErr := s.ledger.Refund(ctx, userID, pointsNeeded, jobID); refundErr != nil {
			log.Printf("❌ [Generation] Refund after submit failure errored (job: %s): %v", jobID, refundErr)
			s.recordRefundPending(ctx, jobID, userID, session.SessionID, finalPrompt, pointsNeeded, submitErr)
		}

		if apperr.Is(submitErr, apperr.CodeBalanceExhausted) {
			// 운영자 알림은 비동기 - 호출자 응답을 막지 않는다
			s.notifier.NotifyBalanceExhausted(submitErr.Error())
		}
		return nil, submitErr
	}

	// 7. in_queue로 영속. 제출은 됐지만 durable하지 않으면 환불 후 실패.
	correlationID := submitResp.RequestID
	job := &model.GenerationJob{
		JobID:          jobID,
		UserID:         userID,
		SessionID:      session.SessionID,
		Prompt:         finalPrompt,
		InputImageURLs: req.InputImageURLs,
		StyleID:        req.StyleID,
		AspectRatio:    req.AspectRatio,
		NumImages:      numImages,
		ModelType:      modelType,
		Resolution:     resolution,
		Provider:       endpoint.Provider,
		ProviderModel:  endpoint.Model,
		CorrelationID:  &correlationID,
		Status:         model.StatusInQueue,
		ImageURLs:      []string{},
		PointsReserved: pointsNeeded,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		log.Printf("❌ [Generation] Failed to persist job %s, refunding: %v", jobID, err)
		if _, refundErr := s.ledger.Refund(ctx, userID, pointsNeeded, jobID); refundErr != nil {
			log.Printf("❌ [Generation] Refund after persist failure errored (job: %s): %v", jobID, refundErr)
			s.recordRefundPending(ctx, jobID, userID, session.SessionID, finalPrompt, pointsNeeded, err)
		}
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	log.Printf("✅ [Generation] Job %s submitted (endpoint: %s, points: %d)", jobID, endpoint.Path(), pointsNeeded)

	// 백그라운드 폴러에 등록 (best-effort - 클라이언트 폴링이 여전히 동작한다)
	if s.enq != nil {
		if err := s.enq.EnqueuePoll(ctx, jobID); err != nil {
			log.Printf("⚠️ [Generation] Failed to enqueue job %s for background polling: %v", jobID, err)
		}
	}

	s.publish(job)

	return &SubmitResponse{
		JobID:          jobID,
		SessionID:      session.SessionID,
		Status:         model.StatusInQueue,
		PointsReserved: pointsNeeded,
		Balance:        balance,
	}, nil
}

// submitWithFallback - primary 제출, fallback-eligible 에러면 ordered
// fallback 목록을 한 바퀴만 시도한다 (순환 없음).
func (s *Service) submitWithFallback(ctx context.Context, userID string, primary provider.Endpoint, fallbacks []provider.Endpoint, hasInput bool, req *falqueue.SubmitRequest) (provider.Endpoint, *falqueue.SubmitResponse, error) {
	resp, err := s.queue.Submit(ctx, primary, req)
	if err == nil {
		return primary, resp, nil
	}

	if !isFallbackEligible(err) {
		return primary, nil, err
	}

	active := primary
	for _, next := range fallbacks {
		// 입력 이미지 job은 편집 지원 엔드포인트만
		if hasInput && !next.SupportsEdit {
			continue
		}

		s.recordFallback(ctx, userID, active, next, err)
		log.Printf("🔀 [Generation] Falling back %s → %s after error: %v", active.Path(), next.Path(), err)

		resp, nextErr := s.queue.Submit(ctx, next, req)
		if nextErr == nil {
			return next, resp, nil
		}

		active = next
		err = nextErr
	}

	// 마지막 에러를 그대로 올린다
	return active, nil, err
}

// isFallbackEligible - 제출/생성 에러는 fallback 대상,
// 유저 입력 문제(잔액 부족, 검증)는 아님
func isFallbackEligible(err error) bool {
	switch apperr.CodeOf(err) {
	case apperr.CodeProviderUnavailable, apperr.CodeProviderRejected, apperr.CodeBalanceExhausted:
		return true
	default:
		return false
	}
}

// recordFallback - 관측용 fallback 이벤트 기록 (best-effort)
func (s *Service) recordFallback(ctx context.Context, userID string, active, next provider.Endpoint, err error) {
	httpStatus := 0
	var ae *apperr.Error
	if errors.As(err, &ae) {
		httpStatus = ae.HTTPStatus
	}

	s.store.RecordFallbackEvent(ctx, model.FallbackEvent{
		ActiveProvider:   active.Provider,
		ActiveModel:      active.Model,
		FallbackProvider: next.Provider,
		FallbackModel:    next.Model,
		ErrorCode:        string(apperr.CodeOf(err)),
		HTTPStatus:       httpStatus,
		JobUserID:        userID,
	})
}

// Poll - job 상태를 한 번 전진시킨다. terminal이면 그대로 반환.
// provider가 모르는 상태를 돌려주면 no-op - 다음 사이클에 재시도한다.
func (s *Service) Poll(ctx context.Context, jobID string) (*model.GenerationJob, error) {
	job, err := s.store.FetchJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch job: %w", err)
	}
	if job == nil {
		return nil, apperr.New(apperr.CodeNotFound, "job not found")
	}

	if model.IsTerminal(job.Status) {
		return job, nil
	}

	if job.CorrelationID == nil || *job.CorrelationID == "" {
		// 제출 전 레코드는 없어야 하지만, 있으면 건드리지 않는다
		log.Printf("⚠️ [Generation] Job %s has no correlation id, skipping poll", job.JobID)
		return job, nil
	}

	endpoint := provider.Endpoint{Provider: job.Provider, Model: job.ProviderModel}

	statusResp, err := s.queue.Status(ctx, endpoint, *job.CorrelationID)
	if err != nil {
		// 폴링 에러는 job 실패가 아니다 - 레코드를 건드리지 않고 재시도
		log.Printf("⚠️ [Generation] Status poll failed for job %s, will retry: %v", job.JobID, err)
		return job, nil
	}

	mapped := falqueue.MapStatus(statusResp.Status)
	switch mapped {
	case "":
		// null/미인식 상태는 no-op - 실패로 해석하지 않는다
		log.Printf("⚠️ [Generation] Unrecognized provider status %q for job %s, leaving unchanged",
			statusResp.Status, job.JobID)
		return job, nil

	case model.StatusInQueue, model.StatusInProgress:
		return s.applyProgress(ctx, job, mapped, statusResp.QueuePosition)

	case model.StatusCompleted:
		return s.applyCompleted(ctx, job, endpoint, statusResp.ResponseURL)

	case model.StatusFailed:
		return s.failJob(ctx, job, apperr.New(apperr.CodeProviderRejected, "generation failed"))
	}

	return job, nil
}

// applyProgress - in_queue/in_progress 갱신.
// 상태는 모노토닉 - provider가 in_progress 후에 queued를 보고해도 내리지 않는다.
func (s *Service) applyProgress(ctx context.Context, job *model.GenerationJob, mapped string, queuePos *int) (*model.GenerationJob, error) {
	nextStatus := job.Status
	if model.CanTransition(job.Status, mapped) {
		nextStatus = mapped
	}

	fields := map[string]interface{}{
		"status":         nextStatus,
		"queue_position": queuePos,
	}
	if err := s.store.UpdateJob(ctx, job.JobID, fields); err != nil {
		return job, fmt.Errorf("failed to update job progress: %w", err)
	}

	job.Status = nextStatus
	job.QueuePosition = queuePos

	s.publish(job)
	return job, nil
}

// applyCompleted - 결과 페이로드를 받아 completed로 전이.
// 결과 조회 자체가 실패하면 실패 경로로 들어간다 (환불 포함).
func (s *Service) applyCompleted(ctx context.Context, job *model.GenerationJob, endpoint provider.Endpoint, responseURL string) (*model.GenerationJob, error) {
	result, err := s.queue.FetchResult(ctx, endpoint, *job.CorrelationID, responseURL)
	if err != nil {
		return s.failJob(ctx, job, err)
	}

	imageURLs := make([]string, 0, len(result.Images))
	for _, img := range result.Images {
		if img.URL != "" {
			imageURLs = append(imageURLs, img.URL)
		}
	}

	fields := map[string]interface{}{
		"status":         model.StatusCompleted,
		"image_urls":     imageURLs,
		"queue_position": nil,
	}
	if err := s.store.UpdateJob(ctx, job.JobID, fields); err != nil {
		return job, fmt.Errorf("failed to persist completion: %w", err)
	}

	// 세션 활동 시간 갱신 (best-effort)
	if job.SessionID != "" {
		if err := s.store.TouchSession(ctx, job.SessionID); err != nil {
			log.Printf("⚠️ [Generation] Failed to touch session %s: %v", job.SessionID, err)
		}
	}

	job.Status = model.StatusCompleted
	job.ImageURLs = imageURLs
	job.QueuePosition = nil

	log.Printf("✅ [Generation] Job %s completed with %d images (points consumed: %d)",
		job.JobID, len(imageURLs), job.PointsReserved)

	s.publish(job)
	return job, nil
}

// failJob - failed 전이 + 환불. 전이가 실제로 일어났을 때만 환불하고,
// 환불 자체도 job id 멱등이라 at-least-once 실행을 견딘다.
func (s *Service) failJob(ctx context.Context, job *model.GenerationJob, cause error) (*model.GenerationJob, error) {
	reason := apperr.MessageOf(cause)

	transitioned, err := s.store.MarkFailed(ctx, job.JobID, reason)
	if err != nil {
		return job, fmt.Errorf("failed to mark job failed: %w", err)
	}

	if transitioned {
		if _, refundErr := s.ledger.Refund(ctx, job.UserID, job.PointsReserved, job.JobID); refundErr != nil {
			// 환불 실패는 레코드에 남긴다 - failed 상태는 이미 영속됐으므로
			// 재실행 시 멱등 환불로 복구된다
			log.Printf("❌ [Generation] Refund failed for job %s: %v", job.JobID, refundErr)
		} else {
			log.Printf("💰 [Generation] Refunded %d points to user %s (job: %s)",
				job.PointsReserved, job.UserID, job.JobID)
		}
	}

	job.Status = model.StatusFailed
	job.FailureReason = &reason
	job.QueuePosition = nil

	s.publish(job)
	return job, nil
}

// recordRefundPending - 환불까지 실패한 차감을 failed 레코드로 남긴다.
// 레코드 없이 로그만 남으면 포인트가 조용히 사라진다 - 레코드가 있어야
// 복구 작업이 job id 멱등 환불을 나중에 재실행할 수 있다. Best-effort.
func (s *Service) recordRefundPending(ctx context.Context, jobID, userID, sessionID, prompt string, points int, cause error) {
	reason := "refund pending: " + apperr.MessageOf(cause)
	trace := &model.GenerationJob{
		JobID:          jobID,
		UserID:         userID,
		SessionID:      sessionID,
		Prompt:         prompt,
		Status:         model.StatusFailed,
		ImageURLs:      []string{},
		PointsReserved: points,
		FailureReason:  &reason,
	}
	if err := s.store.CreateJob(ctx, trace); err != nil {
		log.Printf("❌ [Generation] Failed to persist refund-pending trace for job %s: %v", jobID, err)
	}
}

// WaitForResult - terminal까지 블로킹 폴링.
// 데드라인이 지나면 Timeout을 올리지만 job 레코드는 건드리지 않는다 -
// out-of-band 폴러가 나중에 완료시킬 수 있다. 환불도 없다.
func (s *Service) WaitForResult(ctx context.Context, jobID string, timeout time.Duration) (*model.GenerationJob, error) {
	if timeout <= 0 || timeout > s.waitMax {
		timeout = s.waitMax
	}

	deadline := time.Now().Add(timeout)

	for {
		job, err := s.Poll(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if model.IsTerminal(job.Status) {
			return job, nil
		}

		if time.Now().After(deadline) {
			return nil, apperr.New(apperr.CodeTimeout, "generation is still running, check back later")
		}

		select {
		case <-ctx.Done():
			return nil, apperr.Wrap(apperr.CodeTimeout, "wait cancelled", ctx.Err())
		case <-time.After(s.pollInterval):
		}
	}
}

// GetJob - 소유권 체크 포함 단건 조회
func (s *Service) GetJob(ctx context.Context, jobID string, userID string) (*model.GenerationJob, error) {
	job, err := s.store.FetchJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch job: %w", err)
	}
	if job == nil {
		return nil, apperr.New(apperr.CodeNotFound, "job not found")
	}
	if userID != "" && job.UserID != userID {
		return nil, apperr.New(apperr.CodeForbidden, "job belongs to another user")
	}
	return job, nil
}

// ListActive - 유저의 in_queue/in_progress job 목록
func (s *Service) ListActive(ctx context.Context, userID string) ([]model.GenerationJob, error) {
	if userID == "" {
		return nil, apperr.New(apperr.CodeInvalidRequest, "user id is required")
	}
	return s.store.FindActiveByUser(ctx, userID)
}

// publish - 상태 전이 푸시 (best-effort)
func (s *Service) publish(job *model.GenerationJob) {
	if s.pub == nil || job.SessionID == "" {
		return
	}
	s.pub.PublishJobUpdate(job.SessionID, job)
}
