package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/supabase-community/supabase-go"
	"pixelforge-server/modules/common/config"
	"pixelforge-server/modules/common/model"
)

type Client struct {
	supabase *supabase.Client
}

// NewClient - Database 클라이언트 생성
func NewClient() *Client {
	cfg := config.GetConfig()

	supabaseClient, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, &supabase.ClientOptions{})
	if err != nil {
		log.Printf("❌ Failed to create Supabase client: %v", err)
		return nil
	}

	return &Client{
		supabase: supabaseClient,
	}
}

// CreateJob - pf_generation_jobs에 Job 레코드 생성
func (c *Client) CreateJob(ctx context.Context, job *model.GenerationJob) error {
	log.Printf("💾 Creating job record: %s (user: %s, points: %d)", job.JobID, job.UserID, job.PointsReserved)

	insertData := map[string]interface{}{
		"job_id":           job.JobID,
		"user_id":          job.UserID,
		"session_id":       job.SessionID,
		"prompt":           job.Prompt,
		"input_image_urls": job.InputImageURLs,
		"style_id":         job.StyleID,
		"aspect_ratio":     job.AspectRatio,
		"num_images":       job.NumImages,
		"model_type":       job.ModelType,
		"resolution":       job.Resolution,
		"provider":         job.Provider,
		"provider_model":   job.ProviderModel,
		"correlation_id":   job.CorrelationID,
		"status":           job.Status,
		"queue_position":   job.QueuePosition,
		"image_urls":       job.ImageURLs,
		"points_reserved":  job.PointsReserved,
	}

	_, _, err := c.supabase.From("pf_generation_jobs").
		Insert(insertData, false, "", "", "").
		Execute()

	if err != nil {
		return fmt.Errorf("failed to insert job record: %w", err)
	}

	log.Printf("✅ Job record created: %s", job.JobID)
	return nil
}

// FetchJob - Supabase에서 Job 데이터 조회
func (c *Client) FetchJob(ctx context.Context, jobID string) (*model.GenerationJob, error) {
	var jobs []model.GenerationJob

	data, _, err := c.supabase.From("pf_generation_jobs").
		Select("*", "exact", false).
		Eq("job_id", jobID).
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to query Supabase: %w", err)
	}

	// JSON 파싱
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(jobs) == 0 {
		return nil, nil
	}

	return &jobs[0], nil
}

// UpdateJob - Job 필드 업데이트 (updated_at은 항상 갱신)
func (c *Client) UpdateJob(ctx context.Context, jobID string, fields map[string]interface{}) error {
	updateData := map[string]interface{}{
		"updated_at": "now()",
	}
	for k, v := range fields {
		updateData[k] = v
	}

	_, _, err := c.supabase.From("pf_generation_jobs").
		Update(updateData, "", "").
		Eq("job_id", jobID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", jobID, err)
	}
	return nil
}

// MarkFailed - Job을 failed로 전이 (이미 terminal이면 no-op)
// 실제로 전이됐을 때만 true를 반환한다. 환불은 이 결과에 묶인다.
func (c *Client) MarkFailed(ctx context.Context, jobID string, reason string) (bool, error) {
	log.Printf("📝 Marking job %s as failed: %s", jobID, reason)

	updateData := map[string]interface{}{
		"status":         model.StatusFailed,
		"failure_reason": reason,
		"queue_position": nil,
		"updated_at":     "now()",
	}

	// terminal 상태는 건드리지 않는다 (조건부 업데이트)
	data, _, err := c.supabase.From("pf_generation_jobs").
		Update(updateData, "representation", "").
		Eq("job_id", jobID).
		In("status", []string{model.StatusInQueue, model.StatusInProgress}).
		Execute()

	if err != nil {
		return false, fmt.Errorf("failed to mark job failed: %w", err)
	}

	var updated []model.GenerationJob
	if err := json.Unmarshal(data, &updated); err != nil {
		return false, fmt.Errorf("failed to parse update response: %w", err)
	}

	if len(updated) == 0 {
		log.Printf("⚠️  Job %s already terminal, skipping failed transition", jobID)
		return false, nil
	}

	log.Printf("✅ Job %s marked as failed", jobID)
	return true, nil
}

// FindActiveByUser - 유저의 in_queue/in_progress Job 조회
func (c *Client) FindActiveByUser(ctx context.Context, userID string) ([]model.GenerationJob, error) {
	var jobs []model.GenerationJob

	data, _, err := c.supabase.From("pf_generation_jobs").
		Select("*", "exact", false).
		Eq("user_id", userID).
		In("status", []string{model.StatusInQueue, model.StatusInProgress}).
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to query active jobs: %w", err)
	}

	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return jobs, nil
}

// GetOrCreateSession - 세션 조회, 없으면 생성
func (c *Client) GetOrCreateSession(ctx context.Context, sessionID string, userID string) (*model.Session, error) {
	if sessionID != "" {
		var sessions []model.Session

		data, _, err := c.supabase.From("pf_sessions").
			Select("*", "exact", false).
			Eq("session_id", sessionID).
			Execute()

		if err != nil {
			return nil, fmt.Errorf("failed to query session: %w", err)
		}

		if err := json.Unmarshal(data, &sessions); err != nil {
			return nil, fmt.Errorf("failed to parse session response: %w", err)
		}

		if len(sessions) > 0 {
			return &sessions[0], nil
		}
	}

	// 새 세션 생성
	insertData := map[string]interface{}{
		"user_id": userID,
	}
	if sessionID != "" {
		insertData["session_id"] = sessionID
	}

	data, _, err := c.supabase.From("pf_sessions").
		Insert(insertData, false, "", "representation", "").
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	var created []model.Session
	if err := json.Unmarshal(data, &created); err != nil {
		return nil, fmt.Errorf("failed to parse created session: %w", err)
	}

	if len(created) == 0 {
		return nil, fmt.Errorf("no session record returned")
	}

	log.Printf("✅ Created new session: %s (user: %s)", created[0].SessionID, userID)
	return &created[0], nil
}

// TouchSession - 세션 updated_at 갱신
func (c *Client) TouchSession(ctx context.Context, sessionID string) error {
	_, _, err := c.supabase.From("pf_sessions").
		Update(map[string]interface{}{"updated_at": "now()"}, "", "").
		Eq("session_id", sessionID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to touch session %s: %w", sessionID, err)
	}
	return nil
}

// GetStyle - 스타일 조회
func (c *Client) GetStyle(ctx context.Context, styleID string) (*model.Style, error) {
	var styles []model.Style

	data, _, err := c.supabase.From("pf_styles").
		Select("*", "exact", false).
		Eq("style_id", styleID).
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to query style: %w", err)
	}

	if err := json.Unmarshal(data, &styles); err != nil {
		return nil, fmt.Errorf("failed to parse style response: %w", err)
	}

	if len(styles) == 0 {
		return nil, nil
	}

	return &styles[0], nil
}

// RecordFallbackEvent - pf_fallback_events에 관측 이벤트 기록 (best-effort)
func (c *Client) RecordFallbackEvent(ctx context.Context, ev model.FallbackEvent) {
	insertData := map[string]interface{}{
		"active_provider":   ev.ActiveProvider,
		"active_model":      ev.ActiveModel,
		"fallback_provider": ev.FallbackProvider,
		"fallback_model":    ev.FallbackModel,
		"error_code":        ev.ErrorCode,
		"http_status":       ev.HTTPStatus,
		"job_user_id":       ev.JobUserID,
	}

	_, _, err := c.supabase.From("pf_fallback_events").
		Insert(insertData, false, "", "", "").
		Execute()

	if err != nil {
		log.Printf("⚠️  Failed to record fallback event: %v", err)
	}
}
