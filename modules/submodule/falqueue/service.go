package falqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"pixelforge-server/modules/common/apperr"
	"pixelforge-server/modules/common/config"
	"pixelforge-server/modules/provider"
)

// Client - fal 스타일 비동기 큐 API 클라이언트.
// 제출/상태는 짧은 타임아웃, 결과 다운로드는 긴 타임아웃을 쓴다.
type Client struct {
	submitClient     *http.Client
	fetchClient      *http.Client
	baseURL          string
	apiKey           string
	exhaustedPhrases []string
}

// NewClient - 설정 기반 클라이언트 생성
func NewClient() *Client {
	cfg := config.GetConfig()

	if cfg.FalAPIKey == "" {
		log.Println("⚠️ [FalQueue] FAL_API_KEY not configured")
		return nil
	}

	log.Println("✅ [FalQueue] Client initialized")
	return NewClientWith(cfg.FalQueueBaseURL, cfg.FalAPIKey, cfg.BalanceExhaustedPhrases,
		cfg.SubmitTimeout, cfg.FetchTimeout)
}

// NewClientWith - 파라미터 직접 주입 (테스트용)
func NewClientWith(baseURL, apiKey string, exhaustedPhrases []string, submitTimeout, fetchTimeout time.Duration) *Client {
	return &Client{
		submitClient:     &http.Client{Timeout: submitTimeout},
		fetchClient:      &http.Client{Timeout: fetchTimeout},
		baseURL:          strings.TrimRight(baseURL, "/"),
		apiKey:           apiKey,
		exhaustedPhrases: exhaustedPhrases,
	}
}

// Submit - job을 큐에 제출하고 correlation id를 받는다
func (c *Client) Submit(ctx context.Context, endpoint provider.Endpoint, req *SubmitRequest) (*SubmitResponse, error) {
	submitURL := fmt.Sprintf("%s/%s", c.baseURL, endpoint.Path())

	log.Printf("📤 [FalQueue] Submitting to %s (num_images: %d, input_images: %d)",
		endpoint.Path(), req.NumImages, len(req.ImageURLs))

	jsonBody, err := json.Marshal(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeProviderRejected, "failed to build provider request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", submitURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeProviderRejected, "failed to build provider request", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.submitClient.Do(httpReq)
	if err != nil {
		log.Printf("❌ [FalQueue] Submit connectivity error: %v", err)
		return nil, apperr.Wrap(apperr.CodeProviderUnavailable,
			"generation service unavailable, retry later", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeProviderUnavailable,
			"generation service unavailable, retry later", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, c.classifySubmitError(resp.StatusCode, bodyBytes)
	}

	var submitResp SubmitResponse
	if err := json.Unmarshal(bodyBytes, &submitResp); err != nil {
		return nil, apperr.Wrap(apperr.CodeProviderRejected,
			"provider returned an unreadable response", err).WithStatus(resp.StatusCode)
	}

	if submitResp.RequestID == "" {
		return nil, apperr.New(apperr.CodeProviderRejected,
			"provider did not return a request id").WithStatus(resp.StatusCode)
	}

	log.Printf("✅ [FalQueue] Submitted: request_id=%s", submitResp.RequestID)
	return &submitResp, nil
}

// Status - correlation id로 상태 폴링
func (c *Client) Status(ctx context.Context, endpoint provider.Endpoint, requestID string) (*StatusResponse, error) {
	statusURL := fmt.Sprintf("%s/%s/requests/%s/status", c.baseURL, endpoint.Path(), requestID)

	httpReq, err := http.NewRequestWithContext(ctx, "GET", statusURL, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeProviderRejected, "failed to build status request", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.submitClient.Do(httpReq)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeProviderUnavailable, "status check failed", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeProviderUnavailable, "status check failed", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("❌ [FalQueue] Status error: status=%d, body=%s", resp.StatusCode, truncateString(string(bodyBytes), 200))
		return nil, apperr.New(apperr.CodeProviderRejected, "status check rejected").WithStatus(resp.StatusCode)
	}

	var statusResp StatusResponse
	if err := json.Unmarshal(bodyBytes, &statusResp); err != nil {
		return nil, apperr.Wrap(apperr.CodeProviderRejected, "unreadable status response", err)
	}

	return &statusResp, nil
}

// FetchResult - 완료된 요청의 결과 페이로드 다운로드.
// response_url이 있으면 그쪽으로, 없으면 request id 직접 조회로 폴백한다.
func (c *Client) FetchResult(ctx context.Context, endpoint provider.Endpoint, requestID string, responseURL string) (*Result, error) {
	fetchURL := responseURL
	if fetchURL == "" {
		fetchURL = fmt.Sprintf("%s/%s/requests/%s", c.baseURL, endpoint.Path(), requestID)
		log.Printf("🔍 [FalQueue] No response_url, fetching by request id: %s", requestID)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "GET", fetchURL, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeProviderRejected, "failed to build result request", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.fetchClient.Do(httpReq)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeProviderUnavailable, "failed to download result", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeProviderUnavailable, "failed to download result", err)
	}

	if resp.StatusCode == http.StatusUnprocessableEntity {
		log.Printf("🚫 [FalQueue] Content policy violation: %s", truncateString(string(bodyBytes), 200))
		return nil, apperr.New(apperr.CodeContentPolicyViolation,
			"your prompt was rejected by the content policy").WithStatus(resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("❌ [FalQueue] Result fetch error: status=%d, body=%s", resp.StatusCode, truncateString(string(bodyBytes), 200))
		return nil, apperr.New(apperr.CodeProviderRejected,
			"failed to fetch generation result").WithStatus(resp.StatusCode)
	}

	var result Result
	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		return nil, apperr.Wrap(apperr.CodeProviderRejected, "unreadable result payload", err)
	}

	if len(result.Images) == 0 {
		return nil, apperr.New(apperr.CodeProviderRejected, "provider returned no images")
	}

	return &result, nil
}

// classifySubmitError - 제출 실패 분류.
// 403 + 설정된 문구 매칭이면 balance-exhausted (플랫폼 선불 잔액 소진).
// 문구 매칭은 provider free-text 의존이라 설정으로만 관리한다.
func (c *Client) classifySubmitError(status int, body []byte) error {
	bodyStr := string(body)

	if status == http.StatusForbidden {
		lower := strings.ToLower(bodyStr)
		for _, phrase := range c.exhaustedPhrases {
			if strings.Contains(lower, strings.ToLower(phrase)) {
				log.Printf("🚨 [FalQueue] Provider balance exhausted: %s", truncateString(bodyStr, 200))
				return apperr.New(apperr.CodeBalanceExhausted,
					"generation service temporarily unavailable").WithStatus(status)
			}
		}
	}

	log.Printf("❌ [FalQueue] Submit rejected: status=%d, body=%s", status, truncateString(bodyStr, 200))
	return apperr.New(apperr.CodeProviderRejected,
		"provider rejected the request").WithStatus(status)
}

// setHeaders - 공통 헤더
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+c.apiKey)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
