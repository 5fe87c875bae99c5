package falqueue

import (
	"strings"

	"pixelforge-server/modules/common/model"
)

// SubmitRequest - 큐 제출 바디
type SubmitRequest struct {
	Prompt      string   `json:"prompt"`
	NumImages   int      `json:"num_images"`
	ImageURLs   []string `json:"image_urls,omitempty"`
	AspectRatio string   `json:"aspect_ratio,omitempty"`
}

// SubmitResponse - 큐 제출 응답
type SubmitResponse struct {
	RequestID        string `json:"request_id"`
	GatewayRequestID string `json:"gateway_request_id"`
}

// StatusResponse - 상태 폴링 응답
type StatusResponse struct {
	Status        string `json:"status"`
	QueuePosition *int   `json:"queue_position,omitempty"`
	ResponseURL   string `json:"response_url,omitempty"`
}

// Result - 완료된 요청의 결과 페이로드
type Result struct {
	Images []ResultImage `json:"images"`
}

// ResultImage - 생성된 이미지 한 장
type ResultImage struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

// MapStatus - provider 상태 어휘를 내부 상태로 변환.
// 모르는 값은 "" - 호출측은 no-op으로 취급하고 다음 사이클에 재시도한다.
func MapStatus(providerStatus string) string {
	switch strings.ToUpper(strings.TrimSpace(providerStatus)) {
	case "QUEUED", "IN_QUEUE":
		return model.StatusInQueue
	case "IN_PROGRESS", "PROCESSING":
		return model.StatusInProgress
	case "COMPLETED", "OK":
		return model.StatusCompleted
	case "FAILED", "ERROR":
		return model.StatusFailed
	default:
		return ""
	}
}
