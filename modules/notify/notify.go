package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"pixelforge-server/modules/common/config"
	"pixelforge-server/modules/common/cooldown"
)

// 같은 조건으로 반복 알림을 막는 쿨다운 키
const balanceExhaustedKey = "alert:balance_exhausted"

// Notifier - 운영자 webhook 알림. Best-effort - 실패해도 job 결과에는
// 영향을 주지 않는다. 쿨다운은 Notifier가 단독으로 소유한다 (이중 소유는
// 중복 알림 아니면 무음 억제를 만든다).
type Notifier struct {
	httpClient  *http.Client
	webhookURL  string
	cooldown    cooldown.Store
	cooldownTTL time.Duration
}

// New - 설정 기반 Notifier 생성
func New(store cooldown.Store) *Notifier {
	cfg := config.GetConfig()

	if cfg.AdminWebhookURL == "" {
		log.Println("⚠️ [Notify] ADMIN_WEBHOOK_URL not configured, alerts disabled")
	}

	return NewWith(cfg.AdminWebhookURL, store, cfg.AlertCooldown)
}

// NewWith - 파라미터 직접 주입 (테스트용)
func NewWith(webhookURL string, store cooldown.Store, cooldownTTL time.Duration) *Notifier {
	return &Notifier{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		webhookURL:  webhookURL,
		cooldown:    store,
		cooldownTTL: cooldownTTL,
	}
}

// NotifyBalanceExhausted - provider 잔액 소진 알림 (fire-and-forget)
func (n *Notifier) NotifyBalanceExhausted(details string) {
	go func() {
		n.deliverBalanceExhausted(context.Background(), details)
	}()
}

// deliverBalanceExhausted - 쿨다운 체크 후 webhook 전송.
// 실제로 전송했으면 true.
func (n *Notifier) deliverBalanceExhausted(ctx context.Context, details string) bool {
	if n.webhookURL == "" {
		return false
	}

	acquired, err := n.cooldown.Acquire(ctx, balanceExhaustedKey, n.cooldownTTL)
	if err != nil {
		log.Printf("⚠️ [Notify] Cooldown check failed: %v", err)
		return false
	}
	if !acquired {
		log.Printf("🔕 [Notify] Balance-exhausted alert suppressed (cooldown active)")
		return false
	}

	payload := map[string]interface{}{
		"alert":   "provider_balance_exhausted",
		"message": "Provider prepaid balance is exhausted, generations are failing",
		"details": details,
		"at":      time.Now().UTC().Format(time.RFC3339),
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		log.Printf("⚠️ [Notify] Failed to marshal alert payload: %v", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, "POST", n.webhookURL, bytes.NewReader(jsonBody))
	if err != nil {
		log.Printf("⚠️ [Notify] Failed to build alert request: %v", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		log.Printf("⚠️ [Notify] Failed to deliver alert: %v", err)
		return false
	}
	defer resp.Body.Close()

	log.Printf("🚨 [Notify] Balance-exhausted alert delivered (status: %d)", resp.StatusCode)
	return true
}
