package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelforge-server/modules/common/cooldown"
)

func TestDeliverBalanceExhaustedRespectsCooldown(t *testing.T) {
	var mu sync.Mutex
	var payloads []map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		mu.Lock()
		payloads = append(payloads, p)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := cooldown.NewMemoryStore()
	store.Now = func() time.Time { return now }

	n := NewWith(srv.URL, store, time.Hour)
	ctx := context.Background()

	// 첫 알림은 나간다
	assert.True(t, n.deliverBalanceExhausted(ctx, "fal 403: exhausted balance"))

	// 쿨다운 중 두 번째는 억제
	now = now.Add(10 * time.Minute)
	assert.False(t, n.deliverBalanceExhausted(ctx, "fal 403: exhausted balance"))

	// 윈도우가 지나면 다시 나간다
	now = now.Add(time.Hour)
	assert.True(t, n.deliverBalanceExhausted(ctx, "fal 403: exhausted balance"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, payloads, 2)
	assert.Equal(t, "provider_balance_exhausted", payloads[0]["alert"])
	assert.Equal(t, "fal 403: exhausted balance", payloads[0]["details"])
}

func TestDeliverWithoutWebhookIsNoOp(t *testing.T) {
	n := NewWith("", cooldown.NewMemoryStore(), time.Hour)
	assert.False(t, n.deliverBalanceExhausted(context.Background(), "whatever"))
}

func TestWebhookFailureStillConsumesCooldown(t *testing.T) {
	// 전송 실패 시에도 쿨다운 슬롯은 소비된다 - 다운된 webhook을
	// 향한 알림 폭주를 막는 쪽을 택한다
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	store := cooldown.NewMemoryStore()
	n := NewWith(srv.URL, store, time.Hour)
	ctx := context.Background()

	assert.False(t, n.deliverBalanceExhausted(ctx, "first"))

	acquired, err := store.Acquire(ctx, balanceExhaustedKey, time.Hour)
	require.NoError(t, err)
	assert.False(t, acquired)
}
