package falqueue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelforge-server/modules/common/apperr"
	"pixelforge-server/modules/common/model"
	"pixelforge-server/modules/provider"
)

var testEndpoint = provider.Endpoint{Provider: "fal-ai", Model: "flux/dev"}

func testClient(baseURL string) *Client {
	return NewClientWith(baseURL, "test-key",
		[]string{"exhausted balance", "user is locked"},
		5*time.Second, 5*time.Second)
}

func TestSubmitSuccess(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody SubmitRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"request_id":         "req-123",
			"gateway_request_id": "gw-456",
		})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	resp, err := c.Submit(context.Background(), testEndpoint, &SubmitRequest{
		Prompt:    "a red bicycle",
		NumImages: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, "req-123", resp.RequestID)
	assert.Equal(t, "gw-456", resp.GatewayRequestID)
	assert.Equal(t, "/fal-ai/flux/dev", gotPath)
	assert.Equal(t, "Key test-key", gotAuth)
	assert.Equal(t, "a red bicycle", gotBody.Prompt)
	assert.Equal(t, 2, gotBody.NumImages)
}

func TestSubmitConnectivityErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // 즉시 닫아 연결 거부 유도

	c := testClient(srv.URL)
	_, err := c.Submit(context.Background(), testEndpoint, &SubmitRequest{Prompt: "x", NumImages: 1})
	assert.True(t, apperr.Is(err, apperr.CodeProviderUnavailable))
}

func TestSubmit403WithPhraseIsBalanceExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"detail":"User is locked. Reason: Exhausted balance."}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Submit(context.Background(), testEndpoint, &SubmitRequest{Prompt: "x", NumImages: 1})
	assert.True(t, apperr.Is(err, apperr.CodeBalanceExhausted))

	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusForbidden, ae.HTTPStatus)
}

func TestSubmit403WithoutPhraseIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"detail":"invalid api key"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Submit(context.Background(), testEndpoint, &SubmitRequest{Prompt: "x", NumImages: 1})
	assert.True(t, apperr.Is(err, apperr.CodeProviderRejected))
}

func TestSubmitMissingRequestIDIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Submit(context.Background(), testEndpoint, &SubmitRequest{Prompt: "x", NumImages: 1})
	assert.True(t, apperr.Is(err, apperr.CodeProviderRejected))
}

func TestStatusParsesQueuePosition(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":         "IN_QUEUE",
			"queue_position": 7,
			"response_url":   "",
		})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	resp, err := c.Status(context.Background(), testEndpoint, "req-123")
	require.NoError(t, err)

	assert.Equal(t, "/fal-ai/flux/dev/requests/req-123/status", gotPath)
	assert.Equal(t, "IN_QUEUE", resp.Status)
	require.NotNil(t, resp.QueuePosition)
	assert.Equal(t, 7, *resp.QueuePosition)
}

func TestFetchResultPrefersResponseURL(t *testing.T) {
	result := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"images": []map[string]string{{"url": "https://img/a.png"}},
		})
	}))
	defer result.Close()

	c := testClient("http://unused.invalid")
	res, err := c.FetchResult(context.Background(), testEndpoint, "req-123", result.URL)
	require.NoError(t, err)
	require.Len(t, res.Images, 1)
	assert.Equal(t, "https://img/a.png", res.Images[0].URL)
}

func TestFetchResultFallsBackToRequestID(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]interface{}{
			"images": []map[string]string{{"url": "https://img/b.png"}},
		})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	res, err := c.FetchResult(context.Background(), testEndpoint, "req-123", "")
	require.NoError(t, err)

	assert.Equal(t, "/fal-ai/flux/dev/requests/req-123", gotPath)
	assert.Equal(t, "https://img/b.png", res.Images[0].URL)
}

func TestFetchResult422IsContentPolicyViolation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":"nsfw content detected"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.FetchResult(context.Background(), testEndpoint, "req-123", "")
	assert.True(t, apperr.Is(err, apperr.CodeContentPolicyViolation))
}

func TestFetchResultEmptyImagesIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"images":[]}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.FetchResult(context.Background(), testEndpoint, "req-123", "")
	assert.True(t, apperr.Is(err, apperr.CodeProviderRejected))
}

func TestMapStatus(t *testing.T) {
	cases := map[string]string{
		"QUEUED":      model.StatusInQueue,
		"IN_QUEUE":    model.StatusInQueue,
		"in_progress": model.StatusInProgress,
		"PROCESSING":  model.StatusInProgress,
		"COMPLETED":   model.StatusCompleted,
		"OK":          model.StatusCompleted,
		"FAILED":      model.StatusFailed,
		"ERROR":       model.StatusFailed,
		"":            "",
		"SOMETHING":   "",
	}
	for in, want := range cases {
		assert.Equal(t, want, MapStatus(in), "input %q", in)
	}
}
