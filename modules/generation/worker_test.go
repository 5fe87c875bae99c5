package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelforge-server/modules/common/model"
	"pixelforge-server/modules/ledger"
	"pixelforge-server/modules/provider"
	"pixelforge-server/modules/submodule/falqueue"
)

// flakyFetchStore - FetchJob이 지정 횟수만큼 일시 오류를 내는 store
type flakyFetchStore struct {
	*fakeStore
	mu       sync.Mutex
	failures int
}

func (s *flakyFetchStore) FetchJob(ctx context.Context, jobID string) (*model.GenerationJob, error) {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return nil, errors.New("connection reset by peer")
	}
	s.mu.Unlock()
	return s.fakeStore.FetchJob(ctx, jobID)
}

// fakeEnqueuer - 재등록된 job id 기록
type fakeEnqueuer struct {
	mu     sync.Mutex
	jobIDs []string
}

func (f *fakeEnqueuer) EnqueuePoll(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobIDs = append(f.jobIDs, jobID)
	return nil
}

func (f *fakeEnqueuer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobIDs)
}

func TestPollWorkerRetriesAfterTransientStoreError(t *testing.T) {
	ctx := context.Background()
	store := &flakyFetchStore{fakeStore: newFakeStore()}
	led := ledger.NewMemoryStore()
	led.SetBalance("user-1", 10)
	queue := &fakeQueue{
		statusFn: func(ep provider.Endpoint, id string) (*falqueue.StatusResponse, error) {
			return &falqueue.StatusResponse{Status: "COMPLETED"}, nil
		},
	}
	svc := NewService(store, led, queue, &fakeNotifier{}, nil, time.Millisecond, 50*time.Millisecond)

	resp, err := svc.Submit(ctx, "user-1", submitRequest())
	require.NoError(t, err)

	// 다음 조회가 일시 오류를 낸다
	store.mu.Lock()
	store.failures = 1
	store.mu.Unlock()

	enq := &fakeEnqueuer{}
	pollOnce(ctx, svc, enq, resp.JobID, time.Millisecond)

	// 드롭이 아니라 재등록돼야 한다
	assert.Eventually(t, func() bool { return enq.count() == 1 }, time.Second, time.Millisecond)

	// 재시도 사이클 - 이번엔 store가 정상이라 terminal까지 간다
	pollOnce(ctx, svc, enq, resp.JobID, time.Millisecond)

	job, err := store.FetchJob(ctx, resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, job.Status)
}

func TestPollWorkerDropsMissingJob(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	led := ledger.NewMemoryStore()
	svc := newTestService(store, led, &fakeQueue{}, &fakeNotifier{})

	enq := &fakeEnqueuer{}
	pollOnce(ctx, svc, enq, "no-such-job", time.Millisecond)

	// NotFound는 영구 오류 - 재등록하지 않는다
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, enq.count())
}

func TestPollWorkerRequeuesNonTerminalJob(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	led := ledger.NewMemoryStore()
	led.SetBalance("user-1", 10)
	queue := &fakeQueue{
		statusFn: func(ep provider.Endpoint, id string) (*falqueue.StatusResponse, error) {
			return &falqueue.StatusResponse{Status: "IN_PROGRESS"}, nil
		},
	}
	svc := newTestService(store, led, queue, &fakeNotifier{})

	resp, err := svc.Submit(ctx, "user-1", submitRequest())
	require.NoError(t, err)

	enq := &fakeEnqueuer{}
	pollOnce(ctx, svc, enq, resp.JobID, time.Millisecond)

	assert.Eventually(t, func() bool { return enq.count() == 1 }, time.Second, time.Millisecond)
}
