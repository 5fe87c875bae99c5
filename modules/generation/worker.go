package generation

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"pixelforge-server/modules/common/apperr"
	"pixelforge-server/modules/common/model"
	redisutil "pixelforge-server/modules/common/redis"
)

// RedisPollQueue - Redis 리스트 기반 폴러 큐 (PollEnqueuer 구현)
type RedisPollQueue struct {
	rdb *redis.Client
}

// NewRedisPollQueue - 폴러 큐 생성
func NewRedisPollQueue(rdb *redis.Client) *RedisPollQueue {
	return &RedisPollQueue{rdb: rdb}
}

func (q *RedisPollQueue) EnqueuePoll(ctx context.Context, jobID string) error {
	return redisutil.EnqueuePoll(ctx, q.rdb, jobID)
}

// StartWorker - out-of-band 폴러 시작.
// 큐에서 job id를 받아 상태를 한 번 전진시키고, terminal이 아니면
// 폴링 주기만큼 기다렸다가 다시 큐에 넣는다. 클라이언트가 떠나도
// job은 여기서 완료/실패까지 굴러간다.
func StartWorker(service *Service, rdb *redis.Client, pollInterval time.Duration) {
	log.Println("🔄 Generation poll worker starting...")
	log.Printf("👀 Watching queue: %s", redisutil.PollQueueKey)

	ctx := context.Background()
	enq := NewRedisPollQueue(rdb)

	// 무한 루프로 Queue 감시
	for {
		// Job 받기 (BRPOP - Blocking Right Pop)
		result, err := rdb.BRPop(ctx, 0, redisutil.PollQueueKey).Result()
		if err != nil {
			log.Printf("❌ Redis BRPOP error: %v", err)
			time.Sleep(5 * time.Second)
			continue
		}

		// result[0]은 큐 이름, result[1]이 실제 job_id
		jobID := result[1]

		go pollOnce(ctx, service, enq, jobID, pollInterval)
	}
}

// pollOnce - job 하나를 한 번 폴링하고 필요하면 재등록.
// NotFound만 드롭한다 - 일시 오류(스토어/네트워크)로 드롭하면 job이
// in_queue에 포인트가 묶인 채 영원히 멈추므로, 그 외 에러는 재등록한다.
func pollOnce(ctx context.Context, service *Service, enq PollEnqueuer, jobID string, pollInterval time.Duration) {
	job, err := service.Poll(ctx, jobID)
	if err != nil {
		if apperr.Is(err, apperr.CodeNotFound) {
			log.Printf("❌ [Worker] Job %s not found, dropping: %v", jobID, err)
			return
		}

		log.Printf("⚠️ [Worker] Poll errored for job %s, will retry: %v", jobID, err)
		requeueAfter(enq, jobID, pollInterval)
		return
	}

	if model.IsTerminal(job.Status) {
		log.Printf("🏁 [Worker] Job %s reached terminal state: %s", jobID, job.Status)
		return
	}

	// 폴링 주기 후 재등록
	requeueAfter(enq, jobID, pollInterval)
}

// requeueAfter - delay 후 job id를 폴러 큐에 되돌린다
func requeueAfter(enq PollEnqueuer, jobID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		if err := enq.EnqueuePoll(context.Background(), jobID); err != nil {
			log.Printf("⚠️ [Worker] Failed to re-enqueue job %s: %v", jobID, err)
		}
	})
}
