package main

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"pixelforge-server/modules/common/config"
	"pixelforge-server/modules/common/cooldown"
	"pixelforge-server/modules/common/database"
	redisutil "pixelforge-server/modules/common/redis"
	"pixelforge-server/modules/generation"
	"pixelforge-server/modules/ledger"
	"pixelforge-server/modules/notify"
	"pixelforge-server/modules/progress"
	"pixelforge-server/modules/submodule/falqueue"
)

// CORS 헤더 추가
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-Id")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// 헬스 체크 엔드포인트
func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "pixelforge-generation",
	})
}

func main() {
	// 환경변수 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Redis 연결 (폴러 큐 + 알림 쿨다운)
	rdb := redisutil.Connect(cfg)
	if rdb == nil {
		log.Fatal("❌ Failed to connect to Redis")
	}
	log.Println("✅ Redis connected successfully")

	// Database 클라이언트 초기화
	dbClient := database.NewClient()
	if dbClient == nil {
		log.Fatal("❌ Failed to initialize Database client")
	}

	// Ledger 초기화
	ledgerStore := ledger.NewSupabaseStore()
	if ledgerStore == nil {
		log.Fatal("❌ Failed to initialize Ledger store")
	}

	// fal Queue 클라이언트 초기화
	queueClient := falqueue.NewClient()
	if queueClient == nil {
		log.Fatal("❌ Failed to initialize fal Queue client")
	}

	// Admin Notifier (쿨다운은 Redis 소유)
	notifier := notify.New(cooldown.NewRedisStore(rdb))

	// Progress WebSocket 허브
	hub := progress.NewHub()

	// Orchestrator 조립
	service := generation.NewService(dbClient, ledgerStore, queueClient, notifier, hub,
		cfg.PollInterval, cfg.WaitMax)
	service.SetPollQueue(generation.NewRedisPollQueue(rdb))

	// 백그라운드 폴러 시작
	go generation.StartWorker(service, rdb, cfg.PollInterval)

	// 라우터 설정
	r := mux.NewRouter()
	r.Use(enableCORS)

	r.HandleFunc("/", healthCheck).Methods("GET")
	r.HandleFunc("/health", healthCheck).Methods("GET")
	r.HandleFunc("/ws", hub.HandleWebSocket)

	handler := generation.NewHandler(service)
	handler.RegisterRoutes(r)

	log.Printf("🚀 PixelForge Generation Server starting on port %s", cfg.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost:%s/ws", cfg.Port)
	log.Printf("❤️  Health check: http://localhost:%s/health", cfg.Port)

	// 서버 시작
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
