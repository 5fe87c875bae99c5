package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 구조체 - 모든 환경변수를 담음
type Config struct {
	// Redis
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool

	// Supabase
	SupabaseURL        string
	SupabaseServiceKey string

	// fal Queue API
	FalQueueBaseURL string
	FalAPIKey       string

	// Server
	Port string

	// Generation 타임아웃/폴링
	SubmitTimeout time.Duration // 제출 호출 (짧게)
	FetchTimeout  time.Duration // 결과 다운로드 (길게)
	PollInterval  time.Duration // 폴링 주기
	WaitMax       time.Duration // 동기 대기 최대 시간

	// Admin 알림
	AdminWebhookURL string
	AlertCooldown   time.Duration

	// Provider 잔액 소진 감지 문구 (403 body substring match)
	BalanceExhaustedPhrases []string
}

var globalConfig *Config

// LoadConfig - 환경변수 로드
func LoadConfig() (*Config, error) {
	// .env 파일 로드 (있으면)
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  .env file not found, using environment variables")
	}

	// Redis UseTLS 파싱
	useTLS := true // 기본값
	if tlsStr := os.Getenv("REDIS_USE_TLS"); tlsStr != "" {
		if parsed, err := strconv.ParseBool(tlsStr); err == nil {
			useTLS = parsed
		}
	}

	globalConfig = &Config{
		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisUseTLS:   useTLS,

		// Supabase
		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_KEY", ""),

		// fal Queue
		FalQueueBaseURL: getEnv("FAL_QUEUE_BASE_URL", "https://queue.fal.run"),
		FalAPIKey:       getEnv("FAL_API_KEY", ""),

		// Server
		Port: getEnv("PORT", "8080"),

		// Generation
		SubmitTimeout: getEnvSeconds("SUBMIT_TIMEOUT_SECONDS", 15),
		FetchTimeout:  getEnvSeconds("FETCH_TIMEOUT_SECONDS", 120),
		PollInterval:  getEnvSeconds("POLL_INTERVAL_SECONDS", 3),
		WaitMax:       getEnvSeconds("WAIT_MAX_SECONDS", 300),

		// Admin
		AdminWebhookURL: getEnv("ADMIN_WEBHOOK_URL", ""),
		AlertCooldown:   getEnvSeconds("ALERT_COOLDOWN_SECONDS", 3600),

		BalanceExhaustedPhrases: getEnvList("BALANCE_EXHAUSTED_PHRASES",
			"exhausted balance,balance is exhausted,user is locked"),
	}

	// 필수 환경변수 검증
	if err := globalConfig.validate(); err != nil {
		return nil, err
	}

	log.Println("✅ Configuration loaded successfully")
	log.Printf("   Redis: %s:%s (TLS: %v)", globalConfig.RedisHost, globalConfig.RedisPort, globalConfig.RedisUseTLS)
	log.Printf("   Supabase: %s", globalConfig.SupabaseURL)
	log.Printf("   fal Queue: %s", globalConfig.FalQueueBaseURL)
	log.Printf("   Poll interval: %s, wait max: %s", globalConfig.PollInterval, globalConfig.WaitMax)

	return globalConfig, nil
}

// GetConfig - 로드된 설정 가져오기
func GetConfig() *Config {
	if globalConfig == nil {
		log.Fatal("❌ Config not loaded. Call LoadConfig() first.")
	}
	return globalConfig
}

// SetConfigForTest - 테스트에서 설정 주입
func SetConfigForTest(cfg *Config) {
	globalConfig = cfg
}

// validate - 필수 환경변수 검증
func (c *Config) validate() error {
	if c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.SupabaseServiceKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_KEY is required")
	}
	if c.FalAPIKey == "" {
		return fmt.Errorf("FAL_API_KEY is required")
	}
	return nil
}

// getEnv - 환경변수 가져오기 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvSeconds - 초 단위 환경변수를 Duration으로 파싱
func getEnvSeconds(key string, defaultSeconds int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return time.Duration(parsed) * time.Second
		}
	}
	return time.Duration(defaultSeconds) * time.Second
}

// getEnvList - 쉼표 구분 환경변수를 배열로 파싱
func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)

	var items []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// GetRedisAddr - Redis 연결 문자열 생성
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}
