package generation

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"pixelforge-server/modules/common/apperr"
)

// Handler - 생성 API 핸들러
type Handler struct {
	service *Service
}

// NewHandler - 핸들러 생성
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes - 라우트 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/generations", h.SubmitGeneration).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/generations", h.ListActiveGenerations).Methods("GET")
	r.HandleFunc("/api/generations/{jobId}", h.GetGeneration).Methods("GET")
	r.HandleFunc("/api/generations/{jobId}/wait", h.WaitGeneration).Methods("GET")
	log.Println("✅ Generation routes registered: /api/generations")
}

// SubmitGeneration - POST /api/generations
func (h *Handler) SubmitGeneration(w http.ResponseWriter, r *http.Request) {
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	userID := r.Header.Get("X-User-Id")

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ [Generation] Invalid request body: %v", err)
		writeError(w, apperr.New(apperr.CodeInvalidRequest, "invalid request body"))
		return
	}

	resp, err := h.service.Submit(r.Context(), userID, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, resp)
}

// GetGeneration - GET /api/generations/{jobId}
// 조회하면서 상태를 한 번 전진시킨다 (caller-driven 폴링).
func (h *Handler) GetGeneration(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	jobID := vars["jobId"]
	userID := r.Header.Get("X-User-Id")

	// 소유권 체크 먼저
	if _, err := h.service.GetJob(r.Context(), jobID, userID); err != nil {
		writeError(w, err)
		return
	}

	job, err := h.service.Poll(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// WaitGeneration - GET /api/generations/{jobId}/wait?timeout_seconds=N
// terminal까지 블로킹. 데드라인이 지나면 504 - job은 계속 돈다.
func (h *Handler) WaitGeneration(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	jobID := vars["jobId"]
	userID := r.Header.Get("X-User-Id")

	if _, err := h.service.GetJob(r.Context(), jobID, userID); err != nil {
		writeError(w, err)
		return
	}

	var timeout time.Duration
	if raw := r.URL.Query().Get("timeout_seconds"); raw != "" {
		if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
			timeout = time.Duration(seconds) * time.Second
		}
	}

	job, err := h.service.WaitForResult(r.Context(), jobID, timeout)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// ListActiveGenerations - GET /api/generations?userId=...
func (h *Handler) ListActiveGenerations(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = r.Header.Get("X-User-Id")
	}

	jobs, err := h.service.ListActive(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// writeJSON - JSON 응답
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError - 에러 taxonomy를 HTTP 상태로 매핑해서 응답
func writeError(w http.ResponseWriter, err error) {
	status := apperr.StatusOf(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   apperr.MessageOf(err),
		"code":    string(apperr.CodeOf(err)),
		"success": false,
	})
}
