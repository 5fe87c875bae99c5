package progress

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pixelforge-server/modules/common/model"
)

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 개발용 - 모든 origin 허용
		return true
	},
}

// client - 연결된 클라이언트 하나
type client struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

// session - 같은 세션을 보고 있는 클라이언트들
type session struct {
	id           string
	clients      map[string]*client
	mutex        sync.RWMutex
	lastActivity time.Time
}

// Hub - 세션별 진행 상황 브로드캐스트 허브.
// orchestrator가 상태 전이를 publish하면 해당 세션 구독자에게 푸시한다.
type Hub struct {
	sessions map[string]*session
	mutex    sync.RWMutex
}

// JobUpdateMessage - 클라이언트로 푸시되는 메시지
type JobUpdateMessage struct {
	Type          string   `json:"type"`
	JobID         string   `json:"jobId"`
	SessionID     string   `json:"sessionId"`
	Status        string   `json:"status"`
	QueuePosition *int     `json:"queuePosition,omitempty"`
	ImageURLs     []string `json:"imageUrls,omitempty"`
	FailureReason *string  `json:"failureReason,omitempty"`
}

// NewHub - 허브 생성 (빈 세션 정리 루틴 포함)
func NewHub() *Hub {
	h := &Hub{
		sessions: make(map[string]*session),
	}

	// 5분마다 빈 세션 정리
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			h.cleanupEmptySessions()
		}
	}()

	return h
}

// PublishJobUpdate - job 상태 전이를 세션 구독자에게 푸시 (best-effort)
func (h *Hub) PublishJobUpdate(sessionID string, job *model.GenerationJob) {
	h.mutex.RLock()
	s, exists := h.sessions[sessionID]
	h.mutex.RUnlock()

	if !exists {
		return
	}

	msg := JobUpdateMessage{
		Type:          "job_update",
		JobID:         job.JobID,
		SessionID:     sessionID,
		Status:        job.Status,
		QueuePosition: job.QueuePosition,
		ImageURLs:     job.ImageURLs,
		FailureReason: job.FailureReason,
	}

	messageBytes, err := json.Marshal(msg)
	if err != nil {
		log.Printf("⚠️ [Progress] Failed to marshal job update: %v", err)
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for userID, c := range s.clients {
		select {
		case c.send <- messageBytes:
		default:
			close(c.send)
			delete(s.clients, userID)
		}
	}
}

// HandleWebSocket - GET /ws?session=...&user=...
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	sessionID := r.URL.Query().Get("session")
	userID := r.URL.Query().Get("user")

	if sessionID == "" || userID == "" {
		log.Printf("Missing session or user parameter")
		conn.Close()
		return
	}

	c := &client{
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 64),
	}

	s := h.getOrCreateSession(sessionID)
	s.addClient(c)

	log.Printf("👤 [Progress] Client %s subscribed to session %s", userID, sessionID)

	go c.writePump()
	go c.readPump(s)
}

// getOrCreateSession - 세션 가져오기 또는 생성
func (h *Hub) getOrCreateSession(sessionID string) *session {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	s, exists := h.sessions[sessionID]
	if !exists {
		s = &session{
			id:           sessionID,
			clients:      make(map[string]*client),
			lastActivity: time.Now(),
		}
		h.sessions[sessionID] = s
	}

	s.lastActivity = time.Now()
	return s
}

// cleanupEmptySessions - 빈 세션 정리
func (h *Hub) cleanupEmptySessions() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	cleaned := 0
	for sessionID, s := range h.sessions {
		s.mutex.RLock()
		isEmpty := len(s.clients) == 0
		s.mutex.RUnlock()

		if isEmpty {
			delete(h.sessions, sessionID)
			cleaned++
		}
	}

	if cleaned > 0 {
		log.Printf("🧹 [Progress] Cleaned up %d empty sessions", cleaned)
	}
}

// addClient - 클라이언트를 세션에 추가
func (s *session) addClient(c *client) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.clients[c.userID] = c
	s.lastActivity = time.Now()
}

// removeClient - 클라이언트를 세션에서 제거
func (s *session) removeClient(userID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if c, exists := s.clients[userID]; exists {
		close(c.send)
		delete(s.clients, userID)
	}
}

// readPump - 연결 유지용 읽기 루프 (클라이언트 메시지는 무시)
func (c *client) readPump(s *session) {
	defer func() {
		s.removeClient(c.userID)
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
}

// writePump - 클라이언트로 메시지 쓰기
func (c *client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("WebSocket write error: %v", err)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
