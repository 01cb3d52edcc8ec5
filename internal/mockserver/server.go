// Package mockserver 提供一个本地的聊天后端，实现与真实后端相同的接口，
// 用于 chattester mock 和端到端测试
package mockserver

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Zacy-Sokach/ChatTester/internal/api"
)

// Options 模拟后端的参数
type Options struct {
	Mode       api.FramingMode
	Username   string
	Password   string
	ChunkDelay time.Duration
	// Reply 根据用户消息生成回复，为空时使用默认回复
	Reply  func(text string) string
	Logger *zap.Logger
}

type session struct {
	id        string
	createdAt time.Time
	metadata  map[string]any
	feedback  map[string]string
	messages  []string
}

type failure struct {
	status int
	detail string
}

// Server 内存中的模拟后端
type Server struct {
	opts Options

	mu       sync.Mutex
	tokens   map[string]string
	sessions map[string]*session
	failures map[string][]failure
	seq      int
}

// Route 名称，用于 FailNext
const (
	RouteLogin         = "login"
	RouteCreateSession = "create_session"
	RouteDeleteSession = "delete_session"
	RouteMessage       = "message"
	RouteStream        = "stream"
	RouteFeedback      = "feedback"
)

func New(opts Options) *Server {
	if opts.Mode == "" {
		opts.Mode = api.FramingLines
	}
	if opts.Username == "" {
		opts.Username = "tester"
	}
	if opts.Password == "" {
		opts.Password = "tester"
	}
	if opts.Reply == nil {
		opts.Reply = DefaultReply
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	opts.Logger = opts.Logger.Named("mock")

	return &Server{
		opts:     opts,
		tokens:   make(map[string]string),
		sessions: make(map[string]*session),
		failures: make(map[string][]failure),
	}
}

// DefaultReply 默认回复，包含多个句子以便观察逐块显示
// 按行分帧时换行无法传输，所以回复保持单行
func DefaultReply(text string) string {
	return fmt.Sprintf("You said: %q. This reply comes from the mock backend. It is streamed one word at a time. Try /regen to get it again!", text)
}

// FailNext 让某个接口的下一次请求返回指定状态码和 detail
func (s *Server) FailNext(route string, status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], failure{status: status, detail: detail})
}

// Feedback 返回某个会话记录的反馈
func (s *Server) Feedback(sessionID string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]string{}
	if sess, ok := s.sessions[sessionID]; ok {
		for k, v := range sess.feedback {
			out[k] = v
		}
	}
	return out
}

// SessionCount 当前存在的会话数
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Handler 返回挂载在 /api 下的路由
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/login", s.handleLogin)

		api.Group(func(authed chi.Router) {
			authed.Use(s.requireToken)
			authed.Post("/v1/chat/session", s.handleCreateSession)
			authed.Route("/v1/chat/session/{sessionID}", func(sr chi.Router) {
				sr.Delete("/", s.handleDeleteSession)
				sr.Post("/message", s.handleMessage)
				sr.Post("/message:stream", s.handleStream)
				sr.Post("/feedback", s.handleFeedback)
			})
		})
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.opts.Logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		_, known := s.tokens[token]
		s.mu.Unlock()
		if !ok || !known {
			respondError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// injected 检查是否有待注入的失败，有则写入错误响应
func (s *Server) injected(w http.ResponseWriter, route string) bool {
	s.mu.Lock()
	queue := s.failures[route]
	if len(queue) == 0 {
		s.mu.Unlock()
		return false
	}
	f := queue[0]
	s.failures[route] = queue[1:]
	s.mu.Unlock()

	if f.detail == "" {
		w.WriteHeader(f.status)
		return true
	}
	respondError(w, f.status, f.detail)
	return true
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.injected(w, RouteLogin) {
		return
	}
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid form")
		return
	}
	user := r.PostForm.Get("username")
	pass := r.PostForm.Get("password")
	if subtle.ConstantTimeCompare([]byte(user), []byte(s.opts.Username)) != 1 ||
		subtle.ConstantTimeCompare([]byte(pass), []byte(s.opts.Password)) != 1 {
		respondError(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = user
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, api.LoginResponse{AccessToken: token, TokenType: "bearer"})
}

// IssueToken 直接签发一个 token，测试中跳过登录
func (s *Server) IssueToken() string {
	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = s.opts.Username
	s.mu.Unlock()
	return token
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if s.injected(w, RouteCreateSession) {
		return
	}
	var body struct {
		Metadata map[string]any `json:"metadata"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	s.seq++
	sess := &session{
		id:        fmt.Sprintf("sess_%04d", s.seq),
		createdAt: time.Now().UTC(),
		metadata:  body.Metadata,
		feedback:  make(map[string]string),
	}
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, api.Session{
		SessionID: sess.id,
		CreatedAt: sess.createdAt.Format(time.RFC3339),
		Metadata:  sess.metadata,
	})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session, bool) {
	id := chi.URLParam(r, "sessionID")
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		respondError(w, http.StatusNotFound, "Session not found")
	}
	return sess, ok
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if s.injected(w, RouteDeleteSession) {
		return
	}
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, api.DeleteSessionResponse{SessionID: sess.id, Deleted: true})
}

// reply 记录用户消息并生成回复和 ID
func (s *Server) reply(w http.ResponseWriter, r *http.Request) (text, messageID, traceID string, ok bool) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return "", "", "", false
	}
	var body api.MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Content) == "" {
		respondError(w, http.StatusUnprocessableEntity, "content is required")
		return "", "", "", false
	}

	s.mu.Lock()
	sess.messages = append(sess.messages, body.Content)
	s.mu.Unlock()

	return s.opts.Reply(body.Content), "msg_" + uuid.NewString()[:8], "trace_" + uuid.NewString()[:8], true
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if s.injected(w, RouteMessage) {
		return
	}
	text, messageID, traceID, ok := s.reply(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message_id": messageID,
		"trace_id":   traceID,
		"content":    text,
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.injected(w, RouteStream) {
		return
	}
	text, messageID, traceID, ok := s.reply(w, r)
	if !ok {
		return
	}

	w.Header().Set("x-message-id", messageID)
	w.Header().Set("x-trace-id", traceID)

	if s.opts.Mode == api.FramingWholeBody {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(text))
		return
	}

	flusher, canFlush := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	for _, piece := range Pieces(text) {
		select {
		case <-r.Context().Done():
			return
		default:
		}
		for _, line := range strings.Split(piece, "\n") {
			fmt.Fprintf(w, "data: %s\n", line)
		}
		fmt.Fprint(w, "\n")
		if canFlush {
			flusher.Flush()
		}
		if s.opts.ChunkDelay > 0 {
			time.Sleep(s.opts.ChunkDelay)
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	if canFlush {
		flusher.Flush()
	}
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if s.injected(w, RouteFeedback) {
		return
	}
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var body api.FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.MessageID == "" {
		respondError(w, http.StatusUnprocessableEntity, "message_id is required")
		return
	}
	if body.Feedback != "thumbs_up" && body.Feedback != "thumbs_down" {
		respondError(w, http.StatusUnprocessableEntity, "feedback must be thumbs_up or thumbs_down")
		return
	}

	s.mu.Lock()
	_, exists := sess.feedback[body.MessageID]
	if !exists {
		sess.feedback[body.MessageID] = body.Feedback
	}
	s.mu.Unlock()

	if exists {
		respondError(w, http.StatusConflict, "Feedback already recorded")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, map[string]string{"detail": detail})
}
