package chat

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Zacy-Sokach/ChatTester/internal/api"
	"github.com/Zacy-Sokach/ChatTester/internal/events"
)

// SessionBackend 创建和删除会话的后端
type SessionBackend interface {
	CreateSession(ctx context.Context, metadata map[string]any) (*api.Session, error)
	DeleteSession(ctx context.Context, sessionID string) (*api.DeleteSessionResponse, error)
}

// Sessions 管理当前会话
type Sessions struct {
	mu      sync.RWMutex
	current *api.Session
	hooks   []func()

	backend SessionBackend
	log     *Log
	status  *Status
	bus     events.Bus
	logger  *zap.Logger
}

func NewSessions(backend SessionBackend, log *Log, status *Status, bus events.Bus, logger *zap.Logger) *Sessions {
	if bus == nil {
		bus = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sessions{
		backend: backend,
		log:     log,
		status:  status,
		bus:     bus,
		logger:  logger.Named("session"),
	}
}

// OnChange 注册会话变化（新建或删除）时的回调，例如清空反馈
func (s *Sessions) OnChange(fn func()) {
	s.mu.Lock()
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// ID 当前会话 ID，没有会话时为空
func (s *Sessions) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.SessionID
}

// Current 当前会话的副本
func (s *Sessions) Current() (api.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return api.Session{}, false
	}
	return *s.current, true
}

// New 创建新会话，成功后清空消息日志
func (s *Sessions) New(ctx context.Context) (*api.Session, error) {
	s.status.Begin()
	sess, err := s.backend.CreateSession(ctx, nil)
	if err != nil {
		s.status.Fail(err)
		s.logger.Error("session_create_failed", zap.Error(err))
		return nil, err
	}

	s.switchTo(sess)
	s.status.Reset()
	s.logger.Info("session_started", zap.String("session_id", sess.SessionID), zap.String("created_at", sess.CreatedAt))
	return sess, nil
}

// Attach 直接使用已存在的会话（例如命令行传入的 session id），不访问后端
func (s *Sessions) Attach(sess api.Session) {
	s.switchTo(&sess)
}

// Delete 删除当前会话，没有会话时不做任何事
func (s *Sessions) Delete(ctx context.Context) error {
	id := s.ID()
	if id == "" {
		return nil
	}

	s.status.Begin()
	if _, err := s.backend.DeleteSession(ctx, id); err != nil {
		s.status.Fail(err)
		s.logger.Error("session_delete_failed", zap.String("session_id", id), zap.Error(err))
		return err
	}

	s.switchTo(nil)
	s.status.Reset()
	s.logger.Info("session_deleted", zap.String("session_id", id))
	return nil
}

// ResetUI 清空消息和错误，保留会话
func (s *Sessions) ResetUI() {
	s.log.Reset()
	s.status.ClearDiagnostics()
}

func (s *Sessions) switchTo(sess *api.Session) {
	s.mu.Lock()
	s.current = sess
	hooks := append([]func(){}, s.hooks...)
	s.mu.Unlock()

	s.log.Reset()
	for _, fn := range hooks {
		fn()
	}

	ev := events.SessionChanged{Base: events.NewBase(events.TypeSessionChanged)}
	if sess != nil {
		ev.SessionID = sess.SessionID
		ev.CreatedAt = sess.CreatedAt
	}
	s.bus.Publish(ev)
}
