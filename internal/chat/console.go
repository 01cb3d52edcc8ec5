package chat

import (
	"go.uber.org/zap"

	"github.com/Zacy-Sokach/ChatTester/internal/events"
)

// Backend 聊天后端需要提供的全部能力，*api.Client 满足该接口
type Backend interface {
	Streamer
	FeedbackSender
	SessionBackend
}

// Console 把消息日志、状态、会话、发送和反馈组装在一起
type Console struct {
	Bus        events.Bus
	Log        *Log
	Status     *Status
	Sessions   *Sessions
	Controller *Controller
	Feedback   *FeedbackLedger
}

// NewConsole 组装一个完整的聊天控制台
func NewConsole(backend Backend, bus events.Bus, logger *zap.Logger) *Console {
	if bus == nil {
		bus = events.NewMemoryBus()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	log := NewLog(bus)
	status := NewStatus(bus)
	sessions := NewSessions(backend, log, status, bus, logger)
	ledger := NewFeedbackLedger(backend, sessions, status, bus, logger)
	sessions.OnChange(ledger.Reset)

	return &Console{
		Bus:        bus,
		Log:        log,
		Status:     status,
		Sessions:   sessions,
		Controller: NewController(backend, sessions, log, status, bus, logger),
		Feedback:   ledger,
	}
}
