package chat

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Zacy-Sokach/ChatTester/internal/api"
	"github.com/Zacy-Sokach/ChatTester/internal/events"
)

// FeedbackValue 反馈取值
type FeedbackValue string

const (
	ThumbsUp   FeedbackValue = "thumbs_up"
	ThumbsDown FeedbackValue = "thumbs_down"
)

// ParseFeedbackValue 解析 up/down 或完整取值
func ParseFeedbackValue(s string) (FeedbackValue, error) {
	switch s {
	case "up", "+", string(ThumbsUp):
		return ThumbsUp, nil
	case "down", "-", string(ThumbsDown):
		return ThumbsDown, nil
	default:
		return "", fmt.Errorf("未知的反馈取值: %q", s)
	}
}

// FeedbackSender 提交反馈的后端
type FeedbackSender interface {
	SendFeedback(ctx context.Context, sessionID string, fb api.FeedbackRequest) error
}

// FeedbackLedger 记录当前会话中每条消息的反馈
// 提交前先乐观记录，后端失败时回滚；成功后在会话期间不再改变
type FeedbackLedger struct {
	mu      sync.Mutex
	entries map[string]FeedbackValue

	sender   FeedbackSender
	sessions SessionSource
	status   *Status
	bus      events.Bus
	logger   *zap.Logger
}

func NewFeedbackLedger(sender FeedbackSender, sessions SessionSource, status *Status, bus events.Bus, logger *zap.Logger) *FeedbackLedger {
	if bus == nil {
		bus = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedbackLedger{
		entries:  make(map[string]FeedbackValue),
		sender:   sender,
		sessions: sessions,
		status:   status,
		bus:      bus,
		logger:   logger.Named("feedback"),
	}
}

// Submit 提交反馈
// 没有会话时静默忽略；缺少 messageID 时写入状态栏；已有反馈时返回 ErrFeedbackConflict
func (f *FeedbackLedger) Submit(ctx context.Context, messageID string, value FeedbackValue) error {
	sessionID := f.sessions.ID()
	if sessionID == "" {
		return nil
	}
	if messageID == "" {
		f.status.SetError(ErrMissingMessageID)
		return ErrMissingMessageID
	}
	if value != ThumbsUp && value != ThumbsDown {
		return fmt.Errorf("未知的反馈取值: %q", value)
	}

	f.mu.Lock()
	if _, exists := f.entries[messageID]; exists {
		f.mu.Unlock()
		return ErrFeedbackConflict
	}
	f.entries[messageID] = value
	f.mu.Unlock()
	f.publish(messageID, value)

	err := f.sender.SendFeedback(ctx, sessionID, api.FeedbackRequest{
		Feedback:  string(value),
		MessageID: messageID,
		Metadata:  map[string]any{"source": "chattester"},
	})
	if err != nil {
		f.mu.Lock()
		delete(f.entries, messageID)
		f.mu.Unlock()
		f.publish(messageID, "")

		f.status.SetError(err)
		f.logger.Error("feedback_failed", zap.String("message_id", messageID), zap.Error(err))
		return err
	}

	f.logger.Info("feedback_recorded", zap.String("message_id", messageID), zap.String("value", string(value)))
	return nil
}

// Get 返回某条消息的反馈
func (f *FeedbackLedger) Get(messageID string) (FeedbackValue, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.entries[messageID]
	return v, ok
}

// Len 已记录的反馈数量
func (f *FeedbackLedger) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// Reset 会话变化时清空
func (f *FeedbackLedger) Reset() {
	f.mu.Lock()
	f.entries = make(map[string]FeedbackValue)
	f.mu.Unlock()
}

func (f *FeedbackLedger) publish(messageID string, value FeedbackValue) {
	f.bus.Publish(events.FeedbackChanged{
		Base:      events.NewBase(events.TypeFeedbackChanged),
		MessageID: messageID,
		Value:     string(value),
	})
}
