package chat

import (
	"context"
	"errors"
)

var (
	// ErrNoSession 没有会话时发送消息
	ErrNoSession = errors.New("No session. Start a session first.")
	// ErrMissingMessageID 反馈的目标消息还没有 message id
	ErrMissingMessageID = errors.New("Cannot send feedback: missing messageId")
	// ErrFeedbackConflict 该消息已经有反馈，不会显示在状态栏
	ErrFeedbackConflict = errors.New("feedback already recorded")
)

// ErrorMessage 返回写入状态栏的错误文本
func ErrorMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return err.Error()
	}
}
