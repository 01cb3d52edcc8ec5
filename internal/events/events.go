package events

import "time"

// 事件类型常量
const (
	// 消息日志事件
	TypeMessageAppended = "message.appended"
	TypeMessageUpdated  = "message.updated"
	TypeLogTruncated    = "log.truncated"
	TypeLogReset        = "log.reset"

	// 发送流程事件
	TypeSendTransition = "send.transition"

	// 状态与反馈事件
	TypeStatusChanged   = "status.changed"
	TypeFeedbackChanged = "feedback.changed"
	TypeSessionChanged  = "session.changed"

	// 逐块显示事件
	TypeRevealAdvanced = "reveal.advanced"
)

// Base 基础事件实现
type Base struct {
	kind string
	at   time.Time
}

// NewBase 创建基础事件
func NewBase(kind string) Base {
	return Base{kind: kind, at: time.Now()}
}

// Type 事件类型
func (e Base) Type() string { return e.kind }

// Timestamp 事件时间戳
func (e Base) Timestamp() time.Time { return e.at }

// MessageChanged 消息日志中某个位置被追加或替换
type MessageChanged struct {
	Base
	Index int
	Key   uint64
}

// LogTruncated 日志被截断到 Len 条
type LogTruncated struct {
	Base
	Len int
}

// SendTransition 发送操作状态迁移
type SendTransition struct {
	Base
	OpID  uint64
	From  string
	To    string
	Index int
	Err   error
}

// StatusChanged 全局状态变更
type StatusChanged struct {
	Base
	Busy    bool
	Error   string
	TraceID string
}

// FeedbackChanged 某条消息的反馈被记录或回滚
type FeedbackChanged struct {
	Base
	MessageID string
	Value     string // 空字符串表示已回滚
}

// SessionChanged 当前会话变化，SessionID 为空表示无会话
type SessionChanged struct {
	Base
	SessionID string
	CreatedAt string
}

// RevealAdvanced 逐块显示进度前进
type RevealAdvanced struct {
	Base
	Key     uint64
	Visible int
	Total   int
}
