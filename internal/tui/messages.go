package tui

import "github.com/Zacy-Sokach/ChatTester/internal/chat"

// Message types for tea.Model

// ChangedMsg 总线或控制台有变化，ClearDraft 表示需要清空输入框
type ChangedMsg struct {
	ClearDraft bool
}

// RefreshMsg 节流后的重绘
type RefreshMsg struct{}

// SendDoneMsg 一次发送或重新生成结束
type SendDoneMsg struct {
	Op         *chat.SendOperation
	Regenerate bool
	Err        error
}

// SessionDoneMsg 会话操作结束
type SessionDoneMsg struct {
	Action string
	Err    error
}

// FeedbackDoneMsg 反馈提交结束
type FeedbackDoneMsg struct {
	MessageID string
	Value     chat.FeedbackValue
	Err       error
}

// ExportDoneMsg 导出结束
type ExportDoneMsg struct {
	Path string
	Err  error
}

// ConfigSavedMsg 配置保存结束
type ConfigSavedMsg struct {
	Err error
}
