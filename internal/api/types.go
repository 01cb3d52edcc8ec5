package api

// LoginResponse /auth/login 的返回
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Session 会话信息
type Session struct {
	SessionID string         `json:"session_id"`
	CreatedAt string         `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// DeleteSessionResponse 删除会话的返回
type DeleteSessionResponse struct {
	SessionID string `json:"session_id"`
	Deleted   bool   `json:"deleted"`
}

// MessageMetadata 发送消息时附带的客户端元数据
type MessageMetadata struct {
	ClientMessageID string `json:"client_message_id"`
}

// MessageRequest 发送消息的请求体
type MessageRequest struct {
	Content  string          `json:"content"`
	Metadata MessageMetadata `json:"metadata"`
}

// FeedbackRequest 提交反馈的请求体
type FeedbackRequest struct {
	Feedback  string         `json:"feedback"`
	MessageID string         `json:"message_id"`
	Reason    *string        `json:"reason"`
	Metadata  map[string]any `json:"metadata"`
}

// StreamResult 流式发送的最终结果，ID 来自响应头
type StreamResult struct {
	Text      string
	MessageID string
	TraceID   string
}

type createSessionRequest struct {
	Metadata map[string]any `json:"metadata"`
}

// errorBody 后端错误响应，detail 可能是字符串也可能是校验错误列表
type errorBody struct {
	Detail any `json:"detail"`
	Error  any `json:"error"`
}
