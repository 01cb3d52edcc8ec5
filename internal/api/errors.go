package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// 各接口失败时的兜底错误信息
const (
	FallbackLogin         = "login_failed"
	FallbackCreateSession = "create_session_failed"
	FallbackDeleteSession = "delete_session_failed"
	FallbackSendMessage   = "send_message_failed"
	FallbackStream        = "stream_failed"
	FallbackFeedback      = "feedback_failed"
)

// APIError 表示网络错误或非 2xx 响应
type APIError struct {
	Op         string
	StatusCode int // 0 表示请求没有拿到响应
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Detailed 带操作名和状态码的描述，用于日志
func (e *APIError) Detailed() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s (状态码: %d): %s", e.Op, e.StatusCode, e.Message)
}

// StreamError 读取流的过程中出错，保留已经收到的内容
type StreamError struct {
	Partial string
	Err     error
}

func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream interrupted after %d bytes: %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream interrupted: %v", e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// transportError 包装没有拿到响应的请求错误
func transportError(op string, err error) *APIError {
	return &APIError{Op: op, Message: err.Error(), Err: err}
}

// errorFromResponse 从非 2xx 响应中提取 detail 或 error 字段，否则使用兜底信息
func errorFromResponse(op string, resp *http.Response, fallback string) *APIError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	msg := fallback
	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil {
		if m := messageOf(body.Detail); m != "" {
			msg = m
		} else if m := messageOf(body.Error); m != "" {
			msg = m
		}
	}

	return &APIError{Op: op, StatusCode: resp.StatusCode, Message: msg}
}

func messageOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
