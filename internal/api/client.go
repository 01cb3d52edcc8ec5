package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Zacy-Sokach/ChatTester/internal/utils"
)

// DefaultBaseURL 本地后端的默认地址
const DefaultBaseURL = "http://localhost:8000/api"

// 全局共享的连接池，JSON 请求和流式请求共用
var (
	sharedTransport     *http.Transport
	sharedTransportOnce sync.Once
)

func getSharedTransport() *http.Transport {
	sharedTransportOnce.Do(func() {
		sharedTransport = &http.Transport{
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   20,
			MaxConnsPerHost:       50,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
		}
	})
	return sharedTransport
}

// Client 聊天后端的 HTTP 客户端
type Client struct {
	baseURL string
	tokens  TokenStore
	mode    FramingMode
	logger  *zap.Logger

	// doer 用于普通 JSON 请求，带网关重试；stream 用于流式请求，从不重试
	doer   utils.Doer
	stream *http.Client

	retry *utils.RetryConfig
	newID func() string
}

// Option 配置 Client
type Option func(*Client)

// WithTokenStore 设置 token 存储，默认只保存在内存
func WithTokenStore(store TokenStore) Option {
	return func(c *Client) { c.tokens = store }
}

// WithFramingMode 设置流式响应的分帧方式
func WithFramingMode(mode FramingMode) Option {
	return func(c *Client) { c.mode = mode }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient 替换底层 http.Client（测试用 httptest 的 client）
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.stream = hc }
}

// WithRetryConfig 替换 JSON 请求的重试策略
func WithRetryConfig(cfg *utils.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithMessageIDGenerator 替换 client_message_id 的生成函数
func WithMessageIDGenerator(fn func() string) Option {
	return func(c *Client) { c.newID = fn }
}

// NewClient 创建后端客户端
func NewClient(baseURL string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  NewMemoryTokenStore(""),
		mode:    FramingLines,
		logger:  zap.NewNop(),
		stream:  &http.Client{Transport: getSharedTransport()},
		newID:   NewClientMessageID,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.mode == "" {
		c.mode = FramingLines
	}
	if c.retry == nil {
		c.retry = utils.GatewayRetryConfig()
	}
	logger := c.logger.Named("api")
	c.logger = logger
	c.retry.OnRetry = func(req *http.Request, attempt int, reason error) {
		logger.Warn("request_retry",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Int("attempt", attempt),
			zap.Error(reason))
	}

	jsonClient := &http.Client{
		Transport: c.stream.Transport,
		Timeout:   60 * time.Second,
	}
	c.doer = utils.NewRetryableHTTPClient(jsonClient, c.retry)
	return c
}

// BaseURL 返回规范化后的后端地址
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Mode 返回当前分帧方式
func (c *Client) Mode() FramingMode {
	return c.mode
}

// Tokens 返回 token 存储
func (c *Client) Tokens() TokenStore {
	return c.tokens
}

// Login 使用表单提交用户名密码，成功后保存 access_token
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := c.newRequest(ctx, http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out LoginResponse
	if err := c.doJSON(req, "login", FallbackLogin, &out); err != nil {
		return nil, err
	}
	if out.AccessToken != "" {
		if err := c.tokens.SetToken(out.AccessToken); err != nil {
			return nil, fmt.Errorf("保存token失败: %w", err)
		}
	}
	c.logger.Info("login_ok", zap.String("username", username))
	return &out, nil
}

// Logout 清除本地 token
func (c *Client) Logout() error {
	return c.tokens.ClearToken()
}

// CreateSession 创建会话
func (c *Client) CreateSession(ctx context.Context, metadata map[string]any) (*Session, error) {
	if metadata == nil {
		metadata = map[string]any{"source": "chattester"}
	}
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/v1/chat/session", createSessionRequest{Metadata: metadata})
	if err != nil {
		return nil, err
	}

	var out Session
	if err := c.doJSON(req, "create_session", FallbackCreateSession, &out); err != nil {
		return nil, err
	}
	c.logger.Info("session_created", zap.String("session_id", out.SessionID))
	return &out, nil
}

// DeleteSession 删除会话
func (c *Client) DeleteSession(ctx context.Context, sessionID string) (*DeleteSessionResponse, error) {
	req, err := c.newRequest(ctx, http.MethodDelete, sessionPath(sessionID), nil)
	if err != nil {
		return nil, err
	}

	var out DeleteSessionResponse
	if err := c.doJSON(req, "delete_session", FallbackDeleteSession, &out); err != nil {
		return nil, err
	}
	c.logger.Info("session_deleted", zap.String("session_id", sessionID), zap.Bool("deleted", out.Deleted))
	return &out, nil
}

// SendMessage 非流式发送，返回后端的原始 JSON
func (c *Client) SendMessage(ctx context.Context, sessionID, text string) (json.RawMessage, error) {
	body := MessageRequest{Content: text, Metadata: MessageMetadata{ClientMessageID: c.newID()}}
	req, err := c.newJSONRequest(ctx, http.MethodPost, sessionPath(sessionID)+"/message", body)
	if err != nil {
		return nil, err
	}

	var out json.RawMessage
	if err := c.doJSON(req, "send_message", FallbackSendMessage, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendMessageStream 流式发送，每个增量回调一次 onDelta
// 返回的 StreamResult 中 MessageID/TraceID 取自响应头
func (c *Client) SendMessageStream(ctx context.Context, sessionID, text string, onDelta DeltaFunc) (*StreamResult, error) {
	clientID := c.newID()
	body := MessageRequest{Content: text, Metadata: MessageMetadata{ClientMessageID: clientID}}
	req, err := c.newJSONRequest(ctx, http.MethodPost, sessionPath(sessionID)+"/message:stream", body)
	if err != nil {
		return nil, err
	}
	if c.mode == FramingLines {
		req.Header.Set("Accept", "text/event-stream")
	}

	start := time.Now()
	resp, err := c.stream.Do(req)
	if err != nil {
		c.logger.Error("stream_failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, transportError("stream", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := errorFromResponse("stream", resp, FallbackStream)
		c.logger.Error("stream_failed", zap.String("session_id", sessionID), zap.Int("status", resp.StatusCode), zap.String("error", apiErr.Message))
		return nil, apiErr
	}

	result := &StreamResult{
		MessageID: resp.Header.Get("x-message-id"),
		TraceID:   resp.Header.Get("x-trace-id"),
	}
	c.logger.Debug("stream_started",
		zap.String("session_id", sessionID),
		zap.String("client_message_id", clientID),
		zap.String("mode", string(c.mode)))

	deltas := 0
	full, err := Demux(resp.Body, c.mode, func(delta, full string) {
		deltas++
		if onDelta != nil {
			onDelta(delta, full)
		}
	})
	result.Text = full
	if err != nil {
		c.logger.Error("stream_interrupted", zap.String("session_id", sessionID), zap.Int("bytes", len(full)), zap.Error(err))
		return result, err
	}

	c.logger.Info("stream_finished",
		zap.String("session_id", sessionID),
		zap.String("message_id", result.MessageID),
		zap.String("trace_id", result.TraceID),
		zap.Int("deltas", deltas),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

// SendFeedback 提交对某条助手消息的反馈
func (c *Client) SendFeedback(ctx context.Context, sessionID string, fb FeedbackRequest) error {
	if fb.Metadata == nil {
		fb.Metadata = map[string]any{}
	}
	req, err := c.newJSONRequest(ctx, http.MethodPost, sessionPath(sessionID)+"/feedback", fb)
	if err != nil {
		return err
	}
	if err := c.doJSON(req, "feedback", FallbackFeedback, nil); err != nil {
		return err
	}
	c.logger.Info("feedback_sent", zap.String("message_id", fb.MessageID), zap.String("feedback", fb.Feedback))
	return nil
}

func sessionPath(sessionID string) string {
	return "/v1/chat/session/" + url.PathEscape(sessionID)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}
	req, err := c.newRequest(ctx, method, path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// doJSON 发送请求并把 2xx 响应解码到 out（out 为 nil 时丢弃响应体）
func (c *Client) doJSON(req *http.Request, op, fallback string, out any) error {
	resp, err := c.doer.Do(req)
	if err != nil {
		c.logger.Error(op+"_failed", zap.String("path", req.URL.Path), zap.Error(err))
		return transportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := errorFromResponse(op, resp, fallback)
		c.logger.Error(op+"_failed", zap.String("path", req.URL.Path), zap.Int("status", resp.StatusCode), zap.String("error", apiErr.Message))
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	return nil
}
