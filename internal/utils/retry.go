package utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// Doer 发送 HTTP 请求，*http.Client 和 *RetryableHTTPClient 都满足
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// RetryConfig 配置重试参数
type RetryConfig struct {
	// MaxRetries 最大重试次数（不含首次请求）
	MaxRetries int
	// InitialDelay 初始延迟时间
	InitialDelay time.Duration
	// MaxDelay 最大延迟时间
	MaxDelay time.Duration
	// BackoffMultiplier 退避倍数
	BackoffMultiplier float64
	// RetryableStatusCodes 需要重试的HTTP状态码
	RetryableStatusCodes []int
	// RetryableMethods 允许重试的HTTP方法，为空表示全部允许
	RetryableMethods []string
	// RetryableErrors 判断传输层错误是否需要重试
	RetryableErrors func(error) bool
	// OnRetry 每次重试前回调，用于记录日志
	OnRetry func(req *http.Request, attempt int, reason error)
}

// DefaultRetryConfig 返回默认的重试配置
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        3,
		InitialDelay:      1 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		RetryableStatusCodes: []int{
			http.StatusRequestTimeout,      // 408
			http.StatusTooManyRequests,     // 429
			http.StatusInternalServerError, // 500
			http.StatusBadGateway,          // 502
			http.StatusServiceUnavailable,  // 503
			http.StatusGatewayTimeout,      // 504
		},
		RetryableErrors: func(err error) bool {
			return true
		},
	}
}

// GatewayRetryConfig 只对网关类错误做短退避重试，适用于会话等 JSON 接口
func GatewayRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        2,
		InitialDelay:      200 * time.Millisecond,
		MaxDelay:          2 * time.Second,
		BackoffMultiplier: 2.0,
		RetryableStatusCodes: []int{
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
		RetryableErrors: func(err error) bool {
			return false
		},
	}
}

// RetryableHTTPClient 带重试机制的HTTP客户端
type RetryableHTTPClient struct {
	client Doer
	config *RetryConfig
}

// NewRetryableHTTPClient 创建新的带重试机制的HTTP客户端
func NewRetryableHTTPClient(client Doer, config *RetryConfig) *RetryableHTTPClient {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &RetryableHTTPClient{
		client: client,
		config: config,
	}
}

// Do 执行HTTP请求，支持重试
func (r *RetryableHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if !r.methodAllowed(req.Method) {
		return r.client.Do(req)
	}

	ctx := req.Context()
	body, err := r.snapshotBody(req)
	if err != nil {
		return nil, fmt.Errorf("读取请求体失败: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if attempt > 0 {
			if r.config.OnRetry != nil {
				r.config.OnRetry(req, attempt, lastErr)
			}
			if err := sleepContext(ctx, r.calculateDelay(attempt)); err != nil {
				return nil, err
			}
		}

		// 请求体只能读取一次，每次尝试都重新构造
		attemptReq := req.Clone(ctx)
		if body != nil {
			attemptReq.Body = io.NopCloser(bytes.NewReader(body))
			attemptReq.ContentLength = int64(len(body))
		}

		resp, err := r.client.Do(attemptReq)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = err
			if !r.shouldRetryError(err) {
				break
			}
			continue
		}

		if !r.shouldRetryStatus(resp.StatusCode) || attempt == r.config.MaxRetries {
			return resp, nil
		}

		// 需要重试，丢弃响应体
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return nil, fmt.Errorf("after %d retries: %w", r.config.MaxRetries, lastErr)
}

// calculateDelay 计算延迟时间
func (r *RetryableHTTPClient) calculateDelay(attempt int) time.Duration {
	// 指数退避：delay = initialDelay * (backoffMultiplier ^ (attempt - 1))
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.BackoffMultiplier, float64(attempt-1))
	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	return time.Duration(delay)
}

func (r *RetryableHTTPClient) shouldRetryStatus(statusCode int) bool {
	for _, code := range r.config.RetryableStatusCodes {
		if statusCode == code {
			return true
		}
	}
	return false
}

func (r *RetryableHTTPClient) shouldRetryError(err error) bool {
	if r.config.RetryableErrors == nil {
		return false
	}
	return r.config.RetryableErrors(err)
}

func (r *RetryableHTTPClient) methodAllowed(method string) bool {
	if len(r.config.RetryableMethods) == 0 {
		return true
	}
	for _, m := range r.config.RetryableMethods {
		if m == method {
			return true
		}
	}
	return false
}

// snapshotBody 读出请求体以便重放
func (r *RetryableHTTPClient) snapshotBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	return io.ReadAll(req.Body)
}

// sleepContext 可取消的等待
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
