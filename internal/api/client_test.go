package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zacy-Sokach/ChatTester/internal/utils"
)

func fastRetry() *utils.RetryConfig {
	cfg := utils.GatewayRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = time.Millisecond
	return cfg
}

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	opts = append([]Option{WithHTTPClient(server.Client()), WithRetryConfig(fastRetry())}, opts...)
	return NewClient(server.URL+"/api/", opts...)
}

func TestLoginStoresToken(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "qa", r.PostForm.Get("username"))
		assert.Equal(t, "secret", r.PostForm.Get("password"))
		_ = json.NewEncoder(w).Encode(LoginResponse{AccessToken: "tok-1", TokenType: "bearer"})
	})

	store := NewMemoryTokenStore("")
	client := newTestClient(t, handler, WithTokenStore(store))

	resp, err := client.Login(context.Background(), "qa", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", resp.AccessToken)
	assert.Equal(t, "tok-1", store.Token())
}

func TestLoginFailureUsesDetail(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"Incorrect username or password"}`)
	})
	client := newTestClient(t, handler)

	_, err := client.Login(context.Background(), "qa", "wrong")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Incorrect username or password", apiErr.Error())
}

func TestErrorMessageFallbacks(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"detail", `{"detail":"bad"}`, "bad"},
		{"error", `{"error":"worse"}`, "worse"},
		{"detail wins", `{"detail":"a","error":"b"}`, "a"},
		{"empty detail", `{"detail":"","error":"b"}`, "b"},
		{"structured detail", `{"detail":[{"msg":"field required"}]}`, `[{"msg":"field required"}]`},
		{"not json", `<html>oops</html>`, FallbackCreateSession},
		{"empty", ``, FallbackCreateSession},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, tt.body)
			})
			client := newTestClient(t, handler)

			_, err := client.CreateSession(context.Background(), nil)
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestCreateAndDeleteSession(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/chat/session":
			var body createSessionRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "chattester", body.Metadata["source"])
			_, _ = io.WriteString(w, `{"session_id":"s 1","created_at":"2026-01-01T00:00:00Z"}`)
		case r.Method == http.MethodDelete:
			assert.Equal(t, "/api/v1/chat/session/s%201", r.URL.EscapedPath())
			_, _ = io.WriteString(w, `{"session_id":"s 1","deleted":true}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})
	client := newTestClient(t, handler, WithTokenStore(NewMemoryTokenStore("tok")))

	sess, err := client.CreateSession(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "s 1", sess.SessionID)

	del, err := client.DeleteSession(context.Background(), sess.SessionID)
	require.NoError(t, err)
	assert.True(t, del.Deleted)
}

func TestCreateSessionRetriesGatewayErrors(t *testing.T) {
	var calls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"session_id":"s_2","created_at":"now"}`)
	})
	client := newTestClient(t, handler)

	sess, err := client.CreateSession(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "s_2", sess.SessionID)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestSendMessageStreamLines(t *testing.T) {
	idPattern := regexp.MustCompile(`^m_[0-9a-f]{8}$`)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chat/session/s_1/message:stream", r.URL.Path)
		var body MessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hi", body.Content)
		assert.Regexp(t, idPattern, body.Metadata.ClientMessageID)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("x-message-id", "msg-9")
		w.Header().Set("x-trace-id", "tr-9")
		flusher := w.(http.Flusher)
		for _, frame := range []string{"data: Hel", "lo\n\n", "data:  World\n\n", "data: [DONE]\n\n"} {
			_, _ = io.WriteString(w, frame)
			flusher.Flush()
		}
	})
	client := newTestClient(t, handler)

	var fulls []string
	result, err := client.SendMessageStream(context.Background(), "s_1", "hi", func(delta, full string) {
		fulls = append(fulls, full)
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello World", result.Text)
	assert.Equal(t, "msg-9", result.MessageID)
	assert.Equal(t, "tr-9", result.TraceID)
	assert.Equal(t, []string{"Hello", "Hello World"}, fulls)
}

func TestSendMessageStreamWholeBody(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-message-id", "msg-1")
		_, _ = io.WriteString(w, "the whole reply")
	})
	client := newTestClient(t, handler, WithFramingMode(FramingWholeBody))

	calls := 0
	result, err := client.SendMessageStream(context.Background(), "s_1", "hi", func(delta, full string) {
		calls++
		assert.Equal(t, delta, full)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "the whole reply", result.Text)
	assert.Equal(t, "msg-1", result.MessageID)
	assert.Empty(t, result.TraceID)
}

func TestSendMessageStreamErrorStatusNeverStreams(t *testing.T) {
	var calls int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "data: should not be read\n")
	})
	client := newTestClient(t, handler)

	called := false
	_, err := client.SendMessageStream(context.Background(), "s_1", "hi", func(string, string) { called = true })
	require.Error(t, err)
	assert.False(t, called)
	assert.Equal(t, FallbackStream, err.Error())
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "streaming is never retried")
}

func TestSendMessageStreamCancelled(t *testing.T) {
	release := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "data: partial\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	client := newTestClient(t, handler)
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	result, err := client.SendMessageStream(ctx, "s_1", "hi", func(delta, full string) {
		cancel()
	})
	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, "partial", streamErr.Partial)
	require.NotNil(t, result)
	assert.Equal(t, "partial", result.Text)
}

func TestSendFeedback(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chat/session/s_1/feedback", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "thumbs_up", body["feedback"])
		assert.Equal(t, "msg-1", body["message_id"])
		assert.Nil(t, body["reason"])
		assert.Equal(t, map[string]any{}, body["metadata"])
		w.WriteHeader(http.StatusNoContent)
	})
	client := newTestClient(t, handler)

	err := client.SendFeedback(context.Background(), "s_1", FeedbackRequest{Feedback: "thumbs_up", MessageID: "msg-1"})
	require.NoError(t, err)
}

func TestSendMessageNonStream(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chat/session/s_1/message", r.URL.Path)
		_, _ = io.WriteString(w, `{"reply":"ok"}`)
	})
	client := newTestClient(t, handler)

	raw, err := client.SendMessage(context.Background(), "s_1", "hi")
	require.NoError(t, err)
	assert.JSONEq(t, `{"reply":"ok"}`, string(raw))
}

func TestTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(url, WithRetryConfig(fastRetry()))
	_, err := client.CreateSession(context.Background(), nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Zero(t, apiErr.StatusCode)
}

func TestFileTokenStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token")

	store, err := NewFileTokenStore(path)
	require.NoError(t, err)
	assert.Empty(t, store.Token())

	require.NoError(t, store.SetToken("abc"))

	reloaded, err := NewFileTokenStore(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", reloaded.Token())

	require.NoError(t, reloaded.ClearToken())
	require.NoError(t, reloaded.ClearToken())
	assert.Empty(t, reloaded.Token())
}

func TestNewClientMessageID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id := NewClientMessageID()
		assert.Regexp(t, `^m_[0-9a-f]{8}$`, id)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 45, fmt.Sprintf("ids should be random, got %d unique", len(seen)))
}
