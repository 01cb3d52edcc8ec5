package chat

import (
	"context"
	"sync"

	"github.com/Zacy-Sokach/ChatTester/internal/api"
)

// fakeBackend 按脚本返回增量，记录收到的请求
type fakeBackend struct {
	mu sync.Mutex

	deltas    []string
	result    api.StreamResult
	streamErr error
	// beforeEach 在每个增量回调之前执行，用于在流中途修改日志
	beforeEach func(i int)

	feedbackErr error
	feedbacks   []api.FeedbackRequest

	createErr error
	deleteErr error
	nextID    int

	sentTexts []string
}

func (f *fakeBackend) SendMessageStream(ctx context.Context, sessionID, text string, onDelta api.DeltaFunc) (*api.StreamResult, error) {
	f.mu.Lock()
	f.sentTexts = append(f.sentTexts, text)
	f.mu.Unlock()

	full := ""
	for i, d := range f.deltas {
		if err := ctx.Err(); err != nil {
			return &api.StreamResult{Text: full}, &api.StreamError{Partial: full, Err: err}
		}
		if f.beforeEach != nil {
			f.beforeEach(i)
		}
		full += d
		onDelta(d, full)
	}
	if f.streamErr != nil {
		return &api.StreamResult{Text: full}, f.streamErr
	}
	res := f.result
	if res.Text == "" {
		res.Text = full
	}
	return &res, nil
}

func (f *fakeBackend) SendFeedback(ctx context.Context, sessionID string, fb api.FeedbackRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedbacks = append(f.feedbacks, fb)
	return f.feedbackErr
}

func (f *fakeBackend) CreateSession(ctx context.Context, metadata map[string]any) (*api.Session, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	return &api.Session{SessionID: "s_" + string(rune('0'+f.nextID)), CreatedAt: "2026-10-15T10:00:00Z"}, nil
}

func (f *fakeBackend) DeleteSession(ctx context.Context, sessionID string) (*api.DeleteSessionResponse, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	return &api.DeleteSessionResponse{SessionID: sessionID, Deleted: true}, nil
}

type staticSession string

func (s staticSession) ID() string { return string(s) }
