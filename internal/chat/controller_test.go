package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zacy-Sokach/ChatTester/internal/api"
	"github.com/Zacy-Sokach/ChatTester/internal/events"
)

type harness struct {
	backend *fakeBackend
	log     *Log
	status  *Status
	ctrl    *Controller
	states  []OpState
	drafts  int
}

func newHarness(session string, backend *fakeBackend) *harness {
	h := &harness{backend: backend}
	bus := events.NewMemoryBus()
	h.log = NewLog(bus)
	h.status = NewStatus(bus)
	h.ctrl = NewController(backend, staticSession(session), h.log, h.status, bus, nil)
	h.ctrl.ClearDraft = func() { h.drafts++ }
	h.ctrl.OnTransition = func(op *SendOperation, from, to OpState) {
		h.states = append(h.states, to)
	}
	return h
}

func TestSendStreamsIntoPlaceholder(t *testing.T) {
	backend := &fakeBackend{
		deltas: []string{"Hel", "lo"},
		result: api.StreamResult{MessageID: "msg-1", TraceID: "tr-1"},
	}
	h := newHarness("s_1", backend)

	var busyDuringStream []bool
	backend.beforeEach = func(int) {
		busyDuringStream = append(busyDuringStream, h.status.Get().Busy)
	}

	op, err := h.ctrl.Send(context.Background(), "  hi  ")
	require.NoError(t, err)
	require.NotNil(t, op)

	assert.Equal(t, []OpState{StateDispatched, StateStreaming, StateFinalized}, h.states)
	assert.Equal(t, StateFinalized, op.State())
	assert.Equal(t, "Hello", op.Text())
	assert.Equal(t, 1, h.drafts)
	assert.Equal(t, []bool{true, true}, busyDuringStream)
	assert.Equal(t, []string{"hi"}, backend.sentTexts)

	recs := h.log.Snapshot()
	require.Len(t, recs, 2)
	assert.Equal(t, RoleUser, recs[0].Role)
	assert.Equal(t, "hi", recs[0].Text)
	assert.Equal(t, RoleAssistant, recs[1].Role)
	assert.Equal(t, "Hello", recs[1].Text)
	assert.Equal(t, "msg-1", recs[1].MessageID)
	assert.Equal(t, "tr-1", recs[1].TraceID)

	assert.Equal(t, StatusState{Busy: false, TraceID: "tr-1"}, h.status.Get())
}

func TestSendEmptyTextIsNoop(t *testing.T) {
	backend := &fakeBackend{}
	h := newHarness("s_1", backend)

	op, err := h.ctrl.Send(context.Background(), "   \n")
	assert.NoError(t, err)
	assert.Nil(t, op)
	assert.Zero(t, h.log.Len())
	assert.Empty(t, backend.sentTexts)
}

func TestSendWithoutSession(t *testing.T) {
	backend := &fakeBackend{deltas: []string{"x"}}
	h := newHarness("", backend)

	op, err := h.ctrl.Send(context.Background(), "hello")
	require.ErrorIs(t, err, ErrNoSession)
	assert.Equal(t, StateFailed, op.State())
	assert.Equal(t, []OpState{StateFailed}, h.states)
	assert.Zero(t, h.log.Len())
	assert.Empty(t, backend.sentTexts)
	assert.Equal(t, 0, h.drafts)
	assert.Equal(t, "No session. Start a session first.", h.status.Get().Error)
	assert.False(t, h.status.Get().Busy)
}

func TestSendFailureKeepsPartialText(t *testing.T) {
	backend := &fakeBackend{
		deltas:    []string{"par", "tial"},
		streamErr: &api.StreamError{Partial: "partial", Err: errors.New("connection reset")},
	}
	h := newHarness("s_1", backend)

	op, err := h.ctrl.Send(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, StateFailed, op.State())
	assert.Equal(t, []OpState{StateDispatched, StateStreaming, StateFailed}, h.states)

	recs := h.log.Snapshot()
	require.Len(t, recs, 2)
	assert.Equal(t, "partial", recs[1].Text)
	assert.Empty(t, recs[1].MessageID)

	st := h.status.Get()
	assert.False(t, st.Busy)
	assert.Contains(t, st.Error, "connection reset")
}

func TestSendAPIErrorBeforeStreaming(t *testing.T) {
	backend := &fakeBackend{streamErr: &api.APIError{Op: "stream", StatusCode: 500, Message: "stream_failed"}}
	h := newHarness("s_1", backend)

	_, err := h.ctrl.Send(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, []OpState{StateDispatched, StateFailed}, h.states)
	assert.Equal(t, StatusState{Error: "stream_failed"}, h.status.Get())

	rec, _ := h.log.At(1)
	assert.Empty(t, rec.Text)
}

func TestSendCancelled(t *testing.T) {
	backend := &fakeBackend{deltas: []string{"never"}}
	h := newHarness("s_1", backend)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.ctrl.Send(ctx, "q")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "cancelled", h.status.Get().Error)
	assert.False(t, h.status.Get().Busy)
}

func TestSendTargetsCapturedHandle(t *testing.T) {
	backend := &fakeBackend{deltas: []string{"a", "b", "c"}}
	h := newHarness("s_1", backend)

	// 流中途出现另一条助手记录，回复仍写入派发时的占位
	backend.beforeEach = func(i int) {
		if i == 1 {
			h.log.Append(RoleAssistant, "other")
		}
	}

	_, err := h.ctrl.Send(context.Background(), "q")
	require.NoError(t, err)

	recs := h.log.Snapshot()
	require.Len(t, recs, 3)
	assert.Equal(t, "abc", recs[1].Text)
	assert.Equal(t, "other", recs[2].Text)
}

func seedConversation(t *testing.T, l *Log) {
	t.Helper()
	l.Append(RoleUser, "q1")
	a1 := l.Append(RoleAssistant, "")
	l.Finalize(a1, "r1", "msg-1", "tr-1")
	l.Append(RoleUser, "q2")
	a2 := l.Append(RoleAssistant, "")
	l.Finalize(a2, "r2", "msg-2", "tr-2")
}

func TestRegenerateTruncatesAndReplaces(t *testing.T) {
	backend := &fakeBackend{
		deltas: []string{"r1", "'"},
		result: api.StreamResult{MessageID: "msg-3", TraceID: "tr-3"},
	}
	h := newHarness("s_1", backend)
	seedConversation(t, h.log)

	op, err := h.ctrl.Regenerate(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, op.Regenerate())
	assert.Equal(t, 1, op.Target().Index)
	assert.Equal(t, []string{"q1"}, backend.sentTexts)
	assert.Equal(t, 0, h.drafts, "regenerate never touches the draft")

	recs := h.log.Snapshot()
	require.Len(t, recs, 2)
	assert.Equal(t, "q1", recs[0].Text)
	assert.Equal(t, "r1'", recs[1].Text)
	assert.Equal(t, "msg-3", recs[1].MessageID)
	assert.Equal(t, "tr-3", recs[1].TraceID)
}

func TestRegenerateLastAssistantKeepsLength(t *testing.T) {
	backend := &fakeBackend{deltas: []string{"new"}}
	h := newHarness("s_1", backend)
	seedConversation(t, h.log)

	_, err := h.ctrl.Regenerate(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 4, h.log.Len())
	assert.Equal(t, []string{"q2"}, backend.sentTexts)

	rec, _ := h.log.At(3)
	assert.Equal(t, "new", rec.Text)
	assert.Empty(t, rec.MessageID, "ids are cleared and the fake returns none")
}

func TestRegenerateWithoutUserIsNoop(t *testing.T) {
	backend := &fakeBackend{deltas: []string{"x"}}
	h := newHarness("s_1", backend)
	h.log.Append(RoleAssistant, "greeting")

	op, err := h.ctrl.Regenerate(context.Background(), 0)
	assert.NoError(t, err)
	assert.Nil(t, op)
	assert.Empty(t, backend.sentTexts)

	rec, _ := h.log.At(0)
	assert.Equal(t, "greeting", rec.Text)
}

func TestRegenerateRejectsUserIndex(t *testing.T) {
	h := newHarness("s_1", &fakeBackend{})
	seedConversation(t, h.log)

	_, err := h.ctrl.Regenerate(context.Background(), 0)
	assert.Error(t, err)
	_, err = h.ctrl.Regenerate(context.Background(), 42)
	assert.Error(t, err)
	assert.Equal(t, 4, h.log.Len())
}

func TestSendPublishesTransitions(t *testing.T) {
	bus := events.NewMemoryBus()
	var got []string
	bus.Subscribe(events.TypeSendTransition, events.HandlerFunc(func(e events.Event) {
		got = append(got, e.(events.SendTransition).To)
	}))

	backend := &fakeBackend{deltas: []string{"x"}}
	l := NewLog(bus)
	ctrl := NewController(backend, staticSession("s_1"), l, NewStatus(bus), bus, nil)

	_, err := ctrl.Send(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []string{"dispatched", "streaming", "finalized"}, got)
}

func TestOpStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "OpState(9)", OpState(9).String())
}
