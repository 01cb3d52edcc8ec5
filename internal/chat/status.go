package chat

import (
	"sync"

	"github.com/Zacy-Sokach/ChatTester/internal/events"
)

// StatusState 全局状态：是否忙碌、最近的错误和最近一次回复的 trace id
type StatusState struct {
	Busy    bool
	Error   string
	TraceID string
}

// Status 进程内共享的状态，由发送、反馈和会话管理写入
type Status struct {
	mu    sync.RWMutex
	state StatusState
	bus   events.Bus
}

func NewStatus(bus events.Bus) *Status {
	if bus == nil {
		bus = events.Nop{}
	}
	return &Status{bus: bus}
}

// Get 返回当前状态的副本
func (s *Status) Get() StatusState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Begin 进入忙碌，清除错误和 trace id
func (s *Status) Begin() {
	s.set(func(st *StatusState) {
		*st = StatusState{Busy: true}
	})
}

// Done 结束忙碌，traceID 非空时记录下来
func (s *Status) Done(traceID string) {
	s.set(func(st *StatusState) {
		st.Busy = false
		if traceID != "" {
			st.TraceID = traceID
		}
	})
}

// Fail 结束忙碌并记录错误
func (s *Status) Fail(err error) {
	s.set(func(st *StatusState) {
		st.Busy = false
		st.Error = ErrorMessage(err)
	})
}

// SetError 只记录错误，不改变忙碌状态
func (s *Status) SetError(err error) {
	s.set(func(st *StatusState) {
		st.Error = ErrorMessage(err)
	})
}

// ClearDiagnostics 清除错误和 trace id，保留忙碌状态
func (s *Status) ClearDiagnostics() {
	s.set(func(st *StatusState) {
		st.Error = ""
		st.TraceID = ""
	})
}

// Reset 回到初始状态
func (s *Status) Reset() {
	s.set(func(st *StatusState) {
		*st = StatusState{}
	})
}

func (s *Status) set(mutate func(*StatusState)) {
	s.mu.Lock()
	mutate(&s.state)
	st := s.state
	s.mu.Unlock()

	s.bus.Publish(events.StatusChanged{
		Base:    events.NewBase(events.TypeStatusChanged),
		Busy:    st.Busy,
		Error:   st.Error,
		TraceID: st.TraceID,
	})
}
