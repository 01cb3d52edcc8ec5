package reveal

import (
	"slices"
	"sync"
	"time"

	"github.com/Zacy-Sokach/ChatTester/internal/events"
)

// 显示间隔的默认值和范围
const (
	DefaultInterval = 180 * time.Millisecond
	MinInterval     = 80 * time.Millisecond
	MaxInterval     = 420 * time.Millisecond
	IntervalStep    = 20 * time.Millisecond
)

// ClampInterval 把间隔限制在 [MinInterval, MaxInterval]，0 表示默认值
func ClampInterval(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return DefaultInterval
	case d < MinInterval:
		return MinInterval
	case d > MaxInterval:
		return MaxInterval
	default:
		return d
	}
}

// State 一条记录的显示进度
type State struct {
	Chunks  []string
	Visible int
}

// Observe 块序列（数量或内容）变化时重置进度，返回是否变化
func (s *State) Observe(chunks []string) bool {
	if slices.Equal(s.Chunks, chunks) {
		return false
	}
	s.Chunks = chunks
	s.Visible = 0
	return true
}

// Advance 多显示一块，已经全部显示时返回 false
func (s *State) Advance() bool {
	if s.Visible >= len(s.Chunks) {
		return false
	}
	s.Visible++
	return true
}

// Done 是否已全部显示
func (s State) Done() bool {
	return s.Visible >= len(s.Chunks)
}

// Shown 已显示的块
func (s State) Shown() []string {
	return s.Chunks[:s.Visible]
}

type task struct {
	state State
	stop  chan struct{}
}

// Options 调度器参数
type Options struct {
	Interval  time.Duration
	GroupSize int
}

// Scheduler 为每条记录运行一个可取消的定时任务，逐块推进显示进度
type Scheduler struct {
	mu        sync.Mutex
	interval  time.Duration
	groupSize int
	tasks     map[uint64]*task
	closed    bool
	bus       events.Bus
}

// NewScheduler 创建调度器，每次推进发布 reveal.advanced
func NewScheduler(bus events.Bus, opts Options) *Scheduler {
	if bus == nil {
		bus = events.Nop{}
	}
	if opts.GroupSize < 1 {
		opts.GroupSize = DefaultGroupSize
	}
	return &Scheduler{
		interval:  ClampInterval(opts.Interval),
		groupSize: opts.GroupSize,
		tasks:     make(map[uint64]*task),
		bus:       bus,
	}
}

// Interval 当前间隔
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// SetInterval 调整间隔，正在运行的任务在下一次计时时生效，返回限制后的值
func (s *Scheduler) SetInterval(d time.Duration) time.Duration {
	d = ClampInterval(d)
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
	return d
}

// Observe 用记录的最新文本更新块序列，块变化时从头开始显示
func (s *Scheduler) Observe(key uint64, text string) State {
	chunks := Segment(text, s.groupSize)

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[key]
	if !ok {
		t = &task{}
		s.tasks[key] = t
	}
	if !t.state.Observe(chunks) {
		return snapshot(t.state)
	}

	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	if len(chunks) > 0 && !s.closed {
		t.stop = make(chan struct{})
		go s.run(key, t, t.stop)
	}
	return snapshot(t.state)
}

// Snapshot 返回某条记录当前的显示进度
func (s *Scheduler) Snapshot(key uint64) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[key]
	if !ok {
		return State{}, false
	}
	return snapshot(t.state), true
}

// Complete 立即显示某条记录的全部块（例如导出或复制前）
func (s *Scheduler) Complete(key uint64) {
	s.mu.Lock()
	t, ok := s.tasks[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	t.state.Visible = len(t.state.Chunks)
	visible, total := t.state.Visible, len(t.state.Chunks)
	s.mu.Unlock()

	s.publish(key, visible, total)
}

// Forget 停止并移除某条记录的任务
func (s *Scheduler) Forget(key uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forgetLocked(key)
}

// Retain 只保留 keys 中的记录，其余全部移除
func (s *Scheduler) Retain(keys []uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.tasks {
		if !slices.Contains(keys, key) {
			s.forgetLocked(key)
		}
	}
}

func (s *Scheduler) forgetLocked(key uint64) {
	if t, ok := s.tasks[key]; ok {
		if t.stop != nil {
			close(t.stop)
			t.stop = nil
		}
		delete(s.tasks, key)
	}
}

// Close 停止所有任务，之后 Observe 不再启动新任务
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.tasks {
		s.forgetLocked(key)
	}
	s.closed = true
}

func (s *Scheduler) run(key uint64, t *task, stop chan struct{}) {
	for {
		timer := time.NewTimer(s.Interval())
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		s.mu.Lock()
		// 任务可能已被重启或移除
		if t.stop != stop {
			s.mu.Unlock()
			return
		}
		t.state.Advance()
		visible, total := t.state.Visible, len(t.state.Chunks)
		if visible >= total {
			t.stop = nil
		}
		s.mu.Unlock()

		s.publish(key, visible, total)
		if visible >= total {
			return
		}
	}
}

func (s *Scheduler) publish(key uint64, visible, total int) {
	s.bus.Publish(events.RevealAdvanced{
		Base:    events.NewBase(events.TypeRevealAdvanced),
		Key:     key,
		Visible: visible,
		Total:   total,
	})
}

func snapshot(st State) State {
	return State{Chunks: slices.Clone(st.Chunks), Visible: st.Visible}
}
