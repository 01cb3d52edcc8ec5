package tui

import (
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Zacy-Sokach/ChatTester/internal/console"
	"github.com/Zacy-Sokach/ChatTester/internal/events"
)

// bridge 把总线事件和控制台写入合并成 ChangedMsg 送进 Bubble Tea
// 信号通道容量为 1，多次变化在模型读取前合并成一次
type bridge struct {
	notify     chan struct{}
	done       chan struct{}
	clearDraft atomic.Bool
	closeOnce  sync.Once
	unsubs     []func()
}

func newBridge(bus events.Bus, buf *console.Buffer) *bridge {
	b := &bridge{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	if bus != nil {
		b.unsubs = append(b.unsubs, bus.Subscribe(events.Wildcard, events.HandlerFunc(func(events.Event) {
			b.signal()
		})))
	}
	if buf != nil {
		buf.Watch(func(console.Entry) { b.signal() })
	}
	return b
}

func (b *bridge) signal() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// requestClearDraft 控制器派发消息后调用，在下一次 ChangedMsg 中清空输入框
func (b *bridge) requestClearDraft() {
	b.clearDraft.Store(true)
	b.signal()
}

// wait 等待下一次变化
func (b *bridge) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-b.notify:
			return ChangedMsg{ClearDraft: b.clearDraft.Swap(false)}
		case <-b.done:
			return nil
		}
	}
}

func (b *bridge) close() {
	b.closeOnce.Do(func() {
		for _, unsub := range b.unsubs {
			unsub()
		}
		close(b.done)
	})
}
