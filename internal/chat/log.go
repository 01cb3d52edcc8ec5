package chat

import (
	"fmt"
	"sync"
	"time"

	"github.com/Zacy-Sokach/ChatTester/internal/events"
)

// Role 消息角色
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Record 日志中的一条消息
// Timestamp 创建时确定；MessageID/TraceID 在完成前为空，设置后不再改变
type Record struct {
	Key       uint64
	Role      Role
	Text      string
	Timestamp time.Time
	MessageID string
	TraceID   string
}

// Handle 发送操作在派发时捕获的目标位置
type Handle struct {
	Index int
	Key   uint64
}

// Log 有序消息日志
// 所有写入都是在锁内对整条记录的替换，读取方不会看到写了一半的记录
type Log struct {
	mu      sync.RWMutex
	records []Record
	nextKey uint64
	bus     events.Bus
	now     func() time.Time
}

// NewLog 创建消息日志，bus 为 nil 时不发布事件
func NewLog(bus events.Bus) *Log {
	if bus == nil {
		bus = events.Nop{}
	}
	return &Log{bus: bus, now: time.Now}
}

func (l *Log) newRecord(role Role, text string) Record {
	l.nextKey++
	return Record{Key: l.nextKey, Role: role, Text: text, Timestamp: l.now()}
}

// Append 在末尾追加一条记录，返回其 Handle
func (l *Log) Append(role Role, text string) Handle {
	l.mu.Lock()
	rec := l.newRecord(role, text)
	l.records = append(l.records, rec)
	h := Handle{Index: len(l.records) - 1, Key: rec.Key}
	l.mu.Unlock()

	l.bus.Publish(events.MessageChanged{Base: events.NewBase(events.TypeMessageAppended), Index: h.Index, Key: h.Key})
	return h
}

// Len 记录条数
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// At 返回 index 处记录的副本
func (l *Log) At(index int) (Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.records) {
		return Record{}, false
	}
	return l.records[index], true
}

// Snapshot 返回全部记录的副本
func (l *Log) Snapshot() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Resolve 找到 Handle 当前指向的位置
// 优先使用原位置，其次按 key 查找，最后退化为最后一条助手消息
func (l *Log) Resolve(h Handle) (int, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.resolveLocked(h)
}

func (l *Log) resolveLocked(h Handle) (int, bool) {
	if h.Index >= 0 && h.Index < len(l.records) && l.records[h.Index].Key == h.Key {
		return h.Index, true
	}
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].Key == h.Key {
			return i, true
		}
	}
	return l.lastAssistantLocked()
}

// LastAssistant 最后一条助手消息的位置
func (l *Log) LastAssistant() (int, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastAssistantLocked()
}

func (l *Log) lastAssistantLocked() (int, bool) {
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].Role == RoleAssistant {
			return i, true
		}
	}
	return -1, false
}

// SetText 用累计文本整体替换目标记录的 Text
func (l *Log) SetText(h Handle, text string) (int, bool) {
	return l.update(h, func(rec *Record) {
		rec.Text = text
	})
}

// Finalize 写入最终文本和 ID，已设置的 ID 不会被覆盖
func (l *Log) Finalize(h Handle, text, messageID, traceID string) (int, bool) {
	return l.update(h, func(rec *Record) {
		rec.Text = text
		if rec.MessageID == "" {
			rec.MessageID = messageID
		}
		if rec.TraceID == "" {
			rec.TraceID = traceID
		}
	})
}

func (l *Log) update(h Handle, mutate func(*Record)) (int, bool) {
	l.mu.Lock()
	idx, ok := l.resolveLocked(h)
	if !ok {
		l.mu.Unlock()
		return -1, false
	}
	rec := l.records[idx]
	mutate(&rec)
	l.records[idx] = rec
	key := rec.Key
	l.mu.Unlock()

	l.bus.Publish(events.MessageChanged{Base: events.NewBase(events.TypeMessageUpdated), Index: idx, Key: key})
	return idx, true
}

// Restart 截断到 index+1，并把 index 处替换为空的助手记录（新 key、新时间戳、无 ID）
func (l *Log) Restart(index int) (Handle, error) {
	l.mu.Lock()
	if index < 0 || index >= len(l.records) {
		l.mu.Unlock()
		return Handle{}, fmt.Errorf("位置 %d 超出范围", index)
	}
	if l.records[index].Role != RoleAssistant {
		l.mu.Unlock()
		return Handle{}, fmt.Errorf("位置 %d 不是助手消息", index)
	}
	truncated := len(l.records) > index+1
	l.records = l.records[:index+1]
	rec := l.newRecord(RoleAssistant, "")
	l.records[index] = rec
	l.mu.Unlock()

	if truncated {
		l.bus.Publish(events.LogTruncated{Base: events.NewBase(events.TypeLogTruncated), Len: index + 1})
	}
	l.bus.Publish(events.MessageChanged{Base: events.NewBase(events.TypeMessageUpdated), Index: index, Key: rec.Key})
	return Handle{Index: index, Key: rec.Key}, nil
}

// Truncate 只保留位置小于 n 的记录
func (l *Log) Truncate(n int) {
	l.mu.Lock()
	if n < 0 {
		n = 0
	}
	if n >= len(l.records) {
		l.mu.Unlock()
		return
	}
	l.records = l.records[:n]
	l.mu.Unlock()

	l.bus.Publish(events.LogTruncated{Base: events.NewBase(events.TypeLogTruncated), Len: n})
}

// Reset 清空日志
func (l *Log) Reset() {
	l.mu.Lock()
	l.records = nil
	l.mu.Unlock()

	l.bus.Publish(events.NewBase(events.TypeLogReset))
}
