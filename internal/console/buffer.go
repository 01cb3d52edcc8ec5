package console

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultCapacity 控制台默认保留的日志条数
const DefaultCapacity = 400

// Level 控制台日志级别
type Level string

const (
	LevelAll   Level = "all"
	LevelLog   Level = "log"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// ParseLevel 解析过滤级别，debug 归入 log
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return LevelAll, nil
	case "log", "debug":
		return LevelLog, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return "", fmt.Errorf("unknown console level %q", s)
}

// Entry 一条控制台日志
type Entry struct {
	ID    uint64
	Level Level
	Time  time.Time
	Text  string
}

// Buffer 固定容量的环形日志缓冲区，满了以后淘汰最旧的条目
type Buffer struct {
	mu       sync.RWMutex
	entries  []Entry
	start    int
	size     int
	nextID   uint64
	watchers []func(Entry)
}

// NewBuffer 创建环形缓冲区，capacity <= 0 时使用默认容量
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{entries: make([]Entry, capacity)}
}

// Capacity 缓冲区容量
func (b *Buffer) Capacity() int {
	return len(b.entries)
}

// Push 写入一条日志并返回它
func (b *Buffer) Push(level Level, text string) Entry {
	b.mu.Lock()
	b.nextID++
	e := Entry{ID: b.nextID, Level: level, Time: time.Now(), Text: text}

	capacity := len(b.entries)
	if b.size < capacity {
		b.entries[(b.start+b.size)%capacity] = e
		b.size++
	} else {
		b.entries[b.start] = e
		b.start = (b.start + 1) % capacity
	}
	watchers := b.watchers
	b.mu.Unlock()

	for _, fn := range watchers {
		fn(e)
	}
	return e
}

// Entries 按时间顺序返回日志，filter 为 all 时返回全部
func (b *Buffer) Entries(filter Level) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Entry, 0, b.size)
	capacity := len(b.entries)
	for i := 0; i < b.size; i++ {
		e := b.entries[(b.start+i)%capacity]
		if filter == "" || filter == LevelAll || e.Level == filter {
			out = append(out, e)
		}
	}
	return out
}

// Len 当前条目数
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Clear 清空缓冲区，ID 继续递增
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.start = 0
	b.size = 0
	for i := range b.entries {
		b.entries[i] = Entry{}
	}
}

// Watch 注册写入回调，回调在锁外执行
func (b *Buffer) Watch(fn func(Entry)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.watchers = append(b.watchers, fn)
}
