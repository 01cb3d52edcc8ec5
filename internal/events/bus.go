package events

import (
	"sort"
	"sync"
	"time"
)

// Event 事件接口
type Event interface {
	// Type 事件类型
	Type() string
	// Timestamp 事件时间戳
	Timestamp() time.Time
}

// Handler 事件处理器接口
type Handler interface {
	// Handle 处理事件
	Handle(event Event)
	// Priority 处理优先级，数值越小优先级越高
	Priority() int
}

// HandlerFunc 把普通函数适配为 Handler，优先级为 0
type HandlerFunc func(Event)

func (f HandlerFunc) Handle(event Event) { f(event) }

func (f HandlerFunc) Priority() int { return 0 }

// Bus 事件总线接口
type Bus interface {
	// Subscribe 订阅事件，返回取消订阅函数
	Subscribe(eventType string, handler Handler) func()
	// Publish 同步发布事件
	Publish(event Event)
	// PublishAsync 异步发布事件
	PublishAsync(event Event)
	// Clear 清空所有订阅
	Clear()
}

// Wildcard 订阅所有事件类型
const Wildcard = "*"

type subscription struct {
	id      uint64
	handler Handler
}

// MemoryBus 内存事件总线实现
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]subscription
	nextID   uint64
}

// NewMemoryBus 创建内存事件总线
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[string][]subscription)}
}

// Subscribe 订阅事件
func (bus *MemoryBus) Subscribe(eventType string, handler Handler) func() {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	bus.nextID++
	id := bus.nextID
	subs := append(bus.handlers[eventType], subscription{id: id, handler: handler})
	// 按优先级排序，同优先级保持订阅顺序
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].handler.Priority() < subs[j].handler.Priority()
	})
	bus.handlers[eventType] = subs

	return func() { bus.unsubscribe(eventType, id) }
}

func (bus *MemoryBus) unsubscribe(eventType string, id uint64) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	subs := bus.handlers[eventType]
	for i, s := range subs {
		if s.id == id {
			bus.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish 发布事件，先通知精确订阅者再通知通配订阅者
func (bus *MemoryBus) Publish(event Event) {
	bus.mu.RLock()
	exact := bus.handlers[event.Type()]
	wild := bus.handlers[Wildcard]
	targets := make([]subscription, 0, len(exact)+len(wild))
	targets = append(targets, exact...)
	targets = append(targets, wild...)
	bus.mu.RUnlock()

	for _, s := range targets {
		s.handler.Handle(event)
	}
}

// PublishAsync 异步发布事件
func (bus *MemoryBus) PublishAsync(event Event) {
	go bus.Publish(event)
}

// Clear 清空所有订阅
func (bus *MemoryBus) Clear() {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.handlers = make(map[string][]subscription)
}

// Nop 丢弃所有事件的总线，用于不关心通知的调用方
type Nop struct{}

func (Nop) Subscribe(string, Handler) func() { return func() {} }
func (Nop) Publish(Event)                    {}
func (Nop) PublishAsync(Event)               {}
func (Nop) Clear()                           {}
