package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Zacy-Sokach/ChatTester/internal/api"
	"github.com/Zacy-Sokach/ChatTester/internal/events"
)

// OpState 发送操作的状态
type OpState int

const (
	StateIdle OpState = iota
	StateDispatched
	StateStreaming
	StateFinalized
	StateFailed
)

func (s OpState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatched:
		return "dispatched"
	case StateStreaming:
		return "streaming"
	case StateFinalized:
		return "finalized"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("OpState(%d)", int(s))
	}
}

// Streamer 流式发送消息的后端
type Streamer interface {
	SendMessageStream(ctx context.Context, sessionID, text string, onDelta api.DeltaFunc) (*api.StreamResult, error)
}

// SessionSource 提供当前会话 ID，空字符串表示没有会话
type SessionSource interface {
	ID() string
}

// SendOperation 一次发送或重新生成
type SendOperation struct {
	id         uint64
	regenerate bool

	mu     sync.Mutex
	state  OpState
	target Handle
	text   string
	err    error
}

func (op *SendOperation) ID() uint64 { return op.id }

// Regenerate 是否是重新生成操作
func (op *SendOperation) Regenerate() bool { return op.regenerate }

func (op *SendOperation) State() OpState {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.state
}

// Target 派发时捕获的助手记录位置
func (op *SendOperation) Target() Handle {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.target
}

// Text 目前累计的回复文本
func (op *SendOperation) Text() string {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.text
}

func (op *SendOperation) Err() error {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.err
}

// Controller 驱动发送状态机：Idle → Dispatched → Streaming → Finalized | Failed
type Controller struct {
	streamer Streamer
	sessions SessionSource
	log      *Log
	status   *Status
	bus      events.Bus
	logger   *zap.Logger

	// ClearDraft 派发新消息后清空输入框
	ClearDraft func()
	// OnTransition 每次状态迁移后调用
	OnTransition func(op *SendOperation, from, to OpState)

	nextOp atomic.Uint64
}

// NewController 创建发送控制器
func NewController(streamer Streamer, sessions SessionSource, log *Log, status *Status, bus events.Bus, logger *zap.Logger) *Controller {
	if bus == nil {
		bus = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		streamer: streamer,
		sessions: sessions,
		log:      log,
		status:   status,
		bus:      bus,
		logger:   logger.Named("send"),
	}
}

// Send 发送一条新消息，阻塞直到完成或失败
// 空文本不做任何事，返回 nil, nil
func (c *Controller) Send(ctx context.Context, text string) (*SendOperation, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	return c.run(ctx, text, -1)
}

// Regenerate 用 index 之前最近的用户消息重新生成 index 处的助手回复
// 找不到用户消息时不做任何事
func (c *Controller) Regenerate(ctx context.Context, index int) (*SendOperation, error) {
	rec, ok := c.log.At(index)
	if !ok {
		return nil, fmt.Errorf("位置 %d 超出范围", index)
	}
	if rec.Role != RoleAssistant {
		return nil, fmt.Errorf("位置 %d 不是助手消息", index)
	}

	text := ""
	for i := index - 1; i >= 0; i-- {
		prev, _ := c.log.At(i)
		if prev.Role == RoleUser {
			text = strings.TrimSpace(prev.Text)
			break
		}
	}
	if text == "" {
		return nil, nil
	}
	return c.run(ctx, text, index)
}

func (c *Controller) run(ctx context.Context, text string, regenIndex int) (*SendOperation, error) {
	op := &SendOperation{id: c.nextOp.Add(1), regenerate: regenIndex >= 0, target: Handle{Index: -1}}

	sessionID := c.sessions.ID()
	if sessionID == "" {
		c.status.SetError(ErrNoSession)
		c.fail(op, ErrNoSession)
		return op, ErrNoSession
	}

	// Dispatched
	var target Handle
	if op.regenerate {
		h, err := c.log.Restart(regenIndex)
		if err != nil {
			c.status.SetError(err)
			c.fail(op, err)
			return op, err
		}
		target = h
	} else {
		c.log.Append(RoleUser, text)
		if c.ClearDraft != nil {
			c.ClearDraft()
		}
		target = c.log.Append(RoleAssistant, "")
	}
	c.status.Begin()
	c.transition(op, StateDispatched, func() { op.target = target })

	result, err := c.streamer.SendMessageStream(ctx, sessionID, text, func(delta, full string) {
		if op.State() == StateDispatched {
			c.transition(op, StateStreaming, nil)
		}
		c.log.SetText(target, full)
		op.mu.Lock()
		op.text = full
		op.mu.Unlock()
	})
	if err != nil {
		// 占位记录保留已经收到的部分内容
		c.status.Fail(err)
		c.fail(op, err)
		return op, err
	}

	c.log.Finalize(target, result.Text, result.MessageID, result.TraceID)
	c.status.Done(result.TraceID)
	c.transition(op, StateFinalized, func() { op.text = result.Text })
	return op, nil
}

func (c *Controller) fail(op *SendOperation, err error) {
	c.transition(op, StateFailed, func() { op.err = err })

	fields := []zap.Field{zap.Uint64("op", op.id), zap.Error(err)}
	var streamErr *api.StreamError
	if errors.As(err, &streamErr) {
		fields = append(fields, zap.Int("partial_bytes", len(streamErr.Partial)))
	}
	if errors.Is(err, context.Canceled) {
		c.logger.Warn("send_cancelled", fields...)
		return
	}
	c.logger.Error("send_failed", fields...)
}

// transition 在锁内迁移状态（可同时修改其它字段），然后发布事件
func (c *Controller) transition(op *SendOperation, to OpState, mutate func()) {
	op.mu.Lock()
	from := op.state
	op.state = to
	if mutate != nil {
		mutate()
	}
	index := op.target.Index
	err := op.err
	op.mu.Unlock()

	c.logger.Debug("send_transition",
		zap.Uint64("op", op.id),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Int("index", index))

	c.bus.Publish(events.SendTransition{
		Base:  events.NewBase(events.TypeSendTransition),
		OpID:  op.id,
		From:  from.String(),
		To:    to.String(),
		Index: index,
		Err:   err,
	})
	if c.OnTransition != nil {
		c.OnTransition(op, from, to)
	}
}
