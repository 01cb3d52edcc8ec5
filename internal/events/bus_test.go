package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type prioHandler struct {
	prio int
	name string
	out  *[]string
}

func (h prioHandler) Handle(Event)    { *h.out = append(*h.out, h.name) }
func (h prioHandler) Priority() int { return h.prio }

func TestMemoryBusPriorityOrder(t *testing.T) {
	bus := NewMemoryBus()
	var order []string

	bus.Subscribe(TypeStatusChanged, prioHandler{prio: 5, name: "late", out: &order})
	bus.Subscribe(TypeStatusChanged, prioHandler{prio: 1, name: "early", out: &order})
	bus.Subscribe(Wildcard, prioHandler{prio: 0, name: "wild", out: &order})

	bus.Publish(StatusChanged{Base: NewBase(TypeStatusChanged)})
	assert.Equal(t, []string{"early", "late", "wild"}, order)
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	bus := NewMemoryBus()
	count := 0
	cancel := bus.Subscribe(TypeLogReset, HandlerFunc(func(Event) { count++ }))

	bus.Publish(NewBase(TypeLogReset))
	cancel()
	bus.Publish(NewBase(TypeLogReset))
	assert.Equal(t, 1, count)

	// 其他类型不受影响
	bus.Publish(NewBase(TypeLogTruncated))
	assert.Equal(t, 1, count)
}

func TestMemoryBusPublishAsync(t *testing.T) {
	bus := NewMemoryBus()
	var wg sync.WaitGroup
	wg.Add(1)

	var got Event
	bus.Subscribe(TypeRevealAdvanced, HandlerFunc(func(e Event) {
		got = e
		wg.Done()
	}))
	bus.PublishAsync(RevealAdvanced{Base: NewBase(TypeRevealAdvanced), Key: 7, Visible: 1, Total: 2})

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async event not delivered")
	}

	ev, ok := got.(RevealAdvanced)
	require.True(t, ok)
	assert.Equal(t, uint64(7), ev.Key)
}

func TestMemoryBusClear(t *testing.T) {
	bus := NewMemoryBus()
	count := 0
	bus.Subscribe(Wildcard, HandlerFunc(func(Event) { count++ }))
	bus.Clear()
	bus.Publish(NewBase(TypeLogReset))
	assert.Equal(t, 0, count)
}
