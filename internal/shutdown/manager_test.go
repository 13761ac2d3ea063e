package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRun_ReverseOrderAndTimeout(t *testing.T) {
	m := New(50*time.Millisecond, nil)
	var order []string

	m.Add("pool", Func(func() { order = append(order, "pool") }))
	m.Add("redis", Closer(func() error {
		order = append(order, "redis")
		return errors.New("already closed")
	}))
	m.Add("http", func(ctx context.Context) error {
		order = append(order, "http")
		<-ctx.Done()
		return ctx.Err()
	})

	failed := m.Run()
	assert.Equal(t, []string{"http", "redis", "pool"}, order)
	assert.Equal(t, 2, failed)
}

func TestWait_ReturnsWhenContextDone(t *testing.T) {
	m := New(time.Second, nil)
	ran := make(chan struct{})
	m.Add("hook", Func(func() { close(ran) }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Wait(ctx)

	select {
	case <-ran:
	default:
		t.Fatal("hook did not run")
	}
}
