package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTestProducer(buf int) (*Producer, *observer.ObservedLogs) {
	core, logs := observer.New(zap.ErrorLevel)
	// nothing listens here; no test below reaches the writer
	return NewProducer([]string{"127.0.0.1:1"}, buf, zap.New(core)), logs
}

func publishWithin(t *testing.T, p *Producer, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Publish("payment.reconciled", []byte("chapa-42-1"), []byte(`{}`))
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("Publish blocked")
	}
}

func TestProducer_PublishAfterShutdownDrops(t *testing.T) {
	p, logs := newTestProducer(4)
	p.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))

	assert.NotPanics(t, func() { publishWithin(t, p, time.Second) })
	require.Equal(t, 1, logs.FilterMessage("kafka message dropped").Len())
	assert.Equal(t, "producer closed", logs.All()[0].ContextMap()["reason"])

	// second shutdown is harmless
	require.NoError(t, p.Shutdown(ctx))
}

func TestProducer_PublishAfterStartContextCancelledDoesNotBlock(t *testing.T) {
	p, logs := newTestProducer(1)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()

	select {
	case <-p.closeCh:
	case <-time.After(5 * time.Second):
		t.Fatal("writer goroutine did not stop")
	}

	publishWithin(t, p, time.Second)
	publishWithin(t, p, time.Second)
	assert.Equal(t, 2, logs.FilterMessage("kafka message dropped").Len())
}

func TestProducer_FullInboxDrops(t *testing.T) {
	p, logs := newTestProducer(1)
	// not started: the inbox only fills

	publishWithin(t, p, time.Second)
	publishWithin(t, p, time.Second)

	entries := logs.FilterMessage("kafka message dropped").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "inbox full", entries[0].ContextMap()["reason"])
	assert.Len(t, p.inbox, 1)
}
