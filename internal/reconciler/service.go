package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/universal-market/internal/catalog"
	"github.com/ariefcatur/universal-market/internal/events"
	kafkax "github.com/ariefcatur/universal-market/internal/kafka"
)

type StockWriter interface {
	DecrementStock(ctx context.Context, productID int64, qty int) (catalog.Product, error)
}

type Dedup interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// DeadLetter stores an event the service gave up on. It must return only
// once the event is durably written.
type DeadLetter interface {
	Publish(ctx context.Context, m kafkago.Message, cause error, eventType, eventID string) error
}

type Sleeper func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Service re-drives stock decrements that failed during payment
// reconciliation.
type Service struct {
	Stock      StockWriter
	Dedup      Dedup
	DLQ        DeadLetter
	Log        *zap.Logger
	MaxRetries int
	Backoff    time.Duration
	Sleep      Sleeper
}

// HandleLineFailed is installed as the consumer handler. When retries run out
// the event goes to the dead letter topic; an error is returned only when
// that write fails, and the consumer then retries the same message.
func (s *Service) HandleLineFailed(ctx context.Context, m kafkago.Message) error {
	log := s.logger()

	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.Error("undecodable message", zap.Int64("offset", m.Offset), zap.Error(err))
		return s.deadLetter(ctx, m, err, "", "")
	}
	if env.EventType != events.EventReconcileLineFailed {
		return nil
	}

	if seen, err := s.Dedup.Seen(ctx, env.EventID); err != nil {
		log.Warn("dedup lookup failed", zap.String("event_id", env.EventID), zap.Error(err))
	} else if seen {
		return nil
	}

	p, err := kafkax.UnwrapPayload[events.ReconcileLineFailedPayload](env.Payload)
	if err != nil {
		log.Error("event with bad payload", zap.String("event_id", env.EventID), zap.Error(err))
		return s.deadLetter(ctx, m, err, env.EventType, env.EventID)
	}
	log = log.With(
		zap.String("event_id", env.EventID),
		zap.String("tx_ref", p.TxRef),
		zap.Int64("product_id", p.ProductID),
		zap.Int("qty", p.Qty))

	product, err := s.decrementWithRetry(ctx, p)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		log.Error("product gone, stock decrement abandoned")
	case ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		if dlqErr := s.deadLetter(ctx, m, err, env.EventType, env.EventID); dlqErr != nil {
			return fmt.Errorf("redrive %s: %w", env.EventID, dlqErr)
		}
		log.Error("stock decrement abandoned after retries", zap.Error(err))
	default:
		log.Info("stock decrement re-driven", zap.Int("stock_quantity", product.StockQuantity))
		if product.StockQuantity < 0 {
			log.Warn("stock went negative", zap.Int("stock_quantity", product.StockQuantity))
		}
	}

	if err := s.Dedup.Mark(ctx, env.EventID); err != nil {
		log.Warn("dedup mark failed", zap.Error(err))
	}
	return nil
}

func (s *Service) decrementWithRetry(ctx context.Context, p events.ReconcileLineFailedPayload) (catalog.Product, error) {
	sleep := s.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	var lastErr error
	for attempt := 0; attempt <= s.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, s.Backoff*time.Duration(attempt)); err != nil {
				return catalog.Product{}, err
			}
		}
		product, err := s.Stock.DecrementStock(ctx, p.ProductID, p.Qty)
		if err == nil || errors.Is(err, catalog.ErrNotFound) {
			return product, err
		}
		lastErr = err
		s.logger().Warn("stock decrement attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Int64("product_id", p.ProductID),
			zap.Error(err))
	}
	return catalog.Product{}, lastErr
}

func (s *Service) deadLetter(ctx context.Context, m kafkago.Message, cause error, eventType, eventID string) error {
	if err := s.DLQ.Publish(ctx, m, cause, eventType, eventID); err != nil {
		return fmt.Errorf("dead letter: %w", err)
	}
	return nil
}

func (s *Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
