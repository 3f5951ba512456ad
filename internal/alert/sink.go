// Package alert delivers price alerts to operators.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Veraticus/the-price-must-flow/internal/model"
	"github.com/Veraticus/the-price-must-flow/internal/service"
)

// ErrQueueFull is returned when an AsyncSink cannot accept another alert.
var ErrQueueFull = errors.New("alert queue full")

// ErrSinkClosed is returned by an AsyncSink after Close.
var ErrSinkClosed = errors.New("alert sink closed")

// LogSink writes alerts to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs through logger, or slog.Default when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Emit logs the alert.
func (s *LogSink) Emit(ctx context.Context, a model.Alert) error {
	level := slog.LevelInfo
	if a.Priority == model.AlertPriorityHigh {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "Price alert",
		"alert_id", a.ID,
		"type", a.Type,
		"priority", a.Priority,
		"product_id", a.ProductID,
		"invoice_id", a.InvoiceID,
		"message", a.Message)
	return nil
}

// Saver persists alerts.
type Saver interface {
	SaveAlert(ctx context.Context, alert *model.Alert) error
}

// StoreSink persists alerts so operators can list and resolve them.
type StoreSink struct {
	store Saver
}

// NewStoreSink creates a sink backed by store.
func NewStoreSink(store Saver) *StoreSink {
	return &StoreSink{store: store}
}

// Emit saves the alert.
func (s *StoreSink) Emit(ctx context.Context, a model.Alert) error {
	if err := s.store.SaveAlert(ctx, &a); err != nil {
		return fmt.Errorf("failed to store alert: %w", err)
	}
	return nil
}

// MultiSink fans an alert out to every sink. All sinks are tried; their
// errors are joined.
type MultiSink struct {
	sinks []service.AlertSink
}

// NewMultiSink creates a fan-out sink. Nil sinks are skipped.
func NewMultiSink(sinks ...service.AlertSink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Emit sends a to every sink.
func (m *MultiSink) Emit(ctx context.Context, a model.Alert) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Emit(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Observer counts emitted alerts.
type Observer interface {
	ObserveAlert(kind model.AlertType)
}

// ObservedSink reports every alert to an Observer before forwarding it.
type ObservedSink struct {
	next     service.AlertSink
	observer Observer
}

// NewObservedSink wraps next.
func NewObservedSink(next service.AlertSink, observer Observer) *ObservedSink {
	return &ObservedSink{next: next, observer: observer}
}

// Emit records and forwards a.
func (s *ObservedSink) Emit(ctx context.Context, a model.Alert) error {
	if s.observer != nil {
		s.observer.ObserveAlert(a.Type)
	}
	return s.next.Emit(ctx, a)
}

// AsyncSink hands alerts to a background worker so callers never wait on
// slow sinks. Alerts arriving while the buffer is full are dropped.
type AsyncSink struct {
	next    service.AlertSink
	queue   chan model.Alert
	wg      sync.WaitGroup
	mu      sync.RWMutex
	dropped atomic.Int64
	timeout time.Duration
	closed  bool
}

// NewAsyncSink starts a worker delivering to next. Each delivery gets its own
// timeout, independent of the caller's context.
func NewAsyncSink(next service.AlertSink, buffer int, timeout time.Duration) *AsyncSink {
	if buffer <= 0 {
		buffer = 100
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	s := &AsyncSink{
		next:    next,
		queue:   make(chan model.Alert, buffer),
		timeout: timeout,
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Emit queues a without blocking.
func (s *AsyncSink) Emit(_ context.Context, a model.Alert) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.queue <- a:
		return nil
	default:
		s.dropped.Add(1)
		return ErrQueueFull
	}
}

// Dropped returns how many alerts were discarded because the queue was full.
func (s *AsyncSink) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops accepting alerts and waits for queued ones to be delivered.
func (s *AsyncSink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *AsyncSink) run() {
	defer s.wg.Done()
	for a := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		if err := s.next.Emit(ctx, a); err != nil {
			slog.Warn("Failed to deliver alert", "alert_id", a.ID, "type", a.Type, "error", err)
		}
		cancel()
	}
}
