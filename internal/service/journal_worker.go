package service

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"zkpay/internal/models"
)

const defaultJournalBuffer = 1024

// JournalWorker decouples journal writes from the goroutine that produced the
// event. Record never blocks: when the buffer is full the event is dropped
// and counted.
type JournalWorker struct {
	Sink   EventSink
	Buffer int
	Logger *zap.Logger

	ch      chan models.TradeEvent
	dropped atomic.Int64
}

func NewJournalWorker(sink EventSink, buffer int, logger *zap.Logger) *JournalWorker {
	if buffer <= 0 {
		buffer = defaultJournalBuffer
	}
	return &JournalWorker{
		Sink:   sink,
		Buffer: buffer,
		Logger: logger,
		ch:     make(chan models.TradeEvent, buffer),
	}
}

func (w *JournalWorker) Record(ctx context.Context, ev models.TradeEvent) {
	if w == nil || w.ch == nil {
		return
	}
	select {
	case w.ch <- ev:
	default:
		n := w.dropped.Add(1)
		if w.Logger != nil {
			w.Logger.Warn("journal buffer full, event dropped",
				zap.String("session_id", ev.SessionID),
				zap.String("trade_id", ev.TradeID),
				zap.String("kind", ev.Kind),
				zap.Int64("dropped", n),
			)
		}
	}
}

// Dropped is the number of events lost to a full buffer.
func (w *JournalWorker) Dropped() int64 {
	if w == nil {
		return 0
	}
	return w.dropped.Load()
}

// Run writes buffered events until ctx ends, then flushes what is already
// queued.
func (w *JournalWorker) Run(ctx context.Context) error {
	if w == nil || w.ch == nil || w.Sink == nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			w.flush()
			return ctx.Err()
		case ev := <-w.ch:
			w.Sink.Record(context.Background(), ev)
		}
	}
}

func (w *JournalWorker) flush() {
	for {
		select {
		case ev := <-w.ch:
			w.Sink.Record(context.Background(), ev)
		default:
			return
		}
	}
}
