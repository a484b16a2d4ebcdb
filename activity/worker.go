package activity

import (
	"context"
	"log/slog"
	"sync"

	"github.com/warp/splitledger/ledger"
)

// Worker delivers events to its sinks on a background goroutine.
type Worker struct {
	eventCh chan Event
	sinks   []Sink
	logger  *slog.Logger
	wg      sync.WaitGroup

	// ctx stays live until the queue is drained; stop only ends intake.
	ctx      context.Context
	cancel   context.CancelFunc
	stop     chan struct{}
	stopOnce sync.Once
}

func NewWorker(bufferSize int, logger *slog.Logger, sinks ...Sink) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		eventCh: make(chan Event, bufferSize),
		sinks:   sinks,
		logger:  logger.With("component", "activity"),
		ctx:     ctx,
		cancel:  cancel,
		stop:    make(chan struct{}),
	}
}

func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-w.stop:
				w.logger.Info("draining events before shutdown", "remaining_events", len(w.eventCh))
				for len(w.eventCh) > 0 {
					w.deliver(w.ctx, <-w.eventCh)
				}
				return
			case event := <-w.eventCh:
				w.deliver(w.ctx, event)
			}
		}
	}()
}

func (w *Worker) deliver(ctx context.Context, e Event) {
	for _, sink := range w.sinks {
		if err := sink.Save(ctx, e); err != nil {
			w.logger.Error("failed to save event",
				"error", err,
				"sink", sink.Name(),
				"event_type", e.Type,
				"entry_id", e.EntryID)
		}
	}
}

// Log queues an event. It never blocks; a full buffer drops the event.
func (w *Worker) Log(e Event) {
	select {
	case <-w.stop:
		w.logger.Warn("worker stopped, dropping event", "event_type", e.Type)
		return
	default:
	}
	select {
	case w.eventCh <- e:
	default:
		w.logger.Warn("event channel full, dropping event", "event_type", e.Type, "entry_id", e.EntryID)
	}
}

// Notify implements ledger.Notifier.
func (w *Worker) Notify(_ context.Context, c ledger.Change) {
	w.Log(FromChange(c))
}

// Shutdown stops the worker after delivering what is already queued.
func (w *Worker) Shutdown() {
	w.stopOnce.Do(func() { close(w.stop) })
	w.wg.Wait()
	w.cancel()
}

// =============================================================================
// LOG SINK
// =============================================================================

// LogSink writes each event as a structured log line.
type LogSink struct {
	Logger *slog.Logger
}

func (LogSink) Name() string { return "log" }

func (s LogSink) Save(ctx context.Context, e Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "activity",
		"event_type", e.Type,
		"entry_id", e.EntryID,
		"actor", e.Actor,
		"scope", e.Scope,
		"amount", e.Amount.StringFixed(2))
	return nil
}

// =============================================================================
// MEMORY SINK
// =============================================================================

// MemorySink keeps events in memory and doubles as a Feed. Used when no SQL
// store is configured, and in tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (*MemorySink) Name() string { return "memory" }

func (s *MemorySink) Save(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *MemorySink) ListActivity(_ context.Context, party ledger.PartyID, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for i := len(s.events) - 1; i >= 0; i-- {
		if !s.events[i].Concerns(party) {
			continue
		}
		out = append(out, s.events[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}
