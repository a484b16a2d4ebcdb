/*
scheduler.go - Pending settlement sweeper

PURPOSE:
  External settlements wait for a payment-provider callback. When the
  callback never arrives the settlement would stay pending forever; this
  sweeper periodically fails settlements pending longer than MaxAge.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Runs once immediately on start
  - Each run is a ledger.Service.ExpirePendingSettlements call, so status
    changes go through the same per-entry locking and notifications as
    provider callbacks

USAGE:
  sweeper := NewPendingSettlementSweeper(svc, 10*time.Minute, 24*time.Hour, logger)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - handlers.go: TriggerSweep endpoint (manual run)
  - ledger/service.go: ExpirePendingSettlements
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/splitledger/ledger"
)

// PendingSettlementSweeper fails stale pending external settlements.
type PendingSettlementSweeper struct {
	Service  *ledger.Service
	Interval time.Duration
	MaxAge   time.Duration

	logger *slog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastRun     time.Time
	lastExpired int
}

func NewPendingSettlementSweeper(svc *ledger.Service, interval, maxAge time.Duration, logger *slog.Logger) *PendingSettlementSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &PendingSettlementSweeper{
		Service:  svc,
		Interval: interval,
		MaxAge:   maxAge,
		logger:   logger.With("component", "sweeper"),
	}
}

// Start begins the sweeper. A non-positive Interval leaves it disabled.
func (s *PendingSettlementSweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Interval <= 0 {
		s.logger.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.ticker, s.stop)

	s.logger.Info("started", "interval", s.Interval, "max_age", s.MaxAge)
}

// Stop halts the sweeper and waits for a run in progress.
func (s *PendingSettlementSweeper) Stop() {
	s.mu.Lock()
	if s.ticker == nil {
		s.mu.Unlock()
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.ticker = nil
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("stopped")
}

func (s *PendingSettlementSweeper) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	s.sweep(ctx)
	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-stop:
			return
		}
	}
}

func (s *PendingSettlementSweeper) sweep(ctx context.Context) {
	if _, err := s.RunNow(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("sweep failed", "error", err)
	}
}

// RunNow performs one sweep and returns how many settlements were failed.
func (s *PendingSettlementSweeper) RunNow(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := s.Service.ExpirePendingSettlements(ctx, s.MaxAge)

	s.mu.Lock()
	s.lastRun = start
	s.lastExpired = n
	s.mu.Unlock()

	if err != nil {
		return n, err
	}
	s.logger.Info("sweep finished", "expired", n, "duration", time.Since(start))
	return n, nil
}

// LastRun reports when the last sweep started and how many it expired.
func (s *PendingSettlementSweeper) LastRun() (time.Time, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastExpired
}
