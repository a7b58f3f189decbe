package marketdata

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// WorkerState is the lifecycle position of a refresh worker.
type WorkerState int32

const (
	WorkerCreated WorkerState = iota
	WorkerRunning
	WorkerStopping
	WorkerStopped
)

func (s WorkerState) String() string {
	switch s {
	case WorkerCreated:
		return "created"
	case WorkerRunning:
		return "running"
	case WorkerStopping:
		return "stopping"
	case WorkerStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// worker polls upstream for one key and writes into the service cache.
// A worker is never restarted; a key that regains subscribers gets a new one.
type worker struct {
	key      Key
	interval time.Duration
	svc      *Service
	logger   *zap.Logger

	// delayed skips the immediate first fetch; set on replacements of a crashed worker
	delayed bool

	state    atomic.Int32
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newWorker(svc *Service, key Key) *worker {
	return &worker{
		key:      key,
		interval: svc.interval(key.Timeframe),
		svc:      svc,
		logger:   svc.logger.With(zap.String("symbol", key.Symbol), zap.String("timeframe", key.Timeframe)),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (w *worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

func (w *worker) alive() bool {
	return w.State() == WorkerRunning
}

// signalStop raises the stop signal without waiting for the goroutine to exit.
func (w *worker) signalStop() {
	w.state.CompareAndSwap(int32(WorkerRunning), int32(WorkerStopping))
	w.stopOnce.Do(func() { close(w.stop) })
}

func (w *worker) stopped() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}

func (w *worker) run() {
	defer w.svc.wg.Done()
	defer close(w.done)
	defer w.state.Store(int32(WorkerStopped))
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("refresh worker panicked", zap.Any("panic", r), zap.Stack("stack"))
			w.svc.replaceCrashed(w)
		}
	}()

	w.logger.Info("refresh worker started", zap.Duration("interval", w.interval))

	// first load happens immediately so subscribers do not wait a full interval
	if !w.delayed {
		w.refresh()
	}

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		select {
		case <-w.stop:
			w.logger.Info("refresh worker stopped")
			return
		case <-timer.C:
		}

		if !w.svc.ownsKey(w.key, w) {
			w.logger.Info("refresh worker exiting, no subscribers left")
			return
		}

		w.refresh()
		timer.Reset(w.interval)
	}
}

// refresh fetches once and publishes the result. Failures keep the previous entry,
// which ages out through the cache's max-age check if they persist.
func (w *worker) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), w.svc.fetchTimeout)
	data, err := w.svc.fetcher.FetchKlines(ctx, w.key.Symbol, w.key.Timeframe, w.svc.limit)
	cancel()
	if err != nil {
		w.logger.Warn("failed to refresh market data", zap.Error(err))
		return
	}
	if len(data) == 0 {
		w.logger.Warn("upstream returned no bars")
		return
	}

	subscribers, ok := w.svc.publish(w.key, w, data)
	if !ok {
		// stopped while the fetch was in flight
		return
	}

	last, _ := data.Last()
	w.logger.Debug("market data refreshed",
		zap.Float64("close", last.Close),
		zap.Int("bars", len(data)),
		zap.Int("subscribers", subscribers))

	w.svc.forward(w.key, data, w.logger)
}
