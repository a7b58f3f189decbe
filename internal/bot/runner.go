package bot

import (
	"context"
	"sync"
	"time"

	"signalbots/internal/strategy"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultStopTimeout = 5 * time.Second
	tickTimeout        = 30 * time.Second
)

// Positions is the position tracking state of a runner.
type Positions struct {
	InLong  bool
	InShort bool
}

// decide picks the signal to emit for one tick. Zones are checked in the order
// entry long, exit long, entry short, exit short and the first match wins.
func decide(s strategy.Signals, p Positions, ignoreTracking bool) SignalKind {
	switch {
	case s.EntryLong && (ignoreTracking || !p.InLong):
		return EntryLongSignal
	case s.ExitLong && (ignoreTracking || p.InLong):
		return ExitLongSignal
	case s.EntryShort && (ignoreTracking || !p.InShort):
		return EntryShortSignal
	case s.ExitShort && (ignoreTracking || p.InShort):
		return ExitShortSignal
	}
	return NoSignal
}

// apply returns the positions after kind was sent.
func (p Positions) apply(kind SignalKind) Positions {
	switch kind {
	case EntryLongSignal:
		return Positions{InLong: true}
	case ExitLongSignal:
		p.InLong = false
	case EntryShortSignal:
		return Positions{InShort: true}
	case ExitShortSignal:
		p.InShort = false
	}
	return p
}

// CheckResult describes one tick.
type CheckResult struct {
	At      time.Time
	HasData bool
	Price   float64
	Signals strategy.Signals
	Sent    SignalKind
}

// Status is a point-in-time view of a runner.
type Status struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	RunID          string        `json:"run_id"`
	Symbol         string        `json:"symbol"`
	Timeframe      string        `json:"timeframe"`
	Running        bool          `json:"running"`
	SignalsSent    int           `json:"signals_sent"`
	LastCheck      time.Time     `json:"last_check"`
	Uptime         time.Duration `json:"uptime"`
	InLong         bool          `json:"in_long"`
	InShort        bool          `json:"in_short"`
	LastSignalKind SignalKind    `json:"last_signal_kind"`
	Mode           string        `json:"mode"`
}

type forceRequest struct {
	reply chan CheckResult
}

// Runner drives the monitoring loop of one bot. Position state is written only
// by the loop goroutine; other goroutines read it through Status.
type Runner struct {
	cfg         BotConfig
	market      MarketData
	evaluator   *strategy.Evaluator
	notifier    Notifier
	store       Store
	logger      *zap.Logger
	stopTimeout time.Duration
	now         func() time.Time

	mu          sync.Mutex
	running     bool
	runID       string
	positions   Positions
	lastKind    SignalKind
	signalsSent int
	startTime   time.Time
	lastCheck   time.Time
	stop        chan struct{}
	done        chan struct{}
	force       chan forceRequest
}

func NewRunner(cfg BotConfig, market MarketData, evaluator *strategy.Evaluator, notifier Notifier, store Store, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = NopStore{}
	}
	if evaluator == nil {
		evaluator = strategy.NewEvaluator(logger)
	}
	return &Runner{
		cfg:         cfg,
		market:      market,
		evaluator:   evaluator,
		notifier:    notifier,
		store:       store,
		logger:      logger.Named("bot").With(zap.String("bot_id", cfg.ID), zap.String("symbol", cfg.Symbol), zap.String("timeframe", cfg.Timeframe)),
		stopTimeout: DefaultStopTimeout,
		now:         time.Now,
	}
}

func (r *Runner) Config() BotConfig { return r.cfg }

// Start subscribes to market data and launches the loop. It reports false if
// the runner was already running.
func (r *Runner) Start() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		r.logger.Warn("bot already running")
		return false
	}

	r.market.Subscribe(r.cfg.ID, r.cfg.Symbol, r.cfg.Timeframe)

	r.running = true
	r.runID = uuid.NewString()
	r.startTime = r.now()
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	r.force = make(chan forceRequest)

	go r.loop(r.logger.With(zap.String("run_id", r.runID)), r.stop, r.done, r.force)

	r.logger.Info("bot started", zap.String("run_id", r.runID), zap.Duration("check_interval", r.cfg.CheckInterval), zap.String("mode", r.cfg.Mode()))
	return true
}

// Stop signals the loop to exit, waits up to the stop timeout and unsubscribes.
// Calling Stop on a stopped runner only unsubscribes.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		r.market.Unsubscribe(r.cfg.ID, r.cfg.Symbol, r.cfg.Timeframe)
		return
	}
	r.running = false
	close(r.stop)
	done := r.done
	r.mu.Unlock()

	select {
	case <-done:
	case <-time.After(r.stopTimeout):
		r.logger.Warn("bot loop did not exit in time, abandoning it", zap.Duration("timeout", r.stopTimeout))
	}
	r.market.Unsubscribe(r.cfg.ID, r.cfg.Symbol, r.cfg.Timeframe)
	r.logger.Info("bot stopped")
}

// ForceCheck resets both position flags and runs one ungated tick on the loop
// goroutine, so a manual check emits a signal whenever a raw condition holds.
func (r *Runner) ForceCheck(ctx context.Context) (CheckResult, error) {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return CheckResult{}, ErrNotRunning
	}
	force, done := r.force, r.done
	r.mu.Unlock()

	req := forceRequest{reply: make(chan CheckResult, 1)}
	select {
	case force <- req:
	case <-done:
		return CheckResult{}, ErrNotRunning
	case <-ctx.Done():
		return CheckResult{}, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res, nil
	case <-ctx.Done():
		return CheckResult{}, ctx.Err()
	}
}

func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	var uptime time.Duration
	if !r.startTime.IsZero() {
		uptime = r.now().Sub(r.startTime)
	}
	return Status{
		ID:             r.cfg.ID,
		Name:           r.cfg.Name,
		RunID:          r.runID,
		Symbol:         r.cfg.Symbol,
		Timeframe:      r.cfg.Timeframe,
		Running:        r.running,
		SignalsSent:    r.signalsSent,
		LastCheck:      r.lastCheck,
		Uptime:         uptime,
		InLong:         r.positions.InLong,
		InShort:        r.positions.InShort,
		LastSignalKind: r.lastKind,
		Mode:           r.cfg.Mode(),
	}
}

func (r *Runner) loop(logger *zap.Logger, stop <-chan struct{}, done chan<- struct{}, force <-chan forceRequest) {
	defer close(done)
	logger.Debug("bot loop started")

	r.announce(logger)

	ticker := time.NewTicker(r.cfg.CheckInterval)
	defer ticker.Stop()

	r.check(logger, false)
	for {
		select {
		case <-stop:
			logger.Debug("bot loop exiting")
			return
		case req := <-force:
			if stopping(stop) {
				return
			}
			logger.Info("forced check, resetting positions")
			r.mu.Lock()
			r.positions = Positions{}
			r.mu.Unlock()
			req.reply <- r.check(logger, true)
		case <-ticker.C:
			// select picks randomly when stop is also ready
			if stopping(stop) {
				logger.Debug("bot loop exiting")
				return
			}
			r.check(logger, false)
		}
	}
}

func stopping(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

func (r *Runner) announce(logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()
	if err := r.notifier.Notify(ctx, startNotice(r.cfg), true); err != nil {
		logger.Warn("start notice not delivered", zap.Error(err))
	}
}

// check runs one tick and persists runtime stats.
func (r *Runner) check(logger *zap.Logger, forced bool) CheckResult {
	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()

	res := r.tick(ctx, logger, forced)

	r.mu.Lock()
	r.lastCheck = res.At
	uptime := res.At.Sub(r.startTime)
	sent := r.signalsSent
	r.mu.Unlock()

	if err := r.store.SaveBotRuntimeStats(ctx, r.cfg.ID, uptime, sent); err != nil {
		logger.Warn("save runtime stats failed", zap.Error(err))
	}
	return res
}

func (r *Runner) tick(ctx context.Context, logger *zap.Logger, forced bool) (res CheckResult) {
	res.At = r.now()
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("tick panicked", zap.Any("panic", rec), zap.Stack("stack"))
		}
	}()

	data, ok := r.market.GetData(r.cfg.Symbol, r.cfg.Timeframe)
	if !ok || len(data) == 0 {
		logger.Debug("no market data, skipping tick")
		return res
	}
	bar, _ := data.Last()
	res.HasData = true
	res.Price = bar.Close
	res.Signals = r.evaluator.EvaluateAll(data, r.cfg.Rules)

	r.mu.Lock()
	positions := r.positions
	r.mu.Unlock()

	kind := decide(res.Signals, positions, r.cfg.IgnorePositionTracking || forced)
	logger.Debug("signals evaluated",
		zap.Float64("price", res.Price),
		zap.Any("signals", res.Signals),
		zap.Bool("in_long", positions.InLong),
		zap.Bool("in_short", positions.InShort),
		zap.String("decision", string(kind)),
	)
	if kind == NoSignal {
		return res
	}

	text := FormatSignal(r.cfg.Symbol, kind, res.Price, res.At)
	if err := r.notifier.Notify(ctx, text, false); err != nil {
		logger.Warn("signal not delivered, state unchanged", zap.String("kind", string(kind)), zap.Error(err))
		return res
	}

	r.mu.Lock()
	r.positions = positions.apply(kind)
	r.lastKind = kind
	r.signalsSent++
	r.mu.Unlock()
	res.Sent = kind

	logger.Info("signal sent", zap.String("kind", string(kind)), zap.Float64("price", res.Price))
	if err := r.store.AppendSignalLog(ctx, r.cfg.ID, kind, text, res.At); err != nil {
		logger.Warn("append signal log failed", zap.Error(err))
	}
	return res
}
