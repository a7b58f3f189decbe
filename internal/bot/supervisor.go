package bot

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"signalbots/internal/strategy"

	"go.uber.org/zap"
)

type Option func(*Supervisor)

func WithStore(store Store) Option {
	return func(s *Supervisor) { s.store = store }
}

func WithEvaluator(e *strategy.Evaluator) Option {
	return func(s *Supervisor) { s.evaluator = e }
}

func WithStopTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.stopTimeout = d
		}
	}
}

// Supervisor owns the set of running bots, at most one runner per bot id.
type Supervisor struct {
	market      MarketData
	notifiers   NotifierFactory
	evaluator   *strategy.Evaluator
	store       Store
	logger      *zap.Logger
	stopTimeout time.Duration

	// lifecycle serialises start and stop so a replaced runner has
	// unsubscribed before its successor subscribes under the same id.
	lifecycle sync.Mutex

	mu      sync.Mutex
	runners map[string]*Runner
}

func NewSupervisor(market MarketData, notifiers NotifierFactory, logger *zap.Logger, opts ...Option) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Supervisor{
		market:      market,
		notifiers:   notifiers,
		store:       NopStore{},
		logger:      logger,
		stopTimeout: DefaultStopTimeout,
		runners:     make(map[string]*Runner),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.evaluator == nil {
		s.evaluator = strategy.NewEvaluator(logger)
	}
	return s
}

// StartBot starts a runner for cfg, replacing any runner with the same id.
func (s *Supervisor) StartBot(cfg BotConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	notifier, err := s.notifiers(cfg)
	if err != nil {
		return fmt.Errorf("%w: notifier: %v", ErrInvalidConfig, err)
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if old := s.take(cfg.ID); old != nil {
		s.logger.Info("replacing running bot", zap.String("bot_id", cfg.ID))
		old.Stop()
	}

	runner := NewRunner(cfg, s.market, s.evaluator, notifier, s.store, s.logger)
	runner.stopTimeout = s.stopTimeout
	runner.Start()

	s.mu.Lock()
	s.runners[cfg.ID] = runner
	s.mu.Unlock()
	return nil
}

// StopBot stops and forgets the runner. It reports whether one existed.
func (s *Supervisor) StopBot(id string) bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	runner := s.take(id)
	if runner == nil {
		return false
	}
	runner.Stop()
	return true
}

// RestartBot reloads the persisted config of id and starts it anew.
func (s *Supervisor) RestartBot(ctx context.Context, id string) error {
	cfg, err := s.store.LoadBotConfig(ctx, id)
	if err != nil {
		return fmt.Errorf("restart %s: %w", id, err)
	}
	if err := s.StartBot(cfg); err != nil {
		return fmt.Errorf("restart %s: %w", id, err)
	}
	return nil
}

func (s *Supervisor) Status(id string) (Status, bool) {
	runner := s.get(id)
	if runner == nil {
		return Status{}, false
	}
	return runner.Status(), true
}

// Statuses returns the status of every runner ordered by id.
func (s *Supervisor) Statuses() []Status {
	s.mu.Lock()
	runners := make([]*Runner, 0, len(s.runners))
	for _, r := range s.runners {
		runners = append(runners, r)
	}
	s.mu.Unlock()

	out := make([]Status, 0, len(runners))
	for _, r := range runners {
		out = append(out, r.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ForceCheck runs one out-of-band tick with position flags reset.
func (s *Supervisor) ForceCheck(ctx context.Context, id string) (CheckResult, error) {
	runner := s.get(id)
	if runner == nil {
		return CheckResult{}, fmt.Errorf("force check %s: %w", id, ErrBotNotFound)
	}
	res, err := runner.ForceCheck(ctx)
	if err != nil {
		return CheckResult{}, fmt.Errorf("force check %s: %w", id, err)
	}
	return res, nil
}

// StopAll stops every runner concurrently and waits for each bounded stop.
func (s *Supervisor) StopAll() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	runners := s.runners
	s.runners = make(map[string]*Runner)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, r := range runners {
		wg.Add(1)
		go func(r *Runner) {
			defer wg.Done()
			r.Stop()
		}(r)
	}
	wg.Wait()
	s.logger.Info("all bots stopped", zap.Int("count", len(runners)))
}

// LoadActiveBots starts every bot the lister reports as active and returns how
// many started. A bot that fails to start is logged and skipped.
func (s *Supervisor) LoadActiveBots(ctx context.Context, lister ActiveBotLister) (int, error) {
	configs, err := lister.ListActiveBots(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active bots: %w", err)
	}

	started := 0
	for _, cfg := range configs {
		if err := s.StartBot(cfg); err != nil {
			s.logger.Warn("active bot not started", zap.String("bot_id", cfg.ID), zap.Error(err))
			continue
		}
		started++
	}
	s.logger.Info("active bots loaded", zap.Int("found", len(configs)), zap.Int("started", started))
	return started, nil
}

func (s *Supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runners)
}

func (s *Supervisor) get(id string) *Runner {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runners[id]
}

func (s *Supervisor) take(id string) *Runner {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.runners[id]
	delete(s.runners, id)
	return r
}
