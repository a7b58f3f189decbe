package marketdata

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultKlineLimit   = 500
	DefaultFetchTimeout = 10 * time.Second
	defaultSinkTimeout  = 5 * time.Second
)

// Service is the single access point bots use to share market data.
// It reference-counts subscribers per key and keeps exactly one refresh
// worker alive for every key that has at least one subscriber.
type Service struct {
	cache   *Cache
	fetcher Fetcher
	sinks   []Sink
	logger  *zap.Logger

	interval     IntervalFunc
	limit        int
	fetchTimeout time.Duration

	// mu guards subscribers and workers; it is never held across a fetch.
	mu          sync.Mutex
	subscribers map[Key]map[string]struct{}
	workers     map[Key]*worker
	wg          sync.WaitGroup
}

type Option func(*Service)

// WithSinks forwards every refreshed dataset to the given sinks.
func WithSinks(sinks ...Sink) Option {
	return func(s *Service) { s.sinks = append(s.sinks, sinks...) }
}

// WithIntervalFunc overrides the timeframe → refresh interval table.
func WithIntervalFunc(fn IntervalFunc) Option {
	return func(s *Service) {
		if fn != nil {
			s.interval = fn
		}
	}
}

// WithKlineLimit sets how many bars each fetch requests.
func WithKlineLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.limit = limit
		}
	}
}

// WithFetchTimeout bounds each upstream call.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

func NewService(fetcher Fetcher, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		fetcher:      fetcher,
		logger:       logger.Named("marketdata"),
		interval:     UpdateInterval,
		limit:        DefaultKlineLimit,
		fetchTimeout: DefaultFetchTimeout,
		subscribers:  make(map[Key]map[string]struct{}),
		workers:      make(map[Key]*worker),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cache = NewCache(s.interval)
	return s
}

// Subscribe registers botID on (symbol, timeframe). The first subscriber of a key
// starts its worker; the call does not wait for the first fetch.
func (s *Service) Subscribe(botID, symbol, timeframe string) {
	key := Key{Symbol: symbol, Timeframe: timeframe}

	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.subscribers[key]
	if !ok {
		set = make(map[string]struct{})
		s.subscribers[key] = set
	}
	if _, dup := set[botID]; !dup {
		set[botID] = struct{}{}
		s.logger.Info("bot subscribed",
			zap.String("bot_id", botID), zap.Stringer("key", key), zap.Int("subscribers", len(set)))
	}

	if w, ok := s.workers[key]; !ok || !w.alive() {
		s.startWorkerLocked(key)
	}
}

// Unsubscribe removes botID from (symbol, timeframe). When the last subscriber
// leaves, the worker is signalled to stop and the cache entry is evicted.
// It does not wait for the worker to exit.
func (s *Service) Unsubscribe(botID, symbol, timeframe string) {
	key := Key{Symbol: symbol, Timeframe: timeframe}

	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.subscribers[key]
	if !ok {
		return
	}
	if _, member := set[botID]; member {
		delete(set, botID)
		s.logger.Info("bot unsubscribed",
			zap.String("bot_id", botID), zap.Stringer("key", key), zap.Int("subscribers", len(set)))
	}
	if len(set) > 0 {
		return
	}

	delete(s.subscribers, key)
	if w, ok := s.workers[key]; ok {
		w.signalStop()
		delete(s.workers, key)
	}
	s.cache.Evict(key)
	s.logger.Info("no subscribers left, refresh stopped", zap.Stringer("key", key))
}

// GetData returns a private copy of the cached dataset, or false when the key
// has no entry or its entry is older than MaxAge.
func (s *Service) GetData(symbol, timeframe string) (Dataset, bool) {
	return s.cache.Get(Key{Symbol: symbol, Timeframe: timeframe})
}

// Subscribers returns the number of bots subscribed to (symbol, timeframe).
func (s *Service) Subscribers(symbol, timeframe string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers[Key{Symbol: symbol, Timeframe: timeframe}])
}

// KeyStats describes one subscribed key.
type KeyStats struct {
	Subscribers int           `json:"subscribers"`
	Cached      bool          `json:"cached"`
	Age         time.Duration `json:"age"` // since the last successful refresh
	Worker      string        `json:"worker"`
}

// Stats is an observability snapshot; nothing should make control decisions from it.
type Stats struct {
	ActiveKeys       int                 `json:"active_keys"`
	LiveWorkers      int                 `json:"live_workers"`
	TotalSubscribers int                 `json:"total_subscribers"`
	CachedDatasets   int                 `json:"cached_datasets"`
	Keys             map[string]KeyStats `json:"keys"`
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		ActiveKeys:     len(s.subscribers),
		CachedDatasets: s.cache.Len(),
		Keys:           make(map[string]KeyStats, len(s.subscribers)),
	}
	for _, w := range s.workers {
		if w.alive() {
			st.LiveWorkers++
		}
	}
	for key, set := range s.subscribers {
		st.TotalSubscribers += len(set)
		ks := KeyStats{Subscribers: len(set), Worker: WorkerStopped.String()}
		ks.Age, ks.Cached = s.cache.Age(key)
		if w, ok := s.workers[key]; ok {
			ks.Worker = w.State().String()
		}
		st.Keys[key.String()] = ks
	}
	return st
}

// Shutdown stops every worker, clears all state and waits for worker
// goroutines until ctx is done.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for key, w := range s.workers {
		w.signalStop()
		delete(s.workers, key)
	}
	s.subscribers = make(map[Key]map[string]struct{})
	s.cache.Clear()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("market data service stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("market data service shutdown timed out, abandoning workers", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

func (s *Service) startWorkerLocked(key Key) {
	s.launchLocked(newWorker(s, key))
}

func (s *Service) launchLocked(w *worker) {
	key := w.key
	s.workers[key] = w
	w.state.Store(int32(WorkerRunning))
	s.wg.Add(1)
	go w.run()
}

// replaceCrashed swaps a panicked worker for a fresh one while its key still has
// subscribers. The replacement waits one interval before fetching so a fetcher
// that keeps panicking cannot spin.
func (s *Service) replaceCrashed(w *worker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w.signalStop()
	if s.workers[w.key] != w {
		return
	}
	delete(s.workers, w.key)
	if len(s.subscribers[w.key]) == 0 {
		s.cache.Evict(w.key)
		return
	}

	next := newWorker(s, w.key)
	next.delayed = true
	s.launchLocked(next)
	s.logger.Error("refresh worker replaced after panic", zap.Stringer("key", w.key))
}

// ownsKey reports whether w is still the registered worker for a subscribed key.
func (s *Service) ownsKey(key Key, w *worker) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers[key]) > 0 && s.workers[key] == w && !w.stopped()
}

// publish stores data if w still owns key. Holding mu makes the ownership check
// and the write atomic with respect to Unsubscribe's eviction.
func (s *Service) publish(key Key, w *worker, data Dataset) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.workers[key] != w || w.stopped() {
		return 0, false
	}
	s.cache.Put(key, data)
	return len(s.subscribers[key]), true
}

func (s *Service) forward(key Key, data Dataset, logger *zap.Logger) {
	for _, sink := range s.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), defaultSinkTimeout)
		err := sink.Store(ctx, key, data)
		cancel()
		if err != nil {
			logger.Warn("failed to forward dataset to sink", zap.String("sink", sink.Name()), zap.Error(err))
		}
	}
}
