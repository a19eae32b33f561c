// Package workerpool bounds upstream concurrency for odds refreshes: a FIFO
// queue drained by a fixed set of workers, each fetch routed through the
// coalescer so duplicate ids across back-to-back ticks are cheap.
package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oddscache/oddscache/internal/cachecore"
	"github.com/oddscache/oddscache/internal/coalescer"
	"github.com/oddscache/oddscache/internal/provider"
)

// Entry is one (gameId, sportId) pair awaiting an odds refresh.
type Entry struct {
	GameID  string
	SportID int
}

// Pool is the WorkerPool: bounded-concurrency consumer of Entry values,
// backed by a buffered channel queue and maxConcurrency goroutine workers.
// Queue entries are not de-duplicated — the coalescer makes duplicates cheap,
// per spec.
type Pool struct {
	maxConcurrency int
	queue          chan Entry
	active         atomic.Int64
	queued         atomic.Int64

	cache       cachecore.Store
	coalesce    *coalescer.Coalescer
	client      provider.Client
	oddsTTL     time.Duration
	callTimeout time.Duration

	tickComplete chan struct{}
	mu           sync.Mutex
	draining     bool
}

// Config controls pool sizing and per-call behavior.
type Config struct {
	MaxConcurrency int
	QueueCapacity  int
	OddsTTL        time.Duration
	CallTimeout    time.Duration
}

// New builds a Pool and starts its worker goroutines.
func New(cfg Config, cache cachecore.Store, coalesce *coalescer.Coalescer, client provider.Client) *Pool {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 5
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 256
	}
	p := &Pool{
		maxConcurrency: cfg.MaxConcurrency,
		queue:          make(chan Entry, cfg.QueueCapacity),
		cache:          cache,
		coalesce:       coalesce,
		client:         client,
		oddsTTL:        cfg.OddsTTL,
		callTimeout:    cfg.CallTimeout,
		tickComplete:   make(chan struct{}, 1),
	}
	for i := 0; i < p.maxConcurrency; i++ {
		go p.worker(i)
	}
	return p
}

// Enqueue appends a batch of entries to the queue. It is the scheduler's
// responsibility to skip calling Enqueue while a previous tick is still
// draining (spec's backpressure rule) — Enqueue itself does not reject.
func (p *Pool) Enqueue(entries []Entry) {
	if len(entries) == 0 {
		return
	}
	p.mu.Lock()
	p.draining = true
	p.mu.Unlock()

	p.queued.Add(int64(len(entries)))
	for _, e := range entries {
		p.queue <- e
	}
}

// TickComplete is signaled once the queue has fully drained and no worker is
// active, after an Enqueue. The scheduler reads from this to clear its
// tick-in-progress flag.
func (p *Pool) TickComplete() <-chan struct{} { return p.tickComplete }

// Active returns the number of in-flight provider calls right now.
func (p *Pool) Active() int64 { return p.active.Load() }

// Queued returns the number of entries still waiting to be picked up.
func (p *Pool) Queued() int64 { return p.queued.Load() }

func (p *Pool) worker(id int) {
	for entry := range p.queue {
		p.active.Add(1)
		p.queued.Add(-1)
		p.processOne(entry)
		p.active.Add(-1)
		p.maybeSignalDrain()
	}
}

// processOne fetches odds for a single entry. Panics are isolated to this
// call and never cross to a peer or abort the pool.
func (p *Pool) processOne(entry Entry) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Str("gameId", entry.GameID).Msg("worker panic recovered")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), p.callTimeout)
	defer cancel()

	key := "odds:" + entry.GameID
	v, err := p.coalesce.Coalesce(key, func() ([]byte, error) {
		return p.client.GetMatchOdds(ctx, entry.GameID, entry.SportID)
	})
	if err != nil {
		log.Warn().Err(err).Str("gameId", entry.GameID).Msg("odds fetch failed, will retry next tick")
		return
	}
	if len(v) == 0 {
		return
	}
	if err := p.cache.Set(ctx, key, v, p.oddsTTL); err != nil {
		log.Warn().Err(err).Str("gameId", entry.GameID).Msg("odds cache write failed")
	}
}

// maybeSignalDrain transitions processing -> idle and emits tickComplete once
// the queue is empty and no worker is active.
func (p *Pool) maybeSignalDrain() {
	if p.queued.Load() != 0 || p.active.Load() != 0 {
		return
	}
	p.mu.Lock()
	wasDraining := p.draining
	p.draining = false
	p.mu.Unlock()

	if !wasDraining {
		return
	}
	select {
	case p.tickComplete <- struct{}{}:
	default:
	}
}
