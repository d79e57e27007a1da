package notify

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	burstCapacityMultiplier = 2
	defaultCleanupInterval  = 5 * time.Minute
	defaultIdleTimeout      = 1 * time.Hour
	defaultMaxSources       = 100
	proliferationThreshold  = 0.8
)

// RateLimiter throttles notifications per source, so a source failing on every run cannot
// flood a mail relay or webhook endpoint with identical alerts.
type RateLimiter interface {
	// Allow reports whether a notification for sourceName may be sent now.
	Allow(sourceName string) bool
}

type sourceLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
	mu         sync.Mutex
}

// InMemoryRateLimiter is a token-bucket RateLimiter keyed by source name, one bucket per
// source lazily created on first use. Idle buckets are swept periodically so a long-running
// process with a rotating cast of sources does not grow its limiter map without bound.
type InMemoryRateLimiter struct {
	perSource map[string]*sourceLimiter
	mu        sync.RWMutex

	rps             int
	burst           int
	cleanupInterval time.Duration
	idleTimeout     time.Duration
	maxSources      int

	cleanupTicker *time.Ticker
	done          chan struct{}
}

// RateLimiterConfig configures an InMemoryRateLimiter.
type RateLimiterConfig struct {
	RPS             int
	Burst           int // 0 = auto-compute as 2x RPS
	CleanupInterval time.Duration
	IdleTimeout     time.Duration
	MaxSources      int
}

// NewInMemoryRateLimiter builds a per-source token-bucket limiter and starts its
// background cleanup goroutine. Call Close when done.
func NewInMemoryRateLimiter(cfg RateLimiterConfig) *InMemoryRateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.RPS * burstCapacityMultiplier
	}

	maxSources := cfg.MaxSources
	if maxSources <= 0 {
		maxSources = defaultMaxSources
	}

	rl := &InMemoryRateLimiter{
		perSource:       make(map[string]*sourceLimiter),
		rps:             cfg.RPS,
		burst:           burst,
		cleanupInterval: cfg.CleanupInterval,
		idleTimeout:     cfg.IdleTimeout,
		maxSources:      maxSources,
		done:            make(chan struct{}),
	}

	rl.startCleanup()

	return rl
}

// Allow implements RateLimiter.
func (rl *InMemoryRateLimiter) Allow(sourceName string) bool {
	rl.mu.RLock()
	sl, ok := rl.perSource[sourceName]
	rl.mu.RUnlock()

	if !ok {
		rl.mu.Lock()

		if sl, ok = rl.perSource[sourceName]; !ok {
			sl = &sourceLimiter{
				limiter:    rate.NewLimiter(rate.Limit(rl.rps), rl.burst),
				lastAccess: time.Now(),
			}
			rl.perSource[sourceName] = sl

			if count := len(rl.perSource); count >= int(float64(rl.maxSources)*proliferationThreshold) {
				slog.Warn("notification rate limiter approaching max tracked sources",
					slog.Int("current_sources", count),
					slog.Int("max_sources", rl.maxSources))
			}
		}

		rl.mu.Unlock()
	}

	sl.mu.Lock()
	sl.lastAccess = time.Now()
	sl.mu.Unlock()

	return sl.limiter.Allow()
}

// Close stops the cleanup goroutine. Safe to call once.
func (rl *InMemoryRateLimiter) Close() {
	if rl.cleanupTicker != nil {
		rl.cleanupTicker.Stop()
	}

	close(rl.done)
}

func (rl *InMemoryRateLimiter) startCleanup() {
	interval := rl.cleanupInterval
	if interval == 0 {
		interval = defaultCleanupInterval
	}

	rl.cleanupTicker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-rl.cleanupTicker.C:
				rl.cleanup()
			case <-rl.done:
				return
			}
		}
	}()
}

func (rl *InMemoryRateLimiter) cleanup() {
	idleTimeout := rl.idleTimeout
	if idleTimeout == 0 {
		idleTimeout = defaultIdleTimeout
	}

	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for name, sl := range rl.perSource {
		sl.mu.Lock()
		last := sl.lastAccess
		sl.mu.Unlock()

		if now.Sub(last) > idleTimeout {
			delete(rl.perSource, name)
		}
	}
}
