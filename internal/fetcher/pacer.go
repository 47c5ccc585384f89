package fetcher

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out interactions with a target site. Every Step waits for the rate limiter
// and then sleeps a random duration drawn from [min, max].
type Pacer struct {
	min     time.Duration
	max     time.Duration
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error

	mu  sync.Mutex
	rnd *rand.Rand
}

// PacerOption configures a Pacer.
type PacerOption func(*Pacer)

// WithSleeper replaces the sleep function, mainly for tests.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) PacerOption {
	return func(p *Pacer) { p.sleep = fn }
}

// WithSeed makes the random delays reproducible.
func WithSeed(seed int64) PacerOption {
	return func(p *Pacer) { p.rnd = rand.New(rand.NewSource(seed)) }
}

// NewPacer creates a Pacer. perSecond <= 0 disables the rate limiter.
func NewPacer(min, max time.Duration, perSecond float64, burst int, opts ...PacerOption) *Pacer {
	if max < min {
		max = min
	}
	p := &Pacer{
		min:   min,
		max:   max,
		sleep: sleepContext,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if perSecond > 0 {
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Step waits for the limiter, then sleeps a random step delay.
func (p *Pacer) Step(ctx context.Context) error {
	if p == nil {
		return ctx.Err()
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return p.Between(ctx, p.min, p.max)
}

// Between sleeps a random duration in [min, max].
func (p *Pacer) Between(ctx context.Context, min, max time.Duration) error {
	if p == nil {
		return ctx.Err()
	}
	return p.sleep(ctx, p.random(min, max))
}

func (p *Pacer) random(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return min + time.Duration(p.rnd.Int63n(int64(max-min)+1))
}

// sleepContext sleeps for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
