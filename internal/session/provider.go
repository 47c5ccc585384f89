package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IshaanNene/pubharvest/internal/config"
	"github.com/IshaanNene/pubharvest/internal/fetcher"
	"github.com/IshaanNene/pubharvest/internal/types"
)

// Session is an authenticated driver plus the primary page logged in with Credential.
type Session struct {
	Driver     fetcher.Driver
	Page       fetcher.Page
	Credential Credential

	index int
}

// Alive reports whether both the driver and the primary page are still usable.
func (s *Session) Alive() bool {
	return s != nil && s.Driver != nil && s.Driver.Alive() && s.Page != nil && s.Page.Alive()
}

// ProviderStats counts provider-level events.
type ProviderStats struct {
	RotatorStats
	Attempts   int64 `json:"attempts"`
	Challenges int64 `json:"challenges"`
	Failures   int64 `json:"failures"`
	Restarts   int64 `json:"restarts"`
}

// Provider establishes authenticated sessions for one source, rotating credentials and
// restarting the driver when the whole pool has failed.
type Provider struct {
	source    types.Source
	driver    fetcher.Driver
	auth      Authenticator
	rotator   *CredentialRotator
	pacer     *fetcher.Pacer
	maxCycles int
	sleepMin  time.Duration
	sleepMax  time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	current *Session

	attempts   atomic.Int64
	challenges atomic.Int64
	failures   atomic.Int64
	restarts   atomic.Int64
}

// NewProvider creates a Provider. The pacer supplies both step delays and the long sleep
// between cycles.
func NewProvider(
	source types.Source,
	driver fetcher.Driver,
	auth Authenticator,
	rotator *CredentialRotator,
	pacer *fetcher.Pacer,
	cfg *config.SessionConfig,
	logger *slog.Logger,
) *Provider {
	cycles := cfg.MaxCycles
	if cycles < 1 {
		cycles = 1
	}
	return &Provider{
		source:    source,
		driver:    driver,
		auth:      auth,
		rotator:   rotator,
		pacer:     pacer,
		maxCycles: cycles,
		sleepMin:  cfg.ExhaustedSleepMin,
		sleepMax:  cfg.ExhaustedSleepMax,
		logger:    logger.With("component", "session_provider", "source", source),
	}
}

// Acquire returns an authenticated session. A challenge or failed login marks the
// credential failed and another one is tried on the same driver. When the pool is exhausted
// the failed set is reset and, if cycles remain, the provider sleeps a long random interval
// and restarts the driver. After the last cycle it returns *types.AuthExhaustedError.
func (p *Provider) Acquire(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquireLocked(ctx)
}

func (p *Provider) acquireLocked(ctx context.Context) (*Session, error) {
	page, err := p.primaryPageLocked(ctx)
	if err != nil {
		return nil, err
	}

	for cycle := 1; cycle <= p.maxCycles; cycle++ {
		for {
			idx, cred, ok := p.rotator.Next()
			if !ok {
				break
			}
			p.attempts.Add(1)

			outcome, err := p.auth.Login(ctx, page, cred)
			if err != nil {
				return nil, fmt.Errorf("login as %s: %w", cred.Label(), err)
			}

			switch outcome {
			case LoginSuccess:
				sess := &Session{Driver: p.driver, Page: page, Credential: cred, index: idx}
				p.current = sess
				p.logger.Info("session acquired", "account", cred.Label(), "cycle", cycle)
				return sess, nil
			case LoginChallenge:
				p.challenges.Add(1)
				p.logger.Warn("challenge detected, rotating credential", "account", cred.Label(), "cycle", cycle)
			default:
				p.failures.Add(1)
				p.logger.Warn("login failed, rotating credential", "account", cred.Label(), "cycle", cycle)
			}
			p.rotator.MarkFailed(idx)
		}

		p.rotator.Reset()
		if cycle == p.maxCycles {
			break
		}

		p.logger.Warn("credential pool exhausted, backing off before restart",
			"cycle", cycle,
			"max_cycles", p.maxCycles,
		)
		if err := p.pacer.Between(ctx, p.sleepMin, p.sleepMax); err != nil {
			return nil, err
		}
		if page, err = p.restartLocked(ctx, page); err != nil {
			return nil, err
		}
	}

	p.current = nil
	return nil, &types.AuthExhaustedError{
		Source:      p.source,
		Credentials: p.rotator.Len(),
		Cycles:      p.maxCycles,
	}
}

// Recover marks the current credential failed and acquires a new session. It is used when a
// challenge appears after login.
func (p *Provider) Recover(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.rotator.MarkFailed(p.current.index)
		p.logger.Warn("recovering session", "account", p.current.Credential.Label())
	}
	return p.acquireLocked(ctx)
}

// Current returns the last acquired session, or nil.
func (p *Provider) Current() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Close releases the primary page and the driver.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil && p.current.Page != nil {
		p.current.Page.Close()
	}
	p.current = nil
	return p.driver.Close()
}

// Stats returns a snapshot of the provider counters.
func (p *Provider) Stats() ProviderStats {
	return ProviderStats{
		RotatorStats: p.rotator.Stats(),
		Attempts:     p.attempts.Load(),
		Challenges:   p.challenges.Load(),
		Failures:     p.failures.Load(),
		Restarts:     p.restarts.Load(),
	}
}

// primaryPageLocked reuses the current page when it is alive, else opens a new one. A dead
// driver is restarted once.
func (p *Provider) primaryPageLocked(ctx context.Context) (fetcher.Page, error) {
	if p.current != nil && p.current.Page != nil && p.current.Page.Alive() {
		return p.current.Page, nil
	}
	page, err := p.driver.NewPage(ctx)
	if err == nil {
		return page, nil
	}
	if !errors.Is(err, types.ErrSessionDied) && p.driver.Alive() {
		return nil, fmt.Errorf("open page: %w", err)
	}
	return p.restartLocked(ctx, nil)
}

func (p *Provider) restartLocked(ctx context.Context, old fetcher.Page) (fetcher.Page, error) {
	if old != nil {
		old.Close()
	}
	p.current = nil
	if err := p.driver.Restart(ctx); err != nil {
		return nil, fmt.Errorf("restart %s driver: %w", p.driver.Type(), err)
	}
	p.restarts.Add(1)
	p.logger.Info("driver restarted", "restarts", p.restarts.Load())

	page, err := p.driver.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("open page after restart: %w", err)
	}
	return page, nil
}

// Pool builds a credential pool from configured accounts. An empty list yields a single
// anonymous credential.
func Pool(accounts []config.Account) []Credential {
	if len(accounts) == 0 {
		return []Credential{{Anonymous: true}}
	}
	pool := make([]Credential, 0, len(accounts))
	for _, a := range accounts {
		pool = append(pool, Credential{Username: a.Username, Password: a.Password})
	}
	return pool
}
