package session

import (
	"math/rand"
	"sync"
	"time"
)

// Credential is one account in a pool. Anonymous credentials carry no secrets and are used
// for sources that can be browsed without logging in.
type Credential struct {
	Username  string
	Password  string
	Anonymous bool
}

// Label returns a log-safe name for the credential.
func (c Credential) Label() string {
	if c.Anonymous {
		return "anonymous"
	}
	return c.Username
}

// RotatorStats counts rotation events.
type RotatorStats struct {
	Picks  int64 `json:"picks"`
	Marks  int64 `json:"marks"`
	Resets int64 `json:"resets"`
}

// CredentialRotator picks credentials uniformly at random among those not yet failed in the
// current cycle. It is owned by exactly one Provider.
type CredentialRotator struct {
	mu     sync.Mutex
	pool   []Credential
	failed map[int]bool
	rnd    *rand.Rand
	stats  RotatorStats
}

// RotatorOption configures a CredentialRotator.
type RotatorOption func(*CredentialRotator)

// WithRand sets the random source, mainly for tests.
func WithRand(rnd *rand.Rand) RotatorOption {
	return func(r *CredentialRotator) { r.rnd = rnd }
}

// NewCredentialRotator creates a rotator over pool.
func NewCredentialRotator(pool []Credential, opts ...RotatorOption) *CredentialRotator {
	r := &CredentialRotator{
		pool:   append([]Credential(nil), pool...),
		failed: make(map[int]bool),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Next returns a random non-failed credential and its index.
// ok is false when every credential has failed this cycle.
func (r *CredentialRotator) Next() (idx int, cred Credential, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	candidates := make([]int, 0, len(r.pool))
	for i := range r.pool {
		if !r.failed[i] {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return -1, Credential{}, false
	}
	idx = candidates[r.rnd.Intn(len(candidates))]
	r.stats.Picks++
	return idx, r.pool[idx], true
}

// MarkFailed excludes idx until the next Reset.
func (r *CredentialRotator) MarkFailed(idx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx < 0 || idx >= len(r.pool) || r.failed[idx] {
		return
	}
	r.failed[idx] = true
	r.stats.Marks++
}

// Reset clears the failed set and starts a new cycle.
func (r *CredentialRotator) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = make(map[int]bool)
	r.stats.Resets++
}

// Exhausted reports whether every credential has failed this cycle.
func (r *CredentialRotator) Exhausted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failed) >= len(r.pool)
}

// Len returns the pool size.
func (r *CredentialRotator) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pool)
}

// Stats returns a copy of the counters.
func (r *CredentialRotator) Stats() RotatorStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
