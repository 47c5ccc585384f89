package fetcher

import (
	"context"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/IshaanNene/pubharvest/internal/config"
)

// ProxyManager hands out proxies for new connections and browser launches.
type ProxyManager struct {
	mu       sync.RWMutex
	proxies  []*proxyEntry
	rotation string
	index    atomic.Int64
	logger   *slog.Logger
}

type proxyEntry struct {
	url     *url.URL
	healthy bool
	lastErr error
}

// NewProxyManager creates a ProxyManager from configuration. Invalid URLs are skipped.
func NewProxyManager(cfg *config.ProxyConfig, logger *slog.Logger) *ProxyManager {
	pm := &ProxyManager{
		rotation: cfg.Rotation,
		logger:   logger.With("component", "proxy_manager"),
	}
	for _, raw := range cfg.URLs {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			pm.logger.Warn("invalid proxy URL", "url", raw, "error", err)
			continue
		}
		pm.proxies = append(pm.proxies, &proxyEntry{url: u, healthy: true})
	}
	pm.logger.Info("proxy manager initialized", "count", len(pm.proxies), "rotation", pm.rotation)
	return pm
}

type proxyKey struct{}

// withProxy pins the proxy a request goes through, so a transport failure can be
// charged to it.
func withProxy(ctx context.Context, proxyURL *url.URL) context.Context {
	return context.WithValue(ctx, proxyKey{}, proxyURL)
}

// ProxyFunc returns an http.Transport-compatible proxy function. A proxy pinned on the
// request context wins over rotation.
func (pm *ProxyManager) ProxyFunc() func(*http.Request) (*url.URL, error) {
	return func(r *http.Request) (*url.URL, error) {
		if u, ok := r.Context().Value(proxyKey{}).(*url.URL); ok {
			return u, nil
		}
		return pm.Next(), nil
	}
}

// Next returns the next healthy proxy, or nil for a direct connection.
// When every proxy is unhealthy the set is revived rather than going direct.
func (pm *ProxyManager) Next() *url.URL {
	if pm == nil {
		return nil
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()

	healthy := pm.healthyLocked()
	if len(healthy) == 0 {
		if len(pm.proxies) == 0 {
			return nil
		}
		pm.logger.Warn("all proxies unhealthy, reviving pool", "count", len(pm.proxies))
		for _, p := range pm.proxies {
			p.healthy = true
		}
		healthy = pm.proxies
	}

	if pm.rotation == "random" {
		return healthy[rand.Intn(len(healthy))].url
	}
	idx := pm.index.Add(1) % int64(len(healthy))
	return healthy[idx].url
}

// MarkFailed marks a proxy as unhealthy until the pool is revived.
func (pm *ProxyManager) MarkFailed(proxyURL *url.URL, err error) {
	if pm == nil || proxyURL == nil {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for _, p := range pm.proxies {
		if p.url.String() == proxyURL.String() {
			p.healthy = false
			p.lastErr = err
			pm.logger.Warn("proxy marked unhealthy", "proxy", proxyURL.Host, "error", err)
			return
		}
	}
}

// HealthyCount returns the number of healthy proxies.
func (pm *ProxyManager) HealthyCount() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return len(pm.healthyLocked())
}

// Count returns the total number of proxies.
func (pm *ProxyManager) Count() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return len(pm.proxies)
}

func (pm *ProxyManager) healthyLocked() []*proxyEntry {
	out := make([]*proxyEntry, 0, len(pm.proxies))
	for _, p := range pm.proxies {
		if p.healthy {
			out = append(out, p)
		}
	}
	return out
}
