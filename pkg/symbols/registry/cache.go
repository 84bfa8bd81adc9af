package registry

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/grafana/tracesym/pkg/symbols"
)

// providerCache maps trace IDs to providers. Forgotten and purged providers
// are closed. A provider pushed out because the cache is full is only
// dropped: callers may still hold it, and it stays usable until the garbage
// collector reclaims it.
//
// providerCache is not safe for concurrent use, the registry lock guards it.
type providerCache struct {
	lru     *lru.Cache[string, symbols.Provider]
	logger  log.Logger
	metrics *metrics
}

func newProviderCache(logger log.Logger, size int, m *metrics) (*providerCache, error) {
	c := &providerCache{logger: logger, metrics: m}
	l, err := lru.NewWithEvict[string, symbols.Provider](size, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

func (c *providerCache) onEvict(string, symbols.Provider) {
	c.metrics.evictions.Inc()
}

func (c *providerCache) close(traceID string, p symbols.Provider) {
	if err := p.Close(); err != nil {
		level.Warn(c.logger).Log("msg", "failed to close symbol provider", "trace", traceID, "provider", p.Name(), "err", err)
	}
}

func (c *providerCache) get(traceID string) (symbols.Provider, bool) {
	return c.lru.Get(traceID)
}

func (c *providerCache) add(traceID string, p symbols.Provider) {
	c.lru.Add(traceID, p)
	c.metrics.cachedEntries.Set(float64(c.lru.Len()))
}

func (c *providerCache) remove(traceID string) bool {
	p, ok := c.lru.Peek(traceID)
	if !ok {
		return false
	}
	c.lru.Remove(traceID)
	c.metrics.cachedEntries.Set(float64(c.lru.Len()))
	c.close(traceID, p)
	return true
}

func (c *providerCache) purge() {
	keys := c.lru.Keys()
	providers := c.lru.Values()
	c.lru.Purge()
	c.metrics.cachedEntries.Set(0)
	for i, p := range providers {
		c.close(keys[i], p)
	}
}

func (c *providerCache) size() int {
	return c.lru.Len()
}
