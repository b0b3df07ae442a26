package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/aman-churiwal/governance-api/internal/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Cache is the fail-open facade over a Backend. Backend errors never reach the
// caller: reads become misses and writes become no-ops. Caching is an
// optimization, nothing may depend on it for correctness.
type Cache struct {
	backend Backend
	mode    Mode
	log     *logrus.Logger
	warn    *rate.Sometimes
}

func New(backend Backend, mode Mode, log *logrus.Logger) *Cache {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Cache{
		backend: backend,
		mode:    mode,
		log:     log,
		warn:    &rate.Sometimes{First: 1, Interval: 30 * time.Second},
	}
}

func (c *Cache) Backend() Backend { return c.backend }

func (c *Cache) Mode() Mode { return c.mode }

func (c *Cache) degraded(op, key string, err error) {
	metrics.RecordCacheError(op)
	c.warn.Do(func() {
		c.log.WithFields(logrus.Fields{
			"backend": c.backend.Name(),
			"op":      op,
			"key":     key,
			"error":   err.Error(),
		}).Warn("Cache backend error, continuing without cache")
	})
}

// Get returns the raw stored string.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	v, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.degraded("get", key, err)
		return "", false
	}
	return v, ok
}

// GetJSON decodes a structured value into dest. An entry that does not decode
// is reported as a miss.
func (c *Cache) GetJSON(ctx context.Context, key string, dest any) bool {
	v, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(v), dest); err != nil {
		c.log.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Debug("Undecodable cache entry treated as miss")
		return false
	}
	return true
}

// Set stores scalars as-is and anything structured as JSON.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	encoded, err := encode(value)
	if err != nil {
		c.log.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Error("Cannot encode cache value")
		return
	}
	if err := c.backend.Set(ctx, key, encoded, ttl); err != nil {
		c.degraded("set", key, err)
	}
}

func (c *Cache) Delete(ctx context.Context, key string) {
	if err := c.backend.Delete(ctx, key); err != nil {
		c.degraded("delete", key, err)
	}
}

// Clear removes every key matching a glob pattern such as "search:*" and
// returns the number removed before any backend failure.
func (c *Cache) Clear(ctx context.Context, pattern string) int {
	n, err := c.backend.Clear(ctx, pattern)
	if err != nil {
		c.degraded("clear", pattern, err)
	}
	return n
}

func (c *Cache) Exists(ctx context.Context, key string) bool {
	ok, err := c.backend.Exists(ctx, key)
	if err != nil {
		c.degraded("exists", key, err)
		return false
	}
	return ok
}

// Increment returns the new value, or ok=false when the backend failed and
// nothing was counted.
func (c *Cache) Increment(ctx context.Context, key string, amount int64) (int64, bool) {
	n, err := c.backend.Increment(ctx, key, amount)
	if err != nil {
		c.degraded("increment", key, err)
		return 0, false
	}
	return n, true
}

func encode(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	}

	b, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
