package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ekaya-inc/ekaya-askdb/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-askdb/pkg/metrics"
	"github.com/ekaya-inc/ekaya-askdb/pkg/models"
)

// DefaultSchemaCacheTTL is how long an introspected schema is reused.
const DefaultSchemaCacheTTL = 10 * time.Minute

const schemaCacheKey = "schema"

// SchemaProvider returns the schema summary of the connected datasource.
type SchemaProvider interface {
	GetSchema(ctx context.Context) (*models.SchemaSummary, error)
}

// Clock returns the current time. Tests inject a fake one.
type Clock func() time.Time

type schemaEntry struct {
	value     *models.SchemaSummary
	expiresAt time.Time
}

// SchemaCache memoizes a SchemaProvider for a fixed TTL.
// Entries are never mutated after they are stored; a refresh replaces the
// whole entry. Concurrent misses share one upstream fetch.
type SchemaCache struct {
	provider SchemaProvider
	ttl      time.Duration
	now      Clock
	logger   *zap.Logger

	mu      sync.RWMutex
	entries map[string]*schemaEntry
	group   singleflight.Group
}

var _ SchemaProvider = (*SchemaCache)(nil)

// NewSchemaCache wraps provider. A non-positive ttl uses DefaultSchemaCacheTTL.
func NewSchemaCache(provider SchemaProvider, ttl time.Duration, logger *zap.Logger) *SchemaCache {
	if ttl <= 0 {
		ttl = DefaultSchemaCacheTTL
	}
	return &SchemaCache{
		provider: provider,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger.Named("schema-cache"),
		entries:  make(map[string]*schemaEntry),
	}
}

// WithClock replaces the time source and returns the cache.
func (c *SchemaCache) WithClock(clock Clock) *SchemaCache {
	c.now = clock
	return c
}

// GetSchema returns the cached summary or fetches a fresh one. The returned
// summary is shared and must not be modified. Fetch failures are not cached
// and wrap apperrors.ErrSchemaFetch.
func (c *SchemaCache) GetSchema(ctx context.Context) (*models.SchemaSummary, error) {
	if summary, ok := c.lookup(schemaCacheKey); ok {
		metrics.ObserveSchemaCacheLookup("hit")
		return summary, nil
	}

	// The fetch outlives any single caller so that one cancelled request
	// does not fail every request waiting on the same flight.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(schemaCacheKey, func() (any, error) {
		if summary, ok := c.lookup(schemaCacheKey); ok {
			return summary, nil
		}

		start := c.now()
		summary, err := c.provider.GetSchema(fetchCtx)
		if err != nil {
			return nil, err
		}
		if summary == nil {
			summary = &models.SchemaSummary{Tables: []models.Table{}}
		}

		c.store(schemaCacheKey, summary)
		c.logger.Info("Schema refreshed",
			zap.Int("table_count", summary.TableCount()),
			zap.Duration("elapsed", c.now().Sub(start)),
			zap.Duration("ttl", c.ttl))
		return summary, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			metrics.ObserveSchemaCacheLookup("error")
			return nil, fmt.Errorf("%w: %w", apperrors.ErrSchemaFetch, res.Err)
		}
		metrics.ObserveSchemaCacheLookup("miss")
		return res.Val.(*models.SchemaSummary), nil
	}
}

// Invalidate drops every cached entry so the next call refetches.
func (c *SchemaCache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]*schemaEntry)
	c.mu.Unlock()
	c.logger.Debug("Schema cache invalidated")
}

func (c *SchemaCache) lookup(key string) (*models.SchemaSummary, bool) {
	c.mu.RLock()
	entry := c.entries[key]
	c.mu.RUnlock()

	if entry == nil || !c.now().Before(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

func (c *SchemaCache) store(key string, value *models.SchemaSummary) {
	entry := &schemaEntry{value: value, expiresAt: c.now().Add(c.ttl)}
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}
