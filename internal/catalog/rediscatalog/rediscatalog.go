// Package rediscatalog adapts the intelligence.Catalog capability to
// github.com/redis/go-redis/v9, the same cache/session store technology
// smilemakc-mbflow uses. The active-model list and tool-known set are cached
// with a TTL and refreshed from a pluggable source function on miss.
package rediscatalog

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aswarm-evolve/workflow-gp/intelligence"
)

const (
	modelsKey    = "workflow-gp:catalog:active-models"
	toolPrefix   = "workflow-gp:catalog:tool:"
	defaultTTL   = 5 * time.Minute
)

// ModelSource refreshes the active model list on a cache miss.
type ModelSource func(ctx context.Context) ([]string, error)

// ToolSource reports whether a tool name is known, on a cache miss.
type ToolSource func(ctx context.Context, name string) (bool, error)

// Catalog reads model/tool lookups through a Redis cache in front of a
// pluggable source.
type Catalog struct {
	rdb         *redis.Client
	ttl         time.Duration
	modelSource ModelSource
	toolSource  ToolSource
}

// New builds a Catalog backed by rdb, refreshing from the given sources on
// cache miss.
func New(rdb *redis.Client, modelSource ModelSource, toolSource ToolSource) *Catalog {
	return &Catalog{rdb: rdb, ttl: defaultTTL, modelSource: modelSource, toolSource: toolSource}
}

var _ intelligence.Catalog = (*Catalog)(nil)

// GetActiveModelNames implements intelligence.Catalog, reading through a
// Redis-cached comma-joined list.
func (c *Catalog) GetActiveModelNames(ctx context.Context) ([]string, error) {
	cached, err := c.rdb.Get(ctx, modelsKey).Result()
	if err == nil && cached != "" {
		return strings.Split(cached, ","), nil
	}
	if err != nil && err != redis.Nil {
		return nil, err
	}
	models, err := c.modelSource(ctx)
	if err != nil {
		return nil, err
	}
	if len(models) > 0 {
		_ = c.rdb.Set(ctx, modelsKey, strings.Join(models, ","), c.ttl).Err()
	}
	return models, nil
}

// IsToolKnown implements intelligence.Catalog, reading through a
// per-tool Redis-cached boolean.
func (c *Catalog) IsToolKnown(ctx context.Context, name string) (bool, error) {
	key := toolPrefix + name
	cached, err := c.rdb.Get(ctx, key).Result()
	if err == nil {
		return cached == "1", nil
	}
	if err != redis.Nil {
		return false, err
	}
	known, err := c.toolSource(ctx, name)
	if err != nil {
		return false, err
	}
	val := "0"
	if known {
		val = "1"
	}
	_ = c.rdb.Set(ctx, key, val, c.ttl).Err()
	return known, nil
}
