// Package cache memoizes patient reports in process and, optionally, in Redis so several
// server instances over the same datasets can share computed reports.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/visual-health-insight/internal/domain"
)

// Cache tiers reported on hits.
const (
	TierMemory = "memory"
	TierRedis  = "redis"
)

// Redis tier states reported by Check.
const (
	RedisDisabled    = "disabled"
	RedisOK          = "ok"
	RedisUnreachable = "unreachable"
)

// Config configures a ReportCache. RedisClient may be nil for a memory-only cache.
type Config struct {
	MaxItems    int
	RedisClient *redis.Client
	TTL         time.Duration
	KeyPrefix   string
}

// ReportCache is a two-tier report cache: an LRU in memory backed by Redis. Redis failures
// degrade to misses and never fail a request.
type ReportCache struct {
	memory *lru.Cache[string, domain.PatientReport]
	redis  *redis.Client
	ttl    time.Duration
	prefix string
	logger *logrus.Logger
}

// New creates a report cache.
func New(cfg Config, logger *logrus.Logger) (*ReportCache, error) {
	memory, err := lru.New[string, domain.PatientReport](cfg.MaxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to create report cache: %w", err)
	}
	return &ReportCache{
		memory: memory,
		redis:  cfg.RedisClient,
		ttl:    cfg.TTL,
		prefix: cfg.KeyPrefix,
		logger: logger,
	}, nil
}

// Get returns the cached report and the tier that served it.
func (c *ReportCache) Get(ctx context.Context, patientID string) (domain.PatientReport, string, bool) {
	if report, ok := c.memory.Get(patientID); ok {
		return report, TierMemory, true
	}
	if c.redis == nil {
		return domain.PatientReport{}, "", false
	}

	data, err := c.redis.Get(ctx, c.key(patientID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).WithField("patient_id", patientID).Warn("Redis report lookup failed")
		}
		return domain.PatientReport{}, "", false
	}

	var report domain.PatientReport
	if err := json.Unmarshal(data, &report); err != nil {
		c.logger.WithError(err).WithField("patient_id", patientID).Warn("Discarding undecodable cached report")
		return domain.PatientReport{}, "", false
	}

	// Populate memory cache for next time
	c.memory.Add(patientID, report)
	return report, TierRedis, true
}

// Add stores report in both tiers.
func (c *ReportCache) Add(ctx context.Context, patientID string, report domain.PatientReport) {
	c.memory.Add(patientID, report)
	if c.redis == nil {
		return
	}

	data, err := json.Marshal(report)
	if err != nil {
		c.logger.WithError(err).WithField("patient_id", patientID).Warn("Failed to encode report for Redis")
		return
	}
	if err := c.redis.Set(ctx, c.key(patientID), data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("patient_id", patientID).Warn("Failed to store report in Redis")
	}
}

// Len returns the number of reports held in memory.
func (c *ReportCache) Len() int {
	return c.memory.Len()
}

// Purge empties the memory tier. Redis entries expire by TTL.
func (c *ReportCache) Purge() {
	c.memory.Purge()
}

// Check reports the state of the Redis tier.
func (c *ReportCache) Check(ctx context.Context) string {
	if c.redis == nil {
		return RedisDisabled
	}
	if err := c.redis.Ping(ctx).Err(); err != nil {
		c.logger.WithError(err).Debug("Redis health check failed")
		return RedisUnreachable
	}
	return RedisOK
}

func (c *ReportCache) key(patientID string) string {
	return c.prefix + patientID
}
