package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/alphastack/equityresearch/internal/models"
)

// Stats tracks cache performance counters.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	mu     sync.Mutex
}

func (s *Stats) hit()  { s.mu.Lock(); s.Hits++; s.mu.Unlock() }
func (s *Stats) miss() { s.mu.Lock(); s.Misses++; s.mu.Unlock() }
func (s *Stats) set()  { s.mu.Lock(); s.Sets++; s.mu.Unlock() }

// Snapshot returns a copy of the counters.
func (s *Stats) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Hits: s.Hits, Misses: s.Misses, Sets: s.Sets}
}

// AnalysisCache stores expensive per-symbol artifacts in Redis: historical
// validation results (90-day TTL by default, they only change as history
// accrues) and dimension scores (7-day TTL for fundamentals).
type AnalysisCache struct {
	redis         *redis.Client
	logger        *logrus.Logger
	validationTTL time.Duration
	scoreTTL      time.Duration
	stats         *Stats
	prefix        string
}

func NewAnalysisCache(redisClient *redis.Client, logger *logrus.Logger, validationTTL, scoreTTL time.Duration) *AnalysisCache {
	return &AnalysisCache{
		redis:         redisClient,
		logger:        logger,
		validationTTL: validationTTL,
		scoreTTL:      scoreTTL,
		stats:         &Stats{},
		prefix:        "analysis:",
	}
}

func (c *AnalysisCache) validationKey(symbol string, pt models.PatternType, asOf time.Time) string {
	return fmt.Sprintf("%svalidation:%s:%s:%s", c.prefix, symbol, pt, asOf.Format("2006-01-02"))
}

func (c *AnalysisCache) scoreKey(symbol string, dim models.Dimension) string {
	return fmt.Sprintf("%sscore:%s:%s", c.prefix, symbol, dim)
}

// GetValidation returns a cached validation result keyed by
// (symbol, pattern, as-of-date), or (nil, false) on a miss.
func (c *AnalysisCache) GetValidation(ctx context.Context, symbol string, pt models.PatternType, asOf time.Time) (*models.ValidationResult, bool) {
	data, err := c.redis.Get(ctx, c.validationKey(symbol, pt, asOf)).Result()
	if err == redis.Nil {
		c.stats.miss()
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).WithField("symbol", symbol).Warn("Redis error reading validation cache")
		c.stats.miss()
		return nil, false
	}

	var result models.ValidationResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.WithError(err).WithField("symbol", symbol).Warn("Corrupt validation cache entry")
		c.stats.miss()
		return nil, false
	}

	c.stats.hit()
	return &result, true
}

// SetValidation stores a validation result. Failures are logged, not
// returned: the cache is an optimization, never a correctness dependency.
func (c *AnalysisCache) SetValidation(ctx context.Context, result *models.ValidationResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to serialize validation result")
		return
	}
	key := c.validationKey(result.Symbol, result.PatternType, result.AsOf)
	if err := c.redis.Set(ctx, key, data, c.validationTTL).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Redis error writing validation cache")
		return
	}
	c.stats.set()
}

// GetScore returns a cached dimension score, or (zero, false) on a miss.
func (c *AnalysisCache) GetScore(ctx context.Context, symbol string, dim models.Dimension) (models.DimensionScore, bool) {
	data, err := c.redis.Get(ctx, c.scoreKey(symbol, dim)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).WithField("symbol", symbol).Warn("Redis error reading score cache")
		}
		c.stats.miss()
		return models.DimensionScore{}, false
	}

	var score models.DimensionScore
	if err := json.Unmarshal([]byte(data), &score); err != nil {
		c.stats.miss()
		return models.DimensionScore{}, false
	}

	c.stats.hit()
	return score, true
}

// SetScore stores a dimension score with the score TTL.
func (c *AnalysisCache) SetScore(ctx context.Context, symbol string, score models.DimensionScore) {
	data, err := json.Marshal(score)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to serialize dimension score")
		return
	}
	if err := c.redis.Set(ctx, c.scoreKey(symbol, score.Dimension), data, c.scoreTTL).Err(); err != nil {
		c.logger.WithError(err).Warn("Redis error writing score cache")
		return
	}
	c.stats.set()
}

// Stats returns a snapshot of the hit/miss counters.
func (c *AnalysisCache) Stats() Stats {
	return c.stats.Snapshot()
}
