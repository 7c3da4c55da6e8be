package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/alphastack/equityresearch/internal/models"
)

// DecisionFingerprint is the lookup key for a cached LLM synthesis. Scores
// are rounded to the nearest 5 so near-identical evaluations share entries.
type DecisionFingerprint struct {
	Symbol        string                   `json:"symbol"`
	Scores        map[models.Dimension]int `json:"scores"`
	ConflictLevel models.ConflictLevel     `json:"conflict_level"`
	Composite     int                      `json:"composite"`
}

// NewDecisionFingerprint rounds the inputs into a fingerprint.
func NewDecisionFingerprint(symbol string, scores map[models.Dimension]models.DimensionScore, level models.ConflictLevel, composite float64) DecisionFingerprint {
	rounded := make(map[models.Dimension]int, len(scores))
	for dim, s := range scores {
		rounded[dim] = roundTo5(s.Score)
	}
	return DecisionFingerprint{
		Symbol:        symbol,
		Scores:        rounded,
		ConflictLevel: level,
		Composite:     roundTo5(composite),
	}
}

func roundTo5(v float64) int {
	return int(math.Round(v/5) * 5)
}

type decisionEntry struct {
	Fingerprint DecisionFingerprint    `json:"fingerprint"`
	Result      models.SynthesisResult `json:"result"`
	CachedAt    time.Time              `json:"cached_at"`
}

// DecisionCache stores LLM synthesis results in Redis and serves lookups by
// fuzzy similarity instead of exact key match: two evaluations whose rounded
// dimension scores are close enough share the same synthesis. Entries carry a
// TTL so a stale synthesis cannot outlive the market context it was made in.
type DecisionCache struct {
	redis      *redis.Client
	logger     *logrus.Logger
	ttl        time.Duration
	similarity float64
	prefix     string
}

func NewDecisionCache(redisClient *redis.Client, logger *logrus.Logger, ttl time.Duration, similarity float64) *DecisionCache {
	return &DecisionCache{
		redis:      redisClient,
		logger:     logger,
		ttl:        ttl,
		similarity: similarity,
		prefix:     "llm_decision:",
	}
}

func (c *DecisionCache) key(fp DecisionFingerprint) string {
	return fmt.Sprintf("%s%s:%s:%d:%d:%d:%d:%d", c.prefix, fp.Symbol, fp.ConflictLevel,
		fp.Scores[models.DimensionFundamental], fp.Scores[models.DimensionTechnical],
		fp.Scores[models.DimensionSentiment], fp.Scores[models.DimensionManagement],
		fp.Composite)
}

// Get returns the best cached synthesis whose fingerprint is at least the
// similarity threshold away from an exact match, or (zero, false).
func (c *DecisionCache) Get(ctx context.Context, fp DecisionFingerprint) (models.SynthesisResult, bool) {
	// Exact fingerprint first, the cheap path.
	if data, err := c.redis.Get(ctx, c.key(fp)).Result(); err == nil {
		var entry decisionEntry
		if json.Unmarshal([]byte(data), &entry) == nil {
			return entry.Result, true
		}
	}

	// Fuzzy path: scan this symbol's entries and pick the most similar one.
	pattern := fmt.Sprintf("%s%s:%s:*", c.prefix, fp.Symbol, fp.ConflictLevel)
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()

	best := models.SynthesisResult{}
	bestSim := 0.0
	found := false

	for iter.Next(ctx) {
		data, err := c.redis.Get(ctx, iter.Val()).Result()
		if err != nil {
			continue
		}
		var entry decisionEntry
		if json.Unmarshal([]byte(data), &entry) != nil {
			continue
		}
		sim := Similarity(fp, entry.Fingerprint)
		if sim >= c.similarity && sim > bestSim {
			best = entry.Result
			bestSim = sim
			found = true
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.WithError(err).Warn("Redis error scanning decision cache")
	}

	return best, found
}

// Set stores a synthesis result under its fingerprint.
func (c *DecisionCache) Set(ctx context.Context, fp DecisionFingerprint, result models.SynthesisResult) {
	entry := decisionEntry{Fingerprint: fp, Result: result, CachedAt: time.Now()}
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to serialize decision cache entry")
		return
	}
	if err := c.redis.Set(ctx, c.key(fp), data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("Redis error writing decision cache")
	}
}

// GetSynthesis looks up a cached synthesis for the given evaluation inputs.
func (c *DecisionCache) GetSynthesis(ctx context.Context, symbol string, scores map[models.Dimension]models.DimensionScore, level models.ConflictLevel, composite float64) (models.SynthesisResult, bool) {
	return c.Get(ctx, NewDecisionFingerprint(symbol, scores, level, composite))
}

// SetSynthesis stores a synthesis for the given evaluation inputs.
func (c *DecisionCache) SetSynthesis(ctx context.Context, symbol string, scores map[models.Dimension]models.DimensionScore, level models.ConflictLevel, composite float64, result models.SynthesisResult) {
	c.Set(ctx, NewDecisionFingerprint(symbol, scores, level, composite), result)
}

// Similarity computes the weighted similarity of two fingerprints in [0,1].
// Dimension deltas and the composite delta each contribute equally; 100
// points of disagreement in every slot would score 0.
func Similarity(a, b DecisionFingerprint) float64 {
	if a.ConflictLevel != b.ConflictLevel {
		return 0
	}

	dims := models.AllDimensions()
	weight := 1.0 / float64(len(dims)+1)

	sim := 0.0
	for _, dim := range dims {
		delta := math.Abs(float64(a.Scores[dim] - b.Scores[dim]))
		sim += weight * (1 - math.Min(delta, 100)/100)
	}
	delta := math.Abs(float64(a.Composite - b.Composite))
	sim += weight * (1 - math.Min(delta, 100)/100)

	return sim
}
