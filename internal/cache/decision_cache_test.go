package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphastack/equityresearch/internal/models"
)

func scoreSet(fund, tech, sent, mgmt float64) map[models.Dimension]models.DimensionScore {
	return map[models.Dimension]models.DimensionScore{
		models.DimensionFundamental: {Dimension: models.DimensionFundamental, Score: fund},
		models.DimensionTechnical:   {Dimension: models.DimensionTechnical, Score: tech},
		models.DimensionSentiment:   {Dimension: models.DimensionSentiment, Score: sent},
		models.DimensionManagement:  {Dimension: models.DimensionManagement, Score: mgmt},
	}
}

func TestFingerprintRoundsToNearestFive(t *testing.T) {
	fp := NewDecisionFingerprint("TCS", scoreSet(72.4, 72.5, 48, 51), models.ConflictLow, 63.2)

	assert.Equal(t, 70, fp.Scores[models.DimensionFundamental])
	assert.Equal(t, 75, fp.Scores[models.DimensionTechnical])
	assert.Equal(t, 50, fp.Scores[models.DimensionSentiment])
	assert.Equal(t, 50, fp.Scores[models.DimensionManagement])
	assert.Equal(t, 65, fp.Composite)
}

func TestSimilarity(t *testing.T) {
	base := NewDecisionFingerprint("TCS", scoreSet(70, 75, 50, 55), models.ConflictLow, 65)

	assert.InDelta(t, 1.0, Similarity(base, base), 1e-9)

	mismatched := base
	mismatched.ConflictLevel = models.ConflictHigh
	assert.Zero(t, Similarity(base, mismatched), "different conflict levels never match")

	// One dimension off by 5 points costs 0.2 * 0.05 = 0.01.
	near := NewDecisionFingerprint("TCS", scoreSet(65, 75, 50, 55), models.ConflictLow, 65)
	assert.InDelta(t, 0.99, Similarity(base, near), 1e-9)

	// Every slot off by 40 points drops similarity to 0.6.
	far := NewDecisionFingerprint("TCS", scoreSet(30, 35, 90, 95), models.ConflictLow, 25)
	assert.InDelta(t, 0.6, Similarity(base, far), 1e-9)
}

func TestDecisionCacheExactHit(t *testing.T) {
	_, client := newTestRedis(t)
	cache := NewDecisionCache(client, silentLogger(), time.Hour, 0.85)
	ctx := context.Background()

	scores := scoreSet(70, 75, 50, 55)
	want := models.SynthesisResult{Action: models.ActionBuy, Confidence: 78, Rationale: "momentum confirmed"}
	cache.SetSynthesis(ctx, "TCS", scores, models.ConflictLow, 65, want)

	got, ok := cache.GetSynthesis(ctx, "TCS", scores, models.ConflictLow, 65)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestDecisionCacheFuzzyHit(t *testing.T) {
	_, client := newTestRedis(t)
	cache := NewDecisionCache(client, silentLogger(), time.Hour, 0.85)
	ctx := context.Background()

	want := models.SynthesisResult{Action: models.ActionHold, Confidence: 60}
	cache.SetSynthesis(ctx, "TCS", scoreSet(70, 75, 50, 55), models.ConflictMedium, 65, want)

	// Fundamental drifted by 5 rounded points: similarity 0.99, above the
	// threshold, so the stored synthesis is reused.
	got, ok := cache.GetSynthesis(ctx, "TCS", scoreSet(65, 75, 50, 55), models.ConflictMedium, 65)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestDecisionCacheFuzzyMissBelowThreshold(t *testing.T) {
	_, client := newTestRedis(t)
	cache := NewDecisionCache(client, silentLogger(), time.Hour, 0.85)
	ctx := context.Background()

	cache.SetSynthesis(ctx, "TCS", scoreSet(70, 75, 50, 55), models.ConflictMedium, 65,
		models.SynthesisResult{Action: models.ActionHold, Confidence: 60})

	_, ok := cache.GetSynthesis(ctx, "TCS", scoreSet(30, 35, 90, 95), models.ConflictMedium, 25)
	assert.False(t, ok)
}

func TestDecisionCacheSeparatesConflictLevels(t *testing.T) {
	_, client := newTestRedis(t)
	cache := NewDecisionCache(client, silentLogger(), time.Hour, 0.85)
	ctx := context.Background()

	scores := scoreSet(70, 75, 50, 55)
	cache.SetSynthesis(ctx, "TCS", scores, models.ConflictLow, 65,
		models.SynthesisResult{Action: models.ActionBuy, Confidence: 78})

	_, ok := cache.GetSynthesis(ctx, "TCS", scores, models.ConflictHigh, 65)
	assert.False(t, ok, "a synthesis made under a different conflict level is never reused")
}

func TestDecisionCacheSeparatesSymbols(t *testing.T) {
	_, client := newTestRedis(t)
	cache := NewDecisionCache(client, silentLogger(), time.Hour, 0.85)
	ctx := context.Background()

	scores := scoreSet(70, 75, 50, 55)
	cache.SetSynthesis(ctx, "TCS", scores, models.ConflictLow, 65,
		models.SynthesisResult{Action: models.ActionBuy, Confidence: 78})

	_, ok := cache.GetSynthesis(ctx, "WIPRO", scores, models.ConflictLow, 65)
	assert.False(t, ok)
}

func TestDecisionCacheEntriesExpire(t *testing.T) {
	mr, client := newTestRedis(t)
	cache := NewDecisionCache(client, silentLogger(), time.Minute, 0.85)
	ctx := context.Background()

	scores := scoreSet(70, 75, 50, 55)
	cache.SetSynthesis(ctx, "TCS", scores, models.ConflictLow, 65,
		models.SynthesisResult{Action: models.ActionBuy, Confidence: 78})

	mr.FastForward(2 * time.Minute)

	_, ok := cache.GetSynthesis(ctx, "TCS", scores, models.ConflictLow, 65)
	assert.False(t, ok)
}
