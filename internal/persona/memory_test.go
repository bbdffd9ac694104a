package persona

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeAt(m *EmotionalMemorySystem, emotion EmotionType, valence float64, cat ContextCategory, ts time.Time) *EmotionalMemory {
	intensity := valence
	if intensity < 0 {
		intensity = -intensity
	}
	return m.StoreMemory(EmotionalImpact{
		PrimaryEmotion: emotion,
		Intensity:      intensity,
		Valence:        valence,
		Category:       cat,
	}, ContextPrivate, ts, nil, "")
}

func TestTemporalDecayTable(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		age    time.Duration
		weight float64
	}{
		{time.Hour, 1.0},
		{23 * time.Hour, 1.0},
		{25 * time.Hour, 0.8},
		{6 * 24 * time.Hour, 0.8},
		{10 * 24 * time.Hour, 0.5},
		{29 * 24 * time.Hour, 0.5},
		{31 * 24 * time.Hour, 0.3},
		{365 * 24 * time.Hour, 0.3},
	}
	for _, c := range cases {
		m := NewEmotionalMemorySystem()
		mem := storeAt(m, EmotionJoy, 0.5, CategorySupport, now.Add(-c.age))
		require.NotNil(t, mem)
		m.ApplyTemporalDecay(now)
		assert.Equal(t, c.weight, mem.Weight, "age %s", c.age)
	}
}

func TestApplyTemporalDecayIdempotent(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	m := NewEmotionalMemorySystem()
	mem := storeAt(m, EmotionJoy, 0.5, CategorySupport, now.Add(-10*24*time.Hour))

	m.ApplyTemporalDecay(now)
	first := mem.Weight
	m.ApplyTemporalDecay(now)
	assert.Equal(t, first, mem.Weight)
}

func TestRecallSimilarOrdersByWeight(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	m := NewEmotionalMemorySystem()
	old := storeAt(m, EmotionSadness, -0.5, CategoryConflict, now.Add(-10*24*time.Hour))
	fresh := storeAt(m, EmotionAnger, -0.7, CategoryConflict, now.Add(-time.Hour))
	storeAt(m, EmotionJoy, 0.5, CategorySupport, now)

	got := m.RecallSimilar(CategoryConflict, now, 5)
	require.Len(t, got, 2)
	assert.Equal(t, fresh.ID, got[0].ID)
	assert.Equal(t, old.ID, got[1].ID)

	got = m.RecallSimilar(CategoryConflict, now, 1)
	require.Len(t, got, 1)
	assert.Equal(t, fresh.ID, got[0].ID)
}

func TestEmotionalAssociationWeightsRecency(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	m := NewEmotionalMemorySystem()
	storeAt(m, EmotionJoy, 1.0, CategorySupport, now.Add(-time.Hour))          // weight 1.0
	storeAt(m, EmotionSadness, -1.0, CategorySupport, now.Add(-10*24*time.Hour)) // weight 0.5

	// (1.0*1.0 + (-1.0)*0.5) / 1.5
	assert.InDelta(t, 0.33, m.EmotionalAssociation(CategorySupport, now), 0.01)
	assert.Zero(t, m.EmotionalAssociation(CategoryParenting, now))
}

func TestCapacityEvictsLowestWeightFirst(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	m := NewEmotionalMemorySystem()
	for i := 0; i < MemoryCapacity; i++ {
		storeAt(m, EmotionContentment, 0.2, CategorySupport, now.Add(-40*24*time.Hour))
	}
	fresh := storeAt(m, EmotionJoy, 0.9, CategoryIntimacy, now)

	// Pruned down to 90% of capacity, keeping the recent heavy entry.
	assert.Equal(t, int(float64(MemoryCapacity)*memoryEvictionTarget), m.Count())
	found := false
	for _, mem := range m.All() {
		if mem.ID == fresh.ID {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCapacityNeverEvictsProtectedEntries(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	m := NewEmotionalMemorySystem()
	for i := 0; i <= MemoryCapacity; i++ {
		storeAt(m, EmotionJoy, 0.9, CategorySupport, now)
	}
	// Everything is fresh (weight 1.0 > protection threshold), so the store
	// temporarily exceeds capacity rather than dropping strong memories.
	assert.Equal(t, MemoryCapacity+1, m.Count())
}

func TestStoreMemoryRejectsInvalidNumbers(t *testing.T) {
	m := NewEmotionalMemorySystem()
	mem := m.StoreMemory(EmotionalImpact{
		PrimaryEmotion: EmotionJoy,
		Intensity:      0.5,
		Valence:        math.NaN(),
		Category:       CategorySupport,
	}, ContextPrivate, time.Now(), nil, "")
	assert.Nil(t, mem)
	assert.Zero(t, m.Count())
}

func TestMemoriesByEmotionAndPattern(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	m := NewEmotionalMemorySystem()
	storeAt(m, EmotionAnger, -0.5, CategoryConflict, now)
	m.StoreMemory(EmotionalImpact{
		PrimaryEmotion: EmotionDisappointment,
		Intensity:      0.4,
		Valence:        -0.4,
		Category:       CategoryConflict,
	}, ContextPrivate, now, []PatternType{PatternRepeatedAvoidance}, MemoryFlagUnreliable)

	assert.Len(t, m.MemoriesByEmotion(EmotionAnger), 1)
	byPattern := m.MemoriesByPattern(PatternRepeatedAvoidance)
	require.Len(t, byPattern, 1)
	assert.Equal(t, MemoryFlagUnreliable, byPattern[0].Flag)
}

func TestStats(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	m := NewEmotionalMemorySystem()

	empty := m.Stats()
	assert.Equal(t, 0, empty["total"])
	assert.NotContains(t, empty, "oldest")

	storeAt(m, EmotionJoy, 0.9, CategorySupport, now.Add(-48*time.Hour))
	storeAt(m, EmotionJoy, 0.8, CategorySupport, now)
	storeAt(m, EmotionAnger, -0.5, CategoryConflict, now.Add(-time.Hour))

	stats := m.Stats()
	assert.Equal(t, 3, stats["total"])
	assert.Equal(t, map[ContextCategory]int{CategorySupport: 2, CategoryConflict: 1}, stats["by_category"])
	assert.Equal(t, map[EmotionType]int{EmotionJoy: 2, EmotionAnger: 1}, stats["by_emotion"])
	assert.Equal(t, now.Add(-48*time.Hour), stats["oldest"])
	assert.Equal(t, now, stats["newest"])
}

func TestDominantEmotions(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	m := NewEmotionalMemorySystem()
	storeAt(m, EmotionJoy, 0.9, CategorySupport, now)
	storeAt(m, EmotionJoy, 0.8, CategorySupport, now)
	storeAt(m, EmotionSadness, -0.3, CategoryConflict, now)

	top := m.DominantEmotions(now, 2)
	require.Len(t, top, 2)
	assert.Equal(t, EmotionJoy, top[0])
}
