package persona

import (
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Memory retention settings.
const (
	MemoryCapacity       = 1000
	MemoryProtectWeight  = 0.8 // entries above this survive eviction
	memoryEvictionTarget = 0.9 // prune down to 90% of capacity
)

// memoryDecayWeight maps age to retention weight. Stepwise, not continuous:
// fresh memories dominate, month-old ones settle at a 0.3 floor.
func memoryDecayWeight(age time.Duration) float64 {
	switch {
	case age < 24*time.Hour:
		return 1.0
	case age < 7*24*time.Hour:
		return 0.8
	case age < 30*24*time.Hour:
		return 0.5
	default:
		return 0.3
	}
}

// EmotionalMemorySystem stores per-interaction emotional impacts and answers
// recall queries weighted by recency. Weights are recomputed lazily at read
// time from each entry's age, so decay needs no timers and is idempotent.
type EmotionalMemorySystem struct {
	memories []*EmotionalMemory
}

// NewEmotionalMemorySystem returns an empty store.
func NewEmotionalMemorySystem() *EmotionalMemorySystem {
	return &EmotionalMemorySystem{}
}

// StoreMemory records an impact with full weight. Returns the stored entry.
func (m *EmotionalMemorySystem) StoreMemory(impact EmotionalImpact, ctx ContextType, ts time.Time, patterns []PatternType, flag string) *EmotionalMemory {
	if !validFloat(impact.Intensity, impact.Valence) {
		log.Printf("[PERSONA] memory rejected emotion=%s reason=invalid_number", impact.PrimaryEmotion)
		return nil
	}
	impact.Intensity = clamp01(impact.Intensity)
	impact.Valence = clamp(impact.Valence, -1, 1)

	mem := &EmotionalMemory{
		ID:                 uuid.NewString(),
		Impact:             impact,
		Timestamp:          ts,
		Context:            ctx,
		Weight:             1.0,
		AssociatedPatterns: patterns,
		Flag:               flag,
	}
	m.memories = append(m.memories, mem)
	m.enforceCapacity(ts)
	return mem
}

// RecallSimilar returns up to limit memories in the given context category,
// ordered by current temporal weight, heaviest first.
func (m *EmotionalMemorySystem) RecallSimilar(category ContextCategory, now time.Time, limit int) []*EmotionalMemory {
	var matched []*EmotionalMemory
	for _, mem := range m.memories {
		if mem.Impact.Category == category {
			mem.Weight = round2(memoryDecayWeight(now.Sub(mem.Timestamp)))
			matched = append(matched, mem)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Weight != matched[j].Weight {
			return matched[i].Weight > matched[j].Weight
		}
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

// EmotionalAssociation returns the temporally weighted mean valence for a
// category, or 0 when nothing is stored for it. Recent memories dominate.
func (m *EmotionalMemorySystem) EmotionalAssociation(category ContextCategory, now time.Time) float64 {
	var sum, weights float64
	for _, mem := range m.memories {
		if mem.Impact.Category != category {
			continue
		}
		w := memoryDecayWeight(now.Sub(mem.Timestamp))
		sum += mem.Impact.Valence * w
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return round2(sum / weights)
}

// ApplyTemporalDecay recomputes every stored weight from age. Safe to call
// any number of times for the same now.
func (m *EmotionalMemorySystem) ApplyTemporalDecay(now time.Time) {
	for _, mem := range m.memories {
		mem.Weight = round2(memoryDecayWeight(now.Sub(mem.Timestamp)))
	}
}

// RecentMemories returns memories younger than the given number of hours,
// newest first, up to limit.
func (m *EmotionalMemorySystem) RecentMemories(now time.Time, hours float64, limit int) []*EmotionalMemory {
	cutoff := now.Add(-time.Duration(hours * float64(time.Hour)))
	var out []*EmotionalMemory
	for _, mem := range m.memories {
		if mem.Timestamp.After(cutoff) {
			out = append(out, mem)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// MemoriesByEmotion returns all memories carrying the given primary emotion.
func (m *EmotionalMemorySystem) MemoriesByEmotion(emotion EmotionType) []*EmotionalMemory {
	var out []*EmotionalMemory
	for _, mem := range m.memories {
		if mem.Impact.PrimaryEmotion == emotion {
			out = append(out, mem)
		}
	}
	return out
}

// MemoriesByPattern returns memories associated with a behavior pattern.
func (m *EmotionalMemorySystem) MemoriesByPattern(ptype PatternType) []*EmotionalMemory {
	var out []*EmotionalMemory
	for _, mem := range m.memories {
		for _, p := range mem.AssociatedPatterns {
			if p == ptype {
				out = append(out, mem)
				break
			}
		}
	}
	return out
}

// AverageValence returns the plain mean valence for a category over the last
// N days, 0 when empty.
func (m *EmotionalMemorySystem) AverageValence(category ContextCategory, now time.Time, days int) float64 {
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)
	var sum float64
	count := 0
	for _, mem := range m.memories {
		if mem.Impact.Category != category || mem.Timestamp.Before(cutoff) {
			continue
		}
		sum += mem.Impact.Valence
		count++
	}
	if count == 0 {
		return 0
	}
	return round2(sum / float64(count))
}

// DominantEmotions returns up to limit emotions ranked by summed temporal
// weight across all stored memories.
func (m *EmotionalMemorySystem) DominantEmotions(now time.Time, limit int) []EmotionType {
	totals := make(map[EmotionType]float64)
	for _, mem := range m.memories {
		totals[mem.Impact.PrimaryEmotion] += memoryDecayWeight(now.Sub(mem.Timestamp)) * mem.Impact.Intensity
	}
	type ranked struct {
		emotion EmotionType
		total   float64
	}
	list := make([]ranked, 0, len(totals))
	for e, t := range totals {
		list = append(list, ranked{e, t})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].total != list[j].total {
			return list[i].total > list[j].total
		}
		return list[i].emotion < list[j].emotion
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	out := make([]EmotionType, len(list))
	for i, r := range list {
		out[i] = r.emotion
	}
	return out
}

// Stats summarizes the store: totals, per-category and per-emotion counts,
// and the age span of what is held.
func (m *EmotionalMemorySystem) Stats() map[string]any {
	byCategory := make(map[ContextCategory]int)
	byEmotion := make(map[EmotionType]int)
	var oldest, newest time.Time
	for _, mem := range m.memories {
		byCategory[mem.Impact.Category]++
		byEmotion[mem.Impact.PrimaryEmotion]++
		if oldest.IsZero() || mem.Timestamp.Before(oldest) {
			oldest = mem.Timestamp
		}
		if mem.Timestamp.After(newest) {
			newest = mem.Timestamp
		}
	}
	stats := map[string]any{
		"total":       len(m.memories),
		"by_category": byCategory,
		"by_emotion":  byEmotion,
	}
	if !oldest.IsZero() {
		stats["oldest"] = oldest
		stats["newest"] = newest
	}
	return stats
}

// Count returns how many memories are stored.
func (m *EmotionalMemorySystem) Count() int {
	return len(m.memories)
}

// All returns the raw memory slice, oldest first. Used by snapshotting.
func (m *EmotionalMemorySystem) All() []*EmotionalMemory {
	return m.memories
}

// Restore replaces the store contents, used when loading a snapshot.
func (m *EmotionalMemorySystem) Restore(memories []*EmotionalMemory) {
	m.memories = memories
}

// enforceCapacity prunes lowest-weight entries above capacity. Entries over
// the protection threshold are never evicted, so the store can temporarily
// exceed capacity when almost everything is recent and heavy.
func (m *EmotionalMemorySystem) enforceCapacity(now time.Time) {
	if len(m.memories) <= MemoryCapacity {
		return
	}
	m.ApplyTemporalDecay(now)

	target := int(float64(MemoryCapacity) * memoryEvictionTarget)
	sorted := make([]*EmotionalMemory, len(m.memories))
	copy(sorted, m.memories)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Weight != sorted[j].Weight {
			return sorted[i].Weight < sorted[j].Weight
		}
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	evict := make(map[string]bool)
	need := len(m.memories) - target
	for _, mem := range sorted {
		if need == 0 {
			break
		}
		if mem.Weight > MemoryProtectWeight {
			continue
		}
		evict[mem.ID] = true
		need--
	}
	if len(evict) == 0 {
		return
	}

	kept := m.memories[:0]
	for _, mem := range m.memories {
		if !evict[mem.ID] {
			kept = append(kept, mem)
		}
	}
	m.memories = kept
	log.Printf("[PERSONA] memory pruned removed=%d kept=%d", len(evict), len(m.memories))
}
