package persona

import (
	"log"
	"math"
	"sort"
	"time"
)

// Pattern detection defaults.
const (
	DefaultPatternWindow  = 7 * 24 * time.Hour
	MinPatternOccurrences = 3
	PatternDecayPerDay    = 0.1 // weight loses 10% per day without recurrence
	PatternBreakThreshold = 5   // consecutive opposing actions to break a pattern
	PatternDropWeight     = 0.1 // below this a pattern is gone
	PositiveValenceFloor  = 0.3 // valence above this counts as opposing a negative pattern
)

// actionToPattern maps action signatures to the pattern they form when repeated.
var actionToPattern = map[ActionType]PatternType{
	ActionParentingPresent:    PatternConsistentPresence,
	ActionParentingAbsent:     PatternSporadicInvolvement,
	ActionConflictAvoid:       PatternRepeatedAvoidance,
	ActionControlTaking:       PatternControlTaking,
	ActionEmpathyShown:        PatternEmpatheticSupport,
	ActionPublicSupport:       PatternPublicUnity,
	ActionPublicContradiction: PatternPublicUndermining,
}

// PatternTracker records timestamped actions and detects recurring behavior
// within a sliding window. Weights decay lazily from elapsed wall-clock time,
// no background timers.
type PatternTracker struct {
	history  []*PlayerAction
	patterns map[PatternType]*BehaviorPattern
	weights  map[PatternType]float64
	// lastOccurrence backs the lazy decay: weight is a pure function of
	// the stored weight and time since the pattern last recurred.
	lastOccurrence map[PatternType]time.Time
	// opposingStreak counts consecutive opposing (positive) actions per
	// negative pattern. Any matching recurrence resets the counter.
	opposingStreak map[PatternType]int
	positiveStreak int
}

// NewPatternTracker returns an empty tracker.
func NewPatternTracker() *PatternTracker {
	return &PatternTracker{
		patterns:       make(map[PatternType]*BehaviorPattern),
		weights:        make(map[PatternType]float64),
		lastOccurrence: make(map[PatternType]time.Time),
		opposingStreak: make(map[PatternType]int),
	}
}

// RecordAction appends an action to the timestamp-ordered history and updates
// streak counters. Amortized O(1): replayed batches arrive near-sorted.
func (t *PatternTracker) RecordAction(a *PlayerAction) {
	if a == nil {
		return
	}
	t.history = append(t.history, a)
	// Keep history ordered when an out-of-order action slips in.
	for i := len(t.history) - 1; i > 0 && t.history[i].Timestamp.Before(t.history[i-1].Timestamp); i-- {
		t.history[i], t.history[i-1] = t.history[i-1], t.history[i]
	}

	if a.Valence > PositiveValenceFloor {
		t.positiveStreak++
	} else {
		t.positiveStreak = 0
	}

	matched := actionToPattern[a.Type]
	for _, p := range negativePatterns {
		if p == matched {
			// Recurrence resets the opposing counter and refreshes decay.
			t.opposingStreak[p] = 0
			t.lastOccurrence[p] = a.Timestamp
			if _, ok := t.weights[p]; !ok {
				t.weights[p] = 1.0
			}
			continue
		}
		if a.Valence > PositiveValenceFloor {
			t.opposingStreak[p]++
			if t.opposingStreak[p] >= PatternBreakThreshold {
				t.BreakPattern(p)
				t.opposingStreak[p] = 0
			}
		}
	}
	if matched != "" && !IsNegativePattern(matched) {
		t.lastOccurrence[matched] = a.Timestamp
		if _, ok := t.weights[matched]; !ok {
			t.weights[matched] = 1.0
		}
	}
}

// DetectPatterns groups history inside [now-window, now] by action signature
// and emits a BehaviorPattern for any group of MinPatternOccurrences or more.
// An empty window and an empty history both yield an empty list; callers fall
// back to single-action-impact rules either way.
func (t *PatternTracker) DetectPatterns(now time.Time, window time.Duration) []*BehaviorPattern {
	if window <= 0 {
		return nil
	}
	cutoff := now.Add(-window)

	grouped := make(map[PatternType][]*PlayerAction)
	for _, a := range t.history {
		if a.Timestamp.Before(cutoff) || a.Timestamp.After(now) {
			continue
		}
		if p, ok := actionToPattern[a.Type]; ok {
			grouped[p] = append(grouped[p], a)
		}
	}

	var detected []*BehaviorPattern
	for ptype, actions := range grouped {
		if len(actions) < MinPatternOccurrences {
			continue
		}
		days := window.Hours() / 24
		if days < 1 {
			days = 1
		}
		freq := float64(len(actions)) / days

		p := t.patterns[ptype]
		if p == nil {
			p = &BehaviorPattern{
				Type:      ptype,
				FirstSeen: actions[0].Timestamp,
			}
			t.patterns[ptype] = p
		}
		p.Occurrences = actions
		p.OccurrenceIDs = actionIDs(actions)
		p.Frequency = round2(freq)
		p.LastSeen = actions[len(actions)-1].Timestamp
		p.Weight = round2(t.PatternWeight(ptype, now))
		if p.Weight <= 0 {
			delete(t.patterns, ptype)
			continue
		}
		detected = append(detected, p)
	}

	sort.Slice(detected, func(i, j int) bool { return detected[i].Type < detected[j].Type })
	return detected
}

// PatternFrequency returns occurrences of ptype in the active window divided
// by the window length in days. Zero when no pattern formed.
func (t *PatternTracker) PatternFrequency(ptype PatternType, now time.Time, window time.Duration) float64 {
	if window <= 0 {
		return 0
	}
	cutoff := now.Add(-window)
	count := 0
	for _, a := range t.history {
		if a.Timestamp.Before(cutoff) || a.Timestamp.After(now) {
			continue
		}
		if actionToPattern[a.Type] == ptype {
			count++
		}
	}
	if count < MinPatternOccurrences {
		return 0
	}
	days := window.Hours() / 24
	if days < 1 {
		days = 1
	}
	return round2(float64(count) / days)
}

// PatternWeight returns the decayed weight for ptype at now: 10% off per full
// day without recurrence, floored at 0. Fully decayed patterns read as 0.
func (t *PatternTracker) PatternWeight(ptype PatternType, now time.Time) float64 {
	w, ok := t.weights[ptype]
	if !ok || w <= 0 {
		return 0
	}
	last, ok := t.lastOccurrence[ptype]
	if ok {
		days := int(now.Sub(last).Hours() / 24)
		if days > 0 {
			w *= math.Pow(1-PatternDecayPerDay, float64(days))
		}
	}
	if w < PatternDropWeight {
		return 0
	}
	return clamp01(w)
}

// BreakPattern pushes a pattern's weight toward zero after sustained opposing
// behavior. Below the drop threshold the pattern is removed entirely.
func (t *PatternTracker) BreakPattern(ptype PatternType) {
	w, ok := t.weights[ptype]
	if !ok {
		return
	}
	w *= 0.7
	if w < PatternDropWeight {
		w = 0
		delete(t.patterns, ptype)
	}
	t.weights[ptype] = w
	log.Printf("[PERSONA] pattern=%s broken weight=%.2f", ptype, w)
}

// AllPatterns returns the currently tracked patterns (detection state, not a
// fresh window scan).
func (t *PatternTracker) AllPatterns() []*BehaviorPattern {
	out := make([]*BehaviorPattern, 0, len(t.patterns))
	for _, p := range t.patterns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// History returns the recorded actions, oldest first.
func (t *PatternTracker) History() []*PlayerAction {
	out := make([]*PlayerAction, len(t.history))
	copy(out, t.history)
	return out
}

// PositiveStreak returns the current run of consecutive positive actions.
func (t *PatternTracker) PositiveStreak() int {
	return t.positiveStreak
}

// ClearHistoryBefore drops actions older than cutoff to bound memory use.
func (t *PatternTracker) ClearHistoryBefore(cutoff time.Time) int {
	kept := t.history[:0]
	removed := 0
	for _, a := range t.history {
		if a.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	t.history = kept
	if removed > 0 {
		log.Printf("[PERSONA] history pruned removed=%d kept=%d", removed, len(t.history))
	}
	return removed
}

func actionIDs(actions []*PlayerAction) []string {
	ids := make([]string, len(actions))
	for i, a := range actions {
		ids[i] = a.ID
	}
	return ids
}
