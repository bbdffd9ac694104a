package persona

import (
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotVersion is bumped on any breaking change to the document shape.
const SnapshotVersion = "1.0"

// requiredSnapshotFields must all be present in a persisted document.
var requiredSnapshotFields = []string{
	"version",
	"timestamp",
	"trust_score",
	"resentment_score",
	"emotional_safety",
	"parenting_unity",
	"patterns",
	"emotional_memories",
	"apology_effectiveness",
	"action_history",
}

// Snapshot is the full persisted state of one relationship. Everything a
// manager needs to resume exactly where it left off, floats rounded to two
// decimals at capture.
type Snapshot struct {
	Version string    `json:"version"`
	SavedAt time.Time `json:"timestamp"`

	TrustScore      float64 `json:"trust_score"`
	ResentmentScore float64 `json:"resentment_score"`
	EmotionalSafety float64 `json:"emotional_safety"`
	ParentingUnity  float64 `json:"parenting_unity"`

	ActionHistory []*PlayerAction    `json:"action_history"`
	Patterns      []*BehaviorPattern `json:"patterns"`
	Memories      []*EmotionalMemory `json:"emotional_memories"`

	PatternWeights   map[PatternType]float64   `json:"pattern_weights,omitempty"`
	PatternLastSeen  map[PatternType]time.Time `json:"pattern_last_seen,omitempty"`
	OpposingStreaks  map[PatternType]int       `json:"opposing_streaks,omitempty"`
	PositiveStreak   int                       `json:"positive_streak"`
	InitiationStreak int                       `json:"initiation_streak"`
	LastPositive     map[ActionType]time.Time  `json:"last_positive,omitempty"`
	ResentmentMark   time.Time                 `json:"resentment_mark,omitempty"`

	// Apologies is keyed by the apologized-for behavior type.
	Apologies map[ActionType]*ApologyRecord `json:"apology_effectiveness"`

	EngagementLength float64   `json:"engagement_length"`
	EngagementInit   float64   `json:"engagement_initiation"`
	EngagementCoop   float64   `json:"engagement_cooperation"`
	EngagementPrimed bool      `json:"engagement_primed"`
	LastProcessed    time.Time `json:"last_processed,omitempty"`
}

// Snapshot captures the manager's state at now. The caller gets an
// independent document, safe to serialize after the lock is released.
func (m *PersonalityStateManager) Snapshot(now time.Time) *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.memory.ApplyTemporalDecay(now)

	weights := make(map[PatternType]float64, len(m.tracker.weights))
	for p := range m.tracker.weights {
		weights[p] = round2(m.tracker.weights[p])
	}
	lastSeen := make(map[PatternType]time.Time, len(m.tracker.lastOccurrence))
	for p, ts := range m.tracker.lastOccurrence {
		lastSeen[p] = ts
	}
	streaks := make(map[PatternType]int, len(m.tracker.opposingStreak))
	for p, n := range m.tracker.opposingStreak {
		streaks[p] = n
	}
	lastPositive := make(map[ActionType]time.Time, len(m.engine.lastPositive))
	for k, ts := range m.engine.lastPositive {
		lastPositive[k] = ts
	}
	apologies := make(map[ActionType]*ApologyRecord, len(m.engine.apologies))
	for behavior, rec := range m.engine.apologies {
		cp := *rec
		apologies[behavior] = &cp
	}

	return &Snapshot{
		Version:          SnapshotVersion,
		SavedAt:          now,
		TrustScore:       round2(m.engine.trust),
		ResentmentScore:  round2(m.engine.resentment),
		EmotionalSafety:  round2(m.safety),
		ParentingUnity:   round2(m.unity),
		ActionHistory:    m.tracker.History(),
		Patterns:         m.tracker.AllPatterns(),
		Memories:         append([]*EmotionalMemory(nil), m.memory.All()...),
		PatternWeights:   weights,
		PatternLastSeen:  lastSeen,
		OpposingStreaks:  streaks,
		PositiveStreak:   m.tracker.positiveStreak,
		InitiationStreak: m.initiationStreak,
		LastPositive:     lastPositive,
		ResentmentMark:   m.engine.resentmentMark,
		Apologies:        apologies,
		EngagementLength: round2(m.ramp.length),
		EngagementInit:   round2(m.ramp.initiation),
		EngagementCoop:   round2(m.ramp.cooperation),
		EngagementPrimed: m.ramp.primed,
		LastProcessed:    m.lastProcessed,
	}
}

// RestoreSnapshot replaces the manager's state with a validated snapshot.
func (m *PersonalityStateManager) RestoreSnapshot(s *Snapshot) error {
	if s == nil {
		return ErrCorruptSnapshot
	}
	if err := s.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tracker := NewPatternTracker()
	for _, a := range s.ActionHistory {
		tracker.history = append(tracker.history, a)
	}
	byID := make(map[string]*PlayerAction, len(tracker.history))
	for _, a := range tracker.history {
		byID[a.ID] = a
	}
	for _, p := range s.Patterns {
		// Occurrences are persisted as IDs; rebind them to the history.
		p.Occurrences = p.Occurrences[:0]
		for _, id := range p.OccurrenceIDs {
			if a, ok := byID[id]; ok {
				p.Occurrences = append(p.Occurrences, a)
			}
		}
		tracker.patterns[p.Type] = p
	}
	if s.PatternWeights != nil {
		tracker.weights = s.PatternWeights
	}
	if s.PatternLastSeen != nil {
		tracker.lastOccurrence = s.PatternLastSeen
	}
	if s.OpposingStreaks != nil {
		tracker.opposingStreak = s.OpposingStreaks
	}
	tracker.positiveStreak = s.PositiveStreak
	m.tracker = tracker

	m.memory = NewEmotionalMemorySystem()
	m.memory.Restore(append([]*EmotionalMemory(nil), s.Memories...))

	apologies := make(map[ActionType]*ApologyRecord, len(s.Apologies))
	for behavior, rec := range s.Apologies {
		cp := *rec
		apologies[behavior] = &cp
	}
	m.engine = NewTrustDynamicsEngine()
	m.engine.restore(s.TrustScore, s.ResentmentScore, s.ResentmentMark, s.LastPositive, apologies)

	m.safety = round2(clamp(s.EmotionalSafety, 0, 100))
	m.unity = round2(clamp(s.ParentingUnity, 0, 100))
	m.initiationStreak = s.InitiationStreak
	m.ramp = engagement{
		length:      s.EngagementLength,
		initiation:  s.EngagementInit,
		cooperation: s.EngagementCoop,
		primed:      s.EngagementPrimed,
	}
	m.lastProcessed = s.LastProcessed
	return nil
}

// DecodeSnapshot parses raw JSON into a Snapshot, checking that every
// required top-level field is present before trusting the values.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	for _, f := range requiredSnapshotFields {
		if _, ok := fields[f]; !ok {
			return nil, fmt.Errorf("%w: missing field %q", ErrCorruptSnapshot, f)
		}
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate range-checks every numeric field. Any violation is corruption.
func (s *Snapshot) Validate() error {
	if s.Version != SnapshotVersion {
		return fmt.Errorf("%w: unsupported version %q", ErrCorruptSnapshot, s.Version)
	}
	if !validFloat(s.TrustScore, s.ResentmentScore, s.EmotionalSafety, s.ParentingUnity) {
		return fmt.Errorf("%w: non-finite score", ErrCorruptSnapshot)
	}
	for name, v := range map[string]float64{
		"trust_score":      s.TrustScore,
		"resentment_score": s.ResentmentScore,
		"emotional_safety": s.EmotionalSafety,
		"parenting_unity":  s.ParentingUnity,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%w: %s=%.2f out of range", ErrCorruptSnapshot, name, v)
		}
	}
	for _, p := range s.Patterns {
		if p == nil || !validFloat(p.Weight, p.Frequency) || p.Weight < 0 || p.Weight > 1 || p.Frequency < 0 {
			return fmt.Errorf("%w: invalid pattern entry", ErrCorruptSnapshot)
		}
	}
	for p, w := range s.PatternWeights {
		if !validFloat(w) || w < 0 || w > 1 {
			return fmt.Errorf("%w: pattern %s weight=%.2f out of range", ErrCorruptSnapshot, p, w)
		}
	}
	for _, a := range s.ActionHistory {
		if a == nil || !validFloat(a.Valence) || a.Valence < -1 || a.Valence > 1 {
			return fmt.Errorf("%w: invalid action in history", ErrCorruptSnapshot)
		}
	}
	for _, mem := range s.Memories {
		if mem == nil || !validFloat(mem.Impact.Valence, mem.Impact.Intensity, mem.Weight) {
			return fmt.Errorf("%w: invalid memory entry", ErrCorruptSnapshot)
		}
		if mem.Impact.Valence < -1 || mem.Impact.Valence > 1 || mem.Impact.Intensity < 0 || mem.Impact.Intensity > 1 {
			return fmt.Errorf("%w: memory values out of range", ErrCorruptSnapshot)
		}
	}
	for behavior, rec := range s.Apologies {
		if rec == nil || !validFloat(rec.Effectiveness) || rec.Effectiveness < ApologyEffectFloor || rec.Effectiveness > 1 {
			return fmt.Errorf("%w: invalid apology record for %s", ErrCorruptSnapshot, behavior)
		}
	}
	return nil
}

// DefaultSnapshot is the safe-start document used when loading fails.
func DefaultSnapshot(now time.Time) *Snapshot {
	return &Snapshot{
		Version:         SnapshotVersion,
		SavedAt:         now,
		TrustScore:      DefaultTrust,
		ResentmentScore: DefaultResentment,
		EmotionalSafety: DefaultSafety,
		ParentingUnity:  DefaultUnity,
	}
}
