package persona

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Fresh-relationship defaults: functional but carrying history.
const (
	DefaultTrust      = 60.0
	DefaultResentment = 10.0
	DefaultSafety     = 50.0
	DefaultUnity      = 70.0
)

// Secondary metric tuning.
const (
	SafetyAcknowledged = 3.0 // acknowledgment outweighs dismissal 3:1
	SafetyDismissed    = 1.0
	SafetyBuffer       = 70.0 // above this, stress stops reaching trust fully
	SafetyAttenuation  = 0.7

	UnitySupportGain       = 2.0
	UnityContradictionLoss = 3.0
	UnityConsistencyBonus  = 0.5

	ConflictEngageRelief = 1.0
	ConflictAvoidRelief  = 0.4 // facing it releases more pressure than dodging it

	RecoveryStep          = 0.15 // max upward move per interaction while re-engaging
	InitiationStreakNeed  = 3
	InitiationStreakBoost = 0.15

	SustainedPositiveRun = 3
	MemoryFlagUnreliable = "unreliable"
)

// actionImpact declares how an action registers emotionally.
type actionImpact struct {
	positive EmotionType
	negative EmotionType
	category ContextCategory
}

var actionImpacts = map[ActionType]actionImpact{
	ActionPublicSupport:       {EmotionJoy, EmotionDisappointment, CategorySupport},
	ActionPublicContradiction: {EmotionContentment, EmotionAnger, CategorySupport},
	ActionPrivateCorrection:   {EmotionTrust, EmotionFrustration, CategorySupport},
	ActionSupportiveAutonomy:  {EmotionContentment, EmotionFrustration, CategorySupport},
	ActionConflictEngage:      {EmotionTrust, EmotionAnxiety, CategoryConflict},
	ActionConflictAvoid:       {EmotionContentment, EmotionDisappointment, CategoryConflict},
	ActionControlTaking:       {EmotionContentment, EmotionFrustration, CategoryConflict},
	ActionApology:             {EmotionTrust, EmotionSadness, CategoryConflict},
	ActionParentingPresent:    {EmotionJoy, EmotionSadness, CategoryParenting},
	ActionParentingAbsent:     {EmotionContentment, EmotionDisappointment, CategoryParenting},
	ActionEmpathyShown:        {EmotionTrust, EmotionSadness, CategoryIntimacy},
	ActionStressAcknowledged:  {EmotionContentment, EmotionSadness, CategoryIntimacy},
	ActionStressDismissed:     {EmotionContentment, EmotionFrustration, CategoryIntimacy},
	ActionInitiationResponse:  {EmotionJoy, EmotionSadness, CategoryIntimacy},
}

// engagement is the slow-recovering side of the response modifiers. Values
// fall instantly but climb back at most RecoveryStep per interaction.
type engagement struct {
	length      float64
	initiation  float64
	cooperation float64
	primed      bool
}

// PersonalityStateManager coordinates pattern tracking, emotional memory and
// trust dynamics into one consistent state. All mutation goes through the
// mutex; reads hand out copies.
type PersonalityStateManager struct {
	mu sync.Mutex

	tracker *PatternTracker
	memory  *EmotionalMemorySystem
	engine  *TrustDynamicsEngine

	safety float64
	unity  float64

	initiationStreak int
	ramp             engagement
	lastProcessed    time.Time
}

// NewPersonalityStateManager returns a manager at the documented defaults.
func NewPersonalityStateManager() *PersonalityStateManager {
	return &PersonalityStateManager{
		tracker: NewPatternTracker(),
		memory:  NewEmotionalMemorySystem(),
		engine:  NewTrustDynamicsEngine(),
		safety:  DefaultSafety,
		unity:   DefaultUnity,
	}
}

// ProcessAction runs one action through the full pipeline and returns the
// resulting state. Invalid numbers discard the whole update and keep the
// prior state.
func (m *PersonalityStateManager) ProcessAction(a *PlayerAction) (*PersonalityState, error) {
	if a == nil {
		return nil, ErrNilAction
	}
	if !validFloat(a.Valence) {
		log.Printf("[PERSONA] action rejected type=%s reason=invalid_number", a.Type)
		return nil, ErrInvalidAction
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := a.Timestamp
	if now.IsZero() {
		now = time.Now()
		a.Timestamp = now
	}
	a.Valence = clamp(a.Valence, -1, 1)

	m.tracker.RecordAction(a)
	active := m.activePatternWeights(now)

	// Resentment decay only runs while interaction stays positive.
	m.engine.DecayResentment(now, m.tracker.PositiveStreak() >= SustainedPositiveRun)

	memFlag := ""
	switch a.Type {
	case ActionApology:
		m.engine.ProcessApology(a, now)
	case ActionStressAcknowledged:
		m.safety = round2(clamp(m.safety+SafetyAcknowledged, 0, 100))
		m.engine.UpdateTrust(a, now, 1)
	case ActionStressDismissed:
		m.safety = round2(clamp(m.safety-SafetyDismissed, 0, 100))
		m.engine.UpdateTrust(a, now, m.stressAttenuation())
		m.engine.AddResentment(false)
	case ActionConflictEngage:
		m.engine.UpdateTrust(a, now, m.stressAttenuation())
		m.engine.ReduceResentment(ConflictEngageRelief)
	case ActionConflictAvoid:
		m.engine.UpdateTrust(a, now, m.stressAttenuation())
		if _, patterned := active[PatternRepeatedAvoidance]; patterned {
			m.engine.AddResentment(true)
			memFlag = MemoryFlagUnreliable
		} else {
			m.engine.ReduceResentment(ConflictAvoidRelief)
		}
	default:
		m.engine.UpdateTrust(a, now, m.stressAttenuation())
		if p, ok := actionToPattern[a.Type]; ok && IsNegativePattern(p) && a.Valence < 0 {
			_, patterned := active[p]
			m.engine.AddResentment(patterned)
		}
	}

	m.updateUnity(a, now)
	m.updateInitiationStreak(a)

	// A slip that was apologized for wears the apology down when it recurs.
	if a.Valence < 0 && a.Type != ActionApology {
		m.engine.RecordRecurrence(a.Type, now)
	}

	m.storeImpact(a, now, memFlag)
	m.stepRamp(now)
	m.lastProcessed = now

	state := m.stateLocked(now)
	log.Printf("[PERSONA] action=%s context=%s valence=%.2f trust=%.2f resentment=%.2f safety=%.2f unity=%.2f",
		a.Type, a.Context, a.Valence, state.TrustScore, state.ResentmentScore, state.EmotionalSafety, state.ParentingUnity)
	return state, nil
}

// CurrentState returns a copy of the derived state at now.
func (m *PersonalityStateManager) CurrentState(now time.Time) *PersonalityState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked(now)
}

// Modifiers returns the response modifiers for now. Pure read: the recovery
// ramp only advances when an action is processed, so repeated reads between
// actions report the same values.
func (m *PersonalityStateManager) Modifiers(now time.Time) *ResponseModifiers {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.modifiersLocked(now)
}

// Memory exposes the emotional memory store for recall queries.
func (m *PersonalityStateManager) Memory() *EmotionalMemorySystem { return m.memory }

// Patterns exposes the pattern tracker for window queries.
func (m *PersonalityStateManager) Patterns() *PatternTracker { return m.tracker }

// TrustEngine exposes the trust dynamics engine.
func (m *PersonalityStateManager) TrustEngine() *TrustDynamicsEngine { return m.engine }

func (m *PersonalityStateManager) stressAttenuation() float64 {
	if m.safety > SafetyBuffer {
		return SafetyAttenuation
	}
	return 1
}

// activePatternWeights returns the currently detected patterns with their
// decayed weights.
func (m *PersonalityStateManager) activePatternWeights(now time.Time) map[PatternType]float64 {
	out := make(map[PatternType]float64)
	for _, p := range m.tracker.DetectPatterns(now, DefaultPatternWindow) {
		out[p.Type] = p.Weight
	}
	return out
}

// updateUnity moves parenting unity on public parenting-facing actions only.
// Private corrections never touch it.
func (m *PersonalityStateManager) updateUnity(a *PlayerAction, now time.Time) {
	if a.Context != ContextPublic {
		return
	}
	switch a.Type {
	case ActionPublicSupport:
		m.unity = round2(clamp(m.unity+UnitySupportGain, 0, 100))
	case ActionPublicContradiction:
		m.unity = round2(clamp(m.unity-UnityContradictionLoss, 0, 100))
	case ActionParentingPresent:
		m.unity = round2(clamp(m.unity+UnitySupportGain, 0, 100))
		// Steady involvement counts for more than sporadic intensity.
		if m.parentingConsistent(now) {
			m.unity = round2(clamp(m.unity+UnityConsistencyBonus, 0, 100))
		}
	case ActionParentingAbsent:
		m.unity = round2(clamp(m.unity-UnitySupportGain, 0, 100))
	}
}

// parentingConsistent reports whether parenting presence over the last week
// was spread across days rather than bunched: at least three distinct days
// with low variance in the per-day counts.
func (m *PersonalityStateManager) parentingConsistent(now time.Time) bool {
	cutoff := now.Add(-DefaultPatternWindow)
	perDay := make(map[string]int)
	for _, a := range m.tracker.History() {
		if a.Type != ActionParentingPresent || a.Timestamp.Before(cutoff) {
			continue
		}
		perDay[a.Timestamp.Format("2006-01-02")]++
	}
	if len(perDay) < 3 {
		return false
	}
	var sum float64
	for _, c := range perDay {
		sum += float64(c)
	}
	mean := sum / float64(len(perDay))
	var variance float64
	for _, c := range perDay {
		d := float64(c) - mean
		variance += d * d
	}
	variance /= float64(len(perDay))
	return variance <= 1.0
}

func (m *PersonalityStateManager) updateInitiationStreak(a *PlayerAction) {
	if a.Type != ActionInitiationResponse {
		return
	}
	if a.Valence > PositiveValenceFloor {
		m.initiationStreak++
	} else {
		m.initiationStreak = 0
	}
}

// storeImpact translates the action into an emotional memory entry.
func (m *PersonalityStateManager) storeImpact(a *PlayerAction, now time.Time, flag string) {
	impact, ok := actionImpacts[a.Type]
	if !ok {
		return
	}
	emotion := impact.positive
	if a.Valence < 0 {
		emotion = impact.negative
	}
	intensity := a.Valence
	if intensity < 0 {
		intensity = -intensity
	}
	var assoc []PatternType
	if p, ok := actionToPattern[a.Type]; ok {
		assoc = []PatternType{p}
	}
	m.memory.StoreMemory(EmotionalImpact{
		PrimaryEmotion: emotion,
		Intensity:      intensity,
		Valence:        a.Valence,
		Category:       impact.category,
	}, a.Context, now, assoc, flag)
}

func (m *PersonalityStateManager) stateLocked(now time.Time) *PersonalityState {
	level := m.engine.WithdrawalLevel()
	patterns := m.tracker.DetectPatterns(now, DefaultPatternWindow)
	types := make([]PatternType, len(patterns))
	for i, p := range patterns {
		types[i] = p.Type
	}
	return &PersonalityState{
		TrustScore:         m.engine.Trust(),
		ResentmentScore:    m.engine.Resentment(),
		EmotionalSafety:    m.safety,
		ParentingUnity:     m.unity,
		IsWithdrawn:        level != WithdrawalNone,
		WithdrawalSeverity: level,
		RecentPatterns:     types,
		DominantEmotions:   m.memory.DominantEmotions(now, 3),
		Tone:               toneFor(m.engine.Trust(), m.engine.Resentment()),
	}
}

// engagementTargets computes the length/initiation/cooperation values the
// current state calls for, before the recovery ramp is applied.
func (m *PersonalityStateManager) engagementTargets(now time.Time) (length, initiation, cooperation float64) {
	length = lengthForWithdrawal(m.engine.WithdrawalLevel())
	initiation = initiationForTrust(m.engine.Trust())
	if m.initiationStreak >= InitiationStreakNeed {
		initiation = clamp01(initiation + InitiationStreakBoost)
	}
	cooperation = cooperationForResentment(m.engine.Resentment())
	if freq := m.tracker.PatternFrequency(PatternControlTaking, now, DefaultPatternWindow); freq > 0 &&
		m.tracker.PatternWeight(PatternControlTaking, now) > 0 {
		// Sustained control-taking erodes cooperation in proportion to how
		// often it happens.
		cooperation *= 1 - clamp01(freq)
	}
	return length, initiation, cooperation
}

// stepRamp advances the recovery ramp for one processed interaction:
// reductions land at once, climbs move at most RecoveryStep.
func (m *PersonalityStateManager) stepRamp(now time.Time) {
	length, initiation, cooperation := m.engagementTargets(now)
	if !m.ramp.primed {
		m.ramp = engagement{length: length, initiation: initiation, cooperation: cooperation, primed: true}
		return
	}
	m.ramp.length = rampToward(m.ramp.length, length)
	m.ramp.initiation = rampToward(m.ramp.initiation, initiation)
	m.ramp.cooperation = rampToward(m.ramp.cooperation, cooperation)
}

func (m *PersonalityStateManager) modifiersLocked(now time.Time) *ResponseModifiers {
	trust := m.engine.Trust()
	resentment := m.engine.Resentment()

	length, initiation, cooperation := m.engagementTargets(now)
	if m.ramp.primed {
		length = m.ramp.length
		initiation = m.ramp.initiation
		cooperation = m.ramp.cooperation
	}

	tone := toneFor(trust, resentment)
	vulnerability := clamp01(0.5*(trust/100) + 0.5*(m.safety/100))
	if limit := vulnerabilityCap(tone); vulnerability > limit {
		vulnerability = limit
	}

	return &ResponseModifiers{
		ResponseLengthMultiplier: round2(clamp(length, 0.3, 1.0)),
		InitiationProbability:    round2(clamp01(initiation)),
		CooperationLevel:         round2(clamp01(cooperation)),
		EmotionalVulnerability:   round2(vulnerability),
		InterpretationBias:       round2(interpretationBias(trust, resentment)),
	}
}

func rampToward(current, target float64) float64 {
	if target <= current {
		return target
	}
	if target-current > RecoveryStep {
		return current + RecoveryStep
	}
	return target
}

func lengthForWithdrawal(level WithdrawalLevel) float64 {
	switch level {
	case WithdrawalMild:
		return 0.7
	case WithdrawalModerate:
		return 0.5
	case WithdrawalSevere:
		return 0.3
	default:
		return 1.0
	}
}

func initiationForTrust(trust float64) float64 {
	switch {
	case trust > HighTrustThreshold:
		return 1.0
	case trust > WithdrawalMildFloor:
		return (trust - WithdrawalMildFloor) / 30
	default:
		return 0.1
	}
}

func cooperationForResentment(resentment float64) float64 {
	switch {
	case resentment < 30:
		return 1.0
	case resentment < 50:
		return 0.7
	case resentment < 70:
		return 0.4
	default:
		return 0.2
	}
}

// interpretationBias leans positive with earned trust and negative under
// resentment, resentment winning when both apply.
func interpretationBias(trust, resentment float64) float64 {
	if resentment > HighResentmentCutoff {
		return clamp(-(resentment-HighResentmentCutoff)/50, -1, 0)
	}
	if trust > HighTrustThreshold {
		return clamp((trust-HighTrustThreshold)/30, 0, 1)
	}
	return 0
}
