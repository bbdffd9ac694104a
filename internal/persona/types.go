package persona

import (
	"math"
	"time"
)

// ActionType classifies a single player action. The story layer tags
// scenario choices with these; free-form input is mapped by its analyzer.
type ActionType string

const (
	ActionPublicSupport       ActionType = "public_support"
	ActionPublicContradiction ActionType = "public_contradiction"
	ActionPrivateCorrection   ActionType = "private_correction"
	ActionConflictEngage      ActionType = "conflict_engage"
	ActionConflictAvoid       ActionType = "conflict_avoid"
	ActionControlTaking       ActionType = "control_taking"
	ActionSupportiveAutonomy  ActionType = "supportive_autonomy"
	ActionParentingPresent    ActionType = "parenting_present"
	ActionParentingAbsent     ActionType = "parenting_absent"
	ActionEmpathyShown        ActionType = "empathy_shown"
	ActionStressAcknowledged  ActionType = "stress_acknowledged"
	ActionStressDismissed     ActionType = "stress_dismissed"
	ActionApology             ActionType = "apology"
	ActionInitiationResponse  ActionType = "initiation_response"
)

// ContextType is where an action happened: in front of the child or not.
type ContextType string

const (
	ContextPublic  ContextType = "public"
	ContextPrivate ContextType = "private"
)

// ContextCategory groups emotional memories by the sphere of life they touch.
type ContextCategory string

const (
	CategorySupport   ContextCategory = "support"
	CategoryConflict  ContextCategory = "conflict"
	CategoryParenting ContextCategory = "parenting"
	CategoryIntimacy  ContextCategory = "intimacy"
)

// EmotionType is the primary feeling attached to an emotional memory.
type EmotionType string

const (
	EmotionJoy            EmotionType = "joy"
	EmotionTrust          EmotionType = "trust"
	EmotionContentment    EmotionType = "contentment"
	EmotionSadness        EmotionType = "sadness"
	EmotionAnger          EmotionType = "anger"
	EmotionFrustration    EmotionType = "frustration"
	EmotionResentment     EmotionType = "resentment"
	EmotionAnxiety        EmotionType = "anxiety"
	EmotionDisappointment EmotionType = "disappointment"
)

// PatternType is a recurring behavior signature detected over a sliding window.
type PatternType string

const (
	PatternConsistentPresence  PatternType = "consistent_presence"
	PatternSporadicInvolvement PatternType = "sporadic_involvement"
	PatternRepeatedAvoidance   PatternType = "repeated_avoidance"
	PatternControlTaking       PatternType = "control_taking"
	PatternEmpatheticSupport   PatternType = "empathetic_support"
	PatternPublicUnity         PatternType = "public_unity"
	PatternPublicUndermining   PatternType = "public_undermining"
)

// negativePatterns are the signatures that accumulate resentment and can be
// broken by sustained opposing behavior.
var negativePatterns = []PatternType{
	PatternSporadicInvolvement,
	PatternRepeatedAvoidance,
	PatternControlTaking,
	PatternPublicUndermining,
}

// IsNegativePattern reports whether p erodes the relationship when repeated.
func IsNegativePattern(p PatternType) bool {
	for _, n := range negativePatterns {
		if n == p {
			return true
		}
	}
	return false
}

// ApologyType reflects how an apology was delivered, which scales its effect.
type ApologyType string

const (
	ApologyDefensive      ApologyType = "defensive"
	ApologyGeneric        ApologyType = "generic"
	ApologyGenuine        ApologyType = "genuine"
	ApologyActionOriented ApologyType = "action_oriented"
)

// WithdrawalLevel grades how far the partner has pulled back.
type WithdrawalLevel string

const (
	WithdrawalNone     WithdrawalLevel = "none"
	WithdrawalMild     WithdrawalLevel = "mild"
	WithdrawalModerate WithdrawalLevel = "moderate"
	WithdrawalSevere   WithdrawalLevel = "severe"
)

// PlayerAction is one discrete thing the player did. Immutable once recorded;
// the tracker owns the history and patterns hold references, not copies.
type PlayerAction struct {
	ID        string            `json:"id"`
	Type      ActionType        `json:"action_type"`
	Context   ContextType       `json:"context"`
	Valence   float64           `json:"valence"` // -1..1
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	// Apology actions only: how it was phrased and what it was for.
	Apology        ApologyType `json:"apology_type,omitempty"`
	TargetBehavior ActionType  `json:"target_behavior,omitempty"`
}

// BehaviorPattern is a detected recurrence of one action signature.
type BehaviorPattern struct {
	Type        PatternType     `json:"pattern_type"`
	Occurrences []*PlayerAction `json:"-"`
	// OccurrenceIDs carries the action references through persistence.
	OccurrenceIDs []string  `json:"occurrence_ids"`
	Frequency     float64   `json:"frequency"` // actions per day in window
	Weight        float64   `json:"weight"`    // 0..1
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
}

// EmotionalImpact is how an interaction felt. It never carries dialogue text.
type EmotionalImpact struct {
	PrimaryEmotion EmotionType     `json:"primary_emotion"`
	Intensity      float64         `json:"intensity"` // 0..1
	Valence        float64         `json:"valence"`   // -1..1
	Category       ContextCategory `json:"context_category"`
}

// EmotionalMemory stores the impact of one interaction with recency weighting.
type EmotionalMemory struct {
	ID                 string          `json:"id"`
	Impact             EmotionalImpact `json:"emotional_impact"`
	Timestamp          time.Time       `json:"timestamp"`
	Context            ContextType     `json:"context"`
	Weight             float64         `json:"weight"` // 0..1, recomputed from age
	AssociatedPatterns []PatternType   `json:"associated_patterns,omitempty"`
	// Flag marks special memories, e.g. "unreliable" after repeated avoidance.
	Flag string `json:"flag,omitempty"`
}

// ApologyRecord tracks apology effectiveness for one behavior type.
type ApologyRecord struct {
	Behavior        ActionType  `json:"behavior_type"`
	Effectiveness   float64     `json:"effectiveness"` // 0.1..1.0 stored
	RecurrenceCount int         `json:"recurrence_count"`
	LastApologyAt   time.Time   `json:"last_apology_at"`
	LastApologyType ApologyType `json:"last_apology_type"`
	LastRecurrence  *time.Time  `json:"last_recurrence,omitempty"`
}

// PersonalityState is the consolidated view handed to the dialogue layer.
// Derived on every action; never the source of truth.
type PersonalityState struct {
	TrustScore         float64         `json:"trust_score"`      // 0..100
	ResentmentScore    float64         `json:"resentment_score"` // 0..100
	EmotionalSafety    float64         `json:"emotional_safety"` // 0..100
	ParentingUnity     float64         `json:"parenting_unity"`  // 0..100
	IsWithdrawn        bool            `json:"is_withdrawn"`
	WithdrawalSeverity WithdrawalLevel `json:"withdrawal_severity"`
	RecentPatterns     []PatternType   `json:"recent_patterns"`
	DominantEmotions   []EmotionType   `json:"dominant_emotions"`
	Tone               ToneStrategy    `json:"tone"`
}

// ResponseModifiers shape the dialogue layer's output. Valid until the next
// action is processed.
type ResponseModifiers struct {
	ResponseLengthMultiplier float64 `json:"response_length_multiplier"` // 0.3..1.0
	InitiationProbability    float64 `json:"initiation_probability"`     // 0..1
	CooperationLevel         float64 `json:"cooperation_level"`          // 0..1
	EmotionalVulnerability   float64 `json:"emotional_vulnerability"`    // 0..1
	InterpretationBias       float64 `json:"interpretation_bias"`        // -1..1
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// round2 rounds to 2 decimal places. Applied before any value is stored.
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// validFloat rejects NaN and Infinity. Updates carrying invalid numbers are
// discarded wholesale, keeping the prior state.
func validFloat(xs ...float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
