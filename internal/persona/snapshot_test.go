package persona

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func populatedManager(t *testing.T, base time.Time) *PersonalityStateManager {
	t.Helper()
	m := NewPersonalityStateManager()

	a := testAction(ActionPublicSupport, 0.8, base)
	a.Context = ContextPublic
	_, err := m.ProcessAction(a)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		_, err = m.ProcessAction(testAction(ActionControlTaking, -0.6, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	ap := testAction(ActionApology, 0.5, base.Add(4*time.Hour))
	ap.Apology = ApologyGenuine
	ap.TargetBehavior = ActionControlTaking
	_, err = m.ProcessAction(ap)
	require.NoError(t, err)

	return m
}

func TestSnapshotRoundTrip(t *testing.T) {
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	m := populatedManager(t, base)
	now := base.Add(5 * time.Hour)

	snap := m.Snapshot(now)
	data, err := json.MarshalIndent(snap, "", "  ")
	require.NoError(t, err)

	decoded, err := DecodeSnapshot(data)
	require.NoError(t, err)

	restored := NewPersonalityStateManager()
	require.NoError(t, restored.RestoreSnapshot(decoded))

	before := m.CurrentState(now)
	after := restored.CurrentState(now)
	assert.InDelta(t, before.TrustScore, after.TrustScore, 0.01)
	assert.InDelta(t, before.ResentmentScore, after.ResentmentScore, 0.01)
	assert.InDelta(t, before.EmotionalSafety, after.EmotionalSafety, 0.01)
	assert.InDelta(t, before.ParentingUnity, after.ParentingUnity, 0.01)
	assert.Equal(t, before.WithdrawalSeverity, after.WithdrawalSeverity)
	assert.Equal(t, before.RecentPatterns, after.RecentPatterns)

	// Counts survive exactly.
	assert.Equal(t, m.Patterns().History(), restored.Patterns().History())
	assert.Equal(t, m.Memory().Count(), restored.Memory().Count())
	assert.Equal(t,
		m.TrustEngine().ApologyEffectiveness(ActionControlTaking, now),
		restored.TrustEngine().ApologyEffectiveness(ActionControlTaking, now))
}

func TestDecodeSnapshotMissingFieldIsCorrupt(t *testing.T) {
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	snap := populatedManager(t, base).Snapshot(base.Add(5 * time.Hour))
	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &fields))
	delete(fields, "trust_score")
	trimmed, err := json.Marshal(fields)
	require.NoError(t, err)

	_, err = DecodeSnapshot(trimmed)
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
}

func TestDecodeSnapshotMalformedJSON(t *testing.T) {
	_, err := DecodeSnapshot([]byte(`{"version": "1.0"`))
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
}

func TestValidateRejectsOutOfRangeScores(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	s := DefaultSnapshot(now)
	require.NoError(t, s.Validate())

	s.TrustScore = 150
	assert.ErrorIs(t, s.Validate(), ErrCorruptSnapshot)

	s = DefaultSnapshot(now)
	s.ResentmentScore = -5
	assert.ErrorIs(t, s.Validate(), ErrCorruptSnapshot)

	s = DefaultSnapshot(now)
	s.Version = "0.9"
	assert.ErrorIs(t, s.Validate(), ErrCorruptSnapshot)

	s = DefaultSnapshot(now)
	s.PatternWeights = map[PatternType]float64{PatternControlTaking: 1.5}
	assert.ErrorIs(t, s.Validate(), ErrCorruptSnapshot)
}

func TestRestoreRejectsCorruptSnapshot(t *testing.T) {
	m := NewPersonalityStateManager()
	bad := DefaultSnapshot(time.Now())
	bad.ParentingUnity = 400

	assert.ErrorIs(t, m.RestoreSnapshot(bad), ErrCorruptSnapshot)
	assert.ErrorIs(t, m.RestoreSnapshot(nil), ErrCorruptSnapshot)
	// Prior state untouched.
	assert.Equal(t, DefaultTrust, m.CurrentState(time.Now()).TrustScore)
}

func TestDefaultSnapshotCarriesDocumentedDefaults(t *testing.T) {
	s := DefaultSnapshot(time.Now())
	assert.Equal(t, 60.0, s.TrustScore)
	assert.Equal(t, 10.0, s.ResentmentScore)
	assert.Equal(t, 50.0, s.EmotionalSafety)
	assert.Equal(t, 70.0, s.ParentingUnity)

	m := NewPersonalityStateManager()
	require.NoError(t, m.RestoreSnapshot(s))
	state := m.CurrentState(time.Now())
	assert.Equal(t, 60.0, state.TrustScore)
	assert.False(t, state.IsWithdrawn)
}
