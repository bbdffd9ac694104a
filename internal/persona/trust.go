package persona

import (
	"log"
	"time"
)

// Trust and resentment tuning. Losses outpace gains 2:1 on purpose.
const (
	BaseTrustIncrease = 2.0
	BaseTrustDecrease = 4.0

	PublicMultiplier      = 2.0 // actions witnessed by the child, either sign
	HighTrustThreshold    = 70.0
	HighTrustResilience   = 0.7 // negatives soften above the threshold
	HighResentmentCutoff  = 50.0
	ResentmentGainPenalty = 0.5 // positives halve while resentment runs high

	DiminishingWindow = time.Hour
	DiminishingFactor = 0.5 // repeat same-kind positives within the window

	PatternResentment  = 3.0
	IsolatedResentment = 0.5
	ResentmentDecayDay = 0.5 // per day, only under sustained positive interaction

	WithdrawalMildFloor     = 40.0
	WithdrawalModerateFloor = 30.0
	WithdrawalTrustCutoff   = 50.0

	ApologyRecurrencePenalty = 0.2
	ApologyEffectFloor       = 0.1
	ApologyRecoveryPerWeek   = 0.1
)

// apologyMultipliers scale an apology's trust effect by how it was delivered.
var apologyMultipliers = map[ApologyType]float64{
	ApologyDefensive:      0.3,
	ApologyGeneric:        0.5,
	ApologyGenuine:        1.0,
	ApologyActionOriented: 1.5,
}

// TrustDynamicsEngine owns the trust and resentment scalars and the apology
// effectiveness ledger. All transitions are asymmetric: trust falls faster
// than it climbs, resentment accumulates faster from patterns than from
// isolated slips.
type TrustDynamicsEngine struct {
	trust      float64
	resentment float64

	// lastPositive backs diminishing returns, keyed by action kind.
	lastPositive map[ActionType]time.Time
	// resentmentMark is when resentment decay was last applied.
	resentmentMark time.Time

	apologies map[ActionType]*ApologyRecord
}

// NewTrustDynamicsEngine starts at the neutral-leaning defaults of a
// relationship that works but carries history.
func NewTrustDynamicsEngine() *TrustDynamicsEngine {
	return &TrustDynamicsEngine{
		trust:        DefaultTrust,
		resentment:   DefaultResentment,
		lastPositive: make(map[ActionType]time.Time),
		apologies:    make(map[ActionType]*ApologyRecord),
	}
}

// Trust returns the current trust score, 0..100.
func (e *TrustDynamicsEngine) Trust() float64 { return e.trust }

// Resentment returns the current resentment score, 0..100.
func (e *TrustDynamicsEngine) Resentment() float64 { return e.resentment }

// UpdateTrust applies one action's trust delta and returns the signed change.
// attenuation scales negative deltas only; the manager passes <1 when high
// emotional safety is absorbing stress.
func (e *TrustDynamicsEngine) UpdateTrust(a *PlayerAction, now time.Time, attenuation float64) float64 {
	if a == nil || !validFloat(a.Valence) {
		return 0
	}
	v := clamp(a.Valence, -1, 1)

	// Private correction is the constructive path and never draws the
	// public amplifier, even when someone overhears.
	public := a.Context == ContextPublic && a.Type != ActionPrivateCorrection

	var delta float64
	switch {
	case v > 0:
		delta = BaseTrustIncrease * v
		if last, ok := e.lastPositive[a.Type]; ok && now.Sub(last) < DiminishingWindow {
			delta *= DiminishingFactor
		}
		e.lastPositive[a.Type] = now
		if public {
			delta *= PublicMultiplier
		}
		if e.resentment > HighResentmentCutoff {
			delta *= ResentmentGainPenalty
		}
	case v < 0:
		delta = BaseTrustDecrease * v
		if public {
			delta *= PublicMultiplier
		}
		if e.trust > HighTrustThreshold {
			delta *= HighTrustResilience
		}
		if attenuation > 0 && attenuation < 1 {
			delta *= attenuation
		}
	default:
		return 0
	}

	before := e.trust
	e.trust = round2(clamp(e.trust+delta, 0, 100))
	return round2(e.trust - before)
}

// AddResentment raises resentment: patterned behavior costs PatternResentment,
// an isolated slip only IsolatedResentment. Returns the applied change.
func (e *TrustDynamicsEngine) AddResentment(patterned bool) float64 {
	delta := IsolatedResentment
	if patterned {
		delta = PatternResentment
	}
	before := e.resentment
	e.resentment = round2(clamp(e.resentment+delta, 0, 100))
	return round2(e.resentment - before)
}

// ReduceResentment lowers resentment by amount, floored at 0.
func (e *TrustDynamicsEngine) ReduceResentment(amount float64) float64 {
	if amount <= 0 || !validFloat(amount) {
		return 0
	}
	before := e.resentment
	e.resentment = round2(clamp(e.resentment-amount, 0, 100))
	return round2(e.resentment - before)
}

// DecayResentment applies the slow background fade, but only while the
// relationship is actually being tended: sustainedPositive false just moves
// the marker so stale intervals never count retroactively.
func (e *TrustDynamicsEngine) DecayResentment(now time.Time, sustainedPositive bool) {
	if e.resentmentMark.IsZero() {
		e.resentmentMark = now
		return
	}
	days := now.Sub(e.resentmentMark).Hours() / 24
	if days <= 0 {
		return
	}
	e.resentmentMark = now
	if !sustainedPositive {
		return
	}
	e.resentment = round2(clamp(e.resentment-ResentmentDecayDay*days, 0, 100))
}

// WithdrawalLevel grades the current trust score into a withdrawal severity.
// Crossing 50 flips immediately, no hysteresis.
func (e *TrustDynamicsEngine) WithdrawalLevel() WithdrawalLevel {
	switch {
	case e.trust >= WithdrawalTrustCutoff:
		return WithdrawalNone
	case e.trust >= WithdrawalMildFloor:
		return WithdrawalMild
	case e.trust >= WithdrawalModerateFloor:
		return WithdrawalModerate
	default:
		return WithdrawalSevere
	}
}

// ProcessApology applies an apology to trust using the per-behavior
// effectiveness ledger and returns the trust change. Recovery of a worn-down
// effectiveness is applied lazily here before use.
func (e *TrustDynamicsEngine) ProcessApology(a *PlayerAction, now time.Time) float64 {
	if a == nil || a.Type != ActionApology {
		return 0
	}
	mult, ok := apologyMultipliers[a.Apology]
	if !ok {
		mult = apologyMultipliers[ApologyGeneric]
	}

	behavior := a.TargetBehavior
	if behavior == "" {
		behavior = ActionApology
	}
	rec := e.apologies[behavior]
	if rec == nil {
		rec = &ApologyRecord{Behavior: behavior, Effectiveness: 1.0}
		e.apologies[behavior] = rec
	}
	e.recoverEffectiveness(rec, now)

	delta := BaseTrustIncrease * mult * rec.Effectiveness
	if e.resentment > HighResentmentCutoff {
		delta *= ResentmentGainPenalty
	}

	before := e.trust
	e.trust = round2(clamp(e.trust+delta, 0, 100))
	rec.LastApologyAt = now
	rec.LastApologyType = a.Apology

	applied := round2(e.trust - before)
	log.Printf("[PERSONA] apology behavior=%s type=%s effectiveness=%.2f trust_delta=%.2f",
		behavior, a.Apology, rec.Effectiveness, applied)
	return applied
}

// RecordRecurrence marks that an apologized-for behavior happened again,
// wearing down future apologies for it.
func (e *TrustDynamicsEngine) RecordRecurrence(behavior ActionType, now time.Time) {
	rec := e.apologies[behavior]
	if rec == nil || rec.LastApologyAt.IsZero() {
		return
	}
	rec.RecurrenceCount++
	ts := now
	rec.LastRecurrence = &ts
	rec.Effectiveness = round2(clamp(rec.Effectiveness-ApologyRecurrencePenalty, ApologyEffectFloor, 1.0))
	log.Printf("[PERSONA] apology worn behavior=%s recurrences=%d effectiveness=%.2f",
		behavior, rec.RecurrenceCount, rec.Effectiveness)
}

// ApologyEffectiveness returns the current (recovery-adjusted) effectiveness
// for a behavior, 1.0 when nothing is on record.
func (e *TrustDynamicsEngine) ApologyEffectiveness(behavior ActionType, now time.Time) float64 {
	rec := e.apologies[behavior]
	if rec == nil {
		return 1.0
	}
	e.recoverEffectiveness(rec, now)
	return rec.Effectiveness
}

// recoverEffectiveness restores 0.1 per full recurrence-free week, capped at
// the stored maximum of 1.0.
func (e *TrustDynamicsEngine) recoverEffectiveness(rec *ApologyRecord, now time.Time) {
	if rec.Effectiveness >= 1.0 {
		return
	}
	since := rec.LastApologyAt
	if rec.LastRecurrence != nil && rec.LastRecurrence.After(since) {
		since = *rec.LastRecurrence
	}
	if since.IsZero() {
		return
	}
	weeks := int(now.Sub(since).Hours() / (24 * 7))
	if weeks <= 0 {
		return
	}
	rec.Effectiveness = round2(clamp(rec.Effectiveness+ApologyRecoveryPerWeek*float64(weeks), ApologyEffectFloor, 1.0))
}

// apologyRecords exposes the ledger for snapshotting, keyed by behavior.
func (e *TrustDynamicsEngine) apologyRecords() map[ActionType]*ApologyRecord {
	return e.apologies
}

// restore rehydrates the engine from snapshot values. Callers validate first.
func (e *TrustDynamicsEngine) restore(trust, resentment float64, mark time.Time, lastPositive map[ActionType]time.Time, apologies map[ActionType]*ApologyRecord) {
	e.trust = round2(clamp(trust, 0, 100))
	e.resentment = round2(clamp(resentment, 0, 100))
	e.resentmentMark = mark
	if lastPositive != nil {
		e.lastPositive = lastPositive
	}
	if apologies != nil {
		e.apologies = apologies
	}
}
