package persona

// ToneStrategy names the register the dialogue layer should speak in. It is
// resolved from the trust and resentment bands through a fixed lookup, so a
// given score pair always lands on the same strategy.
type ToneStrategy string

const (
	ToneWarmOpen       ToneStrategy = "warm_open"       // high trust, low resentment
	ToneWarmGuarded    ToneStrategy = "warm_guarded"    // high trust, resentment simmering
	ToneMeasured       ToneStrategy = "measured"        // mid trust, low resentment
	ToneMeasuredTense  ToneStrategy = "measured_tense"  // mid trust, resentment simmering
	ToneDistant        ToneStrategy = "distant"         // low trust, low resentment
	ToneDistantHostile ToneStrategy = "distant_hostile" // low trust, resentment simmering
)

// tonePresets bound the emotional openness each strategy allows the
// dialogue layer to show.
var tonePresets = map[ToneStrategy]float64{
	ToneWarmOpen:       1.0,
	ToneWarmGuarded:    0.6,
	ToneMeasured:       0.7,
	ToneMeasuredTense:  0.4,
	ToneDistant:        0.3,
	ToneDistantHostile: 0.1,
}

// toneFor resolves the strategy for a trust/resentment pair.
func toneFor(trust, resentment float64) ToneStrategy {
	simmering := resentment > HighResentmentCutoff
	switch {
	case trust > HighTrustThreshold:
		if simmering {
			return ToneWarmGuarded
		}
		return ToneWarmOpen
	case trust >= WithdrawalMildFloor:
		if simmering {
			return ToneMeasuredTense
		}
		return ToneMeasured
	default:
		if simmering {
			return ToneDistantHostile
		}
		return ToneDistant
	}
}

// vulnerabilityCap returns the most emotional openness a tone permits.
func vulnerabilityCap(t ToneStrategy) float64 {
	if limit, ok := tonePresets[t]; ok {
		return limit
	}
	return tonePresets[ToneMeasured]
}
