package threshold

import (
	"github.com/uamguard/uamguard/internal/config"
)

// Verdict is the tri-state outcome of one load evaluation.
type Verdict int

const (
	Neutral Verdict = iota
	HighLoad
	LowLoad
)

func (v Verdict) String() string {
	switch v {
	case HighLoad:
		return "high"
	case LowLoad:
		return "low"
	default:
		return "neutral"
	}
}

// Bounds are the effective thresholds a verdict was decided against,
// reported for logging and the status surface.
type Bounds struct {
	Upper    float64
	Lower    float64
	Relative bool // true when derived from the baseline
}

// Decide evaluates a normalized load reading against the configured
// thresholds. Relative bounds apply only when a baseline is available
// (haveBaseline); otherwise the absolute bounds are used.
//
// Comparisons are strict: a reading exactly on a bound is Neutral. HighLoad
// is checked before LowLoad so a misconfigured bound ordering can never
// suppress protection.
func Decide(normalized, baseline float64, haveBaseline bool, cfg config.ThresholdConfig) (Verdict, Bounds) {
	b := Bounds{Upper: cfg.Upper, Lower: cfg.Lower}
	if cfg.UseRelative && haveBaseline {
		b = Bounds{
			Upper:    baseline * cfg.RelativeUpper,
			Lower:    baseline * cfg.RelativeLower,
			Relative: true,
		}
	}

	switch {
	case normalized > b.Upper:
		return HighLoad, b
	case normalized < b.Lower:
		return LowLoad, b
	default:
		return Neutral, b
	}
}
