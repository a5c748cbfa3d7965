package recognition

import (
	"fmt"
	"math"
)

// Fixed decision parameters.
const (
	confidenceThresholdRelaxation = 0.92
	minLiveAbsoluteThreshold      = 0.48
	marginConfidenceWeight        = 0.45
	rawConfidenceWeight           = 0.55
	minRelativeMarginPct          = 0.10
	minAbsoluteMargin             = 0.08
	minConfidence                 = 0.25
	strongConfidence              = 0.60
	consistencyConfidence         = 0.10
	minRawScoreBase               = 0.60
)

// UnknownLabel is reported when no identity could be considered.
const UnknownLabel = "unknown"

// Decision is the per-frame verdict for one track.
type Decision struct {
	Accepted           bool    `json:"accepted"`
	Label              string  `json:"label"`
	ProfileIndex       int     `json:"profile_index"`
	RawScore           float64 `json:"raw_score"`
	CombinedConfidence float64 `json:"combined_confidence"`
	Margin             float64 `json:"margin"`
	RelativeMarginPct  float64 `json:"relative_margin_pct"`
	RequiredMarginPct  float64 `json:"required_margin_pct"`
	Reason             string  `json:"reason"`
}

func rejected(reason string) Decision {
	return Decision{Label: UnknownLabel, ProfileIndex: -1, Reason: reason}
}

// evaluation carries every quantity the tiers look at.
type evaluation struct {
	best, second, discriminative float64
	threshold                    float64
	margin                       float64
	combined                     float64
	dynamicRaw                   float64
	consistent                   bool
	matchCount                   int
	window, minCount             int
}

func (e evaluation) rawPass() bool       { return e.best >= e.dynamicRaw }
func (e evaluation) thresholdPass() bool { return e.best >= e.threshold }
func (e evaluation) marginPass() bool    { return e.margin >= minAbsoluteMargin }
func (e evaluation) confidencePass() bool {
	return e.combined >= minConfidence
}

// tier is one accept rule; tiers are tried in order and the first match wins.
type tier struct {
	applies func(e evaluation) bool
	reason  func(e evaluation) string
}

func fixed(s string) func(evaluation) string {
	return func(evaluation) string { return s }
}

var acceptTiers = []tier{
	{
		applies: func(e evaluation) bool { return e.rawPass() && e.combined >= strongConfidence },
		reason: fixed("Strong confidence match"),
	},
	{
		applies: func(e evaluation) bool {
			return e.rawPass() && e.thresholdPass() && e.marginPass() && e.confidencePass()
		},
		reason: fixed("Standard confidence match"),
	},
	{
		applies: func(e evaluation) bool {
			return e.rawPass() && e.thresholdPass() && e.consistent &&
				e.matchCount >= e.minCount && e.combined >= consistencyConfidence
		},
		reason: func(e evaluation) string {
			return fmt.Sprintf("Consistency override (%d/%d frames)", e.matchCount, e.window)
		},
	},
	{
		applies: func(e evaluation) bool {
			return e.rawPass() && e.discriminative >= e.threshold && e.marginPass()
		},
		reason: fixed("Discriminative match (low negative evidence)"),
	},
}

// rejectReasons name the first failed criterion, in order.
var rejectReasons = []tier{
	{
		applies: func(e evaluation) bool { return !e.rawPass() },
		reason: func(e evaluation) string {
			return fmt.Sprintf("Raw score too low (%.3f < %.2f)", e.best, e.dynamicRaw)
		},
	},
	{
		applies: func(e evaluation) bool { return !e.marginPass() },
		reason: func(e evaluation) string {
			return fmt.Sprintf("Insufficient margin (%.3f < %.2f)", e.margin, minAbsoluteMargin)
		},
	},
	{
		applies: func(e evaluation) bool { return !e.confidencePass() },
		reason: func(e evaluation) string {
			return fmt.Sprintf("Low confidence (%.2f < %.2f)", e.combined, minConfidence)
		},
	},
	{
		applies: func(evaluation) bool { return true },
		reason: fixed("Multiple criteria failed"),
	},
}

// DecisionEngine turns scores and the temporal consistency signal into a
// verdict. It holds no per-frame state.
type DecisionEngine struct {
	window   int
	minCount int
}

// NewDecisionEngine creates an engine for the given consistency window.
func NewDecisionEngine(window, minCount int) *DecisionEngine {
	return &DecisionEngine{window: window, minCount: minCount}
}

// Decide evaluates the arg-max profile. consistent and matchCount come from
// the track's TemporalHistory.
func (d *DecisionEngine) Decide(profile *Profile, scores ScoreResult, consistent bool, matchCount int) Decision {
	if profile == nil || scores.Empty() {
		return rejected("No profiles available")
	}

	e := evaluation{
		best:           scores.BestScore,
		second:         scores.SecondBestScore,
		discriminative: scores.DiscriminativeScore,
		threshold:      profile.AbsoluteThreshold,
		margin:         scores.BestScore - scores.SecondBestScore,
		consistent:     consistent,
		matchCount:     matchCount,
		window:         d.window,
		minCount:       d.minCount,
	}

	floor := math.Max(minLiveAbsoluteThreshold, math.Min(0.99, e.threshold*confidenceThresholdRelaxation))
	e.combined = clamp01(marginConfidenceWeight*marginConfidence(e.best, e.second) +
		rawConfidenceWeight*rawConfidence(e.best, floor))
	e.dynamicRaw = math.Max(e.threshold, minRawScoreBase)

	out := Decision{
		Label:              profile.Label,
		ProfileIndex:       scores.BestIndex,
		RawScore:           e.best,
		CombinedConfidence: e.combined,
		Margin:             e.margin,
		RequiredMarginPct:  math.Max(minRelativeMarginPct, profile.RelativeMargin/math.Max(e.best, 1e-6)),
	}
	if e.best > 0 {
		out.RelativeMarginPct = e.margin / e.best
	}

	for _, t := range acceptTiers {
		if t.applies(e) {
			out.Accepted = true
			out.Reason = t.reason(e)
			return out
		}
	}
	for _, t := range rejectReasons {
		if t.applies(e) {
			out.Reason = t.reason(e)
			break
		}
	}
	return out
}

func marginConfidence(best, second float64) float64 {
	return clamp01((best - second) / math.Max(best, 0.01))
}

func rawConfidence(best, floor float64) float64 {
	return clamp01((best - floor) / math.Max(0.05, 1-floor))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
