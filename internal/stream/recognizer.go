package stream

import (
	"fmt"
	"strings"
	"time"

	"face-attendance-go/config"
	"face-attendance-go/internal/embedding"
	"face-attendance-go/internal/recognition"
	"face-attendance-go/internal/tracking"

	log "github.com/sirupsen/logrus"
)

// Recognizer runs the per-face part of a frame cycle: smoothing, scoring,
// the decision and the prediction bookkeeping for the next frame. It is
// independent of gocv.
type Recognizer struct {
	profiles     *recognition.ProfileSet
	engine       *recognition.DecisionEngine
	neural       bool
	useSmoothing bool
	resetGap     time.Duration
	timeout      time.Duration
	log          *log.Entry
}

// NewRecognizer creates a recognizer over the live profile set.
func NewRecognizer(cfg config.RecognitionConfig, profiles *recognition.ProfileSet, neural bool, logger *log.Entry) *Recognizer {
	if logger == nil {
		logger = log.WithField("component", "recognizer")
	}
	return &Recognizer{
		profiles:     profiles,
		engine:       recognition.NewDecisionEngine(cfg.ConsistencyWindow, cfg.ConsistencyMinCount),
		neural:       neural,
		useSmoothing: cfg.UseSmoothing,
		resetGap:     cfg.HistoryResetGap(),
		timeout:      cfg.TrackTimeout(),
		log:          logger,
	}
}

// FrameSkip is the number of frames a track waits between full
// recognitions.
func (r *Recognizer) FrameSkip() int {
	return r.profiles.AdaptiveFrameSkip()
}

// Due reports whether t needs a full recognition in this frame.
func (r *Recognizer) Due(t *tracking.Track) bool {
	return !t.HasDecision || t.Frames%r.FrameSkip() == 0
}

// Recognize decides who the face on track t is. emb is the encoded live
// embedding.
func (r *Recognizer) Recognize(t *tracking.Track, emb []byte, now time.Time) recognition.Decision {
	history := t.History
	r.refresh(t, now)

	live := embedding.Decode(emb, r.neural)
	profiles := r.profiles.Snapshot()
	scores := recognition.Score(live, profiles)

	if r.useSmoothing && history != nil {
		history.RecordEmbedding(emb)
		if smoothed := history.BuildSmoothedEmbedding(); smoothed != nil {
			scores = recognition.Better(scores, recognition.Score(embedding.Decode(smoothed, r.neural), profiles))
		}
	}

	if scores.Empty() {
		d := r.engine.Decide(nil, scores, false, 0)
		r.record(t, d, now)
		return d
	}
	r.logScores(profiles, scores)

	// The current frame's vote counts toward its own consistency check.
	profile := profiles[scores.BestIndex]
	consistent, matches := false, 0
	if history != nil {
		history.RecordPrediction(scores.BestIndex)
		consistent = history.IsConsistent(scores.BestIndex)
		matches = history.CountMatches(scores.BestIndex)
	}
	d := r.engine.Decide(profile, scores, consistent, matches)

	if d.Accepted {
		r.log.Infof("[Accept] %s | Raw=%.3f, Confidence=%.2f, Margin=%.3f | %s",
			d.Label, d.RawScore, d.CombinedConfidence, d.Margin, d.Reason)
	} else {
		r.log.Infof("[Reject] Best=%s(%.3f), 2nd=%.3f, Confidence=%.2f, Margin=%.3f | %s",
			d.Label, d.RawScore, scores.SecondBestScore, d.CombinedConfidence, d.Margin, d.Reason)
	}
	r.record(t, d, now)
	return d
}

// refresh resets the history when the track's recognition cadence broke
// and drops the cached decision once the session timed out.
func (r *Recognizer) refresh(t *tracking.Track, now time.Time) {
	if t.LastRecognized.IsZero() || t.History == nil {
		return
	}
	gap := now.Sub(t.LastRecognized)
	switch {
	case r.timeout > 0 && gap > r.timeout:
		r.log.Debugf("Track %s idle for %v, starting a new session", t.ID, gap)
		t.History.Reset()
		t.HasDecision = false
		t.LastDecision = recognition.Decision{}
	case r.resetGap > 0 && gap > r.resetGap:
		r.log.Infof("Frame cadence gap of %v detected, resetting history of track %s", gap, t.ID)
		t.History.Reset()
	}
}

func (r *Recognizer) record(t *tracking.Track, d recognition.Decision, now time.Time) {
	t.LastDecision = d
	t.HasDecision = true
	t.Recognitions++
	t.LastRecognized = now
}

func (r *Recognizer) logScores(profiles []*recognition.Profile, scores recognition.ScoreResult) {
	if !r.log.Logger.IsLevelEnabled(log.DebugLevel) {
		return
	}
	var b strings.Builder
	for i, s := range scores.Scores {
		fmt.Fprintf(&b, "%s=%.3f ", profiles[i].Label, s)
	}
	best := profiles[scores.BestIndex]
	r.log.Debugf("[Recognition] Scores: %s", strings.TrimSpace(b.String()))
	r.log.Debugf("[Thresholds] Abs=%.3f, Margin=%.3f, Tightness=%.3f, StdDev=%.3f",
		best.AbsoluteThreshold, best.RelativeMargin, best.Tightness, best.StdDev)
}
