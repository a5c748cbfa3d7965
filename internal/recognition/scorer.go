package recognition

import (
	"face-attendance-go/internal/embedding"
)

// ScoreResult holds the per-frame similarity summary against all profiles.
type ScoreResult struct {
	BestIndex           int
	BestScore           float64
	SecondBestScore     float64
	DiscriminativeScore float64
	Scores              []float64
}

// Empty reports whether no profile could be scored.
func (r ScoreResult) Empty() bool {
	return len(r.Scores) == 0 || r.BestIndex < 0
}

// Score compares a live embedding with every profile's centroid. Ties keep
// the profile seen first. The second-best score never drops below zero, so
// a single enrolled identity is judged on its own score.
func Score(live []float64, profiles []*Profile) ScoreResult {
	if len(live) == 0 || len(profiles) == 0 {
		return ScoreResult{BestIndex: -1}
	}

	res := ScoreResult{Scores: make([]float64, len(profiles))}
	for i, p := range profiles {
		res.Scores[i] = embedding.Cosine(live, p.Centroid)
		if i == 0 || res.Scores[i] > res.Scores[res.BestIndex] {
			res.BestIndex = i
		}
	}
	res.BestScore = res.Scores[res.BestIndex]

	var others float64
	for i, s := range res.Scores {
		if i == res.BestIndex {
			continue
		}
		others += s
		if s > res.SecondBestScore {
			res.SecondBestScore = s
		}
	}

	res.DiscriminativeScore = res.BestScore
	if len(profiles) > 1 {
		res.DiscriminativeScore -= others / float64(len(profiles)-1)
	}
	return res
}

// Better returns whichever result has the higher best score; ties keep a.
func Better(a, b ScoreResult) ScoreResult {
	if b.Empty() {
		return a
	}
	if a.Empty() || b.BestScore > a.BestScore {
		return b
	}
	return a
}
