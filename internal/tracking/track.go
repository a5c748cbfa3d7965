package tracking

import (
	"image"
	"math"
	"time"

	"face-attendance-go/internal/recognition"

	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Kalman filter parameters for the centre of a face box.
const (
	kalmanUx       = 1.0
	kalmanUy       = 1.0
	kalmanStdDevA  = 2.0
	kalmanStdDevMx = 0.1
	kalmanStdDevMy = 0.1
)

// Track is one face followed across frames. It owns the TemporalHistory
// used for smoothing and consistency.
type Track struct {
	ID              uuid.UUID
	LastRect        image.Rectangle
	FramesSinceSeen int
	LastDecision    recognition.Decision
	HasDecision     bool
	History         *recognition.TemporalHistory
	CreatedAt       time.Time
	LastSeen        time.Time
	// Recognitions counts frames that went through full recognition.
	Recognitions int
	// LastRecognized is the time of the last full recognition.
	LastRecognized time.Time
	// Frames counts frames the track was matched in.
	Frames int

	handle    Handle
	predicted point
	avgSize   float64
	kf        *kalman_filter.Kalman2D
}

type point struct {
	X, Y float64
}

func centerOf(r image.Rectangle) point {
	return point{
		X: float64(r.Min.X) + float64(r.Dx())/2,
		Y: float64(r.Min.Y) + float64(r.Dy())/2,
	}
}

func (p point) dist(q point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

func sizeOf(r image.Rectangle) float64 {
	return float64(r.Dx()+r.Dy()) / 2
}

func newTrack(rect image.Rectangle, history *recognition.TemporalHistory, dt float64, now time.Time) *Track {
	c := centerOf(rect)
	return &Track{
		ID:        uuid.New(),
		LastRect:  rect,
		History:   history,
		CreatedAt: now,
		LastSeen:  now,
		Frames:    1,
		predicted: c,
		avgSize:   sizeOf(rect),
		kf: kalman_filter.NewKalman2D(dt, kalmanUx, kalmanUy, kalmanStdDevA, kalmanStdDevMx, kalmanStdDevMy,
			kalman_filter.WithState2D(c.X, c.Y)),
	}
}

// Handle returns the arena handle of the track.
func (t *Track) Handle() Handle { return t.handle }

// AverageSize is the running mean of the box side length.
func (t *Track) AverageSize() float64 { return t.avgSize }

// Center returns the centre of the last matched box.
func (t *Track) Center() (float64, float64) {
	c := centerOf(t.LastRect)
	return c.X, c.Y
}

// predict advances the Kalman filter one step.
func (t *Track) predict() {
	t.kf.Predict()
	t.predicted.X, t.predicted.Y = t.kf.GetState()
}

// distanceTo is the smaller of the distances from c to the last seen and
// the predicted centre.
func (t *Track) distanceTo(c point) float64 {
	return math.Min(centerOf(t.LastRect).dist(c), t.predicted.dist(c))
}

func (t *Track) update(rect image.Rectangle, now time.Time) error {
	c := centerOf(rect)
	if err := t.kf.Update(c.X, c.Y); err != nil {
		return errors.Wrap(err, "can't update track filter")
	}
	t.LastRect = rect
	t.FramesSinceSeen = 0
	t.LastSeen = now
	t.Frames++
	t.avgSize += (sizeOf(rect) - t.avgSize) / float64(min(t.Frames, 10))
	return nil
}
