// Package landmarks holds the pure geometry behind face alignment: landmark
// estimation, plausibility checks and affine sanity checks.
package landmarks

import (
	"image"
	"math"
	"sort"
)

// ReferenceSize is the side length the canonical targets are defined for.
const ReferenceSize = 112.0

// Canonical landmark positions in a 112x112 aligned crop.
var (
	refLeftEye    = Point{38.2946, 51.6963}
	refRightEye   = Point{73.5318, 51.5014}
	refNose       = Point{56.0252, 71.7366}
	refMouthLeft  = Point{41.5493, 92.3655}
	refMouthRight = Point{70.7299, 92.2041}
)

// Heuristic ratios relative to the inter-eye distance.
const (
	noseDropRatio   = 0.55
	mouthDropRatio  = 0.5
	mouthWidthRatio = 0.7
	mouthCornerSpan = 0.35

	minEyeSpan     = 0.2
	maxEyeSpan     = 0.8
	maxNoseDrop    = 1.5
	maxTiltRadians = math.Pi / 6

	MinAffineScale = 0.5
	MaxAffineScale = 2.0

	// EyeRegionPortion is the upper share of the crop searched for eyes.
	EyeRegionPortion = 0.6
)

// Point is a sub-pixel image coordinate.
type Point struct {
	X, Y float64
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Dist returns the euclidean distance between p and q.
func (p Point) Dist(q Point) float64 { return math.Hypot(p.X-q.X, p.Y-q.Y) }

// Mid returns the midpoint between p and q.
func (p Point) Mid(q Point) Point { return Point{(p.X + q.X) / 2, (p.Y + q.Y) / 2} }

// Center returns the centre of r.
func Center(r image.Rectangle) Point {
	return Point{float64(r.Min.X) + float64(r.Dx())/2, float64(r.Min.Y) + float64(r.Dy())/2}
}

// Landmarks are five facial points in crop pixel coordinates.
type Landmarks struct {
	LeftEye    Point
	RightEye   Point
	Nose       Point
	MouthLeft  Point
	MouthRight Point

	NoseEstimated  bool
	MouthEstimated bool
}

// EyeDistance returns the inter-eye distance.
func (l Landmarks) EyeDistance() float64 { return l.LeftEye.Dist(l.RightEye) }

// EyeMid returns the midpoint between the eyes.
func (l Landmarks) EyeMid() Point { return l.LeftEye.Mid(l.RightEye) }

// Targets returns the canonical positions of left eye, right eye and nose
// scaled to an output of the given size.
func Targets(size int) [3]Point {
	s := float64(size) / ReferenceSize
	scale := func(p Point) Point { return Point{p.X * s, p.Y * s} }
	return [3]Point{scale(refLeftEye), scale(refRightEye), scale(refNose)}
}

// MouthTargets returns the canonical mouth corners for the given size.
func MouthTargets(size int) [2]Point {
	s := float64(size) / ReferenceSize
	return [2]Point{
		{refMouthLeft.X * s, refMouthLeft.Y * s},
		{refMouthRight.X * s, refMouthRight.Y * s},
	}
}

// EyeSearchRegion is the upper part of a crop of the given size.
func EyeSearchRegion(w, h int) image.Rectangle {
	return image.Rect(0, 0, w, int(float64(h)*EyeRegionPortion))
}

// PickEyes keeps the two largest detections and orders them left to right.
func PickEyes(rects []image.Rectangle) (left, right Point, ok bool) {
	if len(rects) < 2 {
		return Point{}, Point{}, false
	}
	sorted := make([]image.Rectangle, len(rects))
	copy(sorted, rects)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Dx()*sorted[i].Dy() > sorted[j].Dx()*sorted[j].Dy()
	})
	a, b := Center(sorted[0]), Center(sorted[1])
	if a.X > b.X {
		a, b = b, a
	}
	return a, b, true
}

// NoseSearchRegion returns the area below the eye midpoint where the nose
// detector runs, clamped to the crop.
func NoseSearchRegion(left, right Point, w, h int) image.Rectangle {
	mid := left.Mid(right)
	d := left.Dist(right)
	rw := math.Max(20, 0.8*d)
	rh := math.Max(20, 0.9*d)
	r := image.Rect(int(mid.X-rw/2), int(mid.Y), int(mid.X+rw/2), int(mid.Y+rh))
	return r.Intersect(image.Rect(0, 0, w, h))
}

// MouthSearchRegion returns the area below the nose where the mouth
// detector runs, clamped to the crop.
func MouthSearchRegion(left, right, nose Point, w, h int) image.Rectangle {
	mid := left.Mid(right)
	d := left.Dist(right)
	rw := math.Max(30, 1.2*d)
	rh := math.Max(20, 0.7*d)
	top := nose.Y + 0.2*d
	r := image.Rect(int(mid.X-rw/2), int(top), int(mid.X+rw/2), int(top+rh))
	return r.Intersect(image.Rect(0, 0, w, h))
}

// EstimateNose places the nose below the eye midpoint.
func EstimateNose(left, right Point) Point {
	mid := left.Mid(right)
	return Point{mid.X, mid.Y + noseDropRatio*left.Dist(right)}
}

// EstimateMouth places the mouth corners below the nose, centred under the
// eye midpoint.
func EstimateMouth(left, right, nose Point) (Point, Point) {
	d := left.Dist(right)
	x := left.Mid(right).X
	y := nose.Y + mouthDropRatio*d
	half := mouthWidthRatio * d / 2
	return Point{x - half, y}, Point{x + half, y}
}

// MouthCorners derives the corners from a detected mouth rectangle.
func MouthCorners(r image.Rectangle) (Point, Point) {
	c := Center(r)
	span := mouthCornerSpan * float64(r.Dx())
	return Point{c.X - span, c.Y}, Point{c.X + span, c.Y}
}

// Valid checks that the landmark geometry is plausible for a crop of
// width w and height h.
func (l Landmarks) Valid(w, h int) bool {
	for _, p := range []Point{l.LeftEye, l.RightEye, l.Nose, l.MouthLeft, l.MouthRight} {
		if p.X < 0 || p.Y < 0 || p.X >= float64(w) || p.Y >= float64(h) {
			return false
		}
	}

	d := l.EyeDistance()
	if d < minEyeSpan*float64(w) || d > maxEyeSpan*float64(w) {
		return false
	}

	delta := l.RightEye.Sub(l.LeftEye)
	if math.Abs(math.Atan2(delta.Y, delta.X)) >= maxTiltRadians {
		return false
	}

	midY := l.EyeMid().Y
	return l.Nose.Y > midY && l.Nose.Y <= midY+maxNoseDrop*d
}

// Affine holds the six coefficients of a 2x3 affine transform in row-major
// order, as produced by getAffineTransform.
type Affine [2][3]float64

// Scales returns the x and y scale factors of the transform.
func (a Affine) Scales() (float64, float64) {
	return math.Hypot(a[0][0], a[0][1]), math.Hypot(a[1][0], a[1][1])
}

// ScaleAcceptable reports whether both scale factors are within bounds.
func (a Affine) ScaleAcceptable() bool {
	sx, sy := a.Scales()
	for _, s := range []float64{sx, sy} {
		if math.IsNaN(s) || s < MinAffineScale || s > MaxAffineScale {
			return false
		}
	}
	return true
}
