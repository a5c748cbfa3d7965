package opencv

import (
	"image"
	"math"

	"face-attendance-go/internal/embedding"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Aufbau des heuristischen Merkmalsvektors
const (
	heuristicSide = 64

	histBins       = 32
	histOffset     = 0
	textureOffset  = 32
	textureStride  = 8
	momentsOffset  = 64
	gradientOffset = 96
	gradientBins   = 16

	huLogEpsilon = 1e-10
)

// HeuristicExtractor beschreibt ein Gesicht mit handgebauten Merkmalen:
// Intensitätshistogramm, Sobel-Textur je Quadrant, Hu-Momente und
// Gradientenrichtungen. Er wird nur ohne trainiertes Modell verwendet.
type HeuristicExtractor struct {
	size      int
	validator *embedding.Validator
	log       *log.Entry
}

// NewHeuristicExtractor erstellt einen Extraktor für Vektoren der Länge size
func NewHeuristicExtractor(size int, logger *log.Entry) *HeuristicExtractor {
	if size < gradientOffset+gradientBins {
		size = gradientOffset + gradientBins
	}
	if logger == nil {
		logger = log.WithField("component", "extractor")
	}
	return &HeuristicExtractor{size: size, validator: embedding.NewValidator(size), log: logger}
}

// IsNeural liefert immer false
func (e *HeuristicExtractor) IsNeural() bool { return false }

// Close ist ein No-op
func (e *HeuristicExtractor) Close() error { return nil }

// Extract berechnet den Merkmalsvektor auf einer 64×64 Graustufenversion
func (e *HeuristicExtractor) Extract(crop gocv.Mat) ([]byte, bool) {
	if crop.Empty() {
		return nil, false
	}

	small := gocv.NewMat()
	defer small.Close()
	gocv.Resize(crop, &small, image.Pt(heuristicSide, heuristicSide), 0, 0, gocv.InterpolationLinear)

	gray := toGray(small)
	defer gray.Close()

	features := make([]float64, e.size)
	intensityHistogram(gray, features[histOffset:histOffset+histBins])

	gx, gy := gocv.NewMat(), gocv.NewMat()
	defer gx.Close()
	defer gy.Close()
	gocv.Sobel(gray, &gx, gocv.MatTypeCV64F, 1, 0, 3, 1, 0, gocv.BorderDefault)
	gocv.Sobel(gray, &gy, gocv.MatTypeCV64F, 0, 1, 3, 1, 0, gocv.BorderDefault)

	quadrantTexture(gx, gy, features[textureOffset:momentsOffset])
	shapeMoments(gray, features[momentsOffset:gradientOffset])
	if err := orientationBlock(gx, gy, features[gradientOffset:gradientOffset+gradientBins]); err != nil {
		e.log.Debugf("Gradientenhistogramm fehlgeschlagen: %v", err)
		return nil, false
	}

	b := finish(features, e.size, false, e.validator)
	if b == nil {
		e.log.Debug("Heuristisches Embedding verworfen")
		return nil, false
	}
	return b, true
}

// intensityHistogram schreibt ein min-max-normalisiertes 32-Bin-Histogramm
func intensityHistogram(gray gocv.Mat, out []float64) {
	hist := gocv.NewMat()
	defer hist.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	gocv.CalcHist([]gocv.Mat{gray}, []int{0}, mask, &hist, []int{len(out)}, []float64{0, 256}, false)
	gocv.Normalize(hist, &hist, 0, 1, gocv.NormMinMax)
	for i := range out {
		out[i] = float64(hist.GetFloatAt(i, 0))
	}
}

// quadrantTexture schreibt Mittelwert und Standardabweichung der Sobel-
// Gradienten je Quadrant, skaliert auf 1/255
func quadrantTexture(gx, gy gocv.Mat, out []float64) {
	qw, qh := gx.Cols()/2, gx.Rows()/2
	for q := 0; q < 4; q++ {
		r := image.Rect((q%2)*qw, (q/2)*qh, (q%2+1)*qw, (q/2+1)*qh)
		base := q * textureStride
		out[base], out[base+1] = regionMeanStd(gx, r)
		out[base+2], out[base+3] = regionMeanStd(gy, r)
	}
}

func regionMeanStd(m gocv.Mat, r image.Rectangle) (float64, float64) {
	roi := m.Region(r)
	defer roi.Close()
	mean, std := gocv.NewMat(), gocv.NewMat()
	defer mean.Close()
	defer std.Close()
	gocv.MeanStdDev(roi, &mean, &std)
	return mean.GetDoubleAt(0, 0) / 255, std.GetDoubleAt(0, 0) / 255
}

// shapeMoments schreibt mittlere Intensität (m00 je Pixel), Schwerpunkt in
// Pixeln und die logarithmierten Hu-Momente
func shapeMoments(gray gocv.Mat, out []float64) {
	m := gocv.Moments(gray, false)
	if m["m00"] == 0 {
		return
	}
	w, h := float64(gray.Cols()), float64(gray.Rows())
	out[0] = m["m00"] / (w * h)
	out[1] = m["m10"] / m["m00"]
	out[2] = m["m01"] / m["m00"]
	for i, hu := range huMoments(m) {
		out[3+i] = math.Log(math.Abs(hu) + huLogEpsilon)
	}
}

// huMoments berechnet die sieben Hu-Invarianten aus normierten Zentralmomenten
func huMoments(m map[string]float64) [7]float64 {
	n20, n02, n11 := m["nu20"], m["nu02"], m["nu11"]
	n30, n03, n21, n12 := m["nu30"], m["nu03"], m["nu21"], m["nu12"]

	a := n30 + n12
	b := n21 + n03
	c := n30 - 3*n12
	d := 3*n21 - n03

	return [7]float64{
		n20 + n02,
		(n20-n02)*(n20-n02) + 4*n11*n11,
		c*c + d*d,
		a*a + b*b,
		c*a*(a*a-3*b*b) + d*b*(3*a*a-b*b),
		(n20-n02)*(a*a-b*b) + 4*n11*a*b,
		d*a*(a*a-3*b*b) - c*b*(3*a*a-b*b),
	}
}

func orientationBlock(gx, gy gocv.Mat, out []float64) error {
	mag, ang := gocv.NewMat(), gocv.NewMat()
	defer mag.Close()
	defer ang.Close()
	gocv.CartToPolar(gx, gy, &mag, &ang, true)

	angles, err := ang.DataPtrFloat64()
	if err != nil {
		return err
	}
	mags, err := mag.DataPtrFloat64()
	if err != nil {
		return err
	}
	copy(out, orientationHistogram(angles, mags, len(out)))
	return nil
}

// orientationHistogram summiert Gradientenbeträge nach Richtung (Grad) und
// normiert auf Summe 1. Ohne Gradienten bleibt das Histogramm leer.
func orientationHistogram(angles, mags []float64, bins int) []float64 {
	hist := make([]float64, bins)
	width := 360.0 / float64(bins)
	for i, a := range angles {
		if i >= len(mags) {
			break
		}
		bin := int(a/width) % bins
		if bin < 0 {
			bin += bins
		}
		hist[bin] += mags[i]
	}
	var sum float64
	for _, v := range hist {
		sum += v
	}
	if sum > 0 {
		for i := range hist {
			hist[i] /= sum
		}
	}
	return hist
}
