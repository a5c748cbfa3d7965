package opencv

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"sync"

	"face-attendance-go/config"
	"face-attendance-go/internal/landmarks"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Dateinamen der Landmarken-Kaskaden im Kaskadenverzeichnis
const (
	EyeCascadeFile   = "haarcascade_eye.xml"
	NoseCascadeFile  = "haarcascade_mcs_nose.xml"
	MouthCascadeFile = "haarcascade_mcs_mouth.xml"
)

// MinAlignSize ist die kleinste Kantenlänge, ab der Landmarken gesucht werden
const MinAlignSize = 60

const (
	eyeScaleFactor  = 1.1
	eyeMinNeighbors = 3
	eyeMinRatio     = 0.1
	eyeMaxRatio     = 0.4

	// minIntensitySpread trennt ein echtes Gesicht von einer leeren Warp-Fläche
	minIntensitySpread = 8
)

// ErrCascadeUnavailable wird geliefert, wenn eine Pflicht-Kaskade fehlt
var ErrCascadeUnavailable = errors.New("cascade unavailable")

// Normalizer bringt einen Gesichtsausschnitt in die kanonische Pose
type Normalizer struct {
	size  int
	eyes  *gocv.CascadeClassifier
	nose  *gocv.CascadeClassifier
	mouth *gocv.CascadeClassifier
	mutex sync.Mutex
	log   *log.Entry
}

// NewNormalizer lädt die Landmarken-Kaskaden aus cfg.CascadeDir. Fehlt die
// Augenkaskade, wird jeder Ausschnitt nur skaliert.
func NewNormalizer(cfg config.OpenCVConfig, size int, logger *log.Entry) *Normalizer {
	if logger == nil {
		logger = log.WithField("component", "normalizer")
	}
	if size <= 0 {
		size = int(landmarks.ReferenceSize)
	}
	n := &Normalizer{size: size, log: logger}

	n.eyes = loadCascade(filepath.Join(cfg.CascadeDir, EyeCascadeFile), logger)
	if n.eyes == nil {
		logger.Warn("Augenkaskade nicht verfügbar, verwende nur Skalierung")
		return n
	}
	n.nose = loadCascade(filepath.Join(cfg.CascadeDir, NoseCascadeFile), logger)
	n.mouth = loadCascade(filepath.Join(cfg.CascadeDir, MouthCascadeFile), logger)
	return n
}

func loadCascade(path string, logger *log.Entry) *gocv.CascadeClassifier {
	if !fileExists(path) {
		logger.Debugf("Kaskade nicht gefunden: %s", path)
		return nil
	}
	c := gocv.NewCascadeClassifier()
	if !c.Load(path) {
		logger.Warnf("Kaskade konnte nicht geladen werden: %s", path)
		c.Close()
		return nil
	}
	return &c
}

// Size ist die Kantenlänge der kanonischen Ausgabe
func (n *Normalizer) Size() int { return n.size }

// CanAlign meldet, ob Landmarken-Ausrichtung möglich ist
func (n *Normalizer) CanAlign() bool { return n.eyes != nil }

// Normalize liefert einen size×size Ausschnitt. Der Aufrufer schließt das
// Ergebnis; ein leerer Eingang ergibt eine leere Mat.
func (n *Normalizer) Normalize(crop gocv.Mat) gocv.Mat {
	if crop.Empty() {
		return gocv.NewMat()
	}
	if n.eyes == nil || crop.Cols() < MinAlignSize || crop.Rows() < MinAlignSize {
		return n.resize(crop)
	}

	aligned, err := n.align(crop)
	if err != nil {
		n.log.Debugf("Ausrichtung verworfen: %v", err)
		return n.resize(crop)
	}
	return aligned
}

func (n *Normalizer) resize(crop gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	gocv.Resize(crop, &out, image.Pt(n.size, n.size), 0, 0, gocv.InterpolationCubic)
	return out
}

func (n *Normalizer) align(crop gocv.Mat) (gocv.Mat, error) {
	gray := toGray(crop)
	defer gray.Close()

	lm, err := n.locate(gray)
	if err != nil {
		return gocv.Mat{}, err
	}
	if !lm.Valid(crop.Cols(), crop.Rows()) {
		return gocv.Mat{}, fmt.Errorf("implausible landmarks %+v", lm)
	}

	m, err := alignTransform(lm, n.size)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer m.Close()

	out := gocv.NewMat()
	gocv.WarpAffineWithParams(crop, &out, m, image.Pt(n.size, n.size),
		gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{})
	if out.Empty() {
		out.Close()
		return gocv.Mat{}, errors.New("empty warp")
	}

	check := toGray(out)
	minVal, maxVal, _, _ := gocv.MinMaxLoc(check)
	check.Close()
	if !plausibleIntensity(float64(minVal), float64(maxVal)) {
		out.Close()
		return gocv.Mat{}, fmt.Errorf("implausible intensity range [%.1f, %.1f]", minVal, maxVal)
	}
	return out, nil
}

// locate findet Augen im oberen Bereich und ergänzt Nase und Mund per
// Kaskade oder Schätzung.
func (n *Normalizer) locate(gray gocv.Mat) (landmarks.Landmarks, error) {
	w, h := gray.Cols(), gray.Rows()

	n.mutex.Lock()
	defer n.mutex.Unlock()

	upper := gray.Region(landmarks.EyeSearchRegion(w, h))
	minEye := int(float64(w) * eyeMinRatio)
	maxEye := int(float64(w) * eyeMaxRatio)
	eyes := n.eyes.DetectMultiScaleWithParams(upper, eyeScaleFactor, eyeMinNeighbors, 0,
		image.Pt(minEye, minEye), image.Pt(maxEye, maxEye))
	upper.Close()

	left, right, ok := landmarks.PickEyes(eyes)
	if !ok {
		return landmarks.Landmarks{}, fmt.Errorf("found %d eyes", len(eyes))
	}
	lm := landmarks.Landmarks{LeftEye: left, RightEye: right}

	if r, found := detectLargest(n.nose, gray, landmarks.NoseSearchRegion(left, right, w, h)); found {
		lm.Nose = landmarks.Center(r)
	} else {
		lm.Nose = landmarks.EstimateNose(left, right)
		lm.NoseEstimated = true
	}

	if r, found := detectLargest(n.mouth, gray, landmarks.MouthSearchRegion(left, right, lm.Nose, w, h)); found {
		lm.MouthLeft, lm.MouthRight = landmarks.MouthCorners(r)
	} else {
		lm.MouthLeft, lm.MouthRight = landmarks.EstimateMouth(left, right, lm.Nose)
		lm.MouthEstimated = true
	}
	return lm, nil
}

// detectLargest sucht im Bereich region und liefert das größte Rechteck in
// Koordinaten von img.
func detectLargest(c *gocv.CascadeClassifier, img gocv.Mat, region image.Rectangle) (image.Rectangle, bool) {
	if c == nil || region.Dx() < 10 || region.Dy() < 10 {
		return image.Rectangle{}, false
	}
	roi := img.Region(region)
	defer roi.Close()

	var best image.Rectangle
	for _, r := range c.DetectMultiScale(roi) {
		if r.Dx()*r.Dy() > best.Dx()*best.Dy() {
			best = r
		}
	}
	if best.Empty() {
		return image.Rectangle{}, false
	}
	return best.Add(region.Min), true
}

// plausibleIntensity verwirft Warps außerhalb des 8-Bit-Bereichs oder ohne
// Bildinhalt.
func plausibleIntensity(minVal, maxVal float64) bool {
	return minVal >= -1 && maxVal <= 256 && maxVal-minVal >= minIntensitySpread
}

// alignTransform bildet Augen und Nase auf die kanonischen Zielpunkte ab.
// Liegen die Skalierungen außerhalb [0.5, 2.0], wird die Ausrichtung
// verworfen. Der Aufrufer schließt die gelieferte Matrix.
func alignTransform(lm landmarks.Landmarks, size int) (gocv.Mat, error) {
	targets := landmarks.Targets(size)
	src := gocv.NewPoint2fVectorFromPoints([]gocv.Point2f{
		point2f(lm.LeftEye), point2f(lm.RightEye), point2f(lm.Nose),
	})
	defer src.Close()
	dst := gocv.NewPoint2fVectorFromPoints([]gocv.Point2f{
		point2f(targets[0]), point2f(targets[1]), point2f(targets[2]),
	})
	defer dst.Close()

	m := gocv.GetAffineTransform2f(src, dst)
	if m.Empty() {
		m.Close()
		return gocv.Mat{}, errors.New("degenerate landmarks")
	}
	aff := affineOf(m)
	if !aff.ScaleAcceptable() {
		m.Close()
		sx, sy := aff.Scales()
		return gocv.Mat{}, fmt.Errorf("extreme transform scale %.3f/%.3f", sx, sy)
	}
	return m, nil
}

func point2f(p landmarks.Point) gocv.Point2f {
	return gocv.Point2f{X: float32(p.X), Y: float32(p.Y)}
}

// affineOf liest die sechs Koeffizienten einer 2x3 CV_64F-Matrix
func affineOf(m gocv.Mat) landmarks.Affine {
	var a landmarks.Affine
	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			a[r][c] = m.GetDoubleAt(r, c)
		}
	}
	return a
}

// toGray liefert eine einkanalige Kopie
func toGray(src gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	switch src.Channels() {
	case 1:
		src.CopyTo(&out)
	case 4:
		gocv.CvtColor(src, &out, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(src, &out, gocv.ColorBGRToGray)
	}
	return out
}

// toBGR liefert eine dreikanalige Kopie
func toBGR(src gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	switch src.Channels() {
	case 1:
		gocv.CvtColor(src, &out, gocv.ColorGrayToBGR)
	case 4:
		gocv.CvtColor(src, &out, gocv.ColorBGRAToBGR)
	default:
		src.CopyTo(&out)
	}
	return out
}

// Close gibt die Kaskaden frei
func (n *Normalizer) Close() error {
	for _, c := range []*gocv.CascadeClassifier{n.eyes, n.nose, n.mouth} {
		if c != nil {
			c.Close()
		}
	}
	n.eyes, n.nose, n.mouth = nil, nil, nil
	return nil
}
