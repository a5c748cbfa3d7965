package opencv

import (
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"face-attendance-go/config"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Detection ist ein erkanntes Gesicht mit Konfidenz
type Detection struct {
	Rect       image.Rectangle
	Confidence float64
}

// Detector liefert Gesichtsrechtecke in Bildkoordinaten
type Detector interface {
	Detect(frame gocv.Mat) []Detection
	Close() error
}

// Haar-Kaskaden liefern keinen Konfidenzwert
const cascadeConfidence = 0.8

// maxDetectDimension begrenzt die Bildgröße für die Detektion
const maxDetectDimension = 800

// CascadeDetector erkennt frontale Gesichter mit einer Haar-Kaskade
type CascadeDetector struct {
	classifier   gocv.CascadeClassifier
	scaleFactor  float64
	minNeighbors int
	minSize      int
	mutex        sync.Mutex
	log          *log.Entry
}

// NewCascadeDetector lädt die Gesichtskaskade aus cfg.CascadeDir
func NewCascadeDetector(cfg config.OpenCVConfig, minFaceWidth int, logger *log.Entry) (*CascadeDetector, error) {
	if logger == nil {
		logger = log.WithField("component", "detector")
	}
	path := filepath.Join(cfg.CascadeDir, cfg.FaceCascade)
	if !fileExists(path) {
		return nil, fmt.Errorf("%w: %s", ErrCascadeUnavailable, path)
	}
	c := gocv.NewCascadeClassifier()
	if !c.Load(path) {
		c.Close()
		return nil, fmt.Errorf("%w: konnte %s nicht laden", ErrCascadeUnavailable, path)
	}

	d := &CascadeDetector{
		classifier:   c,
		scaleFactor:  cfg.ScaleFactor,
		minNeighbors: cfg.MinNeighbors,
		minSize:      minFaceWidth / 2,
		log:          logger,
	}
	if d.scaleFactor <= 1 {
		d.scaleFactor = 1.1
	}
	if d.minNeighbors <= 0 {
		d.minNeighbors = 5
	}
	logger.Infof("Gesichtsdetektor initialisiert (%s)", filepath.Base(path))
	return d, nil
}

// Detect sucht Gesichter; große Bilder werden vorher verkleinert
func (d *CascadeDetector) Detect(frame gocv.Mat) []Detection {
	if frame.Empty() {
		return nil
	}

	gray := toGray(frame)
	defer gray.Close()

	scale := 1.0
	if m := max(gray.Cols(), gray.Rows()); m > maxDetectDimension {
		scale = float64(maxDetectDimension) / float64(m)
		small := gocv.NewMat()
		gocv.Resize(gray, &small, image.Pt(int(float64(gray.Cols())*scale), int(float64(gray.Rows())*scale)),
			0, 0, gocv.InterpolationLinear)
		gray.Close()
		gray = small
	}
	gocv.EqualizeHist(gray, &gray)

	minSide := int(float64(d.minSize) * scale)
	d.mutex.Lock()
	rects := d.classifier.DetectMultiScaleWithParams(gray, d.scaleFactor, d.minNeighbors, 0,
		image.Pt(minSide, minSide), image.Point{})
	d.mutex.Unlock()

	out := make([]Detection, 0, len(rects))
	for _, r := range rects {
		if scale != 1 {
			r = image.Rect(
				int(float64(r.Min.X)/scale),
				int(float64(r.Min.Y)/scale),
				int(float64(r.Max.X)/scale),
				int(float64(r.Max.Y)/scale),
			)
		}
		out = append(out, Detection{Rect: r, Confidence: cascadeConfidence})
	}
	d.log.Tracef("%d Gesichter erkannt", len(out))
	return out
}

// Close gibt die Kaskade frei
func (d *CascadeDetector) Close() error {
	return d.classifier.Close()
}
