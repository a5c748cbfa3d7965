// Package opencv bündelt alle gocv-gestützten Stufen der Erkennung:
// Gesichtsdetektion, Ausrichtung und Embedding-Extraktion.
package opencv

import (
	"fmt"
	"image"
	"sync"

	"face-attendance-go/config"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Service ist der Hauptdienst für die OpenCV-Integration
type Service struct {
	Normalizer *Normalizer
	Extractor  Extractor
	Detector   Detector
	DebugSvc   *DebugService // Debug-Service für die Visualisierung
	mutex      sync.Mutex
	closed     bool
}

// NewService lädt Kaskaden und Modell einmalig. Fehlt das Modell bei
// require_model oder die Gesichtskaskade, schlägt der Start fehl.
func NewService(cfg config.OpenCVConfig, rec config.RecognitionConfig) (*Service, error) {
	normalizer := NewNormalizer(cfg, rec.CanonicalSize, log.WithField("component", "normalizer"))

	extractor, err := NewExtractor(cfg, rec, normalizer, log.WithField("component", "extractor"))
	if err != nil {
		normalizer.Close()
		return nil, fmt.Errorf("fehler beim Initialisieren des Extraktors: %w", err)
	}

	detector, err := NewCascadeDetector(cfg, rec.MinFaceWidth, log.WithField("component", "detector"))
	if err != nil {
		extractor.Close()
		normalizer.Close()
		return nil, fmt.Errorf("fehler beim Initialisieren des Gesichtsdetektors: %w", err)
	}

	mode := "heuristic"
	if extractor.IsNeural() {
		mode = "neural"
	}
	log.Infof("OpenCV-Service initialisiert (Modus: %s, Ausrichtung: %v)", mode, normalizer.CanAlign())

	return &Service{
		Normalizer: normalizer,
		Extractor:  extractor,
		Detector:   detector,
		DebugSvc:   NewDebugService(cfg.DebugImages),
	}, nil
}

// IsNeuralAvailable meldet den für die Prozesslaufzeit gewählten Modus
func (s *Service) IsNeuralAvailable() bool {
	return s.Extractor != nil && s.Extractor.IsNeural()
}

// Mode liefert "neural" oder "heuristic"
func (s *Service) Mode() string {
	if s.IsNeuralAvailable() {
		return "neural"
	}
	return "heuristic"
}

// EncodeImage dekodiert ein hochgeladenes Bild und liefert Embedding und
// JPEG des größten Gesichts. Ohne Detektion wird das ganze Bild verwendet.
func (s *Service) EncodeImage(data []byte) ([]byte, []byte, bool) {
	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil || img.Empty() {
		log.Warnf("Konnte hochgeladenes Bild nicht dekodieren (%d Bytes)", len(data))
		img.Close()
		return nil, nil, false
	}
	defer img.Close()
	return s.EncodeCapture(img)
}

// EncodeCaptureFile wie EncodeImage, aber für eine Bilddatei
func (s *Service) EncodeCaptureFile(path string) ([]byte, []byte, bool) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		log.Warnf("Konnte Bild nicht laden: %s", path)
		return nil, nil, false
	}
	return s.EncodeCapture(img)
}

// EncodeCapture schneidet das größte erkannte Gesicht aus, berechnet sein
// Embedding und kodiert den Ausschnitt als JPEG
func (s *Service) EncodeCapture(img gocv.Mat) ([]byte, []byte, bool) {
	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	face := bounds
	if s.Detector != nil {
		best := 0
		for _, d := range s.Detector.Detect(img) {
			r := d.Rect.Intersect(bounds)
			if area := r.Dx() * r.Dy(); area > best {
				best, face = area, r
			}
		}
	}

	crop := img.Region(face)
	defer crop.Close()
	emb, ok := s.Extractor.Extract(crop)
	if !ok {
		return nil, nil, false
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, crop)
	if err != nil {
		log.Warnf("Fehler beim Kodieren des Gesichtsausschnitts: %v", err)
		return emb, nil, true
	}
	defer buf.Close()
	jpeg := make([]byte, buf.Len())
	copy(jpeg, buf.GetBytes())
	return emb, jpeg, true
}

// Close gibt die Ressourcen des OpenCV-Service frei
func (s *Service) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	for _, c := range []interface{ Close() error }{s.Detector, s.Extractor, s.Normalizer} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
