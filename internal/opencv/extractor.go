package opencv

import (
	"errors"
	"fmt"

	"face-attendance-go/config"
	"face-attendance-go/internal/embedding"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// ErrModelUnavailable wird geliefert, wenn das Embedding-Modell fehlt oder
// nicht geladen werden kann
var ErrModelUnavailable = errors.New("embedding model unavailable")

// Extractor berechnet aus einem Gesichtsausschnitt ein kodiertes Embedding.
// ok ist false, wenn kein gültiger Vektor entstanden ist.
type Extractor interface {
	Extract(crop gocv.Mat) ([]byte, bool)
	// IsNeural meldet, ob ein trainiertes Modell verwendet wird
	IsNeural() bool
	Close() error
}

// NewExtractor wählt einmalig die Strategie: mit ladbarem Modell die
// neuronale, sonst die heuristische.
func NewExtractor(cfg config.OpenCVConfig, rec config.RecognitionConfig, normalizer *Normalizer, logger *log.Entry) (Extractor, error) {
	if logger == nil {
		logger = log.WithField("component", "extractor")
	}
	size := rec.EmbeddingSize
	if size <= 0 {
		size = 512
	}

	if cfg.ModelPath == "" || !fileExists(cfg.ModelPath) {
		if cfg.RequireModel {
			return nil, fmt.Errorf("%w: %s", ErrModelUnavailable, cfg.ModelPath)
		}
		logger.Warnf("Kein Embedding-Modell unter '%s', verwende heuristische Merkmale", cfg.ModelPath)
		return NewHeuristicExtractor(size, logger), nil
	}

	ex, err := NewNeuralExtractor(cfg, size, normalizer, logger)
	if err != nil {
		return nil, err
	}
	logger.Infof("Neuronales Embedding-Modell geladen: %s (D=%d)", cfg.ModelPath, size)
	return ex, nil
}

// finish prüft Rohwerte, normalisiert sie und kodiert sie im Format des
// Modus. Ungültige Vektoren ergeben nil.
func finish(v []float64, size int, neural bool, validator *embedding.Validator) []byte {
	if len(v) != size || embedding.HasNonFinite(v) {
		return nil
	}
	embedding.NormalizeInPlace(v)
	b := embedding.Encode(v, neural)
	if !validator.IsValid(b, neural) {
		return nil
	}
	return b
}
