package opencv

import (
	"fmt"
	"image"
	"sync"

	"face-attendance-go/config"
	"face-attendance-go/internal/embedding"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Vorverarbeitung für ArcFace-artige Modelle: (pixel - 127.5) / 128
const (
	blobScale = 1.0 / 128.0
	blobMean  = 127.5
)

// NeuralExtractor berechnet Embeddings mit einem vortrainierten ONNX-Netz
type NeuralExtractor struct {
	net        gocv.Net
	normalizer *Normalizer
	validator  *embedding.Validator
	size       int
	mutex      sync.Mutex
	log        *log.Entry
}

// NewNeuralExtractor lädt das Modell einmalig. Ein fehlendes oder leeres
// Modell ist ein Startfehler.
func NewNeuralExtractor(cfg config.OpenCVConfig, size int, normalizer *Normalizer, logger *log.Entry) (*NeuralExtractor, error) {
	if !fileExists(cfg.ModelPath) {
		return nil, fmt.Errorf("%w: %s", ErrModelUnavailable, cfg.ModelPath)
	}
	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("%w: konnte Modell nicht laden: %s", ErrModelUnavailable, cfg.ModelPath)
	}

	backend, target := selectBackend(cfg)
	if err := net.SetPreferableBackend(backend); err != nil {
		logger.Warnf("Backend %v nicht verfügbar: %v", backend, err)
	}
	if err := net.SetPreferableTarget(target); err != nil {
		logger.Warnf("Target %v nicht verfügbar: %v", target, err)
	}
	logger.Debugf("DNN nutzt Backend %v, Target %v", backend, target)

	return &NeuralExtractor{
		net:        net,
		normalizer: normalizer,
		validator:  embedding.NewValidator(size),
		size:       size,
		log:        logger,
	}, nil
}

// IsNeural liefert immer true
func (e *NeuralExtractor) IsNeural() bool { return true }

// Extract führt Ausrichtung, Blob-Erzeugung und Forward-Pass aus
func (e *NeuralExtractor) Extract(crop gocv.Mat) ([]byte, bool) {
	if crop.Empty() {
		return nil, false
	}

	bgr := toBGR(crop)
	defer bgr.Close()

	aligned := e.normalizer.Normalize(bgr)
	defer aligned.Close()
	if aligned.Empty() {
		return nil, false
	}

	s := e.normalizer.Size()
	blob := gocv.BlobFromImage(aligned, blobScale, image.Pt(s, s),
		gocv.NewScalar(blobMean, blobMean, blobMean, 0), true, false)
	defer blob.Close()

	v, err := e.forward(blob)
	if err != nil {
		e.log.Debugf("Forward-Pass fehlgeschlagen: %v", err)
		return nil, false
	}

	b := finish(v, e.size, true, e.validator)
	if b == nil {
		e.log.Debug("Neuronales Embedding verworfen (Länge, NaN/Inf oder Validierung)")
		return nil, false
	}
	return b, true
}

func (e *NeuralExtractor) forward(blob gocv.Mat) ([]float64, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.net.SetInput(blob, "")
	out := e.net.Forward("")
	defer out.Close()

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, err
	}
	v := make([]float64, len(data))
	for i, x := range data {
		v[i] = float64(x)
	}
	return v, nil
}

// Close gibt das Netz frei
func (e *NeuralExtractor) Close() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if !e.net.Empty() {
		return e.net.Close()
	}
	return nil
}
