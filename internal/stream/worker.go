package stream

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime/debug"
	"sync"
	"time"

	"face-attendance-go/config"
	"face-attendance-go/internal/opencv"
	"face-attendance-go/internal/recognition"
	"face-attendance-go/internal/tracking"
	"face-attendance-go/internal/util/timezone"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// maxReadFailures is the number of consecutive empty reads after which a
// stream counts as ended.
const maxReadFailures = 50

// ErrSourceClosed is returned by Run when the source stops delivering frames.
var ErrSourceClosed = errors.New("frame source closed")

// TrackInfo is a read-only view of a live track.
type TrackInfo struct {
	ID           string          `json:"id"`
	Rect         image.Rectangle `json:"rect"`
	Label        string          `json:"label"`
	Accepted     bool            `json:"accepted"`
	Reason       string          `json:"reason"`
	Frames       int             `json:"frames"`
	Recognitions int             `json:"recognitions"`
	LastSeen     time.Time       `json:"last_seen"`
}

// Worker runs the frame cycle of one stream.
type Worker struct {
	id         string
	source     FrameSource
	detector   opencv.Detector
	extractor  opencv.Extractor
	recognizer *Recognizer
	sink       Sink
	debug      *opencv.DebugService
	cfg        config.RecognitionConfig
	log        *log.Entry

	mu     sync.Mutex
	tracks *tracking.TrackManager
	frames uint64
}

// NewWorker creates the worker for one stream.
func NewWorker(id string, source FrameSource, svc *opencv.Service, recognizer *Recognizer,
	sink Sink, cfg config.RecognitionConfig) *Worker {
	logger := log.WithFields(log.Fields{"component": "stream", "stream": id})
	neural := svc.IsNeuralAvailable()
	tracks := tracking.NewTrackManager(tracking.Options{
		FrameInterval: cfg.FrameInterval(),
		NewHistory: func() *recognition.TemporalHistory {
			return recognition.NewTemporalHistory(cfg.ConsistencyWindow, cfg.ConsistencyMinCount, cfg.SmoothingWindow, neural)
		},
	}, logger)
	return &Worker{
		id:         id,
		source:     source,
		detector:   svc.Detector,
		extractor:  svc.Extractor,
		recognizer: recognizer,
		sink:       sink,
		debug:      svc.DebugSvc,
		cfg:        cfg,
		log:        logger,
		tracks:     tracks,
	}
}

// ID returns the stream id.
func (w *Worker) ID() string { return w.id }

// Run reads frames at the configured period until ctx is cancelled or the
// source ends. The source is closed on return.
func (w *Worker) Run(ctx context.Context) error {
	defer w.source.Close()

	frame := gocv.NewMat()
	defer frame.Close()

	interval := w.cfg.FrameInterval()
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.log.Infof("Stream worker started (interval %v)", interval)
	failures := 0
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Stream worker stopped")
			return ctx.Err()
		case <-ticker.C:
		}

		if ok := w.source.Read(&frame); !ok || frame.Empty() {
			failures++
			if failures >= maxReadFailures {
				return fmt.Errorf("stream %s: %w", w.id, ErrSourceClosed)
			}
			continue
		}
		failures = 0
		w.ProcessFrame(frame, timezone.Now())
	}
}

// ProcessFrame runs one detection, tracking and recognition cycle. A panic
// inside the cycle drops the frame.
func (w *Worker) ProcessFrame(frame gocv.Mat, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Errorf("Recovered from panic in frame cycle: %v\n%s", r, debug.Stack())
		}
	}()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames++

	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	var rects []image.Rectangle
	for _, d := range w.detector.Detect(frame) {
		if d.Rect.Dx() < w.cfg.MinFaceWidth {
			continue
		}
		rects = append(rects, d.Rect.Intersect(bounds))
	}

	handles, err := w.tracks.Update(rects)
	if err != nil {
		w.log.Errorf("Track update failed: %v", err)
		return
	}

	annotations := make([]opencv.Annotation, 0, len(handles))
	for i, h := range handles {
		t, ok := w.tracks.Get(h)
		if !ok {
			continue
		}
		if w.recognizer.Due(t) {
			w.recognize(frame, t, rects[i], bounds, now)
		}
		if t.HasDecision {
			annotations = append(annotations, opencv.Annotation{
				Rect:     rects[i],
				Label:    t.LastDecision.Label,
				Accepted: t.LastDecision.Accepted,
			})
		}
	}

	if w.debug != nil && len(annotations) > 0 {
		w.debug.AddFrame(w.id, frame, annotations)
	}
}

func (w *Worker) recognize(frame gocv.Mat, t *tracking.Track, rect, bounds image.Rectangle, now time.Time) {
	padded := PaddedRect(rect, bounds, w.cfg.FacePadding, w.cfg.MinFaceWidth)
	if padded.Empty() {
		return
	}
	crop := frame.Region(padded)
	emb, ok := w.extractor.Extract(crop)
	crop.Close()
	if !ok {
		w.log.Debugf("No embedding for track %s, frame dropped", t.ID)
		return
	}

	previous, hadPrevious := t.LastDecision, t.HasDecision
	d := w.recognizer.Recognize(t, emb, now)

	if w.sink != nil {
		w.sink.HandleDecision(Event{
			StreamID:  w.id,
			TrackID:   t.ID,
			Rect:      rect,
			Decision:  d,
			Timestamp: now,
			Changed:   !hadPrevious || previous.Accepted != d.Accepted || previous.Label != d.Label,
		})
	}
}

// Tracks returns a snapshot of the live tracks.
func (w *Worker) Tracks() []TrackInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	live := w.tracks.Tracks()
	out := make([]TrackInfo, 0, len(live))
	for _, t := range live {
		info := TrackInfo{
			ID:           t.ID.String(),
			Rect:         t.LastRect,
			Frames:       t.Frames,
			Recognitions: t.Recognitions,
			LastSeen:     t.LastSeen,
		}
		if t.HasDecision {
			info.Label = t.LastDecision.Label
			info.Accepted = t.LastDecision.Accepted
			info.Reason = t.LastDecision.Reason
		}
		out = append(out, info)
	}
	return out
}

// Reset drops all tracks, for example after the profiles were reloaded.
func (w *Worker) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tracks.Reset()
}

// FrameCount returns the number of processed frames.
func (w *Worker) FrameCount() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}
