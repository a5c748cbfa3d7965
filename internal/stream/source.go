package stream

import (
	"fmt"

	"face-attendance-go/config"

	"gocv.io/x/gocv"
)

// FrameSource delivers frames. *gocv.VideoCapture satisfies it.
type FrameSource interface {
	Read(m *gocv.Mat) bool
	Close() error
}

// OpenCapture opens a camera index or URL.
func OpenCapture(cfg config.StreamConfig) (FrameSource, error) {
	capture, err := gocv.OpenVideoCapture(cfg.Source())
	if err != nil {
		return nil, fmt.Errorf("failed to open stream %s (%s): %w", cfg.ID, cfg.Source(), err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("stream %s (%s) could not be opened", cfg.ID, cfg.Source())
	}
	return capture, nil
}
