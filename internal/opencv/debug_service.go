package opencv

import (
	"fmt"
	"image"
	"image/color"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Annotation ist ein eingezeichnetes Gesicht mit Beschriftung
type Annotation struct {
	Rect     image.Rectangle
	Label    string
	Accepted bool
}

// DebugFrame repräsentiert ein annotiertes Frame eines Streams
type DebugFrame struct {
	ID        string    // Eindeutige ID, "<stream>-<sequenz>"
	StreamID  string    // Quelle des Frames
	Timestamp time.Time // Zeitstempel des Frames
	ImageData []byte    // JPEG mit eingezeichneten Entscheidungen
	Faces     int       // Anzahl erkannter Gesichter
	Labels    []string  // Beschriftungen in Reihenfolge der Gesichter
}

// DebugService speichert die letzten annotierten Frames im Speicher
type DebugService struct {
	frames    map[string]*DebugFrame // Frames, indiziert nach ID
	order     []*DebugFrame          // Liste für zeitliche Sortierung
	maxFrames int
	seq       map[string]int
	mutex     sync.RWMutex
}

// NewDebugService erstellt einen neuen Debug-Service
func NewDebugService(maxFrames int) *DebugService {
	if maxFrames <= 0 {
		maxFrames = 20
	}
	return &DebugService{
		frames:    make(map[string]*DebugFrame),
		order:     make([]*DebugFrame, 0, maxFrames),
		maxFrames: maxFrames,
		seq:       make(map[string]int),
	}
}

// AddFrame zeichnet die Annotationen in eine Kopie von frame und speichert
// das Ergebnis als JPEG
func (s *DebugService) AddFrame(streamID string, frame gocv.Mat, annotations []Annotation) {
	if frame.Empty() {
		return
	}
	data, err := annotate(frame, annotations)
	if err != nil {
		log.Errorf("Konnte Debug-Frame nicht encodieren: %v", err)
		return
	}
	labels := make([]string, len(annotations))
	for i, a := range annotations {
		labels[i] = a.Label
	}
	s.add(streamID, data, labels)
}

func (s *DebugService) add(streamID string, data []byte, labels []string) *DebugFrame {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.seq[streamID]++
	f := &DebugFrame{
		ID:        fmt.Sprintf("%s-%d", streamID, s.seq[streamID]),
		StreamID:  streamID,
		Timestamp: time.Now(),
		ImageData: data,
		Faces:     len(labels),
		Labels:    labels,
	}
	s.frames[f.ID] = f
	s.order = append(s.order, f)

	if len(s.order) > s.maxFrames {
		oldest := s.order[0]
		delete(s.frames, oldest.ID)
		s.order = s.order[1:]
	}
	log.Tracef("Debug-Frame hinzugefügt: %s mit %d Gesichtern", f.ID, f.Faces)
	return f
}

func annotate(frame gocv.Mat, annotations []Annotation) ([]byte, error) {
	vis := frame.Clone()
	defer vis.Close()

	for _, a := range annotations {
		c := color.RGBA{R: 255, A: 0}
		if a.Accepted {
			c = color.RGBA{G: 255, A: 0}
		}
		gocv.Rectangle(&vis, a.Rect, c, 2)
		gocv.PutText(&vis, a.Label, image.Pt(a.Rect.Min.X, a.Rect.Min.Y-5),
			gocv.FontHersheyPlain, 1.2, c, 2)
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, vis)
	if err != nil {
		return nil, err
	}
	defer buf.Close()
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// GetLatestFrames gibt die neuesten Frames zurück, älteste zuerst
func (s *DebugService) GetLatestFrames(count int) []*DebugFrame {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if count <= 0 || count > len(s.order) {
		count = len(s.order)
	}
	result := make([]*DebugFrame, count)
	copy(result, s.order[len(s.order)-count:])
	return result
}

// GetFrame gibt ein bestimmtes Frame anhand seiner ID zurück
func (s *DebugService) GetFrame(id string) *DebugFrame {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.frames[id]
}

// RegisterRoutes registriert die API-Routen für den Debug-Service
func (s *DebugService) RegisterRoutes(router gin.IRouter) {
	router.GET("/api/debug/frames", s.handleGetLatestFrames)
	router.GET("/api/debug/frames/:id", s.handleGetFrame)
	log.Debug("Debug-Routes registriert: /api/debug/frames, /api/debug/frames/:id")
}

func (s *DebugService) handleGetLatestFrames(c *gin.Context) {
	count, err := strconv.Atoi(c.DefaultQuery("count", "10"))
	if err != nil {
		count = 10
	}

	type frameMetadata struct {
		ID        string    `json:"id"`
		StreamID  string    `json:"streamId"`
		Timestamp time.Time `json:"timestamp"`
		Faces     int       `json:"faces"`
		Labels    []string  `json:"labels"`
		URL       string    `json:"url"`
	}

	frames := s.GetLatestFrames(count)
	metadata := make([]frameMetadata, len(frames))
	for i, f := range frames {
		metadata[i] = frameMetadata{
			ID:        f.ID,
			StreamID:  f.StreamID,
			Timestamp: f.Timestamp,
			Faces:     f.Faces,
			Labels:    f.Labels,
			URL:       "/api/debug/frames/" + f.ID,
		}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(metadata), "frames": metadata})
}

func (s *DebugService) handleGetFrame(c *gin.Context) {
	f := s.GetFrame(c.Param("id"))
	if f == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "frame not found", "requested_id": c.Param("id")})
		return
	}
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
	c.Data(http.StatusOK, "image/jpeg", f.ImageData)
}
