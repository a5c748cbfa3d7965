// Package api exposes the recognition service over HTTP.
package api

import (
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"

	"face-attendance-go/internal/api/middleware"
	"face-attendance-go/internal/db/repository"
	"face-attendance-go/internal/enrollment"
	"face-attendance-go/internal/gallery"
	"face-attendance-go/internal/sse"
	"face-attendance-go/internal/stats"
	"face-attendance-go/internal/stream"
	"face-attendance-go/internal/util/timezone"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// maxUploadBytes limits one capture upload request.
const maxUploadBytes = 32 << 20

// StreamPool is the part of the stream pool the API reads and resets.
type StreamPool interface {
	ActiveStreams() int
	Tracks() map[string][]stream.TrackInfo
	ResetTracks()
}

// FaceEncoder turns an uploaded photo into an embedding and a face crop.
type FaceEncoder interface {
	EncodeImage(data []byte) (emb []byte, jpeg []byte, ok bool)
	Mode() string
}

// Handler serves the /api routes.
type Handler struct {
	registry *gallery.Registry
	pool     StreamPool
	enroller *enrollment.Service
	encoder  FaceEncoder
	repo     repository.Repository
	hub      *sse.Hub
	log      *log.Entry
}

// NewHandler creates the API handler. pool and hub may be nil when no
// streams run, for example in tests.
func NewHandler(registry *gallery.Registry, pool StreamPool, enroller *enrollment.Service,
	encoder FaceEncoder, repo repository.Repository, hub *sse.Hub) *Handler {
	return &Handler{
		registry: registry,
		pool:     pool,
		enroller: enroller,
		encoder:  encoder,
		repo:     repo,
		hub:      hub,
		log:      log.WithField("component", "api"),
	}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/status", h.GetStatus)

	router.GET("/profiles", h.ListProfiles)
	router.POST("/profiles/reload", h.ReloadProfiles)

	router.GET("/tracks", h.ListTracks)

	router.GET("/events", h.StreamEvents)
	router.GET("/events/recent", h.RecentEvents)

	router.POST("/curate", h.CurateAll)
	router.POST("/curate/:identity", h.Curate)

	router.POST("/identities/:id/captures", h.AddCaptures)
}

// GetStatus returns mode, profile and stream counts, system load and
// database statistics.
func (h *Handler) GetStatus(c *gin.Context) {
	profiles := h.registry.Profiles()
	streams := 0
	if h.pool != nil {
		streams = h.pool.ActiveStreams()
	}
	clients := 0
	if h.hub != nil {
		clients = h.hub.ClientCount()
	}

	status := gin.H{
		"status":      "ok",
		"mode":        h.encoder.Mode(),
		"profiles":    profiles.Len(),
		"frame_skip":  profiles.AdaptiveFrameSkip(),
		"streams":     streams,
		"sse_clients": clients,
		"system":      stats.GetSystemStats(h.pool),
		"language":    middleware.Language(c),
		"message": middleware.T(c, "status.summary",
			map[string]interface{}{"Profiles": profiles.Len(), "Streams": streams}, profiles.Len()),
		"timestamp": timezone.RFC3339(timezone.Now()),
	}

	dbStats, err := h.repo.GetStatistics()
	if err != nil {
		h.log.Warnf("Failed to read database statistics: %v", err)
		status["database"] = gin.H{"error": err.Error()}
	} else {
		status["database"] = dbStats
	}
	c.JSON(http.StatusOK, status)
}

type profileSummary struct {
	Label             string  `json:"label"`
	Folder            string  `json:"folder"`
	Samples           int     `json:"samples"`
	Tightness         float64 `json:"tightness"`
	AbsoluteThreshold float64 `json:"absolute_threshold"`
	RelativeMargin    float64 `json:"relative_margin"`
	StdDev            float64 `json:"std_dev"`
	Nearest           string  `json:"nearest,omitempty"`
	NearestDistance   float64 `json:"nearest_distance,omitempty"`
}

// ListProfiles returns the active profiles with their statistics.
func (h *Handler) ListProfiles(c *gin.Context) {
	snapshot := h.registry.Profiles().Snapshot()
	out := make([]profileSummary, 0, len(snapshot))
	for _, p := range snapshot {
		s := profileSummary{
			Label:             p.Label,
			Folder:            p.GalleryRef,
			Samples:           len(p.Gallery),
			Tightness:         p.Tightness,
			AbsoluteThreshold: p.AbsoluteThreshold,
			RelativeMargin:    p.RelativeMargin,
			StdDev:            p.StdDev,
		}
		if other, dist, ok := h.registry.NearestOther(p); ok {
			s.Nearest, s.NearestDistance = other, dist
		}
		out = append(out, s)
	}
	c.JSON(http.StatusOK, gin.H{"count": len(out), "profiles": out})
}

// ReloadProfiles rebuilds all profiles from disk and drops live tracks,
// whose histories refer to the old profile order.
func (h *Handler) ReloadProfiles(c *gin.Context) {
	n, err := h.registry.Reload()
	if err != nil {
		h.log.Errorf("Profile reload failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.resetTracks()
	c.JSON(http.StatusOK, gin.H{
		"profiles": n,
		"message":  middleware.T(c, "profiles.reloaded", map[string]interface{}{"Count": n}),
	})
}

// ListTracks returns the live tracks per stream.
func (h *Handler) ListTracks(c *gin.Context) {
	tracks := map[string][]stream.TrackInfo{}
	if h.pool != nil {
		tracks = h.pool.Tracks()
	}
	ids := make([]string, 0, len(tracks))
	total := 0
	for id, list := range tracks {
		ids = append(ids, id)
		total += len(list)
	}
	sort.Strings(ids)
	c.JSON(http.StatusOK, gin.H{"streams": ids, "count": total, "tracks": tracks})
}

// RecentEvents returns the latest attendance events.
func (h *Handler) RecentEvents(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 1000 {
		limit = 50
	}
	acceptedOnly := c.Query("accepted") == "true"

	events, err := h.repo.RecentEvents(limit, acceptedOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": middleware.T(c, "error.internal", nil)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(events), "events": events})
}

// StreamEvents pushes every decision to the client as server-sent events.
func (h *Handler) StreamEvents(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream not available"})
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	client := make(sse.Client, 10)
	if !h.hub.Register(client) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream stopped"})
		return
	}
	defer h.hub.Unregister(client)

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-client:
			if !ok {
				return false
			}
			c.SSEvent("decision", string(msg))
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// Curate runs the curator over one identity.
func (h *Handler) Curate(c *gin.Context) {
	res, err := h.enroller.Curate(c.Param("identity"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.resetTracks()
	c.JSON(http.StatusOK, gin.H{
		"result": res,
		"message": middleware.T(c, "curation.done", map[string]interface{}{
			"Identity": res.Identity.Label(),
			"Outliers": res.Curation.RemovedOutlierCount,
			"Weak":     res.Curation.RemovedWeakCount,
		}),
	})
}

// CurateAll runs the curator over every identity.
func (h *Handler) CurateAll(c *gin.Context) {
	results, err := h.enroller.CurateAll(nil)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.resetTracks()
	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"message": middleware.T(c, "curation.all_done", map[string]interface{}{"Count": len(results)}),
	})
}

// AddCaptures enrolls one or more uploaded photos for an identity. The
// form carries the images as "file" and an optional "name".
func (h *Handler) AddCaptures(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil || len(form.File["file"]) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": middleware.T(c, "error.no_file", nil)})
		return
	}

	var captures []enrollment.Capture
	for _, header := range form.File["file"] {
		f, err := header.Open()
		if err != nil {
			h.log.Warnf("Failed to open upload %s: %v", header.Filename, err)
			continue
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			h.log.Warnf("Failed to read upload %s: %v", header.Filename, err)
			continue
		}
		emb, jpeg, ok := h.encoder.EncodeImage(data)
		if !ok {
			h.log.Infof("No usable face in %s", header.Filename)
			continue
		}
		captures = append(captures, enrollment.Capture{Embedding: emb, Image: jpeg})
	}
	if len(captures) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": middleware.T(c, "error.no_face", nil)})
		return
	}

	name := c.PostForm("name")
	if name == "" {
		if existing, err := h.registry.Store().Find(c.Param("id")); err == nil {
			name = existing.Name
		}
	}

	res, err := h.enroller.Enroll(c.Param("id"), name, captures)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.resetTracks()

	body := gin.H{
		"result":   res,
		"uploaded": len(form.File["file"]),
		"message": middleware.T(c, "enroll.done", map[string]interface{}{
			"Saved":    res.Saved,
			"Identity": res.Identity.Label(),
		}),
	}
	if res.NearestIdentity != "" {
		body["warning"] = middleware.T(c, "enroll.duplicate", map[string]interface{}{
			"Identity": res.Identity.Label(),
			"Other":    res.NearestIdentity,
		})
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) resetTracks() {
	if h.pool != nil {
		h.pool.ResetTracks()
	}
}

func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gallery.ErrIdentityNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": middleware.T(c, "error.identity_not_found", nil)})
	case errors.Is(err, enrollment.ErrNoUsableCaptures):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": middleware.T(c, "error.no_face", nil)})
	default:
		h.log.Errorf("Request failed: %v", err)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": middleware.T(c, "error.internal", nil)})
	}
}
