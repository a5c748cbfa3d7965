// Package tracking associates face detections across frames into stable
// tracks.
package tracking

import (
	"container/heap"
	"image"
	"math"
	"sort"
	"time"

	"face-attendance-go/internal/recognition"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Defaults for matching and eviction.
const (
	DefaultMaxMisses    = 10
	DefaultMinGate      = 80.0
	DefaultGateSizeRate = 0.6
)

// Handle addresses a track in the manager's arena. A handle becomes stale
// when its track is evicted; slots are reused with a new generation.
type Handle uint64

func makeHandle(index, gen uint32) Handle { return Handle(uint64(index)<<32 | uint64(gen)) }

func (h Handle) index() uint32 { return uint32(h >> 32) }
func (h Handle) gen() uint32   { return uint32(h) }

type slot struct {
	track *Track
	gen   uint32
}

// Options configures a TrackManager.
type Options struct {
	MaxMisses    int
	MinGate      float64
	GateSizeRate float64
	// FrameInterval is the expected time between ticks, used as the Kalman dt.
	FrameInterval time.Duration
	NewHistory    func() *recognition.TemporalHistory
	OnEvict       func(t *Track)
}

// TrackManager owns all tracks of one stream. It is not safe for
// concurrent use; each stream needs its own manager.
type TrackManager struct {
	opts  Options
	slots []slot
	free  []uint32
	live  int
	now   func() time.Time
	log   *log.Entry
}

// NewTrackManager creates an empty manager.
func NewTrackManager(opts Options, logger *log.Entry) *TrackManager {
	if opts.MaxMisses <= 0 {
		opts.MaxMisses = DefaultMaxMisses
	}
	if opts.MinGate <= 0 {
		opts.MinGate = DefaultMinGate
	}
	if opts.GateSizeRate <= 0 {
		opts.GateSizeRate = DefaultGateSizeRate
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = 100 * time.Millisecond
	}
	if opts.NewHistory == nil {
		opts.NewHistory = func() *recognition.TemporalHistory {
			return recognition.NewTemporalHistory(recognition.DefaultConsistencyWindow,
				recognition.DefaultConsistencyMin, recognition.DefaultSmoothingWindow, true)
		}
	}
	if logger == nil {
		logger = log.WithField("component", "tracker")
	}
	return &TrackManager{opts: opts, now: time.Now, log: logger}
}

// candidate is a possible (detection, track) pairing.
type candidate struct {
	rect     int
	slot     uint32
	distance float64
}

type candidateHeap []candidate

func (h candidateHeap) Len() int { return len(h) }
func (h candidateHeap) Less(i, j int) bool {
	if h[i].distance != h[j].distance {
		return h[i].distance < h[j].distance
	}
	if h[i].rect != h[j].rect {
		return h[i].rect < h[j].rect
	}
	return h[i].slot < h[j].slot
}
func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x any)   { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

// Update runs one tick: every miss counter increments, each rectangle is
// matched to the nearest free track within its gate (closest pairs first),
// unmatched rectangles open new tracks, and tracks missed more than
// MaxMisses times are evicted. The returned handles align with rects.
func (m *TrackManager) Update(rects []image.Rectangle) ([]Handle, error) {
	now := m.now()

	for i := range m.slots {
		if t := m.slots[i].track; t != nil {
			t.FramesSinceSeen++
			t.predict()
		}
	}

	pq := &candidateHeap{}
	for r, rect := range rects {
		c := centerOf(rect)
		for i := range m.slots {
			t := m.slots[i].track
			if t == nil {
				continue
			}
			d := t.distanceTo(c)
			if d < m.gate(t) {
				*pq = append(*pq, candidate{rect: r, slot: uint32(i), distance: d})
			}
		}
	}
	heap.Init(pq)

	handles := make([]Handle, len(rects))
	assigned := make([]bool, len(rects))
	reserved := make(map[uint32]struct{})
	for pq.Len() > 0 {
		c := heap.Pop(pq).(candidate)
		if assigned[c.rect] {
			continue
		}
		if _, ok := reserved[c.slot]; ok {
			continue
		}
		t := m.slots[c.slot].track
		if err := t.update(rects[c.rect], now); err != nil {
			return nil, errors.Wrapf(err, "can't update track %s", t.ID)
		}
		reserved[c.slot] = struct{}{}
		assigned[c.rect] = true
		handles[c.rect] = t.handle
	}

	dt := m.opts.FrameInterval.Seconds()
	for r, rect := range rects {
		if assigned[r] {
			continue
		}
		t := newTrack(rect, m.opts.NewHistory(), dt, now)
		m.insert(t)
		handles[r] = t.handle
		m.log.Debugf("Opened track %s at %v", t.ID, rect)
	}

	m.sweep()
	return handles, nil
}

// gate is the maximum centre distance at which t can still be matched.
func (m *TrackManager) gate(t *Track) float64 {
	return math.Max(m.opts.MinGate, m.opts.GateSizeRate*t.avgSize)
}

func (m *TrackManager) insert(t *Track) {
	var idx uint32
	if n := len(m.free); n > 0 {
		idx = m.free[n-1]
		m.free = m.free[:n-1]
		m.slots[idx].gen++
	} else {
		idx = uint32(len(m.slots))
		m.slots = append(m.slots, slot{})
	}
	m.slots[idx].track = t
	t.handle = makeHandle(idx, m.slots[idx].gen)
	m.live++
}

// sweep evicts every track whose miss counter exceeds MaxMisses, dropping
// its history with it.
func (m *TrackManager) sweep() {
	for i := range m.slots {
		t := m.slots[i].track
		if t == nil || t.FramesSinceSeen <= m.opts.MaxMisses {
			continue
		}
		m.slots[i].track = nil
		m.free = append(m.free, uint32(i))
		m.live--
		m.log.Debugf("Evicted track %s after %d missed frames", t.ID, t.FramesSinceSeen)
		if m.opts.OnEvict != nil {
			m.opts.OnEvict(t)
		}
		t.History = nil
	}
}

// Get resolves a handle. ok is false for evicted tracks.
func (m *TrackManager) Get(h Handle) (*Track, bool) {
	idx := h.index()
	if int(idx) >= len(m.slots) {
		return nil, false
	}
	s := m.slots[idx]
	if s.track == nil || s.gen != h.gen() {
		return nil, false
	}
	return s.track, true
}

// Len returns the number of live tracks.
func (m *TrackManager) Len() int { return m.live }

// Tracks returns the live tracks, oldest first.
func (m *TrackManager) Tracks() []*Track {
	out := make([]*Track, 0, m.live)
	for _, s := range m.slots {
		if s.track != nil {
			out = append(out, s.track)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Reset drops every track.
func (m *TrackManager) Reset() {
	for i := range m.slots {
		if t := m.slots[i].track; t != nil {
			t.FramesSinceSeen = math.MaxInt32
		}
	}
	m.sweep()
}
