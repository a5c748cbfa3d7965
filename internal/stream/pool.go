package stream

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"face-attendance-go/config"

	log "github.com/sirupsen/logrus"
)

// Opener opens the frame source of a configured stream.
type Opener func(cfg config.StreamConfig) (FrameSource, error)

// WorkerFactory builds the worker for an opened stream.
type WorkerFactory func(cfg config.StreamConfig, source FrameSource) *Worker

// Pool verwaltet die Worker-Goroutinen aller Streams
type Pool struct {
	open    Opener
	factory WorkerFactory

	mu       sync.Mutex
	workers  map[string]*Worker
	starting map[string]struct{} // IDs, deren Quelle gerade geöffnet wird
	wg       sync.WaitGroup
}

// NewPool erstellt einen neuen Pool
func NewPool(open Opener, factory WorkerFactory) *Pool {
	if open == nil {
		open = OpenCapture
	}
	return &Pool{
		open:     open,
		factory:  factory,
		workers:  make(map[string]*Worker),
		starting: make(map[string]struct{}),
	}
}

// Start öffnet jeden Stream und startet seinen Worker. Streams, die sich
// nicht öffnen lassen, werden protokolliert und übersprungen.
func (p *Pool) Start(ctx context.Context, streams []config.StreamConfig) int {
	log.Infof("Starting stream pool with %d configured streams", len(streams))
	started := 0
	for _, sc := range streams {
		if err := p.StartStream(ctx, sc); err != nil {
			log.Errorf("Stream %s not started: %v", sc.ID, err)
			continue
		}
		started++
	}
	return started
}

// StartStream startet einen einzelnen Stream. Die ID wird vor dem Öffnen
// der Quelle reserviert, parallele Starts derselben ID schlagen fehl.
func (p *Pool) StartStream(ctx context.Context, sc config.StreamConfig) error {
	p.mu.Lock()
	_, running := p.workers[sc.ID]
	_, pending := p.starting[sc.ID]
	if running || pending {
		p.mu.Unlock()
		return fmt.Errorf("stream %s is already running", sc.ID)
	}
	p.starting[sc.ID] = struct{}{}
	p.mu.Unlock()

	source, err := p.open(sc)
	if err != nil {
		p.mu.Lock()
		delete(p.starting, sc.ID)
		p.mu.Unlock()
		return err
	}
	w := p.factory(sc, source)

	p.mu.Lock()
	delete(p.starting, sc.ID)
	p.workers[sc.ID] = w
	p.wg.Add(1)
	p.mu.Unlock()

	go p.run(ctx, w)
	return nil
}

func (p *Pool) run(ctx context.Context, w *Worker) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		delete(p.workers, w.ID())
		p.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Stream worker %s crashed: %v\n%s", w.ID(), r, debug.Stack())
		}
	}()

	err := w.Run(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		log.Debugf("Stream worker %s shut down", w.ID())
	default:
		log.Warnf("Stream worker %s ended: %v", w.ID(), err)
	}
}

// ActiveStreams gibt die Anzahl der laufenden Streams zurück
func (p *Pool) ActiveStreams() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Workers gibt die laufenden Worker nach ID sortiert zurück
func (p *Pool) Workers() []*Worker {
	p.mu.Lock()
	out := make([]*Worker, 0, len(p.workers))
	for _, w := range p.workers {
		out = append(out, w)
	}
	p.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Tracks liefert die aktiven Tracks je Stream
func (p *Pool) Tracks() map[string][]TrackInfo {
	out := make(map[string][]TrackInfo)
	for _, w := range p.Workers() {
		out[w.ID()] = w.Tracks()
	}
	return out
}

// ResetTracks verwirft alle Tracks, z.B. nach dem Neuladen der Profile,
// da sich die Profil-Indizes der Historien dabei verschieben
func (p *Pool) ResetTracks() {
	for _, w := range p.Workers() {
		w.Reset()
	}
}

// Wait blockiert, bis alle Worker beendet sind
func (p *Pool) Wait() {
	p.wg.Wait()
}
