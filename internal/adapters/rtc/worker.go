// Package rtc is the in-process media engine: workers own routers, routers
// own transports, and transports carry producers and consumers whose packets
// are fanned out by the sfu relay.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Huddle/internal/app/sfu"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	EnginePion     = "pion"
	EngineLoopback = "loopback"
)

var (
	ErrWorkerClosed  = errors.New("worker closed")
	ErrRouterClosed  = errors.New("router closed")
	ErrUnknownEngine = errors.New("unknown media engine")
)

type WorkerConfig struct {
	Engine       string
	RTCMinPort   uint16
	RTCMaxPort   uint16
	AnnouncedIPs []string
	ICEServers   []string
}

type Worker struct {
	id      string
	cfg     WorkerConfig
	newLink linkFactory
	relays  *sfu.RelayManager

	died    chan error
	dieOnce sync.Once

	mu      sync.Mutex
	routers map[string]*Router
	closed  bool
}

var _ core.Worker = (*Worker)(nil)

func NewWorker(cfg WorkerConfig) (*Worker, error) {
	w := &Worker{
		id:      uuid.NewString(),
		cfg:     cfg,
		died:    make(chan error, 1),
		routers: make(map[string]*Router),
	}
	switch cfg.Engine {
	case EnginePion, "":
		w.cfg.Engine = EnginePion
		w.newLink = newPionLink
	case EngineLoopback:
		w.newLink = newLoopbackLink
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, cfg.Engine)
	}
	w.relays = sfu.NewRelayManager(w.fault)

	log.Info().
		Str("module", "rtc").
		Str("worker_id", w.id).
		Str("engine", w.cfg.Engine).
		Msg("worker started")
	return w, nil
}

// StartWorkers creates n workers concurrently. On any failure the workers
// already created are closed.
func StartWorkers(ctx context.Context, n int, cfg WorkerConfig) ([]core.Worker, error) {
	if n < 1 {
		n = 1
	}
	out := make([]*Worker, n)
	g, _ := errgroup.WithContext(ctx)
	for i := range n {
		g.Go(func() error {
			w, err := NewWorker(cfg)
			if err != nil {
				return err
			}
			out[i] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, w := range out {
			if w != nil {
				w.Close()
			}
		}
		return nil, err
	}

	workers := make([]core.Worker, n)
	for i, w := range out {
		workers[i] = w
	}
	return workers, nil
}

func (w *Worker) ID() string { return w.id }

func (w *Worker) Died() <-chan error { return w.died }

// fault marks the worker dead. Only the first cause is delivered.
func (w *Worker) fault(err error) {
	w.dieOnce.Do(func() {
		log.Error().Err(err).Str("module", "rtc").Str("worker_id", w.id).Msg("worker died")
		w.died <- err
		close(w.died)
	})
}

func (w *Worker) CreateRouter(ctx context.Context, codecs []domain.RtpCodecCapability) (core.Router, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	caps, err := routerCapabilities(codecs)
	if err != nil {
		return nil, err
	}
	r := &Router{
		id:         uuid.NewString(),
		worker:     w,
		caps:       caps,
		transports: make(map[domain.TransportID]*Transport),
		producers:  make(map[domain.ProducerID]*Producer),
	}
	if w.cfg.Engine == EnginePion {
		if r.api, err = newPionAPI(w.cfg, caps); err != nil {
			return nil, err
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrWorkerClosed
	}
	w.routers[r.id] = r

	log.Debug().Str("module", "rtc").Str("worker_id", w.id).Str("router_id", r.id).Msg("router created")
	return r, nil
}

func (w *Worker) removeRouter(id string) {
	w.mu.Lock()
	delete(w.routers, id)
	w.mu.Unlock()
}

func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	routers := make([]*Router, 0, len(w.routers))
	for _, r := range w.routers {
		routers = append(routers, r)
	}
	w.mu.Unlock()

	for _, r := range routers {
		r.Close()
	}
	w.relays.StopAll()
	log.Info().Str("module", "rtc").Str("worker_id", w.id).Msg("worker closed")
}
