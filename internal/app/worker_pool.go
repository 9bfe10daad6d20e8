package app

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/rs/zerolog/log"
)

// WorkerPool hands out media workers round-robin.
type WorkerPool struct {
	workers []core.Worker
	cursor  atomic.Uint64

	onFatal   func(error)
	fatalOnce sync.Once
}

// NewWorkerPool panics on an empty worker list; a server without workers is
// a startup bug.
func NewWorkerPool(workers []core.Worker, onFatal func(error)) *WorkerPool {
	if len(workers) == 0 {
		panic("app: worker pool needs at least one worker")
	}
	return &WorkerPool{workers: workers, onFatal: onFatal}
}

func (p *WorkerPool) Next() core.Worker {
	n := p.cursor.Add(1) - 1
	return p.workers[n%uint64(len(p.workers))]
}

func (p *WorkerPool) Size() int { return len(p.workers) }

// Watch reports the first worker death to onFatal. It returns when ctx is
// done.
func (p *WorkerPool) Watch(ctx context.Context) {
	for _, w := range p.workers {
		go func(w core.Worker) {
			select {
			case <-ctx.Done():
			case err := <-w.Died():
				log.Error().
					Err(err).
					Str("module", "app.workers").
					Str("worker_id", w.ID()).
					Msg("media worker died")
				p.fatalOnce.Do(func() {
					if p.onFatal != nil {
						p.onFatal(err)
					}
				})
			}
		}(w)
	}
}

func (p *WorkerPool) Close() {
	for _, w := range p.workers {
		w.Close()
	}
}
