// Package audit records one entry per answered query. Sinks are best effort:
// a failing sink is logged and never reaches the caller.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"civiccite/internal/logger"
)

type Record struct {
	RequestID     string           `json:"request_id"`
	SessionHash   string           `json:"session_hash,omitempty"`
	Language      string           `json:"language"`
	Channel       string           `json:"channel"`
	Resolution    string           `json:"resolution"`
	GuidanceKey   string           `json:"guidance_key,omitempty"`
	UsedChunkIDs  []string         `json:"used_chunk_ids"`
	TopSimilarity float64          `json:"top_similarity"`
	TimingsMS     map[string]int64 `json:"timing_ms"`
	PolicyVersion string           `json:"policy_version"`
	CreatedAt     time.Time        `json:"created_at"`
}

type Sink interface {
	Name() string
	Write(ctx context.Context, rec Record) error
}

// Emitter fans a record out to every configured sink. After Async, sink
// writes happen on background workers fed by a bounded queue; a full or
// closed queue falls back to writing inline so no record is dropped.
type Emitter struct {
	sinks   []Sink
	log     *logger.Logger
	timeout time.Duration

	mu     sync.RWMutex
	queue  chan Record
	closed bool
	wg     sync.WaitGroup
}

func NewEmitter(log *logger.Logger, timeout time.Duration, sinks ...Sink) *Emitter {
	if log == nil {
		log = logger.NewNop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Emitter{sinks: sinks, log: log, timeout: timeout}
}

// Async starts workers draining a queue of size records. It must be called
// before the first Emit. A size of 0 keeps writes inline.
func (e *Emitter) Async(size, workers int) *Emitter {
	if e == nil || size <= 0 || len(e.sinks) == 0 {
		return e
	}
	workers = max(workers, 1)
	e.queue = make(chan Record, size)
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for rec := range e.queue {
				e.write(context.Background(), rec)
			}
		}()
	}
	return e
}

func (e *Emitter) Sinks() []string {
	out := make([]string, 0, len(e.sinks))
	for _, s := range e.sinks {
		out = append(out, s.Name())
	}
	return out
}

// Emit hands rec to the sinks. Inline writes are detached from the request
// context so a finished request does not cancel its audit.
func (e *Emitter) Emit(ctx context.Context, rec Record) {
	if e == nil {
		return
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.UsedChunkIDs == nil {
		rec.UsedChunkIDs = []string{}
	}

	e.mu.RLock()
	if e.queue != nil && !e.closed {
		select {
		case e.queue <- rec:
			e.mu.RUnlock()
			return
		default:
			e.log.Warn("audit queue full; writing inline", "request_id", rec.RequestID)
		}
	}
	e.mu.RUnlock()
	e.write(context.WithoutCancel(ctx), rec)
}

// Close stops accepting queued records and waits until the queue is drained
// or ctx ends.
func (e *Emitter) Close(ctx context.Context) error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	if e.queue == nil || e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain audit queue: %w", ctx.Err())
	}
}

func (e *Emitter) write(base context.Context, rec Record) {
	for _, s := range e.sinks {
		sctx, cancel := context.WithTimeout(base, e.timeout)
		if err := s.Write(sctx, rec); err != nil {
			e.log.Warn("audit sink failed", "sink", s.Name(), "request_id", rec.RequestID, "error", err)
		}
		cancel()
	}
}
