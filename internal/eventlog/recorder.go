// Package eventlog records registration lifecycle events off the request path.
//
// Handlers call Record, which enqueues and returns immediately. A single
// worker drains the queue into the configured sinks. A full queue drops the
// event; a failing sink is logged. Neither ever reaches the caller.
package eventlog

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Shivanand-hulikatti/weekender-registration/internal/metrics"
)

// Sink receives lifecycle events.
type Sink interface {
	Name() string
	Write(ctx context.Context, sessionID, eventType string, metadata map[string]any) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc struct {
	SinkName string
	Fn       func(ctx context.Context, sessionID, eventType string, metadata map[string]any) error
}

func (f SinkFunc) Name() string { return f.SinkName }

func (f SinkFunc) Write(ctx context.Context, sessionID, eventType string, metadata map[string]any) error {
	return f.Fn(ctx, sessionID, eventType, metadata)
}

type entry struct {
	sessionID string
	eventType string
	metadata  map[string]any
}

// Recorder is a bounded, non-blocking event queue with one worker.
type Recorder struct {
	queue        chan entry
	sinks        []Sink
	writeTimeout time.Duration

	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}
}

// NewRecorder starts the worker. size is the queue capacity.
func NewRecorder(size int, sinks ...Sink) *Recorder {
	if size <= 0 {
		size = 256
	}
	r := &Recorder{
		queue:        make(chan entry, size),
		sinks:        sinks,
		writeTimeout: 5 * time.Second,
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues an event. It never blocks; the event is dropped when the
// queue is full or the recorder is closing.
func (r *Recorder) Record(sessionID, eventType string, metadata map[string]any) {
	if r == nil || sessionID == "" {
		return
	}
	select {
	case <-r.closing:
		metrics.EventsDroppedTotal.Inc()
		return
	default:
	}
	select {
	case r.queue <- entry{sessionID: sessionID, eventType: eventType, metadata: metadata}:
	default:
		metrics.EventsDroppedTotal.Inc()
		log.Warn().Str("session_id", sessionID).Str("event", eventType).Msg("event queue full, dropping lifecycle event")
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for {
		select {
		case e := <-r.queue:
			r.write(e)
		case <-r.closing:
			for {
				select {
				case e := <-r.queue:
					r.write(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(e entry) {
	for _, s := range r.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
		err := s.Write(ctx, e.sessionID, e.eventType, e.metadata)
		cancel()
		if err != nil {
			metrics.EventSinkErrorsTotal.WithLabelValues(s.Name()).Inc()
			log.Warn().Err(err).
				Str("sink", s.Name()).
				Str("session_id", e.sessionID).
				Str("event", e.eventType).
				Msg("lifecycle event sink failed")
		}
	}
}

// Close stops accepting events and waits for the queue to drain or ctx to end.
func (r *Recorder) Close(ctx context.Context) error {
	r.closeOnce.Do(func() { close(r.closing) })
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
