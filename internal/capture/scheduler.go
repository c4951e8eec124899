package capture

import (
	"context"
	"log"
	"time"

	"github.com/relabs-tech/spectrometer_viewer/internal/spectrum"
)

// DefaultTickInterval is shorter than the instrument's own scan cadence so
// no frame is structurally missed.
const DefaultTickInterval = 30 * time.Millisecond

// RenderSink consumes every published spectrum. Render is called on the
// scheduler goroutine and must not block for long.
type RenderSink interface {
	Render(s *spectrum.Spectrum)
}

// RenderFunc adapts a plain function to RenderSink.
type RenderFunc func(s *spectrum.Spectrum)

func (f RenderFunc) Render(s *spectrum.Spectrum) { f(s) }

type reply struct {
	res Result
	err error
}

type request struct {
	cmd   Command
	reply chan reply
}

// Scheduler owns the session goroutine. Ticks and operator commands are
// serialized in Run, so a batch always completes before the next command is
// looked at.
type Scheduler struct {
	session  *Session
	interval time.Duration
	sinks    []RenderSink
	requests chan request
}

// NewScheduler creates a scheduler ticking every interval (DefaultTickInterval
// when interval <= 0).
func NewScheduler(session *Session, interval time.Duration, sinks ...RenderSink) *Scheduler {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Scheduler{
		session:  session,
		interval: interval,
		sinks:    sinks,
		requests: make(chan request),
	}
}

// AddSink registers another sink. Call before Run.
func (s *Scheduler) AddSink(sink RenderSink) {
	s.sinks = append(s.sinks, sink)
}

// Tick runs one pipeline step. It does nothing unless the session is
// capturing and reports whether a batch ran.
func (s *Scheduler) Tick() bool {
	if s.session.State() != Capturing {
		return false
	}

	result, batch := s.session.acquire()
	if batch.Failed() {
		log.Printf("scheduler: all %d scans failed, keeping previous spectrum", batch.Attempts)
	}
	if result == nil {
		return true
	}

	for _, sink := range s.sinks {
		sink.Render(result)
	}
	return true
}

// Run drives Tick from a ticker and executes commands submitted through Do
// until ctx is cancelled. Ticks that fire while a batch is running are
// dropped by the ticker.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("scheduler: running, tick every %s", s.interval)

	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: stopped")
			return nil
		case <-ticker.C:
			s.Tick()
		case req := <-s.requests:
			res, err := Dispatch(s.session, req.cmd)
			req.reply <- reply{res: res, err: err}
		}
	}
}

// Do submits cmd to the run loop and waits for its result.
func (s *Scheduler) Do(ctx context.Context, cmd Command) (Result, error) {
	req := request{cmd: cmd, reply: make(chan reply, 1)}

	select {
	case s.requests <- req:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case r := <-req.reply:
		return r.res, r.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Latest returns the most recent published spectrum; safe from any goroutine.
func (s *Scheduler) Latest() *spectrum.Spectrum {
	return s.session.Latest()
}
