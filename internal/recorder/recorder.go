// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package recorder oversamples a slow location provider at a fixed cadence,
// buffers the samples in batches and rewrites the whole session on every
// full batch. Heading readings that arrive out of band are attached to the
// last persisted sample.
package recorder

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/relabs-tech/location_recorder/internal/gps"
)

const (
	// DefaultBatchSize is 0.4 s of samples at 50 Hz.
	DefaultBatchSize = 20
	// DefaultInterval is the 50 Hz tick.
	DefaultInterval = 20 * time.Millisecond
)

// FixReader is the part of the location provider the sampler polls.
// Both calls must be non-blocking.
type FixReader interface {
	Fix() (gps.Fix, bool)
	Heading() (gps.Heading, bool)
}

// Sink persists the full sample sequence. Each call replaces what the
// previous call wrote.
type Sink interface {
	Write(samples []Sample) error
}

// Event is a message handled by Recorder.Handle.
type Event interface {
	event()
}

// Tick asks the sampler to capture the provider state at At.
type Tick struct {
	At time.Time
}

// HeadingUpdated carries an asynchronous heading reading.
// A negative Accuracy marks the reading unreliable.
type HeadingUpdated struct {
	Value    float64
	Accuracy float64
}

func (Tick) event()           {}
func (HeadingUpdated) event() {}

// Reliable reports whether the reading should be applied.
func (h HeadingUpdated) Reliable() bool {
	return h.Accuracy >= 0
}

// Status summarizes a recording session.
type Status struct {
	SessionID     string    `json:"sessionId"`
	Path          string    `json:"path"`
	StartedAt     time.Time `json:"startedAt"`
	Samples       int       `json:"samples"`
	Pending       int       `json:"pending"`
	Queued        int       `json:"queued"`
	Flushes       int       `json:"flushes"`
	FailedFlushes int       `json:"failedFlushes"`
	LastFlush     time.Time `json:"lastFlush"`
	LastError     string    `json:"lastError,omitempty"`
	Stopped       bool      `json:"stopped"`
}

// Options configures a Recorder.
type Options struct {
	BatchSize int
	SessionID string
	Path      string
	StartedAt time.Time
	// Deferred marks a sink whose Write only queues the snapshot. Flushes
	// then count as written once the outcome comes back through ReportWrite.
	Deferred bool
	// OnFlush is called after every flush attempt and every ReportWrite,
	// outside the recorder lock.
	OnFlush func(Status)
}

// Recorder owns the batch and the sample sequence of one session.
// Ticks and heading events are expected from a single goroutine (Run);
// the lock makes the accessors safe to call from anywhere else.
type Recorder struct {
	src       FixReader
	sink      Sink
	batchSize int
	deferred  bool
	onFlush   func(Status)

	// writeMu keeps snapshots reaching the sink in the order they were taken.
	writeMu sync.Mutex

	mu      sync.Mutex
	batch   []Sample
	samples []Sample
	status  Status
}

// New creates a Recorder reading from src and persisting to sink.
func New(src FixReader, sink Sink, opts Options) *Recorder {
	size := opts.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	started := opts.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	return &Recorder{
		src:       src,
		sink:      sink,
		batchSize: size,
		deferred:  opts.Deferred,
		onFlush:   opts.OnFlush,
		batch:     make([]Sample, 0, size),
		status: Status{
			SessionID: opts.SessionID,
			Path:      opts.Path,
			StartedAt: started,
		},
	}
}

// Handle applies one event. It never returns an error: missing fixes,
// unreliable headings and storage failures are all absorbed here.
func (r *Recorder) Handle(ev Event) {
	switch e := ev.(type) {
	case Tick:
		r.tick(e.At)
	case HeadingUpdated:
		r.annotate(e)
	}
}

// Run drives the recorder until ctx is cancelled: one Tick per interval and
// one HeadingUpdated per reading received on headings. All events are handled
// on the calling goroutine. On cancellation the residual batch is flushed.
func (r *Recorder) Run(ctx context.Context, interval time.Duration, headings <-chan gps.Heading) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("recorder: session %s sampling every %s, batch of %d", r.status.SessionID, interval, r.batchSize)

	for {
		select {
		case <-ctx.Done():
			r.Stop()
			return nil
		case <-ticker.C:
			r.Handle(Tick{At: time.Now()})
		case h, ok := <-headings:
			if !ok {
				headings = nil
				continue
			}
			r.Handle(HeadingUpdated{Value: h.MagneticHeading, Accuracy: h.Accuracy})
		}
	}
}

func (r *Recorder) tick(at time.Time) {
	fix, ok := r.src.Fix()
	if !ok {
		return
	}
	var heading *float64
	// unreliable readings are left out on purpose, same rule as annotate
	if h, ok := r.src.Heading(); ok && h.Reliable() {
		heading = headingPtr(h.MagneticHeading)
	}
	s := NewSample(at, fix, heading)

	r.mu.Lock()
	if r.status.Stopped {
		r.mu.Unlock()
		return
	}
	r.batch = append(r.batch, s)
	full := len(r.batch) >= r.batchSize
	r.mu.Unlock()

	if full {
		r.Flush()
	}
}

// annotate sets the heading of the last sample of the sequence. A sample
// still waiting in the batch is never annotated.
func (r *Recorder) annotate(e HeadingUpdated) {
	if !e.Reliable() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.samples) == 0 {
		return
	}
	// a fresh pointer, so snapshots handed to the sink stay untouched
	r.samples[len(r.samples)-1].MagneticHeading = headingPtr(e.Value)
}

// Flush moves the batch to the end of the sequence and rewrites the whole
// sequence through the sink. A failed write is logged and counted; the
// samples stay in memory and go out with the next flush.
func (r *Recorder) Flush() {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	r.samples = append(r.samples, r.batch...)
	r.batch = r.batch[:0]
	snapshot := make([]Sample, len(r.samples))
	copy(snapshot, r.samples)
	r.mu.Unlock()

	err := r.sink.Write(snapshot)

	r.mu.Lock()
	if err == nil && r.deferred {
		r.status.Queued++
		st := r.statusLocked()
		r.mu.Unlock()
		r.notify(st)
		return
	}
	st := r.recordWriteLocked(err)
	r.mu.Unlock()

	if err != nil {
		log.Printf("recorder: error saving %d samples: %v", len(snapshot), err)
	}
	r.notify(st)
}

// ReportWrite records the outcome of a write that a deferred sink accepted
// earlier. It may be called from any goroutine.
func (r *Recorder) ReportWrite(err error) {
	r.mu.Lock()
	st := r.recordWriteLocked(err)
	r.mu.Unlock()

	if err != nil {
		log.Printf("recorder: error saving session %s: %v", st.SessionID, err)
	}
	r.notify(st)
}

func (r *Recorder) recordWriteLocked(err error) Status {
	if err != nil {
		r.status.FailedFlushes++
		r.status.LastError = err.Error()
	} else {
		r.status.Flushes++
		r.status.LastFlush = time.Now()
		r.status.LastError = ""
	}
	return r.statusLocked()
}

func (r *Recorder) notify(st Status) {
	if r.onFlush != nil {
		r.onFlush(st)
	}
}

// Stop ends the session. A partial batch is flushed so no captured sample
// is lost; later ticks are ignored.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.status.Stopped {
		r.mu.Unlock()
		return
	}
	r.status.Stopped = true
	pending := len(r.batch)
	r.mu.Unlock()

	if pending > 0 {
		r.Flush()
	}
	log.Printf("recorder: session %s stopped", r.status.SessionID)
}

// Samples returns a copy of the sample sequence (the batch is not included).
func (r *Recorder) Samples() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sample, len(r.samples))
	copy(out, r.samples)
	return out
}

// Pending returns the number of samples waiting in the batch.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batch)
}

// Latest returns the most recently captured sample, batched or not.
func (r *Recorder) Latest() (Sample, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.batch); n > 0 {
		return r.batch[n-1], true
	}
	if n := len(r.samples); n > 0 {
		return r.samples[n-1], true
	}
	return Sample{}, false
}

// Status returns a snapshot of the session counters.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked()
}

func (r *Recorder) statusLocked() Status {
	st := r.status
	st.Samples = len(r.samples)
	st.Pending = len(r.batch)
	return st
}
