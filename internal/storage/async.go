package storage

import (
	"errors"
	"log"
	"sync"

	"github.com/relabs-tech/location_recorder/internal/recorder"
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("storage: sink closed")

// AsyncSink moves writes off the sampling goroutine. Only the newest
// pending snapshot is kept: each snapshot is the whole session, so an
// older one that was never written is simply superseded.
type AsyncSink struct {
	inner    recorder.Sink
	onResult func(error)

	mu      sync.Mutex
	pending []recorder.Sample
	have    bool
	closed  bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// NewAsyncSink starts the writer goroutine. onResult is called after every
// write of the wrapped sink with its error, nil on success. When onResult
// is nil, failures are logged.
func NewAsyncSink(inner recorder.Sink, onResult func(error)) *AsyncSink {
	a := &AsyncSink{
		inner:    inner,
		onResult: onResult,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	a.wg.Add(1)
	go a.loop()
	return a
}

// Write queues samples and returns immediately. The slice must not be
// modified by the caller afterwards.
func (a *AsyncSink) Write(samples []recorder.Sample) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	a.pending = samples
	a.have = true
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close writes the last queued snapshot and stops the writer.
func (a *AsyncSink) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	close(a.done)
	a.wg.Wait()
	return nil
}

func (a *AsyncSink) loop() {
	defer a.wg.Done()
	for {
		select {
		case <-a.wake:
			a.drain()
		case <-a.done:
			a.drain()
			return
		}
	}
}

func (a *AsyncSink) drain() {
	a.mu.Lock()
	if !a.have {
		a.mu.Unlock()
		return
	}
	samples := a.pending
	a.pending = nil
	a.have = false
	a.mu.Unlock()

	err := a.inner.Write(samples)
	if a.onResult != nil {
		a.onResult(err)
		return
	}
	if err != nil {
		log.Printf("storage: error writing %d samples: %v", len(samples), err)
	}
}
