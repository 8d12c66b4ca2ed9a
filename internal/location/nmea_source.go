// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package location

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"sync"

	"github.com/relabs-tech/location_recorder/internal/gps"
)

// NMEASource reads NMEA sentences from a receiver (usually a serial port)
// and keeps the assembled fix.
type NMEASource struct {
	port      io.ReadCloser
	assembler *gps.Assembler
	headings  chan gps.Heading

	closeOnce sync.Once
	done      chan struct{}
	err       error
}

// NewNMEASource wraps port. uere and headingAccuracy are passed to gps.NewAssembler.
func NewNMEASource(port io.ReadCloser, uere, headingAccuracy float64) *NMEASource {
	return &NMEASource{
		port:      port,
		assembler: gps.NewAssembler(uere, headingAccuracy),
		headings:  make(chan gps.Heading, headingBuffer),
		done:      make(chan struct{}),
	}
}

func (s *NMEASource) Fix() (gps.Fix, bool)         { return s.assembler.Fix() }
func (s *NMEASource) Heading() (gps.Heading, bool) { return s.assembler.Heading() }
func (s *NMEASource) Headings() <-chan gps.Heading { return s.headings }

// Start launches the reader goroutine. The goroutine ends at EOF, on a
// read error, or when ctx is cancelled.
func (s *NMEASource) Start(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
	go s.readLoop()
	return nil
}

// Done is closed when the reader goroutine has stopped.
func (s *NMEASource) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that stopped the reader, nil for EOF or Close.
func (s *NMEASource) Err() error {
	<-s.done
	return s.err
}

// Close closes the port, which unblocks the reader.
func (s *NMEASource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.port.Close()
	})
	return err
}

func (s *NMEASource) readLoop() {
	defer close(s.done)
	defer close(s.headings)

	reader := bufio.NewReader(s.port)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			s.feed(line)
		}
		if err != nil {
			if !isEndOfStream(err) {
				log.Printf("gps: read error: %v", err)
				s.err = err
			}
			return
		}
	}
}

func isEndOfStream(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed)
}

func (s *NMEASource) feed(line string) {
	upd, err := s.assembler.Feed(line)
	if err != nil {
		// noisy GPS or partial sentences
		return
	}
	if upd == gps.UpdateHeading {
		h, _ := s.assembler.Heading()
		if !offer(s.headings, h) {
			log.Printf("gps: heading dropped, reader is behind")
		}
	}
}
