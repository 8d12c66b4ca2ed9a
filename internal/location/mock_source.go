// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package location

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/relabs-tech/location_recorder/internal/gps"
)

// MockConfig describes the synthetic track.
type MockConfig struct {
	StartLat     float64
	StartLon     float64
	Altitude     float64
	SpeedMps     float64
	BearingDeg   float64
	FixDelay     time.Duration // no fix before this much time has passed
	UpdateEvery  time.Duration // how often the fix changes, like a 1 Hz receiver
	HeadingEvery time.Duration // 0 disables heading events
	Now          func() time.Time
}

// DefaultMockConfig drives at 6 m/s heading north-east with 1 Hz updates.
func DefaultMockConfig() MockConfig {
	return MockConfig{
		StartLat:     35.7,
		StartLon:     51.4,
		Altitude:     1190,
		SpeedMps:     6,
		BearingDeg:   45,
		UpdateEvery:  time.Second,
		HeadingEvery: time.Second,
	}
}

type mockSource struct {
	cfg      MockConfig
	start    time.Time
	headings chan gps.Heading

	mu          sync.RWMutex
	heading     gps.Heading
	haveHeading bool

	stopOnce sync.Once
	stop     chan struct{}
}

// NewMockSource creates a source that moves along a straight line and only
// changes its fix every cfg.UpdateEvery, like a real low-rate receiver.
func NewMockSource(cfg MockConfig) Source {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.UpdateEvery <= 0 {
		cfg.UpdateEvery = time.Second
	}
	return &mockSource{
		cfg:      cfg,
		start:    cfg.Now(),
		headings: make(chan gps.Heading, headingBuffer),
		stop:     make(chan struct{}),
	}
}

func (m *mockSource) Fix() (gps.Fix, bool) {
	elapsed := m.cfg.Now().Sub(m.start)
	if elapsed < m.cfg.FixDelay {
		return gps.Fix{}, false
	}

	// quantize to the update period so the position holds between updates
	steps := math.Floor(float64(elapsed) / float64(m.cfg.UpdateEvery))
	dist := m.cfg.SpeedMps * steps * m.cfg.UpdateEvery.Seconds()
	p := geo.PointAtBearingAndDistance(orb.Point{m.cfg.StartLon, m.cfg.StartLat}, m.cfg.BearingDeg, dist)

	return gps.Fix{
		Latitude:           p.Lat(),
		Longitude:          p.Lon(),
		Altitude:           m.cfg.Altitude,
		HorizontalAccuracy: 5,
		VerticalAccuracy:   8,
		Speed:              m.cfg.SpeedMps,
		SpeedAccuracy:      0.5,
		CourseDeg:          m.cfg.BearingDeg,
		Validity:           "A",
	}, true
}

func (m *mockSource) Heading() (gps.Heading, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.heading, m.haveHeading
}

func (m *mockSource) Headings() <-chan gps.Heading { return m.headings }

func (m *mockSource) Start(ctx context.Context) error {
	if m.cfg.HeadingEvery <= 0 {
		return nil
	}
	go func() {
		ticker := time.NewTicker(m.cfg.HeadingEvery)
		defer ticker.Stop()
		n := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				n++
				m.emitHeading(n)
			}
		}
	}()
	return nil
}

func (m *mockSource) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}

// emitHeading publishes the n-th reading; every tenth one is unreliable.
func (m *mockSource) emitHeading(n int) {
	deg := math.Mod(m.cfg.BearingDeg+3*math.Sin(float64(n)), 360)
	if deg < 0 {
		deg += 360
	}
	h := gps.Heading{
		MagneticHeading: deg,
		Accuracy:        5,
		Time:            m.cfg.Now().UTC().Format(time.RFC3339Nano),
	}
	if n%10 == 0 {
		h.Accuracy = -1
	}
	m.mu.Lock()
	m.heading = h
	m.haveHeading = true
	m.mu.Unlock()
	offer(m.headings, h)
}
