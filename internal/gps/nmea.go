// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"math"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
)

// knotsToMps converts speed over ground from knots to metres per second.
const knotsToMps = 1852.0 / 3600.0

// Update tells the caller what a fed sentence changed.
type Update int

const (
	UpdateNone Update = iota
	UpdateFix
	UpdateHeading
)

// Assembler accumulates NMEA sentences into a current Fix and the latest Heading.
// RMC gives position/speed/course, GGA altitude and HDOP, GSA VDOP and HDG the
// magnetic heading. It is safe for concurrent use.
type Assembler struct {
	uere            float64
	headingAccuracy float64

	mu          sync.RWMutex
	current     Fix
	haveFix     bool
	heading     Heading
	haveHeading bool
}

// NewAssembler creates an Assembler. uere is the user equivalent range error
// in metres used to turn DOP values into accuracies; headingAccuracy is the
// accuracy attached to HDG readings.
func NewAssembler(uere, headingAccuracy float64) *Assembler {
	return &Assembler{
		uere:            uere,
		headingAccuracy: headingAccuracy,
		current: Fix{
			HorizontalAccuracy: -1,
			VerticalAccuracy:   -1,
			Speed:              -1,
			SpeedAccuracy:      -1,
			CourseDeg:          -1,
		},
	}
}

// Feed parses one line. Lines that are blank or not NMEA are ignored; parse
// errors are returned so the caller can decide whether to log them.
func (a *Assembler) Feed(line string) (Update, error) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "$") {
		return UpdateNone, nil
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		return UpdateNone, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	switch sentence.DataType() {
	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		a.current.Validity = m.Validity
		if m.Validity != nmea.ValidRMC {
			return UpdateNone, nil
		}
		a.current.Latitude = m.Latitude
		a.current.Longitude = m.Longitude
		a.current.Speed = m.Speed * knotsToMps
		a.current.CourseDeg = m.Course
		if ts, ok := receiverTime(m.Date, m.Time); ok {
			a.current.Time = ts.Format(time.RFC3339Nano)
		}
		a.haveFix = true
		return UpdateFix, nil

	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		if m.FixQuality == nmea.Invalid || m.FixQuality == "" {
			return UpdateNone, nil
		}
		a.current.Latitude = m.Latitude
		a.current.Longitude = m.Longitude
		a.current.Altitude = m.Altitude
		a.current.HorizontalAccuracy = a.dopToMetres(m.HDOP)
		a.haveFix = true
		return UpdateFix, nil

	case nmea.TypeGSA:
		m := sentence.(nmea.GSA)
		if !a.haveFix {
			return UpdateNone, nil
		}
		a.current.HorizontalAccuracy = a.dopToMetres(m.HDOP)
		a.current.VerticalAccuracy = a.dopToMetres(m.VDOP)
		return UpdateFix, nil

	case nmea.TypeHDG:
		m := sentence.(nmea.HDG)
		dev := m.Deviation
		if m.DeviationDirection == nmea.West {
			dev = -dev
		}
		a.heading = Heading{
			MagneticHeading: normalizeDeg(m.Heading + dev),
			Accuracy:        a.headingAccuracy,
			Time:            time.Now().UTC().Format(time.RFC3339Nano),
		}
		a.haveHeading = true
		return UpdateHeading, nil

	default:
		// GSV, VTG, etc. carry nothing we record
		return UpdateNone, nil
	}
}

// Fix returns the current fix, or false when no valid position was seen yet.
func (a *Assembler) Fix() (Fix, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current, a.haveFix
}

// Heading returns the latest heading reading.
func (a *Assembler) Heading() (Heading, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.heading, a.haveHeading
}

func (a *Assembler) dopToMetres(dop float64) float64 {
	if dop <= 0 {
		return -1
	}
	return dop * a.uere
}

func receiverTime(d nmea.Date, t nmea.Time) (time.Time, bool) {
	if !d.Valid || !t.Valid {
		return time.Time{}, false
	}
	return time.Date(2000+d.YY, time.Month(d.MM), d.DD,
		t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC), true
}

func normalizeDeg(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
