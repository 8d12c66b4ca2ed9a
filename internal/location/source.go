// Package location provides the position/heading collaborators the recorder
// polls: a serial NMEA receiver, an MQTT subscriber and a synthetic source.
package location

import (
	"context"

	"github.com/relabs-tech/location_recorder/internal/gps"
)

// Source is anything that can report the current best known fix and push
// heading updates.
type Source interface {
	// Fix returns the current fix without blocking; false until the first fix.
	Fix() (gps.Fix, bool)
	// Heading returns the latest heading reading, if any.
	Heading() (gps.Heading, bool)
	// Headings delivers heading updates as they arrive.
	Headings() <-chan gps.Heading
	// Start begins receiving updates. It returns once the source is running.
	Start(ctx context.Context) error
	Close() error
}

// headingBuffer is the capacity of heading channels. Headings arrive at
// about 1 Hz; a reader that falls this far behind loses readings.
const headingBuffer = 16

// offer delivers h without blocking. It reports false when the reading was dropped.
func offer(ch chan gps.Heading, h gps.Heading) bool {
	select {
	case ch <- h:
		return true
	default:
		return false
	}
}
