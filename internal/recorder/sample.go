package recorder

import (
	"time"

	"github.com/relabs-tech/location_recorder/internal/gps"
)

// TimeLayout formats capture timestamps as yyyyMMdd.HHmmss.SSS.
const TimeLayout = "20060102.150405.000"

// Sample is one oversampled reading of the provider state.
// Every field except MagneticHeading is fixed when the sample is created.
type Sample struct {
	Time               string   `json:"time" yaml:"time"`
	Latitude           float64  `json:"latitude" yaml:"latitude"`
	Longitude          float64  `json:"longitude" yaml:"longitude"`
	Altitude           float64  `json:"altitude" yaml:"altitude"`
	HorizontalAccuracy float64  `json:"horizontalAccuracy" yaml:"horizontalAccuracy"`
	VerticalAccuracy   float64  `json:"verticalAccuracy" yaml:"verticalAccuracy"`
	Speed              float64  `json:"speed" yaml:"speed"`
	SpeedAccuracy      float64  `json:"speedAccuracy" yaml:"speedAccuracy"`
	MagneticHeading    *float64 `json:"magneticHeading,omitempty" yaml:"magneticHeading,omitempty"`
}

// NewSample stamps fix with the capture instant at.
func NewSample(at time.Time, fix gps.Fix, heading *float64) Sample {
	return Sample{
		Time:               at.Format(TimeLayout),
		Latitude:           fix.Latitude,
		Longitude:          fix.Longitude,
		Altitude:           fix.Altitude,
		HorizontalAccuracy: fix.HorizontalAccuracy,
		VerticalAccuracy:   fix.VerticalAccuracy,
		Speed:              fix.Speed,
		SpeedAccuracy:      fix.SpeedAccuracy,
		MagneticHeading:    heading,
	}
}

// CapturedAt parses Time back in the given location.
func (s Sample) CapturedAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(TimeLayout, s.Time, loc)
}

// SameFix reports whether both samples carry the same position.
func (s Sample) SameFix(o Sample) bool {
	return s.Latitude == o.Latitude && s.Longitude == o.Longitude
}

func headingPtr(v float64) *float64 {
	return &v
}
