// Package track post-processes recorded sessions: it finds the instants the
// provider fix changed and exports them as GeoJSON.
package track

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"

	"github.com/relabs-tech/location_recorder/internal/recorder"
)

// UpdatedFixes returns the samples whose position differs from the sample
// before them. The first sample is always included. Because samples are
// taken far more often than the provider updates, each returned sample's
// time is the moment the new fix became visible, within one tick.
func UpdatedFixes(samples []recorder.Sample) []recorder.Sample {
	var out []recorder.Sample
	for i, s := range samples {
		if i == 0 || !s.SameFix(samples[i-1]) {
			out = append(out, s)
		}
	}
	return out
}

// Point returns the sample position in orb's lon/lat order.
func Point(s recorder.Sample) orb.Point {
	return orb.Point{s.Longitude, s.Latitude}
}

// FeatureCollection builds one Point feature per sample, plus a LineString
// of the whole path when there are at least two samples.
func FeatureCollection(samples []recorder.Sample) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	line := make(orb.LineString, 0, len(samples))
	for _, s := range samples {
		p := Point(s)
		line = append(line, p)

		f := geojson.NewFeature(p)
		f.Properties["time"] = s.Time
		f.Properties["altitude"] = s.Altitude
		f.Properties["speed"] = s.Speed
		f.Properties["horizontalAccuracy"] = s.HorizontalAccuracy
		if s.MagneticHeading != nil {
			f.Properties["magneticHeading"] = *s.MagneticHeading
		}
		fc.Append(f)
	}

	if len(line) >= 2 {
		f := geojson.NewFeature(line)
		f.Properties["name"] = "path"
		f.Properties["points"] = len(line)
		fc.Append(f)
	}
	return fc
}

// Summary describes a session.
type Summary struct {
	Samples      int
	UpdatedFixes int
	Headings     int
	FirstTime    string
	LastTime     string
	PathMeters   float64
	MaxSpeed     float64
	// MaxTimingError is the worst position error from capture timing:
	// max speed × sampling interval.
	MaxTimingError float64
}

// Summarize computes a Summary; interval is the sampling period used when
// the session was recorded.
func Summarize(samples []recorder.Sample, interval time.Duration) Summary {
	sum := Summary{Samples: len(samples)}
	if len(samples) == 0 {
		return sum
	}
	sum.FirstTime = samples[0].Time
	sum.LastTime = samples[len(samples)-1].Time

	updated := UpdatedFixes(samples)
	sum.UpdatedFixes = len(updated)
	for i := 1; i < len(updated); i++ {
		sum.PathMeters += geo.Distance(Point(updated[i-1]), Point(updated[i]))
	}

	for _, s := range samples {
		if s.MagneticHeading != nil {
			sum.Headings++
		}
		if s.Speed > sum.MaxSpeed {
			sum.MaxSpeed = s.Speed
		}
	}
	sum.MaxTimingError = sum.MaxSpeed * interval.Seconds()
	return sum
}
