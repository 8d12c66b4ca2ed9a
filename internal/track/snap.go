package track

import (
	"errors"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/relabs-tech/location_recorder/internal/recorder"
)

// ErrNoPath is returned by LoadPath when the file holds no line geometry.
var ErrNoPath = errors.New("track: no LineString in file")

// SnapToPath moves every sample onto the nearest point of path, which is
// usually the road actually driven. Phone fixes drift across the width of
// the street; along-track position and all other fields are kept. The
// projection is planar in lon/lat, which is fine over street widths.
// Samples are returned unchanged when path has fewer than two points.
func SnapToPath(samples []recorder.Sample, path orb.LineString) []recorder.Sample {
	out := make([]recorder.Sample, len(samples))
	copy(out, samples)
	if len(path) < 2 {
		return out
	}
	for i := range out {
		p := nearestOnPath(path, Point(out[i]))
		out[i].Longitude = p.Lon()
		out[i].Latitude = p.Lat()
	}
	return out
}

func nearestOnPath(path orb.LineString, p orb.Point) orb.Point {
	_, i := planar.DistanceFromWithIndex(path, p)
	if i < 0 {
		return p
	}
	return projectOnSegment(path[i], path[i+1], p)
}

// projectOnSegment returns the point of segment a-b closest to p.
func projectOnSegment(a, b, p orb.Point) orb.Point {
	dx := b[0] - a[0]
	dy := b[1] - a[1]
	if dx == 0 && dy == 0 {
		return a
	}

	t := ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / (dx*dx + dy*dy)
	switch {
	case t <= 0:
		return a
	case t >= 1:
		return b
	}
	return orb.Point{a[0] + t*dx, a[1] + t*dy}
}

// LoadPath reads the reference path from a GeoJSON FeatureCollection: the
// first LineString feature, or the longest line of the first
// MultiLineString.
func LoadPath(path string) (orb.LineString, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read path file: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	for _, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.LineString:
			return g, nil
		case orb.MultiLineString:
			var longest orb.LineString
			for _, ls := range g {
				if len(ls) > len(longest) {
					longest = ls
				}
			}
			if longest != nil {
				return longest, nil
			}
		}
	}
	return nil, fmt.Errorf("%s: %w", path, ErrNoPath)
}
