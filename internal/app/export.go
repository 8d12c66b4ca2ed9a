package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/relabs-tech/location_recorder/internal/recorder"
	"github.com/relabs-tech/location_recorder/internal/storage"
	"github.com/relabs-tech/location_recorder/internal/track"
)

// ExportOptions tunes RunExport.
type ExportOptions struct {
	// ChangesOnly exports only the samples where the provider fix changed.
	ChangesOnly bool
	// Interval is the sampling period the session was recorded with.
	Interval time.Duration
	// SnapPath is a GeoJSON file with the path actually driven. When set,
	// samples are moved onto it before export.
	SnapPath string
	// SnappedSession, when set, receives the snapped samples as a session
	// file (format by extension).
	SnappedSession string
}

// RunExport converts a recorded session into GeoJSON and prints a summary.
func RunExport(inputPath, outputPath string, opts ExportOptions) error {
	samples, err := storage.Load(inputPath)
	if err != nil {
		return err
	}

	if opts.SnapPath != "" {
		path, err := track.LoadPath(opts.SnapPath)
		if err != nil {
			return err
		}
		samples = track.SnapToPath(samples, path)
		fmt.Printf("snapped %d samples onto %d-point path from %s\n", len(samples), len(path), opts.SnapPath)

		if opts.SnappedSession != "" {
			if err := writeSession(opts.SnappedSession, samples); err != nil {
				return err
			}
		}
	}

	sum := track.Summarize(samples, opts.Interval)

	points := samples
	if opts.ChangesOnly {
		points = track.UpdatedFixes(samples)
	}
	fc := track.FeatureCollection(points)

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	fmt.Printf("%d samples (%s .. %s), %d fix updates, %d with heading\n",
		sum.Samples, sum.FirstTime, sum.LastTime, sum.UpdatedFixes, sum.Headings)
	fmt.Printf("path %.1f m, max speed %.2f m/s, timing error <= %.3f m\n",
		sum.PathMeters, sum.MaxSpeed, sum.MaxTimingError)
	fmt.Printf("Successfully wrote %d features to %s\n", len(fc.Features), outputPath)
	return nil
}

// writeSession stores samples at path through the same atomic sink the
// recorder uses.
func writeSession(path string, samples []recorder.Sample) error {
	codec, err := storage.CodecForPath(path)
	if err != nil {
		return err
	}
	sink, err := storage.NewFileSink(filepath.Dir(path), filepath.Base(path), codec)
	if err != nil {
		return err
	}
	if err := sink.Write(samples); err != nil {
		return err
	}
	fmt.Printf("wrote snapped session to %s\n", path)
	return nil
}
