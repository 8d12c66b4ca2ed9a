package main

import (
	"flag"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/relabs-tech/location_recorder/internal/app"
)

func main() {
	in := flag.String("in", "", "session file to read (.json or .yaml)")
	out := flag.String("out", "", "GeoJSON output path (default: input path with .geojson)")
	changesOnly := flag.Bool("changes-only", false, "export only samples where the fix changed")
	interval := flag.Duration("interval", 20*time.Millisecond, "sampling interval the session was recorded with")
	snap := flag.String("snap", "", "GeoJSON file with the driven path; samples are moved onto it")
	snappedOut := flag.String("snapped-out", "", "also write the snapped session here (.json or .yaml)")
	flag.Parse()

	if *in == "" {
		log.Fatal("usage: export -in <session file> [-out file.geojson] [-changes-only] [-snap path.geojson]")
	}
	if *out == "" {
		*out = strings.TrimSuffix(*in, filepath.Ext(*in)) + ".geojson"
	}

	opts := app.ExportOptions{
		ChangesOnly:    *changesOnly,
		Interval:       *interval,
		SnapPath:       *snap,
		SnappedSession: *snappedOut,
	}
	if err := app.RunExport(*in, *out, opts); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
