// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/relabs-tech/location_recorder/internal/recorder"
)

// SessionNameLayout is the medium date/time style used to name session files.
const SessionNameLayout = "Jan 2, 2006 at 3:04:05 PM"

// SessionFileName names the file of a session started at start.
func SessionFileName(start time.Time, codec Codec) string {
	return start.Format(SessionNameLayout) + codec.Ext()
}

// FileSink rewrites one session file with the full sample sequence on
// every Write. The new content goes to a temporary file in the same
// directory first and is renamed over the old one, so readers only ever
// see a complete document.
type FileSink struct {
	path  string
	codec Codec
}

// NewFileSink creates dir if needed and returns a sink for dir/name.
func NewFileSink(dir, name string, codec Codec) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &FileSink{path: filepath.Join(dir, name), codec: codec}, nil
}

// Path returns the session file path.
func (s *FileSink) Path() string {
	return s.path
}

// Write replaces the session file with samples.
func (s *FileSink) Write(samples []recorder.Sample) error {
	data, err := s.codec.Marshal(samples)
	if err != nil {
		return fmt.Errorf("encode samples: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

// Load reads a session file back, choosing the codec by extension.
func Load(path string) ([]recorder.Sample, error) {
	codec, err := CodecForPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	samples, err := codec.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return samples, nil
}
