package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/location_recorder/internal/recorder"
)

// Codec turns a sample sequence into a single document and back.
type Codec interface {
	Marshal(samples []recorder.Sample) ([]byte, error)
	Unmarshal(data []byte) ([]recorder.Sample, error)
	Ext() string
}

// JSONCodec writes a pretty-printed JSON array of records.
type JSONCodec struct{}

func (JSONCodec) Marshal(samples []recorder.Sample) ([]byte, error) {
	if samples == nil {
		samples = []recorder.Sample{}
	}
	return json.MarshalIndent(samples, "", "  ")
}

func (JSONCodec) Unmarshal(data []byte) ([]recorder.Sample, error) {
	var samples []recorder.Sample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, err
	}
	return samples, nil
}

func (JSONCodec) Ext() string { return ".json" }

// YAMLCodec writes a YAML sequence with the same field names as JSON.
type YAMLCodec struct{}

func (YAMLCodec) Marshal(samples []recorder.Sample) ([]byte, error) {
	if samples == nil {
		samples = []recorder.Sample{}
	}
	return yaml.Marshal(samples)
}

func (YAMLCodec) Unmarshal(data []byte) ([]recorder.Sample, error) {
	var samples []recorder.Sample
	if err := yaml.Unmarshal(data, &samples); err != nil {
		return nil, err
	}
	return samples, nil
}

func (YAMLCodec) Ext() string { return ".yaml" }

// CodecFor returns the codec for an OUTPUT_FORMAT value.
func CodecFor(format string) (Codec, error) {
	switch strings.ToLower(format) {
	case "json":
		return JSONCodec{}, nil
	case "yaml", "yml":
		return YAMLCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// CodecForPath picks a codec from the file extension.
func CodecForPath(path string) (Codec, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return nil, fmt.Errorf("cannot tell format of %q", path)
	}
	return CodecFor(ext)
}
