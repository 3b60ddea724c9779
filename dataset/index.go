package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"BoardKP/geometry"
	"BoardKP/logger"

	"go.uber.org/zap"
)

// IndexSample is one entry of the capture app's index.json.
type IndexSample struct {
	FileName          string           `json:"fileName"`
	Annotation        map[string]any   `json:"annotation,omitempty"`
	CalibrationPoints []map[string]any `json:"calibrationPoints,omitempty"`
	SettingsSnapshot  *struct {
		CalibrationPoints []map[string]any `json:"calibrationPoints,omitempty"`
	} `json:"settingsSnapshot,omitempty"`
}

// LoadIndex reads an index.json array. Entries that do not decode as a sample are skipped, only
// a file that is not a JSON array fails.
func LoadIndex(path string) ([]IndexSample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse index %s: %w", path, err)
	}
	samples := make([]IndexSample, 0, len(raw))
	for i, entry := range raw {
		var s IndexSample
		if err := json.Unmarshal(entry, &s); err != nil {
			logger.Log().Debug("skipping index entry", zap.String("index", path), zap.Int("entry", i), zap.Error(err))
			continue
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// DartTip returns the annotated tip position. ok is false for samples without a usable
// annotation.
func (s IndexSample) DartTip() (geometry.Point, bool) {
	if len(s.Annotation) == 0 {
		return geometry.Point{}, false
	}
	return pointFrom(s.Annotation)
}

// Calibration returns the four calibration points of the sample, preferring the settings
// snapshot. Sets with a count other than four, unparsable or negative coordinates are rejected.
func (s IndexSample) Calibration() ([4]geometry.Point, bool) {
	var raw []map[string]any
	if s.SettingsSnapshot != nil && len(s.SettingsSnapshot.CalibrationPoints) > 0 {
		raw = s.SettingsSnapshot.CalibrationPoints
	} else {
		raw = s.CalibrationPoints
	}
	var out [4]geometry.Point
	if len(raw) != 4 {
		return out, false
	}
	for i, m := range raw {
		p, ok := pointFrom(m)
		if !ok || p.X < 0 || p.Y < 0 {
			return out, false
		}
		out[i] = p
	}
	return out, true
}

func pointFrom(m map[string]any) (geometry.Point, bool) {
	x, okX := toFloat(m["x"])
	y, okY := toFloat(m["y"])
	if !okX || !okY {
		return geometry.Point{}, false
	}
	return geometry.Point{X: x, Y: y}, true
}

// toFloat accepts JSON numbers and numeric strings.
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
