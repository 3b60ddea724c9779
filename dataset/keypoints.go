package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"BoardKP/geometry"
)

// KeypointSample pairs an image with its eight label values in role order.
type KeypointSample struct {
	ImagePath string
	Values    [8]float64
}

// FormatKeypoints renders ordered points as one `%.6f` label line.
func FormatKeypoints(pts [4]geometry.Point) string {
	flat := geometry.Flatten(pts)
	parts := make([]string, len(flat))
	for i, v := range flat {
		parts[i] = fmt.Sprintf("%.6f", v)
	}
	return strings.Join(parts, " ") + "\n"
}

// WriteKeypointLabel writes the label file for ordered points.
func WriteKeypointLabel(path string, pts [4]geometry.Point) error {
	return WriteFileAtomic(path, []byte(FormatKeypoints(pts)))
}

// ParseKeypoints parses a label body that must hold exactly eight floats.
func ParseKeypoints(body string) ([8]float64, error) {
	var out [8]float64
	raw := strings.Fields(body)
	if len(raw) != 8 {
		return out, fmt.Errorf("want 8 values, got %d", len(raw))
	}
	for i, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return out, fmt.Errorf("value %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// ReadKeypointLabel reads and parses one keypoint label file.
func ReadKeypointLabel(path string) ([8]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return [8]float64{}, err
	}
	v, err := ParseKeypoints(string(data))
	if err != nil {
		return v, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// ListKeypointSamples pairs every image in imagesDir with labelsDir/<stem>.txt. Images without a
// label or with a malformed label are skipped.
func ListKeypointSamples(imagesDir, labelsDir string) ([]KeypointSample, error) {
	entries, err := os.ReadDir(imagesDir)
	if err != nil {
		return nil, err
	}
	var out []KeypointSample
	for _, e := range entries {
		if e.IsDir() || !IsImage(e.Name()) {
			continue
		}
		values, err := ReadKeypointLabel(filepath.Join(labelsDir, Stem(e.Name())+".txt"))
		if err != nil {
			continue
		}
		out = append(out, KeypointSample{
			ImagePath: filepath.Join(imagesDir, e.Name()),
			Values:    values,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ImagePath < out[j].ImagePath })
	return out, nil
}
