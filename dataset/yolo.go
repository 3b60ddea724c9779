package dataset

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"BoardKP/geometry"
)

// DartTipBox is the fixed side of the tiny box drawn around a dart tip.
const DartTipBox = 0.02

// YoloLine is one parsed `class x y w h ...` label row. Fields keeps every token after the class
// verbatim so rewriting a line preserves its numeric formatting.
type YoloLine struct {
	Class  int
	Fields []string
}

// ParseYoloLine parses a label row. Rows with fewer than five tokens or a class that is not a
// finite number within int32 range are rejected.
func ParseYoloLine(line string) (YoloLine, bool) {
	parts := strings.Fields(line)
	if len(parts) < 5 {
		return YoloLine{}, false
	}
	cls, err := strconv.ParseFloat(parts[0], 64)
	if err != nil || math.IsNaN(cls) || cls >= math.MaxInt32+1 || cls <= math.MinInt32-1 {
		return YoloLine{}, false
	}
	return YoloLine{Class: int(cls), Fields: parts[1:]}, true
}

// Center returns the x y fields as a point.
func (l YoloLine) Center() (geometry.Point, error) {
	x, err := strconv.ParseFloat(l.Fields[0], 64)
	if err != nil {
		return geometry.Point{}, fmt.Errorf("parse x: %w", err)
	}
	y, err := strconv.ParseFloat(l.Fields[1], 64)
	if err != nil {
		return geometry.Point{}, fmt.Errorf("parse y: %w", err)
	}
	return geometry.Point{X: x, Y: y}, nil
}

// String renders the line with a new class index and the original fields.
func (l YoloLine) String() string {
	return strconv.Itoa(l.Class) + " " + strings.Join(l.Fields, " ")
}

// ReadYoloFile returns the valid rows of a label file; malformed rows are dropped.
func ReadYoloFile(path string) ([]YoloLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []YoloLine
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if l, ok := ParseYoloLine(sc.Text()); ok {
			out = append(out, l)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return out, nil
}

// FormatDartTip renders the single-box label used for dart tip detection.
func FormatDartTip(p geometry.Point) string {
	return fmt.Sprintf("0 %.6f %.6f %.6f %.6f\n", p.X, p.Y, DartTipBox, DartTipBox)
}
