// Package remap filters and renames the classes of a YOLO dataset.
package remap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"BoardKP/dataset"
	"BoardKP/logger"

	"go.uber.org/zap"
)

var (
	// ErrUnknownClass is returned when the map names a class the dataset does not declare.
	ErrUnknownClass = errors.New("class not found in names")
	// ErrBadMap is returned for map items without an old:new separator.
	ErrBadMap = errors.New("malformed class map")
)

// Pair is one old_name:new_name item of a class map, kept in the user's order.
type Pair struct {
	Old string
	New string
}

// ParseMap parses "tip:dart_tip,dart:dart_tip". Later items for the same old name override
// earlier ones without changing its position.
func ParseMap(s string) ([]Pair, error) {
	var out []Pair
	pos := map[string]int{}
	for _, item := range strings.Split(s, ",") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		oldName, newName, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrBadMap, item)
		}
		p := Pair{Old: strings.TrimSpace(oldName), New: strings.TrimSpace(newName)}
		if i, seen := pos[p.Old]; seen {
			out[i] = p
			continue
		}
		pos[p.Old] = len(out)
		out = append(out, p)
	}
	return out, nil
}

// Mapping translates old class indices to new ones.
type Mapping struct {
	Index    map[int]int
	NewNames []string
}

// BuildMapping resolves pairs against the dataset's class names. New indices follow the first
// appearance of each new name.
func BuildMapping(names []string, pairs []Pair) (Mapping, error) {
	oldIdx := make(map[string]int, len(names))
	// a repeated name resolves to its last index
	for i, n := range names {
		oldIdx[n] = i
	}
	m := Mapping{Index: map[int]int{}}
	newIdx := map[string]int{}
	for _, p := range pairs {
		o, ok := oldIdx[p.Old]
		if !ok {
			return Mapping{}, fmt.Errorf("%w: class '%s' not in %v", ErrUnknownClass, p.Old, names)
		}
		n, ok := newIdx[p.New]
		if !ok {
			n = len(m.NewNames)
			newIdx[p.New] = n
			m.NewNames = append(m.NewNames, p.New)
		}
		m.Index[o] = n
	}
	return m, nil
}

// RemapLines rewrites label rows, dropping malformed rows and rows of unmapped classes.
func (m Mapping) RemapLines(lines []string) []string {
	var out []string
	for _, raw := range lines {
		l, ok := dataset.ParseYoloLine(raw)
		if !ok {
			continue
		}
		n, ok := m.Index[l.Class]
		if !ok {
			continue
		}
		l.Class = n
		out = append(out, l.String())
	}
	return out
}

// Options configure Run.
type Options struct {
	Src string `validate:"required"`
	Dst string `validate:"required"`
	Map string `validate:"required"`
}

// Stats counts the files written per split.
type Stats map[string]int

// Run remaps every split of Src into Dst and writes Dst/data.yaml.
func Run(opts Options) (Stats, error) {
	log := logger.Named("remap")
	if err := os.MkdirAll(opts.Dst, 0o755); err != nil {
		return nil, err
	}
	pairs, err := ParseMap(opts.Map)
	if err != nil {
		return nil, err
	}
	names, err := dataset.LoadNames(opts.Src)
	if err != nil {
		return nil, err
	}
	m, err := BuildMapping(names, pairs)
	if err != nil {
		return nil, err
	}

	stats := Stats{}
	for _, split := range dataset.ExportSplits {
		splitDir := filepath.Join(opts.Src, split)
		if !dataset.DirExists(splitDir) {
			continue
		}
		n, err := m.remapSplit(splitDir, filepath.Join(opts.Dst, split))
		if err != nil {
			return stats, fmt.Errorf("split %s: %w", split, err)
		}
		stats[split] = n
		log.Debug("remapped split", zap.String("split", split), zap.Int("files", n))
	}

	manifest := dataset.Manifest{
		Path:  ".",
		Train: "train/images",
		Val:   "valid/images",
		NC:    len(m.NewNames),
		Names: m.NewNames,
	}
	if err := dataset.WriteManifest(filepath.Join(opts.Dst, "data.yaml"), "Remapped YOLO dataset", manifest); err != nil {
		return stats, err
	}
	log.Info("remapped dataset", zap.String("dst", opts.Dst), zap.Strings("names", m.NewNames))
	return stats, nil
}

func (m Mapping) remapSplit(splitDir, outDir string) (int, error) {
	imagesDir := filepath.Join(splitDir, "images")
	labelsDir := filepath.Join(splitDir, "labels")
	if !dataset.DirExists(imagesDir) || !dataset.DirExists(labelsDir) {
		return 0, nil
	}
	outImg := filepath.Join(outDir, "images")
	outLbl := filepath.Join(outDir, "labels")
	if err := dataset.MkdirAll(outImg, outLbl); err != nil {
		return 0, err
	}
	files, err := dataset.LabelFiles(labelsDir)
	if err != nil {
		return 0, err
	}
	written := 0
	for _, lf := range files {
		data, err := os.ReadFile(lf)
		if err != nil {
			return written, err
		}
		lines := m.RemapLines(strings.Split(string(data), "\n"))
		if len(lines) == 0 {
			continue
		}
		stem := dataset.Stem(lf)
		img := dataset.FindImage(imagesDir, stem)
		if img == "" {
			continue
		}
		if err := dataset.CopyFile(img, filepath.Join(outImg, filepath.Base(img))); err != nil {
			return written, err
		}
		body := strings.Join(lines, "\n") + "\n"
		if err := dataset.WriteFileAtomic(filepath.Join(outLbl, stem+".txt"), []byte(body)); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}
