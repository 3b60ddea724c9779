package exporter

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"BoardKP/dataset"
	"BoardKP/geometry"
	"BoardKP/logger"

	"go.uber.org/zap"
)

// KeypointMeta is the meta.json written next to a keypoint dataset.
type KeypointMeta struct {
	Order  [4]string `json:"order"`
	Format string    `json:"format"`
	Train  int       `json:"train"`
	Val    int       `json:"val"`
}

type calSample struct {
	fileName string
	points   [4]geometry.Point
}

// ExportKeypoints writes samples carrying four calibration points as a keypoint dataset. Points
// are written in the order they were captured, which the capture app already stores by role.
func ExportKeypoints(opts IndexOptions) (SplitCounts, error) {
	log := logger.Named("export-kp")
	samples, err := dataset.LoadIndex(opts.Index)
	if err != nil {
		return SplitCounts{}, err
	}

	var usable []calSample
	for _, s := range samples {
		if s.FileName == "" {
			continue
		}
		pts, ok := s.Calibration()
		if !ok {
			continue
		}
		usable = append(usable, calSample{fileName: s.FileName, points: pts})
	}
	if len(usable) == 0 {
		return SplitCounts{}, fmt.Errorf("no samples with calibrationPoints found in %s: %w", opts.Index, ErrNoSamples)
	}

	train, val := dataset.Split(usable, opts.Train, opts.Seed)
	layout, err := newSplitLayout(opts.Out)
	if err != nil {
		return SplitCounts{}, err
	}
	write := func(set []calSample, imgDir, lblDir string) error {
		for _, s := range set {
			if err := copyAndLabel(opts.ImagesDir, s.fileName, imgDir, lblDir, dataset.FormatKeypoints(s.points)); err != nil {
				return fmt.Errorf("sample %s: %w", s.fileName, err)
			}
		}
		return nil
	}
	if err := write(train, layout.trainImg, layout.trainLbl); err != nil {
		return SplitCounts{}, err
	}
	if err := write(val, layout.valImg, layout.valLbl); err != nil {
		return SplitCounts{}, err
	}

	counts := SplitCounts{Train: len(train), Val: len(val)}
	meta := KeypointMeta{
		Order:  geometry.Roles,
		Format: geometry.LabelFormat,
		Train:  counts.Train,
		Val:    counts.Val,
	}
	if err := dataset.WriteJSON(filepath.Join(opts.Out, "meta.json"), meta); err != nil {
		return SplitCounts{}, err
	}
	log.Info("exported keypoint dataset",
		zap.Int("train", counts.Train),
		zap.Int("val", counts.Val),
		zap.String("root", opts.Out))
	return counts, nil
}

// FromYoloOptions configure ExportKeypointsFromYolo.
type FromYoloOptions struct {
	Data       string `validate:"required"`
	Out        string `validate:"required"`
	CalClasses []int  `validate:"required,min=1"`
}

// ParseClassList parses "1,2,3,4" style class lists, ignoring empty items.
func ParseClassList(s string) ([]int, error) {
	var out []int
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		v, err := strconv.Atoi(item)
		if err != nil {
			return nil, fmt.Errorf("class %q: %w", item, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// SplitResult is the number of converted samples of one split directory.
type SplitResult struct {
	Split string
	Kept  int
}

// ExportKeypointsFromYolo converts a detection dataset whose calibration points are labelled
// as boxes into a keypoint dataset, split by split.
func ExportKeypointsFromYolo(opts FromYoloOptions) ([]SplitResult, error) {
	log := logger.Named("export-kp-yolo")
	if !dataset.DirExists(opts.Data) {
		return nil, fmt.Errorf("dataset root %s: %w", opts.Data, os.ErrNotExist)
	}
	if err := os.MkdirAll(opts.Out, 0o755); err != nil {
		return nil, err
	}
	calSet := make(map[int]bool, len(opts.CalClasses))
	for _, c := range opts.CalClasses {
		calSet[c] = true
	}

	var results []SplitResult
	total := 0
	for _, split := range dataset.ExportSplits {
		splitDir := filepath.Join(opts.Data, split)
		if !dataset.DirExists(splitDir) {
			continue
		}
		kept, err := convertSplit(splitDir, filepath.Join(opts.Out, split), calSet)
		if err != nil {
			return results, fmt.Errorf("split %s: %w", split, err)
		}
		log.Info("converted split", zap.String("split", split), zap.Int("samples", kept))
		results = append(results, SplitResult{Split: split, Kept: kept})
		total += kept
	}
	if total == 0 {
		return results, fmt.Errorf("no label file in %s has %d calibration points: %w", opts.Data, 4, ErrNoSamples)
	}
	return results, nil
}

func convertSplit(splitDir, outDir string, calSet map[int]bool) (int, error) {
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

	labelFiles, err := dataset.LabelFiles(labelsDir)
	if err != nil {
		return 0, err
	}
	kept := 0
	for _, lf := range labelFiles {
		stem := dataset.Stem(lf)
		img := dataset.FindImage(imagesDir, stem)
		if img == "" {
			continue
		}
		pts, err := calibrationCenters(lf, calSet)
		if err != nil {
			return kept, err
		}
		if len(pts) < 4 {
			continue
		}
		ordered, err := geometry.OrderSlice(pts)
		if err != nil {
			continue
		}
		if err := dataset.WriteKeypointLabel(filepath.Join(outLbl, stem+".txt"), ordered); err != nil {
			return kept, err
		}
		if err := dataset.CopyFile(img, filepath.Join(outImg, filepath.Base(img))); err != nil {
			return kept, err
		}
		kept++
	}
	return kept, nil
}

func calibrationCenters(path string, calSet map[int]bool) ([]geometry.Point, error) {
	lines, err := dataset.ReadYoloFile(path)
	if err != nil {
		return nil, err
	}
	var pts []geometry.Point
	for _, l := range lines {
		if !calSet[l.Class] {
			continue
		}
		c, err := l.Center()
		if err != nil {
			continue
		}
		pts = append(pts, c)
	}
	return pts, nil
}
