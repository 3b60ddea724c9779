package exporter

import (
	"fmt"
	"path/filepath"

	"BoardKP/dataset"
	"BoardKP/geometry"
	"BoardKP/logger"

	"go.uber.org/zap"
)

// DartTipManifest is the file name of the manifest written by ExportYolo.
const DartTipManifest = "dart-tip.yaml"

type tipSample struct {
	fileName string
	tip      geometry.Point
}

// ExportYolo writes annotated dart-tip samples as a single-class YOLO dataset.
func ExportYolo(opts IndexOptions) (SplitCounts, error) {
	log := logger.Named("export-yolo")
	samples, err := dataset.LoadIndex(opts.Index)
	if err != nil {
		return SplitCounts{}, err
	}

	var usable []tipSample
	for _, s := range samples {
		tip, ok := s.DartTip()
		if !ok || s.FileName == "" {
			continue
		}
		usable = append(usable, tipSample{fileName: s.FileName, tip: tip})
	}
	if len(usable) == 0 {
		return SplitCounts{}, fmt.Errorf("no annotated samples found: %w", ErrNoSamples)
	}

	train, val := dataset.Split(usable, opts.Train, opts.Seed)
	layout, err := newSplitLayout(opts.Out)
	if err != nil {
		return SplitCounts{}, err
	}
	write := func(set []tipSample, imgDir, lblDir string) error {
		for _, s := range set {
			if err := copyAndLabel(opts.ImagesDir, s.fileName, imgDir, lblDir, dataset.FormatDartTip(s.tip)); err != nil {
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

	manifest := dataset.Manifest{
		Path:  ".",
		Train: "images/train",
		Val:   "images/val",
		NC:    1,
		Names: []string{"dart_tip"},
	}
	manifestPath := filepath.Join(opts.Out, DartTipManifest)
	if err := dataset.WriteManifest(manifestPath, "Dart tip dataset", manifest); err != nil {
		return SplitCounts{}, err
	}
	counts := SplitCounts{Train: len(train), Val: len(val)}
	log.Info("exported dart tip dataset",
		zap.Int("train", counts.Train),
		zap.Int("val", counts.Val),
		zap.String("manifest", manifestPath))
	return counts, nil
}
