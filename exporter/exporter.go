// Package exporter turns capture-app indexes and YOLO datasets into training layouts.
package exporter

import (
	"errors"
	"path/filepath"

	"BoardKP/dataset"
)

// ErrNoSamples is returned when filtering leaves nothing to export.
var ErrNoSamples = errors.New("no usable samples")

// IndexOptions configure the exporters that read an index.json.
type IndexOptions struct {
	Index     string  `validate:"required"`
	ImagesDir string  `validate:"required"`
	Out       string  `validate:"required"`
	Train     float64 `validate:"gte=0,lte=1"`
	Seed      int64
}

// SplitCounts reports how many samples landed in each split.
type SplitCounts struct {
	Train int `json:"train"`
	Val   int `json:"val"`
}

type splitLayout struct {
	trainImg, valImg, trainLbl, valLbl string
}

func newSplitLayout(out string) (splitLayout, error) {
	l := splitLayout{
		trainImg: filepath.Join(out, "images", "train"),
		valImg:   filepath.Join(out, "images", "val"),
		trainLbl: filepath.Join(out, "labels", "train"),
		valLbl:   filepath.Join(out, "labels", "val"),
	}
	return l, dataset.MkdirAll(l.trainImg, l.valImg, l.trainLbl, l.valLbl)
}

// copyAndLabel copies the image unless already present and writes body as its label.
func copyAndLabel(imagesDir, fileName, imgDir, lblDir, body string) error {
	src := filepath.Join(imagesDir, fileName)
	if err := dataset.CopyIfMissing(src, filepath.Join(imgDir, fileName)); err != nil {
		return err
	}
	return dataset.WriteFileAtomic(filepath.Join(lblDir, dataset.Stem(fileName)+".txt"), []byte(body))
}
