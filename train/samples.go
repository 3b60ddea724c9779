package train

import (
	"errors"
	"fmt"

	"BoardKP/dataset"
)

var (
	ErrNoTrainSamples = errors.New("no training samples found")
	ErrNoValSamples   = errors.New("no validation samples found")
)

// Discover lists the train and validation samples under root. The validation split is read
// from "val", falling back to "valid".
func Discover(root string) (train, val []dataset.KeypointSample, err error) {
	train, err = splitSamples(root, "train")
	if err != nil {
		return nil, nil, err
	}
	val, err = splitSamples(root, "val")
	if err != nil {
		return nil, nil, err
	}
	if len(val) == 0 {
		if val, err = splitSamples(root, "valid"); err != nil {
			return nil, nil, err
		}
	}
	if len(train) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", root, ErrNoTrainSamples)
	}
	if len(val) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", root, ErrNoValSamples)
	}
	return train, val, nil
}

func splitSamples(root, split string) ([]dataset.KeypointSample, error) {
	img, lbl, ok := dataset.SplitDirs(root, split)
	if !ok {
		return nil, nil
	}
	return dataset.ListKeypointSamples(img, lbl)
}
