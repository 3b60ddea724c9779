package train

import (
	"fmt"
	"path/filepath"

	"BoardKP/dataset"
	"BoardKP/geometry"
	"BoardKP/model"
)

const (
	SavedModelDir  = "saved_model"
	HistoryJSON    = "history.json"
	HistoryPlot    = "history.png"
	CheckpointFile = "best.json"
)

// Artifacts lists what Export wrote.
type Artifacts struct {
	RunDir     string `json:"run_dir"`
	SavedModel string `json:"saved_model"`
	Bundle     string `json:"bundle"`
	Meta       string `json:"meta"`
	History    string `json:"history"`
	Plot       string `json:"plot,omitempty"`
}

// BundleName is the file name of the mobile bundle for a version.
func BundleName(version string) string {
	return fmt.Sprintf("board_kp_%s.kpm", version)
}

// NewMeta describes a trained model for the given input size.
func NewMeta(version string, pre model.Preprocess, bestValMAE float64) model.Meta {
	return model.Meta{
		Version:    version,
		Order:      geometry.Roles[:],
		Input:      fmt.Sprintf("%dx%d rgb float32 0..1", pre.InputSize, pre.InputSize),
		Output:     "8 floats: " + geometry.LabelFormat,
		Preprocess: pre,
		BestValMAE: bestValMAE,
	}
}

// Export writes the saved model directory, the .kpm bundle, meta.json and the training history
// into runDir.
func Export(runDir string, b model.Bundle, hist History) (Artifacts, error) {
	a := Artifacts{
		RunDir:     runDir,
		SavedModel: filepath.Join(runDir, SavedModelDir),
		Bundle:     filepath.Join(runDir, BundleName(b.Meta.Version)),
		Meta:       filepath.Join(runDir, model.MetaFile),
		History:    filepath.Join(runDir, HistoryJSON),
	}
	if err := dataset.MkdirAll(runDir); err != nil {
		return a, err
	}
	if err := model.WriteDir(a.SavedModel, b); err != nil {
		return a, fmt.Errorf("saved model: %w", err)
	}
	if err := model.WriteBundle(a.Bundle, b); err != nil {
		return a, fmt.Errorf("bundle: %w", err)
	}
	if err := dataset.WriteJSON(a.Meta, b.Meta); err != nil {
		return a, err
	}
	if err := dataset.WriteJSON(a.History, hist); err != nil {
		return a, err
	}
	if len(hist.Epochs) > 0 {
		a.Plot = filepath.Join(runDir, HistoryPlot)
		if err := PlotHistory(hist, a.Plot); err != nil {
			return a, fmt.Errorf("history plot: %w", err)
		}
	}
	return a, nil
}
