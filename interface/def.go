package iface

import "gocv.io/x/gocv"

// Position is a normalised image coordinate.
type Position struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Keypoint is one named calibration point.
type Keypoint struct {
	Role string   `json:"role"`
	Pos  Position `json:"pos"`
}

// RetData carries a backend answer; Data holds []Keypoint on success and a message otherwise.
type RetData struct {
	Success bool
	Data    any
}

// EngineConfig describes a loaded model.
type EngineConfig struct {
	ModelPath string
	Kind      string
	InputSize int
	Version   string
	Order     []string
}

// Backend runs one image through a keypoint model. Implementations are not safe for concurrent
// use; callers serialise access or own one backend per goroutine.
type Backend interface {
	LoadModel(modelPath string) error
	Predict(image gocv.Mat) RetData
	Destroy()
	CheckConfig() EngineConfig
	SetInputSize(size int)
}
