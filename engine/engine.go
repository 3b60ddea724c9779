package engine

import (
	"os"

	iface "BoardKP/interface"
	"BoardKP/logger"
	"BoardKP/model"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// BundleEngine runs an exported backbone + head bundle.
type BundleEngine struct {
	ModelPath string
	State     int
	meta      model.Meta
	head      *model.Head
	backbone  *Backbone
}

// LoadModel reads a .kpm bundle or a saved model directory.
func (e *BundleEngine) LoadModel(modelPath string) error {
	info, err := os.Stat(modelPath)
	if err != nil {
		return err
	}
	var b model.Bundle
	if info.IsDir() {
		b, err = model.ReadDir(modelPath)
	} else {
		b, err = model.ReadBundle(modelPath)
	}
	if err != nil {
		return err
	}
	backbone, err := NewBackbone(b.Backbone, b.Meta.Preprocess)
	if err != nil {
		return err
	}
	if e.backbone != nil {
		_ = e.backbone.Close()
	}
	e.ModelPath = modelPath
	e.meta = b.Meta
	e.head = b.Head
	e.backbone = backbone
	e.State = IDLE
	return nil
}

func (e *BundleEngine) Predict(img gocv.Mat) iface.RetData {
	switch e.State {
	case 0, UNREGISTERED:
		return iface.RetData{Success: false, Data: "Engine not registered"}
	case REGISTERED:
		return iface.RetData{Success: false, Data: "Model not loaded"}
	case BUSY:
		return iface.RetData{Success: false, Data: "Engine is busy"}
	}
	e.State = BUSY
	defer func() { e.State = IDLE }()

	feats, err := e.backbone.Features(img)
	if err != nil {
		return iface.RetData{Success: false, Data: err.Error()}
	}
	out, err := e.head.Predict(feats)
	if err != nil {
		return iface.RetData{Success: false, Data: err.Error()}
	}
	values := make([]float32, len(out))
	for i, v := range out {
		values[i] = float32(v)
	}
	kps, err := Keypoints(values)
	if err != nil {
		return iface.RetData{Success: false, Data: err.Error()}
	}
	return iface.RetData{Success: true, Data: kps}
}

func (e *BundleEngine) CheckConfig() iface.EngineConfig {
	return iface.EngineConfig{
		ModelPath: e.ModelPath,
		Kind:      KindBundle,
		InputSize: e.meta.Preprocess.InputSize,
		Version:   e.meta.Version,
		Order:     e.meta.Order,
	}
}

// SetInputSize overrides the backbone input side, for backbones exported with dynamic shapes.
func (e *BundleEngine) SetInputSize(size int) {
	if e.backbone != nil && size > 0 {
		e.backbone.pre.InputSize = size
		e.meta.Preprocess.InputSize = size
	}
}

func (e *BundleEngine) Destroy() {
	if e.backbone != nil {
		if err := e.backbone.Close(); err != nil {
			logger.Named("engine").Warn("close backbone", zap.String("model", e.ModelPath), zap.Error(err))
		}
	}
	e.backbone = nil
	e.head = nil
	e.ModelPath = ""
	e.meta = model.Meta{}
	e.State = UNREGISTERED
}
