package engine

import (
	"errors"
	"fmt"
	"runtime"

	"BoardKP/geometry"
	iface "BoardKP/interface"
	"BoardKP/logger"

	"github.com/mattn/go-tflite"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// TfliteEngine runs a float32 .tflite keypoint model taking NHWC RGB input in 0..1.
type TfliteEngine struct {
	ModelPath string
	State     int
	inputSize int
	model     *tflite.Model
	options   *tflite.InterpreterOptions
	interp    *tflite.Interpreter
}

func (e *TfliteEngine) LoadModel(modelPath string) error {
	m := tflite.NewModelFromFile(modelPath)
	if m == nil {
		return fmt.Errorf("cannot load tflite model %s", modelPath)
	}
	options := tflite.NewInterpreterOptions()
	options.SetNumThread(runtime.NumCPU())
	interp := tflite.NewInterpreter(m, options)
	if interp == nil {
		options.Delete()
		m.Delete()
		return errors.New("cannot create tflite interpreter")
	}
	if status := interp.AllocateTensors(); status != tflite.OK {
		interp.Delete()
		options.Delete()
		m.Delete()
		return fmt.Errorf("allocate tensors: status %d", status)
	}
	input := interp.GetInputTensor(0)
	if input.Type() != tflite.Float32 {
		interp.Delete()
		options.Delete()
		m.Delete()
		return fmt.Errorf("tflite input type %v, want float32", input.Type())
	}
	e.Destroy()
	e.ModelPath = modelPath
	e.model = m
	e.options = options
	e.interp = interp
	e.inputSize = DefaultInputSize
	if input.NumDims() == 4 && input.Dim(1) > 0 {
		e.inputSize = input.Dim(1)
	}
	e.State = IDLE
	return nil
}

func (e *TfliteEngine) Predict(img gocv.Mat) iface.RetData {
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

	resized := Resize(img, e.inputSize)
	defer resized.Close()
	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(resized, &rgb, gocv.ColorBGRToRGB)
	scaled := gocv.NewMat()
	defer scaled.Close()
	rgb.ConvertToWithParams(&scaled, gocv.MatTypeCV32FC3, 1.0/255, 0)
	pixels, err := scaled.DataPtrFloat32()
	if err != nil {
		return iface.RetData{Success: false, Data: err.Error()}
	}

	input := e.interp.GetInputTensor(0)
	dst := input.Float32s()
	if len(dst) != len(pixels) {
		return iface.RetData{Success: false, Data: fmt.Sprintf("input holds %d values, image has %d", len(dst), len(pixels))}
	}
	copy(dst, pixels)
	if status := e.interp.Invoke(); status != tflite.OK {
		return iface.RetData{Success: false, Data: fmt.Sprintf("invoke failed: status %d", status)}
	}
	out := append([]float32(nil), e.interp.GetOutputTensor(0).Float32s()...)
	kps, err := Keypoints(out)
	if err != nil {
		return iface.RetData{Success: false, Data: err.Error()}
	}
	return iface.RetData{Success: true, Data: kps}
}

func (e *TfliteEngine) CheckConfig() iface.EngineConfig {
	return iface.EngineConfig{
		ModelPath: e.ModelPath,
		Kind:      KindTflite,
		InputSize: e.inputSize,
		Order:     geometry.Roles[:],
	}
}

// SetInputSize is fixed by the tflite graph; only a matching size is accepted.
func (e *TfliteEngine) SetInputSize(size int) {
	if size > 0 && size != e.inputSize {
		logger.Named("engine").Warn("tflite input size is fixed, ignoring override",
			zap.Int("fixed", e.inputSize), zap.Int("requested", size))
	}
}

func (e *TfliteEngine) Destroy() {
	if e.interp != nil {
		e.interp.Delete()
	}
	if e.options != nil {
		e.options.Delete()
	}
	if e.model != nil {
		e.model.Delete()
	}
	e.interp = nil
	e.options = nil
	e.model = nil
	e.ModelPath = ""
	e.inputSize = 0
	e.State = UNREGISTERED
}
