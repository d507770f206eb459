//go:build cgo

package onnx

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/fitbench/fitbench/internal/pkg/errors"
)

// cgoRuntime runs models through the ONNX Runtime C library.
type cgoRuntime struct{}

var _ runtimeImpl = (*cgoRuntime)(nil)

func newRuntimeImpl(cfg RuntimeConfig) (runtimeResult, error) {
	libPath := cfg.LibraryPath
	if libPath == "" {
		libPath = findLibraryPath()
	}

	if libPath == "" {
		cfg.Logger.Warn("ONNX Runtime shared library not found, inference disabled")
		return runtimeResult{impl: &stubRuntime{}, actualDevice: DeviceStub}, nil
	}

	cfg.Logger.Info("Initializing ONNX Runtime", "library", libPath, "device", cfg.Device)

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return runtimeResult{}, errors.MLError("failed to initialize ONNX Runtime", err)
	}

	device := cfg.Device
	if device == DeviceCUDA {
		probe, err := ort.NewCUDAProviderOptions()
		if err != nil {
			cfg.Logger.Warn("CUDA provider unavailable, using CPU", "error", err)
			device = DeviceCPU
		} else {
			probe.Destroy()
		}
	}

	return runtimeResult{impl: &cgoRuntime{}, actualDevice: device}, nil
}

func (c *cgoRuntime) createSession(name, modelPath string, device Device, cudaDeviceID int) (*Session, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, errors.NotFoundError("model file " + modelPath)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.MLError("failed to create session options", err)
	}
	defer options.Destroy()

	if device == DeviceCUDA {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, errors.MLError("failed to create CUDA options for "+name, err)
		}
		defer cudaOptions.Destroy()
		if err := cudaOptions.Update(map[string]string{"device_id": strconv.Itoa(cudaDeviceID)}); err != nil {
			return nil, errors.MLError("failed to set CUDA device", err)
		}
		if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
			return nil, errors.MLError("failed to append CUDA provider", err)
		}
	}

	inputInfo, outputInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, errors.MLError("failed to probe model "+name, err)
	}

	inputNames := make([]string, 0, len(inputInfo))
	for _, info := range inputInfo {
		inputNames = append(inputNames, info.Name)
	}
	outputNames := make([]string, 0, len(outputInfo))
	for _, info := range outputInfo {
		outputNames = append(outputNames, info.Name)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, options)
	if err != nil {
		return nil, errors.MLError("failed to create ORT session for "+name, err)
	}

	return &Session{
		name:        name,
		path:        modelPath,
		inputNames:  inputNames,
		outputNames: outputNames,
		impl: &cgoSession{
			session:     session,
			inputNames:  inputNames,
			outputNames: outputNames,
		},
	}, nil
}

func (c *cgoRuntime) close() error {
	return ort.DestroyEnvironment()
}

type cgoSession struct {
	session     *ort.DynamicAdvancedSession
	inputNames  []string
	outputNames []string
}

func (s *cgoSession) run(inputs map[string]*Tensor) (map[string]*Tensor, error) {
	inputValues := make([]ort.Value, len(s.inputNames))
	defer func() {
		for _, v := range inputValues {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	for i, name := range s.inputNames {
		inp := inputs[name]
		shape := ort.NewShape(inp.Shape()...)

		var (
			value ort.Value
			err   error
		)
		switch inp.DataType() {
		case TensorTypeFloat32:
			value, err = ort.NewTensor(shape, inp.Float32Data())
		case TensorTypeInt64:
			value, err = ort.NewTensor(shape, inp.Int64Data())
		default:
			return nil, fmt.Errorf("unsupported tensor type %v for input %s", inp.DataType(), name)
		}
		if err != nil {
			return nil, fmt.Errorf("create input %s: %w", name, err)
		}
		inputValues[i] = value
	}

	// nil outputs are allocated by ORT
	outputValues := make([]ort.Value, len(s.outputNames))
	if err := s.session.Run(inputValues, outputValues); err != nil {
		return nil, err
	}
	defer func() {
		for _, v := range outputValues {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	result := make(map[string]*Tensor, len(outputValues))
	for i, value := range outputValues {
		switch t := value.(type) {
		case *ort.Tensor[float32]:
			result[s.outputNames[i]] = NewTensorFloat32(append([]float32(nil), t.GetData()...), []int64(t.GetShape()))
		case *ort.Tensor[int64]:
			result[s.outputNames[i]] = NewTensorInt64(append([]int64(nil), t.GetData()...), []int64(t.GetShape()))
		case *ort.Tensor[float64]:
			data := t.GetData()
			data32 := make([]float32, len(data))
			for k, v := range data {
				data32[k] = float32(v)
			}
			result[s.outputNames[i]] = NewTensorFloat32(data32, []int64(t.GetShape()))
		}
	}
	return result, nil
}

func (s *cgoSession) close() error {
	return s.session.Destroy()
}

func findLibraryPath() string {
	if env := os.Getenv("ONNX_RUNTIME_LIB"); env != "" {
		return env
	}
	name := "libonnxruntime.so"
	switch runtime.GOOS {
	case "windows":
		name = "onnxruntime.dll"
	case "darwin":
		name = "libonnxruntime.dylib"
	}
	if _, err := os.Stat(name); err == nil {
		return name
	}
	return ""
}
