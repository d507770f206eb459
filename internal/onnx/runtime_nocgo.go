//go:build !cgo

package onnx

func newRuntimeImpl(cfg RuntimeConfig) (runtimeResult, error) {
	cfg.Logger.Warn("ONNX Runtime is not compiled in, inference disabled",
		"requested_device", cfg.Device)
	return runtimeResult{impl: &stubRuntime{}, actualDevice: DeviceStub}, nil
}
