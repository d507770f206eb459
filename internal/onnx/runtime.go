// Package onnx provides ONNX Runtime integration for ML inference.
package onnx

import (
	"log/slog"
	"sync"
)

// Runtime manages the ONNX Runtime environment and its loaded sessions.
type Runtime struct {
	mu           sync.Mutex
	device       Device // Requested device
	actualDevice Device // Device in use after fallback
	cudaDeviceID int
	sessions     map[string]*Session
	impl         runtimeImpl
	log          *slog.Logger
}

// Device represents the execution device.
type Device string

const (
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
	DeviceMock Device = "mock" // Deterministic fake inference
	DeviceStub Device = "stub" // ONNX Runtime not available
)

// RuntimeConfig holds runtime configuration.
type RuntimeConfig struct {
	Device       Device
	CUDADeviceID int
	LibraryPath  string
	// Mock replaces inference with deterministic fake outputs.
	Mock   bool
	Logger *slog.Logger
}

type runtimeResult struct {
	impl         runtimeImpl
	actualDevice Device
}

// NewRuntime creates a new ONNX Runtime.
func NewRuntime(cfg RuntimeConfig) (*Runtime, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var (
		result runtimeResult
		err    error
	)
	if cfg.Mock {
		cfg.Logger.Info("ML mock mode enabled")
		result = runtimeResult{impl: &mockRuntime{}, actualDevice: DeviceMock}
	} else {
		result, err = newRuntimeImpl(cfg)
		if err != nil {
			return nil, err
		}
	}

	if result.actualDevice != cfg.Device {
		cfg.Logger.Warn("ONNX device fallback",
			"requested", cfg.Device,
			"actual", result.actualDevice)
	}

	return &Runtime{
		device:       cfg.Device,
		actualDevice: result.actualDevice,
		cudaDeviceID: cfg.CUDADeviceID,
		sessions:     make(map[string]*Session),
		impl:         result.impl,
		log:          cfg.Logger,
	}, nil
}

// LoadSession loads an ONNX model and returns a session.
// Sessions are cached by name.
func (r *Runtime) LoadSession(name, modelPath string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session, ok := r.sessions[name]; ok {
		return session, nil
	}

	session, err := r.impl.createSession(name, modelPath, r.actualDevice, r.cudaDeviceID)
	if err != nil {
		return nil, err
	}

	r.log.Debug("Loaded ONNX session",
		"name", name,
		"path", modelPath,
		"inputs", session.InputNames(),
		"outputs", session.OutputNames())

	r.sessions[name] = session
	return session, nil
}

// Close closes the runtime and all sessions.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for name, session := range r.sessions {
		if err := session.Close(); err != nil {
			lastErr = err
		}
		delete(r.sessions, name)
	}

	if r.impl != nil {
		if err := r.impl.close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Device returns the requested device.
func (r *Runtime) Device() Device {
	return r.device
}

// ActualDevice returns the device in use.
func (r *Runtime) ActualDevice() Device {
	return r.actualDevice
}

// IsMock reports whether inference is faked.
func (r *Runtime) IsMock() bool {
	return r.actualDevice == DeviceMock
}

// runtimeImpl is the platform-specific runtime implementation.
type runtimeImpl interface {
	createSession(name, modelPath string, device Device, cudaDeviceID int) (*Session, error)
	close() error
}
