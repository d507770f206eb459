// Package ml runs the evaluation models: CLIP image and text encoders,
// LPIPS and the outfit compatibility classifier.
package ml

import (
	"sync"

	"github.com/fitbench/fitbench/internal/config"
	"github.com/fitbench/fitbench/internal/imageio"
	"github.com/fitbench/fitbench/internal/onnx"
	"github.com/fitbench/fitbench/internal/pkg/errors"
	"github.com/fitbench/fitbench/internal/pkg/logger"
)

// Service owns the ONNX runtime and loads each model on first use, so runs
// that only need some metrics never touch the other model files.
type Service struct {
	mu      sync.Mutex
	cfg     config.MLConfig
	log     *logger.Logger
	runtime *onnx.Runtime
	loader  *imageio.Loader
	cache   *EmbeddingCache

	image  *ImageEncoder
	text   *TextEncoder
	lpips  *LPIPS
	compat *Compatibility
}

// NewService creates the ONNX runtime for the configured device.
func NewService(cfg config.MLConfig, log *logger.Logger) (*Service, error) {
	device := onnx.DeviceCPU
	if cfg.Device == "cuda" {
		device = onnx.DeviceCUDA
	}

	runtime, err := onnx.NewRuntime(onnx.RuntimeConfig{
		Device:       device,
		CUDADeviceID: cfg.CUDADevice,
		LibraryPath:  cfg.LibraryPath,
		Mock:         cfg.Mock,
		Logger:       log.Logger,
	})
	if err != nil {
		return nil, errors.Wrap(errors.CodeMLError, "failed to create ONNX runtime", err)
	}

	return &Service{
		cfg:     cfg,
		log:     log,
		runtime: runtime,
		loader:  imageio.NewLoader(cfg.Workers),
		cache:   NewEmbeddingCache(cfg.CacheSize),
	}, nil
}

// ImageEncoder returns the CLIP image encoder.
func (s *Service) ImageEncoder() (*ImageEncoder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.image == nil {
		session, err := s.runtime.LoadSession("clip-visual", s.cfg.ClipVisualPath())
		if err != nil {
			return nil, errors.Wrap(errors.CodeMLError, "failed to load CLIP image encoder", err)
		}
		s.image = NewImageEncoder(session, s.loader, imageio.NewCLIP(s.cfg.ImageSize), s.cache, s.cfg.BatchSize)
		s.log.Info("Loaded CLIP image encoder", "device", s.runtime.ActualDevice())
	}
	return s.image, nil
}

// TextEncoder returns the CLIP text encoder.
func (s *Service) TextEncoder() (*TextEncoder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.text == nil {
		session, err := s.runtime.LoadSession("clip-textual", s.cfg.ClipTextualPath())
		if err != nil {
			return nil, errors.Wrap(errors.CodeMLError, "failed to load CLIP text encoder", err)
		}

		tokCfg := onnx.DefaultTokenizerConfig()
		tokCfg.ContextLength = s.cfg.ContextLength
		tokCfg.AllowFallback = s.runtime.IsMock()
		tokenizer, err := onnx.NewTokenizer(s.cfg.ClipTokenizerPath(), tokCfg)
		if err != nil {
			return nil, errors.Wrap(errors.CodeMLError, "failed to load CLIP tokenizer", err)
		}

		s.text = NewTextEncoder(session, tokenizer, s.cache, s.cfg.BatchSize)
		s.log.Info("Loaded CLIP text encoder", "context_length", s.cfg.ContextLength)
	}
	return s.text, nil
}

// LPIPS returns the LPIPS metric for the configured network.
func (s *Service) LPIPS() (*LPIPS, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lpips == nil {
		session, err := s.runtime.LoadSession("lpips-"+s.cfg.LPIPSNet, s.cfg.LPIPSPath())
		if err != nil {
			return nil, errors.Wrap(errors.CodeMLError, "failed to load LPIPS model", err)
		}
		s.lpips = NewLPIPS(session, s.loader, imageio.NewLPIPS(s.cfg.LPIPSImageSize), s.cfg.BatchSize)
		s.log.Info("Loaded LPIPS model", "net", s.cfg.LPIPSNet)
	}
	return s.lpips, nil
}

// Compatibility returns the compatibility classifier stored at modelPath,
// scoring outfits with the given item features.
func (s *Service) Compatibility(modelPath string, features FeatureTable) (*Compatibility, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.compat == nil {
		session, err := s.runtime.LoadSession("compatibility", modelPath)
		if err != nil {
			return nil, errors.Wrap(errors.CodeMLError, "failed to load compatibility model", err)
		}
		s.compat = NewCompatibility(session, features, s.cfg.BatchSize)
		s.log.Info("Loaded compatibility model", "path", modelPath)
	}
	return s.compat, nil
}

// CacheStats returns embedding cache statistics.
func (s *Service) CacheStats() CacheStats {
	return s.cache.Stats()
}

// Device returns the device inference runs on.
func (s *Service) Device() string {
	return string(s.runtime.ActualDevice())
}

// Close releases the runtime and its sessions.
func (s *Service) Close() error {
	return s.runtime.Close()
}
