// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Evaluation target
	Dataset     string `envconfig:"FITB_DATASET" yaml:"dataset"`
	Task        string `envconfig:"FITB_TASK" yaml:"task"`
	Mode        string `envconfig:"FITB_MODE" yaml:"mode"`
	EvalVersion string `envconfig:"FITB_EVAL_VERSION" yaml:"eval_version"`
	Checkpoints string `envconfig:"FITB_CKPTS" yaml:"ckpts"`

	// Filesystem layout
	Paths PathsConfig `yaml:"paths"`

	// Guidance scales of the generation run (used only in file names)
	Scales ScalesConfig `yaml:"scales"`

	// ML inference configuration
	ML MLConfig `yaml:"ml"`

	// Personalization metric configuration
	Personalization PersonalizationConfig `yaml:"personalization"`

	// Result store configuration
	Results ResultsConfig `yaml:"results"`

	// Model source repositories
	Models ModelsConfig `yaml:"models"`

	// LAION downloader configuration
	Download DownloadConfig `yaml:"download"`

	// Logging configuration
	Log LogConfig `yaml:"log"`
}

// PathsConfig holds dataset and output locations.
type PathsConfig struct {
	DataDir            string `envconfig:"FITB_DATA_DIR" yaml:"data_dir"`
	ImageDir           string `envconfig:"FITB_IMAGE_DIR" yaml:"image_dir"`
	OutputDir          string `envconfig:"FITB_OUTPUT_DIR" yaml:"output_dir"`
	CompatibilityModel string `envconfig:"FITB_COMPAT_MODEL" yaml:"compatibility_model"`
}

// ScalesConfig holds the classifier-free guidance scales of the evaluated run.
type ScalesConfig struct {
	Category float64 `envconfig:"FITB_CATE_SCALE" yaml:"category"`
	Mutual   float64 `envconfig:"FITB_MUTUAL_SCALE" yaml:"mutual"`
	History  float64 `envconfig:"FITB_HIST_SCALE" yaml:"history"`
}

// MLConfig holds ML inference settings.
type MLConfig struct {
	Device         string `envconfig:"FITB_ML_DEVICE" yaml:"device"`
	CUDADevice     int    `envconfig:"FITB_ML_CUDA_DEVICE" yaml:"cuda_device"`
	LibraryPath    string `envconfig:"ONNX_RUNTIME_LIB" yaml:"library_path"`
	ModelsDir      string `envconfig:"FITB_MODELS_DIR" yaml:"models_dir"`
	BatchSize      int    `envconfig:"FITB_BATCH_SIZE" yaml:"batch_size"`
	Workers        int    `envconfig:"FITB_NUM_WORKERS" yaml:"num_workers"`
	ImageSize      int    `envconfig:"FITB_CLIP_IMAGE_SIZE" yaml:"image_size"`
	LPIPSImageSize int    `envconfig:"FITB_LPIPS_IMAGE_SIZE" yaml:"lpips_image_size"`
	ContextLength  int    `envconfig:"FITB_CLIP_CONTEXT_LENGTH" yaml:"context_length"`
	LPIPSNet       string `envconfig:"FITB_LPIPS_NET" yaml:"lpips_net"`
	SimilarityFunc string `envconfig:"FITB_SIM_FUNC" yaml:"similarity_func"`
	CacheSize      int    `envconfig:"FITB_EMBED_CACHE_SIZE" yaml:"cache_size"`
	Mock           bool   `envconfig:"FITB_MOCK_ML" yaml:"mock"`
}

// PersonalizationConfig decides how slots without user history are handled.
type PersonalizationConfig struct {
	MissingHistory string `envconfig:"FITB_MISSING_HISTORY" yaml:"missing_history"` // drop | null
}

// ResultsConfig holds evaluation record persistence settings.
type ResultsConfig struct {
	Backend  string `envconfig:"FITB_RESULTS_BACKEND" yaml:"backend"` // file | redis
	FileName string `envconfig:"FITB_RESULTS_FILE" yaml:"file_name"`
	RedisURL string `envconfig:"FITB_REDIS_URL" yaml:"redis_url"`
}

// ModelsConfig names the Hugging Face repositories the ONNX models are pulled from.
type ModelsConfig struct {
	HubURL            string `envconfig:"FITB_HUB_URL" yaml:"hub_url"`
	ClipRepo          string `envconfig:"FITB_CLIP_REPO" yaml:"clip_repo"`
	LPIPSRepo         string `envconfig:"FITB_LPIPS_REPO" yaml:"lpips_repo"`
	CompatibilityRepo string `envconfig:"FITB_COMPAT_REPO" yaml:"compatibility_repo"`
}

// DownloadConfig holds LAION downloader settings.
type DownloadConfig struct {
	NumFiles       int           `envconfig:"FITB_NUM_FILES" yaml:"num_files"`
	Token          string        `envconfig:"HF_TOKEN" yaml:"hf_token"`
	ProcessesCount int           `envconfig:"FITB_PROCESSES_COUNT" yaml:"processes_count"`
	ThreadCount    int           `envconfig:"FITB_THREAD_COUNT" yaml:"thread_count"`
	Profile        string        `envconfig:"FITB_DOWNLOAD_PROFILE" yaml:"profile"` // sharded | incremental
	Root           string        `envconfig:"FITB_DOWNLOAD_ROOT" yaml:"root"`
	Repo           string        `envconfig:"FITB_DOWNLOAD_REPO" yaml:"repo"`
	Tool           string        `envconfig:"FITB_CONVERT_TOOL" yaml:"tool"`
	Interval       time.Duration `envconfig:"FITB_DOWNLOAD_INTERVAL" yaml:"interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"FITB_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"FITB_LOG_FORMAT" yaml:"format"`
}

// DatasetPreset holds the per-dataset locations.
type DatasetPreset struct {
	DataDir            string
	OutputDir          string
	CompatibilityModel string
}

// Presets lists the datasets fitbench knows how to evaluate.
var Presets = map[string]DatasetPreset{
	"ifashion": {
		DataDir:            "../datasets/ifashion",
		OutputDir:          "../output/ifashion",
		CompatibilityModel: "compatibility/ifashion.onnx",
	},
	"polyvore": {
		DataDir:            "../datasets/polyvore",
		OutputDir:          "../output/polyvore",
		CompatibilityModel: "compatibility/polyvore.onnx",
	},
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Dataset = "ifashion"
	cfg.Task = "FITB"
	cfg.Mode = "valid"
	cfg.EvalVersion = "difashion"
	cfg.Checkpoints = "all"

	cfg.Paths = PathsConfig{
		ImageDir: "/data/path/images",
	}

	cfg.Scales = ScalesConfig{
		Category: 12.0,
		Mutual:   5.0,
		History:  4.0,
	}

	cfg.ML = MLConfig{
		Device:         "cpu",
		ModelsDir:      "./models",
		BatchSize:      50,
		Workers:        1,
		ImageSize:      224,
		LPIPSImageSize: 256,
		ContextLength:  77,
		LPIPSNet:       "vgg",
		SimilarityFunc: "cosine",
		CacheSize:      200000,
	}

	cfg.Personalization = PersonalizationConfig{
		MissingHistory: "drop",
	}

	cfg.Results = ResultsConfig{
		Backend:  "file",
		FileName: "eval_results_grounding.json",
		RedisURL: "redis://localhost:6379/0",
	}

	cfg.Models = ModelsConfig{
		HubURL:   "https://huggingface.co",
		ClipRepo: "Xenova/clip-vit-base-patch32",
	}

	cfg.Download = DownloadConfig{
		NumFiles:       1,
		ProcessesCount: 16,
		ThreadCount:    64,
		Profile:        "sharded",
		Root:           "laion2B-en-aesthetic",
		Repo:           "laion/laion2B-en-aesthetic",
		Tool:           "img2dataset",
		Interval:       time.Second,
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// ApplyPreset fills dataset-specific paths that were not set explicitly.
func (c *Config) ApplyPreset() {
	preset, ok := Presets[c.Dataset]
	if !ok {
		return
	}
	if c.Paths.DataDir == "" {
		c.Paths.DataDir = preset.DataDir
	}
	if c.Paths.OutputDir == "" {
		c.Paths.OutputDir = preset.OutputDir
	}
	if c.Paths.CompatibilityModel == "" {
		c.Paths.CompatibilityModel = preset.CompatibilityModel
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if _, ok := Presets[c.Dataset]; !ok {
		errs = append(errs, fmt.Sprintf("invalid dataset: %s (must be ifashion or polyvore)", c.Dataset))
	}

	if c.Mode != "valid" && c.Mode != "test" {
		errs = append(errs, fmt.Sprintf("invalid mode: %s (must be valid or test)", c.Mode))
	}

	if c.Task == "" {
		errs = append(errs, "task must not be empty")
	}

	if c.EvalVersion == "" {
		errs = append(errs, "eval_version must not be empty")
	}

	// ML validation
	if c.ML.Device != "cpu" && c.ML.Device != "cuda" {
		errs = append(errs, fmt.Sprintf("invalid ML device: %s (must be cpu or cuda)", c.ML.Device))
	}

	if c.ML.CUDADevice < 0 {
		errs = append(errs, "cuda_device must not be negative")
	}

	if c.ML.BatchSize < 1 {
		errs = append(errs, "batch_size must be positive")
	}

	if c.ML.Workers < 1 {
		errs = append(errs, "num_workers must be positive")
	}

	if c.ML.ImageSize < 1 || c.ML.LPIPSImageSize < 1 {
		errs = append(errs, "image sizes must be positive")
	}

	if c.ML.ContextLength < 2 {
		errs = append(errs, "context_length must be at least 2")
	}

	if c.ML.LPIPSNet != "vgg" && c.ML.LPIPSNet != "alex" {
		errs = append(errs, fmt.Sprintf("invalid lpips_net: %s (must be vgg or alex)", c.ML.LPIPSNet))
	}

	if c.ML.SimilarityFunc != "cosine" && c.ML.SimilarityFunc != "dot" {
		errs = append(errs, fmt.Sprintf("invalid similarity_func: %s (must be cosine or dot)", c.ML.SimilarityFunc))
	}

	// Personalization validation
	if c.Personalization.MissingHistory != "drop" && c.Personalization.MissingHistory != "null" {
		errs = append(errs, fmt.Sprintf("invalid missing_history: %s (must be drop or null)", c.Personalization.MissingHistory))
	}

	// Results validation
	if c.Results.Backend != "file" && c.Results.Backend != "redis" {
		errs = append(errs, fmt.Sprintf("invalid results backend: %s (must be file or redis)", c.Results.Backend))
	}

	if c.Results.FileName == "" || c.Results.FileName != filepath.Base(c.Results.FileName) {
		errs = append(errs, "results file_name must be a bare file name")
	}

	// Download validation
	if c.Download.Profile != "sharded" && c.Download.Profile != "incremental" {
		errs = append(errs, fmt.Sprintf("invalid download profile: %s (must be sharded or incremental)", c.Download.Profile))
	}

	if c.Download.NumFiles < 0 {
		errs = append(errs, "num_files must not be negative")
	}

	if c.Download.ProcessesCount < 1 || c.Download.ThreadCount < 1 {
		errs = append(errs, "processes_count and thread_count must be positive")
	}

	if c.Download.Interval < 0 {
		errs = append(errs, "download interval must not be negative")
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// EvalDir returns the directory holding generation outputs for the configured mode.
func (c *Config) EvalDir() string {
	sub := "eval"
	if c.Mode == "test" {
		sub = "eval-test"
	}
	return filepath.Join(c.Paths.OutputDir, c.EvalVersion, sub)
}

// CompatibilityModelPath resolves the compatibility model against the models dir.
func (c *Config) CompatibilityModelPath() string {
	if filepath.IsAbs(c.Paths.CompatibilityModel) {
		return c.Paths.CompatibilityModel
	}
	return filepath.Join(c.ML.ModelsDir, c.Paths.CompatibilityModel)
}

// ClipVisualPath returns the CLIP image encoder model file.
func (m MLConfig) ClipVisualPath() string {
	return filepath.Join(m.ModelsDir, "clip", "visual.onnx")
}

// ClipTextualPath returns the CLIP text encoder model file.
func (m MLConfig) ClipTextualPath() string {
	return filepath.Join(m.ModelsDir, "clip", "textual.onnx")
}

// ClipTokenizerPath returns the CLIP tokenizer definition.
func (m MLConfig) ClipTokenizerPath() string {
	return filepath.Join(m.ModelsDir, "clip", "tokenizer.json")
}

// LPIPSPath returns the LPIPS model file for the configured network.
func (m MLConfig) LPIPSPath() string {
	return filepath.Join(m.ModelsDir, "lpips", m.LPIPSNet+".onnx")
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Log.Level == "debug"
}
