package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"wallet-risk/internal/common"
	"wallet-risk/internal/ml"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	PreprocessorPath string
	ModelPath        string
	DataPath         string
	SamplesDir       string
	ModelsDir        string
	ImportancePath   string
	BaselinePath     string

	ServerAddr     string
	RequestTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxBodyBytes   int64
	BatchWorkers   int
	SelfCheck      bool

	DriftEnabled  bool
	DriftInterval time.Duration
	Drift         ml.DriftConfig

	DashboardEnabled  bool
	DashboardInterval time.Duration

	Training ml.TrainingConfig

	LogLevel  string
	LogFormat string
}

type ConfigFile struct {
	Artifacts struct {
		Preprocessor  string `yaml:"preprocessor"`
		Model         string `yaml:"model"`
		Importance    string `yaml:"importance"`
		DriftBaseline string `yaml:"driftBaseline"`
	} `yaml:"artifacts"`

	Storage struct {
		DataPath   string `yaml:"dataPath"`
		SamplesDir string `yaml:"samplesDir"`
		ModelsDir  string `yaml:"modelsDir"`
	} `yaml:"storage"`

	Server struct {
		Addr           string `yaml:"addr"`
		RequestTimeout string `yaml:"requestTimeout"`
		ReadTimeout    string `yaml:"readTimeout"`
		WriteTimeout   string `yaml:"writeTimeout"`
		IdleTimeout    string `yaml:"idleTimeout"`
		MaxBodyBytes   int    `yaml:"maxBodyBytes"`
		BatchWorkers   int    `yaml:"batchWorkers"`
		SelfCheck      *bool  `yaml:"selfCheck"`
	} `yaml:"server"`

	Drift struct {
		Enabled       bool    `yaml:"enabled"`
		CheckInterval string  `yaml:"checkInterval"`
		WindowSize    int     `yaml:"windowSize"`
		MinSamples    int     `yaml:"minSamples"`
		Bins          int     `yaml:"bins"`
		Threshold     float64 `yaml:"threshold"`
	} `yaml:"drift"`

	Dashboard struct {
		Enabled  bool   `yaml:"enabled"`
		Interval string `yaml:"interval"`
	} `yaml:"dashboard"`

	Training struct {
		TestSize    float64 `yaml:"testSize"`
		Seed        int64   `yaml:"seed"`
		SampleCount int     `yaml:"sampleCount"`
		Boosting    struct {
			Iterations          int     `yaml:"iterations"`
			LearningRate        float64 `yaml:"learningRate"`
			Depth               int     `yaml:"depth"`
			EarlyStoppingRounds int     `yaml:"earlyStoppingRounds"`
			EvalMetric          string  `yaml:"evalMetric"`
		} `yaml:"boosting"`
	} `yaml:"training"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads an optional .env file, then the YAML file named by CONFIG_FILE,
// with environment variables taking precedence over both.
func Load() (Settings, error) {
	if err := loadDotenv(); err != nil {
		return Settings{}, err
	}

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	return loadFromEnv()
}

// loadDotenv never overrides variables already present in the process
// environment.
func loadDotenv() error {
	if path := os.Getenv(common.EnvDotenvFile); path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	return fromConfig(config)
}

func loadFromEnv() (Settings, error) {
	return fromConfig(ConfigFile{})
}

func fromConfig(config ConfigFile) (Settings, error) {
	selfCheck := true
	if config.Server.SelfCheck != nil {
		selfCheck = *config.Server.SelfCheck
	}

	drift := ml.DefaultDriftConfig()
	training := ml.DefaultTrainingConfig()
	boosting := config.Training.Boosting

	settings := Settings{
		PreprocessorPath: getEnvOrConfig(common.EnvPreprocessorPath, config.Artifacts.Preprocessor, common.DefaultPreprocessorPath),
		ModelPath:        getEnvOrConfig(common.EnvModelPath, config.Artifacts.Model, common.DefaultModelPath),
		DataPath:         getEnvOrConfig(common.EnvDataPath, config.Storage.DataPath, common.DefaultDataPath),
		SamplesDir:       getEnvOrConfig(common.EnvSamplesDir, config.Storage.SamplesDir, common.DefaultSamplesDir),
		ModelsDir:        getEnvOrConfig(common.EnvModelsDir, config.Storage.ModelsDir, common.DefaultModelsDir),
		ImportancePath:   getEnvOrConfig(common.EnvImportancePath, config.Artifacts.Importance, common.DefaultImportancePath),
		BaselinePath:     getEnvOrConfig(common.EnvBaselinePath, config.Artifacts.DriftBaseline, common.DefaultBaselinePath),

		ServerAddr:     getEnvOrConfig(common.EnvServerAddr, config.Server.Addr, common.DefaultServerAddr),
		RequestTimeout: getDurationFromEnvOrConfig(common.EnvRequestTimeout, config.Server.RequestTimeout, 5*time.Second),
		ReadTimeout:    getDurationFromEnvOrConfig(common.EnvReadTimeout, config.Server.ReadTimeout, 10*time.Second),
		WriteTimeout:   getDurationFromEnvOrConfig(common.EnvWriteTimeout, config.Server.WriteTimeout, 10*time.Second),
		IdleTimeout:    getDurationFromEnvOrConfig(common.EnvIdleTimeout, config.Server.IdleTimeout, 120*time.Second),
		MaxBodyBytes:   int64(getIntFromEnvOrConfig(common.EnvMaxBodyBytes, config.Server.MaxBodyBytes, common.DefaultMaxBodyBytes)),
		BatchWorkers:   getIntFromEnvOrConfig(common.EnvBatchWorkers, config.Server.BatchWorkers, common.DefaultBatchWorkers),
		SelfCheck:      getBoolFromEnvOrConfig(common.EnvSelfCheck, selfCheck),

		DriftEnabled:  getBoolFromEnvOrConfig(common.EnvDriftEnabled, config.Drift.Enabled),
		DriftInterval: getDurationFromEnvOrConfig(common.EnvDriftInterval, config.Drift.CheckInterval, time.Minute),
		Drift: ml.DriftConfig{
			WindowSize: getIntFromEnvOrConfig(common.EnvDriftWindow, config.Drift.WindowSize, drift.WindowSize),
			MinSamples: getIntFromEnvOrConfig(common.EnvDriftMinSamples, config.Drift.MinSamples, drift.MinSamples),
			Bins:       getIntFromEnvOrConfig(common.EnvDriftBins, config.Drift.Bins, drift.Bins),
			Threshold:  getFloatFromEnvOrConfig(common.EnvDriftThreshold, config.Drift.Threshold, drift.Threshold),
		},

		DashboardEnabled:  getBoolFromEnvOrConfig(common.EnvDashboardEnabled, config.Dashboard.Enabled),
		DashboardInterval: getDurationFromEnvOrConfig(common.EnvDashboardInterval, config.Dashboard.Interval, 5*time.Second),

		LogLevel:  getEnvOrConfig(common.EnvLogLevel, config.Log.Level, common.DefaultLogLevel),
		LogFormat: getEnvOrConfig(common.EnvLogFormat, config.Log.Format, common.DefaultLogFormat),
	}

	training.TestSize = getFloatFromEnvOrConfig(common.EnvTestSize, config.Training.TestSize, training.TestSize)
	training.Seed = int64(getIntFromEnvOrConfig(common.EnvSeed, int(config.Training.Seed), int(training.Seed)))
	training.SampleCount = getIntFromEnvOrConfig(common.EnvSampleCount, config.Training.SampleCount, training.SampleCount)
	training.Boosting.Iterations = getIntFromEnvOrConfig(common.EnvIterations, boosting.Iterations, training.Boosting.Iterations)
	training.Boosting.LearningRate = getFloatFromEnvOrConfig(common.EnvLearningRate, boosting.LearningRate, training.Boosting.LearningRate)
	training.Boosting.Depth = getIntFromEnvOrConfig(common.EnvTreeDepth, boosting.Depth, training.Boosting.Depth)
	training.Boosting.EarlyStoppingRounds = getIntFromEnvOrConfig(common.EnvEarlyStoppingRounds, boosting.EarlyStoppingRounds, training.Boosting.EarlyStoppingRounds)
	training.Boosting.EvalMetric = getEnvOrConfig(common.EnvEvalMetric, boosting.EvalMetric, training.Boosting.EvalMetric)
	settings.Training = training

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// ArtifactPaths returns the preprocessor/model pair locations.
func (s *Settings) ArtifactPaths() ml.ArtifactPaths {
	return ml.ArtifactPaths{Preprocessor: s.PreprocessorPath, Model: s.ModelPath}
}

// ServerConfig returns the HTTP boundary settings.
func (s *Settings) ServerConfig() ml.ServerConfig {
	return ml.ServerConfig{
		Addr:           s.ServerAddr,
		RequestTimeout: s.RequestTimeout,
		ReadTimeout:    s.ReadTimeout,
		WriteTimeout:   s.WriteTimeout,
		IdleTimeout:    s.IdleTimeout,
		MaxBodyBytes:   s.MaxBodyBytes,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvOrConfig(key, configValue, defaultValue string) string {
	if configValue != "" {
		defaultValue = configValue
	}
	return getEnvOrDefault(key, defaultValue)
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationFromEnvOrConfig(key, configValue string, defaultValue time.Duration) time.Duration {
	if configValue != "" {
		if d, err := time.ParseDuration(configValue); err == nil {
			defaultValue = d
		}
	}
	return getDurationOrDefault(key, defaultValue)
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getIntOrDefault(key, defaultValue)
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getFloatOrDefault(key, defaultValue)
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseBool(env); err == nil {
			return val
		}
	}
	return configValue
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	// Validate artifact locations
	if settings.PreprocessorPath == "" || settings.ModelPath == "" {
		return fmt.Errorf("preprocessor and model paths are required")
	}
	if settings.PreprocessorPath == settings.ModelPath {
		return fmt.Errorf("preprocessor and model must be separate files, both are %s", settings.ModelPath)
	}
	if settings.SelfCheck && settings.DataPath == "" {
		return fmt.Errorf("self check needs a data path for the fixture store")
	}
	if settings.DriftEnabled && settings.BaselinePath == "" {
		return fmt.Errorf("drift monitoring needs a baseline path")
	}

	// Validate server settings
	if settings.ServerAddr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if settings.RequestTimeout < 100*time.Millisecond || settings.RequestTimeout > 5*time.Minute {
		return fmt.Errorf("request timeout must be between 100ms and 5m, got %v", settings.RequestTimeout)
	}
	for name, d := range map[string]time.Duration{
		"read":  settings.ReadTimeout,
		"write": settings.WriteTimeout,
		"idle":  settings.IdleTimeout,
	} {
		if d < time.Second || d > 10*time.Minute {
			return fmt.Errorf("%s timeout must be between 1s and 10m, got %v", name, d)
		}
	}
	if settings.MaxBodyBytes < common.MinBodyBytesLimit || settings.MaxBodyBytes > common.MaxBodyBytesLimit {
		return fmt.Errorf("max body bytes must be between %d and %d, got %d", common.MinBodyBytesLimit, common.MaxBodyBytesLimit, settings.MaxBodyBytes)
	}
	if settings.BatchWorkers < 1 || settings.BatchWorkers > common.MaxBatchWorkers {
		return fmt.Errorf("batch workers must be between 1 and %d, got %d", common.MaxBatchWorkers, settings.BatchWorkers)
	}

	// Validate drift monitoring
	if err := settings.Drift.Validate(); err != nil {
		return err
	}
	if settings.DriftInterval < time.Second || settings.DriftInterval > 24*time.Hour {
		return fmt.Errorf("drift check interval must be between 1s and 24h, got %v", settings.DriftInterval)
	}

	if settings.DashboardInterval < 100*time.Millisecond || settings.DashboardInterval > time.Hour {
		return fmt.Errorf("dashboard interval must be between 100ms and 1h, got %v", settings.DashboardInterval)
	}

	// Validate training parameters
	if settings.Training.SampleCount > common.MaxSampleCount {
		return fmt.Errorf("sample count must be at most %d, got %d", common.MaxSampleCount, settings.Training.SampleCount)
	}
	if err := settings.Training.Validate(); err != nil {
		return err
	}

	// Validate logging
	if _, err := zerolog.ParseLevel(settings.LogLevel); err != nil || settings.LogLevel == "" {
		return fmt.Errorf("invalid log level %q", settings.LogLevel)
	}
	switch settings.LogFormat {
	case common.LogFormatConsole, common.LogFormatJSON:
	default:
		return fmt.Errorf("log format must be %s or %s, got %q", common.LogFormatConsole, common.LogFormatJSON, settings.LogFormat)
	}

	return nil
}
