package common

// Environment variable keys
const (
	EnvConfigFile       = "CONFIG_FILE"
	EnvDotenvFile       = "DOTENV_FILE"
	EnvPreprocessorPath = "PREPROCESSOR_PATH"
	EnvModelPath        = "MODEL_PATH"
	EnvDataPath         = "DATA_PATH"
	EnvSamplesDir       = "SAMPLES_DIR"
	EnvModelsDir        = "MODELS_DIR"
	EnvImportancePath   = "IMPORTANCE_PATH"
	EnvBaselinePath     = "DRIFT_BASELINE_PATH"
	EnvLogLevel         = "LOG_LEVEL"
	EnvLogFormat        = "LOG_FORMAT"
	EnvSelfCheck        = "SELF_CHECK"
)

// Serving environment keys
const (
	EnvServerAddr     = "SERVER_ADDR"
	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvReadTimeout    = "READ_TIMEOUT"
	EnvWriteTimeout   = "WRITE_TIMEOUT"
	EnvIdleTimeout    = "IDLE_TIMEOUT"
	EnvMaxBodyBytes   = "MAX_BODY_BYTES"
	EnvBatchWorkers   = "BATCH_WORKERS"
)

// Drift monitoring environment keys
const (
	EnvDriftEnabled    = "DRIFT_ENABLED"
	EnvDriftWindow     = "DRIFT_WINDOW"
	EnvDriftMinSamples = "DRIFT_MIN_SAMPLES"
	EnvDriftBins       = "DRIFT_BINS"
	EnvDriftThreshold  = "DRIFT_THRESHOLD"
	EnvDriftInterval   = "DRIFT_CHECK_INTERVAL"
)

// Dashboard environment keys
const (
	EnvDashboardEnabled  = "DASHBOARD_ENABLED"
	EnvDashboardInterval = "DASHBOARD_INTERVAL"
)

// Training environment keys
const (
	EnvTestSize            = "TEST_SIZE"
	EnvSeed                = "SEED"
	EnvSampleCount         = "SAMPLE_COUNT"
	EnvIterations          = "BOOSTING_ITERATIONS"
	EnvLearningRate        = "LEARNING_RATE"
	EnvTreeDepth           = "TREE_DEPTH"
	EnvEarlyStoppingRounds = "EARLY_STOPPING_ROUNDS"
	EnvEvalMetric          = "EVAL_METRIC"
)

// Configuration defaults
const (
	DefaultPreprocessorPath = "artifacts/preprocessor.json"
	DefaultModelPath        = "artifacts/model.json"
	DefaultDataPath         = "data"
	DefaultSamplesDir       = "samples"
	DefaultModelsDir        = "models"
	DefaultImportancePath   = "artifacts/feature_importance.json"
	DefaultBaselinePath     = "artifacts/drift_baseline.json"
	DefaultServerAddr       = ":8000"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "console"
	DefaultMaxBodyBytes     = 1 << 20
	DefaultBatchWorkers     = 8
)

// Log formats
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// Validation limits
const (
	MaxBodyBytesLimit = 64 << 20
	MinBodyBytesLimit = 1 << 10
	MaxBatchWorkers   = 256
	MaxSampleCount    = 100
)
