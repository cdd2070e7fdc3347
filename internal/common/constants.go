package common

// Environment variable keys
const (
	EnvConfigFile   = "GLASSBOX_CONFIG"
	EnvListenAddr   = "GLASSBOX_LISTEN_ADDR"
	EnvDataPath     = "GLASSBOX_DATA"
	EnvStorePath    = "GLASSBOX_STORE"
	EnvTextColumn   = "GLASSBOX_TEXT_COLUMN"
	EnvTargetColumn = "GLASSBOX_TARGET_COLUMN"
	EnvVocabSize    = "GLASSBOX_VOCAB_SIZE"
	EnvVocabName    = "GLASSBOX_VOCAB_NAME"
	EnvLoss         = "GLASSBOX_LOSS"
	EnvRepeats      = "GLASSBOX_REPEATS"
	EnvALEBins      = "GLASSBOX_ALE_BINS"
	EnvLocalSamples = "GLASSBOX_LOCAL_SAMPLES"
	EnvLocalBudget  = "GLASSBOX_LOCAL_BUDGET"
	EnvWorkers      = "GLASSBOX_WORKERS"
	EnvSeed         = "GLASSBOX_SEED"
	EnvModelURL     = "GLASSBOX_MODEL_URL"
	EnvModelWeights = "GLASSBOX_MODEL_WEIGHTS"
	EnvModelTimeout = "GLASSBOX_MODEL_TIMEOUT"
	EnvJobLimit     = "GLASSBOX_JOB_LIMIT"
	EnvLogLevel     = "GLASSBOX_LOG_LEVEL"
)

// Configuration defaults
const (
	DefaultListenAddr   = ":8080"
	DefaultStorePath    = "data/glassbox.db"
	DefaultTextColumn   = "text"
	DefaultTargetColumn = "label"
	DefaultVocabSize    = 500
	DefaultLoss         = "one_minus_auc"
	DefaultRepeats      = 6
	DefaultALEBins      = 10
	DefaultLocalSamples = 1000
	DefaultLocalBudget  = 8
	DefaultWorkers      = 0 // 0 = one per CPU
	DefaultSeed         = 1
	DefaultJobLimit     = 2
	DefaultTopProfiles  = 5
	DefaultLogLevel     = "info"
)

// Engine constants
const (
	DecisionThreshold  = 0.5
	DefaultRidgeAlpha  = 1.0
	KernelWidthScale   = 0.75
	MaxRidgeEscalation = 3
)

// Common error messages
const (
	ErrMsgDataRequired   = "a dataset path is required"
	ErrMsgTargetRequired = "a target column name is required"
	ErrMsgModelRequired  = "either a model weights file or a model URL is required"
	ErrMsgStoreRequired  = "a store path is required when vocabulary caching is enabled"
)

// Validation constants
const (
	MinVocabSize    = 1
	MaxVocabSize    = 100000
	MaxRepeats      = 1000
	MinALEBins      = 2
	MaxALEBins      = 1000
	MaxLocalSamples = 1000000
	MaxWorkers      = 256
	MaxJobLimit     = 64
	MinModelTimeout = 1  // seconds
	MaxModelTimeout = 300
)
