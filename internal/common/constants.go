package common

// Environment variable keys
const (
	EnvConfigFile         = "CONFIG_FILE"
	EnvDataPath           = "DATA_PATH"
	EnvLedgerCSV          = "LEDGER_CSV"
	EnvLedgerURL          = "LEDGER_URL"
	EnvLedgerTimeout      = "LEDGER_TIMEOUT"
	EnvModelsDir          = "MODELS_DIR"
	EnvModelKind          = "MODEL_KIND"
	EnvArtifactPrefix     = "ARTIFACT_PREFIX"
	EnvTargetSpecies      = "TARGET_SPECIES"
	EnvKeepArtifacts      = "KEEP_ARTIFACTS"
	EnvValidationFraction = "VALIDATION_FRACTION"
	EnvCVFolds            = "CV_FOLDS"
	EnvPort               = "PORT"
	EnvLogLevel           = "LOG_LEVEL"
	EnvAllowedOrigins     = "ALLOWED_ORIGINS"
	EnvRateLimit          = "RATE_LIMIT"
	EnvRequestTimeout     = "REQUEST_TIMEOUT"
)

// Configuration defaults
const (
	DefaultModelsDir          = "models"
	DefaultModelKind          = "random_forest"
	DefaultArtifactPrefix     = "aji"
	DefaultTargetSpecies      = "アジ"
	DefaultKeepArtifacts      = 2
	DefaultValidationFraction = 0.2
	DefaultCVFolds            = 3
	DefaultPort               = 8000
	DefaultLogLevel           = "info"
	DefaultAllowedOrigin      = "http://localhost:3000"
	DefaultRateLimit          = 120 // requests per minute per client IP
)

// Validation constants
const (
	MinPort               = 1024
	MaxPort               = 65535
	MaxKeepArtifacts      = 50
	MaxValidationFraction = 0.5
	MinCVFolds            = 2
	MaxCVFolds            = 20
)

// Common error messages
const (
	ErrMsgLedgerRequired = "one of dataPath, ledgerCSV or ledgerURL is required"
)
