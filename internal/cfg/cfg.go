package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"catch-forecast/internal/common"
	"catch-forecast/internal/ml"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	DataPath           string
	LedgerCSV          string
	LedgerURL          string
	LedgerTimeout      time.Duration
	ModelsDir          string
	ModelKind          ml.Kind
	ArtifactPrefix     string
	TargetSpecies      string
	KeepArtifacts      int
	ValidationFraction float64
	CVFolds            int
	Port               int
	LogLevel           string
	AllowedOrigins     []string
	RateLimit          int
	RequestTimeout     time.Duration
	Hyperparameters    ml.Hyperparameters
}

type ConfigFile struct {
	Ledger struct {
		DataPath string `yaml:"dataPath"`
		CSV      string `yaml:"csv"`
		URL      string `yaml:"url"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"ledger"`

	Model struct {
		Dir                string             `yaml:"dir"`
		Kind               string             `yaml:"kind"`
		ArtifactPrefix     string             `yaml:"artifactPrefix"`
		TargetSpecies      string             `yaml:"targetSpecies"`
		KeepArtifacts      int                `yaml:"keepArtifacts"`
		ValidationFraction *float64           `yaml:"validationFraction"`
		CVFolds            int                `yaml:"cvFolds"`
		Hyperparameters    ml.Hyperparameters `yaml:"hyperparameters"`
	} `yaml:"model"`

	Server struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
		RateLimit      int      `yaml:"rateLimit"`
		RequestTimeout string   `yaml:"requestTimeout"`
	} `yaml:"server"`

	System struct {
		LogLevel string `yaml:"logLevel"`
	} `yaml:"system"`
}

// Load reads .env if present, then the YAML file named by CONFIG_FILE, or
// the environment alone when it is unset.
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("failed to read .env: %w", err)
	}

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// hyperparameters decode over the defaults so a partial block keeps the rest
	var config ConfigFile
	config.Model.Hyperparameters = ml.DefaultHyperparameters()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	ledgerTimeout, err := time.ParseDuration(config.Ledger.Timeout)
	if err != nil {
		ledgerTimeout = 10 * time.Second
	}
	requestTimeout, err := time.ParseDuration(config.Server.RequestTimeout)
	if err != nil {
		requestTimeout = 30 * time.Second
	}

	kind, err := ml.ParseKind(getEnvOrDefault(common.EnvModelKind, orDefault(config.Model.Kind, common.DefaultModelKind)))
	if err != nil {
		return Settings{}, err
	}

	settings := Settings{
		DataPath:           getEnvOrDefault(common.EnvDataPath, config.Ledger.DataPath),
		LedgerCSV:          getEnvOrDefault(common.EnvLedgerCSV, config.Ledger.CSV),
		LedgerURL:          getEnvOrDefault(common.EnvLedgerURL, config.Ledger.URL),
		LedgerTimeout:      getDurationOrDefault(common.EnvLedgerTimeout, ledgerTimeout),
		ModelsDir:          getEnvOrDefault(common.EnvModelsDir, orDefault(config.Model.Dir, common.DefaultModelsDir)),
		ModelKind:          kind,
		ArtifactPrefix:     getEnvOrDefault(common.EnvArtifactPrefix, orDefault(config.Model.ArtifactPrefix, common.DefaultArtifactPrefix)),
		TargetSpecies:      getEnvOrDefault(common.EnvTargetSpecies, orDefault(config.Model.TargetSpecies, common.DefaultTargetSpecies)),
		KeepArtifacts:      getIntFromEnvOrConfig(common.EnvKeepArtifacts, config.Model.KeepArtifacts, common.DefaultKeepArtifacts),
		ValidationFraction: getFloatFromEnvOrConfig(common.EnvValidationFraction, config.Model.ValidationFraction, common.DefaultValidationFraction),
		CVFolds:            getIntFromEnvOrConfig(common.EnvCVFolds, config.Model.CVFolds, common.DefaultCVFolds),
		Port:               getIntFromEnvOrConfig(common.EnvPort, config.Server.Port, common.DefaultPort),
		LogLevel:           getEnvOrDefault(common.EnvLogLevel, orDefault(config.System.LogLevel, common.DefaultLogLevel)),
		AllowedOrigins:     getOriginsFromEnvOrConfig(config.Server.AllowedOrigins),
		RateLimit:          getIntFromEnvOrConfig(common.EnvRateLimit, config.Server.RateLimit, common.DefaultRateLimit),
		RequestTimeout:     getDurationOrDefault(common.EnvRequestTimeout, requestTimeout),
		Hyperparameters:    config.Model.Hyperparameters,
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	kind, err := ml.ParseKind(getEnvOrDefault(common.EnvModelKind, common.DefaultModelKind))
	if err != nil {
		return Settings{}, err
	}

	settings := Settings{
		DataPath:           os.Getenv(common.EnvDataPath),
		LedgerCSV:          os.Getenv(common.EnvLedgerCSV),
		LedgerURL:          os.Getenv(common.EnvLedgerURL),
		LedgerTimeout:      getDurationOrDefault(common.EnvLedgerTimeout, 10*time.Second),
		ModelsDir:          getEnvOrDefault(common.EnvModelsDir, common.DefaultModelsDir),
		ModelKind:          kind,
		ArtifactPrefix:     getEnvOrDefault(common.EnvArtifactPrefix, common.DefaultArtifactPrefix),
		TargetSpecies:      getEnvOrDefault(common.EnvTargetSpecies, common.DefaultTargetSpecies),
		KeepArtifacts:      getIntOrDefault(common.EnvKeepArtifacts, common.DefaultKeepArtifacts),
		ValidationFraction: getFloatOrDefault(common.EnvValidationFraction, common.DefaultValidationFraction),
		CVFolds:            getIntOrDefault(common.EnvCVFolds, common.DefaultCVFolds),
		Port:               getIntOrDefault(common.EnvPort, common.DefaultPort),
		LogLevel:           getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		AllowedOrigins:     splitOrDefault(os.Getenv(common.EnvAllowedOrigins), []string{common.DefaultAllowedOrigin}),
		RateLimit:          getIntOrDefault(common.EnvRateLimit, common.DefaultRateLimit),
		RequestTimeout:     getDurationOrDefault(common.EnvRequestTimeout, 30*time.Second),
		Hyperparameters:    ml.DefaultHyperparameters(),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
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

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getOriginsFromEnvOrConfig(configOrigins []string) []string {
	if env := os.Getenv(common.EnvAllowedOrigins); env != "" {
		return splitOrDefault(env, nil)
	}
	if len(configOrigins) > 0 {
		return configOrigins
	}
	return []string{common.DefaultAllowedOrigin}
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

// getFloatFromEnvOrConfig treats a nil configValue as unset, so an explicit
// zero in the file is kept.
func getFloatFromEnvOrConfig(key string, configValue *float64, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != nil {
		return *configValue
	}
	return defaultValue
}

// validateSettings performs range checks on configuration values
func validateSettings(settings *Settings) error {
	if settings.DataPath == "" && settings.LedgerCSV == "" && settings.LedgerURL == "" {
		return errors.New(common.ErrMsgLedgerRequired)
	}
	if settings.LedgerURL != "" && !strings.HasPrefix(settings.LedgerURL, "http://") && !strings.HasPrefix(settings.LedgerURL, "https://") {
		return fmt.Errorf("ledger URL must be http or https, got %q", settings.LedgerURL)
	}

	if settings.ModelsDir == "" {
		return fmt.Errorf("models directory cannot be empty")
	}
	if settings.ArtifactPrefix == "" || strings.ContainsAny(settings.ArtifactPrefix, `/\`) {
		return fmt.Errorf("artifact prefix must be non-empty without path separators, got %q", settings.ArtifactPrefix)
	}
	if settings.TargetSpecies == "" {
		return fmt.Errorf("target species cannot be empty")
	}
	if _, err := ml.ParseKind(string(settings.ModelKind)); err != nil {
		return err
	}

	if settings.LedgerTimeout < time.Second || settings.LedgerTimeout > 5*time.Minute {
		return fmt.Errorf("ledger timeout must be between 1s and 5m, got %v", settings.LedgerTimeout)
	}
	if settings.RequestTimeout < time.Second || settings.RequestTimeout > 5*time.Minute {
		return fmt.Errorf("request timeout must be between 1s and 5m, got %v", settings.RequestTimeout)
	}

	if settings.KeepArtifacts < 1 || settings.KeepArtifacts > common.MaxKeepArtifacts {
		return fmt.Errorf("keep artifacts must be between 1 and %d, got %d", common.MaxKeepArtifacts, settings.KeepArtifacts)
	}
	if settings.CVFolds < common.MinCVFolds || settings.CVFolds > common.MaxCVFolds {
		return fmt.Errorf("cv folds must be between %d and %d, got %d", common.MinCVFolds, common.MaxCVFolds, settings.CVFolds)
	}
	if settings.Port < common.MinPort || settings.Port > common.MaxPort {
		return fmt.Errorf("port must be between %d and %d, got %d", common.MinPort, common.MaxPort, settings.Port)
	}
	if settings.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative, got %d", settings.RateLimit)
	}
	if settings.ValidationFraction < 0 || settings.ValidationFraction > common.MaxValidationFraction {
		return fmt.Errorf("validation fraction must be between 0 and %.1f, got %f", common.MaxValidationFraction, settings.ValidationFraction)
	}

	switch strings.ToLower(settings.LogLevel) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", settings.LogLevel)
	}

	return validateHyperparameters(settings.Hyperparameters)
}

func validateHyperparameters(hp ml.Hyperparameters) error {
	f := hp.Forest
	if f.NEstimators < 1 || f.NEstimators > 1000 {
		return fmt.Errorf("random forest estimators must be between 1 and 1000, got %d", f.NEstimators)
	}
	if f.MaxDepth < 1 || f.MaxDepth > 64 {
		return fmt.Errorf("random forest max depth must be between 1 and 64, got %d", f.MaxDepth)
	}
	if f.MinSamplesSplit < 2 {
		return fmt.Errorf("random forest min samples split must be at least 2, got %d", f.MinSamplesSplit)
	}
	if f.MinSamplesLeaf < 1 {
		return fmt.Errorf("random forest min samples leaf must be at least 1, got %d", f.MinSamplesLeaf)
	}

	b := hp.Boost
	if b.NRounds < 1 || b.NRounds > 5000 {
		return fmt.Errorf("gradient boosting rounds must be between 1 and 5000, got %d", b.NRounds)
	}
	if b.MaxDepth < 1 || b.MaxDepth > 64 {
		return fmt.Errorf("gradient boosting max depth must be between 1 and 64, got %d", b.MaxDepth)
	}
	if b.LearningRate <= 0 || b.LearningRate > 1 {
		return fmt.Errorf("learning rate must be in (0, 1], got %f", b.LearningRate)
	}
	if b.Subsample <= 0 || b.Subsample > 1 {
		return fmt.Errorf("subsample must be in (0, 1], got %f", b.Subsample)
	}
	if b.ColSample <= 0 || b.ColSample > 1 {
		return fmt.Errorf("column sample must be in (0, 1], got %f", b.ColSample)
	}
	if b.Lambda < 0 {
		return fmt.Errorf("lambda cannot be negative, got %f", b.Lambda)
	}
	if b.MinSamplesLeaf < 1 {
		return fmt.Errorf("gradient boosting min samples leaf must be at least 1, got %d", b.MinSamplesLeaf)
	}
	return nil
}
