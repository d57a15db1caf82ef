package cfg

import (
	"strings"
	"testing"
	"time"

	"catch-forecast/internal/ml"
)

// createValidSettings creates a valid Settings struct for testing
func createValidSettings() *Settings {
	return &Settings{
		DataPath:           "/var/lib/catch",
		LedgerTimeout:      10 * time.Second,
		ModelsDir:          "models",
		ModelKind:          ml.RandomForest,
		ArtifactPrefix:     "aji",
		TargetSpecies:      "アジ",
		KeepArtifacts:      2,
		ValidationFraction: 0.2,
		CVFolds:            3,
		Port:               8000,
		LogLevel:           "info",
		AllowedOrigins:     []string{"http://localhost:3000"},
		RateLimit:          120,
		RequestTimeout:     30 * time.Second,
		Hyperparameters:    ml.DefaultHyperparameters(),
	}
}

func TestValidateSettings_ValidConfig(t *testing.T) {
	settings := createValidSettings()

	err := validateSettings(settings)
	if err != nil {
		t.Errorf("Expected valid config to pass, got error: %v", err)
	}
}

func TestValidateSettings_MissingLedger(t *testing.T) {
	settings := createValidSettings()
	settings.DataPath = ""

	err := validateSettings(settings)
	if err == nil {
		t.Fatal("Expected error for missing ledger source")
	}
	if err.Error() != "one of dataPath, ledgerCSV or ledgerURL is required" {
		t.Errorf("Expected specific error message, got: %v", err)
	}

	settings.LedgerURL = "ftp://ledger.example.com/a.csv"
	if err := validateSettings(settings); err == nil {
		t.Error("Expected error for non-http ledger URL")
	}
}

func TestValidateSettings_ModelSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Settings)
		errMsg string
	}{
		{"empty models dir", func(s *Settings) { s.ModelsDir = "" }, "models directory"},
		{"prefix with separator", func(s *Settings) { s.ArtifactPrefix = "a/b" }, "artifact prefix"},
		{"empty prefix", func(s *Settings) { s.ArtifactPrefix = "" }, "artifact prefix"},
		{"empty species", func(s *Settings) { s.TargetSpecies = "" }, "target species"},
		{"unknown kind", func(s *Settings) { s.ModelKind = "linear" }, "unknown model kind"},
		{"keep zero", func(s *Settings) { s.KeepArtifacts = 0 }, "keep artifacts"},
		{"keep too many", func(s *Settings) { s.KeepArtifacts = 51 }, "keep artifacts"},
		{"one fold", func(s *Settings) { s.CVFolds = 1 }, "cv folds"},
		{"negative validation", func(s *Settings) { s.ValidationFraction = -0.1 }, "validation fraction"},
		{"validation too large", func(s *Settings) { s.ValidationFraction = 0.6 }, "validation fraction"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := createValidSettings()
			tt.mutate(settings)

			err := validateSettings(settings)
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.errMsg)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Expected error containing %q, got: %v", tt.errMsg, err)
			}
		})
	}
}

func TestValidateSettings_ValidationFractionZero(t *testing.T) {
	settings := createValidSettings()
	settings.ValidationFraction = 0

	if err := validateSettings(settings); err != nil {
		t.Errorf("Expected zero validation fraction to pass, got error: %v", err)
	}
}

func TestValidateSettings_InvalidTimeouts(t *testing.T) {
	tests := []struct {
		name    string
		ledger  time.Duration
		request time.Duration
		wantErr bool
	}{
		{"valid", 10 * time.Second, 30 * time.Second, false},
		{"ledger too short", 500 * time.Millisecond, 30 * time.Second, true},
		{"ledger too long", 10 * time.Minute, 30 * time.Second, true},
		{"request too short", 10 * time.Second, 0, true},
		{"request too long", 10 * time.Second, 6 * time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := createValidSettings()
			settings.LedgerTimeout = tt.ledger
			settings.RequestTimeout = tt.request

			err := validateSettings(settings)
			if tt.wantErr && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestValidateSettings_InvalidServerSettings(t *testing.T) {
	tests := []struct {
		name    string
		port    int
		rate    int
		level   string
		wantErr bool
	}{
		{"valid", 8000, 120, "info", false},
		{"rate limit disabled", 8000, 0, "debug", false},
		{"upper case level", 8000, 10, "WARN", false},
		{"privileged port", 80, 120, "info", true},
		{"port too high", 70000, 120, "info", true},
		{"negative rate", 8000, -1, "info", true},
		{"unknown level", 8000, 120, "verbose", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := createValidSettings()
			settings.Port = tt.port
			settings.RateLimit = tt.rate
			settings.LogLevel = tt.level

			err := validateSettings(settings)
			if tt.wantErr && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestValidateSettings_Hyperparameters(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(hp *ml.Hyperparameters)
	}{
		{"no estimators", func(hp *ml.Hyperparameters) { hp.Forest.NEstimators = 0 }},
		{"forest depth", func(hp *ml.Hyperparameters) { hp.Forest.MaxDepth = 0 }},
		{"forest split", func(hp *ml.Hyperparameters) { hp.Forest.MinSamplesSplit = 1 }},
		{"forest leaf", func(hp *ml.Hyperparameters) { hp.Forest.MinSamplesLeaf = 0 }},
		{"no rounds", func(hp *ml.Hyperparameters) { hp.Boost.NRounds = 0 }},
		{"zero learning rate", func(hp *ml.Hyperparameters) { hp.Boost.LearningRate = 0 }},
		{"subsample above one", func(hp *ml.Hyperparameters) { hp.Boost.Subsample = 1.5 }},
		{"zero column sample", func(hp *ml.Hyperparameters) { hp.Boost.ColSample = 0 }},
		{"negative lambda", func(hp *ml.Hyperparameters) { hp.Boost.Lambda = -1 }},
		{"boost leaf", func(hp *ml.Hyperparameters) { hp.Boost.MinSamplesLeaf = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := createValidSettings()
			tt.mutate(&settings.Hyperparameters)

			if err := validateSettings(settings); err == nil {
				t.Error("Expected error but got none")
			}
		})
	}
}
