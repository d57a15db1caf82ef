package ml

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const artifactTimeLayout = "20060102_150405"

// removeFile is swapped in tests to simulate concurrent deletion.
var removeFile = os.Remove

// TrainingRecord captures how a model was produced.
type TrainingRecord struct {
	TrainSize          int     `json:"train_size"`
	ValidationSize     int     `json:"validation_size"`
	ValidationFraction float64 `json:"validation_fraction"`
	Train              Scores  `json:"train"`
	Validation         *Scores `json:"validation,omitempty"`
	DurationSeconds    float64 `json:"duration_seconds"`
	Fallback           bool    `json:"fallback,omitempty"`
}

// Artifact is the persisted model bundle.
type Artifact struct {
	Kind         Kind            `json:"kind"`
	FeatureNames []string        `json:"feature_names"`
	Training     *TrainingRecord `json:"training,omitempty"`
	TrainedAt    time.Time       `json:"trained_at"`
	Model        json.RawMessage `json:"model"`
}

// ArtifactName returns "<prefix>_<kind>_<YYYYMMDD_HHMMSS>.json".
func ArtifactName(prefix string, kind Kind, at time.Time) string {
	return fmt.Sprintf("%s_%s_%s.json", prefix, kind, at.UTC().Format(artifactTimeLayout))
}

// encodeArtifact bundles a fitted model with its metadata.
func encodeArtifact(model Regressor, names []string, rec *TrainingRecord, trainedAt time.Time) ([]byte, error) {
	body, err := json.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("marshal model: %w", err)
	}
	return json.MarshalIndent(Artifact{
		Kind:         model.Kind(),
		FeatureNames: names,
		Training:     rec,
		TrainedAt:    trainedAt.UTC(),
		Model:        body,
	}, "", "  ")
}

// storedModel is a Regressor that can be restored from an artifact.
type storedModel interface {
	Regressor
	valid() error
	width() int
}

// decodeArtifact parses and validates a bundle. The returned model is ready
// to predict.
func decodeArtifact(data []byte) (*Artifact, Regressor, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, nil, fmt.Errorf("decode artifact: %w", err)
	}
	if len(a.FeatureNames) == 0 {
		return nil, nil, fmt.Errorf("artifact has no feature schema")
	}
	if len(a.Model) == 0 {
		return nil, nil, fmt.Errorf("artifact has no model")
	}

	var model storedModel
	switch a.Kind {
	case RandomForest:
		model = &Forest{}
	case GradientBoosting:
		model = &Booster{}
	default:
		return nil, nil, fmt.Errorf("unknown model kind %q", a.Kind)
	}
	if err := json.Unmarshal(a.Model, model); err != nil {
		return nil, nil, fmt.Errorf("decode %s model: %w", a.Kind, err)
	}
	if err := model.valid(); err != nil {
		return nil, nil, err
	}
	if w := model.width(); w != len(a.FeatureNames) {
		return nil, nil, fmt.Errorf("%w: model expects %d features, schema has %d", ErrSchemaMismatch, w, len(a.FeatureNames))
	}
	return &a, model, nil
}

// artifactEntry is a file on disk with the timestamp used for ordering.
type artifactEntry struct {
	Path   string
	Time   time.Time
	Source string
}

// listArtifacts returns the artifacts of one kind, newest first. The
// ordering time is the trained_at metadata, then the filename timestamp,
// then the file modification time.
func listArtifacts(dir, prefix string, kind Kind) ([]artifactEntry, error) {
	pattern := filepath.Join(dir, fmt.Sprintf("%s_%s_*.json", prefix, kind))
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	entries := make([]artifactEntry, 0, len(paths))
	for _, p := range paths {
		e, ok := artifactTime(p, prefix, kind)
		if !ok {
			continue
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Time.Equal(entries[j].Time) {
			return entries[i].Time.After(entries[j].Time)
		}
		return entries[i].Path > entries[j].Path
	})
	return entries, nil
}

func artifactTime(path, prefix string, kind Kind) (artifactEntry, bool) {
	if data, err := os.ReadFile(path); err == nil {
		var meta struct {
			TrainedAt time.Time `json:"trained_at"`
		}
		if json.Unmarshal(data, &meta) == nil && !meta.TrainedAt.IsZero() {
			return artifactEntry{Path: path, Time: meta.TrainedAt, Source: "metadata"}, true
		}
	} else if errors.Is(err, os.ErrNotExist) {
		return artifactEntry{}, false
	}

	stamp := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), fmt.Sprintf("%s_%s_", prefix, kind)), ".json")
	if t, err := time.Parse(artifactTimeLayout, stamp); err == nil {
		return artifactEntry{Path: path, Time: t, Source: "filename"}, true
	}

	info, err := os.Stat(path)
	if err != nil {
		return artifactEntry{}, false
	}
	log.Warn().Str("path", path).Msg("Artifact timestamp unreadable, using modification time")
	return artifactEntry{Path: path, Time: info.ModTime(), Source: "mtime"}, true
}

// RetentionResult reports what a cleanup pass did.
type RetentionResult struct {
	Kept    []string `json:"kept"`
	Deleted []string `json:"deleted"`
	Failed  []string `json:"failed,omitempty"`
}

// cleanupArtifacts keeps the newest keep artifacts of a kind and removes
// the rest. Files that vanish concurrently are not errors.
func cleanupArtifacts(dir, prefix string, kind Kind, keep int) (RetentionResult, error) {
	var res RetentionResult
	if keep < 1 {
		return res, fmt.Errorf("retention must keep at least one artifact, got %d", keep)
	}

	entries, err := listArtifacts(dir, prefix, kind)
	if err != nil {
		return res, err
	}

	var errs []error
	for i, e := range entries {
		if i < keep {
			res.Kept = append(res.Kept, e.Path)
			continue
		}
		if err := removeFile(e.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			res.Failed = append(res.Failed, e.Path)
			errs = append(errs, err)
			continue
		}
		res.Deleted = append(res.Deleted, e.Path)
		log.Info().Str("path", e.Path).Time("trained_at", e.Time).Msg("Removed old model artifact")
	}
	return res, errors.Join(errs...)
}
