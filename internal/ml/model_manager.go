package ml

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"catch-forecast/internal/features"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// MetricsInterface defines the metrics the manager reports.
type MetricsInterface interface {
	MLPredictionsInc()
	MLFailuresInc()
	MLLatencyObserve(float64)
	MLModelAgeSet(float64)
	MLFallbackUseInc()
	MLTrainingRunsInc()
	MLValidationMAEObserve(float64)
	MLArtifactsDeletedAdd(float64)
}

// State is the lifecycle position of the active model.
type State int

const (
	Uninitialized State = iota
	Trained
	Persisted
	Loaded
)

func (s State) String() string {
	switch s {
	case Trained:
		return "trained"
	case Persisted:
		return "persisted"
	case Loaded:
		return "loaded"
	default:
		return "uninitialized"
	}
}

// Config configures a Manager.
type Config struct {
	Dir     string
	Prefix  string
	Kind    Kind
	Params  Hyperparameters
	Keep    int
	Clock   clockwork.Clock
	Metrics MetricsInterface
}

// Frame is a batch of feature rows. Columns names the values in each row;
// when nil the rows must already follow the model schema.
type Frame struct {
	Columns []string
	Rows    [][]float64
}

// ModelInfo describes the active model.
type ModelInfo struct {
	Kind         Kind            `json:"kind,omitempty"`
	State        string          `json:"state"`
	FeatureNames []string        `json:"feature_names,omitempty"`
	TrainedAt    *time.Time      `json:"trained_at,omitempty"`
	AgeSeconds   float64         `json:"age_seconds,omitempty"`
	ArtifactPath string          `json:"artifact_path,omitempty"`
	Training     *TrainingRecord `json:"training,omitempty"`
	Degraded     bool            `json:"degraded"`
}

// Manager owns the single active model of a process. Prediction takes a
// read lock; Fit, Load and Save replace state under the write lock.
type Manager struct {
	mu  sync.RWMutex
	cfg Config

	model     Regressor
	schema    []string
	record    *TrainingRecord
	trainedAt time.Time
	path      string
	state     State
	degraded  bool
}

// NewManager creates a manager with no model.
func NewManager(cfg Config) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Kind == "" {
		cfg.Kind = RandomForest
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "model"
	}
	if cfg.Keep < 1 {
		cfg.Keep = 2
	}
	if cfg.Params == (Hyperparameters{}) {
		cfg.Params = DefaultHyperparameters()
	}
	return &Manager{cfg: cfg}
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Fit trains a fresh model on ds. The first floor(n*(1-validationFraction))
// rows train the model and the remaining rows validate it, keeping date
// order.
func (m *Manager) Fit(ds *features.Dataset, validationFraction float64) (*TrainingRecord, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, fmt.Errorf("fit: empty dataset")
	}
	if validationFraction < 0 || validationFraction >= 1 {
		return nil, fmt.Errorf("fit: validation fraction must be in [0, 1), got %f", validationFraction)
	}

	n := ds.Len()
	trainSize := int(math.Floor(float64(n)*(1-validationFraction) + 1e-9))
	if trainSize < 1 {
		return nil, fmt.Errorf("fit: %d samples leave no training rows", n)
	}
	train := ds.Slice(0, trainSize)
	valid := ds.Slice(trainSize, n)

	model, err := NewRegressor(m.cfg.Kind, m.cfg.Params)
	if err != nil {
		return nil, err
	}

	start := m.cfg.Clock.Now()
	if err := model.Fit(train.X, train.Y); err != nil {
		return nil, fmt.Errorf("fit %s: %w", m.cfg.Kind, err)
	}

	rec := &TrainingRecord{
		TrainSize:          train.Len(),
		ValidationSize:     valid.Len(),
		ValidationFraction: validationFraction,
	}
	trainPred, err := predictClipped(model, train.X)
	if err != nil {
		return nil, err
	}
	rec.Train = Score(train.Y, trainPred)
	if valid.Len() > 0 {
		validPred, err := predictClipped(model, valid.X)
		if err != nil {
			return nil, err
		}
		s := Score(valid.Y, validPred)
		rec.Validation = &s
	}
	now := m.cfg.Clock.Now()
	rec.DurationSeconds = now.Sub(start).Seconds()

	m.mu.Lock()
	m.model = model
	m.schema = append([]string(nil), ds.Names...)
	m.record = rec
	m.trainedAt = now
	m.path = ""
	m.state = Trained
	m.degraded = false
	m.mu.Unlock()

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.MLTrainingRunsInc()
		m.cfg.Metrics.MLModelAgeSet(0)
		if rec.Validation != nil {
			m.cfg.Metrics.MLValidationMAEObserve(rec.Validation.MAE)
		}
	}

	ev := log.Info().
		Str("kind", string(m.cfg.Kind)).
		Int("train", rec.TrainSize).
		Int("validation", rec.ValidationSize).
		Float64("train_mae", rec.Train.MAE).
		Float64("train_r2", rec.Train.R2)
	if rec.Validation != nil {
		ev = ev.Float64("val_mae", rec.Validation.MAE).Float64("val_r2", rec.Validation.R2)
	}
	ev.Msg("Model trained")
	return rec, nil
}

// CrossValidate runs an expanding-window time-series split with the given
// number of folds. Each fold trains a fresh model on every row before its
// test window. The active model is not touched.
func (m *Manager) CrossValidate(ds *features.Dataset, folds int) (*CVResult, error) {
	if folds < 2 {
		return nil, fmt.Errorf("cross-validation needs at least 2 folds, got %d", folds)
	}
	if ds == nil {
		return nil, fmt.Errorf("cross-validation: empty dataset")
	}
	n := ds.Len()
	testSize := n / (folds + 1)
	if testSize < 1 {
		return nil, fmt.Errorf("cross-validation: %d samples are too few for %d folds", n, folds)
	}

	scores := make([]Scores, 0, folds)
	for k := 0; k < folds; k++ {
		testStart := n - (folds-k)*testSize
		train := ds.Slice(0, testStart)
		test := ds.Slice(testStart, testStart+testSize)

		model, err := NewRegressor(m.cfg.Kind, m.cfg.Params)
		if err != nil {
			return nil, err
		}
		if err := model.Fit(train.X, train.Y); err != nil {
			return nil, fmt.Errorf("fold %d: %w", k+1, err)
		}
		pred, err := predictClipped(model, test.X)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", k+1, err)
		}
		s := Score(test.Y, pred)
		scores = append(scores, s)
		log.Debug().Int("fold", k+1).Int("train", train.Len()).Int("test", test.Len()).Float64("mae", s.MAE).Msg("Cross-validation fold")
	}

	res := summarizeFolds(scores)
	log.Info().
		Int("folds", folds).
		Float64("mae_mean", res.MeanMAE).
		Float64("mae_std", res.StdMAE).
		Float64("r2_mean", res.MeanR2).
		Float64("r2_std", res.StdR2).
		Msg("Cross-validation complete")
	return &res, nil
}

// Predict returns one non-negative prediction per row. Named columns are
// reordered to the model schema; a missing schema column is an error.
func (m *Manager) Predict(f Frame) ([]float64, error) {
	start := m.cfg.Clock.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()

	out, err := m.predictLocked(f)
	if m.cfg.Metrics != nil {
		if err != nil {
			m.cfg.Metrics.MLFailuresInc()
		} else {
			m.cfg.Metrics.MLPredictionsInc()
			m.cfg.Metrics.MLLatencyObserve(m.cfg.Clock.Since(start).Seconds())
		}
	}
	return out, err
}

func (m *Manager) predictLocked(f Frame) ([]float64, error) {
	if m.model == nil {
		return nil, ErrNotTrained
	}

	rows := f.Rows
	if f.Columns != nil {
		order := make([]int, len(m.schema))
		for i, name := range m.schema {
			order[i] = -1
			for j, col := range f.Columns {
				if col == name {
					order[i] = j
					break
				}
			}
			if order[i] < 0 {
				return nil, fmt.Errorf("%w: missing column %q", ErrSchemaMismatch, name)
			}
		}
		rows = make([][]float64, len(f.Rows))
		for r, src := range f.Rows {
			if len(src) != len(f.Columns) {
				return nil, fmt.Errorf("%w: row %d has %d values for %d columns", ErrSchemaMismatch, r, len(src), len(f.Columns))
			}
			row := make([]float64, len(order))
			for i, j := range order {
				row[i] = src[j]
			}
			rows[r] = row
		}
	} else if err := checkWidth(rows, len(m.schema)); err != nil {
		return nil, err
	}

	return predictClipped(m.model, rows)
}

// PredictSingle predicts one day from named conditions.
func (m *Manager) PredictSingle(c features.Conditions) (float64, error) {
	named := c.Named()
	m.mu.RLock()
	schema := m.schema
	m.mu.RUnlock()

	cols := make([]string, 0, len(named))
	row := make([]float64, 0, len(named))
	for _, name := range schema {
		v, ok := named[name]
		if !ok {
			return 0, fmt.Errorf("%w: conditions lack %q", ErrSchemaMismatch, name)
		}
		cols = append(cols, name)
		row = append(row, v)
	}
	out, err := m.Predict(Frame{Columns: cols, Rows: [][]float64{row}})
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

// Save writes the active model as a new artifact and applies retention.
// It returns the artifact path.
func (m *Manager) Save() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.model == nil {
		return "", ErrNotTrained
	}
	if err := os.MkdirAll(m.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create models dir: %w", err)
	}

	data, err := encodeArtifact(m.model, m.schema, m.record, m.trainedAt)
	if err != nil {
		return "", err
	}
	path := filepath.Join(m.cfg.Dir, ArtifactName(m.cfg.Prefix, m.model.Kind(), m.cfg.Clock.Now()))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("write artifact: %w", err)
	}

	m.path = path
	m.state = Persisted
	log.Info().Str("path", path).Str("kind", string(m.model.Kind())).Msg("Model artifact saved")

	res, err := cleanupArtifacts(m.cfg.Dir, m.cfg.Prefix, m.model.Kind(), m.cfg.Keep)
	m.reportCleanup(res)
	if err != nil {
		log.Warn().Err(err).Msg("Artifact retention incomplete")
	}
	return path, nil
}

// CleanupRetention keeps the newest keep artifacts of the configured kind.
func (m *Manager) CleanupRetention(keep int) (RetentionResult, error) {
	res, err := cleanupArtifacts(m.cfg.Dir, m.cfg.Prefix, m.cfg.Kind, keep)
	m.reportCleanup(res)
	return res, err
}

func (m *Manager) reportCleanup(res RetentionResult) {
	if m.cfg.Metrics != nil && len(res.Deleted) > 0 {
		m.cfg.Metrics.MLArtifactsDeletedAdd(float64(len(res.Deleted)))
	}
}

// Load replaces the active model with the artifact at path. Any failure
// leaves the current model untouched and returns a *ModelLoadError.
func (m *Manager) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &ModelLoadError{Path: path, Err: err}
	}
	a, model, err := decodeArtifact(data)
	if err != nil {
		return &ModelLoadError{Path: path, Err: err}
	}

	m.mu.Lock()
	m.model = model
	m.schema = a.FeatureNames
	m.record = a.Training
	m.trainedAt = a.TrainedAt
	m.path = path
	m.state = Loaded
	m.degraded = false
	m.mu.Unlock()

	age := m.cfg.Clock.Since(a.TrainedAt)
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.MLModelAgeSet(age.Seconds())
	}
	log.Info().
		Str("path", path).
		Str("kind", string(a.Kind)).
		Time("trained_at", a.TrainedAt).
		Dur("age", age).
		Msg("Model artifact loaded")
	return nil
}

// LoadLatest loads the newest artifact of the configured kind.
func (m *Manager) LoadLatest() (string, error) {
	entries, err := listArtifacts(m.cfg.Dir, m.cfg.Prefix, m.cfg.Kind)
	if err != nil {
		return "", &ModelLoadError{Err: err}
	}
	if len(entries) == 0 {
		return "", &ModelLoadError{Path: m.cfg.Dir, Err: ErrNoArtifacts}
	}
	path := entries[0].Path
	return path, m.Load(path)
}

// LoadOrFallback loads the newest artifact, or trains the embedded fallback
// model when none can be loaded. The returned error is non-nil only when
// the fallback itself fails.
func (m *Manager) LoadOrFallback() error {
	path, err := m.LoadLatest()
	if err == nil {
		return nil
	}

	var loadErr *ModelLoadError
	if !errors.As(err, &loadErr) {
		return err
	}
	log.Warn().Err(err).Str("path", path).Msg("No usable model artifact, running in degraded mode with fallback model")

	model, rec, err := TrainFallback()
	if err != nil {
		return fmt.Errorf("train fallback model: %w", err)
	}

	m.mu.Lock()
	m.model = model
	m.schema = append([]string(nil), features.Names...)
	m.record = rec
	m.trainedAt = m.cfg.Clock.Now()
	m.path = ""
	m.state = Trained
	m.degraded = true
	m.mu.Unlock()

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.MLFallbackUseInc()
		m.cfg.Metrics.MLModelAgeSet(0)
	}
	return nil
}

// Info describes the active model.
func (m *Manager) Info() ModelInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := ModelInfo{
		State:        m.state.String(),
		FeatureNames: m.schema,
		ArtifactPath: m.path,
		Training:     m.record,
		Degraded:     m.degraded,
	}
	if m.model != nil {
		info.Kind = m.model.Kind()
		at := m.trainedAt
		info.TrainedAt = &at
		info.AgeSeconds = m.cfg.Clock.Since(at).Seconds()
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.MLModelAgeSet(info.AgeSeconds)
		}
	}
	return info
}

func predictClipped(model Regressor, x [][]float64) ([]float64, error) {
	out, err := model.Predict(x)
	if err != nil {
		return nil, err
	}
	for i, v := range out {
		if v < 0 || math.IsNaN(v) {
			out[i] = 0
		}
	}
	return out, nil
}
