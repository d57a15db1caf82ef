package ml

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"catch-forecast/internal/features"

	"github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

func smallParams() Hyperparameters {
	hp := DefaultHyperparameters()
	hp.Forest.NEstimators = 8
	hp.Boost.NRounds = 20
	return hp
}

// syntheticDataset builds n chronologically ordered days with a catch that
// depends on temperature, crowd and weather.
func syntheticDataset(n int) *features.Dataset {
	ds := &features.Dataset{Names: append([]string(nil), features.Names...)}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		date := start.AddDate(0, 0, i*3)
		c := features.Conditions{
			Month:     int(date.Month()),
			Season:    features.SeasonCode(date.Month()),
			Weather:   i % 4,
			WaterTemp: float64(10 + i%15),
			Tide:      i % 5,
			Visitors:  float64(50 + (i*37)%400),
		}
		catch := 2*c.WaterTemp + c.Visitors/4 - 20*float64(c.Weather)
		if catch < 0 {
			catch = 0
		}
		ds.X = append(ds.X, c.Vector())
		ds.Y = append(ds.Y, catch)
		ds.Dates = append(ds.Dates, date)
	}
	return ds
}

func newTestManager(t *testing.T, kind Kind) (*Manager, *clockwork.FakeClock, *MockMetrics) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testEpoch)
	metrics := &MockMetrics{}
	m := NewManager(Config{
		Dir:     t.TempDir(),
		Prefix:  "aji",
		Kind:    kind,
		Params:  smallParams(),
		Keep:    2,
		Clock:   clock,
		Metrics: metrics,
	})
	return m, clock, metrics
}

func TestManager_FitChronologicalSplit(t *testing.T) {
	m, _, metrics := newTestManager(t, RandomForest)
	ds := syntheticDataset(100)

	rec, err := m.Fit(ds, 0.2)
	require.NoError(t, err)
	assert.Equal(t, 80, rec.TrainSize)
	assert.Equal(t, 20, rec.ValidationSize)
	require.NotNil(t, rec.Validation)
	assert.Equal(t, 20, rec.Validation.Samples)
	assert.Equal(t, Trained, m.State())
	assert.Equal(t, 1, metrics.trainingRuns)

	// validation metrics cover exactly the last 20 rows in date order
	pred, err := m.Predict(Frame{Rows: ds.X[80:]})
	require.NoError(t, err)
	assert.InDelta(t, Score(ds.Y[80:], pred).MAE, rec.Validation.MAE, 1e-9)
	assert.True(t, ds.Dates[79].Before(ds.Dates[80]))
}

func TestManager_FitWithoutValidation(t *testing.T) {
	m, _, _ := newTestManager(t, GradientBoosting)
	rec, err := m.Fit(syntheticDataset(10), 0)
	require.NoError(t, err)
	assert.Equal(t, 10, rec.TrainSize)
	assert.Nil(t, rec.Validation)

	_, err = m.Fit(syntheticDataset(10), 1)
	assert.Error(t, err)
	_, err = m.Fit(&features.Dataset{}, 0.2)
	assert.Error(t, err)
}

func TestManager_PredictBeforeTraining(t *testing.T) {
	m, _, metrics := newTestManager(t, RandomForest)

	_, err := m.Predict(Frame{Rows: [][]float64{{8, 1, 0, 27, 0, 200}}})
	assert.ErrorIs(t, err, ErrNotTrained)

	_, err = m.PredictSingle(features.Conditions{Month: 8})
	assert.ErrorIs(t, err, ErrNotTrained)
	assert.Equal(t, 2, metrics.failures)
}

func TestManager_PredictNeverNegative(t *testing.T) {
	for _, kind := range []Kind{RandomForest, GradientBoosting} {
		t.Run(string(kind), func(t *testing.T) {
			m, _, _ := newTestManager(t, kind)
			ds := syntheticDataset(60)
			// mostly empty days push boosted residuals below zero
			for i := range ds.Y {
				if i%3 != 0 {
					ds.Y[i] = 0
				}
			}
			_, err := m.Fit(ds, 0.2)
			require.NoError(t, err)

			rows := [][]float64{
				{1, 3, 3, -5, 4, 0},
				{12, 3, 2, 0, 2, 2000},
				{8, 1, 0, 40, 0, 0},
				{6, 1, 3, 1e6, 9, -100},
			}
			rows = append(rows, ds.X...)
			pred, err := m.Predict(Frame{Rows: rows})
			require.NoError(t, err)
			for i, v := range pred {
				assert.GreaterOrEqual(t, v, 0.0, "row %d", i)
			}
		})
	}
}

func TestManager_PredictSchema(t *testing.T) {
	m, _, _ := newTestManager(t, RandomForest)
	_, err := m.Fit(syntheticDataset(50), 0.2)
	require.NoError(t, err)

	row := []float64{8, 1, 0, 27, 0, 200}
	positional, err := m.Predict(Frame{Rows: [][]float64{row}})
	require.NoError(t, err)

	// same values, shuffled columns plus an extra one
	named, err := m.Predict(Frame{
		Columns: []string{"visitors", "extra", "tide", "water_temp", "weather", "season", "month"},
		Rows:    [][]float64{{200, 99, 0, 27, 0, 1, 8}},
	})
	require.NoError(t, err)
	assert.Equal(t, positional, named)

	_, err = m.Predict(Frame{Columns: []string{"month", "season"}, Rows: [][]float64{{8, 1}}})
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = m.Predict(Frame{Rows: [][]float64{{8, 1, 0}}})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestManager_PredictSingleDeterministic(t *testing.T) {
	m, _, _ := newTestManager(t, RandomForest)
	_, err := m.Fit(syntheticDataset(80), 0.2)
	require.NoError(t, err)

	c := features.Conditions{Month: 8, Season: 1, Weather: 0, WaterTemp: 27, Tide: 0, Visitors: 200}
	first, err := m.PredictSingle(c)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, first, 0.0)

	for i := 0; i < 5; i++ {
		again, err := m.PredictSingle(c)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestManager_SaveLoadRoundTrip(t *testing.T) {
	for _, kind := range []Kind{RandomForest, GradientBoosting} {
		t.Run(string(kind), func(t *testing.T) {
			m, _, _ := newTestManager(t, kind)
			ds := syntheticDataset(70)
			_, err := m.Fit(ds, 0.2)
			require.NoError(t, err)

			before, err := m.Predict(Frame{Rows: ds.X})
			require.NoError(t, err)

			path, err := m.Save()
			require.NoError(t, err)
			assert.Equal(t, Persisted, m.State())
			assert.Equal(t, ArtifactName("aji", kind, testEpoch), filepath.Base(path))

			loaded := NewManager(Config{Dir: m.cfg.Dir, Prefix: "aji", Kind: kind, Clock: clockwork.NewFakeClockAt(testEpoch)})
			require.NoError(t, loaded.Load(path))
			assert.Equal(t, Loaded, loaded.State())

			after, err := loaded.Predict(Frame{Rows: ds.X})
			require.NoError(t, err)
			assert.Equal(t, before, after)

			info := loaded.Info()
			assert.Equal(t, kind, info.Kind)
			assert.Equal(t, features.Names, info.FeatureNames)
			assert.False(t, info.Degraded)
			require.NotNil(t, info.Training)
			assert.Equal(t, 56, info.Training.TrainSize)
		})
	}
}

func TestManager_SaveUntrained(t *testing.T) {
	m, _, _ := newTestManager(t, RandomForest)
	_, err := m.Save()
	assert.ErrorIs(t, err, ErrNotTrained)
}

func TestManager_RetentionKeepsNewestTwo(t *testing.T) {
	m, clock, metrics := newTestManager(t, RandomForest)
	ds := syntheticDataset(30)

	var saved []string
	for i := 0; i < 5; i++ {
		_, err := m.Fit(ds, 0.2)
		require.NoError(t, err)
		path, err := m.Save()
		require.NoError(t, err)
		saved = append(saved, path)
		clock.Advance(time.Minute)

		entries, err := listArtifacts(m.cfg.Dir, "aji", RandomForest)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(entries), 2)
	}

	entries, err := listArtifacts(m.cfg.Dir, "aji", RandomForest)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, saved[4], entries[0].Path)
	assert.Equal(t, saved[3], entries[1].Path)
	assert.Equal(t, 3.0, metrics.artifactsDeleted)

	path, err := m.LoadLatest()
	require.NoError(t, err)
	assert.Equal(t, saved[4], path)
}

func TestCleanupRetention_OrdersByTrainedAt(t *testing.T) {
	m, clock, _ := newTestManager(t, RandomForest)
	ds := syntheticDataset(30)
	dir := m.cfg.Dir

	// trained first but written with the newest filename stamp
	_, err := m.Fit(ds, 0.2)
	require.NoError(t, err)
	oldest := writeArtifact(t, m, "aji_random_forest_20300101_000000.json")

	// trained last but written with the oldest filename stamp
	clock.Advance(time.Hour)
	_, err = m.Fit(ds, 0.2)
	require.NoError(t, err)
	newest := writeArtifact(t, m, "aji_random_forest_20200101_000000.json")

	// unreadable metadata falls back to the filename stamp
	middle := filepath.Join(dir, "aji_random_forest_20250701_093000.json")
	require.NoError(t, os.WriteFile(middle, []byte("not json"), 0o600))

	// other kinds are left alone
	other := filepath.Join(dir, "aji_gradient_boosting_20000101_000000.json")
	require.NoError(t, os.WriteFile(other, []byte("{}"), 0o600))

	res, err := m.CleanupRetention(2)
	require.NoError(t, err)
	assert.Equal(t, []string{newest, middle}, res.Kept)
	assert.Equal(t, []string{oldest}, res.Deleted)
	assert.FileExists(t, other)
	assert.NoFileExists(t, oldest)

	_, err = m.CleanupRetention(0)
	assert.Error(t, err)
}

func TestCleanupRetention_MtimeFallback(t *testing.T) {
	m, _, _ := newTestManager(t, RandomForest)
	dir := m.cfg.Dir

	names := []string{"aji_random_forest_a.json", "aji_random_forest_b.json", "aji_random_forest_c.json"}
	for i, name := range names {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
		mt := testEpoch.Add(time.Duration(i) * time.Hour)
		require.NoError(t, os.Chtimes(p, mt, mt))
	}

	res, err := m.CleanupRetention(2)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, names[2]), filepath.Join(dir, names[1])}, res.Kept)
	assert.Equal(t, []string{filepath.Join(dir, names[0])}, res.Deleted)
}

func TestCleanupRetention_ToleratesVanishedFiles(t *testing.T) {
	m, _, _ := newTestManager(t, RandomForest)
	dir := m.cfg.Dir

	var paths []string
	for i := 0; i < 4; i++ {
		p := filepath.Join(dir, ArtifactName("aji", RandomForest, testEpoch.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
		paths = append(paths, p)
	}

	// another process deletes each file just before we do
	orig := removeFile
	removeFile = func(name string) error {
		require.NoError(t, os.Remove(name))
		return os.Remove(name)
	}
	t.Cleanup(func() { removeFile = orig })

	res, err := m.CleanupRetention(2)
	require.NoError(t, err)
	assert.Empty(t, res.Failed)
	assert.Equal(t, []string{paths[3], paths[2]}, res.Kept)
	assert.ElementsMatch(t, []string{paths[1], paths[0]}, res.Deleted)

	_, ok := artifactTime(paths[0], "aji", RandomForest)
	assert.False(t, ok)
}

func TestCleanupRetention_Concurrent(t *testing.T) {
	m, _, _ := newTestManager(t, RandomForest)
	dir := m.cfg.Dir

	for i := 0; i < 8; i++ {
		p := filepath.Join(dir, ArtifactName("aji", RandomForest, testEpoch.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.CleanupRetention(2)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	entries, err := listArtifacts(dir, "aji", RandomForest)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(entries), 2)
}

func TestManager_LoadFailureKeepsModel(t *testing.T) {
	m, _, _ := newTestManager(t, RandomForest)
	ds := syntheticDataset(30)
	_, err := m.Fit(ds, 0.2)
	require.NoError(t, err)
	before, err := m.Predict(Frame{Rows: ds.X[:3]})
	require.NoError(t, err)

	bad := filepath.Join(m.cfg.Dir, "aji_random_forest_20250101_000000.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"kind":"random_forest","feature_names":["month"],"model":{"trees":[]}}`), 0o600))

	err = m.Load(bad)
	var loadErr *ModelLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, bad, loadErr.Path)

	err = m.Load(filepath.Join(m.cfg.Dir, "missing.json"))
	assert.True(t, errors.As(err, &loadErr))

	after, err := m.Predict(Frame{Rows: ds.X[:3]})
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, Trained, m.State())
}

func TestManager_LoadOrFallback(t *testing.T) {
	m, _, metrics := newTestManager(t, GradientBoosting)

	require.NoError(t, m.LoadOrFallback())
	info := m.Info()
	assert.True(t, info.Degraded)
	assert.Equal(t, RandomForest, info.Kind)
	require.NotNil(t, info.Training)
	assert.True(t, info.Training.Fallback)
	assert.Equal(t, 1, metrics.fallbackUse)

	v, err := m.PredictSingle(features.Conditions{Month: 8, Season: 1, Weather: 0, WaterTemp: 25, Tide: 0, Visitors: 200})
	require.NoError(t, err)
	assert.Greater(t, v, 0.0)
}

func TestManager_CyclicTreeFallsBack(t *testing.T) {
	m, _, metrics := newTestManager(t, RandomForest)

	names, err := json.Marshal(features.Names)
	require.NoError(t, err)
	body := `{"kind":"random_forest","feature_names":` + string(names) + `,` +
		`"trained_at":"2025-06-01T00:00:00Z",` +
		`"model":{"n_features":6,"trees":[{"nodes":[{"f":0,"l":1,"r":1},{"f":0,"l":1,"r":1}]}]}}`
	path := filepath.Join(m.cfg.Dir, "aji_random_forest_20250601_000000.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	err = m.Load(path)
	var loadErr *ModelLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, path, loadErr.Path)

	require.NoError(t, m.LoadOrFallback())
	assert.True(t, m.Info().Degraded)
	assert.Equal(t, 1, metrics.fallbackUse)

	done := make(chan error, 1)
	go func() {
		_, err := m.PredictSingle(features.Conditions{Month: 6, Season: 1, WaterTemp: 20, Tide: 1, Visitors: 200})
		done <- err
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("prediction did not return")
	}
}

func TestTree_ValidRejectsBackwardChildren(t *testing.T) {
	self := &Tree{Nodes: []treeNode{{Feature: 0, Left: 0, Right: 1}, {Feature: -1, Value: 1}}}
	assert.False(t, self.valid(1))

	loop := &Tree{Nodes: []treeNode{
		{Feature: 0, Left: 1, Right: 2},
		{Feature: 0, Left: 0, Right: 2},
		{Feature: -1, Value: 1},
	}}
	assert.False(t, loop.valid(1))

	ok := &Tree{Nodes: []treeNode{{Feature: 0, Left: 1, Right: 2}, {Feature: -1, Value: 1}, {Feature: -1, Value: 2}}}
	assert.True(t, ok.valid(1))
}

func TestManager_LoadOrFallbackPrefersArtifact(t *testing.T) {
	m, _, metrics := newTestManager(t, RandomForest)
	_, err := m.Fit(syntheticDataset(30), 0.2)
	require.NoError(t, err)
	_, err = m.Save()
	require.NoError(t, err)

	fresh := NewManager(Config{Dir: m.cfg.Dir, Prefix: "aji", Kind: RandomForest, Metrics: metrics})
	require.NoError(t, fresh.LoadOrFallback())
	assert.False(t, fresh.Info().Degraded)
	assert.Equal(t, Loaded, fresh.State())
	assert.Equal(t, 0, metrics.fallbackUse)
}

func TestManager_CrossValidate(t *testing.T) {
	m, _, _ := newTestManager(t, RandomForest)
	res, err := m.CrossValidate(syntheticDataset(40), 3)
	require.NoError(t, err)
	require.Len(t, res.Folds, 3)
	for _, f := range res.Folds {
		assert.Equal(t, 10, f.Samples)
	}
	assert.GreaterOrEqual(t, res.StdMAE, 0.0)
	assert.Equal(t, Uninitialized, m.State())

	_, err = m.CrossValidate(syntheticDataset(3), 3)
	assert.Error(t, err)
	_, err = m.CrossValidate(syntheticDataset(30), 1)
	assert.Error(t, err)
}

func writeArtifact(t *testing.T, m *Manager, name string) string {
	t.Helper()
	m.mu.RLock()
	data, err := encodeArtifact(m.model, m.schema, m.record, m.trainedAt)
	m.mu.RUnlock()
	require.NoError(t, err)
	p := filepath.Join(m.cfg.Dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return p
}
