package ml

import "sync"

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu               sync.Mutex
	predictions      int
	failures         int
	latencySum       float64
	modelAge         float64
	fallbackUse      int
	trainingRuns     int
	validationMAE    []float64
	artifactsDeleted float64
}

func (m *MockMetrics) MLPredictionsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions++
}

func (m *MockMetrics) MLFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *MockMetrics) MLLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

func (m *MockMetrics) MLModelAgeSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelAge = v
}

func (m *MockMetrics) MLFallbackUseInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbackUse++
}

func (m *MockMetrics) MLTrainingRunsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trainingRuns++
}

func (m *MockMetrics) MLValidationMAEObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validationMAE = append(m.validationMAE, v)
}

func (m *MockMetrics) MLArtifactsDeletedAdd(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifactsDeleted += v
}
