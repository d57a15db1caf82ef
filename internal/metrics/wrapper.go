package metrics

// MetricsWrapper adapts Metrics to the narrow interfaces consumed by the
// ml, records and service packages, so none of them import Prometheus.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) MLPredictionsInc() { w.m.MLPredictions.Inc() }
func (w *MetricsWrapper) MLFailuresInc() { w.m.MLFailures.Inc() }
func (w *MetricsWrapper) MLFallbackUseInc() { w.m.MLFallbackUse.Inc() }
func (w *MetricsWrapper) MLTrainingRunsInc() { w.m.MLTrainingRuns.Inc() }

func (w *MetricsWrapper) MLModelAgeSet(seconds float64) {
	w.m.MLModelAge.Set(seconds)
}

func (w *MetricsWrapper) MLLatencyObserve(seconds float64) {
	w.m.MLLatency.Observe(seconds)
}

func (w *MetricsWrapper) MLValidationMAEObserve(mae float64) {
	w.m.MLValidationMAE.Observe(mae)
}

func (w *MetricsWrapper) MLArtifactsDeletedAdd(n float64) {
	w.m.MLArtifactsDel.Add(n)
}

// RecordsDroppedInc counts one normalization drop.
func (w *MetricsWrapper) RecordsDroppedInc(reason string) {
	w.m.RecordsDropped.WithLabelValues(reason).Inc()
}

// RequestInc counts one service call.
func (w *MetricsWrapper) RequestInc(operation, outcome string) {
	w.m.Requests.WithLabelValues(operation, outcome).Inc()
}

func (w *MetricsWrapper) PredictedCatchObserve(v float64) {
	w.m.PredictedCatch.Observe(v)
}
