package metrics

import (
	"sync"
	"testing"

	"catch-forecast/internal/ml"
	"catch-forecast/internal/records"
	"catch-forecast/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var (
	_ ml.MetricsInterface      = (*MetricsWrapper)(nil)
	_ records.MetricsInterface = (*MetricsWrapper)(nil)
	_ service.MetricsInterface = (*MetricsWrapper)(nil)
)

func TestNewWrapper(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	if wrapper == nil {
		t.Fatal("NewWrapper returned nil")
	}
	if wrapper.m != metrics {
		t.Error("Wrapper does not contain correct metrics instance")
	}
}

func TestMetricsWrapper_MLMethods(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.MLPredictionsInc()
	wrapper.MLPredictionsInc()
	if v := testutil.ToFloat64(metrics.MLPredictions); v != 2 {
		t.Errorf("Expected 2 predictions, got %f", v)
	}

	wrapper.MLFailuresInc()
	if v := testutil.ToFloat64(metrics.MLFailures); v != 1 {
		t.Errorf("Expected 1 failure, got %f", v)
	}

	wrapper.MLModelAgeSet(3600)
	if v := testutil.ToFloat64(metrics.MLModelAge); v != 3600 {
		t.Errorf("Expected model age 3600, got %f", v)
	}

	wrapper.MLFallbackUseInc()
	if v := testutil.ToFloat64(metrics.MLFallbackUse); v != 1 {
		t.Errorf("Expected 1 fallback use, got %f", v)
	}

	wrapper.MLTrainingRunsInc()
	if v := testutil.ToFloat64(metrics.MLTrainingRuns); v != 1 {
		t.Errorf("Expected 1 training run, got %f", v)
	}

	wrapper.MLArtifactsDeletedAdd(3)
	if v := testutil.ToFloat64(metrics.MLArtifactsDel); v != 3 {
		t.Errorf("Expected 3 deleted artifacts, got %f", v)
	}
}

func TestMetricsWrapper_HistogramOperations(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	wrapper.MLLatencyObserve(0.002)
	wrapper.MLLatencyObserve(0.004)
	wrapper.MLValidationMAEObserve(12.5)
	wrapper.PredictedCatchObserve(140)

	if n := testutil.CollectAndCount(metrics.MLLatency); n != 1 {
		t.Errorf("Expected 1 latency series, got %d", n)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	counts := map[string]uint64{}
	for _, mf := range families {
		for _, m := range mf.Metric {
			if h := m.GetHistogram(); h != nil {
				counts[mf.GetName()] = h.GetSampleCount()
			}
		}
	}
	if counts["ml_latency_seconds"] != 2 {
		t.Errorf("Expected 2 latency samples, got %d", counts["ml_latency_seconds"])
	}
	if counts["ml_validation_mae"] != 1 {
		t.Errorf("Expected 1 MAE sample, got %d", counts["ml_validation_mae"])
	}
	if counts["predicted_catch"] != 1 {
		t.Errorf("Expected 1 predicted catch sample, got %d", counts["predicted_catch"])
	}
}

func TestMetricsWrapper_LabelledCounters(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.RecordsDroppedInc(records.ReasonBadDate)
	wrapper.RecordsDroppedInc(records.ReasonBadDate)
	wrapper.RecordsDroppedInc(records.ReasonNegativeCatch)

	if v := testutil.ToFloat64(metrics.RecordsDropped.WithLabelValues(records.ReasonBadDate)); v != 2 {
		t.Errorf("Expected 2 bad_date drops, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.RecordsDropped.WithLabelValues(records.ReasonNegativeCatch)); v != 1 {
		t.Errorf("Expected 1 negative_catch drop, got %f", v)
	}

	wrapper.RequestInc("predict", "ok")
	wrapper.RequestInc("predict", "error")
	wrapper.RequestInc("predict", "ok")
	if v := testutil.ToFloat64(metrics.Requests.WithLabelValues("predict", "ok")); v != 2 {
		t.Errorf("Expected 2 ok predict requests, got %f", v)
	}
}

func TestMetricsWrapper_ConcurrentAccess(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	const goroutines, perG = 10, 100
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				wrapper.MLPredictionsInc()
				wrapper.RecordsDroppedInc(records.ReasonBadCatch)
			}
		}()
	}
	wg.Wait()

	if v := testutil.ToFloat64(metrics.MLPredictions); v != goroutines*perG {
		t.Errorf("Expected %d predictions, got %f", goroutines*perG, v)
	}
	if v := testutil.ToFloat64(metrics.RecordsDropped.WithLabelValues(records.ReasonBadCatch)); v != goroutines*perG {
		t.Errorf("Expected %d drops, got %f", goroutines*perG, v)
	}
}

func TestNewWithRegistry_DuplicateRegistrationPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewWithRegistry(registry)

	defer func() {
		if recover() == nil {
			t.Error("Expected panic on duplicate registration")
		}
	}()
	NewWithRegistry(registry)
}
