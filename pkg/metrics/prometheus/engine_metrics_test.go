package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRegistersAllMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveRestore(true, 5*time.Millisecond)
	m.ObserveRestore(false, 1*time.Millisecond)
	m.ObserveSave(true, 20*time.Millisecond)
	m.ObserveCASTransfer("upload", 4096, 10*time.Millisecond)
	m.RecordCacheHitRatio(0.75)
	m.RecordInFlightSaves(3)

	mfs, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	want := map[string]bool{
		"hurrycache_restore_operations_total": false,
		"hurrycache_save_operations_total":    false,
		"hurrycache_cas_transfer_total":       false,
		"hurrycache_restore_hit_ratio":        false,
		"hurrycache_save_in_flight":           false,
	}
	for _, mf := range mfs {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected metric %q to be registered", name)
		}
	}
}

func TestObserveRestoreLabelsByOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.ObserveRestore(true, time.Millisecond)
	m.ObserveRestore(true, time.Millisecond)
	m.ObserveRestore(false, time.Millisecond)

	mfs, _ := registry.Gather()
	var hitCount, missCount float64
	for _, mf := range mfs {
		if mf.GetName() != "hurrycache_restore_operations_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() != "outcome" {
					continue
				}
				switch label.GetValue() {
				case "hit":
					hitCount = metric.GetCounter().GetValue()
				case "miss":
					missCount = metric.GetCounter().GetValue()
				}
			}
		}
	}
	if hitCount != 2 {
		t.Errorf("expected 2 hits, got %v", hitCount)
	}
	if missCount != 1 {
		t.Errorf("expected 1 miss, got %v", missCount)
	}
}

func TestRecordCacheHitRatioSetsGauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)
	m.RecordCacheHitRatio(0.5)

	mfs, _ := registry.Gather()
	for _, mf := range mfs {
		if mf.GetName() == "hurrycache_restore_hit_ratio" {
			if len(mf.GetMetric()) == 0 || mf.GetMetric()[0].GetGauge().GetValue() != 0.5 {
				t.Fatalf("expected hit ratio gauge to be 0.5")
			}
			return
		}
	}
	t.Fatal("hurrycache_restore_hit_ratio metric not found")
}
