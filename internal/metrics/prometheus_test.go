package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordFrame(0.01, 10)
	m.RecordFrameError()
	m.RecordChunkSent()
	m.SetLinkState(LinkStateOpen)
	m.RecordHTTPRequest("GET", "/health", "200", 0.001)
}

func TestRecordersUpdateInstruments(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordFrame(0.002, 127.5)
	m.RecordFrame(0.002, 64)
	m.RecordFrameError()
	m.RecordChunkProduced(1500)
	m.RecordChunkSent()
	m.RecordChunkDropped()
	m.RecordChunkDropped()
	m.SetLinkState(LinkStateErrored)
	m.RecordSessionStarted("microphone")

	if got := testutil.ToFloat64(m.FramesRendered); got != 2 {
		t.Errorf("Expected 2 frames, got %f", got)
	}
	if got := testutil.ToFloat64(m.BassEnergy); got != 64 {
		t.Errorf("Expected bass 64, got %f", got)
	}
	if got := testutil.ToFloat64(m.FrameErrors); got != 1 {
		t.Errorf("Expected 1 frame error, got %f", got)
	}
	if got := testutil.ToFloat64(m.ChunksDropped); got != 2 {
		t.Errorf("Expected 2 dropped chunks, got %f", got)
	}
	if got := testutil.ToFloat64(m.LinkState); got != LinkStateErrored {
		t.Errorf("Expected errored link state, got %f", got)
	}
	if got := testutil.ToFloat64(m.SessionsStarted.WithLabelValues("microphone")); got != 1 {
		t.Errorf("Expected 1 microphone session, got %f", got)
	}
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}
