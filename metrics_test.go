package websocket

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// metricValue returns the value of the counter or gauge called name whose
// labels match want, or 0 when it has not been observed yet.
func metricValue(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !labelsMatch(m.GetLabel(), want) {
				continue
			}
			if m.GetGauge() != nil {
				return m.GetGauge().GetValue()
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func labelsMatch(pairs []*dto.LabelPair, want map[string]string) bool {
	for k, v := range want {
		found := false
		for _, p := range pairs {
			if p.GetName() == k && p.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	m.upgrade("ok")
	m.sessionOpened()
	m.sessionClosed()
	m.frameReceived(FrameText)
	m.frameError(ErrTruncatedFrame)
	m.frameSent()
}

func TestMetricsErrorReasons(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "")
	m.frameError(ErrUnmaskedClientFrame)
	m.frameError(ErrPayloadTooLong)

	if v := metricValue(t, reg, "textsocket_frame_errors_total", map[string]string{"reason": "unmasked"}); v != 1 {
		t.Fatalf("unmasked = %v", v)
	}
	if v := metricValue(t, reg, "textsocket_frame_errors_total", map[string]string{"reason": "other"}); v != 1 {
		t.Fatalf("other = %v", v)
	}
}
