package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/x", "200", time.Millisecond)
	m.ObserveEmbedding("pixel-v1", "", time.Millisecond)
	m.IncClusterDecision(true, "matched")
	if err := m.WritePrometheus(&bytes.Buffer{}); err != nil {
		t.Fatalf("WritePrometheus(nil): %v", err)
	}
}

func TestWritePrometheus(t *testing.T) {
	m := newMetrics(time.Second)
	m.ObserveAPI("POST", "/api/members", "201", 30*time.Millisecond)
	m.ObserveAPI("POST", "/api/members", "500", 2*time.Second)
	m.ObserveEmbedding("clip", "decode", 10*time.Millisecond)
	m.IncClusterDecision(false, "no_history")

	if got := m.apiRequests.Value("POST", "/api/members", "201"); got != 1 {
		t.Fatalf("apiRequests: got=%v", got)
	}
	if got := m.apiLatency.Count("POST", "/api/members"); got != 2 {
		t.Fatalf("apiLatency count: got=%d", got)
	}

	var buf bytes.Buffer
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`pg_api_requests_total{method="POST",route="/api/members",status="201"} 1.000000`,
		`pg_api_request_duration_seconds_bucket{method="POST",route="/api/members",le="0.05"} 1`,
		`pg_api_request_duration_seconds_bucket{method="POST",route="/api/members",le="+Inf"} 2`,
		`pg_api_server_errors_total 1.000000`,
		`pg_embedding_jobs_total{model="clip",status="failed",kind="decode"} 1.000000`,
		`pg_cluster_decisions_total{joined="false",reason="no_history"} 1.000000`,
		"# TYPE pg_api_inflight_requests gauge",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("WritePrometheus: missing %q in\n%s", want, out)
		}
	}
}

func TestLabelEscaping(t *testing.T) {
	got := labelString([]string{"a", "b"}, []string{`x"y`})
	if got != `{a="x\"y",b="unknown"}` {
		t.Fatalf("labelString: got=%s", got)
	}
	if got := withLe("", "1"); got != `{le="1"}` {
		t.Fatalf("withLe: got=%s", got)
	}
}

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = abc , bad, x=")
	if len(got) != 1 || got["api-key"] != "abc" {
		t.Fatalf("ParseHeaders: got=%v", got)
	}
	if ParseHeaders("") != nil {
		t.Fatalf("ParseHeaders(empty): want nil")
	}
}
