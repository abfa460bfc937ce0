package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterRender(t *testing.T) {
	reg := New()
	reg.Counter("requests_total", "Total requests.").Add(3)
	reg.Counter(WithLabels("requests_total", "method", "GET"), "").Inc()

	out := reg.Render()
	for _, want := range []string{
		"# HELP requests_total Total requests.",
		"# TYPE requests_total counter",
		"requests_total 3",
		`requests_total{method="GET"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
}

func TestGauge(t *testing.T) {
	reg := New()
	g := reg.Gauge("queue_depth", "")
	g.Set(10)
	g.Inc()
	g.Dec()
	g.Dec()
	if g.Value() != 9 {
		t.Fatalf("gauge = %d", g.Value())
	}
	if !strings.Contains(reg.Render(), "queue_depth 9") {
		t.Error("gauge not rendered")
	}
}

func TestHistogramBucketsAreCumulative(t *testing.T) {
	reg := New()
	h := reg.Histogram("latency_seconds", "", []float64{0.1, 1, 10})
	h.Observe(0.05)
	h.Observe(0.5)
	h.Observe(0.5)
	h.Observe(100) // above all buckets

	out := reg.Render()
	for _, want := range []string{
		`latency_seconds_bucket{le="0.1"} 1`,
		`latency_seconds_bucket{le="1"} 3`,
		`latency_seconds_bucket{le="10"} 3`,
		`latency_seconds_bucket{le="+Inf"} 4`,
		"latency_seconds_count 4",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
}

func TestSameMetricReturned(t *testing.T) {
	reg := New()
	a := reg.Counter("hits", "")
	b := reg.Counter("hits", "")
	a.Inc()
	if b.Value() != 1 {
		t.Fatal("Counter must return the same series for the same name")
	}
}

func TestWithLabels(t *testing.T) {
	if got := WithLabels("m", "k", "v"); got != `m{k="v"}` {
		t.Errorf("WithLabels = %q", got)
	}
	if got := WithLabels("m"); got != "m" {
		t.Errorf("no labels = %q", got)
	}
	if got := WithLabels("m", "odd"); got != "m" {
		t.Errorf("odd pairs = %q", got)
	}
}

func TestHandler(t *testing.T) {
	reg := New()
	reg.Counter("up", "").Inc()

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "up 1") {
		t.Errorf("body = %s", rec.Body.String())
	}
}
