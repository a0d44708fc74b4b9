package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHandlerServesOwnRegistry(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	m.BuildsTotal.WithLabelValues("disk", "ok").Inc()
	m.GenerationSize.WithLabelValues("tokens").Set(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`index_builds_total{mode="disk",status="ok"} 1`,
		`index_generation_records{kind="tokens"} 2`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}

func TestNewIncludesRuntimeCollectors(t *testing.T) {
	m := New()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("runtime collectors not registered")
	}
}
