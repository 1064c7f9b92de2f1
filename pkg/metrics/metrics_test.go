package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func TestRegistry(t *testing.T) {
	if Registry == nil {
		t.Error("Registry should not be nil")
	}

	if Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}

	if Gatherer != prometheus.DefaultGatherer {
		t.Error("Gatherer should be the default Prometheus gatherer")
	}
}

var testCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "querygen_metrics_handler_test_total",
	Help: "Counter used by the handler test",
})

func TestHandler(t *testing.T) {
	testCounter.Inc()

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "querygen_metrics_handler_test_total 1") {
		t.Errorf("Expected test counter in output, got:\n%s", body)
	}
	if !strings.Contains(string(body), "promhttp_metric_handler_requests_total") {
		t.Error("Expected handler instrumentation metrics")
	}
}
