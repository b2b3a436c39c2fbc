package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "GET /articles", "200"))
	RecordRequest("GET", "GET /articles", 200, 0.01)
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "GET /articles", "200"))

	if after-before != 1 {
		t.Errorf("request counter delta = %v, want 1", after-before)
	}
}

func TestRecordImport(t *testing.T) {
	saved := ImportArticlesTotal.WithLabelValues("test-source", "saved")
	before := testutil.ToFloat64(saved)

	RecordImport("test-source", 25, 20, 19)

	if got := testutil.ToFloat64(saved) - before; got != 19 {
		t.Errorf("saved delta = %v, want 19", got)
	}
	if got := testutil.ToFloat64(ImportRunsTotal.WithLabelValues("test-source", "ok")); got < 1 {
		t.Errorf("runs counter = %v, want >= 1", got)
	}
}
