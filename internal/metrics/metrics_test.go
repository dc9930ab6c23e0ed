package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	t.Run("counters", func(t *testing.T) {
		m := New("test")

		m.Reconciled(OutcomeUpdated)
		m.Reconciled(OutcomeUpdated)
		m.Reconciled(OutcomeError)
		m.CacheLookup(CacheHit)

		if got := testutil.ToFloat64(m.reconciles.WithLabelValues(OutcomeUpdated)); got != 2 {
			t.Errorf("expected 2 updated reconciles, got %v", got)
		}
		if got := testutil.ToFloat64(m.viewCache.WithLabelValues(CacheHit)); got != 1 {
			t.Errorf("expected 1 cache hit, got %v", got)
		}
	})

	t.Run("JobStarted", func(t *testing.T) {
		m := New("test")

		done := m.JobStarted("unpack_archive")
		if got := testutil.ToFloat64(m.jobsRunning.WithLabelValues("unpack_archive")); got != 1 {
			t.Errorf("expected 1 running job, got %v", got)
		}

		done("SUCCESS")
		if got := testutil.ToFloat64(m.jobsRunning.WithLabelValues("unpack_archive")); got != 0 {
			t.Errorf("expected 0 running jobs, got %v", got)
		}
		if got := testutil.ToFloat64(m.jobs.WithLabelValues("unpack_archive", "SUCCESS")); got != 1 {
			t.Errorf("expected 1 finished job, got %v", got)
		}
	})

	t.Run("nil receiver is a no-op", func(t *testing.T) {
		var m *Metrics
		m.Reconciled(OutcomeSkipped)
		m.StatusQueried(time.Second)
		m.CacheLookup(CacheMiss)
		m.Downloaded(10)
		m.RequestServed("/", 200, time.Millisecond)
		m.JobStarted("copy_folder")("FAILURE")
	})

	t.Run("Handler", func(t *testing.T) {
		m := New("bidshelf")
		m.Reconciled(OutcomeForced)

		rec := httptest.NewRecorder()
		m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

		body, _ := io.ReadAll(rec.Body)
		if !strings.Contains(string(body), `bidshelf_reconcile_total{outcome="forced"} 1`) {
			t.Errorf("expected reconcile counter in exposition, got:\n%s", body)
		}
	})
}
