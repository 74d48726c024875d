package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/postify/drip-engine/internal/domain"
	"github.com/postify/drip-engine/internal/service/drip"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := New()

	r.ObserveSweep(drip.SweepReport{ChecksProcessed: 3, SequencesAdvanced: 2, SequencesCompleted: 1, Failures: 1, Duration: 250 * time.Millisecond})
	r.ObserveSweep(drip.SweepReport{ChecksProcessed: 1})
	r.ObserveDelivery("reminder", domain.OutcomeSuccess)
	r.ObserveDelivery("reminder", domain.OutcomeSuccess)
	r.ObserveDelivery("social_proof", domain.OutcomeError)
	r.ObserveStarted()
	r.ObserveCancelled(domain.CancelConverted)
	r.ObserveLeaseSkip()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.sweeps))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.sweepItems.WithLabelValues("checks_processed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sweepItems.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.deliveries.WithLabelValues("reminder", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.deliveries.WithLabelValues("social_proof", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.started))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cancelled.WithLabelValues("converted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.leaseSkips))
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.ObserveStarted()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "drip_sequences_started_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}
