// ABOUTME: Tests for the server Prometheus metrics
// ABOUTME: Checks recorded values and the exposition handler
package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	m := NewMetrics(nil)

	m.RecordSessionStarted()
	m.RecordSessionStarted()
	m.RecordSessionEnded(3.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsClosed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))
}

func TestNegotiationsByResult(t *testing.T) {
	m := NewMetrics(nil)

	m.RecordNegotiation(ResultSelected, "pcm")
	m.RecordNegotiation(ResultSelected, "pcm")
	m.RecordNegotiation(ResultUnsupported, "")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Negotiations.WithLabelValues(ResultSelected, "pcm")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Negotiations.WithLabelValues(ResultUnsupported, "")))
}

func TestRecordChunk(t *testing.T) {
	m := NewMetrics(nil)

	m.RecordChunk(0.001, 0)
	m.RecordChunk(0.002, 3)
	m.RecordConfirmation()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ChunksStreamed))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SendErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Confirmations))
}

func TestTotalsReadAtScrape(t *testing.T) {
	totals := Totals{PDUsSent: 4, BytesSent: 9000, WavesSent: 3, DroppedFrames: 882}
	m := NewMetrics(func() Totals { return totals })

	totals.BytesSent = 12000

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, "rdpsnd_pdus_sent_total 4")
	assert.Contains(t, text, "rdpsnd_bytes_sent_total 12000")
	assert.Contains(t, text, "rdpsnd_waves_sent_total 3")
	assert.Contains(t, text, "rdpsnd_dropped_frames_total 882")
	assert.Contains(t, text, "rdpsnd_active_sessions 0")
}
