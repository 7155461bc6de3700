package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveTransaction(t *testing.T) {
	m := New()

	m.ObserveTransaction("CASH_IN", "ok", 10*time.Millisecond)
	m.ObserveTransaction("CASH_IN", "ok", 20*time.Millisecond)
	m.ObserveTransaction("CASH_OUT", "insufficient_funds", time.Millisecond)
	m.ObserveRetry()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transactionsTotal.WithLabelValues("CASH_IN", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transactionsTotal.WithLabelValues("CASH_OUT", "insufficient_funds")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transactionRetries))
}

func TestObserveOutboxAndCleanup(t *testing.T) {
	m := New()

	m.ObserveOutboxPublish(nil)
	m.ObserveOutboxPublish(errors.New("broker down"))
	m.ObserveResetCleanup(3)
	m.ObserveResetCleanup(0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.outboxPublished.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outboxPublished.WithLabelValues("error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.resetTokensDeleted))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTransaction("CASH_IN", "ok", time.Second)
		m.ObserveRetry()
		m.ObserveOutboxPublish(nil)
		m.ObserveResetCleanup(1)
		m.ObserveLogin("password", "ok")
	})
	assert.Nil(t, m.Registry())
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.ObserveLogin("password", "ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "player_wallet_auth_login_attempts_total"))
}
