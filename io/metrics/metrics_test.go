package metrics

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestHandler_ExposesCollectors(t *testing.T) {
	MessagesSent.WithLabelValues("broadcast_ok").Inc()
	CasAttempts.WithLabelValues(CasConflict).Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	require.Contains(t, body, `distnode_messages_sent_total{type="broadcast_ok"}`)
	require.Contains(t, body, `distnode_counter_cas_total{result="conflict"}`)
	require.Contains(t, body, "distnode_uptime_seconds")
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(GossipRetransmits)
	GossipRetransmits.Add(3)
	require.Equal(t, before+3, testutil.ToFloat64(GossipRetransmits))

	CounterValue.WithLabelValues("n9").Set(42)
	require.Equal(t, float64(42), testutil.ToFloat64(CounterValue.WithLabelValues("n9")))
}

func TestServe_StopsWithContext(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
