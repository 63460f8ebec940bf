// Package metrics holds the prometheus collectors shared by the runtime and the protocols.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const namespace = "distnode"

var (
	Registry = prometheus.NewRegistry()

	MessagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Envelopes read from the input channel, by payload type.",
		},
		[]string{"type"},
	)

	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Envelopes written to the output channel, by payload type.",
		},
		[]string{"type"},
	)

	TimersFired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timers_fired_total",
			Help:      "Scheduled timers delivered to protocol handlers.",
		},
	)

	GossipRetransmits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gossip_retransmits_total",
			Help:      "Gossip messages resent to peers that have not acknowledged a value.",
		},
	)

	GossipPending = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gossip_pending_values",
			Help:      "Values still awaiting acknowledgment from at least one peer.",
		},
		[]string{"node"},
	)

	CasAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "counter_cas_total",
			Help:      "Compare-and-swap outcomes against the store.",
		},
		[]string{"result"},
	)

	CounterValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "counter_value",
			Help:      "Last counter value known committed, per node.",
		},
		[]string{"node"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

// CAS results.
const (
	CasOK       = "ok"
	CasConflict = "conflict"
	CasMissing  = "missing"
)

func init() {
	Registry.MustRegister(MessagesReceived, MessagesSent, TimersFired, GossipRetransmits,
		GossipPending, CasAttempts, CounterValue, uptime)
}

// Handler exposes the registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Infof("serving metrics on http://%s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "metrics listener")
	}
	return nil
}
