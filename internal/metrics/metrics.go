// Package metrics registers the platform's prometheus collectors and serves
// them over a dedicated listener.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_messages_published_total",
		Help: "Messages accepted by the broker, per queue.",
	}, []string{"queue"})

	MessagesConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_messages_consumed_total",
		Help: "Messages delivered to handlers, per queue and outcome (ack|reject).",
	}, []string{"queue", "outcome"})

	BrokerReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broker_reconnects_total",
		Help: "Broker connection re-establishment attempts that succeeded.",
	})

	Purchases = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticket_purchases_total",
		Help: "Purchase attempts, per outcome.",
	}, []string{"outcome"})
)

// Serve exposes /metrics on the given port. It blocks, so callers run it in
// a goroutine; errors are returned for the caller to log.
func Serve(port string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(":"+port, mux)
}
