package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Core identity/session metrics.
var (
	LoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"outcome"}, // success, invalid_credentials, disabled, error
	)

	SessionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sessions_created_total",
		Help: "Sessions created at login.",
	})

	SessionsSwept = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_swept_total",
			Help: "Sessions removed by the background sweep.",
		},
		[]string{"reason"}, // expired, inactive
	)

	ModeProbes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mode_probes_total",
			Help: "Shared-backend connectivity probes by outcome.",
		},
		[]string{"outcome"}, // connected, unreachable
	)
)

// Init registers the metrics in the default registry. Call once from
// cmd/server.
func Init() {
	prometheus.MustRegister(LoginsTotal, SessionsCreated, SessionsSwept, ModeProbes)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
