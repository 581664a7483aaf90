// Package metrics holds the prometheus collectors for authentication
// outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pantry"

// Resolution results.
const (
	ResultOK            = "ok"
	ResultUnauthorized  = "unauthorized"
	ResultInvalid       = "invalid"
	ResultError         = "error"
	ResultAnonymous     = "anonymous"
	ResultAuthenticated = "authenticated"
)

// Auth is the set of collectors shared by the login handler, the auth
// middleware, the deprecated routes and the session event hub.
type Auth struct {
	Logins      *prometheus.CounterVec
	Resolutions *prometheus.CounterVec
	Logouts     prometheus.Counter
	Deprecated  *prometheus.CounterVec
	Connections prometheus.Gauge
}

// New registers the collectors with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Auth {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Auth{
		Logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by result",
		}, []string{"result"}),

		Resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_resolutions_total",
			Help:      "Per-request identity resolutions by middleware mode and result",
		}, []string{"mode", "result"}),

		Logouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "logouts_total",
			Help:      "Logout requests",
		}),

		Deprecated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deprecated_requests_total",
			Help:      "Requests to retired endpoints",
		}, []string{"endpoint"}),

		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "session_connections",
			Help:      "Open session event websocket connections",
		}),
	}
}

// Discard returns collectors registered nowhere. Tests and tools use it.
func Discard() *Auth {
	return New(prometheus.NewRegistry())
}
