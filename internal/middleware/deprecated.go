package middleware

import (
	"net/http"

	"github.com/dukerupert/pantry/internal/metrics"
)

// DeprecationInfo is advertised to callers of retired routes.
type DeprecationInfo struct {
	NewBackend    string
	MigrationDate string
	Documentation string
}

type deprecationDetails struct {
	DeprecatedEndpoint string `json:"deprecated_endpoint"`
	NewBackend         string `json:"new_backend"`
	MigrationDate      string `json:"migration_date"`
	Documentation      string `json:"documentation"`
}

type deprecationResponse struct {
	Error   string             `json:"error"`
	Message string             `json:"message"`
	Details deprecationDetails `json:"details"`
}

// Deprecated answers every request with 410 Gone and points the caller at the
// replacement backend. The request body is never read.
func Deprecated(info DeprecationInfo, m *metrics.Auth) http.Handler {
	if m == nil {
		m = metrics.Discard()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Deprecated.WithLabelValues(r.URL.Path).Inc()

		w.Header().Set("X-API-Deprecated", "true")
		writeJSON(w, http.StatusGone, deprecationResponse{
			Error:   "API_DEPRECATED",
			Message: "This endpoint has been retired. Use the new backend instead.",
			Details: deprecationDetails{
				DeprecatedEndpoint: r.URL.Path,
				NewBackend:         info.NewBackend,
				MigrationDate:      info.MigrationDate,
				Documentation:      info.Documentation,
			},
		})
	})
}
