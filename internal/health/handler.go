package health

import (
	"net/http"

	"github.com/goccy/go-json"
)

type status struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// HealthzHandler answers liveness checks. A nil check is always healthy.
func HealthzHandler(p Checker) http.HandlerFunc {
	return checkHandler(p, "ok")
}

// ReadyzHandler answers readiness checks. A nil check is always ready.
func ReadyzHandler(p Checker) http.HandlerFunc {
	return checkHandler(p, "ready")
}

func checkHandler(p Checker, okStatus string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")

		if p != nil {
			if err := p.Check(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(status{Status: "unavailable", Reason: err.Error()})
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status{Status: okStatus})
	}
}
