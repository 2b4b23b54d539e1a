package health

import (
	"encoding/json"
	"net/http"

	"github.com/cuemby/eventbase/pkg/manager"
)

type statusBody struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message"`
}

// Handler returns an http.Handler serving two probes for mgr:
//
//   - GET /healthz always returns 200 while the process is up.
//   - GET /readyz returns 200 once every open base has caught up with its
//     log, 503 otherwise.
func Handler(mgr *manager.Manager) http.Handler {
	mux := http.NewServeMux()
	checker := NewReadinessChecker(mgr)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, Result{Healthy: true, Message: "alive"})
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, checker.Check(r.Context()))
	})

	return mux
}

func writeStatus(w http.ResponseWriter, result Result) {
	w.Header().Set("Content-Type", "application/json")
	if !result.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(statusBody{Healthy: result.Healthy, Message: result.Message})
}
