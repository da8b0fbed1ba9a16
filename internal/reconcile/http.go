package reconcile

import (
	"encoding/json"
	"net/http"
	"time"
)

// SnapshotProvider exposes the latest snapshot.
type SnapshotProvider interface {
	Snapshot() *Snapshot
}

// RegisterRoutes mounts /snapshot and /health on mux.
func RegisterRoutes(mux *http.ServeMux, provider SnapshotProvider) {
	mux.HandleFunc("/snapshot", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		snap := provider.Snapshot()
		if snap == nil {
			http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		snap := provider.Snapshot()
		if snap == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "starting"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":       "ok",
			"seq":          snap.Seq,
			"refreshed_at": snap.RefreshedAt.Format(time.RFC3339Nano),
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
