package daemon

import (
	"encoding/json"
	"net/http"
)

// Handler serves /healthz, /status and, when configured, /metrics.
func (d *Daemon) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(d.Status())
	})
	if d.opts.MetricsHandler != nil {
		mux.Handle("/metrics", d.opts.MetricsHandler)
	}
	mux.HandleFunc("/run", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		d.Trigger(ReasonManual)
		w.WriteHeader(http.StatusAccepted)
	})
	return mux
}
