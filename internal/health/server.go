package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

type Checker struct {
	DBPing  func(ctx context.Context) error
	RPCPing func(ctx context.Context) error
	// Sources reports per-source node health; each entry shows up as "source:<id>".
	Sources func(ctx context.Context) map[string]error
	// Snapshot reports whether views have been built for a source.
	Snapshot func(sourceID string) bool
}

// Handler returns the /healthz handler.
func Handler(checker Checker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		mark := func(name string, err error) {
			if err != nil {
				status[name] = "fail"
				code = http.StatusServiceUnavailable
				return
			}
			status[name] = "ok"
		}

		if checker.DBPing != nil {
			mark("db", checker.DBPing(ctx))
		}
		if checker.RPCPing != nil {
			mark("rpc", checker.RPCPing(ctx))
		}
		if checker.Sources != nil {
			for id, err := range checker.Sources(ctx) {
				mark("source:"+id, err)
				if checker.Snapshot != nil && !checker.Snapshot(id) {
					status["snapshot:"+id] = "pending"
				}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	})
}

// Serve starts a minimal /healthz server.
func Serve(addr string, checker Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/healthz", Handler(checker))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// Shutdown gracefully shuts down the health server.
func Shutdown(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
