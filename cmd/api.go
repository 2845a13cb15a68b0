package cmd

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/justmike1/intern/jira"
)

// KeyLister is the registry view served by the API.
type KeyLister interface {
	Initialized() bool
	ProjectKeys() ([]string, error)
}

// PromptLister exposes the loaded prompts.
type PromptLister interface {
	GetAll() map[string]string
}

// newRouter mounts the health check, the Slack Events API endpoint (when
// events is non-nil) and the read-only API behind the IP allowlist.
func newRouter(keys KeyLister, prompts PromptLister, events http.Handler, allowedCIDRs string, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !keys.Initialized() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	if events != nil {
		r.Handle("/slack/events", events)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(ipAllowlist(allowedCIDRs, logger))

		r.Get("/projects", func(w http.ResponseWriter, _ *http.Request) {
			projectKeys, err := keys.ProjectKeys()
			if err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"projectKeys": projectKeys, "count": len(projectKeys)})
		})

		r.Get("/prompts", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, prompts.GetAll())
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var _ KeyLister = (*jira.Registry)(nil)
