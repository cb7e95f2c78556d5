package handlers

import (
	"context"
	"net/http"
	"time"
)

type healthView struct {
	Status string `json:"status"`
	Queued *int   `json:"queued,omitempty"`
}

// Health pings the job store and, when the executor runs in this process,
// reports how many tasks wait in its queue.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	view := healthView{Status: "ok"}
	if a.Queued != nil {
		n := a.Queued()
		view.Queued = &n
	}
	if a.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.Ping(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("http: health check failed")
			view.Status = "degraded"
			a.json(w, http.StatusServiceUnavailable, view)
			return
		}
	}
	a.json(w, http.StatusOK, view)
}
