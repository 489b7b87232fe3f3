package handlers

import (
	"net/http"

	"github.com/tabreaper/tabreaper/internal/httpserver/deps"
	"github.com/tabreaper/tabreaper/internal/logger"
)

type readyzResponse struct {
	Ready bool   `json:"ready"`
	Redis string `json:"redis"`
}

// Readyz reports readiness; the store must answer a ping.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.RedisClient != nil {
			if err := d.RedisClient.Ping(r.Context()).Err(); err != nil {
				d.Logger.Warn("readiness check failed", logger.Error(err))
				respondJSON(w, http.StatusServiceUnavailable, readyzResponse{Ready: false, Redis: "down"})
				return
			}
		}
		respondJSON(w, http.StatusOK, readyzResponse{Ready: true, Redis: "ok"})
	}
}
