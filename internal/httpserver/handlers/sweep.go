package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/tabreaper/tabreaper/internal/httpserver/deps"
	"github.com/tabreaper/tabreaper/internal/logger"
	"github.com/tabreaper/tabreaper/internal/sweep"
)

type sweepRequest struct {
	InvokerTabID int64 `json:"invoker_tab_id,omitempty" validate:"omitempty,gt=0"`
}

type sweepResponse struct {
	Scanned    int `json:"scanned"`
	Closed     int `json:"closed"`
	Discarded  int `json:"discarded"`
	Registered int `json:"registered"`
	Failed     int `json:"failed"`
}

// Sweep runs a manual sweep. Only the invoking tab is protected; a sweep
// already in flight yields 409.
func Sweep(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sweepRequest
		if err := decodeStrict(r, &req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if err := d.Validate.Struct(req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request: "+err.Error())
			return
		}

		res, err := d.Sweeper.Run(r.Context(), sweep.Options{
			Manual:       true,
			InvokerTabID: req.InvokerTabID,
		})
		if err != nil {
			if errors.Is(err, sweep.ErrSweepInProgress) {
				respondError(w, http.StatusConflict, "sweep already in progress")
				return
			}
			d.Logger.Error("manual sweep failed", logger.Error(err))
			respondError(w, http.StatusInternalServerError, "sweep failed")
			return
		}

		respondJSON(w, http.StatusOK, sweepResponse{
			Scanned:    res.Scanned,
			Closed:     res.Closed,
			Discarded:  res.Discarded,
			Registered: res.Registered,
			Failed:     res.Failed,
		})
	}
}
