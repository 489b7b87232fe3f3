package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/tabreaper/tabreaper/internal/domain"
	"github.com/tabreaper/tabreaper/internal/httpserver/deps"
	"github.com/tabreaper/tabreaper/internal/logger"
)

type policyResponse struct {
	TimeLimitMS    int64 `json:"time_limit_ms"`
	Enabled        bool  `json:"enabled"`
	ExcludePinned  bool  `json:"exclude_pinned"`
	ExcludeAudible bool  `json:"exclude_audible"`
	DiscardPinned  bool  `json:"discard_pinned"`
	CloseOnStart   bool  `json:"close_on_start"`
}

type policyPatchRequest struct {
	TimeLimitMS    *int64 `json:"time_limit_ms,omitempty" validate:"omitempty,gt=0"`
	Enabled        *bool  `json:"enabled,omitempty"`
	ExcludePinned  *bool  `json:"exclude_pinned,omitempty"`
	ExcludeAudible *bool  `json:"exclude_audible,omitempty"`
	DiscardPinned  *bool  `json:"discard_pinned,omitempty"`
	CloseOnStart   *bool  `json:"close_on_start,omitempty"`
}

func toPolicyResponse(pol domain.Policy) policyResponse {
	return policyResponse{
		TimeLimitMS:    pol.TimeLimit.Milliseconds(),
		Enabled:        pol.Enabled,
		ExcludePinned:  pol.ExcludePinned,
		ExcludeAudible: pol.ExcludeAudible,
		DiscardPinned:  pol.DiscardPinned,
		CloseOnStart:   pol.CloseOnStart,
	}
}

// GetPolicy returns the effective policy.
func GetPolicy(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, toPolicyResponse(d.Policy.Current()))
	}
}

// PatchPolicy applies a partial policy update. Out-of-range values are
// rejected with the offending field named; nothing is clamped.
func PatchPolicy(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req policyPatchRequest
		if err := decodeStrict(r, &req); err != nil {
			if errors.Is(err, io.EOF) {
				respondError(w, http.StatusBadRequest, "empty request body")
				return
			}
			respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if err := d.Validate.Struct(req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request: "+err.Error())
			return
		}

		patch := domain.PolicyPatch{
			Enabled:        req.Enabled,
			ExcludePinned:  req.ExcludePinned,
			ExcludeAudible: req.ExcludeAudible,
			DiscardPinned:  req.DiscardPinned,
			CloseOnStart:   req.CloseOnStart,
		}
		if req.TimeLimitMS != nil {
			limit := time.Duration(*req.TimeLimitMS) * time.Millisecond
			patch.TimeLimit = &limit
		}

		updated, err := d.Policy.Update(r.Context(), patch)
		if err != nil {
			var verr *domain.ValidationError
			if errors.As(err, &verr) {
				respondFieldError(w, http.StatusUnprocessableEntity, verr.Reason, verr.Field)
				return
			}
			d.Logger.Error("policy update failed", logger.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to update policy")
			return
		}

		respondJSON(w, http.StatusOK, toPolicyResponse(updated))
	}
}
