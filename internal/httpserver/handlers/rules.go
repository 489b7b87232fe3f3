package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tabreaper/tabreaper/internal/httpserver/deps"
	"github.com/tabreaper/tabreaper/internal/logger"
	"github.com/tabreaper/tabreaper/internal/rules"
)

type ruleDTO struct {
	Domain    string `json:"domain"`
	Action    string `json:"action" validate:"required,oneof=never-close always-close custom-timeout"`
	TimeoutMS int64  `json:"timeout_ms,omitempty" validate:"omitempty,gt=0"`
}

type rulesListResponse struct {
	Rules []ruleDTO `json:"rules"`
}

func toRuleDTO(r rules.Rule) ruleDTO {
	return ruleDTO{
		Domain:    r.Domain,
		Action:    string(r.Action),
		TimeoutMS: r.Timeout.Milliseconds(),
	}
}

// ListRules returns all domain rules.
func ListRules(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all := d.Rules.All()
		out := make([]ruleDTO, 0, len(all))
		for _, rule := range all {
			out = append(out, toRuleDTO(rule))
		}
		respondJSON(w, http.StatusOK, rulesListResponse{Rules: out})
	}
}

// AddRule creates a domain rule. Domains are normalized before storage;
// a rule already covering the domain yields 409.
func AddRule(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ruleDTO
		if err := decodeStrict(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if err := d.Validate.Struct(req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request: "+err.Error())
			return
		}

		normalized, err := rules.Normalize(req.Domain)
		if err != nil {
			respondFieldError(w, http.StatusBadRequest, err.Error(), "domain")
			return
		}

		timeout := time.Duration(req.TimeoutMS) * time.Millisecond
		err = d.Rules.Add(r.Context(), normalized, rules.RuleAction(req.Action), timeout)
		if err != nil {
			switch {
			case errors.Is(err, rules.ErrInvalidDomain):
				respondFieldError(w, http.StatusBadRequest, err.Error(), "domain")
			case errors.Is(err, rules.ErrRuleExists):
				respondError(w, http.StatusConflict, "a rule for this domain already exists")
			default:
				d.Logger.Error("failed to add rule",
					logger.String("domain", req.Domain),
					logger.Error(err))
				respondError(w, http.StatusInternalServerError, "failed to add rule")
			}
			return
		}

		req.Domain = normalized
		respondJSON(w, http.StatusCreated, req)
	}
}

// DeleteRule removes the rule for a domain. Unknown domains yield 404.
func DeleteRule(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		domain := chi.URLParam(r, "domain")

		removed, err := d.Rules.Remove(r.Context(), domain)
		if err != nil {
			if errors.Is(err, rules.ErrInvalidDomain) {
				respondFieldError(w, http.StatusBadRequest, err.Error(), "domain")
				return
			}
			d.Logger.Error("failed to delete rule",
				logger.String("domain", domain),
				logger.Error(err))
			respondError(w, http.StatusInternalServerError, "failed to delete rule")
			return
		}
		if !removed {
			respondError(w, http.StatusNotFound, "no rule for this domain")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
