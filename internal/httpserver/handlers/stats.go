package handlers

import (
	"errors"
	"net/http"

	"github.com/tabreaper/tabreaper/internal/domain"
	"github.com/tabreaper/tabreaper/internal/host"
	"github.com/tabreaper/tabreaper/internal/httpserver/deps"
	"github.com/tabreaper/tabreaper/internal/logger"
)

type statsResponse struct {
	TotalTabs       int            `json:"total_tabs"`
	TrackedTabs     int            `json:"tracked_tabs"`
	EligibleClose   int            `json:"eligible_close"`
	EligibleDiscard int            `json:"eligible_discard"`
	PinnedTabs      int            `json:"pinned_tabs"`
	Windows         int            `json:"windows"`
	OldestAgeMS     int64          `json:"oldest_age_ms"`
	RuleCount       int            `json:"rule_count"`
	SweepRunning    bool           `json:"sweep_running"`
	Policy          policyResponse `json:"policy"`
}

// Stats summarizes the live browser state and the service state: tab and
// window counts, how many tabs the next sweep would close or discard, the
// stalest tracked age, the rule set size, and the effective policy.
func Stats(d deps.Deps) http.HandlerFunc {
	enum := host.NewEnumerator(d.Host, d.Logger)
	return func(w http.ResponseWriter, r *http.Request) {
		now := d.TimeNow()
		resp := statsResponse{
			TrackedTabs:  d.Tracker.Len(),
			RuleCount:    len(d.Rules.All()),
			SweepRunning: d.Sweeper.Running(),
			Policy:       toPolicyResponse(d.Policy.Current()),
		}
		if age, ok := d.Tracker.OldestAge(now); ok {
			resp.OldestAgeMS = age.Milliseconds()
		}

		tabs, err := enum.Enumerate(r.Context())
		if err != nil && !errors.Is(err, host.ErrNoTabs) {
			d.Logger.Warn("stats enumeration failed", logger.Error(err))
			respondError(w, http.StatusBadGateway, "could not enumerate tabs")
			return
		}

		pol := d.Policy.Current()
		windows := make(map[int64]bool)
		for _, tab := range tabs {
			resp.TotalTabs++
			windows[tab.WindowID] = true
			if tab.Pinned {
				resp.PinnedTabs++
			}
			last, _ := d.Tracker.Get(tab.ID)
			verdict := domain.Classify(tab, last, now, pol, d.Rules.Decide(tab))
			switch verdict.Action {
			case domain.ActionClose:
				resp.EligibleClose++
			case domain.ActionDiscard:
				if !tab.Discarded {
					resp.EligibleDiscard++
				}
			}
		}
		resp.Windows = len(windows)

		respondJSON(w, http.StatusOK, resp)
	}
}
