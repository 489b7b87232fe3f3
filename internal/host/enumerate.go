package host

import (
	"context"
	"errors"
	"fmt"

	"github.com/tabreaper/tabreaper/internal/domain"
	"github.com/tabreaper/tabreaper/internal/logger"
)

// ErrNoTabs means no enumeration strategy produced any tabs. A sweep seeing
// this aborts without touching any state.
var ErrNoTabs = errors.New("no tabs could be enumerated")

// Enumerator tries an ordered list of enumeration strategies and returns the
// first non-empty result: the flat query first, then window by window. This
// replaces scattering the fallback logic at every call site.
type Enumerator struct {
	host   Host
	logger logger.Logger
}

func NewEnumerator(h Host, log logger.Logger) *Enumerator {
	return &Enumerator{host: h, logger: log}
}

// Enumerate returns the live tab set, or ErrNoTabs when every strategy
// failed or came back empty.
func (e *Enumerator) Enumerate(ctx context.Context) ([]domain.TabSnapshot, error) {
	tabs, err := e.host.Tabs(ctx)
	if err == nil && len(tabs) > 0 {
		return tabs, nil
	}
	if err != nil {
		e.logger.Warn("flat tab enumeration failed, trying per-window fallback",
			logger.Error(err))
	}

	windows, werr := e.host.Windows(ctx)
	if werr != nil {
		return nil, fmt.Errorf("%w: flat query and window listing both failed: %w", ErrNoTabs, werr)
	}

	var all []domain.TabSnapshot
	for _, win := range windows {
		winTabs, werr := e.host.WindowTabs(ctx, win.ID)
		if werr != nil {
			// One broken window must not sink the rest.
			e.logger.Warn("failed to enumerate window",
				logger.Int64("window_id", win.ID),
				logger.Error(werr))
			continue
		}
		all = append(all, winTabs...)
	}

	if len(all) == 0 {
		return nil, ErrNoTabs
	}
	return all, nil
}

// ActiveTabs returns the ids of every tab currently active in any window,
// computed window by window with a flat-query fallback, mirroring the
// enumeration discipline. An error means neither strategy could answer;
// an empty map with a nil error means no tab is active.
func (e *Enumerator) ActiveTabs(ctx context.Context) (map[int64]bool, error) {
	active := make(map[int64]bool)

	windows, werr := e.host.Windows(ctx)
	if werr == nil {
		for _, win := range windows {
			tabs, err := e.host.WindowTabs(ctx, win.ID)
			if err != nil {
				continue
			}
			for _, tab := range tabs {
				if tab.Active {
					active[tab.ID] = true
				}
			}
		}
	}

	if len(active) == 0 {
		tabs, terr := e.host.Tabs(ctx)
		if terr != nil {
			if werr != nil {
				return nil, fmt.Errorf("window listing and flat query both failed: %w", terr)
			}
			// The per-window pass answered; the empty set stands.
			e.logger.Warn("flat active-tab fallback failed", logger.Error(terr))
			return active, nil
		}
		for _, tab := range tabs {
			if tab.Active {
				active[tab.ID] = true
			}
		}
	}
	return active, nil
}
