// Package events keeps the activity clock in step with what the user does
// in the browser, between sweeps.
package events

import (
	"context"

	"github.com/tabreaper/tabreaper/internal/host"
	"github.com/tabreaper/tabreaper/internal/logger"
	"github.com/tabreaper/tabreaper/internal/tracker"
)

// Synchronizer consumes host events and translates them into clock updates.
// Writes ride the tracker's debounce, so a burst of tab switching costs one
// store write.
type Synchronizer struct {
	host    host.Host
	tracker *tracker.Tracker
	logger  logger.Logger
	done    chan struct{}
}

func New(h host.Host, trk *tracker.Tracker, log logger.Logger) *Synchronizer {
	return &Synchronizer{
		host:    h,
		tracker: trk,
		logger:  log,
		done:    make(chan struct{}),
	}
}

// Start consumes events until the context ends or the host closes its
// stream.
func (s *Synchronizer) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		s.logger.Info("event synchronizer started")
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-s.host.Events():
				if !ok {
					s.logger.Info("host event stream closed")
					return
				}
				s.handle(ctx, ev)
			}
		}
	}()
}

// Wait blocks until the consume loop has exited.
func (s *Synchronizer) Wait() {
	<-s.done
}

func (s *Synchronizer) handle(ctx context.Context, ev host.Event) {
	switch ev.Kind {
	case host.EventTabCreated, host.EventTabActivated, host.EventTabUpdated:
		s.tracker.RegisterNow(ev.TabID)
	case host.EventTabRemoved:
		s.tracker.Unregister(ev.TabID)
	case host.EventWindowFocused:
		s.refocusWindow(ctx, ev.WindowID)
	}
}

// refocusWindow stamps the active tab of a window that just gained focus.
// Focus switching between windows does not fire per-tab activation, so the
// window event is the only signal.
func (s *Synchronizer) refocusWindow(ctx context.Context, windowID int64) {
	if windowID == host.WindowNone {
		return
	}
	tabs, err := s.host.WindowTabs(ctx, windowID)
	if err != nil {
		s.logger.Debug("failed to query focused window",
			logger.Int64("window_id", windowID),
			logger.Error(err))
		return
	}
	for _, tab := range tabs {
		if tab.Active {
			s.tracker.RegisterNow(tab.ID)
			return
		}
	}
}
