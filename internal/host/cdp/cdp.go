// Package cdp implements the host interface against a live Chromium-family
// browser over the DevTools protocol. Page targets are modeled as tabs and
// DevTools windows as windows. The protocol exposes no pinned or audible
// flags, so those report false; "discard" maps to freezing the page's web
// lifecycle state, which unloads its work without removing it from the tab
// strip.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/tabreaper/tabreaper/internal/domain"
	"github.com/tabreaper/tabreaper/internal/host"
	"github.com/tabreaper/tabreaper/internal/logger"
)

// ErrUnknownTab is returned for tab ids the adapter has never seen.
var ErrUnknownTab = errors.New("unknown tab id")

// Adapter speaks to one browser instance. It assigns stable int64 ids to
// DevTools target ids for the lifetime of each target; ids are recycled by
// the browser after close, matching the host contract.
type Adapter struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu        sync.Mutex
	idByTgt   map[target.ID]int64
	tgtByID   map[int64]target.ID
	discarded map[int64]bool
	nextID    int64
	closed    bool

	events      chan host.Event
	probeBudget time.Duration
	logger      logger.Logger
}

// Connect attaches to a browser's DevTools websocket endpoint and starts
// streaming target lifecycle events.
func Connect(ctx context.Context, devtoolsURL string, probeBudget time.Duration, log logger.Logger) (*Adapter, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, devtoolsURL)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	a := &Adapter{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		idByTgt:       make(map[target.ID]int64),
		tgtByID:       make(map[int64]target.ID),
		discarded:     make(map[int64]bool),
		events:        make(chan host.Event, 128),
		probeBudget:   probeBudget,
		logger:        log,
	}

	chromedp.ListenBrowser(browserCtx, a.onBrowserEvent)

	// Establish the connection and enable target discovery so lifecycle
	// events flow.
	err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.SetDiscoverTargets(true).Do(ctx)
	}))
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to attach to browser at %s: %w", devtoolsURL, err)
	}

	log.Info("attached to browser", logger.String("devtools_url", devtoolsURL))
	return a, nil
}

// tabID returns (allocating if needed) the stable int64 id for a target.
func (a *Adapter) tabID(tgt target.ID) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id, ok := a.idByTgt[tgt]; ok {
		return id
	}
	a.nextID++
	a.idByTgt[tgt] = a.nextID
	a.tgtByID[a.nextID] = tgt
	return a.nextID
}

func (a *Adapter) targetFor(id int64) (target.ID, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	tgt, ok := a.tgtByID[id]
	return tgt, ok
}

func (a *Adapter) forget(tgt target.ID) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.idByTgt[tgt]
	if !ok {
		return 0
	}
	delete(a.idByTgt, tgt)
	delete(a.tgtByID, id)
	delete(a.discarded, id)
	return id
}

func (a *Adapter) onBrowserEvent(ev interface{}) {
	switch e := ev.(type) {
	case *target.EventTargetCreated:
		if e.TargetInfo == nil || e.TargetInfo.Type != "page" {
			return
		}
		a.emit(host.Event{
			Kind:  host.EventTabCreated,
			TabID: a.tabID(e.TargetInfo.TargetID),
			URL:   e.TargetInfo.URL,
		})
	case *target.EventTargetInfoChanged:
		if e.TargetInfo == nil || e.TargetInfo.Type != "page" {
			return
		}
		a.emit(host.Event{
			Kind:  host.EventTabUpdated,
			TabID: a.tabID(e.TargetInfo.TargetID),
			URL:   e.TargetInfo.URL,
		})
	case *target.EventTargetDestroyed:
		if id := a.forget(e.TargetID); id != 0 {
			a.emit(host.Event{Kind: host.EventTabRemoved, TabID: id})
		}
	}
}

// emit drops events when the subscriber lags; sweeps re-derive the truth
// from enumeration anyway.
func (a *Adapter) emit(ev host.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.events <- ev:
	default:
		a.logger.Debug("dropping host event, subscriber lagging",
			logger.String("kind", ev.Kind.String()),
			logger.Int64("tab_id", ev.TabID))
	}
}

// Tabs enumerates all page targets.
func (a *Adapter) Tabs(ctx context.Context) ([]domain.TabSnapshot, error) {
	infos, err := chromedp.Targets(a.browserCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}

	var tabs []domain.TabSnapshot
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		tabs = append(tabs, a.snapshot(ctx, info))
	}
	return tabs, nil
}

func (a *Adapter) snapshot(ctx context.Context, info *target.Info) domain.TabSnapshot {
	id := a.tabID(info.TargetID)

	a.mu.Lock()
	discarded := a.discarded[id]
	a.mu.Unlock()

	return domain.TabSnapshot{
		ID:        id,
		URL:       info.URL,
		Title:     info.Title,
		Active:    !discarded && a.probeVisible(ctx, info.TargetID),
		Discarded: discarded,
		WindowID:  a.windowOf(info.TargetID),
	}
}

// probeVisible asks the page itself whether it is the visible tab of its
// window. The probe is strictly budgeted: a slow or wedged page is reported
// as not visible rather than stalling a sweep.
func (a *Adapter) probeVisible(ctx context.Context, tgt target.ID) bool {
	tabCtx, tabCancel := chromedp.NewContext(a.browserCtx, chromedp.WithTargetID(tgt))
	defer tabCancel()

	probeCtx, cancel := context.WithTimeout(tabCtx, a.probeBudget)
	defer cancel()

	var state string
	if err := chromedp.Run(probeCtx, chromedp.Evaluate(`document.visibilityState`, &state)); err != nil {
		return false
	}
	return state == "visible"
}

// windowOf resolves the browser window owning a target; 0 when the browser
// cannot say.
func (a *Adapter) windowOf(tgt target.ID) int64 {
	var winID browser.WindowID
	err := chromedp.Run(a.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		id, _, err := browser.GetWindowForTarget().WithTargetID(tgt).Do(ctx)
		if err != nil {
			return err
		}
		winID = id
		return nil
	}))
	if err != nil {
		return 0
	}
	return int64(winID)
}

// Windows lists the distinct windows currently owning page targets.
func (a *Adapter) Windows(ctx context.Context) ([]host.Window, error) {
	infos, err := chromedp.Targets(a.browserCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}

	seen := make(map[int64]bool)
	var wins []host.Window
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		if winID := a.windowOf(info.TargetID); winID != 0 && !seen[winID] {
			seen[winID] = true
			wins = append(wins, host.Window{ID: winID})
		}
	}
	return wins, nil
}

// WindowTabs enumerates the page targets of one window.
func (a *Adapter) WindowTabs(ctx context.Context, windowID int64) ([]domain.TabSnapshot, error) {
	infos, err := chromedp.Targets(a.browserCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}

	var tabs []domain.TabSnapshot
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		if a.windowOf(info.TargetID) != windowID {
			continue
		}
		tabs = append(tabs, a.snapshot(ctx, info))
	}
	return tabs, nil
}

// CloseTabs closes the batch, collecting per-tab failures into one error so
// the caller can fall back to the single-tab path.
func (a *Adapter) CloseTabs(ctx context.Context, ids []int64) error {
	var errs []error
	for _, id := range ids {
		if err := a.CloseTab(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("tab %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// CloseTab closes a single page target.
func (a *Adapter) CloseTab(ctx context.Context, id int64) error {
	tgt, ok := a.targetFor(id)
	if !ok {
		return ErrUnknownTab
	}
	err := chromedp.Run(a.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.CloseTarget(tgt).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("failed to close target: %w", err)
	}
	return nil
}

// DiscardTab freezes the page's lifecycle state. Freezing an already-frozen
// page is a no-op.
func (a *Adapter) DiscardTab(ctx context.Context, id int64) error {
	a.mu.Lock()
	if a.discarded[id] {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	tgt, ok := a.targetFor(id)
	if !ok {
		return ErrUnknownTab
	}

	tabCtx, tabCancel := chromedp.NewContext(a.browserCtx, chromedp.WithTargetID(tgt))
	defer tabCancel()

	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return page.SetWebLifecycleState(page.SetWebLifecycleStateStateFrozen).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("failed to freeze target: %w", err)
	}

	a.mu.Lock()
	a.discarded[id] = true
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Events() <-chan host.Event {
	return a.events
}

// Close detaches from the browser. The browser itself keeps running.
func (a *Adapter) Close() error {
	a.browserCancel()
	a.allocCancel()

	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	a.mu.Unlock()
	return nil
}
