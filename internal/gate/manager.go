// Package gate holds the session/navigation state machine: it decides, for
// every navigation attempt at a monitored destination, whether to allow it,
// defer it to the intervention surface, or fold it into the active timed
// session, and it owns that session's lifecycle across tabs.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mindgate/mindgate/internal/observability"
	"github.com/mindgate/mindgate/internal/protocol"
	"github.com/mindgate/mindgate/internal/state"
)

var (
	// ErrInvalidContext signals a tab-scoped operation with no tab identity.
	ErrInvalidContext = errors.New("missing tab context")
	// ErrNoPendingNavigation signals a session start with nothing deferred.
	ErrNoPendingNavigation = errors.New("no pending navigation found")
	// ErrNoActiveSession signals an extension request with nothing to extend.
	ErrNoActiveSession = errors.New("no active session to extend")
	// ErrInvalidRequest signals a malformed operation payload.
	ErrInvalidRequest = errors.New("invalid request")
)

// End reasons surfaced to observers; opaque to the manager itself.
const (
	ReasonUser   = "user"
	ReasonExtend = "extend"
)

// TabController acts on browser tabs through the shim channel.
type TabController interface {
	// UpdateTab navigates the tab to url and focuses it.
	UpdateTab(ctx context.Context, tabID int, url string) error
	RemoveTab(ctx context.Context, tabID int) error
	// QueryTabs returns ids of all tabs whose URL matches any pattern.
	QueryTabs(ctx context.Context, patterns []string) ([]int, error)
}

// Notifier broadcasts an event to a set of tabs, best effort: failure to
// reach one tab must not abort delivery to the others.
type Notifier interface {
	Notify(tabIDs []int, ev protocol.TabEvent) []protocol.Delivery
}

// Scheduler owns the single cancelable expiry registration.
type Scheduler interface {
	Arm(at time.Time, fire func())
	Clear()
}

// Config carries the monitored destination set and session limits.
type Config struct {
	MonitoredHosts       []string
	MonitoredURLPatterns []string
	InterventionURL      string
	MaxSessionMinutes    int
}

// Manager serializes every event (navigation, message, timer callback, tab
// removal) under one mutex and re-reads persisted state at the start of each
// handler; nothing is cached across calls.
type Manager struct {
	mu       sync.Mutex
	store    state.Store
	tabs     TabController
	notifier Notifier
	timer    Scheduler

	hosts           map[string]struct{}
	patterns        []string
	interventionURL string
	maxMinutes      int

	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewManager(store state.Store, tabs TabController, notifier Notifier, timer Scheduler, cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	hosts := make(map[string]struct{}, len(cfg.MonitoredHosts))
	for _, h := range cfg.MonitoredHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			hosts[h] = struct{}{}
		}
	}
	maxMinutes := cfg.MaxSessionMinutes
	if maxMinutes <= 0 {
		maxMinutes = 120
	}
	return &Manager{
		store:           store,
		tabs:            tabs,
		notifier:        notifier,
		timer:           timer,
		hosts:           hosts,
		patterns:        cfg.MonitoredURLPatterns,
		interventionURL: cfg.InterventionURL,
		maxMinutes:      maxMinutes,
		metrics:         metrics,
		logger:          logger,
		now:             time.Now,
	}
}

// Bootstrap ensures the durable records have their expected shape.
func (m *Manager) Bootstrap(ctx context.Context) error {
	return m.store.EnsureShape(ctx)
}

// RearmExpiry restores the expiry registration for a session that survived a
// process restart. A session already past its endTime is expired by the
// immediately-firing callback.
func (m *Manager) RearmExpiry(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, err := m.store.ActiveSession(ctx)
	if err != nil {
		return err
	}
	if sess == nil || sess.Status != state.SessionActive {
		return nil
	}
	m.armExpiryLocked(sess)
	return nil
}

// GetSession returns the current session, or nil when none exists.
func (m *Manager) GetSession(ctx context.Context) (*state.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.ActiveSession(ctx)
}

// StartSession creates the single live session for tabID, provided a pending
// navigation exists for it. All derived fields are computed before the first
// write, so a persistence failure leaves no partial state behind.
func (m *Manager) StartSession(ctx context.Context, tabID int, purpose string, minutes int) (*state.Session, error) {
	if tabID < 0 {
		return nil, ErrInvalidContext
	}
	purpose = strings.TrimSpace(purpose)
	if purpose == "" {
		return nil, fmt.Errorf("%w: purpose is required", ErrInvalidRequest)
	}
	if minutes < 1 || minutes > m.maxMinutes {
		return nil, fmt.Errorf("%w: minutes must be between 1 and %d", ErrInvalidRequest, m.maxMinutes)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pending, err := m.store.PendingNavigations(ctx)
	if err != nil {
		return nil, err
	}
	entry, ok := pending[tabID]
	if !ok {
		return nil, ErrNoPendingNavigation
	}

	now := m.nowMillis()
	sess := &state.Session{
		ID:            uuid.NewString(),
		Purpose:       purpose,
		Minutes:       minutes,
		CreatedAt:     now,
		EndTime:       now + int64(minutes)*60_000,
		AllowedTabIDs: []int{tabID},
		TargetURL:     entry.TargetURL,
		Status:        state.SessionActive,
	}

	if err := m.store.SaveActiveSession(ctx, sess); err != nil {
		return nil, err
	}
	m.armExpiryLocked(sess)

	delete(pending, tabID)
	if err := m.store.SavePendingNavigations(ctx, pending); err != nil {
		return nil, err
	}

	m.metrics.SessionEvents.WithLabelValues("started").Inc()
	m.metrics.AllowedTabs.Set(float64(len(sess.AllowedTabIDs)))
	m.metrics.PendingEntries.Set(float64(len(pending)))

	if err := m.tabs.UpdateTab(ctx, tabID, sess.TargetURL); err != nil {
		m.logger.Warn("failed to replay navigation", "tab_id", tabID, "error", err)
	}
	return sess.Clone(), nil
}

// EndSession tears down the session, if any. Idempotent: with no session it
// still honors closeTabs against the broad monitored-tab query. reason is an
// opaque tag surfaced to observers.
func (m *Manager) EndSession(ctx context.Context, closeTabs bool, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endSessionLocked(ctx, closeTabs, reason)
}

func (m *Manager) endSessionLocked(ctx context.Context, closeTabs bool, reason string) error {
	sess, err := m.store.ActiveSession(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		if closeTabs {
			m.closeMonitoredTabsLocked(ctx, nil)
		}
		return nil
	}

	m.timer.Clear()
	if err := m.store.ClearActiveSession(ctx); err != nil {
		return err
	}

	if closeTabs {
		m.closeMonitoredTabsLocked(ctx, sess.AllowedTabIDs)
	}

	m.broadcast(sess.AllowedTabIDs, protocol.TabEvent{
		Event:   protocol.EventSessionEnded,
		Payload: protocol.SessionEndedPayload{Reason: reason},
	})

	m.metrics.SessionEvents.WithLabelValues("ended").Inc()
	m.metrics.AllowedTabs.Set(0)
	return nil
}

// Expire is the timer callback. It is keyed to the session identity: a late
// fire against a newer session, or a fire ahead of endTime, is a no-op.
// Expiry remains timestamp-authoritative either way, since navigation checks
// re-validate endTime themselves.
func (m *Manager) Expire(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.store.ActiveSession(ctx)
	if err != nil {
		return err
	}
	if sess == nil || sess.ID != sessionID {
		return nil
	}
	if sess.Status == state.SessionExpired {
		return nil
	}
	if !sess.ExpiredAt(m.nowMillis()) {
		return nil
	}

	sess.Status = state.SessionExpired
	if err := m.store.SaveActiveSession(ctx, sess); err != nil {
		return err
	}
	m.metrics.SessionEvents.WithLabelValues("expired").Inc()
	m.broadcast(sess.AllowedTabIDs, expiredEvent(sess))
	return nil
}

func expiredEvent(sess *state.Session) protocol.TabEvent {
	return protocol.TabEvent{Event: protocol.EventSessionExpired, Payload: sess}
}

// ExtendSession ends the current session without closing tabs and parks a
// fresh pending entry for tabID that carries the ending session's purpose,
// so the next intention capture can pre-fill it. This is the only path that
// seeds PreviousPurpose.
func (m *Manager) ExtendSession(ctx context.Context, tabID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.store.ActiveSession(ctx)
	if err != nil {
		return err
	}
	if sess == nil || tabID < 0 {
		return ErrNoActiveSession
	}

	if err := m.endSessionLocked(ctx, false, ReasonExtend); err != nil {
		return err
	}
	m.metrics.SessionEvents.WithLabelValues("extended").Inc()

	if err := m.deferLocked(ctx, tabID, sess.TargetURL, sess.Purpose); err != nil {
		return err
	}
	if err := m.tabs.UpdateTab(ctx, tabID, m.interventionURL); err != nil {
		m.logger.Warn("failed to redirect tab to intervention", "tab_id", tabID, "error", err)
	}
	return nil
}

// RegisterTab adds the calling tab to the active session's membership if not
// already present; with no session it returns nil without error.
func (m *Manager) RegisterTab(ctx context.Context, tabID int) (*state.Session, error) {
	if tabID < 0 {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.store.ActiveSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	if !sess.Allows(tabID) {
		sess.AllowedTabIDs = append(sess.AllowedTabIDs, tabID)
		if err := m.store.SaveActiveSession(ctx, sess); err != nil {
			return nil, err
		}
		m.metrics.AllowedTabs.Set(float64(len(sess.AllowedTabIDs)))
	}
	return sess.Clone(), nil
}

// closeMonitoredTabsLocked closes the preferred tabs, then falls back to a
// broad pattern query to catch any untracked tab. Individual removal failures
// are expected (the tab may already be gone) and skipped silently.
func (m *Manager) closeMonitoredTabsLocked(ctx context.Context, preferred []int) {
	seen := make(map[int]struct{}, len(preferred))
	for _, tabID := range preferred {
		seen[tabID] = struct{}{}
		if err := m.tabs.RemoveTab(ctx, tabID); err != nil {
			m.logger.Debug("unable to remove tab", "tab_id", tabID, "error", err)
		}
	}

	matches, err := m.tabs.QueryTabs(ctx, m.patterns)
	if err != nil {
		m.logger.Warn("failed to query monitored tabs", "error", err)
		return
	}
	for _, tabID := range matches {
		if _, ok := seen[tabID]; ok {
			continue
		}
		if err := m.tabs.RemoveTab(ctx, tabID); err != nil {
			m.logger.Debug("unable to remove queried tab", "tab_id", tabID, "error", err)
		}
	}
}

// armExpiryLocked re-registers the expiry callback for this session,
// clearing any prior registration. The fired callback re-validates through
// Expire before touching state.
func (m *Manager) armExpiryLocked(sess *state.Session) {
	sessionID := sess.ID
	m.timer.Arm(time.UnixMilli(sess.EndTime), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.Expire(ctx, sessionID); err != nil {
			m.logger.Error("session expiry failed", "session_id", sessionID, "error", err)
		}
	})
}

// broadcast delivers ev to each tab, tolerating partial failure. The expected
// no-receiver condition stays at debug; anything else is diagnostics-worthy.
func (m *Manager) broadcast(tabIDs []int, ev protocol.TabEvent) {
	if m.notifier == nil || len(tabIDs) == 0 {
		return
	}
	for _, d := range m.notifier.Notify(tabIDs, ev) {
		switch {
		case d.Err == nil:
			m.metrics.BroadcastDeliveries.WithLabelValues("delivered").Inc()
		case errors.Is(d.Err, protocol.ErrNoReceiver):
			m.metrics.BroadcastDeliveries.WithLabelValues("no_receiver").Inc()
			m.logger.Debug("broadcast skipped tab without receiver", "tab_id", d.TabID, "event", ev.Event)
		default:
			m.metrics.BroadcastDeliveries.WithLabelValues("failed").Inc()
			m.logger.Warn("failed to notify tab", "tab_id", d.TabID, "event", ev.Event, "error", d.Err)
		}
	}
}

func (m *Manager) nowMillis() int64 {
	return m.now().UnixMilli()
}
