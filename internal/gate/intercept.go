package gate

import (
	"context"
	"net/url"
	"strings"

	"github.com/mindgate/mindgate/internal/state"
)

// HandleNavigation is the interceptor for one outbound navigation event. Only
// top-level navigations (frameID 0) to a monitored host qualify; everything
// else proceeds untouched. Expiry is re-validated here from endTime, so a
// delayed or lost timer callback self-corrects on the next attempt.
func (m *Manager) HandleNavigation(ctx context.Context, tabID, frameID int, rawURL string) error {
	if frameID != 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	if _, ok := m.hosts[strings.ToLower(u.Host)]; !ok {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.store.ActiveSession(ctx)
	if err != nil {
		return err
	}

	if sess == nil {
		m.metrics.NavigationDecisions.WithLabelValues("deferred").Inc()
		return m.deferAndRedirectLocked(ctx, tabID, rawURL)
	}

	if sess.ExpiredAt(m.nowMillis()) {
		if sess.Status != state.SessionExpired {
			sess.Status = state.SessionExpired
			if err := m.store.SaveActiveSession(ctx, sess); err != nil {
				return err
			}
			m.metrics.SessionEvents.WithLabelValues("expired").Inc()
			m.broadcast(sess.AllowedTabIDs, expiredEvent(sess))
		}
		m.metrics.NavigationDecisions.WithLabelValues("expired_deferred").Inc()
		return m.deferAndRedirectLocked(ctx, tabID, rawURL)
	}

	if !sess.Allows(tabID) {
		// Grandfather a new tab into the running session without re-prompting.
		sess.AllowedTabIDs = append(sess.AllowedTabIDs, tabID)
		if err := m.store.SaveActiveSession(ctx, sess); err != nil {
			return err
		}
		m.metrics.AllowedTabs.Set(float64(len(sess.AllowedTabIDs)))
		m.metrics.NavigationDecisions.WithLabelValues("grandfathered").Inc()
		return nil
	}

	m.metrics.NavigationDecisions.WithLabelValues("allowed").Inc()
	return nil
}

func (m *Manager) deferAndRedirectLocked(ctx context.Context, tabID int, targetURL string) error {
	if err := m.deferLocked(ctx, tabID, targetURL, ""); err != nil {
		return err
	}
	if err := m.tabs.UpdateTab(ctx, tabID, m.interventionURL); err != nil {
		m.logger.Warn("failed to redirect tab to intervention", "tab_id", tabID, "error", err)
	}
	return nil
}
