package gate

import "context"

// HandleTabRemoved prunes state tied to a closed tab: its pending entry, if
// any, and its session membership. Closing the last allowed tab does not end
// the session; a fresh tab is recognized again until endTime passes.
func (m *Manager) HandleTabRemoved(ctx context.Context, tabID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, err := m.store.PendingNavigations(ctx)
	if err != nil {
		return err
	}
	if _, ok := pending[tabID]; ok {
		delete(pending, tabID)
		if err := m.store.SavePendingNavigations(ctx, pending); err != nil {
			return err
		}
		m.metrics.PendingEntries.Set(float64(len(pending)))
	}

	sess, err := m.store.ActiveSession(ctx)
	if err != nil {
		return err
	}
	if sess == nil || !sess.Allows(tabID) {
		return nil
	}

	next := sess.AllowedTabIDs[:0]
	for _, id := range sess.AllowedTabIDs {
		if id != tabID {
			next = append(next, id)
		}
	}
	sess.AllowedTabIDs = next
	if err := m.store.SaveActiveSession(ctx, sess); err != nil {
		return err
	}
	m.metrics.AllowedTabs.Set(float64(len(sess.AllowedTabIDs)))
	return nil
}
