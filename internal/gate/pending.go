package gate

import (
	"context"

	"github.com/mindgate/mindgate/internal/state"
)

// Defer records that tabID's navigation to targetURL was intercepted pending
// intention capture, overwriting any stale entry for the same tab. An entry
// never expires by itself; it is removed only by consumption, cancellation,
// or its tab closing.
func (m *Manager) Defer(ctx context.Context, tabID int, targetURL, previousPurpose string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deferLocked(ctx, tabID, targetURL, previousPurpose)
}

func (m *Manager) deferLocked(ctx context.Context, tabID int, targetURL, previousPurpose string) error {
	pending, err := m.store.PendingNavigations(ctx)
	if err != nil {
		return err
	}
	pending[tabID] = state.PendingNavigation{
		TargetURL:       targetURL,
		CreatedAt:       m.nowMillis(),
		PreviousPurpose: previousPurpose,
	}
	if err := m.store.SavePendingNavigations(ctx, pending); err != nil {
		return err
	}
	m.metrics.PendingEntries.Set(float64(len(pending)))
	return nil
}

// ConsumePending returns and deletes tabID's entry, or nil when absent.
func (m *Manager) ConsumePending(ctx context.Context, tabID int) (*state.PendingNavigation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consumePendingLocked(ctx, tabID)
}

func (m *Manager) consumePendingLocked(ctx context.Context, tabID int) (*state.PendingNavigation, error) {
	pending, err := m.store.PendingNavigations(ctx)
	if err != nil {
		return nil, err
	}
	entry, ok := pending[tabID]
	if !ok {
		return nil, nil
	}
	delete(pending, tabID)
	if err := m.store.SavePendingNavigations(ctx, pending); err != nil {
		return nil, err
	}
	m.metrics.PendingEntries.Set(float64(len(pending)))
	return &entry, nil
}

// PeekPending is the read-only lookup the intervention surface uses to know
// what to resume; nil when the tab has nothing deferred.
func (m *Manager) PeekPending(ctx context.Context, tabID int) (*state.PendingNavigation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending, err := m.store.PendingNavigations(ctx)
	if err != nil {
		return nil, err
	}
	entry, ok := pending[tabID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// CancelNavigation consumes the tab's pending entry and closes the tab.
func (m *Manager) CancelNavigation(ctx context.Context, tabID int) error {
	if tabID < 0 {
		return ErrInvalidContext
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.consumePendingLocked(ctx, tabID); err != nil {
		return err
	}
	return m.tabs.RemoveTab(ctx, tabID)
}
