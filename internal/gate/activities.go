package gate

import (
	"context"

	"github.com/mindgate/mindgate/internal/state"
)

// Activity is one alternative to the blocked destination, offered by the
// intervention surface. The list content is data; rendering is out of scope.
type Activity struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

var defaultActivities = []Activity{
	{Label: "Listen to uplifting music", URL: "https://www.youtube.com/results?search_query=motivational+songs"},
	{Label: "Take a mindful walk", URL: "https://www.google.com/search?q=5+minute+walk+ideas"},
	{Label: "Hydrate and reset", URL: "https://www.healthline.com/nutrition/how-much-water-should-you-drink-per-day"},
	{Label: "Call a loved one", URL: "https://ggia.berkeley.edu/practice/three-good-things"},
	{Label: "Quick breathing exercise", URL: "https://www.youtube.com/watch?v=SEfs5TJZ6Nk"},
	{Label: "Stretch for two minutes", URL: "https://www.youtube.com/results?search_query=2+minute+stretch"},
}

// InterventionState is everything the intervention surface needs to render
// one visit: what was deferred, what session (if any) is live, and what else
// the user could be doing instead.
type InterventionState struct {
	AlternativeActivities []Activity               `json:"alternativeActivities"`
	PendingNavigation     *state.PendingNavigation `json:"pendingNavigation"`
	ActiveSession         *state.Session           `json:"activeSession"`
}

// InterventionReady serves the intervention surface's opening request. A
// missing tab identity is not an error here; the surface simply gets no
// pending entry to resume.
func (m *Manager) InterventionReady(ctx context.Context, tabID int) (*InterventionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := &InterventionState{AlternativeActivities: defaultActivities}

	if tabID >= 0 {
		pending, err := m.store.PendingNavigations(ctx)
		if err != nil {
			return nil, err
		}
		if entry, ok := pending[tabID]; ok {
			out.PendingNavigation = &entry
		}
	}

	sess, err := m.store.ActiveSession(ctx)
	if err != nil {
		return nil, err
	}
	out.ActiveSession = sess
	return out, nil
}
