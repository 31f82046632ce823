// Package hub tracks the live WebSocket connections: one per tab showing the
// intervention surface or a monitored destination, plus the single browser
// shim channel that executes tab commands and reports raw browser events.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mindgate/mindgate/internal/protocol"
)

// ErrBrowserUnavailable is returned for tab commands while no shim is
// connected.
var ErrBrowserUnavailable = errors.New("browser shim not connected")

const writeWait = 10 * time.Second

// link serializes writes to one websocket connection.
type link struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (l *link) send(v any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return l.conn.WriteJSON(v)
}

type Hub struct {
	mu      sync.Mutex
	tabs    map[int]*link
	browser *link
	queries map[string]chan []int

	queryTimeout time.Duration
	logger       *slog.Logger
}

func New(queryTimeout time.Duration, logger *slog.Logger) *Hub {
	if queryTimeout <= 0 {
		queryTimeout = 3 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		tabs:         make(map[int]*link),
		queries:      make(map[string]chan []int),
		queryTimeout: queryTimeout,
		logger:       logger,
	}
}

// TabLink is the handle the transport layer uses to write responses and
// broadcasts to one tab connection through a single write path.
type TabLink struct {
	hub   *Hub
	tabID int
	l     *link
}

func (t *TabLink) Send(v any) error { return t.l.send(v) }

// Detach removes the registration unless a newer connection for the same tab
// has already replaced it.
func (t *TabLink) Detach() {
	if t.tabID < 0 {
		return
	}
	t.hub.mu.Lock()
	defer t.hub.mu.Unlock()
	if t.hub.tabs[t.tabID] == t.l {
		delete(t.hub.tabs, t.tabID)
	}
}

// AttachTab registers a tab connection. A reconnect for the same tab replaces
// the previous registration. A negative tabID attaches without identity; such
// a connection can issue requests but never receives broadcasts.
func (h *Hub) AttachTab(tabID int, conn *websocket.Conn) *TabLink {
	l := &link{conn: conn}
	if tabID >= 0 {
		h.mu.Lock()
		h.tabs[tabID] = l
		h.mu.Unlock()
	}
	return &TabLink{hub: h, tabID: tabID, l: l}
}

// BrowserLink is the handle for the shim channel.
type BrowserLink struct {
	hub *Hub
	l   *link
}

func (b *BrowserLink) Detach() {
	b.hub.mu.Lock()
	defer b.hub.mu.Unlock()
	if b.hub.browser == b.l {
		b.hub.browser = nil
	}
}

// AttachBrowser registers the shim channel, replacing any previous one.
func (h *Hub) AttachBrowser(conn *websocket.Conn) *BrowserLink {
	l := &link{conn: conn}
	h.mu.Lock()
	h.browser = l
	h.mu.Unlock()
	return &BrowserLink{hub: h, l: l}
}

// Notify delivers ev to each tab, fire-and-forget per tab: one dead
// connection never aborts delivery to the others.
func (h *Hub) Notify(tabIDs []int, ev protocol.TabEvent) []protocol.Delivery {
	out := make([]protocol.Delivery, 0, len(tabIDs))
	for _, tabID := range tabIDs {
		h.mu.Lock()
		l := h.tabs[tabID]
		h.mu.Unlock()
		if l == nil {
			out = append(out, protocol.Delivery{TabID: tabID, Err: protocol.ErrNoReceiver})
			continue
		}
		out = append(out, protocol.Delivery{TabID: tabID, Err: l.send(ev)})
	}
	return out
}

// UpdateTab tells the shim to navigate the tab to url and focus it.
func (h *Hub) UpdateTab(_ context.Context, tabID int, url string) error {
	return h.sendBrowser(protocol.BrowserCommand{
		Kind:  protocol.CommandUpdateTab,
		TabID: tabID,
		URL:   url,
	})
}

// RemoveTab tells the shim to close the tab.
func (h *Hub) RemoveTab(_ context.Context, tabID int) error {
	return h.sendBrowser(protocol.BrowserCommand{
		Kind:  protocol.CommandRemoveTab,
		TabID: tabID,
	})
}

// QueryTabs asks the shim which tabs match the URL patterns and waits,
// bounded by the query timeout, for the correlated tabs-result reply.
func (h *Hub) QueryTabs(ctx context.Context, patterns []string) ([]int, error) {
	id := uuid.NewString()
	ch := make(chan []int, 1)

	h.mu.Lock()
	h.queries[id] = ch
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.queries, id)
		h.mu.Unlock()
	}()

	err := h.sendBrowser(protocol.BrowserCommand{
		ID:       id,
		Kind:     protocol.CommandQueryTabs,
		Patterns: patterns,
	})
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(h.queryTimeout)
	defer timer.Stop()
	select {
	case tabIDs := <-ch:
		return tabIDs, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("query-tabs %s timed out after %s", id, h.queryTimeout)
	}
}

// HandleTabsResult resolves a pending query; unknown ids (late replies after
// a timeout) are dropped quietly.
func (h *Hub) HandleTabsResult(id string, tabIDs []int) {
	h.mu.Lock()
	ch := h.queries[id]
	delete(h.queries, id)
	h.mu.Unlock()
	if ch == nil {
		h.logger.Debug("dropping stale tabs-result", "id", id)
		return
	}
	ch <- tabIDs
}

func (h *Hub) sendBrowser(cmd protocol.BrowserCommand) error {
	h.mu.Lock()
	l := h.browser
	h.mu.Unlock()
	if l == nil {
		return ErrBrowserUnavailable
	}
	return l.send(cmd)
}
