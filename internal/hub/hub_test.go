package hub

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mindgate/mindgate/internal/protocol"
)

// dialPair opens a real websocket and returns both ends.
func dialPair(t *testing.T) (server, client *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	serverCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverCh <- c
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case server = <-serverCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("server side never arrived")
	}
	t.Cleanup(func() { server.Close() })
	return server, client
}

func newTestHub() *Hub {
	return New(time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNotifyWithoutReceiver(t *testing.T) {
	h := newTestHub()
	out := h.Notify([]int{7}, protocol.TabEvent{Event: protocol.EventSessionEnded})
	if len(out) != 1 {
		t.Fatalf("deliveries = %v", out)
	}
	if !errors.Is(out[0].Err, protocol.ErrNoReceiver) {
		t.Fatalf("Err = %v, want ErrNoReceiver", out[0].Err)
	}
}

func TestNotifyDeliversToAttachedTab(t *testing.T) {
	h := newTestHub()
	server, client := dialPair(t)
	link := h.AttachTab(7, server)
	defer link.Detach()

	out := h.Notify([]int{7, 9}, protocol.TabEvent{
		Event:   protocol.EventSessionEnded,
		Payload: protocol.SessionEndedPayload{Reason: "user"},
	})
	if out[0].Err != nil {
		t.Fatalf("delivery to 7 failed: %v", out[0].Err)
	}
	if !errors.Is(out[1].Err, protocol.ErrNoReceiver) {
		t.Fatalf("delivery to 9 = %v, want ErrNoReceiver", out[1].Err)
	}

	var ev protocol.TabEvent
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := client.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if ev.Event != protocol.EventSessionEnded {
		t.Fatalf("event = %q, want session-ended", ev.Event)
	}
}

func TestDetachKeepsNewerRegistration(t *testing.T) {
	h := newTestHub()
	serverA, _ := dialPair(t)
	serverB, clientB := dialPair(t)

	linkA := h.AttachTab(7, serverA)
	linkB := h.AttachTab(7, serverB)

	// Detaching the replaced connection must not unregister the live one.
	linkA.Detach()
	out := h.Notify([]int{7}, protocol.TabEvent{Event: protocol.EventSessionExpired})
	if out[0].Err != nil {
		t.Fatalf("delivery after stale detach failed: %v", out[0].Err)
	}
	var ev protocol.TabEvent
	_ = clientB.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := clientB.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}

	linkB.Detach()
	out = h.Notify([]int{7}, protocol.TabEvent{Event: protocol.EventSessionExpired})
	if !errors.Is(out[0].Err, protocol.ErrNoReceiver) {
		t.Fatalf("Err = %v after detach, want ErrNoReceiver", out[0].Err)
	}
}

func TestTabCommandsRequireBrowser(t *testing.T) {
	h := newTestHub()
	if err := h.UpdateTab(context.Background(), 7, "https://x.com"); !errors.Is(err, ErrBrowserUnavailable) {
		t.Fatalf("UpdateTab error = %v, want ErrBrowserUnavailable", err)
	}
	if err := h.RemoveTab(context.Background(), 7); !errors.Is(err, ErrBrowserUnavailable) {
		t.Fatalf("RemoveTab error = %v, want ErrBrowserUnavailable", err)
	}
	if _, err := h.QueryTabs(context.Background(), nil); !errors.Is(err, ErrBrowserUnavailable) {
		t.Fatalf("QueryTabs error = %v, want ErrBrowserUnavailable", err)
	}
}

func TestUpdateTabSendsCommand(t *testing.T) {
	h := newTestHub()
	server, client := dialPair(t)
	bl := h.AttachBrowser(server)
	defer bl.Detach()

	if err := h.UpdateTab(context.Background(), 7, "https://x.com/home"); err != nil {
		t.Fatalf("UpdateTab() error = %v", err)
	}

	var cmd protocol.BrowserCommand
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := client.ReadJSON(&cmd); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if cmd.Kind != protocol.CommandUpdateTab || cmd.TabID != 7 || cmd.URL != "https://x.com/home" {
		t.Fatalf("command = %+v", cmd)
	}
}

func TestQueryTabsRoundTrip(t *testing.T) {
	h := newTestHub()
	server, client := dialPair(t)
	bl := h.AttachBrowser(server)
	defer bl.Detach()

	// The shim side answers the query as a browser would.
	go func() {
		var cmd protocol.BrowserCommand
		_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := client.ReadJSON(&cmd); err != nil {
			return
		}
		h.HandleTabsResult(cmd.ID, []int{7, 11})
	}()

	ids, err := h.QueryTabs(context.Background(), []string{"*://*.x.com/*"})
	if err != nil {
		t.Fatalf("QueryTabs() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != 7 || ids[1] != 11 {
		t.Fatalf("ids = %v, want [7 11]", ids)
	}
}

func TestQueryTabsTimesOutWithoutReply(t *testing.T) {
	h := New(50*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	server, _ := dialPair(t)
	bl := h.AttachBrowser(server)
	defer bl.Detach()

	if _, err := h.QueryTabs(context.Background(), nil); err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestQueryTabsHonorsContext(t *testing.T) {
	h := newTestHub()
	server, _ := dialPair(t)
	bl := h.AttachBrowser(server)
	defer bl.Detach()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.QueryTabs(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestHandleTabsResultDropsStaleReply(t *testing.T) {
	h := newTestHub()
	h.HandleTabsResult("never-registered", []int{7})
}
