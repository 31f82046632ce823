package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// RequestKind identifies the operations the intervention surface and per-tab
// observers may invoke through the message router.
type RequestKind string

const (
	KindInterventionReady RequestKind = "intervention-ready"
	KindStartSession      RequestKind = "start-session"
	KindCancelNavigation  RequestKind = "cancel-navigation"
	KindGetSession        RequestKind = "get-session"
	KindRegisterTab       RequestKind = "register-tab"
	KindCloseSession      RequestKind = "close-session"
	KindRequestExtension  RequestKind = "request-extension"
)

var ErrUnsupportedKind = errors.New("unsupported request kind")

// Request is one tab-originated message. ID correlates the response.
type Request struct {
	ID      string          `json:"id"`
	Kind    RequestKind     `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type StartSessionPayload struct {
	Purpose string `json:"purpose"`
	Minutes int    `json:"minutes"`
}

// Response carries either a result or a structured error; callers never
// observe an unhandled failure.
type Response struct {
	ID     string `json:"id"`
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  *Error `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EventKind identifies core-to-tab broadcast events.
type EventKind string

const (
	EventSessionExpired EventKind = "session-expired"
	EventSessionEnded   EventKind = "session-ended"
)

// TabEvent is a fire-and-forget broadcast to a set of tabs.
type TabEvent struct {
	Event   EventKind `json:"event"`
	Payload any       `json:"payload,omitempty"`
}

type SessionEndedPayload struct {
	Reason string `json:"reason"`
}

// ErrNoReceiver marks the expected broadcast outcome for a tab that has no
// live connection (it navigated away or closed). Callers suppress it from
// user-visible error surfaces.
var ErrNoReceiver = errors.New("receiving end does not exist")

// Delivery is the per-target outcome of a broadcast. A nil Err means the
// event reached the tab's connection.
type Delivery struct {
	TabID int
	Err   error
}

// BrowserEventKind identifies messages arriving on the browser shim channel.
type BrowserEventKind string

const (
	BrowserNavigation BrowserEventKind = "navigation"
	BrowserTabRemoved BrowserEventKind = "tab-removed"
	BrowserTabsResult BrowserEventKind = "tabs-result"
)

var ErrUnsupportedBrowserEvent = errors.New("unsupported browser event")

// BrowserEvent is one message from the browser shim: a raw navigation event,
// a tab removal, or the reply to an earlier query-tabs command.
type BrowserEvent struct {
	Kind    BrowserEventKind `json:"kind"`
	TabID   int              `json:"tab_id,omitempty"`
	FrameID int              `json:"frame_id,omitempty"`
	URL     string           `json:"url,omitempty"`
	ID      string           `json:"id,omitempty"`
	TabIDs  []int            `json:"tab_ids,omitempty"`
}

// BrowserCommandKind identifies commands the core sends to the browser shim.
type BrowserCommandKind string

const (
	CommandUpdateTab BrowserCommandKind = "update-tab"
	CommandRemoveTab BrowserCommandKind = "remove-tab"
	CommandQueryTabs BrowserCommandKind = "query-tabs"
)

// BrowserCommand instructs the shim to act on a tab. Query-tabs commands carry
// an ID the shim echoes back in its tabs-result event.
type BrowserCommand struct {
	ID       string             `json:"id,omitempty"`
	Kind     BrowserCommandKind `json:"kind"`
	TabID    int                `json:"tab_id,omitempty"`
	URL      string             `json:"url,omitempty"`
	Patterns []string           `json:"patterns,omitempty"`
}

// ParseRequest decodes and validates one tab request.
func ParseRequest(raw []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, fmt.Errorf("invalid request envelope: %w", err)
	}
	switch req.Kind {
	case KindInterventionReady, KindStartSession, KindCancelNavigation,
		KindGetSession, KindRegisterTab, KindCloseSession, KindRequestExtension:
		return req, nil
	default:
		return Request{}, fmt.Errorf("%w: %q", ErrUnsupportedKind, req.Kind)
	}
}

// ParseBrowserEvent decodes and validates one browser shim message.
func ParseBrowserEvent(raw []byte) (BrowserEvent, error) {
	var ev BrowserEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return BrowserEvent{}, fmt.Errorf("invalid browser event: %w", err)
	}
	switch ev.Kind {
	case BrowserNavigation:
		if ev.URL == "" {
			return BrowserEvent{}, errors.New("navigation event missing url")
		}
		return ev, nil
	case BrowserTabRemoved:
		return ev, nil
	case BrowserTabsResult:
		if ev.ID == "" {
			return BrowserEvent{}, errors.New("tabs-result missing command id")
		}
		return ev, nil
	default:
		return BrowserEvent{}, fmt.Errorf("%w: %q", ErrUnsupportedBrowserEvent, ev.Kind)
	}
}
