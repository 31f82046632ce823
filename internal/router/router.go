// Package router exposes the core's operations to the intervention surface
// and per-tab observers as a request/response protocol. Every failure is
// caught at this boundary and turned into a structured error response.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/mindgate/mindgate/internal/gate"
	"github.com/mindgate/mindgate/internal/observability"
	"github.com/mindgate/mindgate/internal/protocol"
)

// Stable error codes surfaced to callers.
const (
	CodeInvalidContext      = "invalid_context"
	CodeNoPendingNavigation = "no_pending_navigation"
	CodeNoActiveSession     = "no_active_session"
	CodeInvalidRequest      = "invalid_request"
	CodeUnsupportedKind     = "unsupported_kind"
	CodeInternal            = "internal"
)

type Router struct {
	core    *gate.Manager
	metrics *observability.Metrics
	logger  *slog.Logger
}

func New(core *gate.Manager, metrics *observability.Metrics, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{core: core, metrics: metrics, logger: logger}
}

// Dispatch runs one request on behalf of tabID (negative when the caller has
// no tab identity) and always returns a response, never an error.
func (r *Router) Dispatch(ctx context.Context, tabID int, req protocol.Request) protocol.Response {
	result, err := r.handle(ctx, tabID, req)
	if err != nil {
		r.metrics.RouterRequests.WithLabelValues(string(req.Kind), "error").Inc()
		r.logger.Warn("request failed", "kind", req.Kind, "tab_id", tabID, "error", err)
		return protocol.Response{
			ID: req.ID,
			OK: false,
			Error: &protocol.Error{
				Code:    errorCode(err),
				Message: err.Error(),
			},
		}
	}
	r.metrics.RouterRequests.WithLabelValues(string(req.Kind), "ok").Inc()
	return protocol.Response{ID: req.ID, OK: true, Result: result}
}

func (r *Router) handle(ctx context.Context, tabID int, req protocol.Request) (any, error) {
	switch req.Kind {
	case protocol.KindInterventionReady:
		return r.core.InterventionReady(ctx, tabID)

	case protocol.KindStartSession:
		var payload protocol.StartSessionPayload
		if err := decodePayload(req.Payload, &payload); err != nil {
			return nil, err
		}
		return r.core.StartSession(ctx, tabID, payload.Purpose, payload.Minutes)

	case protocol.KindCancelNavigation:
		return nil, r.core.CancelNavigation(ctx, tabID)

	case protocol.KindGetSession:
		return r.core.GetSession(ctx)

	case protocol.KindRegisterTab:
		return r.core.RegisterTab(ctx, tabID)

	case protocol.KindCloseSession:
		return nil, r.core.EndSession(ctx, true, gate.ReasonUser)

	case protocol.KindRequestExtension:
		return nil, r.core.ExtendSession(ctx, tabID)

	default:
		return nil, protocol.ErrUnsupportedKind
	}
}

func decodePayload(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return gate.ErrInvalidRequest
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Join(gate.ErrInvalidRequest, err)
	}
	return nil
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, gate.ErrInvalidContext):
		return CodeInvalidContext
	case errors.Is(err, gate.ErrNoPendingNavigation):
		return CodeNoPendingNavigation
	case errors.Is(err, gate.ErrNoActiveSession):
		return CodeNoActiveSession
	case errors.Is(err, gate.ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, protocol.ErrUnsupportedKind):
		return CodeUnsupportedKind
	default:
		return CodeInternal
	}
}
