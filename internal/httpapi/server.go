package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mindgate/mindgate/internal/config"
	"github.com/mindgate/mindgate/internal/gate"
	"github.com/mindgate/mindgate/internal/hub"
	"github.com/mindgate/mindgate/internal/observability"
	"github.com/mindgate/mindgate/internal/protocol"
	"github.com/mindgate/mindgate/internal/router"
)

const (
	readLimit  = 1 << 20
	readWait   = 120 * time.Second
	handleWait = 10 * time.Second
)

type Server struct {
	cfg      config.Config
	core     *gate.Manager
	router   *router.Router
	hub      *hub.Hub
	metrics  *observability.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, core *gate.Manager, rt *router.Router, h *hub.Hub, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		core:    core,
		router:  rt,
		hub:     h,
		metrics: metrics,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser connections unless explicitly
				// relaxed; other websites must not be able to drive the
				// user's session.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "chrome-extension" {
					return false
				}
				if u.Scheme == "chrome-extension" {
					return true
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/ws/tab", s.handleTabWS)
	r.Get("/ws/browser", s.handleBrowserWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.core.GetSession(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "store unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// handleTabWS serves one tab connection: routed requests in, structured
// responses and broadcasts out. Tab identity comes from the tab_id query
// parameter; without it the connection can still issue requests but every
// tab-scoped operation fails with invalid_context.
func (s *Server) handleTabWS(w http.ResponseWriter, r *http.Request) {
	tabID := -1
	if raw := strings.TrimSpace(r.URL.Query().Get("tab_id")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondJSON(w, http.StatusBadRequest, map[string]any{"error": "tab_id must be a non-negative integer"})
			return
		}
		tabID = n
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	link := s.hub.AttachTab(tabID, conn)
	defer link.Detach()

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		s.metrics.WSMessages.WithLabelValues("tab", "inbound").Inc()

		req, err := protocol.ParseRequest(data)
		if err != nil {
			resp := protocol.Response{
				OK:    false,
				Error: &protocol.Error{Code: parseErrorCode(err), Message: err.Error()},
			}
			resp.ID = requestID(data)
			s.send(link, resp)
			continue
		}

		ctx, cancel := context.WithTimeout(r.Context(), handleWait)
		resp := s.router.Dispatch(ctx, tabID, req)
		cancel()
		s.send(link, resp)
	}
}

// handleBrowserWS serves the shim channel. Events are handled one at a time
// in arrival order, mirroring the browser's own delivery model.
func (s *Server) handleBrowserWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	link := s.hub.AttachBrowser(conn)
	defer link.Detach()
	s.logger.Info("browser shim connected", "remote", r.RemoteAddr)

	conn.SetReadLimit(readLimit)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			s.logger.Info("browser shim disconnected", "remote", r.RemoteAddr)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		s.metrics.WSMessages.WithLabelValues("browser", "inbound").Inc()

		ev, err := protocol.ParseBrowserEvent(data)
		if err != nil {
			s.logger.Warn("dropping malformed browser event", "error", err)
			continue
		}

		switch ev.Kind {
		case protocol.BrowserNavigation:
			ctx, cancel := context.WithTimeout(r.Context(), handleWait)
			if err := s.core.HandleNavigation(ctx, ev.TabID, ev.FrameID, ev.URL); err != nil {
				// Log and continue: a failure here must never prevent future
				// navigation decisions.
				s.logger.Error("navigation handling failed", "tab_id", ev.TabID, "url", ev.URL, "error", err)
			}
			cancel()
		case protocol.BrowserTabRemoved:
			ctx, cancel := context.WithTimeout(r.Context(), handleWait)
			if err := s.core.HandleTabRemoved(ctx, ev.TabID); err != nil {
				s.logger.Error("tab removal handling failed", "tab_id", ev.TabID, "error", err)
			}
			cancel()
		case protocol.BrowserTabsResult:
			s.hub.HandleTabsResult(ev.ID, ev.TabIDs)
		}
	}
}

func (s *Server) send(link *hub.TabLink, resp protocol.Response) {
	if err := link.Send(resp); err != nil {
		s.logger.Debug("failed to write response", "error", err)
		return
	}
	s.metrics.WSMessages.WithLabelValues("tab", "outbound").Inc()
}

// requestID best-effort extracts the correlation id from a payload that
// failed full parsing, so the caller can still match the error response.
func requestID(data []byte) string {
	var env struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(data, &env)
	return env.ID
}

func parseErrorCode(err error) string {
	if errors.Is(err, protocol.ErrUnsupportedKind) {
		return router.CodeUnsupportedKind
	}
	return router.CodeInvalidRequest
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
