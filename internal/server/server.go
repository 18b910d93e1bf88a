// Package server exposes the engine over HTTP and WebSocket so the pipeline
// can be driven interactively against a live browser.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"selector-agent/internal/action"
	"selector-agent/internal/browser"
	"selector-agent/internal/engine"
	"selector-agent/internal/selector"
)

type Server struct {
	router     *mux.Router
	eng        *engine.Engine
	drv        browser.Driver
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	log        *zap.Logger
}

type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// actionRequest is the wire shape for both /api/action and the WebSocket
// channel.
type actionRequest struct {
	Type     string       `json:"type"`
	Selector string       `json:"selector"`
	Value    string       `json:"value,omitempty"`
	Wait     *waitRequest `json:"wait,omitempty"`
}

type waitRequest struct {
	Kind       string `json:"kind"`
	URLPattern string `json:"url_pattern,omitempty"`
	Selector   string `json:"selector,omitempty"`
	TimeoutSec int    `json:"timeout_sec,omitempty"`
}

func (w *waitRequest) condition() action.WaitCondition {
	if w == nil {
		return action.WaitCondition{}
	}
	cond := action.WaitCondition{
		Kind:       action.WaitKind(w.Kind),
		URLPattern: w.URLPattern,
		Selector:   w.Selector,
	}
	if w.TimeoutSec > 0 {
		cond.Timeout = time.Duration(w.TimeoutSec) * time.Second
	}
	return cond
}

func New(eng *engine.Engine, drv browser.Driver, addr string, log *zap.Logger) *Server {
	s := &Server{
		router: mux.NewRouter(),
		eng:    eng,
		drv:    drv,
		log:    log,
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // development surface, not exposed publicly
			},
		},
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/navigate", s.handleNavigate).Methods("POST")
	s.router.HandleFunc("/api/extract", s.handleExtract).Methods("POST")
	s.router.HandleFunc("/api/resolve", s.handleResolve).Methods("POST")
	s.router.HandleFunc("/api/action", s.handleAction).Methods("POST")
	s.router.HandleFunc("/api/screenshot", s.handleScreenshot).Methods("GET")
	s.router.HandleFunc("/api/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/api/stats", s.handleStats).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		s.sendError(w, "url is required", http.StatusBadRequest)
		return
	}

	if err := s.drv.Navigate(r.Context(), req.URL); err != nil {
		s.sendError(w, fmt.Sprintf("navigation failed: %v", err), http.StatusInternalServerError)
		return
	}
	s.sendSuccess(w, "navigated", nil)
}

// handleExtract builds (or loads) the selector pool for a page stage and
// returns per-category counts plus the pool itself.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Stage string `json:"stage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Stage == "" {
		s.sendError(w, "stage is required", http.StatusBadRequest)
		return
	}

	pool, err := s.eng.PoolForPage(r.Context(), req.Stage)
	if err != nil {
		s.sendError(w, fmt.Sprintf("pool build failed: %v", err), http.StatusInternalServerError)
		return
	}

	counts := make(map[string]int, len(pool))
	for cat, items := range pool {
		counts[string(cat)] = len(items)
	}
	s.sendSuccess(w, "pool ready", map[string]any{
		"stage":  req.Stage,
		"counts": counts,
		"pool":   pool,
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Stage      string   `json:"stage"`
		Intent     string   `json:"intent"`
		Categories []string `json:"categories,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Stage == "" || req.Intent == "" {
		s.sendError(w, "stage and intent are required", http.StatusBadRequest)
		return
	}

	grouped, err := s.eng.PoolForPage(r.Context(), req.Stage)
	if err != nil {
		s.sendError(w, fmt.Sprintf("pool build failed: %v", err), http.StatusInternalServerError)
		return
	}

	cats := req.Categories
	if len(cats) == 0 {
		for _, c := range selector.AllCategories() {
			cats = append(cats, string(c))
		}
	}
	var pool []selector.Enriched
	for _, c := range cats {
		pool = append(pool, grouped[selector.Category(c)]...)
	}

	res, err := s.eng.ResolveIntent(r.Context(), pool, selector.Intent(req.Intent))
	if err != nil {
		s.sendError(w, fmt.Sprintf("resolution failed: %v", err), http.StatusInternalServerError)
		return
	}
	if res == nil {
		s.sendSuccess(w, "no selector resolved", map[string]any{"resolved": false})
		return
	}
	s.sendSuccess(w, "resolved", map[string]any{
		"resolved": true,
		"selector": res.Selector,
		"intent":   res.Intent,
		"model":    res.Model,
	})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Selector == "" || req.Type == "" {
		s.sendError(w, "type and selector are required", http.StatusBadRequest)
		return
	}

	act := action.Action{Type: action.Type(req.Type), Selector: req.Selector, Value: req.Value}
	if err := s.eng.Apply(r.Context(), act, req.Wait.condition()); err != nil {
		s.sendError(w, fmt.Sprintf("action failed: %v", err), http.StatusInternalServerError)
		return
	}
	s.sendSuccess(w, "action completed", nil)
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	shooter, ok := s.drv.(interface {
		Screenshot(ctx context.Context) ([]byte, error)
	})
	if !ok {
		s.sendError(w, "driver does not support screenshots", http.StatusNotImplemented)
		return
	}

	buf, err := shooter.Screenshot(r.Context())
	if err != nil {
		s.sendError(w, fmt.Sprintf("screenshot failed: %v", err), http.StatusInternalServerError)
		return
	}
	s.sendSuccess(w, "screenshot captured", map[string]string{
		"image": base64.StdEncoding.EncodeToString(buf),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	url, err := s.drv.CurrentURL(r.Context())
	if err != nil {
		url = ""
	}
	title, err := s.drv.Title(r.Context())
	if err != nil {
		title = ""
	}

	s.sendSuccess(w, "status", map[string]any{
		"url":   url,
		"title": title,
		"state": s.eng.State(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.sendSuccess(w, "recovery statistics", s.eng.RecoveryStats())
}

// stateEvent is pushed to WebSocket clients on every engine transition so
// they can follow the progress of long-running actions.
type stateEvent struct {
	Event string       `json:"event"`
	State engine.State `json:"state"`
}

// handleWebSocket accepts a stream of action requests and answers each one,
// interleaving engine state transitions as progress events, so a client can
// drive the page step by step over one connection and watch it work.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	s.log.Info("websocket client connected", zap.String("remote", r.RemoteAddr))

	// Progress events and action responses come from different goroutines;
	// gorilla connections allow one writer at a time.
	var writeMu sync.Mutex
	writeJSON := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	states, unsubscribe := s.eng.Subscribe()
	done := make(chan struct{})
	defer func() {
		unsubscribe()
		close(done)
	}()
	go func() {
		for {
			select {
			case st := <-states:
				if writeJSON(stateEvent{Event: "state", State: st}) != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		var req actionRequest
		if err := conn.ReadJSON(&req); err != nil {
			break
		}

		resp := apiResponse{Success: true, Message: "action completed"}
		if req.Selector == "" || req.Type == "" {
			resp.Success = false
			resp.Message = "type and selector are required"
		} else {
			act := action.Action{Type: action.Type(req.Type), Selector: req.Selector, Value: req.Value}
			if err := s.eng.Apply(r.Context(), act, req.Wait.condition()); err != nil {
				resp.Success = false
				resp.Message = err.Error()
			}
		}

		if err := writeJSON(resp); err != nil {
			break
		}
	}

	s.log.Info("websocket client disconnected", zap.String("remote", r.RemoteAddr))
}

func (s *Server) sendSuccess(w http.ResponseWriter, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(apiResponse{Success: true, Message: message, Data: data})
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiResponse{Success: false, Message: message})
}

func (s *Server) Start() error {
	s.log.Info("control server listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("control server shutting down")
	return s.httpServer.Shutdown(ctx)
}
