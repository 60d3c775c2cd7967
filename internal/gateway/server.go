// Package gateway is the local HTTP surface the console UI talks to. It
// serves snapshots of the chat state over REST, accepts commands (focus,
// mark-as-read, send, compose actions) and streams bus events to the
// browser over a websocket.
package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/zapdesk/console/internal/bus"
	"github.com/zapdesk/console/internal/cache"
	"github.com/zapdesk/console/internal/chat"
	"github.com/zapdesk/console/internal/config"
	"github.com/zapdesk/console/internal/outbox"
	"github.com/zapdesk/console/internal/platform"
	"github.com/zapdesk/console/internal/status"
)

// Backend is the slice of the REST client the gateway needs: commands that
// must reach the platform, not just local state.
type Backend interface {
	MarkRead(ctx context.Context, key chat.ConvKey) error
}

// Server handles UI requests.
type Server struct {
	cfg      config.Gateway
	state    *chat.State
	machine  *status.Machine
	backend  Backend
	sender   *outbox.Sender
	db       *cache.DB
	bus      *bus.Bus
	identity *platform.Identity
	logger   *zap.Logger

	compose *composeStore

	http *http.Server
}

// New creates a gateway server. db may be nil (cache disabled).
func New(cfg config.Gateway, state *chat.State, machine *status.Machine, backend Backend, sender *outbox.Sender, db *cache.DB, b *bus.Bus, identity *platform.Identity, logger *zap.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		state:    state,
		machine:  machine,
		backend:  backend,
		sender:   sender,
		db:       db,
		bus:      b,
		identity: identity,
		logger:   logger,
		compose:  newComposeStore(),
	}
	s.http = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/api/session", s.handleSession)
	r.Get("/api/chats", s.handleListChats)
	r.Post("/api/focus", s.handleFocus)
	r.Delete("/api/focus", s.handleBlur)

	r.Route("/api/chats/{kind}/{id}", func(r chi.Router) {
		r.Get("/messages", s.handleListMessages)
		r.Post("/messages", s.handleSend)
		r.Post("/read", s.handleMarkRead)
		r.Post("/compose", s.handleCompose)
		r.Get("/compose", s.handleComposeGet)
	})

	r.Get("/ws", s.handleWS)
	return r
}

// Start begins serving. It returns once the listener is bound; the accept
// loop runs in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	s.logger.Info("gateway listening", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("gateway stopped", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type chatJSON struct {
	Kind        chat.Kind    `json:"kind"`
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Unread      bool         `json:"unread"`
	LastMessage *messageJSON `json:"lastMessage"`
}

type messageJSON struct {
	ID        string           `json:"id"`
	Sender    string           `json:"sender"`
	Body      string           `json:"body"`
	Type      chat.MessageType `json:"type"`
	Status    chat.Status      `json:"status"`
	Timestamp int64            `json:"timestamp"`
	Edited    bool             `json:"edited"`
}

func toMessageJSON(m chat.Message) *messageJSON {
	return &messageJSON{
		ID:        m.ID,
		Sender:    m.Sender,
		Body:      m.Body,
		Type:      m.Type,
		Status:    m.Status,
		Timestamp: m.Timestamp,
		Edited:    m.Edited,
	}
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Status     status.State `json:"status"`
		UserID     int64        `json:"userId"`
		InstanceID string       `json:"instanceId"`
	}{Status: s.machine.Current()}
	if s.identity != nil {
		resp.UserID = s.identity.UserID
		resp.InstanceID = s.identity.InstanceID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats := s.state.Chats()
	out := make([]chatJSON, 0, len(chats))
	for _, c := range chats {
		cj := chatJSON{Kind: c.Key.Kind, ID: c.Key.ID, Name: c.Name, Unread: c.Unread}
		if c.LastMessage != nil {
			cj.LastMessage = toMessageJSON(*c.LastMessage)
		}
		out = append(out, cj)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	key, ok := s.convKey(w, r)
	if !ok {
		return
	}
	msgs := s.state.Messages(key)
	out := make([]*messageJSON, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageJSON(m))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleFocus marks a conversation as the one on screen. Focus suppresses
// unread flags and notifications for that conversation only.
func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind string `json:"kind"`
		ID   int64  `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "bad request body")
		return
	}
	kind, err := chat.ParseKind(req.Kind)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	key := chat.ConvKey{Kind: kind, ID: req.ID}
	if !key.Valid() {
		httpError(w, http.StatusBadRequest, "invalid conversation")
		return
	}
	s.state.Focus(key)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBlur(w http.ResponseWriter, r *http.Request) {
	s.state.Blur()
	w.WriteHeader(http.StatusNoContent)
}

// handleMarkRead clears the unread flag locally and tells the backend. The
// key comes from the URL and is fixed before any await point, so the
// response applies to this conversation no matter where focus moved in the
// meantime.
func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	key, ok := s.convKey(w, r)
	if !ok {
		return
	}
	if err := s.backend.MarkRead(r.Context(), key); err != nil {
		s.logger.Warn("backend mark-read failed", zap.String("conv", key.String()), zap.Error(err))
		httpError(w, http.StatusBadGateway, "backend unavailable")
		return
	}
	s.state.MarkRead(key)
	if s.db != nil {
		if err := s.db.MarkChatRead(key); err != nil {
			s.logger.Warn("cache mark-read failed", zap.Error(err))
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	key, ok := s.convKey(w, r)
	if !ok {
		return
	}
	var req struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Body == "" {
		httpError(w, http.StatusBadRequest, "missing message body")
		return
	}
	clientID, err := s.sender.Queue(key, req.Body)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	// The compose box empties the moment the send is accepted.
	s.compose.Reset(key)
	writeJSON(w, http.StatusAccepted, map[string]string{"clientMsgId": clientID})
}

func (s *Server) convKey(w http.ResponseWriter, r *http.Request) (chat.ConvKey, bool) {
	kind, err := chat.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return chat.ConvKey{}, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, "bad conversation id")
		return chat.ConvKey{}, false
	}
	key := chat.ConvKey{Kind: kind, ID: id}
	if !key.Valid() {
		httpError(w, http.StatusBadRequest, "invalid conversation")
		return chat.ConvKey{}, false
	}
	return key, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
