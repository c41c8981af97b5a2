// Package httpapi exposes the announcer over a small JSON HTTP surface,
// intended for localhost automation next to the WhatsApp bot.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/user/wa-announcer/internal/ai"
	"github.com/user/wa-announcer/internal/config"
	"github.com/user/wa-announcer/internal/dispatch"
	. "github.com/user/wa-announcer/internal/logging"
	"github.com/user/wa-announcer/internal/store"
)

// Server is the announcer's HTTP API.
type Server struct {
	cfg        config.APIConfig
	store      *store.Store
	formatter  ai.Formatter
	dispatcher *dispatch.Dispatcher
	resolver   *dispatch.Resolver
	session    dispatch.ChatSession

	httpServer *http.Server
}

// NewServer builds the API server; call Start to begin listening.
func NewServer(cfg config.APIConfig, st *store.Store, formatter ai.Formatter, dispatcher *dispatch.Dispatcher, resolver *dispatch.Resolver, session dispatch.ChatSession) *Server {
	s := &Server{
		cfg:        cfg,
		store:      st,
		formatter:  formatter,
		dispatcher: dispatcher,
		resolver:   resolver,
		session:    session,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/groups", s.handleListGroups)
	mux.HandleFunc("GET /api/contacts", s.handleListContacts)
	mux.HandleFunc("POST /api/announcements", s.handleCreateAnnouncement)
	mux.HandleFunc("GET /api/announcements", s.handleListAnnouncements)
	mux.HandleFunc("GET /api/announcements/{id}/history", s.handleHistory)
	mux.HandleFunc("POST /api/send/group", s.handleSendGroup)
	mux.HandleFunc("POST /api/send/personal", s.handleSendPersonal)
	mux.HandleFunc("POST /api/broadcast", s.handleBroadcast)

	s.httpServer = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.auth(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start listens in the background and returns immediately.
func (s *Server) Start() {
	go func() {
		L_info("api: listening", "addr", s.cfg.Listen)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			L_error("api: server stopped", "error", err)
		}
	}()
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		L_warn("api: shutdown error", "error", err)
	}
}

// auth checks the static API key when one is configured. Without a key the
// API is open, which only makes sense on a loopback listen address.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" {
			key := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.APIKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		L_warn("api: failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
