package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lewisedginton/npc_registry/internal/identity_store"
	"github.com/lewisedginton/npc_registry/internal/turn"
	"github.com/lewisedginton/npc_registry/pkg/logger"
	"github.com/lewisedginton/npc_registry/pkg/prefixed_uuid"
)

type errorResponse struct {
	Error string `json:"error"`
}

type npcListResponse struct {
	Session string                  `json:"session"`
	Count   int                     `json:"count"`
	NPCs    []identity_store.Entity `json:"npcs"`
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("Failed to encode response", logger.ErrorField(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, code int, err error) {
	if code >= http.StatusInternalServerError {
		logger.FromContext(r.Context(), s.log).Error("Request failed",
			logger.StringField("path", r.URL.Path), logger.ErrorField(err))
	}
	s.writeJSON(w, code, errorResponse{Error: err.Error()})
}

// sessionParam returns the unescaped session id from the route.
func sessionParam(r *http.Request) string {
	return pathParam(r, "sessionID")
}

func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func readBody(r *http.Request) ([]byte, error) {
	defer func() { _ = r.Body.Close() }()
	return io.ReadAll(r.Body)
}

func (s *Server) postTurn(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, r, http.StatusRequestEntityTooLarge, err)
		return
	}
	messageID := strings.TrimSpace(r.URL.Query().Get("messageId"))
	if messageID == "" {
		messageID = prefixed_uuid.New("turn").String()
	}

	report, err := s.proc.ProcessTurn(r.Context(), turn.TurnInput{
		SessionID: sessionParam(r),
		MessageID: messageID,
		Payload:   body,
		Source:    "http",
	})
	switch {
	case errors.Is(err, turn.ErrInvalidPayload):
		s.writeError(w, r, http.StatusBadRequest, err)
	case err != nil:
		s.writeError(w, r, http.StatusInternalServerError, err)
	default:
		s.writeJSON(w, http.StatusOK, report)
	}
}

func (s *Server) listNPCs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := identity_store.SearchOptions{
		Query:     q.Get("query"),
		SortBy:    identity_store.ParseSortKey(q.Get("sort")),
		Ascending: strings.EqualFold(q.Get("order"), "asc"),
	}
	session := sessionParam(r)
	npcs, err := s.proc.Search(r.Context(), session, opts)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, npcListResponse{Session: session, Count: len(npcs), NPCs: npcs})
}

func (s *Server) getNPC(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "npcID")
	npc, ok, err := s.proc.Get(r.Context(), sessionParam(r), id)
	switch {
	case err != nil:
		s.writeError(w, r, http.StatusInternalServerError, err)
	case !ok:
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "npc " + id + " not found"})
	default:
		s.writeJSON(w, http.StatusOK, npc)
	}
}

func (s *Server) deleteNPC(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "npcID")
	deleted, err := s.proc.Delete(r.Context(), sessionParam(r), id)
	switch {
	case err != nil:
		s.writeError(w, r, http.StatusInternalServerError, err)
	case !deleted:
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "npc " + id + " not found"})
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) exportDocument(w http.ResponseWriter, r *http.Request) {
	data, err := s.proc.Export(r.Context(), sessionParam(r))
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) importDocument(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, r, http.StatusRequestEntityTooLarge, err)
		return
	}
	n, err := s.proc.Import(r.Context(), sessionParam(r), body)
	switch {
	case errors.Is(err, identity_store.ErrInvalidDocument):
		s.writeError(w, r, http.StatusBadRequest, err)
	case err != nil:
		s.writeError(w, r, http.StatusInternalServerError, err)
	default:
		s.writeJSON(w, http.StatusOK, map[string]int{"imported": n})
	}
}

func (s *Server) cleanup(w http.ResponseWriter, r *http.Request) {
	n, err := s.proc.Cleanup(r.Context(), sessionParam(r))
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"sessions": s.sessions.ListSessions(r.Context())})
}
