package api

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/banshee-data/emgfes/internal/db"
	"github.com/banshee-data/emgfes/internal/httputil"
	"github.com/banshee-data/emgfes/internal/monitor"
)

const (
	defaultSessionLimit = 50
	maxSessionLimit     = 500
)

// archive returns the session archive, writing a 503 when it is disabled.
func (s *Server) archive(w http.ResponseWriter) (*db.DB, bool) {
	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "session archive disabled")
		return nil, false
	}
	return s.db, true
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	archive, ok := s.archive(w)
	if !ok {
		return
	}

	limit := defaultSessionLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > maxSessionLimit {
			httputil.WriteJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	sessions, err := archive.ListSessions(limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if sessions == nil {
		sessions = []db.SessionSummary{}
	}
	httputil.WriteJSON(w, http.StatusOK, sessions)
}

func (s *Server) showSession(w http.ResponseWriter, r *http.Request) {
	archive, ok := s.archive(w)
	if !ok {
		return
	}
	summary, err := archive.GetSession(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	archive, ok := s.archive(w)
	if !ok {
		return
	}
	if err := archive.DeleteSession(r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// showTimeline renders the archived label stream of one session as an
// HTML chart page.
func (s *Server) showTimeline(w http.ResponseWriter, r *http.Request) {
	archive, ok := s.archive(w)
	if !ok {
		return
	}
	id := r.PathValue("id")
	summary, err := archive.GetSession(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	points, err := archive.SessionTimeline(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var names []string
	if s.table != nil {
		for _, l := range s.table.Labels() {
			names = append(names, l.Name)
		}
	}

	// render fully before writing so a failure can still be reported
	var buf bytes.Buffer
	if err := monitor.RenderTimeline(&buf, summary, points, names); err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}
