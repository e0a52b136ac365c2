package api

import (
	"fmt"
	"log"
	"net/http"

	"github.com/banshee-data/emgfes/internal/httputil"
	"github.com/banshee-data/emgfes/internal/session"
)

type startRequest struct {
	// Confirm acknowledges that electrodes are placed; stimulation starts
	// as soon as the first window is classified.
	Confirm bool `json:"confirm"`
}

type fileRequest struct {
	Name string `json:"name"`
}

type saveResponse struct {
	Path      string `json:"path"`
	Records   int    `json:"records"`
	SessionID string `json:"session_id,omitempty"`
	// ArchiveError is set when the CSV was written but archiving failed.
	ArchiveError string `json:"archive_error,omitempty"`
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.ctrl.Start(req.Confirm); err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Stop(); err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) save(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	path, err := session.ResolvePath(s.sessionsDir, req.Name, s.now())
	if err != nil {
		s.writeError(w, err)
		return
	}
	records, err := s.ctrl.Save(path)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := saveResponse{Path: path, Records: len(records)}
	if s.db != nil {
		// The CSV is already on disk, so a failed archive is reported but
		// does not fail the save.
		id, err := s.db.ArchiveSession(path, s.channels, records)
		if err != nil {
			log.Printf("api: failed to archive session %s: %v", path, err)
			resp.ArchiveError = err.Error()
		} else {
			resp.SessionID = id
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) discard(w http.ResponseWriter, r *http.Request) {
	n, err := s.ctrl.Discard()
	if err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"discarded": n})
}

func (s *Server) replay(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" {
		httputil.WriteJSONError(w, http.StatusBadRequest, "missing session file name")
		return
	}
	path, err := session.ResolvePath(s.sessionsDir, req.Name, s.now())
	if err != nil {
		s.writeError(w, err)
		return
	}
	rows, err := session.ReadFile(path)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(rows) == 0 {
		httputil.WriteJSONError(w, http.StatusBadRequest, fmt.Sprintf("%s has no rows to replay", req.Name))
		return
	}
	if err := s.ctrl.Replay(session.Labels(rows)); err != nil {
		s.writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]interface{}{"path": path, "labels": len(rows)})
}

func (s *Server) cancelReplay(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.CancelReplay(); err != nil {
		httputil.WriteJSONError(w, http.StatusConflict, "no replay in progress")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.ctrl.Status())
}
