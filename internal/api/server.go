// Package api exposes the acquisition controller, the session archive and a
// live event stream over HTTP.
package api

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/emgfes/internal/acquisition"
	"github.com/banshee-data/emgfes/internal/classifier"
	"github.com/banshee-data/emgfes/internal/db"
	"github.com/banshee-data/emgfes/internal/httputil"
	"github.com/banshee-data/emgfes/internal/serialmux"
	"github.com/banshee-data/emgfes/internal/session"
	"github.com/banshee-data/emgfes/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// PortStatter reports traffic on a serial port.
type PortStatter interface {
	Stats() serialmux.PortStats
}

// Options wires a Server. DB and Ports are optional.
type Options struct {
	Controller  *acquisition.Controller
	DB          *db.DB
	Table       *classifier.Table
	Channels    int
	SessionsDir string
	Ports       []PortStatter
	// ListPorts enumerates serial devices; defaults to the OS list.
	ListPorts func() ([]string, error)
	Now       func() time.Time
}

type Server struct {
	ctrl        *acquisition.Controller
	db          *db.DB
	table       *classifier.Table
	channels    int
	sessionsDir string
	ports       []PortStatter
	listPorts   func() ([]string, error)
	now         func() time.Time
}

func NewServer(o Options) *Server {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.ListPorts == nil {
		o.ListPorts = listSerialPorts
	}
	return &Server{
		ctrl:        o.Controller,
		db:          o.DB,
		table:       o.Table,
		channels:    o.Channels,
		sessionsDir: o.SessionsDir,
		ports:       o.Ports,
		listPorts:   o.ListPorts,
		now:         o.Now,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack lets the websocket upgrader take over the connection.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	lrw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.showStatus)
	mux.HandleFunc("GET /api/version", s.showVersion)
	mux.HandleFunc("GET /api/events", s.streamEvents)
	mux.HandleFunc("GET /api/serial/devices", s.listSerialDevices)

	mux.HandleFunc("POST /api/start", s.start)
	mux.HandleFunc("POST /api/stop", s.stop)
	mux.HandleFunc("POST /api/save", s.save)
	mux.HandleFunc("POST /api/discard", s.discard)
	mux.HandleFunc("POST /api/replay", s.replay)
	mux.HandleFunc("DELETE /api/replay", s.cancelReplay)

	mux.HandleFunc("GET /api/sessions", s.listSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.showSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.deleteSession)
	mux.HandleFunc("GET /api/sessions/{id}/timeline", s.showTimeline)
	return mux
}

// writeError maps the package sentinels onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	httputil.WriteJSONError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, acquisition.ErrBusy),
		errors.Is(err, acquisition.ErrAlreadyRunning),
		errors.Is(err, acquisition.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, acquisition.ErrNotConfirmed):
		return http.StatusPreconditionFailed
	case errors.Is(err, session.ErrEmpty),
		errors.Is(err, session.ErrPath),
		errors.Is(err, session.ErrFormat):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrSessionNotFound),
		errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type statusResponse struct {
	acquisition.Status
	Version       version.Info          `json:"version"`
	Ports         []serialmux.PortStats `json:"ports"`
	Subscribers   int                   `json:"subscribers"`
	DroppedEvents uint64                `json:"dropped_events"`
	Archive       bool                  `json:"archive"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	hub := s.ctrl.Hub()
	resp := statusResponse{
		Status:        s.ctrl.Status(),
		Version:       version.Current(),
		Ports:         []serialmux.PortStats{},
		Subscribers:   hub.Subscribers(),
		DroppedEvents: hub.Dropped(),
		Archive:       s.db != nil,
	}
	for _, p := range s.ports {
		resp.Ports = append(resp.Ports, p.Stats())
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, version.Current())
}
