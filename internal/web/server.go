// Package web provides an HTTP status server for the warning-panel daemon.
package web

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/sweeney/warning-panel/internal/panel"
	"github.com/sweeney/warning-panel/internal/status"
	"go.uber.org/zap"
)

// Controller accepts operator test commands. *panel.Panel satisfies it.
type Controller interface {
	Signal(ids ...panel.ChannelID)
	EndSignal(ids ...panel.ChannelID)
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	ctl        Controller
	log        *zap.Logger
}

// New creates a Server that reads state from the given tracker. A nil ctl
// disables the channel control endpoints.
func New(addr string, tracker *status.Tracker, ctl Controller, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{tracker: tracker, ctl: ctl, log: log.Named("web")}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("POST /channels/{id}/signal", s.handleControl(true))
	mux.HandleFunc("POST /channels/{id}/end-signal", s.handleControl(false))

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.log.Error("render index", zap.Error(err))
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleControl(signal bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.ctl == nil {
			http.Error(w, "control disabled", http.StatusNotFound)
			return
		}
		id, err := strconv.Atoi(r.PathValue("id"))
		if err != nil || id <= 0 {
			http.Error(w, "bad channel id", http.StatusBadRequest)
			return
		}

		ch := panel.ChannelID(id)
		if signal {
			s.ctl.Signal(ch)
		} else {
			s.ctl.EndSignal(ch)
		}
		s.log.Info("operator command", zap.Int("channel", id), zap.Bool("signal", signal), zap.String("remote", r.RemoteAddr))
		w.WriteHeader(http.StatusAccepted)
	}
}
