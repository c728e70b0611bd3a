package status

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cyclopcam/bfvos/pkg/lossplot"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

// Server exposes a Tracker over HTTP:
//
//	GET /status      Progress as JSON
//	GET /losses      Loss reports as JSON
//	GET /losses.png  Loss curves (optional query parameters width and height)
type Server struct {
	Log     logs.Log
	tracker *Tracker
	router  *httprouter.Router
	server  *http.Server
}

func NewServer(log logs.Log, tracker *Tracker) *Server {
	s := &Server{
		Log:     log,
		tracker: tracker,
	}
	router := httprouter.New()
	router.GET("/status", s.httpStatus)
	router.GET("/losses", s.httpLosses)
	router.GET("/losses.png", s.httpLossPlot)
	s.router = router
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled. addr example: ":8080"
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler: s.router,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()
	s.Log.Infof("Status server listening on %v", ln.Addr())
	err := s.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) httpStatus(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	p := s.tracker.Progress()
	www.SendJSON(w, &p)
}

func (s *Server) httpLosses(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.tracker.Losses())
}

func (s *Server) httpLossPlot(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	width := queryIntDefault(r, "width", 640)
	height := queryIntDefault(r, "height", 360)
	if width > 4096 || height > 4096 {
		http.Error(w, "Plot too large", http.StatusBadRequest)
		return
	}
	buf := bytes.Buffer{}
	if err := lossplot.WritePNG(&buf, s.tracker.Losses(), width, height); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(buf.Bytes())
}

func queryIntDefault(r *http.Request, name string, defaultValue int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return defaultValue
	}
	return v
}
