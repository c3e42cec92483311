package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"reels/internal/feed"
	"reels/internal/logging"
	"reels/internal/metrics"
	"reels/internal/service"
	"reels/internal/session"
)

// Server exposes one headless feed controller over HTTP
type Server struct {
	svc     *service.ReelService
	router  *http.ServeMux
	hub     *hub
	handler http.Handler
}

// Headless is the scroller used without a viewport: a scroll target is centered at once.
type Headless struct {
	Ctrl *session.Controller
}

func (h *Headless) ScrollTo(_ int, itemID string) {
	if h.Ctrl == nil {
		return
	}
	if cur, _, ok := h.Ctrl.Current(); ok && cur.ID == itemID {
		return
	}
	h.Ctrl.OnViewportCentered(itemID)
}

// New creates a new web server. reg may be nil for a private registry.
func New(svc *service.ReelService, reg *prometheus.Registry) *Server {
	if reg == nil {
		reg = prometheus.NewRegistry()
		metrics.Register(reg)
		reg.MustRegister(collectors.NewGoCollector())
	}
	s := &Server{
		svc:    svc,
		router: http.NewServeMux(),
		hub:    newHub(),
	}
	svc.Controller().Subscribe(s.hub)
	s.setupRoutes(reg)

	var h http.Handler = s.router
	h = rateLimitMiddleware(50, 100, h)
	h = metricsMiddleware(h)
	h = recoveryMiddleware(h)
	s.handler = otelhttp.NewHandler(h, "reels",
		otelhttp.WithFilter(func(r *http.Request) bool { return r.URL.Path != "/metrics" }),
	)
	return s
}

func (s *Server) setupRoutes(reg *prometheus.Registry) {
	s.router.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	s.router.HandleFunc("GET /ws", s.hub.serveWS)

	s.router.HandleFunc("GET /api/status", s.handleStatus)
	s.router.HandleFunc("GET /api/feed", s.handleFeed)
	s.router.HandleFunc("POST /api/feed/more", s.handleFeedMore)

	s.router.HandleFunc("GET /api/session", s.handleSession)
	s.router.HandleFunc("POST /api/session/open", s.handleOpen)
	s.router.HandleFunc("POST /api/session/close", s.handleClose)
	s.router.HandleFunc("POST /api/session/navigate", s.handleNavigate)
	s.router.HandleFunc("POST /api/session/centered", s.handleCentered)
	s.router.HandleFunc("POST /api/session/left", s.handleLeft)
	s.router.HandleFunc("POST /api/session/mute", s.handleMute)
	s.router.HandleFunc("POST /api/session/toggle", s.handleToggle)
	s.router.HandleFunc("POST /api/session/seek", s.handleSeek)
	s.router.HandleFunc("POST /api/session/download", s.handleDownload)
	s.router.HandleFunc("POST /api/session/share", s.handleShare)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Run serves on addr until ctx is cancelled, then shuts down and closes the session.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.hub.run()
		return nil
	})
	g.Go(func() error {
		fmt.Printf("Web server starting on http://%s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.hub.Close()
		s.svc.Close()
		return err
	})
	return g.Wait()
}

// ==================== Feed Handlers ====================

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]interface{}{
		"mpvAvailable": s.svc.MPVAvailable(),
		"open":         s.svc.Controller().IsOpen(),
		"loaded":       len(s.svc.Controller().Feed()),
	})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.svc.Feed())
}

func (s *Server) handleFeedMore(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.LoadMore(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, v)
}

// ==================== Session Handlers ====================

type itemRequest struct {
	ID string `json:"id"`
}

type navigateRequest struct {
	Direction string `json:"direction"`
}

type seekRequest struct {
	Percent float64 `json:"percent"`
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.svc.Session())
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !decode(w, r, &req) {
		return
	}
	v, err := s.svc.Open(r.Context(), req.ID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, v)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	s.svc.Close()
	respondJSON(w, map[string]bool{"success": true})
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if !decode(w, r, &req) {
		return
	}
	dir, err := service.ParseDirection(req.Direction)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.svc.Controller().IsOpen() {
		respondErr(w, session.ErrClosed)
		return
	}
	respondJSON(w, s.svc.Navigate(dir))
}

func (s *Server) handleCentered(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !decode(w, r, &req) {
		return
	}
	s.svc.Centered(req.ID)
	respondJSON(w, s.svc.Session())
}

func (s *Server) handleLeft(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !decode(w, r, &req) {
		return
	}
	s.svc.Left(req.ID)
	respondJSON(w, map[string]bool{"success": true})
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]bool{"muted": s.svc.ToggleMute()})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.TogglePlayback(); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, map[string]bool{"success": true})
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.svc.Seek(req.Percent); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, map[string]bool{"success": true})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !decode(w, r, &req) {
		return
	}
	d, err := s.svc.Download(req.ID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, d)
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.svc.Share(req.ID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, res)
}

// ==================== Helpers ====================

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func respondErr(w http.ResponseWriter, err error) {
	var notFound *feed.ItemNotFoundError
	var fetchErr *feed.FetchError
	code := http.StatusInternalServerError
	switch {
	case errors.As(err, &notFound):
		code = http.StatusNotFound
	case errors.Is(err, session.ErrClosed), errors.Is(err, session.ErrNotRealized):
		code = http.StatusConflict
	case errors.Is(err, session.ErrNoDownload), errors.Is(err, service.ErrNoShareLink):
		code = http.StatusNotImplemented
	case errors.As(err, &fetchErr):
		code = http.StatusBadGateway
	}
	if code == http.StatusInternalServerError {
		logging.Error("request failed", "err", err)
	}
	respondError(w, code, err.Error())
}
