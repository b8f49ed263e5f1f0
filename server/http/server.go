// Package http serves the room occupancy API, the static browser client and
// prometheus metrics.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vchub/relay/model"
)

const (
	defaultShutdownDeadline = 10 * time.Second
	defaultStatusDeadline   = 2 * time.Second

	// Landing page for clients without the UI: the codec API this hub is
	// built around.
	specURL = "https://www.w3.org/TR/webcodecs/"
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type RoomService interface {
	RoomOccupancy(ctx context.Context) ([]model.RoomStatus, error)
}

type GenericResponse struct {
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type Server struct {
	logger zerolog.Logger
	svc    RoomService
	*http.Server
}

type Config struct {
	Logger      *zerolog.Logger
	RoomService RoomService
	ListenAddr  string
	StaticDir   string
}

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger: cfg.Logger.With().Str("component", "api-server").Logger(),
		svc:    cfg.RoomService,
	}

	r := http.NewServeMux()
	r.HandleFunc("GET /api/rooms", srv.listRooms)
	r.Handle("GET /metrics", promhttp.Handler())
	r.HandleFunc("GET /{$}", redirectToSpec)
	if cfg.StaticDir != "" {
		r.Handle("GET /vc/", http.StripPrefix("/vc/", http.FileServer(http.Dir(cfg.StaticDir))))
	}

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: noCache(r),
	}
	return srv
}

// noCache prevents clients from caching the evolving client assets.
func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		next.ServeHTTP(w, r)
	})
}

func redirectToSpec(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, specURL, http.StatusPermanentRedirect)
}

func (srv *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), defaultStatusDeadline)
	defer cancel()

	statuses, err := srv.svc.RoomOccupancy(ctx)
	if err != nil {
		srv.logger.Error().Err(err).Msg("failed to collect room occupancy")
		b, errJ := json.Marshal(&GenericResponse{Error: err.Error()})
		if errJ != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeBytes(w, http.StatusInternalServerError, b)
		return
	}

	b, err := json.Marshal(&GenericResponse{Data: statuses})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeBytes(w, http.StatusOK, b)
}

func writeBytes(w http.ResponseWriter, code int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(code)
	if _, err := w.Write(b); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	hErr := make(chan error)
	go func() {
		hErr <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-hErr:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}
