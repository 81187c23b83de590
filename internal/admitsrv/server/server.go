// Package server wires the admission service HTTP surface: router, middleware,
// CORS, API version gating, and the system endpoints. The handlers themselves
// live in the apis package.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/admitd/admitd/internal/admitsrv/apis"
	"github.com/admitd/admitd/internal/admitsrv/config"
	"github.com/admitd/admitd/internal/admitsrv/scanner"
	"github.com/admitd/admitd/internal/common/httpx"
	"github.com/admitd/admitd/internal/common/logtrace"
	"github.com/admitd/admitd/internal/common/middleware"
)

// requestTimeout bounds request handling end to end.
const requestTimeout = 30 * time.Second

// AdmitServer is the admission service HTTP server.
type AdmitServer struct {
	Router *chi.Mux
	api    *apis.API
	ready  func(ctx context.Context) error
}

// CreateNewServer creates a server around the bound API. The ready function is
// consulted by the readiness endpoint; nil means always ready.
func CreateNewServer(api *apis.API, ready func(ctx context.Context) error) (*AdmitServer, error) {
	if api == nil {
		return nil, fmt.Errorf("api is required")
	}
	s := &AdmitServer{
		Router: chi.NewRouter(),
		api:    api,
		ready:  ready,
	}
	return s, nil
}

// MountHandlers sets up middleware and registers all routes.
func (s *AdmitServer) MountHandlers() {
	s.Router.Use(middleware.RequestLogger)
	s.Router.Use(middleware.PanicHandler)
	s.Router.Use(middleware.SetTimeout(requestTimeout))
	if config.Config().HandleCORS {
		s.Router.Use(s.HandleCORS)
	}
	s.Router.Use(VersionCheck)

	s.api.Router(s.Router)
	s.Router.Get("/version", s.getVersion)
	s.Router.Get("/ready", s.getReadiness)

	if logtrace.IsTraceEnabled() {
		fmt.Println("Routes in admitd router")
		walkFunc := func(method string, route string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) error {
			fmt.Printf("%s %s\n", method, route)
			return nil
		}
		if err := chi.Walk(s.Router, walkFunc); err != nil {
			log.Error().Err(err).Msg("error walking router")
		}
	}
}

// GetVersionRsp is the version endpoint response.
type GetVersionRsp struct {
	ServerVersion string `json:"serverVersion"`
	ApiVersion    string `json:"apiVersion"`
}

func (s *AdmitServer) getVersion(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Debug().Msg("GetVersion")
	rsp := &GetVersionRsp{
		ServerVersion: "admitd: " + ServerVersion,
		ApiVersion:    ApiVersion,
	}
	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, rsp)
}

func (s *AdmitServer) getReadiness(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Debug().Msg("readiness check")
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			log.Ctx(r.Context()).Error().Err(err).Msg("readiness check failed")
			httpx.SendJsonRsp(r.Context(), w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
			})
			return
		}
	}
	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// HandleCORS provides CORS middleware for browser-based organizer dashboards.
func (s *AdmitServer) HandleCORS(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "Accept-Encoding", ApiVersionHeader},
		ExposedHeaders:   []string{"Link", "Location", "X-Admit-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	})(next)
}

// StartTokenSweep runs the registration token sweeper until ctx is canceled.
// The sweep is hygiene only; a missed run never affects correctness because
// expired tokens are rejected at resolution time.
func StartTokenSweep(ctx context.Context, authority *scanner.Authority, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := authority.SweepExpiredTokens(ctx)
				if err != nil {
					log.Ctx(ctx).Error().Err(err).Msg("registration token sweep failed")
					continue
				}
				if deleted > 0 {
					log.Ctx(ctx).Info().Int64("deleted", deleted).Msg("swept expired registration tokens")
				}
			}
		}
	}()
}
