package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/qqres/config"
	"github.com/xeptore/qqres/errutil"
	"github.com/xeptore/qqres/log"
	"github.com/xeptore/qqres/qqmusic"
	"github.com/xeptore/qqres/qqmusic/resolver"
)

type Resolver interface {
	Match(uri string) qqmusic.MatchCertainty
	ResolveFromURI(ctx context.Context, uri string) (*qqmusic.Resolution, error)
	ResolveFromID(ctx context.Context, id, title string) (*qqmusic.Resolution, error)
	RestoreLink(id string) string
	Search(ctx context.Context, keyword string) ([]qqmusic.SearchResult, error)
}

type Server struct {
	resolver Resolver
	logger   zerolog.Logger
	handler  http.Handler
	server   *http.Server
}

// New wires the routes. Metrics are served from gatherer, so the caller
// decides which registry is exposed.
func New(cfg config.Server, r Resolver, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	s := &Server{
		resolver: r,
		logger:   logger,
		handler:  nil,
		server:   nil,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /resolve", s.resolve)
	mux.HandleFunc("GET /search", s.search)
	mux.HandleFunc("GET /match", s.match)
	mux.HandleFunc("GET /restore", s.restore)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})) //nolint:exhaustruct
	s.handler = s.recoverer(mux)

	//nolint:exhaustruct
	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx ends. In-flight requests keep running for
// config.ShutdownGracePeriod after that, then their contexts are canceled.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	baseCtx, cancelBase := afterGrace(ctx, config.ShutdownGracePeriod)
	defer cancelBase()
	s.server.BaseContext = func(net.Listener) context.Context { return baseCtx }

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("Shutting down HTTP server")

		shutdownCtx, cancel := afterGrace(ctx, config.ShutdownGracePeriod)
		defer cancel()
		shutdownErr <- s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("address", s.server.Addr).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		flawP := flaw.P{"address": s.server.Addr, "err_debug_tree": errutil.Tree(err).FlawP()}
		return flaw.From(fmt.Errorf("http server failed: %v", err)).Append(flawP)
	}

	if err := <-shutdownErr; nil != err {
		if errutil.IsContextErr(err) {
			s.logger.Warn().Msg("HTTP server grace period ended before all requests completed")
			return nil
		}
		flawP := flaw.P{"err_debug_tree": errutil.Tree(err).FlawP()}
		return flaw.From(fmt.Errorf("failed to shut down http server gracefully: %v", err)).Append(flawP)
	}
	return nil
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() {
			if thing := recover(); nil != thing {
				s.logger.Error().Func(log.Panic(thing)).Str("path", r.URL.Path).Msg("Recovered from handler panic")
				s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errorBody{Kind: "internal", Detail: "", CookieStatus: ""}})
			}
			s.logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("elapsed", time.Since(start)).Msg("Handled request")
		}()
		next.ServeHTTP(w, r)
	})
}

type resolveResponse struct {
	URL   string `json:"url"`
	ID    string `json:"id"`
	Title string `json:"title"`
}

type searchResult struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type errorBody struct {
	Kind         string `json:"kind"`
	Detail       string `json:"detail,omitempty"`
	CookieStatus string `json:"cookie_status,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "qqres"})
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		res *qqmusic.Resolution
		err error
	)
	switch uri, id := q.Get("uri"), q.Get("id"); {
	case uri != "":
		res, err = s.resolver.ResolveFromURI(r.Context(), uri)
	case id != "":
		res, err = s.resolver.ResolveFromID(r.Context(), id, q.Get("title"))
	default:
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: errorBody{Kind: resolver.KindInvalidID.String(), Detail: "uri or id query parameter is required", CookieStatus: ""}})
		return
	}
	if nil != err {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resolveResponse{URL: res.URL, ID: res.SongMID, Title: res.Title})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	results, err := s.resolver.Search(r.Context(), r.URL.Query().Get("q"))
	if nil != err {
		s.writeFailure(w, err)
		return
	}

	out := searchResponse{Results: make([]searchResult, len(results))}
	for i, v := range results {
		out.Results[i] = searchResult{ID: v.SongMID, Title: v.Title}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) match(w http.ResponseWriter, r *http.Request) {
	certainty := s.resolver.Match(r.URL.Query().Get("uri"))
	s.writeJSON(w, http.StatusOK, map[string]string{"certainty": certainty.String()})
}

func (s *Server) restore(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: errorBody{Kind: resolver.KindInvalidID.String(), Detail: "id query parameter is required", CookieStatus: ""}})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"link": s.resolver.RestoreLink(id)})
}

func statusOf(kind resolver.Kind) int {
	switch kind {
	case resolver.KindDisabled:
		return http.StatusServiceUnavailable
	case resolver.KindInvalidID:
		return http.StatusBadRequest
	case resolver.KindEmptyPlayableURL:
		return http.StatusNotFound
	case resolver.KindTransport:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	f, ok := resolver.AsFailure(err)
	if !ok {
		s.logger.Error().Func(log.Flaw(err)).Msg("Resolver returned an unclassified error")
		s.writeJSON(w, http.StatusBadGateway, errorResponse{Error: errorBody{Kind: "internal", Detail: "", CookieStatus: ""}})
		return
	}

	body := errorBody{Kind: f.Kind.String(), Detail: f.Detail, CookieStatus: f.CookieStatus}
	if body.Detail == "" {
		body.Detail = f.Error()
	}
	s.writeJSON(w, statusOf(f.Kind), errorResponse{Error: body})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if nil != err {
		flawP := flaw.P{"err_debug_tree": errutil.Tree(err).FlawP()}
		s.logger.Error().Func(log.Flaw(flaw.From(fmt.Errorf("failed to encode response: %v", err)).Append(flawP))).Msg("Failed to encode response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(b); nil != err {
		s.logger.Debug().Err(err).Msg("Failed to write response")
	}
}
