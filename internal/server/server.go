// Package server exposes the retrieval service over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"docqa/internal/domain"
	"docqa/internal/logger"
	"docqa/internal/search"
	"docqa/internal/service"
)

// NoMatchMessage is returned when a corpus holds no document to answer from.
const NoMatchMessage = "No relevant document found."

// Service is the part of the retrieval service the API needs.
type Service interface {
	Corpora() []service.Corpus
	Ask(ctx context.Context, corpus, question string) (*service.Answer, error)
	Retrieve(ctx context.Context, corpus, question string) (*search.Match, error)
	PromptRoutes() []service.PromptRoute
	Complete(ctx context.Context, name, input string) (string, error)
}

// Config configures the HTTP server.
type Config struct {
	Addr           string
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// Server serves the query API.
type Server struct {
	cfg    Config
	svc    Service
	engine *gin.Engine
}

// QueryRequest is the body of every query route.
type QueryRequest struct {
	Query string `json:"query"`
}

// QueryResponse is returned by the legacy per-corpus routes.
type QueryResponse struct {
	Response string `json:"response"`
}

// CorpusQueryResponse is returned by /v1/corpora/:name/query.
type CorpusQueryResponse struct {
	Response string          `json:"response"`
	Document domain.Document `json:"document"`
	Score    float64         `json:"score"`
	Cached   bool            `json:"cached"`
}

// ErrorResponse carries an error message.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// New builds the router.
func New(cfg Config, svc Service) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	s := &Server{cfg: cfg, svc: svc}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), cors(cfg.CORSOrigins))
	if cfg.RequestTimeout > 0 {
		r.Use(timeout(cfg.RequestTimeout))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	for _, corpus := range svc.Corpora() {
		if corpus.Route == "" {
			continue
		}
		r.POST(corpus.Route, s.legacyQuery(corpus.Name))
	}
	for _, p := range svc.PromptRoutes() {
		r.POST(p.Route, s.promptQuery(p.Name))
	}
	v1 := r.Group("/v1")
	v1.GET("/corpora", s.listCorpora)
	v1.POST("/corpora/:name/query", s.corpusQuery)
	v1.POST("/corpora/:name/search", s.corpusSearch)

	s.engine = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", s.cfg.Addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	logger.Infof("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) legacyQuery(corpus string) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, ok := bindQuery(c)
		if !ok {
			return
		}
		ans, err := s.svc.Ask(c.Request.Context(), corpus, q)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, QueryResponse{Response: ans.Text})
	}
}

func (s *Server) promptQuery(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, ok := bindQuery(c)
		if !ok {
			return
		}
		text, err := s.svc.Complete(c.Request.Context(), name, q)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, QueryResponse{Response: text})
	}
}

func (s *Server) listCorpora(c *gin.Context) {
	type item struct {
		Name  string `json:"name"`
		Kind  string `json:"kind"`
		Route string `json:"route,omitempty"`
	}
	corpora := s.svc.Corpora()
	out := make([]item, len(corpora))
	for i, corpus := range corpora {
		out[i] = item{Name: corpus.Name, Kind: string(corpus.Source.Kind), Route: corpus.Route}
	}
	c.JSON(http.StatusOK, gin.H{"corpora": out})
}

func (s *Server) corpusQuery(c *gin.Context) {
	q, ok := bindQuery(c)
	if !ok {
		return
	}
	ans, err := s.svc.Ask(c.Request.Context(), c.Param("name"), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, CorpusQueryResponse{
		Response: ans.Text,
		Document: ans.Match.Document,
		Score:    ans.Match.Score,
		Cached:   ans.Cached,
	})
}

func (s *Server) corpusSearch(c *gin.Context) {
	q, ok := bindQuery(c)
	if !ok {
		return
	}
	m, err := s.svc.Retrieve(c.Request.Context(), c.Param("name"), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

func bindQuery(c *gin.Context) (string, bool) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Detail: "invalid request body: " + err.Error()})
		return "", false
	}
	if strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Detail: "query must not be empty"})
		return "", false
	}
	return req.Query, true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, ErrorResponse{Detail: err.Error()})
	case errors.Is(err, domain.ErrNoMatch):
		c.JSON(http.StatusNotFound, ErrorResponse{Detail: NoMatchMessage})
	case errors.Is(err, domain.ErrCorpusNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Detail: err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, ErrorResponse{Detail: "request timed out"})
	default:
		logger.Errorw("request failed", "path", c.Request.URL.Path, "error", err.Error())
		c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: err.Error()})
	}
}
