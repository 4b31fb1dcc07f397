package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
	"docqa/internal/index"
	"docqa/internal/search"
	"docqa/internal/service"
)

type fakeService struct {
	docs   map[string]domain.Document
	genErr error
}

func (f *fakeService) Corpora() []service.Corpus {
	return []service.Corpus{
		{Name: "pdf", Route: "/query", Source: index.Source{Kind: domain.KindPDF}},
		{Name: "pptx", Route: "/ppt-search", Source: index.Source{Kind: domain.KindPPTX}},
		{Name: "empty", Source: index.Source{Kind: domain.KindPDF}},
	}
}

func (f *fakeService) Retrieve(_ context.Context, corpus, question string) (*search.Match, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.ErrInvalidInput
	}
	if corpus == "empty" {
		return nil, fmt.Errorf("%w: corpus empty is empty", domain.ErrNoMatch)
	}
	d, ok := f.docs[corpus]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCorpusNotFound, corpus)
	}
	return &search.Match{Document: d, Score: 0.75}, nil
}

func (f *fakeService) Ask(ctx context.Context, corpus, question string) (*service.Answer, error) {
	m, err := f.Retrieve(ctx, corpus, question)
	if err != nil {
		return nil, err
	}
	if f.genErr != nil {
		return nil, f.genErr
	}
	return &service.Answer{Corpus: corpus, Question: question, Match: *m, Text: corpus + " says: " + m.Document.Text}, nil
}

func (f *fakeService) PromptRoutes() []service.PromptRoute {
	return []service.PromptRoute{{Name: "mongo", Route: "/text-to-mongo"}}
}

func (f *fakeService) Complete(_ context.Context, name, input string) (string, error) {
	if f.genErr != nil {
		return "", f.genErr
	}
	return fmt.Sprintf(`%s: {"find": %q}`, name, input), nil
}

func newTestServer() *Server {
	gin.SetMode(gin.TestMode)
	return New(Config{}, &fakeService{docs: map[string]domain.Document{
		"pdf":  {ID: "pdf_0", Text: "Fireballs deal damage."},
		"pptx": {ID: "pptx_3", Text: "Revenue grew."},
	}})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := do(t, newTestServer().Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestLegacyRoutes(t *testing.T) {
	h := newTestServer().Handler()
	tests := []struct {
		path string
		want string
	}{
		{"/query", "pdf says: Fireballs deal damage."},
		{"/ppt-search", "pptx says: Revenue grew."},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := do(t, h, http.MethodPost, tt.path, `{"query":"what happens?"}`)
			require.Equal(t, http.StatusOK, w.Code)
			var resp QueryResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.want, resp.Response)
		})
	}
}

func TestPromptRoute(t *testing.T) {
	h := newTestServer().Handler()
	w := do(t, h, http.MethodPost, "/text-to-mongo", `{"query":"users"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, `mongo: {"find": "users"}`, resp.Response)

	w = do(t, h, http.MethodPost, "/text-to-mongo", `{"query":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	failing := New(Config{}, &fakeService{genErr: fmt.Errorf("%w: upstream down", domain.ErrGeneration)})
	w = do(t, failing.Handler(), http.MethodPost, "/text-to-mongo", `{"query":"users"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "upstream down")
}

func TestCorpusRoutes(t *testing.T) {
	h := newTestServer().Handler()

	w := do(t, h, http.MethodPost, "/v1/corpora/pptx/query", `{"query":"revenue?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var q CorpusQueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &q))
	assert.Equal(t, "pptx says: Revenue grew.", q.Response)
	assert.Equal(t, "pptx_3", q.Document.ID)
	assert.InDelta(t, 0.75, q.Score, 1e-9)

	w = do(t, h, http.MethodPost, "/v1/corpora/pdf/search", `{"query":"fire"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var m search.Match
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.Equal(t, "pdf_0", m.Document.ID)

	w = do(t, h, http.MethodGet, "/v1/corpora", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"route":"/ppt-search"`)
}

func TestErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name   string
		genErr error
		path   string
		body   string
		status int
		detail string
	}{
		{"malformed body", nil, "/query", `{"query":`, http.StatusBadRequest, "invalid request body"},
		{"blank query", nil, "/query", `{"query":"  "}`, http.StatusBadRequest, "query must not be empty"},
		{"missing query", nil, "/query", `{}`, http.StatusBadRequest, "query must not be empty"},
		{"unknown corpus", nil, "/v1/corpora/nope/query", `{"query":"q"}`, http.StatusNotFound, "corpus not found"},
		{"empty corpus", nil, "/v1/corpora/empty/search", `{"query":"q"}`, http.StatusNotFound, NoMatchMessage},
		{"generation failure", domain.ErrGeneration, "/query", `{"query":"q"}`, http.StatusInternalServerError, "answer generation failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(Config{}, &fakeService{
				docs:   map[string]domain.Document{"pdf": {ID: "pdf_0", Text: "x"}},
				genErr: tt.genErr,
			})
			w := do(t, srv.Handler(), http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Contains(t, resp.Detail, tt.detail)
		})
	}
}

func TestCORS(t *testing.T) {
	h := newTestServer().Handler()

	req := httptest.NewRequest(http.MethodOptions, "/query", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "content-type", w.Header().Get("Access-Control-Allow-Headers"))

	req = httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"query":"q"}`))
	req.Header.Set("Origin", "http://localhost:3000")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_RestrictedOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := New(Config{CORSOrigins: []string{"https://app.example.com"}}, &fakeService{}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://app.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRun_GracefulShutdown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	srv := New(Config{Addr: addr}, &fakeService{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
