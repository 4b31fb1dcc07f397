package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, 350, cfg.Chunker.MaxChunkSize)
	assert.True(t, cfg.Index.VerifyFingerprint)
	require.Len(t, cfg.Corpora, 2)

	pdf, ok := cfg.Corpus("pdf")
	require.True(t, ok)
	assert.Equal(t, "/query", pdf.Route)
	assert.Equal(t, "app/docs/pdf_embeddings.cbor", pdf.Cache)
	assert.InDelta(t, 0.2, pdf.Temperature, 1e-9)

	pptx, ok := cfg.Corpus("pptx")
	require.True(t, ok)
	assert.Equal(t, "/ppt-search", pptx.Route)
	assert.InDelta(t, 0.4, pptx.Temperature, 1e-9)

	pdfGen := cfg.GeneratorFor(pdf.Generator)
	assert.Equal(t, "GROQ_API_KEY", pdfGen.APIKeyEnv)
	pptxGen := cfg.GeneratorFor(pptx.Generator)
	assert.Equal(t, "https://api.openai.com/v1", pptxGen.BaseURL)
	assert.Equal(t, "OPENAI_API_KEY", pptxGen.APIKeyEnv)
	assert.Equal(t, "gpt-4o-mini", pptx.Model)

	require.Len(t, cfg.Prompts, 1)
	mongo := cfg.Prompts[0]
	assert.Equal(t, "/text-to-mongo", mongo.Route)
	assert.Equal(t, "gpt-3.5-turbo", mongo.Model)
	assert.Zero(t, mongo.Temperature)
	assert.Contains(t, mongo.UserTemplate, "{input}")
	require.NoError(t, cfg.Validate())
}

func TestGeneratorFor(t *testing.T) {
	cfg := Default()
	assert.Equal(t, cfg.Generator, cfg.GeneratorFor(nil))

	got := cfg.GeneratorFor(&GeneratorConfig{Model: "gpt-4o", TimeoutSecs: 5})
	assert.Equal(t, cfg.Generator.BaseURL, got.BaseURL)
	assert.Equal(t, cfg.Generator.APIKeyEnv, got.APIKeyEnv)
	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, 5, got.TimeoutSecs)
	assert.Equal(t, cfg.Generator.MaxRetries, got.MaxRetries)

	assert.Equal(t, "none", cfg.GeneratorFor(&GeneratorConfig{Type: "none"}).Type)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
server:
  addr: ":9000"
chunker:
  max_chunk_size: 200
embedder:
  type: openai
index:
  verify_fingerprint: false
corpora:
  - name: handbook
    kind: pdf
    source: docs/handbook.pdf
`), 0o644))

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 200, cfg.Chunker.MaxChunkSize)
	assert.False(t, cfg.Index.VerifyFingerprint)
	require.NotNil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, 32, cfg.Embedder.OpenAI.BatchSize)
	assert.Equal(t, 2, cfg.Embedder.OpenAI.MaxRetries)

	require.Len(t, cfg.Corpora, 1)
	assert.Equal(t, "docs/handbook_embeddings.cbor", cfg.Corpora[0].Cache)
	assert.Empty(t, cfg.Corpora[0].Route)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DOCQA_ADDR", "127.0.0.1:7000")
	t.Setenv("DOCQA_CHUNK_SIZE", "120")
	t.Setenv("DOCQA_PDF_PATH", "/data/rules.pdf")
	t.Setenv("DOCQA_PPTX_PATH", "/data/deck.pptx")
	t.Setenv("DOCQA_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.Server.Addr)
	assert.Equal(t, 120, cfg.Chunker.MaxChunkSize)
	assert.Equal(t, "debug", cfg.Log.Level)
	pdf, _ := cfg.Corpus("pdf")
	assert.Equal(t, "/data/rules.pdf", pdf.Source)
	pptx, _ := cfg.Corpus("pptx")
	assert.Equal(t, "/data/deck.pptx", pptx.Source)
}

func TestLoad_BadChunkSizeEnv(t *testing.T) {
	t.Setenv("DOCQA_CHUNK_SIZE", "big")
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "DOCQA_CHUNK_SIZE")
}

func TestLoad_InvalidYAML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte("server: [unclosed"), 0o644))
	_, err := Load(p)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		want   string
	}{
		{"negative chunk size", func(c *AppConfig) { c.Chunker.MaxChunkSize = -1 }, "max_chunk_size"},
		{"unknown embedder", func(c *AppConfig) { c.Embedder.Type = "bert" }, "embedder.type"},
		{"unknown generator", func(c *AppConfig) { c.Generator.Type = "magic" }, "generator.type"},
		{"no corpora", func(c *AppConfig) { c.Corpora = nil }, "at least one corpus"},
		{"duplicate name", func(c *AppConfig) { c.Corpora[1].Name = "pdf" }, "duplicate name"},
		{"unknown kind", func(c *AppConfig) { c.Corpora[0].Kind = "docx" }, "unsupported source kind"},
		{"missing source", func(c *AppConfig) { c.Corpora[0].Source = "" }, "source is required"},
		{"duplicate route", func(c *AppConfig) { c.Corpora[1].Route = "/query" }, "duplicate route"},
		{"relative route", func(c *AppConfig) { c.Corpora[1].Route = "slides" }, "must start with /"},
		{"health route", func(c *AppConfig) { c.Corpora[0].Route = "/health" }, "reserved"},
		{"api route", func(c *AppConfig) { c.Corpora[0].Route = "/v1/corpora" }, "reserved"},
		{"api root", func(c *AppConfig) { c.Corpora[0].Route = "/v1/" }, "reserved"},
		{"prompt reuses corpus route", func(c *AppConfig) { c.Prompts[0].Route = "/ppt-search" }, "duplicate route"},
		{"prompt without route", func(c *AppConfig) { c.Prompts[0].Route = "" }, "route is required"},
		{"prompt on reserved route", func(c *AppConfig) { c.Prompts[0].Route = "/health" }, "reserved"},
		{"duplicate prompt", func(c *AppConfig) { c.Prompts = append(c.Prompts, c.Prompts[0]) }, "duplicate name"},
		{"unknown corpus generator", func(c *AppConfig) { c.Corpora[0].Generator = &GeneratorConfig{Type: "magic"} }, "generator.type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestSaveLoad(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Server.Addr = ":1234"
	require.NoError(t, Save(p, cfg))

	got, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLoadDefault_WritesUserConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	cfg, path, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "docqa", "config.yaml"), path)
	assert.FileExists(t, path)
	assert.Equal(t, Default().Corpora, cfg.Corpora)
}
