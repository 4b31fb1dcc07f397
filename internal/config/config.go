package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"docqa/internal/domain"
)

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr               string   `yaml:"addr"`
	CORSOrigins        []string `yaml:"cors_origins"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs"`
}

// ChunkerConfig configures how extracted text is split into chunks.
type ChunkerConfig struct {
	MaxChunkSize int `yaml:"max_chunk_size"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
	Workers     int    `yaml:"workers"`
	Dimensions  int    `yaml:"dimensions"`
	MaxRetries  int    `yaml:"max_retries"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string                `yaml:"type"`
	Dimension int                   `yaml:"dimension"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// IndexConfig configures cache validation.
type IndexConfig struct {
	VerifyFingerprint bool `yaml:"verify_fingerprint"`
}

// GeneratorConfig configures the answer generator.
type GeneratorConfig struct {
	Type        string `yaml:"type"`
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

// AnswerCacheConfig configures the optional Redis answer cache.
type AnswerCacheConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
	TTLSecs     int    `yaml:"ttl_secs"`
	KeyPrefix   string `yaml:"key_prefix"`
}

// SummarizerConfig configures the corpus overview.
type SummarizerConfig struct {
	MaxSentences int `yaml:"max_sentences"`
}

// LogConfig configures the package logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CorpusConfig describes one source artifact served by the API. Generator,
// when set, overrides fields of the top-level generator for this corpus.
type CorpusConfig struct {
	Name         string           `yaml:"name"`
	Kind         string           `yaml:"kind"`
	Source       string           `yaml:"source"`
	Cache        string           `yaml:"cache"`
	Route        string           `yaml:"route,omitempty"`
	SystemPrompt string           `yaml:"system_prompt"`
	Model        string           `yaml:"model,omitempty"`
	Temperature  float64          `yaml:"temperature"`
	Generator    *GeneratorConfig `yaml:"generator,omitempty"`
}

// PromptConfig is a route that sends the query to the generator without
// retrieval. {input} in UserTemplate is replaced with the query.
type PromptConfig struct {
	Name         string           `yaml:"name"`
	Route        string           `yaml:"route"`
	SystemPrompt string           `yaml:"system_prompt"`
	UserTemplate string           `yaml:"user_template,omitempty"`
	Model        string           `yaml:"model,omitempty"`
	Temperature  float64          `yaml:"temperature"`
	Generator    *GeneratorConfig `yaml:"generator,omitempty"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Index       IndexConfig       `yaml:"index"`
	Generator   GeneratorConfig   `yaml:"generator"`
	AnswerCache AnswerCacheConfig `yaml:"answer_cache"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Log         LogConfig         `yaml:"log"`
	Corpora     []CorpusConfig    `yaml:"corpora"`
	Prompts     []PromptConfig    `yaml:"prompts"`
}

// ReservedRoutes are served by the API itself and cannot be configured.
var ReservedRoutes = []string{"/health", "/v1"}

const (
	rulesPrompt = "You are an expert on the rules of Magic: The Gathering. " +
		"Answer the question using only the rules excerpt provided. " +
		"If the excerpt does not cover the question, say so."
	slidesPrompt = "You explain the contents of a presentation. " +
		"Answer the question using only the slide text provided, in plain language."
	mongoPrompt = "You are a MongoDB expert. Your task is to convert natural language requests into valid MongoDB queries in JSON format.\n" +
		"You MUST follow these strict rules:\n" +
		"1. Only return the query, no explanations or markdown.\n" +
		"2. You can interpret common business, financial, or database-related terminology, including date filters and numeric comparisons.\n" +
		"3. NEVER assume field names. Only use field names that are directly mentioned or clearly implied by the request.\n" +
		"4. If you cannot confidently generate a valid query, respond with exactly:\n" +
		`"Unable to generate a valid MongoDB query from the input."`
	mongoTemplate = "Convert the following request into a valid MongoDB query. Input: \"{input}\"\n\nAnswer:"
)

// openAIGenerator overrides the default provider with OpenAI.
func openAIGenerator() *GeneratorConfig {
	return &GeneratorConfig{BaseURL: "https://api.openai.com/v1", APIKeyEnv: "OPENAI_API_KEY"}
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Environment overrides are applied last.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	applyConfigDefaults(cfg)
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/docqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/docqa/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	if err := Save(userPath, Default()); err != nil {
		return nil, "", err
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docqa", "config.yaml"), nil
}

// Default returns the built-in configuration: the rules PDF on /query and
// the slide deck on /ppt-search.
func Default() *AppConfig {
	return &AppConfig{
		Server:   ServerConfig{Addr: ":8000", CORSOrigins: []string{"*"}, RequestTimeoutSecs: 60},
		Chunker:  ChunkerConfig{MaxChunkSize: 350},
		Embedder: EmbedderConfig{Type: "hashing", Dimension: 1024},
		Index:    IndexConfig{VerifyFingerprint: true},
		Generator: GeneratorConfig{
			Type:        "openai",
			BaseURL:     "https://api.groq.com/openai/v1",
			APIKeyEnv:   "GROQ_API_KEY",
			Model:       "llama-3.3-70b-versatile",
			TimeoutSecs: 60,
			MaxRetries:  2,
		},
		AnswerCache: AnswerCacheConfig{Addr: "localhost:6379", PasswordEnv: "REDIS_PASSWORD", TTLSecs: 3600, KeyPrefix: "docqa:answer:"},
		Summarizer:  SummarizerConfig{MaxSentences: 3},
		Log:         LogConfig{Level: "info", Format: "console"},
		Corpora: []CorpusConfig{
			{
				Name:         "pdf",
				Kind:         "pdf",
				Source:       "app/docs/MAGIC_RULES.pdf",
				Cache:        "app/docs/pdf_embeddings.cbor",
				Route:        "/query",
				SystemPrompt: rulesPrompt,
				Temperature:  0.2,
			},
			{
				Name:         "pptx",
				Kind:         "pptx",
				Source:       "app/docs/PRESENTATION.pptx",
				Cache:        "app/docs/pptx_embeddings.cbor",
				Route:        "/ppt-search",
				SystemPrompt: slidesPrompt,
				Model:        "gpt-4o-mini",
				Temperature:  0.4,
				Generator:    openAIGenerator(),
			},
		},
		Prompts: []PromptConfig{
			{
				Name:         "mongo",
				Route:        "/text-to-mongo",
				SystemPrompt: mongoPrompt,
				UserTemplate: mongoTemplate,
				Model:        "gpt-3.5-turbo",
				Generator:    openAIGenerator(),
			},
		},
	}
}

// GeneratorFor returns the top-level generator config with the non-empty
// fields of override applied.
func (c *AppConfig) GeneratorFor(override *GeneratorConfig) GeneratorConfig {
	out := c.Generator
	if override == nil {
		return out
	}
	if override.Type != "" {
		out.Type = override.Type
	}
	if override.BaseURL != "" {
		out.BaseURL = override.BaseURL
	}
	if override.APIKeyEnv != "" {
		out.APIKeyEnv = override.APIKeyEnv
	}
	if override.Model != "" {
		out.Model = override.Model
	}
	if override.TimeoutSecs != 0 {
		out.TimeoutSecs = override.TimeoutSecs
	}
	if override.MaxRetries != 0 {
		out.MaxRetries = override.MaxRetries
	}
	return out
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Server.RequestTimeoutSecs == 0 {
		cfg.Server.RequestTimeoutSecs = 60
	}
	if cfg.Chunker.MaxChunkSize == 0 {
		cfg.Chunker.MaxChunkSize = 350
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{MaxRetries: 2}
		}
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
		if o.BatchSize == 0 {
			o.BatchSize = 32
		}
		if o.Workers == 0 {
			o.Workers = 4
		}
	}
	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "openai"
	}
	if cfg.Generator.TimeoutSecs == 0 {
		cfg.Generator.TimeoutSecs = 60
	}
	if cfg.AnswerCache.TTLSecs == 0 {
		cfg.AnswerCache.TTLSecs = 3600
	}
	if cfg.AnswerCache.KeyPrefix == "" {
		cfg.AnswerCache.KeyPrefix = "docqa:answer:"
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 3
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	for i := range cfg.Corpora {
		c := &cfg.Corpora[i]
		if c.Kind == "" {
			c.Kind = c.Name
		}
		if c.Cache == "" && c.Source != "" {
			c.Cache = strings.TrimSuffix(c.Source, filepath.Ext(c.Source)) + "_embeddings.cbor"
		}
	}
}

// applyEnv applies DOCQA_* overrides on top of the file values.
func applyEnv(cfg *AppConfig) error {
	if v := os.Getenv("DOCQA_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DOCQA_CHUNK_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DOCQA_CHUNK_SIZE: %w", err)
		}
		cfg.Chunker.MaxChunkSize = n
	}
	if v := os.Getenv("DOCQA_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	overrides := map[domain.Kind]string{
		domain.KindPDF:  os.Getenv("DOCQA_PDF_PATH"),
		domain.KindPPTX: os.Getenv("DOCQA_PPTX_PATH"),
	}
	for i := range cfg.Corpora {
		kind, err := domain.ParseKind(cfg.Corpora[i].Kind)
		if err != nil {
			continue
		}
		if p := overrides[kind]; p != "" {
			cfg.Corpora[i].Source = p
		}
	}
	return nil
}

// Validate reports configuration errors that would prevent the service from starting.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Chunker.MaxChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunker.max_chunk_size must be positive, got %d", c.Chunker.MaxChunkSize))
	}
	switch c.Embedder.Type {
	case "hashing", "openai":
	default:
		errs = append(errs, fmt.Errorf("embedder.type %q is not supported", c.Embedder.Type))
	}
	switch c.Generator.Type {
	case "openai", "none":
	default:
		errs = append(errs, fmt.Errorf("generator.type %q is not supported", c.Generator.Type))
	}
	if len(c.Corpora) == 0 {
		errs = append(errs, errors.New("at least one corpus is required"))
	}
	names := map[string]bool{}
	routes := map[string]bool{}
	for i, corpus := range c.Corpora {
		if corpus.Name == "" {
			errs = append(errs, fmt.Errorf("corpora[%d]: name is required", i))
		} else if names[corpus.Name] {
			errs = append(errs, fmt.Errorf("corpora[%d]: duplicate name %q", i, corpus.Name))
		}
		names[corpus.Name] = true
		if _, err := domain.ParseKind(corpus.Kind); err != nil {
			errs = append(errs, fmt.Errorf("corpora[%d]: %w", i, err))
		}
		if corpus.Source == "" {
			errs = append(errs, fmt.Errorf("corpora[%d]: source is required", i))
		}
		if corpus.Route != "" {
			if err := checkRoute(corpus.Route, routes); err != nil {
				errs = append(errs, fmt.Errorf("corpora[%d]: %w", i, err))
			}
		}
		if err := checkGenerator(corpus.Generator); err != nil {
			errs = append(errs, fmt.Errorf("corpora[%d]: %w", i, err))
		}
	}
	prompts := map[string]bool{}
	for i, p := range c.Prompts {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("prompts[%d]: name is required", i))
		} else if prompts[p.Name] {
			errs = append(errs, fmt.Errorf("prompts[%d]: duplicate name %q", i, p.Name))
		}
		prompts[p.Name] = true
		if p.Route == "" {
			errs = append(errs, fmt.Errorf("prompts[%d]: route is required", i))
		} else if err := checkRoute(p.Route, routes); err != nil {
			errs = append(errs, fmt.Errorf("prompts[%d]: %w", i, err))
		}
		if err := checkGenerator(p.Generator); err != nil {
			errs = append(errs, fmt.Errorf("prompts[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// checkRoute rejects malformed, reserved and already registered routes, then
// records route in seen.
func checkRoute(route string, seen map[string]bool) error {
	if !strings.HasPrefix(route, "/") {
		return fmt.Errorf("route %q must start with /", route)
	}
	clean := strings.TrimSuffix(route, "/")
	for _, r := range ReservedRoutes {
		if clean == r || strings.HasPrefix(clean, r+"/") {
			return fmt.Errorf("route %q is reserved", route)
		}
	}
	if seen[clean] {
		return fmt.Errorf("duplicate route %q", route)
	}
	seen[clean] = true
	return nil
}

func checkGenerator(g *GeneratorConfig) error {
	if g == nil {
		return nil
	}
	switch g.Type {
	case "", "openai", "none":
		return nil
	default:
		return fmt.Errorf("generator.type %q is not supported", g.Type)
	}
}

// Corpus returns the corpus named name.
func (c *AppConfig) Corpus(name string) (CorpusConfig, bool) {
	for _, corpus := range c.Corpora {
		if corpus.Name == name {
			return corpus, true
		}
	}
	return CorpusConfig{}, false
}
