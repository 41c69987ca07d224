package llm

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Capabilities scores a model along the axes the router cares about.
// Scores are 0-10 unless noted.
type Capabilities struct {
	Reasoning   int  `json:"reasoning" yaml:"reasoning"`
	Creativity  int  `json:"creativity" yaml:"creativity"`
	Latency     int  `json:"latency" yaml:"latency"` // higher is faster
	CostRank    int  `json:"cost_rank" yaml:"cost_rank"` // 1 cheapest, 4 most expensive
	LongContext bool `json:"long_context" yaml:"long_context"`
	JSONMode    bool `json:"json_mode" yaml:"json_mode"`
}

// ModelConfig describes one model endpoint the system can invoke.
type ModelConfig struct {
	ID           string       `json:"id" yaml:"id"`
	Provider     string       `json:"provider" yaml:"provider"`
	ModelName    string       `json:"model" yaml:"model"`
	APIKey       string       `json:"api_key" yaml:"api_key"`
	BaseURL      string       `json:"base_url" yaml:"base_url"`
	Enabled      bool         `json:"enabled" yaml:"enabled"`
	Capabilities Capabilities `json:"capabilities" yaml:"capabilities"`
}

// Registry holds the models available to the router, in registration order.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*ModelConfig
	order  []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*ModelConfig)}
}

// Add registers a model. Re-adding an ID replaces the earlier entry but
// keeps its position.
func (r *Registry) Add(cfg *ModelConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.models[cfg.ID]; !exists {
		r.order = append(r.order, cfg.ID)
	}
	r.models[cfg.ID] = cfg
}

// Get returns the model with the given ID, or nil.
func (r *Registry) Get(id string) *ModelConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.models[id]
}

// All returns every registered model in registration order.
func (r *Registry) All() []*ModelConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ModelConfig, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.models[id])
	}
	return out
}

// Enabled returns the enabled models in registration order.
func (r *Registry) Enabled() []*ModelConfig {
	var out []*ModelConfig
	for _, m := range r.All() {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// LoadRegistry builds the model registry from the first populated source:
//
//  1. A YAML config file at configPath (entries support ${VAR:-default}
//     substitution)
//  2. The MODEL_REGISTRY environment variable holding a JSON array
//  3. Autodetection from provider API key environment variables
//
// Entries missing an ID, model name, or credentials are skipped with a
// warning rather than failing the whole registry.
func LoadRegistry(configPath string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}

	if configPath != "" {
		if reg := loadFromYAML(configPath, logger); reg != nil && reg.Len() > 0 {
			logger.Info("model registry loaded from config file",
				zap.String("path", configPath), zap.Int("models", reg.Len()))
			return reg
		}
	}

	if raw := os.Getenv("MODEL_REGISTRY"); raw != "" {
		if reg := loadFromJSON(raw, logger); reg != nil && reg.Len() > 0 {
			logger.Info("model registry loaded from MODEL_REGISTRY", zap.Int("models", reg.Len()))
			return reg
		}
	}

	reg := loadFromEnv(logger)
	logger.Info("model registry autodetected from environment", zap.Int("models", reg.Len()))
	return reg
}

type registryFile struct {
	Models []yaml.Node `yaml:"models"`
}

func loadFromYAML(path string, logger *zap.Logger) *Registry {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("cannot read model config", zap.String("path", path), zap.Error(err))
		}
		return nil
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		logger.Warn("invalid model config", zap.String("path", path), zap.Error(err))
		return nil
	}

	reg := NewRegistry()
	for i, node := range file.Models {
		var cfg ModelConfig
		cfg.Enabled = true
		if err := node.Decode(&cfg); err != nil {
			logger.Warn("skipping invalid model entry", zap.Int("index", i), zap.Error(err))
			continue
		}
		expandModelEnv(&cfg)
		if err := validateEntry(&cfg); err != nil {
			logger.Warn("skipping model entry", zap.Int("index", i), zap.Error(err))
			continue
		}
		applyDefaultCapabilities(&cfg)
		reg.Add(&cfg)
	}
	return reg
}

func loadFromJSON(raw string, logger *zap.Logger) *Registry {
	var entries []ModelConfig
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		logger.Warn("invalid MODEL_REGISTRY JSON", zap.Error(err))
		return nil
	}

	reg := NewRegistry()
	for i := range entries {
		cfg := entries[i]
		expandModelEnv(&cfg)
		if err := validateEntry(&cfg); err != nil {
			logger.Warn("skipping model entry", zap.Int("index", i), zap.Error(err))
			continue
		}
		applyDefaultCapabilities(&cfg)
		reg.Add(&cfg)
	}
	return reg
}

// loadFromEnv builds a registry from well-known environment variables:
// LLM_API_KEY (+LLM_BASE_URL, LLM_MODEL), DEEPSEEK_API_KEY, and OLLAMA_MODELS
// (comma-separated names served by a local Ollama).
func loadFromEnv(logger *zap.Logger) *Registry {
	reg := NewRegistry()

	if key := os.Getenv("LLM_API_KEY"); key != "" {
		baseURL := os.Getenv("LLM_BASE_URL")
		provider := DetectProvider(baseURL)
		modelName := os.Getenv("LLM_MODEL")
		if modelName == "" {
			modelName = defaultModelFor(provider)
		}
		cfg := &ModelConfig{
			ID:        modelName,
			Provider:  provider,
			ModelName: modelName,
			APIKey:    key,
			BaseURL:   baseURL,
			Enabled:   true,
		}
		applyDefaultCapabilities(cfg)
		reg.Add(cfg)
	}

	if key := os.Getenv("DEEPSEEK_API_KEY"); key != "" && reg.Get("deepseek-chat") == nil {
		cfg := &ModelConfig{
			ID:        "deepseek-chat",
			Provider:  "deepseek",
			ModelName: "deepseek-chat",
			APIKey:    key,
			BaseURL:   "https://api.deepseek.com/v1",
			Enabled:   true,
		}
		applyDefaultCapabilities(cfg)
		reg.Add(cfg)
	}

	if names := os.Getenv("OLLAMA_MODELS"); names != "" {
		baseURL := os.Getenv("OLLAMA_BASE_URL")
		if baseURL == "" {
			baseURL = "http://localhost:11434/v1"
		}
		for _, name := range strings.Split(names, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			cfg := &ModelConfig{
				ID:        name,
				Provider:  "ollama",
				ModelName: name,
				BaseURL:   baseURL,
				Enabled:   true,
			}
			applyDefaultCapabilities(cfg)
			reg.Add(cfg)
		}
	}

	if reg.Len() == 0 {
		logger.Warn("no models configured; set LLM_API_KEY, DEEPSEEK_API_KEY, or OLLAMA_MODELS")
	}
	return reg
}

func validateEntry(cfg *ModelConfig) error {
	if cfg.ID == "" {
		return fmt.Errorf("model entry has no id")
	}
	if cfg.ModelName == "" {
		return fmt.Errorf("model %q has no model name", cfg.ID)
	}
	// Local Ollama endpoints need no credentials.
	if cfg.APIKey == "" && cfg.Provider != "ollama" {
		return fmt.Errorf("model %q has no api key", cfg.ID)
	}
	if cfg.Provider == "" {
		cfg.Provider = DetectProvider(cfg.BaseURL)
	}
	return nil
}

// DetectProvider guesses the provider from an OpenAI-compatible base URL.
func DetectProvider(baseURL string) string {
	lower := strings.ToLower(baseURL)
	switch {
	case strings.Contains(lower, "deepseek"):
		return "deepseek"
	case strings.Contains(lower, "11434") || strings.Contains(lower, "ollama"):
		return "ollama"
	default:
		return "openai"
	}
}

func defaultModelFor(provider string) string {
	switch provider {
	case "deepseek":
		return "deepseek-chat"
	case "ollama":
		return "llama3.1"
	default:
		return "gpt-4o-mini"
	}
}

// applyDefaultCapabilities fills in a capability profile inferred from the
// provider and model name when the entry does not declare one.
func applyDefaultCapabilities(cfg *ModelConfig) {
	if cfg.Capabilities != (Capabilities{}) {
		return
	}
	cfg.Capabilities = InferCapabilities(cfg.Provider, cfg.ModelName)
}

// InferCapabilities derives a capability profile from the provider and model
// name. Used when a registry entry carries no explicit capabilities.
func InferCapabilities(provider, modelName string) Capabilities {
	name := strings.ToLower(modelName)

	switch provider {
	case "ollama":
		return Capabilities{
			Reasoning:  4,
			Creativity: 4,
			Latency:    8,
			CostRank:   1,
			JSONMode:   false,
		}
	case "deepseek":
		reasoning := 7
		if strings.Contains(name, "r1") || strings.Contains(name, "reasoner") {
			reasoning = 9
		}
		return Capabilities{
			Reasoning:   reasoning,
			Creativity:  6,
			Latency:     7,
			CostRank:    1,
			LongContext: true,
			JSONMode:    true,
		}
	default:
		if strings.Contains(name, "mini") || strings.Contains(name, "nano") {
			return Capabilities{
				Reasoning:   6,
				Creativity:  5,
				Latency:     9,
				CostRank:    1,
				LongContext: true,
				JSONMode:    true,
			}
		}
		if isReasoningSeries(name) {
			return Capabilities{
				Reasoning:   9,
				Creativity:  6,
				Latency:     4,
				CostRank:    3,
				LongContext: true,
				JSONMode:    true,
			}
		}
		return Capabilities{
			Reasoning:   8,
			Creativity:  8,
			Latency:     6,
			CostRank:    4,
			LongContext: true,
			JSONMode:    true,
		}
	}
}

var reasoningSeries = regexp.MustCompile(`^o\d`)

func isReasoningSeries(name string) bool {
	return reasoningSeries.MatchString(name)
}

var envPatterns = struct {
	withDefault *regexp.Regexp
	braced      *regexp.Regexp
}{
	withDefault: regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`),
	braced:      regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`),
}

// expandEnv substitutes ${VAR} and ${VAR:-default} references in a config
// value with environment variable values.
func expandEnv(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	s = envPatterns.withDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPatterns.withDefault.FindStringSubmatch(match)
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		return parts[2]
	})
	s = envPatterns.braced.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPatterns.braced.FindStringSubmatch(match)
		return os.Getenv(parts[1])
	})
	return s
}

func expandModelEnv(cfg *ModelConfig) {
	cfg.ID = expandEnv(cfg.ID)
	cfg.Provider = expandEnv(cfg.Provider)
	cfg.ModelName = expandEnv(cfg.ModelName)
	cfg.APIKey = expandEnv(cfg.APIKey)
	cfg.BaseURL = expandEnv(cfg.BaseURL)
}
