// Package config loads runtime configuration from the environment.
//
// Everything is env-first: a .env file is loaded when present, then
// BIOAGENT_* variables override the built-in defaults. Config is
// resolved once at startup and owned by the session that created it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Default model identifiers. Coordinator routing and QC review use a
// smaller model than specialist analysis.
const (
	DefaultModel            = "claude-sonnet-4-20250514"
	DefaultComplexModel     = "claude-opus-4-20250514"
	DefaultCoordinatorModel = "claude-3-5-haiku-20241022"
	DefaultQCModel          = "claude-3-5-haiku-20241022"
)

// Config holds the resolved settings for one process.
type Config struct {
	// LLM
	APIKey           string
	Model            string
	ComplexModel     string
	CoordinatorModel string
	SpecialistModel  string
	QCModel          string
	MaxTokens        int
	Temperature      float64

	// Agent loop
	MaxRounds     int
	ParallelTools bool

	// Multi-agent orchestration
	MultiAgent          bool
	ParallelSpecialists bool
	MaxSpecialists      int
	RouterConfidence    float64

	// Memory
	EnableMemory    bool
	EnableRAG       bool
	EnableSummaries bool
	EnableKG        bool
	EnableArtifacts bool
	SummaryRounds   int
	ContextBudget   int

	// Workspace
	Workspace  string
	ResultsDir string
	AutoSave   bool

	// External APIs
	NCBIAPIKey string
	NCBIEmail  string
	S2APIKey   string

	// Timeouts
	TurnTimeout       time.Duration
	SpecialistTimeout time.Duration
	ToolTimeout       time.Duration
	HTTPTimeout       time.Duration

	FastMode bool
}

// Load resolves configuration from the environment. A .env file in the
// working directory is honored when present (ignored otherwise).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIKey:           os.Getenv("ANTHROPIC_API_KEY"),
		Model:            envString("BIOAGENT_MODEL", DefaultModel),
		ComplexModel:     envString("BIOAGENT_MODEL_COMPLEX", DefaultComplexModel),
		CoordinatorModel: envString("BIOAGENT_COORDINATOR_MODEL", DefaultCoordinatorModel),
		QCModel:          envString("BIOAGENT_QC_MODEL", DefaultQCModel),
		MaxTokens:        envInt("BIOAGENT_MAX_TOKENS", 8192),
		Temperature:      envFloat("BIOAGENT_TEMPERATURE", 0.0),

		MaxRounds:     envInt("BIOAGENT_MAX_ROUNDS", 50),
		ParallelTools: envBool("BIOAGENT_PARALLEL_TOOLS", true),

		MultiAgent:          envBool("BIOAGENT_MULTI_AGENT", false),
		ParallelSpecialists: envBool("BIOAGENT_MULTI_AGENT_PARALLEL", true),
		MaxSpecialists:      envInt("BIOAGENT_MAX_SPECIALISTS", 3),
		RouterConfidence:    envFloat("BIOAGENT_ROUTER_CONFIDENCE", 0.6),

		EnableMemory:    envBool("BIOAGENT_ENABLE_MEMORY", true),
		EnableRAG:       envBool("BIOAGENT_ENABLE_RAG", true),
		EnableSummaries: envBool("BIOAGENT_ENABLE_SUMMARIES", true),
		EnableKG:        envBool("BIOAGENT_ENABLE_KG", true),
		EnableArtifacts: envBool("BIOAGENT_ENABLE_ARTIFACTS", true),
		SummaryRounds:   envInt("BIOAGENT_SUMMARY_ROUNDS", 5),
		ContextBudget:   envInt("BIOAGENT_CONTEXT_BUDGET", 4000),

		Workspace:  envString("BIOAGENT_WORKSPACE", defaultWorkspace()),
		ResultsDir: os.Getenv("BIOAGENT_RESULTS_DIR"),
		AutoSave:   envBool("BIOAGENT_AUTO_SAVE", true),

		NCBIAPIKey: os.Getenv("NCBI_API_KEY"),
		NCBIEmail:  os.Getenv("NCBI_EMAIL"),
		S2APIKey:   os.Getenv("S2_API_KEY"),

		TurnTimeout:       envDuration("BIOAGENT_TURN_TIMEOUT", 30*time.Minute),
		SpecialistTimeout: envDuration("BIOAGENT_SPECIALIST_TIMEOUT", 10*time.Minute),
		ToolTimeout:       envDuration("BIOAGENT_TOOL_TIMEOUT", 5*time.Minute),
		HTTPTimeout:       envDuration("BIOAGENT_HTTP_TIMEOUT", 30*time.Second),

		FastMode: envBool("BIOAGENT_FAST_MODE", false),
	}

	// SpecialistModel defaults to the main model.
	cfg.SpecialistModel = envString("BIOAGENT_SPECIALIST_MODEL", cfg.Model)

	if cfg.ResultsDir == "" {
		cfg.ResultsDir = filepath.Join(cfg.Workspace, "results")
	}

	if cfg.FastMode {
		cfg.applyFastMode()
	}

	return cfg, nil
}

// applyFastMode trades context richness for latency: single agent,
// no summaries, no retrieval, no knowledge graph, fewer rounds.
func (c *Config) applyFastMode() {
	c.MultiAgent = false
	c.EnableSummaries = false
	c.EnableRAG = false
	c.EnableKG = false
	if c.MaxRounds > 15 {
		c.MaxRounds = 15
	}
}

// Validate checks startup requirements. Failures here are fatal.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	if c.MaxRounds < 0 {
		return fmt.Errorf("max rounds must be >= 0, got %d", c.MaxRounds)
	}
	if c.MaxSpecialists < 1 {
		return fmt.Errorf("max specialists must be >= 1, got %d", c.MaxSpecialists)
	}
	if err := os.MkdirAll(c.Workspace, 0o755); err != nil {
		return fmt.Errorf("workspace %s is not usable: %w", c.Workspace, err)
	}
	return nil
}

// Workspace layout helpers. All persistent state lives under the
// workspace directory; see the layout documented in the README.

func (c *Config) IngestedDir() string  { return filepath.Join(c.Workspace, "data", "ingested") }
func (c *Config) RegistryPath() string { return filepath.Join(c.Workspace, "data", "registry.json") }
func (c *Config) ArtifactsDir() string { return filepath.Join(c.Workspace, "artifacts") }
func (c *Config) MemoryDir() string    { return filepath.Join(c.Workspace, "memory") }
func (c *Config) SummariesPath() string {
	return filepath.Join(c.Workspace, "memory", "summaries.json")
}
func (c *Config) KnowledgeGraphPath() string {
	return filepath.Join(c.Workspace, "memory", "kg.json")
}
func (c *Config) IndexDir() string     { return filepath.Join(c.Workspace, "memory", "index") }
func (c *Config) WorkflowsDir() string { return filepath.Join(c.Workspace, "workflows") }

func defaultWorkspace() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return filepath.Join(cwd, "bioagent_workspace")
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
