package application

import (
	"time"

	"github.com/ahrav/go-pairank/infrastructure/middleware"
	"github.com/ahrav/go-pairank/internal/rating"
)

// Config is the complete pairank configuration. It is loaded by Load from
// defaults, an optional YAML file and PAIRANK_ environment variables.
type Config struct {
	Log        LogConfig        `koanf:"log" validate:"required"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Store      StoreConfig      `koanf:"store" validate:"required"`
	Rating     rating.Config    `koanf:"rating" validate:"required"`
	Judge      JudgeConfig      `koanf:"judge" validate:"required"`
	Evaluation EvaluationConfig `koanf:"evaluation" validate:"required"`
	Git        GitConfig        `koanf:"git" validate:"required"`
}

// LogConfig selects the slog handler installed by the CLI.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" validate:"omitempty,hostname_port"`
}

// StoreConfig locates the comparison database.
type StoreConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// JudgeConfig describes the oracle behind the judge and the transport
// middleware wrapped around it.
type JudgeConfig struct {
	// Provider is one of the registered llm providers.
	Provider string `koanf:"provider" validate:"required,llmprovider"`
	Model    string `koanf:"model" validate:"required"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv   string  `koanf:"api_key_env" validate:"required"`
	BaseURL     string  `koanf:"base_url" validate:"omitempty,url"`
	Temperature float64 `koanf:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `koanf:"max_tokens" validate:"min=1"`

	MaxParseRetries int           `koanf:"max_parse_retries" validate:"min=0,max=10"`
	Timeout         time.Duration `koanf:"timeout" validate:"gte=0"`

	MaxTransportRetries    int           `koanf:"max_transport_retries" validate:"min=0,max=10"`
	RequestsPerSecond      float64       `koanf:"requests_per_second" validate:"gte=0"`
	CircuitBreakerFailures int           `koanf:"circuit_breaker_failures" validate:"min=0"`
	CircuitBreakerCooldown time.Duration `koanf:"circuit_breaker_cooldown" validate:"gte=0"`

	Budget middleware.Budget `koanf:"budget"`
}

// EvaluationConfig tunes one evaluation round.
type EvaluationConfig struct {
	TaskSpec       string `koanf:"task_spec"`
	NumComparisons int    `koanf:"num_comparisons" validate:"min=0"`
	MaxDiffChars   int    `koanf:"max_diff_chars" validate:"min=1"`
}

// GitConfig locates candidate branches.
type GitConfig struct {
	RepoPath      string `koanf:"repo_path" validate:"required"`
	BranchPrefix  string `koanf:"branch_prefix"`
	DefaultBranch string `koanf:"default_branch" validate:"required"`
}

// Defaults used by DefaultConfig.
const (
	DefaultTaskSpec       = "Refactor and improve the code quality"
	DefaultNumComparisons = 10
	DefaultBranchPrefix   = "candidate_"
	DefaultBranch         = "master"
	DefaultStorePath      = "./bt_scores.db"
)

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() Config {
	return Config{
		Log:    LogConfig{Level: "info", Format: "text"},
		Store:  StoreConfig{Path: DefaultStorePath},
		Rating: rating.DefaultConfig(),
		Judge: JudgeConfig{
			Provider:               "openai",
			Model:                  "gpt-4o-2024-08-06",
			APIKeyEnv:              "OPENAI_API_KEY",
			MaxTokens:              2000,
			MaxParseRetries:        2,
			Timeout:                120 * time.Second,
			MaxTransportRetries:    3,
			RequestsPerSecond:      2,
			CircuitBreakerFailures: 5,
			CircuitBreakerCooldown: 30 * time.Second,
		},
		Evaluation: EvaluationConfig{
			TaskSpec:       DefaultTaskSpec,
			NumComparisons: DefaultNumComparisons,
			MaxDiffChars:   DefaultMaxDiffChars,
		},
		Git: GitConfig{
			RepoPath:      ".",
			BranchPrefix:  DefaultBranchPrefix,
			DefaultBranch: DefaultBranch,
		},
	}
}
