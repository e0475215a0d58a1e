// Package config loads urdufact configuration and sets up logging.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Provider names an LLM or embedding backend.
type Provider string

// Supported providers.
const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderOllama    Provider = "ollama"
	ProviderBedrock   Provider = "bedrock"
	ProviderGemini    Provider = "gemini"
)

// Config holds all configuration values.
type Config struct {
	LLM        LLMConfig        `mapstructure:"llm"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Processing ProcessingConfig `mapstructure:"processing"`
	Search     SearchConfig     `mapstructure:"search"`
	Cost       CostConfig       `mapstructure:"cost"`
	SurrealDB  SurrealDBConfig  `mapstructure:"surrealdb"`
	Log        LogConfig        `mapstructure:"log"`
}

// LLMConfig selects the chat model used by transformers.
type LLMConfig struct {
	Provider    Provider `mapstructure:"provider" validate:"required"`
	Model       string   `mapstructure:"model" validate:"required"`
	Temperature float64  `mapstructure:"temperature" validate:"gte=0,lte=2"`
	TopP        float64  `mapstructure:"top_p" validate:"gte=0,lte=1"`
	MaxTokens   int      `mapstructure:"max_tokens" validate:"gte=0"`

	OpenAIAPIKey    string `mapstructure:"openai_api_key"`
	OpenAIBaseURL   string `mapstructure:"openai_base_url"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	GeminiAPIKey    string `mapstructure:"gemini_api_key"`
	OllamaHost      string `mapstructure:"ollama_host"`
	AWSRegion       string `mapstructure:"aws_region"`
}

// EmbeddingConfig selects the embedder used for few-shot example selection.
type EmbeddingConfig struct {
	Provider  Provider `mapstructure:"provider"`
	Model     string   `mapstructure:"model"`
	Dimension int      `mapstructure:"dimension" validate:"gte=0"` // 0 skips the check
}

// ProcessingConfig controls retry and dispatch behavior.
type ProcessingConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts" validate:"gte=1"`
	RetryDelay        time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
	TranslateTimeout  time.Duration `mapstructure:"translate_timeout" validate:"gt=0"`
	ChatTimeout       time.Duration `mapstructure:"chat_timeout" validate:"gt=0"`
	RequestRetries    int           `mapstructure:"request_retries" validate:"gte=1"`
	RequestRetryDelay time.Duration `mapstructure:"request_retry_delay" validate:"gte=0"`
	Concurrency       int           `mapstructure:"concurrency" validate:"gte=1"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gte=0"`
}

// SearchConfig configures the web search backend.
type SearchConfig struct {
	SerperAPIKey string `mapstructure:"serper_api_key"`
	SerperURL    string `mapstructure:"serper_url" validate:"omitempty,url"`
	Results      int    `mapstructure:"results" validate:"gte=1,lte=100"`
	Country      string `mapstructure:"country"`
	Language     string `mapstructure:"language"`
}

// CostConfig controls cost ledgers.
type CostConfig struct {
	Dir            string `mapstructure:"dir" validate:"required"`
	SaveModelCost  bool   `mapstructure:"save_model_cost"`
	SaveSearchCost bool   `mapstructure:"save_search_cost"`
	PriceFile      string `mapstructure:"price_file"`
	MirrorToDB     bool   `mapstructure:"mirror_to_db"`
}

// SurrealDBConfig holds the optional usage/run store connection.
type SurrealDBConfig struct {
	URL       string `mapstructure:"url"`
	Namespace string `mapstructure:"namespace"`
	Database  string `mapstructure:"database"`
	User      string `mapstructure:"user"`
	Pass      string `mapstructure:"pass"`
	AuthLevel string `mapstructure:"auth_level" validate:"omitempty,oneof=root database"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"gte=0"`
	MaxReconnects  int           `mapstructure:"max_reconnects" validate:"gte=0"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// ConfigurationError reports a missing or invalid setting.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// ErrConfiguration is matched by every *ConfigurationError.
var ErrConfiguration = errors.New("configuration error")

// Is makes errors.Is(err, ErrConfiguration) work for any ConfigurationError.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// NewViper returns a viper instance with defaults and environment bindings.
// Callers may bind CLI flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("URDUFACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Provider keys keep their conventional names.
	_ = v.BindEnv("llm.openai_api_key", "URDUFACT_LLM_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("llm.openai_base_url", "URDUFACT_LLM_OPENAI_BASE_URL", "OPENAI_BASE_URL")
	_ = v.BindEnv("llm.anthropic_api_key", "URDUFACT_LLM_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("llm.gemini_api_key", "URDUFACT_LLM_GEMINI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("llm.ollama_host", "URDUFACT_LLM_OLLAMA_HOST", "OLLAMA_HOST")
	_ = v.BindEnv("llm.aws_region", "URDUFACT_LLM_AWS_REGION", "AWS_REGION")
	_ = v.BindEnv("search.serper_api_key", "URDUFACT_SEARCH_SERPER_API_KEY", "SERPER_API_KEY")
	_ = v.BindEnv("surrealdb.url", "URDUFACT_SURREALDB_URL", "SURREALDB_URL")

	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.top_p", 1.0)
	v.SetDefault("llm.max_tokens", 2500)
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.openai_base_url", "")
	v.SetDefault("llm.anthropic_api_key", "")
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.ollama_host", "http://localhost:11434")
	v.SetDefault("llm.aws_region", "")

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimension", 0)

	v.SetDefault("processing.max_attempts", 5)
	v.SetDefault("processing.retry_delay", "0s")
	v.SetDefault("processing.translate_timeout", "20s")
	v.SetDefault("processing.chat_timeout", "120s")
	v.SetDefault("processing.request_retries", 3)
	v.SetDefault("processing.request_retry_delay", "1s")
	v.SetDefault("processing.concurrency", 8)
	v.SetDefault("processing.requests_per_second", 0.0)

	v.SetDefault("search.serper_api_key", "")
	v.SetDefault("search.serper_url", "https://google.serper.dev/search")
	v.SetDefault("search.results", 5)
	v.SetDefault("search.country", "pk")
	v.SetDefault("search.language", "ur")

	v.SetDefault("cost.dir", "costs")
	v.SetDefault("cost.save_model_cost", true)
	v.SetDefault("cost.save_search_cost", true)
	v.SetDefault("cost.price_file", "")
	v.SetDefault("cost.mirror_to_db", false)

	v.SetDefault("surrealdb.url", "")
	v.SetDefault("surrealdb.namespace", "urdufact")
	v.SetDefault("surrealdb.database", "benchmark")
	v.SetDefault("surrealdb.user", "root")
	v.SetDefault("surrealdb.pass", "root")
	v.SetDefault("surrealdb.auth_level", "root")
	v.SetDefault("surrealdb.connect_timeout", "5s")
	v.SetDefault("surrealdb.max_reconnects", 10)

	v.SetDefault("log.file", "urdufact.log")
	v.SetDefault("log.level", "INFO")
}

// Load reads configuration from defaults, an optional YAML file, the
// environment and any flags bound to v, in increasing precedence.
// When file is empty, ./urdufact.yaml is used if present.
func Load(v *viper.Viper, file string) (Config, error) {
	if v == nil {
		v = NewViper()
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("urdufact")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.LLM.Provider = Provider(strings.ToLower(string(cfg.LLM.Provider)))
	cfg.Embedding.Provider = Provider(strings.ToLower(string(cfg.Embedding.Provider)))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks settings every command depends on.
func (c Config) Validate() error {
	for _, section := range []any{c.Embedding, c.Processing, c.Search, c.Cost, c.SurrealDB} {
		if err := ValidateStruct(section); err != nil {
			return err
		}
	}
	return nil
}

// ValidateLLM checks the model settings required by commands that call a model.
func (c Config) ValidateLLM() error {
	return ValidateStruct(c.LLM)
}

// ValidateStruct runs tag validation and converts the first failure into a
// *ConfigurationError.
func ValidateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		reason := fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		if fe.Tag() == "required" {
			reason = "is required"
		}
		return &ConfigurationError{Field: fe.Namespace(), Reason: reason}
	}
	return &ConfigurationError{Field: "config", Reason: err.Error()}
}

// LogLevel returns the parsed log level.
func (c Config) LogLevel() slog.Level {
	return parseLogLevel(c.Log.Level)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
