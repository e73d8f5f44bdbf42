package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the shopping assistant.
type Config struct {
	General GeneralConfig `mapstructure:"general"`
	Server  ServerConfig  `mapstructure:"server"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Tools   ToolsConfig   `mapstructure:"tools"`
	Storage StorageConfig `mapstructure:"storage"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings.
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LLMConfig contains LLM provider configuration.
type LLMConfig struct {
	APIKey  string           `mapstructure:"api_key"`
	BaseURL string           `mapstructure:"base_url"`
	Timeout time.Duration    `mapstructure:"timeout"`
	Routing LLMRoutingConfig `mapstructure:"routing"`
}

// LLMRoutingConfig defines which model to use for different passes.
type LLMRoutingConfig struct {
	Chatting   string `mapstructure:"chatting"`   // main tool loop
	Classifier string `mapstructure:"classifier"` // planning, buy-intent, link-open
}

// AgentConfig contains the tunables of the planning and checkout loop.
// Earlier iterations hard-coded these inconsistently; they are
// configuration now.
type AgentConfig struct {
	MaxLoopSteps       int     `mapstructure:"max_loop_steps"`
	MaxPlannedCalls    int     `mapstructure:"max_planned_calls"`
	BuyIntentThreshold float64 `mapstructure:"buy_intent_threshold"`
	OptionSummaryCap   int     `mapstructure:"option_summary_cap"`
	AutoOpenLinkCap    int     `mapstructure:"auto_open_link_cap"`
}

// ToolsConfig contains per-tool backend settings.
type ToolsConfig struct {
	Shopify   ShopifyConfig   `mapstructure:"shopify"`
	WebSearch WebSearchConfig `mapstructure:"web_search"`
	WebFetch  WebFetchConfig  `mapstructure:"web_fetch"`
}

// ShopifyConfig contains the storefront bridge settings.
type ShopifyConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxItems int           `mapstructure:"max_items"`
}

// WebSearchConfig contains web search settings.
type WebSearchConfig struct {
	Provider     string `mapstructure:"provider"` // brave or serper
	BraveAPIKey  string `mapstructure:"brave_api_key"`
	SerperAPIKey string `mapstructure:"serper_api_key"`
	MaxResults   int    `mapstructure:"max_results"`
}

// WebFetchConfig contains page fetch/extraction settings.
type WebFetchConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxChars int           `mapstructure:"max_chars"`
}

// StorageConfig contains conversation store settings.
type StorageConfig struct {
	SessionStore string        `mapstructure:"session_store"` // inmemory or redis
	SessionTTL   time.Duration `mapstructure:"session_ttl"`
	Redis        RedisConfig   `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("CARTPILOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Config file is optional; defaults plus env cover the common case.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	overrideFromEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("general.debug", false)
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", "30s")

	viper.SetDefault("server.address", ":10011")

	viper.SetDefault("llm.base_url", "https://api.openai.com/v1")
	viper.SetDefault("llm.timeout", "60s")
	viper.SetDefault("llm.routing.chatting", "gpt-4o")
	viper.SetDefault("llm.routing.classifier", "gpt-4o-mini")

	viper.SetDefault("agent.max_loop_steps", 6)
	viper.SetDefault("agent.max_planned_calls", 3)
	viper.SetDefault("agent.buy_intent_threshold", 0.4)
	viper.SetDefault("agent.option_summary_cap", 8)
	viper.SetDefault("agent.auto_open_link_cap", 2)

	viper.SetDefault("tools.shopify.timeout", "20s")
	viper.SetDefault("tools.shopify.max_items", 10)
	viper.SetDefault("tools.web_search.provider", "brave")
	viper.SetDefault("tools.web_search.max_results", 8)
	viper.SetDefault("tools.web_fetch.timeout", "15s")
	viper.SetDefault("tools.web_fetch.max_chars", 20000)

	viper.SetDefault("storage.session_store", "inmemory")
	viper.SetDefault("storage.session_ttl", "2h")
	viper.SetDefault("storage.redis.addr", "localhost:6379")
	viper.SetDefault("storage.redis.db", 0)
}

// overrideFromEnv maps well-known environment variables onto config keys
// so secrets never have to live in the config file.
func overrideFromEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		viper.Set("llm.api_key", v)
	}
	if v := os.Getenv("BRAVE_API_KEY"); v != "" {
		viper.Set("tools.web_search.brave_api_key", v)
	}
	if v := os.Getenv("SERPER_API_KEY"); v != "" {
		viper.Set("tools.web_search.serper_api_key", v)
	}
	if v := os.Getenv("SHOPIFY_BRIDGE_URL"); v != "" {
		viper.Set("tools.shopify.endpoint", v)
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		viper.Set("server.jwt_secret", v)
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Agent.MaxLoopSteps <= 0 {
		return fmt.Errorf("agent.max_loop_steps must be positive")
	}
	if cfg.Agent.MaxPlannedCalls <= 0 {
		return fmt.Errorf("agent.max_planned_calls must be positive")
	}
	if cfg.Agent.BuyIntentThreshold < 0 || cfg.Agent.BuyIntentThreshold > 1 {
		return fmt.Errorf("agent.buy_intent_threshold must be in [0,1]")
	}
	switch cfg.Storage.SessionStore {
	case "inmemory", "redis":
	default:
		return fmt.Errorf("unsupported session store: %s", cfg.Storage.SessionStore)
	}
	return nil
}
