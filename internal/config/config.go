package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingCredential 所选模型提供方没有可用的 API Key，进程拒绝启动
var ErrMissingCredential = errors.New("missing API credential for model provider")

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Model        ModelConfig        `mapstructure:"model"`
	Gemini       GeminiConfig       `mapstructure:"gemini"`
	OpenAI       OpenAIConfig       `mapstructure:"openai"`
	Doubao       DoubaoConfig       `mapstructure:"doubao"`
	Qwen         QwenConfig         `mapstructure:"qwen"`
	Prompt       PromptConfig       `mapstructure:"prompt"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	CORS         CORSConfig         `mapstructure:"cors"`
	Log          LogConfig          `mapstructure:"log"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
	// 流式回复的整体超时
	StreamTimeout     time.Duration `mapstructure:"stream_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

type ModelConfig struct {
	// gemini | openai | doubao | qwen
	Provider string `mapstructure:"provider"`
}

type GeminiConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type OpenAIConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	Timeout      time.Duration `mapstructure:"timeout"`
	DebugRequest bool          `mapstructure:"debug_request"`
}

type DoubaoConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

type QwenConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Temperature  float32       `mapstructure:"temperature"`
	TopP         float32       `mapstructure:"top_p"`
	Timeout      time.Duration `mapstructure:"timeout"`
	DebugRequest bool          `mapstructure:"debug_request"`
}

type PromptConfig struct {
	// 为空时使用内置的系统指令
	SystemInstruction     string `mapstructure:"system_instruction"`
	SystemInstructionFile string `mapstructure:"system_instruction_file"`
	Fallback              string `mapstructure:"fallback"`
}

type ConversationConfig struct {
	Locale             string        `mapstructure:"locale"`
	TTL                time.Duration `mapstructure:"ttl"`
	CleanupInterval    time.Duration `mapstructure:"cleanup_interval"`
	ErrorDisplay       time.Duration `mapstructure:"error_display"`
	MaxAttachmentBytes int64         `mapstructure:"max_attachment_bytes"`
	AllowedMimeTypes   []string      `mapstructure:"allowed_mime_types"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// 各提供方的备用环境变量，按顺序查找
var credentialEnv = map[string][]string{
	"gemini": {"API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"openai": {"OPENAI_API_KEY"},
	"doubao": {"DOUBAO_API_KEY", "ARK_API_KEY"},
	"qwen":   {"DASHSCOPE_API_KEY"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.max_header_bytes", 1<<20)
	v.SetDefault("server.stream_timeout", 25*time.Minute)
	v.SetDefault("server.heartbeat_interval", 30*time.Second)

	v.SetDefault("model.provider", "gemini")
	for _, provider := range []string{"gemini", "openai", "doubao", "qwen"} {
		v.SetDefault(provider+".api_key", "")
	}
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.timeout", 2*time.Minute)
	v.SetDefault("qwen.base_url", "https://dashscope.aliyuncs.com/compatible-mode/v1")
	v.SetDefault("qwen.model", "qwen-plus")
	v.SetDefault("qwen.max_tokens", 4096)
	v.SetDefault("qwen.temperature", 0.7)
	v.SetDefault("qwen.top_p", 0.9)
	v.SetDefault("qwen.timeout", 2*time.Minute)

	v.SetDefault("conversation.locale", "vi")
	v.SetDefault("conversation.ttl", 2*time.Hour)
	v.SetDefault("conversation.cleanup_interval", 10*time.Minute)
	v.SetDefault("conversation.error_display", 5*time.Second)
	v.SetDefault("conversation.max_attachment_bytes", 10*1024*1024)
	v.SetDefault("conversation.allowed_mime_types", []string{
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"text/plain",
	})

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "Accept"})
	v.SetDefault("cors.max_age", 43200)

	v.SetDefault("prompt.system_instruction", "")
	v.SetDefault("prompt.system_instruction_file", "")
	v.SetDefault("prompt.fallback", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	v.SetDefault("rate_limit.requests_per_minute", 60)
	v.SetDefault("rate_limit.burst", 10)
}

// Load 读取配置文件；文件不存在时仅使用默认值与环境变量
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Model.Provider = strings.ToLower(strings.TrimSpace(cfg.Model.Provider))
	cfg.applyCredentialEnv()

	if cfg.Prompt.SystemInstruction == "" && cfg.Prompt.SystemInstructionFile != "" {
		data, err := os.ReadFile(cfg.Prompt.SystemInstructionFile)
		if err != nil {
			return nil, fmt.Errorf("read system instruction file: %w", err)
		}
		cfg.Prompt.SystemInstruction = string(data)
	}

	return cfg, nil
}

// 配置文件优先，如果配置文件中没有设置，则使用环境变量
func (c *Config) applyCredentialEnv() {
	keys := map[string]*string{
		"gemini": &c.Gemini.APIKey,
		"openai": &c.OpenAI.APIKey,
		"doubao": &c.Doubao.APIKey,
		"qwen":   &c.Qwen.APIKey,
	}
	for provider, key := range keys {
		if *key != "" {
			continue
		}
		for _, name := range credentialEnv[provider] {
			if val := os.Getenv(name); val != "" {
				*key = val
				break
			}
		}
	}
}

// APIKey 返回当前提供方的凭证
func (c *Config) APIKey() string {
	switch c.Model.Provider {
	case "gemini":
		return c.Gemini.APIKey
	case "openai":
		return c.OpenAI.APIKey
	case "doubao":
		return c.Doubao.APIKey
	case "qwen":
		return c.Qwen.APIKey
	}
	return ""
}

// Validate 校验启动必需项
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case "gemini", "openai", "doubao", "qwen":
	default:
		return fmt.Errorf("unsupported model provider: %q", c.Model.Provider)
	}
	if c.APIKey() == "" {
		return fmt.Errorf("%w: %s", ErrMissingCredential, c.Model.Provider)
	}
	if c.Conversation.MaxAttachmentBytes <= 0 {
		return fmt.Errorf("conversation.max_attachment_bytes must be positive")
	}
	if len(c.Conversation.AllowedMimeTypes) == 0 {
		return fmt.Errorf("conversation.allowed_mime_types must not be empty")
	}
	return nil
}
