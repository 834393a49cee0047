package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Completion providers understood by CompletionConfig.
const (
	ProviderArk    = "ark"
	ProviderOpenAI = "openai"
)

const (
	defaultArkBaseURL    = "https://ark.cn-beijing.volces.com/api/v3"
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server     ServerConfig
	Session    SessionConfig
	Completion CompletionConfig
	Chat       ChatConfig
	LogLevel   string
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	completion, err := loadCompletionConfig()
	if err != nil {
		return nil, err
	}

	chat, err := loadChatConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:     server,
		Session:    session,
		Completion: completion,
		Chat:       chat,
		LogLevel:   getEnvOrDefault("LOG_LEVEL", "info"),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "5000"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":5000" 或 "127.0.0.1:5000"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// SessionConfig 描述会话 cookie 与服务端会话存储配置。
type SessionConfig struct {
	Secret       string
	CookieName   string
	SecureCookie bool
	TTL          time.Duration
	SweepEvery   time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	ttl, err := parseDurationEnv("SESSION_TTL", 24*time.Hour)
	if err != nil {
		return SessionConfig{}, err
	}
	if ttl <= 0 {
		return SessionConfig{}, fmt.Errorf("invalid SESSION_TTL value %q: must be positive", os.Getenv("SESSION_TTL"))
	}

	secure, err := parseBoolEnv("SESSION_SECURE_COOKIE", false)
	if err != nil {
		return SessionConfig{}, err
	}

	sweep := ttl / 4
	if sweep > 10*time.Minute {
		sweep = 10 * time.Minute
	}

	return SessionConfig{
		Secret:       strings.TrimSpace(os.Getenv("SESSION_SECRET")),
		CookieName:   getEnvOrDefault("SESSION_COOKIE_NAME", "ambermind_session"),
		SecureCookie: secure,
		TTL:          ttl,
		SweepEvery:   sweep,
	}, nil
}

// CompletionConfig 描述大模型补全服务相关配置。
type CompletionConfig struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	Region   string
	Timeout  time.Duration
}

// Enabled 表示是否提供了必需的密钥。
func (c CompletionConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c CompletionConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("completion credential or model missing, set COMPLETION_API_KEY and COMPLETION_MODEL")
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL: c.BaseURL,
		Region:  c.Region,
		APIKey:  c.APIKey,
		Model:   c.Model,
	})
}

func loadCompletionConfig() (CompletionConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("COMPLETION_PROVIDER", ProviderOpenAI))
	timeout, err := parseDurationEnv("COMPLETION_TIMEOUT", 30*time.Second)
	if err != nil {
		return CompletionConfig{}, err
	}
	if timeout <= 0 {
		return CompletionConfig{}, fmt.Errorf("invalid COMPLETION_TIMEOUT value %q: must be positive", os.Getenv("COMPLETION_TIMEOUT"))
	}

	cfg := CompletionConfig{
		Provider: provider,
		APIKey:   strings.TrimSpace(os.Getenv("COMPLETION_API_KEY")),
		Model:    strings.TrimSpace(os.Getenv("COMPLETION_MODEL")),
		BaseURL:  strings.TrimSpace(os.Getenv("COMPLETION_BASE_URL")),
		Timeout:  timeout,
	}

	switch provider {
	case ProviderArk:
		if cfg.APIKey == "" {
			cfg.APIKey = strings.TrimSpace(os.Getenv("ARK_API_KEY"))
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultArkBaseURL
		}
		cfg.Region = getEnvOrDefault("ARK_REGION", "cn-beijing")
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			cfg.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultOpenAIBaseURL
		}
		if cfg.Model == "" {
			cfg.Model = defaultOpenAIModel
		}
	default:
		return CompletionConfig{}, fmt.Errorf("invalid COMPLETION_PROVIDER value %q: want %q or %q", provider, ProviderArk, ProviderOpenAI)
	}

	return cfg, nil
}

// ChatConfig 描述会话编排相关配置。
type ChatConfig struct {
	SystemPrompt       string
	RejectMismatchedID bool
}

func loadChatConfig() (ChatConfig, error) {
	reject, err := parseBoolEnv("CHAT_REJECT_MISMATCHED_ID", false)
	if err != nil {
		return ChatConfig{}, err
	}

	return ChatConfig{
		SystemPrompt:       strings.TrimSpace(os.Getenv("CHAT_SYSTEM_PROMPT")),
		RejectMismatchedID: reject,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

// parseDurationEnv 支持 Go duration 字符串（如 "30s"），纯数字按秒处理。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}
