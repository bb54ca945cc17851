package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Backend BackendConfig
	Pacing  PacingConfig
	Log     LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	backend, err := loadBackendConfig()
	if err != nil {
		return nil, err
	}

	pacing, err := loadPacingConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Backend: backend, Pacing: pacing, Log: loadLogConfig()}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述本地大模型回复源的配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// BackendConfig 描述外部聊天后端。URL 为空时不使用外部后端。
type BackendConfig struct {
	URL            string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

// Enabled 表示是否配置了外部后端。
func (c BackendConfig) Enabled() bool {
	return c.URL != ""
}

// PacingConfig 描述 EOM 解析与回放节奏。
type PacingConfig struct {
	DefaultPauseMs   int
	MaxPauseMs       int
	InterPartPauseMs int
	DefaultIntensity int
	TablePath        string
}

// LogConfig 描述日志输出。
type LogConfig struct {
	File  string
	Level slog.Level
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

func loadBackendConfig() (BackendConfig, error) {
	timeout, err := parseDurationEnv("CHAT_BACKEND_TIMEOUT", 30*time.Second)
	if err != nil {
		return BackendConfig{}, err
	}

	attempts, err := parseIntEnvOrDefault("CHAT_BACKEND_MAX_ATTEMPTS", 3)
	if err != nil {
		return BackendConfig{}, err
	}
	if attempts < 1 {
		return BackendConfig{}, fmt.Errorf("invalid CHAT_BACKEND_MAX_ATTEMPTS value %d: must be at least 1", attempts)
	}

	backoffMs, err := parseIntEnvOrDefault("CHAT_BACKEND_BACKOFF_MS", 500)
	if err != nil {
		return BackendConfig{}, err
	}

	return BackendConfig{
		URL:            strings.TrimSpace(os.Getenv("CHAT_BACKEND_URL")),
		Timeout:        timeout,
		MaxAttempts:    attempts,
		InitialBackoff: time.Duration(backoffMs) * time.Millisecond,
	}, nil
}

func loadPacingConfig() (PacingConfig, error) {
	cfg := PacingConfig{TablePath: strings.TrimSpace(os.Getenv("PACING_TABLE_PATH"))}

	var err error
	if cfg.DefaultPauseMs, err = parseIntEnvOrDefault("EOM_DEFAULT_PAUSE_MS", 2000); err != nil {
		return PacingConfig{}, err
	}
	if cfg.MaxPauseMs, err = parseIntEnvOrDefault("EOM_MAX_PAUSE_MS", 10000); err != nil {
		return PacingConfig{}, err
	}
	if cfg.InterPartPauseMs, err = parseIntEnvOrDefault("EOM_INTER_PART_PAUSE_MS", 300); err != nil {
		return PacingConfig{}, err
	}
	if cfg.DefaultIntensity, err = parseIntEnvOrDefault("EOM_DEFAULT_INTENSITY", 2); err != nil {
		return PacingConfig{}, err
	}

	switch {
	case cfg.DefaultPauseMs <= 0:
		return PacingConfig{}, fmt.Errorf("invalid EOM_DEFAULT_PAUSE_MS value %d: must be positive", cfg.DefaultPauseMs)
	case cfg.MaxPauseMs < cfg.DefaultPauseMs:
		return PacingConfig{}, fmt.Errorf("invalid EOM_MAX_PAUSE_MS value %d: below the default pause", cfg.MaxPauseMs)
	case cfg.InterPartPauseMs < 0:
		return PacingConfig{}, fmt.Errorf("invalid EOM_INTER_PART_PAUSE_MS value %d: must not be negative", cfg.InterPartPauseMs)
	case cfg.DefaultIntensity < 1 || cfg.DefaultIntensity > 4:
		return PacingConfig{}, fmt.Errorf("invalid EOM_DEFAULT_INTENSITY value %d: must be within 1..4", cfg.DefaultIntensity)
	}
	return cfg, nil
}

func loadLogConfig() LogConfig {
	return LogConfig{
		File:  strings.TrimSpace(os.Getenv("LOG_FILE")),
		Level: ParseLevel(os.Getenv("LOG_LEVEL")),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseIntEnvOrDefault(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil || val == nil {
		return defaultValue, err
	}
	return *val, nil
}

// parseDurationEnv 接受 Go 时长格式（如 "15s"）或纯数字秒数。
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
