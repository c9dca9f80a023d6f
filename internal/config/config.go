package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config 描述了 defaid 在启动阶段需要加载的核心配置。
type Config struct {
	Server      ServerConfig      `json:"server"`
	AI          AIConfig          `json:"ai"`
	Flare       FlareConfig       `json:"flare"`
	Oracle      OracleConfig      `json:"oracle"`
	Attestation AttestationConfig `json:"attestation"`
	Storage     StorageConfig     `json:"storage"`
	Events      EventsConfig      `json:"events"`
	Chat        ChatConfig        `json:"chat"`
	Log         LogConfig         `json:"log"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// AIConfig 用于配置 Gemini 推理服务的调用方式。
type AIConfig struct {
	APIKey         string `json:"api_key"`
	APIKeyEnv      string `json:"api_key_env"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Timeout 返回大模型调用超时时间。
func (c AIConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ResolveAPIKey 优先使用配置文件中的密钥，其次读取环境变量。
func (c AIConfig) ResolveAPIKey() string {
	if key := strings.TrimSpace(c.APIKey); key != "" {
		return key
	}
	env := strings.TrimSpace(c.APIKeyEnv)
	if env == "" {
		env = "GEMINI_API_KEY"
	}
	return strings.TrimSpace(os.Getenv(env))
}

// FlareConfig 包含访问 Flare 网络所需的 RPC 地址与合约信息。
type FlareConfig struct {
	RPCURL      string `json:"rpc_url"`
	ExplorerURL string `json:"explorer_url"`
	ChainID     int64  `json:"chain_id"`
	FTSOV2      string `json:"ftsov2_address"`
	GasLimit    uint64 `json:"gas_limit"`
	TimeoutSecs int    `json:"timeout_seconds"`
}

// Timeout 返回链上调用的超时时间。
func (c FlareConfig) Timeout() time.Duration {
	if c.TimeoutSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSecs) * time.Second
}

// OracleConfig 控制价格分析引擎访问链下聚合服务的方式。
type OracleConfig struct {
	AggregatorBaseURL string      `json:"aggregator_base_url"`
	FeedCatalog       string      `json:"feed_catalog"`
	TimeoutSeconds    int         `json:"timeout_seconds"`
	Cache             CacheConfig `json:"cache"`
}

// Timeout 返回一次完整分析流程的总超时时间。
func (c OracleConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CacheConfig 描述可选的 Redis 轮次缓存。
type CacheConfig struct {
	Driver     string `json:"driver"`
	Address    string `json:"address"`
	Password   string `json:"password"`
	DB         int    `json:"db"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// TTL 返回缓存条目的过期时间。
func (c CacheConfig) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return 90 * time.Second
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

// AttestationConfig 控制 vTPM 证明服务的访问方式。
type AttestationConfig struct {
	Simulate   bool   `json:"simulate"`
	SocketPath string `json:"socket_path"`
}

// StorageConfig 统一描述对话存档后端的连接信息。
type StorageConfig struct {
	Exchanges ExchangeStoreConfig `json:"exchanges"`
}

// ExchangeStoreConfig 默认提供内存实现，可以切换到 MySQL。
type ExchangeStoreConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	DSNEnv                 string `json:"dsn_env"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

// ResolveDSN 优先使用配置文件中的 DSN，其次读取环境变量。
func (c ExchangeStoreConfig) ResolveDSN() string {
	if dsn := strings.TrimSpace(c.DSN); dsn != "" {
		return dsn
	}
	if env := strings.TrimSpace(c.DSNEnv); env != "" {
		return strings.TrimSpace(os.Getenv(env))
	}
	return ""
}

// EventsConfig 描述交易事件发布器。
type EventsConfig struct {
	Driver   string         `json:"driver"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RabbitMQConfig 描述 RabbitMQ 事件队列的连接参数。
type RabbitMQConfig struct {
	URL     string `json:"url"`
	URLEnv  string `json:"url_env"`
	Queue   string `json:"queue"`
	Durable bool   `json:"durable"`
}

// ResolveURL 优先使用配置文件中的地址，其次读取环境变量。
func (c RabbitMQConfig) ResolveURL() string {
	if url := strings.TrimSpace(c.URL); url != "" {
		return url
	}
	if env := strings.TrimSpace(c.URLEnv); env != "" {
		return strings.TrimSpace(os.Getenv(env))
	}
	return ""
}

// ChatConfig 用于放置会话层的通用参数。
type ChatConfig struct {
	ContextWindow int `json:"context_window"`
}

// LogConfig 控制日志输出。
type LogConfig struct {
	Level       string         `json:"level"`
	Format      string         `json:"format"`
	OutputPaths []string       `json:"output_paths"`
	Audit       AuditLogConfig `json:"audit"`
}

// AuditLogConfig 控制审计日志落盘。
type AuditLogConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.AI.Model == "" {
		c.AI.Model = "gemini-1.5-flash"
	}
	if c.AI.BaseURL == "" {
		c.AI.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	if c.Flare.RPCURL == "" {
		c.Flare.RPCURL = "https://flare-api.flare.network/ext/C/rpc"
	}
	if c.Flare.ExplorerURL == "" {
		c.Flare.ExplorerURL = "https://flare-explorer.flare.network/"
	}
	if c.Flare.ChainID == 0 {
		c.Flare.ChainID = 14
	}

	if c.Oracle.AggregatorBaseURL == "" {
		c.Oracle.AggregatorBaseURL = "https://flr-data-availability.flare.network/api/v0"
	}
	if c.Oracle.FeedCatalog != "" && !filepath.IsAbs(c.Oracle.FeedCatalog) {
		c.Oracle.FeedCatalog = filepath.Join(baseDir, c.Oracle.FeedCatalog)
	}

	if c.Attestation.SocketPath == "" {
		c.Attestation.SocketPath = "/run/container_launcher/teeserver.sock"
	}

	if c.Storage.Exchanges.Driver == "" {
		c.Storage.Exchanges.Driver = "memory"
	}

	if c.Events.Driver == "" {
		c.Events.Driver = "none"
	}

	if c.Chat.ContextWindow <= 0 {
		c.Chat.ContextWindow = 64
	}
}
