package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Import  ImportConfig  `mapstructure:"import"`
	Advice  AdviceConfig  `mapstructure:"advice"`
	AI      AIConfig      `mapstructure:"ai"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Version  string `mapstructure:"version"`
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"` // 留空则输出到 stderr
}

// ServerConfig 本机 HTTP 服务配置
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"` // 端口 0 表示动态分配
}

// StorageConfig 存储配置
type StorageConfig struct {
	DBPath        string `mapstructure:"db_path"`
	RecallPath    string `mapstructure:"recall_path"`    // 向量记忆库目录
	RetentionDays int    `mapstructure:"retention_days"` // 0 表示永久保留
}

// ImportConfig CSV 投递目录导入配置
type ImportConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Dir         string `mapstructure:"dir"`
	BufferSize  int    `mapstructure:"buffer_size"`
	DebounceSec int    `mapstructure:"debounce_sec"`
}

// AdviceConfig 自动建议调度配置
type AdviceConfig struct {
	AutoDaily bool `mapstructure:"auto_daily"`
	DailyHour int  `mapstructure:"daily_hour"` // 每天生成建议的整点（本地时间）
}

// AIConfig AI 配置
type AIConfig struct {
	DeepSeek    DeepSeekConfig    `mapstructure:"deepseek"`
	SiliconFlow SiliconFlowConfig `mapstructure:"siliconflow"`
}

// DeepSeekConfig DeepSeek 配置
type DeepSeekConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// SiliconFlowConfig SiliconFlow 嵌入/重排配置
type SiliconFlowConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	RerankerModel  string `mapstructure:"reranker_model"`
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// 设置默认值
	setDefaults(v)

	// 设置配置文件路径
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// 默认查找路径
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// 支持环境变量
	v.SetEnvPrefix("NUTRI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Warn("配置文件未找到，使用默认配置")
		} else {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	} else {
		slog.Info("加载配置文件", "path", v.ConfigFileUsed())
	}

	// 解析配置
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// 处理环境变量占位符
	cfg.AI.DeepSeek.APIKey = expandEnv(cfg.AI.DeepSeek.APIKey)
	cfg.AI.SiliconFlow.APIKey = expandEnv(cfg.AI.SiliconFlow.APIKey)

	// 处理相对路径
	cfg.Storage.DBPath = resolvePath(cfg.Storage.DBPath)
	cfg.Storage.RecallPath = resolvePath(cfg.Storage.RecallPath)
	cfg.Import.Dir = resolvePath(cfg.Import.Dir)
	if cfg.App.LogPath != "" {
		cfg.App.LogPath = resolvePath(cfg.App.LogPath)
	}

	return &cfg, nil
}

// Default 返回内置默认配置（首次运行写出配置文件用）
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "nutrimirror")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_path", "")

	// Server
	v.SetDefault("server.listen_addr", "127.0.0.1:0")

	// Storage
	v.SetDefault("storage.db_path", "./data/nutri.db")
	v.SetDefault("storage.recall_path", "./data/recall")
	v.SetDefault("storage.retention_days", 0)

	// Import
	v.SetDefault("import.enabled", true)
	v.SetDefault("import.dir", "./data/import")
	v.SetDefault("import.buffer_size", 64)
	v.SetDefault("import.debounce_sec", 2)

	// Advice
	v.SetDefault("advice.auto_daily", false)
	v.SetDefault("advice.daily_hour", 20)

	// AI
	v.SetDefault("ai.deepseek.base_url", "https://api.deepseek.com")
	v.SetDefault("ai.deepseek.model", "deepseek-chat")
	v.SetDefault("ai.siliconflow.base_url", "https://api.siliconflow.cn")
	v.SetDefault("ai.siliconflow.embedding_model", "BAAI/bge-m3")
	v.SetDefault("ai.siliconflow.reranker_model", "BAAI/bge-reranker-v2-m3")
}

// expandEnv 展开环境变量占位符 ${VAR}
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		envVar := s[2 : len(s)-1]
		return os.Getenv(envVar)
	}
	return s
}

// resolvePath 解析相对路径为绝对路径
func resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	// 获取可执行文件目录
	exe, err := os.Executable()
	if err != nil {
		return path
	}

	exeDir := filepath.Dir(exe)
	return filepath.Join(exeDir, path)
}

// LoggerOptions 日志初始化选项
type LoggerOptions struct {
	Level     string
	Path      string // 留空则输出到 stderr
	Component string // 进程标识，写入每条日志
}

// SetupLogger 根据配置设置日志输出。
// Path 非空时写入文件，打开失败回退 stderr 并返回该错误；
// 返回的 Closer 在使用日志文件时非空，由调用方在退出时关闭。
func SetupLogger(opts LoggerOptions) (io.Closer, error) {
	var logLevel slog.Level
	switch strings.ToLower(opts.Level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	out := io.Writer(os.Stderr)
	var closer io.Closer
	var openErr error
	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			openErr = fmt.Errorf("创建日志目录失败: %w", err)
		} else if f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err != nil {
			openErr = fmt.Errorf("打开日志文件失败: %w", err)
		} else {
			out = f
			closer = f
		}
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: logLevel,
	})
	logger := slog.New(handler)
	if opts.Component != "" {
		logger = logger.With("component", opts.Component)
	}
	slog.SetDefault(logger)

	if openErr != nil {
		slog.Warn("日志文件不可用，回退 stderr", "path", opts.Path, "error", openErr)
	}
	return closer, openErr
}
