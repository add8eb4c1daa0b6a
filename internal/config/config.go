package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	Port           string        `yaml:"port"`
	DatabasePath   string        `yaml:"database_path"`
	Environment    string        `yaml:"environment"`
	GinMode        string        `yaml:"gin_mode"`
	JWTSecret      string        `yaml:"jwt_secret"`
	SessionSecret  string        `yaml:"session_secret"`
	SessionName    string        `yaml:"session_name"`
	TokenTTL       time.Duration `yaml:"token_ttl"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	UploadDir      string        `yaml:"upload_dir"`
	UploadURLPath  string        `yaml:"upload_url_path"`
	UploadSecret   string        `yaml:"upload_secret"`
	UploadURLTTL   time.Duration `yaml:"upload_url_ttl"`
	UploadMaxBytes int64         `yaml:"upload_max_bytes"`
	PublicBaseURL  string        `yaml:"public_base_url"`
	LogLevel       string        `yaml:"log_level"`
	LogPretty      bool          `yaml:"log_pretty"`
	MetricsEnabled bool          `yaml:"metrics_enabled"`
}

// IsDevelopment 判断是否允许向调用方暴露调试信息
func (c AppConfig) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// Load 从 .env、可选的 YAML 文件与环境变量读取应用配置，并为缺失项提供安全的默认值。
// 优先级：环境变量 > CONFIG_FILE > 默认值。
func Load() (AppConfig, error) {
	// .env 不存在时直接使用系统环境变量
	_ = godotenv.Load()

	var file AppConfig
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		loaded, err := readFile(path)
		if err != nil {
			return AppConfig{}, err
		}
		file = loaded
	}

	port := pick("PORT", file.Port, "5174")

	listenAddr := pick("LISTEN_ADDR", file.ListenAddr, "")
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	environment := strings.ToLower(pick("ENVIRONMENT", file.Environment, "production"))

	ginMode := pick("GIN_MODE", file.GinMode, "")
	if ginMode == "" {
		ginMode = "release"
		if environment == "development" {
			ginMode = "debug"
		}
	}

	tokenTTL, err := pickDuration("TOKEN_TTL", file.TokenTTL, 24*time.Hour)
	if err != nil {
		return AppConfig{}, err
	}
	requestTimeout, err := pickDuration("REQUEST_TIMEOUT", file.RequestTimeout, 30*time.Second)
	if err != nil {
		return AppConfig{}, err
	}
	uploadURLTTL, err := pickDuration("UPLOAD_URL_TTL", file.UploadURLTTL, 15*time.Minute)
	if err != nil {
		return AppConfig{}, err
	}

	uploadMaxBytes := file.UploadMaxBytes
	if raw := strings.TrimSpace(os.Getenv("UPLOAD_MAX_BYTES")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return AppConfig{}, fmt.Errorf("parse UPLOAD_MAX_BYTES: %w", err)
		}
		uploadMaxBytes = parsed
	}
	if uploadMaxBytes <= 0 {
		uploadMaxBytes = 5 << 20
	}

	jwtSecret := pick("JWT_SECRET", file.JWTSecret, "inkwell-dev-jwt-secret")
	sessionSecret := pick("SESSION_SECRET", file.SessionSecret, jwtSecret)

	return AppConfig{
		ListenAddr:     listenAddr,
		Port:           port,
		DatabasePath:   pick("DATABASE_PATH", file.DatabasePath, "inkwell.db"),
		Environment:    environment,
		GinMode:        ginMode,
		JWTSecret:      jwtSecret,
		SessionSecret:  sessionSecret,
		SessionName:    pick("SESSION_NAME", file.SessionName, "user_token"),
		TokenTTL:       tokenTTL,
		RequestTimeout: requestTimeout,
		UploadDir:      pick("UPLOAD_DIR", file.UploadDir, "data/uploads"),
		UploadURLPath:  pick("UPLOAD_URL_PATH", file.UploadURLPath, "/uploads"),
		UploadSecret:   pick("UPLOAD_SECRET", file.UploadSecret, jwtSecret),
		UploadURLTTL:   uploadURLTTL,
		UploadMaxBytes: uploadMaxBytes,
		PublicBaseURL:  strings.TrimRight(pick("PUBLIC_BASE_URL", file.PublicBaseURL, "http://localhost:"+port), "/"),
		LogLevel:       strings.ToLower(pick("LOG_LEVEL", file.LogLevel, "info")),
		LogPretty:      pickBool("LOG_PRETTY", file.LogPretty, environment == "development"),
		MetricsEnabled: pickBool("METRICS_ENABLED", file.MetricsEnabled, true),
	}, nil
}

func readFile(path string) (AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return AppConfig{}, fmt.Errorf("config file %s not found", path)
		}
		return AppConfig{}, fmt.Errorf("read config file: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

func pick(key, fileValue, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	if v := strings.TrimSpace(fileValue); v != "" {
		return v
	}
	return def
}

func pickDuration(key string, fileValue, def time.Duration) (time.Duration, error) {
	if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", key, err)
		}
		return d, nil
	}
	if fileValue > 0 {
		return fileValue, nil
	}
	return def, nil
}

func pickBool(key string, fileValue, def bool) bool {
	if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err == nil {
			return parsed
		}
	}
	if fileValue {
		return true
	}
	return def
}
