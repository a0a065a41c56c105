package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Detector backends understood by the server and the CLI.
const (
	BackendONNX = "onnx"
	BackendGRPC = "grpc"
)

// Config holds every runtime setting of the pose coach.
type Config struct {
	Port            int
	LogLevel        string
	LogFile         string
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	DetectorBackend        string
	ONNXLibPath            string
	ModelPath              string
	ModelInputSize         int
	MinPoseScore           float64
	MinKeypointScore       float64
	DetectorPoolSize       int
	DetectorAcquireTimeout time.Duration
	PoseDetectorAddr       string

	RedisAddr     string
	FrameCacheTTL time.Duration

	RateLimitRPS       float64
	RateLimitBurst     int
	CORSAllowedOrigins []string
	// TrustedProxies lists proxy IPs or CIDRs allowed to set X-Forwarded-For.
	// Empty means the socket peer is the client.
	TrustedProxies []string
}

var defaults = map[string]interface{}{
	"PORT":                     5000,
	"LOG_LEVEL":                "info",
	"LOG_FILE":                 "",
	"SHUTDOWN_TIMEOUT":         "15s",
	"MAX_BODY_BYTES":           10 << 20,
	"DETECTOR_BACKEND":         BackendONNX,
	"ONNX_LIB_PATH":            "./lib/libonnxruntime.so",
	"MODEL_PATH":               "./models/movenet_singlepose_lightning.onnx",
	"MODEL_INPUT_SIZE":         192,
	"MIN_POSE_SCORE":           0.25,
	"MIN_KEYPOINT_SCORE":       0.2,
	"DETECTOR_POOL_SIZE":       2,
	"DETECTOR_ACQUIRE_TIMEOUT": "5s",
	"POSE_DETECTOR_ADDR":       "pose-service:50051",
	"REDIS_ADDR":               "",
	"FRAME_CACHE_TTL":          "30s",
	"RATE_LIMIT_RPS":           10.0,
	"RATE_LIMIT_BURST":         20,
	"CORS_ALLOWED_ORIGINS":     "*",
	"TRUSTED_PROXIES":          "",
}

// Load reads an optional .env file, then the environment, then an optional
// config file named by POSE_CONFIG_FILE. Environment values win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if file := v.GetString("POSE_CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	cfg := &Config{
		Port:                   v.GetInt("PORT"),
		LogLevel:               v.GetString("LOG_LEVEL"),
		LogFile:                v.GetString("LOG_FILE"),
		ShutdownTimeout:        v.GetDuration("SHUTDOWN_TIMEOUT"),
		MaxBodyBytes:           v.GetInt64("MAX_BODY_BYTES"),
		DetectorBackend:        strings.ToLower(strings.TrimSpace(v.GetString("DETECTOR_BACKEND"))),
		ONNXLibPath:            v.GetString("ONNX_LIB_PATH"),
		ModelPath:              v.GetString("MODEL_PATH"),
		ModelInputSize:         v.GetInt("MODEL_INPUT_SIZE"),
		MinPoseScore:           v.GetFloat64("MIN_POSE_SCORE"),
		MinKeypointScore:       v.GetFloat64("MIN_KEYPOINT_SCORE"),
		DetectorPoolSize:       v.GetInt("DETECTOR_POOL_SIZE"),
		DetectorAcquireTimeout: v.GetDuration("DETECTOR_ACQUIRE_TIMEOUT"),
		PoseDetectorAddr:       v.GetString("POSE_DETECTOR_ADDR"),
		RedisAddr:              v.GetString("REDIS_ADDR"),
		FrameCacheTTL:          v.GetDuration("FRAME_CACHE_TTL"),
		RateLimitRPS:           v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst:         v.GetInt("RATE_LIMIT_BURST"),
		CORSAllowedOrigins:     splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		TrustedProxies:         splitList(v.GetString("TRUSTED_PROXIES")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.DetectorBackend {
	case BackendONNX, BackendGRPC:
	default:
		return fmt.Errorf("unknown DETECTOR_BACKEND %q", c.DetectorBackend)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.DetectorPoolSize <= 0 {
		return fmt.Errorf("DETECTOR_POOL_SIZE must be positive, got %d", c.DetectorPoolSize)
	}
	if c.ModelInputSize <= 0 {
		return fmt.Errorf("MODEL_INPUT_SIZE must be positive, got %d", c.ModelInputSize)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive, got %d", c.MaxBodyBytes)
	}
	for _, proxy := range c.TrustedProxies {
		if net.ParseIP(proxy) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(proxy); err != nil {
			return fmt.Errorf("invalid TRUSTED_PROXIES entry %q", proxy)
		}
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
