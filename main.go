package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	log "go-passport-reader/logging"
	"go-passport-reader/ocr"
	redis "go-passport-reader/redis"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const (
	defaultUploadDir      = "./uploads"
	defaultMaxUploadBytes = 20 << 20
	defaultSweepInterval  = 10 * 60
	defaultSweepMinAge    = 10 * 60
)

type Config struct {
	ServerConfig ServerConfig `json:"server_config"`

	UploadDir      string   `json:"upload_dir"`
	MaxUploadBytes int64    `json:"max_upload_bytes"`
	LogLevel       string   `json:"log_level"`
	LogFormat      string   `json:"log_format"`
	AllowedOrigins []string `json:"allowed_origins"`
	StaticDir      string   `json:"static_dir,omitempty"`

	OcrConfig ocr.Config `json:"ocr_config"`

	StorageType         string                    `json:"storage_type"`
	RedisConfig         redis.RedisConfig         `json:"redis_config,omitempty"`
	RedisSentinelConfig redis.RedisSentinelConfig `json:"redis_sentinel_config,omitempty"`

	SweepIntervalSeconds int `json:"sweep_interval_seconds"`
	SweepMinAgeSeconds   int `json:"sweep_min_age_seconds"`
}

func main() {
	configPath := flag.String("config", "", "Path for the config.json to use")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	config := defaultConfig()
	if *configPath != "" {
		var err error
		config, err = readConfigFile(*configPath)
		if err != nil {
			slog.Error("failed to read config file", "path", *configPath, "error", err)
			os.Exit(1)
		}
	}
	applyEnvOverrides(&config)
	applyDefaults(&config)

	log.InitLogger(config.LogLevel, config.LogFormat)
	slog.Info("using config", "path", *configPath, "upload_dir", config.UploadDir, "storage_type", config.StorageType)

	if err := run(config); err != nil {
		slog.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(config Config) error {
	registry, err := createUploadRegistry(&config)
	if err != nil {
		return fmt.Errorf("failed to instantiate upload registry: %w", err)
	}

	uploads, err := NewUploadStore(config.UploadDir, registry)
	if err != nil {
		return err
	}

	engine := ocr.NewTesseractEngine(config.OcrConfig)
	if version, err := engine.Version(); err != nil {
		slog.Warn("OCR engine not usable at startup", "engine", engine.Name(), "error", err)
	} else {
		slog.Info("OCR engine ready", "engine", engine.Name(), "version", version)
	}

	serverState := ServerState{
		uploads:        uploads,
		extractor:      NewMRZExtractor(uploads, ocr.NewLocator(engine), engine),
		maxUploadBytes: config.MaxUploadBytes,
		allowedOrigins: config.AllowedOrigins,
		staticDir:      config.StaticDir,
	}

	server, err := NewServer(&serverState, config.ServerConfig)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	sweeper := NewSweeper(
		config.UploadDir,
		registry,
		time.Duration(config.SweepMinAgeSeconds)*time.Second,
		time.Duration(config.SweepIntervalSeconds)*time.Second,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to listen and serve: %w", err)
	})
	g.Go(func() error {
		return sweeper.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func defaultConfig() Config {
	config := Config{}
	applyDefaults(&config)
	return config
}

func readConfigFile(path string) (Config, error) {
	configBytes, err := os.ReadFile(path)

	if err != nil {
		return Config{}, err
	}

	var config Config
	err = json.Unmarshal(configBytes, &config)

	if err != nil {
		return Config{}, err
	}

	return config, nil
}

// applyEnvOverrides lets the environment (or .env) replace a few settings
// that differ per deployment.
func applyEnvOverrides(config *Config) {
	if host := os.Getenv("HOST"); host != "" {
		config.ServerConfig.Host = host
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.ServerConfig.Port = p
		} else {
			slog.Warn("ignoring invalid PORT", "value", port, "error", err)
		}
	}
	if dir := os.Getenv("UPLOAD_DIR"); dir != "" {
		config.UploadDir = dir
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = allowedOriginsFromList(origins)
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		config.RedisConfig.Password = password
		config.RedisSentinelConfig.Password = password
	}
	if prefix := os.Getenv("TESSDATA_PREFIX"); prefix != "" {
		config.OcrConfig.TessdataPrefix = prefix
	}
}

func applyDefaults(config *Config) {
	if config.ServerConfig.Host == "" {
		config.ServerConfig.Host = "0.0.0.0"
	}
	if config.ServerConfig.Port == 0 {
		config.ServerConfig.Port = 5000
	}
	if config.UploadDir == "" {
		config.UploadDir = defaultUploadDir
	}
	if config.MaxUploadBytes == 0 {
		config.MaxUploadBytes = defaultMaxUploadBytes
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.LogFormat == "" {
		config.LogFormat = "text"
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}
	if config.StorageType == "" {
		config.StorageType = "memory"
	}
	if config.SweepIntervalSeconds == 0 {
		config.SweepIntervalSeconds = defaultSweepInterval
	}
	if config.SweepMinAgeSeconds == 0 {
		config.SweepMinAgeSeconds = defaultSweepMinAge
	}
}

func createUploadRegistry(config *Config) (UploadRegistry, error) {
	if config.StorageType == "redis" {
		slog.Info("Using redis upload registry")
		client, err := redis.NewRedisClient(&config.RedisConfig)
		if err != nil {
			return nil, err
		}
		return NewRedisUploadRegistry(client, config.RedisConfig.Namespace), nil
	}
	if config.StorageType == "redis_sentinel" {
		slog.Info("Using redis sentinel upload registry")
		client, err := redis.NewRedisSentinelClient(&config.RedisSentinelConfig)
		if err != nil {
			return nil, err
		}
		return NewRedisUploadRegistry(client, config.RedisSentinelConfig.Namespace), nil
	}
	if config.StorageType == "memory" {
		slog.Info("Using in memory upload registry")
		return NewInMemoryUploadRegistry(), nil
	}
	return nil, fmt.Errorf("%v is not a valid storage type", config.StorageType)
}
