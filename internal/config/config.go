// Package config loads the plugin host's configuration from a YAML file,
// with environment variables overriding individual fields.
//
// Purpose:
//   - Centralize all tunables of the host: subprocess limits, storage
//     paths, the install job queue's Redis backend, and the package
//     index used for online dependency resolution.
//
// Precedence:
//   - YAML file (path from the CONFIG env var, default ./config.yaml)
//   - then environment variable overrides, one per field, following the
//     getEnv/getEnvInt helper pattern used across this codebase.
//   - then the struct's zero-value defaults, set before the YAML is
//     unmarshaled so a missing key never produces a zero timeout.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// RedisConfig holds the install job queue's Redis connection settings.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Addr returns the host:port address go-redis expects.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// PackageConfig holds the options passed to the online dependency
// resolver, mirroring pip's --index-url/--extra-index-url/--trusted-host.
type PackageConfig struct {
	IndexURL      string `yaml:"index_url"`
	ExtraIndexURL string `yaml:"extra_index_url"`
	TrustedHost   string `yaml:"trusted_host"`
}

// Config is the plugin host's complete runtime configuration.
type Config struct {
	Port  string `yaml:"port"`
	Level string `yaml:"level"`
	Pretty bool  `yaml:"pretty"`

	// MaxSubprocess bounds the Process Manager's LRU: the number of
	// concurrently running child workers before the least recently used
	// one is evicted.
	MaxSubprocess int `yaml:"max_subprocess"`

	// ExtensionsPath is the root directory installed packages live under:
	// {ExtensionsPath}/{name}/{version}/.
	ExtensionsPath string `yaml:"extensions_path"`

	// LocalStoragePath is scratch space for downloaded install bundles.
	LocalStoragePath string `yaml:"local_storage_path"`

	// WorkerJobTimeout bounds a single install job attempt.
	WorkerJobTimeout time.Duration `yaml:"worker_job_timeout"`

	// StartProcessMaxRetries/StartProcessRetryDelay bound the client's
	// bootstrap retry loop against a newly spawned child worker.
	StartProcessMaxRetries int           `yaml:"start_process_max_retries"`
	StartProcessRetryDelay time.Duration `yaml:"start_process_retry_delay"`

	// SockDir holds the per-child unix domain sockets.
	SockDir string `yaml:"sock_dir"`

	// WorkerBinaryPath is the compiled pluginworker binary the Process
	// Manager execs for each new child.
	WorkerBinaryPath string `yaml:"worker_binary_path"`

	// ChildPoolSize is loaded from child_pool_size/CHILD_POOL_SIZE but is
	// not passed to spawned children: each child worker sizes its pool for
	// blocking tool calls from its own CHILD_POOL_SIZE environment variable
	// (default 4).
	ChildPoolSize int `yaml:"child_pool_size"`

	// InstallWorkers is the number of goroutines draining the async
	// install job queue.
	InstallWorkers int `yaml:"install_workers"`

	// PluginRateLimitPerMinute/PluginRateLimitBurst bound RunPluginTool
	// calls per (pkg, version), independent of the per-caller HTTP rate
	// limiter, so one noisy plugin can't starve child worker capacity.
	PluginRateLimitPerMinute int `yaml:"plugin_rate_limit_per_minute"`
	PluginRateLimitBurst     int `yaml:"plugin_rate_limit_burst"`

	Package PackageConfig       `yaml:"package"`
	Redis   RedisConfig         `yaml:"redis"`
	Object  ObjectStorageConfig `yaml:"object_storage"`
}

// ObjectStorageConfig is consumed by plugins through their config payload,
// not by the host core; the host only passes it through at startup so
// plugins don't each need their own bucket/credential wiring.
type ObjectStorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// defaults mirrors the zero-value defaults declared on the original
// Config model: 20 max subprocesses, /tmp scratch storage, a 180s job
// timeout.
func defaults() Config {
	return Config{
		Port:                     "8080",
		Level:                    "info",
		MaxSubprocess:            20,
		ExtensionsPath:           "./extensions",
		LocalStoragePath:         "/tmp",
		WorkerJobTimeout:         180 * time.Second,
		StartProcessMaxRetries:   3,
		StartProcessRetryDelay:   200 * time.Millisecond,
		SockDir:                  "/tmp",
		WorkerBinaryPath:         "./pluginworker",
		ChildPoolSize:            4,
		InstallWorkers:           4,
		PluginRateLimitPerMinute: 600,
		PluginRateLimitBurst:     50,
		Redis: RedisConfig{
			Host: "localhost",
			Port: "6379",
			DB:   0,
		},
	}
}

// Load reads the YAML file named by the CONFIG environment variable
// (default ./config.yaml), falling back to defaults if it is missing,
// then applies environment variable overrides.
func Load() (Config, error) {
	cfg := defaults()

	path := getEnv("CONFIG", "./config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Level = getEnv("LOG_LEVEL", cfg.Level)
	cfg.Pretty = getEnvBool("LOG_PRETTY", cfg.Pretty)
	cfg.MaxSubprocess = getEnvInt("MAX_SUBPROCESS", cfg.MaxSubprocess)
	cfg.ExtensionsPath = getEnv("EXTENSIONS_PATH", cfg.ExtensionsPath)
	cfg.LocalStoragePath = getEnv("LOCAL_STORAGE_PATH", cfg.LocalStoragePath)
	cfg.WorkerJobTimeout = getEnvDuration("WORKER_JOB_TIMEOUT", cfg.WorkerJobTimeout)
	cfg.StartProcessMaxRetries = getEnvInt("START_PROCESS_MAX_RETRIES", cfg.StartProcessMaxRetries)
	cfg.StartProcessRetryDelay = getEnvDuration("START_PROCESS_RETRY_DELAY", cfg.StartProcessRetryDelay)
	cfg.SockDir = getEnv("SOCK_DIR", cfg.SockDir)
	cfg.WorkerBinaryPath = getEnv("WORKER_BINARY_PATH", cfg.WorkerBinaryPath)
	cfg.ChildPoolSize = getEnvInt("CHILD_POOL_SIZE", cfg.ChildPoolSize)
	cfg.InstallWorkers = getEnvInt("INSTALL_WORKERS", cfg.InstallWorkers)
	cfg.PluginRateLimitPerMinute = getEnvInt("PLUGIN_RATE_LIMIT_PER_MINUTE", cfg.PluginRateLimitPerMinute)
	cfg.PluginRateLimitBurst = getEnvInt("PLUGIN_RATE_LIMIT_BURST", cfg.PluginRateLimitBurst)

	cfg.Package.IndexURL = getEnv("PACKAGE_INDEX_URL", cfg.Package.IndexURL)
	cfg.Package.ExtraIndexURL = getEnv("PACKAGE_EXTRA_INDEX_URL", cfg.Package.ExtraIndexURL)
	cfg.Package.TrustedHost = getEnv("PACKAGE_TRUSTED_HOST", cfg.Package.TrustedHost)

	cfg.Redis.Host = getEnv("REDIS_HOST", cfg.Redis.Host)
	cfg.Redis.Port = getEnv("REDIS_PORT", cfg.Redis.Port)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("REDIS_DB", cfg.Redis.DB)

	cfg.Object.Endpoint = getEnv("OBJECT_STORAGE_ENDPOINT", cfg.Object.Endpoint)
	cfg.Object.Bucket = getEnv("OBJECT_STORAGE_BUCKET", cfg.Object.Bucket)
	cfg.Object.AccessKey = getEnv("OBJECT_STORAGE_ACCESS_KEY", cfg.Object.AccessKey)
	cfg.Object.SecretKey = getEnv("OBJECT_STORAGE_SECRET_KEY", cfg.Object.SecretKey)
	cfg.Object.UseSSL = getEnvBool("OBJECT_STORAGE_USE_SSL", cfg.Object.UseSSL)
}

// PackagePath returns the install directory for a given package/version.
func (c Config) PackagePath(pkg, version string) string {
	return fmt.Sprintf("%s/%s/%s", c.ExtensionsPath, pkg, version)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
