package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultWeatherAPIURL = "https://api.openweathermap.org/data/2.5/weather"
	defaultLocation      = "Winnipeg,Manitoba"
	defaultUnits         = "metric"
)

var (
	defaultRetryBackoff   = []time.Duration{1 * time.Second, 1 * time.Second, 5 * time.Second}
	defaultTransientCodes = []int{408, 500, 502, 503, 504}
)

// Config holds service configuration loaded from YAML and env. Constant for a run.
type Config struct {
	ServerPort string

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration // per attempt
	Location          string
	Units             string

	RequestTimeout time.Duration

	CacheBackend     string // "in_memory", "memcached" or "redis"
	CacheTTL         time.Duration
	CacheWarmOnStart bool

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisDialTimeout time.Duration

	RetryBackoff         []time.Duration
	FetchTimeout         time.Duration // whole fetch including backoff; 0 = no deadline
	TransientStatusCodes []int
	RateLimitRPS         int
	RateLimitBurst       int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerTimeout          time.Duration

	ShutdownTimeout       time.Duration
	InFlightTimeout       time.Duration
	InFlightCheckInterval time.Duration

	HealthErrorWindow time.Duration
	HealthErrorPct    int
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL      string `yaml:"url"`
		Timeout  string `yaml:"timeout"`
		Location string `yaml:"location"`
		Units    string `yaml:"units"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend     string `yaml:"backend"`
		TTL         string `yaml:"ttl"`
		WarmOnStart bool   `yaml:"warm_on_start"`
		Memcached   struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			Addr        string `yaml:"addr"`
			Password    string `yaml:"password"`
			DB          int    `yaml:"db"`
			DialTimeout string `yaml:"dial_timeout"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Reliability struct {
		RetryBackoff         *[]string `yaml:"retry_backoff"`
		FetchTimeout         string    `yaml:"fetch_timeout"`
		TransientStatusCodes *[]int    `yaml:"transient_status_codes"`
		RateLimitRPS         int       `yaml:"rate_limit_rps"`
		RateLimitBurst       int       `yaml:"rate_limit_burst"`
		CircuitBreaker       struct {
			Enabled          bool   `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Health struct {
		ErrorWindow string `yaml:"error_window"`
		ErrorPct    int    `yaml:"error_pct"`
	} `yaml:"health"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml
// relative to the working directory. A .env file there is loaded first without overriding
// variables already set. API key comes from WEATHER_API_KEY env or the secrets file.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom is Load rooted at dir instead of the working directory.
func LoadFrom(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(dir, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.WeatherAPIKey, err = loadAPIKey(dir)
	if err != nil {
		return nil, err
	}

	cfg.WeatherAPIURL = fc.WeatherAPI.URL
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = defaultWeatherAPIURL
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 5*time.Second)
	cfg.Location = envOr("WEATHER_LOCATION", strings.TrimSpace(fc.WeatherAPI.Location))
	if cfg.Location == "" {
		cfg.Location = defaultLocation
	}
	cfg.Units = strings.ToLower(strings.TrimSpace(fc.WeatherAPI.Units))
	if cfg.Units == "" {
		cfg.Units = defaultUnits
	}

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 35*time.Second)

	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 10*time.Minute)
	cfg.CacheWarmOnStart = fc.Cache.WarmOnStart
	cfg.CacheBackend = strings.ToLower(envOr("CACHE_BACKEND", strings.TrimSpace(fc.Cache.Backend)))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.MemcachedAddrs = envOr("MEMCACHED_ADDRS", strings.TrimSpace(fc.Cache.Memcached.Addrs))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.RedisAddr = envOr("REDIS_ADDR", strings.TrimSpace(fc.Cache.Redis.Addr))
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	cfg.RedisPassword = fc.Cache.Redis.Password
	cfg.RedisDB = fc.Cache.Redis.DB
	cfg.RedisDialTimeout = parseDuration(fc.Cache.Redis.DialTimeout, time.Second)

	cfg.RetryBackoff = defaultRetryBackoff
	if fc.Reliability.RetryBackoff != nil {
		cfg.RetryBackoff, err = parseSchedule(*fc.Reliability.RetryBackoff)
		if err != nil {
			return nil, err
		}
	}
	cfg.FetchTimeout = parseDurationOrZero(fc.Reliability.FetchTimeout, 30*time.Second)
	cfg.TransientStatusCodes = defaultTransientCodes
	if fc.Reliability.TransientStatusCodes != nil {
		// An explicit empty list disables status retries, so keep it non-nil.
		cfg.TransientStatusCodes = append([]int{}, (*fc.Reliability.TransientStatusCodes)...)
	}
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}
	cfg.CircuitBreakerEnabled = fc.Reliability.CircuitBreaker.Enabled
	cfg.CircuitBreakerFailureThreshold = fc.Reliability.CircuitBreaker.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerTimeout = parseDuration(fc.Reliability.CircuitBreaker.Timeout, 30*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.InFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.InFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.HealthErrorWindow = parseDuration(fc.Health.ErrorWindow, 60*time.Second)
	cfg.HealthErrorPct = fc.Health.ErrorPct
	if cfg.HealthErrorPct <= 0 {
		cfg.HealthErrorPct = 50
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadAPIKey(dir string) (string, error) {
	if key := strings.TrimSpace(os.Getenv("WEATHER_API_KEY")); key != "" {
		return key, nil
	}
	secretsData, err := os.ReadFile(filepath.Join(dir, "config", "secrets.yaml"))
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	if err == nil {
		var sec secretsFile
		if err := yaml.Unmarshal(secretsData, &sec); err != nil {
			return "", fmt.Errorf("parse secrets file: %w", err)
		}
		if key := strings.TrimSpace(sec.WeatherAPIKey); key != "" {
			return key, nil
		}
	}
	return "", fmt.Errorf("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")
}

func envOr(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}

// parseSchedule parses retry_backoff entries. An explicit empty list means no retries.
func parseSchedule(raw []string) ([]time.Duration, error) {
	out := make([]time.Duration, 0, len(raw))
	for i, s := range raw {
		d, err := time.ParseDuration(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("reliability.retry_backoff[%d]: %w", i, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("reliability.retry_backoff[%d] must not be negative, got %s", i, s)
		}
		out = append(out, d)
	}
	return out, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// Raises RequestTimeout above FetchTimeout so a request outlives its own refresh.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.FetchTimeout < 0 {
		return fmt.Errorf("reliability.fetch_timeout must not be negative")
	}
	if cfg.FetchTimeout > 0 && cfg.RequestTimeout <= cfg.FetchTimeout {
		cfg.RequestTimeout = cfg.FetchTimeout + time.Second
	}
	switch cfg.Units {
	case "metric", "imperial", "standard":
	default:
		return fmt.Errorf("weather_api.units must be metric, imperial or standard, got %q", cfg.Units)
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached", "redis":
	default:
		return fmt.Errorf("cache.backend must be in_memory, memcached or redis, got %q", cfg.CacheBackend)
	}
	for _, code := range cfg.TransientStatusCodes {
		if code < 100 || code > 599 {
			return fmt.Errorf("reliability.transient_status_codes: %d is not an HTTP status", code)
		}
	}
	if cfg.HealthErrorPct > 100 {
		return fmt.Errorf("health.error_pct must be at most 100, got %d", cfg.HealthErrorPct)
	}
	return nil
}
