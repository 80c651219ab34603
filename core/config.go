package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the trip planner runtime.
// Three layers feed it, each overriding the one below:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// The configuration automatically detects the execution environment
// (Kubernetes vs local) and adjusts defaults accordingly.
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithName("tripsmith-planner"),
//	    WithRedisURL("redis://localhost:6379"),
//	    WithTaskMode("queue"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	// Core configuration
	Name      string `json:"name" yaml:"name" env:"TRIPSMITH_SERVICE_NAME"`
	Namespace string `json:"namespace" yaml:"namespace" env:"TRIPSMITH_NAMESPACE" default:"default"`

	// Redis connection shared by the task subsystem and plan cache
	Redis RedisConfig `json:"redis" yaml:"redis"`

	// Background task configuration
	Tasks TaskConfig `json:"tasks" yaml:"tasks"`

	// Reasoning service configuration
	Reasoning ReasoningConfig `json:"reasoning" yaml:"reasoning"`

	// Research providers configuration
	Research ResearchConfig `json:"research" yaml:"research"`

	// Media generation configuration
	Media MediaConfig `json:"media" yaml:"media"`

	// Itinerary persistence configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Session plan cache configuration
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// Telemetry configuration (optional)
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Development configuration
	Development DevelopmentConfig `json:"development" yaml:"development"`

	// Kubernetes specific configuration
	Kubernetes KubernetesConfig `json:"kubernetes" yaml:"kubernetes"`
}

// RedisConfig contains the Redis connection settings.
// A single URL serves all subsystems; isolation happens per Redis DB
// (see the DB allocation constants in redis_client.go).
type RedisConfig struct {
	URL string `json:"url" yaml:"url" env:"TRIPSMITH_REDIS_URL,REDIS_URL"`
}

// ReasoningConfig contains reasoning service configuration for LLM calls.
// The planner treats the reasoning service as an opaque collaborator;
// only transport-level settings live here.
type ReasoningConfig struct {
	Enabled       bool          `json:"enabled" yaml:"enabled" env:"TRIPSMITH_REASONING_ENABLED" default:"false"`
	Provider      string        `json:"provider" yaml:"provider" env:"TRIPSMITH_REASONING_PROVIDER" default:"gemini"`
	APIKey        string        `json:"api_key" yaml:"api_key" env:"TRIPSMITH_REASONING_API_KEY,GEMINI_API_KEY,GOOGLE_API_KEY"`
	BaseURL       string        `json:"base_url" yaml:"base_url" env:"TRIPSMITH_REASONING_BASE_URL"`
	Model         string        `json:"model" yaml:"model" env:"TRIPSMITH_REASONING_MODEL" default:"gemini-2.0-flash"`
	Temperature   float32       `json:"temperature" yaml:"temperature" env:"TRIPSMITH_REASONING_TEMPERATURE" default:"0.7"`
	MaxTokens     int           `json:"max_tokens" yaml:"max_tokens" env:"TRIPSMITH_REASONING_MAX_TOKENS" default:"4096"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout" env:"TRIPSMITH_REASONING_TIMEOUT" default:"60s"`
	RetryAttempts int           `json:"retry_attempts" yaml:"retry_attempts" env:"TRIPSMITH_REASONING_RETRY_ATTEMPTS" default:"3"`
	RetryDelay    time.Duration `json:"retry_delay" yaml:"retry_delay" env:"TRIPSMITH_REASONING_RETRY_DELAY" default:"5s"`
}

// ResearchConfig contains research provider configuration.
// MaxAttempts bounds the broadening retry loop of trend discovery.
type ResearchConfig struct {
	MaxAttempts     int                  `json:"max_attempts" yaml:"max_attempts" env:"TRIPSMITH_RESEARCH_MAX_ATTEMPTS" default:"3"`
	ProviderTimeout time.Duration        `json:"provider_timeout" yaml:"provider_timeout" env:"TRIPSMITH_RESEARCH_PROVIDER_TIMEOUT" default:"20s"`
	CacheEnabled    bool                 `json:"cache_enabled" yaml:"cache_enabled" env:"TRIPSMITH_RESEARCH_CACHE" default:"false"`
	CacheTTL        time.Duration        `json:"cache_ttl" yaml:"cache_ttl" env:"TRIPSMITH_RESEARCH_CACHE_TTL" default:"10m"`
	Breaker         CircuitBreakerConfig `json:"breaker" yaml:"breaker"`
	Neo4j           Neo4jConfig          `json:"neo4j" yaml:"neo4j"`
	Providers       ProvidersConfig      `json:"providers" yaml:"providers"`
}

// ProvidersConfig holds credentials for the external research sources.
// Providers whose credentials are absent either fall back to static
// results (weather, hotels, social) or are simply not registered
// (places, flights).
type ProvidersConfig struct {
	PlacesAPIKey        string `json:"places_api_key" yaml:"places_api_key" env:"TRIPSMITH_PLACES_API_KEY,GOOGLE_PLACES_API_KEY,GOOGLE_MAPS_API_KEY"`
	HotelsAPIKey        string `json:"hotels_api_key" yaml:"hotels_api_key" env:"TRIPSMITH_HOTELS_API_KEY,RAPIDAPI_KEY"`
	FlightsClientID     string `json:"flights_client_id" yaml:"flights_client_id" env:"TRIPSMITH_FLIGHTS_CLIENT_ID,AMADEUS_CLIENT_ID"`
	FlightsClientSecret string `json:"flights_client_secret" yaml:"flights_client_secret" env:"TRIPSMITH_FLIGHTS_CLIENT_SECRET,AMADEUS_CLIENT_SECRET"`
	WeatherAPIKey       string `json:"weather_api_key" yaml:"weather_api_key" env:"TRIPSMITH_WEATHER_API_KEY,OPENWEATHER_API_KEY"`
	ApifyToken          string `json:"apify_token" yaml:"apify_token" env:"TRIPSMITH_APIFY_TOKEN,APIFY_TOKEN"`
}

// Neo4jConfig contains the graph database connection used by the
// destination knowledge provider.
type Neo4jConfig struct {
	URI      string `json:"uri" yaml:"uri" env:"TRIPSMITH_NEO4J_URI,NEO4J_URI"`
	Username string `json:"username" yaml:"username" env:"TRIPSMITH_NEO4J_USERNAME,NEO4J_USERNAME"`
	Password string `json:"password" yaml:"password" env:"TRIPSMITH_NEO4J_PASSWORD,NEO4J_PASSWORD"`
	Database string `json:"database" yaml:"database" env:"TRIPSMITH_NEO4J_DATABASE" default:"neo4j"`
}

// MediaConfig contains media generation configuration.
// Poster and video rendering run as background tasks; polling settings
// bound how long a worker waits on the rendering backend.
type MediaConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled" env:"TRIPSMITH_MEDIA_ENABLED" default:"false"`
	APIKey       string        `json:"api_key" yaml:"api_key" env:"TRIPSMITH_MEDIA_API_KEY"`
	ConceptModel string        `json:"concept_model" yaml:"concept_model" env:"TRIPSMITH_MEDIA_CONCEPT_MODEL" default:"gemini-2.0-flash"`
	ImageModel   string        `json:"image_model" yaml:"image_model" env:"TRIPSMITH_MEDIA_IMAGE_MODEL" default:"imagen-3.0-generate-002"`
	VideoModel   string        `json:"video_model" yaml:"video_model" env:"TRIPSMITH_MEDIA_VIDEO_MODEL" default:"veo-2.0-generate-001"`
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval" env:"TRIPSMITH_MEDIA_POLL_INTERVAL" default:"10s"`
	PollTimeout  time.Duration `json:"poll_timeout" yaml:"poll_timeout" env:"TRIPSMITH_MEDIA_POLL_TIMEOUT" default:"5m"`
	Assets       AssetsConfig  `json:"assets" yaml:"assets"`
}

// AssetsConfig contains the asset store configuration for generated media.
// Endpoint overrides the S3 endpoint for S3-compatible stores; PublicURL
// is the base URL clients should use to fetch stored assets (defaults to
// the standard bucket URL when empty).
type AssetsConfig struct {
	Provider  string `json:"provider" yaml:"provider" env:"TRIPSMITH_ASSETS_PROVIDER" default:"noop"`
	Bucket    string `json:"bucket" yaml:"bucket" env:"TRIPSMITH_ASSETS_BUCKET"`
	Region    string `json:"region" yaml:"region" env:"TRIPSMITH_ASSETS_REGION,AWS_REGION"`
	Prefix    string `json:"prefix" yaml:"prefix" env:"TRIPSMITH_ASSETS_PREFIX" default:"media"`
	Endpoint  string `json:"endpoint" yaml:"endpoint" env:"TRIPSMITH_ASSETS_ENDPOINT"`
	PublicURL string `json:"public_url" yaml:"public_url" env:"TRIPSMITH_ASSETS_PUBLIC_URL"`
	AccessKey string `json:"access_key" yaml:"access_key" env:"TRIPSMITH_ASSETS_ACCESS_KEY"`
	SecretKey string `json:"secret_key" yaml:"secret_key" env:"TRIPSMITH_ASSETS_SECRET_KEY"`
}

// StorageConfig contains itinerary persistence configuration.
// Supports in-memory storage (default) or Postgres.
type StorageConfig struct {
	Provider    string `json:"provider" yaml:"provider" env:"TRIPSMITH_STORAGE_PROVIDER" default:"memory"`
	PostgresDSN string `json:"postgres_dsn" yaml:"postgres_dsn" env:"TRIPSMITH_POSTGRES_DSN,DATABASE_URL"`
}

// CacheConfig contains the session plan cache configuration.
// The cache is advisory: reads fall back to the authoritative store.
type CacheConfig struct {
	Enabled bool          `json:"enabled" yaml:"enabled" env:"TRIPSMITH_CACHE_ENABLED" default:"true"`
	PlanTTL time.Duration `json:"plan_ttl" yaml:"plan_ttl" env:"TRIPSMITH_CACHE_PLAN_TTL" default:"15m"`
}

// TelemetryConfig contains observability configuration for metrics and
// distributed tracing. This is optional; telemetry is only initialized
// when Enabled=true. The endpoint should be the OTLP receiver address.
type TelemetryConfig struct {
	Enabled        bool    `json:"enabled" yaml:"enabled" env:"TRIPSMITH_TELEMETRY_ENABLED" default:"false"`
	Endpoint       string  `json:"endpoint" yaml:"endpoint" env:"TRIPSMITH_TELEMETRY_ENDPOINT,OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName    string  `json:"service_name" yaml:"service_name" env:"TRIPSMITH_TELEMETRY_SERVICE_NAME,OTEL_SERVICE_NAME"`
	MetricsEnabled bool    `json:"metrics_enabled" yaml:"metrics_enabled" env:"TRIPSMITH_TELEMETRY_METRICS" default:"true"`
	TracingEnabled bool    `json:"tracing_enabled" yaml:"tracing_enabled" env:"TRIPSMITH_TELEMETRY_TRACING" default:"true"`
	SamplingRate   float64 `json:"sampling_rate" yaml:"sampling_rate" env:"TRIPSMITH_TELEMETRY_SAMPLING_RATE" default:"1.0"`
	Insecure       bool    `json:"insecure" yaml:"insecure" env:"TRIPSMITH_TELEMETRY_INSECURE" default:"true"`
}

// LoggingConfig contains logging configuration.
// Supports structured (JSON) and human-readable (text) formats.
// In Kubernetes environments, JSON format is recommended for log aggregation.
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level" env:"TRIPSMITH_LOG_LEVEL" default:"info"`
	Format     string `json:"format" yaml:"format" env:"TRIPSMITH_LOG_FORMAT" default:"json"`
	Output     string `json:"output" yaml:"output" env:"TRIPSMITH_LOG_OUTPUT" default:"stdout"`
	TimeFormat string `json:"time_format" yaml:"time_format" env:"TRIPSMITH_LOG_TIME_FORMAT" default:"2006-01-02T15:04:05.000Z07:00"`
}

// DevelopmentConfig contains settings for local development and testing.
// When Enabled=true, the runtime prefers human-readable logs, mock
// services, and debug logging. Keep it off in production.
type DevelopmentConfig struct {
	Enabled       bool `json:"enabled" yaml:"enabled" env:"TRIPSMITH_DEV_MODE" default:"false"`
	MockReasoning bool `json:"mock_reasoning" yaml:"mock_reasoning" env:"TRIPSMITH_MOCK_REASONING" default:"false"`
	DebugLogging  bool `json:"debug_logging" yaml:"debug_logging" env:"TRIPSMITH_DEBUG" default:"false"`
	PrettyLogs    bool `json:"pretty_logs" yaml:"pretty_logs" env:"TRIPSMITH_PRETTY_LOGS" default:"false"`
}

// KubernetesConfig carries the pod identity picked up when the runtime
// finds KUBERNETES_SERVICE_HOST in the environment.
type KubernetesConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled" env:"KUBERNETES_SERVICE_HOST"`
	PodName      string `json:"pod_name" yaml:"pod_name" env:"HOSTNAME"`
	PodNamespace string `json:"pod_namespace" yaml:"pod_namespace" env:"TRIPSMITH_K8S_NAMESPACE"`
}

// Option is a functional option for configuring the runtime.
// Options are applied in order and can return an error if the
// configuration is invalid.
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults.
// The defaults are adjusted based on the detected environment:
//   - Kubernetes: JSON logging, cluster Redis URL
//   - Local: text logging, development mode
//
// These defaults can be overridden using functional options or
// environment variables.
func DefaultConfig() *Config {
	cfg := &Config{
		Name:      "tripsmith-planner",
		Namespace: "default",
		Tasks:     DefaultTaskConfig(),
		Reasoning: ReasoningConfig{
			Enabled:       false,
			Provider:      "gemini",
			Model:         "gemini-2.0-flash",
			Temperature:   0.7,
			MaxTokens:     4096,
			Timeout:       60 * time.Second,
			RetryAttempts: 3,
			RetryDelay:    5 * time.Second,
		},
		Research: ResearchConfig{
			MaxAttempts:     3,
			ProviderTimeout: 20 * time.Second,
			CacheEnabled:    false,
			CacheTTL:        10 * time.Minute,
			Breaker: CircuitBreakerConfig{
				Enabled:          true,
				Threshold:        5,
				Timeout:          30 * time.Second,
				HalfOpenRequests: 3,
			},
			Neo4j: Neo4jConfig{
				Database: "neo4j",
			},
		},
		Media: MediaConfig{
			Enabled:      false,
			ConceptModel: "gemini-2.0-flash",
			ImageModel:   "imagen-3.0-generate-002",
			VideoModel:   "veo-2.0-generate-001",
			PollInterval: 10 * time.Second,
			PollTimeout:  5 * time.Minute,
			Assets: AssetsConfig{
				Provider: "noop",
				Prefix:   "media",
			},
		},
		Storage: StorageConfig{
			Provider: "memory",
		},
		Cache: CacheConfig{
			Enabled: true,
			PlanTTL: 15 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			MetricsEnabled: true,
			TracingEnabled: true,
			SamplingRate:   1.0,
			Insecure:       true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			TimeFormat: time.RFC3339Nano,
		},
		Development: DevelopmentConfig{
			Enabled:       false,
			MockReasoning: false,
			DebugLogging:  false,
			PrettyLogs:    false,
		},
	}

	// Detect environment and adjust defaults
	cfg.DetectEnvironment()

	return cfg
}

// DetectEnvironment adjusts defaults for where the process is running.
// A set KUBERNETES_SERVICE_HOST means in-cluster; anything else is
// treated as a local workstation. Called by DefaultConfig().
func (c *Config) DetectEnvironment() {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		c.Kubernetes.Enabled = true
		c.Redis.URL = "redis://redis.default.svc.cluster.local:6379"
		c.Logging.Format = "json" // Structured logs for K8s
	} else {
		c.Redis.URL = "redis://localhost:6379"

		// Enable development mode for local
		if os.Getenv("TRIPSMITH_DEV_MODE") == "" {
			c.Development.Enabled = true
			c.Development.PrettyLogs = true
			c.Logging.Format = "text" // Human-readable logs
		}
	}
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables take precedence over defaults but are
// overridden by functional options.
//
// Variable naming convention:
//   - Planner-specific: TRIPSMITH_<SETTING>
//   - Standard variables: REDIS_URL, GEMINI_API_KEY, NEO4J_URI,
//     DATABASE_URL, OTEL_EXPORTER_OTLP_ENDPOINT
func (c *Config) LoadFromEnv() error {
	// Core settings
	if v := os.Getenv("TRIPSMITH_SERVICE_NAME"); v != "" {
		c.Name = v
	}
	if v := os.Getenv("TRIPSMITH_NAMESPACE"); v != "" {
		c.Namespace = v
	}

	// Redis settings
	if v := os.Getenv("TRIPSMITH_REDIS_URL"); v != "" {
		c.Redis.URL = v
	} else if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}

	// Task settings
	if v := os.Getenv("TRIPSMITH_TASKS_MODE"); v != "" {
		c.Tasks.Mode = v
	}
	if v := os.Getenv("TRIPSMITH_TASKS_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Tasks.WorkerCount = n
		}
	}
	if v := os.Getenv("TRIPSMITH_TASKS_RESULT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Tasks.ResultTTL = d
		}
	}

	// Reasoning settings
	if v := os.Getenv("TRIPSMITH_REASONING_ENABLED"); v != "" {
		c.Reasoning.Enabled = parseBool(v)
	}
	if v := os.Getenv("TRIPSMITH_REASONING_API_KEY"); v != "" {
		c.Reasoning.APIKey = v
		c.Reasoning.Enabled = true // Auto-enable if API key is provided
	} else if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Reasoning.APIKey = v
		c.Reasoning.Enabled = true
	} else if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		c.Reasoning.APIKey = v
		c.Reasoning.Enabled = true
	}
	if v := os.Getenv("TRIPSMITH_REASONING_MODEL"); v != "" {
		c.Reasoning.Model = v
	}
	if v := os.Getenv("TRIPSMITH_REASONING_BASE_URL"); v != "" {
		c.Reasoning.BaseURL = v
	}
	if v := os.Getenv("TRIPSMITH_REASONING_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Reasoning.Timeout = d
		}
	}

	// Research settings
	if v := os.Getenv("TRIPSMITH_RESEARCH_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Research.MaxAttempts = n
		}
	}
	if v := os.Getenv("TRIPSMITH_RESEARCH_CACHE"); v != "" {
		c.Research.CacheEnabled = parseBool(v)
	}
	if v := os.Getenv("TRIPSMITH_RESEARCH_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Research.CacheTTL = d
		}
	}
	c.Research.Providers.PlacesAPIKey = firstEnv(c.Research.Providers.PlacesAPIKey,
		"TRIPSMITH_PLACES_API_KEY", "GOOGLE_PLACES_API_KEY", "GOOGLE_MAPS_API_KEY")
	c.Research.Providers.HotelsAPIKey = firstEnv(c.Research.Providers.HotelsAPIKey,
		"TRIPSMITH_HOTELS_API_KEY", "RAPIDAPI_KEY")
	c.Research.Providers.FlightsClientID = firstEnv(c.Research.Providers.FlightsClientID,
		"TRIPSMITH_FLIGHTS_CLIENT_ID", "AMADEUS_CLIENT_ID")
	c.Research.Providers.FlightsClientSecret = firstEnv(c.Research.Providers.FlightsClientSecret,
		"TRIPSMITH_FLIGHTS_CLIENT_SECRET", "AMADEUS_CLIENT_SECRET")
	c.Research.Providers.WeatherAPIKey = firstEnv(c.Research.Providers.WeatherAPIKey,
		"TRIPSMITH_WEATHER_API_KEY", "OPENWEATHER_API_KEY")
	c.Research.Providers.ApifyToken = firstEnv(c.Research.Providers.ApifyToken,
		"TRIPSMITH_APIFY_TOKEN", "APIFY_TOKEN")
	if v := os.Getenv("TRIPSMITH_NEO4J_URI"); v != "" {
		c.Research.Neo4j.URI = v
	} else if v := os.Getenv("NEO4J_URI"); v != "" {
		c.Research.Neo4j.URI = v
	}
	if v := os.Getenv("TRIPSMITH_NEO4J_USERNAME"); v != "" {
		c.Research.Neo4j.Username = v
	} else if v := os.Getenv("NEO4J_USERNAME"); v != "" {
		c.Research.Neo4j.Username = v
	}
	if v := os.Getenv("TRIPSMITH_NEO4J_PASSWORD"); v != "" {
		c.Research.Neo4j.Password = v
	} else if v := os.Getenv("NEO4J_PASSWORD"); v != "" {
		c.Research.Neo4j.Password = v
	}

	// Media settings
	if v := os.Getenv("TRIPSMITH_MEDIA_ENABLED"); v != "" {
		c.Media.Enabled = parseBool(v)
	}
	if v := os.Getenv("TRIPSMITH_MEDIA_API_KEY"); v != "" {
		c.Media.APIKey = v
		c.Media.Enabled = true // Auto-enable if API key is provided
	}
	if v := os.Getenv("TRIPSMITH_MEDIA_IMAGE_MODEL"); v != "" {
		c.Media.ImageModel = v
	}
	if v := os.Getenv("TRIPSMITH_MEDIA_VIDEO_MODEL"); v != "" {
		c.Media.VideoModel = v
	}
	if v := os.Getenv("TRIPSMITH_MEDIA_POLL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Media.PollTimeout = d
		}
	}
	if v := os.Getenv("TRIPSMITH_ASSETS_PROVIDER"); v != "" {
		c.Media.Assets.Provider = v
	}
	if v := os.Getenv("TRIPSMITH_ASSETS_BUCKET"); v != "" {
		c.Media.Assets.Bucket = v
		c.Media.Assets.Provider = "s3" // Auto-select S3 when a bucket is configured
	}
	if v := os.Getenv("TRIPSMITH_ASSETS_REGION"); v != "" {
		c.Media.Assets.Region = v
	} else if v := os.Getenv("AWS_REGION"); v != "" {
		c.Media.Assets.Region = v
	}
	if v := os.Getenv("TRIPSMITH_ASSETS_ENDPOINT"); v != "" {
		c.Media.Assets.Endpoint = v
	}
	if v := os.Getenv("TRIPSMITH_ASSETS_PUBLIC_URL"); v != "" {
		c.Media.Assets.PublicURL = v
	}
	if v := os.Getenv("TRIPSMITH_ASSETS_ACCESS_KEY"); v != "" {
		c.Media.Assets.AccessKey = v
	}
	if v := os.Getenv("TRIPSMITH_ASSETS_SECRET_KEY"); v != "" {
		c.Media.Assets.SecretKey = v
	}

	// Storage settings
	if v := os.Getenv("TRIPSMITH_STORAGE_PROVIDER"); v != "" {
		c.Storage.Provider = v
	}
	if v := os.Getenv("TRIPSMITH_POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
		c.Storage.Provider = "postgres" // Auto-select Postgres when a DSN is configured
	} else if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Storage.PostgresDSN = v
		c.Storage.Provider = "postgres"
	}

	// Cache settings
	if v := os.Getenv("TRIPSMITH_CACHE_ENABLED"); v != "" {
		c.Cache.Enabled = parseBool(v)
	}
	if v := os.Getenv("TRIPSMITH_CACHE_PLAN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Cache.PlanTTL = d
		}
	}

	// Telemetry settings
	if v := os.Getenv("TRIPSMITH_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	if v := os.Getenv("TRIPSMITH_TELEMETRY_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true // Auto-enable if endpoint is provided
	} else if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
	}
	if v := os.Getenv("TRIPSMITH_TELEMETRY_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	} else if v := os.Getenv("OTEL_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	} else if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = c.Name // Default to service name
	}

	// Logging settings
	if v := os.Getenv("TRIPSMITH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TRIPSMITH_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	// Development settings
	if v := os.Getenv("TRIPSMITH_DEV_MODE"); v != "" {
		c.Development.Enabled = parseBool(v)
		if c.Development.Enabled {
			c.Development.PrettyLogs = true
			c.Logging.Level = "debug"
			c.Logging.Format = "text"
		}
	}
	if v := os.Getenv("TRIPSMITH_MOCK_REASONING"); v != "" {
		c.Development.MockReasoning = parseBool(v)
	}
	if v := os.Getenv("TRIPSMITH_DEBUG"); v != "" {
		c.Development.DebugLogging = parseBool(v)
		if c.Development.DebugLogging {
			c.Logging.Level = "debug"
		}
	}

	// Kubernetes settings (auto-detect)
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		c.Kubernetes.Enabled = true
		if v := os.Getenv("HOSTNAME"); v != "" {
			c.Kubernetes.PodName = v
		}
		if v := os.Getenv("TRIPSMITH_K8S_NAMESPACE"); v != "" {
			c.Kubernetes.PodNamespace = v
		}
	}

	return nil
}

// LoadFromFile loads configuration from a JSON or YAML file.
// File settings override environment variables but are overridden by
// functional options.
func (c *Config) LoadFromFile(path string) error {
	// Clean the path to prevent directory traversal
	cleanPath := filepath.Clean(path)

	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file extension %s: %w", ext, ErrInvalidConfiguration)
	}

	if !filepath.IsAbs(cleanPath) {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		cleanPath = filepath.Join(wd, cleanPath)
	}

	data, err := os.ReadFile(filepath.Clean(cleanPath))
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse JSON config file: %w", ErrInvalidConfiguration)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML config file: %w", ErrInvalidConfiguration)
		}
	}

	return nil
}

// Validate checks if the configuration is valid and returns an error if not.
// This method is called automatically by NewConfig() but can also be
// called manually after modifying configuration.
func (c *Config) Validate() error {
	if c.Name == "" {
		return &PlannerError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "service name is required",
			Err:     ErrMissingConfiguration,
		}
	}

	if c.Reasoning.Enabled && c.Reasoning.APIKey == "" && !c.Development.MockReasoning {
		return &PlannerError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "reasoning API key is required when reasoning is enabled (or use mock reasoning in development)",
			Err:     ErrMissingConfiguration,
		}
	}

	if c.Tasks.Mode != "local" && c.Tasks.Mode != "queue" {
		return &PlannerError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("invalid task mode: %q (must be \"local\" or \"queue\")", c.Tasks.Mode),
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.Tasks.Mode == "queue" && c.Redis.URL == "" {
		return &PlannerError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "redis URL is required for queue task mode",
			Err:     ErrMissingConfiguration,
		}
	}

	if c.Storage.Provider == "postgres" && c.Storage.PostgresDSN == "" {
		return &PlannerError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "postgres DSN is required for postgres storage provider",
			Err:     ErrMissingConfiguration,
		}
	}

	if c.Media.Enabled && c.Media.Assets.Provider == "s3" && c.Media.Assets.Bucket == "" {
		return &PlannerError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "assets bucket is required for S3 asset storage",
			Err:     ErrMissingConfiguration,
		}
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return &PlannerError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "telemetry endpoint is required when telemetry is enabled",
			Err:     ErrMissingConfiguration,
		}
	}

	return nil
}

// NewConfig creates a configuration with the three-layer priority:
// defaults, then environment variables, then functional options.
// The result is validated before being returned.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Helper functions

// parseBool converts a string to a boolean value.
// Accepts: "true", "1", "yes", "on" (case-insensitive) as true.
// Everything else is false.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// firstEnv returns the first non-empty value among the given
// environment variables, keeping current when all are unset.
func firstEnv(current string, names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return current
}

// Functional Options

// WithName sets the service name.
// The name is used for identification in logging and telemetry.
// If not set, defaults to "tripsmith-planner".
func WithName(name string) Option {
	return func(c *Config) error {
		c.Name = name
		return nil
	}
}

// WithNamespace sets the logical namespace for the service.
// Used for environment separation (e.g., "production", "staging").
func WithNamespace(namespace string) Option {
	return func(c *Config) error {
		c.Namespace = namespace
		return nil
	}
}

// WithRedisURL sets the Redis connection URL.
// Format: redis://[user:password@]host:port/db
func WithRedisURL(url string) Option {
	return func(c *Config) error {
		c.Redis.URL = url
		return nil
	}
}

// WithTaskMode selects the background task executor: "local" runs
// handlers in-process, "queue" hands tasks to the Redis-backed worker
// pool. Returns an error for any other value.
func WithTaskMode(mode string) Option {
	return func(c *Config) error {
		if mode != "local" && mode != "queue" {
			return &PlannerError{
				Op:      "WithTaskMode",
				Kind:    "config",
				Message: fmt.Sprintf("invalid task mode: %q (must be \"local\" or \"queue\")", mode),
				Err:     ErrInvalidConfiguration,
			}
		}
		c.Tasks.Mode = mode
		return nil
	}
}

// WithGeminiAPIKey sets the Gemini API key and automatically enables
// the reasoning service.
func WithGeminiAPIKey(key string) Option {
	return func(c *Config) error {
		c.Reasoning.Enabled = true
		c.Reasoning.Provider = "gemini"
		c.Reasoning.APIKey = key
		return nil
	}
}

// WithReasoning configures reasoning service settings.
// When enabled=false, reasoning features are disabled regardless of
// other settings and the profile step falls back to greeting handling
// only.
func WithReasoning(enabled bool, provider, apiKey string) Option {
	return func(c *Config) error {
		c.Reasoning.Enabled = enabled
		c.Reasoning.Provider = provider
		c.Reasoning.APIKey = apiKey
		return nil
	}
}

// WithReasoningModel overrides the reasoning model.
func WithReasoningModel(model string) Option {
	return func(c *Config) error {
		c.Reasoning.Model = model
		return nil
	}
}

// WithNeo4j configures the graph database connection for the
// destination knowledge provider.
func WithNeo4j(uri, username, password string) Option {
	return func(c *Config) error {
		c.Research.Neo4j.URI = uri
		c.Research.Neo4j.Username = username
		c.Research.Neo4j.Password = password
		return nil
	}
}

// WithPostgres selects Postgres itinerary storage with the given DSN.
func WithPostgres(dsn string) Option {
	return func(c *Config) error {
		c.Storage.Provider = "postgres"
		c.Storage.PostgresDSN = dsn
		return nil
	}
}

// WithMediaAssets selects S3 asset storage for generated media.
func WithMediaAssets(bucket, region string) Option {
	return func(c *Config) error {
		c.Media.Enabled = true
		c.Media.Assets.Provider = "s3"
		c.Media.Assets.Bucket = bucket
		c.Media.Assets.Region = region
		return nil
	}
}

// WithTelemetryEndpoint sets the OTLP endpoint and enables telemetry.
func WithTelemetryEndpoint(endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = true
		c.Telemetry.Endpoint = endpoint
		return nil
	}
}

// WithPlanCacheTTL overrides the advisory plan cache TTL.
func WithPlanCacheTTL(ttl time.Duration) Option {
	return func(c *Config) error {
		if ttl <= 0 {
			return &PlannerError{
				Op:      "WithPlanCacheTTL",
				Kind:    "config",
				Message: fmt.Sprintf("invalid plan cache TTL: %s", ttl),
				Err:     ErrInvalidConfiguration,
			}
		}
		c.Cache.PlanTTL = ttl
		return nil
	}
}

// WithDevelopmentMode enables development-friendly defaults:
// pretty logs, debug level, and mock reasoning.
func WithDevelopmentMode() Option {
	return func(c *Config) error {
		c.Development.Enabled = true
		c.Development.MockReasoning = true
		c.Development.PrettyLogs = true
		c.Development.DebugLogging = true
		c.Logging.Level = "debug"
		c.Logging.Format = "text"
		return nil
	}
}
