package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	// Application
	Version     string
	Environment string
	GatewayID   string
	ScopeID     string
	ModuleID    string
	Port        int
	LogLevel    string

	// Logdy (lightweight web log viewer)
	LogdyEnabled bool
	LogdyHost    string
	LogdyPort    int

	// NATS (shadow transport, module RPC and inbound inputs)
	NatsURL            string
	NatsConnectTimeout time.Duration
	NatsReconnectWait  time.Duration
	NatsMaxReconnects  int
	NatsDrainTimeout   time.Duration
	SubjectPrefix      string
	ShadowBucket       string

	// Remote modules
	ModuleTransport  string // nats or grpc
	ModuleGRPCURL    string
	PipelineModuleID string
	OnvifModuleID    string
	PipelineAPIVer   string

	// Provisioning and blob storage
	ProvisioningURL      string
	ProvisioningGroupKey string
	BlobURL              string

	// Bounded remote calls
	RemoteCallTimeout time.Duration

	// Health Check
	HealthCheckInterval  time.Duration
	HealthRetryThreshold int
	RestartDelay         time.Duration

	// Capture image thumbnails
	ThumbnailMaxWidth  int
	ThumbnailMaxHeight int
	ThumbnailQuality   int

	// Graceful Shutdown
	ShutdownTimeout time.Duration
}

// defaults mirrors the environment variable table; keys are also valid in the YAML config file.
var defaults = map[string]any{
	"VERSION":     "1.0.0",
	"ENVIRONMENT": "development",
	"GATEWAY_ID":  "gateway-1",
	"SCOPE_ID":    "scope",
	"MODULE_ID":   "vision-gateway",
	"PORT":        8000,
	"LOG_LEVEL":   "info",

	"LOGDY_ENABLED": false,
	"LOGDY_HOST":    "localhost",
	"LOGDY_PORT":    8080,

	"NATS_CONNECT_TIMEOUT": 10 * time.Second,
	"NATS_RECONNECT_WAIT":  2 * time.Second,
	"NATS_MAX_RECONNECTS":  -1, // -1 = unlimited
	"NATS_DRAIN_TIMEOUT":   5 * time.Second,
	"SUBJECT_PREFIX":       "gateway",
	"SHADOW_BUCKET":        "device-shadow",

	"MODULE_TRANSPORT":   "nats",
	"MODULE_GRPC_URL":    "localhost:50051",
	"PIPELINE_MODULE_ID": "avaEdge",
	"ONVIF_MODULE_ID":    "onvifProxy",
	"PIPELINE_API_VER":   "1.1",

	"PROVISIONING_URL":       "http://localhost:8500",
	"PROVISIONING_GROUP_KEY": "",
	"BLOB_URL":               "http://localhost:8600",

	"REMOTE_CALL_TIMEOUT": 15 * time.Second,

	"HEALTH_CHECK_INTERVAL":  30 * time.Second,
	"HEALTH_RETRY_THRESHOLD": 3,
	"RESTART_DELAY":          10 * time.Second,

	"THUMBNAIL_MAX_WIDTH":  640,
	"THUMBNAIL_MAX_HEIGHT": 360,
	"THUMBNAIL_QUALITY":    75,

	"SHUTDOWN_TIMEOUT": 30 * time.Second,
}

// Load reads .env (if present), an optional YAML file and the environment, in increasing precedence.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found or error loading .env file, using environment variables and defaults")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetDefault("NATS_URL", getNatsURL())
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			log.Debug().Str("path", path).Msg("Config file not found, using environment and defaults")
		} else {
			log.Info().Str("path", v.ConfigFileUsed()).Msg("Loaded configuration file")
		}
	}

	cfg := &Config{
		// Application
		Version:     v.GetString("VERSION"),
		Environment: v.GetString("ENVIRONMENT"),
		GatewayID:   v.GetString("GATEWAY_ID"),
		ScopeID:     v.GetString("SCOPE_ID"),
		ModuleID:    v.GetString("MODULE_ID"),
		Port:        v.GetInt("PORT"),
		LogLevel:    v.GetString("LOG_LEVEL"),

		// Logdy
		LogdyEnabled: v.GetBool("LOGDY_ENABLED"),
		LogdyHost:    v.GetString("LOGDY_HOST"),
		LogdyPort:    v.GetInt("LOGDY_PORT"),

		// NATS
		NatsURL:            v.GetString("NATS_URL"),
		NatsConnectTimeout: v.GetDuration("NATS_CONNECT_TIMEOUT"),
		NatsReconnectWait:  v.GetDuration("NATS_RECONNECT_WAIT"),
		NatsMaxReconnects:  v.GetInt("NATS_MAX_RECONNECTS"),
		NatsDrainTimeout:   v.GetDuration("NATS_DRAIN_TIMEOUT"),
		SubjectPrefix:      v.GetString("SUBJECT_PREFIX"),
		ShadowBucket:       v.GetString("SHADOW_BUCKET"),

		// Remote modules
		ModuleTransport:  strings.ToLower(v.GetString("MODULE_TRANSPORT")),
		ModuleGRPCURL:    v.GetString("MODULE_GRPC_URL"),
		PipelineModuleID: v.GetString("PIPELINE_MODULE_ID"),
		OnvifModuleID:    v.GetString("ONVIF_MODULE_ID"),
		PipelineAPIVer:   v.GetString("PIPELINE_API_VER"),

		// Provisioning and blob storage
		ProvisioningURL:      v.GetString("PROVISIONING_URL"),
		ProvisioningGroupKey: v.GetString("PROVISIONING_GROUP_KEY"),
		BlobURL:              v.GetString("BLOB_URL"),

		RemoteCallTimeout: v.GetDuration("REMOTE_CALL_TIMEOUT"),

		// Health Check
		HealthCheckInterval:  v.GetDuration("HEALTH_CHECK_INTERVAL"),
		HealthRetryThreshold: v.GetInt("HEALTH_RETRY_THRESHOLD"),
		RestartDelay:         v.GetDuration("RESTART_DELAY"),

		// Thumbnails
		ThumbnailMaxWidth:  v.GetInt("THUMBNAIL_MAX_WIDTH"),
		ThumbnailMaxHeight: v.GetInt("THUMBNAIL_MAX_HEIGHT"),
		ThumbnailQuality:   v.GetInt("THUMBNAIL_QUALITY"),

		ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the settings the gateway cannot run without.
func (c *Config) Validate() error {
	var errs []error

	if c.GatewayID == "" {
		errs = append(errs, errors.New("GATEWAY_ID is required"))
	}
	if c.NatsURL == "" {
		errs = append(errs, errors.New("NATS_URL is required"))
	}
	if c.ModuleTransport != "nats" && c.ModuleTransport != "grpc" {
		errs = append(errs, fmt.Errorf("MODULE_TRANSPORT must be nats or grpc, got %q", c.ModuleTransport))
	}
	if c.HealthRetryThreshold < 1 {
		errs = append(errs, errors.New("HEALTH_RETRY_THRESHOLD must be at least 1"))
	}
	if c.RemoteCallTimeout <= 0 {
		errs = append(errs, errors.New("REMOTE_CALL_TIMEOUT must be positive"))
	}

	return errors.Join(errs...)
}

// Helper functions for Docker environment detection
func isRunningInDocker() bool {
	if os.Getenv("DOCKER_CONTAINER") == "true" {
		return true
	}

	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}

	return false
}

// getNatsURL returns the default NATS URL based on environment
func getNatsURL() string {
	if isRunningInDocker() {
		return "nats://nats:4222"
	}

	return "nats://localhost:4222"
}
