package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/ielts-tutor-backend/internal/modules/conversation"
	"github.com/yungbote/ielts-tutor-backend/internal/modules/identity"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/envutil"
	"github.com/yungbote/ielts-tutor-backend/internal/platform/logger"
)

const (
	defaultConfigPath = "config/config.yaml"
	defaultJWTSecret  = "defaultsecret"
)

// Config is resolved in three layers: defaults, then the optional YAML file, then the
// environment. Durations in YAML use Go syntax ("750ms", "30s").
type Config struct {
	LogMode             string        `yaml:"log_mode"`
	HTTPAddr            string        `yaml:"http_addr"`
	HTTPShutdownTimeout time.Duration `yaml:"http_shutdown_timeout"`
	FrontendURL         string        `yaml:"frontend_url"`

	DBDriver string `yaml:"db_driver"`
	DBDSN    string `yaml:"db_dsn"`

	RedisAddr    string `yaml:"redis_addr"`
	RedisChannel string `yaml:"redis_channel"`

	JWTSecretKey   string        `yaml:"jwt_secret_key"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
	AdminPassword  string        `yaml:"admin_password"`

	AIEngine  string        `yaml:"ai_engine"`
	AIModel   string        `yaml:"ai_model"`
	AIBaseURL string        `yaml:"ai_base_url"`
	AIAPIKeys []string      `yaml:"ai_api_keys"`
	AITimeout time.Duration `yaml:"ai_timeout"`

	ElevenLabsAPIKey  string `yaml:"elevenlabs_api_key"`
	ElevenLabsBaseURL string `yaml:"elevenlabs_base_url"`

	SpeechProvider    string `yaml:"speech_provider"`
	GCPCredentials    string `yaml:"gcp_credentials"`
	SnapshotSink      string `yaml:"snapshot_sink"`
	ObjectStorageMode string `yaml:"object_storage_mode"`
	StorageEmulator   string `yaml:"storage_emulator_host"`
	SnapshotBucket    string `yaml:"gcs_snapshot_bucket"`
	SnapshotPrefix    string `yaml:"gcs_snapshot_prefix"`
	ReplicationQueue  int    `yaml:"replication_queue"`

	MetricsEnabled  bool    `yaml:"metrics_enabled"`
	MetricsAddr     string  `yaml:"metrics_addr"`
	OtelEnabled     bool    `yaml:"otel_enabled"`
	OtelEndpoint    string  `yaml:"otel_endpoint"`
	OtelHeaders     string  `yaml:"otel_headers"`
	OtelInsecure    bool    `yaml:"otel_insecure"`
	OtelSampleRatio float64 `yaml:"otel_sample_ratio"`
	ServiceName     string  `yaml:"service_name"`

	Voice conversation.Timings `yaml:"voice"`
}

func DefaultConfig() Config {
	return Config{
		LogMode:             "development",
		HTTPAddr:            ":8080",
		HTTPShutdownTimeout: 10 * time.Second,
		FrontendURL:         "*",
		DBDriver:            "sqlite",
		DBDSN:               "file:ielts.db?_busy_timeout=5000",
		RedisChannel:        "ielts:sse",
		JWTSecretKey:        defaultJWTSecret,
		AccessTokenTTL:      7 * 24 * time.Hour,
		AdminPassword:       identity.DefaultAdminPassword,
		AIEngine:            "gemini",
		AITimeout:           60 * time.Second,
		SnapshotSink:        "db",
		SnapshotPrefix:      "snapshots",
		MetricsAddr:         ":9090",
		OtelSampleRatio:     1,
		ServiceName:         "ielts-tutor-api",
		Voice:               conversation.DefaultTimings(),
	}
}

// LoadConfig reads IELTS_CONFIG_PATH (or config/config.yaml when present) and applies
// environment overrides on top.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := DefaultConfig()

	path := envutil.String("IELTS_CONFIG_PATH", "")
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}
	if err := loadConfigFile(path, &cfg); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	} else if log != nil {
		log.Info("Loaded config file", "path", path)
	}

	applyEnv(&cfg)
	return cfg, nil
}

// Production reports whether LOG_MODE selects the production profile.
func (c Config) Production() bool {
	m := strings.ToLower(strings.TrimSpace(c.LogMode))
	return m == "prod" || m == "production"
}

// defaultSecrets names the credentials still set to their shipped values.
func (c Config) defaultSecrets() []string {
	var out []string
	if c.JWTSecretKey == "" || c.JWTSecretKey == defaultJWTSecret {
		out = append(out, "JWT_SECRET_KEY")
	}
	if c.AdminPassword == "" || c.AdminPassword == identity.DefaultAdminPassword {
		out = append(out, "ADMIN_PASSWORD")
	}
	return out
}

// checkSecrets refuses to serve production traffic with the shipped credentials and warns
// about them in every other mode.
func checkSecrets(log *logger.Logger, cfg Config) error {
	weak := cfg.defaultSecrets()
	if len(weak) == 0 {
		return nil
	}
	if cfg.Production() {
		return fmt.Errorf("refusing to start in production with default credentials: set %s", strings.Join(weak, ", "))
	}
	log.Warn("Default credentials in use; anyone can forge tokens or sign in as admin", "settings", weak, "log_mode", cfg.LogMode)
	return nil
}

func loadConfigFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)
	cfg.HTTPAddr = envutil.String("HTTP_ADDR", cfg.HTTPAddr)
	cfg.HTTPShutdownTimeout = envutil.Duration("HTTP_SHUTDOWN_TIMEOUT", cfg.HTTPShutdownTimeout)
	cfg.FrontendURL = envutil.String("FRONTEND_URL", cfg.FrontendURL)

	cfg.DBDriver = envutil.String("DB_DRIVER", cfg.DBDriver)
	cfg.DBDSN = envutil.String("DB_DSN", cfg.DBDSN)

	cfg.RedisAddr = envutil.String("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisChannel = envutil.String("REDIS_CHANNEL", cfg.RedisChannel)

	cfg.JWTSecretKey = envutil.String("JWT_SECRET_KEY", cfg.JWTSecretKey)
	cfg.AccessTokenTTL = envutil.Duration("ACCESS_TOKEN_TTL", cfg.AccessTokenTTL)
	cfg.AdminPassword = envutil.String("ADMIN_PASSWORD", cfg.AdminPassword)

	cfg.AIEngine = envutil.String("AI_ENGINE", cfg.AIEngine)
	cfg.AIModel = envutil.String("AI_MODEL", cfg.AIModel)
	cfg.AIBaseURL = envutil.String("AI_BASE_URL", cfg.AIBaseURL)
	cfg.AIAPIKeys = append(cfg.AIAPIKeys, envAPIKeys()...)
	if secs := envutil.Int("AI_TIMEOUT_SECONDS", 0); secs > 0 {
		cfg.AITimeout = time.Duration(secs) * time.Second
	}

	cfg.ElevenLabsAPIKey = envutil.String("ELEVENLABS_API_KEY", cfg.ElevenLabsAPIKey)
	cfg.ElevenLabsBaseURL = envutil.String("ELEVENLABS_BASE_URL", cfg.ElevenLabsBaseURL)

	cfg.SpeechProvider = envutil.String("SPEECH_PROVIDER", cfg.SpeechProvider)
	cfg.GCPCredentials = envutil.String("GCP_CREDENTIALS", cfg.GCPCredentials)
	cfg.SnapshotSink = envutil.String("SNAPSHOT_SINK", cfg.SnapshotSink)
	cfg.ObjectStorageMode = envutil.String("OBJECT_STORAGE_MODE", cfg.ObjectStorageMode)
	cfg.StorageEmulator = envutil.String("STORAGE_EMULATOR_HOST", cfg.StorageEmulator)
	cfg.SnapshotBucket = envutil.String("GCS_SNAPSHOT_BUCKET", cfg.SnapshotBucket)
	cfg.SnapshotPrefix = envutil.String("GCS_SNAPSHOT_PREFIX", cfg.SnapshotPrefix)
	cfg.ReplicationQueue = envutil.Int("REPLICATION_QUEUE_SIZE", cfg.ReplicationQueue)

	cfg.MetricsEnabled = envutil.Bool("METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.MetricsAddr = envutil.String("METRICS_ADDR", cfg.MetricsAddr)
	cfg.OtelEnabled = envutil.Bool("OTEL_ENABLED", cfg.OtelEnabled)
	cfg.OtelEndpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OtelEndpoint)
	cfg.OtelHeaders = envutil.String("OTEL_EXPORTER_OTLP_HEADERS", cfg.OtelHeaders)
	cfg.OtelInsecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", cfg.OtelInsecure)
	if raw := envutil.String("OTEL_SAMPLE_RATIO", ""); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			cfg.OtelSampleRatio = v
		}
	}
	cfg.ServiceName = envutil.String("SERVICE_NAME", cfg.ServiceName)

	cfg.Voice.StageInterval = envutil.Duration("VOICE_STAGE_INTERVAL", cfg.Voice.StageInterval)
	cfg.Voice.ClosingGrace = envutil.Duration("VOICE_CLOSING_GRACE", cfg.Voice.ClosingGrace)
	cfg.Voice.SessionWindow = envutil.Duration("VOICE_SESSION_WINDOW", cfg.Voice.SessionWindow)
	cfg.Voice.AutoResumeDelay = envutil.Duration("VOICE_AUTO_RESUME_DELAY", cfg.Voice.AutoResumeDelay)
	cfg.Voice.IdleTimeout = envutil.Duration("VOICE_IDLE_TIMEOUT", cfg.Voice.IdleTimeout)
}

// envAPIKeys gathers AI_API_KEYS plus the numbered AI_API_KEY, AI_API_KEY1..AI_API_KEY5 slots.
// Duplicates are removed by the credential pool.
func envAPIKeys() []string {
	keys := envutil.List("AI_API_KEYS")
	for _, name := range []string{"AI_API_KEY", "AI_API_KEY1", "AI_API_KEY2", "AI_API_KEY3", "AI_API_KEY4", "AI_API_KEY5"} {
		if v := envutil.String(name, ""); v != "" {
			keys = append(keys, v)
		}
	}
	return keys
}

func (c Config) SpeechEnabled() bool {
	return strings.EqualFold(strings.TrimSpace(c.SpeechProvider), "gcp")
}
