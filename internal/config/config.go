package config

import (
	"net"
	"net/url"
	"strconv"
	"time"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Auth       AuthConfig       `yaml:"auth"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Generation GenerationConfig `yaml:"generation"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Guardrail  GuardrailConfig  `yaml:"guardrail"`
	Policy     PolicyConfig     `yaml:"policy"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Engine     EngineConfig     `yaml:"engine"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	HealthGRPCPort   int           `yaml:"health_grpc_port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MinConns        int           `yaml:"min_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	return u.String()
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
}

// AuthConfig controls how identity tokens are verified.
// Exactly one of JWKSURL or HMACSecret is expected outside dev mode.
type AuthConfig struct {
	Issuer          string        `yaml:"issuer"`
	Audience        string        `yaml:"audience"`
	JWKSURL         string        `yaml:"jwks_url"`
	JWKSRefresh     time.Duration `yaml:"jwks_refresh"`
	HMACSecret      string        `yaml:"hmac_secret"`
	TenantClaim     string        `yaml:"tenant_claim"`
	RoleClaim       string        `yaml:"role_claim"`
	ServiceKeysOn   bool          `yaml:"service_keys_enabled"`
	DevMode         bool          `yaml:"dev_mode"`
	DevTenantID     string        `yaml:"dev_tenant_id"`
	DevUserID       string        `yaml:"dev_user_id"`
	TenantCacheTTL  time.Duration `yaml:"tenant_cache_ttl"`
	ClockSkewLeeway time.Duration `yaml:"clock_skew_leeway"`
}

type ClassifierConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	MinConfidence float64       `yaml:"min_confidence"`
	HistoryWindow int           `yaml:"history_window"`
	MaxTokens     int           `yaml:"max_tokens"`
}

type GenerationConfig struct {
	Timeout        time.Duration        `yaml:"timeout"`
	MaxRetries     int                  `yaml:"max_retries"`
	RetryBackoff   time.Duration        `yaml:"retry_backoff"`
	Temperature    float64              `yaml:"temperature"`
	MaxTokens      int                  `yaml:"max_tokens"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	FailureThreshold      int           `yaml:"failure_threshold"`
	RecoveryProbeInterval time.Duration `yaml:"recovery_probe_interval"`
}

type EmbeddingConfig struct {
	Enabled  bool          `yaml:"enabled"`
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	MaxChars int           `yaml:"max_chars"`
	Timeout  time.Duration `yaml:"timeout"`
}

type RetrievalConfig struct {
	SimilarityFloor  float64 `yaml:"similarity_floor"`
	SemanticLimit    int     `yaml:"semantic_limit"`
	FullTextLimit    int     `yaml:"full_text_limit"`
	JargonLimit      int     `yaml:"jargon_limit"`
	AppointmentLimit int     `yaml:"appointment_limit"`
	RecentRecords    int     `yaml:"recent_records"`
}

type GuardrailConfig struct {
	RulesFile         string        `yaml:"rules_file"`
	AuditWriteTimeout time.Duration `yaml:"audit_write_timeout"`
	MaxRawChars       int           `yaml:"max_raw_chars"`
}

type PolicyConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BundlePath        string        `yaml:"bundle_path"`
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`
}

type RateLimitConfig struct {
	Enabled        bool          `yaml:"enabled"`
	TurnsPerWindow int           `yaml:"turns_per_window"`
	Window         time.Duration `yaml:"window"`

	// TenantDailyTurns caps turns per tenant per UTC day. Zero disables it.
	TenantDailyTurns int `yaml:"tenant_daily_turns"`
}

type EngineConfig struct {
	HistoryLimit   int           `yaml:"history_limit"`
	PersistTimeout time.Duration `yaml:"persist_timeout"`
	MaxMessageLen  int           `yaml:"max_message_len"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "careguard",
			User:            "careguard_app",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MinConns:        2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addresses: []string{"localhost:6379"},
			PoolSize:  50,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPort: 9090,
		},
		Auth: AuthConfig{
			JWKSRefresh:     15 * time.Minute,
			TenantClaim:     "https://wellbridge.app/tenant_id",
			RoleClaim:       "https://wellbridge.app/role",
			ServiceKeysOn:   true,
			TenantCacheTTL:  10 * time.Minute,
			ClockSkewLeeway: 30 * time.Second,
		},
		Classifier: ClassifierConfig{
			Timeout:       10 * time.Second,
			MinConfidence: 0.70,
			HistoryWindow: 6,
			MaxTokens:     200,
		},
		Generation: GenerationConfig{
			Timeout:      30 * time.Second,
			MaxRetries:   1,
			RetryBackoff: 500 * time.Millisecond,
			Temperature:  0.3,
			MaxTokens:    800,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold:      5,
				RecoveryProbeInterval: 15 * time.Second,
			},
		},
		Embedding: EmbeddingConfig{
			Model:    "text-embedding-3-small",
			MaxChars: 8000,
			Timeout:  10 * time.Second,
		},
		Retrieval: RetrievalConfig{
			SimilarityFloor:  0.35,
			SemanticLimit:    8,
			FullTextLimit:    8,
			JargonLimit:      2,
			AppointmentLimit: 5,
			RecentRecords:    5,
		},
		Guardrail: GuardrailConfig{
			AuditWriteTimeout: 5 * time.Second,
			MaxRawChars:       2000,
		},
		Policy: PolicyConfig{
			BundlePath:        "configs/policies",
			EvaluationTimeout: 100 * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			TurnsPerWindow: 30,
			Window:         time.Minute,
		},
		Engine: EngineConfig{
			HistoryLimit:   10,
			PersistTimeout: 5 * time.Second,
			MaxMessageLen:  4000,
		},
	}
}
