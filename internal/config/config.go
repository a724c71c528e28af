package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/vecsync/internal/domain"
)

// Vector store drivers.
const (
	DriverMongo  = "mongo"
	DriverValkey = "valkey"
	DriverRedis  = "redis"
)

// Config holds the vecsync configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Auth        AuthConfig        `yaml:"auth"`
	Logging     LoggingConfig     `yaml:"logging"`
	Source      SourceConfig      `yaml:"source"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Redis       RedisConfig       `yaml:"redis"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Semantic    SemanticConfig    `yaml:"semantic"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds observability API authentication settings.
type AuthConfig struct {
	APIKeys StringList `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// SourceConfig holds the primary document store connection.
type SourceConfig struct {
	URI               string `yaml:"uri"`
	Database          string `yaml:"database"`
	ConnectTimeoutSec int    `yaml:"connect_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider    string          `yaml:"provider"`
	APIKey      string          `yaml:"api_key"`
	BaseURL     string          `yaml:"base_url"`
	Model       string          `yaml:"model"`
	Dimensions  int             `yaml:"dimensions"`
	Instruction string          `yaml:"instruction"`
	TimeoutSec  int             `yaml:"timeout_sec"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Cache       CacheConfig     `yaml:"cache"`
	Budget      BudgetConfig    `yaml:"budget"`
}

// RateLimitConfig bounds calls to the embedding provider.
type RateLimitConfig struct {
	RPS         float64 `yaml:"rps"`
	Burst       int     `yaml:"burst"`
	Concurrency int     `yaml:"concurrency"`
}

// CacheConfig holds embedding cache settings. Requires redis.addrs.
type CacheConfig struct {
	Enabled  bool `yaml:"enabled"`
	TTLHours int  `yaml:"ttl_hours"` // 0 = no expiry
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// Enabled reports whether any budget window is limited.
func (b BudgetConfig) Enabled() bool {
	return b.DailyTokenLimit > 0 || b.MonthlyTokenLimit > 0
}

// VectorStoreConfig selects where vector records are written.
type VectorStoreConfig struct {
	Driver          string `yaml:"driver"`     // mongo (default), valkey, redis
	Collection      string `yaml:"collection"` // mongo driver only
	Distance        string `yaml:"distance"`   // COSINE (default), L2, IP
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
}

// RedisConfig holds the Redis/Valkey connection used by the hash vector
// store, the embedding cache and budget persistence.
type RedisConfig struct {
	Addrs            StringList `yaml:"addrs"`
	Username         string     `yaml:"username"`
	Password         string     `yaml:"password"`
	ReadinessTimeout int        `yaml:"readiness_timeout_sec"`
}

// Configured reports whether a Redis/Valkey endpoint was given.
func (r RedisConfig) Configured() bool { return len(r.Addrs) > 0 }

// DiscoveryConfig controls schema discovery.
type DiscoveryConfig struct {
	Enabled        *bool      `yaml:"enabled"`
	Collections    StringList `yaml:"collections"`
	Exclude        StringList `yaml:"exclude"`
	MaxCollections int        `yaml:"max_collections"`
	SampleLimit    int64      `yaml:"sample_limit"`
	TypeField      string     `yaml:"type_field"`
	Concurrency    int        `yaml:"concurrency"`
}

// PipelineConfig holds sync pipeline tunables.
type PipelineConfig struct {
	BatchSize            int32           `yaml:"batch_size"`
	RetryDelayMs         int             `yaml:"retry_delay_ms"`
	MaxRetries           int             `yaml:"max_retries"`
	DebounceMs           int             `yaml:"debounce_ms"`
	FreshnessMs          int             `yaml:"freshness_ms"`
	MonitorIntervalSec   int             `yaml:"monitor_interval_sec"`
	SubscriptionRetryMs  int             `yaml:"subscription_retry_ms"`
	DuplicateRetries     int             `yaml:"duplicate_retries"`
	DuplicateBaseDelayMs int             `yaml:"duplicate_base_delay_ms"`
	MinTextLength        int             `yaml:"min_text_length"`
	ProcessTimeoutSec    int             `yaml:"process_timeout_sec"`
	DrainTimeoutSec      int             `yaml:"drain_timeout_sec"`
	TenantField          string          `yaml:"tenant_field"`
	DefaultTenant        string          `yaml:"default_tenant"`
	IndexedAtField       string          `yaml:"indexed_at_field"`
	StampSource          *bool           `yaml:"stamp_source"`
	Backfill             bool            `yaml:"backfill"`
	BackfillConcurrency  int             `yaml:"backfill_concurrency"`
	SchemaVersion        int             `yaml:"schema_version"`
	Discovery            DiscoveryConfig `yaml:"discovery"`
}

// SemanticConfig holds text rendering settings.
type SemanticConfig struct {
	SemanticMaxBytes   int             `yaml:"semantic_max_bytes"`
	SearchableMaxBytes int             `yaml:"searchable_max_bytes"`
	Profiles           []ProfileConfig `yaml:"profiles"`
}

// ProfileConfig declares rendering knowledge for a set of document types.
type ProfileConfig struct {
	Types     []string         `yaml:"types"`
	Label     string           `yaml:"label"`
	Fragments []FragmentConfig `yaml:"fragments"`
}

// FragmentConfig renders one labelled value from a dotted path.
type FragmentConfig struct {
	Label     string `yaml:"label"`
	Path      string `yaml:"path"`
	Aggregate string `yaml:"aggregate"`
}

// StringList decodes from a YAML sequence or a comma-separated scalar,
// so list settings can come from a single environment variable.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var out []string
		for _, part := range strings.Split(node.Value, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		*l = out
		return nil
	case yaml.SequenceNode:
		var out []string
		if err := node.Decode(&out); err != nil {
			return err
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("line %d: expected a list or comma-separated string", node.Line)
	}
}

// Load reads configuration from a YAML file by environment name (local, test, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands environment variables in data, decodes it, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8090
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Source.ConnectTimeoutSec <= 0 {
		c.Source.ConnectTimeoutSec = 10
	}

	c.applyEmbeddingDefaults()
	c.applyStoreDefaults()
	c.applyPipelineDefaults()

	if c.Semantic.SemanticMaxBytes <= 0 {
		c.Semantic.SemanticMaxBytes = 8192
	}
	if c.Semantic.SearchableMaxBytes <= 0 {
		c.Semantic.SearchableMaxBytes = 4096
	}
}

func (c *Config) applyEmbeddingDefaults() {
	e := &c.Embedding
	if e.Provider == "" {
		e.Provider = "openai"
	}
	if e.BaseURL == "" {
		e.BaseURL = "https://api.openai.com/v1"
	}
	if e.Model == "" {
		e.Model = "text-embedding-3-small"
	}
	if e.Dimensions <= 0 {
		e.Dimensions = 1536
	}
	if e.TimeoutSec <= 0 {
		e.TimeoutSec = 30
	}
	if e.RateLimit.RPS <= 0 {
		e.RateLimit.RPS = 10
	}
	if e.RateLimit.Burst <= 0 {
		e.RateLimit.Burst = 10
	}
	if e.RateLimit.Concurrency <= 0 {
		e.RateLimit.Concurrency = 4
	}
}

func (c *Config) applyStoreDefaults() {
	if c.VectorStore.Driver == "" {
		c.VectorStore.Driver = DriverMongo
	}
	if c.VectorStore.Collection == "" {
		c.VectorStore.Collection = "vector_records"
	}
	if c.VectorStore.Distance == "" {
		c.VectorStore.Distance = "COSINE"
	}
	if c.VectorStore.HNSWM <= 0 {
		c.VectorStore.HNSWM = 32
	}
	if c.VectorStore.HNSWEFConstruct <= 0 {
		c.VectorStore.HNSWEFConstruct = 400
	}
	if c.Redis.ReadinessTimeout <= 0 {
		c.Redis.ReadinessTimeout = 10
	}
}

func (c *Config) applyPipelineDefaults() {
	p := &c.Pipeline
	if p.BatchSize <= 0 {
		p.BatchSize = 100
	}
	if p.RetryDelayMs <= 0 {
		p.RetryDelayMs = 1000
	}
	if p.MaxRetries <= 0 {
		p.MaxRetries = 3
	}
	if p.DebounceMs <= 0 {
		p.DebounceMs = 3000
	}
	if p.FreshnessMs <= 0 {
		p.FreshnessMs = 5000
	}
	if p.MonitorIntervalSec <= 0 {
		p.MonitorIntervalSec = 60
	}
	if p.SubscriptionRetryMs <= 0 {
		p.SubscriptionRetryMs = 5000
	}
	if p.DuplicateRetries <= 0 {
		p.DuplicateRetries = 3
	}
	if p.DuplicateBaseDelayMs <= 0 {
		p.DuplicateBaseDelayMs = 100
	}
	if p.MinTextLength <= 0 {
		p.MinTextLength = 20
	}
	if p.ProcessTimeoutSec <= 0 {
		p.ProcessTimeoutSec = 60
	}
	if p.DrainTimeoutSec <= 0 {
		p.DrainTimeoutSec = 30
	}
	if p.TenantField == "" {
		p.TenantField = "tenantId"
	}
	if p.DefaultTenant == "" {
		p.DefaultTenant = "default"
	}
	if p.IndexedAtField == "" {
		p.IndexedAtField = "_vectorIndexedAt"
	}
	if p.StampSource == nil {
		stamp := true
		p.StampSource = &stamp
	}
	if p.BackfillConcurrency <= 0 {
		p.BackfillConcurrency = 4
	}
	if p.SchemaVersion <= 0 {
		p.SchemaVersion = 1
	}

	d := &p.Discovery
	if d.Enabled == nil {
		enabled := true
		d.Enabled = &enabled
	}
	if d.MaxCollections <= 0 {
		d.MaxCollections = 50
	}
	if d.SampleLimit <= 0 {
		d.SampleLimit = 100
	}
	if d.TypeField == "" {
		d.TypeField = "type"
	}
	if d.Concurrency <= 0 {
		d.Concurrency = 4
	}
}

// Validate checks the configuration for correctness.
// Every failure wraps domain.ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port))
	}
	if c.Source.URI == "" {
		errs = append(errs, errors.New("source.uri is required"))
	}
	if c.Source.Database == "" {
		errs = append(errs, errors.New("source.database is required"))
	}
	if c.Embedding.APIKey == "" {
		errs = append(errs, errors.New("embedding.api_key is required"))
	}

	switch c.VectorStore.Driver {
	case DriverMongo:
	case DriverValkey, DriverRedis:
		if !c.Redis.Configured() {
			errs = append(errs, fmt.Errorf("redis.addrs is required for vector_store.driver %q", c.VectorStore.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("vector_store.driver must be one of mongo, valkey, redis, got %q", c.VectorStore.Driver))
	}
	switch strings.ToUpper(c.VectorStore.Distance) {
	case "COSINE", "L2", "IP":
	default:
		errs = append(errs, fmt.Errorf("vector_store.distance must be COSINE, L2 or IP, got %q", c.VectorStore.Distance))
	}

	if c.Embedding.Cache.Enabled && !c.Redis.Configured() {
		errs = append(errs, errors.New("redis.addrs is required when embedding.cache.enabled"))
	}
	switch c.Embedding.Budget.Action {
	case "", "warn", "reject":
	default:
		errs = append(errs, fmt.Errorf(
			"embedding.budget.action must be \"warn\" or \"reject\", got %q", c.Embedding.Budget.Action,
		))
	}

	for i, p := range c.Semantic.Profiles {
		if len(p.Types) == 0 {
			errs = append(errs, fmt.Errorf("semantic.profiles[%d].types is required", i))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrInvalidConfig, errors.Join(errs...))
}

// AutoDiscover reports whether collections outside the allow-list are discovered.
func (d DiscoveryConfig) AutoDiscover() bool { return d.Enabled == nil || *d.Enabled }

// Stamp reports whether source documents are stamped after indexing.
func (p PipelineConfig) Stamp() bool { return p.StampSource == nil || *p.StampSource }

// Durations converts millisecond/second settings.
func (p PipelineConfig) Durations() PipelineDurations {
	return PipelineDurations{
		RetryDelay:         time.Duration(p.RetryDelayMs) * time.Millisecond,
		Debounce:           time.Duration(p.DebounceMs) * time.Millisecond,
		Freshness:          time.Duration(p.FreshnessMs) * time.Millisecond,
		MonitorInterval:    time.Duration(p.MonitorIntervalSec) * time.Second,
		SubscriptionRetry:  time.Duration(p.SubscriptionRetryMs) * time.Millisecond,
		DuplicateBaseDelay: time.Duration(p.DuplicateBaseDelayMs) * time.Millisecond,
		ProcessTimeout:     time.Duration(p.ProcessTimeoutSec) * time.Second,
		DrainTimeout:       time.Duration(p.DrainTimeoutSec) * time.Second,
	}
}

// PipelineDurations are PipelineConfig's timing settings as time.Duration.
type PipelineDurations struct {
	RetryDelay         time.Duration
	Debounce           time.Duration
	Freshness          time.Duration
	MonitorInterval    time.Duration
	SubscriptionRetry  time.Duration
	DuplicateBaseDelay time.Duration
	ProcessTimeout     time.Duration
	DrainTimeout       time.Duration
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
