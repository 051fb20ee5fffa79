package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finish(v)
}

func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env", "../../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars resolves ${VAR} placeholders left in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

func overrideEmptyConfig(cfg *Config) {
	overrides := []struct {
		target *string
		env    string
	}{
		{&cfg.APIs.GenAI.APIKey, "GENAI_API_KEY"},
		{&cfg.APIs.Enrichment.APIKey, "ENRICHMENT_API_KEY"},
		{&cfg.Database.Postgres.User, "DB_USER"},
		{&cfg.Database.Postgres.Password, "DB_PASSWORD"},
		{&cfg.Database.Redis.Password, "REDIS_PASSWORD"},
	}
	for _, o := range overrides {
		if *o.target == "" {
			if val := os.Getenv(o.env); val != "" {
				*o.target = val
			}
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "facility-search-workers"
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	pg := &cfg.Database.Postgres
	if pg.Port == 0 {
		pg.Port = 5432
	}
	if pg.MaxConnections == 0 {
		pg.MaxConnections = 20
	}
	if pg.MinConnections == 0 {
		pg.MinConnections = 2
	}
	if pg.ConnMaxIdleTime == 0 {
		pg.ConnMaxIdleTime = 30000
	}
	if pg.ConnectTimeout == 0 {
		pg.ConnectTimeout = 15
	}
	if pg.SSLMode == "" {
		pg.SSLMode = "disable"
	}

	if cfg.Database.Redis.PoolSize == 0 {
		cfg.Database.Redis.PoolSize = 10
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}

	if cfg.APIs.GenAI.BaseURL == "" {
		cfg.APIs.GenAI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.APIs.GenAI.LowModel == "" {
		cfg.APIs.GenAI.LowModel = "gpt-4o-mini"
	}
	if cfg.APIs.GenAI.HighModel == "" {
		cfg.APIs.GenAI.HighModel = "gpt-4o"
	}
	if cfg.APIs.GenAI.Timeout == 0 {
		cfg.APIs.GenAI.Timeout = 30000
	}
	if cfg.APIs.Enrichment.BaseURL == "" {
		cfg.APIs.Enrichment.BaseURL = "https://api.perplexity.ai"
	}
	if cfg.APIs.Enrichment.Model == "" {
		cfg.APIs.Enrichment.Model = "sonar"
	}
	if cfg.APIs.Enrichment.Timeout == 0 {
		cfg.APIs.Enrichment.Timeout = 45000
	}

	applyPipelineDefaults(&cfg.Pipeline)
}

func applyPipelineDefaults(p *PipelineConfig) {
	n := &p.Normalizer
	if n.TimeoutMs == 0 {
		n.TimeoutMs = 8000
	}
	if n.HistoryWindow == 0 {
		n.HistoryWindow = 4
	}
	if n.MaxTurnChars == 0 {
		n.MaxTurnChars = 200
	}
	if n.DefaultLimit == 0 {
		n.DefaultLimit = 10
	}

	r := &p.Registry
	if r.Backend == "" {
		r.Backend = "postgres"
	}
	if r.Schema == "" {
		r.Schema = "healthcare_production"
	}
	if r.Index == "" {
		r.Index = "healthcare_providers"
	}
	if r.TimeoutMs == 0 {
		r.TimeoutMs = 10000
	}
	if r.LimitCap == 0 {
		r.LimitCap = 100
	}
	if r.DefaultLimit == 0 {
		r.DefaultLimit = 10
	}
	if r.MinTokenLength == 0 {
		r.MinTokenLength = 3
	}

	c := &p.Cache
	if c.Backend == "" {
		c.Backend = "postgres"
	}
	if c.Table == "" {
		c.Table = "enrichment_cache"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "enrich"
	}
	if c.TTLHours == 0 {
		c.TTLHours = 90 * 24
	}
	if c.TimeoutMs == 0 {
		c.TimeoutMs = 2000
	}
	if c.PurgeIntervalMinutes == 0 {
		c.PurgeIntervalMinutes = 60
	}

	e := &p.Enrichment
	if e.MaxEntities == 0 {
		e.MaxEntities = 50
	}
	if e.TimeoutMs == 0 {
		e.TimeoutMs = 45000
	}
	if e.MaxTokens == 0 {
		e.MaxTokens = 4000
	}
	if e.RatePerSecond == 0 {
		e.RatePerSecond = 2
	}
	if e.Burst == 0 {
		e.Burst = 4
	}
	if e.DefaultSource == "" {
		e.DefaultSource = "external lookup"
	}

	s := &p.Synthesis
	if s.TimeoutMs == 0 {
		s.TimeoutMs = 30000
	}
	if s.MaxTokens == 0 {
		s.MaxTokens = 1000
	}
	if s.ComplexityCutoff == 0 {
		s.ComplexityCutoff = 4
	}
	if s.Weights == (ComplexityWeights{}) {
		s.Weights = ComplexityWeights{ResultCount: 2, EnrichedFields: 2, Conversation: 1, Comparison: 3}
	}
	if s.Thresholds == (ComplexityThreshold{}) {
		s.Thresholds = ComplexityThreshold{ResultCount: 5, EnrichedFields: 3, ConversationTurns: 6}
	}
	if s.MaxDataChars == 0 {
		s.MaxDataChars = 8000
	}
	if s.MaxListed == 0 {
		s.MaxListed = 5
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required")
	}

	reg := cfg.Pipeline.Registry
	switch reg.Backend {
	case "postgres":
		if err := validatePostgres(cfg.Database.Postgres); err != nil {
			return err
		}
		if !identifierPattern.MatchString(reg.Schema) {
			return fmt.Errorf("pipeline.registry.schema %q is not a valid identifier", reg.Schema)
		}
	case "elasticsearch":
		if len(cfg.Database.Elasticsearch.Addresses) == 0 {
			return fmt.Errorf("database.elasticsearch.addresses is required for the elasticsearch registry")
		}
	default:
		return fmt.Errorf("pipeline.registry.backend %q is not supported", reg.Backend)
	}

	cache := cfg.Pipeline.Cache
	switch cache.Backend {
	case "postgres":
		if err := validatePostgres(cfg.Database.Postgres); err != nil {
			return err
		}
		if !identifierPattern.MatchString(cache.Table) {
			return fmt.Errorf("pipeline.cache.table %q is not a valid identifier", cache.Table)
		}
	case "redis":
		if cfg.Database.Redis.Address == "" {
			return fmt.Errorf("database.redis.address is required for the redis cache")
		}
	case "memory":
	default:
		return fmt.Errorf("pipeline.cache.backend %q is not supported", cache.Backend)
	}

	if cfg.Database.Postgres.MinConnections > cfg.Database.Postgres.MaxConnections {
		return fmt.Errorf("database.postgres.min_connections exceeds max_connections")
	}
	if cfg.Pipeline.Registry.LimitCap < 1 || cfg.Pipeline.Enrichment.MaxEntities < 1 {
		return fmt.Errorf("pipeline limit_cap and max_entities must be positive")
	}
	return nil
}

func validatePostgres(pg PostgresConfig) error {
	if pg.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if pg.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if pg.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}
	return nil
}

func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// CacheTTL is the fixed lifetime stamped on every enrichment cache write.
func (c CacheConfig) CacheTTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
