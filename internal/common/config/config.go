package config

import "fmt"

type Config struct {
	App      AppConfig               `mapstructure:"app"`
	Camunda  CamundaConfig           `mapstructure:"camunda"`
	Database DatabaseConfig          `mapstructure:"database"`
	Workers  map[string]WorkerConfig `mapstructure:"workers"`
	APIs     APIsConfig              `mapstructure:"apis"`
	Pipeline PipelineConfig          `mapstructure:"pipeline"`
	Lookup   LookupConfig            `mapstructure:"lookup"`
	Logging  LoggingConfig           `mapstructure:"logging"`
	Server   ServerConfig            `mapstructure:"server"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	MaxConnections  int    `mapstructure:"max_connections"`
	MinConnections  int    `mapstructure:"min_connections"`
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // milliseconds
	ConnectTimeout  int    `mapstructure:"connect_timeout"`    // seconds
	SSLMode         string `mapstructure:"sslmode"`
}

func (p PostgresConfig) GetDSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
	if p.ConnectTimeout > 0 {
		dsn += fmt.Sprintf(" connect_timeout=%d", p.ConnectTimeout)
	}
	return dsn
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

type RedisConfig struct {
	Address      string `mapstructure:"address"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

type APIsConfig struct {
	// GenAI serves intent extraction, spelling correction and synthesis.
	GenAI struct {
		BaseURL   string `mapstructure:"base_url"`
		APIKey    string `mapstructure:"api_key"`
		LowModel  string `mapstructure:"low_model"`
		HighModel string `mapstructure:"high_model"`
		Timeout   int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"genai"`

	// Enrichment is a search-grounded completion endpoint used for fields
	// the registry does not hold.
	Enrichment struct {
		BaseURL string `mapstructure:"base_url"`
		APIKey  string `mapstructure:"api_key"`
		Model   string `mapstructure:"model"`
		Timeout int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"enrichment"`
}

type PipelineConfig struct {
	Normalizer NormalizerConfig `mapstructure:"normalizer"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Synthesis  SynthesisConfig  `mapstructure:"synthesis"`
}

type NormalizerConfig struct {
	TimeoutMs     int `mapstructure:"timeout_ms"`
	MaxRetries    int `mapstructure:"max_retries"`
	HistoryWindow int `mapstructure:"history_window"` // turns, not exchanges
	MaxTurnChars  int `mapstructure:"max_turn_chars"`
	DefaultLimit  int `mapstructure:"default_limit"`
}

type RegistryConfig struct {
	Backend         string `mapstructure:"backend"` // postgres | elasticsearch
	Schema          string `mapstructure:"schema"`
	Index           string `mapstructure:"index"`
	TimeoutMs       int    `mapstructure:"timeout_ms"`
	LimitCap        int    `mapstructure:"limit_cap"`
	DefaultLimit    int    `mapstructure:"default_limit"`
	MatchFirstToken bool   `mapstructure:"match_first_token"`
	MinTokenLength  int    `mapstructure:"min_token_length"`
}

type CacheConfig struct {
	Backend              string `mapstructure:"backend"` // postgres | redis | memory
	Table                string `mapstructure:"table"`
	KeyPrefix            string `mapstructure:"key_prefix"`
	TTLHours             int    `mapstructure:"ttl_hours"`
	TimeoutMs            int    `mapstructure:"timeout_ms"` // per backend call
	AutoMigrate          bool   `mapstructure:"auto_migrate"`
	PurgeIntervalMinutes int    `mapstructure:"purge_interval_minutes"`
}

type EnrichmentConfig struct {
	MaxEntities   int     `mapstructure:"max_entities"`
	TimeoutMs     int     `mapstructure:"timeout_ms"`
	MaxTokens     int     `mapstructure:"max_tokens"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
	DefaultSource string  `mapstructure:"default_source"`
}

type SynthesisConfig struct {
	TimeoutMs        int                 `mapstructure:"timeout_ms"`
	MaxTokens        int                 `mapstructure:"max_tokens"`
	ComplexityCutoff int                 `mapstructure:"complexity_cutoff"`
	Weights          ComplexityWeights   `mapstructure:"weights"`
	Thresholds       ComplexityThreshold `mapstructure:"thresholds"`
	MaxDataChars     int                 `mapstructure:"max_data_chars"`
	MaxListed        int                 `mapstructure:"max_listed"`
}

type ComplexityWeights struct {
	ResultCount    int `mapstructure:"result_count"`
	EnrichedFields int `mapstructure:"enriched_fields"`
	Conversation   int `mapstructure:"conversation"`
	Comparison     int `mapstructure:"comparison"`
}

type ComplexityThreshold struct {
	ResultCount       int `mapstructure:"result_count"`
	EnrichedFields    int `mapstructure:"enriched_fields"`
	ConversationTurns int `mapstructure:"conversation_turns"`
}

type LookupConfig struct {
	TablesPath     string `mapstructure:"tables_path"`
	ActivitiesPath string `mapstructure:"activities_path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}
