package batchenrich

import "time"

type Config struct {
	MaxEntities   int
	Timeout       time.Duration
	MaxRetries    int
	MaxTokens     int
	RatePerSecond float64
	Burst         int
	DefaultSource string
}

func LoadConfig() *Config {
	return &Config{
		MaxEntities:   50,
		Timeout:       45 * time.Second,
		MaxRetries:    0,
		MaxTokens:     4000,
		RatePerSecond: 2,
		Burst:         4,
		DefaultSource: "web lookup",
	}
}
