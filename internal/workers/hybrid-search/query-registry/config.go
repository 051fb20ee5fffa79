package queryregistry

import "time"

type Config struct {
	Timeout         time.Duration
	LimitCap        int
	DefaultLimit    int
	MatchFirstToken bool
	MinTokenLength  int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:         10 * time.Second,
		LimitCap:        100,
		DefaultLimit:    10,
		MatchFirstToken: true,
		MinTokenLength:  3,
	}
}
