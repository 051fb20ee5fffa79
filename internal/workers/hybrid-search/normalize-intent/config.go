package normalizeintent

import "time"

type Config struct {
	Timeout       time.Duration
	MaxRetries    int
	HistoryWindow int
	MaxTurnChars  int
	DefaultLimit  int
	DefaultFields []string
}

func LoadConfig() *Config {
	return &Config{
		Timeout:       8 * time.Second,
		MaxRetries:    1,
		HistoryWindow: 4,
		MaxTurnChars:  200,
		DefaultLimit:  10,
		DefaultFields: []string{"name", "address", "phone"},
	}
}
