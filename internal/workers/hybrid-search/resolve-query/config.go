package resolvequery

import "time"

const (
	TaskType        = "resolve-query"
	RefreshTaskType = "refresh-enrichment"
)

type Config struct {
	Timeout        time.Duration
	RefreshTimeout time.Duration
	MaxQueryChars  int
	MaxHistory     int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:        90 * time.Second,
		RefreshTimeout: 60 * time.Second,
		MaxQueryChars:  2000,
		MaxHistory:     50,
	}
}
