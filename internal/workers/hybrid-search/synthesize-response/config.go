package synthesizeresponse

import "time"

type Weights struct {
	ResultCount    int
	EnrichedFields int
	Conversation   int
	Comparison     int
}

type Thresholds struct {
	ResultCount       int
	EnrichedFields    int
	ConversationTurns int
}

type Config struct {
	Timeout          time.Duration
	MaxRetries       int
	MaxTokens        int
	ComplexityCutoff int
	Weights          Weights
	Thresholds       Thresholds
	MaxDataChars     int
	MaxListed        int
	HistoryWindow    int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:          30 * time.Second,
		MaxRetries:       1,
		MaxTokens:        1500,
		ComplexityCutoff: 4,
		Weights: Weights{
			ResultCount:    2,
			EnrichedFields: 2,
			Conversation:   1,
			Comparison:     3,
		},
		Thresholds: Thresholds{
			ResultCount:       5,
			EnrichedFields:    3,
			ConversationTurns: 6,
		},
		MaxDataChars:  8000,
		MaxListed:     5,
		HistoryWindow: 4,
	}
}
