// internal/workers/loan/record-loan-decision/config.go
package recordloandecision

import "time"

type Config struct {
	Timeout time.Duration
	// DecisionIndex is the search index recorded decisions are copied into
	// when an Indexer is configured.
	DecisionIndex string
}

func LoadConfig() *Config {
	return &Config{
		Timeout:       10 * time.Second,
		DecisionIndex: "loan-decisions",
	}
}
