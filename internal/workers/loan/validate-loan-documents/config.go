// internal/workers/loan/validate-loan-documents/config.go
package validateloandocuments

import "time"

type Config struct {
	Timeout time.Duration
	// FailOnIncomplete throws DOCUMENT_VALIDATION_FAILED instead of completing
	// with isComplete=false.
	FailOnIncomplete bool
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
