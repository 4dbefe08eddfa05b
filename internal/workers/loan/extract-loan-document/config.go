// internal/workers/loan/extract-loan-document/config.go
package extractloandocument

import "time"

type Config struct {
	Timeout time.Duration
	// RetryOnFailure fails the job with DOCUMENT_EXTRACTION_FAILED so the engine
	// retries, instead of completing with the extractionError marker.
	RetryOnFailure bool
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 45 * time.Second,
	}
}
