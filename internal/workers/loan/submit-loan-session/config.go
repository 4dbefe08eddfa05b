// internal/workers/loan/submit-loan-session/config.go
package submitloansession

import "time"

type Config struct {
	// Timeout must exceed the decision submit timeout.
	Timeout time.Duration

	// FailOnError fails the job with a retryable ASSESSMENT_FAILED when the
	// decision comes back with status "error". A retried job resubmits the
	// session, which an error decision allows.
	FailOnError bool
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}
