// internal/workers/loan/verify-loan-applicant/config.go
package verifyloanapplicant

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
