// internal/workers/loan/notify-loan-decision/config.go
package notifyloandecision

import "time"

type Config struct {
	EmailEnabled bool
	SMSEnabled   bool
	FromEmail    string
	// RetryOnFailure fails the job with NOTIFICATION_SEND_FAILED instead of
	// completing with status "failed".
	RetryOnFailure bool
	Timeout        time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}
