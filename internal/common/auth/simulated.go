// internal/common/auth/simulated.go
package auth

import (
	"context"
	"strings"
	"time"

	"loan-wizard/internal/common/errors"
)

// SimulatedVerifier accepts any non-empty credential after a fixed delay.
// Used for local runs where no identity provider is available.
type SimulatedVerifier struct {
	Delay time.Duration
}

func NewSimulatedVerifier(delay time.Duration) *SimulatedVerifier {
	return &SimulatedVerifier{Delay: delay}
}

func (s *SimulatedVerifier) Verify(ctx context.Context, credential string) (*Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, errors.NewIdentityVerificationFailedError("empty credential")
	}

	timer := time.NewTimer(s.Delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return &Identity{Subject: credential, Username: credential}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
