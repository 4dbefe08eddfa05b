// internal/workers/loan/verify-loan-applicant/models.go
package verifyloanapplicant

type Input struct {
	SessionID  string `json:"sessionId"`
	Credential string `json:"credential"`
}

type Output struct {
	SessionID        string `json:"sessionId"`
	IdentityVerified bool   `json:"identityVerified"`
	Subject          string `json:"subject,omitempty"`
	Username         string `json:"username,omitempty"`
	Email            string `json:"email,omitempty"`
}
