// internal/workers/loan/record-loan-decision/models.go
package recordloandecision

import "loan-wizard/internal/models"

type Input struct {
	ApplicationID string                `json:"applicationId"`
	UserID        string                `json:"userId"`
	LoanType      string                `json:"loanType"`
	Decision      models.DecisionRecord `json:"decision"`
}

type Output struct {
	RecordID   string `json:"recordId"`
	RecordedAt string `json:"recordedAt"`
	Indexed    bool   `json:"indexed"`
}

// indexedDecision is the search document written per recorded decision.
type indexedDecision struct {
	RecordID       string   `json:"recordId"`
	ApplicationID  string   `json:"applicationId"`
	UserID         string   `json:"userId,omitempty"`
	LoanType       string   `json:"loanType"`
	ApprovalStatus string   `json:"approvalStatus"`
	InterestRate   string   `json:"interestRate"`
	Reasons        []string `json:"reasons"`
	Strategy       string   `json:"strategy"`
	DecidedAt      string   `json:"decidedAt"`
	RecordedAt     string   `json:"recordedAt"`
}
