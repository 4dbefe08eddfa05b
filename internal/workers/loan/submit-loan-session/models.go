// internal/workers/loan/submit-loan-session/models.go
package submitloansession

import "loan-wizard/internal/models"

type Input struct {
	SessionID string `json:"sessionId"`
}

type Output struct {
	ApplicationID      string                `json:"applicationId"`
	LoanType           string                `json:"loanType"`
	SubmittedDocuments []string              `json:"submittedDocuments"`
	ApprovalStatus     string                `json:"approvalStatus"`
	Decision           models.DecisionRecord `json:"decision"`
}
