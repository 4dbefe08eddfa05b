// internal/workers/loan/assess-loan-application/models.go
package assessloanapplication

import "loan-wizard/internal/models"

type Input struct {
	ApplicationID      string                       `json:"applicationId"`
	LoanType           string                       `json:"loanType"`
	LoanAnswers        map[string]string            `json:"loanAnswers"`
	ExtractedData      map[string]map[string]string `json:"extractedData"`
	SubmittedDocuments []string                     `json:"submittedDocuments"`
}

// Output exposes approvalStatus at the top level for gateway conditions and
// the full record for the audit and notification tasks.
type Output struct {
	ApprovalStatus string                `json:"approvalStatus"`
	Decision       models.DecisionRecord `json:"decision"`
}
