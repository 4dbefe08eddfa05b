// internal/models/decision.go
package models

import "time"

// ApprovalStatus is the outcome of an eligibility decision.
type ApprovalStatus string

const (
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
	StatusError    ApprovalStatus = "error"
)

// DecisionRecord is the immutable output of one decision attempt. A resubmission
// replaces the record instead of mutating it.
type DecisionRecord struct {
	ID             string         `json:"id"`
	ApprovalStatus ApprovalStatus `json:"approvalStatus"`
	Reasons        []string       `json:"reasons"`
	InterestRate   string         `json:"interestRate"`
	Conditions     []string       `json:"conditions"`
	Summary        string         `json:"summary"`
	Strategy       string         `json:"strategy"`
	DecidedAt      time.Time      `json:"decidedAt"`
}

// Clone returns a deep copy so callers cannot mutate a stored record.
func (d DecisionRecord) Clone() DecisionRecord {
	d.Reasons = cloneStrings(d.Reasons)
	d.Conditions = cloneStrings(d.Conditions)
	return d
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append(make([]string, 0, len(s)), s...)
}

// ApplicationData is the accumulated session data a decision is computed from.
type ApplicationData struct {
	ApplicationID      string                       `json:"applicationId"`
	LoanType           LoanType                     `json:"loanType"`
	LoanAnswers        map[string]string            `json:"loanAnswers"`
	ExtractedData      map[DocumentType]FieldRecord `json:"extractedData"`
	SubmittedDocuments []DocumentType               `json:"submittedDocuments"`
}
