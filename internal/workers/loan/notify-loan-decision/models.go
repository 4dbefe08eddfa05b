// internal/workers/loan/notify-loan-decision/models.go
package notifyloandecision

import "loan-wizard/internal/models"

type Input struct {
	ApplicationID string                `json:"applicationId"`
	LoanType      string                `json:"loanType,omitempty"`
	Email         string                `json:"email,omitempty"`
	Phone         string                `json:"phone,omitempty"`
	Decision      models.DecisionRecord `json:"decision"`
}

type Output struct {
	NotificationID string `json:"notificationId"`
	Status         string `json:"status"` // "sent", "failed", "disabled"
	SentAt         string `json:"sentAt"` // ISO 8601
}

const (
	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
)
