// internal/workers/loan/notify-loan-decision/message.go
package notifyloandecision

import (
	"fmt"
	"strings"

	"loan-wizard/internal/models"
)

func productTitle(loanType string) string {
	if p, ok := models.LoanProducts[models.LoanType(loanType)]; ok {
		return p.Title
	}
	return "loan"
}

func buildSubject(input *Input) string {
	title := productTitle(input.LoanType)
	switch input.Decision.ApprovalStatus {
	case models.StatusApproved:
		return fmt.Sprintf("Your %s application has been approved", title)
	case models.StatusRejected:
		return fmt.Sprintf("An update on your %s application", title)
	default:
		return fmt.Sprintf("We could not complete the assessment of your %s application", title)
	}
}

func buildBody(input *Input) string {
	d := input.Decision
	var b strings.Builder

	b.WriteString("Dear applicant,\n\n")
	if d.Summary != "" {
		b.WriteString(d.Summary)
		b.WriteString("\n\n")
	}

	if len(d.Reasons) > 0 {
		b.WriteString("Assessment details:\n")
		for _, r := range d.Reasons {
			b.WriteString("- " + r + "\n")
		}
		b.WriteString("\n")
	}

	if d.ApprovalStatus == models.StatusApproved {
		fmt.Fprintf(&b, "Interest rate: %s%% per annum\n", d.InterestRate)
		if len(d.Conditions) > 0 {
			b.WriteString("Conditions:\n")
			for _, c := range d.Conditions {
				b.WriteString("- " + c + "\n")
			}
		}
		b.WriteString("\n")
	}

	if d.ApprovalStatus == models.StatusError {
		b.WriteString("You can submit your application again at any time.\n\n")
	}

	fmt.Fprintf(&b, "Application reference: %s\n", input.ApplicationID)
	return b.String()
}

func buildSMS(input *Input) string {
	return fmt.Sprintf("Your %s application %s is approved at %s%% p.a. Check your email for details.",
		productTitle(input.LoanType), input.ApplicationID, input.Decision.InterestRate)
}
