// internal/wizard/decision/parse.go
package decision

import (
	"regexp"
	"strconv"
	"strings"

	"loan-wizard/internal/models"
)

var firstNumber = regexp.MustCompile(`\d+`)

// parseAmount strips every non-digit and parses the rest. "₹45,000" is 45000.
func parseAmount(s string) (int64, bool) {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// MonthlyIncome reads the income document's monthlyIncome field.
func MonthlyIncome(data *models.ApplicationData) (int64, bool) {
	rec := data.ExtractedData[models.DocIncome]
	n, ok := parseAmount(rec["monthlyIncome"])
	return n, ok && n > 0
}

// RequestedAmount reads the loanAmount questionnaire answer.
func RequestedAmount(data *models.ApplicationData) (int64, bool) {
	n, ok := parseAmount(data.LoanAnswers["loanAmount"])
	return n, ok && n > 0
}

// CreditScore returns the declared credit score, preferring the CIBIL report
// over the questionnaire answer. Answers without a number ("not sure") are absent.
func CreditScore(data *models.ApplicationData) (int, bool) {
	candidates := []string{
		data.ExtractedData[models.DocCIBIL]["cibilScore"],
		data.LoanAnswers["creditScore"],
	}
	for _, c := range candidates {
		m := firstNumber.FindString(c)
		if m == "" {
			continue
		}
		n, err := strconv.Atoi(m)
		if err != nil || n <= 0 {
			continue
		}
		return n, true
	}
	return 0, false
}
