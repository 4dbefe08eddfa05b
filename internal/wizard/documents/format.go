// internal/wizard/documents/format.go
package documents

import (
	"regexp"
	"strings"

	"loan-wizard/internal/models"
)

var twelveDigits = regexp.MustCompile(`(\d{4})(\d{4})(\d{4})`)

const rupee = "₹"

// FormatRecord returns a cleaned copy of fields suitable for review and assessment.
func FormatRecord(docType models.DocumentType, fields models.FieldRecord) models.FieldRecord {
	out := fields.Clone()
	if out == nil {
		return models.FieldRecord{}
	}
	delete(out, models.FieldExtractionError)
	delete(out, models.FieldRawText)

	switch docType {
	case models.DocIdentity:
		if id := out["idNumber"]; id != "" {
			out["idNumber"] = groupFirstTwelveDigits(id)
		}
	case models.DocIncome:
		if income := out["monthlyIncome"]; income != "" && !strings.HasPrefix(income, rupee) {
			out["monthlyIncome"] = rupee + income
		}
	}
	return out
}

func groupFirstTwelveDigits(s string) string {
	loc := twelveDigits.FindStringSubmatchIndex(s)
	if loc == nil {
		return s
	}
	return s[:loc[0]] + s[loc[2]:loc[3]] + " " + s[loc[4]:loc[5]] + " " + s[loc[6]:loc[7]] + s[loc[1]:]
}
