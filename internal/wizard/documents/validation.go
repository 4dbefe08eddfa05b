// internal/wizard/documents/validation.go
package documents

import (
	"fmt"
	"strings"

	"loan-wizard/internal/models"
)

// ValidationError is the inline correction prompt for one document type.
type ValidationError struct {
	DocumentType models.DocumentType `json:"documentType"`
	Field        string              `json:"field"`
	Message      string              `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.DocumentType, e.Message)
}

type presenceRule struct {
	field   string
	message string
}

// rules is the closed presence table. Only required document types appear here
// and rules are checked in order, so the first missing field wins.
var rules = map[models.DocumentType][]presenceRule{
	models.DocIdentity: {
		{field: "idNumber", message: "ID number is required"},
		{field: "name", message: "Name is required"},
	},
	models.DocPAN: {
		{field: "panNumber", message: "PAN number is required"},
	},
	models.DocAddress: {
		{field: "address", message: "Address information is required"},
	},
	models.DocIncome: {
		{field: "monthlyIncome", message: "Income information is required"},
	},
	models.DocBank: {
		{field: "accountNumber", message: "Account number is required"},
	},
}

// Validate returns nil when fields pass the presence rules for docType.
// Optional document types always pass. An extraction-error marker gets no
// special treatment: the ordinary missing-field message is returned.
func Validate(docType models.DocumentType, fields models.FieldRecord) *ValidationError {
	if !docType.Required() {
		return nil
	}
	for _, r := range rules[docType] {
		if strings.TrimSpace(fields[r.field]) == "" {
			return &ValidationError{
				DocumentType: docType,
				Field:        r.field,
				Message:      r.message,
			}
		}
	}
	return nil
}
