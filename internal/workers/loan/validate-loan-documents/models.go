// internal/workers/loan/validate-loan-documents/models.go
package validateloandocuments

type Input struct {
	UploadedDocuments []string                     `json:"uploadedDocuments"`
	ExtractedData     map[string]map[string]string `json:"extractedData"`
}

type Output struct {
	IsComplete       bool              `json:"isComplete"`
	ValidationErrors map[string]string `json:"validationErrors"`
	MissingRequired  []string          `json:"missingRequired"`
	Progress         int               `json:"progress"`
}
