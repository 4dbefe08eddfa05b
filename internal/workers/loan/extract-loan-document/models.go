// internal/workers/loan/extract-loan-document/models.go
package extractloandocument

import "loan-wizard/internal/models"

type Input struct {
	DocumentType  string `json:"documentType"`
	FileName      string `json:"fileName"`
	MimeType      string `json:"mimeType"`
	ContentBase64 string `json:"contentBase64"`
}

type Output struct {
	DocumentType     string             `json:"documentType"`
	Fields           models.FieldRecord `json:"fields"`
	ExtractionFailed bool               `json:"extractionFailed"`
}
