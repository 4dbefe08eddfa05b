// internal/models/document.go
package models

import (
	"fmt"
	"time"
)

// DocumentType is one of the fixed application-document categories.
type DocumentType string

const (
	DocIdentity   DocumentType = "identity"
	DocPAN        DocumentType = "pan"
	DocAddress    DocumentType = "address"
	DocIncome     DocumentType = "income"
	DocBank       DocumentType = "bank"
	DocCIBIL      DocumentType = "cibil"
	DocEmployment DocumentType = "employment"
	DocProperty   DocumentType = "property"
	DocCollateral DocumentType = "collateral"
)

// DocumentTypes lists every document type in collection order.
var DocumentTypes = []DocumentType{
	DocIdentity,
	DocPAN,
	DocAddress,
	DocIncome,
	DocBank,
	DocCIBIL,
	DocEmployment,
	DocProperty,
	DocCollateral,
}

var requiredDocuments = map[DocumentType]bool{
	DocIdentity: true,
	DocPAN:      true,
	DocAddress:  true,
	DocIncome:   true,
	DocBank:     true,
}

var documentTitles = map[DocumentType]string{
	DocIdentity:   "Identity Proof (Aadhaar/Passport)",
	DocPAN:        "PAN Card",
	DocAddress:    "Address Proof",
	DocIncome:     "Income Proof (Salary Slip/ITR)",
	DocBank:       "Bank Statement",
	DocCIBIL:      "CIBIL Report",
	DocEmployment: "Employment Proof",
	DocProperty:   "Property Documents",
	DocCollateral: "Collateral Documents",
}

// Valid reports whether d is one of the fixed document types.
func (d DocumentType) Valid() bool {
	_, ok := documentTitles[d]
	return ok
}

// Required reports whether d gates progress past the documents step.
func (d DocumentType) Required() bool {
	return requiredDocuments[d]
}

// Title returns the display name of the document type.
func (d DocumentType) Title() string {
	return documentTitles[d]
}

// ParseDocumentType checks s against the fixed document types.
func ParseDocumentType(s string) (DocumentType, error) {
	d := DocumentType(s)
	if !d.Valid() {
		return "", fmt.Errorf("unknown document type %q", s)
	}
	return d, nil
}

// RequiredDocumentTypes returns the required subset in collection order.
func RequiredDocumentTypes() []DocumentType {
	out := make([]DocumentType, 0, len(requiredDocuments))
	for _, d := range DocumentTypes {
		if d.Required() {
			out = append(out, d)
		}
	}
	return out
}

// AcquisitionMethod records how a document artifact was supplied.
type AcquisitionMethod string

const (
	MethodUpload        AcquisitionMethod = "upload"
	MethodManualEntry   AcquisitionMethod = "manual-entry"
	MethodCameraCapture AcquisitionMethod = "camera-capture"
)

// Valid reports whether m is a known acquisition method.
func (m AcquisitionMethod) Valid() bool {
	switch m {
	case MethodUpload, MethodManualEntry, MethodCameraCapture:
		return true
	}
	return false
}

// Artifact is the raw file or photo supplied by the applicant.
type Artifact struct {
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data,omitempty"`
}

// UploadedDocument is one user-supplied artifact for a document type.
type UploadedDocument struct {
	DocumentType      DocumentType      `json:"documentType"`
	Artifact          Artifact          `json:"artifact"`
	AcquisitionMethod AcquisitionMethod `json:"acquisitionMethod"`
	UploadedAt        time.Time         `json:"uploadedAt"`
}

// FieldExtractionError is the FieldRecord key marking a failed extraction.
const FieldExtractionError = "extractionError"

// FieldRawText carries unparsed collaborator output and is never shown to reviewers.
const FieldRawText = "rawText"

// FieldRecord holds free-form extracted or entered key/value pairs for one document.
type FieldRecord map[string]string

// Clone returns an independent copy of r.
func (r FieldRecord) Clone() FieldRecord {
	if r == nil {
		return nil
	}
	out := make(FieldRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ExtractionFailed reports whether r carries the extraction failure marker.
func (r FieldRecord) ExtractionFailed() bool {
	_, ok := r[FieldExtractionError]
	return ok
}
