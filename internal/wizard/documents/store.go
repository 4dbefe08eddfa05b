// internal/wizard/documents/store.go
package documents

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"loan-wizard/internal/models"
)

// Store holds, per document type, the uploaded artifact, the extracted fields
// and the latest validation outcome. Unknown document types are ignored.
type Store struct {
	mu      sync.RWMutex
	uploads map[models.DocumentType]models.UploadedDocument
	records map[models.DocumentType]models.FieldRecord
	invalid map[models.DocumentType]*ValidationError
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		uploads: make(map[models.DocumentType]models.UploadedDocument),
		records: make(map[models.DocumentType]models.FieldRecord),
		invalid: make(map[models.DocumentType]*ValidationError),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RecordUpload stores or replaces the artifact for docType. A new upload
// invalidates any earlier extraction, manual edits and extraction-error marker.
func (s *Store) RecordUpload(docType models.DocumentType, artifact models.Artifact, method models.AcquisitionMethod) {
	if !docType.Valid() {
		return
	}
	if !method.Valid() {
		method = models.MethodUpload
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.uploads[docType] = models.UploadedDocument{
		DocumentType:      docType,
		Artifact:          cloneArtifact(artifact),
		AcquisitionMethod: method,
		UploadedAt:        s.now(),
	}
	delete(s.records, docType)
	delete(s.invalid, docType)
}

// RecordExtraction stores the extracted fields for docType and validates them.
func (s *Store) RecordExtraction(docType models.DocumentType, fields models.FieldRecord) {
	if !docType.Valid() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := fields.Clone()
	if rec == nil {
		rec = models.FieldRecord{}
	}
	s.records[docType] = rec
	s.revalidate(docType)
}

// CorrectField overwrites one field of the record for docType and revalidates.
// Values are stored verbatim; no coercion is applied.
func (s *Store) CorrectField(docType models.DocumentType, key, value string) {
	if !docType.Valid() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[docType]
	if !ok {
		rec = models.FieldRecord{}
		s.records[docType] = rec
	}
	rec[key] = value
	s.revalidate(docType)
}

// SubmitManualEntry stores fields typed by the applicant. When nothing was uploaded
// for docType a JSON placeholder artifact is created so the document counts as supplied.
func (s *Store) SubmitManualEntry(docType models.DocumentType, fields models.FieldRecord) error {
	if !docType.Valid() {
		return fmt.Errorf("manual entry: unknown document type %q", docType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := fields.Clone()
	if rec == nil {
		rec = models.FieldRecord{}
	}

	if up, ok := s.uploads[docType]; ok {
		up.AcquisitionMethod = models.MethodManualEntry
		s.uploads[docType] = up
	} else {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("manual entry placeholder: %w", err)
		}
		s.uploads[docType] = models.UploadedDocument{
			DocumentType: docType,
			Artifact: models.Artifact{
				FileName: fmt.Sprintf("manual-%s.json", docType),
				MimeType: "application/json",
				Data:     data,
			},
			AcquisitionMethod: models.MethodManualEntry,
			UploadedAt:        s.now(),
		}
	}

	s.records[docType] = rec
	s.revalidate(docType)
	return nil
}

// ManualEntryPrefill returns the manual-entry keys for docType pre-filled from
// whatever was extracted so far.
func (s *Store) ManualEntryPrefill(docType models.DocumentType) models.FieldRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec := s.records[docType]
	out := models.FieldRecord{}
	for _, f := range manualTemplates[docType] {
		out[f.Key] = rec[f.Key]
	}
	return out
}

func (s *Store) revalidate(docType models.DocumentType) {
	if verr := Validate(docType, s.records[docType]); verr != nil {
		s.invalid[docType] = verr
		return
	}
	delete(s.invalid, docType)
}

// CompletedCount counts document types with both an upload and a field record.
func (s *Store) CompletedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, d := range models.DocumentTypes {
		_, up := s.uploads[d]
		_, rec := s.records[d]
		if up && rec {
			n++
		}
	}
	return n
}

// ProgressPercent is round(100 * completed / total document types).
func (s *Store) ProgressPercent() int {
	return int(math.Round(100 * float64(s.CompletedCount()) / float64(len(models.DocumentTypes))))
}

// ValidationError returns the latest validation outcome for docType, nil when it passes
// or has not been validated yet.
func (s *Store) ValidationError(docType models.DocumentType) *ValidationError {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if verr, ok := s.invalid[docType]; ok {
		cp := *verr
		return &cp
	}
	return nil
}

// ValidationErrors returns the current inline error message per document type.
func (s *Store) ValidationErrors() map[models.DocumentType]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[models.DocumentType]string, len(s.invalid))
	for d, verr := range s.invalid {
		out[d] = verr.Message
	}
	return out
}

// MissingRequired lists required document types that lack an upload or fail validation.
func (s *Store) MissingRequired() []models.DocumentType {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var missing []models.DocumentType
	for _, d := range models.RequiredDocumentTypes() {
		if _, ok := s.uploads[d]; !ok {
			missing = append(missing, d)
			continue
		}
		if Validate(d, s.records[d]) != nil {
			missing = append(missing, d)
		}
	}
	return missing
}

// RequiredComplete reports whether every required document type is uploaded and valid.
func (s *Store) RequiredComplete() bool {
	return len(s.MissingRequired()) == 0
}

// Upload returns the stored artifact for docType.
func (s *Store) Upload(docType models.DocumentType) (models.UploadedDocument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	up, ok := s.uploads[docType]
	if ok {
		up.Artifact = cloneArtifact(up.Artifact)
	}
	return up, ok
}

// Record returns a copy of the field record for docType.
func (s *Store) Record(docType models.DocumentType) (models.FieldRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[docType]
	return rec.Clone(), ok
}

// Uploads returns a copy of every stored upload.
func (s *Store) Uploads() map[models.DocumentType]models.UploadedDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[models.DocumentType]models.UploadedDocument, len(s.uploads))
	for d, up := range s.uploads {
		up.Artifact = cloneArtifact(up.Artifact)
		out[d] = up
	}
	return out
}

// Records returns a copy of every stored field record.
func (s *Store) Records() map[models.DocumentType]models.FieldRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[models.DocumentType]models.FieldRecord, len(s.records))
	for d, rec := range s.records {
		out[d] = rec.Clone()
	}
	return out
}

// FormattedRecords returns cleaned copies of every record, see FormatRecord.
func (s *Store) FormattedRecords() map[models.DocumentType]models.FieldRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[models.DocumentType]models.FieldRecord, len(s.records))
	for d, rec := range s.records {
		out[d] = FormatRecord(d, rec)
	}
	return out
}

// SubmittedDocuments lists uploaded document types in collection order.
func (s *Store) SubmittedDocuments() []models.DocumentType {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.DocumentType
	for _, d := range models.DocumentTypes {
		if _, ok := s.uploads[d]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Restore replaces the store contents, used when rehydrating a saved session.
func (s *Store) Restore(uploads map[models.DocumentType]models.UploadedDocument, records map[models.DocumentType]models.FieldRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.uploads = make(map[models.DocumentType]models.UploadedDocument, len(uploads))
	s.records = make(map[models.DocumentType]models.FieldRecord, len(records))
	s.invalid = make(map[models.DocumentType]*ValidationError)
	for d, up := range uploads {
		if d.Valid() {
			up.Artifact = cloneArtifact(up.Artifact)
			s.uploads[d] = up
		}
	}
	for d, rec := range records {
		if d.Valid() {
			s.records[d] = rec.Clone()
			s.revalidate(d)
		}
	}
}

// Reset drops every upload and record.
func (s *Store) Reset() {
	s.Restore(nil, nil)
}

func cloneArtifact(a models.Artifact) models.Artifact {
	if a.Data != nil {
		a.Data = append([]byte(nil), a.Data...)
	}
	return a
}
