// internal/common/extraction/client.go
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"loan-wizard/internal/models"
)

var (
	ErrExtractionFailed = errors.New("DOCUMENT_EXTRACTION_FAILED")
	ErrEmptyArtifact    = errors.New("EMPTY_ARTIFACT")
)

// UserMessage is stored as the extractionError marker when extraction fails.
const UserMessage = "Failed to extract document data. Please try a clearer image or enter details manually."

// Client calls the document text-extraction collaborator.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type extractResponse struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data"`
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
}

// Extract uploads the artifact and returns the recognised fields.
func (c *Client) Extract(ctx context.Context, docType models.DocumentType, artifact models.Artifact) (models.FieldRecord, error) {
	if len(artifact.Data) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, ErrEmptyArtifact)
	}

	body, contentType, err := encodeForm(docType, artifact)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/extract-document", body)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrExtractionFailed, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrExtractionFailed, err)
	}

	var result extractResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: status %d", ErrExtractionFailed, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: decode response: %v", ErrExtractionFailed, err)
	}

	if resp.StatusCode != http.StatusOK || result.Error != "" {
		msg := result.Error
		if msg == "" {
			msg = result.Message
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrExtractionFailed, resp.StatusCode, msg)
	}

	return toFieldRecord(result.Data), nil
}

func encodeForm(docType models.DocumentType, artifact models.Artifact) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("documentType", string(docType)); err != nil {
		return nil, "", err
	}

	name := artifact.FileName
	if name == "" {
		name = string(docType)
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	if artifact.MimeType != "" {
		header.Set("Content-Type", artifact.MimeType)
	} else {
		header.Set("Content-Type", "application/octet-stream")
	}

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(artifact.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func toFieldRecord(data map[string]interface{}) models.FieldRecord {
	rec := make(models.FieldRecord, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			rec[k] = val
		case float64:
			rec[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			rec[k] = strconv.FormatBool(val)
		default:
			b, _ := json.Marshal(val)
			rec[k] = string(b)
		}
	}
	return rec
}
