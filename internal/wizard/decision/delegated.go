// internal/wizard/decision/delegated.go
package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"loan-wizard/internal/common/config"
	commonhttp "loan-wizard/internal/common/http"
	"loan-wizard/internal/common/logger"
	"loan-wizard/internal/common/validation"
	"loan-wizard/internal/models"
)

var (
	ErrAssessmentTimeout = errors.New("ASSESSMENT_TIMEOUT")
	ErrAssessmentFailed  = errors.New("ASSESSMENT_FAILED")
	ErrReplyInvalid      = errors.New("ASSESSMENT_REPLY_INVALID")
)

// DelegatedConfig points the assessor at the text-generation collaborator.
type DelegatedConfig struct {
	BaseURL     string
	APIKey      string
	MaxTokens   int
	Temperature float64
	MaxRetries  int
}

// AssessmentRequest is the structured payload handed to the collaborator.
type AssessmentRequest struct {
	LoanType           models.LoanType                            `json:"loanType"`
	LoanAnswers        map[string]string                          `json:"loanAnswers"`
	ExtractedData      map[models.DocumentType]models.FieldRecord `json:"extractedData"`
	SubmittedDocuments []models.DocumentType                      `json:"submittedDocuments"`
}

// assessmentReply is the JSON the collaborator must return inside its text.
type assessmentReply struct {
	ApprovalStatus models.ApprovalStatus `json:"approvalStatus"`
	Reasons        []string              `json:"reasons"`
	InterestRate   json.RawMessage       `json:"interestRate"`
	Conditions     []string              `json:"conditions"`
	Summary        string                `json:"summary"`
}

var replySchema = validation.MustCompile(`{
	"type": "object",
	"required": ["approvalStatus", "reasons", "interestRate", "conditions", "summary"],
	"properties": {
		"approvalStatus": {"type": "string", "enum": ["approved", "rejected"]},
		"reasons": {"type": "array", "minItems": 1, "items": {"type": "string"}},
		"interestRate": {"type": ["string", "number"]},
		"conditions": {"type": "array", "items": {"type": "string"}},
		"summary": {"type": "string", "minLength": 1}
	}
}`)

// Delegated asks an external text-generation service for the decision.
type Delegated struct {
	cfg    DelegatedConfig
	client *commonhttp.Client
	logger logger.Logger
}

// NewDelegated builds the assessor. Deadlines come from the caller's context.
func NewDelegated(cfg DelegatedConfig, client *commonhttp.Client, log logger.Logger) *Delegated {
	if client == nil {
		client = commonhttp.NewClient(0)
	}
	return &Delegated{
		cfg:    cfg,
		client: client,
		logger: log.WithFields(map[string]interface{}{"strategy": config.StrategyDelegated}),
	}
}

func (d *Delegated) Name() string { return config.StrategyDelegated }

func (d *Delegated) Assess(ctx context.Context, data *models.ApplicationData) (models.DecisionRecord, error) {
	req := AssessmentRequest{
		LoanType:           data.LoanType,
		LoanAnswers:        data.LoanAnswers,
		ExtractedData:      data.ExtractedData,
		SubmittedDocuments: data.SubmittedDocuments,
	}

	text, err := d.generate(ctx, req)
	if err != nil {
		return models.DecisionRecord{}, err
	}

	rec, err := ParseReply(text)
	if err != nil {
		d.logger.Warn("assessment reply rejected", map[string]interface{}{
			"applicationId": data.ApplicationID,
			"error":         err.Error(),
		})
		return models.DecisionRecord{}, err
	}

	d.logger.Info("assessment received", map[string]interface{}{
		"applicationId":  data.ApplicationID,
		"approvalStatus": rec.ApprovalStatus,
	})
	return rec, nil
}

func (d *Delegated) generate(ctx context.Context, req AssessmentRequest) (string, error) {
	body := map[string]interface{}{
		"prompt":      BuildPrompt(req),
		"context":     req,
		"max_tokens":  d.cfg.MaxTokens,
		"temperature": d.cfg.Temperature,
	}
	headers := map[string]string{}
	if d.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + d.cfg.APIKey
	}
	url := strings.TrimRight(d.cfg.BaseURL, "/") + "/api/ai/generate"

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrAssessmentTimeout, ctx.Err())
			}
		}

		resp, lastErr = d.client.PostJSON(ctx, url, headers, body)
		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
			resp = nil
			if !retryable {
				break
			}
		}

		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", ErrAssessmentTimeout, ctx.Err())
		}
	}

	if resp == nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ErrAssessmentTimeout, ctx.Err())
		}
		return "", fmt.Errorf("%w: %v", ErrAssessmentFailed, lastErr)
	}
	defer resp.Body.Close()

	var apiResponse struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return "", fmt.Errorf("%w: decode envelope: %v", ErrReplyInvalid, err)
	}
	return apiResponse.Text, nil
}

// BuildPrompt renders the fixed instruction template around the request payload.
func BuildPrompt(req AssessmentRequest) string {
	var parts []string

	parts = append(parts, "You are a loan underwriting assistant. Assess the application below using ONLY the provided data.")
	parts = append(parts, fmt.Sprintf("\nLoan type: %s", req.LoanType))

	answersJSON, _ := json.MarshalIndent(req.LoanAnswers, "", "  ")
	parts = append(parts, "\nQuestionnaire answers:")
	parts = append(parts, string(answersJSON))

	extractedJSON, _ := json.MarshalIndent(req.ExtractedData, "", "  ")
	parts = append(parts, "\nExtracted document data:")
	parts = append(parts, string(extractedJSON))

	names := make([]string, 0, len(req.SubmittedDocuments))
	for _, d := range req.SubmittedDocuments {
		names = append(names, string(d))
	}
	parts = append(parts, fmt.Sprintf("\nSubmitted documents: %s", strings.Join(names, ", ")))

	parts = append(parts, "\nInstructions:")
	parts = append(parts, "- Reply with a single JSON object and nothing else")
	parts = append(parts, `- Fields: "approvalStatus" ("approved" or "rejected"), "reasons" (exactly 3 short strings), "interestRate" (annual percentage as a number string), "conditions" (list of strings), "summary" (one or two sentences)`)
	parts = append(parts, "- Consider income stability, requested amount, existing obligations and credit history")

	parts = append(parts, "\nJSON:")

	return strings.Join(parts, "\n")
}

// ParseReply extracts the decision JSON from the collaborator text. Markdown
// code fences and prose around the object are tolerated.
func ParseReply(text string) (models.DecisionRecord, error) {
	raw := extractJSONObject(text)
	if raw == "" {
		return models.DecisionRecord{}, fmt.Errorf("%w: no JSON object in reply", ErrReplyInvalid)
	}

	if res := replySchema.ValidateJSON([]byte(raw)); !res.Valid {
		return models.DecisionRecord{}, fmt.Errorf("%w: %s", ErrReplyInvalid, res.Summary())
	}

	var reply assessmentReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return models.DecisionRecord{}, fmt.Errorf("%w: %v", ErrReplyInvalid, err)
	}

	rate, err := normalizeRate(reply.InterestRate)
	if err != nil {
		return models.DecisionRecord{}, fmt.Errorf("%w: %v", ErrReplyInvalid, err)
	}

	conditions := reply.Conditions
	if conditions == nil {
		conditions = []string{}
	}
	return models.DecisionRecord{
		ApprovalStatus: reply.ApprovalStatus,
		Reasons:        reply.Reasons,
		InterestRate:   rate,
		Conditions:     conditions,
		Summary:        reply.Summary,
	}, nil
}

func extractJSONObject(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// normalizeRate turns "9.5%", "9.5" or 9.5 into "9.5". Unparseable rates such
// as "N/A" on a rejection become "0".
func normalizeRate(raw json.RawMessage) (string, error) {
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return strconv.FormatFloat(num, 'f', -1, 64), nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return "", fmt.Errorf("interestRate: %v", err)
	}
	str = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(str), "%"))
	if _, err := strconv.ParseFloat(str, 64); err != nil {
		return "0", nil
	}
	return str, nil
}
