package assessloanapplication

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-wizard/internal/common/config"
	"loan-wizard/internal/common/logger"
	"loan-wizard/internal/models"
	"loan-wizard/internal/wizard/decision"
)

// ==========================
// Test Helper Functions
// ==========================

type recordingDecider struct {
	rec  models.DecisionRecord
	last *models.ApplicationData
}

func (d *recordingDecider) Decide(_ context.Context, data *models.ApplicationData) models.DecisionRecord {
	d.last = data
	return d.rec
}

func createTestHandler(t *testing.T, decider Decider) *Handler {
	return NewHandler(&Config{Timeout: 5 * time.Second}, decider, logger.NewTestLogger(t))
}

func heuristicDecider(t *testing.T) Decider {
	cfg := config.DefaultDecisionConfig()
	cfg.Strategy = config.StrategyHeuristic
	log := logger.NewTestLogger(t)
	return decision.NewProcedure(cfg, decision.NewHeuristic(cfg, log), log)
}

func createInput(loanType, amount, income string, docs ...string) *Input {
	return &Input{
		ApplicationID:      "app-123",
		LoanType:           loanType,
		LoanAnswers:        map[string]string{"loanAmount": amount},
		ExtractedData:      map[string]map[string]string{"income": {"monthlyIncome": income}},
		SubmittedDocuments: docs,
	}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Heuristic(t *testing.T) {
	tests := []struct {
		name           string
		input          *Input
		expectedStatus models.ApprovalStatus
		expectedRate   string
	}{
		{
			name:           "home loan within limits is approved",
			input:          createInput("home", "250000", "₹25,000", "identity", "pan", "income"),
			expectedStatus: models.StatusApproved,
			expectedRate:   "7.50",
		},
		{
			name:           "loan type is case insensitive",
			input:          createInput("Personal", "100000", "50000", "identity", "pan", "income", "bank"),
			expectedStatus: models.StatusApproved,
			expectedRate:   "10.99",
		},
		{
			name:           "amount above ratio is rejected",
			input:          createInput("home", "250001", "25000", "identity", "pan", "income"),
			expectedStatus: models.StatusRejected,
			expectedRate:   "0",
		},
		{
			name:           "too few documents is rejected",
			input:          createInput("vehicle", "100000", "40000", "identity", "pan"),
			expectedStatus: models.StatusRejected,
			expectedRate:   "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := createTestHandler(t, heuristicDecider(t))

			output, err := handler.Execute(context.Background(), tt.input)

			require.NoError(t, err)
			assert.Equal(t, string(tt.expectedStatus), output.ApprovalStatus)
			assert.Equal(t, tt.expectedStatus, output.Decision.ApprovalStatus)
			assert.Equal(t, tt.expectedRate, output.Decision.InterestRate)
			assert.Equal(t, config.StrategyHeuristic, output.Decision.Strategy)
			assert.NotEmpty(t, output.Decision.ID)
			assert.NotEmpty(t, output.Decision.Reasons)
		})
	}
}

func TestHandler_Execute_ErrorDecisionCompletes(t *testing.T) {
	decider := &recordingDecider{rec: models.DecisionRecord{
		ID:             "dec-err",
		ApprovalStatus: models.StatusError,
		Reasons:        []string{"The assessment service did not respond in time"},
		InterestRate:   "0",
		Conditions:     []string{},
	}}
	handler := createTestHandler(t, decider)

	output, err := handler.Execute(context.Background(), createInput("business", "500000", "90000", "identity"))

	require.NoError(t, err)
	assert.Equal(t, "error", output.ApprovalStatus)
	assert.Equal(t, "dec-err", output.Decision.ID)
}

func TestHandler_Execute_ConvertsInput(t *testing.T) {
	decider := &recordingDecider{rec: models.DecisionRecord{ApprovalStatus: models.StatusRejected}}
	handler := createTestHandler(t, decider)

	input := &Input{
		ApplicationID: "app-9",
		LoanType:      "education",
		LoanAnswers:   map[string]string{"loanAmount": "400000", "courseName": "MSc"},
		ExtractedData: map[string]map[string]string{
			"identity": {"idNumber": "123412341234", "name": "Asha"},
			"cibil":    {"cibilScore": "742"},
		},
		SubmittedDocuments: []string{"identity", "cibil"},
	}

	_, err := handler.Execute(context.Background(), input)
	require.NoError(t, err)

	require.NotNil(t, decider.last)
	assert.Equal(t, "app-9", decider.last.ApplicationID)
	assert.Equal(t, models.LoanTypeEducation, decider.last.LoanType)
	assert.Equal(t, "MSc", decider.last.LoanAnswers["courseName"])
	assert.Equal(t, "742", decider.last.ExtractedData[models.DocCIBIL]["cibilScore"])
	assert.Equal(t, []models.DocumentType{models.DocIdentity, models.DocCIBIL}, decider.last.SubmittedDocuments)

	// records reach the decider in the same form a session submits them
	assert.Equal(t, "1234 1234 1234", decider.last.ExtractedData[models.DocIdentity]["idNumber"])

	// the decider works on a copy of the job variables
	decider.last.LoanAnswers["courseName"] = "changed"
	assert.Equal(t, "MSc", input.LoanAnswers["courseName"])
}

func TestHandler_Execute_FormatsExtractedData(t *testing.T) {
	tests := []struct {
		name     string
		docType  string
		fields   map[string]string
		expected models.FieldRecord
	}{
		{
			name:     "identity number grouped",
			docType:  "identity",
			fields:   map[string]string{"idNumber": "999988887777", "name": "Ravi"},
			expected: models.FieldRecord{"idNumber": "9999 8888 7777", "name": "Ravi"},
		},
		{
			name:     "income gets rupee prefix",
			docType:  "income",
			fields:   map[string]string{"monthlyIncome": "52000"},
			expected: models.FieldRecord{"monthlyIncome": "₹52000"},
		},
		{
			name:    "extraction bookkeeping stripped",
			docType: "address",
			fields: map[string]string{
				"address":                   "12 MG Road",
				models.FieldExtractionError: "timeout",
				models.FieldRawText:         "raw ocr text",
			},
			expected: models.FieldRecord{"address": "12 MG Road"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decider := &recordingDecider{rec: models.DecisionRecord{ApprovalStatus: models.StatusRejected}}
			handler := createTestHandler(t, decider)

			input := &Input{
				ApplicationID:      "app-fmt",
				LoanType:           "personal",
				LoanAnswers:        map[string]string{"loanAmount": "100000"},
				ExtractedData:      map[string]map[string]string{tt.docType: tt.fields},
				SubmittedDocuments: []string{tt.docType},
			}

			_, err := handler.Execute(context.Background(), input)
			require.NoError(t, err)

			require.NotNil(t, decider.last)
			docType, err := models.ParseDocumentType(tt.docType)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, decider.last.ExtractedData[docType])
			// job variables are left untouched
			assert.Equal(t, tt.fields, input.ExtractedData[tt.docType])
		})
	}
}

// ==========================
// Error Handling Tests
// ==========================

func TestHandler_Execute_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input *Input
	}{
		{
			name:  "missing application id",
			input: &Input{LoanType: "home"},
		},
		{
			name:  "unknown loan type",
			input: &Input{ApplicationID: "app-1", LoanType: "yacht"},
		},
		{
			name: "unknown extracted document type",
			input: &Input{
				ApplicationID: "app-1",
				LoanType:      "home",
				ExtractedData: map[string]map[string]string{"passport": {"number": "X1"}},
			},
		},
		{
			name: "unknown submitted document type",
			input: &Input{
				ApplicationID:      "app-1",
				LoanType:           "home",
				SubmittedDocuments: []string{"identity", "selfie"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decider := &recordingDecider{}
			handler := createTestHandler(t, decider)

			output, err := handler.Execute(context.Background(), tt.input)

			assert.Nil(t, output)
			assert.True(t, errors.Is(err, ErrInvalidApplication))
			assert.Nil(t, decider.last)
		})
	}
}

func TestInputSchema(t *testing.T) {
	tests := []struct {
		name  string
		vars  map[string]interface{}
		valid bool
	}{
		{
			name: "complete variables",
			vars: map[string]interface{}{
				"applicationId":      "app-1",
				"loanType":           "home",
				"loanAnswers":        map[string]string{"loanAmount": "100000"},
				"extractedData":      map[string]map[string]string{"income": {"monthlyIncome": "50000"}},
				"submittedDocuments": []string{"income"},
				"unrelatedVariable":  42,
			},
			valid: true,
		},
		{
			name:  "missing loan type",
			vars:  map[string]interface{}{"applicationId": "app-1"},
			valid: false,
		},
		{
			name:  "numeric answer",
			vars:  map[string]interface{}{"applicationId": "app-1", "loanType": "home", "loanAnswers": map[string]int{"loanAmount": 5}},
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.vars)
			require.NoError(t, err)

			res := inputSchema.ValidateJSON(raw)
			assert.Equal(t, tt.valid, res.Valid, res.Summary())
		})
	}
}
