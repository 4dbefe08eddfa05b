// internal/workers/loan/assess-loan-application/handler.go
package assessloanapplication

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	commonerrors "loan-wizard/internal/common/errors"
	"loan-wizard/internal/common/logger"
	"loan-wizard/internal/common/metrics"
	"loan-wizard/internal/common/validation"
	"loan-wizard/internal/models"
	"loan-wizard/internal/wizard/documents"
)

const (
	TaskType = "assess-loan-application"
)

var (
	ErrInvalidApplication = errors.New("INVALID_APPLICATION")
)

var inputSchema = validation.MustCompile(`{
	"type": "object",
	"required": ["applicationId", "loanType"],
	"properties": {
		"applicationId": {"type": "string", "minLength": 1},
		"loanType": {"type": "string", "enum": ["personal", "home", "business", "education", "vehicle"]},
		"loanAnswers": {"type": "object", "additionalProperties": {"type": "string"}},
		"extractedData": {
			"type": "object",
			"additionalProperties": {"type": "object", "additionalProperties": {"type": "string"}}
		},
		"submittedDocuments": {"type": "array", "items": {"type": "string"}}
	}
}`)

// Decider produces a decision and never fails; errors come back as status "error".
type Decider interface {
	Decide(ctx context.Context, data *models.ApplicationData) models.DecisionRecord
}

type Handler struct {
	config       *Config
	decider      Decider
	errorHandler *commonerrors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, decider Decider, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		decider:      decider,
		errorHandler: commonerrors.NewErrorHandler(l),
		logger:       l,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	if res := inputSchema.ValidateJSON([]byte(job.Variables)); !res.Valid {
		h.failJob(ctx, client, job, commonerrors.NewInvalidInputError(res.Summary()))
		return
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(ctx, client, job, commonerrors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		if errors.Is(err, ErrInvalidApplication) {
			err = commonerrors.NewInvalidInputError(err.Error())
		}
		h.failJob(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	data, err := toApplicationData(input)
	if err != nil {
		return nil, err
	}

	rec := h.decider.Decide(ctx, data)
	if rec.ApprovalStatus == models.StatusError {
		h.logger.Warn("assessment ended in error status", map[string]interface{}{
			"applicationId": data.ApplicationID,
			"decisionId":    rec.ID,
			"reasons":       rec.Reasons,
		})
	}

	return &Output{
		ApprovalStatus: string(rec.ApprovalStatus),
		Decision:       rec,
	}, nil
}

func toApplicationData(input *Input) (*models.ApplicationData, error) {
	if input.ApplicationID == "" {
		return nil, fmt.Errorf("%w: applicationId is required", ErrInvalidApplication)
	}
	loanType, err := models.ParseLoanType(input.LoanType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidApplication, err)
	}

	data := &models.ApplicationData{
		ApplicationID:      input.ApplicationID,
		LoanType:           loanType,
		LoanAnswers:        make(map[string]string, len(input.LoanAnswers)),
		ExtractedData:      make(map[models.DocumentType]models.FieldRecord, len(input.ExtractedData)),
		SubmittedDocuments: make([]models.DocumentType, 0, len(input.SubmittedDocuments)),
	}
	for k, v := range input.LoanAnswers {
		data.LoanAnswers[k] = v
	}
	for key, fields := range input.ExtractedData {
		docType, err := models.ParseDocumentType(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidApplication, err)
		}
		data.ExtractedData[docType] = documents.FormatRecord(docType, models.FieldRecord(fields))
	}
	for _, key := range input.SubmittedDocuments {
		docType, err := models.ParseDocumentType(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidApplication, err)
		}
		data.SubmittedDocuments = append(data.SubmittedDocuments, docType)
	}
	return data, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err = cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(commonerrors.AsStandardError(err).Code)).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, err)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
