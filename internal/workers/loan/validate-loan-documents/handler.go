// internal/workers/loan/validate-loan-documents/handler.go
package validateloandocuments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	commonerrors "loan-wizard/internal/common/errors"
	"loan-wizard/internal/common/logger"
	"loan-wizard/internal/common/metrics"
	"loan-wizard/internal/models"
	"loan-wizard/internal/wizard/documents"
)

const (
	TaskType = "validate-loan-documents"
)

var (
	ErrUnknownDocumentType = errors.New("UNKNOWN_DOCUMENT_TYPE")
	ErrDocumentsIncomplete = errors.New("DOCUMENTS_INCOMPLETE")
)

type Handler struct {
	config       *Config
	errorHandler *commonerrors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
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

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(ctx, client, job, commonerrors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownDocumentType):
			err = commonerrors.NewInvalidInputError(err.Error())
		case errors.Is(err, ErrDocumentsIncomplete):
			err = commonerrors.NewDocumentValidationFailedError(err.Error())
		}
		h.failJob(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
}

func (h *Handler) execute(_ context.Context, input *Input) (*Output, error) {
	store := documents.NewStore()

	for _, key := range input.UploadedDocuments {
		docType, err := models.ParseDocumentType(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnknownDocumentType, err)
		}
		store.RecordUpload(docType, models.Artifact{FileName: key}, models.MethodUpload)
	}
	for key, fields := range input.ExtractedData {
		docType, err := models.ParseDocumentType(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnknownDocumentType, err)
		}
		store.RecordExtraction(docType, models.FieldRecord(fields))
	}

	// required types never seen get the same message as an empty record
	validationErrors := make(map[string]string)
	for d, msg := range store.ValidationErrors() {
		validationErrors[string(d)] = msg
	}
	missing := store.MissingRequired()
	missingRequired := make([]string, 0, len(missing))
	for _, d := range missing {
		missingRequired = append(missingRequired, string(d))
		if _, ok := validationErrors[string(d)]; ok {
			continue
		}
		if verr := documents.Validate(d, nil); verr != nil {
			validationErrors[string(d)] = verr.Message
		}
	}

	output := &Output{
		IsComplete:       len(missing) == 0,
		ValidationErrors: validationErrors,
		MissingRequired:  missingRequired,
		Progress:         store.ProgressPercent(),
	}

	h.logger.Info("documents validated", map[string]interface{}{
		"isComplete":      output.IsComplete,
		"missingRequired": output.MissingRequired,
		"progress":        output.Progress,
	})

	if !output.IsComplete && h.config.FailOnIncomplete {
		return nil, fmt.Errorf("%w: missing or invalid: %s", ErrDocumentsIncomplete, strings.Join(missingRequired, ", "))
	}
	return output, nil
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
