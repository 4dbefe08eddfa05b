// internal/workers/loan/extract-loan-document/handler.go
package extractloandocument

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	commonerrors "loan-wizard/internal/common/errors"
	"loan-wizard/internal/common/extraction"
	"loan-wizard/internal/common/logger"
	"loan-wizard/internal/common/metrics"
	"loan-wizard/internal/models"
)

const (
	TaskType = "extract-loan-document"
)

var (
	ErrInvalidDocument = errors.New("INVALID_DOCUMENT")
)

type Extractor interface {
	Extract(ctx context.Context, docType models.DocumentType, artifact models.Artifact) (models.FieldRecord, error)
}

type Handler struct {
	config       *Config
	extractor    Extractor
	errorHandler *commonerrors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, extractor Extractor, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		extractor:    extractor,
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
		if errors.Is(err, ErrInvalidDocument) {
			err = commonerrors.NewInvalidInputError(err.Error())
		}
		h.failJob(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	docType, err := models.ParseDocumentType(input.DocumentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	data, err := base64.StdEncoding.DecodeString(input.ContentBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: contentBase64: %v", ErrInvalidDocument, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: contentBase64 is empty", ErrInvalidDocument)
	}

	artifact := models.Artifact{
		FileName: input.FileName,
		MimeType: input.MimeType,
		Data:     data,
	}
	if artifact.FileName == "" {
		artifact.FileName = string(docType)
	}

	fields, err := h.extractor.Extract(ctx, docType, artifact)
	if err != nil {
		metrics.DocumentExtractions.WithLabelValues(string(docType), "failed").Inc()
		h.logger.Warn("document extraction failed", map[string]interface{}{
			"documentType": docType,
			"fileName":     artifact.FileName,
			"error":        err.Error(),
		})
		if h.config.RetryOnFailure {
			return nil, commonerrors.NewDocumentExtractionFailedError(string(docType), err)
		}
		return &Output{
			DocumentType:     string(docType),
			Fields:           models.FieldRecord{"extractionError": extraction.UserMessage},
			ExtractionFailed: true,
		}, nil
	}

	metrics.DocumentExtractions.WithLabelValues(string(docType), "succeeded").Inc()
	if fields == nil {
		fields = models.FieldRecord{}
	}
	return &Output{
		DocumentType: string(docType),
		Fields:       fields,
	}, nil
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
