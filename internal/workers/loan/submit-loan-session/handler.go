// internal/workers/loan/submit-loan-session/handler.go
package submitloansession

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
	"loan-wizard/internal/wizard/session"
)

const (
	TaskType = "submit-loan-session"
)

var (
	ErrMissingSessionID = errors.New("MISSING_SESSION_ID")
)

// Handler resumes a stored wizard session at Review and submits it for a decision.
type Handler struct {
	config       *Config
	deps         session.Deps
	errorHandler *commonerrors.ErrorHandler
	logger       logger.Logger
}

// NewHandler requires deps.Store and deps.Decider.
func NewHandler(config *Config, deps session.Deps, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	if deps.Logger == nil {
		deps.Logger = l
	}
	return &Handler{
		config:       config,
		deps:         deps,
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
		h.failJob(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.SessionID == "" {
		return nil, commonerrors.NewInvalidInputError(ErrMissingSessionID.Error())
	}

	m, err := session.Resume(ctx, input.SessionID, h.deps)
	if err != nil {
		if errors.Is(err, session.ErrSnapshotNotFound) {
			return nil, commonerrors.NewSessionNotFoundError(input.SessionID)
		}
		return nil, commonerrors.NewExternalServiceError("session-store", err)
	}

	t, err := m.SubmitApplicationAsync(ctx)
	if err != nil {
		return nil, commonerrors.NewSessionStateError(input.SessionID, err)
	}

	rec, err := t.Wait(ctx)
	if err != nil {
		return nil, commonerrors.NewAssessmentTimeoutError(h.config.Timeout)
	}

	if rec.ApprovalStatus == models.StatusError && h.config.FailOnError {
		return nil, commonerrors.NewAssessmentFailedError(
			fmt.Errorf("decision %s: %s", rec.ID, strings.Join(rec.Reasons, "; ")))
	}

	snap := m.Snapshot()
	docs := make([]string, 0, len(snap.ExtractedData))
	for _, d := range models.DocumentTypes {
		if _, ok := snap.ExtractedData[d]; ok {
			docs = append(docs, string(d))
		}
	}

	h.logger.Info("session submitted", map[string]interface{}{
		"sessionId":      input.SessionID,
		"decisionId":     rec.ID,
		"approvalStatus": rec.ApprovalStatus,
	})

	return &Output{
		ApplicationID:      m.ID(),
		LoanType:           string(m.LoanType()),
		SubmittedDocuments: docs,
		ApprovalStatus:     string(rec.ApprovalStatus),
		Decision:           rec,
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
