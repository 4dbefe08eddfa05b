// internal/workers/loan/verify-loan-applicant/handler.go
package verifyloanapplicant

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
	"loan-wizard/internal/wizard/session"
)

const (
	TaskType = "verify-loan-applicant"
)

var (
	ErrMissingCredential = errors.New("MISSING_CREDENTIAL")
)

// Handler verifies the applicant behind a wizard session, opening the
// session when the store has none under the given id.
type Handler struct {
	config       *Config
	deps         session.Deps
	errorHandler *commonerrors.ErrorHandler
	logger       logger.Logger
}

// NewHandler requires deps.Verifier and deps.Store.
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
	if input.Credential == "" {
		return nil, commonerrors.NewInvalidInputError(ErrMissingCredential.Error())
	}

	m, err := session.Resume(ctx, input.SessionID, h.deps)
	switch {
	case errors.Is(err, session.ErrSnapshotNotFound):
		m = session.New(input.SessionID, h.deps)
		h.logger.Info("session opened", map[string]interface{}{"sessionId": m.ID()})
	case err != nil:
		return nil, commonerrors.NewExternalServiceError("session-store", err)
	}

	verified, err := m.StartIdentityVerification(ctx, input.Credential).Wait(ctx)
	if err != nil {
		return nil, h.mapVerifyError(m.ID(), err)
	}

	out := &Output{SessionID: m.ID(), IdentityVerified: verified}
	if id := m.Identity(); id != nil {
		out.Subject = id.Subject
		out.Username = id.Username
		out.Email = id.Email
	}
	return out, nil
}

func (h *Handler) mapVerifyError(sessionID string, err error) error {
	var stdErr *commonerrors.StandardError
	switch {
	case errors.As(err, &stdErr):
		return stdErr
	case errors.Is(err, session.ErrWrongStep), errors.Is(err, session.ErrSessionRestarted):
		return commonerrors.NewSessionStateError(sessionID, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return commonerrors.NewTimeoutError("identity-provider", err)
	default:
		return commonerrors.NewIdentityVerificationFailedError(err.Error())
	}
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
