// internal/workers/loan/record-loan-decision/handler.go
package recordloandecision

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
	"github.com/lib/pq"

	commonerrors "loan-wizard/internal/common/errors"
	"loan-wizard/internal/common/logger"
	"loan-wizard/internal/common/metrics"
	"loan-wizard/internal/models"
)

const (
	TaskType = "record-loan-decision"

	uniqueViolation = "23505"
)

var (
	ErrInvalidDecision      = errors.New("INVALID_DECISION")
	ErrDatabaseInsertFailed = errors.New("DATABASE_INSERT_FAILED")
	ErrDatabaseUnavailable  = errors.New("DATABASE_CONNECTION_FAILED")
	ErrDuplicateDecision    = errors.New("DUPLICATE_DECISION")
)

// Indexer copies recorded decisions into a search index. Indexing is best
// effort; the database row is the record of truth.
type Indexer interface {
	IndexDocument(ctx context.Context, index, id string, doc interface{}) error
}

type Handler struct {
	config       *Config
	db           *sql.DB
	indexer      Indexer
	errorHandler *commonerrors.ErrorHandler
	logger       logger.Logger
	newID        func() string
	now          func() time.Time
}

// NewHandler accepts a nil indexer.
func NewHandler(config *Config, db *sql.DB, indexer Indexer, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		db:           db,
		indexer:      indexer,
		errorHandler: commonerrors.NewErrorHandler(l),
		logger:       l,
		newID:        uuid.NewString,
		now:          func() time.Time { return time.Now().UTC() },
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
		h.failJob(ctx, client, job, toStandardError(err, input.ApplicationID))
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
}

func toStandardError(err error, applicationID string) error {
	switch {
	case errors.Is(err, ErrInvalidDecision):
		return commonerrors.NewInvalidInputError(err.Error())
	case errors.Is(err, ErrDuplicateDecision):
		return commonerrors.NewDuplicateDecisionError(applicationID)
	case errors.Is(err, ErrDatabaseUnavailable):
		return commonerrors.NewDatabaseConnectionFailedError(err)
	case errors.Is(err, ErrDatabaseInsertFailed):
		return commonerrors.NewDatabaseInsertFailedError(err)
	}
	return err
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	d := input.Decision

	var exists bool
	err := h.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM loan_decisions
			WHERE application_id = $1 AND decision_id = $2
		)`, input.ApplicationID, d.ID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("%w: duplicate check failed: %v", ErrDatabaseUnavailable, err)
	}
	if exists {
		return nil, fmt.Errorf("%w: decision %s already recorded for application %s",
			ErrDuplicateDecision, d.ID, input.ApplicationID)
	}

	recordID := h.newID()
	recordedAt := h.now()

	_, err = h.db.ExecContext(ctx, `
		INSERT INTO loan_decisions (
			id, application_id, user_id, loan_type, decision_id,
			approval_status, interest_rate, reasons, conditions,
			summary, strategy, decided_at, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		recordID,
		input.ApplicationID,
		input.UserID,
		input.LoanType,
		d.ID,
		string(d.ApprovalStatus),
		d.InterestRate,
		pq.Array(d.Reasons),
		pq.Array(d.Conditions),
		d.Summary,
		d.Strategy,
		d.DecidedAt,
		recordedAt,
	)
	if err != nil {
		// a concurrent worker may win the race past the EXISTS check
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateDecision, err)
		}
		return nil, fmt.Errorf("%w: insert failed: %v", ErrDatabaseInsertFailed, err)
	}

	h.logger.Info("loan decision recorded", map[string]interface{}{
		"recordId":       recordID,
		"applicationId":  input.ApplicationID,
		"decisionId":     d.ID,
		"approvalStatus": d.ApprovalStatus,
	})

	return &Output{
		RecordID:   recordID,
		RecordedAt: recordedAt.Format(time.RFC3339),
		Indexed:    h.index(ctx, recordID, recordedAt, input),
	}, nil
}

func (h *Handler) index(ctx context.Context, recordID string, recordedAt time.Time, input *Input) bool {
	if h.indexer == nil {
		return false
	}
	d := input.Decision
	doc := indexedDecision{
		RecordID:       recordID,
		ApplicationID:  input.ApplicationID,
		UserID:         input.UserID,
		LoanType:       input.LoanType,
		ApprovalStatus: string(d.ApprovalStatus),
		InterestRate:   d.InterestRate,
		Reasons:        d.Reasons,
		Strategy:       d.Strategy,
		DecidedAt:      d.DecidedAt.Format(time.RFC3339),
		RecordedAt:     recordedAt.Format(time.RFC3339),
	}
	if err := h.indexer.IndexDocument(ctx, h.config.DecisionIndex, d.ID, doc); err != nil {
		h.logger.Warn("decision not indexed", map[string]interface{}{
			"decisionId": d.ID,
			"index":      h.config.DecisionIndex,
			"error":      err.Error(),
		})
		return false
	}
	return true
}

func validateInput(input *Input) error {
	if input.ApplicationID == "" {
		return fmt.Errorf("%w: applicationId is required", ErrInvalidDecision)
	}
	if input.Decision.ID == "" {
		return fmt.Errorf("%w: decision.id is required", ErrInvalidDecision)
	}
	switch input.Decision.ApprovalStatus {
	case models.StatusApproved, models.StatusRejected, models.StatusError:
	default:
		return fmt.Errorf("%w: unknown approval status %q", ErrInvalidDecision, input.Decision.ApprovalStatus)
	}
	return nil
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
