// internal/common/errors/handler.go
package errors

import (
	"context"
	"encoding/json"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// Logger is the subset of logger.Logger the handler needs.
type Logger interface {
	Error(msg string, fields map[string]interface{})
}

// ErrorHandler turns a worker error into either a failed job (engine retries)
// or a thrown BPMN error (boundary event in the loan process).
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// correlationKeys are copied from the job variables into the error log so a
// failed job can be traced back to its wizard session.
var correlationKeys = []string{"applicationId", "sessionId", "documentType"}

func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := AsStandardError(err)
	bpmnErr := ConvertToBPMNError(stdErr)
	retries, throw := retryDecision(bpmnErr, job.Retries)

	h.logError(job, stdErr, bpmnErr, throw)

	vars, marshalErr := json.Marshal(bpmnErr.ToErrorVariables())

	if throw {
		cmd := client.NewThrowErrorCommand().
			JobKey(job.Key).
			ErrorCode(bpmnErr.Code).
			ErrorMessage(bpmnErr.Message)
		if marshalErr == nil {
			if withVars, err := cmd.VariablesFromString(string(vars)); err == nil {
				_, _ = withVars.Send(ctx)
				return
			}
		}
		_, _ = cmd.Send(ctx)
		return
	}

	cmd := client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(retries).
		ErrorMessage(bpmnErr.Message)
	if marshalErr == nil {
		if withVars, err := cmd.VariablesFromString(string(vars)); err == nil {
			_, _ = withVars.Send(ctx)
			return
		}
	}
	_, _ = cmd.Send(ctx)
}

// retryDecision returns the retry count for a failed job, or throw=true when
// the error is terminal or the engine has no retries left. The engine's
// remaining budget is never raised.
func retryDecision(bpmnErr *BPMNError, jobRetries int32) (retries int32, throw bool) {
	if bpmnErr.Retries <= 0 || jobRetries <= 0 {
		return 0, true
	}
	retries = int32(bpmnErr.Retries)
	if jobRetries-1 < retries {
		retries = jobRetries - 1
	}
	return retries, false
}

func (h *ErrorHandler) logError(job entities.Job, stdErr *StandardError, bpmnErr *BPMNError, thrown bool) {
	fields := map[string]interface{}{
		"jobKey":           job.Key,
		"jobType":          job.Type,
		"errorCode":        string(stdErr.Code),
		"message":          bpmnErr.Message,
		"details":          stdErr.Details,
		"retryable":        stdErr.Retryable,
		"retries":          bpmnErr.Retries,
		"thrown":           thrown,
		"errorCategory":    GetErrorCategory(stdErr.Code),
		"workflowInstance": job.ProcessInstanceKey,
	}
	if vars, err := job.GetVariablesAsMap(); err == nil {
		for _, key := range correlationKeys {
			if v, ok := vars[key]; ok {
				fields[key] = v
			}
		}
	}
	h.logger.Error("job failed", fields)
}
