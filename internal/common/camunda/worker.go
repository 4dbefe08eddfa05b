// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"loan-wizard/internal/common/config"
	"loan-wizard/internal/common/logger"
)

// Job outcomes reported to the JobRecorder.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeThrown    = "error_thrown"
	OutcomePanicked  = "panicked"
	OutcomeNone      = "no_command"
)

// JobRecorder receives one call per handled job.
type JobRecorder interface {
	RecordJob(ctx context.Context, taskType, status string, duration time.Duration)
}

// Manager opens one job worker per task type and closes them together.
type Manager struct {
	client   zbc.Client
	recorder JobRecorder
	logger   logger.Logger

	mu      sync.Mutex
	workers map[string]worker.JobWorker
}

func NewManager(client zbc.Client, recorder JobRecorder, log logger.Logger) *Manager {
	return &Manager{
		client:   client,
		recorder: recorder,
		logger:   log.WithFields(map[string]interface{}{"component": "worker-manager"}),
		workers:  make(map[string]worker.JobWorker),
	}
}

// Register opens a worker for taskType unless it is disabled in wcfg.
func (m *Manager) Register(taskType string, wcfg config.WorkerConfig, handle worker.JobHandler) error {
	if !wcfg.Enabled {
		m.logger.Info("worker disabled", map[string]interface{}{"taskType": taskType})
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.workers[taskType]; ok {
		return fmt.Errorf("worker for task type %q already registered", taskType)
	}

	m.workers[taskType] = m.client.NewJobWorker().
		JobType(taskType).
		Handler(Instrument(taskType, handle, m.recorder, m.logger)).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(config.GetDuration(wcfg.Timeout)).
		Open()

	m.logger.Info("worker started", map[string]interface{}{
		"taskType":      taskType,
		"maxJobsActive": wcfg.MaxJobsActive,
		"timeout_ms":    wcfg.Timeout,
	})
	return nil
}

// TaskTypes lists the registered task types in sorted order.
func (m *Manager) TaskTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.workers))
	for t := range m.workers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Close stops polling and waits for in-flight handlers.
func (m *Manager) Close() {
	m.mu.Lock()
	workers := m.workers
	m.workers = make(map[string]worker.JobWorker)
	m.mu.Unlock()

	for taskType, w := range workers {
		w.Close()
		w.AwaitClose()
		m.logger.Info("worker stopped", map[string]interface{}{"taskType": taskType})
	}
}

// Instrument wraps handle so every job reports its outcome and duration.
// A panicking handler is recovered and the job is left to time out.
func Instrument(taskType string, handle worker.JobHandler, recorder JobRecorder, log logger.Logger) worker.JobHandler {
	return func(client worker.JobClient, job entities.Job) {
		start := time.Now()
		oc := &outcomeClient{JobClient: client, outcome: OutcomeNone}

		defer func() {
			if r := recover(); r != nil {
				oc.outcome = OutcomePanicked
				log.Error("job handler panicked", map[string]interface{}{
					"taskType": taskType,
					"jobKey":   job.GetKey(),
					"panic":    fmt.Sprint(r),
				})
			}
			if recorder != nil {
				recorder.RecordJob(context.Background(), taskType, oc.outcome, time.Since(start))
			}
		}()

		handle(oc, job)
	}
}

// outcomeClient remembers the last command a handler created.
type outcomeClient struct {
	worker.JobClient
	outcome string
}

func (c *outcomeClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	c.outcome = OutcomeCompleted
	return c.JobClient.NewCompleteJobCommand()
}

func (c *outcomeClient) NewFailJobCommand() commands.FailJobCommandStep1 {
	c.outcome = OutcomeFailed
	return c.JobClient.NewFailJobCommand()
}

func (c *outcomeClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	c.outcome = OutcomeThrown
	return c.JobClient.NewThrowErrorCommand()
}
