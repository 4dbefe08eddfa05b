// internal/wizard/decision/procedure.go
package decision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"loan-wizard/internal/common/config"
	commonhttp "loan-wizard/internal/common/http"
	"loan-wizard/internal/common/logger"
	"loan-wizard/internal/common/metrics"
	"loan-wizard/internal/models"
)

// StrategyCreditPrecheck marks decisions short-circuited by the credit-score floor.
const StrategyCreditPrecheck = "credit-precheck"

// Assessor produces a decision for accumulated application data.
type Assessor interface {
	Name() string
	Assess(ctx context.Context, data *models.ApplicationData) (models.DecisionRecord, error)
}

// Procedure runs one Assessor and never returns an error: every failure
// becomes a DecisionRecord with status "error".
type Procedure struct {
	cfg      config.DecisionConfig
	assessor Assessor
	logger   logger.Logger
	now      func() time.Time
	newID    func() string
}

func NewProcedure(cfg config.DecisionConfig, assessor Assessor, log logger.Logger) *Procedure {
	config.ApplyDecisionDefaults(&cfg)
	return &Procedure{
		cfg:      cfg,
		assessor: assessor,
		logger:   log.WithFields(map[string]interface{}{"component": "decision"}),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// NewFromConfig builds the procedure for the configured strategy.
func NewFromConfig(cfg *config.Config, log logger.Logger) (*Procedure, error) {
	switch cfg.Decision.Strategy {
	case config.StrategyHeuristic:
		return NewProcedure(cfg.Decision, NewHeuristic(cfg.Decision, log), log), nil
	case config.StrategyDelegated, "":
		assessor := NewDelegated(DelegatedConfig{
			BaseURL:     cfg.APIs.GenAI.BaseURL,
			APIKey:      cfg.APIs.GenAI.APIKey,
			MaxTokens:   cfg.APIs.GenAI.MaxTokens,
			Temperature: cfg.APIs.GenAI.Temperature,
			MaxRetries:  cfg.Decision.AssessmentMaxRetries,
		}, commonhttp.NewClient(0), log)
		return NewProcedure(cfg.Decision, assessor, log), nil
	default:
		return nil, fmt.Errorf("unknown decision strategy %q", cfg.Decision.Strategy)
	}
}

// Strategy names the configured assessor.
func (p *Procedure) Strategy() string {
	return p.assessor.Name()
}

// Decide computes a fresh DecisionRecord.
func (p *Procedure) Decide(ctx context.Context, data *models.ApplicationData) models.DecisionRecord {
	start := time.Now()
	strategy := p.assessor.Name()

	rec := p.decide(ctx, data, &strategy)
	rec.ID = p.newID()
	rec.Strategy = strategy
	rec.DecidedAt = p.now()

	metrics.LoanDecisions.WithLabelValues(strategy, string(rec.ApprovalStatus)).Inc()
	metrics.LoanDecisionDuration.WithLabelValues(strategy).Observe(time.Since(start).Seconds())

	p.logger.Info("loan decision produced", map[string]interface{}{
		"applicationId":  data.ApplicationID,
		"decisionId":     rec.ID,
		"strategy":       strategy,
		"approvalStatus": rec.ApprovalStatus,
		"durationMs":     time.Since(start).Milliseconds(),
	})
	return rec
}

func (p *Procedure) decide(ctx context.Context, data *models.ApplicationData, strategy *string) (rec models.DecisionRecord) {
	defer func() {
		if r := recover(); r != nil {
			rec = errorRecord(fmt.Errorf("%w: panic: %v", ErrAssessmentFailed, r))
		}
	}()

	// The floor only guards the delegated call; the heuristic has its own rule set.
	if p.assessor.Name() == config.StrategyDelegated && p.cfg.PrecheckEnabled() {
		if score, ok := CreditScore(data); ok && score < p.cfg.CreditScoreFloor {
			*strategy = StrategyCreditPrecheck
			p.logger.Info("credit score below floor, skipping assessment", map[string]interface{}{
				"applicationId": data.ApplicationID,
				"creditScore":   score,
				"floor":         p.cfg.CreditScoreFloor,
			})
			return creditRejection(score, p.cfg.CreditScoreFloor)
		}
	}

	timeout := config.GetDuration(p.cfg.AssessmentTimeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rec, err := p.assessor.Assess(ctx, data)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrAssessmentTimeout) {
			err = fmt.Errorf("%w: %v", ErrAssessmentTimeout, err)
		}
		p.logger.Error("loan assessment failed", map[string]interface{}{
			"applicationId": data.ApplicationID,
			"error":         err.Error(),
		})
		return errorRecord(err)
	}
	return rec.Clone()
}

func creditRejection(score, floor int) models.DecisionRecord {
	return models.DecisionRecord{
		ApprovalStatus: models.StatusRejected,
		Reasons: []string{
			fmt.Sprintf("Declared credit score of %d is below the minimum of %d", score, floor),
		},
		InterestRate: "0",
		Conditions:   []string{},
		Summary:      "Your application could not be approved because your credit score is below our minimum requirement.",
	}
}

func errorRecord(err error) models.DecisionRecord {
	reason := "The assessment service could not be reached"
	switch {
	case errors.Is(err, ErrAssessmentTimeout):
		reason = "The assessment service did not respond in time"
	case errors.Is(err, ErrReplyInvalid):
		reason = "The assessment service returned an unreadable reply"
	}
	return models.DecisionRecord{
		ApprovalStatus: models.StatusError,
		Reasons:        []string{reason},
		InterestRate:   "0",
		Conditions:     []string{},
		Summary:        "We could not complete the assessment of your application. Please submit it again.",
	}
}
