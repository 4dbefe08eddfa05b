// internal/wizard/decision/heuristic.go
package decision

import (
	"context"
	"fmt"

	"loan-wizard/internal/common/config"
	"loan-wizard/internal/common/logger"
	"loan-wizard/internal/models"
)

// Inputs are the three numbers the local heuristic decides on.
type Inputs struct {
	MonthlyIncome      int64
	RequestedAmount    int64
	SubmittedDocuments int
}

// Outcome is the result of Evaluate.
type Outcome struct {
	Approved    bool
	Ratio       float64
	IncomeOK    bool
	RatioOK     bool
	DocumentsOK bool
}

// Heuristic approves when income, loan-to-income ratio and document count all
// meet the configured thresholds.
type Heuristic struct {
	cfg    config.DecisionConfig
	logger logger.Logger
}

func NewHeuristic(cfg config.DecisionConfig, log logger.Logger) *Heuristic {
	config.ApplyDecisionDefaults(&cfg)
	return &Heuristic{
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"strategy": config.StrategyHeuristic}),
	}
}

func (h *Heuristic) Name() string { return config.StrategyHeuristic }

// Evaluate is pure. The ratio bound is inclusive and checked by integer
// division so that exactly MaxLoanToIncomeRatio times income still passes and
// very large incomes cannot overflow.
func (h *Heuristic) Evaluate(in Inputs) Outcome {
	out := Outcome{
		IncomeOK:    in.MonthlyIncome > 0 && in.MonthlyIncome >= h.cfg.IncomeFloor,
		DocumentsOK: in.SubmittedDocuments >= h.cfg.MinDocuments,
	}
	if in.MonthlyIncome > 0 {
		out.Ratio = float64(in.RequestedAmount) / float64(in.MonthlyIncome)
		q, r := in.RequestedAmount/in.MonthlyIncome, in.RequestedAmount%in.MonthlyIncome
		out.RatioOK = q < h.cfg.MaxLoanToIncomeRatio || (q == h.cfg.MaxLoanToIncomeRatio && r == 0)
	}
	out.Approved = out.IncomeOK && out.RatioOK && out.DocumentsOK
	return out
}

func (h *Heuristic) Assess(ctx context.Context, data *models.ApplicationData) (models.DecisionRecord, error) {
	income, ok := MonthlyIncome(data)
	if !ok {
		if h.cfg.FallbackMonthlyIncome <= 0 {
			return models.DecisionRecord{
				ApprovalStatus: models.StatusRejected,
				Reasons:        []string{"Monthly income could not be determined from the income document"},
				InterestRate:   "0",
				Conditions:     []string{},
				Summary:        "Your application could not be approved because your monthly income could not be verified.",
			}, nil
		}
		income = h.cfg.FallbackMonthlyIncome
		h.logger.Warn("monthly income missing, using configured fallback", map[string]interface{}{
			"applicationId": data.ApplicationID,
			"fallback":      income,
		})
	}

	requested, ok := RequestedAmount(data)
	if !ok {
		return models.DecisionRecord{
			ApprovalStatus: models.StatusRejected,
			Reasons:        []string{"Requested loan amount is missing or not a number"},
			InterestRate:   "0",
			Conditions:     []string{},
			Summary:        "Your application could not be approved because the requested amount is unclear.",
		}, nil
	}

	docs := len(data.SubmittedDocuments)
	out := h.Evaluate(Inputs{MonthlyIncome: income, RequestedAmount: requested, SubmittedDocuments: docs})

	h.logger.Info("heuristic evaluated", map[string]interface{}{
		"applicationId": data.ApplicationID,
		"ratio":         out.Ratio,
		"documents":     docs,
		"approved":      out.Approved,
	})

	reasons := []string{
		incomeReason(income, h.cfg.IncomeFloor, out.IncomeOK),
		fmt.Sprintf("Requested amount is %.1f times monthly income (limit %d)", out.Ratio, h.cfg.MaxLoanToIncomeRatio),
		fmt.Sprintf("%d documents submitted (minimum %d)", docs, h.cfg.MinDocuments),
	}

	if !out.Approved {
		return models.DecisionRecord{
			ApprovalStatus: models.StatusRejected,
			Reasons:        reasons,
			InterestRate:   "0",
			Conditions:     []string{},
			Summary:        "Your application does not meet our current eligibility criteria.",
		}, nil
	}

	rate := "0"
	if product, ok := models.LoanProducts[data.LoanType]; ok {
		rate = product.MinRate
	}
	return models.DecisionRecord{
		ApprovalStatus: models.StatusApproved,
		Reasons:        reasons,
		InterestRate:   rate,
		Conditions: []string{
			"Approval is subject to verification of the submitted documents",
			"The final interest rate may change after a full credit assessment",
		},
		Summary: "Congratulations, your application meets our eligibility criteria.",
	}, nil
}

func incomeReason(income, floor int64, ok bool) string {
	if ok {
		return fmt.Sprintf("Monthly income of ₹%d meets the minimum of ₹%d", income, floor)
	}
	return fmt.Sprintf("Monthly income of ₹%d is below the minimum of ₹%d", income, floor)
}
