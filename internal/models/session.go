// internal/models/session.go
package models

import "time"

// Step is a position in the top-level application state machine.
type Step int

const (
	StepIdentityVerification Step = iota + 1
	StepLoanTypeSelection
	StepQuestionnaire
	StepDocuments
	StepReview
	StepDecision
)

// FirstStep and LastStep bound the step sequence.
const (
	FirstStep = StepIdentityVerification
	LastStep  = StepDecision
)

var stepNames = map[Step]string{
	StepIdentityVerification: "IdentityVerification",
	StepLoanTypeSelection:    "LoanTypeSelection",
	StepQuestionnaire:        "Questionnaire",
	StepDocuments:            "Documents",
	StepReview:               "Review",
	StepDecision:             "Decision",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return "Unknown"
}

// Snapshot is the read model of an ApplicationSession exposed to the presentation layer
// and persisted by snapshot stores.
type Snapshot struct {
	ID                string                            `json:"id"`
	Step              Step                              `json:"step"`
	StepName          string                            `json:"stepName"`
	IdentityVerified  bool                              `json:"identityVerified"`
	LoanType          LoanType                          `json:"loanType,omitempty"`
	LoanAnswers       map[string]string                 `json:"loanAnswers"`
	QuestionIndex     int                               `json:"questionIndex"`
	QuestionnaireDone bool                              `json:"questionnaireDone"`
	Documents         map[DocumentType]UploadedDocument `json:"documents"`
	ExtractedData     map[DocumentType]FieldRecord      `json:"extractedData"`
	ValidationErrors  map[DocumentType]string           `json:"validationErrors,omitempty"`
	UploadProgress    int                               `json:"uploadProgress"`
	Processing        bool                              `json:"processing"`
	Decision          *DecisionRecord                   `json:"decision,omitempty"`
	UpdatedAt         time.Time                         `json:"updatedAt"`
}
