// internal/wizard/session/machine.go
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"loan-wizard/internal/common/auth"
	"loan-wizard/internal/common/extraction"
	"loan-wizard/internal/common/logger"
	"loan-wizard/internal/common/metrics"
	"loan-wizard/internal/models"
	"loan-wizard/internal/wizard/documents"
	"loan-wizard/internal/wizard/questionnaire"
	"loan-wizard/internal/wizard/task"
)

var (
	ErrWrongStep           = errors.New("WRONG_STEP")
	ErrInvalidLoanType     = errors.New("INVALID_LOAN_TYPE")
	ErrLoanTypeLocked      = errors.New("LOAN_TYPE_LOCKED")
	ErrInvalidDocumentType = errors.New("INVALID_DOCUMENT_TYPE")
	ErrSubmissionInFlight  = errors.New("SUBMISSION_IN_FLIGHT")
	ErrNoVerifier          = errors.New("IDENTITY_VERIFIER_MISSING")
	ErrSessionRestarted    = errors.New("SESSION_RESTARTED")
	ErrUploadSuperseded    = errors.New("UPLOAD_SUPERSEDED")
)

// DefaultSubmitTimeout bounds one decision attempt.
const DefaultSubmitTimeout = 15 * time.Second

const saveTimeout = 2 * time.Second

// IdentityVerifier confirms the applicant behind a credential.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (*auth.Identity, error)
}

// DocumentExtractor turns an uploaded artifact into fields.
type DocumentExtractor interface {
	Extract(ctx context.Context, docType models.DocumentType, artifact models.Artifact) (models.FieldRecord, error)
}

// Decider computes a decision. Implementations report failures as records
// with status "error".
type Decider interface {
	Decide(ctx context.Context, data *models.ApplicationData) models.DecisionRecord
}

// Deps are the collaborators a Machine calls out to. Store is optional.
type Deps struct {
	Verifier      IdentityVerifier
	Extractor     DocumentExtractor
	Decider       Decider
	Store         SnapshotStore
	Logger        logger.Logger
	SubmitTimeout time.Duration
}

// AdvanceResult describes one navigation attempt.
type AdvanceResult struct {
	Advanced bool        `json:"advanced"`
	From     models.Step `json:"from"`
	To       models.Step `json:"to"`
	Reason   string      `json:"reason,omitempty"`
}

// Machine drives one application session from identity verification to the
// final decision. All methods are safe for concurrent use.
type Machine struct {
	id     string
	deps   Deps
	logger logger.Logger
	now    func() time.Time

	mu               sync.Mutex
	step             models.Step
	identityVerified bool
	identity         *auth.Identity
	verification     *task.Task[bool]
	loanType         models.LoanType
	questions        *questionnaire.Engine
	docs             *documents.Store
	uploadSeq        map[models.DocumentType]uint64
	processing       bool
	submission       *task.Task[models.DecisionRecord]
	decision         *models.DecisionRecord
	generation       uint64
	version          uint64
	updatedAt        time.Time

	saveMu       sync.Mutex
	savedVersion uint64
}

// New creates a session at the first step. An empty id gets a random one.
func New(id string, deps Deps) *Machine {
	if id == "" {
		id = uuid.NewString()
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	if deps.SubmitTimeout <= 0 {
		deps.SubmitTimeout = DefaultSubmitTimeout
	}

	m := &Machine{
		id:        id,
		deps:      deps,
		logger:    deps.Logger.WithFields(map[string]interface{}{"sessionId": id}),
		now:       func() time.Time { return time.Now().UTC() },
		step:      models.FirstStep,
		docs:      documents.NewStore(),
		uploadSeq: make(map[models.DocumentType]uint64),
	}
	m.updatedAt = m.now()
	return m
}

// Resume rehydrates a session from deps.Store. A snapshot taken while a
// submission was in flight stays in flight until SubmitTimeout has passed
// since it was saved, so SubmitApplicationAsync reports ErrSubmissionInFlight;
// after that window the attempt is treated as lost and the session returns
// to Review.
func Resume(ctx context.Context, id string, deps Deps) (*Machine, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("%w: no snapshot store configured", ErrSnapshotNotFound)
	}
	snap, err := deps.Store.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	m := New(id, deps)
	m.mu.Lock()
	m.restoreLocked(snap)
	m.mu.Unlock()

	m.logger.Info("session resumed", map[string]interface{}{"step": m.Step().String()})
	return m, nil
}

func (m *Machine) restoreLocked(snap models.Snapshot) {
	m.step = snap.Step
	if m.step < models.FirstStep || m.step > models.LastStep {
		m.step = models.FirstStep
	}
	m.identityVerified = snap.IdentityVerified

	if snap.LoanType.Valid() {
		m.loanType = snap.LoanType
		m.questions = questionnaire.NewEngine(snap.LoanType)
		m.questions.Restore(snap.QuestionIndex, snap.LoanAnswers, snap.QuestionnaireDone)
	}

	m.docs.Restore(snap.Documents, snap.ExtractedData)

	if snap.Decision != nil {
		d := snap.Decision.Clone()
		m.decision = &d
	}
	if !snap.UpdatedAt.IsZero() {
		m.updatedAt = snap.UpdatedAt
	}
	if m.step == models.StepDecision && m.decision == nil {
		if snap.Processing && m.now().Sub(snap.UpdatedAt) < m.deps.SubmitTimeout {
			m.processing = true
		} else {
			m.step = models.StepReview
		}
	}
}

// ==========================================
// Read model
// ==========================================

func (m *Machine) ID() string { return m.id }

func (m *Machine) Step() models.Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

func (m *Machine) IdentityVerified() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identityVerified
}

// Identity returns the verified applicant, nil before verification.
func (m *Machine) Identity() *auth.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity == nil {
		return nil
	}
	cp := *m.identity
	return &cp
}

func (m *Machine) LoanType() models.LoanType {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loanType
}

// Processing reports whether a decision attempt is in flight.
func (m *Machine) Processing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processing
}

// Decision returns a copy of the latest decision, nil when none exists.
func (m *Machine) Decision() *models.DecisionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.decision == nil {
		return nil
	}
	d := m.decision.Clone()
	return &d
}

// Document returns the stored upload for docType including its bytes.
func (m *Machine) Document(docType models.DocumentType) (models.UploadedDocument, bool) {
	return m.docs.Upload(docType)
}

// Snapshot returns a deep copy of the session. Artifact bytes are omitted.
func (m *Machine) Snapshot() models.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() models.Snapshot {
	uploads := m.docs.Uploads()
	for d, up := range uploads {
		up.Artifact.Data = nil
		uploads[d] = up
	}

	snap := models.Snapshot{
		ID:               m.id,
		Step:             m.step,
		StepName:         m.step.String(),
		IdentityVerified: m.identityVerified,
		LoanType:         m.loanType,
		LoanAnswers:      map[string]string{},
		Documents:        uploads,
		ExtractedData:    m.docs.Records(),
		ValidationErrors: m.docs.ValidationErrors(),
		UploadProgress:   m.docs.ProgressPercent(),
		Processing:       m.processing,
		UpdatedAt:        m.updatedAt,
	}
	if m.questions != nil {
		snap.LoanAnswers = m.questions.Answers()
		snap.QuestionIndex, _ = m.questions.Position()
		snap.QuestionnaireDone = m.questions.Completed()
	}
	if m.decision != nil {
		d := m.decision.Clone()
		snap.Decision = &d
	}
	return snap
}

// ==========================================
// Mutation helpers
// ==========================================

// locked runs fn under the session lock without persisting.
func (m *Machine) locked(fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn()
}

// mutate runs fn under the session lock and persists the result when fn succeeds.
func (m *Machine) mutate(fn func() error) error {
	m.mu.Lock()
	if err := fn(); err != nil {
		m.mu.Unlock()
		return err
	}
	snap, version := m.commitLocked()
	m.mu.Unlock()

	m.save(snap, version)
	return nil
}

func (m *Machine) commitLocked() (models.Snapshot, uint64) {
	m.version++
	m.updatedAt = m.now()
	return m.snapshotLocked(), m.version
}

// save writes the snapshot when a store is configured. Failures are logged and
// never surface to the caller. Older versions never overwrite newer ones.
func (m *Machine) save(snap models.Snapshot, version uint64) {
	if m.deps.Store == nil {
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	if version <= m.savedVersion {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := m.deps.Store.Save(ctx, snap); err != nil {
		m.logger.Warn("session snapshot not saved", map[string]interface{}{
			"step":  snap.StepName,
			"error": err.Error(),
		})
		return
	}
	m.savedVersion = version
}

func (m *Machine) transitioned(from, to models.Step) {
	metrics.StepTransitions.WithLabelValues(from.String(), to.String()).Inc()
	m.logger.Info("step transition", map[string]interface{}{
		"from": from.String(),
		"to":   to.String(),
	})
}

// ==========================================
// Identity verification
// ==========================================

// StartIdentityVerification verifies credential in the background. While a
// verification is running the same task is returned. Failed verifications may
// be retried without limit.
func (m *Machine) StartIdentityVerification(ctx context.Context, credential string) *task.Task[bool] {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.step != models.StepIdentityVerification {
		return task.Completed(false, ErrWrongStep)
	}
	if m.identityVerified {
		return task.Completed(true, nil)
	}
	if m.verification != nil && !m.verification.Finished() {
		return m.verification
	}
	if m.deps.Verifier == nil {
		return task.Completed(false, ErrNoVerifier)
	}

	gen := m.generation
	verifier := m.deps.Verifier

	m.verification = task.Start(ctx, func(ctx context.Context) (bool, error) {
		identity, err := verifier.Verify(ctx, credential)
		if err != nil {
			m.logger.Warn("identity verification failed", map[string]interface{}{"error": err.Error()})
			return false, err
		}
		if err := m.completeVerification(gen, identity); err != nil {
			return false, err
		}
		return true, nil
	})
	return m.verification
}

func (m *Machine) completeVerification(gen uint64, identity *auth.Identity) error {
	return m.mutate(func() error {
		if gen != m.generation {
			return ErrSessionRestarted
		}
		m.identityVerified = true
		if identity != nil {
			cp := *identity
			m.identity = &cp
		}
		m.logger.Info("identity verified", nil)
		return nil
	})
}

// ==========================================
// Loan type
// ==========================================

// SelectLoanType sets the loan type. Changing it rebuilds the question list and
// keeps answers to questions the new list shares. Once the questionnaire is
// confirmed the loan type can no longer change.
func (m *Machine) SelectLoanType(t models.LoanType) error {
	return m.mutate(func() error {
		if m.step != models.StepLoanTypeSelection {
			return ErrWrongStep
		}
		if !t.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidLoanType, t)
		}
		if t == m.loanType {
			return nil
		}
		if m.questions != nil && m.questions.Completed() {
			return ErrLoanTypeLocked
		}

		engine := questionnaire.NewEngine(t)
		if m.questions != nil {
			kept := make(map[string]string)
			previous := m.questions.Answers()
			for _, q := range engine.Questions() {
				if v, ok := previous[q.ID]; ok {
					kept[q.ID] = v
				}
			}
			engine.Restore(0, kept, false)
		}

		m.loanType = t
		m.questions = engine
		m.logger.Info("loan type selected", map[string]interface{}{"loanType": string(t)})
		return nil
	})
}

// ==========================================
// Questionnaire
// ==========================================

func (m *Machine) inQuestionnaire() error {
	if m.step != models.StepQuestionnaire || m.questions == nil {
		return ErrWrongStep
	}
	return nil
}

// CurrentQuestion returns the question under the pointer and its draft answer.
func (m *Machine) CurrentQuestion() (questionnaire.Question, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.inQuestionnaire(); err != nil {
		return questionnaire.Question{}, "", err
	}
	return m.questions.Current(), m.questions.Draft(), nil
}

// AnswerQuestion replaces the draft answer of the current question.
func (m *Machine) AnswerQuestion(text string) error {
	return m.locked(func() error {
		if err := m.inQuestionnaire(); err != nil {
			return err
		}
		return m.questions.SetAnswer(text)
	})
}

// BeginVoiceAnswer locks the draft while speech capture runs.
func (m *Machine) BeginVoiceAnswer() error {
	return m.locked(func() error {
		if err := m.inQuestionnaire(); err != nil {
			return err
		}
		return m.questions.BeginVoiceAnswer()
	})
}

// EndVoiceAnswer stores the final transcript as the draft answer.
func (m *Machine) EndVoiceAnswer(transcript string) error {
	return m.locked(func() error {
		if err := m.inQuestionnaire(); err != nil {
			return err
		}
		return m.questions.EndVoiceAnswer(transcript)
	})
}

func (m *Machine) NextQuestion() error {
	return m.mutate(func() error {
		if err := m.inQuestionnaire(); err != nil {
			return err
		}
		return m.questions.Next()
	})
}

func (m *Machine) PreviousQuestion() error {
	return m.mutate(func() error {
		if err := m.inQuestionnaire(); err != nil {
			return err
		}
		return m.questions.Back()
	})
}

// ReviewAnswers lists every question with its captured answer.
func (m *Machine) ReviewAnswers() ([]questionnaire.ReviewItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.inQuestionnaire(); err != nil {
		return nil, err
	}
	return m.questions.Review(), nil
}

// ConfirmAnswers completes the questionnaire from its review.
func (m *Machine) ConfirmAnswers() (map[string]string, error) {
	var answers map[string]string
	err := m.mutate(func() error {
		if err := m.inQuestionnaire(); err != nil {
			return err
		}
		var err error
		answers, err = m.questions.Confirm()
		return err
	})
	return answers, err
}

// ==========================================
// Documents
// ==========================================

func (m *Machine) documentOp(docType models.DocumentType, fn func() error) error {
	return m.mutate(func() error {
		if m.step != models.StepDocuments {
			return ErrWrongStep
		}
		if !docType.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidDocumentType, docType)
		}
		return fn()
	})
}

// RecordUpload stores an artifact, discarding earlier fields for the type.
func (m *Machine) RecordUpload(docType models.DocumentType, artifact models.Artifact, method models.AcquisitionMethod) error {
	return m.documentOp(docType, func() error {
		m.uploadSeq[docType]++
		m.docs.RecordUpload(docType, artifact, method)
		return nil
	})
}

func (m *Machine) RecordExtraction(docType models.DocumentType, fields models.FieldRecord) error {
	return m.documentOp(docType, func() error {
		m.docs.RecordExtraction(docType, fields)
		return nil
	})
}

func (m *Machine) CorrectField(docType models.DocumentType, key, value string) error {
	return m.documentOp(docType, func() error {
		m.docs.CorrectField(docType, key, value)
		return nil
	})
}

// SubmitManualEntry stores typed-in fields. Any extraction still running for
// the type is discarded when it finishes.
func (m *Machine) SubmitManualEntry(docType models.DocumentType, fields models.FieldRecord) error {
	return m.documentOp(docType, func() error {
		m.uploadSeq[docType]++
		return m.docs.SubmitManualEntry(docType, fields)
	})
}

// ManualEntryPrefill returns the manual entry form for docType pre-filled from
// the current record.
func (m *Machine) ManualEntryPrefill(docType models.DocumentType) (models.FieldRecord, error) {
	if !docType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDocumentType, docType)
	}
	return m.docs.ManualEntryPrefill(docType), nil
}

// ExtractDocument records the upload, calls the extraction collaborator and
// stores its fields. Collaborator failures are stored as an extractionError
// marker and are not returned. The only errors are step and type checks, and
// ErrUploadSuperseded when a newer upload replaced this one meanwhile.
func (m *Machine) ExtractDocument(ctx context.Context, docType models.DocumentType, artifact models.Artifact, method models.AcquisitionMethod) (models.FieldRecord, error) {
	var seq, gen uint64
	err := m.documentOp(docType, func() error {
		m.uploadSeq[docType]++
		seq, gen = m.uploadSeq[docType], m.generation
		m.docs.RecordUpload(docType, artifact, method)
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields, xerr := m.extract(ctx, docType, artifact)
	if xerr != nil {
		metrics.DocumentExtractions.WithLabelValues(string(docType), "failed").Inc()
		m.logger.Warn("document extraction failed", map[string]interface{}{
			"documentType": string(docType),
			"error":        xerr.Error(),
		})
		fields = models.FieldRecord{models.FieldExtractionError: extraction.UserMessage}
	} else {
		metrics.DocumentExtractions.WithLabelValues(string(docType), "succeeded").Inc()
	}

	err = m.mutate(func() error {
		if gen != m.generation {
			return ErrSessionRestarted
		}
		if m.uploadSeq[docType] != seq {
			return ErrUploadSuperseded
		}
		m.docs.RecordExtraction(docType, fields)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fields.Clone(), nil
}

func (m *Machine) extract(ctx context.Context, docType models.DocumentType, artifact models.Artifact) (fields models.FieldRecord, err error) {
	if m.deps.Extractor == nil {
		return nil, errors.New("no document extractor configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extractor panic: %v", r)
		}
	}()
	return m.deps.Extractor.Extract(ctx, docType, artifact)
}

// ==========================================
// Navigation
// ==========================================

// blockedLocked returns why the current step cannot advance, or "" when it can.
func (m *Machine) blockedLocked() string {
	switch m.step {
	case models.StepIdentityVerification:
		if !m.identityVerified {
			return "identity verification has not completed"
		}
	case models.StepLoanTypeSelection:
		if !m.loanType.Valid() {
			return "no loan type selected"
		}
	case models.StepQuestionnaire:
		if m.questions == nil || !m.questions.Completed() {
			return "questionnaire answers have not been confirmed"
		}
	case models.StepDocuments:
		if missing := m.docs.MissingRequired(); len(missing) > 0 {
			names := make([]string, len(missing))
			for i, d := range missing {
				names[i] = string(d)
			}
			return "required documents missing or invalid: " + strings.Join(names, ", ")
		}
	case models.StepReview:
		if m.processing {
			return "submission already in progress"
		}
	case models.StepDecision:
		return "decision is final"
	}
	return ""
}

// Advance moves exactly one step forward when the current step allows it.
// Advancing from Review submits the application in the background.
func (m *Machine) Advance(ctx context.Context) AdvanceResult {
	m.mu.Lock()
	from := m.step

	if reason := m.blockedLocked(); reason != "" {
		m.mu.Unlock()
		metrics.AdvanceRejected.WithLabelValues(from.String()).Inc()
		m.logger.Info("advance rejected", map[string]interface{}{
			"step":   from.String(),
			"reason": reason,
		})
		return AdvanceResult{From: from, To: from, Reason: reason}
	}

	if from == models.StepReview {
		m.mu.Unlock()
		if _, err := m.SubmitApplicationAsync(ctx); err != nil {
			step := m.Step()
			return AdvanceResult{From: from, To: step, Reason: err.Error()}
		}
		return AdvanceResult{Advanced: true, From: from, To: models.StepDecision}
	}

	m.step = from + 1
	snap, version := m.commitLocked()
	m.mu.Unlock()

	m.save(snap, version)
	m.transitioned(from, snap.Step)
	return AdvanceResult{Advanced: true, From: from, To: snap.Step}
}

// Back moves to the previous step keeping every captured answer and document.
// A decision can only be left when it is an "error" decision.
func (m *Machine) Back() AdvanceResult {
	m.mu.Lock()
	from := m.step

	reason := ""
	switch {
	case from == models.FirstStep:
		reason = "already at the first step"
	case from == models.StepDecision && m.processing:
		reason = "submission in progress"
	case from == models.StepDecision && (m.decision == nil || m.decision.ApprovalStatus != models.StatusError):
		reason = "decision is final"
	}
	if reason != "" {
		m.mu.Unlock()
		return AdvanceResult{From: from, To: from, Reason: reason}
	}

	if from == models.StepQuestionnaire && m.questions != nil {
		m.questions.CancelVoiceAnswer()
	}
	m.step = from - 1
	snap, version := m.commitLocked()
	m.mu.Unlock()

	m.save(snap, version)
	m.transitioned(from, snap.Step)
	return AdvanceResult{Advanced: true, From: from, To: snap.Step}
}

// ==========================================
// Submission
// ==========================================

// SubmitApplicationAsync starts a decision attempt from Review, or a new
// attempt after an "error" decision. At most one attempt runs at a time.
func (m *Machine) SubmitApplicationAsync(ctx context.Context) (*task.Task[models.DecisionRecord], error) {
	m.mu.Lock()

	if m.processing {
		m.mu.Unlock()
		m.logger.Warn("submission ignored, decision already in flight", nil)
		return nil, ErrSubmissionInFlight
	}

	from := m.step
	switch {
	case from == models.StepReview:
	case from == models.StepDecision && m.decision != nil && m.decision.ApprovalStatus == models.StatusError:
	default:
		m.mu.Unlock()
		return nil, ErrWrongStep
	}

	data := m.applicationDataLocked()
	gen := m.generation
	decider := m.deps.Decider
	timeout := m.deps.SubmitTimeout

	m.processing = true
	m.step = models.StepDecision
	m.decision = nil
	snap, version := m.commitLocked()

	// The attempt outlives the caller's request; Restart cancels it.
	m.submission = task.Start(context.WithoutCancel(ctx), func(ctx context.Context) (models.DecisionRecord, error) {
		rec := m.decide(ctx, decider, data, timeout)
		m.completeSubmission(gen, rec)
		return rec, nil
	})
	t := m.submission
	m.mu.Unlock()

	m.save(snap, version)
	if from != models.StepDecision {
		m.transitioned(from, models.StepDecision)
	}
	m.logger.Info("application submitted", map[string]interface{}{
		"loanType":  string(data.LoanType),
		"documents": len(data.SubmittedDocuments),
	})
	return t, nil
}

// SubmitApplication submits and waits for the decision. Assessment failures
// come back as a record with status "error"; the only errors returned are
// ErrSubmissionInFlight and ErrWrongStep.
func (m *Machine) SubmitApplication(ctx context.Context) (models.DecisionRecord, error) {
	t, err := m.SubmitApplicationAsync(ctx)
	if err != nil {
		return models.DecisionRecord{}, err
	}
	<-t.Done()
	rec, _, _ := t.Result()
	return rec, nil
}

func (m *Machine) applicationDataLocked() *models.ApplicationData {
	answers := map[string]string{}
	if m.questions != nil {
		answers = m.questions.Answers()
	}
	return &models.ApplicationData{
		ApplicationID:      m.id,
		LoanType:           m.loanType,
		LoanAnswers:        answers,
		ExtractedData:      m.docs.FormattedRecords(),
		SubmittedDocuments: m.docs.SubmittedDocuments(),
	}
}

// decide runs the decider under the submit timeout. A decider that overruns,
// panics or returns an empty record yields an "error" decision.
func (m *Machine) decide(ctx context.Context, decider Decider, data *models.ApplicationData, timeout time.Duration) models.DecisionRecord {
	if decider == nil {
		m.logger.Error("no decision procedure configured", nil)
		return m.failedDecision("No assessment procedure is configured")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out := make(chan models.DecisionRecord, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("decision procedure panicked", map[string]interface{}{"panic": fmt.Sprint(r)})
				out <- m.failedDecision("The assessment could not be completed")
			}
		}()
		out <- decider.Decide(ctx, data)
	}()

	select {
	case rec := <-out:
		if rec.ApprovalStatus == "" {
			return m.failedDecision("The assessment returned no outcome")
		}
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.DecidedAt.IsZero() {
			rec.DecidedAt = m.now()
		}
		return rec
	case <-ctx.Done():
		m.logger.Error("decision attempt timed out", map[string]interface{}{
			"timeout": timeout.String(),
			"error":   ctx.Err().Error(),
		})
		return m.failedDecision("The assessment did not finish in time")
	}
}

func (m *Machine) failedDecision(reason string) models.DecisionRecord {
	return models.DecisionRecord{
		ID:             uuid.NewString(),
		ApprovalStatus: models.StatusError,
		Reasons:        []string{reason},
		InterestRate:   "0",
		Conditions:     []string{},
		Summary:        "We could not complete the assessment of your application. Please submit it again.",
		DecidedAt:      m.now(),
	}
}

func (m *Machine) completeSubmission(gen uint64, rec models.DecisionRecord) {
	err := m.mutate(func() error {
		if gen != m.generation {
			return ErrSessionRestarted
		}
		d := rec.Clone()
		m.decision = &d
		m.processing = false
		return nil
	})
	if err != nil {
		m.logger.Info("decision discarded after restart", map[string]interface{}{"decisionId": rec.ID})
		return
	}
	m.logger.Info("decision recorded", map[string]interface{}{
		"decisionId":     rec.ID,
		"approvalStatus": string(rec.ApprovalStatus),
		"strategy":       rec.Strategy,
	})
}

// ==========================================
// Restart
// ==========================================

// Restart cancels any running verification or submission and clears the
// session back to the first step. The session id is kept.
func (m *Machine) Restart() {
	m.mu.Lock()
	from := m.step

	m.generation++
	if m.verification != nil {
		m.verification.Cancel()
	}
	if m.submission != nil {
		m.submission.Cancel()
	}

	m.step = models.FirstStep
	m.identityVerified = false
	m.identity = nil
	m.verification = nil
	m.loanType = ""
	m.questions = nil
	m.docs.Reset()
	m.uploadSeq = make(map[models.DocumentType]uint64)
	m.processing = false
	m.submission = nil
	m.decision = nil

	snap, version := m.commitLocked()
	m.mu.Unlock()

	m.save(snap, version)
	if from != models.FirstStep {
		m.transitioned(from, models.FirstStep)
	}
	m.logger.Info("session restarted", nil)
}
