package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-wizard/internal/common/extraction"
	"loan-wizard/internal/models"
	"loan-wizard/internal/wizard/questionnaire"
)

func TestMachine_StartsAtIdentityVerification(t *testing.T) {
	m := newTestMachine(Deps{})

	assert.NotEmpty(t, m.ID())
	assert.Equal(t, models.StepIdentityVerification, m.Step())

	res := m.Advance(context.Background())
	assert.False(t, res.Advanced)
	assert.Equal(t, models.StepIdentityVerification, res.To)
	assert.Contains(t, res.Reason, "identity")
}

func TestMachine_IdentityVerification(t *testing.T) {
	t.Run("failure can be retried", func(t *testing.T) {
		v := &fakeVerifier{err: errNetwork}
		m := newTestMachine(Deps{Verifier: v})

		ok, err := m.StartIdentityVerification(context.Background(), "otp").Wait(context.Background())
		assert.False(t, ok)
		assert.ErrorIs(t, err, errNetwork)
		assert.False(t, m.IdentityVerified())

		v.err = nil
		ok, err = m.StartIdentityVerification(context.Background(), "otp").Wait(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, m.IdentityVerified())
		assert.Equal(t, "sub-otp", m.Identity().Subject)
		assert.Equal(t, int32(2), atomic.LoadInt32(&v.calls))
	})

	t.Run("already verified does not call verifier again", func(t *testing.T) {
		v := &fakeVerifier{}
		m := newTestMachine(Deps{Verifier: v})
		verify(t, m)

		ok, err := m.StartIdentityVerification(context.Background(), "otp").Wait(context.Background())
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int32(1), atomic.LoadInt32(&v.calls))
	})

	t.Run("wrong step", func(t *testing.T) {
		m := newTestMachine(Deps{})
		verify(t, m)
		m.Advance(context.Background())

		_, err := m.StartIdentityVerification(context.Background(), "otp").Wait(context.Background())
		assert.ErrorIs(t, err, ErrWrongStep)
	})
}

func TestMachine_SelectLoanType(t *testing.T) {
	m := newTestMachine(Deps{})

	assert.ErrorIs(t, m.SelectLoanType(models.LoanTypeHome), ErrWrongStep)

	verify(t, m)
	m.Advance(context.Background())

	res := m.Advance(context.Background())
	assert.False(t, res.Advanced)

	assert.ErrorIs(t, m.SelectLoanType("crypto"), ErrInvalidLoanType)
	require.NoError(t, m.SelectLoanType(models.LoanTypeHome))
	assert.Equal(t, models.LoanTypeHome, m.LoanType())

	res = m.Advance(context.Background())
	require.True(t, res.Advanced)
	assert.Equal(t, models.StepQuestionnaire, res.To)
}

func TestMachine_ChangingLoanTypeKeepsSharedAnswers(t *testing.T) {
	m := newTestMachine(Deps{})
	verify(t, m)
	m.Advance(context.Background())
	require.NoError(t, m.SelectLoanType(models.LoanTypeHome))
	m.Advance(context.Background())

	require.NoError(t, m.NextQuestion()) // intro
	require.NoError(t, m.AnswerQuestion("Asha Rao"))
	require.NoError(t, m.NextQuestion())

	require.True(t, m.Back().Advanced)
	require.NoError(t, m.SelectLoanType(models.LoanTypeVehicle))
	assert.Equal(t, "Asha Rao", m.Snapshot().LoanAnswers["fullName"])
}

func TestMachine_LoanTypeLockedAfterQuestionnaire(t *testing.T) {
	m := newTestMachine(Deps{})
	toDocuments(t, m)

	require.True(t, m.Back().Advanced)
	require.True(t, m.Back().Advanced)
	require.Equal(t, models.StepLoanTypeSelection, m.Step())

	assert.ErrorIs(t, m.SelectLoanType(models.LoanTypeBusiness), ErrLoanTypeLocked)
	assert.NoError(t, m.SelectLoanType(models.LoanTypePersonal))
}

func TestMachine_QuestionnaireGatesAdvance(t *testing.T) {
	m := newTestMachine(Deps{})
	verify(t, m)
	m.Advance(context.Background())
	require.NoError(t, m.SelectLoanType(models.LoanTypeEducation))
	m.Advance(context.Background())

	q, _, err := m.CurrentQuestion()
	require.NoError(t, err)
	assert.Equal(t, questionnaire.TypeIntro, q.Type)

	res := m.Advance(context.Background())
	assert.False(t, res.Advanced)
	assert.Equal(t, models.StepQuestionnaire, m.Step())

	require.NoError(t, m.NextQuestion())
	assert.ErrorIs(t, m.NextQuestion(), questionnaire.ErrAnswerRequired)

	require.NoError(t, m.BeginVoiceAnswer())
	assert.ErrorIs(t, m.AnswerQuestion("typed"), questionnaire.ErrRecording)
	require.NoError(t, m.EndVoiceAnswer("Asha Rao"))
	require.NoError(t, m.NextQuestion())
	assert.Equal(t, "Asha Rao", m.Snapshot().LoanAnswers["fullName"])
}

func TestMachine_DocumentsAdvanceBlockedUntilRequiredComplete(t *testing.T) {
	m := newTestMachine(Deps{})
	toDocuments(t, m)

	supplyRequired(t, m, models.DocBank)

	res := m.Advance(context.Background())
	assert.False(t, res.Advanced)
	assert.Equal(t, models.StepDocuments, res.From)
	assert.Equal(t, models.StepDocuments, m.Step())
	assert.Contains(t, res.Reason, "bank")

	require.NoError(t, m.RecordUpload(models.DocBank, artifactFor(models.DocBank), models.MethodUpload))
	res = m.Advance(context.Background())
	assert.False(t, res.Advanced, "an upload without passing validation is not enough")

	require.NoError(t, m.RecordExtraction(models.DocBank, validFields[models.DocBank]))
	res = m.Advance(context.Background())
	require.True(t, res.Advanced)
	assert.Equal(t, models.StepDocuments, res.From)
	assert.Equal(t, models.StepReview, res.To)
	assert.Equal(t, models.StepReview, m.Step())
}

func TestMachine_DocumentOperations(t *testing.T) {
	m := newTestMachine(Deps{})

	assert.ErrorIs(t, m.RecordUpload(models.DocPAN, artifactFor(models.DocPAN), models.MethodUpload), ErrWrongStep)

	toDocuments(t, m)

	assert.ErrorIs(t, m.RecordUpload("passport", artifactFor(models.DocPAN), models.MethodUpload), ErrInvalidDocumentType)
	assert.ErrorIs(t, m.CorrectField("passport", "k", "v"), ErrInvalidDocumentType)

	require.NoError(t, m.SubmitManualEntry(models.DocPAN, models.FieldRecord{"panNumber": "ABCDE1234F"}))
	up, ok := m.Document(models.DocPAN)
	require.True(t, ok)
	assert.Equal(t, models.MethodManualEntry, up.AcquisitionMethod)

	prefill, err := m.ManualEntryPrefill(models.DocPAN)
	require.NoError(t, err)
	assert.Equal(t, "ABCDE1234F", prefill["panNumber"])

	require.NoError(t, m.CorrectField(models.DocPAN, "panNumber", ""))
	assert.Equal(t, "PAN number is required", m.Snapshot().ValidationErrors[models.DocPAN])
}

func TestMachine_ExtractDocument(t *testing.T) {
	t.Run("fields are stored", func(t *testing.T) {
		x := &fakeExtractor{fields: validFields}
		m := newTestMachine(Deps{Extractor: x})
		toDocuments(t, m)

		fields, err := m.ExtractDocument(context.Background(), models.DocIncome, artifactFor(models.DocIncome), models.MethodCameraCapture)
		require.NoError(t, err)
		assert.Equal(t, "60000", fields["monthlyIncome"])

		snap := m.Snapshot()
		assert.Equal(t, "60000", snap.ExtractedData[models.DocIncome]["monthlyIncome"])
		assert.Equal(t, models.MethodCameraCapture, snap.Documents[models.DocIncome].AcquisitionMethod)
		assert.Nil(t, snap.Documents[models.DocIncome].Artifact.Data)
		assert.Empty(t, snap.ValidationErrors)
	})

	t.Run("failure becomes extraction marker", func(t *testing.T) {
		x := &fakeExtractor{err: errNetwork}
		m := newTestMachine(Deps{Extractor: x})
		toDocuments(t, m)

		fields, err := m.ExtractDocument(context.Background(), models.DocIdentity, artifactFor(models.DocIdentity), models.MethodUpload)
		require.NoError(t, err)
		assert.True(t, fields.ExtractionFailed())
		assert.Equal(t, extraction.UserMessage, fields[models.FieldExtractionError])

		snap := m.Snapshot()
		assert.Equal(t, "ID number is required", snap.ValidationErrors[models.DocIdentity])
		assert.Equal(t, models.StepDocuments, snap.Step)

		require.NoError(t, m.SubmitManualEntry(models.DocIdentity, validFields[models.DocIdentity]))
		assert.Empty(t, m.Snapshot().ValidationErrors)
	})

	t.Run("missing extractor becomes extraction marker", func(t *testing.T) {
		m := newTestMachine(Deps{})
		toDocuments(t, m)

		fields, err := m.ExtractDocument(context.Background(), models.DocPAN, artifactFor(models.DocPAN), models.MethodUpload)
		require.NoError(t, err)
		assert.True(t, fields.ExtractionFailed())
	})
}

func TestMachine_BackThenForwardPreservesState(t *testing.T) {
	m := newTestMachine(Deps{})
	toReview(t, m)

	before := m.Snapshot()
	require.NotEmpty(t, before.LoanAnswers)
	require.Len(t, before.Documents, 5)

	res := m.Back()
	require.True(t, res.Advanced)
	assert.Equal(t, models.StepDocuments, res.To)

	res = m.Advance(context.Background())
	require.True(t, res.Advanced)
	assert.Equal(t, models.StepReview, res.To)

	after := m.Snapshot()
	assert.Equal(t, before.LoanAnswers, after.LoanAnswers)
	assert.Equal(t, before.Documents, after.Documents)
	assert.Equal(t, before.ExtractedData, after.ExtractedData)
}

func TestMachine_BackAtFirstStep(t *testing.T) {
	m := newTestMachine(Deps{})
	res := m.Back()
	assert.False(t, res.Advanced)
	assert.Equal(t, models.StepIdentityVerification, res.To)
}

func TestMachine_SubmitApplication(t *testing.T) {
	d := &fakeDecider{rec: approvedRecord()}
	m := newTestMachine(Deps{Decider: d})

	_, err := m.SubmitApplication(context.Background())
	assert.ErrorIs(t, err, ErrWrongStep)

	toReview(t, m)

	rec, err := m.SubmitApplication(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, rec.ApprovalStatus)
	assert.Equal(t, models.StepDecision, m.Step())
	assert.False(t, m.Processing())
	assert.Equal(t, "dec-1", m.Decision().ID)

	data := d.last.Load()
	require.NotNil(t, data)
	assert.Equal(t, m.ID(), data.ApplicationID)
	assert.Equal(t, models.LoanTypePersonal, data.LoanType)
	assert.Equal(t, "300000", data.LoanAnswers["loanAmount"])
	assert.Equal(t, "1234 1234 1234", data.ExtractedData[models.DocIdentity]["idNumber"])
	assert.Len(t, data.SubmittedDocuments, 5)

	_, err = m.SubmitApplication(context.Background())
	assert.ErrorIs(t, err, ErrWrongStep, "approved decisions are final")

	res := m.Advance(context.Background())
	assert.False(t, res.Advanced)
	assert.False(t, m.Back().Advanced)
}

func TestMachine_SubmitFailureYieldsErrorDecision(t *testing.T) {
	d := &fakeDecider{rec: models.DecisionRecord{
		ApprovalStatus: models.StatusError,
		Reasons:        []string{"The assessment service could not be reached"},
		InterestRate:   "0",
		Summary:        "Please submit it again.",
	}}
	m := newTestMachine(Deps{Decider: d})
	toReview(t, m)

	rec, err := m.SubmitApplication(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, rec.ApprovalStatus)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, models.StepDecision, m.Step())

	d.rec = approvedRecord()
	rec, err = m.SubmitApplication(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, rec.ApprovalStatus)
	assert.Equal(t, int32(2), atomic.LoadInt32(&d.calls))
}

func TestMachine_BackFromErrorDecision(t *testing.T) {
	d := &fakeDecider{rec: models.DecisionRecord{ApprovalStatus: models.StatusError, Reasons: []string{"x"}}}
	m := newTestMachine(Deps{Decider: d})
	toReview(t, m)

	_, err := m.SubmitApplication(context.Background())
	require.NoError(t, err)

	res := m.Back()
	require.True(t, res.Advanced)
	assert.Equal(t, models.StepReview, res.To)
}

func TestMachine_PanickingDeciderYieldsErrorDecision(t *testing.T) {
	m := newTestMachine(Deps{Decider: panicDecider{}})
	toReview(t, m)

	rec, err := m.SubmitApplication(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, rec.ApprovalStatus)
	assert.False(t, m.Processing())
}

type panicDecider struct{}

func (panicDecider) Decide(context.Context, *models.ApplicationData) models.DecisionRecord {
	panic("nil pointer dereference")
}

func TestMachine_SubmitTimeout(t *testing.T) {
	m := newTestMachine(Deps{Decider: stuckDecider{}, SubmitTimeout: 50 * time.Millisecond})
	toReview(t, m)

	start := time.Now()
	rec, err := m.SubmitApplication(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, models.StatusError, rec.ApprovalStatus)
	assert.Contains(t, rec.Reasons[0], "in time")
}

func TestMachine_ConcurrentSubmitIsIgnored(t *testing.T) {
	d := &fakeDecider{rec: approvedRecord(), release: make(chan struct{})}
	m := newTestMachine(Deps{Decider: d})
	toReview(t, m)

	first, err := m.SubmitApplicationAsync(context.Background())
	require.NoError(t, err)
	assert.True(t, m.Processing())
	assert.True(t, m.Snapshot().Processing)

	var wg sync.WaitGroup
	var rejected int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.SubmitApplication(context.Background()); errors.Is(err, ErrSubmissionInFlight) {
				atomic.AddInt32(&rejected, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(10), atomic.LoadInt32(&rejected))

	res := m.Advance(context.Background())
	assert.False(t, res.Advanced)

	close(d.release)
	rec, err := first.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, rec.ApprovalStatus)
	assert.Equal(t, int32(1), atomic.LoadInt32(&d.calls))
}

func TestMachine_AdvanceFromReviewSubmits(t *testing.T) {
	d := &fakeDecider{rec: approvedRecord()}
	m := newTestMachine(Deps{Decider: d})
	toReview(t, m)

	res := m.Advance(context.Background())
	require.True(t, res.Advanced)
	assert.Equal(t, models.StepDecision, res.To)

	require.Eventually(t, func() bool { return m.Decision() != nil }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, models.StatusApproved, m.Decision().ApprovalStatus)
}

func TestMachine_RestartDropsInFlightDecision(t *testing.T) {
	d := &fakeDecider{rec: approvedRecord(), release: make(chan struct{})}
	m := newTestMachine(Deps{Decider: d})
	toReview(t, m)
	id := m.ID()

	task, err := m.SubmitApplicationAsync(context.Background())
	require.NoError(t, err)

	m.Restart()
	_, _ = task.Wait(context.Background())

	snap := m.Snapshot()
	assert.Equal(t, id, snap.ID)
	assert.Equal(t, models.StepIdentityVerification, snap.Step)
	assert.False(t, snap.IdentityVerified)
	assert.False(t, snap.Processing)
	assert.Nil(t, snap.Decision)
	assert.Empty(t, snap.LoanAnswers)
	assert.Empty(t, snap.Documents)
}

func TestMachine_SnapshotIsIsolated(t *testing.T) {
	m := newTestMachine(Deps{})
	toReview(t, m)

	snap := m.Snapshot()
	snap.LoanAnswers["loanAmount"] = "1"
	snap.ExtractedData[models.DocIncome]["monthlyIncome"] = "1"

	fresh := m.Snapshot()
	assert.Equal(t, "300000", fresh.LoanAnswers["loanAmount"])
	assert.Equal(t, "60000", fresh.ExtractedData[models.DocIncome]["monthlyIncome"])
}
