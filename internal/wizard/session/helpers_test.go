package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"loan-wizard/internal/common/auth"
	"loan-wizard/internal/models"
	"loan-wizard/internal/wizard/questionnaire"
)

// ==========================================
// Fake collaborators
// ==========================================

type fakeVerifier struct {
	err   error
	calls int32
}

func (f *fakeVerifier) Verify(ctx context.Context, credential string) (*auth.Identity, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return &auth.Identity{Subject: "sub-" + credential, Username: credential}, nil
}

type fakeExtractor struct {
	mu     sync.Mutex
	fields map[models.DocumentType]models.FieldRecord
	err    error
}

func (f *fakeExtractor) Extract(ctx context.Context, docType models.DocumentType, artifact models.Artifact) (models.FieldRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.fields[docType].Clone(), nil
}

// fakeDecider returns rec, optionally blocking until release is closed.
type fakeDecider struct {
	rec     models.DecisionRecord
	release chan struct{}
	calls   int32
	last    atomic.Pointer[models.ApplicationData]
}

func (f *fakeDecider) Decide(ctx context.Context, data *models.ApplicationData) models.DecisionRecord {
	atomic.AddInt32(&f.calls, 1)
	f.last.Store(data)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return models.DecisionRecord{ApprovalStatus: models.StatusError, Reasons: []string{"cancelled"}}
		}
	}
	return f.rec.Clone()
}

type stuckDecider struct{}

func (stuckDecider) Decide(ctx context.Context, data *models.ApplicationData) models.DecisionRecord {
	select {}
}

var errNetwork = errors.New("dial tcp 10.0.0.1:443: connect: connection refused")

func approvedRecord() models.DecisionRecord {
	return models.DecisionRecord{
		ID:             "dec-1",
		ApprovalStatus: models.StatusApproved,
		Reasons:        []string{"a", "b", "c"},
		InterestRate:   "10.99",
		Conditions:     []string{},
		Summary:        "ok",
		Strategy:       "heuristic",
	}
}

var validFields = map[models.DocumentType]models.FieldRecord{
	models.DocIdentity: {"name": "Asha Rao", "idNumber": "123412341234"},
	models.DocPAN:      {"panNumber": "ABCDE1234F"},
	models.DocAddress:  {"address": "12 MG Road"},
	models.DocIncome:   {"monthlyIncome": "60000"},
	models.DocBank:     {"accountNumber": "001122334455"},
}

func artifactFor(d models.DocumentType) models.Artifact {
	return models.Artifact{FileName: string(d) + ".jpg", MimeType: "image/jpeg", Data: []byte("img-" + string(d))}
}

// ==========================================
// Walkers
// ==========================================

func newTestMachine(deps Deps) *Machine {
	if deps.Verifier == nil {
		deps.Verifier = &fakeVerifier{}
	}
	if deps.Decider == nil {
		deps.Decider = &fakeDecider{rec: approvedRecord()}
	}
	return New("", deps)
}

func verify(t *testing.T, m *Machine) {
	t.Helper()
	ok, err := m.StartIdentityVerification(context.Background(), "otp-123").Wait(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
}

func answerAll(t *testing.T, m *Machine, loanType models.LoanType) {
	t.Helper()
	for range questionnaire.QuestionsFor(loanType) {
		q, _, err := m.CurrentQuestion()
		require.NoError(t, err)
		if q.Type == questionnaire.TypeText {
			answer := "answer for " + q.ID
			if q.ID == "loanAmount" {
				answer = "300000"
			}
			require.NoError(t, m.AnswerQuestion(answer))
		}
		require.NoError(t, m.NextQuestion())
	}
	_, err := m.ConfirmAnswers()
	require.NoError(t, err)
}

// toDocuments drives a fresh machine to the Documents step.
func toDocuments(t *testing.T, m *Machine) {
	t.Helper()
	verify(t, m)
	require.True(t, m.Advance(context.Background()).Advanced)
	require.NoError(t, m.SelectLoanType(models.LoanTypePersonal))
	require.True(t, m.Advance(context.Background()).Advanced)
	answerAll(t, m, models.LoanTypePersonal)
	require.True(t, m.Advance(context.Background()).Advanced)
	require.Equal(t, models.StepDocuments, m.Step())
}

func supplyRequired(t *testing.T, m *Machine, except ...models.DocumentType) {
	t.Helper()
	skip := map[models.DocumentType]bool{}
	for _, d := range except {
		skip[d] = true
	}
	for _, d := range models.RequiredDocumentTypes() {
		if skip[d] {
			continue
		}
		require.NoError(t, m.RecordUpload(d, artifactFor(d), models.MethodUpload))
		require.NoError(t, m.RecordExtraction(d, validFields[d]))
	}
}

// toReview drives a fresh machine to the Review step.
func toReview(t *testing.T, m *Machine) {
	t.Helper()
	toDocuments(t, m)
	supplyRequired(t, m)
	require.True(t, m.Advance(context.Background()).Advanced)
	require.Equal(t, models.StepReview, m.Step())
}
