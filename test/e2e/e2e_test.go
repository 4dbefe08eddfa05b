// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-wizard/internal/common/auth"
	"loan-wizard/internal/common/config"
	"loan-wizard/internal/common/extraction"
	"loan-wizard/internal/common/logger"
	"loan-wizard/internal/models"
	"loan-wizard/internal/wizard/decision"
	"loan-wizard/internal/wizard/questionnaire"
	"loan-wizard/internal/wizard/session"

	assessloanapplication "loan-wizard/internal/workers/loan/assess-loan-application"
	extractloandocument "loan-wizard/internal/workers/loan/extract-loan-document"
	notifyloandecision "loan-wizard/internal/workers/loan/notify-loan-decision"
	recordloandecision "loan-wizard/internal/workers/loan/record-loan-decision"
	submitloansession "loan-wizard/internal/workers/loan/submit-loan-session"
	validateloandocuments "loan-wizard/internal/workers/loan/validate-loan-documents"
	verifyloanapplicant "loan-wizard/internal/workers/loan/verify-loan-applicant"
)

// extractedFields is what the fake extraction service returns per document type.
var extractedFields = map[string]map[string]interface{}{
	"identity": {"name": "Asha Rao", "idNumber": "123412341234"},
	"pan":      {"panNumber": "ABCDE1234F"},
	"address":  {"address": "12 MG Road, Bengaluru"},
	"income":   {"monthlyIncome": 60000, "employerName": "Acme"},
	"bank":     {"accountNumber": "001122334455"},
}

type capturingEmail struct {
	mu   sync.Mutex
	sent []*ses.SendEmailInput
}

func (c *capturingEmail) SendEmail(_ context.Context, in *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, in)
	return &ses.SendEmailOutput{}, nil
}

func newExtractionServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fields, ok := extractedFields[r.FormValue("documentType")]
		if !ok {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":"unsupported document"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "data": fields})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type harness struct {
	deps      session.Deps
	extractor *extraction.Client
	procedure *decision.Procedure
	log       logger.Logger
}

func newHarness(t *testing.T) *harness {
	log := logger.NewTestLogger(t)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.DefaultDecisionConfig()
	cfg.Strategy = config.StrategyHeuristic
	procedure := decision.NewProcedure(cfg, decision.NewHeuristic(cfg, log), log)

	extractor := extraction.NewClient(newExtractionServer(t).URL, 5*time.Second)

	return &harness{
		deps: session.Deps{
			Verifier:      auth.NewSimulatedVerifier(10 * time.Millisecond),
			Extractor:     extractor,
			Decider:       procedure,
			Store:         session.NewRedisSnapshotStore(rdb, 30*time.Minute),
			Logger:        log,
			SubmitTimeout: 5 * time.Second,
		},
		extractor: extractor,
		procedure: procedure,
		log:       log,
	}
}

// fillWizard drives a verified session through loan type, questionnaire and
// documents up to Review.
func fillWizard(t *testing.T, ctx context.Context, m *session.Machine, loanType models.LoanType, amount string) {
	t.Helper()

	require.True(t, m.Advance(ctx).Advanced)
	require.NoError(t, m.SelectLoanType(loanType))
	require.True(t, m.Advance(ctx).Advanced)

	for range questionnaire.QuestionsFor(loanType) {
		q, _, err := m.CurrentQuestion()
		require.NoError(t, err)
		if q.Type == questionnaire.TypeText {
			answer := "answer for " + q.ID
			if q.ID == "loanAmount" {
				answer = amount
			}
			require.NoError(t, m.AnswerQuestion(answer))
		}
		require.NoError(t, m.NextQuestion())
	}
	_, err := m.ConfirmAnswers()
	require.NoError(t, err)
	require.True(t, m.Advance(ctx).Advanced)
	require.Equal(t, models.StepDocuments, m.Step())

	for _, d := range models.RequiredDocumentTypes() {
		artifact := models.Artifact{FileName: string(d) + ".jpg", MimeType: "image/jpeg", Data: []byte("img-" + string(d))}
		fields, err := m.ExtractDocument(ctx, d, artifact, models.MethodUpload)
		require.NoError(t, err)
		require.False(t, fields.ExtractionFailed(), "extraction failed for %s", d)
	}

	res := m.Advance(ctx)
	require.True(t, res.Advanced, res.Reason)
	require.Equal(t, models.StepReview, m.Step())
}

func TestWizardFlow_Approved(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	// 1. identity
	verify := verifyloanapplicant.NewHandler(&verifyloanapplicant.Config{Timeout: 5 * time.Second}, h.deps, h.log)
	verified, err := verify.Execute(ctx, &verifyloanapplicant.Input{SessionID: "e2e-approved", Credential: "asha"})
	require.NoError(t, err)
	require.True(t, verified.IdentityVerified)

	// 2. applicant fills the wizard on a resumed session
	m, err := session.Resume(ctx, "e2e-approved", h.deps)
	require.NoError(t, err)
	fillWizard(t, ctx, m, models.LoanTypeHome, "300000")

	// 3. document check on what the wizard collected
	snap := m.Snapshot()
	uploaded := make([]string, 0, len(snap.ExtractedData))
	extracted := make(map[string]map[string]string, len(snap.ExtractedData))
	for d, rec := range snap.ExtractedData {
		uploaded = append(uploaded, string(d))
		extracted[string(d)] = rec
	}
	validate := validateloandocuments.NewHandler(&validateloandocuments.Config{Timeout: 5 * time.Second}, h.log)
	check, err := validate.Execute(ctx, &validateloandocuments.Input{UploadedDocuments: uploaded, ExtractedData: extracted})
	require.NoError(t, err)
	assert.True(t, check.IsComplete)
	assert.Empty(t, check.ValidationErrors)
	assert.Equal(t, 56, check.Progress)

	// 4. submission through the stored session
	submit := submitloansession.NewHandler(&submitloansession.Config{Timeout: 10 * time.Second}, h.deps, h.log)
	submitted, err := submit.Execute(ctx, &submitloansession.Input{SessionID: "e2e-approved"})
	require.NoError(t, err)
	assert.Equal(t, "approved", submitted.ApprovalStatus)
	assert.Equal(t, "home", submitted.LoanType)
	assert.Equal(t, "7.50", submitted.Decision.InterestRate)
	assert.Len(t, submitted.SubmittedDocuments, 5)

	// 5. the stateless assessment agrees with the session decision
	assess := assessloanapplication.NewHandler(&assessloanapplication.Config{Timeout: 5 * time.Second}, h.procedure, h.log)
	assessed, err := assess.Execute(ctx, &assessloanapplication.Input{
		ApplicationID:      submitted.ApplicationID,
		LoanType:           submitted.LoanType,
		LoanAnswers:        snap.LoanAnswers,
		ExtractedData:      extracted,
		SubmittedDocuments: submitted.SubmittedDocuments,
	})
	require.NoError(t, err)
	assert.Equal(t, submitted.ApprovalStatus, assessed.ApprovalStatus)
	assert.Equal(t, submitted.Decision.InterestRate, assessed.Decision.InterestRate)

	// 6. audit row
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(submitted.ApplicationID, submitted.Decision.ID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO loan_decisions`).WillReturnResult(sqlmock.NewResult(1, 1))

	record := recordloandecision.NewHandler(&recordloandecision.Config{Timeout: 5 * time.Second}, db, nil, h.log)
	recorded, err := record.Execute(ctx, &recordloandecision.Input{
		ApplicationID: submitted.ApplicationID,
		UserID:        verified.Subject,
		LoanType:      submitted.LoanType,
		Decision:      submitted.Decision,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, recorded.RecordID)
	assert.NoError(t, mock.ExpectationsWereMet())

	// 7. applicant notification
	email := &capturingEmail{}
	notify := notifyloandecision.NewHandler(&notifyloandecision.Config{
		EmailEnabled: true,
		FromEmail:    "loans@example.com",
		Timeout:      5 * time.Second,
	}, email, nil, h.log)
	notified, err := notify.Execute(ctx, &notifyloandecision.Input{
		ApplicationID: submitted.ApplicationID,
		LoanType:      submitted.LoanType,
		Email:         "asha@example.com",
		Decision:      submitted.Decision,
	})
	require.NoError(t, err)
	assert.Equal(t, notifyloandecision.StatusSent, notified.Status)
	assert.Len(t, email.sent, 1)

	// the stored session ends at Decision
	stored, err := h.deps.Store.Load(ctx, "e2e-approved")
	require.NoError(t, err)
	assert.Equal(t, models.StepDecision, stored.Step)
	require.NotNil(t, stored.Decision)
	assert.Equal(t, submitted.Decision.ID, stored.Decision.ID)
}

func TestWizardFlow_RejectedThenResubmitBlocked(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	verify := verifyloanapplicant.NewHandler(&verifyloanapplicant.Config{Timeout: 5 * time.Second}, h.deps, h.log)
	_, err := verify.Execute(ctx, &verifyloanapplicant.Input{SessionID: "e2e-rejected", Credential: "ravi"})
	require.NoError(t, err)

	m, err := session.Resume(ctx, "e2e-rejected", h.deps)
	require.NoError(t, err)
	// 60000 x 10 is the ceiling
	fillWizard(t, ctx, m, models.LoanTypePersonal, "600001")

	submit := submitloansession.NewHandler(&submitloansession.Config{Timeout: 10 * time.Second}, h.deps, h.log)
	submitted, err := submit.Execute(ctx, &submitloansession.Input{SessionID: "e2e-rejected"})
	require.NoError(t, err)
	assert.Equal(t, "rejected", submitted.ApprovalStatus)
	assert.Equal(t, "0", submitted.Decision.InterestRate)

	// only an "error" decision may be resubmitted
	_, err = submit.Execute(ctx, &submitloansession.Input{SessionID: "e2e-rejected"})
	require.Error(t, err)
}

func TestWizardFlow_ExtractionWorkerAgainstService(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	extract := extractloandocument.NewHandler(&extractloandocument.Config{Timeout: 5 * time.Second}, h.extractor, h.log)
	out, err := extract.Execute(ctx, &extractloandocument.Input{
		DocumentType:  "income",
		FileName:      "slip.pdf",
		MimeType:      "application/pdf",
		ContentBase64: "JVBERi0xLjQ=",
	})
	require.NoError(t, err)
	assert.False(t, out.ExtractionFailed)
	assert.Equal(t, "60000", out.Fields["monthlyIncome"])

	out, err = extract.Execute(ctx, &extractloandocument.Input{
		DocumentType:  "cibil",
		FileName:      "report.pdf",
		MimeType:      "application/pdf",
		ContentBase64: "JVBERi0xLjQ=",
	})
	require.NoError(t, err)
	assert.True(t, out.ExtractionFailed)
}
