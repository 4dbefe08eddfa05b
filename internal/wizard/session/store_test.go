package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-wizard/internal/models"
)

func sampleSnapshot(id string) models.Snapshot {
	return models.Snapshot{
		ID:               id,
		Step:             models.StepDocuments,
		StepName:         models.StepDocuments.String(),
		IdentityVerified: true,
		LoanType:         models.LoanTypeHome,
		LoanAnswers:      map[string]string{"fullName": "Asha Rao"},
		QuestionIndex:    3,
		Documents:        map[models.DocumentType]models.UploadedDocument{},
		ExtractedData: map[models.DocumentType]models.FieldRecord{
			models.DocPAN: {"panNumber": "ABCDE1234F"},
		},
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestSnapshotStores(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	stores := map[string]SnapshotStore{
		"memory": NewMemorySnapshotStore(),
		"redis":  NewRedisSnapshotStore(rdb, time.Minute),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Load(ctx, "missing")
			assert.ErrorIs(t, err, ErrSnapshotNotFound)

			snap := sampleSnapshot("s-" + name)
			require.NoError(t, store.Save(ctx, snap))

			loaded, err := store.Load(ctx, snap.ID)
			require.NoError(t, err)
			assert.Equal(t, snap.LoanAnswers, loaded.LoanAnswers)
			assert.Equal(t, snap.ExtractedData, loaded.ExtractedData)
			assert.Equal(t, models.StepDocuments, loaded.Step)
			assert.True(t, snap.UpdatedAt.Equal(loaded.UpdatedAt))

			loaded.LoanAnswers["fullName"] = "changed"
			again, err := store.Load(ctx, snap.ID)
			require.NoError(t, err)
			assert.Equal(t, "Asha Rao", again.LoanAnswers["fullName"])

			require.NoError(t, store.Delete(ctx, snap.ID))
			_, err = store.Load(ctx, snap.ID)
			assert.ErrorIs(t, err, ErrSnapshotNotFound)
		})
	}
}

func TestRedisSnapshotStore_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	store := NewRedisSnapshotStore(rdb, 30*time.Minute)
	require.NoError(t, store.Save(context.Background(), sampleSnapshot("ttl")))

	assert.Equal(t, 30*time.Minute, mr.TTL("loan-wizard:session:ttl"))

	mr.FastForward(31 * time.Minute)
	_, err := store.Load(context.Background(), "ttl")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestRedisSnapshotStore_Failures(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisSnapshotStore(db, time.Minute)
	ctx := context.Background()

	snap := sampleSnapshot("down")
	data, err := json.Marshal(snap)
	require.NoError(t, err)

	mock.ExpectSet("loan-wizard:session:down", data, time.Minute).SetErr(errors.New("READONLY You can't write against a read only replica"))
	err = store.Save(ctx, snap)
	assert.ErrorContains(t, err, "READONLY")

	mock.ExpectGet("loan-wizard:session:down").SetErr(errors.New("i/o timeout"))
	_, err = store.Load(ctx, "down")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrSnapshotNotFound)

	mock.ExpectGet("loan-wizard:session:garbled").SetVal("{not json")
	_, err = store.Load(ctx, "garbled")
	assert.ErrorContains(t, err, "decode snapshot")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMachine_PersistsAndResumes(t *testing.T) {
	store := NewMemorySnapshotStore()
	d := &fakeDecider{rec: approvedRecord()}
	m := newTestMachine(Deps{Store: store, Decider: d})
	toReview(t, m)

	saved, err := store.Load(context.Background(), m.ID())
	require.NoError(t, err)
	assert.Equal(t, models.StepReview, saved.Step)
	assert.Equal(t, "300000", saved.LoanAnswers["loanAmount"])

	resumed, err := Resume(context.Background(), m.ID(), Deps{Store: store, Decider: d})
	require.NoError(t, err)
	assert.Equal(t, models.StepReview, resumed.Step())
	assert.True(t, resumed.IdentityVerified())
	assert.Equal(t, models.LoanTypePersonal, resumed.LoanType())

	rec, err := resumed.SubmitApplication(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, rec.ApprovalStatus)

	final, err := store.Load(context.Background(), m.ID())
	require.NoError(t, err)
	require.NotNil(t, final.Decision)
	assert.Equal(t, models.StepDecision, final.Step)
	assert.False(t, final.Processing)
}

func TestResume_InterruptedSubmissionReturnsToReview(t *testing.T) {
	store := NewMemorySnapshotStore()
	snap := sampleSnapshot("crashed")
	snap.Step = models.StepDecision
	snap.Processing = true
	require.NoError(t, store.Save(context.Background(), snap))

	m, err := Resume(context.Background(), "crashed", Deps{Store: store})
	require.NoError(t, err)
	assert.Equal(t, models.StepReview, m.Step())
	assert.False(t, m.Processing())
}

func TestResume_PendingSubmissionStaysInFlight(t *testing.T) {
	store := NewMemorySnapshotStore()
	d := &fakeDecider{rec: approvedRecord(), release: make(chan struct{})}
	m := newTestMachine(Deps{Store: store, Decider: d})
	toReview(t, m)

	first, err := m.SubmitApplicationAsync(context.Background())
	require.NoError(t, err)
	require.True(t, m.Processing())

	other, err := Resume(context.Background(), m.ID(), Deps{Store: store, Decider: d})
	require.NoError(t, err)
	assert.Equal(t, models.StepDecision, other.Step())
	assert.True(t, other.Processing())

	_, err = other.SubmitApplicationAsync(context.Background())
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	assert.False(t, other.Back().Advanced)

	close(d.release)
	rec, err := first.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, rec.ApprovalStatus)
	assert.Equal(t, int32(1), atomic.LoadInt32(&d.calls))

	final, err := store.Load(context.Background(), m.ID())
	require.NoError(t, err)
	assert.False(t, final.Processing)
	require.NotNil(t, final.Decision)
}

func TestResume_InFlightWindow(t *testing.T) {
	tests := []struct {
		name           string
		age            time.Duration
		wantStep       models.Step
		wantProcessing bool
	}{
		{"within submit timeout", 5 * time.Second, models.StepDecision, true},
		{"past submit timeout", 20 * time.Second, models.StepReview, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemorySnapshotStore()
			snap := sampleSnapshot("pending")
			snap.Step = models.StepDecision
			snap.Processing = true
			snap.UpdatedAt = time.Now().UTC().Add(-tt.age)
			require.NoError(t, store.Save(context.Background(), snap))

			m, err := Resume(context.Background(), "pending", Deps{Store: store, SubmitTimeout: 15 * time.Second})
			require.NoError(t, err)
			assert.Equal(t, tt.wantStep, m.Step())
			assert.Equal(t, tt.wantProcessing, m.Processing())
		})
	}
}

func TestResume_Missing(t *testing.T) {
	_, err := Resume(context.Background(), "nope", Deps{Store: NewMemorySnapshotStore()})
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	_, err = Resume(context.Background(), "nope", Deps{})
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

type failingStore struct{ MemorySnapshotStore }

func (*failingStore) Save(context.Context, models.Snapshot) error {
	return errors.New("connection refused")
}

func TestMachine_SnapshotFailureDoesNotBreakSession(t *testing.T) {
	m := newTestMachine(Deps{Store: &failingStore{}})
	toReview(t, m)

	rec, err := m.SubmitApplication(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, rec.ApprovalStatus)
}
