package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phdwriter/essay_go_server/internal/model"
	"github.com/phdwriter/essay_go_server/internal/testutil"
)

func TestCreateDuplicateEvent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewPaymentEventRepository(db)

	event := &model.PaymentEvent{
		EventID:    "evt_once",
		Provider:   "stripe",
		Type:       "payment_intent.succeeded",
		Status:     model.EventReceived,
		OccurredAt: time.Now(),
	}
	require.NoError(t, repo.Create(event))

	dup := &model.PaymentEvent{
		EventID:    "evt_once",
		Provider:   "stripe",
		Type:       "payment_intent.succeeded",
		Status:     model.EventReceived,
		OccurredAt: time.Now(),
	}
	require.ErrorIs(t, repo.Create(dup), ErrDuplicateEvent)
}

func TestEventStatusTransitions(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewPaymentEventRepository(db)

	event := &model.PaymentEvent{
		EventID: "evt_s", Provider: "paypal", Type: "BILLING.SUBSCRIPTION.ACTIVATED",
		Status: model.EventReceived, OccurredAt: time.Now(),
	}
	require.NoError(t, repo.Create(event))

	require.NoError(t, repo.MarkProcessed(event.ID, 42))
	got, err := repo.GetByEventID("evt_s")
	require.NoError(t, err)
	assert.Equal(t, model.EventProcessed, got.Status)
	assert.Equal(t, int64(42), got.UserID)
	assert.NotNil(t, got.ProcessedAt)
}

func TestDeleteProcessedBefore(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewPaymentEventRepository(db)

	old := &model.PaymentEvent{
		EventID: "evt_old", Provider: "stripe", Type: "t",
		Status: model.EventProcessed, OccurredAt: time.Now(),
	}
	require.NoError(t, repo.Create(old))
	require.NoError(t, db.Model(old).Update("created_at", time.Now().AddDate(0, 0, -100)).Error)

	fresh := &model.PaymentEvent{
		EventID: "evt_fresh", Provider: "stripe", Type: "t",
		Status: model.EventProcessed, OccurredAt: time.Now(),
	}
	require.NoError(t, repo.Create(fresh))

	// unsettled rows are never purged, however old
	failed := &model.PaymentEvent{
		EventID: "evt_failed", Provider: "stripe", Type: "t",
		Status: model.EventFailed, OccurredAt: time.Now(),
	}
	require.NoError(t, repo.Create(failed))
	require.NoError(t, db.Model(failed).Update("created_at", time.Now().AddDate(0, 0, -100)).Error)

	n, err := repo.DeleteProcessedBefore(time.Now().AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.GetByEventID("evt_fresh")
	require.NoError(t, err)
	_, err = repo.GetByEventID("evt_failed")
	require.NoError(t, err)
}
