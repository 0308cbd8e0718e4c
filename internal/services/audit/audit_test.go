package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/entitlement-webhooks/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/models"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/storage/memory"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) AppendAudit(ctx context.Context, entry models.AuditEntry) (bool, error) {
	args := m.Called(ctx, entry)
	return args.Bool(0), args.Error(1)
}

type countingRecorder struct{ steps []string }

func (c *countingRecorder) RecordSideEffectFailure(step string) { c.steps = append(c.steps, step) }

func entry(outcome models.Outcome) models.AuditEntry {
	return models.AuditEntry{EventID: "e1", Provider: "revenuecat", EventType: "RENEWAL", UserID: "u1", Outcome: outcome}
}

func TestLogger_Append(t *testing.T) {
	store := memory.New()
	l := NewLogger(store, sl.Discard(), time.Second)

	assert.True(t, l.Append(context.Background(), entry(models.OutcomeProcessed)))
	assert.True(t, l.Append(context.Background(), entry(models.OutcomeProcessed)), "duplicate counts as success")
	require.Len(t, store.AuditEntries(), 1)
}

func TestLogger_ErrorIsSwallowed(t *testing.T) {
	store := memory.New()
	store.FailNext(memory.OpAudit, errors.New("disk full"))
	rec := &countingRecorder{}
	l := NewLogger(store, sl.Discard(), time.Second).WithMetrics(rec)

	assert.NotPanics(t, func() {
		assert.False(t, l.Append(context.Background(), entry(models.OutcomeFailed)))
	})
	assert.Equal(t, []string{"audit"}, rec.steps)
	assert.Empty(t, store.AuditEntries())
}

func TestLogger_DetachedFromRequestCancellation(t *testing.T) {
	store := new(mockStore)
	store.On("AppendAudit", mock.MatchedBy(func(ctx context.Context) bool {
		_, hasDeadline := ctx.Deadline()
		return ctx.Err() == nil && hasDeadline
	}), mock.Anything).Return(true, nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := NewLogger(store, sl.Discard(), 0)
	assert.True(t, l.Append(ctx, entry(models.OutcomeProcessed)))
	store.AssertExpectations(t)
	assert.Equal(t, DefaultTimeout, l.timeout)
}
