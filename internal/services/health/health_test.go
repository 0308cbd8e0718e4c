package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/entitlement-webhooks/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-webhooks/internal/storage/memory"
)

type slowPinger struct{}

func (slowPinger) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestReporter_Probe(t *testing.T) {
	store := memory.New()
	r := NewReporter(store, sl.Discard(), 0)

	assert.True(t, r.Probe(context.Background()).Healthy)

	boom := errors.New("connection refused")
	store.FailNext(memory.OpPing, boom)
	st := r.Probe(context.Background())
	assert.False(t, st.Healthy)
	assert.ErrorIs(t, st.Err, boom)
}

func TestReporter_ProbeTimesOut(t *testing.T) {
	r := NewReporter(slowPinger{}, sl.Discard(), 20*time.Millisecond)

	start := time.Now()
	st := r.Probe(context.Background())
	assert.False(t, st.Healthy)
	assert.ErrorIs(t, st.Err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
