package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/entitlement-webhooks/internal/models"
)

type mockChannel struct {
	mock.Mock
}

func (m *mockChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

func testChange() models.EntitlementChange {
	product := "monthly"
	return models.EntitlementChange{
		EventID:    "evt-1",
		EventType:  "INITIAL_PURCHASE",
		Provider:   "revenuecat",
		UserID:     "u1",
		Previous:   models.Entitlement{UserID: "u1"},
		Current:    models.Entitlement{UserID: "u1", IsPro: true, ProductID: &product, WillRenew: true},
		OccurredAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublisher_NotifyEntitlementChanged(t *testing.T) {
	ch := new(mockChannel)
	ch.On("Publish", "entitlements", "initial_purchase", false, false, mock.MatchedBy(func(msg amqp.Publishing) bool {
		var got models.EntitlementChange
		if err := json.Unmarshal(msg.Body, &got); err != nil {
			return false
		}
		return msg.ContentType == "application/json" &&
			msg.DeliveryMode == amqp.Persistent &&
			got.EventID == "evt-1" && got.Current.IsPro
	})).Return(nil).Once()

	p := NewPublisher(ch, "entitlements")
	require.NoError(t, p.NotifyEntitlementChanged(context.Background(), testChange()))
	ch.AssertExpectations(t)
}

func TestPublisher_PublishError(t *testing.T) {
	ch := new(mockChannel)
	ch.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("channel closed"))

	p := NewPublisher(ch, "entitlements")
	err := p.NotifyEntitlementChanged(context.Background(), testChange())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rabbitmq.PublishMessage")
	assert.Contains(t, err.Error(), "channel closed")
}

func TestPublisher_CanceledContext(t *testing.T) {
	ch := new(mockChannel)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewPublisher(ch, "entitlements").NotifyEntitlementChanged(ctx, testChange())
	assert.ErrorIs(t, err, context.Canceled)
	ch.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPublisher_ConcurrentPublish(t *testing.T) {
	ch := new(mockChannel)
	ch.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	p := NewPublisher(ch, "entitlements")
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.NotifyEntitlementChanged(context.Background(), testChange()))
		}()
	}
	wg.Wait()
	ch.AssertNumberOfCalls(t, "Publish", 10)
}

func TestPublishMessage_MarshalError(t *testing.T) {
	badMsg := struct {
		Ch chan int `json:"ch"`
	}{
		Ch: make(chan int),
	}

	err := PublishMessage(new(mockChannel), "", "q", badMsg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rabbitmq.PublishMessage")
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "initial_purchase", RoutingKey("INITIAL_PURCHASE"))
	assert.Equal(t, "billing_issue", RoutingKey("BILLING_ISSUE"))
}
