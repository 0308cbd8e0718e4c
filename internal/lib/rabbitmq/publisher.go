package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/entitlement-webhooks/internal/models"
)

// Channel — подмножество *amqp.Channel, нужное для публикации.
type Channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// PublishMessage сериализует message в JSON и публикует его как persistent-сообщение.
func PublishMessage(ch Channel, exchange string, routingkey string, message any) error {
	const op = "rabbitmq.PublishMessage"
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = ch.Publish(
		exchange,
		routingkey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RoutingKey возвращает ключ маршрутизации для типа события: INITIAL_PURCHASE -> initial_purchase.
func RoutingKey(eventType string) string {
	return strings.ToLower(eventType)
}

// Publisher публикует EntitlementChange в обменник уведомлений.
// *amqp.Channel не потокобезопасен, поэтому публикации сериализуются.
type Publisher struct {
	mu       sync.Mutex
	ch       Channel
	exchange string
}

// NewPublisher создаёт Publisher поверх открытого канала.
func NewPublisher(ch Channel, exchange string) *Publisher {
	return &Publisher{ch: ch, exchange: exchange}
}

// NotifyEntitlementChanged публикует изменение записи пользователя.
func (p *Publisher) NotifyEntitlementChanged(ctx context.Context, change models.EntitlementChange) error {
	const op = "rabbitmq.NotifyEntitlementChanged"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := PublishMessage(p.ch, p.exchange, RoutingKey(change.EventType), change); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
