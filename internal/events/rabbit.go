// Package events publishes and consumes storefront events on a RabbitMQ
// topic exchange.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Routing keys emitted by the data store.
const (
	RKBookUpdated = "book.updated"
	RKOrderPlaced = "order.created"
	RKBillCreated = "bill.created"
)

// Envelope wraps every payload on the wire.
type Envelope struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Rabbit is safe to use as a nil or disabled publisher: publishing is then a
// no-op.
type Rabbit struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      zerolog.Logger
	now      func() time.Time

	mu sync.Mutex // amqp channels are not safe for concurrent publishes
}

// NewRabbit dials url and declares a durable topic exchange. An empty url
// gives a disabled Rabbit.
func NewRabbit(url, exchange string, log zerolog.Logger) (*Rabbit, error) {
	r := &Rabbit{exchange: exchange, log: log, now: time.Now}
	if url == "" {
		log.Info().Msg("rabbit disabled, events are dropped")
		return r, nil
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		r.conn, r.ch = conn, ch
		r.Close()
		return nil, err
	}
	r.conn, r.ch = conn, ch
	return r, nil
}

func (r *Rabbit) Enabled() bool { return r != nil && r.ch != nil }

func (r *Rabbit) Close() {
	if r == nil {
		return
	}
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		_ = r.conn.Close()
	}
}

func (r *Rabbit) PublishJSON(ctx context.Context, routingKey string, v any) error {
	if !r.Enabled() {
		return nil
	}
	body, err := encode(routingKey, v, r.now())
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log.Debug().Str("rk", routingKey).Msg("publish event")
	return r.ch.PublishWithContext(ctx, r.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    r.now(),
		Body:         body,
	})
}

type Handler func(rk string, env Envelope) error

// ConsumeTopic binds queueName to each routing key and feeds deliveries to
// handler until the channel closes or ctx is done.
func (r *Rabbit) ConsumeTopic(ctx context.Context, queueName string, bindings []string, handler Handler) error {
	if !r.Enabled() {
		return errors.New("rabbit disabled")
	}
	q, err := r.ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return err
	}
	for _, rk := range bindings {
		if err := r.ch.QueueBind(q.Name, rk, r.exchange, false, nil); err != nil {
			return err
		}
	}
	msgs, err := r.ch.ConsumeWithContext(ctx, q.Name, "", true, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		for d := range msgs {
			env, err := Decode(d.Body)
			if err == nil {
				err = handler(d.RoutingKey, env)
			}
			if err != nil {
				r.log.Error().Err(err).Str("rk", d.RoutingKey).Msg("event handler")
			}
		}
		r.log.Info().Str("queue", queueName).Msg("consumer stopped")
	}()
	return nil
}

func encode(eventType string, payload any, ts time.Time) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: eventType, Timestamp: ts.UTC(), Payload: raw})
}

func Decode(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
