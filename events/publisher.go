package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/warp/wallet-engine/ledger"
)

const publishTimeout = 5 * time.Second

// Channel is the part of *amqp091.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher sends balance changes to a durable topic exchange.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	ch       Channel
	exchange string
	prefix   string
	log      zerolog.Logger
	now      func() time.Time
}

var _ ledger.Publisher = (*Publisher)(nil)

// Dial connects to the broker and declares the exchange.
func Dial(url, exchange, prefix string, log zerolog.Logger) (*Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p, err := NewPublisher(ch, exchange, prefix, log)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// NewPublisher wraps an already open channel and declares the exchange on it.
func NewPublisher(ch Channel, exchange, prefix string, log zerolog.Logger) (*Publisher, error) {
	if exchange == "" {
		return nil, errors.New("exchange name is required")
	}
	if prefix == "" {
		prefix = "wallet"
	}
	err := ch.ExchangeDeclare(
		exchange,
		amqp091.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{
		ch:       ch,
		exchange: exchange,
		prefix:   prefix,
		log:      log,
		now:      time.Now,
	}, nil
}

// RoutingKey returns the key a change is published under.
func (p *Publisher) RoutingKey(c ledger.BalanceChange) string {
	return p.prefix + "." + EventFor(c.Reason)
}

// PublishBalanceChanges publishes each change as a persistent JSON message
// with its own message id, so identical repeated changes stay distinct.
// The batch keeps its order; the first failure stops it.
func (p *Publisher) PublishBalanceChanges(ctx context.Context, changes []ledger.BalanceChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	for _, c := range changes {
		body, err := NewMessage(c).ToJSON()
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		key := p.RoutingKey(c)
		err = p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    p.now(),
			MessageId:    uuid.NewString(),
			Body:         body,
		})
		if err != nil {
			return fmt.Errorf("publish %s for wallet %s: %w", key, c.WalletID, err)
		}
		p.log.Debug().
			Str("routing_key", key).
			Str("wallet_id", string(c.WalletID)).
			Str("balance", c.Balance.String()).
			Msg("published balance change")
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// =============================================================================
// NO-OP
// =============================================================================

// Nop drops every change. Used when no broker is configured.
type Nop struct{}

var _ ledger.Publisher = Nop{}

func (Nop) PublishBalanceChanges(context.Context, []ledger.BalanceChange) error { return nil }
func (Nop) Close() error                                                         { return nil }
