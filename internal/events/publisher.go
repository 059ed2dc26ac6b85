// Package events forwards balance snapshots to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/MrJamesThe3rd/pocketfin/internal/balance"
	"github.com/MrJamesThe3rd/pocketfin/internal/ledger"
)

const RoutingKeyBalanceChanged = "ledger.balance.changed"

const publishTimeout = 5 * time.Second

// BalanceChanged is the message body published for every refreshed snapshot.
// Amounts are decimal strings with two places.
type BalanceChanged struct {
	OwnerID      string    `json:"owner_id"`
	TotalIncome  string    `json:"total_income"`
	TotalExpense string    `json:"total_expense"`
	Net          string    `json:"net"`
	Entries      int       `json:"entries"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewBalanceChanged(snap *balance.Snapshot) BalanceChanged {
	return BalanceChanged{
		OwnerID:      snap.OwnerID,
		TotalIncome:  ledger.FormatAmount(snap.TotalIncome),
		TotalExpense: ledger.FormatAmount(snap.TotalExpense),
		Net:          ledger.FormatAmount(snap.Net),
		Entries:      len(snap.Income) + len(snap.Expense),
		Timestamp:    snap.UpdatedAt.UTC(),
	}
}

// Channel is the subset of *amqp091.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

var _ balance.Publisher = (*Publisher)(nil)

type Publisher struct {
	conn     *amqp091.Connection
	channel  Channel
	exchange string
}

// Dial connects to the broker and declares the exchange.
func Dial(url, exchange string) (*Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dialing AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	p, err := NewPublisher(ch, exchange)
	if err != nil {
		conn.Close()
		return nil, err
	}

	p.conn = conn

	return p, nil
}

// NewPublisher declares a durable topic exchange on ch and publishes to it.
func NewPublisher(ch Channel, exchange string) (*Publisher, error) {
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
		return nil, fmt.Errorf("declaring exchange %q: %w", exchange, err)
	}

	return &Publisher{channel: ch, exchange: exchange}, nil
}

func (p *Publisher) PublishBalance(ctx context.Context, snap *balance.Snapshot) error {
	body, err := json.Marshal(NewBalanceChanged(snap))
	if err != nil {
		return fmt.Errorf("marshaling balance event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(ctx, p.exchange, RoutingKeyBalanceChanged, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publishing balance event: %w", err)
	}

	return nil
}

func (p *Publisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}

	if p.conn != nil {
		return p.conn.Close()
	}

	return nil
}
