package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange はイベントを発行するtopic exchange名。
const DefaultExchange = "livenex.events"

// AMQPPublisher はRabbitMQのtopic exchangeにイベントを発行する。
// 接続は起動時に1本張り、チャネルはPublish間で共有する。
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	logger   *slog.Logger
}

// DialAMQP はブローカーに接続し、exchangeを宣言する（冪等）。
func DialAMQP(url, exchange string, logger *slog.Logger) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // autoDelete
		false,    // internal
		false,    // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange, logger: logger}, nil
}

// Publish はイベントを永続メッセージとして発行する。
// エラーはログに記録したうえで返す。
func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx,
		p.exchange,
		e.Type, // routing key
		false,  // mandatory
		false,  // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    e.OccurredAt,
			Type:         e.Type,
			Body:         body,
		},
	)
	if err != nil {
		p.logger.Warn("failed to publish event",
			slog.String("type", e.Type),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to publish %s: %w", e.Type, err)
	}
	return nil
}

// Close はチャネルと接続を閉じる。
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.ch.Close()
	return p.conn.Close()
}

// Logging はイベントをslogに出力するだけのPublisher。ワーカーや開発環境向け。
type Logging struct {
	Logger *slog.Logger
}

// Publish はイベントをINFOレベルで記録する。
func (l Logging) Publish(ctx context.Context, e Event) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "domain event",
		slog.String("type", e.Type),
		slog.String("user_id", e.UserID),
		slog.Any("attributes", e.Attributes),
	)
	return nil
}

var (
	_ Publisher = Noop{}
	_ Publisher = Logging{}
	_ Publisher = (*AMQPPublisher)(nil)
)
