package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"jotihunt/internal/domain"
)

const (
	actionCreate        = "create"
	actionUpdate        = "update"
	actionStatusChanged = "status_changed"
)

// RabbitMQ publishes item and area status changes to a direct exchange. Item
// events and area events use separate routing keys bound to one queue.
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     Config
	logger  *slog.Logger
}

type Config struct {
	URL            string
	Exchange       string
	ItemRoutingKey string
	AreaRoutingKey string
	QueueName      string
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger = logger.With("component", "publisher")
	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"item_routing_key", cfg.ItemRoutingKey,
		"area_routing_key", cfg.AreaRoutingKey,
	)

	return &RabbitMQ{conn: conn, channel: ch, cfg: cfg, logger: logger}, nil
}

func declareTopology(ch *amqp.Channel, cfg Config) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %q: %w", cfg.Exchange, err)
	}

	q, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %q: %w", cfg.QueueName, err)
	}

	for _, key := range []string{cfg.ItemRoutingKey, cfg.AreaRoutingKey} {
		if err := ch.QueueBind(q.Name, key, cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue to %q: %w", key, err)
		}
	}
	return nil
}

// ItemMessage is the body of an item event. Action is "create" or "update".
type ItemMessage struct {
	Action    string      `json:"action"`
	Item      domain.Item `json:"item"`
	Timestamp time.Time   `json:"timestamp"`
}

// AreaMessage is the body of an area status change event.
type AreaMessage struct {
	Action    string                  `json:"action"`
	Change    domain.AreaStatusChange `json:"change"`
	Timestamp time.Time               `json:"timestamp"`
}

func (r *RabbitMQ) PublishItem(ctx context.Context, item *domain.Item, isNew bool) error {
	action := actionUpdate
	if isNew {
		action = actionCreate
	}

	now := time.Now().UTC()
	msg := ItemMessage{Action: action, Item: *item, Timestamp: now}
	if err := r.publish(ctx, r.cfg.ItemRoutingKey, "item."+action, now, msg); err != nil {
		return fmt.Errorf("publish item %d: %w", item.ID, err)
	}

	r.logger.Debug("published item", "id", item.ID, "action", action)
	return nil
}

func (r *RabbitMQ) PublishAreaChange(ctx context.Context, change *domain.AreaStatusChange) error {
	now := time.Now().UTC()
	msg := AreaMessage{Action: actionStatusChanged, Change: *change, Timestamp: now}
	if err := r.publish(ctx, r.cfg.AreaRoutingKey, "area."+actionStatusChanged, now, msg); err != nil {
		return fmt.Errorf("publish area %q: %w", change.Area, err)
	}

	r.logger.Debug("published area change", "area", change.Area, "status", change.Status)
	return nil
}

func (r *RabbitMQ) publish(ctx context.Context, routingKey, msgType string, at time.Time, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return r.channel.PublishWithContext(ctx, r.cfg.Exchange, routingKey, false, false, amqp.Publishing{
		MessageId:    uuid.NewString(),
		Type:         msgType,
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    at,
	})
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
