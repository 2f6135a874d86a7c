// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/efchatnet/efmod/backend/logger"
	"github.com/efchatnet/efmod/backend/models"
)

// Publisher sends moderation events with publisher confirms.
type Publisher struct {
	conn     *amqp.Connection
	exchange string
	log      *logger.Logger

	mu sync.Mutex
	ch *amqp.Channel
}

func Dial(url, exchange string, log *logger.Logger) (*Publisher, error) {
	if url == "" {
		return nil, fmt.Errorf("amqp URL is required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("confirm mode: %w", err)
	}

	return &Publisher{
		conn:     conn,
		exchange: exchange,
		log:      log.With("component", "EventPublisher", "exchange", exchange),
		ch:       ch,
	}, nil
}

// Publish routes env by its event type and waits for the broker confirm.
func (p *Publisher) Publish(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		ch, err := p.conn.Channel()
		if err != nil {
			return fmt.Errorf("reopen channel: %w", err)
		}
		if err := ch.Confirm(false); err != nil {
			ch.Close()
			return fmt.Errorf("confirm mode: %w", err)
		}
		p.ch = ch
	}

	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, env.Meta.Type, false, false,
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     env.Meta.ID,
			CorrelationId: env.Meta.CorrelationID,
			Type:          env.Meta.Type,
			Timestamp:     env.Meta.Time,
			AppId:         env.Meta.Producer,
			Body:          body,
		})
	if err != nil {
		return fmt.Errorf("publish %s: %w", env.Meta.Type, err)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("confirm %s: %w", env.Meta.Type, err)
	}
	if !acked {
		return fmt.Errorf("broker nacked %s", env.Meta.Type)
	}

	p.log.Debug("published", "type", env.Meta.Type, "event_id", env.Meta.ID)
	return nil
}

func (p *Publisher) MessageFlagged(ctx context.Context, msg models.Message) error {
	return p.Publish(ctx, FlaggedEnvelope(msg))
}

func (p *Publisher) MessageReviewed(ctx context.Context, msg models.Message) error {
	return p.Publish(ctx, ReviewedEnvelope(msg))
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	return p.conn.Close()
}
