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

// Package events publishes moderation events to a RabbitMQ topic exchange
// for downstream workflows (user warnings, escalation to managers).
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/efchatnet/efmod/backend/models"
)

const (
	TypeMessageFlagged  = "moderation.flagged.v1"
	TypeMessageReviewed = "moderation.reviewed.v1"

	Producer = "efmod"
)

type Meta struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Time          time.Time `json:"time"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Producer      string    `json:"producer"`
}

type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// MessageFlagged carries only flag categories; matched fragments stay in
// the message store behind moderator access.
type MessageFlagged struct {
	MessageID        string                  `json:"message_id"`
	ConversationID   string                  `json:"conversation_id"`
	ConversationType models.ConversationType `json:"conversation_type"`
	SenderID         string                  `json:"sender_id"`
	RecipientID      string                  `json:"recipient_id"`
	OrderID          string                  `json:"order_id,omitempty"`
	FlagTypes        []models.FlagType       `json:"flag_types"`
	FlaggedAt        time.Time               `json:"flagged_at"`
}

type MessageReviewed struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	ReviewerID     string    `json:"reviewer_id"`
	Decision       string    `json:"decision"`
	ReviewedAt     time.Time `json:"reviewed_at"`
}

func NewEnvelope(eventType, correlationID string, data any) Envelope {
	id := uuid.NewString()
	if correlationID == "" {
		correlationID = id
	}
	return Envelope{
		Meta: Meta{
			ID:            id,
			Type:          eventType,
			Time:          time.Now().UTC(),
			CorrelationID: correlationID,
			Producer:      Producer,
		},
		Data: data,
	}
}

func FlaggedEnvelope(msg models.Message) Envelope {
	types := make([]models.FlagType, 0, len(msg.FilterFlags))
	seen := make(map[models.FlagType]bool)
	flaggedAt := msg.CreatedAt
	for _, f := range msg.FilterFlags {
		if !seen[f.Type] {
			seen[f.Type] = true
			types = append(types, f.Type)
		}
		if flaggedAt.IsZero() {
			flaggedAt = f.FlaggedAt
		}
	}
	return NewEnvelope(TypeMessageFlagged, msg.ID, MessageFlagged{
		MessageID:        msg.ID,
		ConversationID:   msg.ConversationID,
		ConversationType: msg.ConversationType,
		SenderID:         msg.SenderID,
		RecipientID:      msg.RecipientID,
		OrderID:          msg.OrderID,
		FlagTypes:        types,
		FlaggedAt:        flaggedAt,
	})
}

func ReviewedEnvelope(msg models.Message) Envelope {
	var reviewedAt time.Time
	if msg.ReviewedAt != nil {
		reviewedAt = *msg.ReviewedAt
	}
	return NewEnvelope(TypeMessageReviewed, msg.ID, MessageReviewed{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		ReviewerID:     msg.ReviewedBy,
		Decision:       msg.ReviewDecision,
		ReviewedAt:     reviewedAt,
	})
}
