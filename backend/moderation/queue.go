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

// Package moderation exposes flagged messages to moderators and records
// their review decisions.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/efchatnet/efmod/backend/access"
	"github.com/efchatnet/efmod/backend/apperr"
	"github.com/efchatnet/efmod/backend/logger"
	"github.com/efchatnet/efmod/backend/metrics"
	"github.com/efchatnet/efmod/backend/models"
	"github.com/efchatnet/efmod/backend/storage"
)

type Decision string

const (
	DecisionDismiss  Decision = "dismiss"
	DecisionWarnUser Decision = "warn-user"
	DecisionEscalate Decision = "escalate"
)

func (d Decision) Valid() bool {
	switch d {
	case DecisionDismiss, DecisionWarnUser, DecisionEscalate:
		return true
	}
	return false
}

// Notifier carries moderation events to the outside world. The AMQP
// publisher in package events satisfies it.
type Notifier interface {
	MessageFlagged(ctx context.Context, msg models.Message) error
	MessageReviewed(ctx context.Context, msg models.Message) error
}

type Queue struct {
	store      storage.MessageStore
	notifier   Notifier
	moderators access.Roles
	metrics    *metrics.Metrics
	log        *logger.Logger
	now        func() time.Time
}

// NewQueue builds a queue over store. notifier and m may be nil.
func NewQueue(store storage.MessageStore, notifier Notifier, moderators access.Roles, m *metrics.Metrics, log *logger.Logger) *Queue {
	if log == nil {
		log = logger.NewNop()
	}
	return &Queue{
		store:      store,
		notifier:   notifier,
		moderators: moderators,
		metrics:    m,
		log:        log,
		now:        time.Now,
	}
}

// IsModerator reports whether role may see the queue and unredacted
// moderation metadata.
func (q *Queue) IsModerator(role string) bool {
	return q.moderators.Has(role)
}

// Flagged announces a newly stored flagged message. Callers run it off the
// request path and own failure accounting.
func (q *Queue) Flagged(ctx context.Context, msg models.Message) error {
	types := make([]string, 0, len(msg.FilterFlags))
	for _, f := range msg.FilterFlags {
		types = append(types, string(f.Type))
	}
	q.log.Warn("message flagged for review",
		"message_id", msg.ID,
		"conversation_id", msg.ConversationID,
		"sender_id", msg.SenderID,
		"flag_types", types,
	)

	if q.notifier == nil {
		return nil
	}
	if err := q.notifier.MessageFlagged(ctx, msg); err != nil {
		return fmt.Errorf("publish flagged %s: %w", msg.ID, err)
	}
	return nil
}

// List returns flagged messages newest first, reviewed ones included.
func (q *Queue) List(ctx context.Context, caller access.Caller, page, limit int) (models.Page, error) {
	if !q.IsModerator(caller.Role) {
		return models.Page{}, apperr.Denied()
	}
	page, limit = models.ClampPage(page, limit)

	total, err := q.store.CountFlagged(ctx)
	if err != nil {
		return models.Page{}, fmt.Errorf("count flagged: %w", err)
	}
	msgs, err := q.store.ListFlagged(ctx, models.Offset(page, limit), limit)
	if err != nil {
		return models.Page{}, fmt.Errorf("list flagged: %w", err)
	}
	return models.NewPage(msgs, page, limit, total), nil
}

// Review records a moderator decision. Reviewing again overwrites the
// previous reviewer, time, and decision.
func (q *Queue) Review(ctx context.Context, caller access.Caller, messageID string, decision Decision) (*models.Message, error) {
	if !q.IsModerator(caller.Role) {
		return nil, apperr.Denied()
	}
	if !decision.Valid() {
		return nil, apperr.Validation("decision must be one of %s, %s or %s",
			DecisionDismiss, DecisionWarnUser, DecisionEscalate)
	}

	msg, err := q.store.GetMessage(ctx, messageID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("message")
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if !msg.FlaggedForReview {
		return nil, apperr.Validation("message is not flagged for review")
	}

	at := q.now().UTC()
	if err := q.store.MarkReviewed(ctx, messageID, caller.ID, string(decision), at); err != nil {
		return nil, fmt.Errorf("mark reviewed: %w", err)
	}
	msg.ReviewedBy = caller.ID
	msg.ReviewedAt = &at
	msg.ReviewDecision = string(decision)

	q.metrics.Review(string(decision))
	q.log.Info("message reviewed",
		"message_id", msg.ID,
		"reviewer_id", caller.ID,
		"decision", decision,
	)

	if q.notifier != nil {
		if err := q.notifier.MessageReviewed(ctx, *msg); err != nil {
			q.metrics.NotifyFailure("moderation")
			q.log.Error("failed to publish review", "message_id", msg.ID, "error", err)
		}
	}
	return msg, nil
}
