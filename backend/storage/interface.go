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

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/efchatnet/efmod/backend/models"
)

var ErrNotFound = errors.New("not found")

// MessageStore is the append-mostly message log. Implementations assign
// CreatedAt and a monotonic insertion order on insert; callers never supply
// timestamps used for ordering.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, messageID string) (*models.Message, error)

	// ConversationMessages returns up to limit messages newest first.
	ConversationMessages(ctx context.Context, conversationID string, offset, limit int) ([]models.Message, error)
	CountConversationMessages(ctx context.Context, conversationID string) (int, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)

	// MarkMessageRead flips an unread message to read. It reports false when
	// the message was already read.
	MarkMessageRead(ctx context.Context, messageID string, at time.Time) (bool, error)
	// MarkConversationRead marks every unread message addressed to readerID
	// in the conversation and returns how many changed.
	MarkConversationRead(ctx context.Context, conversationID, readerID string, at time.Time) (int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error)

	ListFlagged(ctx context.Context, offset, limit int) ([]models.Message, error)
	CountFlagged(ctx context.Context) (int, error)
	MarkReviewed(ctx context.Context, messageID, reviewerID, decision string, at time.Time) error

	Ping(ctx context.Context) error
}

// Directory resolves identities and order references owned by other
// services. Lookups of unknown ids return ErrNotFound.
type Directory interface {
	ResolveUser(ctx context.Context, userID string) (*models.User, error)
	OrderExists(ctx context.Context, orderID string) (bool, error)
}
