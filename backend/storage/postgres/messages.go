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

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/efchatnet/efmod/backend/models"
	"github.com/efchatnet/efmod/backend/storage"
)

const messageColumns = `id, content, message_type, sender_id, recipient_id, conversation_type,
	order_id, conversation_id, status, is_read, read_at, attachments,
	is_filtered, filtered_content, filter_flags,
	flagged_for_review, reviewed_by, reviewed_at, review_decision,
	reply_to, created_at, updated_at, edited_at`

func (s *Store) InsertMessage(ctx context.Context, msg *models.Message) error {
	attachments, err := json.Marshal(nonNil(msg.Attachments))
	if err != nil {
		return fmt.Errorf("failed to marshal attachments: %w", err)
	}
	flags, err := json.Marshal(nonNil(msg.FilterFlags))
	if err != nil {
		return fmt.Errorf("failed to marshal filter flags: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO messages (id, content, message_type, sender_id, recipient_id,
			conversation_type, order_id, conversation_id, status, is_read,
			attachments, is_filtered, filtered_content, filter_flags,
			flagged_for_review, reply_to)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at, updated_at`,
		msg.ID, msg.Content, msg.MessageType, msg.SenderID, msg.RecipientID,
		msg.ConversationType, msg.OrderID, msg.ConversationID, msg.Status, msg.IsRead,
		attachments, msg.IsFiltered, msg.FilteredContent, flags,
		msg.FlaggedForReview, msg.ReplyTo,
	).Scan(&msg.CreatedAt, &msg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, messageID)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *Store) ConversationMessages(ctx context.Context, conversationID string, offset, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC, seq DESC
		OFFSET $2 LIMIT $3`,
		conversationID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	return collectMessages(rows)
}

func (s *Store) CountConversationMessages(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE conversation_id = $1`,
		conversationID).Scan(&count)
	return count, err
}

func (s *Store) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM messages
			WHERE conversation_id = $1 AND (sender_id = $2 OR recipient_id = $2)
		)`, conversationID, userID).Scan(&exists)
	return exists, err
}

func (s *Store) MarkMessageRead(ctx context.Context, messageID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_read = TRUE, status = 'read', read_at = $2, updated_at = $2
		WHERE id = $1 AND is_read = FALSE`,
		messageID, at)
	if err != nil {
		return false, fmt.Errorf("failed to mark message read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM messages WHERE id = $1)`, messageID).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, storage.ErrNotFound
	}
	return false, nil
}

// MarkConversationRead is a single conditional UPDATE, so a concurrent
// insert is either fully swept or left untouched.
func (s *Store) MarkConversationRead(ctx context.Context, conversationID, readerID string, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_read = TRUE, status = 'read', read_at = $3, updated_at = $3
		WHERE conversation_id = $1 AND recipient_id = $2 AND is_read = FALSE`,
		conversationID, readerID, at)
	if err != nil {
		return 0, fmt.Errorf("failed to mark conversation read: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE recipient_id = $1 AND is_read = FALSE`,
		userID).Scan(&count)
	return count, err
}

// ListConversations groups the message log at read time; there is no
// summary table to drift out of date.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH mine AS (
			SELECT * FROM messages WHERE sender_id = $1
			UNION ALL
			SELECT * FROM messages WHERE recipient_id = $1 AND sender_id <> $1
		), ranked AS (
			SELECT mine.*,
				ROW_NUMBER() OVER (PARTITION BY conversation_id ORDER BY created_at DESC, seq DESC) AS rn,
				COUNT(*) FILTER (WHERE recipient_id = $1 AND is_read = FALSE)
					OVER (PARTITION BY conversation_id) AS unread
			FROM mine
		)
		SELECT `+messageColumns+`, unread FROM ranked
		WHERE rn = 1
		ORDER BY created_at DESC, seq DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	summaries := []models.ConversationSummary{}
	for rows.Next() {
		var unread int
		msg, err := scanMessage(rows, &unread)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, models.ConversationSummary{
			ConversationID:   msg.ConversationID,
			ConversationType: msg.ConversationType,
			OrderID:          msg.OrderID,
			LastMessage:      *msg,
			UnreadCount:      unread,
		})
	}
	return summaries, rows.Err()
}

func (s *Store) ListFlagged(ctx context.Context, offset, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE flagged_for_review = TRUE
		ORDER BY created_at DESC, seq DESC
		OFFSET $1 LIMIT $2`,
		offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query flagged messages: %w", err)
	}
	return collectMessages(rows)
}

func (s *Store) CountFlagged(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE flagged_for_review = TRUE`).Scan(&count)
	return count, err
}

func (s *Store) MarkReviewed(ctx context.Context, messageID, reviewerID, decision string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET reviewed_by = $2, review_decision = $3, reviewed_at = $4, updated_at = $4
		WHERE id = $1`,
		messageID, reviewerID, decision, at)
	if err != nil {
		return fmt.Errorf("failed to record review: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func collectMessages(rows *sql.Rows) ([]models.Message, error) {
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *msg)
	}
	return msgs, rows.Err()
}

// scanMessage reads messageColumns followed by any extra destinations.
func scanMessage(row rowScanner, extra ...any) (*models.Message, error) {
	var (
		msg                          models.Message
		readAt, reviewedAt, editedAt sql.NullTime
		attachmentsJSON, flagsJSON   []byte
	)

	dest := []any{
		&msg.ID, &msg.Content, &msg.MessageType, &msg.SenderID, &msg.RecipientID, &msg.ConversationType,
		&msg.OrderID, &msg.ConversationID, &msg.Status, &msg.IsRead, &readAt, &attachmentsJSON,
		&msg.IsFiltered, &msg.FilteredContent, &flagsJSON,
		&msg.FlaggedForReview, &msg.ReviewedBy, &reviewedAt, &msg.ReviewDecision,
		&msg.ReplyTo, &msg.CreatedAt, &msg.UpdatedAt, &editedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(attachmentsJSON, &msg.Attachments); err != nil {
		return nil, fmt.Errorf("failed to decode attachments for %s: %w", msg.ID, err)
	}
	if err := json.Unmarshal(flagsJSON, &msg.FilterFlags); err != nil {
		return nil, fmt.Errorf("failed to decode filter flags for %s: %w", msg.ID, err)
	}
	if len(msg.Attachments) == 0 {
		msg.Attachments = nil
	}
	if len(msg.FilterFlags) == 0 {
		msg.FilterFlags = nil
	}
	msg.ReadAt = timePtr(readAt)
	msg.ReviewedAt = timePtr(reviewedAt)
	msg.EditedAt = timePtr(editedAt)

	return &msg, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
