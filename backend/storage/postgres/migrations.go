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
	"fmt"
)

func (s *Store) Migrate(ctx context.Context) error {
	migrations := []string{
		// Append-mostly message log. seq breaks created_at ties in commit order.
		`CREATE TABLE IF NOT EXISTS messages (
			id VARCHAR(64) PRIMARY KEY,
			seq BIGSERIAL UNIQUE,
			content VARCHAR(8000) NOT NULL,
			message_type VARCHAR(20) NOT NULL DEFAULT 'text'
				CHECK (message_type IN ('text', 'file', 'system', 'notification')),
			sender_id VARCHAR(255) NOT NULL,
			recipient_id VARCHAR(255) NOT NULL,
			conversation_type VARCHAR(20) NOT NULL
				CHECK (conversation_type IN ('client-writer', 'client-support', 'writer-support', 'admin-user')),
			order_id VARCHAR(255) NOT NULL DEFAULT '',
			conversation_id VARCHAR(800) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'sent'
				CHECK (status IN ('sent', 'delivered', 'read', 'failed')),
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			read_at TIMESTAMPTZ,
			attachments JSONB NOT NULL DEFAULT '[]',
			is_filtered BOOLEAN NOT NULL DEFAULT FALSE,
			filtered_content VARCHAR(8000) NOT NULL DEFAULT '',
			filter_flags JSONB NOT NULL DEFAULT '[]',
			flagged_for_review BOOLEAN NOT NULL DEFAULT FALSE,
			reviewed_by VARCHAR(255) NOT NULL DEFAULT '',
			reviewed_at TIMESTAMPTZ,
			review_decision VARCHAR(32) NOT NULL DEFAULT '',
			reply_to VARCHAR(64) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
			edited_at TIMESTAMPTZ,
			CONSTRAINT no_self_message CHECK (sender_id <> recipient_id),
			CONSTRAINT flags_imply_review CHECK (
				jsonb_array_length(filter_flags) = 0
				OR (is_filtered AND flagged_for_review AND content = filtered_content)
			)
		)`,

		// Thread retrieval
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation
		ON messages(conversation_id, created_at DESC, seq DESC)`,

		// Unread counts
		`CREATE INDEX IF NOT EXISTS idx_messages_unread
		ON messages(recipient_id, is_read)`,

		// Conversation list for the sending side
		`CREATE INDEX IF NOT EXISTS idx_messages_sender
		ON messages(sender_id, conversation_id)`,

		// Moderation queue
		`CREATE INDEX IF NOT EXISTS idx_messages_flagged
		ON messages(created_at DESC, seq DESC)
		WHERE flagged_for_review = TRUE`,
	}

	for i, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}

	return nil
}
