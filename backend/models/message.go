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

package models

import "time"

type MessageType string

const (
	MessageTypeText         MessageType = "text"
	MessageTypeFile         MessageType = "file"
	MessageTypeSystem       MessageType = "system"
	MessageTypeNotification MessageType = "notification"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeFile, MessageTypeSystem, MessageTypeNotification:
		return true
	}
	return false
}

type ConversationType string

const (
	ConversationClientWriter  ConversationType = "client-writer"
	ConversationClientSupport ConversationType = "client-support"
	ConversationWriterSupport ConversationType = "writer-support"
	ConversationAdminUser     ConversationType = "admin-user"
)

func (t ConversationType) Valid() bool {
	switch t {
	case ConversationClientWriter, ConversationClientSupport, ConversationWriterSupport, ConversationAdminUser:
		return true
	}
	return false
}

// IsSupport reports whether the conversation is owned by the support queue
// rather than a fixed pair of users.
func (t ConversationType) IsSupport() bool {
	return t == ConversationClientSupport || t == ConversationWriterSupport
}

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

type FlagType string

const (
	FlagEmail         FlagType = "email"
	FlagPhone         FlagType = "phone"
	FlagURL           FlagType = "url"
	FlagSocial        FlagType = "social"
	FlagInappropriate FlagType = "inappropriate"
)

// SupportQueueID is the recipient of support conversation messages that are
// not addressed to a specific staff member.
const SupportQueueID = "support"

// FilterFlag records one detected policy violation. Detected holds the
// original fragment and is only ever shown to moderators.
type FilterFlag struct {
	Type      FlagType  `json:"type"`
	Detected  string    `json:"detected"`
	FlaggedAt time.Time `json:"flagged_at"`
}

// Attachment is an opaque file descriptor produced by the upload service.
type Attachment struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimetype"`
}

type Message struct {
	ID               string           `json:"id" db:"id"`
	Content          string           `json:"content" db:"content"`
	MessageType      MessageType      `json:"message_type" db:"message_type"`
	SenderID         string           `json:"sender_id" db:"sender_id"`
	RecipientID      string           `json:"recipient_id" db:"recipient_id"`
	ConversationType ConversationType `json:"conversation_type" db:"conversation_type"`
	OrderID          string           `json:"order_id,omitempty" db:"order_id"`
	ConversationID   string           `json:"conversation_id" db:"conversation_id"`
	Status           MessageStatus    `json:"status" db:"status"`
	IsRead           bool             `json:"is_read" db:"is_read"`
	ReadAt           *time.Time       `json:"read_at,omitempty" db:"read_at"`
	Attachments      []Attachment     `json:"attachments,omitempty" db:"attachments"`

	IsFiltered      bool         `json:"is_filtered" db:"is_filtered"`
	FilteredContent string       `json:"filtered_content,omitempty" db:"filtered_content"`
	FilterFlags     []FilterFlag `json:"filter_flags,omitempty" db:"filter_flags"`

	FlaggedForReview bool       `json:"flagged_for_review,omitempty" db:"flagged_for_review"`
	ReviewedBy       string     `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt       *time.Time `json:"reviewed_at,omitempty" db:"reviewed_at"`
	ReviewDecision   string     `json:"review_decision,omitempty" db:"review_decision"`

	ReplyTo   string     `json:"reply_to,omitempty" db:"reply_to"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	EditedAt  *time.Time `json:"edited_at,omitempty" db:"edited_at"`
}

// Involves reports whether userID sent or received the message.
func (m *Message) Involves(userID string) bool {
	return m.SenderID == userID || m.RecipientID == userID
}

// PublicView strips moderation metadata for callers without a moderator
// role. IsFiltered stays so clients can show a generic notice.
func (m Message) PublicView() Message {
	m.FilteredContent = ""
	m.FilterFlags = nil
	m.FlaggedForReview = false
	m.ReviewedBy = ""
	m.ReviewedAt = nil
	m.ReviewDecision = ""
	return m
}

// ConversationSummary is computed from the message log on every read.
type ConversationSummary struct {
	ConversationID   string           `json:"conversation_id"`
	ConversationType ConversationType `json:"conversation_type"`
	OrderID          string           `json:"order_id,omitempty"`
	LastMessage      Message          `json:"last_message"`
	UnreadCount      int              `json:"unread_count"`
}

// User is the slice of the identity service this core cares about.
type User struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}
