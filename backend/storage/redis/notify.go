// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/efchatnet/efmod/backend/models"
)

const (
	// msg:notify:{userId} - per-user delivery channel
	notifyPrefix = "msg:notify:"

	EventNewMessage    = "new_message"
	EventUnreadChanged = "unread_changed"
)

// Notification is the payload published to a user's delivery channel.
// It never carries message content.
type Notification struct {
	Type           string    `json:"type"`
	MessageID      string    `json:"message_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	SenderID       string    `json:"sender_id,omitempty"`
	MessageType    string    `json:"message_type,omitempty"`
	UnreadCount    int       `json:"unread_count"`
	SentAt         time.Time `json:"sent_at"`
}

type Notifier struct {
	rdb *redis.Client
}

func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

func Channel(userID string) string {
	return notifyPrefix + userID
}

// NotifyNewMessage tells the recipient a message arrived and how many are unread.
func (n *Notifier) NotifyNewMessage(ctx context.Context, msg models.Message, unread int) error {
	return n.publish(ctx, msg.RecipientID, Notification{
		Type:           EventNewMessage,
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		MessageType:    string(msg.MessageType),
		UnreadCount:    unread,
		SentAt:         msg.CreatedAt,
	})
}

// NotifyUnread pushes a fresh unread count, e.g. after a read sweep.
func (n *Notifier) NotifyUnread(ctx context.Context, userID string, unread int) error {
	return n.publish(ctx, userID, Notification{
		Type:        EventUnreadChanged,
		UnreadCount: unread,
		SentAt:      time.Now().UTC(),
	})
}

func (n *Notifier) publish(ctx context.Context, userID string, notification Notification) error {
	data, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := n.rdb.Publish(ctx, Channel(userID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Subscribe returns the real-time delivery stream for a user.
func (n *Notifier) Subscribe(ctx context.Context, userID string) *redis.PubSub {
	return n.rdb.Subscribe(ctx, Channel(userID))
}

// Decode parses a payload received from Subscribe.
func Decode(msg *redis.Message) (Notification, error) {
	var notification Notification
	if err := json.Unmarshal([]byte(msg.Payload), &notification); err != nil {
		return Notification{}, fmt.Errorf("failed to decode notification: %w", err)
	}
	return notification, nil
}
