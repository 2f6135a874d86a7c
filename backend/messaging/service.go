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

// Package messaging is the send and read path of the message log. It
// validates, keys and filters outgoing messages, then hands side effects to
// best-effort sinks that never fail a send.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/efchatnet/efmod/backend/access"
	"github.com/efchatnet/efmod/backend/apperr"
	"github.com/efchatnet/efmod/backend/conversation"
	"github.com/efchatnet/efmod/backend/filter"
	"github.com/efchatnet/efmod/backend/logger"
	"github.com/efchatnet/efmod/backend/metrics"
	"github.com/efchatnet/efmod/backend/models"
	"github.com/efchatnet/efmod/backend/storage"
)

const (
	DefaultMaxContentLength = 2000
	DefaultMaxAttachments   = 10
	defaultNotifyTimeout    = 5 * time.Second
)

// Scanner inspects and redacts message text.
type Scanner interface {
	Scan(text string) (filter.Result, error)
}

// DeliveryNotifier pushes real-time updates to a recipient.
type DeliveryNotifier interface {
	NotifyNewMessage(ctx context.Context, msg models.Message, unread int) error
	NotifyUnread(ctx context.Context, userID string, unread int) error
}

// FlagSink receives every message stored with filter flags.
type FlagSink interface {
	Flagged(ctx context.Context, msg models.Message) error
}

// Config wires a Service. Store, Filter and Guard are required.
type Config struct {
	Store      storage.MessageStore
	Filter     Scanner
	Guard      *access.Guard
	Directory  storage.Directory
	Delivery   DeliveryNotifier
	Moderation FlagSink
	Metrics    *metrics.Metrics
	Logger     *logger.Logger

	MaxContentLength int
	MaxAttachments   int
	NotifyTimeout    time.Duration
}

type Service struct {
	store      storage.MessageStore
	filter     Scanner
	guard      *access.Guard
	directory  storage.Directory
	delivery   DeliveryNotifier
	moderation FlagSink
	metrics    *metrics.Metrics
	log        *logger.Logger

	maxLength      int
	maxAttachments int
	notifyTimeout  time.Duration
	now            func() time.Time

	wg sync.WaitGroup
}

func NewService(cfg Config) *Service {
	s := &Service{
		store:          cfg.Store,
		filter:         cfg.Filter,
		guard:          cfg.Guard,
		directory:      cfg.Directory,
		delivery:       cfg.Delivery,
		moderation:     cfg.Moderation,
		metrics:        cfg.Metrics,
		log:            cfg.Logger,
		maxLength:      cfg.MaxContentLength,
		maxAttachments: cfg.MaxAttachments,
		notifyTimeout:  cfg.NotifyTimeout,
		now:            time.Now,
	}
	if s.log == nil {
		s.log = logger.NewNop()
	}
	s.log = s.log.With("component", "MessageService")
	if s.maxLength <= 0 {
		s.maxLength = DefaultMaxContentLength
	}
	if s.maxAttachments <= 0 {
		s.maxAttachments = DefaultMaxAttachments
	}
	if s.notifyTimeout <= 0 {
		s.notifyTimeout = defaultNotifyTimeout
	}
	return s
}

// SendRequest is the body of a send. The sender always comes from the
// authenticated caller.
type SendRequest struct {
	Content          string                  `json:"content"`
	RecipientID      string                  `json:"recipient_id"`
	ConversationType models.ConversationType `json:"conversation_type"`
	MessageType      models.MessageType      `json:"message_type,omitempty"`
	OrderID          string                  `json:"order_id,omitempty"`
	Attachments      []models.Attachment     `json:"attachments,omitempty"`
	ReplyTo          string                  `json:"reply_to,omitempty"`
}

// Send validates, keys, filters and persists one message. The returned
// message carries the stored (possibly redacted) content.
func (s *Service) Send(ctx context.Context, caller access.Caller, req SendRequest) (*models.Message, error) {
	if req.MessageType == "" {
		req.MessageType = models.MessageTypeText
	}

	if s.directory != nil {
		sender, err := s.resolve(ctx, caller.ID, "sender")
		if err != nil {
			return nil, err
		}
		if sender.Role != "" {
			caller.Role = sender.Role
		}
	}
	staff := s.guard.IsStaff(caller.Role)

	if err := s.validate(req, staff); err != nil {
		return nil, err
	}

	recipientID, conversationID, err := s.route(caller.ID, staff, req)
	if err != nil {
		return nil, err
	}

	if s.directory != nil {
		if err := s.checkParties(ctx, caller.Role, recipientID, req); err != nil {
			return nil, err
		}
	}

	if req.ReplyTo != "" {
		parent, err := s.store.GetMessage(ctx, req.ReplyTo)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.Validation("reply target does not exist")
		}
		if err != nil {
			return nil, fmt.Errorf("get reply target: %w", err)
		}
		if parent.ConversationID != conversationID {
			return nil, apperr.Validation("reply target belongs to another conversation")
		}
	}

	result, err := s.filter.Scan(req.Content)
	if errors.Is(err, filter.ErrInvalidText) {
		return nil, apperr.Validation("content must be valid UTF-8 text")
	}
	if err != nil {
		return nil, fmt.Errorf("scan content: %w", err)
	}

	msg := &models.Message{
		ID:               uuid.New().String(),
		Content:          result.RedactedText,
		MessageType:      req.MessageType,
		SenderID:         caller.ID,
		RecipientID:      recipientID,
		ConversationType: req.ConversationType,
		OrderID:          req.OrderID,
		ConversationID:   conversationID,
		Status:           models.StatusSent,
		Attachments:      req.Attachments,
		ReplyTo:          req.ReplyTo,
	}
	if result.Flagged() {
		msg.IsFiltered = true
		msg.FilteredContent = result.RedactedText
		msg.FilterFlags = result.Flags
		msg.FlaggedForReview = true
	}

	if err := s.store.InsertMessage(ctx, msg); err != nil {
		s.log.Error("failed to store message",
			"operation", "send",
			"conversation_id", conversationID,
			"message_id", msg.ID,
			"error", err,
		)
		return nil, fmt.Errorf("insert message: %w", err)
	}

	s.metrics.MessageSent(string(msg.ConversationType))
	for _, f := range msg.FilterFlags {
		s.metrics.FilterFlag(string(f.Type))
	}
	s.log.Debug("message sent",
		"message_id", msg.ID,
		"conversation_id", conversationID,
		"sender_id", caller.ID,
		"filtered", msg.IsFiltered,
	)

	sent := *msg
	if s.delivery != nil {
		s.background("delivery", func(ctx context.Context) error {
			unread, err := s.store.CountUnread(ctx, sent.RecipientID)
			if err != nil {
				return err
			}
			return s.delivery.NotifyNewMessage(ctx, sent, unread)
		})
	}
	if msg.FlaggedForReview && s.moderation != nil {
		s.background("moderation", func(ctx context.Context) error {
			return s.moderation.Flagged(ctx, sent)
		})
	}
	return msg, nil
}

func (s *Service) validate(req SendRequest, staff bool) error {
	if strings.TrimSpace(req.Content) == "" {
		return apperr.Validation("content is required")
	}
	if !utf8.ValidString(req.Content) {
		return apperr.Validation("content must be valid UTF-8 text")
	}
	if utf8.RuneCountInString(req.Content) > s.maxLength {
		return apperr.Validation("content exceeds %d characters", s.maxLength)
	}
	if !req.ConversationType.Valid() {
		return apperr.Validation("invalid conversation type")
	}
	if !req.MessageType.Valid() {
		return apperr.Validation("invalid message type")
	}
	switch req.MessageType {
	case models.MessageTypeSystem, models.MessageTypeNotification:
		if !staff {
			return apperr.Denied()
		}
	case models.MessageTypeFile:
		if len(req.Attachments) == 0 {
			return apperr.Validation("file messages need at least one attachment")
		}
	}
	if len(req.Attachments) > s.maxAttachments {
		return apperr.Validation("at most %d attachments are allowed", s.maxAttachments)
	}
	for _, a := range req.Attachments {
		if a.Filename == "" || a.Path == "" {
			return apperr.Validation("attachments need a filename and path")
		}
		if a.Size < 0 {
			return apperr.Validation("attachment size must not be negative")
		}
	}
	return nil
}

// route picks the stored recipient and the conversation key. Non-staff
// messages in support conversations go to the support queue.
func (s *Service) route(senderID string, staff bool, req SendRequest) (string, string, error) {
	if req.ConversationType.IsSupport() && !staff {
		key, err := conversation.DeriveSupportKey(senderID, req.OrderID)
		if err != nil {
			return "", "", apperr.Validation("%s", err.Error())
		}
		return models.SupportQueueID, key, nil
	}

	if req.RecipientID == "" {
		return "", "", apperr.Validation("recipient is required")
	}
	if req.RecipientID == senderID {
		return "", "", apperr.Validation("cannot send a message to yourself")
	}

	var (
		key string
		err error
	)
	if req.ConversationType.IsSupport() {
		key, err = conversation.DeriveSupportKey(req.RecipientID, req.OrderID)
	} else {
		key, err = conversation.DeriveKey(senderID, req.RecipientID, req.OrderID)
	}
	if err != nil {
		return "", "", apperr.Validation("%s", err.Error())
	}
	return req.RecipientID, key, nil
}

func (s *Service) resolve(ctx context.Context, userID, what string) (*models.User, error) {
	u, err := s.directory.ResolveUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.Validation("%s not found", what)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", what, err)
	}
	return u, nil
}

// checkParties matches the conversation type against directory roles and
// verifies the order reference.
func (s *Service) checkParties(ctx context.Context, senderRole, recipientID string, req SendRequest) error {
	recipientRole := ""
	if recipientID != models.SupportQueueID {
		u, err := s.resolve(ctx, recipientID, "recipient")
		if err != nil {
			return err
		}
		recipientRole = u.Role
	}
	// A directory without role data only proves the recipient exists.
	rolesKnown := senderRole != "" && (recipientID == models.SupportQueueID || recipientRole != "")
	if rolesKnown && !s.rolesMatch(req.ConversationType, strings.ToLower(senderRole), strings.ToLower(recipientRole)) {
		return apperr.Validation("conversation type %s does not fit the participants", req.ConversationType)
	}

	if req.OrderID != "" {
		ok, err := s.directory.OrderExists(ctx, req.OrderID)
		if err != nil {
			return fmt.Errorf("lookup order: %w", err)
		}
		if !ok {
			return apperr.Validation("order not found")
		}
	}
	return nil
}

func (s *Service) rolesMatch(t models.ConversationType, senderRole, recipientRole string) bool {
	switch t {
	case models.ConversationClientWriter:
		return (senderRole == access.RoleClient && recipientRole == access.RoleWriter) ||
			(senderRole == access.RoleWriter && recipientRole == access.RoleClient)
	case models.ConversationAdminUser:
		return s.guard.IsStaff(senderRole) || s.guard.IsStaff(recipientRole)
	case models.ConversationClientSupport, models.ConversationWriterSupport:
		want := access.RoleClient
		if t == models.ConversationWriterSupport {
			want = access.RoleWriter
		}
		if s.guard.IsStaff(senderRole) {
			return recipientRole == want
		}
		return senderRole == want
	}
	return false
}

// GetConversation returns one newest-first page of a conversation.
func (s *Service) GetConversation(ctx context.Context, caller access.Caller, conversationID string, page, limit int) (models.Page, error) {
	if err := s.guard.Authorize(ctx, caller, conversationID); err != nil {
		return models.Page{}, err
	}
	page, limit = models.ClampPage(page, limit)

	total, err := s.store.CountConversationMessages(ctx, conversationID)
	if err != nil {
		return models.Page{}, fmt.Errorf("count messages: %w", err)
	}
	if total == 0 {
		return models.Page{}, apperr.NotFound("conversation")
	}

	msgs, err := s.store.ConversationMessages(ctx, conversationID, models.Offset(page, limit), limit)
	if err != nil {
		s.log.Error("failed to load conversation",
			"operation", "get_conversation",
			"conversation_id", conversationID,
			"error", err,
		)
		return models.Page{}, fmt.Errorf("load messages: %w", err)
	}
	return models.NewPage(msgs, page, limit, total), nil
}

// MarkRead marks one message read. Only its recipient may do so; staff act
// as the recipient of messages addressed to the support queue.
func (s *Service) MarkRead(ctx context.Context, caller access.Caller, messageID string) (*models.Message, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("message")
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}

	reader := s.readerFor(caller, msg.ConversationID)
	if msg.RecipientID != reader {
		return nil, apperr.Denied()
	}

	at := s.now().UTC()
	changed, err := s.store.MarkMessageRead(ctx, messageID, at)
	if err != nil {
		s.log.Error("failed to mark message read",
			"operation", "mark_read",
			"message_id", messageID,
			"error", err,
		)
		return nil, fmt.Errorf("mark read: %w", err)
	}
	if changed {
		msg.IsRead = true
		msg.Status = models.StatusRead
		msg.ReadAt = &at
		s.pushUnread(reader)
	}
	return msg, nil
}

// MarkConversationRead marks every unread message addressed to the caller
// in the conversation and returns how many changed.
func (s *Service) MarkConversationRead(ctx context.Context, caller access.Caller, conversationID string) (int, error) {
	if err := s.guard.Authorize(ctx, caller, conversationID); err != nil {
		return 0, err
	}

	total, err := s.store.CountConversationMessages(ctx, conversationID)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	if total == 0 {
		return 0, apperr.NotFound("conversation")
	}

	reader := s.readerFor(caller, conversationID)
	changed, err := s.store.MarkConversationRead(ctx, conversationID, reader, s.now().UTC())
	if err != nil {
		s.log.Error("failed to mark conversation read",
			"operation", "mark_conversation_read",
			"conversation_id", conversationID,
			"reader_id", reader,
			"error", err,
		)
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	if changed > 0 {
		s.pushUnread(reader)
	}
	return changed, nil
}

// readerFor maps staff in a support conversation onto the support queue,
// which owns the read state of messages nobody addressed personally.
func (s *Service) readerFor(caller access.Caller, conversationID string) string {
	if s.guard.IsStaff(caller.Role) && conversation.IsSupportKey(conversationID) {
		return models.SupportQueueID
	}
	return caller.ID
}

func (s *Service) UnreadCount(ctx context.Context, caller access.Caller) (int, error) {
	n, err := s.store.CountUnread(ctx, caller.ID)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

// ListConversations summarises every conversation the caller sent or
// received in, most recent first.
func (s *Service) ListConversations(ctx context.Context, caller access.Caller) ([]models.ConversationSummary, error) {
	convs, err := s.store.ListConversations(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

func (s *Service) pushUnread(userID string) {
	if s.delivery == nil {
		return
	}
	s.background("delivery", func(ctx context.Context) error {
		unread, err := s.store.CountUnread(ctx, userID)
		if err != nil {
			return err
		}
		return s.delivery.NotifyUnread(ctx, userID, unread)
	})
}

// background runs fn detached from the request context with its own
// timeout. Failures are logged and counted, never returned.
func (s *Service) background(sink string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			s.metrics.NotifyFailure(sink)
			s.log.Warn("notification failed", "sink", sink, "error", err)
		}
	}()
}

// Wait blocks until every pending notification has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}
