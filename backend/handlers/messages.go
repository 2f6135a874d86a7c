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

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/efchatnet/efmod/backend/access"
	"github.com/efchatnet/efmod/backend/logger"
	"github.com/efchatnet/efmod/backend/messaging"
	"github.com/efchatnet/efmod/backend/models"
)

// ModeratorCheck reports whether a role may see moderation metadata.
type ModeratorCheck func(role string) bool

type MessageHandler struct {
	svc         *messaging.Service
	isModerator ModeratorCheck
	privileged  access.Roles
	log         *logger.Logger
}

func NewMessageHandler(svc *messaging.Service, isModerator ModeratorCheck, privileged access.Roles, log *logger.Logger) *MessageHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &MessageHandler{
		svc:         svc,
		isModerator: isModerator,
		privileged:  privileged,
		log:         log.With("component", "MessageHandler"),
	}
}

// view hides moderation metadata from non-moderators.
func (h *MessageHandler) view(caller access.Caller, m models.Message) models.Message {
	if h.isModerator != nil && h.isModerator(caller.Role) {
		return m
	}
	return m.PublicView()
}

// SendMessage handles sending a message on behalf of the authenticated user
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r, h.privileged)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req messaging.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	msg, err := h.svc.Send(r.Context(), caller, req)
	if err != nil {
		writeError(w, h.log, "send", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": h.view(caller, *msg),
	})
}

// GetConversation returns one page of a conversation, newest first
func (h *MessageHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r, h.privileged)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	conversationID := mux.Vars(r)["conversationId"]
	page, limit := pageParams(r)

	result, err := h.svc.GetConversation(r.Context(), caller, conversationID, page, limit)
	if err != nil {
		writeError(w, h.log, "get_conversation", err)
		return
	}
	for i := range result.Messages {
		result.Messages[i] = h.view(caller, result.Messages[i])
	}

	writeJSON(w, http.StatusOK, result)
}

// MarkConversationRead marks every message addressed to the caller as read
func (h *MessageHandler) MarkConversationRead(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r, h.privileged)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	conversationID := mux.Vars(r)["conversationId"]

	changed, err := h.svc.MarkConversationRead(r.Context(), caller, conversationID)
	if err != nil {
		writeError(w, h.log, "mark_conversation_read", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "marked_read",
		"updated": changed,
	})
}

// MarkMessageRead marks a single message read. Only its recipient may.
func (h *MessageHandler) MarkMessageRead(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r, h.privileged)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	messageID := mux.Vars(r)["messageId"]

	msg, err := h.svc.MarkRead(r.Context(), caller, messageID)
	if err != nil {
		writeError(w, h.log, "mark_read", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "marked_read",
		"message": h.view(caller, *msg),
	})
}

func (h *MessageHandler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r, h.privileged)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	count, err := h.svc.UnreadCount(r.Context(), caller)
	if err != nil {
		writeError(w, h.log, "unread_count", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"unread_count": count,
	})
}

func (h *MessageHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r, h.privileged)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	convs, err := h.svc.ListConversations(r.Context(), caller)
	if err != nil {
		writeError(w, h.log, "list_conversations", err)
		return
	}
	for i := range convs {
		convs[i].LastMessage = h.view(caller, convs[i].LastMessage)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversations": convs,
		"count":         len(convs),
	})
}
