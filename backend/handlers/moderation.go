// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/efchatnet/efmod/backend/access"
	"github.com/efchatnet/efmod/backend/logger"
	"github.com/efchatnet/efmod/backend/moderation"
)

type ModerationHandler struct {
	queue      *moderation.Queue
	privileged access.Roles
	log        *logger.Logger
}

func NewModerationHandler(queue *moderation.Queue, privileged access.Roles, log *logger.Logger) *ModerationHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &ModerationHandler{queue: queue, privileged: privileged, log: log.With("component", "ModerationHandler")}
}

// ListFlagged returns flagged messages with their moderation metadata
func (h *ModerationHandler) ListFlagged(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r, h.privileged)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	page, limit := pageParams(r)

	result, err := h.queue.List(r.Context(), caller, page, limit)
	if err != nil {
		writeError(w, h.log, "list_flagged", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Review records the moderator's decision on a flagged message
func (h *ModerationHandler) Review(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r, h.privileged)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	messageID := mux.Vars(r)["messageId"]

	var req struct {
		Decision moderation.Decision `json:"decision"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	msg, err := h.queue.Review(r.Context(), caller, messageID, req.Decision)
	if err != nil {
		writeError(w, h.log, "review", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "reviewed",
		"message": msg,
	})
}
