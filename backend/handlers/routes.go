// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Register mounts the messaging API on api. sendLimit wraps only the send
// route and may be nil.
func Register(api *mux.Router, mh *MessageHandler, modh *ModerationHandler, sendLimit func(http.Handler) http.Handler) {
	send := http.Handler(http.HandlerFunc(mh.SendMessage))
	if sendLimit != nil {
		send = sendLimit(send)
	}

	api.Handle("/send", send).Methods("POST", "OPTIONS")
	api.HandleFunc("/conversation/{conversationId}", mh.GetConversation).Methods("GET", "OPTIONS")
	api.HandleFunc("/conversation/{conversationId}/read", mh.MarkConversationRead).Methods("PUT", "OPTIONS")
	api.HandleFunc("/unread-count", mh.GetUnreadCount).Methods("GET", "OPTIONS")
	api.HandleFunc("/conversations", mh.ListConversations).Methods("GET", "OPTIONS")

	// Moderation endpoints
	api.HandleFunc("/flagged", modh.ListFlagged).Methods("GET", "OPTIONS")
	api.HandleFunc("/review/{messageId}", modh.Review).Methods("PUT", "OPTIONS")

	// Registered last so the fixed paths above win.
	api.HandleFunc("/{messageId}/read", mh.MarkMessageRead).Methods("PUT", "OPTIONS")
}
