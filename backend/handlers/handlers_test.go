// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/efmod/backend/access"
	"github.com/efchatnet/efmod/backend/filter"
	"github.com/efchatnet/efmod/backend/messaging"
	"github.com/efchatnet/efmod/backend/middleware"
	"github.com/efchatnet/efmod/backend/models"
	"github.com/efchatnet/efmod/backend/moderation"
	"github.com/efchatnet/efmod/backend/ratelimit"
	"github.com/efchatnet/efmod/backend/storage/memory"
)

const secret = "handler-secret"

type testServer struct {
	router  *mux.Router
	svc     *messaging.Service
	limiter *ratelimit.Limiter
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewStore()
	staff := access.DefaultStaffRoles()
	svc := messaging.NewService(messaging.Config{
		Store:  store,
		Filter: filter.Default(),
		Guard:  access.NewGuard(store, staff),
	})
	t.Cleanup(svc.Wait)
	queue := moderation.NewQueue(store, nil, staff, nil, nil)
	limiter := ratelimit.New(1, 5)

	r := mux.NewRouter()
	api := r.PathPrefix("/api/messages").Subrouter()
	api.Use(middleware.NewAuthMiddleware(secret, "efchat"))
	Register(api,
		NewMessageHandler(svc, queue.IsModerator, staff, nil),
		NewModerationHandler(queue, staff, nil),
		middleware.RateLimit(limiter),
	)
	return &testServer{router: r, svc: svc, limiter: limiter}
}

func bearer(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := middleware.NewToken(secret, middleware.Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "efchat",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)
	return "Bearer " + tok
}

func (s *testServer) do(t *testing.T, method, path, auth string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func sendBody(to, content string) map[string]interface{} {
	return map[string]interface{}{
		"content":           content,
		"recipient_id":      to,
		"conversation_type": "client-writer",
	}
}

func TestSendAndRead(t *testing.T) {
	s := newTestServer(t)
	alice := bearer(t, "alice", "client")
	bob := bearer(t, "bob", "writer")

	rec := s.do(t, http.MethodPost, "/api/messages/send", alice, sendBody("bob", "my email is jane.doe@example.com"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var sent struct {
		Message models.Message `json:"message"`
	}
	decode(t, rec, &sent)
	assert.Contains(t, sent.Message.Content, filter.PlaceholderEmail)
	assert.True(t, sent.Message.IsFiltered)
	// Flag details are for moderators only.
	assert.Empty(t, sent.Message.FilterFlags)
	assert.False(t, sent.Message.FlaggedForReview)
	assert.NotContains(t, rec.Body.String(), "jane.doe@example.com")

	rec = s.do(t, http.MethodGet, "/api/messages/unread-count", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var unread struct {
		UnreadCount int `json:"unread_count"`
	}
	decode(t, rec, &unread)
	assert.Equal(t, 1, unread.UnreadCount)

	rec = s.do(t, http.MethodGet, "/api/messages/conversation/alice_bob", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page models.Page
	decode(t, rec, &page)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, models.DefaultPageSize, page.Limit)
	require.Len(t, page.Messages, 1)

	rec = s.do(t, http.MethodPut, "/api/messages/conversation/alice_bob/read", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"updated":1`)

	rec = s.do(t, http.MethodGet, "/api/messages/unread-count", bob, nil)
	decode(t, rec, &unread)
	assert.Equal(t, 0, unread.UnreadCount)

	rec = s.do(t, http.MethodGet, "/api/messages/conversations", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Conversations []models.ConversationSummary `json:"conversations"`
		Count         int                          `json:"count"`
	}
	decode(t, rec, &list)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, "alice_bob", list.Conversations[0].ConversationID)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	alice := bearer(t, "alice", "client")
	carol := bearer(t, "carol", "writer")
	admin := bearer(t, "root", "admin")

	rec := s.do(t, http.MethodPost, "/api/messages/send", alice, sendBody("bob", "hello"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var sent struct {
		Message models.Message `json:"message"`
	}
	decode(t, rec, &sent)

	tests := []struct {
		name     string
		method   string
		path     string
		auth     string
		body     interface{}
		wantCode int
		wantBody string
	}{
		{"no token", http.MethodGet, "/api/messages/unread-count", "", nil, http.StatusUnauthorized, ""},
		{"empty content", http.MethodPost, "/api/messages/send", alice, sendBody("bob", "   "), http.StatusBadRequest, "content is required"},
		{"oversized", http.MethodPost, "/api/messages/send", alice, sendBody("bob", strings.Repeat("a", 2001)), http.StatusBadRequest, "2000"},
		{"self", http.MethodPost, "/api/messages/send", alice, sendBody("alice", "hi"), http.StatusBadRequest, "yourself"},
		{"outsider reads", http.MethodGet, "/api/messages/conversation/alice_bob", carol, nil, http.StatusForbidden, "access denied"},
		{"outsider marks read", http.MethodPut, "/api/messages/conversation/alice_bob/read", carol, nil, http.StatusForbidden, "access denied"},
		{"admin unknown conversation", http.MethodGet, "/api/messages/conversation/nobody_here", admin, nil, http.StatusNotFound, "not found"},
		{"sender marks own message", http.MethodPut, "/api/messages/" + sent.Message.ID + "/read", alice, nil, http.StatusForbidden, "access denied"},
		{"unknown message", http.MethodPut, "/api/messages/nope/read", alice, nil, http.StatusNotFound, "not found"},
		{"client lists flagged", http.MethodGet, "/api/messages/flagged", alice, nil, http.StatusForbidden, "access denied"},
		{"bad decision", http.MethodPut, "/api/messages/review/" + sent.Message.ID, admin, map[string]string{"decision": "ban"}, http.StatusBadRequest, "decision"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.auth, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			assert.NotContains(t, rec.Body.String(), "bob")
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/messages/send", strings.NewReader("{"))
		req.Header.Set("Authorization", alice)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPaginationParams(t *testing.T) {
	s := newTestServer(t)
	alice := bearer(t, "alice", "client")

	for i := 0; i < 5; i++ {
		s.limiter.Reset("alice")
		rec := s.do(t, http.MethodPost, "/api/messages/send", alice, sendBody("bob", "hello"))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := s.do(t, http.MethodGet, "/api/messages/conversation/alice_bob?page=2&limit=2", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page models.Page
	decode(t, rec, &page)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.Limit)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.Pages)
	assert.Len(t, page.Messages, 2)

	rec = s.do(t, http.MethodGet, "/api/messages/conversation/alice_bob?limit=1000&page=abc", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &page)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, models.MaxPageSize, page.Limit)
}

func TestSendRateLimit(t *testing.T) {
	s := newTestServer(t)
	alice := bearer(t, "alice", "client")

	for i := 0; i < 5; i++ {
		rec := s.do(t, http.MethodPost, "/api/messages/send", alice, sendBody("bob", "hello"))
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec := s.do(t, http.MethodPost, "/api/messages/send", alice, sendBody("bob", "hello"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Reads are not limited.
	rec = s.do(t, http.MethodGet, "/api/messages/unread-count", alice, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	s.limiter.Reset("alice")
	rec = s.do(t, http.MethodPost, "/api/messages/send", alice, sendBody("bob", "hello"))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestModerationFlow(t *testing.T) {
	s := newTestServer(t)
	alice := bearer(t, "alice", "client")
	bob := bearer(t, "bob", "writer")
	mod := bearer(t, "mod1", "support")

	rec := s.do(t, http.MethodPost, "/api/messages/send", alice, sendBody("bob", "let's talk on WhatsApp"))
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = s.do(t, http.MethodPost, "/api/messages/send", alice, sendBody("bob", "clean message"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/messages/flagged", mod, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var flagged models.Page
	decode(t, rec, &flagged)
	require.Equal(t, 1, flagged.Total)
	msg := flagged.Messages[0]
	assert.True(t, msg.FlaggedForReview)
	require.Len(t, msg.FilterFlags, 1)
	assert.Equal(t, "WhatsApp", msg.FilterFlags[0].Detected)

	rec = s.do(t, http.MethodPut, "/api/messages/review/"+msg.ID, mod, map[string]string{"decision": "warn-user"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var reviewed struct {
		Message models.Message `json:"message"`
	}
	decode(t, rec, &reviewed)
	assert.Equal(t, "mod1", reviewed.Message.ReviewedBy)
	assert.Equal(t, "warn-user", reviewed.Message.ReviewDecision)
	assert.True(t, reviewed.Message.FlaggedForReview)

	// Moderators see flag details in conversations, participants do not.
	rec = s.do(t, http.MethodGet, "/api/messages/conversation/alice_bob", mod, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "WhatsApp")

	rec = s.do(t, http.MethodGet, "/api/messages/conversation/alice_bob", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "WhatsApp")
	assert.Contains(t, rec.Body.String(), filter.PlaceholderMessagingApp)

	rec = s.do(t, http.MethodPut, "/api/messages/review/"+msg.ID, bob, map[string]string{"decision": "dismiss"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMarkMessageRead(t *testing.T) {
	s := newTestServer(t)
	alice := bearer(t, "alice", "client")
	bob := bearer(t, "bob", "writer")

	rec := s.do(t, http.MethodPost, "/api/messages/send", alice, sendBody("bob", "hi"))
	require.Equal(t, http.StatusCreated, rec.Code)
	var sent struct {
		Message models.Message `json:"message"`
	}
	decode(t, rec, &sent)

	rec = s.do(t, http.MethodPut, "/api/messages/"+sent.Message.ID+"/read", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var read struct {
		Status  string         `json:"status"`
		Message models.Message `json:"message"`
	}
	decode(t, rec, &read)
	assert.Equal(t, "marked_read", read.Status)
	assert.True(t, read.Message.IsRead)
	assert.Equal(t, models.StatusRead, read.Message.Status)
}
