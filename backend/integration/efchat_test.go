// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/efmod/backend/apperr"
	"github.com/efchatnet/efmod/backend/middleware"
	"github.com/efchatnet/efmod/backend/models"
)

type recordingEvents struct {
	flagged chan models.Message
}

func (r *recordingEvents) MessageFlagged(_ context.Context, msg models.Message) error {
	r.flagged <- msg
	return nil
}

func (r *recordingEvents) MessageReviewed(context.Context, models.Message) error {
	return nil
}

func TestModule_EndToEnd(t *testing.T) {
	events := &recordingEvents{flagged: make(chan models.Message, 1)}
	m, err := NewModule(context.Background(), &Config{
		JWTSecret: "secret",
		JWTIssuer: "efchat",
		Events:    events,
	})
	require.NoError(t, err)
	t.Cleanup(m.Close)
	require.NoError(t, m.ValidateSetup(context.Background()))

	r := mux.NewRouter()
	m.RegisterRoutes(r, nil)
	r.HandleFunc("/health", m.Health)

	tok, err := middleware.NewToken("secret", middleware.Claims{
		UserID: "alice",
		Role:   "client",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "efchat",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)

	body := `{"content":"call 555-123-4567","recipient_id":"bob","conversation_type":"client-writer"}`
	req := httptest.NewRequest(http.MethodPost, "/api/messages/send", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "[PHONE FILTERED]")

	select {
	case msg := <-events.flagged:
		assert.Equal(t, "alice_bob", msg.ConversationID)
	case <-time.After(2 * time.Second):
		t.Fatal("flagged event was not published")
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestModule_ValidateSetup(t *testing.T) {
	m, err := NewModule(context.Background(), &Config{})
	require.NoError(t, err)

	var vErr *apperr.ValidationError
	assert.ErrorAs(t, m.ValidateSetup(context.Background()), &vErr)
}
