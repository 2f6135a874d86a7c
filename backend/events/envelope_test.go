// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/efmod/backend/models"
)

func TestFlaggedEnvelope(t *testing.T) {
	created := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	msg := models.Message{
		ID:               "m1",
		ConversationID:   "a_b_o1",
		ConversationType: models.ConversationClientWriter,
		SenderID:         "a",
		RecipientID:      "b",
		OrderID:          "o1",
		CreatedAt:        created,
		FilterFlags: []models.FilterFlag{
			{Type: models.FlagEmail, Detected: "x@y.com"},
			{Type: models.FlagEmail, Detected: "z@y.com"},
			{Type: models.FlagPhone, Detected: "555 123 4567"},
		},
	}

	env := FlaggedEnvelope(msg)
	assert.Equal(t, TypeMessageFlagged, env.Meta.Type)
	assert.Equal(t, "m1", env.Meta.CorrelationID)
	assert.Equal(t, Producer, env.Meta.Producer)
	assert.NotEmpty(t, env.Meta.ID)

	data, ok := env.Data.(MessageFlagged)
	require.True(t, ok)
	assert.Equal(t, []models.FlagType{models.FlagEmail, models.FlagPhone}, data.FlagTypes)
	assert.Equal(t, created, data.FlaggedAt)

	body, err := json.Marshal(env)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "x@y.com")
	assert.NotContains(t, string(body), "555 123 4567")
}

func TestReviewedEnvelope(t *testing.T) {
	at := time.Now().UTC()
	env := ReviewedEnvelope(models.Message{
		ID:             "m2",
		ConversationID: "a_b",
		SenderID:       "a",
		ReviewedBy:     "mod",
		ReviewedAt:     &at,
		ReviewDecision: "warn-user",
	})

	assert.Equal(t, TypeMessageReviewed, env.Meta.Type)
	data := env.Data.(MessageReviewed)
	assert.Equal(t, "mod", data.ReviewerID)
	assert.Equal(t, "warn-user", data.Decision)
	assert.Equal(t, at, data.ReviewedAt)
}

func TestNewEnvelope_CorrelationFallback(t *testing.T) {
	env := NewEnvelope("x.v1", "", nil)
	assert.Equal(t, env.Meta.ID, env.Meta.CorrelationID)
	assert.False(t, env.Meta.Time.IsZero())
}
