// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func observed() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return &Logger{sugar: zap.New(core).Sugar(), salt: "pepper"}, logs
}

func TestSanitize(t *testing.T) {
	l, logs := observed()

	l.Info("send", "content", "call me on 555-123-4567", "sender_id", "u1", "conversation_id", "a_b", "jwt_token", "abc")

	entries := logs.All()
	assert.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["content"])
	assert.Equal(t, "[REDACTED]", fields["jwt_token"])
	assert.Equal(t, "a_b", fields["conversation_id"])
	assert.Regexp(t, `^hash:[0-9a-f]{12}$`, fields["sender_id"])
	assert.NotEqual(t, "u1", fields["sender_id"])
}

func TestHashIsStable(t *testing.T) {
	l, _ := observed()
	assert.Equal(t, l.hash("u1"), l.hash("u1"))
	assert.NotEqual(t, l.hash("u1"), l.hash("u2"))
	assert.Equal(t, "", l.hash(""))
}

func TestWithKeepsSanitizing(t *testing.T) {
	l, logs := observed()
	l.With("component", "test", "reader_id", "u9").Warn("odd", "detected", "x@y.com")

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "test", fields["component"])
	assert.Equal(t, "[REDACTED]", fields["detected"])
	assert.Regexp(t, `^hash:`, fields["reader_id"])
}

func TestOddKeyValues(t *testing.T) {
	l, logs := observed()
	l.Debug("dangling", "only_key")
	assert.NotEmpty(t, logs.FilterMessage("dangling").All())
}
