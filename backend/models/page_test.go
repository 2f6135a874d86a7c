// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampPage(t *testing.T) {
	tests := []struct {
		page, limit         int
		wantPage, wantLimit int
	}{
		{0, 0, 1, DefaultPageSize},
		{2, 10, 2, 10},
		{-3, 500, 1, MaxPageSize},
		{1, 100, 1, 100},
		{math.MaxInt64, 50, MaxPage, 50},
	}
	for _, tt := range tests {
		p, l := ClampPage(tt.page, tt.limit)
		assert.Equal(t, tt.wantPage, p)
		assert.Equal(t, tt.wantLimit, l)
	}
}

func TestNewPage(t *testing.T) {
	p := NewPage(nil, 2, 10, 15)
	assert.Equal(t, 2, p.Pages)
	assert.NotNil(t, p.Messages)
	assert.Equal(t, 10, Offset(2, 10))

	assert.Equal(t, 0, NewPage(nil, 1, 10, 0).Pages)
}

func TestPublicView(t *testing.T) {
	m := Message{
		ID:               "m1",
		Content:          "reach me at [EMAIL FILTERED]",
		IsFiltered:       true,
		FilteredContent:  "reach me at [EMAIL FILTERED]",
		FilterFlags:      []FilterFlag{{Type: FlagEmail, Detected: "a@b.com"}},
		FlaggedForReview: true,
		ReviewedBy:       "mod",
		ReviewDecision:   "dismiss",
	}

	pub := m.PublicView()
	assert.Equal(t, m.Content, pub.Content)
	assert.True(t, pub.IsFiltered)
	assert.Empty(t, pub.FilteredContent)
	assert.Nil(t, pub.FilterFlags)
	assert.False(t, pub.FlaggedForReview)
	assert.Empty(t, pub.ReviewedBy)
	assert.Empty(t, pub.ReviewDecision)

	// The receiver is a copy.
	assert.Len(t, m.FilterFlags, 1)
}

func TestOffset_HugePageStaysPositive(t *testing.T) {
	for _, page := range []int{math.MaxInt64, 184467440737095517, MaxPage + 1} {
		for _, limit := range []int{1, 50, MaxPageSize} {
			off := Offset(ClampPage(page, limit))
			assert.Positive(t, off)
			assert.LessOrEqual(t, off, math.MaxInt32)
		}
	}
	assert.Equal(t, (MaxPage-1)*MaxPageSize, Offset(math.MaxInt64, math.MaxInt64))
}
