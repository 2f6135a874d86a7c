// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package models

import "math"

const (
	DefaultPageSize = 50
	MaxPageSize     = 100

	// MaxPage keeps the row offset inside a 32-bit integer at any limit.
	MaxPage = math.MaxInt32/MaxPageSize + 1
)

// Page is one newest-first slice of messages.
type Page struct {
	Messages []Message `json:"messages"`
	Page     int       `json:"page"`
	Limit    int       `json:"limit"`
	Total    int       `json:"total"`
	Pages    int       `json:"pages"`
}

// ClampPage applies the default page size and the upper bounds on page and
// limit.
func ClampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

// Offset is the number of rows skipped before page. Arguments are clamped
// first, so the result is never negative.
func Offset(page, limit int) int {
	page, limit = ClampPage(page, limit)
	return (page - 1) * limit
}

func NewPage(messages []Message, page, limit, total int) Page {
	if messages == nil {
		messages = []Message{}
	}
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Page{Messages: messages, Page: page, Limit: limit, Total: total, Pages: pages}
}
