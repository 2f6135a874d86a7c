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

// Package memory is an in-process MessageStore for tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/efchatnet/efmod/backend/models"
	"github.com/efchatnet/efmod/backend/storage"
)

type entry struct {
	seq int64
	msg models.Message
}

type Store struct {
	mu      sync.RWMutex
	seq     int64
	log     []*entry
	byID    map[string]*entry
	now     func() time.Time
	lastNow time.Time
}

var _ storage.MessageStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		byID: make(map[string]*entry),
		now:  time.Now,
	}
}

func (s *Store) InsertMessage(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// CreatedAt never goes backwards relative to commit order
	now := s.now().UTC()
	if !now.After(s.lastNow) {
		now = s.lastNow.Add(time.Microsecond)
	}
	s.lastNow = now

	s.seq++
	msg.CreatedAt = now
	msg.UpdatedAt = now

	e := &entry{seq: s.seq, msg: clone(*msg)}
	s.log = append(s.log, e)
	s.byID[msg.ID] = e
	return nil
}

func (s *Store) GetMessage(_ context.Context, messageID string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[messageID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	m := clone(e.msg)
	return &m, nil
}

func (s *Store) ConversationMessages(_ context.Context, conversationID string, offset, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.newestFirst(func(m *models.Message) bool {
		return m.ConversationID == conversationID
	}, offset, limit), nil
}

func (s *Store) CountConversationMessages(_ context.Context, conversationID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.count(func(m *models.Message) bool {
		return m.ConversationID == conversationID
	}), nil
}

func (s *Store) IsParticipant(_ context.Context, conversationID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.log {
		if e.msg.ConversationID == conversationID && e.msg.Involves(userID) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) MarkMessageRead(_ context.Context, messageID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[messageID]
	if !ok {
		return false, storage.ErrNotFound
	}
	if e.msg.IsRead {
		return false, nil
	}
	markRead(&e.msg, at)
	return true, nil
}

func (s *Store) MarkConversationRead(_ context.Context, conversationID, readerID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, e := range s.log {
		m := &e.msg
		if m.ConversationID == conversationID && m.RecipientID == readerID && !m.IsRead {
			markRead(m, at)
			changed++
		}
	}
	return changed, nil
}

func (s *Store) CountUnread(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.count(func(m *models.Message) bool {
		return m.RecipientID == userID && !m.IsRead
	}), nil
}

func (s *Store) ListConversations(_ context.Context, userID string) ([]models.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type group struct {
		last   *entry
		unread int
	}
	groups := make(map[string]*group)

	for _, e := range s.log {
		m := &e.msg
		if !m.Involves(userID) {
			continue
		}
		g, ok := groups[m.ConversationID]
		if !ok {
			g = &group{}
			groups[m.ConversationID] = g
		}
		if g.last == nil || e.seq > g.last.seq {
			g.last = e
		}
		if m.RecipientID == userID && !m.IsRead {
			g.unread++
		}
	}

	lasts := make([]*entry, 0, len(groups))
	for _, g := range groups {
		lasts = append(lasts, g.last)
	}
	sort.Slice(lasts, func(i, j int) bool { return lasts[i].seq > lasts[j].seq })

	out := make([]models.ConversationSummary, 0, len(lasts))
	for _, e := range lasts {
		out = append(out, models.ConversationSummary{
			ConversationID:   e.msg.ConversationID,
			ConversationType: e.msg.ConversationType,
			OrderID:          e.msg.OrderID,
			LastMessage:      clone(e.msg),
			UnreadCount:      groups[e.msg.ConversationID].unread,
		})
	}
	return out, nil
}

func (s *Store) ListFlagged(_ context.Context, offset, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.newestFirst(func(m *models.Message) bool {
		return m.FlaggedForReview
	}, offset, limit), nil
}

func (s *Store) CountFlagged(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.count(func(m *models.Message) bool {
		return m.FlaggedForReview
	}), nil
}

func (s *Store) MarkReviewed(_ context.Context, messageID, reviewerID, decision string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[messageID]
	if !ok {
		return storage.ErrNotFound
	}
	reviewedAt := at
	e.msg.ReviewedBy = reviewerID
	e.msg.ReviewedAt = &reviewedAt
	e.msg.ReviewDecision = decision
	e.msg.UpdatedAt = at
	return nil
}

func (s *Store) Ping(context.Context) error {
	return nil
}

// newestFirst walks the log backwards so the page is built without sorting.
func (s *Store) newestFirst(match func(*models.Message) bool, offset, limit int) []models.Message {
	out := []models.Message{}
	skipped := 0
	for i := len(s.log) - 1; i >= 0 && len(out) < limit; i-- {
		m := &s.log[i].msg
		if !match(m) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, clone(*m))
	}
	return out
}

func (s *Store) count(match func(*models.Message) bool) int {
	n := 0
	for _, e := range s.log {
		if match(&e.msg) {
			n++
		}
	}
	return n
}

func markRead(m *models.Message, at time.Time) {
	readAt := at
	m.IsRead = true
	m.Status = models.StatusRead
	m.ReadAt = &readAt
	m.UpdatedAt = at
}

func clone(m models.Message) models.Message {
	if m.Attachments != nil {
		m.Attachments = append([]models.Attachment(nil), m.Attachments...)
	}
	if m.FilterFlags != nil {
		m.FilterFlags = append([]models.FilterFlag(nil), m.FilterFlags...)
	}
	if m.ReadAt != nil {
		t := *m.ReadAt
		m.ReadAt = &t
	}
	if m.ReviewedAt != nil {
		t := *m.ReviewedAt
		m.ReviewedAt = &t
	}
	if m.EditedAt != nil {
		t := *m.EditedAt
		m.EditedAt = &t
	}
	return m
}
