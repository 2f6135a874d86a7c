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

// Package access decides who may read or write a conversation.
package access

import (
	"context"
	"fmt"
	"strings"

	"github.com/efchatnet/efmod/backend/apperr"
)

const (
	RoleClient     = "client"
	RoleWriter     = "writer"
	RoleManager    = "manager"
	RoleSupport    = "support"
	RoleAccountant = "accountant"
	RoleTech       = "tech"
	RoleAdmin      = "admin"
)

// Caller is the authenticated identity behind a request.
type Caller struct {
	ID   string
	Role string
}

// Roles is a set of role names.
type Roles map[string]struct{}

func NewRoles(names ...string) Roles {
	r := make(Roles, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			r[n] = struct{}{}
		}
	}
	return r
}

// ParseRoles reads a comma separated list.
func ParseRoles(csv string) Roles {
	return NewRoles(strings.Split(csv, ",")...)
}

func DefaultStaffRoles() Roles {
	return NewRoles(RoleAdmin, RoleManager, RoleSupport)
}

func (r Roles) Has(role string) bool {
	_, ok := r[strings.ToLower(role)]
	return ok
}

// ParticipantChecker looks a user up in a conversation's message log.
type ParticipantChecker interface {
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
}

type Guard struct {
	store ParticipantChecker
	staff Roles
}

func NewGuard(store ParticipantChecker, staff Roles) *Guard {
	return &Guard{store: store, staff: staff}
}

// IsStaff reports whether role bypasses the participant check.
func (g *Guard) IsStaff(role string) bool {
	return g.staff.Has(role)
}

// CanAccess is true for staff roles and for users who sent or received at
// least one message in the conversation.
func (g *Guard) CanAccess(ctx context.Context, userID, userRole, conversationID string) (bool, error) {
	if g.IsStaff(userRole) {
		return true, nil
	}
	if userID == "" || conversationID == "" {
		return false, nil
	}
	ok, err := g.store.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return false, fmt.Errorf("participant lookup: %w", err)
	}
	return ok, nil
}

// Authorize returns an *apperr.AuthorizationError when CanAccess is false.
func (g *Guard) Authorize(ctx context.Context, caller Caller, conversationID string) error {
	ok, err := g.CanAccess(ctx, caller.ID, caller.Role, conversationID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Denied()
	}
	return nil
}
