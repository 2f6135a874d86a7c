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

// Package conversation derives stable thread keys for pairs of users.
package conversation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/efchatnet/efmod/backend/models"
)

// Delimiter joins key segments. Participant ids may not contain it.
const Delimiter = "_"

var (
	ErrEmptyParticipant = errors.New("participant id is required")
	ErrSelfConversation = errors.New("a user cannot message themselves")
)

// ValidateParticipant rejects ids that would make a key ambiguous.
func ValidateParticipant(id string) error {
	if id == "" {
		return ErrEmptyParticipant
	}
	if strings.Contains(id, Delimiter) {
		return fmt.Errorf("participant id %q must not contain %q", id, Delimiter)
	}
	if id == models.SupportQueueID {
		return fmt.Errorf("participant id %q is reserved", id)
	}
	return nil
}

// DeriveKey returns the conversation id for two users, optionally scoped to
// an order. DeriveKey(a, b, o) == DeriveKey(b, a, o) for all inputs.
func DeriveKey(userA, userB, orderID string) (string, error) {
	if err := ValidateParticipant(userA); err != nil {
		return "", err
	}
	if err := ValidateParticipant(userB); err != nil {
		return "", err
	}
	if userA == userB {
		return "", ErrSelfConversation
	}
	if strings.Contains(orderID, Delimiter) {
		return "", fmt.Errorf("order id %q must not contain %q", orderID, Delimiter)
	}

	// Ensure users are ordered consistently
	if userA > userB {
		userA, userB = userB, userA
	}
	return join(userA, userB, orderID), nil
}

// DeriveSupportKey returns the key of a support conversation owned by userID.
// Staff members rotate, so the second segment is the support queue itself.
func DeriveSupportKey(userID, orderID string) (string, error) {
	if err := ValidateParticipant(userID); err != nil {
		return "", err
	}
	if strings.Contains(orderID, Delimiter) {
		return "", fmt.Errorf("order id %q must not contain %q", orderID, Delimiter)
	}
	return join(userID, models.SupportQueueID, orderID), nil
}

func join(a, b, orderID string) string {
	if orderID == "" {
		return a + Delimiter + b
	}
	return a + Delimiter + b + Delimiter + orderID
}

// IsSupportKey reports whether key was produced by DeriveSupportKey.
func IsSupportKey(key string) bool {
	parts := strings.Split(key, Delimiter)
	return len(parts) >= 2 && parts[1] == models.SupportQueueID
}
