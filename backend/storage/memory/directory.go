// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package memory

import (
	"context"
	"sync"

	"github.com/efchatnet/efmod/backend/models"
	"github.com/efchatnet/efmod/backend/storage"
)

// Directory is a fixed user/order registry.
type Directory struct {
	mu     sync.RWMutex
	users  map[string]models.User
	orders map[string]struct{}
}

var _ storage.Directory = (*Directory)(nil)

func NewDirectory() *Directory {
	return &Directory{
		users:  make(map[string]models.User),
		orders: make(map[string]struct{}),
	}
}

func (d *Directory) AddUser(id, role string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[id] = models.User{ID: id, Role: role}
}

func (d *Directory) AddOrder(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.orders[id] = struct{}{}
}

func (d *Directory) ResolveUser(_ context.Context, userID string) (*models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &u, nil
}

func (d *Directory) OrderExists(_ context.Context, orderID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.orders[orderID]
	return ok, nil
}
