// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/efchatnet/efmod/backend/models"
	"github.com/efchatnet/efmod/backend/storage"
)

// Directory reads users and orders from tables owned by the main platform.
// Either table may be left empty to skip that lookup.
type Directory struct {
	db          *sql.DB
	usersQuery  string
	ordersQuery string
}

var _ storage.Directory = (*Directory)(nil)

func NewDirectory(db *sql.DB, usersTable, ordersTable string) *Directory {
	d := &Directory{db: db}
	if usersTable != "" {
		d.usersQuery = fmt.Sprintf(`SELECT id, role FROM %s WHERE id = $1`, pq.QuoteIdentifier(usersTable))
	}
	if ordersTable != "" {
		d.ordersQuery = fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, pq.QuoteIdentifier(ordersTable))
	}
	return d
}

func (d *Directory) ResolveUser(ctx context.Context, userID string) (*models.User, error) {
	if d.usersQuery == "" {
		return &models.User{ID: userID}, nil
	}
	var u models.User
	err := d.db.QueryRowContext(ctx, d.usersQuery, userID).Scan(&u.ID, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	return &u, nil
}

func (d *Directory) OrderExists(ctx context.Context, orderID string) (bool, error) {
	if d.ordersQuery == "" {
		return true, nil
	}
	var exists bool
	if err := d.db.QueryRowContext(ctx, d.ordersQuery, orderID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to look up order: %w", err)
	}
	return exists, nil
}
