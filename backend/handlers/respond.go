// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/efchatnet/efmod/backend/access"
	"github.com/efchatnet/efmod/backend/apperr"
	"github.com/efchatnet/efmod/backend/logger"
	"github.com/efchatnet/efmod/backend/middleware"
	"github.com/efchatnet/efmod/backend/models"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto status codes. Internal errors
// are logged and hidden from the caller.
func writeError(w http.ResponseWriter, log *logger.Logger, op string, err error) {
	var (
		vErr    *apperr.ValidationError
		authErr *apperr.AuthorizationError
		nfErr   *apperr.NotFoundError
	)
	switch {
	case errors.As(err, &vErr):
		http.Error(w, vErr.Message, http.StatusBadRequest)
	case errors.As(err, &authErr):
		http.Error(w, "access denied", http.StatusForbidden)
	case errors.As(err, &nfErr):
		http.Error(w, nfErr.Error(), http.StatusNotFound)
	default:
		log.Error("request failed", "operation", op, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// callerFrom builds the caller from the verified token. privileged decides
// which role wins when a token carries several.
func callerFrom(r *http.Request, privileged access.Roles) (access.Caller, bool) {
	claims, ok := middleware.GetClaims(r)
	if !ok || claims.UserID == "" {
		return access.Caller{}, false
	}
	return access.Caller{ID: claims.UserID, Role: claims.PrimaryRole(privileged)}, true
}

// pageParams reads page and limit. Bad values fall back to the defaults.
func pageParams(r *http.Request) (int, int) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return models.ClampPage(page, limit)
}
