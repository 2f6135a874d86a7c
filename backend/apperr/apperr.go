// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package apperr is the error taxonomy shared by the messaging core and
// the REST layer. Match with errors.As.
package apperr

import "fmt"

// ValidationError is malformed input. Its message is safe to show verbatim.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func Validation(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// AuthorizationError never says who the real participants are.
type AuthorizationError struct{}

func (e *AuthorizationError) Error() string {
	return "access denied"
}

func Denied() *AuthorizationError {
	return &AuthorizationError{}
}

type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

func NotFound(resource string) *NotFoundError {
	return &NotFoundError{Resource: resource}
}
