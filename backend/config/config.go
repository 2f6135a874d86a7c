// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package config reads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/efchatnet/efmod/backend/access"
	"github.com/efchatnet/efmod/backend/filter"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Port         string
	DatabaseURL  string
	RedisURL     string
	AMQPURL      string
	AMQPExchange string
	JWTSecret    string
	JWTIssuer    string
	Storage      string

	MaxMessageLength int
	MaxAttachments   int
	FilterConfig     string

	StaffRoles     access.Roles
	ModeratorRoles access.Roles

	SendRatePerMinute int
	SendBurst         int

	LogMode        string
	LogHashSalt    string
	AllowedOrigins []string

	UsersTable  string
	OrdersTable string
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}
	var errs []error
	getInt := func(key string, fallback int) int {
		v := get(key, "")
		if v == "" {
			return fallback
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("%s must be a positive integer, got %q", key, v))
			return fallback
		}
		return n
	}

	cfg := &Config{
		Port:              get("PORT", "8081"),
		DatabaseURL:       get("DATABASE_URL", "postgres://localhost/efmod?sslmode=disable"),
		RedisURL:          get("REDIS_URL", "localhost:6379"),
		AMQPURL:           get("AMQP_URL", ""),
		AMQPExchange:      get("AMQP_EXCHANGE", "moderation"),
		JWTSecret:         get("JWT_SECRET", ""),
		JWTIssuer:         get("JWT_ISSUER", "efchat"),
		Storage:           strings.ToLower(get("STORAGE", StoragePostgres)),
		MaxMessageLength:  getInt("MAX_MESSAGE_LENGTH", 2000),
		MaxAttachments:    getInt("MAX_ATTACHMENTS", 10),
		FilterConfig:      get("FILTER_CONFIG", ""),
		StaffRoles:        access.ParseRoles(get("STAFF_ROLES", "admin,manager,support")),
		ModeratorRoles:    access.ParseRoles(get("MODERATOR_ROLES", "admin,manager,support")),
		SendRatePerMinute: getInt("SEND_RATE_PER_MINUTE", 30),
		SendBurst:         getInt("SEND_BURST", 10),
		LogMode:           get("LOG_MODE", "dev"),
		LogHashSalt:       get("LOG_HASH_SALT", ""),
		AllowedOrigins:    splitList(get("ALLOWED_ORIGINS", "https://efchat.net,https://app.efchat.net,http://localhost:3000")),
		UsersTable:        get("USERS_TABLE", ""),
		OrdersTable:       get("ORDERS_TABLE", ""),
	}

	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET environment variable is required"))
	}
	if cfg.Storage != StoragePostgres && cfg.Storage != StorageMemory {
		errs = append(errs, fmt.Errorf("STORAGE must be %q or %q, got %q", StoragePostgres, StorageMemory, cfg.Storage))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Privileged is every role that outranks a plain participant.
func (c *Config) Privileged() access.Roles {
	out := make(access.Roles, len(c.StaffRoles)+len(c.ModeratorRoles))
	for r := range c.StaffRoles {
		out[r] = struct{}{}
	}
	for r := range c.ModeratorRoles {
		out[r] = struct{}{}
	}
	return out
}

// FilterRules returns the content filter configuration. Without
// FILTER_CONFIG the built-in rules are used.
func (c *Config) FilterRules() (filter.Config, error) {
	if c.FilterConfig == "" {
		return filter.DefaultConfig(), nil
	}
	return filter.LoadConfig(c.FilterConfig)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
