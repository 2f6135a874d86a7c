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

package integration

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/efchatnet/efmod/backend/access"
	"github.com/efchatnet/efmod/backend/apperr"
	"github.com/efchatnet/efmod/backend/filter"
	"github.com/efchatnet/efmod/backend/handlers"
	"github.com/efchatnet/efmod/backend/logger"
	"github.com/efchatnet/efmod/backend/messaging"
	"github.com/efchatnet/efmod/backend/metrics"
	"github.com/efchatnet/efmod/backend/middleware"
	"github.com/efchatnet/efmod/backend/moderation"
	"github.com/efchatnet/efmod/backend/ratelimit"
	"github.com/efchatnet/efmod/backend/storage"
	"github.com/efchatnet/efmod/backend/storage/memory"
	"github.com/efchatnet/efmod/backend/storage/postgres"
	redisstore "github.com/efchatnet/efmod/backend/storage/redis"
)

// Module provides messaging and moderation as a plugin for efchat
type Module struct {
	store             storage.MessageStore
	filter            *filter.Filter
	service           *messaging.Service
	queue             *moderation.Queue
	messageHandler    *handlers.MessageHandler
	moderationHandler *handlers.ModerationHandler
	limiter           *ratelimit.Limiter
	metrics           *metrics.Metrics
	privileged        access.Roles
	log               *logger.Logger
	jwtSecret         string
	jwtIssuer         string
}

// Config holds configuration for the messaging module
type Config struct {
	// DB selects the postgres store. Without it messages live in memory.
	DB *sql.DB

	// Redis enables real-time delivery notifications.
	Redis *redis.Client

	// Events receives moderation events, usually an *events.Publisher.
	Events moderation.Notifier

	// Directory overrides the postgres users/orders lookup.
	Directory   storage.Directory
	UsersTable  string
	OrdersTable string

	JWTSecret string
	JWTIssuer string

	Filter  *filter.Filter
	Metrics *metrics.Metrics
	Logger  *logger.Logger

	StaffRoles     access.Roles
	ModeratorRoles access.Roles

	MaxMessageLength  int
	MaxAttachments    int
	SendRatePerMinute int
	SendBurst         int
}

// NewModule creates a messaging module that can be embedded into efchat
func NewModule(ctx context.Context, config *Config) (*Module, error) {
	log := config.Logger
	if log == nil {
		log = logger.NewNop()
	}
	staff := config.StaffRoles
	if len(staff) == 0 {
		staff = access.DefaultStaffRoles()
	}
	moderators := config.ModeratorRoles
	if len(moderators) == 0 {
		moderators = access.DefaultStaffRoles()
	}
	privileged := access.NewRoles()
	for r := range staff {
		privileged[r] = struct{}{}
	}
	for r := range moderators {
		privileged[r] = struct{}{}
	}

	var store storage.MessageStore
	directory := config.Directory
	if config.DB != nil {
		pg := postgres.NewStore(config.DB)

		// Run migrations
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
		store = pg
		if directory == nil && (config.UsersTable != "" || config.OrdersTable != "") {
			directory = postgres.NewDirectory(config.DB, config.UsersTable, config.OrdersTable)
		}
	} else {
		log.Warn("no database configured, messages are kept in memory")
		store = memory.NewStore()
	}

	f := config.Filter
	if f == nil {
		f = filter.Default()
	}

	queue := moderation.NewQueue(store, config.Events, moderators, config.Metrics, log.With("component", "ModerationQueue"))

	svcConfig := messaging.Config{
		Store:            store,
		Filter:           f,
		Guard:            access.NewGuard(store, staff),
		Directory:        directory,
		Moderation:       queue,
		Metrics:          config.Metrics,
		Logger:           log,
		MaxContentLength: config.MaxMessageLength,
		MaxAttachments:   config.MaxAttachments,
	}
	if config.Redis != nil {
		svcConfig.Delivery = redisstore.NewNotifier(config.Redis)
	}
	svc := messaging.NewService(svcConfig)

	return &Module{
		store:             store,
		filter:            f,
		service:           svc,
		queue:             queue,
		messageHandler:    handlers.NewMessageHandler(svc, queue.IsModerator, privileged, log),
		moderationHandler: handlers.NewModerationHandler(queue, privileged, log),
		limiter:           ratelimit.New(config.SendRatePerMinute, config.SendBurst),
		metrics:           config.Metrics,
		privileged:        privileged,
		log:               log,
		jwtSecret:         config.JWTSecret,
		jwtIssuer:         config.JWTIssuer,
	}, nil
}

// RegisterRoutes adds messaging routes to an existing router
// If authMiddleware is nil, it will use the built-in JWT validation
func (m *Module) RegisterRoutes(router *mux.Router, authMiddleware func(http.Handler) http.Handler) {
	api := router.PathPrefix("/api/messages").Subrouter()

	// Use provided auth middleware or create our own
	if authMiddleware != nil {
		api.Use(authMiddleware)
	} else {
		api.Use(middleware.NewAuthMiddleware(m.jwtSecret, m.jwtIssuer))
	}
	api.Use(middleware.RequestLogger(m.log))

	handlers.Register(api, m.messageHandler, m.moderationHandler, middleware.RateLimit(m.limiter))
}

// Health reports whether the message store answers.
func (m *Module) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := m.store.Ping(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("Database unavailable"))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// ValidateSetup checks if the module is properly configured
func (m *Module) ValidateSetup(ctx context.Context) error {
	if m.jwtSecret == "" {
		return apperr.Validation("JWT secret is not configured")
	}
	return m.store.Ping(ctx)
}

// Store returns the underlying message store
func (m *Module) Store() storage.MessageStore {
	return m.store
}

// Filter returns the live content filter, for reloading its rules.
func (m *Module) Filter() *filter.Filter {
	return m.filter
}

func (m *Module) Service() *messaging.Service {
	return m.service
}

func (m *Module) Queue() *moderation.Queue {
	return m.queue
}

// Close waits for in-flight notifications.
func (m *Module) Close() {
	m.service.Wait()
}
