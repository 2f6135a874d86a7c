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

package main

import (
	"context"
	"database/sql"
	"errors"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/efchatnet/efmod/backend/config"
	"github.com/efchatnet/efmod/backend/events"
	"github.com/efchatnet/efmod/backend/filter"
	"github.com/efchatnet/efmod/backend/integration"
	"github.com/efchatnet/efmod/backend/logger"
	"github.com/efchatnet/efmod/backend/metrics"
	"github.com/efchatnet/efmod/backend/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("Invalid configuration: %v", err)
	}

	log, err := logger.New(cfg.LogMode, cfg.LogHashSalt)
	if err != nil {
		stdlog.Fatalf("Failed to create logger: %v", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	modCfg := &integration.Config{
		JWTSecret:         cfg.JWTSecret,
		JWTIssuer:         cfg.JWTIssuer,
		StaffRoles:        cfg.StaffRoles,
		ModeratorRoles:    cfg.ModeratorRoles,
		MaxMessageLength:  cfg.MaxMessageLength,
		MaxAttachments:    cfg.MaxAttachments,
		SendRatePerMinute: cfg.SendRatePerMinute,
		SendBurst:         cfg.SendBurst,
		UsersTable:        cfg.UsersTable,
		OrdersTable:       cfg.OrdersTable,
		Metrics:           metrics.New(),
		Logger:            log,
	}

	// Database connection
	if cfg.Storage == config.StoragePostgres {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatal("Failed to connect to database", "error", err)
		}
		defer db.Close()
		modCfg.DB = db
	}

	// Redis connection
	if cfg.RedisURL != "" {
		rdb := redis.NewClient(redisOptions(cfg.RedisURL))
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("Redis unavailable, delivery notifications may fail", "error", err)
		}
		modCfg.Redis = rdb
	}

	// Moderation events
	if cfg.AMQPURL != "" {
		pub, err := events.Dial(cfg.AMQPURL, cfg.AMQPExchange, log)
		if err != nil {
			log.Fatal("Failed to connect to message broker", "error", err)
		}
		defer pub.Close()
		modCfg.Events = pub
	}

	rules, err := cfg.FilterRules()
	if err != nil {
		log.Fatal("Failed to load filter rules", "error", err)
	}
	contentFilter, err := filter.New(rules)
	if err != nil {
		log.Fatal("Invalid filter rules", "error", err)
	}
	modCfg.Filter = contentFilter
	go reloadFilterOnHangup(ctx, cfg, contentFilter, log)

	module, err := integration.NewModule(ctx, modCfg)
	if err != nil {
		log.Fatal("Failed to initialize messaging module", "error", err)
	}
	defer module.Close()

	// Setup router
	r := mux.NewRouter()
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	module.RegisterRoutes(r, nil)

	// Health check (no auth required)
	r.HandleFunc("/health", module.Health).Methods("GET")
	r.Handle("/metrics", modCfg.Metrics.Handler()).Methods("GET")

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Graceful shutdown failed", "error", err)
		}
	}()

	log.Info("Messaging server starting", "port", cfg.Port, "storage", cfg.Storage, "jwt_issuer", cfg.JWTIssuer)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Server failed", "error", err)
	}
	log.Info("Messaging server stopped")
}

// redisOptions accepts either a redis:// URL or a bare host:port.
func redisOptions(addr string) *redis.Options {
	if strings.Contains(addr, "://") {
		if opts, err := redis.ParseURL(addr); err == nil {
			return opts
		}
	}
	return &redis.Options{Addr: addr}
}

// reloadFilterOnHangup re-reads FILTER_CONFIG on SIGHUP. A bad file leaves
// the running rules in place.
func reloadFilterOnHangup(ctx context.Context, cfg *config.Config, f *filter.Filter, log *logger.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			rules, err := cfg.FilterRules()
			if err == nil {
				err = f.Reload(rules)
			}
			if err != nil {
				log.Error("Filter reload failed", "path", cfg.FilterConfig, "error", err)
				continue
			}
			log.Info("Filter rules reloaded", "path", cfg.FilterConfig)
		}
	}
}
