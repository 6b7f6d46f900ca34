// Package app wires configuration, storage, the session service and the
// HTTP server into a runnable admin API process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/verdantbox/admin-api/internal/audit"
	"github.com/verdantbox/admin-api/internal/config"
	"github.com/verdantbox/admin-api/internal/db"
	internalhttp "github.com/verdantbox/admin-api/internal/http"
	"github.com/verdantbox/admin-api/internal/lockout"
	"github.com/verdantbox/admin-api/internal/models"
	"github.com/verdantbox/admin-api/internal/security"
	"github.com/verdantbox/admin-api/internal/session"
	"github.com/verdantbox/admin-api/internal/store"
	"gorm.io/gorm"
)

// shutdownTimeout bounds how long in-flight requests may run after a
// termination signal.
const shutdownTimeout = 10 * time.Second

// Migrate opens the database and runs schema migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	conn, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the admin API and blocks until ctx is cancelled or
// the listener fails.
func RunServer(ctx context.Context, cfg config.AppConfig) error {
	conn, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	challengeStore, limiter, closeStores, errStores := buildStores(cfg)
	if errStores != nil {
		return errStores
	}
	defer closeStores()

	webAuthn, errWebAuthn := security.NewWebAuthn(cfg.WebAuthn)
	if errWebAuthn != nil {
		return fmt.Errorf("webauthn init: %w", errWebAuthn)
	}

	recorder := audit.NewRecorder(conn)
	svc := session.NewService(session.Options{
		DB:               conn,
		Secret:           cfg.Session.Secret,
		TOTPIssuer:       cfg.WebAuthn.RPDisplayName,
		RequireTwoFactor: cfg.RequireTwoFactor,
		WebAuthn:         webAuthn,
		Store:            challengeStore,
		Lockout:          limiter,
		Audit:            recorder,
	})

	if errBootstrap := bootstrapAdmin(ctx, conn, cfg); errBootstrap != nil {
		return errBootstrap
	}

	engine := internalhttp.NewRouter(cfg, conn, svc, recorder)
	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("listen", cfg.Listen).Info("starting admin api")
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			log.WithError(errShutdown).Error("forced shutdown")
		}
		return <-errCh
	case errServe := <-errCh:
		return errServe
	}
}

// buildStores selects Redis-backed challenge and lockout storage when a
// Redis address is configured, and in-process storage otherwise.
func buildStores(cfg config.AppConfig) (store.Store, lockout.Limiter, func(), error) {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return store.NewMemoryStore(), lockout.NewMemoryLimiter(), func() {}, nil
	}

	redisStore, errRedis := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if errRedis != nil {
		return nil, nil, nil, fmt.Errorf("redis connect: %w", errRedis)
	}
	limiter := lockout.NewRedisLimiter(redisStore.Client())
	closer := func() {
		if errClose := redisStore.Close(); errClose != nil {
			log.WithError(errClose).Warn("redis close failed")
		}
	}
	return redisStore, limiter, closer, nil
}

// bootstrapAdmin seeds the first admin account when the table is empty
// and bootstrap credentials are configured. Existing deployments are
// never touched.
func bootstrapAdmin(ctx context.Context, conn *gorm.DB, cfg config.AppConfig) error {
	email := strings.ToLower(strings.TrimSpace(cfg.BootstrapEmail))
	if email == "" || cfg.BootstrapPassword == "" {
		return nil
	}

	var count int64
	if errCount := conn.WithContext(ctx).Model(&models.AdminUser{}).Count(&count).Error; errCount != nil {
		return errCount
	}
	if count > 0 {
		return nil
	}

	hash, errHash := security.HashPassword(cfg.BootstrapPassword)
	if errHash != nil {
		return fmt.Errorf("bootstrap admin: %w", errHash)
	}
	user := models.AdminUser{
		Email:           email,
		PasswordHash:    hash,
		Role:            models.RoleAdmin,
		Active:          true,
		TwoFactorMethod: models.TwoFactorNone,
	}
	if errCreate := conn.WithContext(ctx).Create(&user).Error; errCreate != nil {
		return fmt.Errorf("bootstrap admin: %w", errCreate)
	}
	log.WithField("email", email).Info("bootstrap admin created")
	return nil
}
