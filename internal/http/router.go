package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/verdantbox/admin-api/internal/audit"
	"github.com/verdantbox/admin-api/internal/config"
	"github.com/verdantbox/admin-api/internal/http/handlers"
	"github.com/verdantbox/admin-api/internal/models"
	"github.com/verdantbox/admin-api/internal/session"
	"gorm.io/gorm"
)

// NewRouter assembles the gin engine: middleware chain, public login
// endpoints, session-gated admin endpoints and the health probe.
func NewRouter(cfg config.AppConfig, conn *gorm.DB, svc *session.Service, recorder *audit.Recorder) *gin.Engine {
	engine := gin.New()
	engine.Use(RequestID(), RequestLogger(), gin.Recovery())
	engine.Use(cors.New(corsConfig(cfg)))

	engine.GET("/healthz", handlers.Health(conn))

	secure := cfg.Production()
	authHandler := handlers.NewAuthHandler(svc, secure)
	mfaHandler := handlers.NewMFAHandler(svc, secure)
	usersHandler := handlers.NewUsersHandler(conn, recorder)
	auditHandler := handlers.NewAuditHandler(conn)

	perMinute, burst := cfg.LoginRate()
	loginLimit := LoginRateLimit(perMinute, burst)
	secret := svc.Secret()

	api := engine.Group("/api/admin")

	// Credential endpoints. Login is rate limited per client IP; the
	// second-factor endpoints additionally require a pending or full
	// session token.
	api.POST("/login", loginLimit, authHandler.Login)
	api.POST("/logout", authHandler.Logout)

	pending := api.Group("", RequirePendingSession(secret))
	pending.POST("/2fa/verify", loginLimit, mfaHandler.Verify)
	pending.POST("/2fa/setup", mfaHandler.Setup)
	pending.POST("/2fa/totp/confirm", mfaHandler.ConfirmTOTP)
	pending.POST("/webauthn/register/verify", mfaHandler.RegisterVerify)
	pending.POST("/webauthn/authenticate/options", mfaHandler.AuthenticateOptions)
	pending.POST("/webauthn/authenticate/verify", loginLimit, mfaHandler.AuthenticateVerify)

	authed := api.Group("", RequireSession(secret))
	authed.GET("/me", authHandler.Me)
	authed.PUT("/me/password", authHandler.ChangePassword)
	authed.GET("/2fa/status", mfaHandler.Status)
	authed.POST("/2fa/disable", mfaHandler.Disable)

	restricted := authed.Group("", RequireRole(models.RoleAdmin))
	restricted.GET("/users", usersHandler.List)
	restricted.POST("/users", usersHandler.Create)
	restricted.DELETE("/users/:id", usersHandler.Delete)
	restricted.GET("/audit", auditHandler.List)

	return engine
}

// corsConfig allows the admin frontend origins to send the session
// cookie cross-origin during local development.
func corsConfig(cfg config.AppConfig) cors.Config {
	corsCfg := cors.Config{
		AllowOrigins:     cfg.WebAuthn.Origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(corsCfg.AllowOrigins) == 0 {
		corsCfg.AllowOrigins = []string{"http://localhost:3000"}
	}
	return corsCfg
}
