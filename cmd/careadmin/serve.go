package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/mikepea/careadmin/pkg/careadmin/admin"
	"github.com/mikepea/careadmin/pkg/careadmin/announcements"
	"github.com/mikepea/careadmin/pkg/careadmin/auth"
	"github.com/mikepea/careadmin/pkg/careadmin/config"
	"github.com/mikepea/careadmin/pkg/careadmin/database"
	"github.com/mikepea/careadmin/pkg/careadmin/facilities"
	"github.com/mikepea/careadmin/pkg/careadmin/fallback"
	"github.com/mikepea/careadmin/pkg/careadmin/faqs"
	"github.com/mikepea/careadmin/pkg/careadmin/httpx"
	"github.com/mikepea/careadmin/pkg/careadmin/identity"
	"github.com/mikepea/careadmin/pkg/careadmin/inquiries"
	"github.com/mikepea/careadmin/pkg/careadmin/members"
	"github.com/mikepea/careadmin/pkg/careadmin/models"
	"github.com/mikepea/careadmin/pkg/careadmin/principals"
	"github.com/mikepea/careadmin/pkg/careadmin/session"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := principals.NewStore(log, db)
	created, err := store.EnsureSuperAdmin(ctx, cfg.Auth.Bootstrap.Email, cfg.Auth.Bootstrap.Name, cfg.Auth.Bootstrap.Password)
	if err != nil {
		return fmt.Errorf("bootstrapping super admin: %w", err)
	}
	if created {
		log.WithField("email", cfg.Auth.Bootstrap.Email).Info("Created bootstrap super admin")
	}

	router, cleanup, err := newRouter(log, db, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("Starting careadmin server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serving http: %w", err)
		}
	case <-ctx.Done():
		log.Info("Shutting down careadmin server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("stopping http server: %w", err)
	}

	return nil
}

// newRouter wires the dashboard API on top of db. The returned cleanup closes
// every live browser context and stops the rate limiter.
func newRouter(log logrus.FieldLogger, db *gorm.DB, cfg *config.Config) (*gin.Engine, func(), error) {
	accessTTL, err := cfg.Provider.AccessDuration()
	if err != nil {
		return nil, nil, err
	}
	refreshTTL, err := cfg.Provider.RefreshDuration()
	if err != nil {
		return nil, nil, err
	}

	store := principals.NewStore(log, db)
	authority := identity.NewAuthority(log, db, identity.Options{
		Issuer:                   cfg.Provider.Issuer,
		SigningSecret:            cfg.Provider.SigningSecret,
		AccessTTL:                accessTTL,
		RefreshTTL:               refreshTTL,
		RequireEmailConfirmation: cfg.Provider.RequireEmailConfirmation,
	})

	fallbacks, err := newFallbackStore(cfg.Fallback)
	if err != nil {
		return nil, nil, err
	}

	deps := session.Deps{
		Principals:  store,
		Verifier:    store,
		Credentials: session.NewCredentials(cfg.Auth.LinkSecret, cfg.Auth.PlaceholderDomain),
		Log:         log,
	}
	newProvider := func() session.Provider { return identity.NewClient(authority) }
	registry, err := session.NewRegistry(log, cfg.Auth.ContextCacheSize, session.NewFactory(log, deps, newProvider, fallbacks))
	if err != nil {
		return nil, nil, fmt.Errorf("creating session registry: %w", err)
	}

	loginLimiter := httpx.NewRateLimiter(cfg.Server.LoginRatePerMinute)
	cleanup := func() {
		loginLimiter.Close()
		registry.Close()
	}

	r := gin.New()
	r.Use(gin.Recovery(), httpx.RequestLogger(log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authHandler := auth.NewHandler(log, registry, auth.CookieOptions{
		Name:   cfg.Server.CookieName,
		Secure: cfg.Server.SecureCookies,
	})

	api := r.Group("/api")
	authHandler.RegisterRoutes(api.Group("/auth"), loginLimiter.Middleware())

	protected := api.Group("", authHandler.ContextMiddleware(), authHandler.RequireSession(), auth.RequireWritable())
	{
		members.NewHandler(db).RegisterRoutes(protected.Group("/members", auth.RequirePermission(models.PermissionMembers)))
		facilities.NewHandler(db).RegisterRoutes(protected.Group("/facilities", auth.RequirePermission(models.PermissionFacilities)))
		announcements.NewHandler(db).RegisterRoutes(protected.Group("/announcements", auth.RequirePermission(models.PermissionAnnouncements)))
		faqs.NewHandler(db).RegisterRoutes(protected.Group("/faqs", auth.RequirePermission(models.PermissionFAQs)))
		inquiries.NewHandler(db).RegisterRoutes(protected.Group("/inquiries", auth.RequirePermission(models.PermissionInquiries)))

		admin.NewHandler(db, store).RegisterRoutes(protected.Group("/admin", auth.RequireSuperAdmin()))
	}

	serveFrontend(log, r, cfg.Server.WebDistPath)

	return r, cleanup, nil
}

func newFallbackStore(cfg config.FallbackConfig) (fallback.Store, error) {
	if cfg.Driver == "memory" {
		return fallback.NewMemoryStore(), nil
	}
	store, err := fallback.NewFileStore(cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("opening fallback store: %w", err)
	}
	return store, nil
}

// serveFrontend serves the built dashboard SPA when present. Unknown non-API
// paths fall back to index.html so client-side routes survive a reload.
func serveFrontend(log logrus.FieldLogger, r *gin.Engine, dist string) {
	if dist == "" {
		return
	}
	if _, err := os.Stat(dist); err != nil {
		log.WithField("path", dist).Info("No frontend build found, API only mode")
		return
	}

	r.Static("/assets", filepath.Join(dist, "assets"))
	r.StaticFile("/favicon.ico", filepath.Join(dist, "favicon.ico"))

	indexHTML := filepath.Join(dist, "index.html")
	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") || c.Request.Method != http.MethodGet {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}
		c.File(indexHTML)
	})

	log.WithField("path", dist).Info("Serving frontend")
}
