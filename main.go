package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"jyurniq/admin"
	"jyurniq/analytics"
	"jyurniq/auth"
	"jyurniq/blog"
	"jyurniq/cache"
	"jyurniq/common"
	"jyurniq/database"
	"jyurniq/email"
	"jyurniq/media"
	"jyurniq/monitoring"
	"jyurniq/payments"
	"jyurniq/site"
	"jyurniq/users"
)

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	common.SetupLogger(cfg)

	db, err := common.ConnectDb(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	if err := database.RunMigrations(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}
	if err := database.PromoteAdmins(db, cfg.AdminEmails); err != nil {
		log.Error().Err(err).Msg("Failed to promote admin emails")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), common.RequestID(), common.RequestLogger())
	if cfg.MetricsEnabled {
		router.Use(monitoring.MetricsMiddleware())
		router.GET("/metrics", monitoring.GinHandler())
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", common.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", common.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions("jyurniq-session", sessionStore))
	router.Use(auth.LoadUser(db))

	router.SetHTMLTemplate(site.Templates(cfg.AppURL))

	pages, err := cache.NewStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up page cache")
	}
	if fileStore, ok := pages.(*cache.FileStore); ok {
		if err := fileStore.Purge(); err != nil {
			log.Warn().Err(err).Msg("Failed to purge page cache")
		}
	}

	mailer := email.NewEmailService(cfg)
	if !mailer.Configured() {
		log.Warn().Msg("SMTP is not configured, verification emails are disabled")
	}

	var images media.ImageStore
	s3Store, err := media.NewS3Store(context.Background(), cfg)
	switch {
	case errors.Is(err, media.ErrNotConfigured):
		log.Warn().Msg("S3_BUCKET is not set, image uploads are disabled")
	case err != nil:
		log.Fatal().Err(err).Msg("Failed to set up image storage")
	default:
		images = s3Store
	}

	breaker := payments.DefaultBreakerConfig()
	gateways := []payments.Gateway{
		payments.WithBreaker(payments.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.AppURL), breaker),
		payments.WithBreaker(payments.NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayWebhookSecret), breaker),
	}

	analyticsModule := analytics.NewAnalyticsModule(db)

	auth.NewAuthModule(db, mailer, cfg).RegisterRoutes(router)
	blog.NewBlogModule(db, pages, analyticsModule).RegisterRoutes(router)
	admin.NewAdminModule(db, pages, analyticsModule).RegisterRoutes(router)
	users.NewUsersModule(db).RegisterRoutes(router)
	payments.NewPaymentsModule(db, gateways...).RegisterRoutes(router)
	media.NewMediaModule(images).RegisterRoutes(router)
	site.NewSiteModule(db, pages, analyticsModule, cfg.AppURL).RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
}
