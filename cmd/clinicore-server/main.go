package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicore/clinicore/internal/config"
	"github.com/clinicore/clinicore/internal/domain/auditlog"
	"github.com/clinicore/clinicore/internal/domain/consent"
	"github.com/clinicore/clinicore/internal/domain/features"
	"github.com/clinicore/clinicore/internal/domain/organization"
	"github.com/clinicore/clinicore/internal/domain/records"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/internal/platform/hipaa"
	"github.com/clinicore/clinicore/internal/platform/middleware"
	"github.com/clinicore/clinicore/internal/platform/ratelimit"
)

// membershipResolverAdapter adapts the organization repository to the
// auth.MembershipResolver interface, avoiding a circular import between the
// auth and organization packages.
type membershipResolverAdapter struct {
	repo organization.Repository
}

func (a *membershipResolverAdapter) Lookup(ctx context.Context, userID, organizationID uuid.UUID) (*auth.MembershipInfo, error) {
	m, err := a.repo.Lookup(ctx, userID, organizationID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}
	return &auth.MembershipInfo{
		UserID:         m.UserID,
		OrganizationID: m.OrganizationID,
		Role:           m.Role,
	}, nil
}

// devVerifier accepts any credential pair and mints a deterministic identity
// from the email. Development only; production deployments authenticate
// against an external issuer via JWT.
type devVerifier struct{}

func (devVerifier) Verify(ctx context.Context, email, password string) (*auth.Identity, error) {
	return &auth.Identity{
		UserID:       uuid.NewSHA1(uuid.NameSpaceOID, []byte(email)),
		Email:        email,
		PlatformRole: auth.PlatformRoleProvider,
	}, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinicore-server",
		Short: "Clinical records platform API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	transactor := db.NewTransactor(pool)

	// Field-level encryption
	var encKey []byte
	if cfg.EncryptionKey != "" {
		encKey, err = hex.DecodeString(cfg.EncryptionKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("ENCRYPTION_KEY must be a hex-encoded 32-byte key")
		}
	}
	prevKeys, err := cfg.PreviousKeys()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid ENCRYPTION_PREVIOUS_KEYS")
	}
	encSvc, err := hipaa.NewEncryptionService(encKey, cfg.EncryptionKeyVer, prevKeys, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize field encryption")
	}

	// Rate limiter shared by login, consent resolution, and record exports
	limiter := ratelimit.NewLimiter()
	sweepCtx, sweepCancel := context.WithCancel(ctx)
	defer sweepCancel()
	limiter.StartSweeper(sweepCtx, time.Minute)
	loginLimit := ratelimit.Limit{
		MaxAttempts: cfg.LoginMaxAttempts,
		Window:      time.Duration(cfg.LoginWindowMinutes) * time.Minute,
	}
	consentResolveMW := ratelimit.Middleware(limiter, "consent_resolve",
		ratelimit.Limit{MaxAttempts: 20, Window: time.Minute}, auth.RateLimitIdentity)
	exportMW := ratelimit.Middleware(limiter, "records_export",
		ratelimit.Limit{MaxAttempts: 5, Window: time.Hour}, auth.RateLimitIdentity)

	// Repositories
	orgRepo := organization.NewRepoPG(pool)
	featureRepo := features.NewRepoPG(pool)
	auditRepo := auditlog.NewRepoPG(pool)
	consentRepo := consent.NewRepoPG(pool)
	recordRepo := records.NewRepoPG(pool)

	// Services
	auditRecorder := auditlog.NewRecorder(auditRepo, logger)
	auditSvc := auditlog.NewService(auditRepo)
	featureSvc := features.NewService(featureRepo, auditRecorder)
	orgSvc := organization.NewService(orgRepo, transactor, featureSvc, auditRecorder)
	consentSvc := consent.NewService(consentRepo, transactor, auditRecorder)
	recordSvc := records.NewService(recordRepo, transactor, encSvc, featureSvc, auditRecorder)

	gate := auth.NewGate(&membershipResolverAdapter{repo: orgRepo})

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", auth.OrgIDHeader},
	}))

	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: []byte(cfg.AuthSigningKey),
	}
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	e.GET("/health", db.HealthHandler(pool))

	apiV1 := e.Group("/api/v1")

	// Session endpoints. The login path is rate limited per email; production
	// deployments authenticate against the configured issuer instead.
	loginAudit := func(ctx context.Context, identity *auth.Identity, ip string) {
		auditRecorder.Record(ctx, auditlog.Entry{
			UserID:    &identity.UserID,
			Action:    auditlog.ActionLogin,
			IPAddress: ip,
		})
	}
	if cfg.IsDev() || cfg.AuthSigningKey != "" {
		loginHandler := auth.NewLoginHandler(devVerifier{}, limiter, loginLimit, jwtCfg, loginAudit)
		loginHandler.RegisterRoutes(apiV1)
	}

	// Domain handlers
	organization.NewHandler(orgSvc, gate).RegisterRoutes(apiV1)
	features.NewHandler(featureSvc, gate).RegisterRoutes(apiV1)
	auditlog.NewHandler(auditSvc, gate).RegisterRoutes(apiV1)
	consent.NewHandler(consentSvc).RegisterRoutes(apiV1, consentResolveMW)
	records.NewHandler(recordSvc, gate, auditRecorder).RegisterRoutes(apiV1, exportMW)

	// Start and wait for shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("server starting")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
		return err
	}
	return nil
}
