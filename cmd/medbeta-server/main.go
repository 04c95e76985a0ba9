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

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medbeta/medbeta/internal/config"
	"github.com/medbeta/medbeta/internal/domain/admin"
	"github.com/medbeta/medbeta/internal/domain/hospital"
	"github.com/medbeta/medbeta/internal/domain/identity"
	"github.com/medbeta/medbeta/internal/domain/invite"
	"github.com/medbeta/medbeta/internal/domain/lab"
	"github.com/medbeta/medbeta/internal/domain/pharmacy"
	"github.com/medbeta/medbeta/internal/domain/records"
	"github.com/medbeta/medbeta/internal/domain/review"
	"github.com/medbeta/medbeta/internal/domain/scheduling"
	"github.com/medbeta/medbeta/internal/platform/apperror"
	"github.com/medbeta/medbeta/internal/platform/auth"
	"github.com/medbeta/medbeta/internal/platform/db"
	"github.com/medbeta/medbeta/internal/platform/middleware"
	"github.com/medbeta/medbeta/internal/platform/notification"
)

// registryAdapter answers the existence and contact lookups the domain
// services declare as small interfaces, keeping the domains decoupled
// from each other's repositories.
type registryAdapter struct {
	users       identity.UserRepository
	patients    identity.PatientRepository
	doctors     identity.DoctorRepository
	pharmacies  identity.PharmacyRepository
	technicians identity.TechnicianRepository
	hospitals   hospital.HospitalRepository
}

func (a *registryAdapter) DoctorExists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := a.doctors.GetByID(ctx, id)
	return existsFromErr(err)
}

func (a *registryAdapter) PatientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := a.patients.GetByID(ctx, id)
	return existsFromErr(err)
}

func (a *registryAdapter) TechnicianExists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := a.technicians.GetByID(ctx, id)
	return existsFromErr(err)
}

func (a *registryAdapter) HospitalExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return a.hospitals.Exists(ctx, id)
}

func (a *registryAdapter) PatientContact(ctx context.Context, id uuid.UUID) (string, string, error) {
	p, err := a.patients.GetByID(ctx, id)
	if err != nil {
		return "", "", err
	}
	u, err := a.users.GetByID(ctx, p.UserID)
	if err != nil {
		return "", "", err
	}
	return u.Email, u.Name, nil
}

func (a *registryAdapter) PharmacyName(ctx context.Context, id uuid.UUID) (string, error) {
	p, err := a.pharmacies.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return p.Name, nil
}

func existsFromErr(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, err
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "medbeta-server",
		Short: "Healthcare records and scheduling API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())

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
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, db.PoolConfig{
				URL:      cfg.DatabaseURL,
				MaxConns: cfg.DBMaxConns,
				MinConns: cfg.DBMinConns,
				AppName:  "medbeta",
			})
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, db.PoolConfig{
				URL:      cfg.DatabaseURL,
				MaxConns: cfg.DBMaxConns,
				MinConns: cfg.DBMinConns,
				AppName:  "medbeta",
			})
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
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
	statusCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new tenant schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			dir, _ := cmd.Flags().GetString("dir")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, db.PoolConfig{
				URL:      cfg.DatabaseURL,
				MaxConns: cfg.DBMaxConns,
				MinConns: cfg.DBMinConns,
				AppName:  "medbeta",
			})
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Creating tenant schema: tenant_%s\n", name)
			if err := db.CreateTenantSchema(ctx, pool, name, dir); err != nil {
				return err
			}
			fmt.Println("Tenant created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")
	createCmd.Flags().String("dir", "./migrations", "Path to migrations directory")

	cmd.AddCommand(createCmd)
	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		AppName:  "medbeta",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	jwtCfg := auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   "medbeta",
		TokenTTL: time.Duration(cfg.TokenTTLHours) * time.Hour,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	// Two groups on the same prefix: public carries registration, login
	// and invitation activation; api carries everything behind a token.
	public := e.Group("/api/v1",
		db.TenantMiddleware(pool, cfg.DefaultTenant),
		middleware.RateLimit(rateLimitCfg),
	)
	api := e.Group("/api/v1",
		auth.JWTMiddleware(jwtCfg),
		db.TenantMiddleware(pool, cfg.DefaultTenant),
		middleware.Audit(logger),
		middleware.RateLimit(rateLimitCfg),
	)

	e.GET("/health", func(c echo.Context) error {
		h := db.CheckHealth(c.Request().Context(), pool)
		code := http.StatusOK
		if h.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		return c.JSON(code, h)
	})

	// Email delivery
	var sender notification.EmailSender
	switch cfg.EmailProvider {
	case "brevo":
		sender = notification.NewBrevoSender(cfg.EmailAPIKey, cfg.EmailFrom)
	case "sendgrid":
		sender = notification.NewSendGridSender(cfg.EmailAPIKey, cfg.EmailFrom)
	default:
		sender = &notification.LogSender{Logger: logger}
	}
	mailer := notification.NewService(sender, notification.NewTemplateEngine(), logger)

	// Repositories
	userRepo := identity.NewUserRepoPG(pool)
	patientRepo := identity.NewPatientRepoPG(pool)
	doctorRepo := identity.NewDoctorRepoPG(pool)
	pharmacyProfileRepo := identity.NewPharmacyRepoPG(pool)
	technicianRepo := identity.NewTechnicianRepoPG(pool)
	hospitalRepo := hospital.NewHospitalRepoPG(pool)
	apptRepo := scheduling.NewAppointmentRepoPG(pool)
	recordRepo := records.NewRecordRepoPG(pool)
	accessLogRepo := records.NewAccessLogRepoPG(pool)
	rxRepo := pharmacy.NewPrescriptionRepoPG(pool)
	labRepo := lab.NewTestRequestRepoPG(pool)
	inviteRepo := invite.NewPendingUserRepoPG(pool)
	reviewRepo := review.NewReviewRepoPG(pool)

	registry := &registryAdapter{
		users:       userRepo,
		patients:    patientRepo,
		doctors:     doctorRepo,
		pharmacies:  pharmacyProfileRepo,
		technicians: technicianRepo,
		hospitals:   hospitalRepo,
	}

	// Services
	identitySvc := identity.NewService(userRepo, patientRepo, doctorRepo,
		pharmacyProfileRepo, technicianRepo, pool, jwtCfg, mailer, cfg.FrontendURL)
	schedSvc := scheduling.NewService(apptRepo, identitySvc, registry, pool)
	recordsSvc := records.NewService(recordRepo, accessLogRepo, identitySvc, schedSvc, logger)
	rxSvc := pharmacy.NewService(rxRepo, identitySvc, registry, pool, mailer)
	labSvc := lab.NewService(labRepo, identitySvc, registry, pool, mailer)
	inviteSvc := invite.NewService(inviteRepo, userRepo, doctorRepo, pharmacyProfileRepo,
		technicianRepo, hospitalRepo, pool, jwtCfg, mailer, cfg.FrontendURL,
		time.Duration(cfg.InviteTTLDays)*24*time.Hour)
	hospitalSvc := hospital.NewService(hospitalRepo, userRepo, doctorRepo,
		technicianRepo, pharmacyProfileRepo, inviteSvc, pool)
	reviewSvc := review.NewService(reviewRepo, identitySvc, registry)
	adminSvc := admin.NewService(userRepo, patientRepo, doctorRepo, hospitalRepo, inviteSvc)

	// Handlers
	identity.NewHandler(identitySvc, schedSvc).RegisterRoutes(public, api)
	scheduling.NewHandler(schedSvc).RegisterRoutes(api)
	records.NewHandler(recordsSvc).RegisterRoutes(api)
	pharmacy.NewHandler(rxSvc).RegisterRoutes(api)
	lab.NewHandler(labSvc).RegisterRoutes(api)
	hospital.NewHandler(hospitalSvc).RegisterRoutes(api)
	invite.NewHandler(inviteSvc, hospitalSvc).RegisterRoutes(public, api)
	review.NewHandler(reviewSvc).RegisterRoutes(public, api)
	admin.NewHandler(adminSvc, inviteSvc, recordsSvc).RegisterRoutes(api)

	// Serve with graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(":" + cfg.Port)
	}()
	logger.Info().Str("port", cfg.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}
