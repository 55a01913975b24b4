package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/records/internal/config"
	"github.com/ehr/records/internal/domain/appointment"
	"github.com/ehr/records/internal/domain/dashboard"
	"github.com/ehr/records/internal/domain/record"
	"github.com/ehr/records/internal/domain/reminder"
	"github.com/ehr/records/internal/domain/settings"
	"github.com/ehr/records/internal/domain/signature"
	"github.com/ehr/records/internal/domain/staff"
	"github.com/ehr/records/internal/platform/auth"
	"github.com/ehr/records/internal/platform/blobstore"
	"github.com/ehr/records/internal/platform/db"
	"github.com/ehr/records/internal/platform/middleware"
	"github.com/ehr/records/internal/platform/notification"
	"github.com/ehr/records/internal/platform/validation"
	"github.com/ehr/records/internal/platform/websocket"
)

const version = "0.1.0"

// app holds the wired services. Repositories share one pool; nothing touches
// the database until a request or command needs it.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *pgxpool.Pool

	settingsStore settings.Store
	closeSettings func() error
	settings      *settings.Service
	notifications *notification.NotificationManager
	blobs         blobstore.BlobStore
	events        *websocket.Hub

	records      *record.Service
	exporter     *record.Exporter
	sessions     *signature.SessionStore
	reminderRepo reminder.Repository
	scheduler    *reminder.Scheduler
	dispatcher   *reminder.Dispatcher
	appointments *appointment.Service
	staff        *staff.Service
	dashboard    *dashboard.Service
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// newSettingsStore picks the settings backend named by SETTINGS_STORE. The
// returned close func releases its connection, if any.
func newSettingsStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (settings.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.SettingsStore {
	case "memory":
		return settings.NewMemoryStore(), noop, nil
	case "file":
		return settings.NewFileStore(cfg.SettingsFile), noop, nil
	case "redis":
		store, err := settings.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		return store, store.Close, nil
	case "postgres":
		return settings.NewPGStore(pool), noop, nil
	}
	return nil, nil, fmt.Errorf("unknown settings store %q", cfg.SettingsStore)
}

func newEmailSender(cfg *config.Config, logger zerolog.Logger) notification.EmailSender {
	if cfg.SendGridAPIKey != "" {
		return notification.NewSendGridSender(cfg.SendGridAPIKey, cfg.AppName, cfg.MailFrom)
	}
	logger.Warn().Msg("SENDGRID_API_KEY not set, emails are logged instead of sent")
	return notification.NewLogSender(logger)
}

func settingsDefaults(cfg *config.Config) settings.Settings {
	d := settings.Defaults()
	d.OrganizationName = cfg.AppName
	if strings.EqualFold(cfg.PDFPageSize, "a4") {
		d.PageSize = "A4"
	}
	return d
}

// newApp wires every service and loads the organization settings.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool) (*app, error) {
	a := &app{cfg: cfg, logger: logger, pool: pool}

	store, closeStore, err := newSettingsStore(ctx, cfg, pool)
	if err != nil {
		return nil, err
	}
	a.settingsStore, a.closeSettings = store, closeStore
	a.settings = settings.NewService(store, settingsDefaults(cfg), logger.With().Str("component", "settings").Logger())
	if err := a.settings.Init(ctx); err != nil {
		closeStore()
		return nil, err
	}

	a.notifications = notification.NewNotificationManager(newEmailSender(cfg, logger), notification.NewTemplateEngine())
	a.blobs = blobstore.NewPGBlobStore(pool)
	a.events = websocket.NewHub(logger.With().Str("component", "events").Logger())

	a.records = record.NewService(record.NewRepoPG(pool), logger.With().Str("component", "records").Logger())
	a.exporter = record.NewExporter(a.records, a.settings.RecordLayout(cfg.PDFMarginMM), a.blobs)
	a.records.SetArchiver(a.exporter)
	a.records.SetPublisher(a.events)
	a.sessions = signature.NewSessionStore(cfg.SignatureSessionTTL)

	reminderLog := logger.With().Str("component", "reminders").Logger()
	a.reminderRepo = reminder.NewRepoPG(pool)
	a.scheduler = reminder.NewScheduler(a.reminderRepo, a.notifications.Templates(), a.settings.ReminderOptions(), reminderLog)
	a.dispatcher = reminder.NewDispatcher(a.reminderRepo, a.notifications, reminderLog, cfg.ReminderConcurrency)
	a.dispatcher.SetPublisher(a.events)

	orgName := func(ctx context.Context) string { return a.settings.Organization(ctx).OrganizationName }
	a.staff = staff.NewService(staff.NewRepoPG(pool), a.notifications, orgName, logger.With().Str("component", "staff").Logger())
	a.appointments = appointment.NewService(appointment.NewRepoPG(pool), a.scheduler, a.staff, logger.With().Str("component", "appointments").Logger())

	staleAfter := func(ctx context.Context) int { return a.settings.Organization(ctx).StaleAfterDays }
	a.dashboard = dashboard.NewService(a.records, a.reminderRepo, a.appointments, staleAfter, logger)
	return a, nil
}

func (a *app) Close() {
	if a.events != nil {
		a.events.Close()
	}
	if a.closeSettings != nil {
		if err := a.closeSettings(); err != nil {
			a.logger.Warn().Err(err).Msg("closing settings store")
		}
	}
}

func (a *app) authMiddleware() echo.MiddlewareFunc {
	if a.cfg.IsDev() {
		return auth.DevAuthMiddleware()
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     a.cfg.AuthIssuer,
		Audience:   a.cfg.AuthAudience,
		JWKSURL:    a.cfg.AuthJWKSURL,
		SigningKey: []byte(a.cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
	})
}

// routes builds the HTTP server.
func (a *app) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(a.logger)
	e.Validator = validation.Default()

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.SecurityHeaders(a.cfg.CORSOrigins))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit(a.cfg.BodyLimit, a.cfg.UploadBodyLimit,
		middleware.UploadPath{Prefix: "/api/v1/signature-sessions/", Suffix: "/upload"}))
	e.Use(a.authMiddleware())
	e.Use(middleware.Audit(a.logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	if a.pool != nil {
		e.GET("/health/db", db.HealthHandler(a.pool, func() *db.PoolStats { return db.GetPoolStats(a.pool) }))
	}

	api := e.Group("/api/v1")
	sensitive := middleware.RateLimit(middleware.SensitiveRateLimitConfig())

	record.NewHandler(a.records, a.exporter, a.settings.ListDefaults()).RegisterRoutes(api)
	signature.NewHandler(a.sessions, record.NewSignatureTarget(a.records)).RegisterRoutes(api, sensitive)
	appointment.NewHandler(a.appointments, a.settings.CalendarLocation()).RegisterRoutes(api)
	reminder.NewHandler(a.reminderRepo, a.dispatcher).RegisterRoutes(api)
	settings.NewHandler(a.settings).RegisterRoutes(api)
	staff.NewHandler(a.staff).RegisterRoutes(api, sensitive)
	dashboard.NewHandler(a.dashboard).RegisterRoutes(api)

	read := api.Group("", auth.RequireRole(auth.RoleStaff, auth.RoleClinician, auth.RoleSupervisor))
	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	blobstore.NewBlobHandler(a.blobs).RegisterRoutes(read, admin)
	websocket.NewHandler(a.events, a.cfg.CORSOrigins, a.logger).RegisterRoutes(read)
	notification.NewNotificationHandler(a.notifications).RegisterRoutes(admin)

	return e
}

// runBackground starts the session sweeper and the reminder dispatcher. Both
// stop when ctx is cancelled.
func (a *app) runBackground(ctx context.Context) {
	go a.sessions.StartSweeper(ctx, time.Minute, a.logger)
	go a.dispatcher.Start(ctx, a.cfg.ReminderInterval)
	a.logger.Info().
		Dur("interval", a.cfg.ReminderInterval).
		Int("concurrency", a.cfg.ReminderConcurrency).
		Msg("reminder dispatcher started")
}
