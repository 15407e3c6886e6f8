package commands

import (
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/etag"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"funnel_backend/internals/clients/crm"
	"funnel_backend/internals/configs"
	database "funnel_backend/internals/databases"
	paymentController "funnel_backend/internals/features/funnel/payments/controller"
	paymentService "funnel_backend/internals/features/funnel/payments/service"
	sessionService "funnel_backend/internals/features/funnel/sessions/service"
	verificationService "funnel_backend/internals/features/funnel/verification/service"
	wizardController "funnel_backend/internals/features/funnel/wizard/controller"
	wizardService "funnel_backend/internals/features/funnel/wizard/service"
	helper "funnel_backend/internals/helpers"
	"funnel_backend/internals/helpers/retry"
	"funnel_backend/internals/middlewares"
	"funnel_backend/internals/middlewares/logger"
	routes "funnel_backend/internals/route"
)

// requestTimeout covers a full secret poll plus the CRM calls around it.
const requestTimeout = 30 * time.Second

type AppOptions struct {
	// Memory keeps sessions in process and confirms payments with a fake
	// gateway. No database is opened.
	Memory bool
	// CRMHTTPClient replaces the CRM transport.
	CRMHTTPClient *http.Client
}

// BuildApp wires the funnel service. The returned func releases what BuildApp opened.
func BuildApp(cfg configs.Config, log zerolog.Logger, opts AppOptions) (*fiber.App, func(), error) {
	cleanup := func() {}

	if cfg.JWTSecret == "" {
		if !opts.Memory {
			return nil, cleanup, errors.New("JWT_SECRET is required")
		}
		cfg.JWTSecret = uuid.NewString()
		log.Warn().Msg("JWT_SECRET not set, using an ephemeral secret")
	}

	crmClient, err := crm.NewClient(crm.Options{
		BaseURL:        cfg.CRMBaseURL,
		APIKey:         cfg.CRMAPIKey,
		HTTPClient:     opts.CRMHTTPClient,
		RequestTimeout: cfg.CRMTimeout,
		Logger:         &log,
	})
	if err != nil {
		return nil, cleanup, err
	}

	var (
		db       *gorm.DB
		store    sessionService.Store
		gateway  paymentService.Gateway
		recorder paymentService.AttemptRecorder
		attempts *paymentController.AttemptController
	)
	if opts.Memory {
		log.Warn().Msg("memory mode: sessions are not persisted and payments are simulated")
		store = sessionService.NewMemoryStore()
		gateway = paymentService.NewFakeGateway()
	} else {
		db, err = database.ConnectDB(cfg, log)
		if err != nil {
			return nil, cleanup, err
		}
		database.TunePool(db, log)
		database.WarmUpQueries(db, log)
		cleanup = func() { database.Close(db) }

		store = sessionService.NewGormStore(db)
		repo := paymentService.NewAttemptRepository(db)
		recorder = repo
		attempts = paymentController.NewAttemptController(repo, log)
		gateway = paymentService.NewStripeGateway(paymentService.StripeOptions{
			SecretKey: cfg.StripeSecretKey,
			ReturnURL: cfg.LandingURL,
		})
	}

	wizard := wizardService.New(wizardService.Deps{
		Store:    store,
		Verifier: verificationService.New(crmClient, log),
		Acquirer: paymentService.NewAcquirer(crmClient, retry.Fixed(cfg.SecretPollAttempts, cfg.SecretPollDelay), log),
		Confirmer: paymentService.NewConfirmer(gateway, crmClient, paymentService.ConfirmerOptions{
			AcceptRequiresAction: cfg.PaymentLegacyCardFlow,
			Recorder:             recorder,
		}, log),
		Donors:        crmClient,
		DevAccessHash: cfg.DevAccessHash,
		Log:           log,
	})
	tokens := sessionService.NewTokens(cfg.JWTSecret, cfg.SessionTTL)

	app := fiber.New(fiber.Config{
		JSONEncoder:             sonic.Marshal,
		JSONDecoder:             sonic.Unmarshal,
		DisableStartupMessage:   true,
		ErrorHandler:            helper.FromFiberError,
		ProxyHeader:             fiber.HeaderXForwardedFor,
		EnableTrustedProxyCheck: true,
		TrustedProxies:          []string{"0.0.0.0/0"},
		ReadTimeout:             15 * time.Second,
		WriteTimeout:            45 * time.Second,
		IdleTimeout:             90 * time.Second,
	})

	app.Use(middlewares.RecoveryMiddleware(log))
	app.Use(logger.LoggerMiddleware(log, requestTimeout))
	app.Use(compress.New(compress.Config{Level: compress.LevelDefault}))
	app.Use(etag.New())
	app.Use(middlewares.CorsMiddleware(cfg.AllowedOrigins))
	app.Use(middlewares.GlobalRateLimiter())

	routes.SetupRoutes(app, routes.Deps{
		DB:          db,
		Wizard:      wizardController.NewWizardController(wizard, tokens, cfg.LandingURL, !cfg.IsDevelopment(), log),
		Attempts:    attempts,
		Tokens:      tokens,
		AdminAPIKey: cfg.AdminAPIKey,
		Environment: cfg.AppEnv,
		Log:         log,
	})

	return app, cleanup, nil
}
