// Package main provides the Voxflow API server: the provider-facing voice
// webhook surface and the management REST API in one process.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxflow/voxflow/pkg/channels/gochannel"
	"github.com/voxflow/voxflow/pkg/channels/kafka"
	"github.com/voxflow/voxflow/pkg/dispatch"
	"github.com/voxflow/voxflow/pkg/engine"
	"github.com/voxflow/voxflow/pkg/eventbus"
	"github.com/voxflow/voxflow/pkg/metrics"
	"github.com/voxflow/voxflow/pkg/notify"
	"github.com/voxflow/voxflow/pkg/persistence"
	filepersistence "github.com/voxflow/voxflow/pkg/persistence/file"
	"github.com/voxflow/voxflow/pkg/persistence/postgresql"
	"github.com/voxflow/voxflow/pkg/services"
	"github.com/voxflow/voxflow/pkg/statestore"
	"github.com/voxflow/voxflow/pkg/statestore/memory"
	redisstore "github.com/voxflow/voxflow/pkg/statestore/redis"
	"github.com/voxflow/voxflow/pkg/tracing"
	"github.com/voxflow/voxflow/pkg/web"
	"github.com/voxflow/voxflow/pkg/webhook"
)

// Options carries the resolved command line configuration.
type Options struct {
	DatabaseURL       string
	RedisURL          string
	EventBus          string
	KafkaBrokers      string
	PublicBaseURL     string
	WebhookAuthToken  string
	LeadEndpoint      string
	ExecutionTimeout  time.Duration
	MaxNodeExecutions int
	TracingEnabled    bool
}

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	manager     *engine.Manager
	dispatcher  *dispatch.Dispatcher
	bus         eventbus.EventBus
	metrics     *metrics.Metrics
	registry    *prometheus.Registry
	signature   *webhook.SignatureValidator
	validate    *validator.Validate
	baseURL     string
}

// NewAPI wires the full server. The returned cleanup releases every owned
// resource and must run on shutdown.
func NewAPI(ctx context.Context, logger *slog.Logger, opts Options) (*API, func(context.Context), error) {
	if opts.TracingEnabled {
		if _, err := tracing.NewTracer(ctx, "voxflow-api"); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	p, err := newPersistence(ctx, logger, opts.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	store, err := newStateStore(opts.RedisURL)
	if err != nil {
		return nil, nil, err
	}

	bus, err := newEventBus(logger, opts.EventBus, opts.KafkaBrokers)
	if err != nil {
		return nil, nil, err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	manager := engine.NewManager(store, p, bus, m, logger, engine.Config{
		ExecutionTimeout:  opts.ExecutionTimeout,
		MaxNodeExecutions: opts.MaxNodeExecutions,
	})

	if err := manager.StartSweeper(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to start sweeper: %w", err)
	}

	notifier := notify.NewLeadNotifier(opts.LeadEndpoint, logger)
	if err := notifier.Register(bus); err != nil {
		return nil, nil, fmt.Errorf("failed to register lead notifier: %w", err)
	}

	if err := bus.Subscribe(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to subscribe event bus: %w", err)
	}

	api := &API{
		logger:      logger,
		persistence: p,
		manager:     manager,
		dispatcher:  dispatch.NewDispatcher(manager, m, logger, opts.PublicBaseURL),
		bus:         bus,
		metrics:     m,
		registry:    registry,
		signature:   webhook.NewSignatureValidator(opts.WebhookAuthToken),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		baseURL:     opts.PublicBaseURL,
	}

	cleanup := func(ctx context.Context) {
		manager.StopSweeper()

		if err := bus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}

		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close state store", "error", err)
		}

		if err := p.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}

	return api, cleanup, nil
}

func (a *API) App() *fiber.App {
	workflowService := services.NewWorkflow(a.persistence, a.bus, a.logger)
	executionService := services.NewExecution(a.manager, a.persistence)

	handlers := web.NewAPIHandlers(workflowService, executionService, a.validate)
	voiceHandlers := webhook.NewHandlers(a.manager, a.dispatcher, a.persistence, a.signature, a.metrics, a.logger, a.baseURL)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Voxflow API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/validate", handlers.ValidateWorkflow)
	w.Post("/:id/activate", handlers.ActivateWorkflow)
	w.Post("/:id/archive", handlers.ArchiveWorkflow)

	e := app.Group("/executions")
	e.Get("/", handlers.GetActiveExecutions)
	e.Get("/logs", handlers.GetExecutionLogs)
	e.Get("/:callId", handlers.GetExecution)
	e.Post("/:callId/stop", handlers.StopExecution)

	voiceHandlers.Register(app)

	app.Get("/health", handlers.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}

// newPersistence selects the storage backend from the URL scheme.
func newPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	case strings.HasPrefix(databaseURL, "file://"):
		return filepersistence.NewPersistence(databaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported database URL: %s", databaseURL)
	}
}

// newStateStore keeps live state in Redis when configured, in process
// memory otherwise. Memory is single-instance only.
func newStateStore(redisURL string) (statestore.Store, error) {
	if redisURL == "" {
		return memory.NewStore(), nil
	}

	return redisstore.New(redisURL)
}

func newEventBus(logger *slog.Logger, kind, brokers string) (eventbus.EventBus, error) {
	switch kind {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), brokers, "voxflow")
		if err != nil {
			return nil, err
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			return nil, err
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", kind)
	}
}
