package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/pharmaintel/helix/config"
	approvalrepo "github.com/pharmaintel/helix/internal/repositories/approval"
	companyrepo "github.com/pharmaintel/helix/internal/repositories/company"
	drugrepo "github.com/pharmaintel/helix/internal/repositories/drug"
	executionrepo "github.com/pharmaintel/helix/internal/repositories/execution"
	filingrepo "github.com/pharmaintel/helix/internal/repositories/filing"
	indicationrepo "github.com/pharmaintel/helix/internal/repositories/indication"
	searchrepo "github.com/pharmaintel/helix/internal/repositories/search"
	synonymrepo "github.com/pharmaintel/helix/internal/repositories/synonym"
	targetrepo "github.com/pharmaintel/helix/internal/repositories/target"
	trialrepo "github.com/pharmaintel/helix/internal/repositories/trial"
	"github.com/pharmaintel/helix/pkg/database"
	"github.com/pharmaintel/helix/pkg/events"
	"github.com/pharmaintel/helix/pkg/ingest"
	"github.com/pharmaintel/helix/pkg/kafka"
	"github.com/pharmaintel/helix/pkg/middleware"
	"github.com/pharmaintel/helix/pkg/resolver"
	adminroute "github.com/pharmaintel/helix/pkg/routes/admin"
	"github.com/pharmaintel/helix/pkg/routes/health"
	indicationroute "github.com/pharmaintel/helix/pkg/routes/indication"
	searchroute "github.com/pharmaintel/helix/pkg/routes/search"
	"github.com/pharmaintel/helix/pkg/sources"
	"github.com/pharmaintel/helix/pkg/startup"
	"github.com/pharmaintel/helix/pkg/tracing"
	"github.com/pharmaintel/helix/pkg/tracing/exporters"
)

const appVersion = "0.1.0"

type application struct {
	cfg    *config.Config
	logger ectologger.Logger

	sqlxDB   *sqlx.DB
	db       database.DB
	producer *kafka.Producer
	echo     *echo.Echo
	health   *health.Checker
}

func main() {
	_ = godotenv.Load()

	cfg := &config.Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	ctx := context.Background()

	if cfg.TracingEnabled {
		shutdownTracing, err := initTracing(ctx, cfg)
		if err != nil {
			logger.WithError(err).Error("Failed to initialize tracing")
		} else {
			defer shutdownTracing(ctx)
		}
	}

	app := &application{cfg: cfg, logger: logger}

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	boot.AddDependency(&dependency{
		name:  "postgres",
		start: app.startDatabase,
		stop:  app.stopDatabase,
	})
	boot.AddDependency(&dependency{
		name:      "services",
		dependsOn: []string{"postgres"},
		start:     app.startServices,
		stop:      app.stopServices,
	})
	boot.AddDependency(&dependency{
		name:      "http-server",
		dependsOn: []string{"services"},
		start:     app.startHTTP,
		stop:      app.stopHTTP,
	})

	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		os.Exit(1)
	}

	if app.health != nil {
		app.health.SetReady(true)
	}
	logger.WithField("port", cfg.Port).Info("Service started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	var err error
	if cfg.PrettyLogs {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func initTracing(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	exporter, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
		Endpoint: cfg.TracingOTLPEndpoint,
		Protocol: cfg.TracingOTLPProtocol,
		Insecure: true,
		Timeout:  10 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(sdkresource.NewSchemaless(
			attribute.String("service.name", cfg.AppName),
			attribute.String("service.version", appVersion),
		)),
	)
	otel.SetTracerProvider(provider)
	tracing.SetTracer(provider.Tracer(cfg.AppName))

	return provider.Shutdown, nil
}

func (app *application) startDatabase(ctx context.Context) error {
	cfg := app.cfg
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
	)

	db, err := sqlx.ConnectContext(ctx, cfg.DatabaseDriver, dsn)
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return err
	}

	migrations := database.NewMigrationService(app.logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrations.Migrate(cfg.DatabaseName, driver); err != nil {
		return err
	}

	app.sqlxDB = db
	app.db = database.NewDatabaseInstance(db, app.logger)
	return nil
}

func (app *application) stopDatabase(ctx context.Context) error {
	if app.db != nil {
		return app.db.Close()
	}
	return nil
}

func (app *application) startServices(ctx context.Context) error {
	cfg := app.cfg
	logger := app.logger

	if cfg.KafkaProducerEnabled {
		app.producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
	}
	emitter := events.NewEmitter(app.producer, cfg.KafkaRunTopic, cfg.KafkaEntityTopic, logger)

	companies := companyrepo.NewRepository(app.db, logger)
	drugs := drugrepo.NewRepository(app.db, logger)
	indications := indicationrepo.NewRepository(app.db, logger)
	targets := targetrepo.NewRepository(app.db, logger)
	synonyms := synonymrepo.NewRepository(app.db, logger)
	trials := trialrepo.NewRepository(app.db, logger)
	approvals := approvalrepo.NewRepository(app.db, logger)
	filings := filingrepo.NewRepository(app.db, logger)
	executions := executionrepo.NewRepository(app.db, logger)
	searches := searchrepo.NewRepository(app.db, logger)

	res := resolver.New(synonyms, logger, companies, drugs, indications, targets)
	writer := ingest.NewWriter(app.db, res, trials, approvals, filings, drugs, cfg.IngestChunkSize, logger)

	timeout := time.Duration(cfg.SourceTimeoutSeconds) * time.Second
	retry := sources.RetryConfig{
		MaxRetries:     cfg.SourceMaxRetries,
		InitialBackoff: cfg.SourceBackoffInitial,
	}
	ctgov := sources.NewCTGovClient(cfg.CTGovBaseURL, cfg.CTGovPageSize, timeout, retry, logger)
	fda := sources.NewFDAClient(cfg.OpenFDABaseURL, cfg.OpenFDAAPIKey, cfg.OpenFDAPageSize, timeout, retry, logger)
	edgar := sources.NewEdgarClient(cfg.EdgarBaseURL, cfg.EdgarUserAgent, timeout, retry, logger)

	pipeline := ingest.NewPipeline(executions, writer, ctgov, fda, edgar, companies, searches, emitter, cfg.SourceDaysBack, logger)

	container := ectoinject.GetDefaultContainer()
	if err := ectoinject.RegisterInstance[ectologger.Logger](container, logger); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*config.Config](container, cfg); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[database.DB](container, app.db); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*executionrepo.Repository](container, executions); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*indicationrepo.Repository](container, indications); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*trialrepo.Repository](container, trials); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*searchrepo.Repository](container, searches); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*ingest.Pipeline](container, pipeline); err != nil {
		return err
	}
	return nil
}

func (app *application) stopServices(ctx context.Context) error {
	if app.producer != nil {
		return app.producer.Close()
	}
	return nil
}

func (app *application) startHTTP(ctx context.Context) error {
	cfg := app.cfg

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(app.logger)
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	if cfg.TracingEnabled {
		e.Use(otelecho.Middleware(cfg.AppName))
	}
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(app.logger))

	app.health = health.NewChecker(app.db, appVersion)
	app.health.RegisterRoutes(e)

	api := e.Group("/api")
	adminroute.Register(api.Group("/admin"))
	searchroute.Register(api.Group("/search"))
	indicationroute.Register(api.Group("/indications"))

	app.echo = e

	go func() {
		if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			app.logger.WithError(err).Error("HTTP server stopped unexpectedly")
		}
	}()
	return nil
}

func (app *application) stopHTTP(ctx context.Context) error {
	if app.health != nil {
		app.health.SetReady(false)
	}
	if app.echo != nil {
		return app.echo.Shutdown(ctx)
	}
	return nil
}

// dependency adapts start/stop funcs to the startup dependency interface.
type dependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *dependency) GetName() string     { return d.name }
func (d *dependency) DependsOn() []string { return d.dependsOn }
func (d *dependency) Start(ctx context.Context) error {
	return d.start(ctx)
}
func (d *dependency) Stop(ctx context.Context) error {
	if d.stop == nil {
		return nil
	}
	return d.stop(ctx)
}
