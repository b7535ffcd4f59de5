package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/lexgraph/backend/internal/db"
	mid "github.com/OFFIS-RIT/lexgraph/backend/internal/server/middleware"
	"github.com/OFFIS-RIT/lexgraph/backend/internal/setup"
	"github.com/OFFIS-RIT/lexgraph/backend/internal/util"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/logger"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/metrics"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/query"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/store/pgx"
	"github.com/OFFIS-RIT/lexgraph/backend/pkg/telemetry"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// New builds the echo instance with middleware and routes. Metrics are
// exposed from gatherer.
func New(app *mid.App, gatherer prometheus.Gatherer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))

	RegisterRoutes(e, gatherer)
	return e
}

func Init() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Init("lexgraph-server")
	defer shutdownTracing(context.Background())

	aiClient, err := setup.AIClient()
	if err != nil {
		logger.Fatal("Failed to create AI client", "err", err)
	}

	dbURL := util.GetEnv("DATABASE_URL")
	if err := db.Migrate(dbURL, util.GetEnvString("MIGRATIONS_PATH", db.DefaultMigrationsPath)); err != nil {
		logger.Fatal("Failed to migrate database", "err", err)
	}
	conn, err := db.Connect(ctx, dbURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer conn.Close()

	m := metrics.Default()

	graphStore, err := setup.GraphStore()
	if err != nil {
		logger.Fatal("Failed to create graph store", "err", err)
	}
	defer graphStore.Close(context.Background())

	resolver := query.NewGraphContextResolver(ctx, query.NewGraphContextResolverParams{
		Store:   graphStore,
		AI:      aiClient,
		Mode:    util.GetEnvString("GRAPH_CONTEXT_MODE", query.ModeFixed),
		Metrics: m,
	})

	synth, err := query.NewSynthesizer(query.NewSynthesizerParams{
		AI:      aiClient,
		Vectors: pgx.NewVectorStorage(conn),
		Graph:   resolver,
		Metrics: m,
		K:       util.GetEnvInt("RETRIEVER_K", query.DefaultK),
	})
	if err != nil {
		logger.Fatal("Failed to create synthesizer", "err", err)
	}

	app := &mid.App{
		Synthesizer:  synth,
		MasterAPIKey: util.GetEnv("MASTER_API_KEY"),
	}
	if authURL := util.GetEnv("AUTH_URL"); authURL != "" {
		k, err := keyfunc.NewDefault([]string{authURL + "/jwks"})
		if err != nil {
			logger.Fatal("Failed to load jwks keys", "err", err)
		}
		app.Keyfunc = k.Keyfunc
	}
	if !app.AuthEnabled() {
		logger.Warn("[Server] Authentication disabled, /chat is public")
	}

	e := New(app, prometheus.DefaultGatherer)

	go func() {
		port := util.GetEnvString("PORT", "8080")
		logger.Info("Starting server", "port", port, "graph_context", resolver.Available(), "mode", resolver.Mode())
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
