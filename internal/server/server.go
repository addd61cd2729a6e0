package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schemalens/schemalens/internal/queue"
	mid "github.com/schemalens/schemalens/internal/server/middleware"
	"github.com/schemalens/schemalens/internal/storage"
	"github.com/schemalens/schemalens/internal/util"
	"github.com/schemalens/schemalens/pkg/builder"
	"github.com/schemalens/schemalens/pkg/discovery"
	cachepgx "github.com/schemalens/schemalens/pkg/graphcache/pgx"
	"github.com/schemalens/schemalens/pkg/leaselock"
	"github.com/schemalens/schemalens/pkg/logger"
	"github.com/schemalens/schemalens/pkg/metadata"
	"github.com/schemalens/schemalens/pkg/metadata/postgres"
	"github.com/schemalens/schemalens/pkg/metadata/sqlite"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
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

// NewMetadataProvider builds the schema backend selected by
// METADATA_ADAPTER. The engine only ever sees the metadata.Provider
// interface; no handler branches on the concrete backend.
func NewMetadataProvider(ctx context.Context) (metadata.Provider, error) {
	adapter := util.GetEnvString("METADATA_ADAPTER", "postgres")
	switch adapter {
	case "sqlite":
		return sqlite.NewProvider(util.GetEnv("SOURCE_SQLITE_PATH"))
	default:
		return postgres.NewProvider(ctx, postgres.ProviderParams{
			ConnString: util.GetEnv("SOURCE_DATABASE_URL"),
			Schema:     util.GetEnvString("SOURCE_SCHEMA", "public"),
		})
	}
}

// NewRebuilder wires the rebuild pipeline from env configuration. locker is
// normally the lease lock so rebuilds serialize across processes.
func NewRebuilder(provider metadata.Provider, conn *pgxpool.Pool, locker builder.Locker) *builder.Rebuilder {
	return builder.NewRebuilder(builder.RebuilderParams{
		Provider: provider,
		Store:    cachepgx.NewGraphCacheStore(conn),
		Locker:   locker,
		Discovery: discovery.Config{
			Fuzzy: util.GetEnvBool("GRAPH_FUZZY_DISCOVERY", false),
		},
		Threshold:       util.GetEnvFloat("GRAPH_CONFIDENCE_THRESHOLD", builder.DefaultThreshold),
		MaxRecords:      util.GetEnvInt("GRAPH_MAX_RECORDS", builder.DefaultMaxRecords),
		ParallelSamples: util.GetEnvInt("GRAPH_PARALLEL_SAMPLES", builder.DefaultParallelSamples),
	})
}

func RunMigrations() {
	path := util.GetEnvString("MIGRATIONS_PATH", "migrations")
	m, err := migrate.New("file://"+path, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Failed to load migrations", "err", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		logger.Fatal("Failed to run migrations", "err", err)
	}
}

func Init() {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	jwksUrl := util.GetEnv("AUTH_URL") + "/jwks"
	k, err := keyfunc.NewDefault([]string{jwksUrl})
	if err != nil {
		logger.Fatal("Failed to load jwks keys", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	RunMigrations()

	conn, err := pgxpool.New(ctx, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer conn.Close()

	provider, err := NewMetadataProvider(ctx)
	if err != nil {
		logger.Fatal("Failed to connect to metadata source", "err", err)
	}
	defer provider.Close()

	que := queue.Init()
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	if err := queue.SetupQueues(ch, []string{queue.RebuildQueue}); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	s3 := storage.NewS3Client(ctx)

	locker := &builder.LeaseLocker{Client: leaselock.New(conn)}
	rebuilder := NewRebuilder(provider, conn, locker)

	app := &mid.App{
		DBConn:       conn,
		Queue:        ch,
		Key:          &k,
		S3:           s3,
		Provider:     provider,
		Store:        cachepgx.NewGraphCacheStore(conn),
		Rebuilder:    rebuilder,
		MasterAPIKey: util.GetEnv("MASTER_API_KEY"),
	}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())

	RegisterRoutes(e)

	go func() {
		port := util.GetEnv("PORT")
		if port == "" {
			port = "8080"
		}
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}
