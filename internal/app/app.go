package app

import (
	"context"
	"fmt"

	"github.com/smartscale/scale-server/internal/cache"
	"github.com/smartscale/scale-server/internal/config"
	"github.com/smartscale/scale-server/internal/db"
	"github.com/smartscale/scale-server/internal/db/drivers"
	"github.com/smartscale/scale-server/internal/db/models"
	"github.com/smartscale/scale-server/internal/db/repository"
	"github.com/smartscale/scale-server/internal/mq"
	"github.com/smartscale/scale-server/internal/services/imagestore"
	"github.com/smartscale/scale-server/internal/services/inference"
	"github.com/smartscale/scale-server/internal/services/modelcache"
	"github.com/smartscale/scale-server/internal/services/modelruntime"
	"github.com/smartscale/scale-server/internal/services/pricing"
	"github.com/smartscale/scale-server/pkg/logger"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

type App struct {
	mq          mq.MQ
	db          *bun.DB
	config      *config.Config
	ctx         context.Context
	cancelFunc  context.CancelFunc
	imageStore  imagestore.FileStorage
	runtime     *modelruntime.Runtime
	modelCache  *modelcache.Cache
	executor    *inference.Executor
	pricing     *pricing.Resolver
	resultCache cache.Cache

	Logger *zap.Logger

	JobRepository      repository.IJobRepository
	RegistryRepository repository.IRegistryRepository
	PriceRepository    repository.IPriceRepository
}

// Option funcs used to initialize the App struct
type OptionFunc func(app *App) error

func WithDB(driver drivers.Driver) OptionFunc {
	return func(app *App) error {
		app.db = driver.GetDB()
		return nil
	}
}

func WithLogger(logger *zap.Logger) OptionFunc {
	return func(app *App) error {
		app.Logger = logger
		return nil
	}
}

func WithMQ() OptionFunc {
	return func(app *App) error {
		mq, err := mq.NewMQ(app.config)
		if err != nil {
			return err
		}
		app.mq = mq
		return nil
	}
}

func WithDBInitialization() OptionFunc {
	return func(app *App) error {
		dbConn, err := db.NewConnection(app.ctx, app.config)
		if err != nil {
			return err
		}
		app.db = dbConn.GetDB()

		// Ensure tables exist
		err = app.db.RunInTx(app.ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			tables := []interface{}{
				(*models.InferenceJob)(nil),
				(*models.ModelRegistryEntry)(nil),
				(*models.ProductPrice)(nil),
			}

			for _, table := range tables {
				if _, err := tx.NewCreateTable().
					Model(table).
					IfNotExists().
					Exec(ctx); err != nil {
					return fmt.Errorf("failed to create table: %w", err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		app.JobRepository = repository.NewJobRepository(app.db)
		app.RegistryRepository = repository.NewRegistryRepository(app.db)
		app.PriceRepository = repository.NewPriceRepository(app.db)

		return nil
	}
}

func WithImageStore() OptionFunc {
	return func(app *App) error {
		store, err := imagestore.NewFileStorage(app.Config())
		if err != nil {
			return err
		}
		app.imageStore = store
		return nil
	}
}

func WithResultCache() OptionFunc {
	return func(app *App) error {
		resultCache, err := cache.NewCache(app.Config())
		if err != nil {
			return err
		}
		app.resultCache = resultCache
		return nil
	}
}

// WithModelRuntime wires the TCP sidecar client, the model cache on top
// of it, and the predict executor.
func WithModelRuntime() OptionFunc {
	return func(app *App) error {
		runtime, err := modelruntime.NewRuntime(app.Config(), app.Logger)
		if err != nil {
			return err
		}

		app.runtime = runtime
		app.modelCache = modelcache.NewCache(modelcache.NewHubLoader(app.Config(), runtime, app.Logger), app.Logger)
		app.executor = inference.NewExecutor(app.Config(), app.Logger)
		return nil
	}
}

// WithPricing requires WithDBInitialization to have run first.
func WithPricing() OptionFunc {
	return func(app *App) error {
		if app.PriceRepository == nil {
			return fmt.Errorf("pricing requires an initialized database")
		}

		app.pricing = pricing.NewResolver(app.Config(), app.PriceRepository, app.Logger)
		return nil
	}
}

func NewApp(config *config.Config, options ...OptionFunc) (*App, error) {
	logger, err := logger.InitLogger(config)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		ctx:        ctx,
		config:     config,
		Logger:     logger,
		cancelFunc: cancel,
	}

	for _, opt := range options {
		if err := opt(app); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to initialize app: %w", err)
		}
	}

	return app, nil
}

func (app *App) Close() {
	app.cancelFunc()

	if app.modelCache != nil {
		if err := app.modelCache.Close(); err != nil {
			app.Logger.Warn("failed to close model cache", zap.Error(err))
		}
	}

	if app.runtime != nil {
		if err := app.runtime.Close(); err != nil {
			app.Logger.Warn("failed to close model runtime", zap.Error(err))
		}
	}

	if app.mq != nil {
		app.mq.Close()
	}

	if app.resultCache != nil {
		if err := app.resultCache.Close(); err != nil {
			app.Logger.Warn("failed to close result cache", zap.Error(err))
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.Logger.Warn("failed to close database", zap.Error(err))
		}
	}

	app.Logger.Sync()
}

func (app *App) Config() *config.Config {
	return app.config
}

func (app *App) Context() context.Context {
	return app.ctx
}

func (app *App) MQ() mq.MQ {
	return app.mq
}

func (app *App) DB() *bun.DB {
	return app.db
}

func (app *App) ImageStore() imagestore.FileStorage {
	return app.imageStore
}

func (app *App) Runtime() *modelruntime.Runtime {
	return app.runtime
}

func (app *App) ModelCache() *modelcache.Cache {
	return app.modelCache
}

func (app *App) Executor() *inference.Executor {
	return app.executor
}

func (app *App) Pricing() *pricing.Resolver {
	return app.pricing
}

func (app *App) ResultCache() cache.Cache {
	return app.resultCache
}
