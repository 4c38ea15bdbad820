package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/smartscale/scale-server/internal/app"
	"github.com/smartscale/scale-server/internal/config"
	"github.com/smartscale/scale-server/internal/server"
	"github.com/smartscale/scale-server/internal/worker"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var Cmd = &cobra.Command{
	Use:   "run",
	Short: "Start the smartscale server and worker",
	RunE:  runApp,
}

func init() {
	flags := Cmd.Flags()

	flags.Int("port", 8880, "Port to run the server on")
	flags.String("host", "localhost", "Host to run the server on")
	flags.String("environment", "dev", "Environment configuration")
	flags.String("filesystem-type", "local", "Filesystem type: 'local' or 's3'")
	flags.String("public-dir", "", "Path where static files should be served from")
	flags.String("admin-token", "", "Shared secret for the admin endpoints")

	flags.String("db-driver", "sqlite", "Database driver: 'sqlite' or 'pg'")
	flags.String("db-dsn", "file:smartscale.db?cache=shared&mode=rwc", "Database DSN (Connection URL or Path)")
	flags.String("pulsar-url", "", "URL of the pulsar broker. Example: pulsar://localhost:6650")
	flags.String("redis-url", "", "URL of the redis result cache. Example: redis://localhost:6379/0")

	flags.String("model-id", config.DefaultModelID, "Classifier to load when the registry is empty")
	flags.String("model-revision", config.DefaultModelRevision, "Revision of the default classifier")
	flags.String("runtime-host", "localhost", "Host of the model runtime sidecar")
	flags.Int("runtime-tcp-port", config.DefaultRuntimePort, "TCP port of the model runtime sidecar")
	flags.Int("worker-count", config.DefaultWorkerCount, "Number of concurrent inference workers")

	flags.String("s3-access-key", "", "S3 access key")
	flags.String("s3-secret-key", "", "S3 secret key")
	flags.String("s3-region-name", "", "S3 region name")
	flags.String("s3-bucket-name", "", "S3 bucket name")
	flags.String("s3-folder", "", "S3 folder")
	flags.String("s3-public-url", "", "Public URL for S3 files")
	flags.String("s3-endpoint-url", "", "S3 endpoint URL")

	bindFlags()
	bindEnvs()
}

func bindFlags() {
	flags := Cmd.Flags()

	viper.BindPFlag("port", flags.Lookup("port"))
	viper.BindPFlag("host", flags.Lookup("host"))
	viper.BindPFlag("environment", flags.Lookup("environment"))
	viper.BindPFlag("filesystem_type", flags.Lookup("filesystem-type"))
	viper.BindPFlag("public_dir", flags.Lookup("public-dir"))
	viper.BindPFlag("admin_token", flags.Lookup("admin-token"))

	viper.BindPFlag("db.driver", flags.Lookup("db-driver"))
	viper.BindPFlag("db.dsn", flags.Lookup("db-dsn"))
	viper.BindPFlag("pulsar.url", flags.Lookup("pulsar-url"))
	viper.BindPFlag("redis.url", flags.Lookup("redis-url"))

	viper.BindPFlag("model.id", flags.Lookup("model-id"))
	viper.BindPFlag("model.revision", flags.Lookup("model-revision"))
	viper.BindPFlag("runtime.host", flags.Lookup("runtime-host"))
	viper.BindPFlag("runtime.tcp_port", flags.Lookup("runtime-tcp-port"))
	viper.BindPFlag("worker.count", flags.Lookup("worker-count"))

	viper.BindPFlag("s3.access_key", flags.Lookup("s3-access-key"))
	viper.BindPFlag("s3.secret_key", flags.Lookup("s3-secret-key"))
	viper.BindPFlag("s3.region_name", flags.Lookup("s3-region-name"))
	viper.BindPFlag("s3.bucket_name", flags.Lookup("s3-bucket-name"))
	viper.BindPFlag("s3.folder", flags.Lookup("s3-folder"))
	viper.BindPFlag("s3.public_url", flags.Lookup("s3-public-url"))
	viper.BindPFlag("s3.endpoint_url", flags.Lookup("s3-endpoint-url"))
}

func bindEnvs() {
	// Core settings, read with the SCALE_ prefix
	// Example: SCALE_PORT
	viper.BindEnv("port")
	viper.BindEnv("host")
	viper.BindEnv("environment")
	viper.BindEnv("filesystem_type")
	viper.BindEnv("public_dir")
	viper.BindEnv("admin_token")
	viper.BindEnv("confidence_threshold")

	viper.BindEnv("db.driver")
	viper.BindEnv("db.dsn")
	viper.BindEnv("pulsar.url")
	viper.BindEnv("redis.url")

	viper.BindEnv("model.id")
	viper.BindEnv("model.revision")
	viper.BindEnv("model.input_size")
	viper.BindEnv("runtime.host")
	viper.BindEnv("runtime.tcp_port")
	viper.BindEnv("runtime.tcp_timeout")
	viper.BindEnv("pricing.default_price_per_kg")
	viper.BindEnv("worker.count")
	viper.BindEnv("worker.queue_size")

	// S3 bindings, SCALE_ prefixed as well
	// example: SCALE_S3_ACCESS_KEY
	viper.BindEnv("s3.access_key")
	viper.BindEnv("s3.secret_key")
	viper.BindEnv("s3.region_name")
	viper.BindEnv("s3.bucket_name")
	viper.BindEnv("s3.folder")
	viper.BindEnv("s3.public_url")
	viper.BindEnv("s3.endpoint_url")

	// External services (no SCALE_ prefix)
	viper.BindEnv("hf_token", "HF_TOKEN")
}

func runApp(_ *cobra.Command, _ []string) error {
	application, err := createNewApp()
	if err != nil {
		return err
	}
	defer application.Close()

	ctx := application.Context()

	processor := worker.NewProcessor(application)
	if err := processor.Startup(ctx); err != nil {
		return err
	}

	srv, err := runServer(application)
	if err != nil {
		return err
	}

	errc := make(chan error, 2)
	signalc := make(chan os.Signal, 1)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	go func() {
		if err := processor.Run(ctx); err != nil {
			errc <- err
		}
	}()

	signal.Notify(signalc, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		srv.Stop(ctx)
		return err
	case sig := <-signalc:
		application.Logger.Info("shutting down", zap.String("signal", sig.String()))
		if err := srv.Stop(ctx); err != nil {
			application.Logger.Warn("server shutdown failed", zap.Error(err))
		}
		processor.Stop()
		return nil
	}
}

func createNewApp() (*app.App, error) {
	return app.NewApp(
		config.GetConfig(),
		app.WithDBInitialization(),
		app.WithMQ(),
		app.WithImageStore(),
		app.WithResultCache(),
		app.WithModelRuntime(),
		app.WithPricing(),
	)
}

func runServer(application *app.App) (*server.Server, error) {
	srv, err := server.NewServer(application.Config())
	if err != nil {
		return nil, err
	}

	srv.SetupRoutes(application)
	fmt.Printf("SmartScale server started on port %v\n", application.Config().Port)

	return srv, nil
}
