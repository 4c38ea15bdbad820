package config

import (
	"errors"

	"github.com/spf13/viper"
)

const DefaultScaleHome = "~/.smartscale"

const (
	DefaultModelID       = "Adriana213/vgg16-fruit-classifier"
	DefaultModelRevision = "main"
	DefaultInputSize     = 100

	DefaultPricePerKG          = 2.99
	DefaultConfidenceThreshold = 0.55

	DefaultRuntimePort    = 8890
	DefaultRuntimeTimeout = 30

	DefaultWorkerCount = 4
	DefaultQueueSize   = 128
)

var DefaultInferenceTopic = "smartscale/inference/requests"

var (
	ErrScaleHomeNotSet       = errors.New("smartscale home directory is not set")
	ErrScaleHomeExpandFailed = errors.New("failed to expand smartscale home directory")
)

func setDefaults() {
	viper.SetDefault("environment", "dev")
	viper.SetDefault("filesystem_type", FilesystemLocal)
	viper.SetDefault("confidence_threshold", DefaultConfidenceThreshold)

	viper.SetDefault("db.driver", "sqlite")
	viper.SetDefault("db.dsn", "file:smartscale.db?cache=shared&mode=rwc")

	viper.SetDefault("model.id", DefaultModelID)
	viper.SetDefault("model.revision", DefaultModelRevision)
	viper.SetDefault("model.input_size", DefaultInputSize)

	viper.SetDefault("runtime.host", "localhost")
	viper.SetDefault("runtime.tcp_port", DefaultRuntimePort)
	viper.SetDefault("runtime.tcp_timeout", DefaultRuntimeTimeout)

	viper.SetDefault("pricing.default_price_per_kg", DefaultPricePerKG)

	viper.SetDefault("worker.count", DefaultWorkerCount)
	viper.SetDefault("worker.queue_size", DefaultQueueSize)
}
