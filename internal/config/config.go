package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/smartscale/scale-server/internal/templates"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	FilesystemLocal = "local"
	FilesystemS3    = "s3"
)

const scalePrefix = "SCALE"

type Config struct {
	Port        int    `mapstructure:"port"`
	Host        string `mapstructure:"host"`
	ScaleHome   string `mapstructure:"scale_home"`
	Environment string `mapstructure:"environment"`
	ImagesDir   string `mapstructure:"images_dir"`
	ModelsDir   string `mapstructure:"models_dir"`
	TempDir     string `mapstructure:"temp_dir"`
	PublicDir   string `mapstructure:"public_dir"`
	Filesystem  string `mapstructure:"filesystem_type"`
	AdminToken  string `mapstructure:"admin_token"`

	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`

	DB      *DBConfig      `mapstructure:"db"`
	Pulsar  *PulsarConfig  `mapstructure:"pulsar"`
	Redis   *RedisConfig   `mapstructure:"redis"`
	S3      *S3Config      `mapstructure:"s3"`
	Model   *ModelConfig   `mapstructure:"model"`
	Runtime *RuntimeConfig `mapstructure:"runtime"`
	Pricing *PricingConfig `mapstructure:"pricing"`
	Worker  *WorkerConfig  `mapstructure:"worker"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type PulsarConfig struct {
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type S3Config struct {
	Folder    string `mapstructure:"folder"`
	Region    string `mapstructure:"region_name"`
	Bucket    string `mapstructure:"bucket_name"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Endpoint  string `mapstructure:"endpoint_url"`
	PublicUrl string `mapstructure:"public_url"`
}

// ModelConfig is the fallback classifier identity used when the model
// registry table has no row yet.
type ModelConfig struct {
	ID        string `mapstructure:"id"`
	Revision  string `mapstructure:"revision"`
	InputSize int    `mapstructure:"input_size"`
}

type RuntimeConfig struct {
	Host       string `mapstructure:"host"`
	TcpPort    int    `mapstructure:"tcp_port"`
	TcpTimeout int    `mapstructure:"tcp_timeout"`
}

type PricingConfig struct {
	DefaultPricePerKG float64 `mapstructure:"default_price_per_kg"`
}

type WorkerConfig struct {
	Count     int `mapstructure:"count"`
	QueueSize int `mapstructure:"queue_size"`
}

var config *Config

func InitConfig() error {
	scaleHome, err := getScaleHome()
	if err != nil {
		return err
	}

	imagesDir, err := getSubDir(scaleHome, "images_dir", "images")
	if err != nil {
		return err
	}

	modelsDir, err := getSubDir(scaleHome, "models_dir", "models")
	if err != nil {
		return err
	}

	tempDir, err := getSubDir(scaleHome, "temp_dir", "temp")
	if err != nil {
		return err
	}

	if err := CreateScaleHomeDirs(scaleHome); err != nil {
		return err
	}

	viper.Set("scale_home", scaleHome)
	viper.Set("images_dir", imagesDir)
	viper.Set("models_dir", modelsDir)
	viper.Set("temp_dir", tempDir)

	setDefaults()

	envFile := filepath.Join(scaleHome, ".env")
	configFile := filepath.Join(scaleHome, "config.yaml")

	if _, err := os.Stat(envFile); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat .env file: %w", err)
		}

		if err := templates.WriteEnv(envFile); err != nil {
			return fmt.Errorf("failed to create .env file: %w", err)
		}
	}

	if _, err := os.Stat(configFile); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config.yaml file: %w", err)
		}

		if err := templates.WriteConfig(configFile); err != nil {
			return fmt.Errorf("failed to create config.yaml file: %w", err)
		}
	}

	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix(scalePrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))
	viper.SetConfigFile(configFile)

	if err := LoadConfig(false); err != nil {
		if errors.As(err, &viper.ConfigFileNotFoundError{}) {
			fmt.Println("No config file found. Using default config.")
		} else {
			return err
		}
	}

	return nil
}

func LoadConfig(reload bool) error {
	if config != nil && !reload {
		return fmt.Errorf("config already loaded")
	}

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config: %w", err)
	}

	config = &Config{}
	err := viper.Unmarshal(config)
	if err != nil {
		return fmt.Errorf("error unmarshalling config: %w", err)
	}

	return nil
}

func GetConfig() *Config {
	if config == nil {
		panic("config not loaded")
	}

	return config
}

// Returns the smartscale home directory path, in order of preference:
// 1. The `scale_home` flag from viper.
// 2. The `SCALE_HOME` environment variable.
// 3. The default home directory.
func getScaleHome() (string, error) {
	scaleHome := viper.GetString("scale_home")
	if scaleHome == "" {
		scaleHome = os.Getenv("SCALE_HOME")
		if scaleHome == "" {
			scaleHome = DefaultScaleHome
		}
	}

	scaleHome, err := expandPath(scaleHome)
	if err != nil {
		return "", fmt.Errorf("failed to expand home path: %w", err)
	}

	return scaleHome, nil
}

func getSubDir(scaleHome, key, fallback string) (string, error) {
	if scaleHome == "" {
		return "", ErrScaleHomeNotSet
	}

	dir := viper.GetString(key)
	if dir == "" {
		dir = filepath.Join(scaleHome, fallback)
	}

	dir, err := expandPath(dir)
	if err != nil {
		return "", ErrScaleHomeExpandFailed
	}

	return dir, nil
}

// expandPath replaces a leading "~" with the user's home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}

		path = filepath.Join(homeDir, path[1:])
	}

	return path, nil
}

func CreateScaleHomeDirs(scaleHome string) error {
	subdirs := []string{"images", "models", "temp", "public"}
	if err := os.MkdirAll(scaleHome, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create home directory: %w", err)
	}

	for _, subdir := range subdirs {
		dir := filepath.Join(scaleHome, subdir)
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", subdir, err)
		}
	}

	return nil
}
