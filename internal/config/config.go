// Package config loads analyzer settings from defaults, an optional config file
// and ATC_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. ATC_MODEL_PATH
const EnvPrefix = "ATC"

// Config holds the application configuration
type Config struct {
	Model     ModelConfig     `mapstructure:"model"`
	Detection DetectionConfig `mapstructure:"detection"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Store     StoreConfig     `mapstructure:"store"`
	Output    OutputConfig    `mapstructure:"output"`
	Events    EventsConfig    `mapstructure:"events"`
	Log       LogConfig       `mapstructure:"log"`
}

// ModelConfig locates the keypoint model and its runtime
type ModelConfig struct {
	Path              string `mapstructure:"path"`
	Version           string `mapstructure:"version" validate:"required"`
	InputSize         int    `mapstructure:"input_size" validate:"gt=0"`
	InputName         string `mapstructure:"input_name" validate:"required"`
	OutputName        string `mapstructure:"output_name" validate:"required"`
	SharedLibraryPath string `mapstructure:"shared_library_path"`
	Threads           int    `mapstructure:"threads" validate:"gte=0"`
}

// DetectionConfig holds decode and suppression thresholds
type DetectionConfig struct {
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" validate:"gte=0,lte=1"`
	IoUThreshold        float64 `mapstructure:"iou_threshold" validate:"gte=0,lte=1"`
	VisibilityThreshold float64 `mapstructure:"visibility_threshold" validate:"gte=0,lte=1"`
	Resample            string  `mapstructure:"resample" validate:"oneof=lanczos nearest box linear catmullrom"`
}

// ScoringConfig controls score jitter
type ScoringConfig struct {
	Jitter bool   `mapstructure:"jitter"`
	Seed   uint64 `mapstructure:"seed"`
}

// StoreConfig controls how long reports are kept
type StoreConfig struct {
	TTL time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	IncludeImage bool   `mapstructure:"include_image"`
	OverlayDir   string `mapstructure:"overlay_dir"`
	Pretty       bool   `mapstructure:"pretty"`
}

// EventsConfig enables publishing analyses to NATS when URL is set
type EventsConfig struct {
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix" validate:"required"`
}

// LogConfig configures the logrus logger
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format     string `mapstructure:"format" validate:"oneof=text json"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAge     int    `mapstructure:"max_age" validate:"gte=0"`
	Compress   bool   `mapstructure:"compress"`
}

// SetDefaults registers the default value of every key on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("model.path", "")
	v.SetDefault("model.version", "YOLOv8x-ATC-v2.1")
	v.SetDefault("model.input_size", 640)
	v.SetDefault("model.input_name", "images")
	v.SetDefault("model.output_name", "output0")
	v.SetDefault("model.shared_library_path", "")
	v.SetDefault("model.threads", 1)

	v.SetDefault("detection.confidence_threshold", 0.25)
	v.SetDefault("detection.iou_threshold", 0.45)
	v.SetDefault("detection.visibility_threshold", 0.5)
	v.SetDefault("detection.resample", "lanczos")

	v.SetDefault("scoring.jitter", true)
	v.SetDefault("scoring.seed", 0)

	v.SetDefault("store.ttl", time.Hour)

	v.SetDefault("output.include_image", false)
	v.SetDefault("output.overlay_dir", "")
	v.SetDefault("output.pretty", false)

	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.subject_prefix", "atc.analysis")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.compress", true)
}

// NewViper returns a viper instance with defaults and environment binding
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Default returns a configuration with default values
func Default() *Config {
	c, err := Unmarshal(NewViper())
	if err != nil {
		panic(fmt.Sprintf("invalid default configuration: %v", err))
	}
	return c
}

// Load reads configuration from path (optional) on top of defaults and environment
func Load(path string) (*Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return Unmarshal(v)
}

// Unmarshal decodes and validates the configuration held by v
func Unmarshal(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

var validate = validator.New()

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
