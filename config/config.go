package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort      string `mapstructure:"APP_PORT"`
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	DatabaseName string `mapstructure:"DATABASE_NAME"`
	Env          string `mapstructure:"ENV"`
	JWTSecret    string `mapstructure:"JWT_SECRET"`
	LogLevel     string `mapstructure:"LOG_LEVEL"`

	// Redis configuration.
	RedisAddr       string `mapstructure:"REDIS_ADDR"`
	RedisPassword   string `mapstructure:"REDIS_PASSWORD"`
	RedisPresenceDB int    `mapstructure:"REDIS_PRESENCE_DB"`
	RedisStatusDB   int    `mapstructure:"REDIS_STATUS_DB"`
	RedisQueueDB    int    `mapstructure:"REDIS_QUEUE_DB"`

	// Dispatch timing knobs, all in seconds.
	OfferTimeoutCritical int `mapstructure:"OFFER_TIMEOUT_CRITICAL"`
	OfferTimeoutHigh     int `mapstructure:"OFFER_TIMEOUT_HIGH"`
	OfferTimeoutMedium   int `mapstructure:"OFFER_TIMEOUT_MEDIUM"`
	OfferTimeoutLow      int `mapstructure:"OFFER_TIMEOUT_LOW"`
	MediaSetupWindow     int `mapstructure:"MEDIA_SETUP_WINDOW"`
	DisconnectGrace      int `mapstructure:"DISCONNECT_GRACE"`
	PresenceTTL          int `mapstructure:"PRESENCE_TTL"`
	SweepInterval        int `mapstructure:"SWEEP_INTERVAL"`

	// External credentials.
	FirebaseCredentialsFile string `mapstructure:"FIREBASE_CREDENTIALS_FILE"`
	CloudinaryURL           string `mapstructure:"CLOUDINARY_URL"`
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	// Automatically use environment variables where available.
	viper.AutomaticEnv()

	// Set default values.
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	viper.SetDefault("DATABASE_NAME", "medilink")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_PRESENCE_DB", 0)
	viper.SetDefault("REDIS_STATUS_DB", 1)
	viper.SetDefault("REDIS_QUEUE_DB", 2)
	viper.SetDefault("OFFER_TIMEOUT_CRITICAL", 15)
	viper.SetDefault("OFFER_TIMEOUT_HIGH", 30)
	viper.SetDefault("OFFER_TIMEOUT_MEDIUM", 60)
	viper.SetDefault("OFFER_TIMEOUT_LOW", 120)
	viper.SetDefault("MEDIA_SETUP_WINDOW", 20)
	viper.SetDefault("DISCONNECT_GRACE", 60)
	viper.SetDefault("PRESENCE_TTL", 90)
	viper.SetDefault("SWEEP_INTERVAL", 60)
	viper.SetDefault("FIREBASE_CREDENTIALS_FILE", "serviceAccountKey.json")
	viper.SetDefault("CLOUDINARY_URL", "")

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}

// OfferTimeout returns the configured offer lifetime for a priority level.
func (c Config) OfferTimeout(priority string) time.Duration {
	switch priority {
	case "critical":
		return time.Duration(c.OfferTimeoutCritical) * time.Second
	case "high":
		return time.Duration(c.OfferTimeoutHigh) * time.Second
	case "medium":
		return time.Duration(c.OfferTimeoutMedium) * time.Second
	default:
		return time.Duration(c.OfferTimeoutLow) * time.Second
	}
}
