package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"Guardline/pkg/cache"
	"Guardline/pkg/logger"
	"Guardline/pkg/notification"
	"Guardline/pkg/util"
)

// config/config.go
type Config struct {
	DBDriver        string `env:"DB_DRIVER"`
	DSN             string `env:"DSN"`
	DBDebug         bool   `env:"DB_DEBUG"`
	SpatialBackend  string `env:"SPATIAL_BACKEND"`
	Log             logger.LogConfig
	Cache           cache.Config
	FCM             notification.FCMConfig
	Twilio          notification.TwilioConfig
	SendGrid        notification.SendGridConfig
	Addr            string `env:"ADDR"`
	Mode            string `env:"MODE"`
	APIPrefix       string `env:"API_PREFIX"`
	RateLimit       string `env:"RATE_LIMIT"`
	SearchEnabled   bool   `env:"SEARCH_ENABLED"`
	SearchPath      string `env:"SEARCH_PATH"`
	SilentModeSweep string `env:"SILENT_MODE_SWEEP"`
	DefaultLanguage string `env:"DEFAULT_LANGUAGE"`
}

const (
	SpatialPostGIS   = "postgis"
	SpatialInProcess = "inprocess"
)

var GlobalConfig *Config

func Load() error {
	// 1. 根据环境加载 .env 文件
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development" // 默认使用开发环境
	}
	if err := util.LoadEnv(env); err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	// 2. 加载全局配置
	cfg := &Config{
		DBDriver:       util.GetEnvOr("DB_DRIVER", util.DriverSQLite),
		DSN:            util.GetEnv("DSN"),
		DBDebug:        util.GetBoolEnv("DB_DEBUG"),
		SpatialBackend: strings.ToLower(util.GetEnv("SPATIAL_BACKEND")),
		Addr:           util.GetEnvOr("ADDR", ":8080"),
		Mode:           util.GetEnvOr("MODE", "development"),
		APIPrefix:      util.GetEnvOr("API_PREFIX", "/api/v1"),
		RateLimit:      util.GetEnvOr("RATE_LIMIT", "120-M"),
		Log: logger.LogConfig{
			Level:      util.GetEnv("LOG_LEVEL"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		Cache: cache.Config{
			Type: util.GetEnvOr("CACHE_TYPE", "local"),
			Redis: cache.RedisConfig{
				Addr:         util.GetEnvOr("REDIS_ADDR", "localhost:6379"),
				Password:     util.GetEnv("REDIS_PASSWORD"),
				DB:           int(util.GetIntEnv("REDIS_DB")),
				PoolSize:     int(util.GetIntEnv("REDIS_POOL_SIZE")),
				MinIdleConns: int(util.GetIntEnv("REDIS_MIN_IDLE_CONNS")),
				DialTimeout:  5 * time.Second,
				ReadTimeout:  3 * time.Second,
				WriteTimeout: 3 * time.Second,
			},
			Local: cache.DefaultLocalConfig(),
		},
		FCM: notification.FCMConfig{
			ProjectID:   util.GetEnv("FCM_PROJECT_ID"),
			AccessToken: util.GetEnv("FCM_ACCESS_TOKEN"),
			Endpoint:    util.GetEnv("FCM_ENDPOINT"),
		},
		Twilio: notification.TwilioConfig{
			AccountSID: util.GetEnv("TWILIO_ACCOUNT_SID"),
			AuthToken:  util.GetEnv("TWILIO_AUTH_TOKEN"),
			From:       util.GetEnv("TWILIO_FROM"),
			Endpoint:   util.GetEnv("TWILIO_ENDPOINT"),
		},
		SendGrid: notification.SendGridConfig{
			APIKey:   util.GetEnv("SENDGRID_API_KEY"),
			From:     util.GetEnv("SENDGRID_FROM"),
			FromName: util.GetEnvOr("SENDGRID_FROM_NAME", "Guardline"),
			Endpoint: util.GetEnv("SENDGRID_ENDPOINT"),
		},
		SearchEnabled:   util.GetBoolEnv("SEARCH_ENABLED"),
		SearchPath:      util.GetEnv("SEARCH_PATH"),
		SilentModeSweep: util.GetEnvOr("SILENT_MODE_SWEEP", "@every 1m"),
		DefaultLanguage: util.GetEnvOr("DEFAULT_LANGUAGE", "en"),
	}
	if cfg.SpatialBackend == "" {
		cfg.SpatialBackend = DefaultSpatialBackend(cfg.DBDriver)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	GlobalConfig = cfg
	return nil
}

// DefaultSpatialBackend uses PostGIS when the database is postgres.
func DefaultSpatialBackend(driver string) string {
	if driver == util.DriverPostgres {
		return SpatialPostGIS
	}
	return SpatialInProcess
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case util.DriverSQLite:
	case util.DriverMySQL, util.DriverPostgres:
		if c.DSN == "" {
			return fmt.Errorf("DSN is required for driver %s", c.DBDriver)
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}

	switch strings.ToLower(c.Cache.Type) {
	case "local", "gocache", "redis":
	default:
		return fmt.Errorf("unsupported CACHE_TYPE: %s", c.Cache.Type)
	}

	switch c.SpatialBackend {
	case SpatialInProcess:
	case SpatialPostGIS:
		if c.DBDriver != util.DriverPostgres {
			return fmt.Errorf("SPATIAL_BACKEND=postgis requires DB_DRIVER=pg")
		}
	default:
		return fmt.Errorf("unsupported SPATIAL_BACKEND: %s", c.SpatialBackend)
	}
	return nil
}

// NotificationsEnabled reports which outbound channels have credentials.
func (c *Config) NotificationsEnabled() (push, sms, mail bool) {
	return c.FCM.ProjectID != "" && c.FCM.AccessToken != "",
		c.Twilio.AccountSID != "" && c.Twilio.AuthToken != "",
		c.SendGrid.APIKey != ""
}
