package cmd

import (
	"fmt"

	"Guardline/internal/models"
	"Guardline/internal/spatial"
	"Guardline/pkg/config"
	"Guardline/pkg/logger"
	"Guardline/pkg/notification"
	"Guardline/pkg/search"
	"Guardline/pkg/util"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// bootstrap loads configuration, sets up the global logger, opens the
// database and migrates the schema. An in-memory sqlite database starts
// empty on every run, so every command migrates first.
func bootstrap() (*config.Config, *gorm.DB, error) {
	if err := config.Load(); err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	cfg := config.GlobalConfig
	if err := logger.Init(&cfg.Log, cfg.Mode); err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	db, err := util.InitDatabase(cfg.DBDriver, cfg.DSN, cfg.DBDebug)
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return cfg, db, nil
}

func newLocator(cfg *config.Config, db *gorm.DB) spatial.Locator {
	if cfg.SpatialBackend == config.SpatialPostGIS {
		return spatial.NewPostGIS(db)
	}
	return spatial.NewInProcess(db)
}

// newDispatcher builds the outbound channels that have credentials.
// Channels without credentials are left out and deliveries skip them.
func newDispatcher(cfg *config.Config) *notification.Dispatcher {
	pushOn, smsOn, mailOn := cfg.NotificationsEnabled()
	var (
		push *notification.Push
		sms  *notification.SMS
		mail *notification.Mail
	)
	if pushOn {
		push = notification.NewPush(notification.NewFCMClient(cfg.FCM, nil))
	}
	if smsOn {
		sms = notification.NewSMS(notification.NewTwilioClient(cfg.Twilio, nil))
	}
	if mailOn {
		mail = notification.NewMail(notification.NewSendGridClient(cfg.SendGrid, nil))
	}
	logger.Info("notification channels",
		zap.Bool("push", pushOn), zap.Bool("sms", smsOn), zap.Bool("mail", mailOn))
	return notification.NewDispatcher(push, sms, mail)
}

func openSearch(cfg *config.Config) (search.Engine, error) {
	return search.New(search.Config{
		IndexPath:           cfg.SearchPath,
		DefaultSearchFields: []string{"address", "description"},
	}, search.BuildIndexMapping())
}
