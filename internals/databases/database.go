package database

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"funnel_backend/internals/configs"
	paymentModel "funnel_backend/internals/features/funnel/payments/model"
	sessionModel "funnel_backend/internals/features/funnel/sessions/model"
)

// ConnectDB opens the postgres pool. PreferSimpleProtocol keeps it usable
// behind PgBouncer in transaction mode.
func ConnectDB(cfg configs.Config, log zerolog.Logger) (*gorm.DB, error) {
	log.Info().Str("host", cfg.DBHost).Str("db", cfg.DBName).Msg("connecting to postgres")

	level := gormLogger.Warn
	if cfg.IsDevelopment() {
		level = gormLogger.Info
	}
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DSN(),
		PreferSimpleProtocol: true,
	}), &gorm.Config{Logger: gormLogger.Default.LogMode(level)})
	if err != nil {
		return nil, err
	}
	log.Info().Msg("database connected")
	return db, nil
}

func TunePool(db *gorm.DB, log zerolog.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn().Err(err).Msg("pool tune")
		return
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxIdleTime(60 * time.Second)
	sqlDB.SetConnMaxLifetime(10 * time.Minute)
}

// WarmUpQueries fills the pool once the server is up.
func WarmUpQueries(db *gorm.DB, log zerolog.Logger) {
	go func() {
		time.Sleep(500 * time.Millisecond)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := db.WithContext(ctx).Exec("SELECT 1 FROM funnel_sessions LIMIT 1").Error; err != nil {
			log.Warn().Err(err).Msg("warm-up query")
		}
	}()
}

// Migrate creates or updates the funnel tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&sessionModel.SessionModel{},
		&paymentModel.PaymentAttemptModel{},
	)
}

func Close(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
