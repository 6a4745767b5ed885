// Package database opens GORM connections to PostgreSQL/TimescaleDB and
// defines the tables the monitoring service keeps there.
package database

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newGormLogger routes GORM's own logging through zap.
func newGormLogger(zl *zap.Logger) logger.Interface {
	return logger.New(
		zap.NewStdLog(zl),
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// CreateConnection opens a GORM handle on connectionString.
func CreateConnection(connectionString string, zl *zap.Logger) (*gorm.DB, error) {
	sugar := zl.Sugar()

	sugar.Info("connecting to TimescaleDB...")
	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{Logger: newGormLogger(zl)})
	if err != nil {
		sugar.Warnf("unable to create a TimescaleDB connection: %v", err)
		return nil, err
	}
	sugar.Info("TimescaleDB connection successful")

	return db, nil
}
