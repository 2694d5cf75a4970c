// Package model owns the gateway's persistent state: request logs, billing
// accounts, hourly aggregates, and the lock table that serializes workers.
package model

import (
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/llmgateway/llmgateway/common"
	"github.com/llmgateway/llmgateway/common/config"
	"github.com/llmgateway/llmgateway/common/logger"
)

// DB is the process-wide gorm handle, set once by InitDB.
var DB *gorm.DB

// InitDB opens the database named by SQL_DSN and migrates the schema. An
// empty DSN falls back to a local SQLite file so development needs no
// external services.
func InitDB() error {
	dsn := config.SQLDSN
	var dialector gorm.Dialector
	switch {
	case dsn == "":
		common.UsingSQLite = true
		dialector = sqlite.Open("llmgateway.db")
	case strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://"):
		common.UsingPostgreSQL = true
		dialector = postgres.Open(dsn)
	case strings.HasSuffix(dsn, ".db") || strings.HasPrefix(dsn, "file:"):
		common.UsingSQLite = true
		dialector = sqlite.Open(dsn)
	default:
		common.UsingMySQL = true
		dialector = mysql.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		PrepareStmt:    true,
	})
	if err != nil {
		return errors.Wrap(err, "open database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "get sql.DB")
	}
	sqlDB.SetMaxIdleConns(config.SQLMaxIdleConns)
	sqlDB.SetMaxOpenConns(config.SQLMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	DB = db
	if err := migrate(); err != nil {
		return errors.Wrap(err, "migrate schema")
	}
	logger.Logger.Info("database initialized")
	return nil
}

func migrate() error {
	return DB.AutoMigrate(
		&Log{},
		&Organization{},
		&ApiKey{},
		&Lock{},
		&ProjectHourlyStats{},
		&ProjectHourlyModelStats{},
		&ApiKeyHourlyStats{},
		&ApiKeyHourlyModelStats{},
	)
}

// CloseDB closes the underlying connection pool.
func CloseDB() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return errors.Wrap(err, "get sql.DB")
	}
	return errors.Wrap(sqlDB.Close(), "close database")
}
