package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sqliteParams: писатели сериализуются через BEGIN IMMEDIATE, ждущие не падают сразу с SQLITE_BUSY
const sqliteParams = "_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"

type Repository struct {
	db *gorm.DB
}

func NewRepository(driver, dsn string) (*Repository, error) {
	dialector, err := openDialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().Round(time.Millisecond)
		},
	})
	if err != nil {
		return nil, err
	}

	if driver == "mysql" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	return &Repository{db: db}, nil
}

func openDialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "", "sqlite":
		return sqlite.Open(SQLiteDSN(dsn)), nil
	case "mysql":
		return mysql.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported db driver %q", driver)
}

// SQLiteDSN добавляет параметры соединения, если в DSN их ещё нет
func SQLiteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?" + sqliteParams
}

func (r *Repository) DB() *gorm.DB {
	return r.db
}

func (r *Repository) AutoMigrate() error {
	return Migrate(r.db)
}

// WithTransaction выполняет fn в одной транзакции БД: любая ошибка или паника откатывает всё
func (r *Repository) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := r.db.WithContext(ctx).Transaction(fn)
	if err != nil {
		slog.Debug("Transaction rolled back", "error", err)
	}
	return err
}

func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
