package db

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"taskapi/internal/config"
	"taskapi/internal/model"
)

// Models lists every table the service owns, in creation order.
var Models = []interface{}{
	&model.User{},
	&model.Task{},
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		// Unique index violations surface as gorm.ErrDuplicatedKey.
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
		// Timestamp columns hold milliseconds; MySQL rounds anything finer.
		NowFunc: func() time.Time { return time.Now().Local().Truncate(time.Millisecond) },
	}
}

// NewMySQL returns a connected GORM DB instance.
func NewMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}
	return db, nil
}

// NewSQLite opens a SQLite database. SQLite serialises writers, so the
// pool is limited to a single connection.
func NewSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// Open connects using the configured driver.
func Open(cfg *config.Config) (*gorm.DB, error) {
	switch cfg.DBDriver {
	case config.DriverMySQL:
		return NewMySQL(cfg.DatabaseDSN)
	case config.DriverSQLite:
		return NewSQLite(cfg.DatabaseDSN)
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.DBDriver)
	}
}

// Migrate creates or updates the schema. With reset set, existing tables
// are dropped first.
func Migrate(db *gorm.DB, reset bool) error {
	if reset {
		for i := len(Models) - 1; i >= 0; i-- {
			if err := db.Migrator().DropTable(Models[i]); err != nil {
				return fmt.Errorf("drop table: %w", err)
			}
		}
	}
	if err := db.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// Probe checks the store with a trivial read.
type Probe struct {
	db *gorm.DB
}

// NewProbe creates a store probe.
func NewProbe(db *gorm.DB) *Probe {
	return &Probe{db: db}
}

// Check runs SELECT 1.
func (p *Probe) Check(ctx context.Context) error {
	var one int
	if err := p.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		return fmt.Errorf("probe database: %w", err)
	}
	if one != 1 {
		return fmt.Errorf("probe database: unexpected result %d", one)
	}
	return nil
}
