package migration

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	// Blank import required for PostgreSQL driver registration for migrations
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"golang.org/x/exp/slog"

	"fieldsync/internal/app/server/config"
)

// Migrator подмножество migrate.Migrate, которое нужно раннеру
type Migrator interface {
	Up() error
	Version() (version uint, dirty bool, err error)
	Close() (error, error)
}

// MigrationEngine создает мигратор по адресам источника и базы
type MigrationEngine func(sourceURL, databaseURL string) (Migrator, error)

type Migration struct {
	cfg    *config.Config
	engine MigrationEngine
	log    *slog.Logger
}

func NewMigration(conf *config.Config, engine MigrationEngine, log *slog.Logger) *Migration {
	if engine == nil {
		engine = DefaultEngine
	}
	return &Migration{
		cfg:    conf,
		engine: engine,
		log:    log.With("component", "migration"),
	}
}

// DefaultEngine открывает migrate.Migrate
func DefaultEngine(sourceURL, databaseURL string) (Migrator, error) {
	return migrate.New(sourceURL, databaseURL)
}

// Up применяет все новые миграции; отсутствие изменений не ошибка.
func (mg *Migration) Up() (err error) {
	m, err := mg.engine("file://"+mg.cfg.DB.Migrations, mg.cfg.DB.DatabaseURI)
	if err != nil {
		return err
	}
	defer func() {
		serr, dberr := m.Close()
		if serr != nil {
			err = errors.Join(err, fmt.Errorf("migration source: %w", serr))
		}
		if dberr != nil {
			err = errors.Join(err, fmt.Errorf("migration database: %w", dberr))
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			mg.log.Debug("schema is up to date")
			return nil
		}
		return fmt.Errorf("migration up: %w", err)
	}

	version, dirty, verr := m.Version()
	if verr != nil {
		mg.log.Warn("failed to read schema version", "error", verr)
		return nil
	}
	mg.log.Info("schema migrated", "version", version, "dirty", dirty)
	return nil
}
