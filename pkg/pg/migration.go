package pg

import (
	"database/sql"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

func Migrate(cfg Config, dir string) error {
	return runGoose(cfg, func(db *sql.DB) error { return goose.Up(db, dir) })
}

func Rollback(cfg Config, dir string) error {
	return runGoose(cfg, func(db *sql.DB) error { return goose.Down(db, dir) })
}

func MigrationStatus(cfg Config, dir string) error {
	return runGoose(cfg, func(db *sql.DB) error { return goose.Status(db, dir) })
}

func runGoose(cfg Config, fn func(db *sql.DB) error) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "set goose dialect")
	}

	db, err := newSqlConnection(cfg)
	if err != nil {
		return errors.Wrap(err, "open postgres connection")
	}
	defer db.Close()

	return fn(db)
}
