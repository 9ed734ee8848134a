package pg

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

type txContextKey string

const (
	txKey      txContextKey = "trx"
	primaryKey txContextKey = "primary"
)

// DB routes reads and writes to separate pools. Inside WithinTransaction both
// sides resolve to the transaction so a read sees its own writes.
type DB struct {
	read  *gorm.DB
	write *gorm.DB
}

func Create(config Config, withDebug bool) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(config.DSN()), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: true},
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	config.applyPool(sqlDB)

	if withDebug {
		db = db.Debug()
	}
	return db, nil
}

// CreateReadWrite opens one pool when both configs point at the same database.
func CreateReadWrite(readConfig Config, writeConfig Config, withDebug bool) (*DB, error) {
	write, err := Create(writeConfig, withDebug)
	if err != nil {
		return nil, errors.Wrap(err, "open write pool")
	}
	if readConfig.DSN() == writeConfig.DSN() {
		return New(write, write), nil
	}

	read, err := Create(readConfig, withDebug)
	if err != nil {
		return nil, errors.Wrap(err, "open read pool")
	}
	return New(read, write), nil
}

// New wraps handles opened elsewhere, e.g. an in-memory sqlite database shared by both sides.
func New(read, write *gorm.DB) *DB {
	return &DB{read: read, write: write}
}

func (r *DB) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, nested := ctx.Value(txKey).(*gorm.DB); nested {
		return fn(ctx)
	}
	return r.write.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey, tx))
	})
}

func (r *DB) Write(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return tx
	}
	return r.write.WithContext(ctx)
}

// WithPrimary pins the reads made with the returned context to the write pool, for
// lookups that must observe the latest committed state rather than a replica's.
func WithPrimary(ctx context.Context) context.Context {
	return context.WithValue(ctx, primaryKey, true)
}

func (r *DB) Read(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return tx
	}
	if pinned, _ := ctx.Value(primaryKey).(bool); pinned {
		return r.write.WithContext(ctx)
	}
	return r.read.WithContext(ctx)
}

func (r *DB) Ping(ctx context.Context) error {
	sqlDB, err := r.write.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *DB) Close() error {
	w, err := r.write.DB()
	if err != nil {
		return err
	}
	if r.read != r.write {
		if rd, err := r.read.DB(); err == nil {
			_ = rd.Close()
		}
	}
	return w.Close()
}
