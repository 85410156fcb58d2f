package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/macdonc2/llm-app-template/db"
)

// goose entry points, swapped in tests.
var (
	gooseUp     = goose.UpContext
	gooseDown   = goose.DownContext
	gooseDownTo = goose.DownToContext
	gooseStatus = goose.StatusContext
)

// Runner wraps database migration capabilities.
type Runner struct {
	db   *sql.DB
	ping func(context.Context) error
	fsys fs.FS
	dir  string
	log  *slog.Logger
}

// New returns a migration runner backed by goose. An empty or missing
// migrationsDir falls back to the migrations embedded in the binary.
func New(pool *pgxpool.Pool, migrationsDir string, log *slog.Logger) (Runner, error) {
	if pool == nil {
		return Runner{}, errors.New("nil pool provided")
	}
	if log == nil {
		log = slog.Default()
	}
	var (
		fsys fs.FS = db.Migrations
		dir        = "migrations"
	)
	if migrationsDir != "" {
		if _, err := os.Stat(migrationsDir); err == nil {
			fsys = os.DirFS(migrationsDir)
			dir = "."
		} else {
			log.Warn("migrations dir unavailable, using embedded set", "dir", migrationsDir, "error", err)
		}
	}
	return newRunner(stdlib.OpenDBFromPool(pool), pool.Ping, fsys, dir, log), nil
}

func newRunner(sqlDB *sql.DB, ping func(context.Context) error, fsys fs.FS, dir string, log *slog.Logger) Runner {
	return Runner{db: sqlDB, ping: ping, fsys: fsys, dir: dir, log: log}
}

// DB exposes the database/sql handle sharing the runner's pool.
func (r Runner) DB() *sql.DB {
	return r.db
}

// Ensure applies pending migrations.
func (r Runner) Ensure(ctx context.Context) error {
	return r.withGoose(func() error {
		runCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		r.log.Info("applying migrations", "dir", r.dir)
		if err := gooseUp(runCtx, r.db, r.dir); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		r.log.Info("migrations applied")
		return nil
	})
}

// Status reports applied and pending migrations.
func (r Runner) Status(ctx context.Context) error {
	return r.withGoose(func() error {
		r.log.Info("migration status", "dir", r.dir)
		if err := gooseStatus(ctx, r.db, r.dir); err != nil {
			return fmt.Errorf("migration status: %w", err)
		}
		return nil
	})
}

// Down rolls back migrations either to the previous version or a specific target version.
func (r Runner) Down(ctx context.Context, targetVersion int64) error {
	return r.withGoose(func() error {
		runCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()

		if targetVersion > 0 {
			r.log.Info("rolling back migrations", "target", targetVersion)
			if err := gooseDownTo(runCtx, r.db, r.dir, targetVersion); err != nil {
				return fmt.Errorf("rollback to version %d: %w", targetVersion, err)
			}
		} else {
			r.log.Info("rolling back latest migration")
			if err := gooseDown(runCtx, r.db, r.dir); err != nil {
				return fmt.Errorf("rollback latest migration: %w", err)
			}
		}

		r.log.Info("rollback complete")
		return nil
	})
}

// Ping ensures the database connection is alive.
func (r Runner) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Close releases the database/sql handle. The pool stays owned by the caller.
func (r Runner) Close() error {
	return r.db.Close()
}

func (r Runner) withGoose(fn func() error) error {
	goose.SetBaseFS(r.fsys)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}
	return fn()
}
