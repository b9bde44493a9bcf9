package postgres

import (
	"context"
	_ "embed"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/domain/interfaces"
)

//go:embed schema.sql
var schema string

type Postgres struct {
	pool         *pgxpool.Pool
	actionRecord *actionRecordRepository
	modlog       *modlogRepository
}

var _ interfaces.Repository = &Postgres{}

// New connects to PostgreSQL. Call Migrate before first use on a fresh database.
func New(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, goerr.New("postgres dsn is required")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse postgres dsn")
	}
	cfg.MinConns = 0

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, goerr.Wrap(err, "failed to ping postgres")
	}

	return &Postgres{
		pool:         pool,
		actionRecord: &actionRecordRepository{pool: pool},
		modlog:       &modlogRepository{pool: pool},
	}, nil
}

// Migrate creates tables and indexes that do not exist yet
func (p *Postgres) Migrate(ctx context.Context) error {
	return withTx(ctx, p.pool, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, schema); err != nil {
			return goerr.Wrap(err, "failed to apply postgres schema")
		}
		return nil
	})
}

func (p *Postgres) ActionRecord() interfaces.ActionRecordRepository {
	return p.actionRecord
}

func (p *Postgres) Modlog() interfaces.ModlogRepository {
	return p.modlog
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(context.Context, pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return goerr.Wrap(err, "failed to commit transaction")
	}
	return nil
}
