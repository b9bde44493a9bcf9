package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/secmon-lab/moderato/pkg/domain/interfaces"
	"github.com/secmon-lab/moderato/pkg/repository/sqlite/db"
)

// SQLite is a single file Repository. Reads go straight to the connection,
// writes are serialized through db.Writer.
type SQLite struct {
	conn         *sql.DB
	writer       *db.Writer
	actionRecord *actionRecordRepository
	modlog       *modlogRepository
}

var _ interfaces.Repository = &SQLite{}

func New(ctx context.Context, cfg db.Config) (*SQLite, error) {
	conn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	writer := db.NewWriter(conn)
	return &SQLite{
		conn:         conn,
		writer:       writer,
		actionRecord: &actionRecordRepository{conn: conn, writer: writer},
		modlog:       &modlogRepository{conn: conn, writer: writer},
	}, nil
}

func (s *SQLite) ActionRecord() interfaces.ActionRecordRepository {
	return s.actionRecord
}

func (s *SQLite) Modlog() interfaces.ModlogRepository {
	return s.modlog
}

func (s *SQLite) Close() error {
	s.writer.Close()
	return s.conn.Close()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
