// Package pg archives the development backend's activity log in PostgreSQL.
package pg

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"rentdesk.org/internal/domain"
	"rentdesk.org/internal/migrate"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ActivityStore is safe for concurrent use.
type ActivityStore struct {
	db *sql.DB
}

// Open connects through the pgx stdlib driver.
func Open(dsn string) (*ActivityStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &ActivityStore{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *ActivityStore { return &ActivityStore{db: db} }

func (s *ActivityStore) Close() error { return s.db.Close() }

// Migrate creates the activity tables.
func (s *ActivityStore) Migrate(ctx context.Context) error {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	return migrate.NewManager(s.db, sub).Up(ctx)
}

// Append stores one entry. Re-appending an ID is a no-op.
func (s *ActivityStore) Append(ctx context.Context, e domain.ActivityLog) error {
	var meta any
	if len(e.Metadata) > 0 {
		data, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		meta = data
	}
	var user sql.NullInt64
	if e.User != nil {
		user = sql.NullInt64{Int64: int64(*e.User), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		insert into activity_logs(id, user_id, user_email, action, resource_type, resource_id, description, ip_address, metadata, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		on conflict (id) do nothing
	`, e.ID, user, e.UserEmail, e.Action, e.ResourceType, e.ResourceID, e.Description, e.IPAddress, meta, e.CreatedAt.UTC())
	return err
}

// Recent returns up to limit entries, newest first.
func (s *ActivityStore) Recent(ctx context.Context, limit int) ([]domain.ActivityLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, user_email, action, resource_type, resource_id, description, ip_address, metadata, created_at
		from activity_logs
		order by created_at desc, id desc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ActivityLog
	for rows.Next() {
		var (
			e    domain.ActivityLog
			user sql.NullInt64
			meta []byte
		)
		if err := rows.Scan(&e.ID, &user, &e.UserEmail, &e.Action, &e.ResourceType, &e.ResourceID, &e.Description, &e.IPAddress, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if user.Valid {
			id := int(user.Int64)
			e.User = &id
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for %d: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
