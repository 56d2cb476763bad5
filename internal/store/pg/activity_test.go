package pg

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentdesk.org/internal/domain"
)

func TestAppend(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	uid := 4
	mock.ExpectExec("insert into activity_logs").
		WithArgs(7, int64(4), "owner@rentdesk.test", "create", "booking", "12", "RD-000012", "127.0.0.1", []byte(`{"source":"web"}`), at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = New(db).Append(context.Background(), domain.ActivityLog{
		ID: 7, User: &uid, UserEmail: "owner@rentdesk.test", Action: "create", ResourceType: "booking",
		ResourceID: "12", Description: "RD-000012", IPAddress: "127.0.0.1",
		Metadata: map[string]any{"source": "web"}, CreatedAt: at,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendAnonymous(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("insert into activity_logs").
		WithArgs(1, nil, "", "login_failed", "", "", "", "", nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, New(db).Append(context.Background(), domain.ActivityLog{ID: 1, Action: "login_failed", CreatedAt: time.Now()}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cols := []string{"id", "user_id", "user_email", "action", "resource_type", "resource_id", "description", "ip_address", "metadata", "created_at"}
	mock.ExpectQuery("from activity_logs order by created_at desc").WithArgs(2).WillReturnRows(
		sqlmock.NewRows(cols).
			AddRow(9, 4, "owner@rentdesk.test", "delete", "role", "3", "Front desk", "", []byte(`{"users":2}`), at).
			AddRow(8, nil, "", "login", "", "", "", "", nil, at.Add(-time.Minute)),
	)

	got, err := New(db).Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotNil(t, got[0].User)
	assert.Equal(t, 4, *got[0].User)
	assert.Equal(t, map[string]any{"users": float64(2)}, got[0].Metadata)
	assert.Nil(t, got[1].User)
	assert.Nil(t, got[1].Metadata)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateAppliesEmbeddedSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec("create table if not exists activity_logs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create index if not exists activity_logs_created_at_idx").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into schema_migrations").WithArgs("0001_activity_logs.up.sql", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, New(db).Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
