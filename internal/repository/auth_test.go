package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/shaonote/starbot/internal/models"
)

func setupAuthMock(t *testing.T) (*PostgresAuthRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	repo := NewPostgresAuthRepository(db)
	cleanup := func() { db.Close() }
	return repo, mock, cleanup
}

var userRowColumns = []string{
	"id", "email", "display_name", "password_hash", "two_factor_enabled", "two_factor_secret", "settings", "created_at",
}

func TestCreateUser_Success(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO note_tool.users (id, email, display_name, password_hash)`)).
		WithArgs("u1", "a@b.c", "Alice", "hash").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	u := &models.User{ID: "u1", Email: "a@b.c", DisplayName: "Alice", PasswordHash: []byte("hash")}
	if err := repo.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !u.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v; want %v", u.CreatedAt, now)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO note_tool.users`)).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.CreateUser(context.Background(), &models.User{ID: "u1", Email: "a@b.c"})
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestGetByEmail_Found(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM note_tool.users WHERE email = $1`)).
		WithArgs("a@b.c").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("u1", "a@b.c", "Alice", "hash", true, "SECRET", []byte(`{}`), time.Now()))

	u, err := repo.GetByEmail(context.Background(), "a@b.c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ID != "u1" || !u.TwoFactorEnabled || u.TwoFactorSecret != "SECRET" || string(u.PasswordHash) != "hash" {
		t.Errorf("unexpected user: %+v", u)
	}
}

func TestGetByEmail_NotFound(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM note_tool.users WHERE email = $1`)).
		WithArgs("nobody@b.c").
		WillReturnRows(sqlmock.NewRows(userRowColumns))

	_, err := repo.GetByEmail(context.Background(), "nobody@b.c")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetByID_Error(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM note_tool.users WHERE id = $1`)).
		WithArgs("u1").
		WillReturnError(errors.New("query failed"))

	_, err := repo.GetByID(context.Background(), "u1")
	if err == nil || errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected wrapped query error, got %v", err)
	}
}

func TestUpdateTwoFactor(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	q := regexp.QuoteMeta(`SET two_factor_secret = $2, two_factor_enabled = $3`)
	mock.ExpectExec(q).WithArgs("u1", "SECRET", false).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("ghost", "SECRET", true).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.UpdateTwoFactor(context.Background(), "u1", "SECRET", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.UpdateTwoFactor(context.Background(), "ghost", "SECRET", true); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestMergeSettings(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SET settings = COALESCE(settings, '{}'::jsonb) || $2::jsonb`)).
		WithArgs("u1", []byte(`{"theme":"light"}`)).
		WillReturnRows(sqlmock.NewRows([]string{"settings"}).
			AddRow([]byte(`{"cardOpenMode":"sidepanel","theme":"light"}`)))

	got, err := repo.MergeSettings(context.Background(), "u1", map[string]any{"theme": "light"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["cardOpenMode"] != "sidepanel" || got["theme"] != "light" {
		t.Errorf("merged settings = %v", got)
	}
}

func TestGetSettings_Empty(t *testing.T) {
	repo, mock, cleanup := setupAuthMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT settings FROM note_tool.users WHERE id = $1`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"settings"}).AddRow(nil))

	got, err := repo.GetSettings(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty settings, got %v", got)
	}
}
