package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/shaonote/starbot/internal/models"
)

// uniqueViolation is the PostgreSQL error code for a unique constraint failure.
const uniqueViolation = "23505"

// PostgresAuthRepository implements account operations using a PostgreSQL database.
type PostgresAuthRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresAuthRepository creates a new PostgresAuthRepository with the given database connection.
// db must be a valid *sql.DB connected to a PostgreSQL instance.
func NewPostgresAuthRepository(db *sql.DB) *PostgresAuthRepository {
	return &PostgresAuthRepository{DB: db}
}

// CreateUser inserts a new account. A taken id or email yields models.ErrConflict.
func (r *PostgresAuthRepository) CreateUser(ctx context.Context, u *models.User) error {
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO note_tool.users (id, email, display_name, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, u.ID, u.Email, u.DisplayName, string(u.PasswordHash)).Scan(&u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return models.ErrConflict
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

const userColumns = `id, email, COALESCE(display_name, ''), password_hash,
	two_factor_enabled, COALESCE(two_factor_secret, ''), settings, created_at`

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		u    models.User
		hash string
	)
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &hash,
		&u.TwoFactorEnabled, &u.TwoFactorSecret, &u.Settings, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.PasswordHash = []byte(hash)
	return &u, nil
}

// GetByEmail loads the account with the given email, or models.ErrNotFound.
func (r *PostgresAuthRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM note_tool.users WHERE email = $1`, email))
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, err
}

// GetByID loads the account with the given id, or models.ErrNotFound.
func (r *PostgresAuthRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM note_tool.users WHERE id = $1`, id))
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, err
}

// UpdateTwoFactor stores the TOTP secret and its enabled flag.
func (r *PostgresAuthRepository) UpdateTwoFactor(ctx context.Context, userID, secret string, enabled bool) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE note_tool.users
		SET two_factor_secret = $2, two_factor_enabled = $3
		WHERE id = $1
	`, userID, secret, enabled)
	if err != nil {
		return fmt.Errorf("update two factor: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// GetSettings returns the stored settings object of the user.
func (r *PostgresAuthRepository) GetSettings(ctx context.Context, userID string) (map[string]any, error) {
	var raw []byte
	err := r.DB.QueryRowContext(ctx,
		`SELECT settings FROM note_tool.users WHERE id = $1`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return decodeSettings(raw)
}

// MergeSettings merges patch into the stored settings and returns the result.
// Keys absent from patch are kept.
func (r *PostgresAuthRepository) MergeSettings(ctx context.Context, userID string, patch map[string]any) (map[string]any, error) {
	body, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}
	var raw []byte
	err = r.DB.QueryRowContext(ctx, `
		UPDATE note_tool.users
		SET settings = COALESCE(settings, '{}'::jsonb) || $2::jsonb
		WHERE id = $1
		RETURNING settings
	`, userID, body).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("merge settings: %w", err)
	}
	return decodeSettings(raw)
}

func decodeSettings(raw []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return out, nil
}
