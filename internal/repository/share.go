package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shaonote/starbot/internal/models"
)

// PostgresShareRepository stores card and board share links. Both kinds live in
// tables of the same shape, selected by models.ShareResource.
type PostgresShareRepository struct {
	DB *sql.DB
}

// NewPostgresShareRepository creates a new PostgresShareRepository.
func NewPostgresShareRepository(db *sql.DB) *PostgresShareRepository {
	return &PostgresShareRepository{DB: db}
}

type shareTable struct {
	name   string
	column string
}

func tableFor(res models.ShareResource) (shareTable, error) {
	switch res {
	case models.ShareCard:
		return shareTable{name: "note_tool.card_share_links", column: "card_id"}, nil
	case models.ShareBoard:
		return shareTable{name: "note_tool.board_share_links", column: "board_id"}, nil
	}
	return shareTable{}, fmt.Errorf("unknown share resource %q", res)
}

func (t shareTable) columns() string {
	return `id, ` + t.column + `, token, permission, expires_at, revoked_at, created_by, created_at,
		COALESCE(password_hash, '')`
}

func scanShareLink(row rowScanner, res models.ShareResource) (*models.ShareLink, error) {
	var (
		l                models.ShareLink
		perm, hash       string
		expires, revoked sql.NullTime
	)
	err := row.Scan(&l.ID, &l.ResourceID, &l.Token, &perm, &expires, &revoked, &l.CreatedBy, &l.CreatedAt, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	l.Resource = res
	l.Permission = models.Permission(perm)
	l.ExpiresAt = timePtr(expires)
	l.RevokedAt = timePtr(revoked)
	if hash != "" {
		l.PasswordHash = []byte(hash)
		l.PasswordProtected = true
	}
	return &l, nil
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// Create persists a new link. A nil passwordHash stores an unprotected link.
func (r *PostgresShareRepository) Create(ctx context.Context, l *models.ShareLink) (*models.ShareLink, error) {
	t, err := tableFor(l.Resource)
	if err != nil {
		return nil, err
	}
	var hash sql.NullString
	if len(l.PasswordHash) > 0 {
		hash = sql.NullString{String: string(l.PasswordHash), Valid: true}
	}
	out, err := scanShareLink(r.DB.QueryRowContext(ctx, `
		INSERT INTO `+t.name+` (`+t.column+`, token, permission, expires_at, created_by, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+t.columns(),
		l.ResourceID, l.Token, string(l.Permission), l.ExpiresAt, l.CreatedBy, hash), l.Resource)
	if err != nil {
		return nil, fmt.Errorf("create share link: %w", err)
	}
	return out, nil
}

// List returns the unrevoked links of a resource, newest first.
func (r *PostgresShareRepository) List(ctx context.Context, res models.ShareResource, resourceID int64) ([]models.ShareLink, error) {
	t, err := tableFor(res)
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+t.columns()+`
		FROM `+t.name+`
		WHERE `+t.column+` = $1 AND revoked_at IS NULL
		ORDER BY created_at DESC
	`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("list share links: %w", err)
	}
	defer rows.Close()

	links := []models.ShareLink{}
	for rows.Next() {
		l, err := scanShareLink(rows, res)
		if err != nil {
			return nil, fmt.Errorf("scan share link: %w", err)
		}
		links = append(links, *l)
	}
	return links, rows.Err()
}

// Revoke stamps revoked_at on an active link. A missing or already revoked
// link yields models.ErrNotFound.
func (r *PostgresShareRepository) Revoke(ctx context.Context, res models.ShareResource, resourceID, linkID int64) (*models.ShareLink, error) {
	t, err := tableFor(res)
	if err != nil {
		return nil, err
	}
	l, err := scanShareLink(r.DB.QueryRowContext(ctx, `
		UPDATE `+t.name+`
		SET revoked_at = NOW()
		WHERE id = $1 AND `+t.column+` = $2 AND revoked_at IS NULL
		RETURNING `+t.columns(), linkID, resourceID), res)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("revoke share link: %w", err)
	}
	return l, err
}

// GetByToken loads a link by token whatever its state.
func (r *PostgresShareRepository) GetByToken(ctx context.Context, res models.ShareResource, token string) (*models.ShareLink, error) {
	t, err := tableFor(res)
	if err != nil {
		return nil, err
	}
	l, err := scanShareLink(r.DB.QueryRowContext(ctx,
		`SELECT `+t.columns()+` FROM `+t.name+` WHERE token = $1 LIMIT 1`, token), res)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("get share link: %w", err)
	}
	return l, err
}
