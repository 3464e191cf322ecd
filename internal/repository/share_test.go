package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaonote/starbot/internal/models"
)

func shareRows(resourceColumn string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", resourceColumn, "token", "permission", "expires_at", "revoked_at", "created_by", "created_at", "password_hash",
	})
}

func setupShareMock(t *testing.T) (*PostgresShareRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresShareRepository(db), mock
}

func TestShareCreate_PicksTablePerResource(t *testing.T) {
	tests := []struct {
		res    models.ShareResource
		table  string
		column string
	}{
		{models.ShareCard, "note_tool.card_share_links", "card_id"},
		{models.ShareBoard, "note_tool.board_share_links", "board_id"},
	}
	for _, tt := range tests {
		t.Run(string(tt.res), func(t *testing.T) {
			repo, mock := setupShareMock(t)
			now := time.Now()
			exp := now.Add(24 * time.Hour)

			mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO `+tt.table+` (`+tt.column+`, token`)).
				WithArgs(int64(3), "tok", "edit", exp, "u1", "hash").
				WillReturnRows(shareRows(tt.column).AddRow(int64(1), int64(3), "tok", "edit", exp, nil, "u1", now, "hash"))

			l, err := repo.Create(context.Background(), &models.ShareLink{
				Resource: tt.res, ResourceID: 3, Token: "tok", Permission: models.PermissionEdit,
				ExpiresAt: &exp, CreatedBy: "u1", PasswordHash: []byte("hash"),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.res, l.Resource)
			assert.True(t, l.PasswordProtected)
			assert.Nil(t, l.RevokedAt)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestShareCreate_NoPassword(t *testing.T) {
	repo, mock := setupShareMock(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO note_tool.card_share_links`)).
		WithArgs(int64(3), "tok", "read", nil, "u1", nil).
		WillReturnRows(shareRows("card_id").AddRow(int64(1), int64(3), "tok", "read", nil, nil, "u1", now, ""))

	l, err := repo.Create(context.Background(), &models.ShareLink{
		Resource: models.ShareCard, ResourceID: 3, Token: "tok", Permission: models.PermissionRead, CreatedBy: "u1",
	})
	require.NoError(t, err)
	assert.False(t, l.PasswordProtected)
	assert.Nil(t, l.ExpiresAt)
}

func TestShareRevoke_AlreadyRevokedIsNotFound(t *testing.T) {
	repo, mock := setupShareMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SET revoked_at = NOW()`)).
		WithArgs(int64(1), int64(3)).
		WillReturnRows(shareRows("board_id"))

	_, err := repo.Revoke(context.Background(), models.ShareBoard, 3, 1)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestShareGetByToken(t *testing.T) {
	repo, mock := setupShareMock(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM note_tool.board_share_links WHERE token = $1`)).
		WithArgs("tok").
		WillReturnRows(shareRows("board_id").AddRow(int64(1), int64(3), "tok", "read", nil, now, "u1", now, ""))

	l, err := repo.GetByToken(context.Background(), models.ShareBoard, "tok")
	require.NoError(t, err)
	require.NotNil(t, l.RevokedAt)
	assert.False(t, l.Usable(now))
}

func TestShareUnknownResource(t *testing.T) {
	repo, _ := setupShareMock(t)
	_, err := repo.List(context.Background(), models.ShareResource("memo"), 1)
	assert.Error(t, err)
}
