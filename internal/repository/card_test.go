package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaonote/starbot/internal/models"
)

var cardRowColumns = []string{"id", "user_id", "title", "content", "created_at", "updated_at"}

func setupCardMock(t *testing.T) (*PostgresCardRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresCardRepository(db), mock
}

func TestCardCreate_IndexesMentionsInOneTransaction(t *testing.T) {
	repo, mock := setupCardMock(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO note_tool.cards (user_id, title, content)`)).
		WithArgs("u1", "Title", "see @[[5|Note]]").
		WillReturnRows(sqlmock.NewRows(cardRowColumns).AddRow(int64(9), "u1", "Title", "see @[[5|Note]]", now, now))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM note_tool.card_links WHERE from_card_id = $1`)).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO note_tool.card_links (from_card_id, to_card_id)`)).
		WithArgs(int64(9), sqlmock.AnyArg(), "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	card, err := repo.Create(context.Background(), "u1", "Title", "see @[[5|Note]]", []int64{5})
	require.NoError(t, err)
	assert.Equal(t, int64(9), card.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardUpdate_NoMentionsClearsLinks(t *testing.T) {
	repo, mock := setupCardMock(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE note_tool.cards`)).
		WithArgs(int64(9), "u1", "Title", "plain").
		WillReturnRows(sqlmock.NewRows(cardRowColumns).AddRow(int64(9), "u1", "Title", "plain", now, now))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM note_tool.card_links WHERE from_card_id = $1`)).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	card, err := repo.Update(context.Background(), "u1", 9, "Title", "plain", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain", card.Content)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardUpdate_NotOwnedRollsBack(t *testing.T) {
	repo, mock := setupCardMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE note_tool.cards`)).
		WithArgs(int64(9), "intruder", "Title", "x").
		WillReturnRows(sqlmock.NewRows(cardRowColumns))
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), "intruder", 9, "Title", "x", []int64{1})
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardUpdate_LinkFailureRollsBackCardWrite(t *testing.T) {
	repo, mock := setupCardMock(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE note_tool.cards`)).
		WillReturnRows(sqlmock.NewRows(cardRowColumns).AddRow(int64(9), "u1", "T", "@[[2|a]]", now, now))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM note_tool.card_links`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO note_tool.card_links`)).
		WillReturnError(errors.New("fk violation"))
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), "u1", 9, "T", "@[[2|a]]", []int64{2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert links")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardList(t *testing.T) {
	repo, mock := setupCardMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY updated_at DESC`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(cardRowColumns).
			AddRow(int64(2), "u1", "B", "", now, now).
			AddRow(int64(1), "u1", "A", "", now, now))

	cards, err := repo.List(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "B", cards[0].Title)
}

func TestCardLinks(t *testing.T) {
	repo, mock := setupCardMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT to_card_id FROM note_tool.card_links`)).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"to_card_id"}).AddRow(int64(5)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT from_card_id FROM note_tool.card_links`)).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"from_card_id"}).AddRow(int64(1)).AddRow(int64(2)))

	links, err := repo.Links(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, links.Outgoing)
	assert.Equal(t, []int64{1, 2}, links.Incoming)
}

func TestCardDelete(t *testing.T) {
	repo, mock := setupCardMock(t)
	q := regexp.QuoteMeta(`DELETE FROM note_tool.cards WHERE id = $1 AND user_id = $2`)
	mock.ExpectExec(q).WithArgs(int64(1), "u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(int64(1), "u1").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), "u1", 1))
	assert.ErrorIs(t, repo.Delete(context.Background(), "u1", 1), models.ErrNotFound)
}
