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

var (
	folderRowColumns    = []string{"id", "user_id", "name", "is_system", "system_key", "sort_order", "created_at"}
	boardRowColumns     = []string{"id", "user_id", "folder_id", "name", "description", "tags", "created_at"}
	placementRowColumns = []string{"board_id", "card_id", "x_pos", "y_pos", "width", "height"}
	regionRowColumns    = []string{"id", "board_id", "name", "color", "x_pos", "y_pos", "width", "height", "created_at", "updated_at"}
)

func setupBoardMock(t *testing.T) (*PostgresBoardRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresBoardRepository(db), mock
}

func expectArchive(mock sqlmock.Sqlmock, userID string, id int64) {
	mock.ExpectQuery(regexp.QuoteMeta(`ON CONFLICT (user_id, system_key)`)).
		WithArgs(userID, models.ArchiveFolderKey, "Archive").
		WillReturnRows(sqlmock.NewRows(folderRowColumns).
			AddRow(id, userID, "Archive", true, models.ArchiveFolderKey, 0, time.Now()))
}

func TestListFolders_ArchiveLast(t *testing.T) {
	repo, mock := setupBoardMock(t)
	now := time.Now()

	expectArchive(mock, "u1", 1)
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY CASE WHEN system_key = $2 THEN 1 ELSE 0 END`)).
		WithArgs("u1", models.ArchiveFolderKey).
		WillReturnRows(sqlmock.NewRows(folderRowColumns).
			AddRow(int64(2), "u1", "Work", false, nil, 1, now).
			AddRow(int64(1), "u1", "Archive", true, models.ArchiveFolderKey, 0, now))

	folders, err := repo.ListFolders(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, folders, 2)
	assert.Nil(t, folders[0].SystemKey)
	assert.True(t, folders[1].IsSystem)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRenameFolder_SystemRejected(t *testing.T) {
	repo, mock := setupBoardMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM note_tool.board_folders WHERE id = $1 AND user_id = $2`)).
		WithArgs(int64(1), "u1").
		WillReturnRows(sqlmock.NewRows(folderRowColumns).
			AddRow(int64(1), "u1", "Archive", true, models.ArchiveFolderKey, 0, time.Now()))

	_, err := repo.RenameFolder(context.Background(), "u1", 1, "Mine")
	assert.ErrorIs(t, err, models.ErrSystemFolder)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteFolder_UnassignsBoards(t *testing.T) {
	repo, mock := setupBoardMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM note_tool.board_folders WHERE id = $1 AND user_id = $2`)).
		WithArgs(int64(4), "u1").
		WillReturnRows(sqlmock.NewRows(folderRowColumns).AddRow(int64(4), "u1", "Old", false, nil, 2, time.Now()))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE note_tool.boards SET folder_id = NULL`)).
		WithArgs("u1", int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM note_tool.board_folders`)).
		WithArgs("u1", int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.DeleteFolder(context.Background(), "u1", 4))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderFolders(t *testing.T) {
	all := []models.BoardFolder{
		{ID: 2}, {ID: 3}, {ID: 5}, {ID: 1, IsSystem: true},
	}
	tests := []struct {
		name      string
		requested []int64
		want      []int64
	}{
		{"full order", []int64{5, 3, 2}, []int64{5, 3, 2}},
		{"missing appended", []int64{5}, []int64{5, 2, 3}},
		{"unknown and system ignored", []int64{99, 1, 3}, []int64{3, 2, 5}},
		{"duplicates collapse", []int64{3, 3}, []int64{3, 2, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, orderFolders(all, tt.requested))
		})
	}
}

func TestListBoards_DefaultExcludesArchive(t *testing.T) {
	repo, mock := setupBoardMock(t)

	expectArchive(mock, "u1", 1)
	mock.ExpectQuery(regexp.QuoteMeta(`COUNT(bc.card_id)::int AS card_count`)).
		WithArgs("u1", nil, int64(1)).
		WillReturnRows(sqlmock.NewRows(append(boardRowColumns, "card_count")).
			AddRow(int64(7), "u1", nil, "Ideas", nil, "{a,b}", time.Now(), 3))

	boards, err := repo.ListBoards(context.Background(), "u1", nil)
	require.NoError(t, err)
	require.Len(t, boards, 1)
	assert.Equal(t, []string{"a", "b"}, boards[0].Tags)
	assert.Equal(t, 3, boards[0].CardCount)
	assert.Nil(t, boards[0].FolderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddCard_ForeignCardNotFound(t *testing.T) {
	repo, mock := setupBoardMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT $1, c.id FROM note_tool.cards c WHERE c.id = $2 AND c.user_id = $3`)).
		WithArgs(int64(7), int64(99), "u1").
		WillReturnRows(sqlmock.NewRows(placementRowColumns))

	_, err := repo.AddCard(context.Background(), "u1", 7, 99)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreateCardInBoard(t *testing.T) {
	repo, mock := setupBoardMock(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO note_tool.cards`)).
		WithArgs("u1", "T", "").
		WillReturnRows(sqlmock.NewRows(cardRowColumns).AddRow(int64(11), "u1", "T", "", now, now))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM note_tool.card_links`)).
		WithArgs(int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO note_tool.board_cards (board_id, card_id)`)).
		WithArgs(int64(7), int64(11)).
		WillReturnRows(sqlmock.NewRows(placementRowColumns).AddRow(int64(7), int64(11), 0.0, 0.0, nil, nil))
	mock.ExpectCommit()

	card, placement, err := repo.CreateCardInBoard(context.Background(), "u1", 7, "T", "", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(11), card.ID)
	require.NotNil(t, placement.X)
	assert.Equal(t, 0.0, *placement.X)
	assert.Nil(t, placement.Width)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateLayout(t *testing.T) {
	repo, mock := setupBoardMock(t)
	x := 12.5
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE note_tool.board_cards`)).
		WithArgs(int64(7), int64(11), x, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows(placementRowColumns).AddRow(int64(7), int64(11), x, 4.0, 200.0, 100.0))

	p, err := repo.UpdateLayout(context.Background(), 7, 11, models.Layout{X: &x})
	require.NoError(t, err)
	assert.Equal(t, 200.0, *p.Width)
}

func TestCreateRegion_DefaultColor(t *testing.T) {
	repo, mock := setupBoardMock(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO note_tool.board_regions`)).
		WithArgs(int64(7), "Todo", models.DefaultRegionColor, 0.0, 0.0, 100.0, 50.0).
		WillReturnRows(sqlmock.NewRows(regionRowColumns).
			AddRow(int64(1), int64(7), "Todo", models.DefaultRegionColor, 0.0, 0.0, 100.0, 50.0, now, now))

	g, err := repo.CreateRegion(context.Background(), models.Region{BoardID: 7, Name: "Todo", Width: 100, Height: 50})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultRegionColor, g.Color)
}

func TestDeleteRegion_NotFound(t *testing.T) {
	repo, mock := setupBoardMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM note_tool.board_regions`)).
		WithArgs(int64(7), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.DeleteRegion(context.Background(), 7, 3), models.ErrNotFound)
}
