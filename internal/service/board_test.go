package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaonote/starbot/internal/models"
)

// mockBoardRepo owns board 1 for user "u1" and nothing else.
type mockBoardRepo struct {
	BoardRepository
	layoutCalls int
	regionCalls int
	update      models.BoardUpdate
}

func (m *mockBoardRepo) GetBoard(_ context.Context, userID string, id int64) (*models.Board, error) {
	if userID != "u1" || id != 1 {
		return nil, models.ErrNotFound
	}
	return &models.Board{ID: 1, UserID: "u1", Name: "B"}, nil
}

func (m *mockBoardRepo) GetFolder(_ context.Context, userID string, id int64) (*models.BoardFolder, error) {
	if userID != "u1" || id != 10 {
		return nil, models.ErrNotFound
	}
	return &models.BoardFolder{ID: 10, UserID: "u1"}, nil
}

func (m *mockBoardRepo) UpdateLayout(_ context.Context, boardID, cardID int64, l models.Layout) (*models.BoardCard, error) {
	m.layoutCalls++
	return &models.BoardCard{BoardID: boardID, CardID: cardID, Layout: l}, nil
}

func (m *mockBoardRepo) CreateRegion(_ context.Context, g models.Region) (*models.Region, error) {
	m.regionCalls++
	return &g, nil
}

func (m *mockBoardRepo) UpdateBoard(_ context.Context, _ string, id int64, u models.BoardUpdate) (*models.Board, error) {
	m.update = u
	return &models.Board{ID: id, Name: u.Name, Tags: u.Tags}, nil
}

func f64(v float64) *float64 { return &v }

func TestUpdateLayout_Validation(t *testing.T) {
	repo := &mockBoardRepo{}
	svc := NewBoardService(repo)
	ctx := context.Background()

	_, err := svc.UpdateLayout(ctx, "u1", 1, 5, models.Layout{Width: f64(0)})
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "width", ve.Field)

	_, err = svc.UpdateLayout(ctx, "u1", 1, 5, models.Layout{Height: f64(-3)})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "height", ve.Field)

	p, err := svc.UpdateLayout(ctx, "u1", 1, 5, models.Layout{X: f64(-20), Width: f64(200)})
	require.NoError(t, err)
	assert.Equal(t, -20.0, *p.X)
	assert.Equal(t, 1, repo.layoutCalls)
}

func TestUpdateLayout_ForeignBoard(t *testing.T) {
	repo := &mockBoardRepo{}
	svc := NewBoardService(repo)

	_, err := svc.UpdateLayout(context.Background(), "intruder", 1, 5, models.Layout{X: f64(1)})
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Zero(t, repo.layoutCalls)
}

func TestCreateRegion(t *testing.T) {
	repo := &mockBoardRepo{}
	svc := NewBoardService(repo)
	ctx := context.Background()

	_, err := svc.CreateRegion(ctx, "u1", 1, models.Region{Name: "", Width: 10, Height: 10})
	assert.Error(t, err)
	_, err = svc.CreateRegion(ctx, "u1", 1, models.Region{Name: "R", Width: 0, Height: 10})
	assert.Error(t, err)
	assert.Zero(t, repo.regionCalls)

	g, err := svc.CreateRegion(ctx, "u1", 1, models.Region{Name: " R ", Width: 10, Height: 10})
	require.NoError(t, err)
	assert.Equal(t, "R", g.Name)
	assert.Equal(t, int64(1), g.BoardID)
}

func TestUpdateBoard_FolderAndTags(t *testing.T) {
	repo := &mockBoardRepo{}
	svc := NewBoardService(repo)
	ctx := context.Background()

	_, err := svc.UpdateBoard(ctx, "u1", 1, BoardInput{Name: "B", FolderSet: true, FolderID: ptrInt64(99)})
	assert.ErrorIs(t, err, models.ErrNotFound)

	b, err := svc.UpdateBoard(ctx, "u1", 1, BoardInput{Name: "B", Tags: []string{" a ", "", "b"}, FolderSet: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, b.Tags)
	assert.True(t, repo.update.FolderSet)
	assert.Nil(t, repo.update.FolderID)

	_, err = svc.UpdateBoard(ctx, "u1", 1, BoardInput{Name: "  "})
	assert.Error(t, err)
}

func ptrInt64(v int64) *int64 { return &v }
