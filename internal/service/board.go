package service

import (
	"context"
	"math"
	"strings"

	"github.com/shaonote/starbot/internal/models"
)

// BoardRepository defines the board persistence used by BoardService.
type BoardRepository interface {
	ListFolders(ctx context.Context, userID string) ([]models.BoardFolder, error)
	GetFolder(ctx context.Context, userID string, id int64) (*models.BoardFolder, error)
	CreateFolder(ctx context.Context, userID, name string) (*models.BoardFolder, error)
	RenameFolder(ctx context.Context, userID string, id int64, name string) (*models.BoardFolder, error)
	ReorderFolders(ctx context.Context, userID string, ids []int64) ([]models.BoardFolder, error)
	DeleteFolder(ctx context.Context, userID string, id int64) error

	ListBoards(ctx context.Context, userID string, folderID *int64) ([]models.Board, error)
	CreateBoard(ctx context.Context, userID, name string, description *string, folderID *int64) (*models.Board, error)
	GetBoard(ctx context.Context, userID string, id int64) (*models.Board, error)
	GetBoardAny(ctx context.Context, id int64) (*models.Board, error)
	UpdateBoard(ctx context.Context, userID string, id int64, u models.BoardUpdate) (*models.Board, error)
	DeleteBoard(ctx context.Context, userID string, id int64) error

	BoardCards(ctx context.Context, boardID int64) ([]models.BoardCardView, error)
	CreateCardInBoard(ctx context.Context, userID string, boardID int64, title, content string, mentions []int64) (*models.Card, *models.BoardCard, error)
	AddCard(ctx context.Context, userID string, boardID, cardID int64) (*models.BoardCard, error)
	UpdateLayout(ctx context.Context, boardID, cardID int64, l models.Layout) (*models.BoardCard, error)
	RemoveCard(ctx context.Context, boardID, cardID int64) error

	ListRegions(ctx context.Context, boardID int64) ([]models.Region, error)
	CreateRegion(ctx context.Context, g models.Region) (*models.Region, error)
	UpdateRegion(ctx context.Context, boardID, id int64, p models.RegionPatch) (*models.Region, error)
	DeleteRegion(ctx context.Context, boardID, id int64) error
}

// BoardDetail is a board with its placed cards and regions.
type BoardDetail struct {
	Board   *models.Board          `json:"board"`
	Cards   []models.BoardCardView `json:"cards"`
	Regions []models.Region        `json:"regions"`
}

// BoardInput carries the fields of a board create or update.
type BoardInput struct {
	Name        string
	Description *string
	Tags        []string
	FolderSet   bool
	FolderID    *int64
}

// BoardService implements boards, folders, card placements and regions.
// Every operation checks that the board or folder belongs to the caller.
type BoardService struct {
	repo BoardRepository
}

// NewBoardService creates a BoardService.
func NewBoardService(repo BoardRepository) *BoardService {
	return &BoardService{repo: repo}
}

// ListFolders returns the user's folders, creating the archive folder on first use.
func (s *BoardService) ListFolders(ctx context.Context, userID string) ([]models.BoardFolder, error) {
	return s.repo.ListFolders(ctx, userID)
}

// CreateFolder adds a custom folder at the end of the user's order.
func (s *BoardService) CreateFolder(ctx context.Context, userID, name string) (*models.BoardFolder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.Invalid("name", "folder name is required")
	}
	return s.repo.CreateFolder(ctx, userID, name)
}

// RenameFolder renames a custom folder.
func (s *BoardService) RenameFolder(ctx context.Context, userID string, id int64, name string) (*models.BoardFolder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.Invalid("name", "folder name is required")
	}
	return s.repo.RenameFolder(ctx, userID, id, name)
}

// ReorderFolders sets the order of the user's custom folders.
func (s *BoardService) ReorderFolders(ctx context.Context, userID string, ids []int64) ([]models.BoardFolder, error) {
	if ids == nil {
		return nil, models.Invalid("folderIds", "must be an array")
	}
	return s.repo.ReorderFolders(ctx, userID, ids)
}

// DeleteFolder deletes a custom folder; its boards become unfiled.
func (s *BoardService) DeleteFolder(ctx context.Context, userID string, id int64) error {
	return s.repo.DeleteFolder(ctx, userID, id)
}

// ListBoards lists the user's boards in folderID, or outside the archive when nil.
func (s *BoardService) ListBoards(ctx context.Context, userID string, folderID *int64) ([]models.Board, error) {
	if folderID != nil {
		if _, err := s.repo.GetFolder(ctx, userID, *folderID); err != nil {
			return nil, err
		}
	}
	return s.repo.ListBoards(ctx, userID, folderID)
}

// CreateBoard creates an empty board.
func (s *BoardService) CreateBoard(ctx context.Context, userID string, in BoardInput) (*models.Board, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, models.Invalid("name", "board name is required")
	}
	if in.FolderID != nil {
		if _, err := s.repo.GetFolder(ctx, userID, *in.FolderID); err != nil {
			return nil, err
		}
	}
	return s.repo.CreateBoard(ctx, userID, name, in.Description, in.FolderID)
}

// GetBoard returns a board of the user with its cards and regions.
func (s *BoardService) GetBoard(ctx context.Context, userID string, id int64) (*BoardDetail, error) {
	b, err := s.repo.GetBoard(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, b)
}

// BoardView returns any board with its cards and regions. Callers must have
// established access some other way.
func (s *BoardService) BoardView(ctx context.Context, id int64) (*BoardDetail, error) {
	b, err := s.repo.GetBoardAny(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, b)
}

func (s *BoardService) detail(ctx context.Context, b *models.Board) (*BoardDetail, error) {
	cards, err := s.repo.BoardCards(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	regions, err := s.repo.ListRegions(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	b.CardCount = len(cards)
	return &BoardDetail{Board: b, Cards: cards, Regions: regions}, nil
}

// UpdateBoard changes name, tags, description and folder of a board.
func (s *BoardService) UpdateBoard(ctx context.Context, userID string, id int64, in BoardInput) (*models.Board, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, models.Invalid("name", "board name is required")
	}
	if in.FolderSet && in.FolderID != nil {
		if _, err := s.repo.GetFolder(ctx, userID, *in.FolderID); err != nil {
			return nil, err
		}
	}
	var tags []string
	if in.Tags != nil {
		tags = make([]string, 0, len(in.Tags))
		for _, t := range in.Tags {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}
	return s.repo.UpdateBoard(ctx, userID, id, models.BoardUpdate{
		Name:        name,
		Tags:        tags,
		Description: in.Description,
		FolderSet:   in.FolderSet,
		FolderID:    in.FolderID,
	})
}

// DeleteBoard removes a board of the user.
func (s *BoardService) DeleteBoard(ctx context.Context, userID string, id int64) error {
	return s.repo.DeleteBoard(ctx, userID, id)
}

// CreateCardInBoard creates a card and places it on the board.
func (s *BoardService) CreateCardInBoard(ctx context.Context, userID string, boardID int64, title, content string) (*models.Card, *models.BoardCard, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, nil, models.Invalid("title", "title is required")
	}
	if _, err := s.repo.GetBoard(ctx, userID, boardID); err != nil {
		return nil, nil, err
	}
	return s.repo.CreateCardInBoard(ctx, userID, boardID, title, content, ParseMentions(content))
}

// AddCard places an existing card of the user on the board.
func (s *BoardService) AddCard(ctx context.Context, userID string, boardID, cardID int64) (*models.BoardCard, error) {
	if _, err := s.repo.GetBoard(ctx, userID, boardID); err != nil {
		return nil, err
	}
	return s.repo.AddCard(ctx, userID, boardID, cardID)
}

// UpdateLayout moves or resizes a card on a board of the user.
func (s *BoardService) UpdateLayout(ctx context.Context, userID string, boardID, cardID int64, l models.Layout) (*models.BoardCard, error) {
	if _, err := s.repo.GetBoard(ctx, userID, boardID); err != nil {
		return nil, err
	}
	return s.MoveCard(ctx, boardID, cardID, l)
}

// MoveCard validates and applies a layout change without an ownership check.
// Shared edit links use it after resolving the board.
func (s *BoardService) MoveCard(ctx context.Context, boardID, cardID int64, l models.Layout) (*models.BoardCard, error) {
	if err := validateLayout(l); err != nil {
		return nil, err
	}
	return s.repo.UpdateLayout(ctx, boardID, cardID, l)
}

// RemoveCard takes a card off a board of the user.
func (s *BoardService) RemoveCard(ctx context.Context, userID string, boardID, cardID int64) error {
	if _, err := s.repo.GetBoard(ctx, userID, boardID); err != nil {
		return err
	}
	return s.repo.RemoveCard(ctx, boardID, cardID)
}

// ListRegions returns the regions of a board of the user.
func (s *BoardService) ListRegions(ctx context.Context, userID string, boardID int64) ([]models.Region, error) {
	if _, err := s.repo.GetBoard(ctx, userID, boardID); err != nil {
		return nil, err
	}
	return s.repo.ListRegions(ctx, boardID)
}

// CreateRegion adds a region to a board of the user.
func (s *BoardService) CreateRegion(ctx context.Context, userID string, boardID int64, g models.Region) (*models.Region, error) {
	g.Name = strings.TrimSpace(g.Name)
	if g.Name == "" {
		return nil, models.Invalid("name", "region name is required")
	}
	if err := checkFinite("x_pos", &g.X); err != nil {
		return nil, err
	}
	if err := checkFinite("y_pos", &g.Y); err != nil {
		return nil, err
	}
	if err := checkPositive("width", &g.Width); err != nil {
		return nil, err
	}
	if err := checkPositive("height", &g.Height); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetBoard(ctx, userID, boardID); err != nil {
		return nil, err
	}
	g.BoardID = boardID
	return s.repo.CreateRegion(ctx, g)
}

// UpdateRegion applies a partial change to a region of a board of the user.
func (s *BoardService) UpdateRegion(ctx context.Context, userID string, boardID, id int64, p models.RegionPatch) (*models.Region, error) {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return nil, models.Invalid("name", "region name cannot be empty")
	}
	if err := validateLayout(models.Layout{X: p.X, Y: p.Y, Width: p.Width, Height: p.Height}); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetBoard(ctx, userID, boardID); err != nil {
		return nil, err
	}
	return s.repo.UpdateRegion(ctx, boardID, id, p)
}

// DeleteRegion removes a region from a board of the user.
func (s *BoardService) DeleteRegion(ctx context.Context, userID string, boardID, id int64) error {
	if _, err := s.repo.GetBoard(ctx, userID, boardID); err != nil {
		return err
	}
	return s.repo.DeleteRegion(ctx, boardID, id)
}

func validateLayout(l models.Layout) error {
	if err := checkFinite("x_pos", l.X); err != nil {
		return err
	}
	if err := checkFinite("y_pos", l.Y); err != nil {
		return err
	}
	if err := checkPositive("width", l.Width); err != nil {
		return err
	}
	return checkPositive("height", l.Height)
}

func checkFinite(field string, v *float64) error {
	if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
		return models.Invalid(field, "must be a number")
	}
	return nil
}

func checkPositive(field string, v *float64) error {
	if err := checkFinite(field, v); err != nil {
		return err
	}
	if v != nil && *v <= 0 {
		return models.Invalid(field, "must be greater than 0")
	}
	return nil
}
