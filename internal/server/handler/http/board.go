package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shaonote/starbot/internal/middleware"
	"github.com/shaonote/starbot/internal/models"
	"github.com/shaonote/starbot/internal/service"
)

// BoardService defines the board, folder, placement and region operations
// used by BoardHandler.
type BoardService interface {
	ListFolders(ctx context.Context, userID string) ([]models.BoardFolder, error)
	CreateFolder(ctx context.Context, userID, name string) (*models.BoardFolder, error)
	RenameFolder(ctx context.Context, userID string, id int64, name string) (*models.BoardFolder, error)
	ReorderFolders(ctx context.Context, userID string, ids []int64) ([]models.BoardFolder, error)
	DeleteFolder(ctx context.Context, userID string, id int64) error

	ListBoards(ctx context.Context, userID string, folderID *int64) ([]models.Board, error)
	CreateBoard(ctx context.Context, userID string, in service.BoardInput) (*models.Board, error)
	GetBoard(ctx context.Context, userID string, id int64) (*service.BoardDetail, error)
	UpdateBoard(ctx context.Context, userID string, id int64, in service.BoardInput) (*models.Board, error)
	DeleteBoard(ctx context.Context, userID string, id int64) error

	CreateCardInBoard(ctx context.Context, userID string, boardID int64, title, content string) (*models.Card, *models.BoardCard, error)
	AddCard(ctx context.Context, userID string, boardID, cardID int64) (*models.BoardCard, error)
	UpdateLayout(ctx context.Context, userID string, boardID, cardID int64, l models.Layout) (*models.BoardCard, error)
	RemoveCard(ctx context.Context, userID string, boardID, cardID int64) error

	ListRegions(ctx context.Context, userID string, boardID int64) ([]models.Region, error)
	CreateRegion(ctx context.Context, userID string, boardID int64, g models.Region) (*models.Region, error)
	UpdateRegion(ctx context.Context, userID string, boardID, id int64, p models.RegionPatch) (*models.Region, error)
	DeleteRegion(ctx context.Context, userID string, boardID, id int64) error
}

// BoardHandler serves /note_tool/board.
type BoardHandler struct {
	BoardService BoardService
}

type folderRequest struct {
	Name string `json:"name"`
}

type reorderRequest struct {
	IDs []int64 `json:"ids"`
}

// boardRequest keeps folderId raw so an explicit null can be told apart
// from an absent field.
type boardRequest struct {
	Name        string          `json:"name"`
	Description *string         `json:"description"`
	Tags        []string        `json:"tags"`
	FolderID    json.RawMessage `json:"folderId"`
}

func (b boardRequest) input() (service.BoardInput, error) {
	in := service.BoardInput{Name: b.Name, Description: b.Description, Tags: b.Tags}
	if len(b.FolderID) == 0 {
		return in, nil
	}
	in.FolderSet = true
	if bytes.Equal(bytes.TrimSpace(b.FolderID), []byte("null")) {
		return in, nil
	}
	var id int64
	if err := json.Unmarshal(b.FolderID, &id); err != nil || id <= 0 {
		return in, models.Invalid("folderId", "must be a positive integer or null")
	}
	in.FolderID = &id
	return in, nil
}

func userOf(r *http.Request) string {
	return middleware.GetUserIDFromContext(r.Context())
}

// ListFolders returns the folders, archive last.
func (h *BoardHandler) ListFolders(w http.ResponseWriter, r *http.Request) {
	fs, err := h.BoardService.ListFolders(r.Context(), userOf(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fs)
}

// CreateFolder adds a folder at the end of the order.
func (h *BoardHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req folderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	f, err := h.BoardService.CreateFolder(r.Context(), userOf(r), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// RenameFolder renames a user folder. The archive answers 403 SYSTEM_FOLDER.
func (h *BoardHandler) RenameFolder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "folderId")
	if err != nil {
		writeError(w, err)
		return
	}
	var req folderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	f, err := h.BoardService.RenameFolder(r.Context(), userOf(r), id, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// ReorderFolders applies a new folder order.
func (h *BoardHandler) ReorderFolders(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	fs, err := h.BoardService.ReorderFolders(r.Context(), userOf(r), req.IDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fs)
}

// DeleteFolder deletes a folder; its boards become unfiled.
func (h *BoardHandler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "folderId")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.BoardService.DeleteFolder(r.Context(), userOf(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List returns boards, optionally filtered by ?folderId=.
func (h *BoardHandler) List(w http.ResponseWriter, r *http.Request) {
	var folder *int64
	if v := r.URL.Query().Get("folderId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, models.Invalid("folderId", "must be a positive integer"))
			return
		}
		folder = &id
	}
	bs, err := h.BoardService.ListBoards(r.Context(), userOf(r), folder)
	if err != nil {
		writeError(w, err)
		return
	}
	if bs == nil {
		bs = []models.Board{}
	}
	writeJSON(w, http.StatusOK, bs)
}

// Create adds a board.
func (h *BoardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req boardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := h.BoardService.CreateBoard(r.Context(), userOf(r), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// Get returns a board with its cards and regions.
func (h *BoardHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "boardId")
	if err != nil {
		writeError(w, err)
		return
	}
	d, err := h.BoardService.GetBoard(r.Context(), userOf(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Update changes name, tags, description and folder.
func (h *BoardHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "boardId")
	if err != nil {
		writeError(w, err)
		return
	}
	var req boardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := h.BoardService.UpdateBoard(r.Context(), userOf(r), id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Delete removes a board.
func (h *BoardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "boardId")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.BoardService.DeleteBoard(r.Context(), userOf(r), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateCard creates a card and places it on the board.
func (h *BoardHandler) CreateCard(w http.ResponseWriter, r *http.Request) {
	boardID, err := idParam(r, "boardId")
	if err != nil {
		writeError(w, err)
		return
	}
	var req cardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, bc, err := h.BoardService.CreateCardInBoard(r.Context(), userOf(r), boardID, req.Title, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"card": c, "boardCard": bc})
}

// AddCard places an existing card of the user on the board.
func (h *BoardHandler) AddCard(w http.ResponseWriter, r *http.Request) {
	boardID, err := idParam(r, "boardId")
	if err != nil {
		writeError(w, err)
		return
	}
	cardID, err := idParam(r, "cardId")
	if err != nil {
		writeError(w, err)
		return
	}
	bc, err := h.BoardService.AddCard(r.Context(), userOf(r), boardID, cardID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bc)
}

// UpdateLayout moves or resizes a placed card.
func (h *BoardHandler) UpdateLayout(w http.ResponseWriter, r *http.Request) {
	boardID, err := idParam(r, "boardId")
	if err != nil {
		writeError(w, err)
		return
	}
	cardID, err := idParam(r, "cardId")
	if err != nil {
		writeError(w, err)
		return
	}
	var l models.Layout
	if err := decodeJSON(r, &l); err != nil {
		writeError(w, err)
		return
	}
	bc, err := h.BoardService.UpdateLayout(r.Context(), userOf(r), boardID, cardID, l)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bc)
}

// RemoveCard takes a card off the board.
func (h *BoardHandler) RemoveCard(w http.ResponseWriter, r *http.Request) {
	boardID, err := idParam(r, "boardId")
	if err != nil {
		writeError(w, err)
		return
	}
	cardID, err := idParam(r, "cardId")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.BoardService.RemoveCard(r.Context(), userOf(r), boardID, cardID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRegions returns the regions of a board.
func (h *BoardHandler) ListRegions(w http.ResponseWriter, r *http.Request) {
	boardID, err := idParam(r, "boardId")
	if err != nil {
		writeError(w, err)
		return
	}
	gs, err := h.BoardService.ListRegions(r.Context(), userOf(r), boardID)
	if err != nil {
		writeError(w, err)
		return
	}
	if gs == nil {
		gs = []models.Region{}
	}
	writeJSON(w, http.StatusOK, gs)
}

// CreateRegion adds a region.
func (h *BoardHandler) CreateRegion(w http.ResponseWriter, r *http.Request) {
	boardID, err := idParam(r, "boardId")
	if err != nil {
		writeError(w, err)
		return
	}
	var g models.Region
	if err := decodeJSON(r, &g); err != nil {
		writeError(w, err)
		return
	}
	out, err := h.BoardService.CreateRegion(r.Context(), userOf(r), boardID, g)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// UpdateRegion patches a region.
func (h *BoardHandler) UpdateRegion(w http.ResponseWriter, r *http.Request) {
	boardID, err := idParam(r, "boardId")
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := idParam(r, "regionId")
	if err != nil {
		writeError(w, err)
		return
	}
	var p models.RegionPatch
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, err)
		return
	}
	out, err := h.BoardService.UpdateRegion(r.Context(), userOf(r), boardID, id, p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// DeleteRegion removes a region.
func (h *BoardHandler) DeleteRegion(w http.ResponseWriter, r *http.Request) {
	boardID, err := idParam(r, "boardId")
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := idParam(r, "regionId")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.BoardService.DeleteRegion(r.Context(), userOf(r), boardID, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
