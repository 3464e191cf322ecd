package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/shaonote/starbot/internal/models"
)

const archiveFolderName = "Archive"

// PostgresBoardRepository stores boards, board folders, card placements and regions.
type PostgresBoardRepository struct {
	DB *sql.DB
}

// NewPostgresBoardRepository creates a new PostgresBoardRepository.
func NewPostgresBoardRepository(db *sql.DB) *PostgresBoardRepository {
	return &PostgresBoardRepository{DB: db}
}

const folderColumns = `id, user_id, name, is_system, system_key, sort_order, created_at`

func scanFolder(row rowScanner) (*models.BoardFolder, error) {
	var (
		f   models.BoardFolder
		key sql.NullString
	)
	if err := row.Scan(&f.ID, &f.UserID, &f.Name, &f.IsSystem, &key, &f.SortOrder, &f.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	f.SystemKey = stringPtr(key)
	return &f, nil
}

// EnsureArchiveFolder creates the user's system archive folder when missing.
func (r *PostgresBoardRepository) EnsureArchiveFolder(ctx context.Context, userID string) (*models.BoardFolder, error) {
	f, err := scanFolder(r.DB.QueryRowContext(ctx, `
		INSERT INTO note_tool.board_folders (user_id, name, is_system, system_key, sort_order)
		VALUES ($1, $3, TRUE, $2, 0)
		ON CONFLICT (user_id, system_key)
		DO UPDATE SET name = EXCLUDED.name, sort_order = 0
		RETURNING `+folderColumns, userID, models.ArchiveFolderKey, archiveFolderName))
	if err != nil {
		return nil, fmt.Errorf("ensure archive folder: %w", err)
	}
	return f, nil
}

// ListFolders returns the user's folders with the archive folder last.
func (r *PostgresBoardRepository) ListFolders(ctx context.Context, userID string) ([]models.BoardFolder, error) {
	if _, err := r.EnsureArchiveFolder(ctx, userID); err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+folderColumns+`
		FROM note_tool.board_folders
		WHERE user_id = $1
		ORDER BY CASE WHEN system_key = $2 THEN 1 ELSE 0 END, sort_order ASC, id ASC
	`, userID, models.ArchiveFolderKey)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	folders := []models.BoardFolder{}
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		folders = append(folders, *f)
	}
	return folders, rows.Err()
}

// GetFolder returns a folder owned by userID, or models.ErrNotFound.
func (r *PostgresBoardRepository) GetFolder(ctx context.Context, userID string, id int64) (*models.BoardFolder, error) {
	f, err := scanFolder(r.DB.QueryRowContext(ctx,
		`SELECT `+folderColumns+` FROM note_tool.board_folders WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("get folder: %w", err)
	}
	return f, err
}

// CreateFolder appends a custom folder after the user's existing ones.
func (r *PostgresBoardRepository) CreateFolder(ctx context.Context, userID, name string) (*models.BoardFolder, error) {
	f, err := scanFolder(r.DB.QueryRowContext(ctx, `
		INSERT INTO note_tool.board_folders (user_id, name, is_system, system_key, sort_order)
		VALUES ($1, $2, FALSE, NULL, (
			SELECT COALESCE(MAX(sort_order), 0) + 1
			FROM note_tool.board_folders
			WHERE user_id = $1 AND is_system = FALSE
		))
		RETURNING `+folderColumns, userID, name))
	if err != nil {
		return nil, fmt.Errorf("create folder: %w", err)
	}
	return f, nil
}

// RenameFolder renames a custom folder. The archive folder yields models.ErrSystemFolder.
func (r *PostgresBoardRepository) RenameFolder(ctx context.Context, userID string, id int64, name string) (*models.BoardFolder, error) {
	target, err := r.GetFolder(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if target.IsSystem {
		return nil, models.ErrSystemFolder
	}
	f, err := scanFolder(r.DB.QueryRowContext(ctx, `
		UPDATE note_tool.board_folders SET name = $3
		WHERE user_id = $1 AND id = $2
		RETURNING `+folderColumns, userID, id, name))
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("rename folder: %w", err)
	}
	return f, err
}

// ReorderFolders applies ids as the new custom folder order. Unknown ids are
// ignored and folders missing from ids keep their relative order at the end.
func (r *PostgresBoardRepository) ReorderFolders(ctx context.Context, userID string, ids []int64) ([]models.BoardFolder, error) {
	all, err := r.ListFolders(ctx, userID)
	if err != nil {
		return nil, err
	}
	ordered := orderFolders(all, ids)
	if len(ordered) == 0 {
		return all, nil
	}

	err = withTx(ctx, r.DB, func(tx *sql.Tx) error {
		for i, id := range ordered {
			if _, err := tx.ExecContext(ctx, `
				UPDATE note_tool.board_folders SET sort_order = $3
				WHERE user_id = $1 AND id = $2 AND is_system = FALSE
			`, userID, id, i+1); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reorder folders: %w", err)
	}
	return r.ListFolders(ctx, userID)
}

func orderFolders(all []models.BoardFolder, requested []int64) []int64 {
	custom := make(map[int64]bool)
	for _, f := range all {
		if !f.IsSystem {
			custom[f.ID] = true
		}
	}
	seen := make(map[int64]bool)
	ordered := make([]int64, 0, len(custom))
	for _, id := range requested {
		if custom[id] && !seen[id] {
			seen[id] = true
			ordered = append(ordered, id)
		}
	}
	for _, f := range all {
		if custom[f.ID] && !seen[f.ID] {
			ordered = append(ordered, f.ID)
		}
	}
	return ordered
}

// DeleteFolder unassigns the folder's boards and deletes it.
func (r *PostgresBoardRepository) DeleteFolder(ctx context.Context, userID string, id int64) error {
	target, err := r.GetFolder(ctx, userID, id)
	if err != nil {
		return err
	}
	if target.IsSystem {
		return models.ErrSystemFolder
	}
	err = withTx(ctx, r.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE note_tool.boards SET folder_id = NULL WHERE user_id = $1 AND folder_id = $2`, userID, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM note_tool.board_folders WHERE user_id = $1 AND id = $2`, userID, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}
	return nil
}

const boardColumns = `b.id, b.user_id, b.folder_id, b.name, b.description, b.tags, b.created_at`

func scanBoard(row rowScanner, withCount bool) (*models.Board, error) {
	var (
		b      models.Board
		folder sql.NullInt64
		desc   sql.NullString
	)
	dest := []any{&b.ID, &b.UserID, &folder, &b.Name, &desc, pq.Array(&b.Tags), &b.CreatedAt}
	if withCount {
		dest = append(dest, &b.CardCount)
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	if folder.Valid {
		b.FolderID = &folder.Int64
	}
	b.Description = stringPtr(desc)
	if b.Tags == nil {
		b.Tags = []string{}
	}
	return &b, nil
}

// ListBoards returns the user's boards with card counts, newest first. With a
// nil folderID every board outside the archive folder is returned.
func (r *PostgresBoardRepository) ListBoards(ctx context.Context, userID string, folderID *int64) ([]models.Board, error) {
	archive, err := r.EnsureArchiveFolder(ctx, userID)
	if err != nil {
		return nil, err
	}
	var folder sql.NullInt64
	if folderID != nil {
		folder = sql.NullInt64{Int64: *folderID, Valid: true}
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+boardColumns+`, COUNT(bc.card_id)::int AS card_count
		FROM note_tool.boards b
		LEFT JOIN note_tool.board_cards bc ON bc.board_id = b.id
		WHERE b.user_id = $1
		  AND (
			($2::bigint IS NOT NULL AND b.folder_id = $2::bigint)
			OR ($2::bigint IS NULL AND (b.folder_id IS NULL OR b.folder_id <> $3::bigint))
		  )
		GROUP BY b.id
		ORDER BY b.created_at DESC
	`, userID, folder, archive.ID)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	boards := []models.Board{}
	for rows.Next() {
		b, err := scanBoard(rows, true)
		if err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		boards = append(boards, *b)
	}
	return boards, rows.Err()
}

// CreateBoard inserts an empty board.
func (r *PostgresBoardRepository) CreateBoard(ctx context.Context, userID, name string, description *string, folderID *int64) (*models.Board, error) {
	b, err := scanBoard(r.DB.QueryRowContext(ctx, `
		INSERT INTO note_tool.boards AS b (user_id, folder_id, name, description, tags)
		VALUES ($1, $2, $3, $4, '{}')
		RETURNING `+boardColumns, userID, folderID, name, description), false)
	if err != nil {
		return nil, fmt.Errorf("create board: %w", err)
	}
	return b, nil
}

// GetBoard returns a board owned by userID, or models.ErrNotFound.
func (r *PostgresBoardRepository) GetBoard(ctx context.Context, userID string, id int64) (*models.Board, error) {
	b, err := scanBoard(r.DB.QueryRowContext(ctx,
		`SELECT `+boardColumns+` FROM note_tool.boards b WHERE b.id = $1 AND b.user_id = $2`, id, userID), false)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("get board: %w", err)
	}
	return b, err
}

// GetBoardAny returns a board regardless of owner. Used when access is granted by a share link.
func (r *PostgresBoardRepository) GetBoardAny(ctx context.Context, id int64) (*models.Board, error) {
	b, err := scanBoard(r.DB.QueryRowContext(ctx,
		`SELECT `+boardColumns+` FROM note_tool.boards b WHERE b.id = $1`, id), false)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("get board: %w", err)
	}
	return b, err
}

// UpdateBoard applies u to a board owned by userID.
func (r *PostgresBoardRepository) UpdateBoard(ctx context.Context, userID string, id int64, u models.BoardUpdate) (*models.Board, error) {
	var tags any
	if u.Tags != nil {
		tags = pq.Array(u.Tags)
	}
	b, err := scanBoard(r.DB.QueryRowContext(ctx, `
		UPDATE note_tool.boards AS b
		SET name = $3,
			tags = COALESCE($4, b.tags),
			description = COALESCE($5, b.description),
			folder_id = CASE WHEN $6 THEN $7 ELSE b.folder_id END
		WHERE b.id = $1 AND b.user_id = $2
		RETURNING `+boardColumns, id, userID, u.Name, tags, u.Description, u.FolderSet, u.FolderID), false)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("update board: %w", err)
	}
	return b, err
}

// DeleteBoard removes a board owned by userID. Placements, regions and share links cascade.
func (r *PostgresBoardRepository) DeleteBoard(ctx context.Context, userID string, id int64) error {
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM note_tool.boards WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete board: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// BoardCards returns the cards placed on a board with their layout.
func (r *PostgresBoardRepository) BoardCards(ctx context.Context, boardID int64) ([]models.BoardCardView, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT c.id, c.user_id, c.title, c.content, c.created_at, c.updated_at,
		       bc.x_pos, bc.y_pos, bc.width, bc.height
		FROM note_tool.board_cards bc
		JOIN note_tool.cards c ON c.id = bc.card_id
		WHERE bc.board_id = $1
		ORDER BY c.created_at DESC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("board cards: %w", err)
	}
	defer rows.Close()

	cards := []models.BoardCardView{}
	for rows.Next() {
		var (
			v          models.BoardCardView
			x, y, w, h sql.NullFloat64
		)
		if err := rows.Scan(&v.ID, &v.UserID, &v.Title, &v.Content, &v.CreatedAt, &v.UpdatedAt,
			&x, &y, &w, &h); err != nil {
			return nil, fmt.Errorf("scan board card: %w", err)
		}
		v.Layout = layoutFrom(x, y, w, h)
		cards = append(cards, v)
	}
	return cards, rows.Err()
}

// CreateCardInBoard creates a card, indexes its mentions and places it on the
// board in one transaction.
func (r *PostgresBoardRepository) CreateCardInBoard(ctx context.Context, userID string, boardID int64, title, content string, mentions []int64) (*models.Card, *models.BoardCard, error) {
	var (
		card      *models.Card
		placement *models.BoardCard
	)
	err := withTx(ctx, r.DB, func(tx *sql.Tx) error {
		var err error
		card, err = insertCard(ctx, tx, userID, title, content)
		if err != nil {
			return err
		}
		if err := replaceLinks(ctx, tx, card.ID, userID, mentions); err != nil {
			return err
		}
		placement, err = scanPlacement(tx.QueryRowContext(ctx, `
			INSERT INTO note_tool.board_cards (board_id, card_id)
			VALUES ($1, $2)
			RETURNING board_id, card_id, x_pos, y_pos, width, height
		`, boardID, card.ID))
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create card in board: %w", err)
	}
	return card, placement, nil
}

// AddCard places an existing card owned by userID on the board. A missing,
// foreign or already placed card yields models.ErrNotFound.
func (r *PostgresBoardRepository) AddCard(ctx context.Context, userID string, boardID, cardID int64) (*models.BoardCard, error) {
	p, err := scanPlacement(r.DB.QueryRowContext(ctx, `
		INSERT INTO note_tool.board_cards (board_id, card_id)
		SELECT $1, c.id FROM note_tool.cards c WHERE c.id = $2 AND c.user_id = $3
		ON CONFLICT (board_id, card_id) DO NOTHING
		RETURNING board_id, card_id, x_pos, y_pos, width, height
	`, boardID, cardID, userID))
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("add card: %w", err)
	}
	return p, err
}

// UpdateLayout changes the non-nil layout fields of a placement.
func (r *PostgresBoardRepository) UpdateLayout(ctx context.Context, boardID, cardID int64, l models.Layout) (*models.BoardCard, error) {
	p, err := scanPlacement(r.DB.QueryRowContext(ctx, `
		UPDATE note_tool.board_cards
		SET x_pos = COALESCE($3, x_pos),
			y_pos = COALESCE($4, y_pos),
			width = COALESCE($5, width),
			height = COALESCE($6, height)
		WHERE board_id = $1 AND card_id = $2
		RETURNING board_id, card_id, x_pos, y_pos, width, height
	`, boardID, cardID, l.X, l.Y, l.Width, l.Height))
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("update layout: %w", err)
	}
	return p, err
}

// RemoveCard takes a card off the board without deleting it.
func (r *PostgresBoardRepository) RemoveCard(ctx context.Context, boardID, cardID int64) error {
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM note_tool.board_cards WHERE board_id = $1 AND card_id = $2`, boardID, cardID)
	if err != nil {
		return fmt.Errorf("remove card: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func scanPlacement(row rowScanner) (*models.BoardCard, error) {
	var (
		p          models.BoardCard
		x, y, w, h sql.NullFloat64
	)
	if err := row.Scan(&p.BoardID, &p.CardID, &x, &y, &w, &h); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	p.Layout = layoutFrom(x, y, w, h)
	return &p, nil
}

func layoutFrom(x, y, w, h sql.NullFloat64) models.Layout {
	f := func(v sql.NullFloat64) *float64 {
		if !v.Valid {
			return nil
		}
		return &v.Float64
	}
	return models.Layout{X: f(x), Y: f(y), Width: f(w), Height: f(h)}
}

const regionColumns = `id, board_id, name, color, x_pos, y_pos, width, height, created_at, updated_at`

func scanRegion(row rowScanner) (*models.Region, error) {
	var g models.Region
	if err := row.Scan(&g.ID, &g.BoardID, &g.Name, &g.Color, &g.X, &g.Y, &g.Width, &g.Height,
		&g.CreatedAt, &g.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

// ListRegions returns the regions of a board in creation order.
func (r *PostgresBoardRepository) ListRegions(ctx context.Context, boardID int64) ([]models.Region, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+regionColumns+`
		FROM note_tool.board_regions
		WHERE board_id = $1
		ORDER BY created_at ASC, id ASC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	defer rows.Close()

	regions := []models.Region{}
	for rows.Next() {
		g, err := scanRegion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan region: %w", err)
		}
		regions = append(regions, *g)
	}
	return regions, rows.Err()
}

// CreateRegion inserts a region; an empty color falls back to the default.
func (r *PostgresBoardRepository) CreateRegion(ctx context.Context, g models.Region) (*models.Region, error) {
	if g.Color == "" {
		g.Color = models.DefaultRegionColor
	}
	out, err := scanRegion(r.DB.QueryRowContext(ctx, `
		INSERT INTO note_tool.board_regions (board_id, name, color, x_pos, y_pos, width, height)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+regionColumns, g.BoardID, g.Name, g.Color, g.X, g.Y, g.Width, g.Height))
	if err != nil {
		return nil, fmt.Errorf("create region: %w", err)
	}
	return out, nil
}

// UpdateRegion applies the non-nil fields of p.
func (r *PostgresBoardRepository) UpdateRegion(ctx context.Context, boardID, id int64, p models.RegionPatch) (*models.Region, error) {
	out, err := scanRegion(r.DB.QueryRowContext(ctx, `
		UPDATE note_tool.board_regions
		SET name = COALESCE($3, name),
			color = COALESCE($4, color),
			x_pos = COALESCE($5, x_pos),
			y_pos = COALESCE($6, y_pos),
			width = COALESCE($7, width),
			height = COALESCE($8, height),
			updated_at = NOW()
		WHERE board_id = $1 AND id = $2
		RETURNING `+regionColumns, boardID, id, p.Name, p.Color, p.X, p.Y, p.Width, p.Height))
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("update region: %w", err)
	}
	return out, err
}

// DeleteRegion removes a region from a board.
func (r *PostgresBoardRepository) DeleteRegion(ctx context.Context, boardID, id int64) error {
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM note_tool.board_regions WHERE board_id = $1 AND id = $2`, boardID, id)
	if err != nil {
		return fmt.Errorf("delete region: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}
