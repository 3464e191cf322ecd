package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/shaonote/starbot/internal/models"
)

// PostgresCardRepository stores cards and their mention links.
type PostgresCardRepository struct {
	DB *sql.DB
}

// NewPostgresCardRepository creates a new PostgresCardRepository.
func NewPostgresCardRepository(db *sql.DB) *PostgresCardRepository {
	return &PostgresCardRepository{DB: db}
}

const cardColumns = `id, user_id, title, content, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (*models.Card, error) {
	var c models.Card
	if err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.Content, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// List returns the user's cards, most recently updated first.
func (r *PostgresCardRepository) List(ctx context.Context, userID string) ([]models.Card, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM note_tool.cards
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	cards := []models.Card{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, *c)
	}
	return cards, rows.Err()
}

// Get returns a card owned by userID, or models.ErrNotFound.
func (r *PostgresCardRepository) Get(ctx context.Context, userID string, id int64) (*models.Card, error) {
	c, err := scanCard(r.DB.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM note_tool.cards WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("get card: %w", err)
	}
	return c, err
}

// GetAny returns a card regardless of owner. Used when access is granted by a share link.
func (r *PostgresCardRepository) GetAny(ctx context.Context, id int64) (*models.Card, error) {
	c, err := scanCard(r.DB.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM note_tool.cards WHERE id = $1`, id))
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("get card: %w", err)
	}
	return c, err
}

// Links returns the outgoing and incoming link ids of a card.
func (r *PostgresCardRepository) Links(ctx context.Context, id int64) (*models.CardLinks, error) {
	out, err := r.linkIDs(ctx, `SELECT to_card_id FROM note_tool.card_links WHERE from_card_id = $1 ORDER BY to_card_id`, id)
	if err != nil {
		return nil, fmt.Errorf("outgoing links: %w", err)
	}
	in, err := r.linkIDs(ctx, `SELECT from_card_id FROM note_tool.card_links WHERE to_card_id = $1 ORDER BY from_card_id`, id)
	if err != nil {
		return nil, fmt.Errorf("incoming links: %w", err)
	}
	return &models.CardLinks{Outgoing: out, Incoming: in}, nil
}

func (r *PostgresCardRepository) linkIDs(ctx context.Context, query string, id int64) ([]int64, error) {
	rows, err := r.DB.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		ids = append(ids, v)
	}
	return ids, rows.Err()
}

// Create inserts a card and indexes its mentions in one transaction.
func (r *PostgresCardRepository) Create(ctx context.Context, userID, title, content string, mentions []int64) (*models.Card, error) {
	var card *models.Card
	err := withTx(ctx, r.DB, func(tx *sql.Tx) error {
		var err error
		card, err = insertCard(ctx, tx, userID, title, content)
		if err != nil {
			return err
		}
		return replaceLinks(ctx, tx, card.ID, userID, mentions)
	})
	if err != nil {
		return nil, fmt.Errorf("create card: %w", err)
	}
	return card, nil
}

// Update rewrites a card owned by userID and replaces its mention links in
// one transaction. A missing card yields models.ErrNotFound and no link changes.
func (r *PostgresCardRepository) Update(ctx context.Context, userID string, id int64, title, content string, mentions []int64) (*models.Card, error) {
	var card *models.Card
	err := withTx(ctx, r.DB, func(tx *sql.Tx) error {
		var err error
		card, err = scanCard(tx.QueryRowContext(ctx, `
			UPDATE note_tool.cards
			SET title = $3, content = $4, updated_at = NOW()
			WHERE id = $1 AND user_id = $2
			RETURNING `+cardColumns, id, userID, title, content))
		if err != nil {
			return err
		}
		return replaceLinks(ctx, tx, id, userID, mentions)
	})
	if errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("update card: %w", err)
	}
	return card, nil
}

// Delete removes a card owned by userID. Links and board placements cascade.
func (r *PostgresCardRepository) Delete(ctx context.Context, userID string, id int64) error {
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM note_tool.cards WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func insertCard(ctx context.Context, tx *sql.Tx, userID, title, content string) (*models.Card, error) {
	card, err := scanCard(tx.QueryRowContext(ctx, `
		INSERT INTO note_tool.cards (user_id, title, content)
		VALUES ($1, $2, $3)
		RETURNING `+cardColumns, userID, title, content))
	if err != nil {
		return nil, fmt.Errorf("insert card: %w", err)
	}
	return card, nil
}

// replaceLinks makes the outgoing links of cardID exactly the mentioned cards
// that exist and belong to userID.
func replaceLinks(ctx context.Context, tx *sql.Tx, cardID int64, userID string, mentions []int64) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM note_tool.card_links WHERE from_card_id = $1`, cardID); err != nil {
		return fmt.Errorf("clear links: %w", err)
	}
	if len(mentions) == 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO note_tool.card_links (from_card_id, to_card_id)
		SELECT $1, id FROM note_tool.cards
		WHERE id = ANY($2) AND user_id = $3
		ON CONFLICT DO NOTHING
	`, cardID, pq.Array(mentions), userID); err != nil {
		return fmt.Errorf("insert links: %w", err)
	}
	return nil
}

// withTx runs fn inside a transaction, committing on success and rolling back otherwise.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
