package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/shaonote/starbot/internal/models"
	"github.com/shaonote/starbot/internal/token"
)

// ShareRepository stores share links of both resource kinds.
type ShareRepository interface {
	Create(ctx context.Context, l *models.ShareLink) (*models.ShareLink, error)
	List(ctx context.Context, res models.ShareResource, resourceID int64) ([]models.ShareLink, error)
	Revoke(ctx context.Context, res models.ShareResource, resourceID, linkID int64) (*models.ShareLink, error)
	GetByToken(ctx context.Context, res models.ShareResource, token string) (*models.ShareLink, error)
}

// Share link input bounds.
const (
	minSharePassword = 4
	maxSharePassword = 64
	maxExpiryDays    = 365
	shareTokenBytes  = 32
)

// CreateShareInput is the owner's request for a new link.
type CreateShareInput struct {
	Permission    models.Permission `json:"permission"`
	ExpiresInDays *int              `json:"expiresInDays"`
	Password      *string           `json:"password"`
}

// ShareMeta is what an anonymous visitor learns before unlocking.
type ShareMeta struct {
	Resource          models.ShareResource `json:"resource"`
	Permission        models.Permission    `json:"permission"`
	PasswordProtected bool                 `json:"passwordProtected"`
	ExpiresAt         *time.Time           `json:"expiresAt"`
	Unlocked          bool                 `json:"unlocked"`
}

// SharedCard is a card served through a link.
type SharedCard struct {
	Permission models.Permission `json:"permission"`
	Card       *models.Card      `json:"card"`
}

// SharedBoard is a board served through a link.
type SharedBoard struct {
	Permission models.Permission `json:"permission"`
	*BoardDetail
}

// ShareService creates, resolves and unlocks share links and serves the
// shared resources.
type ShareService struct {
	links  ShareRepository
	cards  CardRepository
	boards BoardRepository
	board  *BoardService
	tokens *token.Manager
	cost   int
	now    func() time.Time
}

// NewShareService creates a ShareService.
func NewShareService(links ShareRepository, cards CardRepository, boards BoardRepository, tokens *token.Manager) *ShareService {
	return &ShareService{
		links:  links,
		cards:  cards,
		boards: boards,
		board:  NewBoardService(boards),
		tokens: tokens,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}
}

// NewShareToken returns 32 random bytes encoded as unpadded base64url.
func NewShareToken() (string, error) {
	b := make([]byte, shareTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate share token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (s *ShareService) checkOwner(ctx context.Context, userID string, res models.ShareResource, id int64) error {
	switch res {
	case models.ShareCard:
		_, err := s.cards.Get(ctx, userID, id)
		return err
	case models.ShareBoard:
		_, err := s.boards.GetBoard(ctx, userID, id)
		return err
	}
	return models.ErrNotFound
}

// Create issues a link for a resource owned by userID.
func (s *ShareService) Create(ctx context.Context, userID string, res models.ShareResource, resourceID int64, in CreateShareInput) (*models.ShareLink, error) {
	perm := in.Permission
	if perm == "" {
		perm = models.PermissionRead
	}
	if !perm.Valid() {
		return nil, models.Invalid("permission", "must be read or edit")
	}

	var expires *time.Time
	if in.ExpiresInDays != nil {
		days := *in.ExpiresInDays
		if days < 1 || days > maxExpiryDays {
			return nil, models.Invalid("expiresInDays", fmt.Sprintf("must be between 1 and %d", maxExpiryDays))
		}
		t := s.now().Add(time.Duration(days) * 24 * time.Hour)
		expires = &t
	}

	var hash []byte
	if in.Password != nil && *in.Password != "" {
		n := utf8.RuneCountInString(*in.Password)
		if n < minSharePassword || n > maxSharePassword {
			return nil, models.Invalid("password", fmt.Sprintf("must be %d to %d characters", minSharePassword, maxSharePassword))
		}
		var err error
		if hash, err = bcrypt.GenerateFromPassword([]byte(*in.Password), s.cost); err != nil {
			return nil, fmt.Errorf("hash share password: %w", err)
		}
	}

	if err := s.checkOwner(ctx, userID, res, resourceID); err != nil {
		return nil, err
	}
	tok, err := NewShareToken()
	if err != nil {
		return nil, err
	}
	return s.links.Create(ctx, &models.ShareLink{
		Resource:     res,
		ResourceID:   resourceID,
		Token:        tok,
		Permission:   perm,
		ExpiresAt:    expires,
		CreatedBy:    userID,
		PasswordHash: hash,
	})
}

// List returns the active links of a resource owned by userID.
func (s *ShareService) List(ctx context.Context, userID string, res models.ShareResource, resourceID int64) ([]models.ShareLink, error) {
	if err := s.checkOwner(ctx, userID, res, resourceID); err != nil {
		return nil, err
	}
	return s.links.List(ctx, res, resourceID)
}

// Revoke permanently disables a link. Revoking twice reports models.ErrNotFound.
func (s *ShareService) Revoke(ctx context.Context, userID string, res models.ShareResource, resourceID, linkID int64) (*models.ShareLink, error) {
	if err := s.checkOwner(ctx, userID, res, resourceID); err != nil {
		return nil, err
	}
	return s.links.Revoke(ctx, res, resourceID, linkID)
}

// Resolve loads a usable link. Unknown tokens give models.ErrNotFound, revoked
// or expired links give models.ErrGone. Expiry is checked on every call.
func (s *ShareService) Resolve(ctx context.Context, res models.ShareResource, tok string) (*models.ShareLink, error) {
	if strings.TrimSpace(tok) == "" {
		return nil, models.ErrNotFound
	}
	l, err := s.links.GetByToken(ctx, res, tok)
	if err != nil {
		return nil, err
	}
	if !l.Usable(s.now()) {
		return nil, models.ErrGone
	}
	return l, nil
}

// Meta describes a link without serving content.
func (s *ShareService) Meta(ctx context.Context, res models.ShareResource, tok, grant string) (*ShareMeta, error) {
	l, err := s.Resolve(ctx, res, tok)
	if err != nil {
		return nil, err
	}
	return &ShareMeta{
		Resource:          res,
		Permission:        l.Permission,
		PasswordProtected: l.PasswordProtected,
		ExpiresAt:         l.ExpiresAt,
		Unlocked:          !l.PasswordProtected || s.unlocked(tok, grant),
	}, nil
}

// Unlock checks the password of a protected link and returns an unlock grant
// scoped to that token.
func (s *ShareService) Unlock(ctx context.Context, res models.ShareResource, tok, password string) (string, time.Time, error) {
	l, err := s.Resolve(ctx, res, tok)
	if err != nil {
		return "", time.Time{}, err
	}
	if !l.PasswordProtected {
		return "", time.Time{}, models.Invalid("password", "link is not password protected")
	}
	if password == "" {
		return "", time.Time{}, models.Invalid("password", "password is required")
	}
	if err := bcrypt.CompareHashAndPassword(l.PasswordHash, []byte(password)); err != nil {
		return "", time.Time{}, models.ErrInvalidCredentials
	}
	return s.tokens.Issue(token.Unlock, l.Token)
}

func (s *ShareService) unlocked(tok, grant string) bool {
	sub, err := s.tokens.Verify(token.Unlock, grant)
	return err == nil && sub == tok
}

// authorize resolves a link and enforces its password gate.
func (s *ShareService) authorize(ctx context.Context, res models.ShareResource, tok, grant string) (*models.ShareLink, error) {
	l, err := s.Resolve(ctx, res, tok)
	if err != nil {
		return nil, err
	}
	if l.PasswordProtected && !s.unlocked(tok, grant) {
		return nil, models.ErrPasswordRequired
	}
	return l, nil
}

// Card serves a shared card.
func (s *ShareService) Card(ctx context.Context, tok, grant string) (*SharedCard, error) {
	l, err := s.authorize(ctx, models.ShareCard, tok, grant)
	if err != nil {
		return nil, err
	}
	c, err := s.cards.GetAny(ctx, l.ResourceID)
	if err != nil {
		return nil, err
	}
	return &SharedCard{Permission: l.Permission, Card: c}, nil
}

// Board serves a shared board with its cards and regions.
func (s *ShareService) Board(ctx context.Context, tok, grant string) (*SharedBoard, error) {
	l, err := s.authorize(ctx, models.ShareBoard, tok, grant)
	if err != nil {
		return nil, err
	}
	d, err := s.board.BoardView(ctx, l.ResourceID)
	if err != nil {
		return nil, err
	}
	return &SharedBoard{Permission: l.Permission, BoardDetail: d}, nil
}

// EditCard updates a card through an edit link. Mention links are re-derived
// within the card owner's cards.
func (s *ShareService) EditCard(ctx context.Context, tok, grant, title, content string) (*models.Card, error) {
	l, err := s.authorize(ctx, models.ShareCard, tok, grant)
	if err != nil {
		return nil, err
	}
	if l.Permission != models.PermissionEdit {
		return nil, models.ErrForbidden
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, models.Invalid("title", "title is required")
	}
	c, err := s.cards.GetAny(ctx, l.ResourceID)
	if err != nil {
		return nil, err
	}
	return s.cards.Update(ctx, c.UserID, c.ID, title, content, ParseMentions(content))
}

// MoveBoardCard changes a card layout through an edit link.
func (s *ShareService) MoveBoardCard(ctx context.Context, tok, grant string, cardID int64, l models.Layout) (*models.BoardCard, error) {
	link, err := s.authorize(ctx, models.ShareBoard, tok, grant)
	if err != nil {
		return nil, err
	}
	if link.Permission != models.PermissionEdit {
		return nil, models.ErrForbidden
	}
	return s.board.MoveCard(ctx, link.ResourceID, cardID, l)
}
