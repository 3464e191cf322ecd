package service

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/shaonote/starbot/internal/models"
)

// CardRepository defines the card persistence used by CardService.
type CardRepository interface {
	List(ctx context.Context, userID string) ([]models.Card, error)
	Get(ctx context.Context, userID string, id int64) (*models.Card, error)
	GetAny(ctx context.Context, id int64) (*models.Card, error)
	Links(ctx context.Context, id int64) (*models.CardLinks, error)
	// Create and Update store the card and replace its links in one transaction.
	Create(ctx context.Context, userID, title, content string, mentions []int64) (*models.Card, error)
	Update(ctx context.Context, userID string, id int64, title, content string, mentions []int64) (*models.Card, error)
	Delete(ctx context.Context, userID string, id int64) error
}

var mentionPattern = regexp.MustCompile(`@\[\[(\d+)\|[^\]]*\]\]`)

// ParseMentions returns the distinct card ids referenced as @[[id|label]] in
// content, in ascending order.
func ParseMentions(content string) []int64 {
	seen := map[int64]bool{}
	var ids []int64
	for _, m := range mentionPattern.FindAllStringSubmatch(content, -1) {
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CardDetail is a card with its links.
type CardDetail struct {
	Card  *models.Card      `json:"card"`
	Links *models.CardLinks `json:"links"`
}

// CardService implements card CRUD. Every write re-derives the mention links.
type CardService struct {
	repo CardRepository
}

// NewCardService creates a CardService.
func NewCardService(repo CardRepository) *CardService {
	return &CardService{repo: repo}
}

// List returns the user's cards, most recently updated first.
func (s *CardService) List(ctx context.Context, userID string) ([]models.Card, error) {
	return s.repo.List(ctx, userID)
}

// Get returns a card of the user with its outgoing and incoming links.
func (s *CardService) Get(ctx context.Context, userID string, id int64) (*CardDetail, error) {
	card, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	links, err := s.repo.Links(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CardDetail{Card: card, Links: links}, nil
}

// Create validates and stores a new card.
func (s *CardService) Create(ctx context.Context, userID, title, content string) (*models.Card, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, models.Invalid("title", "title is required")
	}
	return s.repo.Create(ctx, userID, title, content, ParseMentions(content))
}

// Update rewrites a card of the user. Its links become exactly the mentions in content.
func (s *CardService) Update(ctx context.Context, userID string, id int64, title, content string) (*models.Card, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, models.Invalid("title", "title is required")
	}
	return s.repo.Update(ctx, userID, id, title, content, ParseMentions(content))
}

// Delete removes a card of the user.
func (s *CardService) Delete(ctx context.Context, userID string, id int64) error {
	return s.repo.Delete(ctx, userID, id)
}
