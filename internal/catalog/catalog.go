// Package catalog serves book lookups for browsing and for the cart.
// Stock shown here may be stale by up to the cache TTL; checkout re-reads
// stock from the store directly.
package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/ahinestrog/storefront/internal/domain"
)

type Source interface {
	ListBooks(ctx context.Context) ([]domain.Book, error)
	GetBook(ctx context.Context, id domain.ID) (domain.Book, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
}

// Filter narrows a listing. Zero value matches every book.
type Filter struct {
	Query      string
	CategoryID domain.ID
}

func (f Filter) Match(b domain.Book) bool {
	if f.CategoryID != "" && b.CategoryID != f.CategoryID {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(b.Title), q) ||
		strings.Contains(strings.ToLower(b.Author), q)
}

const listKey = "all"

type Service struct {
	src        Source
	books      *expirable.LRU[domain.ID, domain.Book]
	lists      *expirable.LRU[string, []domain.Book]
	categories *expirable.LRU[string, []domain.Category]
	log        zerolog.Logger
}

func NewService(src Source, size int, ttl time.Duration, log zerolog.Logger) *Service {
	if size <= 0 {
		size = 256
	}
	return &Service{
		src:        src,
		books:      expirable.NewLRU[domain.ID, domain.Book](size, nil, ttl),
		lists:      expirable.NewLRU[string, []domain.Book](1, nil, ttl),
		categories: expirable.NewLRU[string, []domain.Category](1, nil, ttl),
		log:        log,
	}
}

func (s *Service) List(ctx context.Context, f Filter) ([]domain.Book, error) {
	all, ok := s.lists.Get(listKey)
	if !ok {
		var err error
		all, err = s.src.ListBooks(ctx)
		if err != nil {
			return nil, err
		}
		s.lists.Add(listKey, all)
		for _, b := range all {
			s.books.Add(b.ID, b)
		}
		s.log.Debug().Int("books", len(all)).Msg("catalog refreshed")
	}
	out := make([]domain.Book, 0, len(all))
	for _, b := range all {
		if f.Match(b) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id domain.ID) (domain.Book, error) {
	if b, ok := s.books.Get(id); ok {
		return b, nil
	}
	b, err := s.src.GetBook(ctx, id)
	if err != nil {
		return domain.Book{}, err
	}
	s.books.Add(id, b)
	return b, nil
}

func (s *Service) Categories(ctx context.Context) ([]domain.Category, error) {
	if cs, ok := s.categories.Get(listKey); ok {
		return cs, nil
	}
	cs, err := s.src.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	s.categories.Add(listKey, cs)
	return cs, nil
}

// Invalidate drops cached data for the given books, e.g. after checkout
// changed their stock. With no ids the whole cache is purged.
func (s *Service) Invalidate(ids ...domain.ID) {
	s.lists.Purge()
	if len(ids) == 0 {
		s.books.Purge()
		return
	}
	for _, id := range ids {
		s.books.Remove(id)
	}
}
