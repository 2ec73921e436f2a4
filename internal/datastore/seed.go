package datastore

import (
	"context"

	"github.com/ahinestrog/storefront/internal/domain"
)

var seedCategories = []domain.Category{
	{ID: "1", Name: "Novel"},
	{ID: "2", Name: "Science"},
	{ID: "3", Name: "Children"},
}

var seedBooks = []domain.Book{
	{ID: "1", Title: "Dế Mèn Phiêu Lưu Ký", Author: "Tô Hoài", CategoryID: "3", Price: 45000, Stock: 20},
	{ID: "2", Title: "Số Đỏ", Author: "Vũ Trọng Phụng", CategoryID: "1", Price: 60000, Stock: 12},
	{ID: "3", Title: "A Brief History of Time", Author: "Stephen Hawking", CategoryID: "2", Price: 150000, Stock: 5},
	{ID: "4", Title: "Cosmos", Author: "Carl Sagan", CategoryID: "2", Price: 180000, Stock: 0},
	{ID: "5", Title: "Nhà Giả Kim", Author: "Paulo Coelho", CategoryID: "1", Price: 79000, Stock: 30},
}

// Seed loads the demo catalog when the store has no books yet. It reports
// whether anything was written.
func (r *Repository) Seed(ctx context.Context) (bool, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM books`).Scan(&n); err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	for _, c := range seedCategories {
		if _, err := r.CreateCategory(ctx, c); err != nil {
			return false, err
		}
	}
	for _, b := range seedBooks {
		if _, err := r.CreateBook(ctx, b); err != nil {
			return false, err
		}
	}
	return true, nil
}
