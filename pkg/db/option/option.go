package option

import (
	"fmt"
	"time"

	"github.com/humanline/humanline/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption mutates a gorm statement before execution.
type QueryOption interface {
	Apply(*gorm.DB) *gorm.DB
}

type queryOptionFunc func(*gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB {
	return f(db)
}

// ApplyPagination decodes the cursor token and constrains the statement to
// rows after the cursor, fetching one extra row so the caller can detect a
// next page.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		size := page.PageSize
		if size <= 0 {
			size = 25
		}

		if page.PageToken != "" {
			cursor, err := pagination.DecodeCursor(page.PageToken)
			if err != nil {
				_ = db.AddError(err)
				return db
			}
			if cursor.CreatedAt != "" {
				at, err := time.Parse(time.RFC3339, cursor.CreatedAt)
				if err != nil {
					_ = db.AddError(fmt.Errorf("%w: bad created_at", pagination.ErrInvalidPageToken))
					return db
				}
				db = db.Where("(created_at < ?) OR (created_at = ? AND id < ?)", at, at, cursor.ID)
			}
		}

		return db.Limit(size + 1)
	})
}

// Limit caps the number of returned rows.
func Limit(n int) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		return db.Limit(n)
	})
}
