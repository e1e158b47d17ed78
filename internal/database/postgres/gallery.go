package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	"github.com/kozaktomas/checkpoint/internal/constants"
	"github.com/kozaktomas/checkpoint/internal/database"
	"github.com/kozaktomas/checkpoint/internal/section"
)

// GalleryRepository reads enrolled subjects from the users table
type GalleryRepository struct {
	pool     *Pool
	pageSize int
}

// NewGalleryRepository creates a new gallery repository
func NewGalleryRepository(pool *Pool) *GalleryRepository {
	return &GalleryRepository{pool: pool, pageSize: constants.GalleryPageSize}
}

func attributeColumn(attribute string) (string, error) {
	if !section.IsAllowedAttribute(attribute) {
		return "", fmt.Errorf("attribute %q is not a subject column", attribute)
	}
	return attribute, nil
}

// Gallery yields subjects with a reference image in ascending id order.
// Rows are fetched in keyset pages so only one page of images is held in memory.
func (r *GalleryRepository) Gallery(ctx context.Context, attribute string) iter.Seq2[database.Subject, error] {
	return func(yield func(database.Subject, error) bool) {
		column, err := attributeColumn(attribute)
		if err != nil {
			yield(database.Subject{}, err)
			return
		}

		query := fmt.Sprintf(`
			SELECT id, student_id, name, %s, photo_data
			FROM users
			WHERE photo_data IS NOT NULL AND id > $1
			ORDER BY id ASC
			LIMIT $2
		`, column)

		var after int64
		for {
			page, err := r.fetchPage(ctx, query, after)
			if err != nil {
				yield(database.Subject{}, err)
				return
			}
			for _, s := range page {
				if !yield(s, nil) {
					return
				}
				after = s.ID
			}
			if len(page) < r.pageSize {
				return
			}
		}
	}
}

func (r *GalleryRepository) fetchPage(ctx context.Context, query string, after int64) ([]database.Subject, error) {
	rows, err := r.pool.Query(ctx, query, after, r.pageSize)
	if err != nil {
		return nil, fmt.Errorf("query gallery page: %w", err)
	}
	defer rows.Close()

	page := make([]database.Subject, 0, r.pageSize)
	for rows.Next() {
		var s database.Subject
		if err := rows.Scan(&s.ID, &s.StudentID, &s.Name, &s.Category, &s.ReferenceImage); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		page = append(page, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gallery page: %w", err)
	}
	return page, nil
}

// GetSubject retrieves a subject by id, returns nil if not found
func (r *GalleryRepository) GetSubject(ctx context.Context, id int64, attribute string) (*database.Subject, error) {
	column, err := attributeColumn(attribute)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT id, student_id, name, %s, photo_data FROM users WHERE id = $1`, column)

	var s database.Subject
	err = r.pool.QueryRow(ctx, query, id).Scan(&s.ID, &s.StudentID, &s.Name, &s.Category, &s.ReferenceImage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subject: %w", err)
	}
	return &s, nil
}

// ReferenceImage returns the stored photo, or nil if the subject has none or does not exist
func (r *GalleryRepository) ReferenceImage(ctx context.Context, id int64) ([]byte, error) {
	var data []byte
	err := r.pool.QueryRow(ctx, `SELECT photo_data FROM users WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reference image: %w", err)
	}
	return data, nil
}
