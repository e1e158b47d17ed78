package mariadb

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

// GalleryRepository implements database.GalleryReader over the enrollment
// schema's users table (same column names as the PostgreSQL schema).
type GalleryRepository struct {
	pool *Pool
}

// NewGalleryRepository creates a gallery reader backed by MariaDB
func NewGalleryRepository(pool *Pool) *GalleryRepository {
	return &GalleryRepository{pool: pool}
}

func column(attribute string) (string, error) {
	if !section.IsAllowedAttribute(attribute) {
		return "", fmt.Errorf("attribute %q is not a subject column", attribute)
	}
	return "`" + attribute + "`", nil
}

// Gallery yields subjects that have a photo, ascending by id, one page at a time.
func (r *GalleryRepository) Gallery(ctx context.Context, attribute string) iter.Seq2[database.Subject, error] {
	return func(yield func(database.Subject, error) bool) {
		col, err := column(attribute)
		if err != nil {
			yield(database.Subject{}, err)
			return
		}
		query := "SELECT id, student_id, name, " + col + ", photo_data FROM users" +
			" WHERE photo_data IS NOT NULL AND id > ? ORDER BY id ASC LIMIT ?"

		var after int64
		for {
			rows, err := r.pool.db.QueryContext(ctx, query, after, constants.GalleryPageSize)
			if err != nil {
				yield(database.Subject{}, fmt.Errorf("query gallery page: %w", err))
				return
			}
			page, err := scanSubjects(rows)
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
			if len(page) < constants.GalleryPageSize {
				return
			}
		}
	}
}

func scanSubjects(rows *sql.Rows) ([]database.Subject, error) {
	defer rows.Close()

	var out []database.Subject
	for rows.Next() {
		var s database.Subject
		if err := rows.Scan(&s.ID, &s.StudentID, &s.Name, &s.Category, &s.ReferenceImage); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subjects: %w", err)
	}
	return out, nil
}

// GetSubject returns one subject, nil if not found
func (r *GalleryRepository) GetSubject(ctx context.Context, id int64, attribute string) (*database.Subject, error) {
	col, err := column(attribute)
	if err != nil {
		return nil, err
	}

	var s database.Subject
	err = r.pool.db.QueryRowContext(ctx,
		"SELECT id, student_id, name, "+col+", photo_data FROM users WHERE id = ?", id,
	).Scan(&s.ID, &s.StudentID, &s.Name, &s.Category, &s.ReferenceImage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subject: %w", err)
	}
	return &s, nil
}

// ReferenceImage returns the stored photo or nil
func (r *GalleryRepository) ReferenceImage(ctx context.Context, id int64) ([]byte, error) {
	var data []byte
	err := r.pool.db.QueryRowContext(ctx, "SELECT photo_data FROM users WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reference image: %w", err)
	}
	return data, nil
}
