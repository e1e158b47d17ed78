package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/checkpoint/internal/database"
)

// VisitRepository provides PostgreSQL-backed visit ledger storage
type VisitRepository struct {
	pool *Pool
}

// NewVisitRepository creates a new visit repository
func NewVisitRepository(pool *Pool) *VisitRepository {
	return &VisitRepository{pool: pool}
}

// InsertVisit appends one visit; created_at is assigned by the database
func (r *VisitRepository) InsertVisit(ctx context.Context, v database.NewVisit) (*database.Visit, error) {
	query := `
		INSERT INTO visits (user_id, student_id, name, category, section, operator_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	visit := &database.Visit{
		SubjectID:   v.SubjectID,
		StudentID:   v.StudentID,
		SubjectName: v.SubjectName,
		Category:    v.Category,
		Section:     v.Section,
		OperatorID:  v.OperatorID,
	}
	err := r.pool.QueryRow(ctx, query,
		v.SubjectID, v.StudentID, v.SubjectName, v.Category, v.Section, v.OperatorID,
	).Scan(&visit.ID, &visit.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert visit: %w", err)
	}
	return visit, nil
}

// RecentVisits returns the newest visits for a section
func (r *VisitRepository) RecentVisits(ctx context.Context, section string, limit int) ([]database.Visit, error) {
	query := `
		SELECT id, user_id, student_id, name, category, section, operator_id, created_at
		FROM visits
		WHERE section = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, section, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent visits: %w", err)
	}
	defer rows.Close()

	var visits []database.Visit
	for rows.Next() {
		var v database.Visit
		if err := rows.Scan(
			&v.ID, &v.SubjectID, &v.StudentID, &v.SubjectName,
			&v.Category, &v.Section, &v.OperatorID, &v.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visits: %w", err)
	}
	return visits, nil
}

// CountVisitsSince counts visits for a section split by the category flag
func (r *VisitRepository) CountVisitsSince(ctx context.Context, section string, since time.Time) (database.VisitTotals, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE category),
		       COUNT(*) FILTER (WHERE NOT category)
		FROM visits
		WHERE section = $1 AND created_at >= $2
	`

	var t database.VisitTotals
	if err := r.pool.QueryRow(ctx, query, section, since).Scan(&t.Total, &t.WithAttribute, &t.WithoutAttribute); err != nil {
		return database.VisitTotals{}, fmt.Errorf("count visits: %w", err)
	}
	return t, nil
}
