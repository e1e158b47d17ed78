package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/checkpoint/internal/database"
)

// StaffRepository looks up checkpoint operators
type StaffRepository struct {
	pool *Pool
}

// NewStaffRepository creates a new staff repository
func NewStaffRepository(pool *Pool) *StaffRepository {
	return &StaffRepository{pool: pool}
}

// GetStaff returns the operator for a section, nil if not found
func (r *StaffRepository) GetStaff(ctx context.Context, section, username string) (*database.StaffMember, error) {
	query := `SELECT id, username, section, password_hash FROM staff WHERE section = $1 AND username = $2`

	var s database.StaffMember
	err := r.pool.QueryRow(ctx, query, section, username).Scan(&s.ID, &s.Username, &s.Section, &s.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get staff: %w", err)
	}
	return &s, nil
}
