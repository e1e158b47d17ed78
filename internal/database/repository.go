package database

import (
	"context"
	"iter"
	"time"
)

// GalleryReader provides read-only access to the enrollment gallery
type GalleryReader interface {
	// Gallery yields every subject that has a reference image, in ascending subject ID order.
	// attribute selects the boolean column surfaced as Subject.Category.
	// Iteration stops at the first error, which is yielded with a zero Subject.
	Gallery(ctx context.Context, attribute string) iter.Seq2[Subject, error]
	// GetSubject retrieves one subject including its reference image, returns nil if not found
	GetSubject(ctx context.Context, id int64, attribute string) (*Subject, error)
	// ReferenceImage returns the stored reference image, or nil if the subject has none
	ReferenceImage(ctx context.Context, id int64) ([]byte, error)
}

// VisitReader provides read-only access to the visit ledger
type VisitReader interface {
	// RecentVisits returns visits for a section, newest first
	RecentVisits(ctx context.Context, section string, limit int) ([]Visit, error)
	// CountVisitsSince counts visits for a section created at or after since
	CountVisitsSince(ctx context.Context, section string, since time.Time) (VisitTotals, error)
}

// VisitWriter appends to the visit ledger. Visits are never updated or deleted.
type VisitWriter interface {
	VisitReader

	// InsertVisit stores a single visit and returns it with its ID and creation time
	InsertVisit(ctx context.Context, visit NewVisit) (*Visit, error)
}

// StaffReader looks up operator accounts
type StaffReader interface {
	// GetStaff returns the staff member for a section and username, or nil if not found
	GetStaff(ctx context.Context, section, username string) (*StaffMember, error)
}
